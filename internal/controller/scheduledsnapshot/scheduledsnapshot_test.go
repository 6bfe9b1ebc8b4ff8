package scheduledsnapshot

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quickstream/quickstream/internal/filter"
	"github.com/quickstream/quickstream/internal/param"
	"github.com/quickstream/quickstream/internal/qslog"
)

type noopPlugin struct{}

func (noopPlugin) Input(ctx *filter.Ctx, in [][]byte, inLen []uint32, flushing []bool) int {
	return 0
}

type fixedLister struct {
	filters []*filter.Record
}

func (l *fixedLister) Filters() []*filter.Record { return l.filters }

// recordingLogger records every "parameter" field passed to Info, for
// asserting snapshot fanout without a real logging backend.
type recordingLogger struct {
	qslog.Logger
	seen *[]string
}

func (l recordingLogger) Info(msg string, fields ...qslog.Field) {
	for _, f := range fields {
		if f.Key == "parameter" {
			*l.seen = append(*l.seen, f.Value.(string))
		}
	}
}

func TestConstructParsesEveryDescriptor(t *testing.T) {
	c := New()
	require.NoError(t, c.Construct([]string{"--every", "@every 1s"}))
	require.Equal(t, "@every 1s", c.spec)
}

func TestConstructRejectsBadSpec(t *testing.T) {
	c := New()
	require.Error(t, c.Construct([]string{"--every", "not a schedule"}))
}

func TestSnapshotLogsEveryParameterOnEveryFilter(t *testing.T) {
	f1 := filter.NewRecord("a", noopPlugin{}, 1)
	_, err := f1.Params.Create("rate", param.Uint64, nil, nil)
	require.NoError(t, err)
	f2 := filter.NewRecord("b", noopPlugin{}, 1)
	_, err = f2.Params.Create("topic", param.String, nil, nil)
	require.NoError(t, err)

	var seen []string
	c := New()
	c.log = recordingLogger{Logger: qslog.Nop(), seen: &seen}

	lister := &fixedLister{filters: []*filter.Record{f1, f2}}
	c.snapshot(lister)

	require.ElementsMatch(t, []string{"rate", "topic"}, seen)
}

func TestDestroyWithoutStartIsSafe(t *testing.T) {
	c := New()
	require.NotPanics(t, func() { c.Destroy() })
}

func TestHelpIsNonEmpty(t *testing.T) {
	require.NotEmpty(t, New().Help())
}
