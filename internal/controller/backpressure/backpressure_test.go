package backpressure

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quickstream/quickstream/internal/filter"
	"github.com/quickstream/quickstream/internal/param"
)

type noopPlugin struct{}

func (noopPlugin) Input(ctx *filter.Ctx, in [][]byte, inLen []uint32, flushing []bool) int {
	return 0
}

type fakeStopper struct {
	stopped int
}

func (s *fakeStopper) StopSources() { s.stopped++ }

func TestConstructAcceptsParamOverride(t *testing.T) {
	c := New()
	require.NoError(t, c.Construct([]string{"--param", "slow"}))
	require.Equal(t, "slow", c.paramName)
}

func TestConstructRejectsUnknownFlag(t *testing.T) {
	c := New()
	require.Error(t, c.Construct([]string{"--bogus"}))
}

func TestWatchCreatesParameterWhenAbsent(t *testing.T) {
	c := New()
	target := filter.NewRecord("src", noopPlugin{}, 1)
	stopper := &fakeStopper{}

	require.NoError(t, c.Watch(target, stopper))
	require.Contains(t, target.Params.Names(), "backpressure")
}

func TestWatchToleratesParameterAlreadyCreatedByTarget(t *testing.T) {
	c := New()
	target := filter.NewRecord("src", noopPlugin{}, 1)
	_, err := target.Params.Create("backpressure", param.Bool, nil, nil)
	require.NoError(t, err)

	stopper := &fakeStopper{}
	require.NoError(t, c.Watch(target, stopper))
}

func TestWatchStopsSourcesOnceOnFirstTruePush(t *testing.T) {
	c := New()
	target := filter.NewRecord("src", noopPlugin{}, 1)
	stopper := &fakeStopper{}
	require.NoError(t, c.Watch(target, stopper))

	require.NoError(t, target.Params.Push("backpressure", true))
	require.NoError(t, target.Params.Push("backpressure", true))
	require.NoError(t, target.Params.Push("backpressure", false))

	require.Equal(t, 1, stopper.stopped)
}

func TestHelpIsNonEmpty(t *testing.T) {
	require.NotEmpty(t, New().Help())
}
