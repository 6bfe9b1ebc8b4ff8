package app

import (
	"testing"

	"github.com/quickstream/quickstream/internal/filter"
	"github.com/quickstream/quickstream/internal/graph"
	"github.com/stretchr/testify/require"
)

type countSource struct{ remaining int }

func (s *countSource) Input(ctx *filter.Ctx, in [][]byte, inLen []uint32, flushing []bool) int {
	if s.remaining == 0 {
		return 1
	}
	buf, err := ctx.GetOutputBuffer(0, 1)
	if err != nil {
		return 1
	}
	buf[0] = 'x'
	if err := ctx.Output(0, 1); err != nil {
		return 1
	}
	s.remaining--
	return 0
}

type sink struct{ got int }

func (s *sink) Input(ctx *filter.Ctx, in [][]byte, inLen []uint32, flushing []bool) int {
	if inLen[0] == 0 {
		return 0
	}
	s.got += int(inLen[0])
	_ = ctx.AdvanceInput(0, inLen[0])
	return 0
}

func TestLoadFilterAutoSuffixesOnNameCollision(t *testing.T) {
	a := New(nil)
	_, err := a.LoadFilter("src", &countSource{}, 1, nil)
	require.NoError(t, err)
	r2, err := a.LoadFilter("src", &countSource{}, 1, nil)
	require.NoError(t, err)
	require.Equal(t, "src-2", r2.Name)
}

type watchingController struct {
	preStarts, postStarts []int
}

func (c *watchingController) PreStart(filterIdx, numIn, numOut int) error {
	c.preStarts = append(c.preStarts, filterIdx)
	return nil
}
func (c *watchingController) PostStart(filterIdx, numIn, numOut int) error {
	c.postStarts = append(c.postStarts, filterIdx)
	return nil
}

func TestStreamReadyLaunchesAndDrainsPipeline(t *testing.T) {
	a := New(nil)
	src := &countSource{remaining: 5}
	snk := &sink{}

	srcRec, err := a.LoadFilter("src", src, 1, nil)
	require.NoError(t, err)
	sinkRec, err := a.LoadFilter("sink", snk, 1, nil)
	require.NoError(t, err)

	wc := &watchingController{}
	_, err = a.LoadController("watcher", wc, nil)
	require.NoError(t, err)

	st := a.NewStream("main")
	srcIdx := st.AddFilter(srcRec)
	sinkIdx := st.AddFilter(sinkRec)
	st.Connect(srcIdx, graph.NextPort, sinkIdx, graph.NextPort)

	require.NoError(t, st.Ready())
	require.Equal(t, []int{0, 1}, wc.preStarts)
	require.Equal(t, []int{0, 1}, wc.postStarts)

	require.NoError(t, st.Launch(0, nil))
	st.Wait()
	require.Equal(t, 5, snk.got)

	require.NoError(t, st.Teardown())
}

func TestAppDestroyWithLaunchedStreamDoesNotPanic(t *testing.T) {
	a := New(nil)
	src := &countSource{remaining: -1}
	snk := &sink{}
	srcRec, err := a.LoadFilter("src", src, 1, nil)
	require.NoError(t, err)
	sinkRec, err := a.LoadFilter("sink", snk, 1, nil)
	require.NoError(t, err)

	st := a.NewStream("main")
	srcIdx := st.AddFilter(srcRec)
	sinkIdx := st.AddFilter(sinkRec)
	st.Connect(srcIdx, graph.NextPort, sinkIdx, graph.NextPort)
	require.NoError(t, st.Ready())
	require.NoError(t, st.Launch(2, nil))

	require.NotPanics(t, a.Destroy)
}
