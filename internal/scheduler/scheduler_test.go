package scheduler

import (
	"sync"
	"testing"
	"time"

	"github.com/quickstream/quickstream/internal/filter"
	"github.com/quickstream/quickstream/internal/graph"
	"github.com/stretchr/testify/require"
)

// countSource emits count single-byte writes, then finishes. A count of
// -1 means "never finish on its own" (used to exercise StopSources).
type countSource struct {
	remaining int
}

func (s *countSource) Input(ctx *filter.Ctx, in [][]byte, inLen []uint32, flushing []bool) int {
	if s.remaining == 0 {
		return 1 // done
	}
	buf, err := ctx.GetOutputBuffer(0, 1)
	if err != nil {
		return 1
	}
	buf[0] = byte('A' + (s.remaining % 26))
	if err := ctx.Output(0, 1); err != nil {
		return 1
	}
	if s.remaining > 0 {
		s.remaining--
	}
	return 0
}

// collectSink accumulates everything it's offered on its one input.
type collectSink struct {
	mu  sync.Mutex
	got []byte
}

func (s *collectSink) Input(ctx *filter.Ctx, in [][]byte, inLen []uint32, flushing []bool) int {
	if inLen[0] == 0 {
		return 0
	}
	s.mu.Lock()
	s.got = append(s.got, in[0][:inLen[0]]...)
	s.mu.Unlock()
	_ = ctx.AdvanceInput(0, inLen[0])
	return 0
}

func (s *collectSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.got)
}

func (s *collectSink) bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, len(s.got))
	copy(out, s.got)
	return out
}

func buildPipeline(t *testing.T, n int) (*graph.Graph, *countSource, *collectSink) {
	t.Helper()
	src := &countSource{remaining: n}
	sink := &collectSink{}
	g := &graph.Graph{
		Filters: []*filter.Record{
			filter.NewRecord("src", src, 1),
			filter.NewRecord("sink", sink, 1),
		},
		Connections: []graph.Connection{
			{FromFilter: 0, FromPort: graph.NextPort, ToFilter: 1, ToPort: graph.NextPort},
		},
	}
	require.NoError(t, g.Ready(graph.Hooks{}))
	return g, src, sink
}

func TestSchedulerRunOnCallerDrainsAllBytes(t *testing.T) {
	g, _, sink := buildPipeline(t, 5)
	s := New(g, nil, nil)
	require.NoError(t, s.Launch(0))
	s.Wait()
	require.Len(t, sink.bytes(), 5)
}

func TestSchedulerWithWorkerPoolDrains(t *testing.T) {
	g, _, sink := buildPipeline(t, 50)
	s := New(g, nil, nil)
	require.NoError(t, s.Launch(4))
	s.Wait()
	require.Len(t, sink.bytes(), 50)
}

func TestSchedulerMarksFinishedFilterAndStops(t *testing.T) {
	g, _, _ := buildPipeline(t, 1)
	s := New(g, nil, nil)
	require.NoError(t, s.Launch(0))
	s.Wait()
	require.True(t, g.Filters[0].Finished)
}

func TestStopSourcesEndsAnUnboundedSource(t *testing.T) {
	g, _, sink := buildPipeline(t, -1) // never finishes on its own
	s := New(g, nil, nil)
	require.NoError(t, s.Launch(2))

	for i := 0; i < 1000 && sink.count() == 0; i++ {
		time.Sleep(time.Millisecond)
	}
	require.Greater(t, sink.count(), 0, "some bytes should have flowed before stopping")

	s.StopSources()
	s.Wait()

	require.Greater(t, sink.count(), 0)
}
