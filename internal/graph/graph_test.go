package graph

import (
	"testing"

	"github.com/quickstream/quickstream/internal/filter"
	"github.com/quickstream/quickstream/internal/qserr"
	"github.com/stretchr/testify/require"
)

type recordingPlugin struct {
	started bool
	stopped bool
	numIn   int
	numOut  int
}

func (p *recordingPlugin) Start(ctx *filter.Ctx) error {
	p.started = true
	p.numIn = ctx.Record.NumInputs
	p.numOut = ctx.Record.NumOutputs
	return nil
}

func (p *recordingPlugin) Stop(ctx *filter.Ctx) error {
	p.stopped = true
	return nil
}

func (p *recordingPlugin) Input(ctx *filter.Ctx, in [][]byte, inLen []uint32, flushing []bool) int {
	return 0
}

func newLinearGraph() (*Graph, *recordingPlugin, *recordingPlugin) {
	src := &recordingPlugin{}
	sink := &recordingPlugin{}
	g := &Graph{
		Filters: []*filter.Record{
			filter.NewRecord("src", src, 1),
			filter.NewRecord("sink", sink, 1),
		},
		Connections: []Connection{
			{FromFilter: 0, FromPort: NextPort, ToFilter: 1, ToPort: NextPort},
		},
	}
	return g, src, sink
}

func TestReadySimplePipeline(t *testing.T) {
	g, src, sink := newLinearGraph()
	require.NoError(t, g.Ready(Hooks{}))

	require.Equal(t, 1, g.Filters[0].NumOutputs)
	require.Equal(t, 1, g.Filters[1].NumInputs)
	require.True(t, src.started)
	require.True(t, sink.started)
	require.NotNil(t, g.Filters[0].Outputs[0].Buffer)
	require.Equal(t, filter.StateRunning, g.Filters[0].State)
}

func TestReadyFailsWithNoSources(t *testing.T) {
	p := &recordingPlugin{}
	g := &Graph{
		Filters: []*filter.Record{
			filter.NewRecord("a", p, 1),
			filter.NewRecord("b", p, 1),
		},
		Connections: []Connection{
			{FromFilter: 0, FromPort: NextPort, ToFilter: 1, ToPort: NextPort},
			{FromFilter: 1, FromPort: NextPort, ToFilter: 0, ToPort: NextPort},
		},
	}
	err := g.Ready(Hooks{})
	require.Error(t, err)
	require.True(t, qserr.Is(err, qserr.KindTopologyError))
}

func TestReadyDetectsCycleWhenLoopsNotAllowed(t *testing.T) {
	p := &recordingPlugin{}
	g := &Graph{
		Filters: []*filter.Record{
			filter.NewRecord("a", p, 1),
			filter.NewRecord("b", p, 1),
			filter.NewRecord("c", p, 1),
		},
		Connections: []Connection{
			{FromFilter: 0, FromPort: NextPort, ToFilter: 1, ToPort: NextPort},
			{FromFilter: 1, FromPort: NextPort, ToFilter: 2, ToPort: NextPort},
			{FromFilter: 2, FromPort: NextPort, ToFilter: 1, ToPort: NextPort},
		},
	}
	err := g.Ready(Hooks{})
	require.Error(t, err)
	require.True(t, qserr.Is(err, qserr.KindTopologyError))
}

func TestReadyAllowsLoopsWhenFlagSet(t *testing.T) {
	p := &recordingPlugin{}
	g := &Graph{
		AllowLoops: true,
		Filters: []*filter.Record{
			filter.NewRecord("a", p, 1),
			filter.NewRecord("b", p, 1),
			filter.NewRecord("c", p, 1),
		},
		Connections: []Connection{
			{FromFilter: 0, FromPort: NextPort, ToFilter: 1, ToPort: NextPort},
			{FromFilter: 1, FromPort: NextPort, ToFilter: 2, ToPort: NextPort},
			{FromFilter: 2, FromPort: NextPort, ToFilter: 1, ToPort: NextPort},
		},
	}
	require.NoError(t, g.Ready(Hooks{}))
}

func TestAssignOutputPortsClampsOutOfSequenceNumber(t *testing.T) {
	p := &recordingPlugin{}
	sink1 := &recordingPlugin{}
	sink2 := &recordingPlugin{}
	g := &Graph{
		Filters: []*filter.Record{
			filter.NewRecord("src", p, 1),
			filter.NewRecord("sink1", sink1, 1),
			filter.NewRecord("sink2", sink2, 1),
		},
		Connections: []Connection{
			{FromFilter: 0, FromPort: 5, ToFilter: 1, ToPort: NextPort}, // out of sequence, clamped to 0
			{FromFilter: 0, FromPort: NextPort, ToFilter: 2, ToPort: NextPort},
		},
	}
	require.NoError(t, g.Ready(Hooks{}))
	require.Equal(t, 2, g.Filters[0].NumOutputs)
}

func TestReadyRejectsPassThroughOnMultiThreadedFilter(t *testing.T) {
	mid := &passThroughPlugin{inPort: 0, outPort: 0}
	g := &Graph{
		Filters: []*filter.Record{
			filter.NewRecord("src", &recordingPlugin{}, 1),
			filter.NewRecord("mid", mid, 4), // maxThreads > 1
			filter.NewRecord("sink", &recordingPlugin{}, 1),
		},
		Connections: []Connection{
			{FromFilter: 0, FromPort: NextPort, ToFilter: 1, ToPort: NextPort},
			{FromFilter: 1, FromPort: NextPort, ToFilter: 2, ToPort: NextPort},
		},
	}
	err := g.Ready(Hooks{})
	require.Error(t, err)
	require.True(t, qserr.Is(err, qserr.KindTopologyError))
}

type passThroughPlugin struct {
	inPort, outPort int
}

func (p *passThroughPlugin) Start(ctx *filter.Ctx) error {
	return ctx.CreatePassThroughBuffer(p.inPort, p.outPort)
}

func (p *passThroughPlugin) Input(ctx *filter.Ctx, in [][]byte, inLen []uint32, flushing []bool) int {
	return 0
}

func TestReadyAliasesPassThroughBuffer(t *testing.T) {
	mid := &passThroughPlugin{inPort: 0, outPort: 0}
	g := &Graph{
		Filters: []*filter.Record{
			filter.NewRecord("src", &recordingPlugin{}, 1),
			filter.NewRecord("mid", mid, 1),
			filter.NewRecord("sink", &recordingPlugin{}, 1),
		},
		Connections: []Connection{
			{FromFilter: 0, FromPort: NextPort, ToFilter: 1, ToPort: NextPort},
			{FromFilter: 1, FromPort: NextPort, ToFilter: 2, ToPort: NextPort},
		},
	}
	require.NoError(t, g.Ready(Hooks{}))

	upstreamOut := g.Filters[0].Outputs[0]
	midOut := g.Filters[1].Outputs[0]
	require.Same(t, upstreamOut, midOut, "pass-through output must alias the upstream Output")
}

func TestReadyHooksRunInLoadOrderAroundStart(t *testing.T) {
	g, _, _ := newLinearGraph()
	var order []string
	hooks := Hooks{
		PreStart: func(i int) error {
			order = append(order, "pre:"+g.Filters[i].Name)
			return nil
		},
		PostStart: func(i int) error {
			order = append(order, "post:"+g.Filters[i].Name)
			return nil
		},
	}
	require.NoError(t, g.Ready(hooks))
	require.Equal(t, []string{"pre:src", "post:src", "pre:sink", "post:sink"}, order)
}

func TestStopRunsHooksInReverseLoadOrderAroundStop(t *testing.T) {
	g, src, sink := newLinearGraph()
	require.NoError(t, g.Ready(Hooks{}))

	var order []string
	hooks := Hooks{
		PreStop: func(i int) error {
			order = append(order, "pre:"+g.Filters[i].Name)
			return nil
		},
		PostStop: func(i int) error {
			order = append(order, "post:"+g.Filters[i].Name)
			return nil
		},
	}
	require.NoError(t, g.Stop(hooks))
	require.Equal(t, []string{"pre:sink", "post:sink", "pre:src", "post:src"}, order)
	require.True(t, src.stopped)
	require.True(t, sink.stopped)
	require.Equal(t, filter.StateIdle, g.Filters[0].State)
}
