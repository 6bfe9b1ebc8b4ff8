// Package graph implements Ready(stream), the graph-readiness algorithm:
// turning a raw connection list into a runnable set of Filter records
// with numbered ports, allocated ring buffers, and controller hooks
// invoked in the right order.
//
// Cycle detection uses a bounded-DFS walk: a path longer than the
// connection count implies a loop, without needing a visited-set. Port
// numbering follows one rule for both directions: concrete port numbers
// must form 0,1,...,k-1; a NextPort sentinel resolves to the current
// count; an out-of-sequence number is a reported, clamped user error.
// Inputs are numbered by the same resolver as outputs even though they
// are normally auto-assigned, since nothing stops a caller from
// requesting a specific input port — see DESIGN.md.
package graph

import (
	"fmt"

	"github.com/quickstream/quickstream/internal/filter"
	"github.com/quickstream/quickstream/internal/job"
	"github.com/quickstream/quickstream/internal/portio"
	"github.com/quickstream/quickstream/internal/qserr"
	"github.com/quickstream/quickstream/internal/qslog"
	"github.com/quickstream/quickstream/internal/ringbuf"
)

// NextPort is the sentinel requesting "the next available port number".
const NextPort = -1

// DefaultJobPoolSize is how many recycled Jobs each filter starts with.
const DefaultJobPoolSize = 4

// Connection is one raw edge in the pre-readiness connection list.
type Connection struct {
	FromFilter int
	FromPort   int // concrete port number, or NextPort
	ToFilter   int
	ToPort     int // concrete port number, or NextPort
}

// Graph is a Stream's raw topology plus its resolved runtime filters.
type Graph struct {
	Filters     []*filter.Record
	Connections []Connection
	AllowLoops  bool

	Log qslog.Logger
}

// Hooks lets the caller (internal/app, which owns Controllers) interpose
// on readiness without graph importing the controller package.
type Hooks struct {
	// PreStart is called for every filter, in Filters order, immediately
	// before that filter's start(); earlier filters have already started.
	PreStart func(filterIdx int) error
	// PostStart is called for every filter immediately after start()
	// returns successfully.
	PostStart func(filterIdx int) error
	// PreStop is called for every filter, in reverse Filters order,
	// immediately before that filter's stop().
	PreStop func(filterIdx int) error
	// PostStop is called for every filter immediately after stop()
	// returns.
	PostStop func(filterIdx int) error
}

// New builds an empty Graph ready to receive filters and connections.
func New(log qslog.Logger) *Graph {
	if log == nil {
		log = qslog.Nop()
	}
	return &Graph{Log: log}
}

// Ready runs the full readiness algorithm. On any failure
// no partial result is usable; the caller discards the Graph (Go's GC
// reclaims whatever ring buffers were allocated in earlier steps — there
// is no explicit unmap to run, unlike the original mmap-backed
// implementation).
func (g *Graph) Ready(hooks Hooks) error {
	sources, err := g.discoverSources()
	if err != nil {
		return err
	}

	if !g.AllowLoops {
		if err := g.checkCycles(sources); err != nil {
			return err
		}
	}

	connReaders := make([]*portio.Reader, len(g.Connections))
	resolvedFrom := make([]int, len(g.Connections))
	resolvedTo := make([]int, len(g.Connections))

	if err := g.assignOutputPorts(resolvedFrom, connReaders); err != nil {
		return err
	}
	if err := g.assignInputPorts(resolvedFrom, resolvedTo, connReaders); err != nil {
		return err
	}

	for _, f := range g.Filters {
		poolSize := DefaultJobPoolSize
		if f.MaxThreads+1 > poolSize {
			poolSize = f.MaxThreads + 1
		}
		f.Jobs = job.NewPool(poolSize, f.NumInputs, f.NumOutputs)
	}

	if err := g.callStart(hooks); err != nil {
		return err
	}

	if err := g.allocateBuffers(); err != nil {
		return err
	}

	return nil
}

func (g *Graph) discoverSources() ([]int, error) {
	hasOutgoing := make(map[int]bool)
	hasIncoming := make(map[int]bool)
	for _, c := range g.Connections {
		hasOutgoing[c.FromFilter] = true
		hasIncoming[c.ToFilter] = true
	}
	var sources []int
	for i := range g.Filters {
		if hasOutgoing[i] && !hasIncoming[i] {
			sources = append(sources, i)
		}
	}
	if len(sources) == 0 {
		return nil, qserr.New(qserr.KindTopologyError, "no sources: every filter with outgoing edges also has an incoming edge")
	}
	return sources, nil
}

// checkCycles runs a bounded DFS from each source. A real cycle makes
// some path's recursion depth exceed len(Connections)+1, so no explicit
// visited-set is needed to detect it.
func (g *Graph) checkCycles(sources []int) error {
	maxLen := len(g.Connections) + 1

	var visit func(node, depth int) error
	visit = func(node, depth int) error {
		if depth > maxLen {
			return qserr.New(qserr.KindTopologyError, "cycle detected: path length exceeds connection bound")
		}
		for _, c := range g.Connections {
			if c.FromFilter == node {
				if err := visit(c.ToFilter, depth+1); err != nil {
					return err
				}
			}
		}
		return nil
	}

	for _, s := range sources {
		if err := visit(s, 0); err != nil {
			return err
		}
	}
	return nil
}

// resolvePorts assigns sequential port numbers to a list of requested
// port numbers (NextPort or concrete), in the order given: a concrete number equal to the current count
// grows it; NextPort resolves to the current count and grows it; a
// number greater than the current count is a user error, reported and
// clamped to the current count (which still grows it); a number less
// than the current count reuses that already-assigned port.
func resolvePorts(log qslog.Logger, ownerName, portKind string, requested []int) (resolved []int, count int) {
	resolved = make([]int, len(requested))
	for i, want := range requested {
		switch {
		case want == NextPort || want == count:
			resolved[i] = count
			count++
		case want > count:
			log.Warn(fmt.Sprintf("%s port %d requested out of sequence, clamped to %d", portKind, want, count),
				qslog.Field{Key: "filter", Value: ownerName})
			resolved[i] = count
			count++
		default:
			resolved[i] = want
		}
	}
	return resolved, count
}

func (g *Graph) assignOutputPorts(resolvedFrom []int, connReaders []*portio.Reader) error {
	for fi, f := range g.Filters {
		var idxs, requested []int
		for ci, c := range g.Connections {
			if c.FromFilter == fi {
				idxs = append(idxs, ci)
				requested = append(requested, c.FromPort)
			}
		}
		resolved, count := resolvePorts(g.Log, f.Name, "output", requested)
		for k, ci := range idxs {
			resolvedFrom[ci] = resolved[k]
		}
		f.GrowOutputs(count)
		for p := 0; p < count; p++ {
			if f.Outputs[p] == nil {
				f.Outputs[p] = portio.NewOutput(fi, p)
			}
		}
		for k, ci := range idxs {
			c := g.Connections[ci]
			r := portio.NewReader(c.ToFilter, -1, fi, resolved[k])
			connReaders[ci] = r
			out := f.Outputs[resolved[k]]
			out.Readers = append(out.Readers, r)
		}
	}
	return nil
}

func (g *Graph) assignInputPorts(resolvedFrom, resolvedTo []int, connReaders []*portio.Reader) error {
	for fi, f := range g.Filters {
		var idxs, requested []int
		for ci, c := range g.Connections {
			if c.ToFilter == fi {
				idxs = append(idxs, ci)
				requested = append(requested, c.ToPort)
			}
		}
		resolved, count := resolvePorts(g.Log, f.Name, "input", requested)
		for k, ci := range idxs {
			resolvedTo[ci] = resolved[k]
		}
		f.GrowInputs(count)
		for k, ci := range idxs {
			port := resolved[k]
			r := connReaders[ci]
			r.ConsumerInputPort = port
			f.Readers[port] = r
		}
		for p := 0; p < count; p++ {
			if f.Readers[p] == nil {
				return qserr.New(qserr.KindTopologyError, fmt.Sprintf("filter %q: input port %d has no connection", f.Name, p))
			}
		}
	}
	return nil
}

func (g *Graph) callStart(hooks Hooks) error {
	for i, f := range g.Filters {
		if hooks.PreStart != nil {
			if err := hooks.PreStart(i); err != nil {
				return err
			}
		}
		if starter, ok := f.Plugin.(filter.Starter); ok {
			f.State = filter.StateStarting
			ctx := filter.NewCtx(f, nil, filter.PhaseStart)
			if err := starter.Start(ctx); err != nil {
				return qserr.Wrap(qserr.KindStartFailure, fmt.Sprintf("filter %q start failed", f.Name), err)
			}
		}
		f.State = filter.StateRunning
		if hooks.PostStart != nil {
			if err := hooks.PostStart(i); err != nil {
				return err
			}
		}
	}
	return nil
}

// Stop tears the graph down in the mirror image of callStart: reverse
// Filters order, PreStop/PostStop wrapped immediately around each
// filter's own stop(). Errors are logged and collected rather than
// aborting the teardown early, since a later filter's stop() running is
// preferable to leaving it stuck mid-lifecycle over an earlier one's
// failure.
func (g *Graph) Stop(hooks Hooks) error {
	var firstErr error
	for i := len(g.Filters) - 1; i >= 0; i-- {
		f := g.Filters[i]
		if hooks.PreStop != nil {
			if err := hooks.PreStop(i); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		if stopper, ok := f.Plugin.(filter.Stopper); ok {
			f.State = filter.StateStopping
			ctx := filter.NewCtx(f, nil, filter.PhaseStop)
			if err := stopper.Stop(ctx); err != nil {
				g.Log.Error("filter stop failed", qslog.Field{Key: "filter", Value: f.Name}, qslog.Field{Key: "error", Value: err.Error()})
				if firstErr == nil {
					firstErr = err
				}
			}
		}
		f.State = filter.StateIdle
		if f.Params != nil {
			f.Params.PurgeGetCallbacksAtRestart()
		}
		if hooks.PostStop != nil {
			if err := hooks.PostStop(i); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (g *Graph) allocateBuffers() error {
	// Resolve pass-through outputs first: each one must alias the buffer
	// (and merge into the reader list) of the Output feeding its declared
	// input port, rather than getting a buffer of its own.
	for _, f := range g.Filters {
		for j, o := range f.Outputs {
			if o == nil || o.PassThroughInputPort < 0 {
				continue
			}
			if f.MaxThreads > 1 {
				return qserr.New(qserr.KindTopologyError,
					fmt.Sprintf("filter %q: pass-through output %d on a multi-threaded filter is not allowed", f.Name, j))
			}
			reader := f.Readers[o.PassThroughInputPort]
			if reader == nil {
				return qserr.New(qserr.KindContractViolation,
					fmt.Sprintf("filter %q: pass-through output %d declares input port %d which is not connected", f.Name, j, o.PassThroughInputPort))
			}
			upstream := g.Filters[reader.OutputFilterIdx].Outputs[reader.OutputPortIdx]
			upstream.Readers = append(upstream.Readers, o.Readers...)
			f.Outputs[j] = upstream
		}
	}

	seen := make(map[*portio.Output]bool)
	for _, f := range g.Filters {
		for _, o := range f.Outputs {
			if o == nil || o.Buffer != nil || seen[o] {
				continue
			}
			seen[o] = true

			var sumReaders, maxPromise uint32
			for _, r := range o.Readers {
				sumReaders += r.ReadPromise + r.Threshold
				if r.ReadPromise > maxPromise {
					maxPromise = r.ReadPromise
				}
			}
			size := o.MaxWrite
			if sumReaders > size {
				size = sumReaders
			}
			overhang := o.MaxWrite
			if maxPromise > overhang {
				overhang = maxPromise
			}
			o.Buffer = ringbuf.New(size, overhang)
		}
	}
	return nil
}
