// Package app implements the top-level container: an App owns a set of
// named Filters, a set of named Controllers, and a list of Streams,
// tearing every child down in reverse load order when it is destroyed.
//
// Create happens once; destroy walks children in reverse, the same
// construct-then-Start-then-Shutdown rhythm a long-lived daemon
// typically follows, adapted here from one fixed pipeline to an
// arbitrary number of named, independently startable Streams.
package app

import (
	"fmt"

	"github.com/quickstream/quickstream/internal/controller"
	"github.com/quickstream/quickstream/internal/filter"
	"github.com/quickstream/quickstream/internal/graph"
	"github.com/quickstream/quickstream/internal/qserr"
	"github.com/quickstream/quickstream/internal/qslog"
	"github.com/quickstream/quickstream/internal/scheduler"
)

// maxNameSuffix bounds the auto-suffixing search. The bound is soft and
// documented, not a hard protocol limit.
const maxNameSuffix = 10000

// nameTable is the ordered name->index table: a map plus a parallel
// order slice so load order survives for reverse-order teardown.
type nameTable struct {
	byName map[string]int
	order  []string
}

func newNameTable() *nameTable {
	return &nameTable{byName: make(map[string]int)}
}

// reserve finds an unused name starting from want, appending -2, -3, …
// on collision, and records it at the given index.
func (t *nameTable) reserve(want string, index int) (string, error) {
	name := want
	if _, taken := t.byName[name]; taken {
		found := false
		for i := 2; i <= maxNameSuffix; i++ {
			candidate := fmt.Sprintf("%s-%d", want, i)
			if _, taken := t.byName[candidate]; !taken {
				name = candidate
				found = true
				break
			}
		}
		if !found {
			return "", qserr.New(qserr.KindNameClash, fmt.Sprintf("no free name for %q after %d suffixes", want, maxNameSuffix))
		}
	}
	t.byName[name] = index
	t.order = append(t.order, name)
	return name, nil
}

func (t *nameTable) remove(name string) {
	delete(t.byName, name)
	for i, n := range t.order {
		if n == name {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// App is the top-level container.
type App struct {
	Log qslog.Logger

	filterNames *nameTable
	filters     []*filter.Record

	controllerNames *nameTable
	controllers     []*controller.Record

	streams []*Stream
}

// New builds an empty App.
func New(log qslog.Logger) *App {
	if log == nil {
		log = qslog.Nop()
	}
	return &App{
		Log:             log,
		filterNames:     newNameTable(),
		controllerNames: newNameTable(),
	}
}

// LoadFilter registers a filter plugin under wantName (auto-suffixed on
// collision), constructs it if it implements filter.Constructor, and
// returns its runtime Record.
func (a *App) LoadFilter(wantName string, plugin filter.Plugin, maxThreads int, constructArgs []string) (*filter.Record, error) {
	idx := len(a.filters)
	name, err := a.filterNames.reserve(wantName, idx)
	if err != nil {
		return nil, err
	}
	r := filter.NewRecord(name, plugin, maxThreads)
	if c, ok := plugin.(filter.Constructor); ok {
		if err := c.Construct(constructArgs); err != nil {
			a.filterNames.remove(name)
			return nil, qserr.Wrap(qserr.KindLoadError, fmt.Sprintf("filter %q construct failed", name), err)
		}
	}
	a.filters = append(a.filters, r)
	a.Log.Info("filter loaded", qslog.Field{Key: "name", Value: name})
	return r, nil
}

// LoadController registers a controller plugin under wantName
// (auto-suffixed on collision) and constructs it if it implements
// controller.Constructor.
func (a *App) LoadController(wantName string, plugin interface{}, constructArgs []string) (*controller.Record, error) {
	idx := len(a.controllers)
	name, err := a.controllerNames.reserve(wantName, idx)
	if err != nil {
		return nil, err
	}
	r := controller.NewRecord(name, plugin)
	if err := r.RunConstruct(constructArgs); err != nil {
		a.controllerNames.remove(name)
		return nil, qserr.Wrap(qserr.KindLoadError, fmt.Sprintf("controller %q construct failed", name), err)
	}
	a.controllers = append(a.controllers, r)
	a.Log.Info("controller loaded", qslog.Field{Key: "name", Value: name})
	return r, nil
}

// Filters returns every loaded filter in load order.
func (a *App) Filters() []*filter.Record { return a.filters }

// Controllers returns every loaded controller in load order.
func (a *App) Controllers() []*controller.Record { return a.controllers }

// FilterByName returns the loaded filter registered under name, or nil
// if no such filter was loaded.
func (a *App) FilterByName(name string) *filter.Record {
	idx, ok := a.filterNames.byName[name]
	if !ok {
		return nil
	}
	return a.filters[idx]
}

// NewStream creates an empty, named Stream owned by this App.
func (a *App) NewStream(name string) *Stream {
	s := &Stream{
		name: name,
		app:  a,
		g:    graph.New(a.Log),
	}
	a.streams = append(a.streams, s)
	return s
}

// Destroy tears down every Stream (in reverse creation order) and then
// every Controller (in reverse load order), then every Filter (also in
// reverse load order).
func (a *App) Destroy() {
	for i := len(a.streams) - 1; i >= 0; i-- {
		a.streams[i].Teardown()
	}
	for i := len(a.controllers) - 1; i >= 0; i-- {
		a.controllers[i].RunDestroy()
	}
	for i := len(a.filters) - 1; i >= 0; i-- {
		if d, ok := a.filters[i].Plugin.(filter.Destroyer); ok {
			d.Destroy()
		}
	}
}

// Stream belongs to exactly one App and wires its Graph's
// readiness/teardown hooks to every loaded Controller, in App load
// order on the way up and reverse order on the way down.
type Stream struct {
	name string
	app  *App
	g    *graph.Graph
	sch  *scheduler.Scheduler
}

func (s *Stream) Name() string { return s.name }

// Graph exposes the Stream's underlying Graph for rendering (dotrender)
// or other read-only inspection; callers must not mutate it directly.
func (s *Stream) Graph() *graph.Graph { return s.g }

// AddFilter attaches an already App-loaded filter to this Stream's
// graph and returns its local filter index for use in Connect.
func (s *Stream) AddFilter(r *filter.Record) int {
	s.g.Filters = append(s.g.Filters, r)
	return len(s.g.Filters) - 1
}

// Connect appends a raw Connection to the Stream's edge list. Port
// numbers may be graph.NextPort.
func (s *Stream) Connect(fromFilter, fromPort, toFilter, toPort int) {
	s.g.Connections = append(s.g.Connections, graph.Connection{
		FromFilter: fromFilter, FromPort: fromPort,
		ToFilter: toFilter, ToPort: toPort,
	})
}

// AllowLoops toggles whether Ready tolerates a cycle in the Connection
// list.
func (s *Stream) AllowLoops(allow bool) { s.g.AllowLoops = allow }

func (s *Stream) controllerHooks() graph.Hooks {
	controllers := s.app.controllers
	return graph.Hooks{
		PreStart: func(fi int) error {
			for _, c := range controllers {
				f := s.g.Filters[fi]
				if err := c.RunPreStart(fi, f.NumInputs, f.NumOutputs); err != nil {
					return err
				}
			}
			return nil
		},
		PostStart: func(fi int) error {
			for _, c := range controllers {
				f := s.g.Filters[fi]
				if err := c.RunPostStart(fi, f.NumInputs, f.NumOutputs); err != nil {
					return err
				}
			}
			return nil
		},
		PreStop: func(fi int) error {
			for i := len(controllers) - 1; i >= 0; i-- {
				if err := controllers[i].RunPreStop(fi); err != nil {
					return err
				}
			}
			return nil
		},
		PostStop: func(fi int) error {
			for i := len(controllers) - 1; i >= 0; i-- {
				if err := controllers[i].RunPostStop(fi); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// Ready runs graph readiness with every loaded Controller's
// PreStart/PostStart hooks wired in App load order.
func (s *Stream) Ready() error {
	return s.g.Ready(s.controllerHooks())
}

// Launch builds the Stream's scheduler and starts its worker pool.
// maxThreads == 0 runs the whole stream synchronously on the caller.
func (s *Stream) Launch(maxThreads int, clk scheduler.Clock) error {
	s.sch = scheduler.New(s.g, s.app.Log, clk)
	return s.sch.Launch(maxThreads)
}

// StopSources stops the Stream's scheduler from enqueuing new source
// jobs; already-queued and working jobs drain naturally.
func (s *Stream) StopSources() {
	if s.sch != nil {
		s.sch.StopSources()
	}
}

// Wait blocks until every worker in this Stream's pool has exited.
func (s *Stream) Wait() {
	if s.sch != nil {
		s.sch.Wait()
	}
}

// Teardown stops the Stream's workers (if launched) and runs
// Graph.Stop with every Controller's PreStop/PostStop hooks wired in
// reverse App load order.
func (s *Stream) Teardown() error {
	if s.sch != nil {
		s.sch.StopSources()
		s.sch.Wait()
	}
	return s.g.Stop(s.controllerHooks())
}
