// Package registry is the Go-native substitute for dlopen/dlsym-style
// plugin loading against a shared-object path: Go has no portable
// equivalent of loading arbitrary code at runtime from a file path, so
// plugins are ordinary Go types registered under a name at init time
// (or explicitly by cmd/quickstream), and "loading" a filter or
// controller by name is a map lookup instead of a dlopen call.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/quickstream/quickstream/internal/filter"
	"github.com/quickstream/quickstream/internal/qserr"
)

// FilterFactory builds a fresh filter.Plugin instance. Registered
// filters are factories, not shared instances, because a Stream may
// load the same named filter more than once (each load gets its own
// state, mirroring a fresh dlopen handle per qsAppFilterLoad call).
type FilterFactory func() filter.Plugin

// ControllerFactory builds a fresh controller plugin instance (any
// subset of the controller.Constructor/PreStarter/... interfaces).
type ControllerFactory func() interface{}

// Registry is a process-wide table of named filter and controller
// factories, replacing the original's directory-of-.so-files lookup.
type Registry struct {
	mu          sync.RWMutex
	filters     map[string]FilterFactory
	controllers map[string]ControllerFactory
}

var global = New()

// New builds an empty Registry. Most callers use the package-level
// RegisterFilter/RegisterController/NewFilter/NewController helpers
// against the process-wide Default registry instead.
func New() *Registry {
	return &Registry{
		filters:     make(map[string]FilterFactory),
		controllers: make(map[string]ControllerFactory),
	}
}

// Default returns the process-wide Registry that package init()
// functions register against.
func Default() *Registry { return global }

// RegisterFilter adds a filter factory under kind, overwriting any
// previous registration under the same name (an intentional departure
// from dlopen's one-path-one-handle semantics: a later registration —
// e.g. a test double — winning is the behavior package init() ordering
// actually needs).
func (r *Registry) RegisterFilter(kind string, f FilterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.filters[kind] = f
}

// RegisterController adds a controller factory under kind.
func (r *Registry) RegisterController(kind string, f ControllerFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.controllers[kind] = f
}

// NewFilter builds a fresh plugin instance for a registered filter
// kind. Returns a qserr.KindLoadError if kind is unknown, the direct
// analogue of dlopen failing to find the shared object.
func (r *Registry) NewFilter(kind string) (filter.Plugin, error) {
	r.mu.RLock()
	f, ok := r.filters[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, qserr.New(qserr.KindLoadError, fmt.Sprintf("no filter registered under %q", kind))
	}
	return f(), nil
}

// NewController builds a fresh plugin instance for a registered
// controller kind.
func (r *Registry) NewController(kind string) (interface{}, error) {
	r.mu.RLock()
	f, ok := r.controllers[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, qserr.New(qserr.KindLoadError, fmt.Sprintf("no controller registered under %q", kind))
	}
	return f(), nil
}

// FilterKinds returns every registered filter kind name, sorted.
func (r *Registry) FilterKinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.filters))
	for k := range r.filters {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ControllerKinds returns every registered controller kind name, sorted.
func (r *Registry) ControllerKinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.controllers))
	for k := range r.controllers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// RegisterFilter adds a filter factory to the process-wide Default registry.
func RegisterFilter(kind string, f FilterFactory) { global.RegisterFilter(kind, f) }

// RegisterController adds a controller factory to the process-wide Default registry.
func RegisterController(kind string, f ControllerFactory) { global.RegisterController(kind, f) }

// NewFilter builds a filter from the process-wide Default registry.
func NewFilter(kind string) (filter.Plugin, error) { return global.NewFilter(kind) }

// NewController builds a controller from the process-wide Default registry.
func NewController(kind string) (interface{}, error) { return global.NewController(kind) }
