// Package controller implements the Controller lifecycle contract: hooks
// that interpose on a stream's filters around start and stop, plus
// post-input observation.
//
// Every Controller hook is optional, so — like internal/filter's Plugin
// contract — each one is its own small interface, checked with a type
// assertion rather than a null-checked function-pointer struct.
package controller

import (
	"github.com/quickstream/quickstream/internal/filter"
	"github.com/quickstream/quickstream/internal/param"
)

// Constructor is implemented by controllers taking load-time arguments.
type Constructor interface {
	Construct(args []string) error
}

// PreStarter is called for every filter, in controller load order,
// before that filter's own start().
type PreStarter interface {
	PreStart(filterIdx, numIn, numOut int) error
}

// PostStarter is called for every filter, in controller load order,
// after that filter's start() returns successfully.
type PostStarter interface {
	PostStart(filterIdx, numIn, numOut int) error
}

// PreStopper is called for every filter, in reverse controller load
// order, before that filter's stop().
type PreStopper interface {
	PreStop(filterIdx int) error
}

// PostStopper is called for every filter, in reverse controller load
// order, after that filter's stop() returns.
type PostStopper interface {
	PostStop(filterIdx int) error
}

// Destroyer is implemented by controllers holding resources to release
// at unload.
type Destroyer interface {
	Destroy()
}

// Helper is implemented by controllers providing help text.
type Helper interface {
	Help() string
}

// PostInput is the per-port observation a controller can register
// against a specific filter via Record.AddPostFilterInput. A non-zero
// return unregisters the callback at once, so it is not called again;
// the removal does not wait for the filter's next Stop.
type PostInput func(inLen, outLen []uint32, flushing []bool) int

// Record is the runtime object for one loaded controller: its plugin
// (any subset of the optional interfaces above) and its own parameter
// dictionary.
type Record struct {
	Name   string
	Plugin interface{}
	Params *param.Dict
}

// NewRecord builds a Controller runtime record around a loaded plugin.
func NewRecord(name string, plugin interface{}) *Record {
	return &Record{Name: name, Plugin: plugin, Params: param.NewDict()}
}

func (r *Record) RunConstruct(args []string) error {
	if c, ok := r.Plugin.(Constructor); ok {
		return c.Construct(args)
	}
	return nil
}

func (r *Record) RunPreStart(filterIdx, numIn, numOut int) error {
	if c, ok := r.Plugin.(PreStarter); ok {
		return c.PreStart(filterIdx, numIn, numOut)
	}
	return nil
}

func (r *Record) RunPostStart(filterIdx, numIn, numOut int) error {
	if c, ok := r.Plugin.(PostStarter); ok {
		return c.PostStart(filterIdx, numIn, numOut)
	}
	return nil
}

func (r *Record) RunPreStop(filterIdx int) error {
	if c, ok := r.Plugin.(PreStopper); ok {
		return c.PreStop(filterIdx)
	}
	return nil
}

func (r *Record) RunPostStop(filterIdx int) error {
	if c, ok := r.Plugin.(PostStopper); ok {
		return c.PostStop(filterIdx)
	}
	return nil
}

func (r *Record) RunDestroy() {
	if c, ok := r.Plugin.(Destroyer); ok {
		c.Destroy()
	}
}

func (r *Record) HelpText() string {
	if c, ok := r.Plugin.(Helper); ok {
		return c.Help()
	}
	return ""
}

// AddPostFilterInput registers this controller's post-input callback
// against a filter, replacing any previous registration under this
// controller's name.
func (r *Record) AddPostFilterInput(f *filter.Record, cb PostInput) {
	f.RegisterPostInput(r.Name, func(ctx *filter.Ctx, returnVal int) {
		flushing := make([]bool, len(ctx.Job.InFlushing))
		copy(flushing, ctx.Job.InFlushing)
		if cb(ctx.Job.InAdvance, ctx.Job.OutWriteLen, flushing) != 0 {
			f.UnregisterPostInput(r.Name)
		}
	})
}
