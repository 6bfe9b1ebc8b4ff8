// Package backpressure implements a controller that watches a single
// boolean parameter on a target filter and calls StopSources on whatever
// owns that filter's stream the first time the parameter is pushed
// true. It stands in for the scripted controller bridge's most common
// use: some filter detects it can no longer keep up and pushes a
// "backpressure" signal instead of silently dropping data; this
// controller is the Go-native subscriber on the other end.
//
// Unlike the PreStart/PostStart hooks every controller gets automatically
// around every filter's lifecycle, watching one specific filter's
// parameter requires knowing which filter.Record to watch — something
// the construct-time argv alone can't carry (a *filter.Record doesn't
// exist until its filter is loaded). So Watch is a second, explicit wiring
// step the assembling code calls once both the controller and its target
// filter are loaded, the same way internal/app wires Stream hooks
// together after the fact rather than threading them through argv.
package backpressure

import (
	"fmt"
	"sync"

	"github.com/quickstream/quickstream/internal/filter"
	"github.com/quickstream/quickstream/internal/param"
	"github.com/quickstream/quickstream/internal/qserr"
	"github.com/quickstream/quickstream/internal/qslog"
	"github.com/quickstream/quickstream/internal/registry"
)

func init() {
	registry.RegisterController("backpressure", func() interface{} { return New() })
}

// SourceStopper is the subset of internal/app.Stream this controller
// needs: a way to stop new source jobs once backpressure trips.
type SourceStopper interface {
	StopSources()
}

// Controller watches one named boolean parameter and stops sourcing on
// the first true push.
type Controller struct {
	paramName  string
	targetName string
	log        qslog.Logger

	mu      sync.Mutex
	tripped bool
}

// New builds a backpressure Controller watching the parameter
// "backpressure" by default.
func New() *Controller {
	return &Controller{paramName: "backpressure", log: qslog.Nop()}
}

// Construct accepts an optional "--param NAME" overriding the watched
// parameter name, and "--target NAME" naming the filter to watch once
// loaded (consumed by the assembling code, see Target).
func (c *Controller) Construct(args []string) error {
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--param":
			if i+1 >= len(args) {
				return fmt.Errorf("backpressure: --param requires a value")
			}
			i++
			c.paramName = args[i]
		case "--target":
			if i+1 >= len(args) {
				return fmt.Errorf("backpressure: --target requires a value")
			}
			i++
			c.targetName = args[i]
		case "--name":
			i++
		default:
			return fmt.Errorf("backpressure: unknown argument %q", args[i])
		}
	}
	return nil
}

// Target returns the filter name this controller was constructed to
// watch, or "" if none was given (the assembling code then has no
// target to call Watch against and leaves it unwired).
func (c *Controller) Target() string { return c.targetName }

// Watch ensures the watched parameter exists on target's own parameter
// dictionary (creating it if the target filter hasn't already, since
// the filter owns no set-callback for it — this controller only ever
// reads) and registers a get-callback so a push of true on it calls
// stopper.StopSources() exactly once. Safe to call whether or not the
// target filter created the parameter itself.
func (c *Controller) Watch(target *filter.Record, stopper SourceStopper) error {
	if _, err := target.Params.Create(c.paramName, param.Bool, nil, nil); err != nil && !qserr.Is(err, qserr.KindAlreadyExists) {
		return err
	}

	_, err := target.Params.Get(c.paramName, param.Bool, func(name string, typ param.Type, value interface{}, userData interface{}) {
		tripped, ok := value.(bool)
		if !ok || !tripped {
			return
		}
		c.mu.Lock()
		already := c.tripped
		c.tripped = true
		c.mu.Unlock()
		if already {
			return
		}
		c.log.Notice("backpressure tripped, stopping sources", qslog.Field{Key: "filter", Value: target.Name}, qslog.Field{Key: "param", Value: c.paramName})
		stopper.StopSources()
	}, nil, param.KeepOne)
	return err
}

// SetLogger overrides the no-op default logger, called by the assembling
// code alongside Watch.
func (c *Controller) SetLogger(log qslog.Logger) {
	if log != nil {
		c.log = log
	}
}

// Help describes the controller (returned by controller.Record.HelpText).
func (c *Controller) Help() string {
	return "backpressure: watches a target filter's boolean parameter (--param NAME, default \"backpressure\") " +
		"and calls StopSources the first time it is pushed true. Bind with Watch(target, stopper) after loading."
}
