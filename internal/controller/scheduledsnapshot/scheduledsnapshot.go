// Package scheduledsnapshot implements a periodic observer controller:
// on a cron schedule it walks every loaded filter's parameter
// dictionary and logs one line per parameter. It needs no new runtime
// concept beyond the existing parameter plane and controller hooks —
// it is an illustration of a controller that only ever reads, never
// interposes on start/stop.
package scheduledsnapshot

import (
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/quickstream/quickstream/internal/filter"
	"github.com/quickstream/quickstream/internal/param"
	"github.com/quickstream/quickstream/internal/qslog"
	"github.com/quickstream/quickstream/internal/registry"
)

func init() {
	registry.RegisterController("scheduledsnapshot", func() interface{} { return New() })
}

// FilterLister is the subset of internal/app.App this controller needs:
// the loaded filters to snapshot.
type FilterLister interface {
	Filters() []*filter.Record
}

// Controller snapshots every loaded filter's parameters to the log on a
// cron schedule.
type Controller struct {
	spec     string
	schedule cron.Schedule
	log      qslog.Logger
	runner   *cron.Cron
}

// New builds a Controller defaulting to a snapshot every 30 seconds.
func New() *Controller {
	c := &Controller{spec: "@every 30s", log: qslog.Nop()}
	c.schedule, _ = parser().Parse(c.spec)
	return c
}

func parser() cron.Parser {
	return cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
}

// Construct accepts an optional "--every SPEC" cron expression, in
// either standard 5-field cron syntax or a "@every 1m30s"-style
// descriptor.
func (c *Controller) Construct(args []string) error {
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--every":
			if i+1 >= len(args) {
				return fmt.Errorf("scheduledsnapshot: --every requires a value")
			}
			i++
			schedule, err := parser().Parse(args[i])
			if err != nil {
				return fmt.Errorf("scheduledsnapshot: invalid --every %q: %w", args[i], err)
			}
			c.spec = args[i]
			c.schedule = schedule
		case "--name":
			i++
		default:
			return fmt.Errorf("scheduledsnapshot: unknown argument %q", args[i])
		}
	}
	return nil
}

// Start begins running the cron schedule against lister's current
// filter set, logging through log. Called by the assembling code once
// every filter is loaded, alongside (not instead of) the controller
// lifecycle hooks the runtime calls automatically.
func (c *Controller) Start(lister FilterLister, log qslog.Logger) {
	if log != nil {
		c.log = log
	}
	c.runner = cron.New()
	c.runner.Schedule(c.schedule, cron.FuncJob(func() { c.snapshot(lister) }))
	c.runner.Start()
}

func (c *Controller) snapshot(lister FilterLister) {
	for _, f := range lister.Filters() {
		if f.Params == nil {
			continue
		}
		_, _ = f.Params.ForEach("", param.None, func(name string, typ param.Type) int {
			c.log.Info("parameter snapshot",
				qslog.Field{Key: "filter", Value: f.Name},
				qslog.Field{Key: "parameter", Value: name},
				qslog.Field{Key: "type", Value: typ.String()},
			)
			return 0
		})
	}
}

// Destroy stops the cron runner, if one was started.
func (c *Controller) Destroy() {
	if c.runner != nil {
		c.runner.Stop()
	}
}

// Help describes the controller (returned by controller.Record.HelpText).
func (c *Controller) Help() string {
	return "scheduledsnapshot: logs every loaded filter's parameters on a cron schedule. --every SPEC (default \"@every 30s\")."
}
