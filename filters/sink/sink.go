// Package sink implements a single-input, no-output terminal filter: it
// discards every byte offered to it, advancing its read-promise in full
// each call. Useful as the tail of a test graph, or anywhere a real
// consumer (mqttsink, a file writer, …) isn't needed yet.
package sink

import (
	"github.com/quickstream/quickstream/internal/filter"
	"github.com/quickstream/quickstream/internal/qslog"
	"github.com/quickstream/quickstream/internal/registry"
)

func init() {
	registry.RegisterFilter("sink", func() filter.Plugin { return New() })
}

// Filter discards every byte it is offered.
type Filter struct {
	log      qslog.Logger
	received uint64
}

// New builds a sink Filter.
func New() *Filter {
	return &Filter{log: qslog.Nop()}
}

// Start sets a generous read-promise on the one input port so the sink
// never throttles an upstream producer.
func (f *Filter) Start(ctx *filter.Ctx) error {
	return ctx.SetReadPromise(0, 1<<20)
}

// Input advances past everything offered on input port 0.
func (f *Filter) Input(ctx *filter.Ctx, in [][]byte, inLen []uint32, flushing []bool) int {
	if len(inLen) == 0 {
		return 0
	}
	n := inLen[0]
	if n > 0 {
		_ = ctx.AdvanceInput(0, n)
		f.received += uint64(n)
	}
	return 0
}

// Help describes the filter for `quickstream -F sink`.
func (f *Filter) Help() string {
	return "sink: one input, discards all bytes."
}
