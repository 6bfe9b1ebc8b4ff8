// Package passthrough implements a single-port, zero-copy filter: its one
// output shares the same ring buffer as its one input via
// filter.Ctx.CreatePassThroughBuffer, so Input's only job is advancing
// the input cursor — the bytes a downstream reader sees were already
// published by the upstream producer into the shared buffer.
package passthrough

import (
	"github.com/quickstream/quickstream/internal/filter"
	"github.com/quickstream/quickstream/internal/registry"
)

func init() {
	registry.RegisterFilter("passthrough", func() filter.Plugin { return New() })
}

// Filter is a pass-through filter: one input port, one output port,
// sharing a buffer.
type Filter struct{}

// New builds a passthrough Filter.
func New() *Filter { return &Filter{} }

// Start wires output port 0 as a pass-through over input port 0.
func (f *Filter) Start(ctx *filter.Ctx) error {
	return ctx.CreatePassThroughBuffer(0, 0)
}

// Input advances the whole offered view of input port 0; the bytes are
// already visible to downstream readers through the shared buffer, so
// there is nothing left to write.
func (f *Filter) Input(ctx *filter.Ctx, in [][]byte, inLen []uint32, flushing []bool) int {
	if len(inLen) > 0 && inLen[0] > 0 {
		_ = ctx.AdvanceInput(0, inLen[0])
	}
	return 0
}

// Help describes the filter for `quickstream -F passthrough`.
func (f *Filter) Help() string {
	return "passthrough: one input, one output, shares its buffer with the input (zero-copy)."
}
