// Package countsource implements a single-output source filter that
// emits a monotonically increasing uint64 counter, one value per
// emission, rate-limited by golang.org/x/time/rate. It exists to give
// scheduler/back-pressure tests a tunable producer instead of a busy
// loop: setting a low rate and a small output buffer reliably drives
// the output into Clogged().
package countsource

import (
	"context"
	"encoding/binary"
	"fmt"
	"strconv"

	"golang.org/x/time/rate"

	"github.com/quickstream/quickstream/internal/filter"
	"github.com/quickstream/quickstream/internal/registry"
)

func init() {
	registry.RegisterFilter("countsource", func() filter.Plugin { return New() })
}

// Filter emits an incrementing counter at a configurable rate.
type Filter struct {
	limiter *rate.Limiter
	counter uint64
}

// New builds a countsource Filter with a default 1000/s rate and a burst
// of 1.
func New() *Filter {
	return &Filter{limiter: rate.NewLimiter(1000, 1)}
}

// Construct accepts an optional "--rate N" argument, in emissions per
// second.
func (f *Filter) Construct(args []string) error {
	for i := 0; i < len(args); i++ {
		if args[i] == "--rate" && i+1 < len(args) {
			i++
			n, err := strconv.ParseFloat(args[i], 64)
			if err != nil || n <= 0 {
				return fmt.Errorf("countsource: invalid --rate %q", args[i])
			}
			f.limiter = rate.NewLimiter(rate.Limit(n), 1)
		}
	}
	return nil
}

// Start creates the one output buffer, sized for one 8-byte counter
// value per write.
func (f *Filter) Start(ctx *filter.Ctx) error {
	return ctx.CreateOutputBuffer(0, 8)
}

// Input blocks on the rate limiter, then writes the next counter value
// as 8 little-endian bytes on output port 0.
func (f *Filter) Input(ctx *filter.Ctx, in [][]byte, inLen []uint32, flushing []bool) int {
	if err := f.limiter.Wait(context.Background()); err != nil {
		return 1
	}
	buf, err := ctx.GetOutputBuffer(0, 8)
	if err != nil || len(buf) < 8 {
		return 0
	}
	binary.LittleEndian.PutUint64(buf[:8], f.counter)
	f.counter++
	if err := ctx.Output(0, 8); err != nil {
		return 1
	}
	return 0
}

// Help describes the filter for `quickstream -F countsource`.
func (f *Filter) Help() string {
	return "countsource: one output, emits an incrementing uint64 counter. --rate N: emissions per second (default 1000)."
}
