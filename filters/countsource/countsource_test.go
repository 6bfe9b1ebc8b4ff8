package countsource

import (
	"encoding/binary"
	"testing"

	"golang.org/x/time/rate"

	"github.com/stretchr/testify/require"

	"github.com/quickstream/quickstream/internal/filter"
	"github.com/quickstream/quickstream/internal/job"
	"github.com/quickstream/quickstream/internal/portio"
	"github.com/quickstream/quickstream/internal/ringbuf"
)

func newUnlimited() *Filter {
	f := New()
	f.limiter = rate.NewLimiter(rate.Inf, 1)
	return f
}

func TestConstructParsesRate(t *testing.T) {
	f := New()
	require.NoError(t, f.Construct([]string{"--rate", "50"}))
	require.Equal(t, rate.Limit(50), f.limiter.Limit())
}

func TestConstructRejectsBadRate(t *testing.T) {
	f := New()
	require.Error(t, f.Construct([]string{"--rate", "nope"}))
	require.Error(t, f.Construct([]string{"--rate", "0"}))
}

func TestStartCreatesEightByteOutputBuffer(t *testing.T) {
	f := New()
	r := filter.NewRecord("cs", f, 1)
	r.GrowOutputs(1)

	startCtx := filter.NewCtx(r, nil, filter.PhaseStart)
	require.NoError(t, f.Start(startCtx))
	require.Equal(t, uint32(8), r.Outputs[0].MaxWrite)
}

func TestInputEmitsIncrementingCounter(t *testing.T) {
	f := newUnlimited()
	r := filter.NewRecord("cs", f, 1)
	r.GrowOutputs(1)
	r.Outputs[0] = portio.NewOutput(-1, 0)
	r.Outputs[0].Buffer = ringbuf.New(64, 16)

	j := job.New(0, 1)
	ctx := filter.NewCtx(r, j, filter.PhaseInput)

	require.Equal(t, 0, f.Input(ctx, nil, nil, nil))
	require.Equal(t, 0, f.Input(ctx, nil, nil, nil))

	require.Equal(t, uint64(2), f.counter)
	first := r.Outputs[0].Buffer.Peek(0, 8)
	require.Equal(t, uint64(0), binary.LittleEndian.Uint64(first))
	second := r.Outputs[0].Buffer.Peek(8, 8)
	require.Equal(t, uint64(1), binary.LittleEndian.Uint64(second))
}
