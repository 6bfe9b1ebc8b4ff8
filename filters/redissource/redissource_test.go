package redissource

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quickstream/quickstream/internal/domain"
	"github.com/quickstream/quickstream/internal/filter"
	"github.com/quickstream/quickstream/internal/job"
	"github.com/quickstream/quickstream/internal/mpscqueue"
	"github.com/quickstream/quickstream/internal/portio"
	"github.com/quickstream/quickstream/internal/ringbuf"
)

func TestConstructParsesKnownFlags(t *testing.T) {
	f := New()
	err := f.Construct([]string{
		"--addr", "10.0.0.1:6379,10.0.0.2:6379",
		"--stream", "events",
		"--group", "workers",
		"--password", "secret",
		"--db", "3",
		"--retry-ms", "500",
	})
	require.NoError(t, err)
	require.Equal(t, []string{"10.0.0.1:6379", "10.0.0.2:6379"}, f.cfg.Addresses)
	require.Equal(t, "events", f.stream)
	require.Equal(t, "workers", f.group)
	require.Equal(t, "secret", f.cfg.Password)
	require.Equal(t, 3, f.cfg.DB)
	require.Equal(t, 500*time.Millisecond, f.cfg.RetryInterval)
}

func TestConstructRejectsUnknownFlag(t *testing.T) {
	f := New()
	require.Error(t, f.Construct([]string{"--bogus", "x"}))
}

func TestConstructRejectsBadDB(t *testing.T) {
	f := New()
	require.Error(t, f.Construct([]string{"--db", "nope"}))
}

func TestFrameEncodesLengthPrefixAndPayload(t *testing.T) {
	m := &domain.Message{ID: "1-0", Data: []byte("hello")}
	out := frame(m)
	require.Equal(t, uint32(5), binary.LittleEndian.Uint32(out[:4]))
	require.Equal(t, []byte("hello"), out[4:])
}

func TestInputDrainsQueueIntoOutputBuffer(t *testing.T) {
	f := New()
	f.queue = mpscqueue.New[domain.Message](16)
	f.notify = make(chan struct{}, 1)

	r := filter.NewRecord("rs", f, 1)
	r.GrowOutputs(1)
	r.Outputs[0] = portio.NewOutput(-1, 0)
	r.Outputs[0].Buffer = ringbuf.New(256, 32)

	f.queue.TryPush(&domain.Message{ID: "1-0", Data: []byte("abc")})

	j := job.New(0, 1)
	ctx := filter.NewCtx(r, j, filter.PhaseInput)
	rv := f.Input(ctx, nil, nil, nil)
	require.Equal(t, 0, rv)

	got := r.Outputs[0].Buffer.Peek(0, 7)
	require.Equal(t, uint32(3), binary.LittleEndian.Uint32(got[:4]))
	require.Equal(t, []byte("abc"), got[4:])
}

func TestInputWaitsBrieflyWhenQueueEmpty(t *testing.T) {
	f := New()
	f.queue = mpscqueue.New[domain.Message](16)
	f.notify = make(chan struct{}, 1)

	r := filter.NewRecord("rs", f, 1)
	r.GrowOutputs(1)
	r.Outputs[0] = portio.NewOutput(-1, 0)
	r.Outputs[0].Buffer = ringbuf.New(256, 32)

	j := job.New(0, 1)
	ctx := filter.NewCtx(r, j, filter.PhaseInput)

	start := time.Now()
	rv := f.Input(ctx, nil, nil, nil)
	require.Equal(t, 0, rv)
	require.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}
