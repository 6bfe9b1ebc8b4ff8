// Package redissource implements a single-output source filter that
// reads a Redis Stream consumer group (XREADGROUP) on its own goroutine
// and emits each message, length-prefixed, on its one output port.
//
// The Redis read loop runs independent of the scheduler: Input can only
// run during a scheduler-owned call, so a background goroutine can't
// write into the output buffer directly without risking a concurrent
// write to a Ctx-only API. Instead it stashes decoded messages on an
// internal/mpscqueue.Queue, and Input — called repeatedly by the
// scheduler while this filter is eligible — drains that queue into the
// real output buffer.
package redissource

import (
	"context"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/quickstream/quickstream/internal/domain"
	"github.com/quickstream/quickstream/internal/filter"
	"github.com/quickstream/quickstream/internal/logger"
	"github.com/quickstream/quickstream/internal/mpscqueue"
	"github.com/quickstream/quickstream/internal/ports"
	"github.com/quickstream/quickstream/internal/qslog"
	"github.com/quickstream/quickstream/internal/redis"
	"github.com/quickstream/quickstream/internal/registry"
	"github.com/quickstream/quickstream/internal/timeutil"
)

func init() {
	registry.RegisterFilter("redissource", func() filter.Plugin { return New() })
}

const queueCapacity = 1024

// Filter reads a Redis Stream consumer group and emits frames.
type Filter struct {
	cfg    redis.Config
	stream string
	group  string

	client ports.RedisClient
	log    qslog.Logger

	queue  *mpscqueue.Queue[domain.Message]
	notify chan struct{}
	cancel context.CancelFunc

	pending []byte // partially-written frame left over from a short output buffer
}

// New builds a redissource Filter with conservative connection defaults.
func New() *Filter {
	return &Filter{
		cfg: redis.Config{
			Addresses:      []string{"127.0.0.1:6379"},
			PoolSize:       10,
			MinIdleConns:   1,
			ConnectTimeout: 5 * time.Second,
			ReadTimeout:    3 * time.Second,
			WriteTimeout:   3 * time.Second,
			MaxRetries:     3,
			RetryInterval:  200 * time.Millisecond,
		},
		stream: "quickstream",
		group:  "quickstream-consumers",
		notify: make(chan struct{}, 1),
	}
}

// Construct accepts --addr HOST:PORT[,HOST:PORT...], --stream NAME,
// --group NAME, --password PASS, and --db N.
func (f *Filter) Construct(args []string) error {
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--addr":
			if i+1 >= len(args) {
				return fmt.Errorf("redissource: --addr requires a value")
			}
			i++
			f.cfg.Addresses = strings.Split(args[i], ",")
		case "--stream":
			if i+1 >= len(args) {
				return fmt.Errorf("redissource: --stream requires a value")
			}
			i++
			f.stream = args[i]
		case "--group":
			if i+1 >= len(args) {
				return fmt.Errorf("redissource: --group requires a value")
			}
			i++
			f.group = args[i]
		case "--password":
			if i+1 >= len(args) {
				return fmt.Errorf("redissource: --password requires a value")
			}
			i++
			f.cfg.Password = args[i]
		case "--db":
			if i+1 >= len(args) {
				return fmt.Errorf("redissource: --db requires a value")
			}
			i++
			n, err := strconv.Atoi(args[i])
			if err != nil {
				return fmt.Errorf("redissource: invalid --db %q", args[i])
			}
			f.cfg.DB = n
		case "--retry-ms":
			if i+1 >= len(args) {
				return fmt.Errorf("redissource: --retry-ms requires a value")
			}
			i++
			n, err := strconv.ParseInt(args[i], 10, 64)
			if err != nil {
				return fmt.Errorf("redissource: invalid --retry-ms %q", args[i])
			}
			f.cfg.RetryInterval = timeutil.FromMillis(n)
		case "--name":
			i++ // consumed by the loader's own --name extraction, not ours
		default:
			return fmt.Errorf("redissource: unknown argument %q", args[i])
		}
	}
	return nil
}

// Start connects to Redis, ensures the consumer group exists, allocates
// the output buffer, and launches the background read goroutine.
func (f *Filter) Start(ctx *filter.Ctx) error {
	lg, err := logger.NewLogrusLogger("info", "text")
	if err != nil {
		return err
	}
	f.log = qslog.Nop()

	client, err := redis.NewClient(&f.cfg, lg)
	if err != nil {
		return fmt.Errorf("redissource: connect: %w", err)
	}
	f.client = client

	bgCtx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel

	if err := f.client.CreateConsumerGroup(bgCtx, f.stream, f.group, "0-0"); err != nil {
		cancel()
		_ = f.client.Close()
		return fmt.Errorf("redissource: create consumer group: %w", err)
	}

	f.queue = mpscqueue.New[domain.Message](queueCapacity)

	if err := ctx.CreateOutputBuffer(0, 4096); err != nil {
		cancel()
		_ = f.client.Close()
		return err
	}

	go f.readLoop(bgCtx)
	return nil
}

func (f *Filter) readLoop(ctx context.Context) {
	consumer := f.client.GetConsumerName()
	for ctx.Err() == nil {
		msgs, err := f.client.ReadMessages(ctx, f.group, consumer, f.stream, 32, 500*time.Millisecond)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			f.log.Warn("redissource: read failed", qslog.Field{Key: "error", Value: err.Error()})
			time.Sleep(200 * time.Millisecond)
			continue
		}
		var ids []string
		for _, m := range msgs {
			if !f.queue.TryPush(m) {
				f.log.Warn("redissource: queue full, dropping message", qslog.Field{Key: "id", Value: m.ID})
				continue
			}
			ids = append(ids, m.ID)
		}
		if len(ids) > 0 {
			if err := f.client.AckMessages(ctx, f.stream, f.group, ids...); err != nil {
				f.log.Warn("redissource: ack failed", qslog.Field{Key: "error", Value: err.Error()})
			}
		}
		if len(msgs) > 0 {
			select {
			case f.notify <- struct{}{}:
			default:
			}
		}
	}
}

// frame encodes one message as a 4-byte little-endian length prefix
// followed by its payload bytes.
func frame(m *domain.Message) []byte {
	out := make([]byte, 4+len(m.Data))
	binary.LittleEndian.PutUint32(out[:4], uint32(len(m.Data)))
	copy(out[4:], m.Data)
	return out
}

// Input drains queued messages into the output buffer until the buffer
// has no more room, waiting briefly for new messages if the queue is
// currently empty.
func (f *Filter) Input(ctx *filter.Ctx, in [][]byte, inLen []uint32, flushing []bool) int {
	wrote := false
	for {
		if len(f.pending) == 0 {
			m := f.queue.TryPop()
			if m == nil {
				break
			}
			f.pending = frame(m)
		}

		buf, err := ctx.GetOutputBuffer(0, uint32(len(f.pending)))
		if err != nil {
			return 1
		}
		n := len(buf)
		if n == 0 {
			break
		}
		if n > len(f.pending) {
			n = len(f.pending)
		}
		copy(buf[:n], f.pending[:n])
		if err := ctx.Output(0, uint32(n)); err != nil {
			return 1
		}
		f.pending = f.pending[n:]
		wrote = true
	}

	if !wrote {
		select {
		case <-f.notify:
		case <-time.After(50 * time.Millisecond):
		}
	}
	return 0
}

// Stop cancels the background read goroutine and closes the Redis
// client.
func (f *Filter) Stop(ctx *filter.Ctx) error {
	if f.cancel != nil {
		f.cancel()
	}
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

// Help describes the filter for `quickstream -F redissource`.
func (f *Filter) Help() string {
	return "redissource: one output, reads a Redis Stream consumer group and emits length-prefixed frames. " +
		"--addr HOST:PORT[,...] --stream NAME --group NAME --password PASS --db N --retry-ms N"
}
