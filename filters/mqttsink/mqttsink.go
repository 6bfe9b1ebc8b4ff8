// Package mqttsink implements a single-input, no-output terminal filter
// that publishes each length-prefixed frame offered on its input port to
// an MQTT topic, through a circuit breaker so a slow or unreachable
// broker turns into real, visible back-pressure on the upstream filter
// (the read-promise/advance contract) instead of an unbounded retry
// loop.
package mqttsink

import (
	"context"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/quickstream/quickstream/internal/filter"
	"github.com/quickstream/quickstream/internal/logger"
	"github.com/quickstream/quickstream/internal/mqtt"
	"github.com/quickstream/quickstream/internal/ports"
	"github.com/quickstream/quickstream/internal/qslog"
	"github.com/quickstream/quickstream/internal/registry"
	"github.com/quickstream/quickstream/pkg/circuitbreaker"
)

func init() {
	registry.RegisterFilter("mqttsink", func() filter.Plugin { return New() })
}

// Filter publishes input-port frames to an MQTT topic.
type Filter struct {
	cfg   mqtt.Config
	topic string

	client ports.MQTTClient
	cb     *circuitbreaker.CircuitBreaker
	log    qslog.Logger
}

// New builds an mqttsink Filter with conservative connection defaults.
func New() *Filter {
	return &Filter{
		cfg: mqtt.Config{
			Brokers:             []string{"tcp://127.0.0.1:1883"},
			ClientID:            "quickstream-mqttsink",
			CleanSession:        true,
			KeepAlive:           30 * time.Second,
			ConnectTimeout:      10 * time.Second,
			MaxReconnectDelay:   1 * time.Minute,
			MessageChannelDepth: 100,
			WriteTimeout:        5 * time.Second,
			QoS:                 1,
		},
		topic: "quickstream/out",
		log:   qslog.Nop(),
	}
}

// Construct accepts --broker URL, --topic NAME, --qos N, and --client-id
// ID.
func (f *Filter) Construct(args []string) error {
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--broker":
			if i+1 >= len(args) {
				return fmt.Errorf("mqttsink: --broker requires a value")
			}
			i++
			f.cfg.Brokers = strings.Split(args[i], ",")
		case "--topic":
			if i+1 >= len(args) {
				return fmt.Errorf("mqttsink: --topic requires a value")
			}
			i++
			f.topic = args[i]
		case "--qos":
			if i+1 >= len(args) {
				return fmt.Errorf("mqttsink: --qos requires a value")
			}
			i++
			n, err := strconv.Atoi(args[i])
			if err != nil || n < 0 || n > 2 {
				return fmt.Errorf("mqttsink: invalid --qos %q", args[i])
			}
			f.cfg.QoS = byte(n)
		case "--client-id":
			if i+1 >= len(args) {
				return fmt.Errorf("mqttsink: --client-id requires a value")
			}
			i++
			f.cfg.ClientID = args[i]
		case "--name":
			i++
		default:
			return fmt.Errorf("mqttsink: unknown argument %q", args[i])
		}
	}
	return nil
}

// Start connects to the broker and sets the input read-promise/threshold.
func (f *Filter) Start(ctx *filter.Ctx) error {
	lg, err := logger.NewLogrusLogger("info", "text")
	if err != nil {
		return err
	}

	client, err := mqtt.NewClient(&f.cfg, lg)
	if err != nil {
		return fmt.Errorf("mqttsink: build client: %w", err)
	}
	f.client = client

	connectCtx, cancel := context.WithTimeout(context.Background(), f.cfg.ConnectTimeout)
	defer cancel()
	if err := f.client.Connect(connectCtx); err != nil {
		return fmt.Errorf("mqttsink: connect: %w", err)
	}

	f.cb = circuitbreaker.New("mqttsink-publish", 0.5, 2, 10*time.Second, 4, 5)

	if err := ctx.SetReadPromise(0, 4096); err != nil {
		return err
	}
	return ctx.SetInputThreshold(0, 4)
}

// Input consumes as many complete length-prefixed frames as are offered
// on input port 0 and publishes each one, advancing past it only once
// publish succeeds; a frame still incomplete at the end of the buffer is
// left unconsumed for the next call.
func (f *Filter) Input(ctx *filter.Ctx, in [][]byte, inLen []uint32, flushing []bool) int {
	if len(in) == 0 {
		return 0
	}
	buf := in[0][:inLen[0]]
	var consumed uint32

	for len(buf) >= 4 {
		n := binary.LittleEndian.Uint32(buf[:4])
		if uint32(len(buf)) < 4+n {
			break
		}
		payload := buf[4 : 4+n]

		err := f.cb.Execute(func() error {
			pubCtx, cancel := context.WithTimeout(context.Background(), f.cfg.WriteTimeout)
			defer cancel()
			return f.client.Publish(pubCtx, f.topic, f.cfg.QoS, false, payload)
		})
		if err != nil {
			f.log.Warn("mqttsink: publish failed", qslog.Field{Key: "error", Value: err.Error()})
			break
		}

		buf = buf[4+n:]
		consumed += 4 + n
	}

	if consumed > 0 {
		if err := ctx.AdvanceInput(0, consumed); err != nil {
			return 1
		}
	}
	return 0
}

// Stop disconnects the MQTT client.
func (f *Filter) Stop(ctx *filter.Ctx) error {
	if f.client != nil {
		f.client.Disconnect(f.cfg.WriteTimeout)
	}
	return nil
}

// Help describes the filter for `quickstream -F mqttsink`.
func (f *Filter) Help() string {
	return "mqttsink: one input, publishes length-prefixed frames to an MQTT topic behind a circuit breaker. " +
		"--broker URL[,...] --topic NAME --qos N --client-id ID"
}
