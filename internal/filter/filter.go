// Package filter implements the Filter runtime record and plugin contract.
//
// A Filter plugin is modeled as a single mandatory method, Input, plus a
// set of optional capability interfaces (Constructor, Starter, Stopper,
// Destroyer, Helper) checked with a type assertion — the same "accept
// small interfaces, check what you need" idiom the standard library uses
// for http.Flusher/io.Closer, in place of a null-checked
// function-pointer table: a Go filter simply doesn't implement the
// interfaces it has no callback for.
package filter

import (
	"fmt"
	"sync"

	"github.com/quickstream/quickstream/internal/job"
	"github.com/quickstream/quickstream/internal/param"
	"github.com/quickstream/quickstream/internal/portio"
	"github.com/quickstream/quickstream/internal/qserr"
)

// Phase marks which lifecycle stage a Ctx was issued for; API helpers
// that only make sense in one phase check it and return a
// ContractViolation/LifecycleMisuse error otherwise.
type Phase int

const (
	PhaseConstruct Phase = iota
	PhaseStart
	PhaseInput
	PhaseStop
)

func (p Phase) String() string {
	switch p {
	case PhaseConstruct:
		return "construct"
	case PhaseStart:
		return "start"
	case PhaseInput:
		return "input"
	case PhaseStop:
		return "stop"
	default:
		return "unknown"
	}
}

// Plugin is the mandatory filter contract: given a snapshot of each
// input port's available bytes, flush state, and the Ctx handle for
// talking back to the runtime, process data and return 0 to keep running.
// Any non-zero return retires the filter: the scheduler marks it Finished
// and never calls Input again. The scheduler does not distinguish
// positive from negative values and reports neither as an error.
type Plugin interface {
	Input(ctx *Ctx, in [][]byte, inLen []uint32, flushing []bool) int
}

// Constructor is implemented by plugins that take load-time arguments.
type Constructor interface {
	Construct(args []string) error
}

// Starter is implemented by plugins needing start-phase setup (buffer
// creation, read-promise/threshold tuning, parameter registration).
type Starter interface {
	Start(ctx *Ctx) error
}

// Stopper is implemented by plugins needing stop-phase teardown.
type Stopper interface {
	Stop(ctx *Ctx) error
}

// Destroyer is implemented by plugins holding resources to release at
// unload.
type Destroyer interface {
	Destroy()
}

// Helper is implemented by plugins providing `quickstream -F <name>`
// text.
type Helper interface {
	Help() string
}

// State is the filter's current lifecycle marker.
type State int

const (
	StateIdle State = iota
	StateConstructed
	StateStarting
	StateRunning
	StateStopping
	StateStopped
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConstructed:
		return "constructed"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// PostInputHook is registered by a controller against one filter and
// invoked by the scheduler after every Input call returns, before that
// call's results are reconciled.
type PostInputHook func(ctx *Ctx, returnVal int)

// Record is the runtime object for one loaded filter: its plugin, port
// arrays, parameter dictionary, job pool, and lifecycle state. Filters
// are referenced by index into graph.Graph.Filters, never by pointer, so
// Record itself never points back at its owning graph.
type Record struct {
	Name       string
	Plugin     Plugin
	MaxThreads int

	NumInputs, NumOutputs int
	Outputs               []*portio.Output // one per output port
	Readers               []*portio.Reader // one per input port

	Params *param.Dict

	postInputMu sync.Mutex
	postInput   map[string]PostInputHook // controller name -> hook

	State State

	// Finished marks a filter the scheduler has permanently retired: a
	// non-zero Input return, or a broken read-promise, ends it.
	// Scheduler-owned state, read/written only while
	// holding the owning stream's mutex.
	Finished bool

	// Mu is allocated only when MaxThreads > 1 and left nil otherwise: a
	// single-threaded filter is only ever entered by one worker at a time
	// by construction (the scheduler never dispatches a second job while
	// one is queued or Working). The scheduler never locks Mu, so
	// concurrent Input calls of a multi-threaded filter are not
	// serialized by it; port cursors move only under the stream mutex.
	Mu *sync.Mutex

	Jobs *job.Pool
}

// NewRecord builds a Filter runtime record around a loaded plugin. Port
// counts are not known at load time — graph.Ready discovers them from
// the connection list and grows Outputs/Readers via GrowOutputs/
// GrowInputs during readiness.
func NewRecord(name string, plugin Plugin, maxThreads int) *Record {
	r := &Record{
		Name:       name,
		Plugin:     plugin,
		MaxThreads: maxThreads,
		Params:     param.NewDict(),
		postInput:  make(map[string]PostInputHook),
		State:      StateIdle,
	}
	if maxThreads > 1 {
		r.Mu = &sync.Mutex{}
	}
	return r
}

// GrowOutputs extends the Outputs array to hold at least n ports.
func (r *Record) GrowOutputs(n int) {
	for len(r.Outputs) < n {
		r.Outputs = append(r.Outputs, nil)
	}
	if n > r.NumOutputs {
		r.NumOutputs = n
	}
}

// GrowInputs extends the Readers array to hold at least n ports.
func (r *Record) GrowInputs(n int) {
	for len(r.Readers) < n {
		r.Readers = append(r.Readers, nil)
	}
	if n > r.NumInputs {
		r.NumInputs = n
	}
}

// RegisterPostInput adds (or replaces) a controller's post-input hook.
func (r *Record) RegisterPostInput(controllerName string, hook PostInputHook) {
	r.postInputMu.Lock()
	defer r.postInputMu.Unlock()
	r.postInput[controllerName] = hook
}

// UnregisterPostInput removes a controller's post-input hook.
func (r *Record) UnregisterPostInput(controllerName string) {
	r.postInputMu.Lock()
	defer r.postInputMu.Unlock()
	delete(r.postInput, controllerName)
}

// RunPostInput invokes every registered post-input hook, in no
// guaranteed order across controllers.
func (r *Record) RunPostInput(ctx *Ctx, returnVal int) {
	r.postInputMu.Lock()
	hooks := make([]PostInputHook, 0, len(r.postInput))
	for _, h := range r.postInput {
		hooks = append(hooks, h)
	}
	r.postInputMu.Unlock()
	for _, h := range hooks {
		h(ctx, returnVal)
	}
}

// Ctx is the explicit handle a Record passes to every Plugin method. It
// carries the current phase and (during PhaseInput) the Job being
// filled in, so the API helpers below can validate they're being called
// from the right lifecycle stage without any implicit/thread-local
// state — see DESIGN.md's Open Question decision on thread-local phase
// state.
type Ctx struct {
	Record *Record
	Job    *job.Job
	Phase  Phase
}

// NewCtx builds a Ctx for invoking a Plugin method in the given phase.
// job is nil outside PhaseInput.
func NewCtx(r *Record, j *job.Job, phase Phase) *Ctx {
	return &Ctx{Record: r, Job: j, Phase: phase}
}

func (c *Ctx) requirePhase(want Phase) error {
	if c.Phase != want {
		return qserr.New(qserr.KindLifecycleMisuse,
			fmt.Sprintf("filter %q: called a %s-only API from %s", c.Record.Name, want, c.Phase))
	}
	return nil
}

// CreateOutputBuffer allocates the ring buffer backing one output port.
// Valid only during Start.
func (c *Ctx) CreateOutputBuffer(port int, maxWrite uint32) error {
	if err := c.requirePhase(PhaseStart); err != nil {
		return err
	}
	if port < 0 || port >= len(c.Record.Outputs) {
		return qserr.New(qserr.KindContractViolation, fmt.Sprintf("filter %q: no output port %d", c.Record.Name, port))
	}
	o := c.Record.Outputs[port]
	if o == nil {
		o = portio.NewOutput(-1, port)
		c.Record.Outputs[port] = o
	}
	o.MaxWrite = maxWrite
	return nil
}

// CreatePassThroughBuffer marks outputPort as sharing the same ring
// buffer as inputPort — a zero-copy pass-through. Valid
// only during Start; graph.Ready rejects the wiring later if the filter
// is multi-threaded (DESIGN.md Open Question decision).
func (c *Ctx) CreatePassThroughBuffer(inputPort, outputPort int) error {
	if err := c.requirePhase(PhaseStart); err != nil {
		return err
	}
	if outputPort < 0 || outputPort >= len(c.Record.Outputs) {
		return qserr.New(qserr.KindContractViolation, fmt.Sprintf("filter %q: no output port %d", c.Record.Name, outputPort))
	}
	if inputPort < 0 || inputPort >= len(c.Record.Readers) {
		return qserr.New(qserr.KindContractViolation, fmt.Sprintf("filter %q: no input port %d", c.Record.Name, inputPort))
	}
	o := c.Record.Outputs[outputPort]
	if o == nil {
		o = portio.NewOutput(-1, outputPort)
		c.Record.Outputs[outputPort] = o
	}
	o.PassThroughInputPort = inputPort
	return nil
}

// SetReadPromise sets the maximum bytes this filter promises to have
// consumed from inputPort whenever it is offered data on that port.
// Valid only during Start.
func (c *Ctx) SetReadPromise(inputPort int, n uint32) error {
	if err := c.requirePhase(PhaseStart); err != nil {
		return err
	}
	r := c.Record.Readers[inputPort]
	if r == nil {
		return qserr.New(qserr.KindContractViolation, fmt.Sprintf("filter %q: input port %d not connected", c.Record.Name, inputPort))
	}
	r.ReadPromise = n
	return nil
}

// SetInputThreshold sets the minimum bytes inputPort must have available
// before the scheduler considers the filter ready to run. Valid only
// during Start.
func (c *Ctx) SetInputThreshold(inputPort int, n uint32) error {
	if err := c.requirePhase(PhaseStart); err != nil {
		return err
	}
	r := c.Record.Readers[inputPort]
	if r == nil {
		return qserr.New(qserr.KindContractViolation, fmt.Sprintf("filter %q: input port %d not connected", c.Record.Name, inputPort))
	}
	r.Threshold = n
	return nil
}

// GetOutputBuffer returns a writable slice of up to maxLen bytes on
// port, valid only during Input. maxLen is clamped to the port's
// MaxWrite: the ring buffer's wrap-overhang is sized to MaxWrite, not to
// whatever a filter happens to ask for, so handing back more than that
// would slice past the mirrored region and panic on a wrap.
func (c *Ctx) GetOutputBuffer(port int, maxLen uint32) ([]byte, error) {
	if err := c.requirePhase(PhaseInput); err != nil {
		return nil, err
	}
	o := c.Record.Outputs[port]
	if o == nil || o.Buffer == nil {
		return nil, qserr.New(qserr.KindContractViolation, fmt.Sprintf("filter %q: output port %d has no buffer", c.Record.Name, port))
	}
	if maxLen > o.MaxWrite {
		maxLen = o.MaxWrite
	}
	return o.Buffer.GetOutputBuffer(maxLen), nil
}

// Output commits n bytes written via the slice GetOutputBuffer returned,
// valid only during Input. n must not exceed the port's MaxWrite — a
// filter that ignored the slice length GetOutputBuffer handed back and
// wrote (or claims to have written) more than that is a contract
// violation, not a value to silently accept into the ring.
func (c *Ctx) Output(port int, n uint32) error {
	if err := c.requirePhase(PhaseInput); err != nil {
		return err
	}
	o := c.Record.Outputs[port]
	if o == nil || o.Buffer == nil {
		return qserr.New(qserr.KindContractViolation, fmt.Sprintf("filter %q: output port %d has no buffer", c.Record.Name, port))
	}
	if n > o.MaxWrite {
		return qserr.New(qserr.KindContractViolation, fmt.Sprintf("filter %q: wrote %d bytes on output port %d, exceeding maxWrite %d", c.Record.Name, n, port, o.MaxWrite))
	}
	o.Buffer.Commit(n)
	c.Job.OutWriteLen[port] += n
	return nil
}

// AdvanceInput records that the filter consumed n bytes of inputPort
// during this call. The scheduler clamps this to the bytes actually
// offered when it applies it to the Reader after Input returns.
func (c *Ctx) AdvanceInput(inputPort int, n uint32) error {
	if err := c.requirePhase(PhaseInput); err != nil {
		return err
	}
	if inputPort < 0 || inputPort >= len(c.Job.InAdvance) {
		return qserr.New(qserr.KindContractViolation, fmt.Sprintf("filter %q: no input port %d", c.Record.Name, inputPort))
	}
	c.Job.InAdvance[inputPort] += n
	return nil
}

// Push fans a value out to every get-callback registered against name on
// this filter's own parameter dictionary. Valid from any phase: unlike
// the start/input-only helpers above, Push has no lifecycle restriction
// — a filter may legitimately push from its set-callback
// (construct-time), from Start, or from Input.
func (c *Ctx) Push(name string, value interface{}) error {
	return c.Record.Params.Push(name, value)
}
