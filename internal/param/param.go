// Package param implements the parameter plane: a per-owner dictionary
// of named, typed parameters with synchronous set/push/get callbacks and
// regex-addressable bulk operations.
//
// Set/Push dispatch treats the current owner as the root identity, never
// walking back from ambiguous thread-local state. In Go the natural
// rendition of "the current owner" is simply the receiver of the method
// call — a *Dict IS the owner's parameter table, so Set/Push are plain
// methods on it and need no thread-local lookup at all.
package param

import (
	"fmt"
	"reflect"
	"regexp"
	"sync"

	"github.com/quickstream/quickstream/internal/qserr"
)

// fnIdentity gives a stable identity for a func value, used by KeepOne to
// detect a get-callback that was already registered on this parameter.
func fnIdentity(cb GetCallback) uintptr {
	return reflect.ValueOf(cb).Pointer()
}

// Type is the parameter's type tag. The set is extensible; callers can
// register additional tags above typeUserBase.
type Type int

const (
	// None is the zero value; Create never stores a None parameter.
	None Type = iota
	Double
	Uint64
	String
	Bool
	typeUserBase
)

func (t Type) String() string {
	switch t {
	case None:
		return "none"
	case Double:
		return "double"
	case Uint64:
		return "uint64"
	case String:
		return "string"
	case Bool:
		return "bool"
	default:
		return fmt.Sprintf("user(%d)", int(t))
	}
}

// GetFlag bits control how a Get registration behaves.
type GetFlag int

const (
	// KeepAtRestart preserves the registration across a Stop/Ready cycle.
	KeepAtRestart GetFlag = 1 << iota
	// KeepOne suppresses duplicate registrations of the same func pointer.
	KeepOne
	// NameIsRegex treats the name argument as a POSIX extended regex
	// matched against each parameter of the owner.
	NameIsRegex
)

// SetCallback type-checks and applies an external Set call. It runs
// synchronously on the caller's goroutine; it must not block.
type SetCallback func(value interface{}) error

// GetCallback observes a Pushed value. It must copy the value before
// returning; Pushes to the same parameter made one after another reach
// it in that order.
type GetCallback func(name string, typ Type, value interface{}, userData interface{})

type getReg struct {
	cb       GetCallback
	userData interface{}
	flags    GetFlag
	fnID     uintptr // identity for KeepOne dedup, see Get
}

// Parameter is one named, typed entry owned by a Filter or Controller.
type Parameter struct {
	Name    string
	Type    Type
	value   interface{}
	setCB   SetCallback
	cleanup func()

	mu      sync.Mutex
	getRegs []*getReg
}

// Dict is the per-owner dictionary. Names are unique
// within a Dict.
type Dict struct {
	mu     sync.RWMutex
	byName map[string]*Parameter
	order  []string // preserves creation order for iteration
}

// NewDict creates an empty parameter dictionary for one owner.
func NewDict() *Dict {
	return &Dict{byName: make(map[string]*Parameter)}
}

// Create adds a new parameter. Returns AlreadyExists if the name is taken.
func (d *Dict) Create(name string, typ Type, setCB SetCallback, cleanup func()) (*Parameter, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.byName[name]; ok {
		return nil, qserr.New(qserr.KindAlreadyExists, fmt.Sprintf("parameter %q already exists", name))
	}
	p := &Parameter{Name: name, Type: typ, setCB: setCB, cleanup: cleanup}
	d.byName[name] = p
	d.order = append(d.order, name)
	return p, nil
}

// Set type-checks and invokes the parameter's set-callback synchronously.
// If the owner has no set-callback (immutable from outside), Set is a
// silent no-op.
func (d *Dict) Set(name string, typ Type, value interface{}) error {
	d.mu.RLock()
	p, ok := d.byName[name]
	d.mu.RUnlock()
	if !ok {
		return qserr.New(qserr.KindParameterError, fmt.Sprintf("unknown parameter %q", name))
	}
	if p.Type != typ {
		return qserr.New(qserr.KindParameterError, fmt.Sprintf("parameter %q type mismatch", name))
	}
	p.value = value
	if p.setCB == nil {
		return nil
	}
	return p.setCB(value)
}

// Push synchronously invokes every get-callback registered against name,
// in registration order, passing value. It is the owning code's
// responsibility to call Push (from inside its set-callback, from
// input(), or later). Push holds the parameter's own mutex only while it
// copies the registration list, not during the fan-out, so Pushes made
// one after another are delivered in order, while callbacks of Pushes
// made concurrently from different goroutines may interleave.
func (d *Dict) Push(name string, value interface{}) error {
	d.mu.RLock()
	p, ok := d.byName[name]
	d.mu.RUnlock()
	if !ok {
		return qserr.New(qserr.KindParameterError, fmt.Sprintf("unknown parameter %q", name))
	}

	p.mu.Lock()
	regs := make([]*getReg, len(p.getRegs))
	copy(regs, p.getRegs)
	p.mu.Unlock()

	for _, r := range regs {
		r.cb(p.Name, p.Type, value, r.userData)
	}
	return nil
}

// Get registers a get-callback against one parameter, or against every
// parameter whose name matches a regex when NameIsRegex is set. Returns
// the number of callbacks added.
func (d *Dict) Get(nameOrRegex string, typ Type, cb GetCallback, userData interface{}, flags GetFlag) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var targets []*Parameter
	if flags&NameIsRegex != 0 {
		re, err := regexp.CompilePOSIX(nameOrRegex)
		if err != nil {
			return 0, qserr.Wrap(qserr.KindParameterError, "bad regex", err)
		}
		for _, name := range d.order {
			p := d.byName[name]
			if p.Type == typ && re.MatchString(name) {
				targets = append(targets, p)
			}
		}
	} else {
		p, ok := d.byName[nameOrRegex]
		if !ok {
			return 0, qserr.New(qserr.KindParameterError, fmt.Sprintf("unknown parameter %q", nameOrRegex))
		}
		if p.Type != typ {
			return 0, qserr.New(qserr.KindParameterError, fmt.Sprintf("parameter %q type mismatch", nameOrRegex))
		}
		targets = append(targets, p)
	}

	fnID := fnIdentity(cb)
	added := 0
	for _, p := range targets {
		p.mu.Lock()
		if flags&KeepOne != 0 && hasFn(p.getRegs, fnID) {
			p.mu.Unlock()
			continue
		}
		p.getRegs = append(p.getRegs, &getReg{cb: cb, userData: userData, flags: flags, fnID: fnID})
		p.mu.Unlock()
		added++
	}
	return added, nil
}

func hasFn(regs []*getReg, fnID uintptr) bool {
	for _, r := range regs {
		if r.fnID == fnID {
			return true
		}
	}
	return false
}

// Visitor is called by ForEach for each matching parameter; a non-zero
// return short-circuits the walk.
type Visitor func(name string, typ Type) int

// ForEach walks all parameters in this dict matching nameOrRegex (or all,
// if empty) and typ (or any type, if typ == None), short-circuiting when
// visit returns non-zero. Returns true if the walk was short-circuited.
func (d *Dict) ForEach(nameOrRegex string, typ Type, visit Visitor) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var re *regexp.Regexp
	if nameOrRegex != "" {
		var err error
		re, err = regexp.CompilePOSIX(nameOrRegex)
		if err != nil {
			return false, qserr.Wrap(qserr.KindParameterError, "bad regex", err)
		}
	}

	for _, name := range d.order {
		p := d.byName[name]
		if typ != None && p.Type != typ {
			continue
		}
		if re != nil && !re.MatchString(name) {
			continue
		}
		if visit(name, p.Type) != 0 {
			return true, nil
		}
	}
	return false, nil
}

// PurgeGetCallbacksAtRestart removes every get-callback registration that
// was not flagged KeepAtRestart. graph.Stop calls it on each filter's
// dictionary.
func (d *Dict) PurgeGetCallbacksAtRestart() {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, name := range d.order {
		p := d.byName[name]
		p.mu.Lock()
		kept := p.getRegs[:0]
		for _, r := range p.getRegs {
			if r.flags&KeepAtRestart != 0 {
				kept = append(kept, r)
			}
		}
		p.getRegs = kept
		p.mu.Unlock()
	}
}

// Remove destroys a single parameter by exact name, running its cleanup
// first.
func (d *Dict) Remove(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.byName[name]
	if !ok {
		return
	}
	if p.cleanup != nil {
		p.cleanup()
	}
	delete(d.byName, name)
	for i, n := range d.order {
		if n == name {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
}

// RemoveMatching destroys every parameter whose name matches the POSIX
// regex, running each one's cleanup first.
func (d *Dict) RemoveMatching(nameRegex string) error {
	re, err := regexp.CompilePOSIX(nameRegex)
	if err != nil {
		return qserr.Wrap(qserr.KindParameterError, "bad regex", err)
	}
	d.mu.Lock()
	var doomed []string
	for _, n := range d.order {
		if re.MatchString(n) {
			doomed = append(doomed, n)
		}
	}
	d.mu.Unlock()
	for _, n := range doomed {
		d.Remove(n)
	}
	return nil
}

// DestroyAll runs every parameter's cleanup and empties the dict (called
// when the owning Filter or Controller is unloaded).
func (d *Dict) DestroyAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, name := range d.order {
		p := d.byName[name]
		if p.cleanup != nil {
			p.cleanup()
		}
	}
	d.byName = make(map[string]*Parameter)
	d.order = nil
}

// Names returns the parameter names in creation order.
func (d *Dict) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}
