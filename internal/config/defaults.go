package config

// DefaultThreads is the worker-pool bound `--threads|-t` defaults to
// when unset.
const DefaultThreads = 7

// NewInvocation returns an Invocation with every CLI-surface default
// applied, ready for ParseArgs to layer parsed flags on top of.
func NewInvocation() *Invocation {
	return &Invocation{
		Threads: DefaultThreads,
	}
}
