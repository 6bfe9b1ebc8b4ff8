//go:build linux

// Package affinity pins scheduler worker goroutines to specific CPUs.
// Go has no per-goroutine affinity primitive (the runtime freely
// migrates goroutines between OS threads), so a pin locks the calling
// goroutine to its current OS thread first via runtime.LockOSThread,
// then sets that thread's CPU affinity mask with x/sys/unix — best
// effort, and a no-op on non-Linux builds (affinity_stub.go).
package affinity

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// Spec names the CPUs a worker goroutine should be pinned to.
type Spec struct {
	CPUSet []int
}

// PinCurrentGoroutine locks the calling goroutine to its current OS
// thread and restricts that thread to spec.CPUSet. An empty CPUSet is
// a no-op. Intended to be called once, right after a scheduler worker
// goroutine starts, before it enters its dequeue loop.
func PinCurrentGoroutine(spec Spec) error {
	if len(spec.CPUSet) == 0 {
		return nil
	}
	runtime.LockOSThread()

	var set unix.CPUSet
	set.Zero()
	for _, cpu := range spec.CPUSet {
		if cpu < 0 {
			return fmt.Errorf("affinity: negative cpu index %d", cpu)
		}
		set.Set(cpu)
	}
	return unix.SchedSetaffinity(0, &set)
}
