// Package job implements the Job record and per-filter job pool: one Job
// is one invocation's worth of per-input and per-output bookkeeping,
// recycled between runs instead of allocated fresh.
//
// An arena-of-indices style replaces intrusive linked-list pointers with
// slice membership: rather than embedding prev/next fields in Job and
// splicing them into a filter's unused/staged/working lists by hand, a
// Pool holds those lists as plain slices and the scheduler (which owns
// the stream mutex) moves Jobs between them by slice append/remove.
// This is the idiomatic Go rendition of the same three-state discipline.
package job

// Job is one scheduled invocation of a filter's input callback.
type Job struct {
	// FilterIdx is the index of the owning filter in graph.Graph.Filters.
	FilterIdx int

	// Per-input-port snapshots, indexed by input port number. In holds the
	// contiguous view handed to the filter for this call; InLen is its
	// length in bytes; InFlushing marks a port whose upstream is done and
	// draining; InAdvance is filled in by the filter (via the Ctx helper)
	// during Input and read back by the scheduler afterward.
	In         [][]byte
	InLen      []uint32
	InFlushing []bool
	InAdvance  []uint32

	// Per-output-port byte counts written during this call, filled in by
	// the filter via the Ctx helper and read back by the scheduler.
	OutWriteLen []uint32
}

// New allocates a Job sized for a filter with the given port counts.
func New(numIn, numOut int) *Job {
	return &Job{
		In:          make([][]byte, numIn),
		InLen:       make([]uint32, numIn),
		InFlushing:  make([]bool, numIn),
		InAdvance:   make([]uint32, numIn),
		OutWriteLen: make([]uint32, numOut),
	}
}

// Reset clears a Job for reuse, returning it to a pristine state before it
// re-enters a filter's unused pool.
func (j *Job) Reset() {
	for i := range j.In {
		j.In[i] = nil
		j.InLen[i] = 0
		j.InFlushing[i] = false
		j.InAdvance[i] = 0
	}
	for i := range j.OutWriteLen {
		j.OutWriteLen[i] = 0
	}
}

// Pool holds one filter's recycled Jobs across three states: Unused
// (free, not yet claimed), Staged (claimed by the scheduler, inputs
// being assembled, not yet runnable), and Working (dequeued by a worker
// goroutine and running). All methods assume the caller
// already holds the owning stream's mutex; Pool itself does no locking.
type Pool struct {
	NumIn, NumOut int

	unused  []*Job
	working []*Job
	staged  *Job
}

// NewPool preallocates n recycled Jobs for a filter with the given port
// counts.
func NewPool(n, numIn, numOut int) *Pool {
	p := &Pool{NumIn: numIn, NumOut: numOut}
	p.unused = make([]*Job, 0, n)
	for i := 0; i < n; i++ {
		p.unused = append(p.unused, New(numIn, numOut))
	}
	return p
}

// Acquire pops a Job off the unused stack, growing the pool if it is
// empty. The caller is responsible for moving it into Working once it is
// handed to a worker.
func (p *Pool) Acquire() *Job {
	if len(p.unused) == 0 {
		return New(p.NumIn, p.NumOut)
	}
	n := len(p.unused) - 1
	j := p.unused[n]
	p.unused = p.unused[:n]
	return j
}

// MarkWorking records j as handed off to a worker goroutine.
func (p *Pool) MarkWorking(j *Job) {
	p.working = append(p.working, j)
}

// Release returns j to the unused stack after a worker finishes with it,
// removing it from the working set first.
func (p *Pool) Release(j *Job) {
	for i, w := range p.working {
		if w == j {
			p.working = append(p.working[:i], p.working[i+1:]...)
			break
		}
	}
	j.Reset()
	p.unused = append(p.unused, j)
}

// WorkingCount reports how many Jobs are currently out with workers — the
// scheduler uses this to decide whether a filter has reached its
// maxThreads concurrency bound.
func (p *Pool) WorkingCount() int { return len(p.working) }

// StagedJob returns the single job currently being filled in with this
// call's port snapshots, allocating one if none is staged yet.
func (p *Pool) StagedJob() *Job {
	if p.staged == nil {
		p.staged = p.Acquire()
	}
	return p.staged
}

// PromoteStaged performs the "Staged -> StreamQueue + Unused -> Staged"
// transition in one step: it returns the filled-in staged job (to be
// appended to the stream queue) and immediately replaces the staged slot
// with a fresh job from Unused.
func (p *Pool) PromoteStaged() *Job {
	j := p.StagedJob()
	p.staged = p.Acquire()
	return j
}
