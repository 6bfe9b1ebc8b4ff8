// Package scheduler implements the worker pool and job lifecycle backing
// a stream: a pool of goroutines draining a shared stream queue, each
// holding no lock while a filter's Input runs.
//
// Jobs move through an Unused/Staged/Queued/Working state machine as
// filters become eligible and are surveyed for work. Workers are plain
// goroutines (no context.Context) parked on a sync.Cond; they exit once
// the queue is empty and no job is Working. The worker count is a
// hard cap fixed for the stream's whole lifetime: Launch spawns exactly
// maxThreads goroutines up front, parked and woken via sync.Cond, with
// no dynamic growth or shrink case to model.
package scheduler

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/quickstream/quickstream/internal/filter"
	"github.com/quickstream/quickstream/internal/graph"
	"github.com/quickstream/quickstream/internal/job"
	"github.com/quickstream/quickstream/internal/portio"
	"github.com/quickstream/quickstream/internal/qserr"
	"github.com/quickstream/quickstream/internal/qslog"
)

// Clock abstracts time.Now so tests can supply a deterministic clock;
// defaults to the real wall clock. Resolves the "coarse clock" open
// question (see DESIGN.md).
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Scheduler runs one Stream's worker pool. All mutable
// state below the Graph is guarded by mu; jobsReady wakes a worker when
// the queue gains an entry, masterWait wakes Wait callers when the last
// worker exits.
type Scheduler struct {
	g   *graph.Graph
	log qslog.Logger
	clk Clock

	mu         sync.Mutex
	jobsReady  *sync.Cond
	masterWait *sync.Cond

	queue []*job.Job // StreamQueue: FIFO of jobs ready to run

	isSourcing atomic.Int32 // 1 while new source jobs may be enqueued, 0 once stopped

	workers     int // goroutines currently assigned to this stream
	idleThreads int
}

// New builds a Scheduler over an already-Ready Graph.
func New(g *graph.Graph, log qslog.Logger, clk Clock) *Scheduler {
	if log == nil {
		log = qslog.Nop()
	}
	if clk == nil {
		clk = realClock{}
	}
	s := &Scheduler{g: g, log: log, clk: clk}
	s.jobsReady = sync.NewCond(&s.mu)
	s.masterWait = sync.NewCond(&s.mu)
	s.isSourcing.Store(1)
	return s
}

// Launch starts the worker pool. maxThreads == 0 means "run on the
// caller": Launch itself drains the queue synchronously and returns once
// the stream has finished, exactly like a pool of one worker that never
// needed its own goroutine.
func (s *Scheduler) Launch(maxThreads int) error {
	if maxThreads < 0 {
		return qserr.New(qserr.KindContractViolation, "maxThreads must be >= 0")
	}

	s.mu.Lock()
	s.stageAndEnqueueEligibleLocked()
	s.mu.Unlock()

	if maxThreads == 0 {
		s.mu.Lock()
		s.workers = 1
		s.mu.Unlock()
		s.workerLoop()
		return nil
	}

	s.mu.Lock()
	s.workers = maxThreads
	s.mu.Unlock()
	for i := 0; i < maxThreads; i++ {
		go s.workerLoop()
	}
	return nil
}

// StopSources stops new source jobs from being enqueued. Existing queued
// and working jobs drain naturally.
func (s *Scheduler) StopSources() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isSourcing.Store(0)
	s.jobsReady.Broadcast()
}

// Wait blocks until every worker has exited. Returns immediately if no
// workers are currently running.
func (s *Scheduler) Wait() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.workers > 0 {
		s.masterWait.Wait()
	}
}

func (s *Scheduler) outputFor(r *portio.Reader) *portio.Output {
	return s.g.Filters[r.OutputFilterIdx].Outputs[r.OutputPortIdx]
}

// isEligibleLocked implements the full eligibility predicate, including
// the spare-slot check (jobs already queued for the filter count against
// MaxThreads alongside Working ones). Caller holds mu.
func (s *Scheduler) isEligibleLocked(fi int) bool {
	f := s.g.Filters[fi]
	if f.Finished {
		return false
	}
	busy := f.Jobs.WorkingCount()
	for _, q := range s.queue {
		if q.FilterIdx == fi {
			busy++
		}
	}
	if busy >= f.MaxThreads {
		return false
	}
	return s.isRunnableLocked(f)
}

// isRunnableLocked checks every eligibility clause except the spare-slot
// one — used both by isEligibleLocked and by the same-job continuation
// optimization, which reuses the job already occupying the slot instead
// of needing a fresh one.
func (s *Scheduler) isRunnableLocked(f *filter.Record) bool {
	for _, o := range f.Outputs {
		if o != nil && o.Clogged() {
			return false
		}
	}
	if f.NumInputs == 0 {
		return s.isSourcing.Load() > 0
	}
	for _, r := range f.Readers {
		if r == nil {
			continue
		}
		if r.ReadableLen(s.outputFor(r)) >= uint64(r.Threshold) {
			return true
		}
	}
	return false
}

// fillJobSnapshotLocked copies each connected input port's current
// readable view (clamped to its read-promise, so the slice handed to
// the filter never exceeds the buffer's overhang) into j.
func (s *Scheduler) fillJobSnapshotLocked(f *filter.Record, fi int, j *job.Job) {
	j.FilterIdx = fi
	for pi, r := range f.Readers {
		if r == nil {
			continue
		}
		o := s.outputFor(r)
		avail := r.ReadableLen(o)
		n := avail
		if uint64(r.ReadPromise) < n {
			n = uint64(r.ReadPromise)
		}
		j.InLen[pi] = uint32(n)
		if n > 0 {
			j.In[pi] = r.Peek(o, uint32(n))
		} else {
			j.In[pi] = nil
		}
		j.InFlushing[pi] = s.g.Filters[r.OutputFilterIdx].Finished
	}
}

// stageAndEnqueueEligibleLocked scans every filter and, for each one
// currently eligible, fills its staged job, promotes it to the stream
// queue, and wakes a worker. Caller holds mu.
func (s *Scheduler) stageAndEnqueueEligibleLocked() {
	for fi, f := range s.g.Filters {
		if f.Jobs == nil || !s.isEligibleLocked(fi) {
			continue
		}
		j := f.Jobs.StagedJob()
		s.fillJobSnapshotLocked(f, fi, j)
		promoted := f.Jobs.PromoteStaged()
		s.queue = append(s.queue, promoted)
		s.jobsReady.Signal()
	}
}

func (s *Scheduler) noWorkingJobsLocked() bool {
	for _, f := range s.g.Filters {
		if f.Jobs != nil && f.Jobs.WorkingCount() > 0 {
			return false
		}
	}
	return true
}

// workerLoop is one worker goroutine's whole life: dequeue, run Input
// outside the lock, reconcile, repeat until the queue is empty and no job
// is Working (every source has finished or sourcing was stopped, and the
// downstream filters have drained what they can).
func (s *Scheduler) workerLoop() {
	s.mu.Lock()
	for {
		if len(s.queue) == 0 {
			if s.noWorkingJobsLocked() {
				s.workers--
				if s.workers == 0 {
					s.masterWait.Broadcast()
				}
				s.mu.Unlock()
				return
			}
			s.idleThreads++
			s.jobsReady.Wait()
			s.idleThreads--
			continue
		}

		j := s.queue[0]
		s.queue = s.queue[1:]
		f := s.g.Filters[j.FilterIdx]
		f.Jobs.MarkWorking(j)

		for {
			s.mu.Unlock()
			ctx := filter.NewCtx(f, j, filter.PhaseInput)
			rv := f.Plugin.Input(ctx, j.In, j.InLen, j.InFlushing)
			f.RunPostInput(ctx, rv)
			s.mu.Lock()

			if cont := s.reconcileLocked(f, j, rv); !cont {
				break
			}
		}
	}
}

// reconcileLocked applies one Input call's results: advances readers,
// checks the read-promise invariant, decides whether the filter is
// finished, and surveys the graph for newly eligible filters. Returns
// true if the same job should be re-run against this same filter
// in-place without going back through the queue. Caller holds mu.
func (s *Scheduler) reconcileLocked(f *filter.Record, j *job.Job, rv int) (continueSameJob bool) {
	violation := false
	for pi, r := range f.Readers {
		if r == nil {
			continue
		}
		adv := j.InAdvance[pi]
		if adv > j.InLen[pi] {
			adv = j.InLen[pi]
		}
		o := s.outputFor(r)
		r.Advance(o, uint64(adv))
		if j.InLen[pi] >= r.ReadPromise && r.ReadPromise > 0 && adv == 0 {
			violation = true
		}
	}

	if rv != 0 || violation {
		f.Finished = true
		if violation {
			s.log.Error("filter did not honor its read-promise", qslog.Field{Key: "filter", Value: f.Name})
		}
		s.removeQueuedJobsForLocked(j.FilterIdx)
		f.Jobs.Release(j)
		s.stageAndEnqueueEligibleLocked()
		s.jobsReady.Broadcast()
		return false
	}

	if s.isRunnableLocked(f) {
		s.fillJobSnapshotLocked(f, j.FilterIdx, j)
		s.stageAndEnqueueEligibleLocked()
		return true
	}

	f.Jobs.Release(j)
	s.stageAndEnqueueEligibleLocked()
	s.jobsReady.Broadcast()
	return false
}

func (s *Scheduler) removeQueuedJobsForLocked(filterIdx int) {
	kept := s.queue[:0]
	for _, j := range s.queue {
		if j.FilterIdx != filterIdx {
			kept = append(kept, j)
		}
	}
	s.queue = kept
}
