// Package scheduler implements component J: a single cooperative loop
// running one task per enabled sensor and one per enabled controller,
// each with a next-fire timestamp tracked in a min-heap. Grounded on the
// teacher's services/hal/internal/core.Poller (container/heap, a reusable
// timer, a buffered wake channel) generalized from GPIO capability polling
// to running arbitrary tick functions (spec.md §4.J, §5).
package scheduler

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"hydrocore/errcode"
	"hydrocore/internal/arbiter"
)

// Status is a task's scheduling state, independent of the underlying
// entity's Enabled flag (spec.md §4.J: "its entity's enabled is NOT
// cleared, but processing is suppressed").
type Status int

const (
	StatusRunning Status = iota
	StatusFaulted        // persistent I/O or fatal error: entity transitions to FAULTED
	StatusFailed         // configuration error: suppressed until Reconfigure
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusFaulted:
		return "faulted"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// RunFunc is one task's unit of work: a sensor's Tick or a controller's
// Tick, both of which already return a spec.md §7 classified error.
type RunFunc func() error

type taskKey struct {
	kind string // "sensor" | "controller"
	id   string
}

type taskItem struct {
	key      taskKey
	run      RunFunc
	every    time.Duration
	due      int64 // UnixNano
	status   Status
	lastErr  error
	lastRun  time.Time
	index    int
}

type taskHeap []*taskItem

func (h taskHeap) Len() int            { return len(h) }
func (h taskHeap) Less(i, j int) bool  { return h[i].due < h[j].due }
func (h taskHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *taskHeap) Push(x any)         { it := x.(*taskItem); it.index = len(*h); *h = append(*h, it) }
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	it.index = -1
	*h = old[:n-1]
	return it
}
func (h taskHeap) Top() *taskItem {
	if len(h) == 0 {
		return nil
	}
	return h[0]
}

// TaskStatus is the user-visible snapshot of one task, returned by Scheduler.List.
type TaskStatus struct {
	Kind    string
	ID      string
	Status  Status
	LastRun time.Time
	LastErr error
	NextRun time.Time
}

// Scheduler runs every registered task cooperatively on one goroutine
// (spec.md §5: "single-threaded cooperative runtime at the top level").
type Scheduler struct {
	mu    sync.Mutex
	items map[taskKey]*taskItem
	h     taskHeap
	wake  chan struct{}

	arb *arbiter.Arbiter
	log zerolog.Logger

	doneCh chan struct{}
}

func New(arb *arbiter.Arbiter, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		items: make(map[taskKey]*taskItem),
		wake:  make(chan struct{}, 1),
		arb:   arb,
		log:   log.With().Str("component", "scheduler").Logger(),
	}
}

// RegisterSensor adds or updates a sensor task. A call for an id already
// present updates its interval and clears a prior FAILED status (spec.md
// §4.J: "processing is suppressed until an update operation replaces its
// config").
func (s *Scheduler) RegisterSensor(id string, every time.Duration, run RunFunc) {
	s.upsert(taskKey{kind: "sensor", id: id}, every, run)
}

func (s *Scheduler) RegisterController(id string, every time.Duration, run RunFunc) {
	s.upsert(taskKey{kind: "controller", id: id}, every, run)
}

// RunNow forces the task with the given id (sensor or controller) to
// fire at the next loop iteration instead of waiting for its normal
// interval, per spec.md §6's run_now operation ("forces next process
// step immediately"). A no-op if no task with that id is registered.
func (s *Scheduler) RunNow(id string) {
	s.mu.Lock()
	due := false
	for key, it := range s.items {
		if key.id != id {
			continue
		}
		due = true
		it.due = time.Now().UnixNano()
		if it.index >= 0 {
			heap.Fix(&s.h, it.index)
		}
	}
	s.mu.Unlock()
	if due {
		s.wakeup()
	}
}

func (s *Scheduler) Unregister(kind, id string) {
	key := taskKey{kind: kind, id: id}
	s.mu.Lock()
	if it, ok := s.items[key]; ok {
		if it.index >= 0 {
			heap.Remove(&s.h, it.index)
		}
		delete(s.items, key)
	}
	s.mu.Unlock()
	s.wakeup()
}

func (s *Scheduler) upsert(key taskKey, every time.Duration, run RunFunc) {
	s.mu.Lock()
	now := time.Now()
	if it, ok := s.items[key]; ok {
		it.every = every
		it.run = run
		it.status = StatusRunning
		it.due = now.Add(every).UnixNano()
		if it.index >= 0 {
			heap.Fix(&s.h, it.index)
		} else {
			heap.Push(&s.h, it)
		}
	} else {
		it := &taskItem{key: key, run: run, every: every, due: now.UnixNano(), index: -1}
		s.items[key] = it
		heap.Push(&s.h, it)
	}
	s.mu.Unlock()
	s.wakeup()
}

// List returns a point-in-time snapshot of every task (for the system
// status API surface, spec.md §6).
func (s *Scheduler) List() []TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TaskStatus, 0, len(s.items))
	for _, it := range s.items {
		out = append(out, TaskStatus{
			Kind:    it.key.kind,
			ID:      it.key.id,
			Status:  it.status,
			LastRun: it.lastRun,
			LastErr: it.lastErr,
			NextRun: time.Unix(0, it.due),
		})
	}
	return out
}

// Run is the cooperative loop. It blocks until ctx is cancelled, then
// invokes Output Arbiter panic-off at once (spec.md §4.J shutdown
// sequence); tasks run synchronously on this loop, so none is still in
// flight when cancellation is observed.
func (s *Scheduler) Run(ctx context.Context) {
	s.mu.Lock()
	s.doneCh = make(chan struct{})
	s.mu.Unlock()
	defer close(s.doneCh)

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		wait := s.nextWait()
		if wait < 0 {
			select {
			case <-ctx.Done():
				s.shutdown()
				return
			case <-s.wake:
				continue
			}
		}
		if wait == 0 {
			s.fireDue()
			continue
		}

		timer.Reset(wait)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			s.shutdown()
			return
		case <-s.wake:
			if !timer.Stop() {
				<-timer.C
			}
		case <-timer.C:
		}
	}
}

func (s *Scheduler) nextWait() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	top := s.h.Top()
	if top == nil {
		return -1
	}
	now := time.Now().UnixNano()
	if top.due <= now {
		return 0
	}
	return time.Duration(top.due - now)
}

// fireDue pops and runs the earliest task if its due time has already
// passed, one task per call; when a burst of upserts puts several at the
// same instant, the loop calls it again for each. Missed fires coalesce: the next due time is always
// now+every, never every missed tick queued up (spec.md §4.J).
func (s *Scheduler) fireDue() {
	s.mu.Lock()
	now := time.Now().UnixNano()
	top := s.h.Top()
	if top == nil || top.due > now {
		s.mu.Unlock()
		return
	}
	it := heap.Pop(&s.h).(*taskItem)
	suppressed := it.status == StatusFailed || it.status == StatusFaulted
	s.mu.Unlock()

	if suppressed {
		s.requeue(it)
		return
	}

	err := it.run()
	s.recordResult(it, err)
	s.requeue(it)
}

func (s *Scheduler) recordResult(it *taskItem, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it.lastRun = time.Now()
	it.lastErr = err
	if err == nil {
		it.status = StatusRunning
		return
	}
	switch errcode.KindOf(errcode.Of(err)) {
	case errcode.KindConfig:
		it.status = StatusFailed
		s.log.Error().Err(err).Str("kind", it.key.kind).Str("id", it.key.id).Msg("task configuration error, suppressing until reconfigured")
	case errcode.KindPersistent:
		it.status = StatusFaulted
		s.log.Error().Err(err).Str("kind", it.key.kind).Str("id", it.key.id).Msg("task faulted on persistent I/O error")
	case errcode.KindFatal:
		it.status = StatusFaulted
		s.log.Error().Err(err).Str("kind", it.key.kind).Str("id", it.key.id).Msg("fatal task error, invoking panic-off")
		if s.arb != nil {
			if perr := s.arb.PanicOff(); perr != nil {
				s.log.Error().Err(perr).Msg("panic-off failed after fatal error")
			}
		}
	default:
		// transient and safety errors: log and retry at the next normal tick.
		it.status = StatusRunning
		s.log.Warn().Err(err).Str("kind", it.key.kind).Str("id", it.key.id).Msg("task error, will retry")
	}
}

func (s *Scheduler) requeue(it *taskItem) {
	s.mu.Lock()
	it.due = time.Now().Add(it.every).UnixNano()
	heap.Push(&s.h, it)
	s.mu.Unlock()
}

func (s *Scheduler) wakeup() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// shutdown invokes Output Arbiter panic-off unconditionally, without any
// wait. Since the loop is single-threaded and this runs after the last
// fireDue returns, there is no in-flight task to wait for beyond what
// already completed synchronously.
func (s *Scheduler) shutdown() {
	if s.arb == nil {
		return
	}
	if err := s.arb.PanicOff(); err != nil {
		s.log.Error().Err(err).Msg("panic-off failed during shutdown")
	}
}

// Wait blocks until Run has returned, or the given duration elapses,
// whichever is first. Returns true if Run completed in time.
func (s *Scheduler) Wait(timeout time.Duration) bool {
	s.mu.Lock()
	done := s.doneCh
	s.mu.Unlock()
	if done == nil {
		return true
	}
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
