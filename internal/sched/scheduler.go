package sched

import (
	"container/heap"
	"sync"
	"time"
)

// entry is one scheduled callback.
type entry struct {
	id string
	at time.Time
	// every is non-zero for recurring entries, which reschedule
	// themselves after each firing.
	every time.Duration
	fn    func()
	// index is the heap index, maintained by deadlineHeap.
	index int
}

// deadlineHeap orders entries by deadline, earliest first.
type deadlineHeap []*entry

func (h deadlineHeap) Len() int            { return len(h) }
func (h deadlineHeap) Less(i, j int) bool  { return h[i].at.Before(h[j].at) }
func (h deadlineHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *deadlineHeap) Push(x interface{}) { e := x.(*entry); e.index = len(*h); *h = append(*h, e) }
func (h *deadlineHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// Scheduler owns every deadline in the engine. Callbacks fire on the
// sweeper goroutine, so they must not block; anything slow hands off to its
// own goroutine.
type Scheduler struct {
	clock Clock

	mu      sync.Mutex
	queue   deadlineHeap
	entries map[string]*entry

	pollInterval time.Duration
	stopOnce     sync.Once
	done         chan struct{}
}

// New creates a Scheduler using the given clock.
// The sweeper polls for due entries every pollInterval once started.
func New(clock Clock, pollInterval time.Duration) *Scheduler {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Scheduler{
		clock:        clock,
		entries:      make(map[string]*entry),
		pollInterval: pollInterval,
		done:         make(chan struct{}),
	}
}

// Schedule registers fn to fire once at the given instant.
// Scheduling an id that already exists replaces the existing entry.
func (s *Scheduler) Schedule(id string, at time.Time, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(id)
	e := &entry{id: id, at: at, fn: fn}
	heap.Push(&s.queue, e)
	s.entries[id] = e
}

// Every registers fn to fire repeatedly at the given interval, starting one
// interval from now.
func (s *Scheduler) Every(id string, interval time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(id)
	e := &entry{id: id, at: s.clock.Now().Add(interval), every: interval, fn: fn}
	heap.Push(&s.queue, e)
	s.entries[id] = e
}

// Cancel removes a pending entry. Returns false if no entry with the id
// exists, which is not an error: expiry races with deletion are expected.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(id)
}

// removeLocked removes the entry with the given id from the heap and index.
func (s *Scheduler) removeLocked(id string) bool {
	e, ok := s.entries[id]
	if !ok {
		return false
	}
	heap.Remove(&s.queue, e.index)
	delete(s.entries, id)
	return true
}

// Pending returns the number of scheduled entries.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// RunDue fires every entry whose deadline has passed according to the
// clock. Recurring entries are rescheduled. Safe to call concurrently with
// Schedule/Cancel; tests drive it directly with a manual clock.
func (s *Scheduler) RunDue() int {
	now := s.clock.Now()

	var due []*entry
	s.mu.Lock()
	for len(s.queue) > 0 && !s.queue[0].at.After(now) {
		e := heap.Pop(&s.queue).(*entry)
		delete(s.entries, e.id)
		due = append(due, e)
	}
	// Reschedule recurring entries before releasing the lock so a
	// concurrent Cancel sees them.
	for _, e := range due {
		if e.every > 0 {
			next := &entry{id: e.id, at: now.Add(e.every), every: e.every, fn: e.fn}
			heap.Push(&s.queue, next)
			s.entries[e.id] = next
		}
	}
	s.mu.Unlock()

	// Fire outside the lock: callbacks may schedule or cancel entries.
	for _, e := range due {
		e.fn()
	}
	return len(due)
}

// Start launches the sweeper goroutine. Stop terminates it.
func (s *Scheduler) Start() {
	go func() {
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.RunDue()
			case <-s.done:
				return
			}
		}
	}()
}

// Stop terminates the sweeper goroutine. Idempotent.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.done) })
}
