package exec

import (
	"sync"
	"time"
)

// TickResolution is the resolution of the single tick source.
const TickResolution = time.Millisecond

// Timers is a tick-driven timer wheel. All timers in the process are ticked
// by one source; a timer's callback runs on the queue that created it, or
// inline on the tick goroutine when no queue is given.
type Timers struct {
	mu     sync.Mutex
	nextID uint64
	armed  map[uint64]*Timer
	now    int64 // ticks observed so far
}

// NewTimers returns an empty timer wheel.
func NewTimers() *Timers {
	return &Timers{armed: make(map[uint64]*Timer)}
}

// Timer is a one-shot timer.
type Timer struct {
	id       uint64
	deadline int64 // in ticks
	queue    *Queue
	cb       func()
	parent   *Timers
}

// Start arms a one-shot timer firing after d. The callback is posted to q;
// when q is nil it runs on the tick goroutine.
func (t *Timers) Start(d time.Duration, q *Queue, cb func()) *Timer {
	ticks := int64((d + TickResolution - 1) / TickResolution)
	if ticks < 1 {
		ticks = 1
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	tm := &Timer{
		id:       t.nextID,
		deadline: t.now + ticks,
		queue:    q,
		cb:       cb,
		parent:   t,
	}
	t.armed[tm.id] = tm
	return tm
}

// Stop disarms the timer. It reports whether the timer was still armed.
func (tm *Timer) Stop() bool {
	tm.parent.mu.Lock()
	defer tm.parent.mu.Unlock()
	if _, ok := tm.parent.armed[tm.id]; !ok {
		return false
	}
	delete(tm.parent.armed, tm.id)
	return true
}

// Tick advances the wheel by one resolution step and fires due timers.
func (t *Timers) Tick() {
	t.mu.Lock()
	t.now++
	var due []*Timer
	for id, tm := range t.armed {
		if tm.deadline <= t.now {
			due = append(due, tm)
			delete(t.armed, id)
		}
	}
	t.mu.Unlock()

	for _, tm := range due {
		if tm.queue != nil {
			// A stopped queue discards the callback, which is the
			// cancellation semantic for removed owners.
			_ = tm.queue.Post(tm.cb)
		} else {
			tm.cb()
		}
	}
}

// TickSource drives a Timers wheel from the wall clock at TickResolution.
type TickSource struct {
	timers *Timers
	quit   chan struct{}
	done   chan struct{}
	once   sync.Once
}

// NewTickSource starts ticking the given wheel.
func NewTickSource(timers *Timers) *TickSource {
	s := &TickSource{
		timers: timers,
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *TickSource) run() {
	defer close(s.done)
	ticker := time.NewTicker(TickResolution)
	defer ticker.Stop()
	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
			s.timers.Tick()
		}
	}
}

// Stop halts the tick source.
func (s *TickSource) Stop() {
	s.once.Do(func() { close(s.quit) })
	<-s.done
}
