package clock

import (
	"sync"
	"time"
)

// Manual is a Clock whose time only moves when Advance is called.
// Timers fire synchronously during Advance once their deadline is reached.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) NewTimer(d time.Duration) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTimer{
		parent:   m,
		deadline: m.now.Add(d),
		ch:       make(chan time.Time, 1),
	}
	m.timers = append(m.timers, t)
	return t
}

// Advance moves the clock forward and fires every armed timer whose
// deadline has passed.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	now := m.now
	var due []*manualTimer
	for _, t := range m.timers {
		if !t.stopped && !t.fired && !t.deadline.After(now) {
			t.fired = true
			due = append(due, t)
		}
	}
	m.mu.Unlock()

	for _, t := range due {
		select {
		case t.ch <- now:
		default:
		}
	}
}

type manualTimer struct {
	parent   *Manual
	deadline time.Time
	ch       chan time.Time
	stopped  bool
	fired    bool
}

func (t *manualTimer) C() <-chan time.Time {
	return t.ch
}

func (t *manualTimer) Stop() bool {
	t.parent.mu.Lock()
	defer t.parent.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

func (t *manualTimer) Reset(d time.Duration) bool {
	t.parent.mu.Lock()
	defer t.parent.mu.Unlock()
	active := !t.stopped && !t.fired
	t.deadline = t.parent.now.Add(d)
	t.stopped = false
	t.fired = false
	select {
	case <-t.ch:
	default:
	}
	return active
}
