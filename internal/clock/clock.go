// Package clock abstracts time so debounce and throttle behavior can be
// driven deterministically in tests.
package clock

import "time"

// Timer is the subset of time.Timer the engine needs.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
	Reset(d time.Duration) bool
}

// Clock produces the current time and timers.
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) Timer
}

type systemClock struct{}

// System returns a Clock backed by the runtime clock.
func System() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) NewTimer(d time.Duration) Timer {
	return &systemTimer{t: time.NewTimer(d)}
}

type systemTimer struct {
	t *time.Timer
}

func (st *systemTimer) C() <-chan time.Time {
	return st.t.C
}

func (st *systemTimer) Stop() bool {
	return st.t.Stop()
}

func (st *systemTimer) Reset(d time.Duration) bool {
	return st.t.Reset(d)
}
