package service

import "time"

// TimerFactory abstracts the timer channels that drive the phase machines, so
// tests can feed them from a virtual clock instead of waiting on wall time.
type TimerFactory interface {
	// After returns a channel that fires once after d.
	After(d time.Duration) <-chan time.Time
	// Tick returns a channel firing every d and a stop function.
	Tick(d time.Duration) (<-chan time.Time, func())
	Now() time.Time
}

// WallTimers is the production TimerFactory backed by the time package.
type WallTimers struct{}

func (WallTimers) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

func (WallTimers) Tick(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

func (WallTimers) Now() time.Time {
	return time.Now()
}

// BetRecorder receives every settled wager for the history feed. May be a
// no-op in tests.
type BetRecorder interface {
	Record(username, game, result string, bet, payout int64, multiplier float64)
}

type nopRecorder struct{}

func (nopRecorder) Record(string, string, string, int64, int64, float64) {}
