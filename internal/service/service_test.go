package service

import (
	"sync"
	"time"
)

// fakeSaver records durable writes instead of touching disk.
type fakeSaver struct {
	mu    sync.Mutex
	saved map[string]int64
	calls int
}

func newFakeSaver() *fakeSaver {
	return &fakeSaver{saved: make(map[string]int64)}
}

func (f *fakeSaver) SaveBalance(username string, credits int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved[username] = credits
	f.calls++
}

func (f *fakeSaver) savedBalance(username string) (int64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.saved[username]
	return c, ok
}

// recordedBet is one entry captured by fakeRecorder.
type recordedBet struct {
	Username   string
	Game       string
	Result     string
	Bet        int64
	Payout     int64
	Multiplier float64
}

type fakeRecorder struct {
	mu   sync.Mutex
	bets []recordedBet
}

func (f *fakeRecorder) Record(username, game, result string, bet, payout int64, multiplier float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bets = append(f.bets, recordedBet{username, game, result, bet, payout, multiplier})
}

func (f *fakeRecorder) recorded() []recordedBet {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedBet(nil), f.bets...)
}

// manualTimers feeds the phase machines from the test instead of wall time.
type manualTimers struct {
	mu    sync.Mutex
	now   time.Time
	after chan time.Time
	tick  chan time.Time
}

func newManualTimers() *manualTimers {
	return &manualTimers{
		now:   time.Unix(1700000000, 0),
		after: make(chan time.Time),
		tick:  make(chan time.Time),
	}
}

func (m *manualTimers) After(d time.Duration) <-chan time.Time {
	return m.after
}

func (m *manualTimers) Tick(d time.Duration) (<-chan time.Time, func()) {
	return m.tick, func() {}
}

func (m *manualTimers) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *manualTimers) advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

func newTestLedger() (*CreditLedger, *fakeSaver) {
	saver := newFakeSaver()
	return NewCreditLedger(saver), saver
}
