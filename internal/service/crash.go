package service

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	crashBettingSeconds = 10
	crashTickInterval   = 50 * time.Millisecond
	crashIntermission   = 5 * time.Second
	crashHistoryCap     = 30
	crashGrowthRate     = 0.06
)

const (
	CrashWaiting = "waiting"
	CrashBetting = "betting"
	CrashRunning = "running"
	CrashCrashed = "crashed"
)

// CrashResult is one finished round kept in the history ring.
type CrashResult struct {
	CrashPoint float64   `json:"crashPoint"`
	Time       time.Time `json:"time"`
}

type crashBet struct {
	session           *Session
	amount            int64
	autoCashout       float64
	cashedOut         bool
	cashoutMultiplier float64
}

// generateCrashPoint draws the round's crash multiplier. House edge ~1%:
// max(1.00, floor(100*0.99/(1-r))/100), with an instant crash 1% of the time.
func generateCrashPoint() float64 {
	r := rand.Float64()
	if r >= 0.99 {
		return 1.00
	}
	return math.Max(1.00, math.Floor(100*0.99/(1-r))/100)
}

// CrashService is the shared crash round: a betting window with per-second
// ticks, then a running multiplier raced by cash-outs against the hidden
// crash point.
type CrashService struct {
	hub       *Hub
	ledger    *CreditLedger
	registry  *SessionRegistry
	records   BetRecorder
	timers    TimerFactory
	drawCrash func() float64

	mu         sync.Mutex
	phase      string
	multiplier float64
	crashPoint float64
	startTime  time.Time
	bets       map[string]*crashBet
	history    []CrashResult
}

func NewCrashService(hub *Hub, ledger *CreditLedger, registry *SessionRegistry, timers TimerFactory, records BetRecorder) *CrashService {
	if records == nil {
		records = nopRecorder{}
	}
	return &CrashService{
		hub:        hub,
		ledger:     ledger,
		registry:   registry,
		records:    records,
		timers:     timers,
		drawCrash:  generateCrashPoint,
		phase:      CrashWaiting,
		multiplier: 1.00,
		bets:       make(map[string]*crashBet),
	}
}

// Run drives the betting -> running -> crashed cycle until ctx is cancelled.
func (s *CrashService) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.timers.After(crashIntermission):
		}

		s.openBetting()
		tick, stop := s.timers.Tick(time.Second)
		timeLeft := crashBettingSeconds
		for timeLeft > 0 {
			select {
			case <-ctx.Done():
				stop()
				return
			case <-tick:
				timeLeft--
				s.hub.Broadcast("crashBettingTick", gin.H{"timeLeft": timeLeft})
			}
		}
		stop()

		s.startRound()
		tick, stop = s.timers.Tick(crashTickInterval)
		for running := true; running; {
			select {
			case <-ctx.Done():
				stop()
				return
			case <-tick:
				running = !s.tick()
			}
		}
		stop()
	}
}

func (s *CrashService) openBetting() {
	s.mu.Lock()
	s.phase = CrashBetting
	s.multiplier = 1.00
	s.crashPoint = 0
	s.startTime = time.Time{}
	s.bets = make(map[string]*crashBet)
	s.mu.Unlock()

	s.hub.Broadcast("crashBettingStart", gin.H{"timeLeft": crashBettingSeconds})
}

func (s *CrashService) startRound() {
	s.mu.Lock()
	s.phase = CrashRunning
	s.multiplier = 1.00
	s.crashPoint = s.drawCrash()
	s.startTime = s.timers.Now()
	start := s.startTime.UnixMilli()
	history := append([]CrashResult(nil), s.history...)
	s.mu.Unlock()

	s.hub.Broadcast("crashState", gin.H{
		"phase":      CrashRunning,
		"multiplier": 1.00,
		"history":    history,
		"startTime":  start,
		"bets":       gin.H{},
	})
}

// tick advances the multiplier one step and reports whether the round crashed.
func (s *CrashService) tick() bool {
	s.mu.Lock()
	if s.phase != CrashRunning {
		s.mu.Unlock()
		return true
	}
	elapsed := s.timers.Now().Sub(s.startTime).Seconds()
	s.multiplier = math.Max(1.00, math.Floor(math.Exp(crashGrowthRate*elapsed)*100)/100)
	multiplier := s.multiplier

	var autos []string
	for connID, bet := range s.bets {
		if !bet.cashedOut && bet.autoCashout > 0 && multiplier >= bet.autoCashout {
			autos = append(autos, connID)
		}
	}
	s.mu.Unlock()

	// Auto cash-outs fire on the tick they are reached, even the crash tick.
	for _, connID := range autos {
		s.CashOut(connID)
	}

	s.mu.Lock()
	if s.multiplier >= s.crashPoint {
		s.crash()
		s.mu.Unlock()
		return true
	}
	s.mu.Unlock()

	s.hub.Broadcast("crashTick", gin.H{"multiplier": multiplier})
	return false
}

// crash settles the round; callers hold the lock.
func (s *CrashService) crash() {
	s.phase = CrashCrashed
	s.multiplier = s.crashPoint

	result := CrashResult{CrashPoint: s.crashPoint, Time: s.timers.Now()}
	s.history = append([]CrashResult{result}, s.history...)
	if len(s.history) > crashHistoryCap {
		s.history = s.history[:crashHistoryCap]
	}
	history := append([]CrashResult(nil), s.history...)

	for _, bet := range s.bets {
		if !bet.cashedOut {
			s.records.Record(bet.session.Username, "crash",
				fmt.Sprintf("Crashed at %.2fx", s.crashPoint), bet.amount, 0, 0)
		}
	}

	s.hub.Broadcast("crashResult", gin.H{
		"crashPoint": s.crashPoint,
		"history":    history,
	})
}

// PlaceBet debits the stake during the betting window and acks with
// crashBetPlaced either way.
func (s *CrashService) PlaceBet(sess *Session, amount int64, autoCashout float64) {
	fail := func(msg string) {
		s.hub.SendTo(sess.ConnID, "crashBetPlaced", gin.H{"success": false, "error": msg})
	}

	s.mu.Lock()
	if s.phase != CrashBetting {
		s.mu.Unlock()
		fail("Betting is closed")
		return
	}
	if _, ok := s.bets[sess.ConnID]; ok {
		s.mu.Unlock()
		fail("Already placed a bet")
		return
	}
	if amount <= 0 {
		s.mu.Unlock()
		fail("Invalid bet amount")
		return
	}
	if err := s.ledger.Debit(sess, amount); err != nil {
		s.mu.Unlock()
		fail("Invalid bet amount")
		return
	}
	s.bets[sess.ConnID] = &crashBet{
		session:     sess,
		amount:      amount,
		autoCashout: autoCashout,
	}
	s.mu.Unlock()

	s.hub.SendTo(sess.ConnID, "crashBetPlaced", gin.H{"success": true, "amount": amount})
	s.hub.SendTo(sess.ConnID, "playerData", playerPayload(s.ledger, sess))
}

// CashOut settles a live bet at the current multiplier. A bet whose session
// has disconnected is marked cashed out but receives nothing; its stake stays
// committed.
func (s *CrashService) CashOut(connID string) {
	s.mu.Lock()
	if s.phase != CrashRunning {
		s.mu.Unlock()
		return
	}
	bet, ok := s.bets[connID]
	if !ok || bet.cashedOut {
		s.mu.Unlock()
		return
	}
	bet.cashedOut = true
	bet.cashoutMultiplier = s.multiplier
	multiplier := s.multiplier
	s.mu.Unlock()

	sess, live := s.registry.Get(connID)
	if !live {
		return
	}

	winnings := int64(math.Floor(float64(bet.amount) * multiplier))
	s.ledger.Credit(sess, winnings)
	s.records.Record(sess.Username, "crash",
		fmt.Sprintf("Cashed out at %.2fx", multiplier), bet.amount, winnings, multiplier)

	s.hub.SendTo(connID, "playerData", playerPayload(s.ledger, sess))
	s.hub.Broadcast("crashCashedOut", gin.H{
		"socketId":   connID,
		"username":   sess.Username,
		"multiplier": multiplier,
		"amount":     bet.amount,
		"winnings":   winnings,
	})
}

// State returns the snapshot sent on joinCrash.
func (s *CrashService) State() gin.H {
	s.mu.Lock()
	defer s.mu.Unlock()

	var start interface{}
	if !s.startTime.IsZero() {
		start = s.startTime.UnixMilli()
	}

	bets := make(map[string]gin.H, len(s.bets))
	for connID, bet := range s.bets {
		bets[connID] = gin.H{
			"username":          bet.session.Username,
			"amount":            bet.amount,
			"autoCashout":       bet.autoCashout,
			"cashedOut":         bet.cashedOut,
			"cashoutMultiplier": bet.cashoutMultiplier,
		}
	}

	return gin.H{
		"phase":           s.phase,
		"multiplier":      s.multiplier,
		"history":         append([]CrashResult(nil), s.history...),
		"startTime":       start,
		"bettingTimeLeft": 0,
		"bets":            bets,
	}
}
