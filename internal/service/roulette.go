package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	rouletteBettingWindow = 15 * time.Second
	rouletteSpinDelay     = 2 * time.Second
	rouletteResultDisplay = 6 * time.Second

	rouletteWheelSize  = 15 // numbers 0..14
	rouletteHistoryCap = 50

	rouletteGreenMultiplier = 14
	rouletteColorMultiplier = 2
)

type RoulettePhase int

const (
	PhaseBettingOpen RoulettePhase = iota
	PhaseSpinning
	PhaseResolving
)

// RouletteResult is one settled spin kept in the shared history ring.
type RouletteResult struct {
	Number    int    `json:"number"`
	Color     string `json:"color"`
	Timestamp int64  `json:"timestamp"`
}

type rouletteBet struct {
	session *Session
	color   string
	amount  int64
}

// rouletteColor maps a winning number to its color: 0 is green, odd numbers
// are red, the remaining even numbers are black.
func rouletteColor(n int) string {
	switch {
	case n == 0:
		return "green"
	case n%2 == 1:
		return "red"
	default:
		return "black"
	}
}

// RouletteService is the single shared roulette round. One goroutine (Run)
// drives the phase cycle; bet handlers mutate the same state under the
// service lock, so no two operations on the round ever interleave.
type RouletteService struct {
	hub     *Hub
	ledger  *CreditLedger
	timers  TimerFactory
	records BetRecorder
	draw    func(n int) int

	mu           sync.Mutex
	phase        RoulettePhase
	bets         map[string]*rouletteBet
	nextSpinTime time.Time
	lastResult   *RouletteResult
	history      []RouletteResult
}

func NewRouletteService(hub *Hub, ledger *CreditLedger, timers TimerFactory, records BetRecorder) *RouletteService {
	if records == nil {
		records = nopRecorder{}
	}
	return &RouletteService{
		hub:     hub,
		ledger:  ledger,
		timers:  timers,
		records: records,
		draw:    rand.Intn,
		bets:    make(map[string]*rouletteBet),
	}
}

// Run drives the infinite BettingOpen -> Spinning -> Resolving cycle. The
// window durations are fixed; player actions never shorten or extend them.
func (s *RouletteService) Run(ctx context.Context) {
	for {
		s.openBetting()
		select {
		case <-ctx.Done():
			return
		case <-s.timers.After(rouletteBettingWindow):
		}

		number, color := s.startSpin()
		select {
		case <-ctx.Done():
			return
		case <-s.timers.After(rouletteSpinDelay):
		}

		s.resolve(number, color)
		select {
		case <-ctx.Done():
			return
		case <-s.timers.After(rouletteResultDisplay):
		}
	}
}

func (s *RouletteService) openBetting() {
	s.mu.Lock()
	s.phase = PhaseBettingOpen
	s.nextSpinTime = s.timers.Now().Add(rouletteBettingWindow)
	next := s.nextSpinTime.UnixMilli()
	s.mu.Unlock()

	s.hub.Broadcast("nextSpinTime", gin.H{"time": next})
}

func (s *RouletteService) startSpin() (int, string) {
	s.mu.Lock()
	s.phase = PhaseSpinning
	number := s.draw(rouletteWheelSize)
	color := rouletteColor(number)
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	// The winning draw is announced immediately for the client animation;
	// settlement happens after the spin delay.
	s.hub.Broadcast("rouletteSpinStart", gin.H{
		"winningNumber": number,
		"winningColor":  color,
		"bets":          snapshot,
	})
	return number, color
}

func (s *RouletteService) resolve(number int, color string) {
	s.mu.Lock()
	s.phase = PhaseResolving

	results := make(map[string]gin.H, len(s.bets))
	for connID, bet := range s.bets {
		if bet.color == color {
			multiplier := int64(rouletteColorMultiplier)
			if color == "green" {
				multiplier = rouletteGreenMultiplier
			}
			winnings := bet.amount * multiplier
			s.ledger.Credit(bet.session, winnings)
			s.records.Record(bet.session.Username, "roulette",
				fmt.Sprintf("Won: %d %s", number, color),
				bet.amount, winnings, float64(multiplier))
			results[connID] = gin.H{
				"won":        true,
				"winnings":   winnings,
				"newCredits": s.ledger.Balance(bet.session),
				"bet":        gin.H{"color": bet.color, "amount": bet.amount},
			}
		} else {
			// The stake was debited at bet time and is forfeit.
			s.records.Record(bet.session.Username, "roulette",
				fmt.Sprintf("Lost: %d %s", number, color),
				bet.amount, 0, 0)
			results[connID] = gin.H{
				"won":        false,
				"winnings":   int64(0),
				"newCredits": s.ledger.Balance(bet.session),
				"bet":        gin.H{"color": bet.color, "amount": bet.amount},
			}
		}
	}

	snapshot := s.snapshotLocked()

	result := RouletteResult{
		Number:    number,
		Color:     color,
		Timestamp: s.timers.Now().UnixMilli(),
	}
	s.lastResult = &result
	s.history = append([]RouletteResult{result}, s.history...)
	if len(s.history) > rouletteHistoryCap {
		s.history = s.history[:rouletteHistoryCap]
	}
	history := append([]RouletteResult(nil), s.history...)

	s.bets = make(map[string]*rouletteBet)
	s.mu.Unlock()

	s.hub.Broadcast("rouletteSpinResult", gin.H{
		"winningNumber": number,
		"winningColor":  color,
		"results":       results,
		"bets":          snapshot,
		"history":       history,
	})
}

// PlaceBet records one bet for the session during BettingOpen. The debit
// happens before the bet is recorded, so a failed debit leaves no state.
func (s *RouletteService) PlaceBet(sess *Session, color string, amount int64) error {
	s.mu.Lock()
	if s.phase != PhaseBettingOpen {
		s.mu.Unlock()
		return errors.New("Cannot place bets while wheel is spinning")
	}
	if _, ok := s.bets[sess.ConnID]; ok {
		s.mu.Unlock()
		return errors.New("You can only place one bet per round. Please clear your current bet first.")
	}
	if color != "red" && color != "black" && color != "green" {
		s.mu.Unlock()
		return errors.New("Invalid color. Choose red, black, or green")
	}
	if amount <= 0 {
		s.mu.Unlock()
		return errors.New("Invalid bet amount")
	}
	if err := s.ledger.Debit(sess, amount); err != nil {
		s.mu.Unlock()
		return errors.New("Insufficient credits")
	}

	s.bets[sess.ConnID] = &rouletteBet{session: sess, color: color, amount: amount}
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.hub.SendTo(sess.ConnID, "playerData", playerPayload(s.ledger, sess))
	s.hub.Broadcast("rouletteBetsUpdate", gin.H{"bets": snapshot})
	return nil
}

// ClearBet refunds and removes the session's bet during BettingOpen.
func (s *RouletteService) ClearBet(sess *Session) error {
	s.mu.Lock()
	if s.phase != PhaseBettingOpen {
		s.mu.Unlock()
		return errors.New("Cannot clear bets while wheel is spinning")
	}
	bet, ok := s.bets[sess.ConnID]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	delete(s.bets, sess.ConnID)
	s.ledger.Credit(sess, bet.amount)
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.hub.SendTo(sess.ConnID, "playerData", playerPayload(s.ledger, sess))
	s.hub.Broadcast("rouletteBetsUpdate", gin.H{"bets": snapshot})
	return nil
}

// DropBet forfeits the bet of a disconnecting session. No refund; the
// aggregate snapshot is rebroadcast.
func (s *RouletteService) DropBet(connID string) {
	s.mu.Lock()
	_, ok := s.bets[connID]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.bets, connID)
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.hub.Broadcast("rouletteBetsUpdate", gin.H{"bets": snapshot})
}

// State returns the full round snapshot sent to newly connected clients.
func (s *RouletteService) State() gin.H {
	s.mu.Lock()
	defer s.mu.Unlock()

	var next interface{}
	if !s.nextSpinTime.IsZero() {
		next = s.nextSpinTime.UnixMilli()
	}
	return gin.H{
		"spinning":     s.phase != PhaseBettingOpen,
		"lastResult":   s.lastResult,
		"currentBets":  s.snapshotLocked(),
		"nextSpinTime": next,
		"history":      append([]RouletteResult(nil), s.history...),
	}
}

// BetFor reports the session's current bet, if any.
func (s *RouletteService) BetFor(connID string) (string, int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bet, ok := s.bets[connID]
	if !ok {
		return "", 0, false
	}
	return bet.color, bet.amount, true
}

// snapshotLocked builds the aggregate bet view shared with every client:
// display name, color and amount only, never balances.
func (s *RouletteService) snapshotLocked() map[string]gin.H {
	snapshot := make(map[string]gin.H, len(s.bets))
	for connID, bet := range s.bets {
		snapshot[connID] = gin.H{
			"playerName": bet.session.Username,
			"color":      bet.color,
			"amount":     bet.amount,
		}
	}
	return snapshot
}

func playerPayload(l *CreditLedger, s *Session) gin.H {
	return gin.H{"username": s.Username, "credits": l.Balance(s)}
}
