package service

import (
	"errors"
	"sync"
)

var ErrInsufficientCredits = errors.New("insufficient credits")

// BalanceSaver is the durable side of the ledger. *store.AccountStore
// implements it with a non-blocking write-back queue.
type BalanceSaver interface {
	SaveBalance(username string, credits int64)
}

// CreditLedger is the authoritative in-memory balance for every session.
// Mutations are synchronous under one lock, so a handler that debits and a
// handler that reads can never observe a half-applied change; only the durable
// copy may lag behind.
type CreditLedger struct {
	mu    sync.Mutex
	saver BalanceSaver
}

func NewCreditLedger(saver BalanceSaver) *CreditLedger {
	return &CreditLedger{saver: saver}
}

// Debit removes amount from the session balance. Fails closed: on
// insufficient credits nothing is mutated and no write is scheduled.
func (l *CreditLedger) Debit(s *Session, amount int64) error {
	if amount <= 0 {
		return errors.New("debit amount must be positive")
	}

	l.mu.Lock()
	if amount > s.Credits {
		l.mu.Unlock()
		return ErrInsufficientCredits
	}
	s.Credits -= amount
	credits := s.Credits
	l.mu.Unlock()

	l.saver.SaveBalance(s.Username, credits)
	return nil
}

// Credit adds amount to the session balance.
func (l *CreditLedger) Credit(s *Session, amount int64) {
	if amount <= 0 {
		return
	}

	l.mu.Lock()
	s.Credits += amount
	credits := s.Credits
	l.mu.Unlock()

	l.saver.SaveBalance(s.Username, credits)
}

// Balance reads the current in-memory balance.
func (l *CreditLedger) Balance(s *Session) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return s.Credits
}
