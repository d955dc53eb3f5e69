package store

import (
	"encoding/json"
	"errors"
	"os"
	"sync"
	"time"

	"CasinoApi/pkg/logger"
)

var (
	ErrAccountExists   = errors.New("account already exists")
	ErrAccountNotFound = errors.New("account not found")
)

// Account is the durable record for one player. The whole document is read
// into memory at startup and rewritten in full on every mutation.
type Account struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"passwordHash"`
	Credits      int64     `json:"credits"`
	CreatedAt    time.Time `json:"createdAt"`
	LastPlayedAt time.Time `json:"lastPlayedAt"`
}

// AccountStore keeps all player accounts in memory and writes them back to a
// single JSON file. Mutations are synchronous in memory; the durable write is
// handled by one background writer so callers never block on disk. A failed
// write is logged and retried on the next mutation, never rolled back.
type AccountStore struct {
	mu       sync.Mutex
	path     string
	accounts map[string]*Account
	dirty    bool

	wake  chan struct{}
	flush chan chan struct{}
	done  chan struct{}
	wg    sync.WaitGroup
}

// Open loads the account document at path, creating an empty one if the file
// does not exist yet.
func Open(path string) (*AccountStore, error) {
	s := &AccountStore{
		path:     path,
		accounts: make(map[string]*Account),
		wake:     make(chan struct{}, 1),
		flush:    make(chan chan struct{}),
		done:     make(chan struct{}),
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &s.accounts); err != nil {
			return nil, logger.WrapError(err, "corrupt account document")
		}
	case os.IsNotExist(err):
		if err := s.writeDocument(); err != nil {
			return nil, err
		}
	default:
		return nil, logger.WrapError(err, "")
	}

	logger.Info("Loaded %d accounts from %s", len(s.accounts), path)

	s.wg.Add(1)
	go s.writer()
	return s, nil
}

// Create registers a new account. Fails if the username is taken.
func (s *AccountStore) Create(username, passwordHash string, credits int64) error {
	s.mu.Lock()
	if _, ok := s.accounts[username]; ok {
		s.mu.Unlock()
		return ErrAccountExists
	}
	now := time.Now()
	s.accounts[username] = &Account{
		Username:     username,
		PasswordHash: passwordHash,
		Credits:      credits,
		CreatedAt:    now,
		LastPlayedAt: now,
	}
	s.dirty = true
	s.mu.Unlock()

	s.signal()
	return nil
}

// Lookup returns a copy of the account for username.
func (s *AccountStore) Lookup(username string) (Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[username]
	if !ok {
		return Account{}, false
	}
	return *acc, true
}

// SaveBalance updates the stored balance for username and schedules a durable
// write. Unknown usernames are ignored, mirroring a session that outlived its
// account.
func (s *AccountStore) SaveBalance(username string, credits int64) {
	s.mu.Lock()
	acc, ok := s.accounts[username]
	if ok {
		acc.Credits = credits
		acc.LastPlayedAt = time.Now()
		s.dirty = true
	}
	s.mu.Unlock()

	if ok {
		s.signal()
	}
}

// TouchLastPlayed bumps the last-played timestamp without changing credits.
func (s *AccountStore) TouchLastPlayed(username string) {
	s.mu.Lock()
	acc, ok := s.accounts[username]
	if ok {
		acc.LastPlayedAt = time.Now()
		s.dirty = true
	}
	s.mu.Unlock()

	if ok {
		s.signal()
	}
}

// Leaderboard returns up to limit accounts ordered by credits descending.
func (s *AccountStore) Leaderboard(limit int) []Account {
	s.mu.Lock()
	all := make([]Account, 0, len(s.accounts))
	for _, acc := range s.accounts {
		all = append(all, *acc)
	}
	s.mu.Unlock()

	for i := 1; i < len(all); i++ {
		for j := i; j > 0 && all[j].Credits > all[j-1].Credits; j-- {
			all[j], all[j-1] = all[j-1], all[j]
		}
	}
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all
}

// Flush blocks until every pending mutation has been written to disk.
func (s *AccountStore) Flush() {
	reply := make(chan struct{})
	select {
	case s.flush <- reply:
		<-reply
	case <-s.done:
	}
}

// Close drains pending writes and stops the writer.
func (s *AccountStore) Close() {
	s.Flush()
	close(s.done)
	s.wg.Wait()
}

func (s *AccountStore) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *AccountStore) writer() {
	defer s.wg.Done()
	for {
		select {
		case <-s.wake:
			s.writeIfDirty()
		case reply := <-s.flush:
			s.writeIfDirty()
			close(reply)
		case <-s.done:
			return
		}
	}
}

func (s *AccountStore) writeIfDirty() {
	s.mu.Lock()
	dirty := s.dirty
	s.dirty = false
	s.mu.Unlock()

	if !dirty {
		return
	}
	if err := s.writeDocument(); err != nil {
		logger.Error("Error saving accounts: %v", err)
		s.mu.Lock()
		s.dirty = true
		s.mu.Unlock()
	}
}

// writeDocument rewrites the full JSON document via a temp file and rename so
// a crash never leaves a half-written store behind.
func (s *AccountStore) writeDocument() error {
	s.mu.Lock()
	data, err := json.MarshalIndent(s.accounts, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return logger.WrapError(err, "")
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return logger.WrapError(err, "")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return logger.WrapError(err, "")
	}
	return nil
}
