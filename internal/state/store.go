package state

import (
	"sync"
	"time"
)

// Store is the single source of truth for per-instrument position flags,
// cooldown expiries and the process-wide daily loss budget. Every method
// is one critical section; callers never read-modify-write state
// themselves. Held in memory only — crash recovery is out of scope.
type Store struct {
	mu        sync.Mutex
	positions map[string]*position
	dailyLoss float64
	day       string
	now       func() time.Time
}

type position struct {
	open          bool
	cooldownUntil time.Time
}

func NewStore() *Store {
	s := &Store{
		positions: make(map[string]*position),
		now:       time.Now,
	}
	s.day = utcDay(s.now())
	return s
}

// TryOpen marks the instrument open, failing if it already is. This is
// the duplicate-trade guard: of two concurrent signals for one pair,
// exactly one wins.
func (s *Store) TryOpen(pair string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos := s.position(pair)
	if pos.open {
		return false
	}
	pos.open = true
	return true
}

// IsOpen reports the open flag without taking it. Dry-run signals use
// this so the duplicate gate still evaluates without locking anything.
func (s *Store) IsOpen(pair string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position(pair).open
}

func (s *Store) Close(pair string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.position(pair).open = false
}

func (s *Store) InCooldown(pair string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now().Before(s.position(pair).cooldownUntil)
}

// StartCooldown blocks new trades on the pair for the given duration.
// An active longer cooldown is never shortened.
func (s *Store) StartCooldown(pair string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos := s.position(pair)
	until := s.now().Add(d)
	if until.After(pos.cooldownUntil) {
		pos.cooldownUntil = until
	}
}

// RecordLoss accumulates a realized loss (as a positive percentage) into
// the daily budget.
func (s *Store) RecordLoss(pct float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollover()
	s.dailyLoss += pct
}

func (s *Store) DailyLossExceeded(limit float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollover()
	return s.dailyLoss >= limit
}

func (s *Store) DailyLoss() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollover()
	return s.dailyLoss
}

func (s *Store) ResetDaily() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dailyLoss = 0
	s.day = utcDay(s.now())
}

func (s *Store) position(pair string) *position {
	pos, ok := s.positions[pair]
	if !ok {
		pos = &position{}
		s.positions[pair] = pos
	}
	return pos
}

// rollover zeroes the budget on UTC day change. Checked lazily inside
// every budget operation, so no background timer is needed. Callers hold
// the lock.
func (s *Store) rollover() {
	today := utcDay(s.now())
	if today != s.day {
		s.dailyLoss = 0
		s.day = today
	}
}

func utcDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
