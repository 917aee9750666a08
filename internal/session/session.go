// internal/session/session.go
package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rovshanmuradov/solana-tg-bot/internal/report"
	"github.com/rovshanmuradov/solana-tg-bot/internal/trading"
	"github.com/rovshanmuradov/solana-tg-bot/internal/wallet"
)

const (
	DefaultBuyAmount       = "0.1"
	DefaultNameCooldown    = 14 * 24 * time.Hour
	DefaultGrowthRetention = 365 * 24 * time.Hour
	maxCustomNameLen       = 32
)

var (
	ErrNoSession    = errors.New("no wallet imported for this chat")
	ErrNameCooldown = errors.New("name was changed recently")
	ErrInvalidName  = errors.New("invalid name")
)

// Session is the state of one chat: the imported wallet, its engine and UI state.
type Session struct {
	ChatID int64

	engine    *trading.Engine
	sealedKey string

	mu             sync.Mutex
	customName     string
	nameUpdatedAt  time.Time
	lastBuyAmount  string
	lastToken      string
	pendingDelete  bool
	growth         []report.GrowthPoint
	seenTokens     map[string]struct{}
	nameCooldown   time.Duration
	growthRetained time.Duration
}

// Engine returns the trading engine of the session.
func (s *Session) Engine() *trading.Engine {
	return s.engine
}

// Wallet returns the imported wallet.
func (s *Session) Wallet() *wallet.Wallet {
	return s.engine.Wallet()
}

// DefaultName is the profit card name before the user sets one.
func DefaultName(chatID int64) string {
	return fmt.Sprintf("Ze King👑 %d", chatID)
}

func (s *Session) CustomName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.customName
}

// SetCustomName updates the card name at most once per cooldown window.
// The returned duration is the remaining wait on ErrNameCooldown.
func (s *Session) SetCustomName(name string, now time.Time) (time.Duration, error) {
	name = strings.TrimSpace(name)
	if name == "" || len([]rune(name)) > maxCustomNameLen {
		return 0, fmt.Errorf("%w: must be 1-%d characters", ErrInvalidName, maxCustomNameLen)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.nameUpdatedAt.IsZero() {
		if next := s.nameUpdatedAt.Add(s.nameCooldown); now.Before(next) {
			return next.Sub(now), ErrNameCooldown
		}
	}
	s.customName = name
	s.nameUpdatedAt = now
	return 0, nil
}

func (s *Session) LastBuyAmount() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastBuyAmount
}

func (s *Session) SetLastBuyAmount(v string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastBuyAmount = v
}

func (s *Session) LastToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastToken
}

func (s *Session) SetLastToken(v string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastToken = v
}

// PendingDelete reports whether /deletekey waits for the confirmation phrase.
func (s *Session) PendingDelete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingDelete
}

func (s *Session) SetPendingDelete(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingDelete = v
}

// RecordGrowth appends a point and prunes points older than the retention window.
func (s *Session) RecordGrowth(value float64, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.growth = append(s.growth, report.GrowthPoint{At: now, Value: value})

	cutoff := now.Add(-s.growthRetained)
	kept := s.growth[:0]
	for _, p := range s.growth {
		if !p.At.Before(cutoff) {
			kept = append(kept, p)
		}
	}
	s.growth = kept
}

// Growth returns a copy of the growth series.
func (s *Session) Growth() []report.GrowthPoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]report.GrowthPoint, len(s.growth))
	copy(out, s.growth)
	return out
}

// MarkTokenSeen returns true the first time address is seen by this session.
func (s *Session) MarkTokenSeen(address string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seenTokens[address]; ok {
		return false
	}
	s.seenTokens[address] = struct{}{}
	return true
}
