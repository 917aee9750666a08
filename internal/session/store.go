// internal/session/store.go
package session

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-tg-bot/internal/report"
	"github.com/rovshanmuradov/solana-tg-bot/internal/trading"
	"github.com/rovshanmuradov/solana-tg-bot/internal/wallet"
)

// EngineFactory builds the engine of a freshly imported wallet.
type EngineFactory func(w *wallet.Wallet) *trading.Engine

// Options configures a Store.
type Options struct {
	NameCooldown    time.Duration
	GrowthRetention time.Duration
	Now             func() time.Time
}

// Store keeps every chat session in memory, keyed by chat id.
// Nothing survives a restart.
type Store struct {
	mu        sync.RWMutex
	sessions  map[int64]*Session
	vault     *Vault
	newEngine EngineFactory
	opts      Options
	logger    *zap.Logger
}

// NewStore создает хранилище сессий.
func NewStore(vault *Vault, factory EngineFactory, opts Options, logger *zap.Logger) *Store {
	if opts.NameCooldown <= 0 {
		opts.NameCooldown = DefaultNameCooldown
	}
	if opts.GrowthRetention <= 0 {
		opts.GrowthRetention = DefaultGrowthRetention
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		sessions:  make(map[int64]*Session),
		vault:     vault,
		newEngine: factory,
		opts:      opts,
		logger:    logger.Named("sessions"),
	}
}

// Now returns the store clock.
func (s *Store) Now() time.Time {
	return s.opts.Now()
}

// Import creates or replaces the session of chatID with a wallet built from
// privateKey. A replaced session keeps its name and growth series but starts
// a fresh ledger and order book.
func (s *Store) Import(chatID int64, privateKey string) (*Session, error) {
	w, err := wallet.NewWallet(privateKey)
	if err != nil {
		return nil, err
	}
	sealed, err := s.vault.Seal(privateKey)
	if err != nil {
		return nil, fmt.Errorf("seal private key: %w", err)
	}

	sess := &Session{
		ChatID:         chatID,
		engine:         s.newEngine(w),
		sealedKey:      sealed,
		customName:     DefaultName(chatID),
		lastBuyAmount:  DefaultBuyAmount,
		seenTokens:     make(map[string]struct{}),
		nameCooldown:   s.opts.NameCooldown,
		growthRetained: s.opts.GrowthRetention,
	}

	s.mu.Lock()
	if prev, ok := s.sessions[chatID]; ok {
		prev.mu.Lock()
		sess.customName = prev.customName
		sess.nameUpdatedAt = prev.nameUpdatedAt
		sess.growth = append(sess.growth, prev.growth...)
		prev.mu.Unlock()
	} else {
		// серия роста начинается с 1.0x
		sess.growth = append(sess.growth, report.GrowthPoint{At: s.opts.Now(), Value: 1.0})
	}
	s.sessions[chatID] = sess
	s.mu.Unlock()

	s.logger.Info("Wallet imported",
		zap.Int64("chat_id", chatID),
		zap.String("wallet", w.PublicKey.String()))
	return sess, nil
}

// Get returns the session of chatID.
func (s *Store) Get(chatID int64) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[chatID]
	return sess, ok
}

// Delete forgets the session and its key.
func (s *Store) Delete(chatID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[chatID]; !ok {
		return false
	}
	delete(s.sessions, chatID)
	s.logger.Info("Wallet deleted", zap.Int64("chat_id", chatID))
	return true
}

// All returns the sessions ordered by chat id.
func (s *Store) All() []*Session {
	s.mu.RLock()
	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ChatID < out[j].ChatID })
	return out
}

// Len returns the number of sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// RevealKey returns the plaintext private key of chatID.
func (s *Store) RevealKey(chatID int64) (string, error) {
	sess, ok := s.Get(chatID)
	if !ok {
		return "", ErrNoSession
	}
	return s.vault.Open(sess.sealedKey)
}

// MaskedKey returns the private key of chatID with its middle hidden.
func (s *Store) MaskedKey(chatID int64) (string, error) {
	key, err := s.RevealKey(chatID)
	if err != nil {
		return "", err
	}
	return wallet.MaskKey(key), nil
}
