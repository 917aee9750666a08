// internal/report/history.go
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// DefaultCardRetention is how long a profit card stays retrievable.
const DefaultCardRetention = 90 * 24 * time.Hour

// CardHistory keeps recent profit cards per chat and token in an in-memory
// badger instance. Entries carry a TTL and vanish on their own; nothing is
// written to disk.
type CardHistory struct {
	db        *badger.DB
	retention time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

// OpenCardHistory opens the in-memory store.
func OpenCardHistory(retention time.Duration, logger *zap.Logger) (*CardHistory, error) {
	if retention <= 0 {
		retention = DefaultCardRetention
	}
	opts := badger.DefaultOptions("").
		WithInMemory(true).
		WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open card history: %w", err)
	}
	return &CardHistory{
		db:        db,
		retention: retention,
		now:       time.Now,
		logger:    logger.Named("card-history"),
	}, nil
}

// Close releases the store.
func (h *CardHistory) Close() error {
	if h == nil || h.db == nil {
		return nil
	}
	return h.db.Close()
}

func cardPrefix(chatID int64) []byte {
	return []byte("card/" + strconv.FormatInt(chatID, 10) + "/")
}

func cardKey(chatID int64, token string) []byte {
	return append(cardPrefix(chatID), token...)
}

// Put stores card, replacing an earlier card for the same token.
// The retention window starts at the card's sell time.
func (h *CardHistory) Put(card ProfitCard) error {
	card.ExpiresAt = card.SellTime.Add(h.retention)
	ttl := card.ExpiresAt.Sub(h.now())
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(card)
	if err != nil {
		return err
	}
	err = h.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(cardKey(card.ChatID, card.Token), raw).WithTTL(ttl))
	})
	if err != nil {
		return fmt.Errorf("store card: %w", err)
	}
	h.logger.Debug("Card stored",
		zap.Int64("chat_id", card.ChatID),
		zap.String("token", card.Token),
		zap.Time("expires_at", card.ExpiresAt))
	return nil
}

// Get returns the card of token, if still retained.
func (h *CardHistory) Get(chatID int64, token string) (ProfitCard, bool, error) {
	var card ProfitCard
	found := false
	err := h.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(cardKey(chatID, token))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		return item.Value(func(val []byte) error {
			found = true
			return json.Unmarshal(val, &card)
		})
	})
	if err != nil {
		return ProfitCard{}, false, err
	}
	if !found || !h.now().Before(card.ExpiresAt) {
		return ProfitCard{}, false, nil
	}
	return card, true, nil
}

// List returns the retained cards of chatID, newest first.
func (h *CardHistory) List(chatID int64) ([]ProfitCard, error) {
	now := h.now()
	var cards []ProfitCard
	err := h.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := cardPrefix(chatID)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var card ProfitCard
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &card)
			}); err != nil {
				return err
			}
			if now.Before(card.ExpiresAt) {
				cards = append(cards, card)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(cards, func(i, j int) bool { return cards[i].SellTime.After(cards[j].SellTime) })
	return cards, nil
}
