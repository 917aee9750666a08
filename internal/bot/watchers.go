// internal/bot/watchers.go
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-tg-bot/internal/market"
	"github.com/rovshanmuradov/solana-tg-bot/internal/session"
	"github.com/rovshanmuradov/solana-tg-bot/internal/trading"
)

// ManualSellCheck returns the poll function of the manual-sell detector.
// Each session reports at most one closed position per pass; a failed
// balance read only aborts the scan of that session.
func ManualSellCheck(store *session.Store, events *EventBus) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		var errs []error
		for _, sess := range store.All() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			mc, err := sess.Engine().CheckManualSells(ctx)
			if err != nil {
				errs = append(errs, fmt.Errorf("chat %d: %w", sess.ChatID, err))
				continue
			}
			if mc == nil {
				continue
			}
			events.Publish(PositionClosedEvent{
				ChatID:    sess.ChatID,
				Position:  mc.Position,
				MarketCap: mc.MarketCap,
				Reason:    ReasonManual,
				Timestamp: sess.Engine().Now(),
			})
		}
		return errors.Join(errs...)
	}
}

// LimitOrderCheck returns the poll function of the limit-order executor.
// A filled sell that closed a tracked position also yields a profit card.
func LimitOrderCheck(store *session.Store, events *EventBus) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		var errs []error
		for _, sess := range store.All() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			engine := sess.Engine()
			fill, err := engine.CheckLimitOrders(ctx)
			if err != nil {
				errs = append(errs, fmt.Errorf("chat %d: %w", sess.ChatID, err))
				continue
			}
			if fill == nil {
				continue
			}

			now := engine.Now()
			events.Publish(LimitOrderFilledEvent{
				ChatID:    sess.ChatID,
				Order:     fill.Order,
				Price:     fill.Price,
				TxID:      fill.Receipt.TxID,
				Message:   fill.Message,
				Timestamp: now,
			})
			rcpt := fill.Receipt
			if fill.Order.Type == trading.OrderSell && rcpt.LedgerUpdated && rcpt.Position != nil && rcpt.MarketCap > 0 {
				events.Publish(PositionClosedEvent{
					ChatID:    sess.ChatID,
					Position:  *rcpt.Position,
					MarketCap: rcpt.MarketCap,
					Reason:    ReasonLimit,
					Timestamp: now,
				})
			}
		}
		return errors.Join(errs...)
	}
}

// PairFeed lists recently created pairs.
type PairFeed interface {
	LatestPairs(ctx context.Context, feedURL string) ([]market.PairInfo, error)
}

// NewTokenCheck returns the poll function of the new-token watcher. Every
// session is told about each pair address once.
func NewTokenCheck(store *session.Store, feed PairFeed, feedURL string, events *EventBus, logger *zap.Logger) func(ctx context.Context) error {
	logger = logger.Named("new_tokens")
	return func(ctx context.Context) error {
		sessions := store.All()
		if len(sessions) == 0 {
			return nil
		}
		pairs, err := feed.LatestPairs(ctx, feedURL)
		if err != nil {
			return fmt.Errorf("fetch latest pairs: %w", err)
		}

		published := 0
		for _, pair := range pairs {
			addr := strings.TrimSpace(pair.BaseToken.Address)
			if addr == "" {
				continue
			}
			for _, sess := range sessions {
				if !sess.MarkTokenSeen(addr) {
					continue
				}
				events.Publish(NewTokenEvent{
					ChatID:    sess.ChatID,
					Pair:      pair,
					Timestamp: store.Now(),
				})
				published++
			}
		}
		logger.Debug("New token pass finished",
			zap.Int("pairs", len(pairs)),
			zap.Int("published", published))
		return nil
	}
}
