// internal/telegram/updates.go
package telegram

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/solana-tg-bot/internal/bot"
)

// TextHandler turns one chat message into a reply. *bot.Router implements it.
type TextHandler interface {
	HandleText(ctx context.Context, chatID int64, text string) bot.Reply
}

// Dispatcher routes incoming updates and sends the replies back.
// Both the long-polling loop and the webhook use it.
type Dispatcher struct {
	handler  TextHandler
	notifier bot.Notifier
	logger   *zap.Logger
}

func NewDispatcher(handler TextHandler, notifier bot.Notifier, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		handler:  handler,
		notifier: notifier,
		logger:   logger.Named("dispatcher"),
	}
}

// Dispatch handles one update. Updates without text are ignored.
func (d *Dispatcher) Dispatch(ctx context.Context, u Update) {
	if u.Message == nil || u.Message.Text == "" {
		return
	}
	chatID := u.Message.Chat.ID
	reply := d.handler.HandleText(ctx, chatID, u.Message.Text)
	if reply.Text == "" && reply.Document == nil {
		return
	}
	if err := d.notifier.Notify(ctx, chatID, reply); err != nil {
		d.logger.Error("Failed to send reply",
			zap.Int64("chat_id", chatID),
			zap.Int64("update_id", u.UpdateID),
			zap.Error(err))
	}
}

// DispatchBatch handles a batch of updates. Messages of one chat stay in
// order; different chats are processed concurrently.
func (d *Dispatcher) DispatchBatch(ctx context.Context, updates []Update) {
	byChat := make(map[int64][]Update)
	var order []int64
	for _, u := range updates {
		if u.Message == nil {
			continue
		}
		id := u.Message.Chat.ID
		if _, ok := byChat[id]; !ok {
			order = append(order, id)
		}
		byChat[id] = append(byChat[id], u)
	}

	var g errgroup.Group
	for _, id := range order {
		chatUpdates := byChat[id]
		g.Go(func() error {
			for _, u := range chatUpdates {
				d.Dispatch(ctx, u)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// UpdateSource is the getUpdates side of the Bot API client.
type UpdateSource interface {
	GetUpdates(ctx context.Context, offset int64) ([]Update, error)
}

// Poller receives updates by long polling. It implements bot.Transport.
type Poller struct {
	source     UpdateSource
	dispatcher *Dispatcher
	logger     *zap.Logger
	offset     int64
	backoff    *backoff.ExponentialBackOff
}

func NewPoller(source UpdateSource, dispatcher *Dispatcher, logger *zap.Logger) *Poller {
	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = 30 * time.Second
	return &Poller{
		source:     source,
		dispatcher: dispatcher,
		logger:     logger.Named("updates"),
		backoff:    bo,
	}
}

// Run polls until ctx is cancelled. Fetch errors are logged and retried
// with exponential backoff.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("Polling for updates")

	bo := p.backoff
	bo.Reset()

	for {
		updates, err := p.source.GetUpdates(ctx, p.offset)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			wait := bo.NextBackOff()
			p.logger.Warn("getUpdates failed", zap.Error(err), zap.Duration("retry_in", wait))

			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
				wait = time.Duration(apiErr.RetryAfter) * time.Second
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
			continue
		}
		bo.Reset()

		for _, u := range updates {
			if u.UpdateID >= p.offset {
				p.offset = u.UpdateID + 1
			}
		}
		if len(updates) > 0 {
			p.logger.Debug("Received updates", zap.Int("count", len(updates)), zap.Int64("next_offset", p.offset))
			p.dispatcher.DispatchBatch(ctx, updates)
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}
