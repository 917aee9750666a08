// internal/bot/notify.go
package bot

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-tg-bot/internal/report"
	"github.com/rovshanmuradov/solana-tg-bot/internal/session"
)

// Document is a file attached to a message.
type Document struct {
	Name string
	Data []byte
}

// Notification is an outgoing chat message.
type Notification struct {
	Text     string
	Document *Document
}

// Reply is what a command answers with.
type Reply = Notification

// Notifier delivers messages to a chat outside of a command round-trip.
type Notifier interface {
	Notify(ctx context.Context, chatID int64, n Notification) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, chatID int64, n Notification) error

func (f NotifierFunc) Notify(ctx context.Context, chatID int64, n Notification) error {
	return f(ctx, chatID, n)
}

// Notifications turns events into chat messages. Closed positions become
// profit cards: the card is retained in the history, the growth series of
// the session gets a new point and the card text is sent to the chat.
type Notifications struct {
	ctx      context.Context
	store    *session.Store
	history  *report.CardHistory
	notifier Notifier
	logger   *zap.Logger
}

// NewNotifications creates the subscriber. ctx bounds every delivery.
func NewNotifications(ctx context.Context, store *session.Store, history *report.CardHistory, notifier Notifier, logger *zap.Logger) *Notifications {
	return &Notifications{
		ctx:      ctx,
		store:    store,
		history:  history,
		notifier: notifier,
		logger:   logger.Named("notifications"),
	}
}

func (n *Notifications) GetSubscribedEventTypes() []string {
	return []string{EventPositionClosed, EventLimitOrderFilled, EventNewTokenDiscovered}
}

func (n *Notifications) OnEvent(event TradingEvent) {
	switch e := event.(type) {
	case PositionClosedEvent:
		n.onPositionClosed(e)
	case LimitOrderFilledEvent:
		n.send(e.ChatID, Notification{Text: e.Message})
	case NewTokenEvent:
		n.send(e.ChatID, Notification{Text: report.NewTokenText(e.Pair)})
	}
}

func (n *Notifications) onPositionClosed(e PositionClosedEvent) {
	sess, ok := n.store.Get(e.ChatID)
	if !ok {
		n.logger.Warn("Closed position for unknown chat", zap.Int64("chat_id", e.ChatID))
		return
	}
	engine := sess.Engine()

	at := e.Timestamp
	if e.Position.SellTime != nil {
		at = *e.Position.SellTime
	}
	coin := engine.Market().Quote(n.ctx, e.Position.TokenAddress).Name
	card := report.NewProfitCard(e.ChatID, sess.CustomName(), coin, e.Position, e.MarketCap, at)
	card.Manual = card.Manual || e.Reason == ReasonManual

	if n.history != nil {
		if err := n.history.Put(card); err != nil {
			n.logger.Error("Failed to store profit card",
				zap.Int64("chat_id", e.ChatID),
				zap.String("token", card.Token),
				zap.Error(err))
		}
	}
	sess.RecordGrowth(report.GrowthValue(engine.Ledger().Positions()), n.store.Now())

	n.logger.Info("Profit card generated",
		zap.Int64("chat_id", e.ChatID),
		zap.String("token", card.Token),
		zap.String("reason", string(e.Reason)),
		zap.Float64("multiple", card.Multiple),
		zap.Duration("hold_time", card.HoldTime.Round(time.Second)))

	n.send(e.ChatID, Notification{Text: card.Text()})
}

func (n *Notifications) send(chatID int64, msg Notification) {
	if n.notifier == nil || (msg.Text == "" && msg.Document == nil) {
		return
	}
	if err := n.notifier.Notify(n.ctx, chatID, msg); err != nil {
		n.logger.Error("Notification delivery failed",
			zap.Int64("chat_id", chatID),
			zap.Error(err))
	}
}
