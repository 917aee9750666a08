package ui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rovshanmuradov/solana-tg-bot/internal/bot"
)

// Incoming is a bot message that was not a direct reply: profit cards,
// limit fills and new-token alerts.
type Incoming struct {
	ChatID int64
	Text   string
	Saved  string // path of the saved document, if any
}

// DocumentSaver writes reply attachments to a directory.
type DocumentSaver struct {
	Dir string
}

// Save stores doc and returns its path.
func (s DocumentSaver) Save(doc *bot.Document) (string, error) {
	if doc == nil {
		return "", nil
	}
	dir := s.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(dir, filepath.Base(doc.Name))
	if err := os.WriteFile(path, doc.Data, 0o600); err != nil {
		return "", fmt.Errorf("write %s: %w", doc.Name, err)
	}
	return path, nil
}

// ChannelNotifier implements bot.Notifier for the console: notifications
// are queued for the UI loop.
type ChannelNotifier struct {
	ch    chan Incoming
	saver DocumentSaver
}

func NewChannelNotifier(buffer int, saver DocumentSaver) *ChannelNotifier {
	return &ChannelNotifier{
		ch:    make(chan Incoming, buffer),
		saver: saver,
	}
}

var _ bot.Notifier = (*ChannelNotifier)(nil)

func (n *ChannelNotifier) Notify(ctx context.Context, chatID int64, msg bot.Notification) error {
	in := Incoming{ChatID: chatID, Text: msg.Text}
	path, err := n.saver.Save(msg.Document)
	if err != nil {
		return err
	}
	in.Saved = path

	select {
	case n.ch <- in:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// C is read by the UI.
func (n *ChannelNotifier) C() <-chan Incoming {
	return n.ch
}
