package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rovshanmuradov/solana-tg-bot/internal/bot"
	"github.com/rovshanmuradov/solana-tg-bot/internal/logger"
)

const logLines = 6

// Handler answers chat text. *bot.Router implements it.
type Handler interface {
	HandleText(ctx context.Context, chatID int64, text string) bot.Reply
}

// replyMsg carries the answer to a submitted line.
type replyMsg struct {
	text  string
	saved string
	err   error
}

// incomingMsg wraps a notification read from the notifier channel.
type incomingMsg Incoming

type Config struct {
	Context  context.Context
	ChatID   int64
	Handler  Handler
	Incoming <-chan Incoming
	Saver    DocumentSaver
	Logs     *logger.LogBuffer
}

// Chat is a single-chat console in front of the bot router.
type Chat struct {
	cfg      Config
	keys     KeyMap
	styles   Styles
	help     help.Model
	input    textinput.Model
	viewport viewport.Model

	transcript []string
	showLogs   bool
	busy       bool
	width      int
	height     int
}

func NewChat(cfg Config) *Chat {
	if cfg.Context == nil {
		cfg.Context = context.Background()
	}

	in := textinput.New()
	in.Placeholder = "/start"
	in.Prompt = "› "
	in.CharLimit = 512
	in.Focus()

	c := &Chat{
		cfg:      cfg,
		keys:     DefaultKeyMap(),
		styles:   DefaultStyles(),
		help:     help.New(),
		input:    in,
		viewport: viewport.New(80, 20),
	}
	c.appendLine(c.styles.Notification.Render(fmt.Sprintf("Console chat %d. Send /start to begin.", cfg.ChatID)))
	return c
}

func (c *Chat) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, c.listen())
}

// listen waits for the next notification.
func (c *Chat) listen() tea.Cmd {
	if c.cfg.Incoming == nil {
		return nil
	}
	ch := c.cfg.Incoming
	return func() tea.Msg {
		in, ok := <-ch
		if !ok {
			return nil
		}
		return incomingMsg(in)
	}
}

func (c *Chat) send(text string) tea.Cmd {
	ctx, chatID, handler, saver := c.cfg.Context, c.cfg.ChatID, c.cfg.Handler, c.cfg.Saver
	return func() tea.Msg {
		reply := handler.HandleText(ctx, chatID, text)
		path, err := saver.Save(reply.Document)
		return replyMsg{text: reply.Text, saved: path, err: err}
	}
}

func (c *Chat) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		c.width, c.height = msg.Width, msg.Height
		c.layout()
		return c, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, c.keys.Quit):
			return c, tea.Quit
		case key.Matches(msg, c.keys.ToggleLogs):
			c.showLogs = !c.showLogs
			c.layout()
			return c, nil
		case key.Matches(msg, c.keys.ScrollUp), key.Matches(msg, c.keys.ScrollDown):
			var cmd tea.Cmd
			c.viewport, cmd = c.viewport.Update(msg)
			return c, cmd
		case key.Matches(msg, c.keys.Send):
			text := strings.TrimSpace(c.input.Value())
			if text == "" || c.busy {
				return c, nil
			}
			c.input.Reset()
			c.busy = true
			c.appendLine(c.styles.User.Render("you: ") + text)
			return c, c.send(text)
		}

	case replyMsg:
		c.busy = false
		if msg.text != "" {
			c.appendLine(c.styles.Bot.Render(msg.text))
		}
		c.appendSaved(msg.saved, msg.err)
		return c, nil

	case incomingMsg:
		if msg.Text != "" {
			c.appendLine(c.styles.Notification.Render("🔔 " + msg.Text))
		}
		c.appendSaved(msg.Saved, nil)
		return c, c.listen()
	}

	var cmd tea.Cmd
	c.input, cmd = c.input.Update(msg)
	return c, cmd
}

func (c *Chat) appendSaved(path string, err error) {
	switch {
	case err != nil:
		c.appendLine(c.styles.Error.Render("Failed to save document: " + err.Error()))
	case path != "":
		c.appendLine(c.styles.Notification.Render("📎 Saved " + path))
	}
}

func (c *Chat) appendLine(line string) {
	c.transcript = append(c.transcript, line)
	c.viewport.SetContent(strings.Join(c.transcript, "\n\n"))
	c.viewport.GotoBottom()
}

// layout делит экран между историей, логами и строкой ввода.
func (c *Chat) layout() {
	if c.width == 0 {
		return
	}
	reserved := 6 // header, input, help, borders
	if c.showLogs {
		reserved += logLines + 2
	}
	h := c.height - reserved
	if h < 3 {
		h = 3
	}
	c.viewport.Width = c.width - 4
	c.viewport.Height = h
	c.input.Width = c.width - 4
	c.help.Width = c.width
}

func (c *Chat) View() string {
	parts := []string{
		c.styles.Header.Render(fmt.Sprintf("Ze King👑 Trading Bot · chat %d", c.cfg.ChatID)),
		c.styles.Transcript.Render(c.viewport.View()),
	}
	if c.showLogs {
		lines := []string{"No logs yet"}
		if c.cfg.Logs != nil {
			if recent := c.cfg.Logs.GetRecentLogs(logLines); len(recent) > 0 {
				lines = recent
			}
		}
		parts = append(parts, c.styles.Logs.Render(strings.Join(lines, "\n")))
	}
	status := c.input.View()
	if c.busy {
		status += c.styles.Help.Render(" …")
	}
	parts = append(parts, status, c.styles.Help.Render(c.help.ShortHelpView(c.keys.ShortHelp())))
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// Transcript returns the rendered chat history.
func (c *Chat) Transcript() []string {
	return append([]string(nil), c.transcript...)
}
