// internal/bot/router.go
package bot

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-tg-bot/internal/logger"
)

// Router turns chat text into commands and commands into replies.
// Commands of one chat run one at a time.
type Router struct {
	bus    *CommandBus
	logger *zap.Logger

	mu          sync.Mutex
	chatLocks   map[int64]*sync.Mutex
	awaitingKey map[int64]bool
}

func NewRouter(bus *CommandBus, logger *zap.Logger) *Router {
	return &Router{
		bus:         bus,
		logger:      logger.Named("router"),
		chatLocks:   make(map[int64]*sync.Mutex),
		awaitingKey: make(map[int64]bool),
	}
}

func (r *Router) chatLock(chatID int64) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.chatLocks[chatID]
	if !ok {
		l = &sync.Mutex{}
		r.chatLocks[chatID] = l
	}
	return l
}

func (r *Router) setAwaitingKey(chatID int64, v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v {
		r.awaitingKey[chatID] = true
	} else {
		delete(r.awaitingKey, chatID)
	}
}

// takeAwaitingKey reports and clears the pending /import prompt.
func (r *Router) takeAwaitingKey(chatID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := r.awaitingKey[chatID]
	delete(r.awaitingKey, chatID)
	return v
}

// HandleText handles one incoming chat message and returns the reply.
// It never fails: every error is rendered as reply text.
func (r *Router) HandleText(ctx context.Context, chatID int64, text string) Reply {
	l := r.chatLock(chatID)
	l.Lock()
	defer l.Unlock()

	cmd, reply := r.parse(chatID, strings.TrimSpace(text))
	if cmd == nil {
		return reply
	}

	reply, err := r.bus.Send(ctx, cmd)
	if err != nil {
		logger.WithChat(r.logger, chatID).Debug("Command failed",
			zap.String("command", cmd.GetType()),
			zap.Error(err))
		return Reply{Text: failureText(err)}
	}
	return reply
}

// parse returns either a command or a direct reply.
func (r *Router) parse(chatID int64, text string) (TradingCommand, Reply) {
	base := chat{ChatID: chatID}

	if text == ConfirmDeletePhrase {
		return ConfirmDeleteCommand{base}, Reply{}
	}
	if !strings.HasPrefix(text, "/") {
		if text != "" && r.takeAwaitingKey(chatID) {
			return ImportKeyCommand{chat: base, PrivateKey: text}, Reply{}
		}
		return nil, Reply{Text: msgUnknownCommand}
	}

	fields := strings.Fields(text)
	name := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	args := fields[1:]
	arg := func(i int) string {
		if i < len(args) {
			return args[i]
		}
		return ""
	}
	between := func(lo, hi int) bool { return len(args) >= lo && len(args) <= hi }
	invalid := Reply{Text: msgInvalidFormat}

	// любая другая команда отменяет ожидание ключа
	if name != "import" {
		r.setAwaitingKey(chatID, false)
	}

	switch name {
	case "start", "menu", "help":
		return StartCommand{base}, Reply{}
	case "import":
		if len(args) == 0 {
			r.setAwaitingKey(chatID, true)
			return nil, Reply{Text: msgAskKey}
		}
		return ImportKeyCommand{chat: base, PrivateKey: arg(0)}, Reply{}
	case "viewkey":
		return ViewKeyCommand{base}, Reply{}
	case "deletekey":
		return DeleteKeyCommand{base}, Reply{}
	case "cancel":
		return CancelCommand{base}, Reply{}
	case "buy":
		if !between(1, 2) {
			return nil, invalid
		}
		return BuyCommand{chat: base, Token: arg(0), Amount: arg(1)}, Reply{}
	case "sell":
		if !between(1, 2) {
			return nil, invalid
		}
		return SellCommand{chat: base, Token: arg(0), Percentage: arg(1)}, Reply{}
	case "swap":
		if !between(3, 5) {
			return nil, invalid
		}
		return SwapCommand{chat: base, From: arg(0), To: arg(1), Amount: arg(2),
			FeeBuffer: arg(3), FeeCongestion: arg(4)}, Reply{}
	case "limit":
		if !between(4, 7) {
			return nil, invalid
		}
		return LimitCommand{chat: base, Token: arg(0), Amount: arg(1), Price: arg(2), OrderType: arg(3),
			Percentage: arg(4), FeeBuffer: arg(5), FeeCongestion: arg(6)}, Reply{}
	case "withdraw":
		if !between(2, 4) {
			return nil, invalid
		}
		return WithdrawCommand{chat: base, Amount: arg(0), Destination: arg(1),
			FeeBuffer: arg(2), FeeCongestion: arg(3)}, Reply{}
	case "orders":
		return OrdersCommand{base}, Reply{}
	case "portfolio":
		return PortfolioCommand{base}, Reply{}
	case "positions":
		return PositionsCommand{base}, Reply{}
	case "profit":
		if len(args) != 1 {
			return nil, invalid
		}
		return ProfitCommand{chat: base, Token: arg(0)}, Reply{}
	case "card":
		if len(args) != 1 {
			return nil, invalid
		}
		return CardCommand{chat: base, Token: arg(0)}, Reply{}
	case "setname":
		if len(args) == 0 {
			return nil, invalid
		}
		return SetNameCommand{chat: base, Name: strings.Join(args, " ")}, Reply{}
	case "growth":
		if len(args) > 1 {
			return nil, invalid
		}
		return GrowthCommand{chat: base, Period: arg(0)}, Reply{}
	case "export":
		if len(args) > 1 {
			return nil, invalid
		}
		return ExportCommand{chat: base, Format: arg(0)}, Reply{}
	}
	return nil, Reply{Text: msgUnknownCommand}
}
