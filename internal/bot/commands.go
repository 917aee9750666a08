// internal/bot/commands.go
package bot

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-tg-bot/internal/logger"
)

// ErrNoHandler is returned by Send for an unregistered command type.
var ErrNoHandler = errors.New("no handler registered")

// TradingCommand представляет команду, пришедшую из чата
type TradingCommand interface {
	GetType() string
	GetUserID() string
	Validate() error
}

// chat is embedded by every command; it carries the originating chat.
type chat struct {
	ChatID int64 `json:"chat_id"`
}

func (c chat) GetUserID() string {
	return strconv.FormatInt(c.ChatID, 10)
}

func (c chat) chatID() int64 { return c.ChatID }

func requireArg(name, v string) error {
	if strings.TrimSpace(v) == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	return nil
}

// StartCommand показывает приветствие и меню
type StartCommand struct{ chat }

func (c StartCommand) GetType() string { return "start" }
func (c StartCommand) Validate() error { return nil }

// ImportKeyCommand импортирует приватный ключ кошелька
type ImportKeyCommand struct {
	chat
	PrivateKey string `json:"-"`
}

func (c ImportKeyCommand) GetType() string { return "import_key" }
func (c ImportKeyCommand) Validate() error { return requireArg("private key", c.PrivateKey) }

type ViewKeyCommand struct{ chat }

func (c ViewKeyCommand) GetType() string { return "view_key" }
func (c ViewKeyCommand) Validate() error { return nil }

// DeleteKeyCommand arms deletion; ConfirmDeleteCommand completes it.
type DeleteKeyCommand struct{ chat }

func (c DeleteKeyCommand) GetType() string { return "delete_key" }
func (c DeleteKeyCommand) Validate() error { return nil }

type ConfirmDeleteCommand struct{ chat }

func (c ConfirmDeleteCommand) GetType() string { return "confirm_delete" }
func (c ConfirmDeleteCommand) Validate() error { return nil }

type CancelCommand struct{ chat }

func (c CancelCommand) GetType() string { return "cancel" }
func (c CancelCommand) Validate() error { return nil }

// BuyCommand покупает токен; пустой Amount означает последнюю сумму покупки
type BuyCommand struct {
	chat
	Token  string `json:"token"`
	Amount string `json:"amount,omitempty"`
}

func (c BuyCommand) GetType() string { return "buy" }
func (c BuyCommand) Validate() error { return requireArg("token", c.Token) }

// SellCommand продает процент от открытой позиции (по умолчанию 100)
type SellCommand struct {
	chat
	Token      string `json:"token"`
	Percentage string `json:"percentage,omitempty"`
}

func (c SellCommand) GetType() string { return "sell" }
func (c SellCommand) Validate() error { return requireArg("token", c.Token) }

type SwapCommand struct {
	chat
	From          string `json:"from"`
	To            string `json:"to"`
	Amount        string `json:"amount"`
	FeeBuffer     string `json:"fee_buffer,omitempty"`
	FeeCongestion string `json:"fee_congestion,omitempty"`
}

func (c SwapCommand) GetType() string { return "swap" }
func (c SwapCommand) Validate() error {
	if err := requireArg("from token", c.From); err != nil {
		return err
	}
	if err := requireArg("to token", c.To); err != nil {
		return err
	}
	return requireArg("amount", c.Amount)
}

type LimitCommand struct {
	chat
	Token         string `json:"token"`
	Amount        string `json:"amount"`
	Price         string `json:"price"`
	OrderType     string `json:"order_type"`
	Percentage    string `json:"percentage,omitempty"`
	FeeBuffer     string `json:"fee_buffer,omitempty"`
	FeeCongestion string `json:"fee_congestion,omitempty"`
}

func (c LimitCommand) GetType() string { return "limit_order" }
func (c LimitCommand) Validate() error {
	for _, a := range []struct{ name, v string }{
		{"token", c.Token}, {"amount", c.Amount}, {"price", c.Price}, {"order type", c.OrderType},
	} {
		if err := requireArg(a.name, a.v); err != nil {
			return err
		}
	}
	return nil
}

type WithdrawCommand struct {
	chat
	Amount        string `json:"amount"`
	Destination   string `json:"destination"`
	FeeBuffer     string `json:"fee_buffer,omitempty"`
	FeeCongestion string `json:"fee_congestion,omitempty"`
}

func (c WithdrawCommand) GetType() string { return "withdraw" }
func (c WithdrawCommand) Validate() error {
	if err := requireArg("amount", c.Amount); err != nil {
		return err
	}
	return requireArg("destination", c.Destination)
}

type OrdersCommand struct{ chat }

func (c OrdersCommand) GetType() string { return "orders" }
func (c OrdersCommand) Validate() error { return nil }

type PortfolioCommand struct{ chat }

func (c PortfolioCommand) GetType() string { return "portfolio" }
func (c PortfolioCommand) Validate() error { return nil }

type PositionsCommand struct{ chat }

func (c PositionsCommand) GetType() string { return "positions" }
func (c PositionsCommand) Validate() error { return nil }

type ProfitCommand struct {
	chat
	Token string `json:"token"`
}

func (c ProfitCommand) GetType() string { return "coin_profit" }
func (c ProfitCommand) Validate() error { return requireArg("token", c.Token) }

// CardCommand returns the retained profit card of a token.
type CardCommand struct {
	chat
	Token string `json:"token"`
}

func (c CardCommand) GetType() string { return "profit_card" }
func (c CardCommand) Validate() error { return requireArg("token", c.Token) }

type SetNameCommand struct {
	chat
	Name string `json:"name"`
}

func (c SetNameCommand) GetType() string { return "set_name" }
func (c SetNameCommand) Validate() error { return requireArg("name", c.Name) }

type GrowthCommand struct {
	chat
	Period string `json:"period,omitempty"`
}

func (c GrowthCommand) GetType() string { return "portfolio_growth" }
func (c GrowthCommand) Validate() error { return nil }

type ExportCommand struct {
	chat
	Format string `json:"format,omitempty"`
}

func (c ExportCommand) GetType() string { return "export" }
func (c ExportCommand) Validate() error { return nil }

// CommandHandler интерфейс для обработчиков команд
type CommandHandler interface {
	Handle(ctx context.Context, cmd TradingCommand) (Reply, error)
}

// HandlerFunc adapts a function to CommandHandler.
type HandlerFunc func(ctx context.Context, cmd TradingCommand) (Reply, error)

func (f HandlerFunc) Handle(ctx context.Context, cmd TradingCommand) (Reply, error) {
	return f(ctx, cmd)
}

// CommandBus шина для обработки команд
type CommandBus struct {
	handlers map[reflect.Type]CommandHandler
	logger   *zap.Logger
	mu       sync.RWMutex
}

// NewCommandBus создает новую шину команд
func NewCommandBus(logger *zap.Logger) *CommandBus {
	return &CommandBus{
		handlers: make(map[reflect.Type]CommandHandler),
		logger:   logger.Named("command_bus"),
	}
}

// RegisterHandler регистрирует обработчик для типа команды
func (bus *CommandBus) RegisterHandler(cmdType TradingCommand, handler CommandHandler) {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	bus.handlers[reflect.TypeOf(cmdType)] = handler

	bus.logger.Debug("Command handler registered",
		zap.String("command_type", cmdType.GetType()))
}

// Send validates cmd and runs its handler. A validation failure is
// returned unwrapped so callers can tell it from an execution error.
func (bus *CommandBus) Send(ctx context.Context, cmd TradingCommand) (Reply, error) {
	if err := cmd.Validate(); err != nil {
		bus.logger.Debug("Command validation failed",
			zap.String("command_type", cmd.GetType()),
			zap.String("user_id", cmd.GetUserID()),
			zap.Error(err))
		return Reply{}, &ValidationError{Err: err}
	}

	bus.mu.RLock()
	handler, exists := bus.handlers[reflect.TypeOf(cmd)]
	bus.mu.RUnlock()

	if !exists {
		bus.logger.Error("No handler for command",
			zap.String("command_type", cmd.GetType()),
			zap.String("user_id", cmd.GetUserID()))
		return Reply{}, fmt.Errorf("%w for command type: %s", ErrNoHandler, cmd.GetType())
	}

	opLogger := logger.WithOperation(bus.logger, cmd.GetType()).With(zap.String("user_id", cmd.GetUserID()))
	opLogger.Info("Executing command")

	reply, err := handler.Handle(ctx, cmd)
	if err != nil {
		opLogger.Error("Command execution failed", zap.Error(err))
		return reply, fmt.Errorf("command execution failed: %w", err)
	}

	opLogger.Debug("Command executed")
	return reply, nil
}

// GetRegisteredHandlers возвращает список зарегистрированных типов команд
func (bus *CommandBus) GetRegisteredHandlers() []string {
	bus.mu.RLock()
	defer bus.mu.RUnlock()

	handlers := make([]string, 0, len(bus.handlers))
	for cmdType := range bus.handlers {
		var cmd TradingCommand
		if cmdType.Kind() == reflect.Ptr {
			cmd = reflect.New(cmdType.Elem()).Interface().(TradingCommand)
		} else {
			cmd = reflect.New(cmdType).Elem().Interface().(TradingCommand)
		}
		handlers = append(handlers, cmd.GetType())
	}
	sort.Strings(handlers)
	return handlers
}

// ValidationError wraps a rejected command.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return "command validation failed: " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }
