// internal/bot/handlers.go
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-tg-bot/internal/report"
	"github.com/rovshanmuradov/solana-tg-bot/internal/session"
	"github.com/rovshanmuradov/solana-tg-bot/internal/trading"
)

// ConfirmDeletePhrase must be typed verbatim to delete an imported key.
const ConfirmDeletePhrase = "DELETE PRIVATE KEY🔐"

const (
	msgNoSession       = "Please import a private key first."
	msgAskKey          = "Please send your Solana private key (base58 encoded)."
	msgImported        = "Private key imported successfully."
	msgInvalidKey      = "Invalid private key."
	msgNoKey           = "No private key imported."
	msgNoKeyToDelete   = "No private key to delete."
	msgConfirmDelete   = "Are you sure you want to delete your private key?\nType '" + ConfirmDeletePhrase + "' to confirm deletion, or /cancel."
	msgDeleted         = "Private key deleted permanently."
	msgCancelled       = "Deletion cancelled."
	msgNothingToCancel = "Nothing to cancel."
	msgNameCooldown    = "Name update available only every 14 days."
	msgInvalidFormat   = "Invalid input format."
	msgUnknownCommand  = "Unknown command. Send /start to see the menu."
	msgNoCard          = "No profit card for this token."
	msgNoExport        = "No positions to export."
)

const menuText = `/import <key> - import a wallet
/viewkey - show the masked key
/deletekey - delete the key
/buy <token> [amount]
/sell <token> [percent]
/swap <from> <to> <amount> [buffer congestion]
/limit <token> <amount> <price> <buy|sell> [percent] [buffer congestion]
/withdraw <amount> <address> [buffer congestion]
/orders /portfolio /positions
/profit <token> /card <token>
/setname <name>
/growth [this_month|last_month|last_3_months|last_6_months|1_year]
/export [csv|json]`

// Handlers executes chat commands against the session store.
type Handlers struct {
	store    *session.Store
	events   *EventBus
	exporter *report.Exporter
	history  *report.CardHistory
	owner    int64
	logger   *zap.Logger
}

// HandlersConfig collects the dependencies of Handlers.
type HandlersConfig struct {
	Store       *session.Store
	Events      *EventBus
	Exporter    *report.Exporter
	History     *report.CardHistory
	OwnerChatID int64
	Logger      *zap.Logger
}

func NewHandlers(cfg HandlersConfig) *Handlers {
	return &Handlers{
		store:    cfg.Store,
		events:   cfg.Events,
		exporter: cfg.Exporter,
		history:  cfg.History,
		owner:    cfg.OwnerChatID,
		logger:   cfg.Logger.Named("handlers"),
	}
}

// Register binds every command type to its handler.
func (h *Handlers) Register(bus *CommandBus) {
	bus.RegisterHandler(StartCommand{}, HandlerFunc(h.start))
	bus.RegisterHandler(ImportKeyCommand{}, HandlerFunc(h.importKey))
	bus.RegisterHandler(ViewKeyCommand{}, HandlerFunc(h.viewKey))
	bus.RegisterHandler(DeleteKeyCommand{}, HandlerFunc(h.deleteKey))
	bus.RegisterHandler(ConfirmDeleteCommand{}, HandlerFunc(h.confirmDelete))
	bus.RegisterHandler(CancelCommand{}, HandlerFunc(h.cancel))

	bus.RegisterHandler(BuyCommand{}, h.withSession(h.buy))
	bus.RegisterHandler(SellCommand{}, h.withSession(h.sell))
	bus.RegisterHandler(SwapCommand{}, h.withSession(h.swap))
	bus.RegisterHandler(LimitCommand{}, h.withSession(h.limit))
	bus.RegisterHandler(WithdrawCommand{}, h.withSession(h.withdraw))
	bus.RegisterHandler(OrdersCommand{}, h.withSession(h.orders))
	bus.RegisterHandler(PortfolioCommand{}, h.withSession(h.portfolio))
	bus.RegisterHandler(PositionsCommand{}, h.withSession(h.positions))
	bus.RegisterHandler(ProfitCommand{}, h.withSession(h.coinProfit))
	bus.RegisterHandler(CardCommand{}, h.withSession(h.card))
	bus.RegisterHandler(SetNameCommand{}, h.withSession(h.setName))
	bus.RegisterHandler(GrowthCommand{}, h.withSession(h.growth))
	bus.RegisterHandler(ExportCommand{}, h.withSession(h.export))
}

type sessionFunc func(ctx context.Context, sess *session.Session, cmd TradingCommand) (Reply, error)

// withSession answers msgNoSession for chats without an imported key.
func (h *Handlers) withSession(fn sessionFunc) CommandHandler {
	return HandlerFunc(func(ctx context.Context, cmd TradingCommand) (Reply, error) {
		c, ok := cmd.(interface{ chatID() int64 })
		if !ok {
			return Reply{}, fmt.Errorf("command %s carries no chat", cmd.GetType())
		}
		sess, ok := h.store.Get(c.chatID())
		if !ok {
			return Reply{Text: msgNoSession}, nil
		}
		return fn(ctx, sess, cmd)
	})
}

func (h *Handlers) start(ctx context.Context, cmd TradingCommand) (Reply, error) {
	c := cmd.(StartCommand)
	suffix := ""
	if h.owner != 0 && c.ChatID == h.owner {
		suffix = " Dev⚡"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Welcome to Ze King👑 Trading Bot%s!\n\n", suffix)
	if sess, ok := h.store.Get(c.ChatID); ok {
		fmt.Fprintf(&b, "Wallet: %s\nName: %s\n\n", sess.Wallet().PublicKey, sess.CustomName())
	}
	b.WriteString(menuText)
	return Reply{Text: b.String()}, nil
}

func (h *Handlers) importKey(_ context.Context, cmd TradingCommand) (Reply, error) {
	c := cmd.(ImportKeyCommand)
	if _, err := h.store.Import(c.ChatID, c.PrivateKey); err != nil {
		h.logger.Info("Key import rejected", zap.Int64("chat_id", c.ChatID), zap.Error(err))
		return Reply{Text: msgInvalidKey}, nil
	}
	return Reply{Text: msgImported}, nil
}

func (h *Handlers) viewKey(_ context.Context, cmd TradingCommand) (Reply, error) {
	c := cmd.(ViewKeyCommand)
	masked, err := h.store.MaskedKey(c.ChatID)
	if errors.Is(err, session.ErrNoSession) {
		return Reply{Text: msgNoKey}, nil
	}
	if err != nil {
		return Reply{}, err
	}
	return Reply{Text: "Your private key: " + masked}, nil
}

func (h *Handlers) deleteKey(_ context.Context, cmd TradingCommand) (Reply, error) {
	c := cmd.(DeleteKeyCommand)
	sess, ok := h.store.Get(c.ChatID)
	if !ok {
		return Reply{Text: msgNoKeyToDelete}, nil
	}
	sess.SetPendingDelete(true)
	return Reply{Text: msgConfirmDelete}, nil
}

func (h *Handlers) confirmDelete(_ context.Context, cmd TradingCommand) (Reply, error) {
	c := cmd.(ConfirmDeleteCommand)
	sess, ok := h.store.Get(c.ChatID)
	if !ok {
		return Reply{Text: msgNoKeyToDelete}, nil
	}
	if !sess.PendingDelete() {
		return Reply{Text: "Send /deletekey first."}, nil
	}
	h.store.Delete(c.ChatID)
	return Reply{Text: msgDeleted}, nil
}

func (h *Handlers) cancel(_ context.Context, cmd TradingCommand) (Reply, error) {
	c := cmd.(CancelCommand)
	sess, ok := h.store.Get(c.ChatID)
	if !ok || !sess.PendingDelete() {
		return Reply{Text: msgNothingToCancel}, nil
	}
	sess.SetPendingDelete(false)
	return Reply{Text: msgCancelled}, nil
}

func (h *Handlers) buy(ctx context.Context, sess *session.Session, cmd TradingCommand) (Reply, error) {
	c := cmd.(BuyCommand)
	amount := c.Amount
	if amount == "" {
		amount = sess.LastBuyAmount()
	}
	rcpt, err := sess.Engine().Buy(ctx, c.Token, amount, trading.Fees{}, false)
	if err != nil {
		return Reply{}, err
	}
	sess.SetLastToken(rcpt.Token)
	if c.Amount != "" {
		sess.SetLastBuyAmount(amount)
	}
	return Reply{Text: rcpt.Message}, nil
}

func (h *Handlers) sell(ctx context.Context, sess *session.Session, cmd TradingCommand) (Reply, error) {
	c := cmd.(SellCommand)
	pct, err := trading.ParseSellPercentage(c.Percentage)
	if err != nil {
		return Reply{}, &trading.Error{Op: "sell", Kind: trading.KindInvalidInput, Err: err}
	}
	engine := sess.Engine()
	held := decimal.NewFromFloat(engine.Holdings(c.Token))
	amount := held.Mul(decimal.NewFromFloat(pct)).Div(decimal.NewFromInt(100))

	rcpt, err := engine.Sell(ctx, c.Token, amount.String(), trading.Fees{})
	if err != nil {
		return Reply{}, err
	}
	sess.SetLastToken(rcpt.Token)
	if rcpt.LedgerUpdated && rcpt.Position != nil {
		h.events.Publish(PositionClosedEvent{
			ChatID:    c.ChatID,
			Position:  *rcpt.Position,
			MarketCap: rcpt.MarketCap,
			Reason:    ReasonSell,
			Timestamp: engine.Now(),
		})
	}
	return Reply{Text: rcpt.Message}, nil
}

func parseFees(op, buffer, congestion string) (trading.Fees, error) {
	fees, err := trading.ParseFees(buffer, congestion)
	if err != nil {
		return trading.Fees{}, &trading.Error{Op: op, Kind: trading.KindInvalidInput, Err: err}
	}
	return fees, nil
}

func (h *Handlers) swap(ctx context.Context, sess *session.Session, cmd TradingCommand) (Reply, error) {
	c := cmd.(SwapCommand)
	fees, err := parseFees("swap", c.FeeBuffer, c.FeeCongestion)
	if err != nil {
		return Reply{}, err
	}
	rcpt, err := sess.Engine().Swap(ctx, c.From, c.To, c.Amount, fees)
	if err != nil {
		return Reply{}, err
	}
	return Reply{Text: rcpt.Message}, nil
}

func (h *Handlers) limit(ctx context.Context, sess *session.Session, cmd TradingCommand) (Reply, error) {
	c := cmd.(LimitCommand)
	fees, err := parseFees("limit_order", c.FeeBuffer, c.FeeCongestion)
	if err != nil {
		return Reply{}, err
	}
	rcpt, err := sess.Engine().SetLimitOrder(ctx, c.Token, c.Amount, c.Price, c.OrderType, c.Percentage, fees)
	if err != nil {
		return Reply{}, err
	}
	return Reply{Text: rcpt.Message}, nil
}

func (h *Handlers) withdraw(ctx context.Context, sess *session.Session, cmd TradingCommand) (Reply, error) {
	c := cmd.(WithdrawCommand)
	fees, err := parseFees("withdraw", c.FeeBuffer, c.FeeCongestion)
	if err != nil {
		return Reply{}, err
	}
	rcpt, err := sess.Engine().Withdraw(ctx, c.Amount, c.Destination, fees)
	if err != nil {
		return Reply{}, err
	}
	return Reply{Text: rcpt.Message}, nil
}

func (h *Handlers) orders(_ context.Context, sess *session.Session, _ TradingCommand) (Reply, error) {
	return Reply{Text: report.Orders(sess.Engine().Orders().Orders())}, nil
}

func (h *Handlers) portfolio(ctx context.Context, sess *session.Session, _ TradingCommand) (Reply, error) {
	engine := sess.Engine()
	return Reply{Text: report.Portfolio(ctx, engine.Market(), engine.Ledger().Positions())}, nil
}

func (h *Handlers) positions(ctx context.Context, sess *session.Session, _ TradingCommand) (Reply, error) {
	engine := sess.Engine()
	open := engine.Ledger().Open()
	if len(open) == 0 {
		return Reply{Text: report.Positions(ctx, engine.Market(), report.PositionsView{})}, nil
	}
	balance, err := engine.Balance(ctx)
	if err != nil {
		return Reply{}, err
	}
	rate, _ := engine.Market().SolUSD(ctx)
	return Reply{Text: report.Positions(ctx, engine.Market(), report.PositionsView{
		Wallet:     sess.Wallet().PublicKey.String(),
		SolBalance: balance.InexactFloat64(),
		SolUSD:     rate,
		Open:       open,
	})}, nil
}

func (h *Handlers) coinProfit(ctx context.Context, sess *session.Session, cmd TradingCommand) (Reply, error) {
	c := cmd.(ProfitCommand)
	engine := sess.Engine()
	return Reply{Text: report.CoinProfit(ctx, engine.Market(), engine.Ledger(), strings.TrimSpace(c.Token))}, nil
}

func (h *Handlers) card(_ context.Context, _ *session.Session, cmd TradingCommand) (Reply, error) {
	c := cmd.(CardCommand)
	if h.history == nil {
		return Reply{Text: msgNoCard}, nil
	}
	card, ok, err := h.history.Get(c.ChatID, strings.TrimSpace(c.Token))
	if err != nil {
		return Reply{}, err
	}
	if !ok {
		return Reply{Text: msgNoCard}, nil
	}
	return Reply{Text: card.Text()}, nil
}

func (h *Handlers) setName(_ context.Context, sess *session.Session, cmd TradingCommand) (Reply, error) {
	c := cmd.(SetNameCommand)
	_, err := sess.SetCustomName(c.Name, h.store.Now())
	switch {
	case errors.Is(err, session.ErrNameCooldown):
		return Reply{Text: msgNameCooldown}, nil
	case errors.Is(err, session.ErrInvalidName):
		return Reply{Text: msgInvalidFormat}, nil
	case err != nil:
		return Reply{}, err
	}
	return Reply{Text: "Custom name updated to: " + sess.CustomName()}, nil
}

func (h *Handlers) growth(_ context.Context, sess *session.Session, cmd TradingCommand) (Reply, error) {
	c := cmd.(GrowthCommand)
	period, err := report.ParsePeriod(c.Period)
	if err != nil {
		names := make([]string, len(report.Periods))
		for i, p := range report.Periods {
			names[i] = string(p)
		}
		return Reply{Text: "Select portfolio growth period: " + strings.Join(names, ", ")}, nil
	}
	points := report.FilterGrowth(sess.Growth(), period, h.store.Now())
	data, err := report.GrowthCSV(points)
	if err != nil {
		return Reply{}, err
	}
	return Reply{
		Text:     report.GrowthSummary(points, period),
		Document: &Document{Name: fmt.Sprintf("portfolio_growth_%s.csv", period), Data: data},
	}, nil
}

func (h *Handlers) export(_ context.Context, sess *session.Session, cmd TradingCommand) (Reply, error) {
	c := cmd.(ExportCommand)
	format, err := report.ParseFormat(c.Format)
	if err != nil {
		return Reply{Text: "Supported formats: csv, json."}, nil
	}
	positions := sess.Engine().Ledger().Positions()
	if len(positions) == 0 {
		return Reply{Text: msgNoExport}, nil
	}
	data, err := h.exporter.Export(positions, format)
	if err != nil {
		return Reply{}, err
	}
	return Reply{
		Text:     fmt.Sprintf("Exported %d positions.", len(positions)),
		Document: &Document{Name: h.exporter.Filename(c.ChatID, format), Data: data},
	}, nil
}

// failureText renders a failed command for the chat.
func failureText(err error) string {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return msgInvalidFormat
	}
	var te *trading.Error
	if errors.As(err, &te) {
		switch te.Kind {
		case trading.KindInsufficientBalance:
			return fmt.Sprintf("Insufficient balance: %v", te.Err)
		case trading.KindInvalidInput:
			return fmt.Sprintf("Invalid input: %v", te.Err)
		case trading.KindRemoteCallFailure:
			return fmt.Sprintf("Transaction failed: %v", te.Err)
		}
	}
	return fmt.Sprintf("Error: %v", err)
}
