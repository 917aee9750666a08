// internal/trading/engine.go
package trading

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-tg-bot/internal/market"
	"github.com/rovshanmuradov/solana-tg-bot/internal/wallet"
)

const (
	DefaultJitterMax   = 100 * time.Millisecond
	DefaultExplorerURL = "https://solscan.io"

	// SolLogo is the SOL glyph used in chat replies.
	SolLogo = "◎"
)

// DefaultFees are applied when an operation carries no overrides.
var DefaultFees = Fees{Buffer: 0.001, Congestion: 0.001}

// Chain is the on-chain collaborator of the engine.
type Chain interface {
	// Balance returns the SOL balance of owner in lamports.
	Balance(ctx context.Context, owner solana.PublicKey) (uint64, error)
	// TokenBalance returns the UI token amount held by owner.
	TokenBalance(ctx context.Context, owner solana.PublicKey, token string) (float64, error)
	// Transfer submits a transfer and returns the transaction id.
	Transfer(ctx context.Context, from *wallet.Wallet, to solana.PublicKey, lamports uint64) (string, error)
}

// MarketData is the aggregator collaborator of the engine.
type MarketData interface {
	Quote(ctx context.Context, token string) market.Snapshot
	SolUSD(ctx context.Context) (float64, bool)
}

// Config собирает зависимости движка одной сессии.
type Config struct {
	Wallet      *wallet.Wallet
	Chain       Chain
	Market      MarketData
	DefaultFees Fees
	JitterMax   time.Duration // zero disables the submission delay
	ExplorerURL string
	Logger      *zap.Logger
}

// Receipt describes a completed operation.
type Receipt struct {
	Op            string
	Token         string
	TxID          string
	Amount        float64
	MarketCap     float64 // buy cap for buys, closing cap for sells
	USDValue      float64
	LedgerUpdated bool
	Position      *Position
	Order         *LimitOrder
	Message       string
}

// Engine executes trading operations for one session and records them in
// its ledger and order book.
type Engine struct {
	wallet   *wallet.Wallet
	ledger   *Ledger
	book     *OrderBook
	chain    Chain
	market   MarketData
	fees     Fees
	jitter   time.Duration
	explorer string
	logger   *zap.Logger
	now      func() time.Time
}

// NewEngine создает движок с пустыми журналом позиций и книгой ордеров.
func NewEngine(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	fees := cfg.DefaultFees.resolve(DefaultFees)
	explorer := strings.TrimSuffix(cfg.ExplorerURL, "/")
	if explorer == "" {
		explorer = DefaultExplorerURL
	}
	return &Engine{
		wallet:   cfg.Wallet,
		ledger:   NewLedger(),
		book:     NewOrderBook(),
		chain:    cfg.Chain,
		market:   cfg.Market,
		fees:     fees,
		jitter:   cfg.JitterMax,
		explorer: explorer,
		logger:   logger.Named("engine"),
		now:      time.Now,
	}
}

func (e *Engine) Ledger() *Ledger        { return e.ledger }
func (e *Engine) Orders() *OrderBook     { return e.book }
func (e *Engine) Wallet() *wallet.Wallet { return e.wallet }
func (e *Engine) DefaultFees() Fees      { return e.fees }
func (e *Engine) Market() MarketData     { return e.market }
func (e *Engine) Now() time.Time         { return e.now() }

// SetClock replaces the time source used for timestamps.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// TxURL returns the explorer link of a transaction.
func (e *Engine) TxURL(txID string) string {
	return e.explorer + "/tx/" + txID
}

// Balance returns the wallet SOL balance.
func (e *Engine) Balance(ctx context.Context) (bal decimal.Decimal, err error) {
	const op = "balance"
	defer e.recoverOp(op, nil, &err)

	lamports, err := e.chain.Balance(ctx, e.wallet.PublicKey)
	if err != nil {
		return decimal.Zero, remoteFailure(op, err)
	}
	return FromLamports(lamports), nil
}

// Holdings returns the amount of the first open position for token, zero when none.
func (e *Engine) Holdings(token string) float64 {
	p, _, ok := e.ledger.FirstOpen(token)
	if !ok {
		return 0
	}
	return p.Amount
}

// Buy spends amount SOL on token and records a new open position.
// The ledger is only touched after every remote call returned.
func (e *Engine) Buy(ctx context.Context, token, amount string, fees Fees, manual bool) (rcpt *Receipt, err error) {
	const op = "buy"
	defer e.recoverOp(op, &rcpt, &err)

	token, err = requireToken(op, token)
	if err != nil {
		return nil, err
	}
	amt, err := ParseAmount(amount)
	if err != nil {
		return nil, invalidInput(op, err)
	}
	return e.buy(ctx, token, amt, fees, manual)
}

func (e *Engine) buy(ctx context.Context, token string, amt decimal.Decimal, fees Fees, manual bool) (*Receipt, error) {
	const op = "buy"
	f := fees.resolve(e.fees)
	if err := e.ensureBalance(ctx, op, totalCost(amt, f)); err != nil {
		return nil, err
	}

	txID, err := e.submit(ctx, e.wallet.PublicKey, amt)
	if err != nil {
		return nil, remoteFailure(op, err)
	}
	snap := e.market.Quote(ctx, token)

	pos := Position{
		TokenAddress: token,
		Amount:       amt.InexactFloat64(),
		Timestamp:    e.now(),
		TxID:         txID,
		BuyMarketCap: snap.MarketCap,
		Manual:       manual,
	}
	e.ledger.Append(pos)

	e.logger.Info("Buy executed",
		zap.String("token", token),
		zap.String("amount", amt.String()),
		zap.String("tx", txID),
		zap.Float64("market_cap", snap.MarketCap),
		zap.Bool("market_data", snap.Available))

	return &Receipt{
		Op:            op,
		Token:         token,
		TxID:          txID,
		Amount:        pos.Amount,
		MarketCap:     snap.MarketCap,
		LedgerUpdated: true,
		Position:      &pos,
		Message:       fmt.Sprintf("Buy executed for %s: %s", token, txID),
	}, nil
}

// Sell submits a sell of amount and closes the first open position for token.
// Without an open position the sell still succeeds and the ledger stays as is.
func (e *Engine) Sell(ctx context.Context, token, amount string, fees Fees) (rcpt *Receipt, err error) {
	const op = "sell"
	defer e.recoverOp(op, &rcpt, &err)

	token, err = requireToken(op, token)
	if err != nil {
		return nil, err
	}
	amt, err := ParseAmount(amount)
	if err != nil {
		return nil, invalidInput(op, err)
	}
	return e.sell(ctx, token, amt, fees)
}

func (e *Engine) sell(ctx context.Context, token string, amt decimal.Decimal, _ Fees) (*Receipt, error) {
	const op = "sell"
	txID, err := e.submit(ctx, e.wallet.PublicKey, amt)
	if err != nil {
		return nil, remoteFailure(op, err)
	}
	snap := e.market.Quote(ctx, token)

	rcpt := &Receipt{
		Op:        op,
		Token:     token,
		TxID:      txID,
		Amount:    amt.InexactFloat64(),
		MarketCap: snap.MarketCap,
		Message:   fmt.Sprintf("Sell executed for %s: %s", token, txID),
	}

	closed, ok := e.ledger.CloseFirstOpen(token, snap.MarketCap, e.now())
	if !ok {
		e.logger.Warn("Sell without open position",
			zap.String("token", token),
			zap.String("tx", txID),
			zap.Error(&Error{Op: op, Kind: KindNoMatchingPosition, Err: ErrNoMatchingPosition}))
		rcpt.Message += "\nNo open position was tracked for this token."
		return rcpt, nil
	}

	rcpt.LedgerUpdated = true
	rcpt.Position = &closed
	e.logger.Info("Sell executed",
		zap.String("token", token),
		zap.String("amount", amt.String()),
		zap.String("tx", txID),
		zap.Float64("market_cap", snap.MarketCap))
	return rcpt, nil
}

// Swap submits a swap between two tokens. The ledger is not touched.
func (e *Engine) Swap(ctx context.Context, from, to, amount string, _ Fees) (rcpt *Receipt, err error) {
	const op = "swap"
	defer e.recoverOp(op, &rcpt, &err)

	if from, err = requireToken(op, from); err != nil {
		return nil, err
	}
	if to, err = requireToken(op, to); err != nil {
		return nil, err
	}
	amt, err := ParseAmount(amount)
	if err != nil {
		return nil, invalidInput(op, err)
	}
	txID, err := e.submit(ctx, e.wallet.PublicKey, amt)
	if err != nil {
		return nil, remoteFailure(op, err)
	}

	e.logger.Info("Swap executed",
		zap.String("from", from),
		zap.String("to", to),
		zap.String("amount", amt.String()),
		zap.String("tx", txID))

	return &Receipt{
		Op:      op,
		Token:   to,
		TxID:    txID,
		Amount:  amt.InexactFloat64(),
		Message: fmt.Sprintf("Swap executed from %s to %s: %s", from, to, txID),
	}, nil
}

// Withdraw sends amount SOL to destination after the same balance check as a buy.
func (e *Engine) Withdraw(ctx context.Context, amount, destination string, fees Fees) (rcpt *Receipt, err error) {
	const op = "withdraw"
	defer e.recoverOp(op, &rcpt, &err)

	amt, err := ParseAmount(amount)
	if err != nil {
		return nil, invalidInput(op, err)
	}
	dest, err := solana.PublicKeyFromBase58(strings.TrimSpace(destination))
	if err != nil {
		return nil, invalidInput(op, fmt.Errorf("invalid destination address %q: %w", destination, err))
	}

	f := fees.resolve(e.fees)
	if err := e.ensureBalance(ctx, op, totalCost(amt, f)); err != nil {
		return nil, err
	}
	usdRate, haveRate := e.market.SolUSD(ctx)

	txID, err := e.submit(ctx, dest, amt)
	if err != nil {
		return nil, remoteFailure(op, err)
	}

	rcpt = &Receipt{
		Op:     op,
		TxID:   txID,
		Amount: amt.InexactFloat64(),
	}
	if haveRate {
		rcpt.USDValue = amt.Mul(decimal.NewFromFloat(usdRate)).InexactFloat64()
		rcpt.Message = fmt.Sprintf("Withdrawal of %s %s ~ $%.2f completed✅\n\nView on Solscan: %s",
			amt.String(), SolLogo, rcpt.USDValue, e.TxURL(txID))
	} else {
		rcpt.Message = fmt.Sprintf("Withdrawal of %s %s completed✅\n\nView on Solscan: %s",
			amt.String(), SolLogo, e.TxURL(txID))
	}

	e.logger.Info("Withdrawal executed",
		zap.String("destination", dest.String()),
		zap.String("amount", amt.String()),
		zap.String("tx", txID))
	return rcpt, nil
}

// SetLimitOrder validates and appends a limit order to the order book.
func (e *Engine) SetLimitOrder(ctx context.Context, token, amount, price, orderType, percentage string, fees Fees) (rcpt *Receipt, err error) {
	const op = "limit_order"
	defer e.recoverOp(op, &rcpt, &err)

	token, err = requireToken(op, token)
	if err != nil {
		return nil, err
	}
	amt, err := ParseAmount(amount)
	if err != nil {
		return nil, invalidInput(op, err)
	}
	target, err := ParseAmount(price)
	if err != nil {
		return nil, invalidInput(op, fmt.Errorf("price: %w", err))
	}
	typ, err := ParseOrderType(orderType)
	if err != nil {
		return nil, invalidInput(op, err)
	}
	pct, err := ParsePercentage(percentage)
	if err != nil {
		return nil, invalidInput(op, err)
	}
	f := fees.resolve(e.fees)

	order := LimitOrder{
		ID:            uuid.NewString(),
		TokenAddress:  token,
		Amount:        amt.InexactFloat64(),
		Price:         target.InexactFloat64(),
		Type:          typ,
		Percentage:    pct,
		FeeBuffer:     f.Buffer,
		FeeCongestion: f.Congestion,
		Timestamp:     e.now(),
	}
	e.book.Add(order)

	e.logger.Info("Limit order placed",
		zap.String("id", order.ID),
		zap.String("token", token),
		zap.String("type", string(typ)),
		zap.Float64("price", order.Price),
		zap.Float64("percentage", pct))

	return &Receipt{
		Op:      op,
		Token:   token,
		Amount:  order.Amount,
		Order:   &order,
		Message: fmt.Sprintf("Limit %s order set for %s at %s SOL for %s %s", typ, token, target.String(), amt.String(), typ),
	}, nil
}

// ensureBalance fails with InsufficientBalance when the wallet holds less than total.
func (e *Engine) ensureBalance(ctx context.Context, op string, total decimal.Decimal) error {
	lamports, err := e.chain.Balance(ctx, e.wallet.PublicKey)
	if err != nil {
		return remoteFailure(op, fmt.Errorf("balance check: %w", err))
	}
	balance := FromLamports(lamports)
	if balance.LessThan(total) {
		e.logger.Info("Insufficient balance",
			zap.String("op", op),
			zap.String("balance", balance.String()),
			zap.String("required", total.String()))
		return &Error{
			Op:   op,
			Kind: KindInsufficientBalance,
			Err:  fmt.Errorf("have %s SOL, need %s SOL", balance.String(), total.String()),
		}
	}
	return nil
}

// submit waits the random jitter and sends the transfer.
func (e *Engine) submit(ctx context.Context, to solana.PublicKey, amt decimal.Decimal) (string, error) {
	lamports, err := ToLamports(amt)
	if err != nil {
		return "", err
	}
	if err := e.sleepJitter(ctx); err != nil {
		return "", err
	}
	return e.chain.Transfer(ctx, e.wallet, to, lamports)
}

func (e *Engine) sleepJitter(ctx context.Context) error {
	if e.jitter <= 0 {
		return nil
	}
	d := time.Duration(rand.Int64N(int64(e.jitter)))
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// recoverOp turns a collaborator panic into a RemoteCallFailure.
func (e *Engine) recoverOp(op string, rcpt **Receipt, err *error) {
	r := recover()
	if r == nil {
		return
	}
	e.logger.Error("Recovered from panic", zap.String("op", op), zap.Any("panic", r))
	if rcpt != nil {
		*rcpt = nil
	}
	*err = remoteFailure(op, fmt.Errorf("panic: %v", r))
}

func requireToken(op, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", invalidInput(op, errors.New("token address is empty"))
	}
	return token, nil
}

func totalCost(amt decimal.Decimal, f Fees) decimal.Decimal {
	return amt.Add(decimal.NewFromFloat(f.Buffer)).Add(decimal.NewFromFloat(f.Congestion))
}
