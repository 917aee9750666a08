// internal/trading/watch.go
package trading

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-tg-bot/internal/market"
)

// ManualSellThreshold is the share of the recorded amount below which an
// on-chain balance counts as sold outside the bot.
const ManualSellThreshold = 0.9

// ManualClose describes a position closed because its balance dropped.
type ManualClose struct {
	Index     int
	Position  Position
	Balance   float64
	MarketCap float64
}

// LimitFill describes an executed limit order.
type LimitFill struct {
	Order   LimitOrder
	Price   float64
	Receipt *Receipt
	Message string
}

// CheckManualSells re-reads the token balance of every open position.
// The first position whose balance fell below the threshold is closed and
// returned; the scan stops there. Positions that still hold a balance are
// flagged manual. A failed balance read aborts the scan.
func (e *Engine) CheckManualSells(ctx context.Context) (mc *ManualClose, err error) {
	const op = "check_manual_sells"
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Recovered from panic", zap.String("op", op), zap.Any("panic", r))
			mc, err = nil, remoteFailure(op, fmt.Errorf("panic: %v", r))
		}
	}()

	for _, open := range e.ledger.Open() {
		pos := open.Position
		balance, err := e.chain.TokenBalance(ctx, e.wallet.PublicKey, pos.TokenAddress)
		if err != nil {
			return nil, remoteFailure(op, fmt.Errorf("token balance %s: %w", pos.TokenAddress, err))
		}

		if balance < pos.Amount*ManualSellThreshold {
			snap := e.market.Quote(ctx, pos.TokenAddress)
			closed, ok := e.ledger.CloseAt(open.Index, snap.MarketCap, e.now())
			if !ok {
				// закрыта параллельной продажей
				continue
			}
			e.logger.Info("Manual sell detected",
				zap.String("token", pos.TokenAddress),
				zap.Float64("balance", balance),
				zap.Float64("recorded", pos.Amount),
				zap.Float64("market_cap", snap.MarketCap))
			return &ManualClose{
				Index:     open.Index,
				Position:  closed,
				Balance:   balance,
				MarketCap: snap.MarketCap,
			}, nil
		}

		if !pos.Manual && balance > 0 {
			e.ledger.MarkManual(open.Index)
			e.logger.Debug("Position marked manual",
				zap.String("token", pos.TokenAddress),
				zap.Float64("balance", balance))
		}
	}
	return nil, nil
}

// CheckLimitOrders evaluates pending orders in insertion order. Prices are
// looked up once per token per pass. The first order that triggers and
// executes is removed and returned; failed executions stay pending.
func (e *Engine) CheckLimitOrders(ctx context.Context) (fill *LimitFill, err error) {
	const op = "check_limit_orders"
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Recovered from panic", zap.String("op", op), zap.Any("panic", r))
			fill, err = nil, remoteFailure(op, fmt.Errorf("panic: %v", r))
		}
	}()

	quotes := make(map[string]market.Snapshot)
	for _, order := range e.book.Orders() {
		snap, ok := quotes[order.TokenAddress]
		if !ok {
			snap = e.market.Quote(ctx, order.TokenAddress)
			quotes[order.TokenAddress] = snap
		}
		// без рыночных данных цена равна 0
		if !snap.Available {
			e.logger.Debug("No market data for limit order, using zero price",
				zap.String("id", order.ID),
				zap.String("token", order.TokenAddress))
		}
		if !order.Triggered(snap.Price) {
			continue
		}

		rcpt, msg, err := e.executeOrder(ctx, order)
		if err != nil {
			e.logger.Warn("Limit order execution failed",
				zap.String("id", order.ID),
				zap.String("token", order.TokenAddress),
				zap.String("type", string(order.Type)),
				zap.Error(err))
			continue
		}
		e.book.Remove(order.ID)

		e.logger.Info("Limit order filled",
			zap.String("id", order.ID),
			zap.String("token", order.TokenAddress),
			zap.String("type", string(order.Type)),
			zap.Float64("price", snap.Price))
		return &LimitFill{Order: order, Price: snap.Price, Receipt: rcpt, Message: msg}, nil
	}
	return nil, nil
}

func (e *Engine) executeOrder(ctx context.Context, order LimitOrder) (*Receipt, string, error) {
	switch order.Type {
	case OrderBuy:
		rcpt, err := e.buy(ctx, order.TokenAddress, decimal.NewFromFloat(order.Amount), order.Fees(), false)
		if err != nil {
			return nil, "", err
		}
		return rcpt, fmt.Sprintf("Limit buy executed for %s: %s", order.TokenAddress, rcpt.Message), nil
	case OrderSell:
		held := decimal.NewFromFloat(e.Holdings(order.TokenAddress))
		amt := decimal.NewFromFloat(order.Percentage).Div(decimal.NewFromInt(100)).Mul(held)
		rcpt, err := e.sell(ctx, order.TokenAddress, amt, order.Fees())
		if err != nil {
			return nil, "", err
		}
		return rcpt, fmt.Sprintf("Limit sell executed for %s (%s%%)", order.TokenAddress, FormatSOL(order.Percentage)), nil
	}
	return nil, "", invalidInput("limit_order", fmt.Errorf("unknown order type %q", order.Type))
}
