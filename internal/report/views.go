// internal/report/views.go
package report

import (
	"context"
	"fmt"
	"strings"

	"github.com/rovshanmuradov/solana-tg-bot/internal/market"
	"github.com/rovshanmuradov/solana-tg-bot/internal/trading"
)

// Quoter looks up market snapshots.
type Quoter interface {
	Quote(ctx context.Context, token string) market.Snapshot
}

// quoteCache looks each token up once per rendered view.
type quoteCache struct {
	q     Quoter
	cache map[string]market.Snapshot
}

func newQuoteCache(q Quoter) *quoteCache {
	return &quoteCache{q: q, cache: make(map[string]market.Snapshot)}
}

func (c *quoteCache) get(ctx context.Context, token string) market.Snapshot {
	if s, ok := c.cache[token]; ok {
		return s
	}
	s := c.q.Quote(ctx, token)
	c.cache[token] = s
	return s
}

// Portfolio lists every recorded position with its current MCap multiple.
func Portfolio(ctx context.Context, q Quoter, positions []trading.Position) string {
	if len(positions) == 0 {
		return "No holdings."
	}
	quotes := newQuoteCache(q)
	var b strings.Builder
	b.WriteString("Portfolio:\n\n")
	for _, p := range positions {
		snap := quotes.get(ctx, p.TokenAddress)
		fmt.Fprintf(&b, "Token: %s\nMCap Multiple: %.2fx\n", snap.Name, p.Multiple(snap.MarketCap))
		if !p.IsOpen() {
			fmt.Fprintf(&b, "Closed at: %.2fx\n", p.Multiple(*p.SellMarketCap))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// CoinProfit shows the multiple of the first position recorded for token.
func CoinProfit(ctx context.Context, q Quoter, ledger *trading.Ledger, token string) string {
	p, ok := ledger.First(token)
	if !ok {
		return "Token not found in portfolio."
	}
	snap := q.Quote(ctx, token)
	return fmt.Sprintf("Token: %s\nMCap Multiple: %.2fx", snap.Name, p.Multiple(snap.MarketCap))
}

// PositionsView holds the inputs of the positions screen.
type PositionsView struct {
	Wallet     string
	SolBalance float64
	SolUSD     float64 // zero when unknown
	Open       []trading.OpenPosition
}

func usd(sol, rate float64) string {
	if rate <= 0 {
		return "$?"
	}
	return fmt.Sprintf("$%.2f", sol*rate)
}

func pnlEmoji(v float64) string {
	if v > 0 {
		return "🟩"
	}
	return "🟥"
}

// Positions renders the open positions with balance share and PnL.
func Positions(ctx context.Context, q Quoter, v PositionsView) string {
	if len(v.Open) == 0 {
		return "No active positions."
	}
	var total float64
	for _, op := range v.Open {
		total += op.Position.Amount
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Wallet: %s\n", v.Wallet)
	fmt.Fprintf(&b, "Balance: %.3f %s (%s)\n", v.SolBalance, trading.SolLogo, usd(v.SolBalance, v.SolUSD))
	fmt.Fprintf(&b, "Positions: %.3f %s (%s)\n\n", total, trading.SolLogo, usd(total, v.SolUSD))

	quotes := newQuoteCache(q)
	for _, op := range v.Open {
		p := op.Position
		snap := quotes.get(ctx, p.TokenAddress)

		var pnlPct, share float64
		if p.BuyMarketCap > 0 && snap.MarketCap > 0 {
			pnlPct = (snap.MarketCap - p.BuyMarketCap) / p.BuyMarketCap * 100
		}
		if v.SolBalance > 0 {
			share = p.Amount / v.SolBalance * 100
		}
		pnlSol := p.Amount * (p.Multiple(snap.MarketCap) - 1)
		if p.Multiple(snap.MarketCap) == 0 {
			pnlSol = 0
		}

		fmt.Fprintf(&b, "%s - %.4f %s (%s)\n", snap.Name, p.Amount, trading.SolLogo, usd(p.Amount, v.SolUSD))
		fmt.Fprintf(&b, "• CA: %s\n", p.TokenAddress)
		fmt.Fprintf(&b, "• Price & MC: %s — $%.2f\n", trading.FormatSOL(snap.Price), snap.MarketCap)
		fmt.Fprintf(&b, "• Entry MC: $%.2f\n", p.BuyMarketCap)
		fmt.Fprintf(&b, "• Balance: %.3f%%\n", share)
		fmt.Fprintf(&b, "• PNL: %.2f%% %s\n", pnlPct, pnlEmoji(pnlPct))
		fmt.Fprintf(&b, "• PNL SOL: %.4f %s %s\n", pnlSol, trading.SolLogo, pnlEmoji(pnlSol))
		if p.Manual {
			b.WriteString("• Manual\n")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// Orders lists pending limit orders.
func Orders(orders []trading.LimitOrder) string {
	if len(orders) == 0 {
		return "No pending limit orders."
	}
	var b strings.Builder
	b.WriteString("Pending limit orders:\n\n")
	for i, o := range orders {
		fmt.Fprintf(&b, "%d. %s %s at %s SOL, amount %s",
			i+1, strings.ToUpper(string(o.Type)), o.TokenAddress, trading.FormatSOL(o.Price), trading.FormatSOL(o.Amount))
		if o.Type == trading.OrderSell {
			fmt.Fprintf(&b, " (%s%%)", trading.FormatSOL(o.Percentage))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// TokenStatus is the buy/sell prompt header for token.
func TokenStatus(ctx context.Context, q Quoter, ledger *trading.Ledger, token string) string {
	snap := q.Quote(ctx, token)
	var b strings.Builder
	fmt.Fprintf(&b, "Token: %s\nMCap: $%.2f", snap.Name, snap.MarketCap)
	if p, _, ok := ledger.FirstOpen(token); ok {
		profit := 0.0
		if m := p.Multiple(snap.MarketCap); m > 0 {
			profit = (m - 1) * 100
		}
		fmt.Fprintf(&b, "\nHoldings: %s %s\nProfit: %.2f%% %s", trading.FormatSOL(p.Amount), trading.SolLogo, profit, pnlEmoji(profit))
	}
	return b.String()
}

// NewTokenText formats a new-token alert.
func NewTokenText(pair market.PairInfo) string {
	paid := ""
	if pair.DexPaid {
		paid = " (DEX Paid)"
	}
	name := pair.BaseToken.Name
	if name == "" {
		name = market.UnknownName
	}
	return fmt.Sprintf("New Token on %s%s:\nName: %s\nMCap: $%.2f\nCA: %s",
		pair.DexID, paid, name, pair.MarketCap, pair.BaseToken.Address)
}
