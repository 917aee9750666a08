// internal/report/card.go
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/rovshanmuradov/solana-tg-bot/internal/trading"
)

const (
	secondsPerYear = 365 * 24 * 3600
	secondsPerWeek = 7 * 24 * 3600
	secondsPerDay  = 24 * 3600
)

// ProfitCard is the payload of a closed (or hypothetical) position summary.
type ProfitCard struct {
	ChatID     int64         `json:"chat_id"`
	Name       string        `json:"name"`
	Token      string        `json:"token"`
	CoinName   string        `json:"coin_name"`
	Multiple   float64       `json:"multiple"`
	Invested   float64       `json:"invested"`
	Profit     float64       `json:"profit"`
	Capital    float64       `json:"capital"`
	HoldTime   time.Duration `json:"hold_time"`
	SellTime   time.Time     `json:"sell_time"`
	Manual     bool          `json:"manual"`
	ExpiresAt  time.Time     `json:"expires_at"`
	SellMarket float64       `json:"sell_mcap"`
}

// NewProfitCard computes a card for pos closed at sellMarketCap.
// A zero multiple means the whole investment is reported as lost.
func NewProfitCard(chatID int64, name, coinName string, pos trading.Position, sellMarketCap float64, at time.Time) ProfitCard {
	multiple := pos.Multiple(sellMarketCap)
	invested := pos.Amount
	profit := -invested
	if multiple > 0 {
		profit = invested * (multiple - 1)
	}
	sellTime := at
	if pos.SellTime != nil {
		sellTime = *pos.SellTime
	}
	return ProfitCard{
		ChatID:     chatID,
		Name:       name,
		Token:      pos.TokenAddress,
		CoinName:   coinName,
		Multiple:   multiple,
		Invested:   invested,
		Profit:     profit,
		Capital:    invested + profit,
		HoldTime:   sellTime.Sub(pos.Timestamp),
		SellTime:   sellTime,
		Manual:     pos.Manual,
		SellMarket: sellMarketCap,
	}
}

// Text renders the card as a chat message.
func (c ProfitCard) Text() string {
	var b strings.Builder
	b.WriteString(c.Name + "\n")
	b.WriteString("Coin: " + c.CoinName + "\n")
	fmt.Fprintf(&b, "Profit: %+.2fx\n", c.Multiple)
	fmt.Fprintf(&b, "%s Invested: %.4f\n", trading.SolLogo, c.Invested)
	fmt.Fprintf(&b, "%s Profit: %.4f\n", trading.SolLogo, c.Profit)
	fmt.Fprintf(&b, "%s Capital: %.4f\n", trading.SolLogo, c.Capital)
	fmt.Fprintf(&b, "Hold Time: %s\n", FormatHoldTime(c.HoldTime))
	if c.Manual {
		b.WriteString("Detected on-chain\n")
	}
	b.WriteString("\nZK Speed")
	return b.String()
}

// FormatHoldTime renders d as "Xy Xw Xd Xh Xm" past a year, "Xd Xh Xm"
// past a day and "Xh Xm Xs" otherwise.
func FormatHoldTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)

	if years := total / secondsPerYear; years > 0 {
		rem := total % secondsPerYear
		weeks := rem / secondsPerWeek
		rem %= secondsPerWeek
		days := rem / secondsPerDay
		rem %= secondsPerDay
		return fmt.Sprintf("%dy %dw %dd %dh %dm", years, weeks, days, rem/3600, rem%3600/60)
	}
	if days := total / secondsPerDay; days > 0 {
		rem := total % secondsPerDay
		return fmt.Sprintf("%dd %dh %dm", days, rem/3600, rem%3600/60)
	}
	return fmt.Sprintf("%dh %dm %ds", total/3600, total%3600/60, total%60)
}
