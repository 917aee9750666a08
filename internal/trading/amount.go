// internal/trading/amount.go
package trading

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// LamportsPerSOL is the base-unit multiplier of SOL.
const LamportsPerSOL = 1_000_000_000

var (
	lamportsPerSOL = decimal.NewFromInt(LamportsPerSOL)
	// больше не помещается в int64 лампортов
	maxLamports = decimal.NewFromInt(math.MaxInt64)
)

// ParseAmount parses a non-negative decimal number from user text.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount is empty")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("amount %q is not a number", s)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("amount %q must not be negative", s)
	}
	if d.Mul(lamportsPerSOL).GreaterThan(maxLamports) {
		return decimal.Zero, fmt.Errorf("amount %q is too large", s)
	}
	return d, nil
}

// ParsePercentage returns the sell percentage of a limit order.
// Empty input and values outside (0, 100] fall back to 100.
func ParsePercentage(s string) (float64, error) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	if s == "" {
		return DefaultSellPercentage, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("percentage %q is not a number", s)
	}
	pct := d.InexactFloat64()
	if pct <= 0 || pct > 100 {
		return DefaultSellPercentage, nil
	}
	return pct, nil
}

// ParseSellPercentage parses the share of a holding a manual sell closes.
// Empty input means the whole holding; values outside (0, 100] are rejected.
func ParseSellPercentage(s string) (float64, error) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	if s == "" {
		return DefaultSellPercentage, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("percentage %q is not a number", s)
	}
	pct := d.InexactFloat64()
	if pct <= 0 || pct > 100 {
		return 0, fmt.Errorf("percentage %q must be above 0 and at most 100", s)
	}
	return pct, nil
}

// ToLamports converts a SOL amount to lamports, truncating fractions of a lamport.
// Negative amounts and amounts above math.MaxInt64 lamports are rejected.
func ToLamports(sol decimal.Decimal) (uint64, error) {
	l := sol.Mul(lamportsPerSOL).Truncate(0)
	if l.IsNegative() || l.GreaterThan(maxLamports) {
		return 0, fmt.Errorf("amount %s SOL is out of range", sol.String())
	}
	return uint64(l.IntPart()), nil
}

// FromLamports converts lamports to SOL.
func FromLamports(lamports uint64) decimal.Decimal {
	return decimal.NewFromUint64(lamports).Div(lamportsPerSOL)
}

// FormatSOL renders a SOL amount the way the chat replies print it.
func FormatSOL(v float64) string {
	return decimal.NewFromFloat(v).String()
}

// Fees holds optional per-operation fee overrides in SOL. Zero means default.
type Fees struct {
	Buffer     float64
	Congestion float64
}

// ParseFees parses the optional [buffer] [congestion] trailing arguments.
func ParseFees(buffer, congestion string) (Fees, error) {
	var f Fees
	if strings.TrimSpace(buffer) != "" {
		d, err := ParseAmount(buffer)
		if err != nil {
			return Fees{}, fmt.Errorf("fee buffer: %w", err)
		}
		f.Buffer = d.InexactFloat64()
	}
	if strings.TrimSpace(congestion) != "" {
		d, err := ParseAmount(congestion)
		if err != nil {
			return Fees{}, fmt.Errorf("congestion fee: %w", err)
		}
		f.Congestion = d.InexactFloat64()
	}
	return f, nil
}

// resolve fills unset fees with defaults.
func (f Fees) resolve(defaults Fees) Fees {
	out := f
	if out.Buffer <= 0 {
		out.Buffer = defaults.Buffer
	}
	if out.Congestion <= 0 {
		out.Congestion = defaults.Congestion
	}
	return out
}
