// internal/report/growth.go
package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rovshanmuradov/solana-tg-bot/internal/trading"
)

// GrowthPoint is one sample of the portfolio growth series.
type GrowthPoint struct {
	At    time.Time `json:"at"`
	Value float64   `json:"value"`
}

// Period selects a window of the growth series.
type Period string

const (
	PeriodThisMonth   Period = "this_month"
	PeriodLastMonth   Period = "last_month"
	PeriodLast3Months Period = "last_3_months"
	PeriodLast6Months Period = "last_6_months"
	PeriodYear        Period = "1_year"
)

// Periods lists the supported windows in menu order.
var Periods = []Period{PeriodThisMonth, PeriodLastMonth, PeriodLast3Months, PeriodLast6Months, PeriodYear}

const day = 24 * time.Hour

// ParsePeriod accepts a period name; empty input means one year.
func ParsePeriod(s string) (Period, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return PeriodYear, nil
	}
	for _, p := range Periods {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown period %q", s)
}

// Window returns the [start, end] range of p ending at now.
func (p Period) Window(now time.Time) (time.Time, time.Time) {
	switch p {
	case PeriodThisMonth:
		return now.Add(-30 * day), now
	case PeriodLastMonth:
		return now.Add(-60 * day), now.Add(-30 * day)
	case PeriodLast3Months:
		return now.Add(-90 * day), now
	case PeriodLast6Months:
		return now.Add(-180 * day), now
	}
	return now.Add(-365 * day), now
}

// FilterGrowth returns the points inside the window of p.
func FilterGrowth(points []GrowthPoint, p Period, now time.Time) []GrowthPoint {
	start, end := p.Window(now)
	var out []GrowthPoint
	for _, pt := range points {
		if pt.At.Before(start) || pt.At.After(end) {
			continue
		}
		out = append(out, pt)
	}
	return out
}

// GrowthValue is the realized capital over invested SOL across closed
// positions; 1.0 when nothing has been closed yet.
func GrowthValue(positions []trading.Position) float64 {
	var invested, capital float64
	for _, p := range positions {
		if p.IsOpen() {
			continue
		}
		card := NewProfitCard(0, "", "", p, *p.SellMarketCap, *p.SellTime)
		invested += card.Invested
		capital += card.Capital
	}
	if invested == 0 {
		return 1.0
	}
	return capital / invested
}

// GrowthCSV renders points as a Date,Growth(x) CSV document.
func GrowthCSV(points []GrowthPoint) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"Date", "Growth(x)"}); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, pt := range points {
		row := []string{pt.At.Format("2006-01-02"), strconv.FormatFloat(pt.Value, 'f', -1, 64)}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write growth point: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GrowthSummary is a short text view of the filtered series.
func GrowthSummary(points []GrowthPoint, p Period) string {
	if len(points) == 0 {
		return fmt.Sprintf("Portfolio Growth - %s\nNo data for this period.", p)
	}
	first, last := points[0], points[len(points)-1]
	var b strings.Builder
	fmt.Fprintf(&b, "Portfolio Growth - %s\n", p)
	fmt.Fprintf(&b, "From %s: %.2fx\n", first.At.Format("2006-01-02"), first.Value)
	fmt.Fprintf(&b, "To %s: %.2fx\n", last.At.Format("2006-01-02"), last.Value)
	fmt.Fprintf(&b, "Samples: %d", len(points))
	return b.String()
}
