// internal/report/export.go
package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-tg-bot/internal/trading"
)

// ExportFormat represents the export file format
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatJSON ExportFormat = "json"
)

// ParseFormat accepts csv or json; empty means csv.
func ParseFormat(s string) (ExportFormat, error) {
	switch ExportFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatJSON:
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unsupported format: %s", s)
}

// ExportSummary contains summary statistics for exported positions
type ExportSummary struct {
	TotalPositions int       `json:"total_positions"`
	OpenCount      int       `json:"open_count"`
	ClosedCount    int       `json:"closed_count"`
	ManualCount    int       `json:"manual_count"`
	UniqueTokens   int       `json:"unique_tokens"`
	TotalInvested  float64   `json:"total_invested"`
	RealizedProfit float64   `json:"realized_profit"`
	WinCount       int       `json:"win_count"`
	LossCount      int       `json:"loss_count"`
	WinRate        float64   `json:"win_rate"`
	StartDate      time.Time `json:"start_date"`
	EndDate        time.Time `json:"end_date"`
}

// Exporter renders a ledger as downloadable documents.
type Exporter struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewExporter creates a new exporter
func NewExporter(logger *zap.Logger) *Exporter {
	return &Exporter{
		logger: logger.Named("export"),
		now:    time.Now,
	}
}

// Filename builds the document name for chatID.
func (ex *Exporter) Filename(chatID int64, format ExportFormat) string {
	return fmt.Sprintf("positions_%d_%s.%s", chatID, ex.now().Format("20060102_150405"), format)
}

// Export renders positions in format.
func (ex *Exporter) Export(positions []trading.Position, format ExportFormat) ([]byte, error) {
	if len(positions) == 0 {
		return nil, fmt.Errorf("no positions to export")
	}

	var (
		out []byte
		err error
	)
	switch format {
	case FormatCSV:
		out, err = ex.exportToCSV(positions)
	case FormatJSON:
		out, err = ex.exportToJSON(positions)
	default:
		err = fmt.Errorf("unsupported format: %s", format)
	}
	if err != nil {
		return nil, err
	}

	ex.logger.Info("Positions exported",
		zap.Int("count", len(positions)),
		zap.String("format", string(format)),
		zap.Int("bytes", len(out)))
	return out, nil
}

// CSVHeaders returns the column names of the positions CSV.
func CSVHeaders() []string {
	return []string{"token_address", "amount_sol", "bought_at", "tx_id", "buy_mcap", "sell_mcap", "sold_at", "multiple", "profit_sol", "manual"}
}

func positionRow(p trading.Position) []string {
	row := []string{
		p.TokenAddress,
		strconv.FormatFloat(p.Amount, 'f', -1, 64),
		p.Timestamp.UTC().Format(time.RFC3339),
		p.TxID,
		strconv.FormatFloat(p.BuyMarketCap, 'f', 2, 64),
		"", "", "", "",
		strconv.FormatBool(p.Manual),
	}
	if !p.IsOpen() {
		card := NewProfitCard(0, "", "", p, *p.SellMarketCap, *p.SellTime)
		row[5] = strconv.FormatFloat(*p.SellMarketCap, 'f', 2, 64)
		row[6] = p.SellTime.UTC().Format(time.RFC3339)
		row[7] = strconv.FormatFloat(card.Multiple, 'f', 4, 64)
		row[8] = strconv.FormatFloat(card.Profit, 'f', 9, 64)
	}
	return row
}

// exportToCSV exports positions to CSV format
func (ex *Exporter) exportToCSV(positions []trading.Position) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(CSVHeaders()); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, p := range positions {
		if err := writer.Write(positionRow(p)); err != nil {
			return nil, fmt.Errorf("failed to write position: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// exportToJSON exports positions to JSON format
func (ex *Exporter) exportToJSON(positions []trading.Position) ([]byte, error) {
	exportData := struct {
		ExportTime    time.Time          `json:"export_time"`
		PositionCount int                `json:"position_count"`
		Positions     []trading.Position `json:"positions"`
		Summary       ExportSummary      `json:"summary"`
	}{
		ExportTime:    ex.now(),
		PositionCount: len(positions),
		Positions:     positions,
		Summary:       Summarize(positions),
	}

	out, err := json.MarshalIndent(exportData, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode JSON: %w", err)
	}
	return out, nil
}

// Summarize calculates summary statistics over positions.
func Summarize(positions []trading.Position) ExportSummary {
	summary := ExportSummary{TotalPositions: len(positions)}
	if len(positions) == 0 {
		return summary
	}

	summary.StartDate = positions[0].Timestamp
	summary.EndDate = positions[0].Timestamp
	tokenSet := make(map[string]bool)

	for _, p := range positions {
		tokenSet[p.TokenAddress] = true
		summary.TotalInvested += p.Amount
		if p.Timestamp.Before(summary.StartDate) {
			summary.StartDate = p.Timestamp
		}
		if p.Timestamp.After(summary.EndDate) {
			summary.EndDate = p.Timestamp
		}
		if p.Manual {
			summary.ManualCount++
		}
		if p.IsOpen() {
			summary.OpenCount++
			continue
		}

		summary.ClosedCount++
		card := NewProfitCard(0, "", "", p, *p.SellMarketCap, *p.SellTime)
		summary.RealizedProfit += card.Profit
		if card.Profit > 0 {
			summary.WinCount++
		} else if card.Profit < 0 {
			summary.LossCount++
		}
	}

	summary.UniqueTokens = len(tokenSet)
	if summary.ClosedCount > 0 {
		summary.WinRate = float64(summary.WinCount) / float64(summary.ClosedCount) * 100
	}
	return summary
}
