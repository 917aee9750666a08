// internal/trading/position.go
package trading

import (
	"sync"
	"time"
)

// Position is one tracked buy. It stays open until SellMarketCap is set.
type Position struct {
	TokenAddress  string     `json:"token_address"`
	Amount        float64    `json:"amount"`
	Timestamp     time.Time  `json:"timestamp"`
	TxID          string     `json:"tx_id"`
	BuyMarketCap  float64    `json:"buy_mcap"`
	SellMarketCap *float64   `json:"sell_mcap,omitempty"`
	SellTime      *time.Time `json:"sell_time,omitempty"`
	Manual        bool       `json:"manual"`
}

// IsOpen reports whether the position has not been closed yet.
func (p Position) IsOpen() bool {
	return p.SellMarketCap == nil
}

// Multiple returns closing (or given current) market cap over the buy market cap.
// Zero when either side is unknown.
func (p Position) Multiple(currentMarketCap float64) float64 {
	if p.BuyMarketCap == 0 || currentMarketCap == 0 {
		return 0
	}
	return currentMarketCap / p.BuyMarketCap
}

func (p Position) clone() Position {
	c := p
	if p.SellMarketCap != nil {
		v := *p.SellMarketCap
		c.SellMarketCap = &v
	}
	if p.SellTime != nil {
		t := *p.SellTime
		c.SellTime = &t
	}
	return c
}

// OpenPosition pairs an open position with its index in the ledger.
type OpenPosition struct {
	Index    int
	Position Position
}

// Ledger is the ordered, append-only list of positions of one session.
type Ledger struct {
	mu        sync.RWMutex
	positions []Position
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{positions: make([]Position, 0)}
}

// Append adds a new position at the end of the ledger.
func (l *Ledger) Append(p Position) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.positions = append(l.positions, p.clone())
}

// Len returns the number of recorded positions, open and closed.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.positions)
}

// Positions returns a copy of all positions in insertion order.
func (l *Ledger) Positions() []Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Position, len(l.positions))
	for i, p := range l.positions {
		out[i] = p.clone()
	}
	return out
}

// Open returns every open position with its ledger index.
func (l *Ledger) Open() []OpenPosition {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []OpenPosition
	for i, p := range l.positions {
		if p.IsOpen() {
			out = append(out, OpenPosition{Index: i, Position: p.clone()})
		}
	}
	return out
}

// FirstOpen finds the first open position for token. First match wins.
func (l *Ledger) FirstOpen(token string) (Position, int, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for i, p := range l.positions {
		if p.TokenAddress == token && p.IsOpen() {
			return p.clone(), i, true
		}
	}
	return Position{}, -1, false
}

// First returns the first position for token regardless of state.
func (l *Ledger) First(token string) (Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, p := range l.positions {
		if p.TokenAddress == token {
			return p.clone(), true
		}
	}
	return Position{}, false
}

// CloseFirstOpen closes the first open position for token.
func (l *Ledger) CloseFirstOpen(token string, marketCap float64, at time.Time) (Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.positions {
		p := &l.positions[i]
		if p.TokenAddress == token && p.IsOpen() {
			closeLocked(p, marketCap, at)
			return p.clone(), true
		}
	}
	return Position{}, false
}

// CloseAt closes the position at index if it is still open.
func (l *Ledger) CloseAt(index int, marketCap float64, at time.Time) (Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if index < 0 || index >= len(l.positions) || !l.positions[index].IsOpen() {
		return Position{}, false
	}
	p := &l.positions[index]
	closeLocked(p, marketCap, at)
	return p.clone(), true
}

// MarkManual flags the position at index as observed on-chain.
func (l *Ledger) MarkManual(index int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if index < 0 || index >= len(l.positions) {
		return false
	}
	l.positions[index].Manual = true
	return true
}

// OpenAmount sums the SOL committed in open positions.
func (l *Ledger) OpenAmount() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var total float64
	for _, p := range l.positions {
		if p.IsOpen() {
			total += p.Amount
		}
	}
	return total
}

func closeLocked(p *Position, marketCap float64, at time.Time) {
	mcap := marketCap
	t := at
	p.SellMarketCap = &mcap
	p.SellTime = &t
}
