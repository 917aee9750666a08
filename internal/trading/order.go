// internal/trading/order.go
package trading

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// OrderType is the direction of a limit order.
type OrderType string

const (
	OrderBuy  OrderType = "buy"
	OrderSell OrderType = "sell"
)

// ParseOrderType accepts buy/sell in any case.
func ParseOrderType(s string) (OrderType, error) {
	switch OrderType(strings.ToLower(strings.TrimSpace(s))) {
	case OrderBuy:
		return OrderBuy, nil
	case OrderSell:
		return OrderSell, nil
	}
	return "", fmt.Errorf("order type must be buy or sell, got %q", s)
}

// DefaultSellPercentage is used when a limit order carries no usable percentage.
const DefaultSellPercentage = 100.0

// LimitOrder is a standing conditional buy or sell.
type LimitOrder struct {
	ID            string    `json:"id"`
	TokenAddress  string    `json:"token_address"`
	Amount        float64   `json:"amount"` // SOL for buy, token amount basis for sell
	Price         float64   `json:"price"`  // trigger price in SOL per token
	Type          OrderType `json:"order_type"`
	Percentage    float64   `json:"percentage"`
	FeeBuffer     float64   `json:"fee_buffer"`
	FeeCongestion float64   `json:"fee_congestion"`
	Timestamp     time.Time `json:"timestamp"`
}

// Triggered reports whether the order fires at currentPrice.
// Buys fire at or below the target, sells at or above it.
func (o LimitOrder) Triggered(currentPrice float64) bool {
	switch o.Type {
	case OrderBuy:
		return currentPrice <= o.Price
	case OrderSell:
		return currentPrice >= o.Price
	}
	return false
}

// Fees returns the fee overrides stored with the order.
func (o LimitOrder) Fees() Fees {
	return Fees{Buffer: o.FeeBuffer, Congestion: o.FeeCongestion}
}

// OrderBook keeps pending limit orders in insertion order.
type OrderBook struct {
	mu     sync.RWMutex
	orders []LimitOrder
}

// NewOrderBook creates an empty order book.
func NewOrderBook() *OrderBook {
	return &OrderBook{orders: make([]LimitOrder, 0)}
}

// Add appends an order.
func (b *OrderBook) Add(o LimitOrder) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.orders = append(b.orders, o)
}

// Remove deletes the order with id. Returns false if it is gone already.
func (b *OrderBook) Remove(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, o := range b.orders {
		if o.ID == id {
			b.orders = append(b.orders[:i], b.orders[i+1:]...)
			return true
		}
	}
	return false
}

// Orders returns a snapshot of pending orders.
func (b *OrderBook) Orders() []LimitOrder {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]LimitOrder, len(b.orders))
	copy(out, b.orders)
	return out
}

// Len returns the number of pending orders.
func (b *OrderBook) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.orders)
}
