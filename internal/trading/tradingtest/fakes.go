// Package tradingtest provides in-memory collaborators for engine tests.
package tradingtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/rovshanmuradov/solana-tg-bot/internal/market"
	"github.com/rovshanmuradov/solana-tg-bot/internal/wallet"
)

// Transfer is one recorded submission.
type Transfer struct {
	From     solana.PublicKey
	To       solana.PublicKey
	Lamports uint64
	TxID     string
}

// Chain is a scripted chain: fixed SOL balance, per-token balances, recorded transfers.
type Chain struct {
	mu            sync.Mutex
	lamports      uint64
	tokens        map[string]float64
	tokenErrs     map[string]error
	balanceErr    error
	transferErr   error
	panicTransfer bool
	transfers     []Transfer
}

// NewChain creates a chain holding lamports SOL.
func NewChain(lamports uint64) *Chain {
	return &Chain{
		lamports:  lamports,
		tokens:    make(map[string]float64),
		tokenErrs: make(map[string]error),
	}
}

func (c *Chain) SetLamports(v uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lamports = v
}

func (c *Chain) SetTokenBalance(token string, v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[token] = v
}

func (c *Chain) FailTokenBalance(token string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokenErrs[token] = err
}

func (c *Chain) FailBalance(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balanceErr = err
}

func (c *Chain) FailTransfer(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transferErr = err
}

// PanicOnTransfer makes the next transfers panic.
func (c *Chain) PanicOnTransfer(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.panicTransfer = v
}

// Transfers returns the submissions seen so far.
func (c *Chain) Transfers() []Transfer {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Transfer, len(c.transfers))
	copy(out, c.transfers)
	return out
}

func (c *Chain) Balance(_ context.Context, _ solana.PublicKey) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.balanceErr != nil {
		return 0, c.balanceErr
	}
	return c.lamports, nil
}

func (c *Chain) TokenBalance(_ context.Context, _ solana.PublicKey, token string) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.tokenErrs[token]; err != nil {
		return 0, err
	}
	return c.tokens[token], nil
}

func (c *Chain) Transfer(_ context.Context, from *wallet.Wallet, to solana.PublicKey, lamports uint64) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.panicTransfer {
		panic("rpc connection reset")
	}
	if c.transferErr != nil {
		return "", c.transferErr
	}
	tx := fmt.Sprintf("tx-%d", len(c.transfers)+1)
	c.transfers = append(c.transfers, Transfer{From: from.PublicKey, To: to, Lamports: lamports, TxID: tx})
	return tx, nil
}

// Market serves fixed snapshots and counts lookups.
type Market struct {
	mu     sync.Mutex
	quotes map[string]market.Snapshot
	calls  map[string]int
	usd    float64
}

// NewMarket creates a market with no listed tokens and no SOL/USD rate.
func NewMarket() *Market {
	return &Market{
		quotes: make(map[string]market.Snapshot),
		calls:  make(map[string]int),
	}
}

// SetQuote lists token at price (SOL) with market cap.
func (m *Market) SetQuote(token string, price, marketCap float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotes[token] = market.Snapshot{
		Token:     token,
		Price:     price,
		MarketCap: marketCap,
		Name:      token + " coin",
		Symbol:    token,
		Available: true,
	}
}

// Delist removes token from the market.
func (m *Market) Delist(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.quotes, token)
}

func (m *Market) SetSolUSD(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usd = v
}

// Calls returns the number of lookups of token.
func (m *Market) Calls(token string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[token]
}

func (m *Market) Quote(_ context.Context, token string) market.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[token]++
	if s, ok := m.quotes[token]; ok {
		return s
	}
	return market.Snapshot{Token: token, Name: market.UnknownName}
}

func (m *Market) SolUSD(_ context.Context) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usd, m.usd > 0
}
