// internal/market/dexscreener.go
package market

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	DefaultDexScreenerURL = "https://api.dexscreener.com"
	DefaultCoinGeckoURL   = "https://api.coingecko.com"

	// UnknownName is reported when the aggregator lists no pair for a token.
	UnknownName = "Unknown"
)

// DexScreenerResponse представляет основную структуру ответа
type DexScreenerResponse struct {
	SchemaVersion string     `json:"schemaVersion"`
	Pairs         []PairInfo `json:"pairs"`
}

// PairInfo содержит информацию о паре
type PairInfo struct {
	ChainID     string    `json:"chainId"`
	DexID       string    `json:"dexId"`
	PairAddress string    `json:"pairAddress"`
	BaseToken   TokenInfo `json:"baseToken"`
	QuoteToken  TokenInfo `json:"quoteToken"`
	PriceNative string    `json:"priceNative"`
	PriceUSD    string    `json:"priceUsd"`
	MarketCap   float64   `json:"marketCap"`
	Info        PairMeta  `json:"info"`
	DexPaid     bool      `json:"dexPaid"`
}

// TokenInfo содержит информацию о токене
type TokenInfo struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

// PairMeta holds the optional presentation fields of a pair.
type PairMeta struct {
	ImageURL string `json:"imageUrl"`
}

// Snapshot is the aggregator view of one token at one point in time.
// Available is false when the lookup failed or listed no pair; the numeric
// fields are then zero and Name is UnknownName.
type Snapshot struct {
	Token     string
	Price     float64 // SOL per token
	MarketCap float64
	Name      string
	Symbol    string
	ImageURL  string
	Available bool
}

func unavailable(token string) Snapshot {
	return Snapshot{Token: token, Name: UnknownName}
}

// Config for the market data client.
type Config struct {
	DexScreenerURL string
	CoinGeckoURL   string
	Timeout        time.Duration
}

// Client reads token data from DexScreener and the SOL/USD rate from CoinGecko.
// There is no caching and no retry: every call is one request.
type Client struct {
	dex    *resty.Client
	gecko  *resty.Client
	logger *zap.Logger
}

// NewClient создает новый экземпляр клиента
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.DexScreenerURL == "" {
		cfg.DexScreenerURL = DefaultDexScreenerURL
	}
	if cfg.CoinGeckoURL == "" {
		cfg.CoinGeckoURL = DefaultCoinGeckoURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		dex:    newHTTP(cfg.DexScreenerURL, cfg.Timeout),
		gecko:  newHTTP(cfg.CoinGeckoURL, cfg.Timeout),
		logger: logger.Named("market"),
	}
}

func newHTTP(baseURL string, timeout time.Duration) *resty.Client {
	return resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
}

// Quote returns the first listed pair for token. Failures degrade to an
// unavailable snapshot instead of an error.
func (c *Client) Quote(ctx context.Context, token string) Snapshot {
	resp, err := c.tokenPairs(ctx, token)
	if err != nil {
		c.logger.Warn("Token lookup failed", zap.String("token", token), zap.Error(err))
		return unavailable(token)
	}
	if len(resp.Pairs) == 0 {
		c.logger.Debug("No pairs listed", zap.String("token", token))
		return unavailable(token)
	}
	return snapshotFromPair(token, resp.Pairs[0])
}

// Price returns the native price of token, zero when unknown.
func (c *Client) Price(ctx context.Context, token string) float64 {
	return c.Quote(ctx, token).Price
}

// MarketCap returns the market cap of token, zero when unknown.
func (c *Client) MarketCap(ctx context.Context, token string) float64 {
	return c.Quote(ctx, token).MarketCap
}

// Name returns the display name of token, UnknownName when unknown.
func (c *Client) Name(ctx context.Context, token string) string {
	return c.Quote(ctx, token).Name
}

func (c *Client) tokenPairs(ctx context.Context, token string) (*DexScreenerResponse, error) {
	var out DexScreenerResponse
	resp, err := c.dex.R().
		SetContext(ctx).
		SetPathParam("token", token).
		SetResult(&out).
		Get("/latest/dex/tokens/{token}")
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode(), resp.String())
	}
	return &out, nil
}

// LatestPairs reads a pairs feed (same schema as the token endpoint).
// feedURL may be absolute or relative to the DexScreener base URL.
func (c *Client) LatestPairs(ctx context.Context, feedURL string) ([]PairInfo, error) {
	var out DexScreenerResponse
	resp, err := c.dex.R().
		SetContext(ctx).
		SetResult(&out).
		Get(feedURL)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode())
	}
	return out.Pairs, nil
}

type simplePrice map[string]map[string]float64

// SolUSD returns the SOL price in USD. ok is false when the rate is unavailable.
func (c *Client) SolUSD(ctx context.Context) (float64, bool) {
	var out simplePrice
	resp, err := c.gecko.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"ids": "solana", "vs_currencies": "usd"}).
		SetResult(&out).
		Get("/api/v3/simple/price")
	if err != nil {
		c.logger.Warn("SOL/USD lookup failed", zap.Error(err))
		return 0, false
	}
	if resp.IsError() {
		c.logger.Warn("SOL/USD lookup failed", zap.Int("status", resp.StatusCode()))
		return 0, false
	}
	usd, ok := out["solana"]["usd"]
	return usd, ok && usd > 0
}

func snapshotFromPair(token string, p PairInfo) Snapshot {
	price, _ := strconv.ParseFloat(p.PriceNative, 64)
	name := p.BaseToken.Name
	if name == "" {
		name = UnknownName
	}
	return Snapshot{
		Token:     token,
		Price:     price,
		MarketCap: p.MarketCap,
		Name:      name,
		Symbol:    p.BaseToken.Symbol,
		ImageURL:  p.Info.ImageURL,
		Available: true,
	}
}
