package trading

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger_FirstOpenWins(t *testing.T) {
	l := NewLedger()
	l.Append(Position{TokenAddress: "T", Amount: 1, TxID: "a"})
	l.Append(Position{TokenAddress: "X", Amount: 5, TxID: "b"})
	l.Append(Position{TokenAddress: "T", Amount: 2, TxID: "c"})

	p, idx, ok := l.FirstOpen("T")
	require.True(t, ok)
	assert.Equal(t, 0, idx)
	assert.Equal(t, "a", p.TxID)

	at := time.Unix(1700000000, 0)
	closed, ok := l.CloseFirstOpen("T", 42, at)
	require.True(t, ok)
	assert.Equal(t, "a", closed.TxID)
	assert.Equal(t, at, *closed.SellTime)

	p, idx, ok = l.FirstOpen("T")
	require.True(t, ok)
	assert.Equal(t, 2, idx)
	assert.Equal(t, "c", p.TxID)

	first, ok := l.First("T")
	require.True(t, ok)
	assert.Equal(t, "a", first.TxID)

	assert.Equal(t, 7.0, l.OpenAmount())
	assert.Len(t, l.Open(), 2)
}

func TestLedger_CloseAt(t *testing.T) {
	l := NewLedger()
	l.Append(Position{TokenAddress: "T", Amount: 1})

	_, ok := l.CloseAt(0, 10, time.Now())
	assert.True(t, ok)
	_, ok = l.CloseAt(0, 20, time.Now())
	assert.False(t, ok, "closes exactly once")
	assert.Equal(t, 10.0, *l.Positions()[0].SellMarketCap)

	_, ok = l.CloseAt(5, 10, time.Now())
	assert.False(t, ok)
	assert.False(t, l.MarkManual(-1))
}

func TestLedger_PositionsAreCopies(t *testing.T) {
	l := NewLedger()
	l.Append(Position{TokenAddress: "T", Amount: 1})
	l.CloseFirstOpen("T", 10, time.Now())

	snapshot := l.Positions()
	*snapshot[0].SellMarketCap = 999
	snapshot[0].Amount = 50

	again := l.Positions()
	assert.Equal(t, 10.0, *again[0].SellMarketCap)
	assert.Equal(t, 1.0, again[0].Amount)
}

func TestPosition_Multiple(t *testing.T) {
	p := Position{BuyMarketCap: 100}
	assert.Equal(t, 2.5, p.Multiple(250))
	assert.Zero(t, Position{}.Multiple(250))
	assert.Zero(t, p.Multiple(0))
}

func TestOrderBook_RemoveKeepsOrder(t *testing.T) {
	b := NewOrderBook()
	b.Add(LimitOrder{ID: "1"})
	b.Add(LimitOrder{ID: "2"})
	b.Add(LimitOrder{ID: "3"})

	assert.True(t, b.Remove("2"))
	assert.False(t, b.Remove("2"))

	orders := b.Orders()
	require.Len(t, orders, 2)
	assert.Equal(t, "1", orders[0].ID)
	assert.Equal(t, "3", orders[1].ID)
}

func TestParseAmount(t *testing.T) {
	d, err := ParseAmount(" 0.25 ")
	require.NoError(t, err)
	assert.True(t, d.Equal(decimal.RequireFromString("0.25")))

	largest, err := ParseAmount("9223372036.854775807")
	require.NoError(t, err)
	assert.Equal(t, "9223372036.854775807", largest.String())

	for _, in := range []string{"", "abc", "-0.1", "1,5", "9223372036.854775808", "20000000000"} {
		_, err := ParseAmount(in)
		assert.Error(t, err, in)
	}
}

func TestParsePercentage(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"", 100},
		{"50", 50},
		{"50%", 50},
		{"0", 100},
		{"-5", 100},
		{"250", 100},
		{"100", 100},
	}
	for _, tt := range tests {
		got, err := ParsePercentage(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParsePercentage("half")
	assert.Error(t, err)
}

func TestParseSellPercentage(t *testing.T) {
	for in, want := range map[string]float64{"": 100, "25": 25, "25%": 25, "100": 100} {
		got, err := ParseSellPercentage(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, in := range []string{"0", "-5", "150", "half"} {
		_, err := ParseSellPercentage(in)
		assert.Error(t, err, in)
	}
}

func TestLamports(t *testing.T) {
	tests := []struct {
		in   string
		want uint64
	}{
		{"1.5", 1_500_000_000},
		{"0.0000000019", 1},
		{"9223372036.854775807", math.MaxInt64},
	}
	for _, tt := range tests {
		got, err := ToLamports(decimal.RequireFromString(tt.in))
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, in := range []string{"20000000000", "100000000000", "-1"} {
		_, err := ToLamports(decimal.RequireFromString(in))
		assert.Error(t, err, in)
	}
	assert.Equal(t, "2.5", FromLamports(2_500_000_000).String())
}

func TestParseFees(t *testing.T) {
	f, err := ParseFees("", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultFees, f.resolve(DefaultFees))

	f, err = ParseFees("0.01", "0.02")
	require.NoError(t, err)
	assert.Equal(t, Fees{Buffer: 0.01, Congestion: 0.02}, f)

	_, err = ParseFees("x", "")
	assert.Error(t, err)
}
