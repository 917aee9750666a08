package trading

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/solana-tg-bot/internal/trading/tradingtest"
	"github.com/rovshanmuradov/solana-tg-bot/internal/wallet"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, lamports uint64) (*Engine, *tradingtest.Chain, *tradingtest.Market) {
	t.Helper()
	w, err := wallet.NewWallet(solana.NewWallet().PrivateKey.String())
	require.NoError(t, err)

	chain := tradingtest.NewChain(lamports)
	mkt := tradingtest.NewMarket()
	e := NewEngine(Config{
		Wallet: w,
		Chain:  chain,
		Market: mkt,
		Logger: zaptest.NewLogger(t),
	})
	e.SetClock(func() time.Time { return testNow })
	return e, chain, mkt
}

func TestBuy_InsufficientBalance(t *testing.T) {
	// 1.0 + 0.001 + 0.001 required, 1.001 held
	e, chain, _ := newTestEngine(t, 1_001_000_000)

	rcpt, err := e.Buy(context.Background(), "TokenT", "1.0", Fees{}, false)

	require.Error(t, err)
	assert.Nil(t, rcpt)
	assert.True(t, errors.Is(err, ErrInsufficientBalance))
	assert.Equal(t, KindInsufficientBalance, KindOf(err))
	assert.Equal(t, 0, e.Ledger().Len())
	assert.Empty(t, chain.Transfers(), "no submission on insufficient balance")
}

func TestBuy_ExactBalanceIsEnough(t *testing.T) {
	e, _, _ := newTestEngine(t, 1_002_000_000)

	_, err := e.Buy(context.Background(), "TokenT", "1.0", Fees{}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, e.Ledger().Len())
}

func TestBuy_FeeOverridesCountTowardsTotal(t *testing.T) {
	e, _, _ := newTestEngine(t, 1_500_000_000)

	_, err := e.Buy(context.Background(), "TokenT", "1", Fees{Buffer: 0.3, Congestion: 0.3}, false)
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	_, err = e.Buy(context.Background(), "TokenT", "1", Fees{Buffer: 0.2, Congestion: 0.2}, false)
	assert.NoError(t, err)
}

func TestBuy_AppendsOpenPosition(t *testing.T) {
	e, chain, mkt := newTestEngine(t, 5*LamportsPerSOL)
	mkt.SetQuote("TokenT", 0.002, 250_000)

	rcpt, err := e.Buy(context.Background(), "TokenT", "1.5", Fees{}, false)
	require.NoError(t, err)

	require.Equal(t, 1, e.Ledger().Len())
	p := e.Ledger().Positions()[0]
	assert.True(t, p.IsOpen())
	assert.Nil(t, p.SellTime)
	assert.Equal(t, "TokenT", p.TokenAddress)
	assert.Equal(t, 1.5, p.Amount)
	assert.Equal(t, 250_000.0, p.BuyMarketCap)
	assert.Equal(t, testNow, p.Timestamp)
	assert.False(t, p.Manual)
	assert.Equal(t, rcpt.TxID, p.TxID)

	transfers := chain.Transfers()
	require.Len(t, transfers, 1)
	assert.Equal(t, uint64(1_500_000_000), transfers[0].Lamports)
	assert.Equal(t, e.Wallet().PublicKey, transfers[0].To, "placeholder self-transfer")
	assert.True(t, rcpt.LedgerUpdated)
	assert.Contains(t, rcpt.Message, "Buy executed for TokenT")
}

func TestBuy_ManualFlagIsStored(t *testing.T) {
	e, _, _ := newTestEngine(t, 5*LamportsPerSOL)

	_, err := e.Buy(context.Background(), "TokenT", "0.1", Fees{}, true)
	require.NoError(t, err)
	assert.True(t, e.Ledger().Positions()[0].Manual)
}

func TestBuy_UnavailableMarketDataStillRecords(t *testing.T) {
	e, _, _ := newTestEngine(t, 5*LamportsPerSOL)

	_, err := e.Buy(context.Background(), "Unlisted", "1", Fees{}, false)
	require.NoError(t, err)
	assert.Zero(t, e.Ledger().Positions()[0].BuyMarketCap)
}

func TestBuy_InvalidInput(t *testing.T) {
	e, chain, _ := newTestEngine(t, 5*LamportsPerSOL)
	chain.FailBalance(errors.New("must not be called"))

	tests := []struct {
		name   string
		token  string
		amount string
	}{
		{"not a number", "TokenT", "abc"},
		{"negative", "TokenT", "-1"},
		{"empty amount", "TokenT", ""},
		{"empty token", " ", "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Buy(context.Background(), tt.token, tt.amount, Fees{}, false)
			assert.ErrorIs(t, err, ErrInvalidInput)
			assert.Equal(t, 0, e.Ledger().Len())
		})
	}
}

func TestBuy_RemoteFailuresLeaveLedgerUntouched(t *testing.T) {
	t.Run("balance", func(t *testing.T) {
		e, chain, _ := newTestEngine(t, 5*LamportsPerSOL)
		chain.FailBalance(errors.New("rpc timeout"))

		_, err := e.Buy(context.Background(), "TokenT", "1", Fees{}, false)
		assert.ErrorIs(t, err, ErrRemoteCallFailure)
		assert.Contains(t, err.Error(), "rpc timeout")
		assert.Equal(t, 0, e.Ledger().Len())
	})

	t.Run("transfer", func(t *testing.T) {
		e, chain, _ := newTestEngine(t, 5*LamportsPerSOL)
		chain.FailTransfer(errors.New("node is behind"))

		_, err := e.Buy(context.Background(), "TokenT", "1", Fees{}, false)
		assert.ErrorIs(t, err, ErrRemoteCallFailure)
		assert.Equal(t, 0, e.Ledger().Len())
	})

	t.Run("panic", func(t *testing.T) {
		e, chain, _ := newTestEngine(t, 5*LamportsPerSOL)
		chain.PanicOnTransfer(true)

		rcpt, err := e.Buy(context.Background(), "TokenT", "1", Fees{}, false)
		assert.Nil(t, rcpt)
		assert.ErrorIs(t, err, ErrRemoteCallFailure)
		assert.Contains(t, err.Error(), "rpc connection reset")
		assert.Equal(t, 0, e.Ledger().Len())
	})
}

func TestSell_ClosesFirstOpenPositionOnce(t *testing.T) {
	e, _, mkt := newTestEngine(t, 10*LamportsPerSOL)
	ctx := context.Background()
	mkt.SetQuote("TokenT", 0.001, 100_000)

	_, err := e.Buy(ctx, "TokenT", "1", Fees{}, false)
	require.NoError(t, err)
	_, err = e.Buy(ctx, "TokenT", "2", Fees{}, false)
	require.NoError(t, err)

	mkt.SetQuote("TokenT", 0.003, 300_000)
	rcpt, err := e.Sell(ctx, "TokenT", "1", Fees{})
	require.NoError(t, err)
	assert.True(t, rcpt.LedgerUpdated)
	assert.Equal(t, 300_000.0, rcpt.MarketCap)

	positions := e.Ledger().Positions()
	require.Len(t, positions, 2)
	require.NotNil(t, positions[0].SellMarketCap)
	require.NotNil(t, positions[0].SellTime)
	assert.Equal(t, 300_000.0, *positions[0].SellMarketCap)
	assert.True(t, positions[1].IsOpen())

	// second sell targets the next open position
	mkt.SetQuote("TokenT", 0.004, 400_000)
	_, err = e.Sell(ctx, "TokenT", "2", Fees{})
	require.NoError(t, err)
	positions = e.Ledger().Positions()
	assert.Equal(t, 300_000.0, *positions[0].SellMarketCap, "closed position is not touched again")
	require.NotNil(t, positions[1].SellMarketCap)
	assert.Equal(t, 400_000.0, *positions[1].SellMarketCap)

	// nothing left: sell succeeds, ledger unchanged
	rcpt, err = e.Sell(ctx, "TokenT", "1", Fees{})
	require.NoError(t, err)
	assert.False(t, rcpt.LedgerUpdated)
	assert.Nil(t, rcpt.Position)
	assert.Contains(t, rcpt.Message, "No open position")
	assert.Equal(t, 2, e.Ledger().Len())
	assert.Equal(t, 400_000.0, *e.Ledger().Positions()[1].SellMarketCap)
}

func TestSell_WithoutPositionStillSubmits(t *testing.T) {
	e, chain, _ := newTestEngine(t, LamportsPerSOL)

	rcpt, err := e.Sell(context.Background(), "Ghost", "0.5", Fees{})
	require.NoError(t, err)
	assert.False(t, rcpt.LedgerUpdated)
	assert.Len(t, chain.Transfers(), 1)
	assert.Equal(t, 0, e.Ledger().Len())
}

func TestSell_TransferFailure(t *testing.T) {
	e, chain, _ := newTestEngine(t, 5*LamportsPerSOL)
	_, err := e.Buy(context.Background(), "TokenT", "1", Fees{}, false)
	require.NoError(t, err)

	chain.FailTransfer(errors.New("blockhash expired"))
	_, err = e.Sell(context.Background(), "TokenT", "1", Fees{})
	assert.ErrorIs(t, err, ErrRemoteCallFailure)
	assert.True(t, e.Ledger().Positions()[0].IsOpen())
}

func TestSwap_DoesNotTouchLedger(t *testing.T) {
	e, chain, _ := newTestEngine(t, LamportsPerSOL)

	rcpt, err := e.Swap(context.Background(), "TokenA", "TokenB", "0.25", Fees{})
	require.NoError(t, err)
	assert.Equal(t, "Swap executed from TokenA to TokenB: tx-1", rcpt.Message)
	assert.Equal(t, 0, e.Ledger().Len())
	require.Len(t, chain.Transfers(), 1)
	assert.Equal(t, uint64(250_000_000), chain.Transfers()[0].Lamports)

	_, err = e.Swap(context.Background(), "TokenA", "TokenB", "x", Fees{})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestEngine_RejectsAmountsBeyondLamportRange(t *testing.T) {
	e, chain, _ := newTestEngine(t, LamportsPerSOL)
	ctx := context.Background()

	_, err := e.Swap(ctx, "A", "B", "20000000000", Fees{})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = e.Sell(ctx, "T", "100000000000", Fees{})
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Empty(t, chain.Transfers())
}

func TestWithdraw(t *testing.T) {
	dest := solana.NewWallet().PublicKey()

	t.Run("success with usd estimate", func(t *testing.T) {
		e, chain, mkt := newTestEngine(t, 3*LamportsPerSOL)
		mkt.SetSolUSD(150)

		rcpt, err := e.Withdraw(context.Background(), "2", dest.String(), Fees{})
		require.NoError(t, err)
		assert.Equal(t, "tx-1", rcpt.TxID)
		assert.Equal(t, 300.0, rcpt.USDValue)
		assert.Contains(t, rcpt.Message, "~ $300.00")
		assert.Contains(t, rcpt.Message, "https://solscan.io/tx/tx-1")

		transfers := chain.Transfers()
		require.Len(t, transfers, 1)
		assert.Equal(t, dest, transfers[0].To)
		assert.Equal(t, uint64(2*LamportsPerSOL), transfers[0].Lamports)
		assert.Equal(t, 0, e.Ledger().Len())
	})

	t.Run("no usd rate", func(t *testing.T) {
		e, _, _ := newTestEngine(t, 3*LamportsPerSOL)

		rcpt, err := e.Withdraw(context.Background(), "1", dest.String(), Fees{})
		require.NoError(t, err)
		assert.Zero(t, rcpt.USDValue)
		assert.NotContains(t, rcpt.Message, "$")
	})

	t.Run("insufficient balance", func(t *testing.T) {
		e, chain, _ := newTestEngine(t, LamportsPerSOL)

		_, err := e.Withdraw(context.Background(), "1", dest.String(), Fees{})
		assert.ErrorIs(t, err, ErrInsufficientBalance)
		assert.Empty(t, chain.Transfers())
	})

	t.Run("invalid destination", func(t *testing.T) {
		e, chain, _ := newTestEngine(t, 3*LamportsPerSOL)

		_, err := e.Withdraw(context.Background(), "1", "not-an-address", Fees{})
		assert.ErrorIs(t, err, ErrInvalidInput)
		assert.Empty(t, chain.Transfers())
	})
}

func TestSetLimitOrder(t *testing.T) {
	e, _, _ := newTestEngine(t, 0)
	ctx := context.Background()

	rcpt, err := e.SetLimitOrder(ctx, "TokenT", "1", "0.5", "SELL", "", Fees{})
	require.NoError(t, err)
	require.NotNil(t, rcpt.Order)
	assert.Equal(t, OrderSell, rcpt.Order.Type)
	assert.Equal(t, DefaultSellPercentage, rcpt.Order.Percentage)
	assert.Equal(t, DefaultFees, rcpt.Order.Fees())
	assert.NotEmpty(t, rcpt.Order.ID)
	assert.Equal(t, "Limit sell order set for TokenT at 0.5 SOL for 1 sell", rcpt.Message)

	rcpt, err = e.SetLimitOrder(ctx, "TokenT", "2", "0.1", "Buy", "150", Fees{Buffer: 0.01})
	require.NoError(t, err)
	assert.Equal(t, OrderBuy, rcpt.Order.Type)
	assert.Equal(t, 100.0, rcpt.Order.Percentage)
	assert.Equal(t, 0.01, rcpt.Order.FeeBuffer)

	rcpt, err = e.SetLimitOrder(ctx, "TokenT", "2", "0.1", "sell", "25", Fees{})
	require.NoError(t, err)
	assert.Equal(t, 25.0, rcpt.Order.Percentage)

	assert.Equal(t, 3, e.Orders().Len())

	for _, bad := range [][]string{
		{"TokenT", "1", "0.5", "hold", ""},
		{"TokenT", "x", "0.5", "buy", ""},
		{"TokenT", "1", "cheap", "buy", ""},
		{"TokenT", "1", "0.5", "sell", "half"},
	} {
		_, err := e.SetLimitOrder(ctx, bad[0], bad[1], bad[2], bad[3], bad[4], Fees{})
		assert.ErrorIs(t, err, ErrInvalidInput, bad)
	}
	assert.Equal(t, 3, e.Orders().Len())
}

func TestHoldings(t *testing.T) {
	e, _, _ := newTestEngine(t, 5*LamportsPerSOL)
	assert.Zero(t, e.Holdings("TokenT"))

	_, err := e.Buy(context.Background(), "TokenT", "0.75", Fees{}, false)
	require.NoError(t, err)
	assert.Equal(t, 0.75, e.Holdings("TokenT"))
}

func TestScenario_BuyThenSellFully(t *testing.T) {
	e, _, mkt := newTestEngine(t, 2*LamportsPerSOL)
	ctx := context.Background()
	mkt.SetQuote("T", 0.01, 50_000)

	_, err := e.Buy(ctx, "T", "1.0", Fees{}, false)
	require.NoError(t, err)

	open := e.Ledger().Open()
	require.Len(t, open, 1)
	assert.Equal(t, 1.0, open[0].Position.Amount)

	mkt.SetQuote("T", 0.02, 100_000)
	_, err = e.Sell(ctx, "T", FormatSOL(e.Holdings("T")), Fees{})
	require.NoError(t, err)

	assert.Equal(t, 1, e.Ledger().Len())
	p := e.Ledger().Positions()[0]
	assert.False(t, p.IsOpen())
	assert.Equal(t, 100_000.0, *p.SellMarketCap)
	assert.Equal(t, 2.0, p.Multiple(*p.SellMarketCap))
}
