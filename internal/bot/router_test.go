// internal/bot/router_test.go
package bot

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/solana-tg-bot/internal/report"
	"github.com/rovshanmuradov/solana-tg-bot/internal/session"
	"github.com/rovshanmuradov/solana-tg-bot/internal/trading"
	"github.com/rovshanmuradov/solana-tg-bot/internal/trading/tradingtest"
	"github.com/rovshanmuradov/solana-tg-bot/internal/wallet"
)

const (
	testChat  int64 = 1001
	ownerChat int64 = 7
)

// recordingNotifier collects delivered notifications.
type recordingNotifier struct {
	mu   sync.Mutex
	sent map[int64][]Notification
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{sent: make(map[int64][]Notification)}
}

func (n *recordingNotifier) Notify(_ context.Context, chatID int64, msg Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent[chatID] = append(n.sent[chatID], msg)
	return nil
}

func (n *recordingNotifier) For(chatID int64) []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.sent[chatID]...)
}

type testBot struct {
	svc      *BotService
	store    *session.Store
	chain    *tradingtest.Chain
	market   *tradingtest.Market
	history  *report.CardHistory
	notifier *recordingNotifier
	now      time.Time
}

func newTestBot(t *testing.T, lamports uint64) *testBot {
	t.Helper()
	logger := zaptest.NewLogger(t)

	tb := &testBot{
		chain:    tradingtest.NewChain(lamports),
		market:   tradingtest.NewMarket(),
		notifier: newRecordingNotifier(),
		now:      time.Now().UTC().Truncate(time.Second),
	}
	clock := func() time.Time { return tb.now }

	vault, err := session.NewRandomVault()
	require.NoError(t, err)
	tb.store = session.NewStore(vault, func(w *wallet.Wallet) *trading.Engine {
		e := trading.NewEngine(trading.Config{
			Wallet: w,
			Chain:  tb.chain,
			Market: tb.market,
			Logger: logger,
		})
		e.SetClock(clock)
		return e
	}, session.Options{Now: clock}, logger)

	tb.history, err = report.OpenCardHistory(0, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tb.history.Close() })

	tb.svc = NewBotService(ServiceConfig{
		Store:       tb.store,
		History:     tb.history,
		Notifier:    tb.notifier,
		OwnerChatID: ownerChat,
		Logger:      logger,
	})
	tb.svc.EventBus().Subscribe(NewNotifications(context.Background(), tb.store, tb.history, tb.notifier, logger))
	return tb
}

func (tb *testBot) send(chatID int64, text string) Reply {
	return tb.svc.Router().HandleText(context.Background(), chatID, text)
}

func (tb *testBot) importWallet(t *testing.T, chatID int64) string {
	t.Helper()
	key := solana.NewWallet().PrivateKey.String()
	require.Equal(t, msgImported, tb.send(chatID, "/import "+key).Text)
	return key
}

func sol(v float64) uint64 { return uint64(v * trading.LamportsPerSOL) }

func TestRouter_Start(t *testing.T) {
	tb := newTestBot(t, 0)

	reply := tb.send(testChat, "/start")
	assert.True(t, strings.HasPrefix(reply.Text, "Welcome to Ze King👑 Trading Bot!"))
	assert.Contains(t, reply.Text, "/buy <token> [amount]")

	reply = tb.send(ownerChat, "/start@ZeKingBot")
	assert.True(t, strings.HasPrefix(reply.Text, "Welcome to Ze King👑 Trading Bot Dev⚡!"))
}

func TestRouter_RequiresSession(t *testing.T) {
	tb := newTestBot(t, 0)
	for _, text := range []string{"/buy T", "/sell T", "/orders", "/portfolio", "/positions", "/growth", "/export"} {
		assert.Equal(t, msgNoSession, tb.send(testChat, text).Text, text)
	}
}

func TestRouter_ImportFlow(t *testing.T) {
	tb := newTestBot(t, 0)

	assert.Equal(t, msgInvalidKey, tb.send(testChat, "/import not-a-key").Text)
	assert.Equal(t, msgNoKey, tb.send(testChat, "/viewkey").Text)

	// ключ отдельным сообщением после подсказки
	assert.Equal(t, msgAskKey, tb.send(testChat, "/import").Text)
	key := solana.NewWallet().PrivateKey.String()
	assert.Equal(t, msgImported, tb.send(testChat, key).Text)

	assert.Equal(t, "Your private key: "+wallet.MaskKey(key), tb.send(testChat, "/viewkey").Text)
	assert.Equal(t, msgUnknownCommand, tb.send(testChat, key).Text, "the prompt is consumed once")

	reply := tb.send(testChat, "/start")
	assert.Contains(t, reply.Text, "Name: Ze King👑 1001")
}

func TestRouter_DeleteFlow(t *testing.T) {
	tb := newTestBot(t, 0)
	assert.Equal(t, msgNoKeyToDelete, tb.send(testChat, "/deletekey").Text)

	tb.importWallet(t, testChat)
	assert.Equal(t, "Send /deletekey first.", tb.send(testChat, ConfirmDeletePhrase).Text)

	assert.Equal(t, msgConfirmDelete, tb.send(testChat, "/deletekey").Text)
	assert.Equal(t, msgCancelled, tb.send(testChat, "/cancel").Text)
	assert.Equal(t, msgNothingToCancel, tb.send(testChat, "/cancel").Text)

	tb.send(testChat, "/deletekey")
	assert.Equal(t, msgDeleted, tb.send(testChat, ConfirmDeletePhrase).Text)
	assert.Zero(t, tb.store.Len())
	assert.Equal(t, msgNoSession, tb.send(testChat, "/orders").Text)
}

func TestRouter_InvalidInput(t *testing.T) {
	tb := newTestBot(t, sol(10))
	tb.importWallet(t, testChat)

	tests := []struct {
		text string
		want string
	}{
		{"/buy", msgInvalidFormat},
		{"/swap A B", msgInvalidFormat},
		{"/limit T 1 2", msgInvalidFormat},
		{"/withdraw 1", msgInvalidFormat},
		{"/profit", msgInvalidFormat},
		{"/nope", msgUnknownCommand},
		{"hello", msgUnknownCommand},
		{"/buy T abc", `Invalid input: amount "abc" is not a number`},
		{"/limit T 1 2 hold", `Invalid input: order type must be buy or sell`},
		{"/swap A B 1 x", `Invalid input: fee buffer: amount "x" is not a number`},
		{"/sell T 0", `Invalid input: percentage "0" must be above 0 and at most 100`},
		{"/sell T 150", `Invalid input: percentage "150" must be above 0 and at most 100`},
		{"/swap A B 20000000000", `Invalid input: amount "20000000000" is too large`},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got := tb.send(testChat, tt.text).Text
			if strings.HasPrefix(tt.want, "Invalid input:") {
				assert.True(t, strings.HasPrefix(got, "Invalid input:"), got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Empty(t, tb.chain.Transfers(), "nothing reaches the chain on invalid input")
}

func TestRouter_BuyInsufficientBalance(t *testing.T) {
	tb := newTestBot(t, 0)
	tb.importWallet(t, testChat)

	reply := tb.send(testChat, "/buy T 1")
	assert.Equal(t, "Insufficient balance: have 0 SOL, need 1.002 SOL", reply.Text)
}

func TestRouter_BuySellProducesProfitCard(t *testing.T) {
	tb := newTestBot(t, sol(10))
	tb.importWallet(t, testChat)
	tb.market.SetQuote("TOKEN", 0.001, 100_000)

	reply := tb.send(testChat, "/buy TOKEN 1")
	require.True(t, strings.HasPrefix(reply.Text, "Buy executed for TOKEN: tx-"), reply.Text)

	sess, ok := tb.store.Get(testChat)
	require.True(t, ok)
	assert.Equal(t, "1", sess.LastBuyAmount())
	assert.Equal(t, "TOKEN", sess.LastToken())
	assert.Equal(t, msgNoCard, tb.send(testChat, "/card TOKEN").Text)

	tb.now = tb.now.Add(2*time.Hour + 30*time.Minute)
	tb.market.SetQuote("TOKEN", 0.003, 300_000)
	reply = tb.send(testChat, "/sell TOKEN")
	require.True(t, strings.HasPrefix(reply.Text, "Sell executed for TOKEN: tx-"), reply.Text)
	tb.svc.EventBus().Wait()

	transfers := tb.chain.Transfers()
	require.Len(t, transfers, 2)
	assert.Equal(t, sol(1), transfers[1].Lamports, "100% of the holding is sold")

	sent := tb.notifier.For(testChat)
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Text, "Profit: +3.00x")
	assert.Contains(t, sent[0].Text, "Hold Time: 2h 30m 0s")

	card := tb.send(testChat, "/card TOKEN").Text
	assert.Contains(t, card, "Coin: TOKEN coin")

	growth := sess.Growth()
	require.Len(t, growth, 2)
	assert.Equal(t, 1.0, growth[0].Value)
	assert.Equal(t, 3.0, growth[1].Value)

	// второй продажи позиция уже не касается
	reply = tb.send(testChat, "/sell TOKEN")
	assert.Contains(t, reply.Text, "No open position was tracked for this token.")
	tb.svc.EventBus().Wait()
	assert.Len(t, tb.notifier.For(testChat), 1)
}

func TestRouter_BuyUsesLastAmount(t *testing.T) {
	tb := newTestBot(t, sol(10))
	tb.importWallet(t, testChat)

	tb.send(testChat, "/buy A")
	tb.send(testChat, "/buy B 0.5")
	tb.send(testChat, "/buy C")

	transfers := tb.chain.Transfers()
	require.Len(t, transfers, 3)
	assert.Equal(t, sol(0.1), transfers[0].Lamports)
	assert.Equal(t, sol(0.5), transfers[1].Lamports)
	assert.Equal(t, sol(0.5), transfers[2].Lamports)
}

func TestRouter_SellPercentage(t *testing.T) {
	tb := newTestBot(t, sol(10))
	tb.importWallet(t, testChat)
	tb.send(testChat, "/buy T 2")

	tb.send(testChat, "/sell T 25")
	transfers := tb.chain.Transfers()
	require.Len(t, transfers, 2)
	assert.Equal(t, sol(0.5), transfers[1].Lamports)

	// 0% не превращается в продажу всей позиции
	reply := tb.send(testChat, "/sell T 0")
	assert.True(t, strings.HasPrefix(reply.Text, "Invalid input:"), reply.Text)
	assert.Len(t, tb.chain.Transfers(), 2)
}

func TestRouter_LimitAndOrders(t *testing.T) {
	tb := newTestBot(t, sol(10))
	tb.importWallet(t, testChat)

	assert.Equal(t, "No pending limit orders.", tb.send(testChat, "/orders").Text)
	reply := tb.send(testChat, "/limit T 1 0.5 BUY")
	assert.Equal(t, "Limit buy order set for T at 0.5 SOL for 1 buy", reply.Text)
	tb.send(testChat, "/limit T 1 2 sell 50 0.002 0.003")

	orders := tb.send(testChat, "/orders").Text
	assert.Contains(t, orders, "1. BUY T at 0.5 SOL, amount 1")
	assert.Contains(t, orders, "2. SELL T at 2 SOL, amount 1 (50%)")

	sess, _ := tb.store.Get(testChat)
	o := sess.Engine().Orders().Orders()
	require.Len(t, o, 2)
	assert.Equal(t, 0.002, o[1].FeeBuffer)
	assert.Equal(t, 0.003, o[1].FeeCongestion)
}

func TestRouter_Withdraw(t *testing.T) {
	tb := newTestBot(t, sol(10))
	tb.importWallet(t, testChat)
	tb.market.SetSolUSD(150)
	dest := solana.NewWallet().PublicKey()

	reply := tb.send(testChat, "/withdraw 1 "+dest.String())
	assert.True(t, strings.HasPrefix(reply.Text, "Withdrawal of 1 ◎ ~ $150.00 completed✅"), reply.Text)
	assert.Contains(t, reply.Text, "https://solscan.io/tx/tx-")

	transfers := tb.chain.Transfers()
	require.Len(t, transfers, 1)
	assert.Equal(t, dest, transfers[0].To)

	reply = tb.send(testChat, "/withdraw 1 nowhere")
	assert.True(t, strings.HasPrefix(reply.Text, "Invalid input: invalid destination address"), reply.Text)
}

func TestRouter_SwapLeavesLedger(t *testing.T) {
	tb := newTestBot(t, sol(10))
	tb.importWallet(t, testChat)

	reply := tb.send(testChat, "/swap A B 0.3")
	assert.True(t, strings.HasPrefix(reply.Text, "Swap executed from A to B: tx-"), reply.Text)
	sess, _ := tb.store.Get(testChat)
	assert.Zero(t, sess.Engine().Ledger().Len())
}

func TestRouter_TransferFailure(t *testing.T) {
	tb := newTestBot(t, sol(10))
	tb.importWallet(t, testChat)
	tb.chain.PanicOnTransfer(true)

	reply := tb.send(testChat, "/buy T 1")
	assert.True(t, strings.HasPrefix(reply.Text, "Transaction failed:"), reply.Text)
	sess, _ := tb.store.Get(testChat)
	assert.Zero(t, sess.Engine().Ledger().Len())
}

func TestRouter_Views(t *testing.T) {
	tb := newTestBot(t, sol(10))
	tb.importWallet(t, testChat)
	tb.market.SetQuote("T", 0.001, 100)
	tb.market.SetSolUSD(100)

	assert.Equal(t, "No holdings.", tb.send(testChat, "/portfolio").Text)
	assert.Equal(t, "No active positions.", tb.send(testChat, "/positions").Text)
	assert.Equal(t, "Token not found in portfolio.", tb.send(testChat, "/profit T").Text)

	tb.send(testChat, "/buy T 1")
	tb.market.SetQuote("T", 0.002, 200)

	assert.Contains(t, tb.send(testChat, "/portfolio").Text, "MCap Multiple: 2.00x")
	assert.Equal(t, "Token: T coin\nMCap Multiple: 2.00x", tb.send(testChat, "/profit T").Text)
	positions := tb.send(testChat, "/positions").Text
	assert.Contains(t, positions, "Balance: 10.000 ◎ ($1000.00)")
	assert.Contains(t, positions, "• PNL: 100.00% 🟩")
}

func TestRouter_SetName(t *testing.T) {
	tb := newTestBot(t, 0)
	tb.importWallet(t, testChat)

	assert.Equal(t, "Custom name updated to: Big Boss 🐳", tb.send(testChat, "/setname Big Boss 🐳").Text)
	assert.Equal(t, msgNameCooldown, tb.send(testChat, "/setname Other").Text)

	tb.now = tb.now.Add(session.DefaultNameCooldown)
	assert.Equal(t, "Custom name updated to: Other", tb.send(testChat, "/setname Other").Text)
	assert.Equal(t, msgInvalidFormat, tb.send(testChat, "/setname "+strings.Repeat("x", 40)).Text)
}

func TestRouter_GrowthAndExport(t *testing.T) {
	tb := newTestBot(t, sol(10))
	tb.importWallet(t, testChat)

	reply := tb.send(testChat, "/growth")
	require.NotNil(t, reply.Document)
	assert.Equal(t, "portfolio_growth_1_year.csv", reply.Document.Name)
	assert.True(t, strings.HasPrefix(string(reply.Document.Data), "Date,Growth(x)\n"))
	assert.Contains(t, reply.Text, "Samples: 1")

	reply = tb.send(testChat, "/growth forever")
	assert.Nil(t, reply.Document)
	assert.Contains(t, reply.Text, "last_3_months")

	assert.Equal(t, msgNoExport, tb.send(testChat, "/export").Text)
	tb.send(testChat, "/buy T 1")

	reply = tb.send(testChat, "/export json")
	require.NotNil(t, reply.Document)
	assert.True(t, strings.HasSuffix(reply.Document.Name, ".json"))
	assert.Contains(t, string(reply.Document.Data), `"position_count": 1`)
	assert.Equal(t, "Exported 1 positions.", reply.Text)

	assert.Equal(t, "Supported formats: csv, json.", tb.send(testChat, "/export pdf").Text)
}
