package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/solana-tg-bot/internal/bot"
	"github.com/rovshanmuradov/solana-tg-bot/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadConfig("", "")
	require.NoError(t, err)
	cfg.License = "ABCD-1234-EFGH"
	return cfg
}

func TestRunner_BuildWiresService(t *testing.T) {
	r := NewRunner(testConfig(t), zaptest.NewLogger(t))
	require.NoError(t, r.Build(context.Background(), bot.NotifierFunc(func(context.Context, int64, bot.Notification) error { return nil })))

	svc := r.Service()
	require.NotNil(t, svc)
	assert.Len(t, svc.Pollers(), 2, "new-token watcher is off without a feed url")

	reply := svc.Router().HandleText(context.Background(), 5, "/portfolio")
	assert.Equal(t, "Please import a private key first.", reply.Text)

	st := r.Status()
	assert.Equal(t, 0, st.Sessions)
	assert.Len(t, st.Pollers, 2)

	require.NoError(t, r.Shutdown().Shutdown(context.Background()))
}

func TestRunner_BuildRejectsBadLicenseAndVault(t *testing.T) {
	cfg := testConfig(t)
	cfg.License = ""
	assert.ErrorContains(t, NewRunner(cfg, zaptest.NewLogger(t)).Build(context.Background(), nil), "license")

	cfg = testConfig(t)
	cfg.VaultKey = "not-a-key"
	assert.ErrorContains(t, NewRunner(cfg, zaptest.NewLogger(t)).Build(context.Background(), nil), "vault_key")
}

func TestRunner_RunStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	// большие интервалы: первый проход без сессий ничего не делает
	cfg.ManualSellInterval = time.Hour
	cfg.LimitOrderInterval = time.Hour
	r := NewRunner(cfg, zaptest.NewLogger(t))
	require.NoError(t, r.Build(context.Background(), nil))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop")
	}
}

func TestRunner_RunTelegramRequiresToken(t *testing.T) {
	r := NewRunner(testConfig(t), zaptest.NewLogger(t))
	assert.ErrorContains(t, r.RunTelegram(context.Background()), "telegram_token")
}
