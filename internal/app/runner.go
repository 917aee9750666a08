// internal/app/runner.go
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-tg-bot/internal/blockchain/solbc"
	"github.com/rovshanmuradov/solana-tg-bot/internal/bot"
	"github.com/rovshanmuradov/solana-tg-bot/internal/config"
	"github.com/rovshanmuradov/solana-tg-bot/internal/httpapi"
	"github.com/rovshanmuradov/solana-tg-bot/internal/license"
	"github.com/rovshanmuradov/solana-tg-bot/internal/market"
	"github.com/rovshanmuradov/solana-tg-bot/internal/report"
	"github.com/rovshanmuradov/solana-tg-bot/internal/session"
	"github.com/rovshanmuradov/solana-tg-bot/internal/telegram"
	"github.com/rovshanmuradov/solana-tg-bot/internal/trading"
	"github.com/rovshanmuradov/solana-tg-bot/internal/wallet"
)

// Runner собирает все компоненты из конфигурации и управляет их жизненным циклом.
type Runner struct {
	cfg      *config.Config
	logger   *zap.Logger
	service  *bot.BotService
	shutdown *bot.ShutdownHandler
}

func NewRunner(cfg *config.Config, logger *zap.Logger) *Runner {
	return &Runner{
		cfg:      cfg,
		logger:   logger,
		shutdown: bot.NewShutdownHandler(logger, bot.DefaultShutdownTimeout),
	}
}

// Shutdown exposes the handler so callers can register their own closers.
func (r *Runner) Shutdown() *bot.ShutdownHandler { return r.shutdown }

// Service returns the service built by Build.
func (r *Runner) Service() *bot.BotService { return r.service }

// Build validates the license and wires sessions, market data, the chain
// client and the bot service. notifier receives out-of-band messages.
func (r *Runner) Build(ctx context.Context, notifier bot.Notifier) error {
	cfg := r.cfg

	if err := license.Validate(ctx, license.Settings{
		Key:          cfg.License,
		AccountID:    cfg.KeygenAccountID,
		ProductToken: cfg.KeygenProductToken,
		ProductID:    cfg.KeygenProductID,
	}, r.logger); err != nil {
		return fmt.Errorf("license validation failed: %w", err)
	}

	vault, err := r.openVault()
	if err != nil {
		return err
	}

	chain := solbc.NewClient(cfg.RPC(), r.logger)
	mkt := market.NewClient(market.Config{
		DexScreenerURL: cfg.DexScreenerURL,
		CoinGeckoURL:   cfg.CoinGeckoURL,
	}, r.logger)

	fees := trading.Fees{Buffer: cfg.GasBuffer, Congestion: cfg.CongestionFee}
	factory := func(w *wallet.Wallet) *trading.Engine {
		return trading.NewEngine(trading.Config{
			Wallet:      w,
			Chain:       chain,
			Market:      mkt,
			DefaultFees: fees,
			JitterMax:   cfg.JitterMax(),
			ExplorerURL: cfg.ExplorerURL,
			Logger:      r.logger,
		})
	}
	store := session.NewStore(vault, factory, session.Options{NameCooldown: cfg.NameUpdateCooldown}, r.logger)

	history, err := report.OpenCardHistory(cfg.CardRetention, r.logger)
	if err != nil {
		return fmt.Errorf("open card history: %w", err)
	}
	r.shutdown.Add("card_history", history)

	r.service = bot.NewBotService(bot.ServiceConfig{
		Store:              store,
		History:            history,
		Exporter:           report.NewExporter(r.logger),
		Notifier:           notifier,
		Pairs:              mkt,
		OwnerChatID:        cfg.OwnerChatID,
		ManualSellInterval: cfg.ManualSellInterval,
		LimitOrderInterval: cfg.LimitOrderInterval,
		NewTokenInterval:   cfg.NewTokenInterval,
		NewTokenFeedURL:    cfg.NewTokenFeedURL,
		Logger:             r.logger,
	})

	r.logger.Info("📋 Configuration loaded",
		zap.String("rpc", cfg.RPC()),
		zap.Duration("manual_sell_interval", cfg.ManualSellInterval),
		zap.Duration("limit_order_interval", cfg.LimitOrderInterval),
		zap.Bool("new_token_watcher", cfg.NewTokenFeedURL != ""))
	return nil
}

func (r *Runner) openVault() (*session.Vault, error) {
	if r.cfg.VaultKey == "" {
		r.logger.Warn("vault_key is not set, using a random key for this run")
		return session.NewRandomVault()
	}
	key, err := session.ParseMasterKey(r.cfg.VaultKey)
	if err != nil {
		return nil, fmt.Errorf("invalid vault_key: %w", err)
	}
	return session.NewVault(key)
}

// RunTelegram builds the Telegram transports (long polling or webhook) and
// runs the service until ctx ends.
func (r *Runner) RunTelegram(ctx context.Context) error {
	if err := r.cfg.RequireTelegram(); err != nil {
		return err
	}
	client, err := telegram.NewClient(telegram.Config{
		Token:       r.cfg.TelegramToken,
		BaseURL:     r.cfg.TelegramAPIURL,
		PollTimeout: r.cfg.PollTimeout,
	}, r.logger)
	if err != nil {
		return err
	}

	if err := r.Build(ctx, client); err != nil {
		return err
	}

	dispatcher := telegram.NewDispatcher(r.service.Router(), client, r.logger)
	if r.cfg.WebhookListen != "" {
		server, err := httpapi.NewServer(httpapi.Config{
			Listen:     r.cfg.WebhookListen,
			Secret:     r.cfg.WebhookSecret,
			Dispatcher: dispatcher,
			Status:     r.Status,
			Logger:     r.logger,
		})
		if err != nil {
			return err
		}
		r.service.AddTransport(server)
	} else {
		r.service.AddTransport(telegram.NewPoller(client, dispatcher, r.logger))
	}

	return r.Run(ctx)
}

// Run runs the built service and then closes everything registered for shutdown.
func (r *Runner) Run(ctx context.Context) error {
	if r.service == nil {
		return fmt.Errorf("runner is not built")
	}

	runErr := r.service.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.shutdown.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("Shutdown finished with errors", zap.Error(err))
	}

	r.logger.Info("👋 Bot shutting down gracefully")
	return runErr
}

// Status reports sessions and poller counters for the health endpoint.
func (r *Runner) Status() httpapi.Status {
	st := httpapi.Status{}
	if r.service == nil {
		return st
	}
	st.Sessions = r.service.Store().Len()
	for _, p := range r.service.Pollers() {
		runs, skipped := p.Stats()
		st.Pollers = append(st.Pollers, httpapi.PollerStatus{Name: p.Name(), Runs: runs, Skipped: skipped})
	}
	return st
}
