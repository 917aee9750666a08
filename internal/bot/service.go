// internal/bot/service.go
package bot

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/solana-tg-bot/internal/report"
	"github.com/rovshanmuradov/solana-tg-bot/internal/session"
)

const (
	DefaultManualSellInterval = 300 * time.Second
	DefaultLimitOrderInterval = 60 * time.Second
	DefaultNewTokenInterval   = 300 * time.Second
)

// Transport delivers chat messages to the router until ctx ends.
type Transport interface {
	Run(ctx context.Context) error
}

// ServiceConfig configuration for BotService
type ServiceConfig struct {
	Store       *session.Store
	History     *report.CardHistory
	Exporter    *report.Exporter
	Notifier    Notifier
	Pairs       PairFeed
	OwnerChatID int64

	ManualSellInterval time.Duration
	LimitOrderInterval time.Duration
	NewTokenInterval   time.Duration
	NewTokenFeedURL    string // empty disables the new-token watcher

	Logger *zap.Logger
}

// BotService wires the command and event buses, the router and the pollers,
// and runs them together with the chat transports.
type BotService struct {
	store      *session.Store
	commandBus *CommandBus
	eventBus   *EventBus
	router     *Router
	notifier   Notifier
	history    *report.CardHistory
	pollers    []*Poller
	transports []Transport
	logger     *zap.Logger
}

// NewBotService creates a new unified bot service
func NewBotService(cfg ServiceConfig) *BotService {
	logger := cfg.Logger.Named("bot_service")

	if cfg.ManualSellInterval <= 0 {
		cfg.ManualSellInterval = DefaultManualSellInterval
	}
	if cfg.LimitOrderInterval <= 0 {
		cfg.LimitOrderInterval = DefaultLimitOrderInterval
	}
	if cfg.NewTokenInterval <= 0 {
		cfg.NewTokenInterval = DefaultNewTokenInterval
	}
	if cfg.Exporter == nil {
		cfg.Exporter = report.NewExporter(cfg.Logger)
	}

	commandBus := NewCommandBus(logger)
	eventBus := NewEventBus(logger)

	NewHandlers(HandlersConfig{
		Store:       cfg.Store,
		Events:      eventBus,
		Exporter:    cfg.Exporter,
		History:     cfg.History,
		OwnerChatID: cfg.OwnerChatID,
		Logger:      logger,
	}).Register(commandBus)

	s := &BotService{
		store:      cfg.Store,
		commandBus: commandBus,
		eventBus:   eventBus,
		router:     NewRouter(commandBus, logger),
		notifier:   cfg.Notifier,
		history:    cfg.History,
		logger:     logger,
	}

	s.pollers = append(s.pollers,
		NewPoller("manual_sells", cfg.ManualSellInterval, ManualSellCheck(cfg.Store, eventBus), logger),
		NewPoller("limit_orders", cfg.LimitOrderInterval, LimitOrderCheck(cfg.Store, eventBus), logger),
	)
	if cfg.NewTokenFeedURL != "" && cfg.Pairs != nil {
		s.pollers = append(s.pollers,
			NewPoller("new_tokens", cfg.NewTokenInterval,
				NewTokenCheck(cfg.Store, cfg.Pairs, cfg.NewTokenFeedURL, eventBus, logger), logger))
	}

	logger.Info("✅ Bot service initialized",
		zap.Strings("commands", commandBus.GetRegisteredHandlers()),
		zap.Int("pollers", len(s.pollers)))
	return s
}

func (s *BotService) Router() *Router         { return s.router }
func (s *BotService) EventBus() *EventBus     { return s.eventBus }
func (s *BotService) CommandBus() *CommandBus { return s.commandBus }
func (s *BotService) Pollers() []*Poller      { return s.pollers }
func (s *BotService) Store() *session.Store   { return s.store }

// SetNotifier replaces the notification sink; call before Run.
func (s *BotService) SetNotifier(n Notifier) {
	s.notifier = n
}

// AddTransport registers a transport to run alongside the pollers.
func (s *BotService) AddTransport(t Transport) {
	s.transports = append(s.transports, t)
}

// Run starts pollers and transports and blocks until ctx is cancelled or
// one of them fails. Pending notifications are drained before returning.
func (s *BotService) Run(ctx context.Context) error {
	s.eventBus.Subscribe(NewNotifications(ctx, s.store, s.history, s.notifier, s.logger))

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range s.pollers {
		g.Go(func() error { return p.Run(gctx) })
	}
	for _, t := range s.transports {
		g.Go(func() error { return t.Run(gctx) })
	}

	s.logger.Info("🚀 Bot service running",
		zap.Int("pollers", len(s.pollers)),
		zap.Int("transports", len(s.transports)))

	err := g.Wait()
	s.eventBus.Wait()
	s.logger.Info("Bot service stopped")
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
