// internal/httpapi/server.go
package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-tg-bot/internal/telegram"
)

// SecretHeader carries the secret token configured with setWebhook.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

const shutdownTimeout = 5 * time.Second

// PollerStatus is one entry of the health report.
type PollerStatus struct {
	Name    string `json:"name"`
	Runs    int64  `json:"runs"`
	Skipped int64  `json:"skipped"`
}

type Status struct {
	Sessions int            `json:"sessions"`
	Pollers  []PollerStatus `json:"pollers"`
}

// StatusFunc reports the live state for /healthz.
type StatusFunc func() Status

type Config struct {
	Listen     string
	Secret     string
	Dispatcher *telegram.Dispatcher
	Status     StatusFunc
	Logger     *zap.Logger
}

// Server receives Telegram updates by webhook. It implements bot.Transport.
type Server struct {
	listen     string
	secret     string
	dispatcher *telegram.Dispatcher
	status     StatusFunc
	engine     *gin.Engine
	logger     *zap.Logger

	baseCtx context.Context
	wg      sync.WaitGroup
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Secret == "" {
		return nil, errors.New("webhook secret is empty")
	}
	if cfg.Dispatcher == nil {
		return nil, errors.New("dispatcher is nil")
	}

	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		listen:     cfg.Listen,
		secret:     cfg.Secret,
		dispatcher: cfg.Dispatcher,
		status:     cfg.Status,
		logger:     cfg.Logger.Named("webhook"),
		baseCtx:    context.Background(),
	}

	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog())
	r.POST("/telegram/webhook", s.handleWebhook)
	r.GET("/healthz", s.handleHealth)
	s.engine = r
	return s, nil
}

// Handler exposes the routes, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then drains in-flight updates.
func (s *Server) Run(ctx context.Context) error {
	s.baseCtx = ctx
	srv := &http.Server{
		Addr:              s.listen,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Webhook server listening", zap.String("addr", s.listen))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.wg.Wait()
	s.logger.Info("Webhook server stopped")
	return err
}

// Wait blocks until every accepted update has been handled.
func (s *Server) Wait() {
	s.wg.Wait()
}

func (s *Server) handleWebhook(c *gin.Context) {
	got := c.GetHeader(SecretHeader)
	if subtle.ConstantTimeCompare([]byte(got), []byte(s.secret)) != 1 {
		s.logger.Warn("Rejected webhook call with wrong secret", zap.String("ip", c.ClientIP()))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid secret token"})
		return
	}

	var update telegram.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid update"})
		return
	}

	// Telegram ждет быстрый ответ, обработка идет в фоне
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.dispatcher.Dispatch(s.baseCtx, update)
	}()
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleHealth(c *gin.Context) {
	resp := gin.H{"status": "ok"}
	if s.status != nil {
		resp["service"] = s.status()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
