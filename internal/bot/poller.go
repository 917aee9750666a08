// internal/bot/poller.go
package bot

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Poller runs fn immediately and then on every tick of interval.
// A tick that arrives while the previous run is still going is skipped.
// Errors and panics of fn are logged; the loop keeps going until ctx ends.
type Poller struct {
	name     string
	interval time.Duration
	fn       func(ctx context.Context) error
	logger   *zap.Logger

	running atomic.Bool
	runs    atomic.Int64
	skipped atomic.Int64
	wg      sync.WaitGroup
}

func NewPoller(name string, interval time.Duration, fn func(ctx context.Context) error, logger *zap.Logger) *Poller {
	return &Poller{
		name:     name,
		interval: interval,
		fn:       fn,
		logger:   logger.Named("poller").With(zap.String("poller", name)),
	}
}

func (p *Poller) Name() string { return p.name }

// Run blocks until ctx is cancelled and the in-flight run has returned.
func (p *Poller) Run(ctx context.Context) error {
	if p.interval <= 0 {
		return fmt.Errorf("poller %s: interval must be positive", p.name)
	}
	p.logger.Info("Poller started", zap.Duration("interval", p.interval))
	defer p.wg.Wait()

	p.trigger(ctx)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Poller stopped",
				zap.Int64("runs", p.runs.Load()),
				zap.Int64("skipped", p.skipped.Load()))
			return nil
		case <-ticker.C:
			p.trigger(ctx)
		}
	}
}

// trigger starts a run in the background unless one is in progress.
func (p *Poller) trigger(ctx context.Context) bool {
	if !p.running.CompareAndSwap(false, true) {
		p.skipped.Add(1)
		p.logger.Debug("Previous run still in progress, skipping tick")
		return false
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.running.Store(false)
		p.RunOnce(ctx)
	}()
	return true
}

// RunOnce executes fn synchronously, recovering from panics.
func (p *Poller) RunOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Recovered from panic in poller", zap.Any("panic", r))
		}
	}()
	p.runs.Add(1)
	start := time.Now()
	if err := p.fn(ctx); err != nil {
		p.logger.Error("Poll failed", zap.Error(err))
		return
	}
	p.logger.Debug("Poll finished", zap.Duration("took", time.Since(start)))
}

// Stats returns the number of started runs and skipped ticks.
func (p *Poller) Stats() (runs, skipped int64) {
	return p.runs.Load(), p.skipped.Load()
}
