// cmd/console/main.go runs the bot as a local terminal chat, one chat id.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/solana-tg-bot/internal/app"
	"github.com/rovshanmuradov/solana-tg-bot/internal/config"
	"github.com/rovshanmuradov/solana-tg-bot/internal/logger"
	"github.com/rovshanmuradov/solana-tg-bot/internal/ui"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (json or yaml)")
	envFile := flag.String("env", config.DefaultEnvFile, "Path to env file")
	chatID := flag.Int64("chat", 1, "Chat id used for the console session")
	outDir := flag.String("out", "exports", "Directory for exported documents")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath, *envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// логи не пишем в stdout, чтобы не ломать экран
	buf := logger.NewLogBuffer(500)
	logCfg := logger.DefaultConfig()
	logCfg.LogFile = cfg.LogFile
	logCfg.Debug = cfg.DebugLogging
	log, closeLog := logger.NewWithBuffer(logCfg, buf)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	saver := ui.DocumentSaver{Dir: *outDir}
	notifier := ui.NewChannelNotifier(64, saver)

	runner := app.NewRunner(cfg, log)
	runner.Shutdown().AddFunc("log_file", closeLog)
	if err := runner.Build(ctx, notifier); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	program := tea.NewProgram(ui.NewChat(ui.Config{
		Context:  ctx,
		ChatID:   *chatID,
		Handler:  runner.Service().Router(),
		Incoming: notifier.C(),
		Saver:    saver,
		Logs:     buf,
	}), tea.WithAltScreen(), tea.WithContext(ctx))

	g := new(errgroup.Group)
	g.Go(func() error { return runner.Run(ctx) })
	g.Go(func() error {
		defer cancel()
		_, err := program.Run()
		if errors.Is(err, tea.ErrProgramKilled) {
			return nil
		}
		return err
	})

	if err := g.Wait(); err != nil {
		log.Error("💥 Console failed", zap.Error(err))
		fmt.Fprintf(os.Stderr, "console failed: %v\n", err)
		os.Exit(1)
	}
}
