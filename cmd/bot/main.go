// ====================================
// File: cmd/bot/main.go
// ====================================
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-tg-bot/internal/app"
	"github.com/rovshanmuradov/solana-tg-bot/internal/config"
	"github.com/rovshanmuradov/solana-tg-bot/internal/logger"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (json or yaml)")
	envFile := flag.String("env", config.DefaultEnvFile, "Path to env file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath, *envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logCfg := logger.DefaultConfig()
	logCfg.LogFile = cfg.LogFile
	logCfg.Debug = cfg.DebugLogging
	log, closeLog := logger.New(logCfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("🚀 Starting Solana trading bot")

	runner := app.NewRunner(cfg, log)
	runner.Shutdown().AddFunc("log_file", closeLog)
	runErr := runner.RunTelegram(ctx)
	if runErr != nil {
		log.Error("💥 Bot execution error", zap.Error(runErr))
	}
	_ = logger.Sync(log)
	if runErr != nil {
		os.Exit(1)
	}
}
