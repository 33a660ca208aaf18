// Command migrate-chat moves legacy per-message rows into consolidated
// threads. It can be interrupted at any point and started again.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oggyb/shaadimantra/internal/app"
	"github.com/oggyb/shaadimantra/internal/config"
	"github.com/oggyb/shaadimantra/internal/logger"
)

func main() {
	batch := flag.Int("batch", 100, "connections fetched per round")
	flag.Parse()

	cfg := config.New()
	logger.InitFromConfig(cfg)
	log := logger.With("cmd", "migrate-chat")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appCtx, cleanup, err := app.Bootstrap(ctx, cfg, log)
	if err != nil {
		log.Error("failed to start", "err", err)
		cleanup()
		os.Exit(1)
	}
	defer cleanup()

	start := time.Now()
	n, err := appCtx.Chat.MigrateAll(ctx, *batch)
	if err != nil {
		log.Error("migration stopped", "migrated", n, "err", err, logger.Since(start))
		cleanup()
		os.Exit(1)
	}
	log.Info("migration completed", "migrated", n, logger.Since(start))
}
