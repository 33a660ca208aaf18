package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/oggyb/shaadimantra/internal/app"
	"github.com/oggyb/shaadimantra/internal/config"
	"github.com/oggyb/shaadimantra/internal/db"
	"github.com/oggyb/shaadimantra/internal/httpapi"
	"github.com/oggyb/shaadimantra/internal/logger"
	"github.com/oggyb/shaadimantra/internal/server"
	"github.com/oggyb/shaadimantra/internal/service/admin"
	"github.com/oggyb/shaadimantra/internal/service/connection"
	"github.com/oggyb/shaadimantra/internal/service/match"
	"github.com/oggyb/shaadimantra/internal/service/messages"
	"github.com/oggyb/shaadimantra/internal/service/profiles"
)

func main() {
	cfg := config.New()

	// Init logger (global singleton)
	logger.InitFromConfig(cfg)
	log := logger.L()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appCtx, cleanup, err := app.Bootstrap(ctx, cfg, log)
	if err != nil {
		log.Error("failed to start", "err", err)
		cleanup()
		os.Exit(1)
	}
	defer cleanup()

	if cfg.App.ENV != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	if cfg.App.ENV == "development" && os.Getenv("SEED") != "" {
		if err := db.SeedTestData(appCtx.DB, log); err != nil {
			log.Error("failed to seed", "err", err)
		}
	}

	grpcServer := server.NewGRPCServer(log, appCtx.Verifier,
		match.NewRegistrar(appCtx),
		connection.NewRegistrar(appCtx),
		messages.NewRegistrar(appCtx),
		profiles.NewRegistrar(appCtx),
		admin.NewRegistrar(appCtx),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		appCtx.Hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		log.Info("starting gRPC server", "addr", cfg.GRPC.Host+":"+cfg.GRPC.Port)
		return server.StartGRPCServer(gctx, cfg, grpcServer)
	})
	g.Go(func() error {
		log.Info("starting HTTP server", "addr", cfg.HTTP.Host+":"+cfg.HTTP.Port)
		return httpapi.Serve(gctx, cfg, httpapi.NewRouter(appCtx))
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped", "err", err)
		cleanup()
		os.Exit(1)
	}
	log.Info("shut down cleanly")
}
