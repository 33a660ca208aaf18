package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/oggyb/shaadimantra/internal/cache"
	"github.com/oggyb/shaadimantra/internal/chat"
	"github.com/oggyb/shaadimantra/internal/config"
	"github.com/oggyb/shaadimantra/internal/db"
	"github.com/oggyb/shaadimantra/internal/events"
	"github.com/oggyb/shaadimantra/internal/realtime"
	"github.com/oggyb/shaadimantra/internal/repository"
	"github.com/oggyb/shaadimantra/internal/repository/mongostore"
)

// Bootstrap connects everything cfg names and wires the services on top.
// The returned function releases the connections in reverse order; it is
// safe to call even when Bootstrap failed half way.
func Bootstrap(ctx context.Context, cfg *config.Config, log *slog.Logger) (*AppContext, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	// Init DB
	database, err := db.NewDB(cfg)
	if err != nil {
		return nil, cleanup, fmt.Errorf("init db: %w", err)
	}
	if sqlDB, err := database.DB(); err == nil {
		closers = append(closers, func() { _ = sqlDB.Close() })
	}

	// Init Redis
	redisCache := cache.NewRedisCache(cfg)
	closers = append(closers, func() { _ = redisCache.Close() })
	if err := redisCache.Ping(ctx); err != nil {
		return nil, cleanup, fmt.Errorf("connect to redis: %w", err)
	}

	pub, err := events.NewFromConfig(cfg, log)
	if err != nil {
		return nil, cleanup, fmt.Errorf("init events sink: %w", err)
	}
	closers = append(closers, func() { _ = pub.Close() })

	var threads chat.ThreadStore
	switch cfg.Chat.Backend {
	case "", "sql":
		threads = repository.NewChatThreadRepository(database)
	case "mongo":
		client, err := mongostore.Connect(ctx, cfg.Mongo.URI)
		if err != nil {
			return nil, cleanup, fmt.Errorf("connect to mongo: %w", err)
		}
		closers = append(closers, func() { _ = client.Disconnect(context.Background()) })

		store := mongostore.NewChatThreadStore(client.Database(cfg.Mongo.Database))
		if err := store.EnsureIndexes(ctx); err != nil {
			return nil, cleanup, fmt.Errorf("mongo indexes: %w", err)
		}
		threads = store
	default:
		return nil, cleanup, fmt.Errorf("unknown chat backend %q", cfg.Chat.Backend)
	}

	deps := Deps{
		DB:         database,
		RedisCache: redisCache,
		Threads:    threads,
		Events:     pub,
		Logger:     log,
	}
	switch cfg.Realtime.Bridge {
	case "", "local":
	case "redis":
		deps.Bridge = realtime.NewRedisBridge(redisCache, cfg.Realtime.Channel, log)
	default:
		return nil, cleanup, fmt.Errorf("unknown realtime bridge %q", cfg.Realtime.Bridge)
	}

	log.Info("infrastructure ready",
		"chat_backend", cfg.Chat.Backend, "events_sink", cfg.Events.Sink, "realtime_bridge", cfg.Realtime.Bridge)
	return New(cfg, deps), cleanup, nil
}
