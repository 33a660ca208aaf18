package app

import (
	"log/slog"

	"gorm.io/gorm"

	"github.com/oggyb/shaadimantra/internal/auth"
	"github.com/oggyb/shaadimantra/internal/cache"
	"github.com/oggyb/shaadimantra/internal/chat"
	"github.com/oggyb/shaadimantra/internal/config"
	"github.com/oggyb/shaadimantra/internal/events"
	"github.com/oggyb/shaadimantra/internal/matching"
	"github.com/oggyb/shaadimantra/internal/profile"
	"github.com/oggyb/shaadimantra/internal/realtime"
	"github.com/oggyb/shaadimantra/internal/stats"
)

// AppContext holds shared dependencies (DB, Redis, Logger, etc.) and the
// services built on top of them.
type AppContext struct {
	Config     *config.Config
	DB         *gorm.DB
	RedisCache *cache.RedisCache
	Logger     *slog.Logger
	Events     events.Publisher
	Verifier   *auth.Verifier

	Matching *matching.Service
	Chat     *chat.Service
	Profiles *profile.Service
	Stats    *stats.Service
	Hub      *realtime.Hub
}

// Deps are the infrastructure pieces New wires services from. RedisCache
// and Bridge may be nil.
type Deps struct {
	DB         *gorm.DB
	RedisCache *cache.RedisCache
	Threads    chat.ThreadStore
	Events     events.Publisher
	Bridge     realtime.Bridge
	Logger     *slog.Logger
}

// New creates a new AppContext
func New(cfg *config.Config, d Deps) *AppContext {
	ms := matching.NewService(d.DB, d.RedisCache, d.Events, d.Logger, matching.ConfigFrom(cfg))
	cs := chat.NewService(d.Threads, ms.Registry(), d.Events, d.Logger, chat.Config{
		MaxMessageSize: cfg.Chat.MaxMessageSize,
		PageSize:       cfg.Chat.PageSize,
	})
	hub := realtime.NewHub(cs, d.Bridge, d.Logger)
	cs.SetNotifier(hub)

	return &AppContext{
		Config:     cfg,
		DB:         d.DB,
		RedisCache: d.RedisCache,
		Logger:     d.Logger,
		Events:     d.Events,
		Verifier:   auth.NewVerifier(cfg.Auth.JWTSecret),
		Matching:   ms,
		Chat:       cs,
		Profiles:   profile.NewService(d.DB, d.Events, d.Logger, profile.ConfigFrom(cfg)),
		Stats:      stats.NewService(d.DB, ms, d.RedisCache, d.Logger, cfg.Match.StatsTTL),
		Hub:        hub,
	}
}
