package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	App struct {
		ENV string
	}

	Log struct {
		Level     string
		Format    string
		Component string
		Source    bool
	}

	DB struct {
		DSN      string
		Host     string
		Port     string
		User     string
		Password string
		Name     string
		LogSQL   bool
	}

	Redis struct {
		Addr     string
		Password string
		DB       int
	}

	GRPC struct {
		Host string
		Port string
	}

	HTTP struct {
		Host string
		Port string
	}

	Auth struct {
		JWTSecret string
	}

	Match struct {
		DailyLikeCap     int
		MinCompleteness  int
		AllowRediscovery bool
		StatsTTL         time.Duration
	}

	Chat struct {
		// Backend selects the thread store: "sql" or "mongo".
		Backend        string
		PageSize       int
		MaxMessageSize int
	}

	Mongo struct {
		URI      string
		Database string
	}

	Realtime struct {
		// Bridge is "local" (single instance) or "redis" (fan-out across instances).
		Bridge  string
		Channel string
	}

	Events struct {
		// Sink is "log", "nats" or "kafka".
		Sink          string
		NATSServers   []string
		SubjectPrefix string
		KafkaBrokers  []string
		KafkaTopic    string
	}

	Profile struct {
		RequireInvitation bool
		InvitationTTL     time.Duration
	}
}

func New() *Config {
	cfg := &Config{}

	cfg.App.ENV = getEnvDefault("APP_ENV", "development")

	// Logger
	cfg.Log.Level = getEnvDefault("LOG_LEVEL", "info")
	cfg.Log.Format = getEnvDefault("LOG_FORMAT", "text")
	cfg.Log.Component = getEnvDefault("LOG_COMPONENT", "shaadimantra")
	cfg.Log.Source = isTruthy(os.Getenv("LOG_SOURCE"))

	// Database
	cfg.DB.DSN = os.Getenv("MYSQL_DSN")
	if cfg.DB.DSN == "" {
		cfg.DB.Host = getEnvDefault("DB_HOST", "localhost")
		cfg.DB.Port = getEnvDefault("DB_PORT", "3306")
		cfg.DB.User = getEnvDefault("DB_USER", "root")
		cfg.DB.Password = getEnvDefault("DB_PASSWORD", "root")
		cfg.DB.Name = getEnvDefault("DB_NAME", "shaadimantra")

		cfg.DB.DSN = fmt.Sprintf(
			"%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
			cfg.DB.User, cfg.DB.Password, cfg.DB.Host, cfg.DB.Port, cfg.DB.Name,
		)
	}
	cfg.DB.LogSQL = isTruthy(os.Getenv("DB_LOG_SQL"))

	// Redis
	cfg.Redis.Addr = getEnvDefault("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnvDefault("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	// gRPC
	cfg.GRPC.Host = getEnvDefault("GRPC_HOST", "127.0.0.1")
	cfg.GRPC.Port = getEnvDefault("GRPC_PORT", "50051")

	// HTTP (websocket, health, admin stats)
	cfg.HTTP.Host = getEnvDefault("HTTP_HOST", "127.0.0.1")
	cfg.HTTP.Port = getEnvDefault("HTTP_PORT", "8080")

	cfg.Auth.JWTSecret = getEnvDefault("JWT_SECRET", "dev-secret-change-me")

	// Matching
	cfg.Match.DailyLikeCap = getEnvInt("MATCH_DAILY_LIKE_CAP", 25)
	cfg.Match.MinCompleteness = getEnvInt("MATCH_MIN_COMPLETENESS", 40)
	cfg.Match.AllowRediscovery = isTruthy(getEnvDefault("MATCH_ALLOW_REDISCOVERY", "true"))
	cfg.Match.StatsTTL = getEnvDuration("MATCH_STATS_TTL", time.Hour)

	// Chat
	cfg.Chat.Backend = getEnvDefault("CHAT_BACKEND", "sql")
	cfg.Chat.PageSize = getEnvInt("CHAT_PAGE_SIZE", 50)
	cfg.Chat.MaxMessageSize = getEnvInt("CHAT_MAX_MESSAGE_SIZE", 2000)

	cfg.Mongo.URI = getEnvDefault("MONGO_URI", "mongodb://localhost:27017")
	cfg.Mongo.Database = getEnvDefault("MONGO_DATABASE", "shaadimantra")

	cfg.Realtime.Bridge = getEnvDefault("REALTIME_BRIDGE", "local")
	cfg.Realtime.Channel = getEnvDefault("REALTIME_CHANNEL", "realtime:chat")

	// Events
	cfg.Events.Sink = getEnvDefault("EVENTS_SINK", "log")
	cfg.Events.NATSServers = getEnvList("NATS_SERVERS", "nats://127.0.0.1:4222")
	cfg.Events.SubjectPrefix = getEnvDefault("EVENTS_SUBJECT_PREFIX", "shaadimantra")
	cfg.Events.KafkaBrokers = getEnvList("KAFKA_BROKERS", "127.0.0.1:9092")
	cfg.Events.KafkaTopic = getEnvDefault("KAFKA_TOPIC", "shaadimantra.events")

	cfg.Profile.RequireInvitation = isTruthy(getEnvDefault("PROFILE_REQUIRE_INVITATION", "false"))
	cfg.Profile.InvitationTTL = getEnvDuration("PROFILE_INVITATION_TTL", 7*24*time.Hour)

	return cfg
}

func getEnvDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getEnvInt(k string, def int) int {
	if v, err := strconv.Atoi(getEnvDefault(k, "")); err == nil {
		return v
	}
	return def
}

func getEnvDuration(k string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(getEnvDefault(k, "")); err == nil {
		return d
	}
	return def
}

// getEnvList splits a comma separated value, dropping empty entries.
func getEnvList(k, def string) []string {
	var out []string
	for _, part := range strings.Split(getEnvDefault(k, def), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}
