package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNew_Defaults(t *testing.T) {
	t.Setenv("MYSQL_DSN", "")
	t.Setenv("MATCH_DAILY_LIKE_CAP", "")

	cfg := New()

	assert.Equal(t, 25, cfg.Match.DailyLikeCap)
	assert.True(t, cfg.Match.AllowRediscovery)
	assert.Equal(t, "sql", cfg.Chat.Backend)
	assert.Equal(t, time.Hour, cfg.Match.StatsTTL)
	assert.Contains(t, cfg.DB.DSN, "@tcp(localhost:3306)/shaadimantra")
}

func TestNew_Overrides(t *testing.T) {
	t.Setenv("MYSQL_DSN", "u:p@tcp(db:3306)/x")
	t.Setenv("MATCH_DAILY_LIKE_CAP", "3")
	t.Setenv("MATCH_ALLOW_REDISCOVERY", "no")
	t.Setenv("MATCH_STATS_TTL", "90s")
	t.Setenv("KAFKA_BROKERS", "k1:9092, ,k2:9092")
	t.Setenv("REDIS_DB", "not-a-number")

	cfg := New()

	assert.Equal(t, "u:p@tcp(db:3306)/x", cfg.DB.DSN)
	assert.Equal(t, 3, cfg.Match.DailyLikeCap)
	assert.False(t, cfg.Match.AllowRediscovery)
	assert.Equal(t, 90*time.Second, cfg.Match.StatsTTL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Events.KafkaBrokers)
	assert.Equal(t, 0, cfg.Redis.DB)
}
