// Package testutil wires in-memory SQLite and miniredis for package tests.
package testutil

import (
	"fmt"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/oggyb/shaadimantra/internal/cache"
	"github.com/oggyb/shaadimantra/internal/config"
	"github.com/oggyb/shaadimantra/internal/db"
)

// NewDB opens an isolated in-memory SQLite database with the full schema.
// A single connection keeps SQLite writers serialized, like row locks would.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	database, err := db.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), logger.Silent)
	require.NoError(t, err)

	sqlDB, err := database.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	return database
}

// NewRedis starts a miniredis and returns a cache bound to it.
func NewRedis(t *testing.T) (*cache.RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg := config.New()
	cfg.Redis.Addr = mr.Addr()
	rc := cache.NewRedisCache(cfg)
	t.Cleanup(func() { _ = rc.Close() })

	return rc, mr
}

// SeedProfiles inserts approved, fully usable profiles with the given ids.
// Odd ids are male, even ids female.
func SeedProfiles(t *testing.T, gdb *gorm.DB, ids ...uint64) {
	t.Helper()
	for _, id := range ids {
		gender := "male"
		if id%2 == 0 {
			gender = "female"
		}
		p := db.Profile{
			ID:           id,
			Email:        fmt.Sprintf("user%d@example.com", id),
			FullName:     fmt.Sprintf("User %d", id),
			Gender:       gender,
			City:         "Pune",
			Profession:   "Engineer",
			Status:       db.ProfileApproved,
			Completeness: 80,
		}
		require.NoError(t, gdb.Create(&p).Error)
	}
}
