package main

import (
	"os"

	"github.com/oggyb/shaadimantra/internal/config"
	"github.com/oggyb/shaadimantra/internal/db"
	"github.com/oggyb/shaadimantra/internal/logger"
)

func main() {
	// Load configuration
	cfg := config.New()
	logger.InitFromConfig(cfg)
	log := logger.With("cmd", "seed")

	database, err := db.NewDB(cfg)
	if err != nil {
		log.Error("failed to init db", "err", err)
		os.Exit(1)
	}

	if err := db.SeedTestData(database, log); err != nil {
		log.Error("failed to seed", "err", err)
		os.Exit(1)
	}

	log.Info("seeding completed", "invitation_code", db.DevInvitationCode)
}
