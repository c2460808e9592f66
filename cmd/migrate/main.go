package main

import (
	"errors"
	"flag"
	"fmt"
	"log"

	"apparel-service/config"
	"apparel-service/internal/util"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
)

func main() {
	direction := flag.String("direction", "up", "up, down or steps")
	steps := flag.Int("steps", 1, "number of migrations for -direction=steps (negative rolls back)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()
	logger := util.GetLogger()

	m, err := migrate.New(fmt.Sprintf("file://%s", cfg.Database.MigrationsDir), cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to create migrate instance", zap.Error(err))
	}
	defer m.Close()

	switch *direction {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	case "steps":
		err = m.Steps(*steps)
	default:
		logger.Fatal("Unknown direction", zap.String("direction", *direction))
	}

	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("No migrations to apply")
		return
	}
	if err != nil {
		logger.Fatal("Migration failed", zap.String("direction", *direction), zap.Error(err))
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		logger.Fatal("Failed to read migration version", zap.Error(err))
	}
	logger.Info("Migrations completed", zap.Uint("version", version), zap.Bool("dirty", dirty))
}
