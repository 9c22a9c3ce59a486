// migrate applies the embedded SQL migrations for the auth event trail.
package main

import (
	"flag"
	"os"

	"go.uber.org/zap"

	"accountability-assistant/backend/internal/config"
	"accountability-assistant/backend/internal/db/migrate"
	"accountability-assistant/backend/internal/logger"
)

func main() {
	direction := flag.String("direction", migrate.Up, "Migration direction: up or down")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.L().Fatal("config", zap.Error(err))
	}
	logger.Init(logger.Config{Env: cfg.Env, Level: cfg.LogLevel, ServiceName: cfg.ServiceName})
	log := logger.Named("migrate")
	defer func() { _ = logger.Sync() }()

	if err := migrate.Run(cfg.DatabaseURL, *direction); err != nil {
		log.Error("migration failed", zap.String("direction", *direction), zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	v, dirty, err := migrate.Version(cfg.DatabaseURL)
	if err != nil {
		log.Warn("could not read schema version", zap.Error(err))
		return
	}
	log.Info("migrations applied", zap.String("direction", *direction), zap.Uint("version", v), zap.Bool("dirty", dirty))
}
