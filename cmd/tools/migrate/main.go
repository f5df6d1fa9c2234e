package main

import (
	"errors"
	"flag"
	"strings"

	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/noah-isme/backend-pasar/internal/config"
	"github.com/noah-isme/backend-pasar/internal/obs"
)

func main() {
	var (
		dir  = flag.String("dir", "db/migrations", "migrations directory")
		down = flag.Bool("down", false, "roll back one migration instead of applying all")
	)
	flag.Parse()

	logger := obs.NewLogger("console", "info")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}

	source := "file://" + strings.TrimPrefix(*dir, "file://")
	m, err := migrate.New(source, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("open migrator")
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			logger.Error().AnErr("source", srcErr).AnErr("db", dbErr).Msg("close migrator")
		}
	}()

	if *down {
		if err := m.Steps(-1); err != nil {
			logger.Fatal().Err(err).Msg("roll back migration")
		}
		logger.Info().Msg("rolled back one migration")
		return
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info().Msg("database already up to date")
			return
		}
		logger.Fatal().Err(err).Msg("apply migrations")
	}
	logger.Info().Msg("migrations applied")
}
