package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/pyrusbridge/tgbridge/internal/config"
	"github.com/pyrusbridge/tgbridge/internal/database"
	"github.com/pyrusbridge/tgbridge/internal/logger"
)

func newMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply SQLite state store migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(*configPath)
			if err != nil {
				slog.Error("Failed to load configuration", "path", *configPath, "error", err)
				return err
			}
			log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)

			db, err := database.NewDB(cfg.Database.Path)
			if err != nil {
				log.Error("Failed to migrate database", "path", cfg.Database.Path, "error", err)
				return err
			}
			database.CloseDB(db)

			log.Info("Migrations applied", "path", cfg.Database.Path)
			return nil
		},
	}
}
