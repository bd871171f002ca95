package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/DSLitvinov/difference-engine/internal/config"
	"github.com/DSLitvinov/difference-engine/internal/repo"
)

var forceMigrate bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Upgrade legacy commit indexes and commit documents",
	Long:  "Partition legacy per-mesh commit indexes into per-branch files and stamp commit documents with the current data version",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadDefault(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		levelFlag, _ := cmd.Flags().GetString("log-level")
		if levelFlag == "" {
			levelFlag = cfg.LogLevel
		}
		applyLogLevel(levelFlag)

		engine, err := repo.NewEngine(cfg.DataRoot)
		if err != nil {
			return fmt.Errorf("initialize repository engine at %s: %w", cfg.DataRoot, err)
		}

		migrator := repo.NewMigrator(engine.Scanner)
		if forceMigrate {
			migrator.ClearCache()
			if err := migrator.MigrateCommitIndexes(); err != nil {
				return fmt.Errorf("migrate commit indexes: %w", err)
			}
			if err := migrator.MigrateAllCommits(context.Background()); err != nil {
				return fmt.Errorf("migrate commit documents: %w", err)
			}
		} else if err := migrator.RunIfNeeded(context.Background()); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}

		fmt.Printf("migration complete for %s\n", cfg.DataRoot)
		return nil
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&forceMigrate, "force", false, "run migration even if no legacy mesh-level commit index is found")
}
