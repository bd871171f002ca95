package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/DSLitvinov/difference-engine/internal/config"
	"github.com/DSLitvinov/difference-engine/internal/repo"
)

var rescanMesh string

var rescanCmd = &cobra.Command{
	Use:   "rescan",
	Short: "Rebuild the repository forest from disk",
	Long:  "Walk the data root and rewrite forest.json, without starting the HTTP server",
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

		if err := engine.Rescan(context.Background(), rescanMesh); err != nil {
			return fmt.Errorf("rescan: %w", err)
		}

		if rescanMesh != "" {
			fmt.Printf("rescanned mesh %q under %s\n", rescanMesh, cfg.DataRoot)
		} else {
			fmt.Printf("rescanned %s\n", cfg.DataRoot)
		}
		return nil
	},
}

func init() {
	rescanCmd.Flags().StringVar(&rescanMesh, "mesh", "", "mesh name to echo in the output; the whole tree is always rescanned")
}
