package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/boshu2/contextkeeper/internal/archive"
	"github.com/boshu2/contextkeeper/internal/config"
	"github.com/boshu2/contextkeeper/internal/restore"
)

var restoreSource string

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Plan context recovery for a fresh session",
	Long: `Print a restore plan pointing at the best available snapshot, with a
brief summary and recent archive entries. The snapshot content itself is
never inlined. Restore is read-only.

Sources and their snapshot age limits:
  clear     unlimited
  compact   unlimited
  resume    1 hour
  startup   30 minutes`,
	RunE: runRestore,
}

func init() {
	restoreCmd.Flags().StringVarP(&restoreSource, "source", "s", string(restore.SourceStartup), "Restore source (clear, compact, resume, startup)")
	rootCmd.AddCommand(restoreCmd)
}

func runRestore(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfig())
	if err != nil {
		return err
	}

	store := archive.NewStore(archive.WithBaseDir(cfg.BaseDir))
	planner := restore.NewPlanner(cfg.LatestSnapshotPath(), store)

	plan, err := planner.BuildPlan(restore.Source(restoreSource))
	if err != nil {
		return err
	}

	fmt.Print(plan.Render())
	return nil
}
