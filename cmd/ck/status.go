package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/boshu2/contextkeeper/internal/archive"
	"github.com/boshu2/contextkeeper/internal/config"
	"github.com/boshu2/contextkeeper/internal/snapshot"
	"github.com/boshu2/contextkeeper/internal/worklog"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show snapshot, work log, and archive state",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfig())
	if err != nil {
		return err
	}

	latestPath := cfg.LatestSnapshotPath()
	if info, err := os.Stat(latestPath); err == nil {
		rich := "thin"
		if data, err := os.ReadFile(latestPath); err == nil && snapshot.IsRich(string(data)) {
			rich = "rich"
		}
		fmt.Printf("snapshot: %s (%d bytes, %s, written %s)\n",
			latestPath, info.Size(), rich, info.ModTime().Format("2006-01-02 15:04:05"))
	} else {
		fmt.Println("snapshot: none")
	}

	entries, _ := worklog.Load(cfg.WorkLogPath())
	fmt.Printf("work log: %d entries\n", len(entries))

	store := archive.NewStore(archive.WithBaseDir(cfg.BaseDir))
	records, err := store.Load()
	if err != nil {
		return err
	}
	fmt.Printf("knowledge index: %d records\n", len(records))
	if len(records) > 0 {
		last := records[len(records)-1]
		fmt.Printf("  latest: %s [%s] %s\n", last.Timestamp, last.FinalStatus, last.UserTask)
	}

	return nil
}
