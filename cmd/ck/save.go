package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/boshu2/contextkeeper/internal/config"
	"github.com/boshu2/contextkeeper/internal/pipeline"
)

var (
	saveTranscript string
	saveTrigger    string
)

var saveCmd = &cobra.Command{
	Use:   "save",
	Short: "Compile and persist a context snapshot from a transcript",
	Long: `Parse the session transcript, extract facts, analyze work phases, and
write a budget-bounded snapshot. Full-save triggers (sessionend, precompact)
also archive the session in the knowledge index.

Triggers and their throttle behavior:
  stop        30s dedup window
  posttool    5s dedup window
  threshold   5s dedup window, fired by work-log near the token limit
  precompact  always saves
  sessionend  always saves`,
	RunE: runSave,
}

func init() {
	saveCmd.Flags().StringVarP(&saveTranscript, "transcript", "t", "", "Transcript JSONL path (required)")
	saveCmd.Flags().StringVar(&saveTrigger, "trigger", pipeline.TriggerStop, "Save trigger (stop, posttool, precompact, sessionend, threshold)")
	_ = saveCmd.MarkFlagRequired("transcript") //nolint:errcheck // flag exists
	rootCmd.AddCommand(saveCmd)
}

func runSave(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfig())
	if err != nil {
		return err
	}

	if GetDryRun() {
		fmt.Printf("would save snapshot from %s (trigger=%s) to %s\n",
			saveTranscript, saveTrigger, cfg.LatestSnapshotPath())
		return nil
	}

	saver := pipeline.NewSaver(cfg)
	result, err := saver.Save(saveTranscript, saveTrigger)
	if err != nil {
		return err
	}

	if GetOutput() == "json" {
		return json.NewEncoder(os.Stdout).Encode(result)
	}

	if result.Skipped {
		fmt.Printf("skipped: %s\n", result.Reason)
		return nil
	}
	fmt.Printf("saved %s\n", result.SnapshotPath)
	if result.Indexed {
		VerbosePrintf("indexed session, archived to %s\n", result.ArchivedPath)
	}
	return nil
}

// flagConfig translates persistent flags into config overrides.
func flagConfig() *config.Config {
	return &config.Config{
		Output:  GetOutput(),
		Verbose: GetVerbose(),
	}
}
