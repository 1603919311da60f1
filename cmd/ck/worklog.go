package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/boshu2/contextkeeper/internal/config"
	"github.com/boshu2/contextkeeper/internal/pipeline"
)

var (
	workLogTool       string
	workLogInput      string
	workLogTranscript string
)

var workLogCmd = &cobra.Command{
	Use:   "work-log",
	Short: "Record one tool use in the work log",
	Long: `Append one entry to the work log. When a transcript path is given,
the token estimate is checked and a proactive save fires once usage
crosses the threshold.`,
	RunE: runWorkLog,
}

func init() {
	workLogCmd.Flags().StringVar(&workLogTool, "tool", "", "Tool name (required)")
	workLogCmd.Flags().StringVar(&workLogInput, "input", "{}", "Tool input as JSON")
	workLogCmd.Flags().StringVarP(&workLogTranscript, "transcript", "t", "", "Transcript path for threshold checking")
	_ = workLogCmd.MarkFlagRequired("tool") //nolint:errcheck // flag exists
	rootCmd.AddCommand(workLogCmd)
}

func runWorkLog(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfig())
	if err != nil {
		return err
	}

	var input map[string]any
	if err := json.Unmarshal([]byte(workLogInput), &input); err != nil {
		// A bad input payload should not lose the entry.
		input = nil
	}

	saver := pipeline.NewSaver(cfg)
	result, err := saver.LogToolUse(workLogTool, input, workLogTranscript)
	if err != nil {
		return err
	}

	if result != nil && !result.Skipped {
		fmt.Printf("threshold save: %s (est %d tokens)\n", result.SnapshotPath, result.EstimatedTokens)
	} else {
		VerbosePrintf("logged %s\n", workLogTool)
	}
	return nil
}
