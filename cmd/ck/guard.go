package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/boshu2/contextkeeper/internal/archive"
	"github.com/boshu2/contextkeeper/internal/config"
	"github.com/boshu2/contextkeeper/internal/pipeline"
	"github.com/boshu2/contextkeeper/internal/restore"
)

var guardMode string

// hookPayload is the JSON document hooks deliver on stdin.
type hookPayload struct {
	SessionID      string         `json:"session_id"`
	TranscriptPath string         `json:"transcript_path"`
	ToolName       string         `json:"tool_name"`
	ToolInput      map[string]any `json:"tool_input"`
	Source         string         `json:"source"`
	Trigger        string         `json:"trigger"`
}

var guardCmd = &cobra.Command{
	Use:   "guard",
	Short: "Hook dispatch wrapper",
	Long: `Read a hook payload from stdin and dispatch to the matching pipeline.
Failures are reported on stderr but the exit code stays zero: a broken
snapshot pipeline must never block the agent.

Modes:
  stop         save with the stop trigger
  post-tool    work-log append plus threshold check
  pre-compact  full save and archive
  session-end  full save and archive
  restore      print the restore plan`,
	Run: runGuard,
}

func init() {
	guardCmd.Flags().StringVar(&guardMode, "mode", "", "Dispatch mode (stop, post-tool, pre-compact, session-end, restore)")
	_ = guardCmd.MarkFlagRequired("mode") //nolint:errcheck // flag exists
	rootCmd.AddCommand(guardCmd)
}

func runGuard(cmd *cobra.Command, args []string) {
	if err := dispatchGuard(os.Stdin); err != nil {
		fmt.Fprintf(os.Stderr, "ck guard: %v\n", err)
	}
}

// dispatchGuard decodes the payload and runs the mode's pipeline.
func dispatchGuard(stdin io.Reader) error {
	var payload hookPayload
	if data, err := io.ReadAll(stdin); err == nil && len(data) > 0 {
		_ = json.Unmarshal(data, &payload) //nolint:errcheck // empty payload is valid
	}

	cfg, err := config.Load(flagConfig())
	if err != nil {
		return err
	}
	saver := pipeline.NewSaver(cfg)

	switch guardMode {
	case "stop":
		return guardSave(saver, payload.TranscriptPath, pipeline.TriggerStop)
	case "post-tool":
		_, err := saver.LogToolUse(payload.ToolName, payload.ToolInput, payload.TranscriptPath)
		return err
	case "pre-compact":
		return guardSave(saver, payload.TranscriptPath, pipeline.TriggerPreCompact)
	case "session-end":
		return guardSave(saver, payload.TranscriptPath, pipeline.TriggerSessionEnd)
	case "restore":
		return guardRestore(cfg, payload.Source)
	default:
		return fmt.Errorf("unknown mode: %s", guardMode)
	}
}

// guardSave runs a save, tolerating a missing transcript.
func guardSave(saver *pipeline.Saver, transcriptPath, trigger string) error {
	if transcriptPath == "" {
		return nil
	}
	_, err := saver.Save(transcriptPath, trigger)
	return err
}

// guardRestore prints the restore plan for the hook source.
func guardRestore(cfg *config.Config, source string) error {
	if source == "" {
		source = string(restore.SourceStartup)
	}
	store := archive.NewStore(archive.WithBaseDir(cfg.BaseDir))
	plan, err := restore.NewPlanner(cfg.LatestSnapshotPath(), store).BuildPlan(restore.Source(source))
	if err != nil {
		return err
	}
	fmt.Print(plan.Render())
	return nil
}
