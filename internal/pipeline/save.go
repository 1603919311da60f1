// Package pipeline orchestrates the save and restore flows that the hook
// commands invoke: parse, extract, analyze, compile, persist, archive.
package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/boshu2/contextkeeper/internal/analyze"
	"github.com/boshu2/contextkeeper/internal/archive"
	"github.com/boshu2/contextkeeper/internal/config"
	"github.com/boshu2/contextkeeper/internal/durability"
	"github.com/boshu2/contextkeeper/internal/facts"
	"github.com/boshu2/contextkeeper/internal/gitstate"
	"github.com/boshu2/contextkeeper/internal/snapshot"
	"github.com/boshu2/contextkeeper/internal/transcript"
	"github.com/boshu2/contextkeeper/internal/worklog"
)

// Save trigger names.
const (
	TriggerStop       = "stop"
	TriggerPostTool   = "posttool"
	TriggerPreCompact = "precompact"
	TriggerSessionEnd = "sessionend"
	TriggerThreshold  = "threshold"
)

// fullSaveTriggers also archive the session and reset the work log.
var fullSaveTriggers = map[string]bool{
	TriggerPreCompact: true,
	TriggerSessionEnd: true,
}

// throttleExemptTriggers always save; skipping a final save loses the session.
var throttleExemptTriggers = map[string]bool{
	TriggerPreCompact: true,
	TriggerSessionEnd: true,
}

// Saver runs the save pipeline.
type Saver struct {
	Cfg   *config.Config
	Store *archive.Store

	// RepoDir is where git state and source-of-truth files are captured.
	RepoDir string

	// Now is the clock, overridable in tests.
	Now func() time.Time
}

// NewSaver builds a saver over the configured stores.
func NewSaver(cfg *config.Config) *Saver {
	return &Saver{
		Cfg:     cfg,
		Store:   archive.NewStore(archive.WithBaseDir(cfg.BaseDir)),
		RepoDir: ".",
		Now:     time.Now,
	}
}

// Result reports what a save did.
type Result struct {
	// Skipped is true when the throttle or richness guard suppressed the save.
	Skipped bool

	// Reason explains a skip.
	Reason string

	// SnapshotPath is the written latest snapshot path.
	SnapshotPath string

	// RotatedPath is the per-trigger rotated copy, if one was written.
	RotatedPath string

	// ArchivedPath is the sessions archive path for full saves.
	ArchivedPath string

	// Indexed is true when a knowledge index record was written.
	Indexed bool

	// EstimatedTokens is the token estimate computed during the save.
	EstimatedTokens int
}

// Save runs the full pipeline for one trigger.
func (s *Saver) Save(transcriptPath, trigger string) (*Result, error) {
	res := &Result{}

	if skip, reason := s.shouldSkip(trigger, transcriptPath); skip {
		res.Skipped = true
		res.Reason = reason
		return res, nil
	}

	if err := s.Store.Init(); err != nil {
		return nil, err
	}

	reader := transcript.NewReader()
	reader.MaxContentLength = s.Cfg.Transcript.MaxContentLength
	parsed, err := reader.ParseFile(transcriptPath)
	if err != nil {
		return nil, fmt.Errorf("parse transcript: %w", err)
	}

	sessionFacts, events := facts.Extract(parsed)
	analysis := analyze.Analyze(events)
	logEntries, _ := worklog.Load(s.Cfg.WorkLogPath())

	if size, err := fileSize(transcriptPath); err == nil {
		res.EstimatedTokens = snapshot.EstimateTokens(size, parsed.TotalLines, parsed.ContentChars)
	}

	doc := snapshot.Compile(snapshot.Input{
		Facts:    sessionFacts,
		Analysis: analysis,
		Git:      gitstate.Capture(s.RepoDir),
		WorkLog:  logEntries,
		SOT:      snapshot.CaptureSOT(s.RepoDir),
	})
	content := doc.Finalize()

	latestPath := s.Cfg.LatestSnapshotPath()
	wrote, err := snapshot.WriteLatest(latestPath, content, sessionFacts.ToolUses)
	if err != nil {
		return nil, fmt.Errorf("write snapshot: %w", err)
	}
	if !wrote {
		res.Skipped = true
		res.Reason = "existing snapshot is richer"
		return res, nil
	}
	res.SnapshotPath = latestPath
	s.touchThrottleMarker(transcriptPath)

	rotated, err := s.writeRotated(trigger, content)
	if err != nil {
		return res, err
	}
	res.RotatedPath = rotated

	if fullSaveTriggers[trigger] {
		// Index append and session copy are independent: one failing must
		// not lose the other.
		record := archive.NewRecord(sessionFacts, analysis, s.Now())
		var fullErrs []error

		if err := s.Store.ReplaceOrAppend(record); err != nil {
			fullErrs = append(fullErrs, fmt.Errorf("index session: %w", err))
		} else {
			res.Indexed = true
		}

		if archived, err := s.Store.WriteSessionArchive(record.SessionID, content, s.Now()); err != nil {
			fullErrs = append(fullErrs, err)
		} else {
			res.ArchivedPath = archived
		}

		if len(fullErrs) > 0 {
			// Keep the work log so a retried full save still covers it.
			return res, errors.Join(fullErrs...)
		}
		if err := worklog.Reset(s.Cfg.WorkLogPath()); err != nil {
			return res, fmt.Errorf("reset work log: %w", err)
		}
	}

	return res, nil
}

// shouldSkip applies the per-trigger throttle window, then the minimum
// growth threshold: a transcript that barely grew since the last save has
// nothing new worth snapshotting.
func (s *Saver) shouldSkip(trigger, transcriptPath string) (bool, string) {
	if throttleExemptTriggers[trigger] {
		return false, ""
	}

	window := time.Duration(s.Cfg.Save.ThrottleSeconds) * time.Second
	if trigger == TriggerStop {
		window = time.Duration(s.Cfg.Save.StopThrottleSeconds) * time.Second
	}

	info, err := os.Stat(s.throttleMarkerPath())
	if err != nil {
		return false, ""
	}
	if s.Now().Sub(info.ModTime()) < window {
		return true, fmt.Sprintf("saved %s ago, within %s window", s.Now().Sub(info.ModTime()).Round(time.Second), window)
	}

	if lastSize, ok := s.lastSavedSize(); ok {
		if size, err := fileSize(transcriptPath); err == nil {
			if growth := size - lastSize; growth < int64(s.Cfg.Save.MinGrowthBytes) {
				return true, fmt.Sprintf("transcript grew %d bytes since last save, below %d", growth, s.Cfg.Save.MinGrowthBytes)
			}
		}
	}
	return false, ""
}

// throttleMarkerPath is the marker file whose mtime tracks the last save and
// whose content records the transcript size at that save.
func (s *Saver) throttleMarkerPath() string {
	return filepath.Join(s.Cfg.BaseDir, ".last-save")
}

// lastSavedSize reads the transcript size recorded at the last save.
func (s *Saver) lastSavedSize() (int64, bool) {
	data, err := os.ReadFile(s.throttleMarkerPath())
	if err != nil {
		return 0, false
	}
	size, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, false
	}
	return size, true
}

// touchThrottleMarker rewrites the marker with the transcript size, which
// also refreshes its mtime for the dedup window.
func (s *Saver) touchThrottleMarker(transcriptPath string) {
	size, err := fileSize(transcriptPath)
	if err != nil {
		size = 0
	}
	path := s.throttleMarkerPath()
	_ = durability.AtomicWrite(path, []byte(strconv.FormatInt(size, 10)+"\n")) //nolint:errcheck // marker only
}

// writeRotated stores a per-trigger snapshot copy and rotates old ones.
func (s *Saver) writeRotated(trigger, content string) (string, error) {
	keep := s.Cfg.Save.MaxSnapshots[trigger]
	if keep <= 0 {
		return "", nil
	}

	dir := s.Cfg.SnapshotsDir()
	name := fmt.Sprintf("%s-%s.md", trigger, s.Now().UTC().Format("20060102-150405"))
	path := filepath.Join(dir, name)

	if err := durability.AtomicWrite(path, []byte(content)); err != nil {
		return "", fmt.Errorf("write rotated snapshot: %w", err)
	}
	if _, err := durability.RotateByPattern(dir, trigger+"-*.md", keep); err != nil {
		return path, fmt.Errorf("rotate snapshots: %w", err)
	}
	return path, nil
}

// fileSize returns the size of path.
func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
