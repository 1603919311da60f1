// Package gitstate captures a best-effort snapshot of repository state for
// inclusion in context snapshots. Every capture is non-fatal: a missing git
// binary or a non-repo directory yields an empty state, never an error that
// could block a save.
package gitstate

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"
)

// captureTimeout bounds each git invocation so a hung git (network refs,
// fsmonitor) cannot stall a hook.
const captureTimeout = 5 * time.Second

// maxRecentCommits is how many commit subjects to record.
const maxRecentCommits = 3

// State is the captured repository state.
type State struct {
	// Branch is the current branch name, empty outside a repo.
	Branch string `json:"branch,omitempty"`

	// Status is the porcelain short status output.
	Status string `json:"status,omitempty"`

	// RecentCommits lists the latest commit subjects, newest first.
	RecentCommits []string `json:"recent_commits,omitempty"`

	// DiffStat is the working tree diff stat summary.
	DiffStat string `json:"diff_stat,omitempty"`
}

// Empty reports whether nothing was captured.
func (s *State) Empty() bool {
	return s.Branch == "" && s.Status == "" && len(s.RecentCommits) == 0 && s.DiffStat == ""
}

// Capture gathers git state from repoPath. All failures degrade to empty
// fields.
func Capture(repoPath string) *State {
	state := &State{}

	state.Branch = runGit(repoPath, "rev-parse", "--abbrev-ref", "HEAD")
	if state.Branch == "" {
		// Not a repo; skip the rest.
		return state
	}

	state.Status = runGit(repoPath, "status", "--porcelain")
	state.DiffStat = lastLine(runGit(repoPath, "diff", "--stat"))

	if log := runGit(repoPath, "log", "--format=%s", "-n", "3"); log != "" {
		for _, line := range strings.Split(log, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				state.RecentCommits = append(state.RecentCommits, line)
			}
			if len(state.RecentCommits) >= maxRecentCommits {
				break
			}
		}
	}

	return state
}

// runGit executes a git subcommand in repoPath and returns trimmed stdout,
// or empty string on any failure.
func runGit(repoPath string, args ...string) string {
	ctx, cancel := context.WithTimeout(context.Background(), captureTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = repoPath

	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = nil

	if err := cmd.Run(); err != nil {
		return ""
	}
	return strings.TrimSpace(stdout.String())
}

// lastLine returns the final non-empty line, which for diff --stat is the
// "N files changed" summary.
func lastLine(s string) string {
	lines := strings.Split(s, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if trimmed := strings.TrimSpace(lines[i]); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
