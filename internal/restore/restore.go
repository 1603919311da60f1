// Package restore plans context recovery for a fresh session. A plan points
// at the best available snapshot and summarizes it; the snapshot itself is
// never inlined, the agent reads it on demand. Planning is read-only.
package restore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/boshu2/contextkeeper/internal/archive"
)

// Source identifies what kind of session start triggered the restore.
type Source string

const (
	SourceClear   Source = "clear"
	SourceCompact Source = "compact"
	SourceResume  Source = "resume"
	SourceStartup Source = "startup"
)

const (
	// MinQualitySize is the size below which latest.md is considered thin
	// and the sessions archive is consulted for a better snapshot.
	MinQualitySize = 3000

	// FallbackWindow is how recent an archived snapshot must be to replace
	// a thin latest.md.
	FallbackWindow = time.Hour

	// RecentRecordCount is how many index records a plan surfaces.
	RecentRecordCount = 3
)

// ageThresholds bounds snapshot age per restore source. Zero means
// unlimited: after an explicit clear or compact the snapshot is always
// relevant, while a cold startup only trusts recent state.
var ageThresholds = map[Source]time.Duration{
	SourceClear:   0,
	SourceCompact: 0,
	SourceResume:  time.Hour,
	SourceStartup: 30 * time.Minute,
}

// AgeThreshold returns the maximum snapshot age for a source, 0 = unlimited.
func AgeThreshold(source Source) time.Duration {
	return ageThresholds[source]
}

// Plan is the computed restore plan.
type Plan struct {
	// SnapshotPath points at the snapshot to read, empty when none qualifies.
	SnapshotPath string

	// Summary is a brief extract of the snapshot's task and next step.
	Summary string

	// Recent holds the newest knowledge index records.
	Recent []archive.Record

	// Lookups are suggested follow-up commands.
	Lookups []string
}

// Empty reports whether the plan found nothing to restore.
func (p *Plan) Empty() bool {
	return p.SnapshotPath == "" && len(p.Recent) == 0
}

// Planner computes restore plans from a snapshot file and the archive.
type Planner struct {
	// LatestPath is the path of the latest snapshot file.
	LatestPath string

	// Store is the knowledge archive.
	Store *archive.Store

	// Now is the clock, overridable in tests.
	Now func() time.Time
}

// NewPlanner creates a planner over the given snapshot path and store.
func NewPlanner(latestPath string, store *archive.Store) *Planner {
	return &Planner{
		LatestPath: latestPath,
		Store:      store,
		Now:        time.Now,
	}
}

// BuildPlan selects the best snapshot for the source and assembles the plan.
func (p *Planner) BuildPlan(source Source) (*Plan, error) {
	plan := &Plan{}

	if path := p.findBestSnapshot(source); path != "" {
		plan.SnapshotPath = path
		if data, err := os.ReadFile(path); err == nil {
			plan.Summary = BriefSummary(string(data))
		}
	}

	recent, err := p.Store.LastN(RecentRecordCount)
	if err != nil {
		return nil, fmt.Errorf("load index: %w", err)
	}
	plan.Recent = recent

	if plan.SnapshotPath != "" {
		plan.Lookups = append(plan.Lookups, "Read "+plan.SnapshotPath)
	}
	plan.Lookups = append(plan.Lookups, p.derivedLookups(recent)...)

	return plan, nil
}

// MaxDerivedLookups caps index lookups suggested by a plan.
const MaxDerivedLookups = 3

// derivedLookups suggests index greps from the newest records: error
// categories still open at session end first, then tags of recently touched
// resources. Newest record wins on both, capped at MaxDerivedLookups.
func (p *Planner) derivedLookups(recent []archive.Record) []string {
	var lookups []string
	seen := make(map[string]bool)
	add := func(term string) {
		if term == "" || seen[term] || len(lookups) >= MaxDerivedLookups {
			return
		}
		seen[term] = true
		lookups = append(lookups, fmt.Sprintf("Grep %s for %q", p.Store.IndexPath(), term))
	}

	for i := len(recent) - 1; i >= 0; i-- {
		for _, category := range openErrorCategories(recent[i]) {
			add(category)
		}
	}
	for i := len(recent) - 1; i >= 0; i-- {
		for _, tag := range recent[i].Tags {
			add(tag)
		}
	}
	return lookups
}

// openErrorCategories returns the record's error categories that have no
// matching resolution pattern.
func openErrorCategories(r archive.Record) []string {
	resolved := make(map[string]bool)
	for _, pattern := range r.ResolutionPatterns {
		if idx := strings.Index(pattern, " via "); idx > 0 {
			resolved[pattern[:idx]] = true
		}
	}

	var open []string
	for _, category := range r.ErrorPatterns {
		if !resolved[category] {
			open = append(open, category)
		}
	}
	return open
}

// findBestSnapshot returns the snapshot path for the source, applying the
// age threshold and the thin-latest fallback.
func (p *Planner) findBestSnapshot(source Source) string {
	info, err := os.Stat(p.LatestPath)
	if err != nil {
		return p.archiveFallback(0)
	}

	if maxAge := AgeThreshold(source); maxAge > 0 {
		if p.Now().Sub(info.ModTime()) > maxAge {
			return ""
		}
	}

	if info.Size() >= MinQualitySize {
		return p.LatestPath
	}

	// latest.md is thin; a recent archived snapshot may be richer.
	if fallback := p.archiveFallback(info.Size()); fallback != "" {
		return fallback
	}
	return p.LatestPath
}

// archiveFallback returns the largest session archive newer than
// FallbackWindow and bigger than minSize, or empty.
func (p *Planner) archiveFallback(minSize int64) string {
	matches, err := filepath.Glob(filepath.Join(p.Store.GetSessionsDir(), "*.md"))
	if err != nil {
		return ""
	}

	var best string
	bestSize := minSize
	cutoff := p.Now().Add(-FallbackWindow)

	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || info.ModTime().Before(cutoff) {
			continue
		}
		if info.Size() > bestSize {
			best = m
			bestSize = info.Size()
		}
	}
	return best
}

// summarySections are the snapshot sections worth quoting in a plan.
var summarySections = []string{"Task", "Next Step"}

// summaryLinesPerSection bounds how much of each section is quoted.
const summaryLinesPerSection = 3

// BriefSummary extracts the task and next step from snapshot markdown by
// section scanning.
func BriefSummary(content string) string {
	var b strings.Builder

	for _, section := range summarySections {
		lines := sectionLines(content, section)
		if len(lines) > summaryLinesPerSection {
			lines = lines[:summaryLinesPerSection]
		}
		if len(lines) == 0 {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", section, strings.Join(lines, " "))
	}

	return strings.TrimRight(b.String(), "\n")
}

// sectionLines returns the non-empty, non-comment body lines of a section.
func sectionLines(content, section string) []string {
	var lines []string
	inSection := false
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(line, "## ") {
			inSection = strings.TrimPrefix(line, "## ") == section
			continue
		}
		if !inSection {
			continue
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "<!--") {
			continue
		}
		lines = append(lines, trimmed)
	}
	return lines
}

// Render produces the plan as markdown for injection into a fresh session.
func (p *Plan) Render() string {
	if p.Empty() {
		return "No prior session context found.\n"
	}

	var b strings.Builder
	b.WriteString("# Restored Context\n\n")

	if p.SnapshotPath != "" {
		fmt.Fprintf(&b, "Snapshot: %s\n", p.SnapshotPath)
		if p.Summary != "" {
			b.WriteString(p.Summary)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if len(p.Recent) > 0 {
		b.WriteString("## Recent Sessions\n")
		for _, r := range p.Recent {
			fmt.Fprintf(&b, "- %s [%s] %s\n", r.Timestamp, r.FinalStatus, firstSentence(r.UserTask))
		}
		b.WriteString("\n")
	}

	if len(p.Lookups) > 0 {
		b.WriteString("## Suggested Lookups\n")
		for _, l := range p.Lookups {
			b.WriteString("- " + l + "\n")
		}
	}

	return b.String()
}

// firstSentence truncates text at the first sentence break or 120 chars.
func firstSentence(s string) string {
	if idx := strings.IndexAny(s, ".\n"); idx > 0 && idx < 120 {
		return s[:idx]
	}
	if len(s) > 120 {
		return s[:120] + "..."
	}
	return s
}
