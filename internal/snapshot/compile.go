// Package snapshot compiles session facts into a bounded markdown snapshot
// and enforces the size budget through priority-aware compaction. Sections
// carry survival priorities: immortal content (the task, the next step) must
// outlive every compaction phase.
package snapshot

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/boshu2/contextkeeper/internal/gitstate"
	"github.com/boshu2/contextkeeper/internal/types"
	"github.com/boshu2/contextkeeper/internal/worklog"
)

// MaxSnapshotChars is the hard size budget for a compiled snapshot.
const MaxSnapshotChars = 100_000

// Priority defines what survives compaction.
type Priority int

const (
	// PriorityImmortal content survives every compaction phase.
	PriorityImmortal Priority = iota
	// PriorityCritical content is truncated only as a last resort.
	PriorityCritical
	// PrioritySacrificable content is compressed or dropped first.
	PrioritySacrificable
)

// Section names, in document order.
const (
	SectionTask      = "Task"
	SectionNextStep  = "Next Step"
	SectionDecisions = "Decisions"
	SectionErrors    = "Unresolved Errors"
	SectionModified  = "Modified Files"
	SectionPhases    = "Phase Flow"
	SectionGit       = "Git State"
	SectionSOT       = "Source of Truth"
	SectionWorkLog   = "Work Log"
	SectionCommands  = "Command History"
	SectionStats     = "Session Stats"
	SectionResponse  = "Last Response"
)

// Section is one snapshot section with its survival priority.
type Section struct {
	Name     string
	Priority Priority
	Lines    []string
}

// Document is a compiled snapshot before rendering.
type Document struct {
	GeneratedAt time.Time
	SessionID   string
	Sections    []Section

	// ToolUses feeds the richness guard on write.
	ToolUses int
}

// Input bundles everything the compiler draws from.
type Input struct {
	Facts    *types.SessionFacts
	Analysis *types.Analysis
	Git      *gitstate.State
	WorkLog  []worklog.Entry

	// SOT is the rendered source-of-truth block, empty when absent.
	SOT string
}

// Compile builds the snapshot document from session inputs.
func Compile(in Input) *Document {
	doc := &Document{
		GeneratedAt: time.Now().UTC(),
		SessionID:   in.Facts.SessionID,
		ToolUses:    in.Facts.ToolUses,
	}

	doc.add(SectionTask, PriorityImmortal, taskLines(in.Facts))
	doc.add(SectionNextStep, PriorityImmortal, []string{NextStep(in.Facts)})
	doc.add(SectionDecisions, PriorityCritical, decisionLines(in.Facts))
	doc.add(SectionErrors, PriorityCritical, errorLines(in.Facts))
	doc.add(SectionModified, PriorityCritical, bulleted(in.Facts.ModifiedFiles))
	doc.add(SectionPhases, PriorityCritical, phaseLines(in.Analysis))
	doc.add(SectionGit, PrioritySacrificable, gitLines(in.Git))
	doc.add(SectionSOT, PriorityCritical, nonEmptyLines(in.SOT))
	doc.add(SectionWorkLog, PrioritySacrificable, workLogLines(in.WorkLog))
	doc.add(SectionCommands, PrioritySacrificable, bulleted(in.Facts.Commands))
	doc.add(SectionStats, PrioritySacrificable, statsLines(in.Facts, in.Analysis))
	doc.add(SectionResponse, PrioritySacrificable, nonEmptyLines(in.Facts.LastAssistant))

	return doc
}

// add appends a section, skipping empty bodies.
func (d *Document) add(name string, priority Priority, lines []string) {
	var kept []string
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			kept = append(kept, l)
		}
	}
	if len(kept) == 0 {
		return
	}
	d.Sections = append(d.Sections, Section{Name: name, Priority: priority, Lines: kept})
}

// section returns a pointer to the named section, or nil.
func (d *Document) section(name string) *Section {
	for i := range d.Sections {
		if d.Sections[i].Name == name {
			return &d.Sections[i]
		}
	}
	return nil
}

// removeSection drops the named section, returning true if it existed.
func (d *Document) removeSection(name string) bool {
	for i := range d.Sections {
		if d.Sections[i].Name == name {
			d.Sections = append(d.Sections[:i], d.Sections[i+1:]...)
			return true
		}
	}
	return false
}

// Render produces the final markdown.
func (d *Document) Render() string {
	var b strings.Builder

	b.WriteString("# Session Snapshot\n")
	fmt.Fprintf(&b, "<!-- generated: %s", d.GeneratedAt.Format(time.RFC3339))
	if d.SessionID != "" {
		fmt.Fprintf(&b, " session: %s", d.SessionID)
	}
	b.WriteString(" -->\n")

	for _, s := range d.Sections {
		b.WriteString("\n")
		if s.Priority == PriorityImmortal {
			fmt.Fprintf(&b, "<!-- IMMORTAL: %s -->\n", strings.ToLower(strings.ReplaceAll(s.Name, " ", "-")))
		}
		fmt.Fprintf(&b, "## %s\n", s.Name)
		for _, line := range s.Lines {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	return b.String()
}

// Size returns the rendered byte size.
func (d *Document) Size() int {
	return len(d.Render())
}

// NextStep derives the single most useful next action from the facts:
// an explicit intent statement if one exists, otherwise the oldest
// unresolved error, otherwise a generic continuation.
func NextStep(f *types.SessionFacts) string {
	for _, d := range f.Decisions {
		if d.Tier == types.TierIntent {
			return d.Text
		}
	}
	if unresolved := f.UnresolvedErrors(); len(unresolved) > 0 {
		e := unresolved[0]
		if e.File != "" {
			return fmt.Sprintf("Resolve %s error in %s: %s", e.Category, e.File, e.Snippet)
		}
		return fmt.Sprintf("Resolve %s error: %s", e.Category, e.Snippet)
	}
	return "Review the work log and continue from the last modified file."
}

func taskLines(f *types.SessionFacts) []string {
	if f.UserTask == "" {
		return []string{"(no task captured)"}
	}
	return strings.Split(f.UserTask, "\n")
}

func decisionLines(f *types.SessionFacts) []string {
	var lines []string
	for _, d := range f.Decisions {
		lines = append(lines, fmt.Sprintf("- [%s] %s", d.Tier, d.Text))
	}
	return lines
}

func errorLines(f *types.SessionFacts) []string {
	var lines []string
	for _, e := range f.UnresolvedErrors() {
		line := fmt.Sprintf("- [%s] %s", e.Category, e.Snippet)
		if e.File != "" {
			line += fmt.Sprintf(" (%s)", e.File)
		}
		lines = append(lines, line)
	}
	return lines
}

func phaseLines(a *types.Analysis) []string {
	if a == nil {
		return nil
	}
	lines := []string{a.FlowString()}
	if len(a.Sequence) > 0 {
		lines = append(lines, "", "Tool sequence: "+sequenceString(a.Sequence))
	}
	return lines
}

// sequenceString renders runs as "Read ×4 → Edit ×2 → Bash".
func sequenceString(runs []types.ToolRun) string {
	parts := make([]string, 0, len(runs))
	for _, r := range runs {
		if r.Count > 1 {
			parts = append(parts, fmt.Sprintf("%s ×%d", r.Tool, r.Count))
		} else {
			parts = append(parts, r.Tool)
		}
	}
	return strings.Join(parts, " → ")
}

func gitLines(g *gitstate.State) []string {
	if g == nil || g.Empty() {
		return nil
	}
	var lines []string
	lines = append(lines, "Branch: "+g.Branch)
	for _, c := range g.RecentCommits {
		lines = append(lines, "- "+c)
	}
	if g.DiffStat != "" {
		lines = append(lines, "Diff: "+g.DiffStat)
	}
	if g.Status != "" {
		lines = append(lines, "", "```", g.Status, "```")
	}
	return lines
}

func workLogLines(entries []worklog.Entry) []string {
	var lines []string
	for _, e := range entries {
		lines = append(lines, "- "+e.String())
	}
	return lines
}

func statsLines(f *types.SessionFacts, a *types.Analysis) []string {
	var lines []string
	lines = append(lines, fmt.Sprintf("Messages: %d, tool uses: %d", f.MessageCount, f.ToolUses))
	tools := make([]string, 0, len(f.ToolCounts))
	for tool := range f.ToolCounts {
		tools = append(tools, tool)
	}
	sort.Strings(tools)
	for _, tool := range tools {
		lines = append(lines, fmt.Sprintf("- %s: %d", tool, f.ToolCounts[tool]))
	}
	if a != nil {
		lines = append(lines, fmt.Sprintf("Error rate: %.2f, longest clean run: %d", a.Stats.ErrorRate, a.Stats.LongestCleanRun))
		lines = append(lines, "Status: "+a.FinalStatus)
	}
	return lines
}

func bulleted(items []string) []string {
	var lines []string
	for _, item := range items {
		lines = append(lines, "- "+item)
	}
	return lines
}

func nonEmptyLines(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
