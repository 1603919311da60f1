package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/boshu2/contextkeeper/internal/types"
	"github.com/boshu2/contextkeeper/internal/worklog"
)

func sampleFacts() *types.SessionFacts {
	return &types.SessionFacts{
		SessionID:     "s1",
		UserTask:      "Add rotation to the archive store",
		ModifiedFiles: []string{"internal/archive/archive.go"},
		Decisions: []types.Decision{
			{Tier: types.TierDecision, Text: "chose mtime ordering for rotation", MessageIndex: 4},
		},
		Errors: []types.ErrorEvent{
			{Category: "missing_resource", Snippet: "no such file or directory", File: "old.go", MessageIndex: 7},
		},
		Commands:     []string{"go test ./internal/archive"},
		ToolCounts:   map[string]int{"Edit": 3, "Bash": 1},
		ToolUses:     4,
		MessageCount: 12,
	}
}

func TestCompile_SectionsAndMarkers(t *testing.T) {
	doc := Compile(Input{Facts: sampleFacts(), Analysis: &types.Analysis{
		Flow:        []types.Phase{types.PhaseResearch, types.PhaseImplementation},
		FinalStatus: types.StatusIncomplete,
	}})
	out := doc.Render()

	for _, want := range []string{
		"# Session Snapshot",
		"<!-- IMMORTAL: task -->",
		"<!-- IMMORTAL: next-step -->",
		"## Task",
		"## Next Step",
		"## Decisions",
		"- [decision] chose mtime ordering for rotation",
		"## Unresolved Errors",
		"- [missing_resource] no such file or directory (old.go)",
		"## Phase Flow",
		"research → implementation",
		"## Command History",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered snapshot missing %q", want)
		}
	}

	// Task comes before the work-oriented sections.
	if strings.Index(out, "## Task") > strings.Index(out, "## Decisions") {
		t.Error("section order wrong: Task after Decisions")
	}
}

func TestNextStep(t *testing.T) {
	f := sampleFacts()
	// Unresolved error wins when there is no intent decision.
	got := NextStep(f)
	if !strings.Contains(got, "missing_resource") || !strings.Contains(got, "old.go") {
		t.Errorf("NextStep = %q", got)
	}

	f.Decisions = append(f.Decisions, types.Decision{Tier: types.TierIntent, Text: "I'll add the eviction test next"})
	if got := NextStep(f); got != "I'll add the eviction test next" {
		t.Errorf("NextStep with intent = %q", got)
	}

	f.Decisions = nil
	f.Errors = nil
	if got := NextStep(f); !strings.Contains(got, "continue") {
		t.Errorf("fallback NextStep = %q", got)
	}
}

func TestFinalize_UnderBudgetUntouched(t *testing.T) {
	doc := Compile(Input{Facts: sampleFacts()})
	out := doc.Finalize()

	if len(out) > MaxSnapshotChars {
		t.Fatalf("size = %d over budget", len(out))
	}
	if strings.Contains(out, "compaction-audit") {
		t.Error("audit comment present without compaction")
	}
}

func TestFinalize_BudgetInvariant(t *testing.T) {
	f := sampleFacts()
	// Inflate commands and the work log far beyond the budget.
	for i := 0; i < 2000; i++ {
		f.Commands = append(f.Commands, fmt.Sprintf("go test -run TestCase%04d ./... # %s", i, strings.Repeat("x", 80)))
	}
	var log []worklog.Entry
	for i := 0; i < 500; i++ {
		log = append(log, worklog.Entry{Timestamp: "2026-08-29T10:00:00Z", Tool: "Edit", File: fmt.Sprintf("pkg/file%04d.go", i)})
	}

	doc := Compile(Input{Facts: f, WorkLog: log})
	if doc.Size() <= MaxSnapshotChars {
		t.Fatalf("test input too small to force compaction: %d", doc.Size())
	}

	out := doc.Finalize()
	if len(out) > MaxSnapshotChars {
		t.Fatalf("size = %d, budget %d violated", len(out), MaxSnapshotChars)
	}

	// Immortal content survives.
	for _, want := range []string{"<!-- IMMORTAL: task -->", "Add rotation to the archive store", "## Next Step"} {
		if !strings.Contains(out, want) {
			t.Errorf("immortal content lost: %q", want)
		}
	}

	// Audit trail records what ran.
	if !strings.Contains(out, "<!-- compaction-audit:") {
		t.Error("audit comment missing")
	}
	if !strings.Contains(out, fmt.Sprintf("/%dch -->", MaxSnapshotChars)) {
		t.Error("audit missing final size against budget")
	}
}

func TestCompressCommandsPhase(t *testing.T) {
	f := sampleFacts()
	f.Commands = nil
	for i := 0; i < 20; i++ {
		f.Commands = append(f.Commands, fmt.Sprintf("cmd-%02d", i))
	}
	doc := Compile(Input{Facts: f})

	phaseCompressCommands(doc)
	s := doc.section(SectionCommands)
	if s == nil {
		t.Fatal("commands section missing")
	}
	// 3 head + elision marker + 5 tail.
	if len(s.Lines) != commandsKeepHead+commandsKeepTail+1 {
		t.Fatalf("lines = %d: %v", len(s.Lines), s.Lines)
	}
	if s.Lines[0] != "- cmd-00" || s.Lines[len(s.Lines)-1] != "- cmd-19" {
		t.Errorf("head/tail wrong: %v", s.Lines)
	}
	if !strings.Contains(s.Lines[commandsKeepHead], "12 commands omitted") {
		t.Errorf("elision marker = %q", s.Lines[commandsKeepHead])
	}
}

func TestIsRich(t *testing.T) {
	thin := "# Session Snapshot\nshort"
	if IsRich(thin) {
		t.Error("thin snapshot classified rich")
	}

	rich := "# Session Snapshot\n## Task\nDo things\n## Decisions\n- [decision] x\n"
	if !IsRich(rich) {
		t.Error("snapshot with two section markers not rich")
	}

	bigNoSections := strings.Repeat("x", MinRichSize) + "\n## Task\nfoo"
	if !IsRich(bigNoSections) {
		t.Error("size plus one marker should be rich")
	}
}

func TestWriteLatest_Guard(t *testing.T) {
	path := filepath.Join(t.TempDir(), "latest.md")
	rich := "## Task\nReal work\n## Decisions\n- [decision] use X\n"

	wrote, err := WriteLatest(path, rich, 10)
	if err != nil || !wrote {
		t.Fatalf("initial write failed: wrote=%v err=%v", wrote, err)
	}

	// Zero-tool extraction must not clobber a rich snapshot.
	wrote, err = WriteLatest(path, "empty", 0)
	if err != nil {
		t.Fatalf("guarded write errored: %v", err)
	}
	if wrote {
		t.Error("zero-tool extraction overwrote a rich snapshot")
	}
	data, _ := os.ReadFile(path)
	if string(data) != rich {
		t.Errorf("snapshot content changed: %q", data)
	}

	// A real extraction may overwrite.
	wrote, err = WriteLatest(path, "## Task\nNew work\n## Decisions\n- [decision] y\n", 3)
	if err != nil || !wrote {
		t.Fatalf("real write failed: wrote=%v err=%v", wrote, err)
	}
}

func TestWriteLatest_RejectsMarkedlyWorse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "latest.md")
	rich := "## Task\nMigrate the store\n" + strings.Repeat("detail line\n", 400) +
		"## Decisions\n- [decision] use X\n## Work Log\n- Edit store.go\n"

	wrote, err := WriteLatest(path, rich, 10)
	if err != nil || !wrote {
		t.Fatalf("initial write failed: wrote=%v err=%v", wrote, err)
	}

	// Even with tool uses, a snapshot under half the size with fewer section
	// markers must not replace the richer one.
	thin := "## Task\ncontinue working\n"
	wrote, err = WriteLatest(path, thin, 1)
	if err != nil {
		t.Fatalf("guarded write errored: %v", err)
	}
	if wrote {
		t.Error("markedly worse snapshot overwrote a richer one")
	}
	data, _ := os.ReadFile(path)
	if string(data) != rich {
		t.Errorf("snapshot content changed: %q", data)
	}

	// A comparable snapshot with the same markers still replaces it.
	fresh := "## Task\nNext phase\n" + strings.Repeat("progress line\n", 300) +
		"## Decisions\n- [decision] use Y\n## Work Log\n- Edit planner.go\n"
	wrote, err = WriteLatest(path, fresh, 4)
	if err != nil || !wrote {
		t.Fatalf("comparable write failed: wrote=%v err=%v", wrote, err)
	}
}

func TestEstimateTokens(t *testing.T) {
	// Empty transcript still costs the system overhead.
	if got := EstimateTokens(0, 0, 0); got != SystemOverheadTokens {
		t.Errorf("empty estimate = %d, want %d", got, SystemOverheadTokens)
	}

	small := EstimateTokens(10_000, 20, 8_000)
	large := EstimateTokens(1_000_000, 2_000, 800_000)
	if small >= large {
		t.Errorf("estimate not monotonic: small=%d large=%d", small, large)
	}

	if OverThreshold(small) {
		t.Error("small session over threshold")
	}
	if !OverThreshold(large) {
		t.Error("large session under threshold")
	}
}

func TestCaptureSOT(t *testing.T) {
	dir := t.TempDir()
	if got := CaptureSOT(dir); got != "" {
		t.Errorf("empty dir SOT = %q", got)
	}

	if err := os.WriteFile(filepath.Join(dir, "state.yaml"), []byte("phase: build\nstep: 3\n"), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	got := CaptureSOT(dir)
	if !strings.Contains(got, "From state.yaml") || !strings.Contains(got, "phase: build") {
		t.Errorf("SOT = %q", got)
	}

	// Invalid YAML is ignored rather than embedded.
	bad := t.TempDir()
	if err := os.WriteFile(filepath.Join(bad, "state.yaml"), []byte(":\n\t- {"), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if got := CaptureSOT(bad); got != "" {
		t.Errorf("invalid YAML captured: %q", got)
	}
}
