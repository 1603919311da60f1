package analyze

import (
	"testing"

	"github.com/boshu2/contextkeeper/internal/facts"
	"github.com/boshu2/contextkeeper/internal/types"
)

func events(names ...string) []facts.ToolEvent {
	out := make([]facts.ToolEvent, len(names))
	for i, n := range names {
		out[i] = facts.ToolEvent{Name: n, MessageIndex: i}
	}
	return out
}

func repeat(name string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = name
	}
	return out
}

func TestAnalyze_ResearchThenImplementation(t *testing.T) {
	// 20 reads followed by 10 edits: the first window is pure research,
	// the overlapping second window is write-heavy.
	names := append(repeat("Read", 20), repeat("Edit", 10)...)
	a := Analyze(events(names...))

	if len(a.Windows) != 2 {
		t.Fatalf("windows = %d, want 2", len(a.Windows))
	}
	if a.Windows[0].Phase != types.PhaseResearch {
		t.Errorf("window 0 = %q, want research", a.Windows[0].Phase)
	}
	if a.Windows[1].Phase != types.PhaseImplementation {
		t.Errorf("window 1 = %q, want implementation", a.Windows[1].Phase)
	}
	if got := a.FlowString(); got != "research → implementation" {
		t.Errorf("FlowString = %q", got)
	}
}

func TestAnalyze_FlowCollapsesDuplicates(t *testing.T) {
	// 40 reads: two windows, both research, one flow entry.
	a := Analyze(events(repeat("Read", 40)...))
	if len(a.Flow) != 1 || a.Flow[0] != types.PhaseResearch {
		t.Errorf("Flow = %v, want [research]", a.Flow)
	}
}

func TestClassifyWindow(t *testing.T) {
	tests := []struct {
		name  string
		names []string
		want  types.Phase
	}{
		{"empty", nil, types.PhaseUnknown},
		{"planning beats writes", []string{"TodoWrite", "Read", "Read"}, types.PhasePlanning},
		{"orchestration over 30pct", []string{"Task", "Task", "Read", "Read", "Read"}, types.PhaseOrchestration},
		{"research over 60pct", []string{"Read", "Read", "Grep", "Glob", "Bash"}, types.PhaseResearch},
		{"implementation over 40pct", []string{"Edit", "Edit", "Write", "Bash", "Read"}, types.PhaseImplementation},
		{"fallback reads win", []string{"Read", "Read", "Bash", "Bash", "Bash", "Edit"}, types.PhaseResearch},
		{"fallback writes win", []string{"Bash", "Bash", "Bash", "Edit", "Read"}, types.PhaseImplementation},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := classifyWindow(events(tc.names...)); got != tc.want {
				t.Errorf("classifyWindow = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestEncodeSequence(t *testing.T) {
	a := Analyze(events("Read", "Read", "Read", "Read", "Edit", "Edit", "Bash"))
	want := []types.ToolRun{{Tool: "Read", Count: 4}, {Tool: "Edit", Count: 2}, {Tool: "Bash", Count: 1}}

	if len(a.Sequence) != len(want) {
		t.Fatalf("Sequence = %v", a.Sequence)
	}
	for i, r := range want {
		if a.Sequence[i] != r {
			t.Errorf("Sequence[%d] = %v, want %v", i, a.Sequence[i], r)
		}
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		name string
		evs  []facts.ToolEvent
		want string
	}{
		{
			"read-only session is unknown",
			[]facts.ToolEvent{{Name: "Read"}, {Name: "Grep"}},
			types.StatusUnknown,
		},
		{
			"clean writes succeed",
			[]facts.ToolEvent{{Name: "Edit"}, {Name: "Bash"}},
			types.StatusSuccess,
		},
		{
			"some failures but mostly clean is incomplete",
			[]facts.ToolEvent{{Name: "Edit"}, {Name: "Bash", Failed: true}, {Name: "Bash"}, {Name: "Edit"}},
			types.StatusIncomplete,
		},
		{
			"failure dominated is error",
			[]facts.ToolEvent{{Name: "Edit", Failed: true}, {Name: "Bash", Failed: true}, {Name: "Write"}},
			types.StatusError,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := Analyze(tc.evs)
			if a.FinalStatus != tc.want {
				t.Errorf("FinalStatus = %q, want %q", a.FinalStatus, tc.want)
			}
		})
	}
}

func TestComputeStats(t *testing.T) {
	evs := []facts.ToolEvent{
		{Name: "Edit"}, {Name: "Edit"}, {Name: "Bash", Failed: true},
		{Name: "Edit"}, {Name: "Bash"}, {Name: "Bash"},
	}
	stats := computeStats(evs)

	if stats.Successes != 5 || stats.Failures != 1 {
		t.Errorf("successes/failures = %d/%d", stats.Successes, stats.Failures)
	}
	if stats.LongestCleanRun != 3 {
		t.Errorf("LongestCleanRun = %d, want 3", stats.LongestCleanRun)
	}
}
