package types

// Phase is a classified work phase for a window of tool activity.
type Phase string

const (
	PhaseResearch       Phase = "research"
	PhasePlanning       Phase = "planning"
	PhaseImplementation Phase = "implementation"
	PhaseOrchestration  Phase = "orchestration"
	PhaseUnknown        Phase = "unknown"
)

// Session outcome classifications.
const (
	StatusSuccess    = "success"
	StatusIncomplete = "incomplete"
	StatusError      = "error"
	StatusUnknown    = "unknown"
)

// PhaseWindow is one classified sliding window over the tool sequence.
type PhaseWindow struct {
	// Start and End are tool-use indices (End exclusive).
	Start int   `json:"start"`
	End   int   `json:"end"`
	Phase Phase `json:"phase"`
}

// ToolRun is a run-length encoded stretch of consecutive same-tool uses.
type ToolRun struct {
	Tool  string `json:"tool"`
	Count int    `json:"count"`
}

// WorkStats summarizes the rhythm of a session.
type WorkStats struct {
	// Successes and Failures count tool results by outcome.
	Successes int `json:"successes"`
	Failures  int `json:"failures"`

	// ErrorRate is Failures / (Successes + Failures), 0 when no results.
	ErrorRate float64 `json:"error_rate"`

	// LongestCleanRun is the longest stretch of tool uses without a failure.
	LongestCleanRun int `json:"longest_clean_run"`
}

// Analysis is the phase and pattern analyzer output for one session.
type Analysis struct {
	// Windows are the classified sliding windows, in order.
	Windows []PhaseWindow `json:"windows"`

	// Flow is the phase sequence with consecutive duplicates collapsed.
	Flow []Phase `json:"flow"`

	// DominantPhase is the phase covering the most windows.
	DominantPhase Phase `json:"dominant_phase"`

	// Sequence is the run-length encoded tool sequence.
	Sequence []ToolRun `json:"sequence"`

	// FinalStatus is the session outcome classification.
	FinalStatus string `json:"final_status"`

	// Stats holds work rhythm statistics.
	Stats WorkStats `json:"stats"`
}

// FlowString renders the phase flow as "research → implementation".
func (a *Analysis) FlowString() string {
	if len(a.Flow) == 0 {
		return string(PhaseUnknown)
	}
	out := string(a.Flow[0])
	for _, p := range a.Flow[1:] {
		out += " → " + string(p)
	}
	return out
}
