// Package analyze classifies session work phases and tool usage patterns
// from the paired tool timeline. Classification uses a sliding window over
// tool uses so a session that researches, then implements, reports both.
package analyze

import (
	"github.com/boshu2/contextkeeper/internal/facts"
	"github.com/boshu2/contextkeeper/internal/types"
)

const (
	// WindowSize is the number of tool uses per classification window.
	WindowSize = 20

	// windowStep gives 50% overlap between consecutive windows.
	windowStep = WindowSize / 2
)

// Tool classes for phase classification.
var (
	readTools = map[string]bool{
		"Read": true, "Grep": true, "Glob": true, "LS": true,
		"WebFetch": true, "WebSearch": true,
	}
	writeTools = map[string]bool{
		"Edit": true, "Write": true, "MultiEdit": true, "NotebookEdit": true,
	}
	planTools = map[string]bool{
		"TodoWrite": true, "ExitPlanMode": true, "EditPlan": true,
	}
	taskTools = map[string]bool{
		"Task": true, "Agent": true,
	}
)

// Analyze produces the phase and pattern analysis for a session timeline.
func Analyze(events []facts.ToolEvent) *types.Analysis {
	a := &types.Analysis{}

	a.Windows = classifyWindows(events)
	a.Flow = collapseFlow(a.Windows)
	a.DominantPhase = dominantPhase(a.Windows)
	a.Sequence = encodeSequence(events)
	a.Stats = computeStats(events)
	a.FinalStatus = classifyStatus(events, a.Stats)

	return a
}

// classifyWindows slides a window over the tool uses, classifying each.
// A timeline shorter than one window yields a single window covering it.
func classifyWindows(events []facts.ToolEvent) []types.PhaseWindow {
	if len(events) == 0 {
		return nil
	}

	var windows []types.PhaseWindow
	for start := 0; ; start += windowStep {
		end := start + WindowSize
		if end > len(events) {
			end = len(events)
		}
		windows = append(windows, types.PhaseWindow{
			Start: start,
			End:   end,
			Phase: classifyWindow(events[start:end]),
		})
		if end == len(events) {
			break
		}
	}
	return windows
}

// classifyWindow applies the phase rules to one window of tool uses.
// Rule order matters: planning signals are rare and decisive, orchestration
// next, then the read/write ratios.
func classifyWindow(window []facts.ToolEvent) types.Phase {
	var reads, writes, plans, tasks, total int
	for _, ev := range window {
		if ev.Name == "" {
			continue
		}
		total++
		switch {
		case readTools[ev.Name]:
			reads++
		case writeTools[ev.Name]:
			writes++
		case planTools[ev.Name]:
			plans++
		case taskTools[ev.Name]:
			tasks++
		}
	}

	if total == 0 {
		return types.PhaseUnknown
	}

	switch {
	case plans > 0 && plans >= writes:
		return types.PhasePlanning
	case float64(tasks)/float64(total) > 0.3:
		return types.PhaseOrchestration
	case float64(reads)/float64(total) > 0.6:
		return types.PhaseResearch
	case float64(writes)/float64(total) > 0.4:
		return types.PhaseImplementation
	case reads > writes:
		return types.PhaseResearch
	default:
		return types.PhaseImplementation
	}
}

// collapseFlow removes consecutive duplicate phases from the window sequence.
func collapseFlow(windows []types.PhaseWindow) []types.Phase {
	var flow []types.Phase
	for _, w := range windows {
		if len(flow) == 0 || flow[len(flow)-1] != w.Phase {
			flow = append(flow, w.Phase)
		}
	}
	return flow
}

// dominantPhase returns the phase covering the most windows, earliest wins ties.
func dominantPhase(windows []types.PhaseWindow) types.Phase {
	if len(windows) == 0 {
		return types.PhaseUnknown
	}
	counts := make(map[types.Phase]int)
	for _, w := range windows {
		counts[w.Phase]++
	}
	best := windows[0].Phase
	for _, w := range windows {
		if counts[w.Phase] > counts[best] {
			best = w.Phase
		}
	}
	return best
}

// encodeSequence run-length encodes consecutive same-tool uses.
func encodeSequence(events []facts.ToolEvent) []types.ToolRun {
	var runs []types.ToolRun
	for _, ev := range events {
		if ev.Name == "" {
			continue
		}
		if len(runs) > 0 && runs[len(runs)-1].Tool == ev.Name {
			runs[len(runs)-1].Count++
			continue
		}
		runs = append(runs, types.ToolRun{Tool: ev.Name, Count: 1})
	}
	return runs
}

// computeStats derives work rhythm statistics from the timeline.
func computeStats(events []facts.ToolEvent) types.WorkStats {
	var stats types.WorkStats
	cleanRun := 0
	for _, ev := range events {
		if ev.Failed {
			stats.Failures++
			cleanRun = 0
			continue
		}
		stats.Successes++
		cleanRun++
		if cleanRun > stats.LongestCleanRun {
			stats.LongestCleanRun = cleanRun
		}
	}
	if total := stats.Successes + stats.Failures; total > 0 {
		stats.ErrorRate = float64(stats.Failures) / float64(total)
	}
	return stats
}

// classifyStatus determines the session outcome. A session that never
// modified anything is unknown regardless of result counts.
func classifyStatus(events []facts.ToolEvent, stats types.WorkStats) string {
	modified := false
	for _, ev := range events {
		if writeTools[ev.Name] {
			modified = true
			break
		}
	}
	if !modified {
		return types.StatusUnknown
	}

	switch {
	case stats.Failures == 0 && stats.Successes > 0:
		return types.StatusSuccess
	case stats.Failures > 0 && stats.Successes > stats.Failures:
		return types.StatusIncomplete
	case stats.Failures > 0:
		return types.StatusError
	default:
		return types.StatusUnknown
	}
}
