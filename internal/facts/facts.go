// Package facts extracts deterministic session facts from parsed transcripts:
// file touches, decision statements, classified errors with resolutions, and
// completion signals. Extraction is pure; the same transcript always yields
// the same facts.
package facts

import (
	"strings"

	"github.com/boshu2/contextkeeper/internal/transcript"
	"github.com/boshu2/contextkeeper/internal/types"
)

// Limits on extracted fact collections.
const (
	// MaxDecisions is the total decision slots per session.
	MaxDecisions = 15

	// MaxIntentDecisions caps the weakest tier so intent chatter cannot
	// crowd out real decisions.
	MaxIntentDecisions = 3

	// MaxUserTaskLength bounds the captured user task text.
	MaxUserTaskLength = 500

	// MaxCommandLength bounds each captured shell command.
	MaxCommandLength = 200

	// MaxSnippetLength bounds error snippets.
	MaxSnippetLength = 240
)

// Tool names that modify files.
var modifyingTools = map[string]bool{
	"Edit":         true,
	"Write":        true,
	"MultiEdit":    true,
	"NotebookEdit": true,
}

// ToolEvent is one tool invocation paired with its result, in transcript order.
type ToolEvent struct {
	// Name is the tool name; empty for orphan results with no matched use.
	Name string

	// File is the target file path, if the tool takes one.
	File string

	// Command is the shell command, for Bash-like tools.
	Command string

	// Output is the (truncated) result text.
	Output string

	// Failed is true when the result carried an error flag.
	Failed bool

	// MessageIndex locates the tool use in the transcript.
	MessageIndex int
}

// Extract derives session facts and the paired tool timeline from a parse
// result.
func Extract(result *transcript.Result) (*types.SessionFacts, []ToolEvent) {
	f := &types.SessionFacts{
		SessionID:    result.SessionID(),
		ToolCounts:   make(map[string]int),
		MessageCount: len(result.Messages),
	}

	events := pairToolEvents(result.Messages)
	f.ToolUses = len(events)

	seenModified := make(map[string]bool)
	seenRead := make(map[string]bool)
	for _, ev := range events {
		if ev.Name == "" {
			continue
		}
		f.ToolCounts[ev.Name]++
		switch {
		case modifyingTools[ev.Name] && ev.File != "":
			if !seenModified[ev.File] {
				seenModified[ev.File] = true
				f.ModifiedFiles = append(f.ModifiedFiles, ev.File)
			}
		case ev.Name == "Read" && ev.File != "":
			if !seenRead[ev.File] {
				seenRead[ev.File] = true
				f.ReadFiles = append(f.ReadFiles, ev.File)
			}
		case ev.Command != "":
			f.Commands = append(f.Commands, truncate(ev.Command, MaxCommandLength))
		}
	}

	f.UserTask = extractUserTask(result.Messages)
	f.LastAssistant = extractLastAssistant(result.Messages)
	f.Decisions = extractDecisions(result.Messages)
	f.Errors = classifyErrors(events)
	f.Successes = findSuccessPatterns(events)
	f.Completions = extractCompletions(result.Messages)

	return f, events
}

// pairToolEvents walks the messages pairing tool_use blocks with their
// tool_result blocks by ID. A result with no matched use becomes an orphan
// event with an empty name.
func pairToolEvents(messages []types.TranscriptMessage) []ToolEvent {
	var events []ToolEvent
	pending := make(map[string]int) // tool_use_id -> index into events

	for _, msg := range messages {
		for i := range msg.Tools {
			tc := &msg.Tools[i]
			if tc.Name != "tool_result" {
				ev := ToolEvent{
					Name:         tc.Name,
					File:         tc.FilePath(),
					Command:      tc.Command(),
					MessageIndex: msg.MessageIndex,
				}
				events = append(events, ev)
				if tc.ID != "" {
					pending[tc.ID] = len(events) - 1
				}
				continue
			}

			if idx, ok := pending[tc.ID]; ok && tc.ID != "" {
				events[idx].Output = tc.Output
				events[idx].Failed = tc.Error != ""
				delete(pending, tc.ID)
				continue
			}

			// Orphan result: keep it so error classification still sees it.
			events = append(events, ToolEvent{
				Output:       tc.Output,
				Failed:       tc.Error != "",
				MessageIndex: msg.MessageIndex,
			})
		}
	}

	return events
}

// extractUserTask returns the first substantive user message, which anchors
// every snapshot and archive record.
func extractUserTask(messages []types.TranscriptMessage) string {
	for _, msg := range messages {
		if msg.Role != "user" || len(msg.Tools) > 0 {
			continue
		}
		text := strings.TrimSpace(msg.Content)
		if len(text) < 10 || strings.HasPrefix(text, "<") {
			continue
		}
		return truncate(text, MaxUserTaskLength)
	}
	return ""
}

// extractLastAssistant returns the final assistant text message.
func extractLastAssistant(messages []types.TranscriptMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		msg := messages[i]
		if msg.Role == "assistant" && strings.TrimSpace(msg.Content) != "" {
			return truncate(strings.TrimSpace(msg.Content), MaxUserTaskLength)
		}
	}
	return ""
}

// completionPhrases are scanned in the closing assistant messages.
var completionPhrases = []string{
	"all tests pass",
	"tests pass",
	"committed",
	"pushed",
	"completed",
	"finished",
	"done",
	"fixed",
	"working as expected",
}

// completionScanDepth is how many trailing assistant messages to scan.
const completionScanDepth = 5

// extractCompletions finds completion phrases in the last assistant messages.
func extractCompletions(messages []types.TranscriptMessage) []types.CompletionSignal {
	var signals []types.CompletionSignal
	scanned := 0
	for i := len(messages) - 1; i >= 0 && scanned < completionScanDepth; i-- {
		msg := messages[i]
		if msg.Role != "assistant" || strings.TrimSpace(msg.Content) == "" {
			continue
		}
		scanned++
		lower := strings.ToLower(msg.Content)
		for _, phrase := range completionPhrases {
			if strings.Contains(lower, phrase) {
				signals = append(signals, types.CompletionSignal{
					Phrase:       phrase,
					MessageIndex: msg.MessageIndex,
				})
				break
			}
		}
	}

	// Restore transcript order.
	for i, j := 0, len(signals)-1; i < j; i, j = i+1, j-1 {
		signals[i], signals[j] = signals[j], signals[i]
	}
	return signals
}

// truncate limits s to maxLen characters.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
