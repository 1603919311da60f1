// Package types defines the shared data model for transcript parsing,
// fact extraction, phase analysis, and the knowledge archive.
package types

import "time"

// TranscriptMessage represents a single parsed message from a session transcript.
type TranscriptMessage struct {
	// Type is the message type (user, assistant, tool_use, tool_result).
	Type string `json:"type"`

	// Timestamp when the message occurred.
	Timestamp time.Time `json:"timestamp"`

	// Role is the speaker role (user, assistant).
	Role string `json:"role"`

	// Content is the text content.
	Content string `json:"content"`

	// Tools contains any tool calls in this message.
	Tools []ToolCall `json:"tools,omitempty"`

	// SessionID links back to the session.
	SessionID string `json:"session_id"`

	// MessageIndex is the position in the transcript.
	MessageIndex int `json:"message_index"`
}

// ToolCall represents a tool invocation or its result.
type ToolCall struct {
	// Name is the tool name (Edit, Read, Bash, etc), or "tool_result" for results.
	Name string `json:"name"`

	// ID is the tool_use_id linking a use to its result.
	ID string `json:"id,omitempty"`

	// Input contains the tool parameters.
	Input map[string]any `json:"input,omitempty"`

	// Output is the tool result (truncated).
	Output string `json:"output,omitempty"`

	// Error is set if the tool failed.
	Error string `json:"error,omitempty"`
}

// FilePath returns the file path from the tool input, if present.
func (tc *ToolCall) FilePath() string {
	if tc.Input == nil {
		return ""
	}
	for _, key := range []string{"file_path", "path", "notebook_path"} {
		if v, ok := tc.Input[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// Command returns the shell command from the tool input, if present.
func (tc *ToolCall) Command() string {
	if tc.Input == nil {
		return ""
	}
	if v, ok := tc.Input["command"].(string); ok {
		return v
	}
	return ""
}

// Decision quality tiers, from strongest to weakest evidence.
const (
	TierExplicit  = "explicit"  // Marked decision comments in assistant text
	TierDecision  = "decision"  // Choice language (chose X over Y, going with)
	TierRationale = "rationale" // Reasoning language (because, Rationale:)
	TierIntent    = "intent"    // Forward-looking statements (will, next I'll)
)

// Decision is a single extracted decision statement.
type Decision struct {
	// Tier is the quality tier (explicit, decision, rationale, intent).
	Tier string `json:"tier"`

	// Text is the decision statement, single line.
	Text string `json:"text"`

	// MessageIndex locates the statement in the transcript.
	MessageIndex int `json:"message_index"`
}

// ErrorEvent is a classified error observed in tool output.
type ErrorEvent struct {
	// Category is the taxonomy category (missing_resource, version_control, etc).
	Category string `json:"category"`

	// Snippet is a short excerpt of the error text.
	Snippet string `json:"snippet"`

	// File is the file involved, if one could be determined.
	File string `json:"file,omitempty"`

	// Command is the command that produced the error, if any.
	Command string `json:"command,omitempty"`

	// MessageIndex locates the error in the transcript.
	MessageIndex int `json:"message_index"`

	// Resolved is true when a later successful action addressed this error.
	Resolved bool `json:"resolved"`

	// ResolvedByIndex is the message index of the resolving action.
	ResolvedByIndex int `json:"resolved_by_index,omitempty"`

	// ResolvedBy names the resolving action (command head or tool name).
	ResolvedBy string `json:"resolved_by,omitempty"`
}

// SuccessPattern records a file modification confirmed by a later successful
// verifying action. The symmetric counterpart of an error resolution.
type SuccessPattern struct {
	// File is the modified file.
	File string `json:"file"`

	// Tool is the modifying tool (Edit, Write, ...).
	Tool string `json:"tool"`

	// MessageIndex locates the modification in the transcript.
	MessageIndex int `json:"message_index"`

	// VerifiedBy names the verifying action (command head or tool name).
	VerifiedBy string `json:"verified_by"`

	// VerifiedIndex is the message index of the verifying action.
	VerifiedIndex int `json:"verified_index"`
}

// CompletionSignal is a completion phrase found in assistant text.
type CompletionSignal struct {
	Phrase       string `json:"phrase"`
	MessageIndex int    `json:"message_index"`
}

// SessionFacts is the deterministic extraction output for one session.
type SessionFacts struct {
	// SessionID from the transcript (may be empty).
	SessionID string `json:"session_id"`

	// UserTask is the first substantive user message.
	UserTask string `json:"user_task"`

	// ModifiedFiles lists files touched by Edit/Write tools, in first-touch order.
	ModifiedFiles []string `json:"modified_files"`

	// ReadFiles lists files touched by Read, in first-touch order.
	ReadFiles []string `json:"read_files"`

	// Decisions in tier-then-transcript order, at most MaxDecisions.
	Decisions []Decision `json:"decisions"`

	// Errors are classified error events, resolution-annotated.
	Errors []ErrorEvent `json:"errors"`

	// Completions are completion signals from assistant messages.
	Completions []CompletionSignal `json:"completions"`

	// Successes are verified modifications, resolution-style matched.
	Successes []SuccessPattern `json:"successes"`

	// Commands lists Bash commands in order.
	Commands []string `json:"commands"`

	// ToolCounts maps tool name to invocation count.
	ToolCounts map[string]int `json:"tool_counts"`

	// ToolUses is the total number of tool invocations.
	ToolUses int `json:"tool_uses"`

	// MessageCount is the total parsed message count.
	MessageCount int `json:"message_count"`

	// LastAssistant is the final assistant message (truncated).
	LastAssistant string `json:"last_assistant"`
}

// UnresolvedErrors returns the error events without a matched resolution.
func (f *SessionFacts) UnresolvedErrors() []ErrorEvent {
	var out []ErrorEvent
	for _, e := range f.Errors {
		if !e.Resolved {
			out = append(out, e)
		}
	}
	return out
}
