// Package worklog accumulates a JSONL log of tool activity between snapshots.
// Hooks append one entry per tool use; the snapshot compiler reads the log
// back, and a completed full save resets it so the log only ever covers the
// active window of work.
package worklog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/boshu2/contextkeeper/internal/durability"
)

// maxDetailLength bounds the free-form detail field per entry.
const maxDetailLength = 200

// Entry is one logged tool use.
type Entry struct {
	// Timestamp in RFC3339.
	Timestamp string `json:"ts"`

	// Tool is the tool name.
	Tool string `json:"tool"`

	// File is the target path for file-oriented tools.
	File string `json:"file,omitempty"`

	// Command is the shell command for Bash-like tools.
	Command string `json:"command,omitempty"`

	// Detail carries anything else worth keeping (pattern, URL, prompt).
	Detail string `json:"detail,omitempty"`
}

// NewEntry shapes a work log entry from a tool name and its input, following
// the tool's semantics: file tools record the path, shell tools the command,
// search tools the pattern.
func NewEntry(tool string, input map[string]any, now time.Time) Entry {
	e := Entry{
		Timestamp: now.UTC().Format(time.RFC3339),
		Tool:      tool,
	}

	str := func(key string) string {
		if v, ok := input[key].(string); ok {
			return v
		}
		return ""
	}

	switch tool {
	case "Edit", "Write", "MultiEdit", "Read", "NotebookEdit":
		e.File = firstNonEmpty(str("file_path"), str("path"), str("notebook_path"))
	case "Bash":
		e.Command = clip(str("command"))
	case "Grep", "Glob":
		e.Detail = clip(firstNonEmpty(str("pattern"), str("glob")))
	case "WebFetch", "WebSearch":
		e.Detail = clip(firstNonEmpty(str("url"), str("query")))
	case "Task", "Agent":
		e.Detail = clip(str("description"))
	default:
		e.Detail = clip(str("description"))
	}

	return e
}

// Append writes the entry to the log at path, fsynced.
func Append(path string, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	return durability.AppendLine(path, data)
}

// Load reads all entries from the log at path. A missing log is an empty
// log; malformed lines are skipped.
func Load(path string) (entries []Entry, err error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue // Skip malformed lines
		}
		entries = append(entries, e)
	}

	return entries, scanner.Err()
}

// Reset truncates the log under lock after a completed full save.
func Reset(path string) error {
	return durability.WithLock(path, func() error {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil
		}
		return durability.AtomicWrite(path, nil)
	})
}

// String renders an entry as a single human-readable line.
func (e Entry) String() string {
	switch {
	case e.File != "":
		return fmt.Sprintf("%s %s %s", e.Timestamp, e.Tool, e.File)
	case e.Command != "":
		return fmt.Sprintf("%s %s: %s", e.Timestamp, e.Tool, e.Command)
	case e.Detail != "":
		return fmt.Sprintf("%s %s: %s", e.Timestamp, e.Tool, e.Detail)
	default:
		return fmt.Sprintf("%s %s", e.Timestamp, e.Tool)
	}
}

// clip bounds s to maxDetailLength and collapses newlines.
func clip(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > maxDetailLength {
		return s[:maxDetailLength] + "..."
	}
	return s
}

// firstNonEmpty returns the first non-empty string.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
