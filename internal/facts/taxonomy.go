package facts

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/boshu2/contextkeeper/internal/types"
)

// Error taxonomy categories.
const (
	CategoryEditMismatch    = "edit_mismatch"
	CategoryVersionControl  = "version_control"
	CategoryCommandNotFound = "command_not_found"
	CategoryMissingResource = "missing_resource"
	CategoryPermission      = "permission"
	CategoryDependency      = "dependency"
	CategorySyntax          = "syntax"
	CategoryTypeError       = "type_error"
	CategoryValueError      = "value_error"
	CategoryConnection      = "connection"
	CategoryMemory          = "memory"
	CategoryTimeout         = "timeout"
	CategoryUnknown         = "unknown"
)

// ResolutionWindow is how many subsequent tool events are checked for a
// resolving action after an error.
const ResolutionWindow = 5

// errorRule maps a regex to a taxonomy category. Rules are evaluated in
// order; earlier rules are more specific and must win. Git authentication
// failures land in version_control, not permission, so the rule order matters.
type errorRule struct {
	category string
	pattern  *regexp.Regexp
}

var errorRules = []errorRule{
	{CategoryEditMismatch, regexp.MustCompile(`(?i)(old_string.*not found|string to replace.*not found|not found in file|no (?:exact )?match found in)`)},
	{CategoryVersionControl, regexp.MustCompile(`(?i)(fatal: not a git repository|merge conflict|git.*authentication failed|could not read Username|Permission denied \(publickey\)|fatal: unable to access|nothing to commit|rejected.*non-fast-forward)`)},
	{CategoryCommandNotFound, regexp.MustCompile(`(?i)(command not found|executable file not found|not recognized as an internal)`)},
	{CategoryMissingResource, regexp.MustCompile(`(?i)(no such file or directory|ENOENT|FileNotFoundError|file (?:does not exist|not found)|cannot find the (?:file|path))`)},
	{CategoryPermission, regexp.MustCompile(`(?i)(permission denied|EACCES|operation not permitted|read-only file system)`)},
	{CategoryDependency, regexp.MustCompile(`(?i)(ModuleNotFoundError|No module named|ImportError|cannot find module|cannot find package|undefined: \w|unresolved import)`)},
	{CategorySyntax, regexp.MustCompile(`(?i)(SyntaxError|syntax error|unexpected token|expected .* found)`)},
	{CategoryTypeError, regexp.MustCompile(`(?i)(TypeError|cannot use .* as .* value|mismatched types|incompatible type)`)},
	{CategoryValueError, regexp.MustCompile(`(?i)(ValueError|invalid (?:value|argument|literal))`)},
	{CategoryConnection, regexp.MustCompile(`(?i)(connection refused|ECONNREFUSED|connection reset|network is unreachable|could not resolve host|TLS handshake)`)},
	{CategoryMemory, regexp.MustCompile(`(?i)(out of memory|cannot allocate memory|MemoryError|OOM[- ]?kill)`)},
	{CategoryTimeout, regexp.MustCompile(`(?i)(timed out|timeout exceeded|deadline exceeded|ETIMEDOUT)`)},
}

// ClassifyErrorText returns the taxonomy category for an error string.
func ClassifyErrorText(text string) string {
	for _, rule := range errorRules {
		if rule.pattern.MatchString(text) {
			return rule.category
		}
	}
	return CategoryUnknown
}

// classifyErrors walks the tool timeline, classifies failed results, and
// annotates each error with a resolution when a later successful event within
// ResolutionWindow touches the same file or reruns the same command.
func classifyErrors(events []ToolEvent) []types.ErrorEvent {
	var errs []types.ErrorEvent

	for i, ev := range events {
		if !ev.Failed {
			continue
		}

		errEvent := types.ErrorEvent{
			Category:     ClassifyErrorText(ev.Output),
			Snippet:      truncate(firstLine(ev.Output), MaxSnippetLength),
			File:         ev.File,
			Command:      truncate(ev.Command, MaxCommandLength),
			MessageIndex: ev.MessageIndex,
		}

		if idx, ok := findResolution(events, i); ok {
			errEvent.Resolved = true
			errEvent.ResolvedByIndex = events[idx].MessageIndex
			errEvent.ResolvedBy = eventAction(events[idx])
		}

		errs = append(errs, errEvent)
	}

	return errs
}

// findResolution scans the forward window after the failed event at errIdx
// for a successful event on the same file (basename match) or the same
// command head.
func findResolution(events []ToolEvent, errIdx int) (int, bool) {
	failed := events[errIdx]
	limit := errIdx + ResolutionWindow
	if limit > len(events)-1 {
		limit = len(events) - 1
	}

	for i := errIdx + 1; i <= limit; i++ {
		candidate := events[i]
		if candidate.Failed {
			continue
		}
		if sameFile(failed.File, candidate.File) {
			return i, true
		}
		if failed.Command != "" && commandHead(failed.Command) == commandHead(candidate.Command) && candidate.Command != "" {
			return i, true
		}
	}
	return 0, false
}

// findSuccessPatterns is the success-side counterpart of resolution matching:
// a successful modification followed within the forward window by a successful
// verifying event on the same file, or a command naming its basename.
func findSuccessPatterns(events []ToolEvent) []types.SuccessPattern {
	var patterns []types.SuccessPattern

	for i, ev := range events {
		if !modifyingTools[ev.Name] || ev.Failed || ev.File == "" {
			continue
		}

		limit := i + ResolutionWindow
		if limit > len(events)-1 {
			limit = len(events) - 1
		}

		for j := i + 1; j <= limit; j++ {
			candidate := events[j]
			if candidate.Failed {
				continue
			}
			if !verifies(ev.File, candidate) {
				continue
			}
			patterns = append(patterns, types.SuccessPattern{
				File:          ev.File,
				Tool:          ev.Name,
				MessageIndex:  ev.MessageIndex,
				VerifiedBy:    eventAction(candidate),
				VerifiedIndex: candidate.MessageIndex,
			})
			break
		}
	}

	return patterns
}

// verifies reports whether a candidate event checks the modified file: a
// non-modifying tool on the same file, or a command mentioning its basename.
func verifies(file string, candidate ToolEvent) bool {
	if candidate.Command != "" && strings.Contains(candidate.Command, filepath.Base(file)) {
		return true
	}
	if candidate.Name == "" || modifyingTools[candidate.Name] {
		return false
	}
	return sameFile(file, candidate.File)
}

// eventAction names an event for pattern reporting: the command head for
// shell events, the tool name otherwise.
func eventAction(ev ToolEvent) string {
	if ev.Command != "" {
		return commandHead(ev.Command)
	}
	return ev.Name
}

// sameFile compares paths by basename so relative and absolute references
// to the same file still match.
func sameFile(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return filepath.Base(a) == filepath.Base(b)
}

// commandHead returns the first two words of a command, enough to identify
// a rerun without matching on volatile arguments.
func commandHead(cmd string) string {
	fields := strings.Fields(cmd)
	if len(fields) > 2 {
		fields = fields[:2]
	}
	return strings.Join(fields, " ")
}

// firstLine returns the first non-empty line of s.
func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
