// Package transcript provides streaming JSONL parsing for agent session
// transcripts. Lines that fail to parse are counted and skipped so a corrupt
// tail never loses the rest of a session.
package transcript

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/boshu2/contextkeeper/internal/types"
)

// DefaultMaxContentLength is the default truncation limit for content fields.
const DefaultMaxContentLength = 1500

// maxLineSize bounds a single transcript line; content blocks can carry
// whole file dumps.
const maxLineSize = 1024 * 1024

// Message type constants for transcript entries.
const (
	msgTypeUser       = "user"
	msgTypeAssistant  = "assistant"
	msgTypeToolUse    = "tool_use"
	msgTypeToolResult = "tool_result"
)

// messageTypes are the entry types carrying session content. Everything else
// (file snapshots, progress events, summaries) is ignored.
var messageTypes = map[string]bool{
	msgTypeUser:       true,
	msgTypeAssistant:  true,
	msgTypeToolUse:    true,
	msgTypeToolResult: true,
}

// Error classification constants for parse errors.
const (
	errClassJSON     = "json"
	errClassSchema   = "schema"
	errClassEncoding = "encoding"
)

// Reader handles streaming JSONL parsing with configurable options.
type Reader struct {
	// MaxContentLength is the maximum characters before truncation.
	MaxContentLength int

	// SkipMalformed skips malformed lines instead of collecting errors.
	SkipMalformed bool
}

// NewReader creates a reader with default settings.
func NewReader() *Reader {
	return &Reader{
		MaxContentLength: DefaultMaxContentLength,
		SkipMalformed:    true,
	}
}

// envelope is the outer JSON structure of a transcript line. Content is kept
// raw because it is either a plain string or a block array.
type envelope struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Timestamp string `json:"timestamp"`
	UUID      string `json:"uuid"`
	Message   *struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	} `json:"message,omitempty"`
}

// contentBlock is one element of a block-array message content. Fields are a
// union over text, tool_use, and tool_result block shapes.
type contentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text"`
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Input     map[string]any  `json:"input"`
	ToolUseID string          `json:"tool_use_id"`
	IsError   bool            `json:"is_error"`
	Content   json.RawMessage `json:"content"`
}

// Result contains the outcome of parsing a JSONL stream.
type Result struct {
	Messages       []types.TranscriptMessage
	TotalLines     int
	MalformedLines int
	Errors         []error

	// ContentChars is the total content length across messages, pre-truncation
	// inputs excluded. Feeds token estimation.
	ContentChars int

	// Checksum is the SHA256 of the raw stream, first 16 hex chars.
	Checksum string

	// FilePath is the source path when parsed from a file.
	FilePath string

	// ParsedAt is when parsing completed.
	ParsedAt time.Time
}

// SessionID returns the session ID from the first message that carries one.
func (r *Result) SessionID() string {
	for _, m := range r.Messages {
		if m.SessionID != "" {
			return m.SessionID
		}
	}
	return ""
}

// ParseError provides structured error information for parse failures.
type ParseError struct {
	Line       int    `json:"line"`
	Message    string `json:"message"`
	RawContent string `json:"raw_content,omitempty"`
	ErrorType  string `json:"error_type"` // "json", "schema", "encoding"
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s (%s)", e.Line, e.Message, e.ErrorType)
}

// Parse reads JSONL from r and returns parsed messages.
func (p *Reader) Parse(r io.Reader) (*Result, error) {
	result := &Result{
		Messages: make([]types.TranscriptMessage, 0),
	}

	hasher := sha256.New()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		result.TotalLines++

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		_, _ = hasher.Write(line)
		_, _ = hasher.Write([]byte("\n"))

		msg, err := p.parseLine(line, result.TotalLines)
		switch {
		case err != nil:
			result.MalformedLines++
			if !p.SkipMalformed {
				result.Errors = append(result.Errors, &ParseError{
					Line:       result.TotalLines,
					Message:    err.Error(),
					ErrorType:  classifyError(err),
					RawContent: truncateForError(string(line), 100),
				})
			}
		case msg != nil:
			result.ContentChars += len(msg.Content)
			result.Messages = append(result.Messages, *msg)
		}
	}

	if err := scanner.Err(); err != nil {
		return result, fmt.Errorf("scanner error: %w", err)
	}

	hash := hasher.Sum(nil)
	result.Checksum = hex.EncodeToString(hash[:8])
	result.ParsedAt = time.Now()

	return result, nil
}

// ParseFile parses a JSONL transcript by path.
func (p *Reader) ParseFile(path string) (result *Result, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	result, err = p.Parse(f)
	if result != nil {
		result.FilePath = path
	}
	return result, err
}

// parseLine decodes one JSON line. Non-message entry types yield (nil, nil).
func (p *Reader) parseLine(line []byte, lineNum int) (*types.TranscriptMessage, error) {
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	if !messageTypes[env.Type] {
		return nil, nil
	}

	msg := &types.TranscriptMessage{
		Type:         env.Type,
		Timestamp:    parseTimestamp(env.Timestamp),
		SessionID:    env.SessionID,
		MessageIndex: lineNum,
	}

	if env.Message != nil {
		msg.Role = env.Message.Role
		msg.Content, msg.Tools = p.decodeContent(env.Message.Content)
	}

	return msg, nil
}

// decodeContent handles the two content shapes: a plain string, or an array
// of text / tool_use / tool_result blocks.
func (p *Reader) decodeContent(raw json.RawMessage) (string, []types.ToolCall) {
	if len(raw) == 0 {
		return "", nil
	}

	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil {
		return p.truncate(plain), nil
	}

	var blocks []contentBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return "", nil
	}

	var text strings.Builder
	var tools []types.ToolCall
	for _, block := range blocks {
		switch block.Type {
		case "text":
			text.WriteString(p.truncate(block.Text))
		case msgTypeToolUse:
			if block.Name != "" {
				tools = append(tools, types.ToolCall{
					Name:  block.Name,
					ID:    block.ID,
					Input: block.Input,
				})
			}
		case msgTypeToolResult:
			tools = append(tools, p.decodeToolResult(block))
		}
	}
	return text.String(), tools
}

// decodeToolResult converts a tool_result block. The tool_use_id is preserved
// so extraction can pair results with their uses.
func (p *Reader) decodeToolResult(block contentBlock) types.ToolCall {
	call := types.ToolCall{
		Name: msgTypeToolResult,
		ID:   block.ToolUseID,
	}
	if block.IsError {
		call.Error = "tool error"
	}

	// Result content is a plain string or an array of text blocks.
	var plain string
	if err := json.Unmarshal(block.Content, &plain); err == nil {
		call.Output = p.truncate(plain)
		return call
	}

	var inner []contentBlock
	if err := json.Unmarshal(block.Content, &inner); err == nil {
		var out strings.Builder
		for _, b := range inner {
			if b.Text != "" {
				out.WriteString(p.truncate(b.Text))
			}
		}
		call.Output = out.String()
	}
	return call
}

// errClasses maps decode-error substrings to reporting classes; anything
// unrecognized counts as a JSON error.
var errClasses = []struct {
	substr string
	class  string
}{
	{"cannot unmarshal", errClassSchema},
	{"invalid UTF-8", errClassEncoding},
}

// classifyError determines the error type for structured reporting.
func classifyError(err error) string {
	msg := err.Error()
	for _, c := range errClasses {
		if strings.Contains(msg, c.substr) {
			return c.class
		}
	}
	return errClassJSON
}

// truncateForError limits error context to a reasonable size.
func truncateForError(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// parseTimestamp parses an RFC3339 timestamp, with or without fractional
// seconds. Returns zero time on failure.
func parseTimestamp(s string) time.Time {
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return ts
}

// truncate limits content to MaxContentLength characters.
func (p *Reader) truncate(s string) string {
	if p.MaxContentLength <= 0 || len(s) <= p.MaxContentLength {
		return s
	}
	return s[:p.MaxContentLength] + "... [truncated]"
}
