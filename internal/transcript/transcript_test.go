package transcript

import (
	"strings"
	"testing"
)

func TestReader_Parse(t *testing.T) {
	jsonl := `{"type":"user","sessionId":"s1","timestamp":"2026-08-01T10:00:00.000Z","uuid":"1","message":{"role":"user","content":"Fix the parser"}}
{"type":"assistant","sessionId":"s1","timestamp":"2026-08-01T10:00:10.000Z","uuid":"2","message":{"role":"assistant","content":"On it"}}
`
	p := NewReader()
	result, err := p.Parse(strings.NewReader(jsonl))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if result.TotalLines != 2 {
		t.Errorf("TotalLines = %d, want 2", result.TotalLines)
	}
	if len(result.Messages) != 2 {
		t.Fatalf("Messages count = %d, want 2", len(result.Messages))
	}
	if result.Messages[0].Role != "user" {
		t.Errorf("first message role = %q, want %q", result.Messages[0].Role, "user")
	}
	if result.SessionID() != "s1" {
		t.Errorf("SessionID = %q, want %q", result.SessionID(), "s1")
	}
	if result.Checksum == "" {
		t.Error("checksum not computed")
	}
}

func TestReader_SkipMalformed(t *testing.T) {
	jsonl := `{"type":"user","sessionId":"s1","timestamp":"2026-08-01T10:00:00.000Z","uuid":"1","message":{"role":"user","content":"Valid line here"}}
{not json at all
{"type":"assistant","sessionId":"s1","timestamp":"2026-08-01T10:00:10.000Z","uuid":"2","message":{"role":"assistant","content":"Also valid"}}
`
	p := NewReader()
	result, err := p.Parse(strings.NewReader(jsonl))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if result.MalformedLines != 1 {
		t.Errorf("MalformedLines = %d, want 1", result.MalformedLines)
	}
	if len(result.Messages) != 2 {
		t.Errorf("Messages count = %d, want 2", len(result.Messages))
	}
}

func TestReader_ToolBlocks(t *testing.T) {
	jsonl := `{"type":"assistant","sessionId":"s1","timestamp":"2026-08-01T10:00:00.000Z","uuid":"1","message":{"role":"assistant","content":[{"type":"tool_use","id":"tu_1","name":"Edit","input":{"file_path":"main.go"}}]}}
{"type":"user","sessionId":"s1","timestamp":"2026-08-01T10:00:05.000Z","uuid":"2","message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"tu_1","is_error":true,"content":"old_string not found in file"}]}}
`
	p := NewReader()
	result, err := p.Parse(strings.NewReader(jsonl))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(result.Messages) != 2 {
		t.Fatalf("Messages count = %d, want 2", len(result.Messages))
	}

	use := result.Messages[0].Tools
	if len(use) != 1 || use[0].Name != "Edit" || use[0].ID != "tu_1" {
		t.Fatalf("tool use not parsed: %+v", use)
	}
	if use[0].FilePath() != "main.go" {
		t.Errorf("FilePath = %q, want main.go", use[0].FilePath())
	}

	res := result.Messages[1].Tools
	if len(res) != 1 || res[0].Name != "tool_result" || res[0].ID != "tu_1" {
		t.Fatalf("tool result not parsed: %+v", res)
	}
	if res[0].Error == "" {
		t.Error("is_error flag not captured")
	}
	if !strings.Contains(res[0].Output, "old_string not found") {
		t.Errorf("result output = %q", res[0].Output)
	}
}

func TestReader_Truncation(t *testing.T) {
	long := strings.Repeat("x", 2000)
	jsonl := `{"type":"user","sessionId":"s1","timestamp":"2026-08-01T10:00:00.000Z","uuid":"1","message":{"role":"user","content":"` + long + `"}}`

	p := NewReader()
	p.MaxContentLength = 100

	result, err := p.Parse(strings.NewReader(jsonl))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(result.Messages) != 1 {
		t.Fatalf("Messages count = %d, want 1", len(result.Messages))
	}
	if !strings.HasSuffix(result.Messages[0].Content, "... [truncated]") {
		t.Errorf("content not truncated: %q", result.Messages[0].Content)
	}
}

func TestReader_SkipNonMessageTypes(t *testing.T) {
	jsonl := `{"type":"file-history-snapshot","messageId":"123","snapshot":{}}
{"type":"summary","summary":"compacted"}
{"type":"user","sessionId":"s1","timestamp":"2026-08-01T10:00:00.000Z","uuid":"1","message":{"role":"user","content":"Real message here"}}
`
	p := NewReader()
	result, err := p.Parse(strings.NewReader(jsonl))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(result.Messages) != 1 {
		t.Errorf("Messages count = %d, want 1", len(result.Messages))
	}
}

func TestParseError_Error(t *testing.T) {
	e := &ParseError{Line: 7, Message: "invalid JSON", ErrorType: "json"}
	got := e.Error()
	if !strings.Contains(got, "line 7") || !strings.Contains(got, "json") {
		t.Errorf("Error() = %q", got)
	}
}
