// Package archive maintains the append-only knowledge index and the session
// snapshot archive. The index holds one record per session; re-archiving a
// session replaces its record in place rather than appending a duplicate.
package archive

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/boshu2/contextkeeper/internal/durability"
	"github.com/boshu2/contextkeeper/internal/types"
)

const (
	// DefaultBaseDir is the default data directory.
	DefaultBaseDir = ".contextkeeper"

	// SessionsDir holds archived session snapshots.
	SessionsDir = "sessions"

	// IndexFile is the knowledge index filename.
	IndexFile = "knowledge-index.jsonl"

	// MaxIndexEntries caps the knowledge index; oldest entries rotate out.
	MaxIndexEntries = 200

	// MaxSessionArchives caps the sessions directory by file count.
	MaxSessionArchives = 20
)

// Record is one knowledge index entry.
type Record struct {
	SessionID         string   `json:"session_id"`
	Timestamp         string   `json:"timestamp"`
	UserTask          string   `json:"user_task"`
	ModifiedFiles     []string `json:"modified_files"`
	ReadFiles         []string `json:"read_files"`
	ToolsUsed         []string `json:"tools_used"`
	FinalStatus       string   `json:"final_status"`
	Tags              []string `json:"tags"`
	Phase             string   `json:"phase"`
	CompletionSummary string   `json:"completion_summary"`

	// PhaseFlow is the collapsed phase sequence ("research → implementation").
	PhaseFlow string `json:"phase_flow"`

	// PrimaryLanguage is the dominant language tag of the touched files.
	PrimaryLanguage string `json:"primary_language"`

	// ErrorPatterns are the error categories hit, deduplicated.
	ErrorPatterns []string `json:"error_patterns"`

	// ResolutionPatterns record how errors were resolved ("category via action").
	ResolutionPatterns []string `json:"resolution_patterns"`

	// SuccessPatterns record verified modifications ("Edit file verified by action").
	SuccessPatterns []string `json:"success_patterns"`

	// DurationMessages is the transcript length in messages, a rough
	// session-duration metric.
	DurationMessages int `json:"duration_messages"`

	// GeneratedID marks records whose session ID was synthesized because the
	// transcript carried none. These are exempt from dedup.
	GeneratedID bool `json:"generated_id,omitempty"`
}

// Store is the file-backed knowledge archive.
type Store struct {
	// BaseDir is the root data directory.
	BaseDir string

	mu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithBaseDir sets the base directory.
func WithBaseDir(dir string) Option {
	return func(s *Store) {
		s.BaseDir = dir
	}
}

// NewStore creates a knowledge archive store.
func NewStore(opts ...Option) *Store {
	s := &Store{BaseDir: DefaultBaseDir}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init creates the required directory structure.
func (s *Store) Init() error {
	dirs := []string{
		s.BaseDir,
		filepath.Join(s.BaseDir, SessionsDir),
	}
	for _, dir := range dirs {
		if err := durability.Init(dir); err != nil {
			return err
		}
	}
	return nil
}

// IndexPath returns the full path of the knowledge index.
func (s *Store) IndexPath() string {
	return filepath.Join(s.BaseDir, IndexFile)
}

// GetSessionsDir returns the full path to the sessions archive directory.
func (s *Store) GetSessionsDir() string {
	return filepath.Join(s.BaseDir, SessionsDir)
}

// NewRecord builds an index record from session facts and analysis.
// A transcript without a session ID gets a generated ULID so the record is
// still addressable; such records are exempt from dedup.
func NewRecord(f *types.SessionFacts, a *types.Analysis, now time.Time) *Record {
	touched := append(append([]string{}, f.ModifiedFiles...), f.ReadFiles...)
	r := &Record{
		SessionID:          f.SessionID,
		Timestamp:          now.UTC().Format(time.RFC3339),
		UserTask:           f.UserTask,
		ModifiedFiles:      f.ModifiedFiles,
		ReadFiles:          f.ReadFiles,
		ToolsUsed:          toolNames(f.ToolCounts),
		Tags:               ExtractTags(touched),
		CompletionSummary:  completionSummary(f),
		PrimaryLanguage:    PrimaryLanguage(touched),
		ErrorPatterns:      errorPatterns(f),
		ResolutionPatterns: resolutionPatterns(f),
		SuccessPatterns:    successPatterns(f),
		DurationMessages:   f.MessageCount,
	}
	if a != nil {
		r.FinalStatus = a.FinalStatus
		r.Phase = string(a.DominantPhase)
		r.PhaseFlow = a.FlowString()
	}
	if r.SessionID == "" {
		r.SessionID = newFallbackID(now)
		r.GeneratedID = true
	}
	Validate(r)
	return r
}

// Validate fills safe defaults for missing fields. Records are never
// rejected: a partial record in the index beats a lost session.
func Validate(r *Record) {
	if r.SessionID == "" {
		r.SessionID = newFallbackID(time.Now())
		r.GeneratedID = true
	}
	if r.Timestamp == "" {
		r.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	if r.UserTask == "" {
		r.UserTask = "(unknown task)"
	}
	if r.FinalStatus == "" {
		r.FinalStatus = types.StatusUnknown
	}
	if r.Phase == "" {
		r.Phase = string(types.PhaseUnknown)
	}
	if r.ModifiedFiles == nil {
		r.ModifiedFiles = []string{}
	}
	if r.ReadFiles == nil {
		r.ReadFiles = []string{}
	}
	if r.ToolsUsed == nil {
		r.ToolsUsed = []string{}
	}
	if r.Tags == nil {
		r.Tags = []string{}
	}
	if r.ErrorPatterns == nil {
		r.ErrorPatterns = []string{}
	}
	if r.ResolutionPatterns == nil {
		r.ResolutionPatterns = []string{}
	}
	if r.SuccessPatterns == nil {
		r.SuccessPatterns = []string{}
	}
}

// ReplaceOrAppend writes the record to the index. An existing record with
// the same session ID is replaced via atomic rewrite; otherwise the record
// is appended and fsynced. The whole operation runs under an advisory lock,
// degrading to a plain append when the lock is unavailable.
func (s *Store) ReplaceOrAppend(r *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	Validate(r)
	indexPath := s.IndexPath()

	return durability.WithLock(indexPath, func() error {
		if !r.GeneratedID && s.hasRecord(indexPath, r.SessionID) {
			return s.rewriteWithReplacement(indexPath, r)
		}
		if err := appendRecord(indexPath, r); err != nil {
			return err
		}
		return s.rotateIndex(indexPath)
	})
}

// Load returns all index records, oldest first. Malformed lines are skipped.
func (s *Store) Load() (records []Record, err error) {
	f, err := os.Open(s.IndexPath())
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
		var r Record
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			continue // Skip malformed lines
		}
		records = append(records, r)
	}

	return records, scanner.Err()
}

// LastN returns the newest n records, oldest of those first.
func (s *Store) LastN(n int) ([]Record, error) {
	records, err := s.Load()
	if err != nil {
		return nil, err
	}
	if len(records) > n {
		records = records[len(records)-n:]
	}
	return records, nil
}

// WriteSessionArchive stores a full snapshot in the sessions directory and
// rotates old archives out. Returns the written path.
func (s *Store) WriteSessionArchive(sessionID, content string, now time.Time) (string, error) {
	shortID := sessionID
	if len(shortID) > 7 {
		shortID = shortID[:7]
	}
	name := fmt.Sprintf("%s-%s.md", now.Format("2006-01-02-150405"), shortID)
	path := filepath.Join(s.GetSessionsDir(), name)

	if err := durability.AtomicWrite(path, []byte(content)); err != nil {
		return "", fmt.Errorf("write session archive: %w", err)
	}

	if _, err := durability.RotateByPattern(s.GetSessionsDir(), "*.md", MaxSessionArchives); err != nil {
		return path, fmt.Errorf("rotate session archives: %w", err)
	}
	return path, nil
}

// hasRecord checks whether sessionID already exists in the index.
func (s *Store) hasRecord(indexPath, sessionID string) bool {
	f, err := os.Open(indexPath)
	if err != nil {
		return false
	}
	defer func() {
		_ = f.Close() //nolint:errcheck // read-only check, errors non-critical
	}()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var r Record
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			continue
		}
		if r.SessionID == sessionID {
			return true
		}
	}
	return false
}

// rewriteWithReplacement rewrites the index atomically with the record for
// r.SessionID replaced in place.
func (s *Store) rewriteWithReplacement(indexPath string, r *Record) error {
	records, err := s.Load()
	if err != nil {
		return fmt.Errorf("load index: %w", err)
	}

	replaced := false
	for i := range records {
		if records[i].SessionID == r.SessionID {
			records[i] = *r
			replaced = true
			break
		}
	}
	if !replaced {
		records = append(records, *r)
	}
	records = trimOldest(records)

	return durability.AtomicWriteFunc(indexPath, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		for i := range records {
			if err := enc.Encode(&records[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// rotateIndex rewrites the index keeping only the newest MaxIndexEntries.
func (s *Store) rotateIndex(indexPath string) error {
	records, err := s.Load()
	if err != nil {
		return err
	}
	if len(records) <= MaxIndexEntries {
		return nil
	}
	records = trimOldest(records)

	return durability.AtomicWriteFunc(indexPath, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		for i := range records {
			if err := enc.Encode(&records[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// trimOldest drops head entries beyond the index cap.
func trimOldest(records []Record) []Record {
	if len(records) > MaxIndexEntries {
		return records[len(records)-MaxIndexEntries:]
	}
	return records
}

// appendRecord marshals and appends one record line.
func appendRecord(indexPath string, r *Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	return durability.AppendLine(indexPath, data)
}

// newFallbackID generates a sortable unique ID for sessions without one.
func newFallbackID(now time.Time) string {
	entropy := rand.New(rand.NewSource(now.UnixNano())) //nolint:gosec // IDs, not secrets
	return "gen-" + ulid.MustNew(ulid.Timestamp(now), entropy).String()
}

// toolNames returns the sorted tool names from a count map.
func toolNames(counts map[string]int) []string {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// errorPatterns returns the error categories hit, deduplicated, in order.
func errorPatterns(f *types.SessionFacts) []string {
	var patterns []string
	seen := make(map[string]bool)
	for _, e := range f.Errors {
		if seen[e.Category] {
			continue
		}
		seen[e.Category] = true
		patterns = append(patterns, e.Category)
	}
	return patterns
}

// resolutionPatterns records how resolved errors were addressed, so a later
// session hitting the same category can look up what worked.
func resolutionPatterns(f *types.SessionFacts) []string {
	var patterns []string
	seen := make(map[string]bool)
	for _, e := range f.Errors {
		if !e.Resolved || e.ResolvedBy == "" {
			continue
		}
		p := e.Category + " via " + e.ResolvedBy
		if seen[p] {
			continue
		}
		seen[p] = true
		patterns = append(patterns, p)
	}
	return patterns
}

// successPatterns renders verified modifications as one line each.
func successPatterns(f *types.SessionFacts) []string {
	var patterns []string
	for _, s := range f.Successes {
		patterns = append(patterns, fmt.Sprintf("%s %s verified by %s",
			s.Tool, filepath.Base(s.File), s.VerifiedBy))
	}
	return patterns
}

// completionSummary condenses completion signals into one line.
func completionSummary(f *types.SessionFacts) string {
	if len(f.Completions) == 0 {
		return ""
	}
	var phrases []string
	for _, c := range f.Completions {
		phrases = append(phrases, c.Phrase)
	}
	return strings.Join(phrases, "; ")
}
