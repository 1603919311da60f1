package pipeline

import (
	"github.com/boshu2/contextkeeper/internal/snapshot"
	"github.com/boshu2/contextkeeper/internal/worklog"
)

// LogToolUse appends a work log entry for one tool use. When a transcript
// path is supplied and its estimated token usage crosses the proactive-save
// threshold, a threshold-triggered save runs immediately; the returned
// Result is nil when no save was attempted.
func (s *Saver) LogToolUse(tool string, input map[string]any, transcriptPath string) (*Result, error) {
	entry := worklog.NewEntry(tool, input, s.Now())
	if err := worklog.Append(s.Cfg.WorkLogPath(), entry); err != nil {
		return nil, err
	}

	if transcriptPath == "" {
		return nil, nil
	}
	size, err := fileSize(transcriptPath)
	if err != nil {
		return nil, nil
	}
	if !snapshot.OverThreshold(snapshot.EstimateTokensFromSize(size)) {
		return nil, nil
	}

	return s.Save(transcriptPath, TriggerThreshold)
}
