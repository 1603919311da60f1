package snapshot

import (
	"fmt"
	"strings"
)

// Compaction limits.
const (
	commandsKeepHead = 3
	commandsKeepTail = 5
	workLogKeepTail  = 10

	// auditReserve leaves room for the trailing audit comment so the final
	// document, audit included, stays under MaxSnapshotChars.
	auditReserve  = 200
	compactTarget = MaxSnapshotChars - auditReserve
)

// phaseResult records what one compaction phase saved.
type phaseResult struct {
	name  string
	saved int
}

// Finalize renders the document, running compaction phases in order until
// the result fits MaxSnapshotChars. A compaction audit comment is appended
// whenever any phase ran.
func (d *Document) Finalize() string {
	rendered := d.Render()
	if len(rendered) <= MaxSnapshotChars {
		return rendered
	}

	phases := []struct {
		name string
		run  func(*Document)
	}{
		{"P1-dedup", phaseDedupLines},
		{"P2-commands", phaseCompressCommands},
		{"P3-worklog", phaseTrimWorkLog},
		{"P4-stats", phaseRemoveStats},
		{"P5-git", phaseTrimGit},
		{"P6-response", phaseCompressResponse},
		{"P7-truncate", phaseHardTruncate},
	}

	var audit []phaseResult
	size := len(rendered)

	for _, phase := range phases {
		phase.run(d)
		newSize := d.Size()
		if newSize < size {
			audit = append(audit, phaseResult{name: phase.name, saved: size - newSize})
			size = newSize
		}
		if size <= compactTarget {
			break
		}
	}

	return d.Render() + renderAudit(audit, d.Size())
}

// renderAudit formats the trailing compaction audit comment.
func renderAudit(results []phaseResult, finalSize int) string {
	var parts []string
	for _, r := range results {
		parts = append(parts, fmt.Sprintf("%s:-%dch", r.name, r.saved))
	}
	return fmt.Sprintf("<!-- compaction-audit: %s | final:%dch/%dch -->\n",
		strings.Join(parts, " "), finalSize, MaxSnapshotChars)
}

// phaseDedupLines removes repeated identical lines within sacrificable
// sections, keeping first occurrences.
func phaseDedupLines(d *Document) {
	for i := range d.Sections {
		s := &d.Sections[i]
		if s.Priority != PrioritySacrificable {
			continue
		}
		seen := make(map[string]bool)
		var kept []string
		for _, line := range s.Lines {
			trimmed := strings.TrimSpace(line)
			if len(trimmed) > 3 && seen[trimmed] {
				continue
			}
			seen[trimmed] = true
			kept = append(kept, line)
		}
		s.Lines = kept
	}
}

// phaseCompressCommands keeps the first 3 and last 5 commands, replacing the
// middle with an elision marker.
func phaseCompressCommands(d *Document) {
	s := d.section(SectionCommands)
	if s == nil || len(s.Lines) <= commandsKeepHead+commandsKeepTail {
		return
	}
	omitted := len(s.Lines) - commandsKeepHead - commandsKeepTail
	var kept []string
	kept = append(kept, s.Lines[:commandsKeepHead]...)
	kept = append(kept, fmt.Sprintf("- ... %d commands omitted ...", omitted))
	kept = append(kept, s.Lines[len(s.Lines)-commandsKeepTail:]...)
	s.Lines = kept
}

// phaseTrimWorkLog keeps only the last 10 work log entries.
func phaseTrimWorkLog(d *Document) {
	s := d.section(SectionWorkLog)
	if s == nil || len(s.Lines) <= workLogKeepTail {
		return
	}
	omitted := len(s.Lines) - workLogKeepTail
	kept := []string{fmt.Sprintf("- ... %d earlier entries omitted ...", omitted)}
	kept = append(kept, s.Lines[len(s.Lines)-workLogKeepTail:]...)
	s.Lines = kept
}

// phaseRemoveStats drops the stats section entirely.
func phaseRemoveStats(d *Document) {
	d.removeSection(SectionStats)
}

// phaseTrimGit keeps the branch and commit lines, dropping the status block
// and diff detail.
func phaseTrimGit(d *Document) {
	s := d.section(SectionGit)
	if s == nil {
		return
	}
	var kept []string
	for _, line := range s.Lines {
		if strings.HasPrefix(line, "Branch: ") || strings.HasPrefix(line, "- ") {
			kept = append(kept, line)
		}
	}
	s.Lines = kept
}

// phaseCompressResponse keeps only structural lines (headings, bullets,
// numbered items) from the last response so its shape survives.
func phaseCompressResponse(d *Document) {
	s := d.section(SectionResponse)
	if s == nil {
		return
	}
	var kept []string
	for _, line := range s.Lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "- ") ||
			strings.HasPrefix(trimmed, "* ") || startsWithDigitDot(trimmed) {
			kept = append(kept, line)
		}
	}
	if len(kept) == 0 && len(s.Lines) > 0 {
		kept = s.Lines[:1]
	}
	s.Lines = kept
}

// startsWithDigitDot reports whether s looks like a numbered list item.
func startsWithDigitDot(s string) bool {
	if len(s) < 3 {
		return false
	}
	return s[0] >= '0' && s[0] <= '9' && (s[1] == '.' || s[1] == ')')
}

// phaseHardTruncate removes content bottom-up until the document fits:
// whole sacrificable sections first, then critical section bodies are
// truncated. Immortal sections are never touched.
func phaseHardTruncate(d *Document) {
	// Drop sacrificable sections from the bottom.
	for i := len(d.Sections) - 1; i >= 0 && d.Size() > compactTarget; i-- {
		if i >= len(d.Sections) {
			continue
		}
		if d.Sections[i].Priority == PrioritySacrificable {
			d.Sections = append(d.Sections[:i], d.Sections[i+1:]...)
		}
	}

	// Truncate critical sections from the bottom, keeping at least one line.
	for i := len(d.Sections) - 1; i >= 0 && d.Size() > compactTarget; i-- {
		s := &d.Sections[i]
		if s.Priority != PriorityCritical {
			continue
		}
		for len(s.Lines) > 1 && d.Size() > compactTarget {
			s.Lines = s.Lines[:len(s.Lines)-1]
		}
	}
}
