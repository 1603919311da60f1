package snapshot

import (
	"os"
	"strings"

	"github.com/boshu2/contextkeeper/internal/durability"
)

// MinRichSize is the size below which a snapshot cannot be considered rich
// on size alone.
const MinRichSize = 3000

// richMarkers are the section markers counted as richness signals.
var richMarkers = []string{
	"## " + SectionTask,
	"## " + SectionDecisions,
	"## " + SectionWorkLog,
}

// IsRich reports whether content carries enough substance to be worth
// protecting. At least two signals must be present: byte size and the
// presence of each section marker each count as one.
func IsRich(content string) bool {
	signals := 0
	if len(content) >= MinRichSize {
		signals++
	}
	for _, marker := range richMarkers {
		if strings.Contains(content, marker) {
			signals++
		}
	}
	return signals >= 2
}

// markerCount counts the richness section markers present in content.
func markerCount(content string) int {
	n := 0
	for _, marker := range richMarkers {
		if strings.Contains(content, marker) {
			n++
		}
	}
	return n
}

// WriteLatest writes content to path atomically, unless the improvement
// guard holds: an extraction that saw zero tool uses never overwrites an
// existing rich snapshot, and a markedly worse snapshot (under half the
// existing size with fewer section markers) never overwrites a better one.
// A guard that cannot read the existing file lets the write proceed.
// Returns true when the file was written.
func WriteLatest(path, content string, toolUses int) (bool, error) {
	if existing, err := os.ReadFile(path); err == nil {
		if toolUses == 0 && IsRich(string(existing)) {
			return false, nil
		}
		if len(content) < len(existing)/2 && markerCount(content) < markerCount(string(existing)) {
			return false, nil
		}
	}
	if err := durability.AtomicWrite(path, []byte(content)); err != nil {
		return false, err
	}
	return true, nil
}
