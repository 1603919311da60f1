package snapshot

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Source-of-truth files are read-only inputs: when a project keeps an
// explicit state file, the snapshot records it verbatim so a restored
// session sees the same ground truth. Snapshots never write these files.

// sotFilenames are checked in order; the first that exists wins.
var sotFilenames = []string{"state.yaml", "state.yml", "state.json"}

// maxSOTLines bounds how much of a state file is embedded.
const maxSOTLines = 40

// CaptureSOT looks for a source-of-truth state file under dir and returns
// its content as a fenced block, validated as YAML (JSON is a YAML subset).
// Invalid or missing files yield an empty string.
func CaptureSOT(dir string) string {
	for _, name := range sotFilenames {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		var probe any
		if err := yaml.Unmarshal(data, &probe); err != nil {
			continue
		}

		lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
		if len(lines) > maxSOTLines {
			lines = append(lines[:maxSOTLines], "# ... truncated ...")
		}

		return "From " + name + ":\n```yaml\n" + strings.Join(lines, "\n") + "\n```"
	}
	return ""
}
