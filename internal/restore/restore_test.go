package restore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boshu2/contextkeeper/internal/archive"
)

var richSnapshot = `# Session Snapshot
<!-- generated: 2026-08-29T10:00:00Z -->

<!-- IMMORTAL: task -->
## Task
Migrate the index rotation to mtime ordering

<!-- IMMORTAL: next-step -->
## Next Step
Run the rotation tests

## Decisions
- [decision] chose mtime over filename sort
` + strings.Repeat("- [rationale] padding line to reach quality size\n", 80)

func newTestPlanner(t *testing.T) (*Planner, string) {
	t.Helper()
	base := t.TempDir()
	store := archive.NewStore(archive.WithBaseDir(base))
	require.NoError(t, store.Init())

	latest := filepath.Join(base, "latest.md")
	p := NewPlanner(latest, store)
	return p, latest
}

func TestBuildPlan_PointsAtLatest(t *testing.T) {
	p, latest := newTestPlanner(t)
	require.NoError(t, os.WriteFile(latest, []byte(richSnapshot), 0600))

	plan, err := p.BuildPlan(SourceClear)
	require.NoError(t, err)

	assert.Equal(t, latest, plan.SnapshotPath)
	assert.Contains(t, plan.Summary, "Migrate the index rotation")
	assert.Contains(t, plan.Summary, "Run the rotation tests")

	out := plan.Render()
	assert.Contains(t, out, latest)
	assert.NotContains(t, out, "[rationale] padding", "plan must not inline snapshot content")
}

func TestBuildPlan_MissingSnapshot(t *testing.T) {
	p, _ := newTestPlanner(t)

	plan, err := p.BuildPlan(SourceStartup)
	require.NoError(t, err)
	assert.True(t, plan.Empty())
	assert.Equal(t, "No prior session context found.\n", plan.Render())
}

func TestBuildPlan_StaleSnapshotPerSource(t *testing.T) {
	p, latest := newTestPlanner(t)
	require.NoError(t, os.WriteFile(latest, []byte(richSnapshot), 0600))

	// Snapshot is two hours old.
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(latest, old, old))

	for _, tc := range []struct {
		source Source
		usable bool
	}{
		{SourceClear, true},
		{SourceCompact, true},
		{SourceResume, false},
		{SourceStartup, false},
	} {
		plan, err := p.BuildPlan(tc.source)
		require.NoError(t, err)
		if tc.usable {
			assert.Equal(t, latest, plan.SnapshotPath, "source %s", tc.source)
		} else {
			assert.Empty(t, plan.SnapshotPath, "source %s", tc.source)
		}
	}
}

func TestBuildPlan_ThinLatestFallsBackToArchive(t *testing.T) {
	p, latest := newTestPlanner(t)
	require.NoError(t, os.WriteFile(latest, []byte("## Task\nthin\n"), 0600))

	archived := filepath.Join(p.Store.GetSessionsDir(), "2026-08-29-100000-abc1234.md")
	require.NoError(t, os.WriteFile(archived, []byte(richSnapshot), 0600))

	plan, err := p.BuildPlan(SourceClear)
	require.NoError(t, err)
	assert.Equal(t, archived, plan.SnapshotPath, "richer recent archive preferred over thin latest")
}

func TestBuildPlan_OldArchiveDoesNotReplaceThinLatest(t *testing.T) {
	p, latest := newTestPlanner(t)
	require.NoError(t, os.WriteFile(latest, []byte("## Task\nthin\n"), 0600))

	archived := filepath.Join(p.Store.GetSessionsDir(), "2026-08-28-100000-abc1234.md")
	require.NoError(t, os.WriteFile(archived, []byte(richSnapshot), 0600))
	old := time.Now().Add(-2 * FallbackWindow)
	require.NoError(t, os.Chtimes(archived, old, old))

	plan, err := p.BuildPlan(SourceClear)
	require.NoError(t, err)
	assert.Equal(t, latest, plan.SnapshotPath)
}

func TestBuildPlan_RecentRecords(t *testing.T) {
	p, _ := newTestPlanner(t)

	for _, id := range []string{"s1", "s2", "s3", "s4"} {
		r := &archive.Record{SessionID: id, UserTask: "task " + id}
		archive.Validate(r)
		require.NoError(t, p.Store.ReplaceOrAppend(r))
	}

	plan, err := p.BuildPlan(SourceStartup)
	require.NoError(t, err)
	require.Len(t, plan.Recent, RecentRecordCount)
	assert.Equal(t, "s2", plan.Recent[0].SessionID)

	out := plan.Render()
	assert.Contains(t, out, "## Recent Sessions")
	assert.Contains(t, out, "task s4")
}

func TestBuildPlan_DerivedLookups(t *testing.T) {
	p, _ := newTestPlanner(t)

	older := &archive.Record{
		SessionID:          "s1",
		UserTask:           "fix the build",
		Tags:               []string{"compiler"},
		ErrorPatterns:      []string{"dependency"},
		ResolutionPatterns: []string{"dependency via go build"},
	}
	newer := &archive.Record{
		SessionID:     "s2",
		UserTask:      "tune the rotation",
		Tags:          []string{"rotation", "eviction"},
		ErrorPatterns: []string{"timeout"},
	}
	for _, r := range []*archive.Record{older, newer} {
		archive.Validate(r)
		require.NoError(t, p.Store.ReplaceOrAppend(r))
	}

	plan, err := p.BuildPlan(SourceStartup)
	require.NoError(t, err)
	require.Len(t, plan.Lookups, MaxDerivedLookups)

	// The still-open timeout error leads, then the newest session's tags.
	assert.Contains(t, plan.Lookups[0], `"timeout"`)
	assert.Contains(t, plan.Lookups[1], `"rotation"`)
	assert.Contains(t, plan.Lookups[2], `"eviction"`)

	// A resolved error category is not worth a lookup.
	for _, l := range plan.Lookups {
		assert.NotContains(t, l, "dependency")
	}
}

func TestBriefSummary(t *testing.T) {
	got := BriefSummary(richSnapshot)
	assert.Contains(t, got, "Task: Migrate the index rotation to mtime ordering")
	assert.Contains(t, got, "Next Step: Run the rotation tests")
	assert.NotContains(t, got, "IMMORTAL", "markers excluded from summaries")
}

func TestBuildPlan_ReadOnly(t *testing.T) {
	p, latest := newTestPlanner(t)
	require.NoError(t, os.WriteFile(latest, []byte(richSnapshot), 0600))
	before, err := os.ReadFile(latest)
	require.NoError(t, err)

	_, err = p.BuildPlan(SourceResume)
	require.NoError(t, err)

	after, err := os.ReadFile(latest)
	require.NoError(t, err)
	assert.Equal(t, before, after, "restore must not mutate the snapshot")
}
