package durability

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestAtomicWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.md")

	if err := AtomicWrite(path, []byte("hello\n")); err != nil {
		t.Fatalf("AtomicWrite failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "hello\n" {
		t.Errorf("content = %q, want %q", data, "hello\n")
	}

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestAtomicWrite_Overwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.md")

	if err := AtomicWrite(path, []byte("first")); err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	if err := AtomicWrite(path, []byte("second")); err != nil {
		t.Fatalf("second write failed: %v", err)
	}

	data, _ := os.ReadFile(path)
	if string(data) != "second" {
		t.Errorf("content = %q, want %q", data, "second")
	}
}

func TestAppendLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.jsonl")

	if err := AppendLine(path, []byte(`{"a":1}`)); err != nil {
		t.Fatalf("first append failed: %v", err)
	}
	if err := AppendLine(path, []byte(`{"b":2}`)); err != nil {
		t.Fatalf("second append failed: %v", err)
	}

	data, _ := os.ReadFile(path)
	want := "{\"a\":1}\n{\"b\":2}\n"
	if string(data) != want {
		t.Errorf("content = %q, want %q", data, want)
	}
}

func TestAcquireLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.jsonl")

	lock, err := AcquireLock(path)
	if err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}
	lock.Release()

	// Released lock can be reacquired.
	lock2, err := AcquireLock(path)
	if err != nil {
		t.Fatalf("reacquire failed: %v", err)
	}
	lock2.Release()
}

func TestWithLock_RunsFunction(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	ran := false

	err := WithLock(path, func() error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatalf("WithLock failed: %v", err)
	}
	if !ran {
		t.Error("function did not run")
	}
}

func TestRotateByPattern(t *testing.T) {
	dir := t.TempDir()

	// Create 5 files with distinct mtimes, oldest first.
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		path := filepath.Join(dir, "snap-"+string(rune('a'+i))+".md")
		if err := os.WriteFile(path, []byte("x"), 0600); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
		mt := base.Add(time.Duration(i) * time.Minute)
		if err := os.Chtimes(path, mt, mt); err != nil {
			t.Fatalf("Chtimes failed: %v", err)
		}
	}

	removed, err := RotateByPattern(dir, "snap-*.md", 2)
	if err != nil {
		t.Fatalf("RotateByPattern failed: %v", err)
	}
	if removed != 3 {
		t.Errorf("removed = %d, want 3", removed)
	}

	// The two newest survive.
	for _, name := range []string{"snap-d.md", "snap-e.md"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected survivor %s missing: %v", name, err)
		}
	}
	for _, name := range []string{"snap-a.md", "snap-b.md", "snap-c.md"} {
		if _, err := os.Stat(filepath.Join(dir, name)); !os.IsNotExist(err) {
			t.Errorf("expected %s to be removed", name)
		}
	}
}

func TestRotateByPattern_UnderLimit(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "one.md"), []byte("x"), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	removed, err := RotateByPattern(dir, "*.md", 5)
	if err != nil {
		t.Fatalf("RotateByPattern failed: %v", err)
	}
	if removed != 0 {
		t.Errorf("removed = %d, want 0", removed)
	}
}
