// Package durability provides the crash-safe write primitives used by every
// store in contextkeeper: atomic whole-file writes, fsynced appends, advisory
// file locks, and mtime-ordered rotation.
package durability

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/sys/unix"
)

const (
	// DirPerm is the mode for created directories.
	DirPerm = 0700

	// FilePerm is the mode for created files.
	FilePerm = 0600

	// LockRetryInterval is the pause between lock acquisition attempts.
	LockRetryInterval = 50 * time.Millisecond

	// LockTimeout bounds how long AcquireLock waits before giving up.
	LockTimeout = 2 * time.Second
)

// Init creates dir and any parents with restrictive permissions.
func Init(dir string) error {
	if err := os.MkdirAll(dir, DirPerm); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	return nil
}

// AtomicWrite writes data to path via a temp file in the same directory,
// fsyncs, then renames. Readers never observe a partial file.
func AtomicWrite(path string, data []byte) error {
	return AtomicWriteFunc(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// AtomicWriteFunc is AtomicWrite with a streaming writer callback.
func AtomicWriteFunc(path string, writeFunc func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, DirPerm); err != nil {
		return err
	}

	// Temp file must live in the same directory for the rename to be atomic.
	tmpFile, err := os.CreateTemp(dir, ".tmp-")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath) //nolint:errcheck // cleanup in error path
		}
	}()

	if err := writeFunc(tmpFile); err != nil {
		_ = tmpFile.Close() //nolint:errcheck // cleanup in error path
		return fmt.Errorf("write content: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close() //nolint:errcheck // cleanup in error path
		return fmt.Errorf("sync file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Chmod(tmpPath, FilePerm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename to final: %w", err)
	}

	success = true
	return nil
}

// AppendLine appends line plus a newline to path, fsyncing before close.
// The file is created with restrictive permissions if absent.
func AppendLine(path string, line []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, DirPerm); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, FilePerm)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer func() {
		_ = f.Close() //nolint:errcheck // sync already called, close best-effort
	}()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write line: %w", err)
	}

	return f.Sync()
}

// Lock is a held advisory lock on a sidecar .lock file.
type Lock struct {
	f *os.File
}

// Release unlocks and closes the lock file.
func (l *Lock) Release() {
	if l == nil || l.f == nil {
		return
	}
	_ = unix.Flock(int(l.f.Fd()), unix.LOCK_UN) //nolint:errcheck // released on close regardless
	_ = l.f.Close()                             //nolint:errcheck // best-effort
	l.f = nil
}

// AcquireLock takes an exclusive advisory lock on path + ".lock", retrying
// until LockTimeout. Returns ErrLockBusy when the lock cannot be acquired.
func AcquireLock(path string) (*Lock, error) {
	lockPath := path + ".lock"
	if err := os.MkdirAll(filepath.Dir(lockPath), DirPerm); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, FilePerm)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	deadline := time.Now().Add(LockTimeout)
	for {
		err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return &Lock{f: f}, nil
		}
		if err != unix.EWOULDBLOCK && err != unix.EAGAIN {
			_ = f.Close() //nolint:errcheck // cleanup in error path
			return nil, fmt.Errorf("flock: %w", err)
		}
		if time.Now().After(deadline) {
			_ = f.Close() //nolint:errcheck // cleanup in error path
			return nil, ErrLockBusy
		}
		time.Sleep(LockRetryInterval)
	}
}

// WithLock runs fn while holding the advisory lock for path. When the lock
// cannot be acquired, fn runs anyway: hook invocations must never deadlock
// against each other, and the underlying writes are individually safe.
func WithLock(path string, fn func() error) error {
	lock, err := AcquireLock(path)
	if err == nil {
		defer lock.Release()
	}
	return fn()
}

// RotateByPattern deletes the oldest files matching glob in dir until at most
// keep remain. Returns the number of files removed.
func RotateByPattern(dir, glob string, keep int) (int, error) {
	matches, err := filepath.Glob(filepath.Join(dir, glob))
	if err != nil {
		return 0, fmt.Errorf("glob %s: %w", glob, err)
	}
	if len(matches) <= keep {
		return 0, nil
	}

	type fileAge struct {
		path  string
		mtime time.Time
	}
	var files []fileAge
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		files = append(files, fileAge{path: m, mtime: info.ModTime()})
	}

	// Oldest first.
	sort.Slice(files, func(i, j int) bool {
		return files[i].mtime.Before(files[j].mtime)
	})

	removed := 0
	for i := 0; i < len(files)-keep; i++ {
		if err := os.Remove(files[i].path); err != nil {
			continue
		}
		removed++
	}
	return removed, nil
}
