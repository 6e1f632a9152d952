// Package lockfile guards a state directory against a second precare process.
//
// The lock is an flock on a file inside the directory. The kernel drops it when
// the process exits, so a crash never leaves the directory locked; only the
// file itself may linger, and it is rewritten by the next holder.
package lockfile

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// FileName is the lock file created in the state directory.
const FileName = "precare.lock"

// ErrHeld matches a *HeldError with errors.Is.
var ErrHeld = errors.New("state directory is locked by another process")

// Info is the holder record written into the lock file.
type Info struct {
	PID     int
	Started time.Time
}

func (i Info) String() string {
	if i.PID == 0 {
		return "unknown holder"
	}
	if i.Started.IsZero() {
		return fmt.Sprintf("pid %d", i.PID)
	}
	return fmt.Sprintf("pid %d since %s", i.PID, i.Started.Format(time.RFC3339))
}

// Lock is a held state directory lock.
type Lock struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// Acquire takes the lock on stateDir, creating the directory if needed. It fails
// immediately with a *HeldError when another process holds it.
func Acquire(stateDir string) (*Lock, error) {
	path := filepath.Join(stateDir, FileName)
	slog.Debug("lockfile.Acquire: attempting", "path", path)

	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", stateDir, err)
	}
	// Not O_TRUNC: the holder's record must survive a failed attempt.
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", path, err)
	}

	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		file.Close()
		holder := readInfo(path)
		herr := &HeldError{Path: path, Holder: holder, Running: processRunning(holder.PID), Cause: err}
		slog.Error("lockfile.Acquire: state directory already locked", "path", path, "holder", holder.String(), "running", herr.Running)
		return nil, herr
	}

	info := Info{PID: os.Getpid(), Started: time.Now().UTC()}
	if err := writeInfo(file, info); err != nil {
		unix.Flock(int(file.Fd()), unix.LOCK_UN)
		file.Close()
		return nil, fmt.Errorf("failed to write lock file %s: %w", path, err)
	}

	slog.Info("lockfile.Acquire: state directory locked", "path", path, "pid", info.PID)
	return &Lock{file: file, path: path}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Release unlocks and removes the lock file. Calling it again is a no-op.
func (l *Lock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}

	// Remove while still holding the flock so no other process can lock the
	// old inode between the unlock and the removal.
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("lockfile.Release: failed to remove lock file", "error", err, "path", l.path)
	}
	var errs []error
	if err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN); err != nil {
		errs = append(errs, fmt.Errorf("unlock: %w", err))
	}
	if err := l.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close: %w", err))
	}
	l.file = nil

	slog.Info("lockfile.Release: state directory unlocked", "path", l.path)
	return errors.Join(errs...)
}

// HeldError reports that another process holds the lock.
type HeldError struct {
	Path    string
	Holder  Info
	Running bool // false means the holder record is stale
	Cause   error
}

func (e *HeldError) Error() string {
	state := "running"
	if !e.Running {
		state = "not running, record is stale"
	}
	return fmt.Sprintf("another precare process is using this state directory (lock file %s, holder %s, %s); "+
		"stop it before starting a new one, and remove the lock file only if no precare process is running",
		e.Path, e.Holder, state)
}

func (e *HeldError) Unwrap() error { return e.Cause }

func (e *HeldError) Is(target error) bool { return target == ErrHeld }

func writeInfo(f *os.File, info Info) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	record := fmt.Sprintf("pid=%d\nstarted=%s\n", info.PID, info.Started.Format(time.RFC3339))
	if _, err := f.WriteAt([]byte(record), 0); err != nil {
		return err
	}
	return f.Sync()
}

func readInfo(path string) Info {
	data, err := os.ReadFile(path)
	if err != nil {
		return Info{}
	}
	return parseInfo(string(data))
}

// parseInfo reads "key=value" lines; unknown keys and bad values are ignored.
func parseInfo(content string) Info {
	var info Info
	for _, line := range strings.Split(content, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			if pid, err := strconv.Atoi(value); err == nil && pid > 0 {
				info.PID = pid
			}
		case "started":
			if ts, err := time.Parse(time.RFC3339, value); err == nil {
				info.Started = ts
			}
		}
	}
	return info
}

// processRunning sends signal 0, which checks for existence without delivering anything.
func processRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
