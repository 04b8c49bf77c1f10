package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// HeldError is returned when another daemon already owns the data directory.
type HeldError struct {
	PID  int
	Addr string
	Path string
}

func (e *HeldError) Error() string {
	if e.Addr != "" {
		return fmt.Sprintf("data dir locked by PID %d serving %s (%s)", e.PID, e.Addr, e.Path)
	}
	return fmt.Sprintf("data dir locked by PID %d (%s)", e.PID, e.Path)
}

// Owner describes the process recorded in a lock file.
type Owner struct {
	PID  int
	Addr string
	Time time.Time
}

// Lock represents an acquired data-directory lock file.
type Lock struct {
	file *os.File
	path string
}

// Acquire takes an exclusive lock on dir, recording the PID and listen address.
// Returns *HeldError if another process already holds it.
func Acquire(dir, addr string) (*Lock, error) {
	lockPath := filepath.Join(dir, "LOCK")

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		owner, _ := ReadOwner(dir)
		_ = f.Close()
		return nil, &HeldError{PID: owner.PID, Addr: owner.Addr, Path: lockPath}
	}

	if err := f.Truncate(0); err != nil {
		_ = f.Close()
		return nil, err
	}
	if _, err := f.Seek(0, 0); err != nil {
		_ = f.Close()
		return nil, err
	}
	content := fmt.Sprintf("pid=%d\naddr=%s\ntime=%s\n", os.Getpid(), addr, time.Now().UTC().Format(time.RFC3339))
	if _, err := f.WriteString(content); err != nil {
		_ = f.Close()
		return nil, err
	}

	return &Lock{file: f, path: lockPath}, nil
}

// Release releases the lock. Safe to call on nil receiver and more than once.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	_ = os.Remove(l.path)
	err := l.file.Close()
	l.file = nil
	return err
}

// ReadOwner parses the lock file in dir. A missing file yields a zero Owner and an error.
func ReadOwner(dir string) (Owner, error) {
	data, err := os.ReadFile(filepath.Join(dir, "LOCK"))
	if err != nil {
		return Owner{}, err
	}
	var o Owner
	for _, line := range strings.Split(string(data), "\n") {
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			o.PID, _ = strconv.Atoi(value)
		case "addr":
			o.Addr = value
		case "time":
			o.Time, _ = time.Parse(time.RFC3339, value)
		}
	}
	return o, nil
}
