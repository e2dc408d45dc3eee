package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
)

const (
	lockFileSuffix = ".lock"
)

// DBLock is a cross-process lock that keeps sync passes against the same
// database from overlapping.
type DBLock struct {
	lock *flock.Flock
	path string
}

// NewDBLock creates a new lock for the given database path. PostgreSQL
// DSNs get a lock file in the user config directory keyed by host and
// database name.
func NewDBLock(dbPath string) (*DBLock, error) {
	lockPath, err := lockPathFor(dbPath)
	if err != nil {
		return nil, fmt.Errorf("could not resolve lock path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, err
	}
	return &DBLock{
		lock: flock.New(lockPath),
		path: lockPath,
	}, nil
}

func lockPathFor(dbPath string) (string, error) {
	if strings.HasPrefix(dbPath, "postgres://") || strings.HasPrefix(dbPath, "postgresql://") {
		dir, err := configDir()
		if err != nil {
			return "", err
		}
		name := dbPath
		if i := strings.LastIndex(name, "@"); i >= 0 {
			name = name[i+1:]
		}
		if i := strings.Index(name, "?"); i >= 0 {
			name = name[:i]
		}
		name = strings.NewReplacer("/", "_", ":", "_").Replace(strings.TrimPrefix(strings.TrimPrefix(name, "postgresql://"), "postgres://"))
		return filepath.Join(dir, "pg-"+name+lockFileSuffix), nil
	}
	absPath, err := GetAbsDBPath(dbPath)
	if err != nil {
		return "", err
	}
	return absPath + lockFileSuffix, nil
}

// Lock acquires the database lock, waiting if necessary.
// It will print a message if it has to wait.
func (l *DBLock) Lock() error {
	locked, err := l.lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock on %s: %w", l.path, err)
	}

	if !locked {
		fmt.Fprintf(os.Stderr, "Another visingers process is syncing this database, waiting for it to finish...\n")
		if err := l.lock.Lock(); err != nil {
			return fmt.Errorf("failed to acquire lock on %s after waiting: %w", l.path, err)
		}
	}
	return nil
}

// TryLock acquires the lock only if it is free.
func (l *DBLock) TryLock() (bool, error) {
	locked, err := l.lock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock on %s: %w", l.path, err)
	}
	return locked, nil
}

// Unlock releases the database lock.
func (l *DBLock) Unlock() error {
	if err := l.lock.Unlock(); err != nil {
		// Suppress error if the lock file doesn't exist, as it means we don't hold the lock.
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to release lock on %s: %w", l.path, err)
	}
	return nil
}

// Path returns the lock file location.
func (l *DBLock) Path() string { return l.path }

// GetAbsDBPath resolves the database path. An empty path selects the
// default database in the user config directory.
func GetAbsDBPath(dbPath string) (string, error) {
	if dbPath == "" {
		dir, err := configDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(dir, "visingers.sqlite"), nil
	}
	return filepath.Abs(dbPath)
}

func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "visingers"), nil
}
