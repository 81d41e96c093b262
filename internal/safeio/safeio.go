// Package safeio provides the durable-state primitives every persisted
// artifact goes through: atomic file replacement, cooperative advisory
// locks, bounded JSON loads, and run-id generation.
package safeio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

var (
	// ErrLockTimeout is returned when a lock could not be acquired in time.
	ErrLockTimeout = errors.New("timed out acquiring file lock")
	// ErrTooLarge is returned when a JSON file exceeds the configured cap.
	ErrTooLarge = errors.New("file exceeds size cap")
)

// DefaultLockTimeout bounds lock acquisition.
const DefaultLockTimeout = 30 * time.Second

// DefaultJSONCap bounds on-disk size for bounded JSON loads.
const DefaultJSONCap = 64 << 20 // 64 MiB

// AtomicReplace writes data to <path>.tmp.<pid>, syncs it, and renames it
// over path. The parent directory is created if missing.
func AtomicReplace(path string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("creating parent directory: %w", err)
	}
	tmp := fmt.Sprintf("%s.tmp.%d", path, os.Getpid())
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

// Lock is a cooperative advisory lock backed by a sidecar file.
type Lock struct {
	fl *flock.Flock
}

// AcquireLock takes an exclusive lock on <path>.lock, retrying until the
// context deadline or timeout elapses. Release with Unlock, including on
// failure paths.
func AcquireLock(ctx context.Context, path string, timeout time.Duration) (*Lock, error) {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}
	fl := flock.New(path + ".lock")
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	locked, err := fl.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, path)
		}
		return nil, fmt.Errorf("acquiring lock on %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLockTimeout, path)
	}
	return &Lock{fl: fl}, nil
}

// Unlock releases the lock. Safe to call on a nil receiver.
func (l *Lock) Unlock() {
	if l == nil || l.fl == nil {
		return
	}
	_ = l.fl.Unlock()
}

// LoadJSONBounded reads path into dst, enforcing a size cap. Missing or
// unreadable files and parse failures all leave dst untouched and return
// ok=false; the caller's default stands. Only an oversized file is an error,
// so a runaway state file is surfaced instead of silently reset.
func LoadJSONBounded(path string, dst any, maxSize int64) (ok bool, err error) {
	if maxSize <= 0 {
		maxSize = DefaultJSONCap
	}
	info, err := os.Stat(path)
	if err != nil {
		return false, nil
	}
	if info.Size() > maxSize {
		return false, fmt.Errorf("%w: %s (%d bytes)", ErrTooLarge, path, info.Size())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return false, nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		// Corrupt state files fall back to the supplied default.
		return false, nil
	}
	return true, nil
}

// SaveJSON marshals v with indentation and atomically replaces path.
func SaveJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", path, err)
	}
	return AtomicReplace(path, append(data, '\n'), 0644)
}

// NewRunID returns a short per-invocation token stamped into every persisted
// artifact, so two processes sharing state can detect each other's writes.
func NewRunID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
