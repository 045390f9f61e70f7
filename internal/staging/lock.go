package staging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// StaleLockThreshold is the age after which a staging lock left by a crashed
// run is broken.
const StaleLockThreshold = 10 * time.Minute

// Lock is an O_EXCL lock file guarding one staging directory.
type Lock struct {
	path string
	file *os.File
}

// LockPath returns the lock file used for a staging directory. It lives next
// to the directory so wiping the directory never removes it.
func LockPath(dir string) string {
	return filepath.Clean(dir) + ".lock"
}

// AcquireLock takes the lock for dir. A lock older than StaleLockThreshold
// is broken and acquisition retried once.
func AcquireLock(dir string) (*Lock, error) {
	lockPath := LockPath(dir)
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
	if err != nil {
		if !os.IsExist(err) {
			return nil, fmt.Errorf("create lock file: %w", err)
		}
		info, stale := staleLock(lockPath)
		if !stale || !breakStaleLock(lockPath, info) {
			return nil, ErrStagingLocked
		}
		file, err = os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
		if err != nil {
			return nil, ErrStagingLocked
		}
	}

	data := fmt.Sprintf("pid=%d\ntimestamp=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	if _, err := file.WriteString(data); err != nil {
		file.Close()
		os.Remove(lockPath)
		return nil, fmt.Errorf("write lock data: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(lockPath)
		return nil, fmt.Errorf("sync lock file: %w", err)
	}

	return &Lock{path: lockPath, file: file}, nil
}

// Release releases the lock. It is safe to call more than once.
func (l *Lock) Release() error {
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}

	if l.path != "" {
		err := os.Remove(l.path)
		l.path = ""
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove lock file: %w", err)
		}
	}

	return nil
}

// staleLock stats the lock file and reports whether it is older than
// StaleLockThreshold.
func staleLock(lockPath string) (os.FileInfo, bool) {
	info, err := os.Stat(lockPath)
	if err != nil {
		return nil, false
	}
	return info, time.Since(info.ModTime()) > StaleLockThreshold
}

// breakStaleLock removes the lock file described by stale. Two runs can find
// the same stale lock; the file is moved aside first and only deleted if it
// is still the one judged stale, so a run never removes a lock another run
// has just re-created. A re-created lock moved aside by mistake is linked
// back. If a third run creates the lock in that window, the link fails and
// two runs may hold the directory.
func breakStaleLock(lockPath string, stale os.FileInfo) bool {
	aside := lockPath + ".stale-" + uuid.NewString()
	if err := os.Rename(lockPath, aside); err != nil {
		return false
	}
	defer os.Remove(aside)

	moved, err := os.Stat(aside)
	if err != nil {
		return false
	}
	if os.SameFile(moved, stale) {
		return true
	}
	_ = os.Link(aside, lockPath)
	return false
}
