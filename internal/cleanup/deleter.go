// Package cleanup defers filesystem removal to process exit for paths that
// could not be removed immediately, typically because a just-terminated
// child process still holds them open.
package cleanup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
)

// ErrEmptyPath is returned when scheduling an empty path.
var ErrEmptyPath = errors.New("cleanup: empty path")

// Scheduler registers a path for removal at process exit.
type Scheduler interface {
	ScheduleDeleteOnExit(path string) error
}

// Deleter collects paths and removes them when Run is called. It is safe
// for concurrent use.
type Deleter struct {
	mu     sync.Mutex
	paths  map[string]struct{}
	remove func(string) error
}

// NewDeleter creates an empty Deleter.
func NewDeleter() *Deleter {
	return &Deleter{
		paths:  make(map[string]struct{}),
		remove: os.RemoveAll,
	}
}

// ScheduleDeleteOnExit registers path for removal. Registering the same path
// twice is a no-op.
func (d *Deleter) ScheduleDeleteOnExit(path string) error {
	if strings.TrimSpace(path) == "" {
		return ErrEmptyPath
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}

	d.mu.Lock()
	d.paths[abs] = struct{}{}
	d.mu.Unlock()
	return nil
}

// Pending returns the registered paths, deepest first.
func (d *Deleter) Pending() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sortedLocked()
}

func (d *Deleter) sortedLocked() []string {
	paths := make([]string, 0, len(d.paths))
	for p := range d.paths {
		paths = append(paths, p)
	}
	// Children before parents so a directory is removed after its contents.
	sort.Slice(paths, func(i, j int) bool {
		if len(paths[i]) != len(paths[j]) {
			return len(paths[i]) > len(paths[j])
		}
		return paths[i] < paths[j]
	})
	return paths
}

// Run removes every registered path and clears the registry. Paths that
// still cannot be removed are reported in the returned error; paths that no
// longer exist are not errors.
func (d *Deleter) Run() error {
	d.mu.Lock()
	paths := d.sortedLocked()
	d.paths = make(map[string]struct{})
	d.mu.Unlock()

	var result *multierror.Error
	for _, p := range paths {
		if err := d.remove(p); err != nil && !os.IsNotExist(err) {
			result = multierror.Append(result, fmt.Errorf("remove %s: %w", p, err))
		}
	}
	return result.ErrorOrNil()
}

var (
	defaultOnce    sync.Once
	defaultDeleter *Deleter
)

// Default returns the process-wide Deleter, creating it on first use.
func Default() *Deleter {
	defaultOnce.Do(func() {
		defaultDeleter = NewDeleter()
	})
	return defaultDeleter
}

// ScheduleDeleteOnExit registers path with the process-wide Deleter.
func ScheduleDeleteOnExit(path string) error {
	return Default().ScheduleDeleteOnExit(path)
}

// RunOnExit runs the process-wide Deleter. Programs call it on their way out,
// both on normal return and from their signal handler.
func RunOnExit() error {
	return Default().Run()
}
