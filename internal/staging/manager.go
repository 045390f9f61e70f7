// Package staging guarantees a clean extraction directory before every
// extraction and best-effort removal of everything extracted afterwards.
//
// A Manager decorates an extract.FileSetProvider. Before delegating
// extraction it deletes the staging directory recursively, so leftovers of
// a crashed prior run can never leak into the new file set. On release it
// deletes every produced file, the executable last and the generated base
// directory after that, and hands anything that cannot be deleted right now
// to a deferred deleter that retries at process exit.
package staging

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ZebulonRouseFrantzich/stagerun/internal/cleanup"
	"github.com/ZebulonRouseFrantzich/stagerun/internal/distribution"
	"github.com/ZebulonRouseFrantzich/stagerun/internal/extract"
	"github.com/ZebulonRouseFrantzich/stagerun/internal/logging"
)

// holderLookupTimeout bounds the process scan done when a deletion fails.
const holderLookupTimeout = 5 * time.Second

// Config holds configuration for a staging Manager.
type Config struct {
	// Dir is the staging directory. It is owned by the manager and wiped
	// before every extraction.
	Dir string
	// ExecutableName is passed to the provider to identify the executable.
	ExecutableName string
	// Logger defaults to a no-op logger.
	Logger logging.Logger
	// Deferred receives paths that could not be deleted immediately.
	// Defaults to the process-wide cleanup deleter.
	Deferred cleanup.Scheduler
	// Lock guards extraction with a lock file beside Dir.
	Lock bool
	// Manifest records each extracted file set beside Dir.
	Manifest bool
	// InspectHolders looks up processes holding a file open when its
	// deletion fails, for the error log.
	InspectHolders bool
}

// Manager stages distributions into a single directory.
type Manager struct {
	provider       extract.FileSetProvider
	dir            string
	executableName string
	logger         logging.Logger
	deferred       cleanup.Scheduler
	lock           bool
	manifest       bool
	inspectHolders bool

	remove  func(string) error
	holders func(context.Context, string) ([]cleanup.Holder, error)
}

// New creates a Manager around provider.
func New(provider extract.FileSetProvider, cfg Config) (*Manager, error) {
	if provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if cfg.Dir == "" {
		return nil, fmt.Errorf("staging directory is required")
	}

	dir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("resolve staging directory: %w", err)
	}

	deferred := cfg.Deferred
	if deferred == nil {
		deferred = cleanup.Default()
	}

	return &Manager{
		provider:       provider,
		dir:            dir,
		executableName: cfg.ExecutableName,
		logger:         logging.OrNop(cfg.Logger),
		deferred:       deferred,
		lock:           cfg.Lock,
		manifest:       cfg.Manifest,
		inspectHolders: cfg.InspectHolders,
		remove:         os.RemoveAll,
		holders:        cleanup.Holders,
	}, nil
}

// Dir returns the absolute staging directory.
func (m *Manager) Dir() string {
	return m.dir
}

// Materialize wipes the staging directory and extracts dist into it. Any
// failure is returned as an *ExtractionError; nothing is retried.
func (m *Manager) Materialize(dist distribution.Distribution) (*distribution.ExtractedFileSet, error) {
	return m.Extract(dist, extract.Layout{Dir: m.dir, ExecutableName: m.executableName})
}

// Extract implements extract.FileSetProvider. target.Dir must be empty or
// the staging directory; an empty ExecutableName falls back to the
// configured one.
func (m *Manager) Extract(dist distribution.Distribution, target extract.Layout) (*distribution.ExtractedFileSet, error) {
	if target.Dir == "" {
		target.Dir = m.dir
	}
	if target.ExecutableName == "" {
		target.ExecutableName = m.executableName
	}
	if abs, err := filepath.Abs(target.Dir); err != nil || abs != m.dir {
		return nil, m.extractionError(dist, "extract", fmt.Errorf("%s: %w", target.Dir, ErrForeignTarget))
	}
	target.Dir = m.dir

	if m.lock {
		lock, err := AcquireLock(m.dir)
		if err != nil {
			return nil, m.extractionError(dist, "lock", err)
		}
		defer func() {
			if err := lock.Release(); err != nil {
				m.logger.Warn("could not release staging lock", "dir", m.dir, "error", err)
			}
		}()
	}

	if err := m.wipe(); err != nil {
		return nil, m.extractionError(dist, "wipe", err)
	}

	fs, err := m.provider.Extract(dist, target)
	if err != nil {
		return nil, m.extractionError(dist, "extract", err)
	}

	if m.manifest {
		manifest := &Manifest{
			Distribution: dist,
			PID:          os.Getpid(),
			CreatedAt:    time.Now().UTC(),
			FileSet:      fs,
		}
		if err := WriteManifest(ManifestPath(m.dir), manifest); err != nil {
			m.logger.Warn("could not record staging manifest", "dir", m.dir, "error", err)
		}
	}

	m.logger.Info("distribution staged", "distribution", dist.String(), "dir", m.dir)
	return fs, nil
}

func (m *Manager) extractionError(dist distribution.Distribution, op string, err error) error {
	return &ExtractionError{Distribution: dist, Dir: m.dir, Op: op, Err: err}
}

// wipe removes the staging directory and everything below it. A missing
// directory is not an error.
func (m *Manager) wipe() error {
	if _, err := os.Lstat(m.dir); os.IsNotExist(err) {
		return nil
	}
	m.logger.Debug("wiping staging directory", "dir", m.dir)
	if err := m.remove(m.dir); err != nil {
		return fmt.Errorf("delete staging directory: %w", err)
	}
	if _, err := os.Lstat(m.dir); err == nil {
		return fmt.Errorf("delete staging directory: %s still exists", m.dir)
	}
	return nil
}

// Remove implements extract.FileSetProvider by releasing fs.
func (m *Manager) Remove(dist distribution.Distribution, fs *distribution.ExtractedFileSet) {
	m.Release(fs)
}

// Release deletes every file of fs: non-executable categories first, then
// the executable, then the base directory when it was generated. Failures
// are logged and never stop the remaining deletions.
func (m *Manager) Release(fs *distribution.ExtractedFileSet) {
	if fs == nil {
		return
	}

	for _, t := range distribution.NonExecutableTypes {
		for _, file := range fs.FilesOf(t) {
			if exists(file) && !m.ForceDelete(file) {
				m.logger.Warn("could not delete file now", "type", t.String(), "path", file)
			}
		}
	}

	if fs.Executable != "" && exists(fs.Executable) && !m.ForceDelete(fs.Executable) {
		m.logger.Warn("could not delete executable now", "path", fs.Executable)
	}

	if fs.BaseDirGenerated && !m.ForceDelete(fs.BaseDir) {
		m.logger.Warn("could not delete generated base dir", "path", fs.BaseDir)
	}

	if m.manifest {
		if err := os.Remove(ManifestPath(m.dir)); err != nil && !os.IsNotExist(err) {
			m.logger.Warn("could not remove staging manifest", "dir", m.dir, "error", err)
		}
	}
}

// ForceDelete deletes path now or, failing that, schedules it for deletion
// at process exit. It reports false only when scheduling failed.
func (m *Manager) ForceDelete(path string) bool {
	if path == "" || !exists(path) {
		return true
	}

	err := m.remove(path)
	if err == nil {
		m.logger.Debug("deleted", "path", path)
		return true
	}

	kv := []interface{}{"path", path, "error", err}
	if holders := m.lookupHolders(path); len(holders) > 0 {
		kv = append(kv, "held_by", holders)
	}
	m.logger.Error("could not delete, will try again when program exits", kv...)

	if serr := m.deferred.ScheduleDeleteOnExit(path); serr != nil {
		m.logger.Error("could not schedule deletion on exit", "path", path, "error", serr)
		return false
	}
	return true
}

func (m *Manager) lookupHolders(path string) []string {
	if !m.inspectHolders || m.holders == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), holderLookupTimeout)
	defer cancel()

	holders, err := m.holders(ctx, path)
	if err != nil {
		m.logger.Debug("could not inspect open file holders", "path", path, "error", err)
	}

	names := make([]string, 0, len(holders))
	for _, h := range holders {
		names = append(names, h.String())
	}
	return names
}

// ReleaseFromManifest releases the file set recorded by a prior Materialize,
// typically one made by a process that crashed. It reports whether a
// manifest was found.
func (m *Manager) ReleaseFromManifest() (bool, error) {
	path := ManifestPath(m.dir)
	manifest, err := ReadManifest(path)
	if err != nil {
		return false, err
	}
	if manifest == nil {
		return false, nil
	}

	if manifest.FileSet.BaseDir != m.dir {
		return true, fmt.Errorf("manifest %s records base dir %s, expected %s", path, manifest.FileSet.BaseDir, m.dir)
	}
	if err := m.confined(manifest.FileSet); err != nil {
		return true, fmt.Errorf("manifest %s: %w", path, err)
	}

	m.logger.Info("releasing file set from manifest",
		"distribution", manifest.Distribution.String(),
		"pid", manifest.PID,
		"created_at", manifest.CreatedAt)

	m.Release(manifest.FileSet)
	if !m.manifest {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return true, fmt.Errorf("remove manifest: %w", err)
		}
	}
	return true, nil
}

// confined checks that every path in fs lies below the staging directory.
// Nothing is deleted from a file set that fails the check.
func (m *Manager) confined(fs *distribution.ExtractedFileSet) error {
	paths := []string{fs.Executable}
	for _, files := range fs.Files {
		paths = append(paths, files...)
	}
	for _, p := range paths {
		if p == "" {
			continue
		}
		rel, err := filepath.Rel(m.dir, p)
		if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
			return fmt.Errorf("%s is outside staging directory %s", p, m.dir)
		}
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
