package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ZebulonRouseFrantzich/stagerun/internal/distribution"
	"github.com/ZebulonRouseFrantzich/stagerun/internal/logging"
)

// ErrExecutableNotFound is returned when an archive does not contain the
// configured executable.
var ErrExecutableNotFound = errors.New("executable not found in archive")

// ArchiveStore is a FileSetProvider backed by a directory of pre-fetched
// distribution archives.
type ArchiveStore struct {
	archiveDir string
	verifier   *Verifier
	extractor  *Extractor
	logger     logging.Logger
}

// StoreConfig holds configuration for an ArchiveStore.
type StoreConfig struct {
	// ArchiveDir holds <name>-<version>-<platform>.tar.gz archives.
	ArchiveDir string
	// KeyringPath is an OpenPGP keyring used for signature checks.
	KeyringPath string
	// AllowUnverified accepts archives without signature or checksum.
	AllowUnverified bool
	// Logger receives progress messages. Defaults to a no-op logger.
	Logger logging.Logger
}

// NewArchiveStore creates an ArchiveStore.
func NewArchiveStore(cfg StoreConfig) (*ArchiveStore, error) {
	if cfg.ArchiveDir == "" {
		return nil, fmt.Errorf("ArchiveDir is required")
	}

	return &ArchiveStore{
		archiveDir: cfg.ArchiveDir,
		verifier:   NewVerifier(cfg.KeyringPath, cfg.AllowUnverified),
		extractor:  NewExtractor(),
		logger:     logging.OrNop(cfg.Logger),
	}, nil
}

// ArchivePath returns where the archive for dist is expected.
func (s *ArchiveStore) ArchivePath(dist distribution.Distribution) string {
	return filepath.Join(s.archiveDir, dist.String()+".tar.gz")
}

// Extract verifies the archive for dist and extracts it into target.Dir.
func (s *ArchiveStore) Extract(dist distribution.Distribution, target Layout) (*distribution.ExtractedFileSet, error) {
	if err := dist.Validate(); err != nil {
		return nil, err
	}
	if target.Dir == "" {
		return nil, fmt.Errorf("target directory is required")
	}

	archivePath := s.ArchivePath(dist)
	if _, err := os.Stat(archivePath); err != nil {
		return nil, fmt.Errorf("locate archive for %s: %w", dist, err)
	}

	method, err := s.verifier.Verify(archivePath)
	if err != nil {
		return nil, fmt.Errorf("verify archive: %w", err)
	}
	s.logger.Debug("archive verified", "distribution", dist.String(), "method", method.String())

	baseDir, err := filepath.Abs(target.Dir)
	if err != nil {
		return nil, fmt.Errorf("resolve target dir: %w", err)
	}
	_, statErr := os.Stat(baseDir)
	generated := os.IsNotExist(statErr)

	entries, err := s.extractor.ExtractTarGz(archivePath, baseDir)
	if err != nil {
		return nil, fmt.Errorf("extract archive: %w", err)
	}

	fs := &distribution.ExtractedFileSet{
		BaseDir:          baseDir,
		BaseDirGenerated: generated,
	}
	for _, e := range entries {
		fs.Add(classify(e.Name, target.ExecutableName), e.Path)
	}

	if fs.Executable == "" {
		return fs, fmt.Errorf("%s in %s: %w", target.ExecutableName, filepath.Base(archivePath), ErrExecutableNotFound)
	}
	if err := SetExecutable(fs.Executable); err != nil {
		return fs, err
	}

	s.logger.Info("distribution extracted",
		"distribution", dist.String(),
		"dir", baseDir,
		"files", len(entries),
		"executable", fs.Executable)
	return fs, nil
}

// Remove deletes every file in fs and the base directory when it was
// generated. Errors are logged and skipped.
func (s *ArchiveStore) Remove(dist distribution.Distribution, fs *distribution.ExtractedFileSet) {
	if fs == nil {
		return
	}
	for _, p := range fs.All() {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("could not delete file", "distribution", dist.String(), "path", p, "error", err)
		}
	}
	if fs.BaseDirGenerated {
		if err := os.RemoveAll(fs.BaseDir); err != nil {
			s.logger.Warn("could not delete base dir", "distribution", dist.String(), "path", fs.BaseDir, "error", err)
		}
	}
}
