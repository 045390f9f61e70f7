package staging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ZebulonRouseFrantzich/stagerun/internal/distribution"
)

// Manifest records what a Materialize call produced, so a later process can
// release a file set left behind by a run that died before releasing it.
type Manifest struct {
	Distribution distribution.Distribution      `yaml:"distribution"`
	PID          int                            `yaml:"pid"`
	CreatedAt    time.Time                      `yaml:"created_at"`
	FileSet      *distribution.ExtractedFileSet `yaml:"file_set"`
}

// ManifestPath returns the manifest file used for a staging directory. Like
// the lock it sits beside the directory, not inside it.
func ManifestPath(dir string) string {
	return filepath.Clean(dir) + ".manifest.yaml"
}

// WriteManifest atomically writes m to path.
func WriteManifest(path string, m *Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename manifest: %w", err)
	}
	return nil
}

// ReadManifest loads a manifest. A missing file returns (nil, nil).
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if m.FileSet == nil {
		return nil, fmt.Errorf("parse manifest %s: no file set recorded", path)
	}
	return &m, nil
}
