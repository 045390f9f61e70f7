// Package distribution holds the data model shared by extraction, staging,
// and launching: what is being staged and which files staging produced.
package distribution

import (
	"fmt"
	"os"
)

// Distribution identifies the artifact, version and platform being staged.
// Beyond String it is only used as a lookup key for extraction.
type Distribution struct {
	Name     string `yaml:"name"`
	Version  string `yaml:"version"`
	Platform string `yaml:"platform"`
}

// String renders the distribution as name-version-platform.
func (d Distribution) String() string {
	return fmt.Sprintf("%s-%s-%s", d.Name, d.Version, d.Platform)
}

// Validate checks that all fields are set.
func (d Distribution) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("distribution name is required")
	}
	if d.Version == "" {
		return fmt.Errorf("distribution version is required")
	}
	if d.Platform == "" {
		return fmt.Errorf("distribution platform is required")
	}
	return nil
}

// FileType categorizes files produced by extraction.
type FileType int

const (
	// Executable is the single file that gets launched.
	Executable FileType = iota
	// Library is a shared object loaded by the executable.
	Library
	// Support is any other payload file (data, docs, share/).
	Support
	// Config is a configuration file shipped with the distribution.
	Config
)

// NonExecutableTypes lists every category except Executable, in the order
// they are released.
var NonExecutableTypes = []FileType{Library, Support, Config}

// String returns the lower-case name of the file type.
func (t FileType) String() string {
	switch t {
	case Executable:
		return "executable"
	case Library:
		return "library"
	case Support:
		return "support"
	case Config:
		return "config"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler so FileType can key YAML maps.
func (t FileType) MarshalText() ([]byte, error) {
	if t.String() == "unknown" {
		return nil, fmt.Errorf("unknown file type %d", int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *FileType) UnmarshalText(text []byte) error {
	switch string(text) {
	case "executable":
		*t = Executable
	case "library":
		*t = Library
	case "support":
		*t = Support
	case "config":
		*t = Config
	default:
		return fmt.Errorf("unknown file type %q", text)
	}
	return nil
}

// ExtractedFileSet is the result of extracting a distribution.
//
// The caller owns it after extraction; the staging manager only reads it
// when releasing.
type ExtractedFileSet struct {
	// BaseDir is the directory the files were extracted into.
	BaseDir string `yaml:"base_dir"`
	// BaseDirGenerated reports whether BaseDir was created by extraction
	// and may therefore be removed on release.
	BaseDirGenerated bool `yaml:"base_dir_generated"`
	// Executable is the path of the launchable file.
	Executable string `yaml:"executable"`
	// Files maps each non-executable category to its paths.
	Files map[FileType][]string `yaml:"files,omitempty"`
}

// Add records path under the given category. Adding an Executable replaces
// the executable path.
func (fs *ExtractedFileSet) Add(t FileType, path string) {
	if t == Executable {
		fs.Executable = path
		return
	}
	if fs.Files == nil {
		fs.Files = make(map[FileType][]string)
	}
	fs.Files[t] = append(fs.Files[t], path)
}

// FilesOf returns the paths recorded for t.
func (fs *ExtractedFileSet) FilesOf(t FileType) []string {
	if t == Executable {
		if fs.Executable == "" {
			return nil
		}
		return []string{fs.Executable}
	}
	return fs.Files[t]
}

// All returns every file path: non-executable categories in release order,
// then the executable.
func (fs *ExtractedFileSet) All() []string {
	var all []string
	for _, t := range NonExecutableTypes {
		all = append(all, fs.Files[t]...)
	}
	if fs.Executable != "" {
		all = append(all, fs.Executable)
	}
	return all
}

// ExecutableExists reports whether the executable is present on disk.
func (fs *ExtractedFileSet) ExecutableExists() bool {
	if fs.Executable == "" {
		return false
	}
	info, err := os.Stat(fs.Executable)
	return err == nil && info.Mode().IsRegular()
}
