package extract

import (
	"path"
	"strings"

	"github.com/ZebulonRouseFrantzich/stagerun/internal/distribution"
)

var (
	libraryExts = []string{".so", ".dylib", ".dll"}
	configExts  = []string{".cnf", ".conf", ".ini", ".toml", ".yaml", ".yml"}
)

// classify returns the FileType of an archive entry given the configured
// executable name.
func classify(name, executable string) distribution.FileType {
	if matchesExecutable(name, executable) {
		return distribution.Executable
	}

	base := path.Base(name)
	if hasDir(name, "lib") || hasLibraryExt(base) {
		return distribution.Library
	}
	if hasDir(name, "etc") || hasExt(base, configExts) {
		return distribution.Config
	}
	return distribution.Support
}

// matchesExecutable compares archive-relative paths. A bare executable name
// matches a file of that name at any depth; a name with a slash must match
// the path suffix.
func matchesExecutable(name, executable string) bool {
	if executable == "" {
		return false
	}
	executable = strings.TrimPrefix(path.Clean("/"+executable), "/")
	if !strings.Contains(executable, "/") {
		return path.Base(name) == executable
	}
	return name == executable || strings.HasSuffix(name, "/"+executable)
}

func hasDir(name, dir string) bool {
	for _, part := range strings.Split(path.Dir(name), "/") {
		if part == dir {
			return true
		}
	}
	return false
}

// hasLibraryExt also matches versioned objects such as libssl.so.3.
func hasLibraryExt(base string) bool {
	for _, ext := range libraryExts {
		if strings.HasSuffix(base, ext) || strings.Contains(base, ext+".") {
			return true
		}
	}
	return false
}

func hasExt(base string, exts []string) bool {
	for _, ext := range exts {
		if strings.HasSuffix(base, ext) {
			return true
		}
	}
	return false
}
