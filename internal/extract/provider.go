package extract

import (
	"github.com/ZebulonRouseFrantzich/stagerun/internal/distribution"
)

// Layout tells a provider where to extract and which file is the executable.
type Layout struct {
	// Dir is the directory to extract into.
	Dir string
	// ExecutableName is the archive-relative path of the executable,
	// e.g. "bin/mysqld". A bare name matches a file of that name at any
	// depth.
	ExecutableName string
}

// FileSetProvider extracts distributions and removes what it extracted.
type FileSetProvider interface {
	// Extract materializes dist under target and returns the produced files.
	Extract(dist distribution.Distribution, target Layout) (*distribution.ExtractedFileSet, error)
	// Remove deletes a file set previously returned by Extract.
	Remove(dist distribution.Distribution, fs *distribution.ExtractedFileSet)
}
