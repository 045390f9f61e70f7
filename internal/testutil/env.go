// Package testutil provides utilities for testing stagerun in isolation.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// Env describes the isolated directories created by SetupTestEnv.
type Env struct {
	Root       string
	ArchiveDir string
	StagingDir string
	ConfigPath string
}

// SetupTestEnv creates isolated directories for a test and points the
// STAGERUN_* environment variables at them, so tests never touch a real
// staging directory or configuration. Cleanup is handled by t.TempDir.
//
// The staging directory itself is not created: staging starts from a path
// that does not exist.
func SetupTestEnv(t *testing.T) *Env {
	t.Helper()

	root := t.TempDir()
	env := &Env{
		Root:       root,
		ArchiveDir: filepath.Join(root, "archives"),
		StagingDir: filepath.Join(root, "staging", "current"),
		ConfigPath: filepath.Join(root, "stagerun.lua"),
	}

	t.Setenv("STAGERUN_HOME", root)
	t.Setenv("STAGERUN_CONFIG", env.ConfigPath)
	t.Setenv("STAGERUN_TEST_MODE", "1")

	for _, dir := range []string{env.ArchiveDir, filepath.Dir(env.StagingDir)} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			t.Fatalf("failed to create test directory %s: %v", dir, err)
		}
	}

	return env
}
