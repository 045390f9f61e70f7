package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ZebulonRouseFrantzich/stagerun/internal/distribution"
)

// Config represents a complete stagerun configuration.
type Config struct {
	Distribution DistributionConfig `json:"distribution"`
	Staging      StagingConfig      `json:"staging"`
	Launch       LaunchConfig       `json:"launch,omitempty"`
}

// DistributionConfig names the distribution and where its archive lives.
type DistributionConfig struct {
	Name     string `json:"name"`
	Version  string `json:"version"`
	Platform string `json:"platform,omitempty"`

	// Archives is the directory holding <name>-<version>-<platform>.tar.gz.
	Archives string `json:"archives"`

	// Keyring is an armored or binary OpenPGP keyring for signature checks.
	Keyring string `json:"keyring,omitempty"`

	// AllowUnverified accepts archives with neither signature nor checksum.
	AllowUnverified bool `json:"allow_unverified,omitempty"`

	// Executable is the archive path, or base name, of the launchable file.
	Executable string `json:"executable"`
}

// StagingConfig configures the staging directory.
type StagingConfig struct {
	Dir            string `json:"dir"`
	Lock           bool   `json:"lock,omitempty"`
	Manifest       bool   `json:"manifest,omitempty"`
	InspectHolders bool   `json:"inspect_holders,omitempty"`
}

// LaunchConfig configures how the staged executable is started.
type LaunchConfig struct {
	Args      []string          `json:"args,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
	WorkDir   string            `json:"workdir,omitempty"`
	Success   []string          `json:"success,omitempty"`
	TimeoutMS int               `json:"timeout_ms,omitempty"`
	Echo      bool              `json:"echo,omitempty"`
}

// Dist returns the distribution identity.
func (c *Config) Dist() distribution.Distribution {
	return distribution.Distribution{
		Name:     c.Distribution.Name,
		Version:  c.Distribution.Version,
		Platform: c.Distribution.Platform,
	}
}

// Timeout returns the launch timeout.
func (l LaunchConfig) Timeout() time.Duration {
	if l.TimeoutMS <= 0 {
		return DefaultTimeoutMS * time.Millisecond
	}
	return time.Duration(l.TimeoutMS) * time.Millisecond
}

// Environ renders Env as sorted KEY=VALUE pairs appended to base.
func (l LaunchConfig) Environ(base []string) []string {
	if len(l.Env) == 0 {
		return base
	}
	keys := make([]string, 0, len(l.Env))
	for k := range l.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := append([]string(nil), base...)
	for _, k := range keys {
		env = append(env, k+"="+l.Env[k])
	}
	return env
}

// Validate performs basic validation on a Config.
func (c *Config) Validate() error {
	d := c.Distribution
	required := []struct{ field, value string }{
		{"distribution.name", d.Name},
		{"distribution.version", d.Version},
		{"distribution.platform", d.Platform},
		{"distribution.archives", d.Archives},
		{"distribution.executable", d.Executable},
		{"staging.dir", c.Staging.Dir},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return &ValidationError{Field: r.field, Message: "cannot be empty"}
		}
	}

	for _, part := range []struct{ field, value string }{
		{"distribution.name", d.Name},
		{"distribution.version", d.Version},
		{"distribution.platform", d.Platform},
	} {
		if strings.ContainsAny(part.value, `/\`) || strings.Contains(part.value, "..") {
			return &ValidationError{Field: part.field, Message: fmt.Sprintf("invalid value %q", part.value)}
		}
	}

	if err := validateExecutable(d.Executable); err != nil {
		return &ValidationError{Field: "distribution.executable", Message: err.Error()}
	}

	if err := validateStagingDir(c.Staging.Dir); err != nil {
		return &ValidationError{Field: "staging.dir", Message: err.Error()}
	}
	if err := c.validateStagingOverlap(""); err != nil {
		return err
	}

	if len(c.Launch.Args) > MaxArgCount {
		return &ValidationError{
			Field:   "launch.args",
			Message: fmt.Sprintf("too many arguments (%d), maximum is %d", len(c.Launch.Args), MaxArgCount),
		}
	}
	if len(c.Launch.Success) > MaxSuccessPatterns {
		return &ValidationError{
			Field:   "launch.success",
			Message: fmt.Sprintf("too many success patterns (%d), maximum is %d", len(c.Launch.Success), MaxSuccessPatterns),
		}
	}
	for i, s := range c.Launch.Success {
		if s == "" {
			return &ValidationError{Field: fmt.Sprintf("launch.success[%d]", i), Message: "pattern cannot be empty"}
		}
	}
	if c.Launch.TimeoutMS < 0 {
		return &ValidationError{Field: "launch.timeout_ms", Message: "cannot be negative"}
	}
	for k := range c.Launch.Env {
		if k == "" || strings.Contains(k, "=") {
			return &ValidationError{Field: "launch.env", Message: fmt.Sprintf("invalid variable name %q", k)}
		}
	}

	return nil
}

// ValidationError represents a config validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return "config validation failed for " + e.Field + ": " + e.Message
	}
	return "config validation failed: " + e.Message
}

func validateExecutable(exe string) error {
	if filepath.IsAbs(exe) {
		return fmt.Errorf("must be relative to the archive root: %s", exe)
	}
	for _, part := range strings.Split(filepath.ToSlash(exe), "/") {
		if part == ".." {
			return fmt.Errorf("path traversal not allowed: %s", exe)
		}
	}
	return nil
}

// validateStagingDir rejects directories whose recursive wipe would be
// catastrophic: the filesystem root and anything containing the home or
// working directory. Relative paths are checked as seen from the working
// directory.
func validateStagingDir(dir string) error {
	abs, err := absPath(dir)
	if err != nil {
		return err
	}
	if filepath.Dir(abs) == abs {
		return fmt.Errorf("refusing to use %s as staging directory", dir)
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" && within(abs, home) {
		return fmt.Errorf("refusing to use %s as staging directory: it contains the home directory", dir)
	}
	if cwd, err := os.Getwd(); err == nil && within(abs, cwd) {
		return fmt.Errorf("refusing to use %s as staging directory: it contains the working directory", dir)
	}
	return nil
}

// validateStagingOverlap rejects a staging directory that holds inputs the
// wipe would destroy.
func (c *Config) validateStagingOverlap(configPath string) error {
	stage, err := absPath(c.Staging.Dir)
	if err != nil {
		return &ValidationError{Field: "staging.dir", Message: err.Error()}
	}

	inputs := []struct{ what, path string }{
		{"distribution.archives", c.Distribution.Archives},
		{"distribution.keyring", c.Distribution.Keyring},
		{"the config file", configPath},
	}
	for _, in := range inputs {
		if in.path == "" {
			continue
		}
		p, err := absPath(in.path)
		if err != nil {
			continue
		}
		if within(stage, p) {
			return &ValidationError{
				Field:   "staging.dir",
				Message: fmt.Sprintf("%s contains %s (%s)", c.Staging.Dir, in.what, in.path),
			}
		}
	}
	return nil
}

// absPath expands a leading ~ and makes path absolute.
func absPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return filepath.Abs(path)
}

// within reports whether child is parent or lies below it.
func within(parent, child string) bool {
	rel, err := filepath.Rel(filepath.Clean(parent), filepath.Clean(child))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
