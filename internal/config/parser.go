package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/ZebulonRouseFrantzich/stagerun/internal/platform"
)

// Parser represents a Lua config parser with platform detection.
type Parser struct {
	detector platform.Detector
}

// NewParser creates a new config parser with the given platform detector.
// A nil detector skips the platform table; the platform then defaults to
// the Go runtime's GOOS-GOARCH.
func NewParser(detector platform.Detector) *Parser {
	return &Parser{detector: detector}
}

// ParseFile parses the Lua config at path. Relative paths in the config are
// resolved against the file's directory.
func (p *Parser) ParseFile(ctx context.Context, path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg, err := p.parse(ctx, string(data), filepath.Base(path))
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	cfg.resolvePaths(filepath.Dir(abs))

	// Validation in parse saw the paths as written; check where they point.
	err = cfg.Validate()
	if err == nil {
		err = cfg.validateStagingOverlap(abs)
	}
	if err != nil {
		return nil, &ParseError{Message: "config validation failed", Detail: err.Error(), Err: err}
	}
	return cfg, nil
}

// ParseString parses a Lua config from a string.
func (p *Parser) ParseString(ctx context.Context, luaCode string) (*Config, error) {
	return p.parse(ctx, luaCode, "<string>")
}

func (p *Parser) parse(ctx context.Context, luaCode, name string) (*Config, error) {
	L := newSandboxedVM()
	defer L.Close()
	L.SetContext(ctx)

	platformKey := (&platform.Info{OS: runtime.GOOS, Arch: runtime.GOARCH}).Key()
	if p.detector != nil {
		platformInfo, err := p.detector.Detect(ctx)
		if err != nil {
			return nil, fmt.Errorf("platform detection failed: %w", err)
		}
		if err := platform.InjectPlatformTable(L, platformInfo); err != nil {
			return nil, fmt.Errorf("inject platform table: %w", err)
		}
		platformKey = platformInfo.Key()
	}

	fn, err := L.Load(strings.NewReader(luaCode), name)
	if err != nil {
		return nil, &ParseError{Message: "Lua syntax error", Detail: err.Error(), Err: err}
	}
	L.Push(fn)
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &ParseError{Message: "Lua runtime error", Detail: err.Error(), Err: err}
	}

	cfg, err := extractConfig(L)
	if err != nil {
		return nil, err
	}
	if cfg.Distribution.Platform == "" {
		cfg.Distribution.Platform = platformKey
	}

	if err := cfg.Validate(); err != nil {
		return nil, &ParseError{Message: "config validation failed", Detail: err.Error(), Err: err}
	}
	return cfg, nil
}

// ParseError represents a config parsing error with friendly message.
type ParseError struct {
	Message string // User-friendly message
	Detail  string // Technical details (raw Lua error)
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Message, e.Detail)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// extractConfig reads the global stagerun table.
func extractConfig(L *lua.LState) (*Config, error) {
	root := L.GetGlobal(luaGlobalStagerun)
	if root.Type() != lua.LTTable {
		return nil, &ParseError{
			Message: "missing or invalid 'stagerun' table",
			Detail:  fmt.Sprintf("expected table, got %s", root.Type()),
		}
	}
	table := root.(*lua.LTable)
	cfg := &Config{}

	if t, err := subTable(table, luaFieldDistribution); err != nil {
		return nil, err
	} else if t != nil {
		d := &cfg.Distribution
		d.Name = getString(t, luaFieldName)
		d.Version = getString(t, luaFieldVersion)
		d.Platform = getString(t, luaFieldPlatform)
		d.Archives = getString(t, luaFieldArchives)
		d.Keyring = getString(t, luaFieldKeyring)
		d.AllowUnverified = getBool(t, luaFieldAllowUnverified)
		d.Executable = getString(t, luaFieldExecutable)
	}

	if t, err := subTable(table, luaFieldStaging); err != nil {
		return nil, err
	} else if t != nil {
		s := &cfg.Staging
		s.Dir = getString(t, luaFieldDir)
		s.Lock = getBool(t, luaFieldLock)
		s.Manifest = getBool(t, luaFieldManifest)
		s.InspectHolders = getBool(t, luaFieldInspectHolders)
	}

	if t, err := subTable(table, luaFieldLaunch); err != nil {
		return nil, err
	} else if t != nil {
		l := &cfg.Launch
		l.Args = getStringList(t, luaFieldArgs)
		l.Success = getStringList(t, luaFieldSuccess)
		l.WorkDir = getString(t, luaFieldWorkDir)
		l.Echo = getBool(t, luaFieldEcho)
		if v := t.RawGetString(luaFieldTimeoutMS); v.Type() == lua.LTNumber {
			l.TimeoutMS = int(lua.LVAsNumber(v))
		}
		if env := t.RawGetString(luaFieldEnv); env.Type() == lua.LTTable {
			l.Env = make(map[string]string)
			env.(*lua.LTable).ForEach(func(k, v lua.LValue) {
				if k.Type() == lua.LTString && (v.Type() == lua.LTString || v.Type() == lua.LTNumber) {
					l.Env[k.String()] = v.String()
				}
			})
		}
	}

	return cfg, nil
}

// subTable returns t[field], nil when absent, or an error when it is set to
// something other than a table.
func subTable(t *lua.LTable, field string) (*lua.LTable, error) {
	v := t.RawGetString(field)
	switch v.Type() {
	case lua.LTNil:
		return nil, nil
	case lua.LTTable:
		return v.(*lua.LTable), nil
	default:
		return nil, &ParseError{
			Message: fmt.Sprintf("invalid '%s' section", field),
			Detail:  fmt.Sprintf("expected table, got %s", v.Type()),
		}
	}
}

func getString(t *lua.LTable, field string) string {
	if v := t.RawGetString(field); v.Type() == lua.LTString {
		return v.String()
	}
	return ""
}

func getBool(t *lua.LTable, field string) bool {
	if v := t.RawGetString(field); v.Type() == lua.LTBool {
		return bool(v.(lua.LBool))
	}
	return false
}

// getStringList extracts the array part of t[field]. A plain string is
// treated as a one-element list. Nil holes left by platform conditionals
// (platform.is_linux and "x" or nil) are skipped.
func getStringList(t *lua.LTable, field string) []string {
	v := t.RawGetString(field)
	switch v.Type() {
	case lua.LTString:
		return []string{v.String()}
	case lua.LTTable:
	default:
		return nil
	}

	type item struct {
		idx int
		val string
	}
	var items []item
	v.(*lua.LTable).ForEach(func(k, val lua.LValue) {
		if k.Type() != lua.LTNumber {
			return
		}
		if val.Type() != lua.LTString && val.Type() != lua.LTNumber {
			return
		}
		items = append(items, item{idx: int(lua.LVAsNumber(k)), val: val.String()})
	})
	sort.Slice(items, func(i, j int) bool { return items[i].idx < items[j].idx })

	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.val)
	}
	return out
}

func (c *Config) resolvePaths(base string) {
	resolve := func(p *string) {
		if *p == "" {
			return
		}
		if strings.HasPrefix(*p, "~/") {
			if home, err := os.UserHomeDir(); err == nil {
				*p = filepath.Join(home, (*p)[2:])
				return
			}
		}
		if !filepath.IsAbs(*p) {
			*p = filepath.Join(base, *p)
		}
	}
	resolve(&c.Distribution.Archives)
	resolve(&c.Distribution.Keyring)
	resolve(&c.Staging.Dir)
	resolve(&c.Launch.WorkDir)
}

// DefaultPath returns the config file to use when none is given:
// $STAGERUN_CONFIG, else $STAGERUN_HOME/stagerun.lua, else stagerun.lua in
// the working directory.
func DefaultPath() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	if home := os.Getenv(EnvHome); home != "" {
		return filepath.Join(home, DefaultFileName)
	}
	return DefaultFileName
}

// FormatError formats a ParseError for user display.
// In verbose mode, show the raw Lua error. Otherwise, show friendly message.
func FormatError(err error, verbose bool) string {
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		if verbose {
			return fmt.Sprintf("%s\n\nDetails:\n%s", parseErr.Message, parseErr.Detail)
		}
		detail := parseErr.Detail
		if idx := strings.Index(detail, "stack traceback"); idx > 0 {
			detail = strings.TrimSpace(detail[:idx])
		}
		return fmt.Sprintf("%s: %s", parseErr.Message, detail)
	}
	return err.Error()
}
