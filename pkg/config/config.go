// Package config loads ssar settings from YAML and layers them over defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-ssar/internal/hydrate"
	"github.com/goliatone/go-ssar/layering"
	"github.com/goliatone/go-ssar/pkg/backup"
)

// Backup drivers.
const (
	DriverMemory = "memory"
	DriverBadger = "badger"
	DriverSQLite = "sqlite"
)

// LOD missing-level policies.
const (
	LODMissingDisableAll = "disable_all"
	LODMissingKeepLast   = "keep_last"
)

// Config is the full settings document.
type Config struct {
	Log    LogConfig             `json:"log"`
	Backup BackupConfig          `json:"backup"`
	Rules  RulesConfig           `json:"rules"`
	Tools  map[string]ToolConfig `json:"tools"`
	Policy PolicyConfig          `json:"policy"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// BackupConfig selects where durable originals are kept.
type BackupConfig struct {
	Driver     string `json:"driver"`
	Path       string `json:"path"`
	SyncWrites *bool  `json:"sync_writes"`
}

// RulesConfig selects the expression engine for tool filters.
type RulesConfig struct {
	Engine string `json:"engine"`
}

// ToolConfig holds per-tool settings. Target is tool specific: a size, a
// compression level, a scale or an LOD index.
type ToolConfig struct {
	Target       any    `json:"target"`
	IncludeEqual *bool  `json:"include_equal"`
	Filter       string `json:"filter"`
}

// PolicyConfig holds product constants that differ between shader setups.
type PolicyConfig struct {
	WorkflowSeparate int    `json:"workflow_separate"`
	WorkflowPacked   int    `json:"workflow_packed"`
	PackedKeyword    string `json:"packed_keyword"`
	SkipPacked       *bool  `json:"skip_packed"`
	LODMissing       string `json:"lod_missing"`
}

// Defaults returns the built-in settings.
func Defaults() Config {
	sync := false
	skip := true
	no := false
	return Config{
		Log:    LogConfig{Level: "info", Format: "text"},
		Backup: BackupConfig{Driver: DriverBadger, Path: filepath.Join(".ssar", "backups"), SyncWrites: &sync},
		Rules:  RulesConfig{Engine: "expr"},
		Tools: map[string]ToolConfig{
			"texture-max-size":         {Target: 1024, IncludeEqual: &no},
			"normal-map-size":          {Target: 1024},
			"normal-map-platform-size": {Target: 1024},
			"mesh-compression":         {Target: "Medium"},
			"secondary-uv":             {},
			"lightmap-scale":           {Target: 1.0},
			"lod-override":             {Target: 0},
			"lod-groups-enabled":       {Target: false},
			"pack-workflow":            {},
		},
		Policy: PolicyConfig{
			WorkflowSeparate: 0,
			WorkflowPacked:   1,
			PackedKeyword:    "_WORKFLOW_PACKED_ON",
			SkipPacked:       &skip,
			LODMissing:       LODMissingDisableAll,
		},
	}
}

// Load reads path and layers it over Defaults. An empty path returns the
// defaults.
func Load(path string) (Config, error) {
	cfg, _, err := LoadStack(path, nil)
	return cfg, err
}

// LoadStack is Load with an extra overrides layer, usually built from command
// line flags, on top of the file. It also returns the source stack so a
// setting can be traced back to where it came from.
func LoadStack(path string, overrides map[string]any) (Config, *Stack, error) {
	var data []byte
	if strings.TrimSpace(path) != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return Config{}, nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}
	return ParseStack(path, data, overrides)
}

// Parse decodes a YAML document named source and layers it over Defaults.
func Parse(source string, data []byte) (Config, error) {
	cfg, _, err := ParseStack(source, data, nil)
	return cfg, err
}

// ParseStack decodes data and layers overrides, then the document, then
// Defaults, strongest first.
func ParseStack(source string, data []byte, overrides map[string]any) (Config, *Stack, error) {
	var raw map[string]any
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, nil, fmt.Errorf("config: parse %s: %w", source, err)
	}
	fileValues, _ := hydrate.Normalize(raw).(map[string]any)
	fileValues = renameKeys(fileValues, "")
	flagValues := renameKeys(overrides, "")

	file, err := decodeLayer(source, fileValues)
	if err != nil {
		return Config{}, nil, err
	}
	flags, err := decodeLayer("flags", flagValues)
	if err != nil {
		return Config{}, nil, err
	}

	cfg := layering.MergeLayers(flags, file, Defaults())
	if err := cfg.Validate(); err != nil {
		return Config{}, nil, fmt.Errorf("config: %s: %w", source, err)
	}

	defaults, err := toMap(Defaults())
	if err != nil {
		return Config{}, nil, fmt.Errorf("config: defaults: %w", err)
	}
	layers := []Layer{{Source: Source{Name: "defaults", Label: "built-in defaults", Priority: PriorityDefaults}, Values: defaults}}
	if len(fileValues) > 0 {
		layers = append(layers, Layer{Source: Source{Name: "file", Label: source, Priority: PriorityFile}, Values: fileValues})
	}
	if len(flagValues) > 0 {
		layers = append(layers, Layer{Source: Source{Name: "flags", Label: "command line", Priority: PriorityFlags}, Values: flagValues})
	}
	stack, err := NewStack(layers...)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, stack, nil
}

func decodeLayer(source string, values map[string]any) (Config, error) {
	decoder := hydrate.NewDecoder(
		hydrate.WithPreHook[Config](normalizeKeys),
		hydrate.WithDisallowUnknownFields[Config](),
	)
	cfg, err := decoder.Decode(hydrate.Context{Source: source}, values)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// normalizeKeys accepts dashed keys (sync-writes) alongside snake case, except
// inside the tools map where keys are tool names.
func normalizeKeys(_ hydrate.Context, payload map[string]any) (map[string]any, error) {
	return renameKeys(payload, ""), nil
}

func renameKeys(value map[string]any, parent string) map[string]any {
	if value == nil {
		return nil
	}
	out := make(map[string]any, len(value))
	for key, v := range value {
		name := key
		if parent != "tools" {
			name = strings.ReplaceAll(strings.ToLower(key), "-", "_")
		}
		if nested, ok := v.(map[string]any); ok {
			v = renameKeys(nested, name)
		}
		out[name] = v
	}
	return out
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format %q must be text or json", c.Log.Format)
	}
	switch c.Backup.Driver {
	case DriverMemory:
	case DriverBadger, DriverSQLite:
		if strings.TrimSpace(c.Backup.Path) == "" {
			return fmt.Errorf("backup.path is required for driver %q", c.Backup.Driver)
		}
	default:
		return fmt.Errorf("backup.driver %q must be memory, badger or sqlite", c.Backup.Driver)
	}
	switch c.Rules.Engine {
	case "expr", "cel", "js":
	default:
		return fmt.Errorf("rules.engine %q must be expr, cel or js", c.Rules.Engine)
	}
	switch c.Policy.LODMissing {
	case LODMissingDisableAll, LODMissingKeepLast:
	default:
		return fmt.Errorf("policy.lod_missing %q must be %s or %s", c.Policy.LODMissing, LODMissingDisableAll, LODMissingKeepLast)
	}
	if c.Policy.WorkflowPacked == c.Policy.WorkflowSeparate {
		return fmt.Errorf("policy.workflow_packed and workflow_separate must differ")
	}
	return nil
}

// Tool returns the settings of the named tool.
func (c Config) Tool(name string) ToolConfig {
	return c.Tools[name]
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return 0, fmt.Errorf("log.level %q: %w", level, err)
	}
	return l, nil
}

// NewLogger builds the slog logger described by cfg, writing to w.
func NewLogger(cfg LogConfig, w io.Writer) (*slog.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// OpenBackupStore opens the store cfg selects. Relative paths are resolved
// against base.
func OpenBackupStore(cfg BackupConfig, base string, logger *slog.Logger) (backup.Store, error) {
	path := cfg.Path
	if path != "" && !filepath.IsAbs(path) && base != "" {
		path = filepath.Join(base, path)
	}
	syncWrites := cfg.SyncWrites != nil && *cfg.SyncWrites
	switch cfg.Driver {
	case DriverMemory:
		return backup.NewMemoryStore(), nil
	case DriverBadger:
		return backup.OpenBadger(backup.BadgerConfig{Path: path, SyncWrites: syncWrites, Logger: logger})
	case DriverSQLite:
		sqliteOpts := []backup.SQLiteOption{backup.WithMkdirAll()}
		if syncWrites {
			sqliteOpts = append(sqliteOpts, backup.WithSynchronous("FULL"))
		}
		return backup.OpenSQLite(path, sqliteOpts...)
	default:
		return nil, fmt.Errorf("config: unknown backup driver %q", cfg.Driver)
	}
}
