// Package config loads diagramcraft settings.
//
// Settings come from, in increasing priority: built-in defaults, the TOML
// config file, a .env file in the working directory, and DIAGRAMCRAFT_*
// environment variables. Nested keys map to variables by joining with an
// underscore, so store.backend is DIAGRAMCRAFT_STORE_BACKEND.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/matzehuels/diagramcraft/pkg/engine"
	"github.com/matzehuels/diagramcraft/pkg/export"
	"github.com/matzehuels/diagramcraft/pkg/project"
)

// AppName names the config and cache directories.
const AppName = "diagramcraft"

const envPrefix = "DIAGRAMCRAFT"

// Failure policies for session.failure_policy.
const (
	PolicyRetain  = "retain"
	PolicyDiscard = "discard"
)

// Cache backends for cache.backend.
const (
	CacheFile  = "file"
	CacheRedis = "redis"
	CacheNone  = "none"
)

// =============================================================================
// Types
// =============================================================================

// Config is the full application configuration.
type Config struct {
	Engine  EngineConfig  `mapstructure:"engine" toml:"engine"`
	Store   StoreConfig   `mapstructure:"store" toml:"store"`
	Cache   CacheConfig   `mapstructure:"cache" toml:"cache"`
	Export  ExportConfig  `mapstructure:"export" toml:"export"`
	Session SessionConfig `mapstructure:"session" toml:"session"`
	Server  ServerConfig  `mapstructure:"server" toml:"server"`
	Log     LogConfig     `mapstructure:"log" toml:"log"`
}

type EngineConfig struct {
	Name       string `mapstructure:"name" toml:"name"`
	Theme      string `mapstructure:"theme" toml:"theme"`
	Background string `mapstructure:"background" toml:"background"`
	FontSize   int    `mapstructure:"font_size" toml:"font_size"`
	MermaidBin string `mapstructure:"mermaid_bin" toml:"mermaid_bin"`
	// TimeoutSeconds bounds one compile. Zero waits indefinitely.
	TimeoutSeconds int `mapstructure:"timeout_seconds" toml:"timeout_seconds"`
}

type StoreConfig struct {
	Backend string `mapstructure:"backend" toml:"backend"`
	// Dir holds file backend projects and the default sqlite database.
	// Empty uses the config directory.
	Dir           string `mapstructure:"dir" toml:"dir"`
	HistoryLimit  int    `mapstructure:"history_limit" toml:"history_limit"`
	RedisAddr     string `mapstructure:"redis_addr" toml:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password" toml:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db" toml:"redis_db"`
	SQLitePath    string `mapstructure:"sqlite_path" toml:"sqlite_path"`
	MongoURI      string `mapstructure:"mongo_uri" toml:"mongo_uri"`
	MongoDatabase string `mapstructure:"mongo_database" toml:"mongo_database"`
}

type CacheConfig struct {
	Backend       string `mapstructure:"backend" toml:"backend"`
	Dir           string `mapstructure:"dir" toml:"dir"`
	RedisAddr     string `mapstructure:"redis_addr" toml:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password" toml:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db" toml:"redis_db"`
}

type ExportConfig struct {
	Rasterizer string  `mapstructure:"rasterizer" toml:"rasterizer"`
	Scale      float64 `mapstructure:"scale" toml:"scale"`
	RsvgBin    string  `mapstructure:"rsvg_bin" toml:"rsvg_bin"`
	ChromePath string  `mapstructure:"chrome_path" toml:"chrome_path"`
}

type SessionConfig struct {
	// DebounceMS delays automatic renders after typing. Zero disables them.
	DebounceMS     int    `mapstructure:"debounce_ms" toml:"debounce_ms"`
	FailurePolicy  string `mapstructure:"failure_policy" toml:"failure_policy"`
	CommitOnSwitch bool   `mapstructure:"commit_on_switch" toml:"commit_on_switch"`
}

type ServerConfig struct {
	Addr               string `mapstructure:"addr" toml:"addr"`
	ReadTimeoutSeconds int    `mapstructure:"read_timeout_seconds" toml:"read_timeout_seconds"`
}

type LogConfig struct {
	Level string `mapstructure:"level" toml:"level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Engine: EngineConfig{
			Name:       engine.NameAuto,
			Theme:      engine.ThemeDefault,
			Background: "white",
			FontSize:   14,
			MermaidBin: "mmdc",
		},
		Store: StoreConfig{
			Backend:       project.BackendFile,
			HistoryLimit:  project.DefaultHistoryLimit,
			RedisAddr:     "localhost:6379",
			MongoURI:      "mongodb://localhost:27017",
			MongoDatabase: AppName,
		},
		Cache: CacheConfig{
			Backend:   CacheFile,
			RedisAddr: "localhost:6379",
		},
		Export: ExportConfig{
			Rasterizer: export.RasterizerRsvg,
			Scale:      export.DefaultScale,
			RsvgBin:    "rsvg-convert",
		},
		Session: SessionConfig{
			DebounceMS:     500,
			FailurePolicy:  PolicyRetain,
			CommitOnSwitch: true,
		},
		Server: ServerConfig{
			Addr:               "127.0.0.1:8080",
			ReadTimeoutSeconds: 15,
		},
		Log: LogConfig{Level: "info"},
	}
}

// =============================================================================
// Loading
// =============================================================================

// Load reads the configuration. An empty path uses DefaultPath; a missing
// file is not an error.
func Load(path string) (Config, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return Config{}, err
		}
		path = p
	}

	// A missing .env is the common case.
	_ = godotenv.Load()

	cfg := Default()
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, cfg)

	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config %s: %w", path, err)
	}
	cfg.Store.Dir = expandHome(cfg.Store.Dir)
	cfg.Store.SQLitePath = expandHome(cfg.Store.SQLitePath)
	cfg.Cache.Dir = expandHome(cfg.Cache.Dir)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// setDefaults registers every key so that environment overrides apply even
// when the config file omits the key.
func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("engine.name", cfg.Engine.Name)
	v.SetDefault("engine.theme", cfg.Engine.Theme)
	v.SetDefault("engine.background", cfg.Engine.Background)
	v.SetDefault("engine.font_size", cfg.Engine.FontSize)
	v.SetDefault("engine.mermaid_bin", cfg.Engine.MermaidBin)
	v.SetDefault("engine.timeout_seconds", cfg.Engine.TimeoutSeconds)
	v.SetDefault("store.backend", cfg.Store.Backend)
	v.SetDefault("store.dir", cfg.Store.Dir)
	v.SetDefault("store.history_limit", cfg.Store.HistoryLimit)
	v.SetDefault("store.redis_addr", cfg.Store.RedisAddr)
	v.SetDefault("store.redis_password", cfg.Store.RedisPassword)
	v.SetDefault("store.redis_db", cfg.Store.RedisDB)
	v.SetDefault("store.sqlite_path", cfg.Store.SQLitePath)
	v.SetDefault("store.mongo_uri", cfg.Store.MongoURI)
	v.SetDefault("store.mongo_database", cfg.Store.MongoDatabase)
	v.SetDefault("cache.backend", cfg.Cache.Backend)
	v.SetDefault("cache.dir", cfg.Cache.Dir)
	v.SetDefault("cache.redis_addr", cfg.Cache.RedisAddr)
	v.SetDefault("cache.redis_password", cfg.Cache.RedisPassword)
	v.SetDefault("cache.redis_db", cfg.Cache.RedisDB)
	v.SetDefault("export.rasterizer", cfg.Export.Rasterizer)
	v.SetDefault("export.scale", cfg.Export.Scale)
	v.SetDefault("export.rsvg_bin", cfg.Export.RsvgBin)
	v.SetDefault("export.chrome_path", cfg.Export.ChromePath)
	v.SetDefault("session.debounce_ms", cfg.Session.DebounceMS)
	v.SetDefault("session.failure_policy", cfg.Session.FailurePolicy)
	v.SetDefault("session.commit_on_switch", cfg.Session.CommitOnSwitch)
	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("server.read_timeout_seconds", cfg.Server.ReadTimeoutSeconds)
	v.SetDefault("log.level", cfg.Log.Level)
}

// Validate rejects unsupported values.
func (c Config) Validate() error {
	if !slices.Contains(engine.Names, c.Engine.Name) {
		return fmt.Errorf("engine.name: unknown engine %q (want one of %s)", c.Engine.Name, strings.Join(engine.Names, ", "))
	}
	if !slices.Contains(engine.Themes, c.Engine.Theme) {
		return fmt.Errorf("engine.theme: unknown theme %q (want one of %s)", c.Engine.Theme, strings.Join(engine.Themes, ", "))
	}
	if c.Engine.FontSize <= 0 {
		return fmt.Errorf("engine.font_size must be positive")
	}
	if c.Engine.TimeoutSeconds < 0 {
		return fmt.Errorf("engine.timeout_seconds must not be negative")
	}
	if !project.ValidBackend(c.Store.Backend) {
		return fmt.Errorf("store.backend: unknown backend %q (want one of %s)", c.Store.Backend, strings.Join(project.BackendNames, ", "))
	}
	if c.Store.HistoryLimit <= 0 {
		return fmt.Errorf("store.history_limit must be positive")
	}
	switch c.Cache.Backend {
	case CacheFile, CacheRedis, CacheNone:
	default:
		return fmt.Errorf("cache.backend: unknown backend %q (want file, redis or none)", c.Cache.Backend)
	}
	if !export.ValidRasterizer(c.Export.Rasterizer) {
		return fmt.Errorf("export.rasterizer: unknown rasterizer %q (want one of %s)", c.Export.Rasterizer, strings.Join(export.RasterizerNames, ", "))
	}
	if c.Export.Scale <= 0 {
		return fmt.Errorf("export.scale must be positive")
	}
	if c.Session.DebounceMS < 0 {
		return fmt.Errorf("session.debounce_ms must not be negative")
	}
	if c.Session.FailurePolicy != PolicyRetain && c.Session.FailurePolicy != PolicyDiscard {
		return fmt.Errorf("session.failure_policy: unknown policy %q (want retain or discard)", c.Session.FailurePolicy)
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	return nil
}

// =============================================================================
// Writing
// =============================================================================

// WriteDefault writes the default configuration to path. An empty path uses
// DefaultPath. An existing file is kept unless overwrite is set.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return "", err
		}
		path = p
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return "", err
	}
	if err := Encode(f, Default()); err != nil {
		f.Close()
		return "", err
	}
	return path, f.Close()
}

// Encode writes cfg as TOML.
func Encode(w io.Writer, cfg Config) error {
	return toml.NewEncoder(w).Encode(cfg)
}

// =============================================================================
// Paths
// =============================================================================

// Dir returns the config directory ($XDG_CONFIG_HOME/diagramcraft or
// ~/.config/diagramcraft).
func Dir() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, AppName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", AppName), nil
}

// DefaultPath returns the default config file path.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// CacheDir returns the cache directory ($XDG_CACHE_HOME/diagramcraft or
// ~/.cache/diagramcraft).
func CacheDir() (string, error) {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, AppName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", AppName), nil
}

// ProjectsDir returns the configured project directory, defaulting to a
// projects directory under Dir.
func (c Config) ProjectsDir() (string, error) {
	if c.Store.Dir != "" {
		return c.Store.Dir, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "projects"), nil
}

// ResolvedCacheDir returns the configured artifact cache directory.
func (c Config) ResolvedCacheDir() (string, error) {
	if c.Cache.Dir != "" {
		return c.Cache.Dir, nil
	}
	return CacheDir()
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
