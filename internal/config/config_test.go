package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	want := Default()
	if cfg.Engine != want.Engine || cfg.Session != want.Session || cfg.Store.Backend != want.Store.Backend {
		t.Errorf("Load() = %+v, want defaults", cfg)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[engine]
name = "flowchart"
theme = "dark"

[store]
backend = "sqlite"
dir = "/tmp/dc-projects"

[session]
debounce_ms = 0
failure_policy = "discard"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Engine.Name != "flowchart" || cfg.Engine.Theme != "dark" {
		t.Errorf("Engine = %+v", cfg.Engine)
	}
	if cfg.Store.Backend != "sqlite" || cfg.Store.Dir != "/tmp/dc-projects" {
		t.Errorf("Store = %+v", cfg.Store)
	}
	if cfg.Session.DebounceMS != 0 || cfg.Session.FailurePolicy != PolicyDiscard {
		t.Errorf("Session = %+v", cfg.Session)
	}
	// Keys absent from the file keep their defaults.
	if cfg.Engine.FontSize != 14 || !cfg.Session.CommitOnSwitch {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("DIAGRAMCRAFT_STORE_BACKEND", "memory")
	t.Setenv("DIAGRAMCRAFT_EXPORT_SCALE", "3.5")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Store.Backend != "memory" {
		t.Errorf("Store.Backend = %q, want memory", cfg.Store.Backend)
	}
	if cfg.Export.Scale != 3.5 {
		t.Errorf("Export.Scale = %v, want 3.5", cfg.Export.Scale)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"engine", "[engine]\nname = \"plantuml\"\n", "engine.name"},
		{"theme", "[engine]\ntheme = \"pink\"\n", "engine.theme"},
		{"backend", "[store]\nbackend = \"postgres\"\n", "store.backend"},
		{"rasterizer", "[export]\nrasterizer = \"inkscape\"\n", "export.rasterizer"},
		{"policy", "[session]\nfailure_policy = \"maybe\"\n", "session.failure_policy"},
		{"cache", "[cache]\nbackend = \"memcached\"\n", "cache.backend"},
		{"syntax", "[engine\n", "read config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatal(err)
			}
			_, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestWriteDefaultRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	got, err := WriteDefault(path, false)
	if err != nil {
		t.Fatalf("WriteDefault() error: %v", err)
	}
	if got != path {
		t.Errorf("WriteDefault() = %q, want %q", got, path)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %o, want 600", info.Mode().Perm())
	}

	if _, err := WriteDefault(path, false); err == nil {
		t.Error("WriteDefault() over existing file should fail")
	}
	if _, err := WriteDefault(path, true); err != nil {
		t.Errorf("WriteDefault(overwrite) error: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Engine != Default().Engine || cfg.Export != Default().Export {
		t.Errorf("written defaults did not load back: %+v", cfg)
	}
}

func TestEncode(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, Default()); err != nil {
		t.Fatal(err)
	}
	for _, section := range []string{"[engine]", "[store]", "[session]", "[server]"} {
		if !strings.Contains(buf.String(), section) {
			t.Errorf("encoded config lacks %s", section)
		}
	}
}

func TestDirs(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg-config")
	t.Setenv("XDG_CACHE_HOME", "/tmp/xdg-cache")

	if dir, _ := Dir(); dir != filepath.Join("/tmp/xdg-config", AppName) {
		t.Errorf("Dir() = %q", dir)
	}
	if p, _ := DefaultPath(); p != filepath.Join("/tmp/xdg-config", AppName, "config.toml") {
		t.Errorf("DefaultPath() = %q", p)
	}
	if dir, _ := CacheDir(); dir != filepath.Join("/tmp/xdg-cache", AppName) {
		t.Errorf("CacheDir() = %q", dir)
	}

	cfg := Default()
	if dir, _ := cfg.ProjectsDir(); dir != filepath.Join("/tmp/xdg-config", AppName, "projects") {
		t.Errorf("ProjectsDir() = %q", dir)
	}
	cfg.Store.Dir = "/srv/projects"
	if dir, _ := cfg.ProjectsDir(); dir != "/srv/projects" {
		t.Errorf("ProjectsDir() override = %q", dir)
	}
}

func TestCacheDirDefault(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", "")
	dir, err := CacheDir()
	if err != nil {
		t.Fatalf("CacheDir() error: %v", err)
	}
	home, _ := os.UserHomeDir()
	if want := filepath.Join(home, ".cache", AppName); dir != want {
		t.Errorf("CacheDir() = %q, want %q", dir, want)
	}
}
