package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pgregory.net/rapid"
)

// Property: config merge precedence
func TestConfigMergePrecedence(t *testing.T) {
	// Generator for a non-empty string field value.
	nonEmptyString := rapid.StringMatching(`[a-zA-Z0-9/_.-]{1,20}`)

	// Each field is independently either unset or a non-empty value.
	configGen := rapid.Custom(func(t *rapid.T) *Config {
		cfg := &Config{}
		if rapid.Bool().Draw(t, "hasHost") {
			cfg.Host = nonEmptyString.Draw(t, "host")
		}
		if rapid.Bool().Draw(t, "hasClient") {
			cfg.Client = nonEmptyString.Draw(t, "client")
		}
		if rapid.Bool().Draw(t, "hasLogLevel") {
			cfg.LogLevel = nonEmptyString.Draw(t, "logLevel")
		}
		if rapid.Bool().Draw(t, "hasPort") {
			cfg.Port = rapid.IntRange(1, 65535).Draw(t, "port")
		}
		return cfg
	})

	rapid.Check(t, func(t *rapid.T) {
		global := configGen.Draw(t, "global")
		project := configGen.Draw(t, "project")

		merged := Merge(global, project)
		defaults := Defaults()

		checkStringField(t, "Host", global.Host, project.Host, defaults.Host, merged.Host)
		checkStringField(t, "Client", global.Client, project.Client, defaults.Client, merged.Client)
		checkStringField(t, "LogLevel", global.LogLevel, project.LogLevel, defaults.LogLevel, merged.LogLevel)

		switch {
		case project.Port != 0:
			if merged.Port != project.Port {
				t.Fatalf("Port: expected project value %d, got %d", project.Port, merged.Port)
			}
		case global.Port != 0:
			if merged.Port != global.Port {
				t.Fatalf("Port: expected global value %d, got %d", global.Port, merged.Port)
			}
		default:
			if merged.Port != defaults.Port {
				t.Fatalf("Port: expected default %d, got %d", defaults.Port, merged.Port)
			}
		}
	})
}

// checkStringField asserts the merge precedence rule for a single string field:
//   - project non-empty  → merged == project
//   - project empty, global non-empty → merged == global
//   - both empty → merged == defaultVal
func checkStringField(t *rapid.T, name, globalVal, projectVal, defaultVal, mergedVal string) {
	t.Helper()
	switch {
	case projectVal != "":
		if mergedVal != projectVal {
			t.Fatalf("%s: both set: expected project value %q, got %q", name, projectVal, mergedVal)
		}
	case globalVal != "":
		if mergedVal != globalVal {
			t.Fatalf("%s: only global set: expected global value %q, got %q", name, globalVal, mergedVal)
		}
	default:
		if mergedVal != defaultVal {
			t.Fatalf("%s: neither set: expected default %q, got %q", name, defaultVal, mergedVal)
		}
	}
}

func TestDefaultsValues(t *testing.T) {
	d := Defaults()
	if d.Host != "127.0.0.1" {
		t.Errorf("Host: want %q, got %q", "127.0.0.1", d.Host)
	}
	if d.Port != 5600 {
		t.Errorf("Port: want %d, got %d", 5600, d.Port)
	}
	if d.Client != "aw-watcher-zed" {
		t.Errorf("Client: want %q, got %q", "aw-watcher-zed", d.Client)
	}
	if time.Duration(d.Timeout) != 10*time.Second {
		t.Errorf("Timeout: want 10s, got %s", time.Duration(d.Timeout))
	}
	if d.IgnorePatterns == nil || len(d.IgnorePatterns) != 0 {
		t.Errorf("IgnorePatterns: want empty slice, got %v", d.IgnorePatterns)
	}
	if err := d.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadGlobalMissingFileReturnsDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := LoadGlobal()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg == nil {
		t.Fatal("expected non-nil config, got nil")
	}
	defaults := Defaults()
	if cfg.Host != defaults.Host || cfg.Port != defaults.Port {
		t.Errorf("want %s:%d, got %s:%d", defaults.Host, defaults.Port, cfg.Host, cfg.Port)
	}
}

func TestLoadProjectMissingFileReturnsNil(t *testing.T) {
	cfg, err := LoadProject(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg != nil {
		t.Errorf("expected nil config, got %+v", cfg)
	}
}

func TestLoadProjectReadsFile(t *testing.T) {
	dir := t.TempDir()
	body := `{"host": "aw.local", "port": 5666, "timeout": 3, "ignore_patterns": ["*.lock"]}`
	if err := os.WriteFile(filepath.Join(dir, ProjectFile), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadProject(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Host != "aw.local" || cfg.Port != 5666 {
		t.Errorf("got %s:%d", cfg.Host, cfg.Port)
	}
	if time.Duration(cfg.Timeout) != 3*time.Second {
		t.Errorf("Timeout: want 3s, got %s", time.Duration(cfg.Timeout))
	}
	if len(cfg.IgnorePatterns) != 1 || cfg.IgnorePatterns[0] != "*.lock" {
		t.Errorf("IgnorePatterns: got %v", cfg.IgnorePatterns)
	}
}

func TestLoadGlobalParseError(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("HOME", tmp)

	cfgDir := filepath.Join(tmp, ".config", "activitywatch-ls")
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cfgDir, "config.json"), []byte("{invalid json"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadGlobal()
	if err == nil {
		t.Fatal("expected an error for invalid JSON, got nil")
	}
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected *ParseError, got %T: %v", err, err)
	}
	if parseErr.Path != filepath.Join(cfgDir, "config.json") {
		t.Errorf("ParseError.Path = %q", parseErr.Path)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"empty host", func(c *Config) { c.Host = " " }, true},
		{"port zero", func(c *Config) { c.Port = 0 }, true},
		{"port too large", func(c *Config) { c.Port = 70000 }, true},
		{"no client", func(c *Config) { c.Client = "" }, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := Defaults()
			tc.mutate(&c)
			err := c.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestBaseURL(t *testing.T) {
	c := Defaults()
	if got := c.BaseURL(); got != "http://127.0.0.1:5600" {
		t.Errorf("BaseURL() = %q", got)
	}
	c.Host = "::1"
	if got := c.BaseURL(); got != "http://[::1]:5600" {
		t.Errorf("BaseURL() for IPv6 = %q", got)
	}
}
