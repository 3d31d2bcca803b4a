package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ProjectFile is the per-project override file looked up in the working directory.
const ProjectFile = ".activitywatch-ls.json"

// Config holds all configurable activitywatch-ls settings.
type Config struct {
	Host           string   `json:"host"`
	Port           int      `json:"port"`
	Client         string   `json:"client"`    // watcher name, also the bucket ID prefix
	LogLevel       string   `json:"log_level"` // "debug" | "info" | "warn" | "error"
	LogFile        string   `json:"log_file"`  // empty means stderr
	Timeout        Duration `json:"timeout"`   // per-request HTTP timeout
	IgnorePatterns []string `json:"ignore_patterns"`
}

// Duration is a time.Duration that unmarshals from either a Go duration
// string ("10s") or a number of seconds.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case float64:
		*d = Duration(time.Duration(val * float64(time.Second)))
	case string:
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
	default:
		return fmt.Errorf("invalid duration %s", string(data))
	}
	return nil
}

// Defaults returns sensible default configuration values.
func Defaults() Config {
	return Config{
		Host:           "127.0.0.1",
		Port:           5600,
		Client:         "aw-watcher-zed",
		LogLevel:       "info",
		Timeout:        Duration(10 * time.Second),
		IgnorePatterns: []string{},
	}
}

// Dir returns the activitywatch-ls config directory.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "activitywatch-ls"), nil
}

// LoadGlobal reads ~/.config/activitywatch-ls/config.json.
// Returns defaults if the file is absent.
func LoadGlobal() (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	return loadFile(filepath.Join(dir, "config.json"), true)
}

// LoadProject reads .activitywatch-ls.json in dir.
// Returns nil (no error) if the file is absent.
func LoadProject(dir string) (*Config, error) {
	return loadFile(filepath.Join(dir, ProjectFile), false)
}

// loadFile reads and parses a JSON config file at path.
// If returnDefaults is true, returns defaults when the file is absent.
// If returnDefaults is false, returns nil when the file is absent.
func loadFile(path string, returnDefaults bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if returnDefaults {
				d := Defaults()
				return &d, nil
			}
			return nil, nil
		}
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return &cfg, nil
}

// Merge combines global and project configs, with project taking precedence.
// Missing keys fall back to global, then defaults.
func Merge(global, project *Config) Config {
	result := Defaults()
	overlay(&result, global)
	overlay(&result, project)
	return result
}

// overlay copies every non-zero field of src onto dst.
func overlay(dst, src *Config) {
	if src == nil {
		return
	}
	if src.Host != "" {
		dst.Host = src.Host
	}
	if src.Port != 0 {
		dst.Port = src.Port
	}
	if src.Client != "" {
		dst.Client = src.Client
	}
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
	if src.LogFile != "" {
		dst.LogFile = src.LogFile
	}
	if src.Timeout != 0 {
		dst.Timeout = src.Timeout
	}
	if len(src.IgnorePatterns) > 0 {
		dst.IgnorePatterns = src.IgnorePatterns
	}
}

// Apply returns a copy of c with the values present in s.
func (c Config) Apply(s *Settings) Config {
	if s == nil {
		return c
	}
	if s.Host != nil {
		c.Host = *s.Host
	}
	if s.Port != nil {
		c.Port = *s.Port
	}
	return c
}

// Validate reports whether c can be used to reach a server.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return errors.New("host must not be empty")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range 1-65535", c.Port)
	}
	if c.Client == "" {
		return errors.New("client name must not be empty")
	}
	return nil
}

// BaseURL is the ActivityWatch server root, e.g. http://127.0.0.1:5600.
func (c Config) BaseURL() string {
	return "http://" + net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ParseError is returned when a config file exists but cannot be parsed.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return "failed to parse config file " + e.Path + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
