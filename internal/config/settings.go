package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Settings is the editor-side settings block:
//
//	"lsp": { "activitywatch": { "settings": { "host": "127.0.0.1", "port": 5600 } } }
//
// Both keys are optional; a nil field means "not configured".
type Settings struct {
	Host *string `json:"host"`
	Port *int    `json:"port"`
}

// ParseSettings decodes the settings object. An empty or null payload yields
// empty Settings. Ports must fit in 16 bits.
func ParseSettings(raw []byte) (*Settings, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return &Settings{}, nil
	}
	var s Settings
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	if s.Port != nil && (*s.Port < 0 || *s.Port > 65535) {
		return nil, fmt.Errorf("decode settings: port %d does not fit in 16 bits", *s.Port)
	}
	return &s, nil
}

// Empty reports whether no key was set.
func (s *Settings) Empty() bool {
	return s == nil || (s.Host == nil && s.Port == nil)
}

// Args renders the settings as language server arguments, host first.
func (s *Settings) Args() []string {
	if s == nil {
		return nil
	}
	var args []string
	if s.Host != nil {
		args = append(args, "--host", *s.Host)
	}
	if s.Port != nil {
		args = append(args, "--port", strconv.Itoa(*s.Port))
	}
	return args
}
