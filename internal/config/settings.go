package config

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"
)

// Settings is the optional per-user settings file,
// <data-dir>/settings.{yaml,json,json5}.
type Settings struct {
	// EnabledTools overrides toggle defaults, keyed by toggle id.
	EnabledTools map[string]bool `yaml:"enabledTools" json:"enabledTools,omitempty"`

	// TruncateChars caps tool output fed back to the model.
	TruncateChars int `yaml:"truncateChars" json:"truncateChars,omitempty"`

	// Estimator selects the token estimator: chars (default) or
	// tiktoken.
	Estimator string `yaml:"estimator" json:"estimator,omitempty"`

	// SnapshotDriver selects the snapshot backend: sqlite (default),
	// postgres, or memory.
	SnapshotDriver string `yaml:"snapshotDriver" json:"snapshotDriver,omitempty"`

	// Profile names the default profile when no flag or env override
	// is present.
	Profile string `yaml:"profile" json:"profile,omitempty"`
}

// settingsBasenames in probe order.
var settingsBasenames = []string{"settings.yaml", "settings.yml", "settings.json", "settings.json5"}

// LoadSettings reads the first settings file found in dataDir. A
// missing file yields zero-value settings. Unknown keys are logged as
// warnings and dropped; schema violations on known keys fail the load.
func LoadSettings(dataDir string, logger *slog.Logger) (*Settings, error) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, base := range settingsBasenames {
		path := filepath.Join(dataDir, base)
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read settings: %w", err)
		}
		return parseSettings(data, path, logger)
	}
	return &Settings{}, nil
}

func parseSettings(data []byte, path string, logger *slog.Logger) (*Settings, error) {
	raw, err := parseRaw(data, path)
	if err != nil {
		return nil, err
	}

	warnUnknownKeys(raw, path, logger)

	if err := validateSettings(raw); err != nil {
		return nil, fmt.Errorf("settings %s: %w", path, err)
	}

	// Round-trip through YAML so one decode path serves all formats.
	known, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("settings %s: %w", path, err)
	}
	var s Settings
	if err := yaml.Unmarshal(known, &s); err != nil {
		return nil, fmt.Errorf("settings %s: %w", path, err)
	}
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("settings %s: %w", path, err)
	}
	return &s, nil
}

func parseRaw(data []byte, path string) (map[string]any, error) {
	raw := map[string]any{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".json5":
		dec := json5.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("parse settings %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse settings %s: %w", path, err)
		}
	}
	return raw, nil
}

func warnUnknownKeys(raw map[string]any, path string, logger *slog.Logger) {
	for key := range raw {
		if _, known := settingsKeys[key]; !known {
			logger.Warn("unknown settings key ignored", "key", key, "file", path)
			delete(raw, key)
		}
	}
}

func (s *Settings) validate() error {
	switch s.Estimator {
	case "", "chars", "tiktoken":
	default:
		return fmt.Errorf("estimator must be chars or tiktoken, got %q", s.Estimator)
	}
	switch s.SnapshotDriver {
	case "", "sqlite", "postgres", "memory":
	default:
		return fmt.Errorf("snapshotDriver must be sqlite, postgres, or memory, got %q", s.SnapshotDriver)
	}
	if s.TruncateChars < 0 {
		return fmt.Errorf("truncateChars must be >= 0")
	}
	return nil
}
