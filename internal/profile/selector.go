package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/quarryhq/quarry/internal/config"
	"github.com/quarryhq/quarry/pkg/models"
)

// Preference is the persisted model choice,
// <data-dir>/preferences.yaml.
type Preference struct {
	Profile  string `yaml:"profile,omitempty"`
	Provider string `yaml:"provider,omitempty"`
	Model    string `yaml:"model,omitempty"`
}

const preferencesFile = "preferences.yaml"

// LoadPreference reads the persisted preference; a missing file is an
// empty preference.
func LoadPreference(dataDir string) (Preference, error) {
	data, err := os.ReadFile(filepath.Join(dataDir, preferencesFile))
	if os.IsNotExist(err) {
		return Preference{}, nil
	}
	if err != nil {
		return Preference{}, fmt.Errorf("read preferences: %w", err)
	}
	var p Preference
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Preference{}, fmt.Errorf("parse preferences: %w", err)
	}
	return p, nil
}

// SavePreference persists the preference.
func SavePreference(dataDir string, p Preference) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dataDir, preferencesFile), data, 0o644); err != nil {
		return fmt.Errorf("write preferences: %w", err)
	}
	return nil
}

// SelectorInput gathers every override source feeding a selection.
type SelectorInput struct {
	// CLIProfile is the --profile flag value, highest precedence.
	CLIProfile string
	// Preference is the persisted choice; ignored for fields locked by
	// environment variables.
	Preference Preference
	// Getenv defaults to config.Getenv (case-insensitive).
	Getenv func(string) string
}

// Selected is the outcome of resolution.
type Selected struct {
	Profile   Profile
	Selection models.ModelSelection
	// EnvLocked reports whether QUARRY_PROVIDER/QUARRY_MODEL pinned
	// the provider or model.
	EnvLocked bool
}

// Select resolves the active profile and model. Precedence: CLI flag,
// then QUARRY_PROFILE, then the persisted preference, then "default".
// QUARRY_PROVIDER/QUARRY_MODEL lock those fields over any persisted
// value.
func (c *Catalog) Select(in SelectorInput) (Selected, error) {
	getenv := in.Getenv
	if getenv == nil {
		getenv = config.Getenv
	}

	name := strings.TrimSpace(in.CLIProfile)
	if name == "" {
		name = strings.TrimSpace(getenv("QUARRY_PROFILE"))
	}
	if name == "" {
		name = strings.TrimSpace(in.Preference.Profile)
	}
	if name == "" {
		name = "default"
	}

	p, ok := c.Get(name)
	if !ok {
		return Selected{}, fmt.Errorf("unknown profile %q (have: %s)", name, strings.Join(c.Names(), ", "))
	}

	envProvider := strings.TrimSpace(getenv("QUARRY_PROVIDER"))
	envModel := strings.TrimSpace(getenv("QUARRY_MODEL"))
	locked := envProvider != "" || envModel != ""

	// Persisted provider/model apply only when the environment has not
	// pinned the selection.
	if !locked {
		if in.Preference.Provider != "" {
			p.Provider = in.Preference.Provider
		}
		if in.Preference.Model != "" {
			p.Model = in.Preference.Model
		}
	}
	if envProvider != "" {
		p.Provider = envProvider
	}
	if envModel != "" {
		p.Model = envModel
	}

	selection, err := c.Selection(p)
	if err != nil {
		return Selected{}, err
	}
	return Selected{Profile: p, Selection: selection, EnvLocked: locked}, nil
}
