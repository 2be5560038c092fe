// Package profile defines agent profiles (provider, model, prompt,
// rulebook) and the selector that resolves which one a session runs
// with.
package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/quarryhq/quarry/internal/rulebook"
	"github.com/quarryhq/quarry/pkg/models"
)

// Profile is one named bundle of model selection and prompting.
type Profile struct {
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description,omitempty"`
	Provider     string   `yaml:"provider"`
	Model        string   `yaml:"model"`
	Temperature  *float64 `yaml:"temperature,omitempty"`
	MaxTokens    int      `yaml:"maxTokens,omitempty"`
	SystemPrompt string   `yaml:"systemPrompt,omitempty"`
	// Rulebook is a path to a rulebook YAML file, resolved relative to
	// the profiles file when loaded from disk.
	Rulebook string `yaml:"rulebook,omitempty"`
}

const baseSystemPrompt = `You are Quarry, a coding agent. You work inside the user's workspace
with the tools you are given. Prefer reading code over guessing about
it, state what you changed and why, and keep responses grounded in
what the tools returned.`

func builtins() map[string]Profile {
	return map[string]Profile{
		"default": {
			Name:         "default",
			Description:  "Balanced day-to-day coding agent.",
			Provider:     "anthropic",
			Model:        "claude-sonnet-4-20250514",
			SystemPrompt: baseSystemPrompt,
		},
		"deep": {
			Name:         "deep",
			Description:  "Slow, thorough reasoning for hard problems.",
			Provider:     "anthropic",
			Model:        "claude-opus-4-1-20250805",
			MaxTokens:    16_384,
			SystemPrompt: baseSystemPrompt,
		},
		"fast": {
			Name:         "fast",
			Description:  "Quick answers for small tasks.",
			Provider:     "anthropic",
			Model:        "claude-3-5-haiku-20241022",
			SystemPrompt: baseSystemPrompt,
		},
		"triage": {
			Name:        "triage",
			Description: "Reverse-engineering first pass: map, assess, report.",
			Provider:    "anthropic",
			Model:       "claude-sonnet-4-20250514",
			SystemPrompt: baseSystemPrompt + `

You are in triage mode. Survey the codebase before forming opinions:
map entry points, dependencies, and data flow, then report findings as
short claims each backed by a file and line reference.`,
		},
	}
}

// Catalog holds the effective profile table: builtins overlaid by the
// user's profiles.yaml.
type Catalog struct {
	profiles map[string]Profile
	baseDir  string
}

// LoadCatalog builds the catalog, overlaying <dataDir>/profiles.yaml
// when present. User entries override builtins field by field.
func LoadCatalog(dataDir string) (*Catalog, error) {
	c := &Catalog{profiles: builtins(), baseDir: dataDir}

	path := filepath.Join(dataDir, "profiles.yaml")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}

	var overlay map[string]Profile
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("parse profiles: %w", err)
	}
	for name, p := range overlay {
		p.Name = name
		base, ok := c.profiles[name]
		if !ok {
			c.profiles[name] = p
			continue
		}
		c.profiles[name] = merge(base, p)
	}
	return c, nil
}

func merge(base, over Profile) Profile {
	out := base
	if over.Description != "" {
		out.Description = over.Description
	}
	if over.Provider != "" {
		out.Provider = over.Provider
	}
	if over.Model != "" {
		out.Model = over.Model
	}
	if over.Temperature != nil {
		out.Temperature = over.Temperature
	}
	if over.MaxTokens != 0 {
		out.MaxTokens = over.MaxTokens
	}
	if over.SystemPrompt != "" {
		out.SystemPrompt = over.SystemPrompt
	}
	if over.Rulebook != "" {
		out.Rulebook = over.Rulebook
	}
	return out
}

// Get returns a profile by name.
func (c *Catalog) Get(name string) (Profile, bool) {
	p, ok := c.profiles[name]
	return p, ok
}

// Names returns all profile names, sorted.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.profiles))
	for name := range c.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Selection materializes the profile into a model selection, rendering
// and appending its rulebook when one is referenced.
func (c *Catalog) Selection(p Profile) (models.ModelSelection, error) {
	prompt := p.SystemPrompt
	if p.Rulebook != "" {
		path := p.Rulebook
		if !filepath.IsAbs(path) {
			path = filepath.Join(c.baseDir, path)
		}
		rb, err := rulebook.Load(path)
		if err != nil {
			return models.ModelSelection{}, fmt.Errorf("profile %s: %w", p.Name, err)
		}
		prompt = prompt + "\n\n" + rb.Render()
	}
	return models.ModelSelection{
		Provider:     p.Provider,
		Model:        p.Model,
		Temperature:  p.Temperature,
		MaxTokens:    p.MaxTokens,
		SystemPrompt: prompt,
	}, nil
}
