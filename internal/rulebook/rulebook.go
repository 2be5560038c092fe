// Package rulebook loads YAML work rulebooks (phases, steps, rules)
// and renders them deterministically for inclusion in a system prompt.
package rulebook

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rulebook is a structured working method for an agent profile.
type Rulebook struct {
	Name        string  `yaml:"name"`
	Description string  `yaml:"description,omitempty"`
	Phases      []Phase `yaml:"phases,omitempty"`
	Rules       []string `yaml:"rules,omitempty"`
}

// Phase is one ordered stage of work.
type Phase struct {
	Name  string   `yaml:"name"`
	Goal  string   `yaml:"goal,omitempty"`
	Steps []string `yaml:"steps,omitempty"`
}

// Parse decodes a rulebook document.
func Parse(data []byte) (*Rulebook, error) {
	var rb Rulebook
	if err := yaml.Unmarshal(data, &rb); err != nil {
		return nil, fmt.Errorf("parse rulebook: %w", err)
	}
	if strings.TrimSpace(rb.Name) == "" {
		return nil, fmt.Errorf("rulebook name is required")
	}
	return &rb, nil
}

// Load reads and parses a rulebook file.
func Load(path string) (*Rulebook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rulebook: %w", err)
	}
	return Parse(data)
}

// Render produces the prompt text. Output depends only on the rulebook
// contents: same input, same string, byte for byte.
func (rb *Rulebook) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Working method: %s\n", rb.Name)
	if rb.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", rb.Description)
	}

	for i, phase := range rb.Phases {
		fmt.Fprintf(&b, "\n## Phase %d: %s\n", i+1, phase.Name)
		if phase.Goal != "" {
			fmt.Fprintf(&b, "\nGoal: %s\n", phase.Goal)
		}
		if len(phase.Steps) > 0 {
			b.WriteString("\n")
			for j, step := range phase.Steps {
				fmt.Fprintf(&b, "%d. %s\n", j+1, step)
			}
		}
	}

	if len(rb.Rules) > 0 {
		b.WriteString("\n## Rules\n\n")
		for _, rule := range rb.Rules {
			fmt.Fprintf(&b, "- %s\n", rule)
		}
	}
	return b.String()
}
