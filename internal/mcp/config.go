// Package mcp connects Model Context Protocol servers and bridges
// their tools into the registry under the mcp__<server>__<tool>
// namespace.
package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	jsvalidate "github.com/santhosh-tekuri/jsonschema/v5"
	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
)

// ServerConfig describes one MCP server connection. Name comes from
// the map key, not the JSON body.
type ServerConfig struct {
	Name      string   `json:"-"`
	Transport string   `json:"transport"` // stdio | sse
	Command   string   `json:"command,omitempty"`
	Args      []string `json:"args,omitempty"`
	URL       string   `json:"url,omitempty"`
	Env       []string `json:"env,omitempty"`
}

type configFile struct {
	MCPServers map[string]ServerConfig `json:"mcpServers"`
}

const configSchema = `{
	"type": "object",
	"properties": {
		"mcpServers": {
			"type": "object",
			"additionalProperties": {
				"type": "object",
				"properties": {
					"transport": {"enum": ["stdio", "sse"]},
					"command": {"type": "string"},
					"args": {"type": "array", "items": {"type": "string"}},
					"url": {"type": "string"},
					"env": {"type": "array", "items": {"type": "string"}}
				},
				"required": ["transport"]
			}
		}
	},
	"required": ["mcpServers"]
}`

var compiledConfigSchema = jsvalidate.MustCompileString("mcp-config.json", configSchema)

// LoadConfig reads one config file (JSON or JSON5 by extension) and
// returns its servers keyed by name.
func LoadConfig(path string) (map[string]ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mcp config %s: %w", path, err)
	}

	var doc any
	if strings.EqualFold(filepath.Ext(path), ".json5") {
		if err := json5.NewDecoder(bytes.NewReader(data)).Decode(&doc); err != nil {
			return nil, fmt.Errorf("parse mcp config %s: %w", path, err)
		}
	} else {
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse mcp config %s: %w", path, err)
		}
	}

	if err := compiledConfigSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("mcp config %s: %w", path, err)
	}

	// Re-encode the validated document into the typed shape so JSON5
	// input takes the same path as JSON.
	normalized, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("mcp config %s: %w", path, err)
	}
	var file configFile
	if err := json.Unmarshal(normalized, &file); err != nil {
		return nil, fmt.Errorf("mcp config %s: %w", path, err)
	}

	for name, cfg := range file.MCPServers {
		cfg.Name = name
		if err := cfg.validate(); err != nil {
			return nil, fmt.Errorf("mcp config %s, server %s: %w", path, name, err)
		}
		file.MCPServers[name] = cfg
	}
	return file.MCPServers, nil
}

func (c ServerConfig) validate() error {
	switch c.Transport {
	case "stdio":
		if strings.TrimSpace(c.Command) == "" {
			return fmt.Errorf("stdio transport requires command")
		}
	case "sse":
		if strings.TrimSpace(c.URL) == "" {
			return fmt.Errorf("sse transport requires url")
		}
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}
	return nil
}

// ConfigPaths parses QUARRY_MCP_CONFIG, a colon-, comma-, or
// semicolon-separated list of config files.
func ConfigPaths(value string) []string {
	fields := strings.FieldsFunc(value, func(r rune) bool {
		return r == ':' || r == ',' || r == ';'
	})
	var paths []string
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			paths = append(paths, f)
		}
	}
	return paths
}

// LoadAll merges every config file in the list. Later files override
// earlier ones server by server.
func LoadAll(paths []string) (map[string]ServerConfig, error) {
	merged := map[string]ServerConfig{}
	for _, path := range paths {
		servers, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		for name, cfg := range servers {
			merged[name] = cfg
		}
	}
	return merged, nil
}
