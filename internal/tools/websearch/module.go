package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/quarryhq/quarry/internal/capability"
	"github.com/quarryhq/quarry/internal/secrets"
	"github.com/quarryhq/quarry/internal/tools"
	"github.com/quarryhq/quarry/internal/tools/policy"
)

// Config controls web search behavior. BraveBaseURL and SerpAPIBaseURL
// exist for tests.
type Config struct {
	Secrets        secrets.Store
	HTTPClient     *http.Client
	BraveBaseURL   string
	SerpAPIBaseURL string
}

// pickBackend prefers Brave when its key exists, then SerpAPI.
func pickBackend(cfg Config) (backend, error) {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	braveURL := cfg.BraveBaseURL
	if braveURL == "" {
		braveURL = braveBaseURL
	}
	serpURL := cfg.SerpAPIBaseURL
	if serpURL == "" {
		serpURL = serpapiBaseURL
	}

	if cfg.Secrets != nil {
		if key, ok := cfg.Secrets.Get(SecretBrave); ok {
			return &braveBackend{apiKey: key, baseURL: braveURL, client: client}, nil
		}
		if key, ok := cfg.Secrets.Get(SecretSerpAPI); ok {
			return &serpapiBackend{apiKey: key, baseURL: serpURL, client: client}, nil
		}
	}
	return nil, fmt.Errorf("no search credential available (%s or %s)", SecretBrave, SecretSerpAPI)
}

func webSearchTool(be backend) tools.Definition {
	return tools.Definition{
		Name:        "web_search",
		Description: "Search the web and return titles, URLs, and snippets.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Search query.",
				},
				"count": map[string]any{
					"type":        "integer",
					"description": "Number of results (default: 5, cap: 20).",
				},
			},
			"required": []any{"query"},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			var in struct {
				Query string `json:"query"`
				Count int    `json:"count"`
			}
			data, err := json.Marshal(args)
			if err == nil {
				err = json.Unmarshal(data, &in)
			}
			if err != nil {
				return nil, fmt.Errorf("invalid parameters: %w", err)
			}
			if strings.TrimSpace(in.Query) == "" {
				return nil, fmt.Errorf("query is required")
			}
			if in.Count <= 0 {
				in.Count = defaultResultCount
			}
			if in.Count > maxResultCount {
				in.Count = maxResultCount
			}

			results, err := be.search(ctx, in.Query, in.Count)
			if err != nil {
				return nil, err
			}
			return Response{
				Query:   in.Query,
				Backend: be.name(),
				Results: results,
				Count:   len(results),
			}, nil
		},
	}
}

// Module contributes the web search suite to a capability host.
type Module struct {
	cfg Config
}

func NewModule(cfg Config) *Module {
	return &Module{cfg: cfg}
}

func (m *Module) ID() string { return policy.PluginWebSearch }

func (m *Module) Create(_ context.Context, mc capability.ModuleContext) ([]capability.Contribution, error) {
	cfg := m.cfg
	if cfg.Secrets == nil {
		cfg.Secrets = mc.Secrets
	}
	suite, err := Suite(cfg)
	if err != nil {
		return nil, err
	}
	return []capability.Contribution{{
		ID:          "web-search",
		Description: "Web search via Brave or SerpAPI.",
		Suites:      []tools.Suite{suite},
	}}, nil
}

// Suite builds the web search suite. It fails when neither credential
// is available; the permission resolver normally prevents that call.
func Suite(cfg Config) (tools.Suite, error) {
	be, err := pickBackend(cfg)
	if err != nil {
		return tools.Suite{}, err
	}
	return tools.Suite{
		ID:    "web-search",
		Tools: []tools.Definition{webSearchTool(be)},
	}, nil
}
