package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcpproto "github.com/mark3labs/mcp-go/mcp"

	"github.com/quarryhq/quarry/internal/observability"
)

// RemoteTool is the metadata a server advertises for one tool.
type RemoteTool struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// Client manages the connection to a single MCP server. Safe for
// concurrent use once connected.
type Client struct {
	mu    sync.RWMutex
	cfg   ServerConfig
	inner mcpclient.MCPClient
}

func NewClient(cfg ServerConfig) *Client {
	return &Client{cfg: cfg}
}

// Connect starts the transport and runs the initialize handshake.
func (c *Client) Connect(ctx context.Context) error {
	var inner mcpclient.MCPClient

	switch c.cfg.Transport {
	case "stdio":
		cli, err := mcpclient.NewStdioMCPClient(c.cfg.Command, c.cfg.Env, c.cfg.Args...)
		if err != nil {
			return fmt.Errorf("start mcp server %q: %w", c.cfg.Name, err)
		}
		inner = cli
	case "sse":
		cli, err := mcpclient.NewSSEMCPClient(c.cfg.URL)
		if err != nil {
			return fmt.Errorf("create sse client %q: %w", c.cfg.Name, err)
		}
		if err := cli.Start(ctx); err != nil {
			return fmt.Errorf("start sse client %q: %w", c.cfg.Name, err)
		}
		inner = cli
	default:
		return fmt.Errorf("server %q: unknown transport %q", c.cfg.Name, c.cfg.Transport)
	}

	_, err := inner.Initialize(ctx, mcpproto.InitializeRequest{
		Params: mcpproto.InitializeParams{
			ProtocolVersion: mcpproto.LATEST_PROTOCOL_VERSION,
			ClientInfo: mcpproto.Implementation{
				Name:    "quarry",
				Version: observability.Version,
			},
		},
	})
	if err != nil {
		_ = inner.Close()
		return fmt.Errorf("initialize mcp server %q: %w", c.cfg.Name, err)
	}

	c.mu.Lock()
	c.inner = inner
	c.mu.Unlock()
	return nil
}

func (c *Client) conn() (mcpclient.MCPClient, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.inner == nil {
		return nil, fmt.Errorf("mcp client %q not connected", c.cfg.Name)
	}
	return c.inner, nil
}

// ListTools fetches the server's tool inventory.
func (c *Client) ListTools(ctx context.Context) ([]RemoteTool, error) {
	inner, err := c.conn()
	if err != nil {
		return nil, err
	}

	result, err := inner.ListTools(ctx, mcpproto.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("list tools on %q: %w", c.cfg.Name, err)
	}

	remote := make([]RemoteTool, 0, len(result.Tools))
	for _, t := range result.Tools {
		schema, err := json.Marshal(t.InputSchema)
		if err != nil {
			schema = json.RawMessage("{}")
		}
		remote = append(remote, RemoteTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schema,
		})
	}
	return remote, nil
}

// CallTool invokes a remote tool and returns the joined text content.
// A server-side IsError result surfaces as a Go error so the registry
// reports it in-band like any other tool failure.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	inner, err := c.conn()
	if err != nil {
		return "", err
	}

	req := mcpproto.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	result, err := inner.CallTool(ctx, req)
	if err != nil {
		return "", fmt.Errorf("call %q on %q: %w", name, c.cfg.Name, err)
	}

	var parts []string
	for _, content := range result.Content {
		if tc, ok := content.(mcpproto.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	text := strings.Join(parts, "\n")

	if result.IsError {
		return "", fmt.Errorf("%s", text)
	}
	return text, nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	inner := c.inner
	c.inner = nil
	c.mu.Unlock()

	if inner == nil {
		return nil
	}
	return inner.Close()
}
