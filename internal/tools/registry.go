// Package tools implements the namespaced tool registry: suite-based
// registration, argument normalization and validation, a TTL result cache
// for idempotent tools, and the in-band execution protocol the agent loop
// depends on.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/quarryhq/quarry/pkg/models"
)

// Handler executes one tool call with normalized, schema-checked arguments.
// Returned values that are not strings are rendered as pretty-printed JSON.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Definition describes one callable tool.
type Definition struct {
	Name        string
	Description string
	// Parameters is a JSON-Schema-shaped object in the restricted dialect.
	// Nil means no validation.
	Parameters map[string]any
	Handler    Handler
	// Cacheable marks the tool's results safe to cache within the TTL.
	// Tools in the built-in idempotent set are cacheable regardless.
	Cacheable bool
}

// Suite is a named group of tool definitions installed atomically.
type Suite struct {
	ID    string
	Tools []Definition
}

// Call is one tool invocation request. Arguments accepts any of the shapes
// NormalizeArguments understands.
type Call struct {
	ID        string
	Name      string
	Arguments any
}

// CallFrom adapts a model-layer tool call.
func CallFrom(tc models.ToolCall) Call {
	return Call{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments}
}

// Observer receives tool lifecycle notifications. Implementations must be
// safe for concurrent use; calls within one assistant turn can execute in
// parallel.
type Observer interface {
	OnToolStart(name, id string, args map[string]any)
	OnToolResult(name, id, result string)
	OnToolError(name, id, errMsg string)
	OnCacheHit(name, id string)
}

// Truncator shortens tool output before it is cached and returned. The
// context manager satisfies this with its per-tool-family strategies.
type Truncator interface {
	TruncateToolOutput(toolName, output string) string
}

var toolNamePattern = regexp.MustCompile(`^[A-Za-z0-9_.\-]+$`)

// mcpSuitePrefix marks suites produced by the MCP bridge; only those suites
// may register tools in the mcp__ namespace.
const mcpSuitePrefix = "mcp:"

// Registry is the namespaced tool catalog. Registration is suite-atomic;
// execution follows the in-band error protocol (failures are returned as
// result strings, never as errors).
type Registry struct {
	mu        sync.RWMutex
	defs      map[string]Definition
	owner     map[string]string // tool name -> suite id
	suites    map[string][]string
	order     []string // tool names in registration order
	observers []Observer
	trunc     Truncator
	cache     *resultCache
}

// NewRegistry creates an empty registry with the default cache TTL.
func NewRegistry() *Registry {
	return NewRegistryWithTTL(DefaultCacheTTL)
}

// NewRegistryWithTTL creates an empty registry with a custom cache TTL.
func NewRegistryWithTTL(ttl time.Duration) *Registry {
	return &Registry{
		defs:   make(map[string]Definition),
		owner:  make(map[string]string),
		suites: make(map[string][]string),
		cache:  newResultCache(ttl),
	}
}

// AddObserver appends a lifecycle observer. Observers fan out in
// registration order.
func (r *Registry) AddObserver(obs Observer) {
	if obs == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, obs)
}

// SetTruncator attaches the output truncation hook.
func (r *Registry) SetTruncator(t Truncator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trunc = t
}

// RegisterSuite installs a suite, atomically replacing any prior suite with
// the same id. It fails if a tool name is invalid, claims the reserved
// mcp__ namespace from a non-MCP suite, or already belongs to a different
// suite. On failure the registry is unchanged.
func (r *Registry) RegisterSuite(suite Suite) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, def := range suite.Tools {
		if !toolNamePattern.MatchString(def.Name) {
			return &RegistryError{Kind: KindInvalidName, Suite: suite.ID, Tool: def.Name}
		}
		if strings.HasPrefix(def.Name, "mcp__") && !strings.HasPrefix(suite.ID, mcpSuitePrefix) {
			return &RegistryError{Kind: KindReservedName, Suite: suite.ID, Tool: def.Name}
		}
		if owner, taken := r.owner[def.Name]; taken && owner != suite.ID {
			return &RegistryError{Kind: KindDuplicateTool, Suite: suite.ID, Tool: def.Name}
		}
	}
	seen := make(map[string]struct{}, len(suite.Tools))
	for _, def := range suite.Tools {
		if _, dup := seen[def.Name]; dup {
			return &RegistryError{Kind: KindDuplicateTool, Suite: suite.ID, Tool: def.Name}
		}
		seen[def.Name] = struct{}{}
	}

	r.removeSuiteLocked(suite.ID)

	names := make([]string, 0, len(suite.Tools))
	for _, def := range suite.Tools {
		r.defs[def.Name] = def
		r.owner[def.Name] = suite.ID
		r.order = append(r.order, def.Name)
		names = append(names, def.Name)
	}
	r.suites[suite.ID] = names
	return nil
}

// UnregisterSuite removes all tools owned by the suite. Unknown ids are a
// no-op.
func (r *Registry) UnregisterSuite(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeSuiteLocked(id)
}

func (r *Registry) removeSuiteLocked(id string) {
	names, ok := r.suites[id]
	if !ok {
		return
	}
	removed := make(map[string]struct{}, len(names))
	for _, name := range names {
		delete(r.defs, name)
		delete(r.owner, name)
		removed[name] = struct{}{}
		r.cache.dropTool(name)
	}
	kept := r.order[:0]
	for _, name := range r.order {
		if _, gone := removed[name]; !gone {
			kept = append(kept, name)
		}
	}
	r.order = kept
	delete(r.suites, id)
}

// ProviderTools returns the registry contents in registration order, shaped
// for provider requests.
func (r *Registry) ProviderTools() []models.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.ToolSchema, 0, len(r.order))
	for _, name := range r.order {
		def := r.defs[name]
		out = append(out, models.ToolSchema{
			Name:        def.Name,
			Description: def.Description,
			Parameters:  def.Parameters,
		})
	}
	return out
}

// Has reports whether a tool with the given name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.defs[name]
	return ok
}

// ClearCache drops all cached tool results.
func (r *Registry) ClearCache() {
	r.cache.clear()
}

// Execute runs one tool call and returns its output.
//
// Failures are values: an unknown tool, invalid arguments, a handler error,
// or a handler panic all produce a descriptive result string so the agent
// loop can feed the failure back to the model as a tool message. Execute
// never returns an error and never lets a handler panic escape.
func (r *Registry) Execute(ctx context.Context, call Call) string {
	r.mu.RLock()
	def, ok := r.defs[call.Name]
	observers := r.observers
	trunc := r.trunc
	r.mu.RUnlock()

	if !ok {
		msg := fmt.Sprintf("Tool %q is not available.", call.Name)
		notifyError(observers, call.Name, call.ID, msg)
		return msg
	}

	args := NormalizeArguments(call.Arguments)

	cacheable := def.Cacheable || IsIdempotentTool(def.Name)
	var key string
	if cacheable {
		key = cacheKey(def.Name, args)
		if cached, hit := r.cache.get(key); hit {
			notifyCacheHit(observers, call.Name, call.ID)
			notifyResult(observers, call.Name, call.ID, cached)
			return cached
		}
	}

	notifyStart(observers, call.Name, call.ID, args)

	if issues := ValidateArguments(def.Parameters, args); len(issues) > 0 {
		msg := fmt.Sprintf("Invalid arguments for %q: %s", call.Name, strings.Join(issues, " "))
		notifyError(observers, call.Name, call.ID, msg)
		return msg
	}

	output, err := r.invoke(ctx, def, args)
	if err != nil {
		msg := fmt.Sprintf("Failed to run %q: %s", call.Name, err.Error())
		notifyError(observers, call.Name, call.ID, msg)
		return msg
	}

	if trunc != nil {
		output = trunc.TruncateToolOutput(def.Name, output)
	}
	if cacheable {
		r.cache.put(key, output)
	}
	notifyResult(observers, call.Name, call.ID, output)
	return output
}

// invoke calls the handler, containing panics and stringifying non-string
// results.
func (r *Registry) invoke(ctx context.Context, def Definition, args map[string]any) (output string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()

	result, err := def.Handler(ctx, args)
	if err != nil {
		return "", err
	}
	switch v := result.(type) {
	case string:
		return v, nil
	case nil:
		return "", nil
	default:
		data, merr := json.MarshalIndent(v, "", "  ")
		if merr != nil {
			return fmt.Sprintf("%v", v), nil
		}
		return string(data), nil
	}
}

func notifyStart(observers []Observer, name, id string, args map[string]any) {
	for _, obs := range observers {
		obs.OnToolStart(name, id, args)
	}
}

func notifyResult(observers []Observer, name, id, result string) {
	for _, obs := range observers {
		obs.OnToolResult(name, id, result)
	}
}

func notifyError(observers []Observer, name, id, msg string) {
	for _, obs := range observers {
		obs.OnToolError(name, id, msg)
	}
}

func notifyCacheHit(observers []Observer, name, id string) {
	for _, obs := range observers {
		obs.OnCacheHit(name, id)
	}
}
