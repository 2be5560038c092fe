package providers

// ModelInfo is one catalog row. The context window drives pruning
// thresholds; the display name is for the CLI table.
type ModelInfo struct {
	Provider      string
	ID            string
	DisplayName   string
	ContextWindow int
}

// catalog is the static model table. Models missing here still work;
// they fall back to conservative window defaults.
var catalog = []ModelInfo{
	{Provider: "anthropic", ID: "claude-opus-4-1-20250805", DisplayName: "Claude Opus 4.1", ContextWindow: 200_000},
	{Provider: "anthropic", ID: "claude-sonnet-4-20250514", DisplayName: "Claude Sonnet 4", ContextWindow: 200_000},
	{Provider: "anthropic", ID: "claude-3-5-haiku-20241022", DisplayName: "Claude 3.5 Haiku", ContextWindow: 200_000},
	{Provider: "openai", ID: "gpt-5", DisplayName: "GPT-5", ContextWindow: 272_000},
	{Provider: "openai", ID: "gpt-5-mini", DisplayName: "GPT-5 mini", ContextWindow: 272_000},
	{Provider: "openai", ID: "gpt-4.1", DisplayName: "GPT-4.1", ContextWindow: 1_000_000},
	{Provider: "openai", ID: "gpt-4o", DisplayName: "GPT-4o", ContextWindow: 128_000},
	{Provider: "deepseek", ID: "deepseek-chat", DisplayName: "DeepSeek V3", ContextWindow: 128_000},
	{Provider: "deepseek", ID: "deepseek-reasoner", DisplayName: "DeepSeek R1", ContextWindow: 128_000},
	{Provider: "xai", ID: "grok-4", DisplayName: "Grok 4", ContextWindow: 256_000},
	{Provider: "xai", ID: "grok-3-mini", DisplayName: "Grok 3 mini", ContextWindow: 131_072},
	{Provider: "google", ID: "gemini-2.5-pro", DisplayName: "Gemini 2.5 Pro", ContextWindow: 1_048_576},
	{Provider: "google", ID: "gemini-2.5-flash", DisplayName: "Gemini 2.5 Flash", ContextWindow: 1_048_576},
	{Provider: "bedrock", ID: "anthropic.claude-sonnet-4-20250514-v1:0", DisplayName: "Claude Sonnet 4 (Bedrock)", ContextWindow: 200_000},
	{Provider: "bedrock", ID: "amazon.nova-pro-v1:0", DisplayName: "Amazon Nova Pro", ContextWindow: 300_000},
}

// Catalog returns the static model table.
func Catalog() []ModelInfo {
	out := make([]ModelInfo, len(catalog))
	copy(out, catalog)
	return out
}

// WindowFor returns the context window for a model id, or 0 when the
// model is not in the catalog.
func WindowFor(model string) int {
	for _, m := range catalog {
		if m.ID == model {
			return m.ContextWindow
		}
	}
	return 0
}
