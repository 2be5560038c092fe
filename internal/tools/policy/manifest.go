package policy

// Plugin identifiers governed by the built-in manifest. They match the
// suite ids the corresponding modules register.
const (
	PluginFiles     = "files"
	PluginShell     = "shell"
	PluginCodeIntel = "codeintel"
	PluginWebSearch = "web-search"
)

// DefaultManifest returns the built-in toggle manifest. MCP servers
// contribute additional per-server toggles at load time and are not
// listed here.
func DefaultManifest() []Toggle {
	return []Toggle{
		{
			ID:             "files",
			PluginIDs:      []string{PluginFiles},
			DefaultEnabled: true,
			Description:    "Read, write, list, and search workspace files",
		},
		{
			ID:             "shell",
			PluginIDs:      []string{PluginShell},
			DefaultEnabled: true,
			Description:    "Execute shell commands in the workspace",
		},
		{
			ID:             "code-intel",
			PluginIDs:      []string{PluginCodeIntel},
			DefaultEnabled: true,
			Description:    "Go source analysis: definitions, exports, quality checks",
		},
		{
			ID:             "web-search",
			PluginIDs:      []string{PluginWebSearch},
			RequiresSecret: "BRAVE_SEARCH_API_KEY|SERPAPI_API_KEY",
			DefaultEnabled: true,
			Description:    "Web search via Brave Search or SerpAPI",
		},
	}
}
