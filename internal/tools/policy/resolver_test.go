package policy

import (
	"testing"

	"github.com/quarryhq/quarry/internal/secrets"
)

func testManifest() []Toggle {
	return []Toggle{
		{ID: "files", PluginIDs: []string{"files"}, DefaultEnabled: true},
		{ID: "shell", PluginIDs: []string{"shell"}, DefaultEnabled: false},
		{ID: "web-search", PluginIDs: []string{"web-search"}, RequiresSecret: "BRAVE_SEARCH_API_KEY|SERPAPI_API_KEY", DefaultEnabled: true},
	}
}

func TestResolveNilSettingsUsesDefaults(t *testing.T) {
	res := Resolve(nil, testManifest(), secrets.Static{"BRAVE_SEARCH_API_KEY": "k"})

	if !res.Allows("files") {
		t.Fatal("files defaults on")
	}
	if res.Allows("shell") {
		t.Fatal("shell defaults off")
	}
	if !res.Allows("web-search") {
		t.Fatal("web-search should be allowed when the secret exists")
	}
	if len(res.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", res.Warnings)
	}
}

func TestResolveMissingSecretWarnsAndOmits(t *testing.T) {
	settings := &ToolSettings{EnabledTools: map[string]bool{"web-search": true}}
	res := Resolve(settings, testManifest(), secrets.Static{})

	if res.Allows("web-search") {
		t.Fatal("web-search must be omitted without its secret")
	}
	if len(res.Warnings) != 1 {
		t.Fatalf("expected one warning, got %v", res.Warnings)
	}
	w := res.Warnings[0]
	if w.Reason != "missing-secret" || w.ID != "web-search" || w.SecretID != "BRAVE_SEARCH_API_KEY|SERPAPI_API_KEY" {
		t.Fatalf("unexpected warning: %+v", w)
	}
}

func TestResolveSecretAlternatives(t *testing.T) {
	res := Resolve(nil, testManifest(), secrets.Static{"SERPAPI_API_KEY": "k"})
	if !res.Allows("web-search") {
		t.Fatal("either alternative secret should satisfy the gate")
	}
}

func TestResolveSettingsOverrideDefaults(t *testing.T) {
	settings := &ToolSettings{EnabledTools: map[string]bool{
		"files": false,
		"shell": true,
	}}
	res := Resolve(settings, testManifest(), secrets.Static{})

	if res.Allows("files") {
		t.Fatal("files disabled by settings")
	}
	if !res.Allows("shell") {
		t.Fatal("shell enabled by settings")
	}
}

func TestResolveUnknownToggleDroppedSilently(t *testing.T) {
	settings := &ToolSettings{EnabledTools: map[string]bool{"no-such-toggle": true}}
	res := Resolve(settings, testManifest(), secrets.Static{})

	if len(res.Warnings) != 0 {
		t.Fatalf("unknown toggles must not warn: %v", res.Warnings)
	}
	if _, ok := res.AllowedPluginIDs["no-such-toggle"]; ok {
		t.Fatal("unknown toggle must not grant anything")
	}
}

func TestResolveUnreferencedPluginUnrestricted(t *testing.T) {
	res := Resolve(&ToolSettings{EnabledTools: map[string]bool{"files": false}}, testManifest(), secrets.Static{})

	if !res.Allows("mcp:some-server") {
		t.Fatal("plugins outside the manifest are unrestricted")
	}
	if res.Allows("files") {
		t.Fatal("referenced plugin still governed by its toggle")
	}
}
