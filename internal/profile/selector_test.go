package profile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func envMap(m map[string]string) func(string) string {
	return func(name string) string { return m[name] }
}

func loadTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := LoadCatalog(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestSelectDefault(t *testing.T) {
	c := loadTestCatalog(t)

	sel, err := c.Select(SelectorInput{Getenv: envMap(nil)})
	if err != nil {
		t.Fatal(err)
	}
	if sel.Profile.Name != "default" || sel.Selection.Provider != "anthropic" {
		t.Fatalf("sel = %+v", sel)
	}
	if sel.Selection.SystemPrompt == "" {
		t.Fatal("system prompt empty")
	}
}

func TestSelectPrecedence(t *testing.T) {
	c := loadTestCatalog(t)

	// CLI beats env beats preference.
	sel, err := c.Select(SelectorInput{
		CLIProfile: "deep",
		Preference: Preference{Profile: "fast"},
		Getenv:     envMap(map[string]string{"QUARRY_PROFILE": "triage"}),
	})
	if err != nil {
		t.Fatal(err)
	}
	if sel.Profile.Name != "deep" {
		t.Fatalf("profile = %s", sel.Profile.Name)
	}

	sel, err = c.Select(SelectorInput{
		Preference: Preference{Profile: "fast"},
		Getenv:     envMap(map[string]string{"QUARRY_PROFILE": "triage"}),
	})
	if err != nil {
		t.Fatal(err)
	}
	if sel.Profile.Name != "triage" {
		t.Fatalf("profile = %s", sel.Profile.Name)
	}

	sel, err = c.Select(SelectorInput{
		Preference: Preference{Profile: "fast"},
		Getenv:     envMap(nil),
	})
	if err != nil {
		t.Fatal(err)
	}
	if sel.Profile.Name != "fast" {
		t.Fatalf("profile = %s", sel.Profile.Name)
	}
}

func TestSelectEnvLockBeatsPreference(t *testing.T) {
	c := loadTestCatalog(t)

	sel, err := c.Select(SelectorInput{
		Preference: Preference{Provider: "openai", Model: "gpt-5"},
		Getenv: envMap(map[string]string{
			"QUARRY_PROVIDER": "google",
			"QUARRY_MODEL":    "gemini-2.5-pro",
		}),
	})
	if err != nil {
		t.Fatal(err)
	}
	if !sel.EnvLocked {
		t.Fatal("expected env lock")
	}
	if sel.Selection.Provider != "google" || sel.Selection.Model != "gemini-2.5-pro" {
		t.Fatalf("selection = %+v", sel.Selection)
	}
}

func TestSelectPreferenceModelWithoutLock(t *testing.T) {
	c := loadTestCatalog(t)

	sel, err := c.Select(SelectorInput{
		Preference: Preference{Provider: "openai", Model: "gpt-5"},
		Getenv:     envMap(nil),
	})
	if err != nil {
		t.Fatal(err)
	}
	if sel.EnvLocked {
		t.Fatal("unexpected env lock")
	}
	if sel.Selection.Provider != "openai" || sel.Selection.Model != "gpt-5" {
		t.Fatalf("selection = %+v", sel.Selection)
	}
}

func TestSelectUnknownProfile(t *testing.T) {
	c := loadTestCatalog(t)
	if _, err := c.Select(SelectorInput{CLIProfile: "bogus", Getenv: envMap(nil)}); err == nil {
		t.Fatal("expected unknown profile to fail")
	}
}

func TestCatalogOverlay(t *testing.T) {
	dir := t.TempDir()
	overlay := `
deep:
  model: gpt-5
  provider: openai
hound:
  provider: xai
  model: grok-4
  systemPrompt: You sniff out bugs.
`
	if err := os.WriteFile(filepath.Join(dir, "profiles.yaml"), []byte(overlay), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := LoadCatalog(dir)
	if err != nil {
		t.Fatal(err)
	}

	deep, _ := c.Get("deep")
	if deep.Provider != "openai" || deep.Model != "gpt-5" {
		t.Fatalf("deep = %+v", deep)
	}
	// Overlay keeps builtin fields it does not mention.
	if deep.MaxTokens != 16_384 {
		t.Fatalf("deep.MaxTokens = %d", deep.MaxTokens)
	}

	hound, ok := c.Get("hound")
	if !ok || hound.SystemPrompt != "You sniff out bugs." {
		t.Fatalf("hound = %+v", hound)
	}
}

func TestProfileRulebookRendersIntoPrompt(t *testing.T) {
	dir := t.TempDir()
	rb := `
name: careful
rules:
  - Verify before asserting.
`
	if err := os.WriteFile(filepath.Join(dir, "careful.yaml"), []byte(rb), 0o644); err != nil {
		t.Fatal(err)
	}
	overlay := `
default:
  rulebook: careful.yaml
`
	if err := os.WriteFile(filepath.Join(dir, "profiles.yaml"), []byte(overlay), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := LoadCatalog(dir)
	if err != nil {
		t.Fatal(err)
	}
	sel, err := c.Select(SelectorInput{Getenv: envMap(nil)})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(sel.Selection.SystemPrompt, "Verify before asserting.") {
		t.Fatalf("rulebook not rendered into prompt:\n%s", sel.Selection.SystemPrompt)
	}
}

func TestPreferenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	want := Preference{Profile: "deep", Provider: "openai", Model: "gpt-5"}
	if err := SavePreference(dir, want); err != nil {
		t.Fatal(err)
	}
	got, err := LoadPreference(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}
