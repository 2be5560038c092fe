package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func writeSettings(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestLoadSettingsYAML(t *testing.T) {
	dir := writeSettings(t, "settings.yaml", `
enabledTools:
  web-search: true
  shell: false
truncateChars: 5000
estimator: tiktoken
snapshotDriver: postgres
profile: deep
`)
	s, err := LoadSettings(dir, slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	if !s.EnabledTools["web-search"] || s.EnabledTools["shell"] {
		t.Fatalf("enabledTools = %v", s.EnabledTools)
	}
	if s.TruncateChars != 5000 || s.Estimator != "tiktoken" || s.SnapshotDriver != "postgres" || s.Profile != "deep" {
		t.Fatalf("settings = %+v", s)
	}
}

func TestLoadSettingsJSON5(t *testing.T) {
	dir := writeSettings(t, "settings.json5", `{
  // comments are allowed
  enabledTools: { "code-intel": false },
  truncateChars: 2000,
}`)
	s, err := LoadSettings(dir, slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	if s.EnabledTools["code-intel"] || s.TruncateChars != 2000 {
		t.Fatalf("settings = %+v", s)
	}
}

func TestLoadSettingsMissingFile(t *testing.T) {
	s, err := LoadSettings(t.TempDir(), slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	if s.TruncateChars != 0 || s.EnabledTools != nil {
		t.Fatalf("settings = %+v", s)
	}
}

func TestLoadSettingsUnknownKeyWarnsNotFails(t *testing.T) {
	dir := writeSettings(t, "settings.yaml", `
truncateChars: 1000
somethingNew: true
`)
	s, err := LoadSettings(dir, slog.Default())
	if err != nil {
		t.Fatalf("unknown key should not fail: %v", err)
	}
	if s.TruncateChars != 1000 {
		t.Fatalf("settings = %+v", s)
	}
}

func TestLoadSettingsBadValue(t *testing.T) {
	dir := writeSettings(t, "settings.yaml", "estimator: quantum\n")
	if _, err := LoadSettings(dir, slog.Default()); err == nil {
		t.Fatal("expected invalid estimator to fail")
	}
}

func TestLoadSettingsWrongShape(t *testing.T) {
	dir := writeSettings(t, "settings.yaml", "truncateChars: lots\n")
	if _, err := LoadSettings(dir, slog.Default()); err == nil {
		t.Fatal("expected type mismatch to fail")
	}
}

func TestGetenvCaseInsensitive(t *testing.T) {
	t.Setenv("quarry_test_flag", "on")
	if got := Getenv("QUARRY_TEST_FLAG"); got != "on" {
		t.Fatalf("Getenv = %q", got)
	}
	if _, ok := LookupEnv("QUARRY_TEST_ABSENT"); ok {
		t.Fatal("absent var reported present")
	}
}

func TestDataDirPrecedence(t *testing.T) {
	data := t.TempDir()
	home := t.TempDir()
	t.Setenv("QUARRY_DATA_DIR", data)
	t.Setenv("QUARRY_HOME", home)

	dir, err := DataDir()
	if err != nil {
		t.Fatal(err)
	}
	if dir != data {
		t.Fatalf("dir = %s, want %s", dir, data)
	}

	t.Setenv("QUARRY_DATA_DIR", "")
	dir, err = DataDir()
	if err != nil {
		t.Fatal(err)
	}
	if dir != home {
		t.Fatalf("dir = %s, want %s", dir, home)
	}
}

func TestSettingsSchema(t *testing.T) {
	schema, err := SettingsSchema()
	if err != nil {
		t.Fatal(err)
	}
	if len(schema) == 0 {
		t.Fatal("empty schema")
	}
}
