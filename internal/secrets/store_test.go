package secrets

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEnvStore(t *testing.T) {
	t.Setenv("QUARRY_TEST_SECRET", "abc")
	t.Setenv("QUARRY_TEST_EMPTY", "  ")

	s := NewEnvStore()
	if v, ok := s.Get("QUARRY_TEST_SECRET"); !ok || v != "abc" {
		t.Fatalf("expected hit, got %q %v", v, ok)
	}
	if _, ok := s.Get("QUARRY_TEST_EMPTY"); ok {
		t.Fatal("blank value should be treated as absent")
	}
	if _, ok := s.Get("QUARRY_TEST_MISSING"); ok {
		t.Fatal("missing value should be absent")
	}
}

func TestFileStoreReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secrets.yaml")
	if err := os.WriteFile(path, []byte("API_KEY: first\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	s, err := NewFileStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if v, ok := s.Get("API_KEY"); !ok || v != "first" {
		t.Fatalf("initial load: got %q %v", v, ok)
	}

	if err := os.WriteFile(path, []byte("API_KEY: second\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if v, _ := s.Get("API_KEY"); v == "second" {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("reload did not pick up new value")
}

func TestFileStoreKeepsLastGoodOnParseError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secrets.yaml")
	if err := os.WriteFile(path, []byte("API_KEY: good\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	s, err := NewFileStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := os.WriteFile(path, []byte("{not yaml"), 0o600); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)

	if v, ok := s.Get("API_KEY"); !ok || v != "good" {
		t.Fatalf("expected last good value, got %q %v", v, ok)
	}
}

func TestChainOrder(t *testing.T) {
	c := Chain{
		Static{"SHARED": "front"},
		Static{"SHARED": "back", "ONLY_BACK": "x"},
	}
	if v, _ := c.Get("SHARED"); v != "front" {
		t.Fatalf("chain should prefer the first store, got %q", v)
	}
	if v, ok := c.Get("ONLY_BACK"); !ok || v != "x" {
		t.Fatalf("chain should fall through, got %q %v", v, ok)
	}
	if _, ok := c.Get("NOWHERE"); ok {
		t.Fatal("expected miss")
	}
}
