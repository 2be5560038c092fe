// Package config resolves QUARRY_* environment variables, the data
// directory layout, and the optional settings file.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

// Getenv looks a variable up case-insensitively: quarry_profile and
// QUARRY_PROFILE resolve to the same value. An exact-case match wins
// over a case-folded one.
func Getenv(name string) string {
	if v, ok := os.LookupEnv(name); ok {
		return v
	}
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if ok && strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// LookupEnv is Getenv with a presence flag.
func LookupEnv(name string) (string, bool) {
	if v, ok := os.LookupEnv(name); ok {
		return v, true
	}
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if ok && strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// DataDir returns the persisted-state home. QUARRY_DATA_DIR wins over
// QUARRY_HOME; the fallback is ~/.quarry. The directory is created on
// first use.
func DataDir() (string, error) {
	dir := strings.TrimSpace(Getenv("QUARRY_DATA_DIR"))
	if dir == "" {
		dir = strings.TrimSpace(Getenv("QUARRY_HOME"))
	}
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, ".quarry")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}
