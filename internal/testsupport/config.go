// Package testsupport provides shared helpers for package tests: temp-dir
// configs, store setup, and fixture deck construction.
package testsupport

import (
	"path/filepath"
	"testing"

	"factsheet/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.StorageDir = filepath.Join(base, "objects")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Gemini.APIKey = "test"
	cfg.Storage.SigningSecret = "test-signing-secret"

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithSentinel overrides the placeholder sentinel on the test config.
func WithSentinel(sentinel string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Analysis.Sentinel = sentinel
	}
}

// WithGeminiBaseURL points the AI client at a test server.
func WithGeminiBaseURL(url string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Gemini.BaseURL = url
	}
}
