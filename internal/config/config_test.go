package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"factsheet/internal/config"
)

func TestLoadDefaultsUseEnvGeminiKeyAndExpandPaths(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "env-key")
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "factsheet")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.Paths.StorageDir != filepath.Join(wantData, "objects") {
		t.Fatalf("unexpected storage dir: %q", cfg.Paths.StorageDir)
	}
	if cfg.Paths.APIBind != "127.0.0.1:8470" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.Gemini.APIKey != "env-key" {
		t.Fatalf("expected Gemini key from env, got %q", cfg.Gemini.APIKey)
	}
	if cfg.Gemini.Model != "gemini-2.5-flash" {
		t.Fatalf("unexpected default model: %q", cfg.Gemini.Model)
	}
	if cfg.Analysis.Sentinel != "AI_SUMMARY" {
		t.Fatalf("unexpected default sentinel: %q", cfg.Analysis.Sentinel)
	}
	if cfg.Analysis.MaxPromptChars != 80000 {
		t.Fatalf("unexpected default prompt budget: %d", cfg.Analysis.MaxPromptChars)
	}
	if cfg.Storage.SignedURLTTLSeconds != 3600 {
		t.Fatalf("unexpected default signed url ttl: %d", cfg.Storage.SignedURLTTLSeconds)
	}
}

func TestLoadReadsFileAndNormalizes(t *testing.T) {
	base := t.TempDir()
	path := filepath.Join(base, "config.toml")
	content := `[paths]
data_dir = "` + filepath.Join(base, "data") + `"
storage_dir = "` + filepath.Join(base, "objects") + `"

[gemini]
api_key = "file-key"
model = "gemini-custom"

[analysis]
placeholder_sentinel = "SUMMARY_SLOT"

[storage]
signing_secret = "secret"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("GEMINI_API_KEY", "")

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to exist")
	}
	if resolved != path {
		t.Fatalf("unexpected resolved path: %q", resolved)
	}
	if cfg.Gemini.APIKey != "file-key" {
		t.Fatalf("unexpected api key: %q", cfg.Gemini.APIKey)
	}
	if cfg.Gemini.Model != "gemini-custom" {
		t.Fatalf("unexpected model: %q", cfg.Gemini.Model)
	}
	if cfg.Analysis.Sentinel != "SUMMARY_SLOT" {
		t.Fatalf("unexpected sentinel: %q", cfg.Analysis.Sentinel)
	}
	// Unset sections keep defaults.
	if cfg.Gemini.BaseURL == "" || cfg.Analysis.MaxPromptChars != 80000 {
		t.Fatal("expected defaults for unset values")
	}
}

func TestEnvKeyOverridesFileKey(t *testing.T) {
	base := t.TempDir()
	path := filepath.Join(base, "config.toml")
	if err := os.WriteFile(path, []byte("[gemini]\napi_key = \"file-key\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("GEMINI_API_KEY", "env-key")

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Gemini.APIKey != "env-key" {
		t.Fatalf("expected env key to win, got %q", cfg.Gemini.APIKey)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*config.Config)
		message string
	}{
		{
			name:    "padded sentinel",
			mutate:  func(c *config.Config) { c.Analysis.Sentinel = " AI_SUMMARY" },
			message: "placeholder_sentinel",
		},
		{
			name:    "tiny prompt budget",
			mutate:  func(c *config.Config) { c.Analysis.MaxPromptChars = 10 },
			message: "max_prompt_chars",
		},
		{
			name:    "short signed url ttl",
			mutate:  func(c *config.Config) { c.Storage.SignedURLTTLSeconds = 5 },
			message: "signed_url_ttl_seconds",
		},
		{
			name:    "temperature out of range",
			mutate:  func(c *config.Config) { c.Gemini.Temperature = 3.5 },
			message: "temperature",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.message) {
				t.Fatalf("expected error mentioning %q, got %v", tc.message, err)
			}
		})
	}
}

func TestRequireGeminiKey(t *testing.T) {
	cfg := config.Default()
	if err := cfg.RequireGeminiKey(); err == nil {
		t.Fatal("expected error without key")
	}
	cfg.Gemini.APIKey = "key"
	if err := cfg.RequireGeminiKey(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
