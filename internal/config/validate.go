package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateGemini(); err != nil {
		return err
	}
	if err := c.validateAnalysis(); err != nil {
		return err
	}
	return c.validateStorage()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	if strings.TrimSpace(c.Paths.StorageDir) == "" {
		return errors.New("paths.storage_dir must be set")
	}
	return nil
}

func (c *Config) validateGemini() error {
	if c.Gemini.Temperature < 0 || c.Gemini.Temperature > 2 {
		return errors.New("gemini.temperature must be between 0 and 2")
	}
	if c.Gemini.MaxOutputTokens < 0 {
		return errors.New("gemini.max_output_tokens must not be negative")
	}
	return nil
}

func (c *Config) validateAnalysis() error {
	// Whitespace-padded sentinels are almost certainly configuration
	// mistakes given the exact-match policy.
	if c.Analysis.Sentinel != strings.TrimSpace(c.Analysis.Sentinel) {
		return fmt.Errorf("analysis.placeholder_sentinel %q has leading or trailing whitespace", c.Analysis.Sentinel)
	}
	if c.Analysis.MaxPromptChars < 1000 {
		return errors.New("analysis.max_prompt_chars must be at least 1000")
	}
	return nil
}

func (c *Config) validateStorage() error {
	if c.Storage.SignedURLTTLSeconds < 60 {
		return errors.New("storage.signed_url_ttl_seconds must be at least 60")
	}
	return nil
}

// RequireGeminiKey reports a configuration error when analysis is requested
// without provider credentials.
func (c *Config) RequireGeminiKey() error {
	if strings.TrimSpace(c.Gemini.APIKey) != "" {
		return nil
	}
	defaultPath, err := DefaultConfigPath()
	if err != nil {
		defaultPath = "~/.config/factsheet/config.toml"
	}
	return fmt.Errorf("gemini.api_key is required. Set GEMINI_API_KEY env var or edit %s (create with 'factsheet config init')", defaultPath)
}
