package main

import (
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"factsheet/internal/config"
	"factsheet/internal/logging"
	"factsheet/internal/services/gemini"
	"factsheet/internal/storage"
	"factsheet/internal/store"
	"factsheet/internal/workflow"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

// withService opens the store and object gateway for a single command
// invocation and closes them when the command returns.
func (c *commandContext) withService(fn func(*workflow.Service) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}

	st, err := store.Open(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	objects, err := storage.NewGateway(cfg)
	if err != nil {
		return err
	}

	ai := gemini.NewClient(cfg.Gemini, gemini.WithPromptTemplate(cfg.Analysis.PromptOverride))
	service := workflow.NewService(cfg, st, objects, ai, logging.NewNop())
	return fn(service)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
