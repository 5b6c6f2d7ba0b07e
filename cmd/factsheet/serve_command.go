package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"factsheet/internal/api"
	"factsheet/internal/logging"
	"factsheet/internal/services/gemini"
	"factsheet/internal/storage"
	"factsheet/internal/store"
	"factsheet/internal/workflow"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bindFlag string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			st, err := store.Open(cfg)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			objects, err := storage.NewGateway(cfg)
			if err != nil {
				return fmt.Errorf("init storage: %w", err)
			}

			ai := gemini.NewClient(cfg.Gemini, gemini.WithPromptTemplate(cfg.Analysis.PromptOverride))
			service := workflow.NewService(cfg, st, objects, ai, logger)

			bind := cfg.Paths.APIBind
			if bindFlag != "" {
				bind = bindFlag
			}
			server := api.NewServer(bind, service, logger)
			if err := server.Start(signalCtx); err != nil {
				return err
			}
			defer server.Stop()

			<-signalCtx.Done()
			logger.Info("factsheet server shutting down")
			return nil
		},
	}

	cmd.Flags().StringVar(&bindFlag, "bind", "", "Listen address (overrides config)")
	return cmd
}
