package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"factsheet/internal/export"
	"factsheet/internal/workflow"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export approved reviews to an Excel workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(service *workflow.Service) error {
				approved, err := service.ApprovedReviews(cmd.Context())
				if err != nil {
					return err
				}
				if len(approved) == 0 {
					return fmt.Errorf("no approved reviews to export")
				}

				data, err := export.Workbook(approved)
				if err != nil {
					return err
				}

				target := outputPath
				if target == "" {
					target = export.Filename(time.Now())
				}
				if err := os.WriteFile(target, data, 0o644); err != nil {
					return fmt.Errorf("write workbook: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %d approved reviews to %s\n", len(approved), target)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Workbook destination (defaults to a dated filename)")
	return cmd
}
