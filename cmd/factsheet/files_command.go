package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"factsheet/internal/workflow"
)

func newFilesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "files",
		Short: "List uploaded files, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(service *workflow.Service) error {
				files, err := service.ListFiles(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(files) == 0 {
					fmt.Fprintln(out, "No files uploaded yet.")
					return nil
				}

				rows := make([][]string, 0, len(files))
				for _, file := range files {
					regenerated := "no"
					if file.StoragePathRegenerated != "" {
						regenerated = "yes"
					}
					rows = append(rows, []string{
						file.ID,
						valueOrDash(file.CompanyName),
						file.OriginalFilename,
						regenerated,
						formatTimestamp(file.CreatedAt),
					})
				}

				// Pipes and redirects get tab-separated output.
				if !shouldColorize(out) {
					for _, row := range rows {
						fmt.Fprintln(out, strings.Join(row, "\t"))
					}
					return nil
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Company", "Filename", "Regenerated", "Uploaded"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
}
