package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"factsheet/internal/workflow"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	var full bool

	cmd := &cobra.Command{
		Use:   "show <file-id>",
		Short: "Show a file with its analysis, review, and job history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(service *workflow.Service) error {
				view, err := service.GetFileView(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printFileView(cmd, view, full)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&full, "full", false, "Print full analysis texts instead of previews")
	return cmd
}

func printFileView(cmd *cobra.Command, view *workflow.FileView, full bool) {
	out := cmd.OutOrStdout()
	file := view.File

	fmt.Fprintf(out, "File:     %s\n", file.ID)
	fmt.Fprintf(out, "Company:  %s\n", valueOrDash(file.CompanyName))
	fmt.Fprintf(out, "Filename: %s\n", file.OriginalFilename)
	fmt.Fprintf(out, "Language: %s\n", file.Language)
	fmt.Fprintf(out, "Uploaded: %s\n", formatTimestamp(file.CreatedAt))
	if file.StoragePathRegenerated != "" {
		fmt.Fprintf(out, "Regenerated deck: %s\n", file.StoragePathRegenerated)
	}
	if file.StoragePathPDF != "" {
		fmt.Fprintf(out, "PDF rendition:    %s\n", file.StoragePathPDF)
	}

	preview := func(text string) string {
		if full {
			return text
		}
		return truncateText(text, 400)
	}

	if view.Suggestion != nil {
		fmt.Fprintf(out, "\nSuggestion %s (model %s, %s)\n", view.Suggestion.ID, view.Suggestion.ModelName, formatTimestamp(view.Suggestion.CreatedAt))
		fmt.Fprintln(out, preview(view.Suggestion.AnalysisText))
	} else {
		fmt.Fprintln(out, "\nNo analysis yet; run `factsheet analyze` first.")
	}

	if view.Review != nil {
		fmt.Fprintf(out, "\nReview %s [%s], updated %s\n", view.Review.ID, statusLabel(out, string(view.Review.Status)), formatTimestamp(view.Review.UpdatedAt))
		if view.Review.EditorNotes != "" {
			fmt.Fprintf(out, "Notes: %s\n", view.Review.EditorNotes)
		}
		fmt.Fprintln(out, preview(view.Review.AnalysisFinal))
	}

	if len(view.Jobs) > 0 {
		rows := make([][]string, 0, len(view.Jobs))
		for _, job := range view.Jobs {
			rows = append(rows, []string{
				string(job.Type),
				statusLabel(out, string(job.Status)),
				formatTimestamp(job.UpdatedAt),
				valueOrDash(truncateText(job.ErrorMessage, 60)),
			})
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, renderTable(
			[]string{"Job", "Status", "Updated", "Error"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
		))
	}
}
