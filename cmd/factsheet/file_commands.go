package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"factsheet/internal/workflow"
)

func newUploadCommand(ctx *commandContext) *cobra.Command {
	var companyName string

	cmd := &cobra.Command{
		Use:   "upload <deck.pptx> [more.pptx ...]",
		Short: "Upload one or more presentations",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(service *workflow.Service) error {
				out := cmd.OutOrStdout()
				for _, arg := range args {
					data, err := readInputFile(arg)
					if err != nil {
						return err
					}
					file, err := service.Upload(cmd.Context(), filepath.Base(arg), companyName, data)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Uploaded %s as %s (%s)\n", file.OriginalFilename, file.ID, file.CompanyName)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&companyName, "company", "", "Company name (derived from the filename when omitted)")
	return cmd
}

func newAttachPDFCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "attach-pdf <file-id> <rendition.pdf>",
		Short: "Attach a PDF rendition used to enrich analysis prompts",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInputFile(args[1])
			if err != nil {
				return err
			}
			return ctx.withService(func(service *workflow.Service) error {
				file, err := service.AttachPDF(cmd.Context(), args[0], data)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Attached PDF to %s (%s)\n", file.ID, file.StoragePathPDF)
				return nil
			})
		},
	}
}

func newAnalyzeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <file-id>",
		Short: "Generate an AI analysis for an uploaded presentation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(service *workflow.Service) error {
				suggestion, err := service.Analyze(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Analysis complete (suggestion %s, model %s)\n\n", suggestion.ID, suggestion.ModelName)
				fmt.Fprintln(out, suggestion.AnalysisText)
				return nil
			})
		},
	}
}

func newReviewCommand(ctx *commandContext) *cobra.Command {
	var (
		textFlag     string
		textFileFlag string
		notesFlag    string
		suggestionID string
	)

	cmd := &cobra.Command{
		Use:   "review <file-id>",
		Short: "Save the edited analysis as a draft review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			analysis, err := resolveReviewText(textFlag, textFileFlag, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return ctx.withService(func(service *workflow.Service) error {
				review, err := service.SaveReview(cmd.Context(), args[0], suggestionID, analysis, notesFlag)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved draft review %s for file %s\n", review.ID, review.FileID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&textFlag, "text", "", "Final analysis text")
	cmd.Flags().StringVar(&textFileFlag, "text-file", "", "Read the final analysis from a file ('-' for stdin)")
	cmd.Flags().StringVar(&notesFlag, "notes", "", "Editor notes stored with the review")
	cmd.Flags().StringVar(&suggestionID, "suggestion", "", "Suggestion the review is based on (defaults to the latest)")
	return cmd
}

func resolveReviewText(text, textFile string, stdin io.Reader) (string, error) {
	if text != "" && textFile != "" {
		return "", errors.New("--text and --text-file are mutually exclusive")
	}
	if text != "" {
		return text, nil
	}
	switch textFile {
	case "":
		return "", errors.New("provide the analysis with --text or --text-file")
	case "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	default:
		data, err := readInputFile(textFile)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}

func newApproveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "approve <file-id>",
		Short: "Approve the review and regenerate the deck",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(service *workflow.Service) error {
				file, err := service.Approve(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Approved %s; regenerated deck stored at %s\n", file.ID, file.StoragePathRegenerated)
				return nil
			})
		},
	}
}

func readInputFile(path string) ([]byte, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("file does not exist: %s", absPath)
		}
		return nil, fmt.Errorf("inspect file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", absPath)
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", absPath, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%s is empty", absPath)
	}
	return data, nil
}
