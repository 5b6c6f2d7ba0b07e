// Package workflow coordinates the upload, analyze, review, and approve
// lifecycle. Each long-running operation is recorded as a job so clients can
// see what happened to a file and why.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"factsheet/internal/config"
	"factsheet/internal/deck"
	"factsheet/internal/logging"
	"factsheet/internal/pdftext"
	"factsheet/internal/services"
	"factsheet/internal/services/gemini"
	"factsheet/internal/storage"
	"factsheet/internal/store"
)

const (
	folderOriginal    = "original"
	folderRegenerated = "regenerated"
	folderPDF         = "pdf"
)

// AIClient produces structured analyses from extracted deck text.
type AIClient interface {
	GenerateSummary(ctx context.Context, deckText string) (gemini.Summary, error)
	Model() string
}

// Service orchestrates the file lifecycle on top of the store, the object
// gateway, and the AI client.
type Service struct {
	cfg     *config.Config
	store   *store.Store
	objects *storage.Gateway
	ai      AIClient
	logger  *slog.Logger
}

// NewService wires the workflow dependencies together.
func NewService(cfg *config.Config, st *store.Store, objects *storage.Gateway, ai AIClient, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		cfg:     cfg,
		store:   st,
		objects: objects,
		ai:      ai,
		logger:  logging.WithComponent(logger, "workflow"),
	}
}

// Upload validates and stores a deck, creating its file record. An empty
// companyName is derived from the filename.
func (s *Service) Upload(ctx context.Context, filename, companyName string, data []byte) (*store.File, error) {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return nil, services.Wrap(services.ErrValidation, "workflow", "upload", "filename required", nil)
	}
	if !strings.EqualFold(filepath.Ext(filename), ".pptx") {
		return nil, services.Wrap(services.ErrValidation, "workflow", "upload", fmt.Sprintf("unsupported file type %q", filepath.Ext(filename)), nil)
	}
	if len(data) == 0 {
		return nil, services.Wrap(services.ErrValidation, "workflow", "upload", "empty upload", nil)
	}
	if _, err := deck.Open(data); err != nil {
		return nil, services.Wrap(services.ErrValidation, "workflow", "upload", "not a readable presentation", err)
	}

	if strings.TrimSpace(companyName) == "" {
		companyName = companyNameFromFilename(filename)
	}

	file := &store.File{
		CompanyName:      strings.TrimSpace(companyName),
		OriginalFilename: filename,
	}
	objectPath, err := s.saveWithFreshID(file, data)
	if err != nil {
		return nil, err
	}
	file.StoragePathOriginal = objectPath
	if err := s.store.CreateFile(ctx, file); err != nil {
		return nil, services.Wrap(services.ErrTransient, "workflow", "upload", "persist file record", err)
	}

	s.logger.Info("file uploaded",
		slog.String("file_id", file.ID),
		slog.String("filename", file.OriginalFilename),
		slog.Int("bytes", len(data)))
	return file, nil
}

// saveWithFreshID assigns the file its identifier before the object write so
// the object path can embed it.
func (s *Service) saveWithFreshID(file *store.File, data []byte) (string, error) {
	file.ID = newID()
	objectPath, err := s.objects.Save(folderOriginal, file.ID, ".pptx", data)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "workflow", "upload", "store object", err)
	}
	return objectPath, nil
}

// AttachPDF stores a PDF rendition alongside the deck. Its text is appended
// to the model prompt on subsequent analyses.
func (s *Service) AttachPDF(ctx context.Context, fileID string, data []byte) (*store.File, error) {
	file, err := s.requireFile(ctx, fileID, "attach pdf")
	if err != nil {
		return nil, err
	}
	if _, err := pdftext.Extract(data); err != nil {
		return nil, services.Wrap(services.ErrValidation, "workflow", "attach pdf", "not a readable pdf", err)
	}
	objectPath, err := s.objects.Save(folderPDF, file.ID, ".pdf", data)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "workflow", "attach pdf", "store object", err)
	}
	if err := s.store.SetPDFPath(ctx, file.ID, objectPath); err != nil {
		return nil, services.Wrap(services.ErrTransient, "workflow", "attach pdf", "persist pdf path", err)
	}
	file.StoragePathPDF = objectPath
	return file, nil
}

// Analyze extracts the deck text, asks the model for an analysis, and stores
// the result as a suggestion plus a draft review ready for editing.
func (s *Service) Analyze(ctx context.Context, fileID string) (*store.Suggestion, error) {
	file, err := s.requireFile(ctx, fileID, "analyze")
	if err != nil {
		return nil, err
	}

	job, err := s.store.CreateJob(ctx, file.ID, store.JobAnalyze)
	if err != nil {
		if errors.Is(err, store.ErrJobActive) {
			return nil, services.Wrap(services.ErrConflict, "workflow", "analyze", "analysis already in progress", err)
		}
		return nil, services.Wrap(services.ErrTransient, "workflow", "analyze", "create job", err)
	}
	if err := s.store.TransitionJob(ctx, job.ID, store.JobPending, store.JobRunning, ""); err != nil {
		return nil, services.Wrap(services.ErrTransient, "workflow", "analyze", "start job", err)
	}

	suggestion, err := s.runAnalysis(ctx, file)
	if err != nil {
		s.failJob(ctx, job.ID, err)
		return nil, err
	}
	if err := s.store.TransitionJob(ctx, job.ID, store.JobRunning, store.JobSucceeded, ""); err != nil {
		return nil, services.Wrap(services.ErrTransient, "workflow", "analyze", "finish job", err)
	}

	s.logger.Info("analysis complete",
		slog.String("file_id", file.ID),
		slog.String("suggestion_id", suggestion.ID),
		slog.String("model", suggestion.ModelName))
	return suggestion, nil
}

func (s *Service) runAnalysis(ctx context.Context, file *store.File) (*store.Suggestion, error) {
	raw, err := s.objects.Load(file.StoragePathOriginal)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "workflow", "analyze", "load original object", err)
	}
	pkg, err := deck.Open(raw)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "workflow", "analyze", "open presentation", err)
	}

	text := pkg.ExtractText()
	if file.StoragePathPDF != "" {
		if pdfData, loadErr := s.objects.Load(file.StoragePathPDF); loadErr == nil {
			if pdfString, extractErr := pdftext.ExtractJoined(pdfData); extractErr == nil && pdfString != "" {
				text = text + "\n\n--- PDF rendition ---\n" + pdfString
			} else if extractErr != nil {
				s.logger.Warn("pdf text skipped", slog.String("file_id", file.ID), logging.Error(extractErr))
			}
		} else {
			s.logger.Warn("pdf object missing", slog.String("file_id", file.ID), logging.Error(loadErr))
		}
	}
	if strings.TrimSpace(text) == "" {
		return nil, services.Wrap(services.ErrValidation, "workflow", "analyze", "deck contains no extractable text", nil)
	}
	text = deck.TruncateForModel(text, s.cfg.Analysis.MaxPromptChars)

	summary, err := s.ai.GenerateSummary(ctx, text)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "workflow", "analyze", "generate summary", err)
	}

	suggestion := &store.Suggestion{
		FileID:         file.ID,
		ModelName:      summary.ModelName,
		RawModelOutput: summary.Raw,
		AnalysisText:   gemini.FormatAnalysis(summary),
	}
	if err := s.store.CreateSuggestion(ctx, suggestion); err != nil {
		return nil, services.Wrap(services.ErrTransient, "workflow", "analyze", "persist suggestion", err)
	}
	return suggestion, nil
}

// SaveReview stores the human-edited analysis as a draft. The review always
// points at the suggestion it was edited from; when suggestionID is empty
// the latest suggestion is used.
func (s *Service) SaveReview(ctx context.Context, fileID, suggestionID, analysisFinal, editorNotes string) (*store.Review, error) {
	file, err := s.requireFile(ctx, fileID, "save review")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(analysisFinal) == "" {
		return nil, services.Wrap(services.ErrValidation, "workflow", "save review", "final analysis required", nil)
	}

	if strings.TrimSpace(suggestionID) == "" {
		latest, err := s.store.LatestSuggestion(ctx, file.ID)
		if err != nil {
			return nil, services.Wrap(services.ErrTransient, "workflow", "save review", "load suggestion", err)
		}
		if latest == nil {
			return nil, services.Wrap(services.ErrValidation, "workflow", "save review", "file has no analysis yet", nil)
		}
		suggestionID = latest.ID
	}

	review := &store.Review{
		FileID:        file.ID,
		SuggestionID:  suggestionID,
		AnalysisFinal: analysisFinal,
		EditorNotes:   strings.TrimSpace(editorNotes),
	}
	if err := s.store.UpsertReview(ctx, review); err != nil {
		return nil, services.Wrap(services.ErrTransient, "workflow", "save review", "persist review", err)
	}
	return review, nil
}

// Approve marks the file's review approved and regenerates the deck with the
// final analysis written into the placeholder shape. The regenerated deck is
// byte-identical to the original outside the rewritten slide part.
func (s *Service) Approve(ctx context.Context, fileID string) (*store.File, error) {
	file, err := s.requireFile(ctx, fileID, "approve")
	if err != nil {
		return nil, err
	}
	review, err := s.store.GetReview(ctx, file.ID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "workflow", "approve", "load review", err)
	}
	if review == nil {
		return nil, services.Wrap(services.ErrNotFound, "workflow", "approve", "no review saved for file", nil)
	}

	job, err := s.store.CreateJob(ctx, file.ID, store.JobRegenerate)
	if err != nil {
		if errors.Is(err, store.ErrJobActive) {
			return nil, services.Wrap(services.ErrConflict, "workflow", "approve", "regeneration already in progress", err)
		}
		return nil, services.Wrap(services.ErrTransient, "workflow", "approve", "create job", err)
	}
	if err := s.store.TransitionJob(ctx, job.ID, store.JobPending, store.JobRunning, ""); err != nil {
		return nil, services.Wrap(services.ErrTransient, "workflow", "approve", "start job", err)
	}

	if err := s.runRegeneration(ctx, file, review); err != nil {
		s.failJob(ctx, job.ID, err)
		return nil, err
	}
	if err := s.store.ApproveReview(ctx, review.ID); err != nil {
		s.failJob(ctx, job.ID, err)
		return nil, services.Wrap(services.ErrTransient, "workflow", "approve", "mark review approved", err)
	}
	if err := s.store.TransitionJob(ctx, job.ID, store.JobRunning, store.JobSucceeded, ""); err != nil {
		return nil, services.Wrap(services.ErrTransient, "workflow", "approve", "finish job", err)
	}

	updated, err := s.store.GetFile(ctx, file.ID)
	if err != nil || updated == nil {
		return file, nil
	}
	s.logger.Info("deck regenerated",
		slog.String("file_id", file.ID),
		slog.String("object", updated.StoragePathRegenerated))
	return updated, nil
}

func (s *Service) runRegeneration(ctx context.Context, file *store.File, review *store.Review) error {
	raw, err := s.objects.Load(file.StoragePathOriginal)
	if err != nil {
		return services.Wrap(services.ErrTransient, "workflow", "approve", "load original object", err)
	}
	pkg, err := deck.Open(raw)
	if err != nil {
		return services.Wrap(services.ErrValidation, "workflow", "approve", "open presentation", err)
	}

	regenerated, err := pkg.Rewrite(s.cfg.Analysis.Sentinel, review.AnalysisFinal)
	if err != nil {
		if errors.Is(err, deck.ErrPlaceholderNotFound) {
			return services.Wrap(services.ErrValidation, "workflow", "approve", "placeholder shape missing", err)
		}
		return services.Wrap(services.ErrTransient, "workflow", "approve", "rewrite deck", err)
	}

	objectPath, err := s.objects.Save(folderRegenerated, file.ID, ".pptx", regenerated)
	if err != nil {
		return services.Wrap(services.ErrTransient, "workflow", "approve", "store regenerated object", err)
	}
	if err := s.store.SetRegeneratedPath(ctx, file.ID, objectPath); err != nil {
		return services.Wrap(services.ErrTransient, "workflow", "approve", "persist regenerated path", err)
	}
	return nil
}

// FileView aggregates everything a client needs to render one file.
type FileView struct {
	File       *store.File
	Suggestion *store.Suggestion
	Review     *store.Review
	Jobs       []*store.Job

	// Signed download queries, relative to the download endpoint. Empty when
	// the corresponding artifact does not exist yet.
	DownloadOriginal    string
	DownloadRegenerated string
}

// GetFileView loads a file together with its latest suggestion, review,
// jobs, and signed download links.
func (s *Service) GetFileView(ctx context.Context, fileID string) (*FileView, error) {
	file, err := s.requireFile(ctx, fileID, "get file")
	if err != nil {
		return nil, err
	}

	view := &FileView{File: file}
	if view.Suggestion, err = s.store.LatestSuggestion(ctx, file.ID); err != nil {
		return nil, services.Wrap(services.ErrTransient, "workflow", "get file", "load suggestion", err)
	}
	if view.Review, err = s.store.GetReview(ctx, file.ID); err != nil {
		return nil, services.Wrap(services.ErrTransient, "workflow", "get file", "load review", err)
	}
	if view.Jobs, err = s.store.JobsForFile(ctx, file.ID); err != nil {
		return nil, services.Wrap(services.ErrTransient, "workflow", "get file", "load jobs", err)
	}

	now := time.Now()
	if file.StoragePathOriginal != "" {
		if signed, err := s.objects.SignedURL(file.StoragePathOriginal, now); err == nil {
			view.DownloadOriginal = signed
		}
	}
	if file.StoragePathRegenerated != "" {
		if signed, err := s.objects.SignedURL(file.StoragePathRegenerated, now); err == nil {
			view.DownloadRegenerated = signed
		}
	}
	return view, nil
}

// ListFiles returns all files, newest first.
func (s *Service) ListFiles(ctx context.Context) ([]*store.File, error) {
	files, err := s.store.ListFiles(ctx)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "workflow", "list files", "query files", err)
	}
	return files, nil
}

// ApprovedReviews returns the approved reviews joined with their files.
func (s *Service) ApprovedReviews(ctx context.Context) ([]*store.ApprovedReview, error) {
	approved, err := s.store.ApprovedReviews(ctx)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "workflow", "export", "query approved reviews", err)
	}
	return approved, nil
}

// Objects exposes the storage gateway for download verification.
func (s *Service) Objects() *storage.Gateway {
	return s.objects
}

func (s *Service) requireFile(ctx context.Context, fileID, operation string) (*store.File, error) {
	if strings.TrimSpace(fileID) == "" {
		return nil, services.Wrap(services.ErrValidation, "workflow", operation, "file id required", nil)
	}
	file, err := s.store.GetFile(ctx, fileID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "workflow", operation, "load file record", err)
	}
	if file == nil {
		return nil, services.Wrap(services.ErrNotFound, "workflow", operation, fmt.Sprintf("file %s", fileID), nil)
	}
	return file, nil
}

func (s *Service) failJob(ctx context.Context, jobID string, cause error) {
	message := ""
	if cause != nil {
		message = cause.Error()
	}
	if err := s.store.TransitionJob(ctx, jobID, store.JobRunning, store.JobFailed, message); err != nil {
		s.logger.Warn("job failure not recorded", slog.String("job_id", jobID), logging.Error(err))
	}
}

func newID() string {
	return uuid.NewString()
}

var titleCaser = cases.Title(language.Und)

// companyNameFromFilename turns "acme_renewables-2026.pptx" into
// "Acme Renewables 2026".
func companyNameFromFilename(filename string) string {
	name := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	name = strings.NewReplacer("_", " ", "-", " ", ".", " ").Replace(name)
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return ""
	}
	return titleCaser.String(strings.ToLower(name))
}
