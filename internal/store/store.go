package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"factsheet/internal/config"
)

var (
	// ErrJobActive signals a second analyze or regenerate requested while
	// one is already pending or running for the same file.
	ErrJobActive = errors.New("job already active for file")

	// ErrBadTransition signals a job status update whose guard did not
	// match the record's current status.
	ErrBadTransition = errors.New("invalid job status transition")
)

// Store manages persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the database and verifies the schema.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.DataDir, "factsheet.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// CreateFile inserts a new file record, assigning id and timestamps.
func (s *Store) CreateFile(ctx context.Context, file *File) error {
	if file == nil {
		return errors.New("file is nil")
	}
	if strings.TrimSpace(file.OriginalFilename) == "" {
		return errors.New("original filename required")
	}
	if strings.TrimSpace(file.StoragePathOriginal) == "" {
		return errors.New("original storage path required")
	}
	if file.ID == "" {
		file.ID = uuid.NewString()
	}
	if file.Language == "" {
		file.Language = "en"
	}
	now := time.Now().UTC()
	file.CreatedAt = now
	file.UpdatedAt = now

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO files (
            id, company_name, original_filename, storage_path_original,
            storage_path_regenerated, storage_path_pdf, language, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		file.ID,
		nullableString(file.CompanyName),
		file.OriginalFilename,
		file.StoragePathOriginal,
		nullableString(file.StoragePathRegenerated),
		nullableString(file.StoragePathPDF),
		file.Language,
		formatTime(now),
		formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("insert file: %w", err)
	}
	return nil
}

// GetFile fetches a file record by identifier, returning nil when absent.
func (s *Store) GetFile(ctx context.Context, id string) (*File, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE id = ?`, id)
	file, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}
	return file, nil
}

// ListFiles returns all file records, newest first.
func (s *Store) ListFiles(ctx context.Context) ([]*File, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+fileColumns+` FROM files ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var files []*File
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

// SetRegeneratedPath records the storage location of a regenerated deck.
func (s *Store) SetRegeneratedPath(ctx context.Context, fileID, path string) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE files SET storage_path_regenerated = ?, updated_at = ? WHERE id = ?`,
		path,
		formatTime(time.Now().UTC()),
		fileID,
	)
	if err != nil {
		return fmt.Errorf("set regenerated path: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("set regenerated path: unknown file %q", fileID)
	}
	return nil
}

// SetPDFPath records the storage location of a companion PDF rendition.
func (s *Store) SetPDFPath(ctx context.Context, fileID, path string) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE files SET storage_path_pdf = ?, updated_at = ? WHERE id = ?`,
		path,
		formatTime(time.Now().UTC()),
		fileID,
	)
	if err != nil {
		return fmt.Errorf("set pdf path: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("set pdf path: unknown file %q", fileID)
	}
	return nil
}

// CreateJob inserts a PENDING job, rejecting a second active job of the same
// type for the same file. The existence check and insert share a transaction
// so concurrent callers cannot both slip past the guard.
func (s *Store) CreateJob(ctx context.Context, fileID string, jobType JobType) (*Job, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin job tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var active int
	err = tx.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM jobs WHERE file_id = ? AND type = ? AND status IN (?, ?)`,
		fileID, jobType, JobPending, JobRunning,
	).Scan(&active)
	if err != nil {
		return nil, fmt.Errorf("check active jobs: %w", err)
	}
	if active > 0 {
		return nil, fmt.Errorf("%w: %s %s", ErrJobActive, jobType, fileID)
	}

	job := &Job{
		ID:     uuid.NewString(),
		FileID: fileID,
		Type:   jobType,
		Status: JobPending,
	}
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now

	_, err = tx.ExecContext(
		ctx,
		`INSERT INTO jobs (id, file_id, type, status, error_message, created_at, updated_at)
         VALUES (?, ?, ?, ?, NULL, ?, ?)`,
		job.ID, job.FileID, job.Type, job.Status, formatTime(now), formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit job: %w", err)
	}
	return job, nil
}

// TransitionJob moves a job from one status to another in a single guarded
// write. errMessage is recorded only on transitions into FAILED.
func (s *Store) TransitionJob(ctx context.Context, jobID string, from, to JobStatus, errMessage string) error {
	var errValue any
	if to == JobFailed && strings.TrimSpace(errMessage) != "" {
		errValue = errMessage
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs SET status = ?, error_message = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to,
		errValue,
		formatTime(time.Now().UTC()),
		jobID,
		from,
	)
	if err != nil {
		return fmt.Errorf("transition job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: job %s %s -> %s", ErrBadTransition, jobID, from, to)
	}
	return nil
}

// JobsForFile returns a file's jobs, newest first.
func (s *Store) JobsForFile(ctx context.Context, fileID string) ([]*Job, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE file_id = ? ORDER BY created_at DESC, id`,
		fileID,
	)
	if err != nil {
		return nil, fmt.Errorf("jobs for file: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// CreateSuggestion inserts an AI suggestion record.
func (s *Store) CreateSuggestion(ctx context.Context, suggestion *Suggestion) error {
	if suggestion == nil {
		return errors.New("suggestion is nil")
	}
	if suggestion.ID == "" {
		suggestion.ID = uuid.NewString()
	}
	suggestion.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO suggestions (id, file_id, model_name, raw_model_output, analysis_text, created_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		suggestion.ID,
		suggestion.FileID,
		suggestion.ModelName,
		suggestion.RawModelOutput,
		suggestion.AnalysisText,
		formatTime(suggestion.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert suggestion: %w", err)
	}
	return nil
}

// LatestSuggestion returns the newest suggestion for a file, or nil.
func (s *Store) LatestSuggestion(ctx context.Context, fileID string) (*Suggestion, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+suggestionColumns+` FROM suggestions WHERE file_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`,
		fileID,
	)
	suggestion, err := scanSuggestion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest suggestion: %w", err)
	}
	return suggestion, nil
}

// UpsertReview saves a review draft, replacing the file's existing review if
// any. Saving always resets the status to DRAFT: edited text must be
// re-approved.
func (s *Store) UpsertReview(ctx context.Context, review *Review) error {
	if review == nil {
		return errors.New("review is nil")
	}
	now := time.Now().UTC()

	existing, err := s.GetReview(ctx, review.FileID)
	if err != nil {
		return err
	}
	if existing != nil {
		review.ID = existing.ID
		review.CreatedAt = existing.CreatedAt
		review.UpdatedAt = now
		review.Status = ReviewDraft
		_, err := s.db.ExecContext(
			ctx,
			`UPDATE reviews SET suggestion_id = ?, editor_notes = ?, analysis_final = ?, status = ?, updated_at = ?
             WHERE id = ?`,
			review.SuggestionID,
			nullableString(review.EditorNotes),
			review.AnalysisFinal,
			review.Status,
			formatTime(now),
			review.ID,
		)
		if err != nil {
			return fmt.Errorf("update review: %w", err)
		}
		return nil
	}

	if review.ID == "" {
		review.ID = uuid.NewString()
	}
	review.Status = ReviewDraft
	review.CreatedAt = now
	review.UpdatedAt = now
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO reviews (id, file_id, suggestion_id, editor_notes, analysis_final, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		review.ID,
		review.FileID,
		review.SuggestionID,
		nullableString(review.EditorNotes),
		review.AnalysisFinal,
		review.Status,
		formatTime(now),
		formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("insert review: %w", err)
	}
	return nil
}

// GetReview returns the file's review, or nil when none has been saved.
func (s *Store) GetReview(ctx context.Context, fileID string) (*Review, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+reviewColumns+` FROM reviews WHERE file_id = ?`,
		fileID,
	)
	review, err := scanReview(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get review: %w", err)
	}
	return review, nil
}

// ApproveReview marks a review APPROVED. Approving an already approved
// review is a no-op, which keeps re-approval retries idempotent.
func (s *Store) ApproveReview(ctx context.Context, reviewID string) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE reviews SET status = ?, updated_at = ? WHERE id = ?`,
		ReviewApproved,
		formatTime(time.Now().UTC()),
		reviewID,
	)
	if err != nil {
		return fmt.Errorf("approve review: %w", err)
	}
	return nil
}

// ApprovedReviews returns all approved reviews joined with their files,
// newest first, for export.
func (s *Store) ApprovedReviews(ctx context.Context) ([]*ApprovedReview, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT r.id, r.file_id, r.suggestion_id, r.editor_notes, r.analysis_final, r.status,
                r.created_at, r.updated_at, f.company_name, f.original_filename
         FROM reviews r JOIN files f ON f.id = r.file_id
         WHERE r.status = ? ORDER BY r.updated_at DESC, r.id`,
		ReviewApproved,
	)
	if err != nil {
		return nil, fmt.Errorf("approved reviews: %w", err)
	}
	defer rows.Close()

	var approved []*ApprovedReview
	for rows.Next() {
		var (
			item         ApprovedReview
			notes        sql.NullString
			statusStr    string
			createdRaw   string
			updatedRaw   string
			company      sql.NullString
			originalName string
		)
		if err := rows.Scan(
			&item.ID, &item.FileID, &item.SuggestionID, &notes, &item.AnalysisFinal,
			&statusStr, &createdRaw, &updatedRaw, &company, &originalName,
		); err != nil {
			return nil, err
		}
		item.EditorNotes = notes.String
		item.Status = ReviewStatus(statusStr)
		item.CreatedAt = parseTime(createdRaw)
		item.UpdatedAt = parseTime(updatedRaw)
		item.CompanyName = company.String
		item.OriginalFilename = originalName
		approved = append(approved, &item)
	}
	return approved, rows.Err()
}

const (
	fileColumns       = "id, company_name, original_filename, storage_path_original, storage_path_regenerated, storage_path_pdf, language, created_at, updated_at"
	jobColumns        = "id, file_id, type, status, error_message, created_at, updated_at"
	suggestionColumns = "id, file_id, model_name, raw_model_output, analysis_text, created_at"
	reviewColumns     = "id, file_id, suggestion_id, editor_notes, analysis_final, status, created_at, updated_at"
)

type rowScanner interface{ Scan(dest ...any) error }

func scanFile(scanner rowScanner) (*File, error) {
	var (
		file        File
		company     sql.NullString
		regenerated sql.NullString
		pdf         sql.NullString
		createdRaw  string
		updatedRaw  string
	)
	if err := scanner.Scan(
		&file.ID, &company, &file.OriginalFilename, &file.StoragePathOriginal,
		&regenerated, &pdf, &file.Language, &createdRaw, &updatedRaw,
	); err != nil {
		return nil, err
	}
	file.CompanyName = company.String
	file.StoragePathRegenerated = regenerated.String
	file.StoragePathPDF = pdf.String
	file.CreatedAt = parseTime(createdRaw)
	file.UpdatedAt = parseTime(updatedRaw)
	return &file, nil
}

func scanJob(scanner rowScanner) (*Job, error) {
	var (
		job        Job
		typeStr    string
		statusStr  string
		errMsg     sql.NullString
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(&job.ID, &job.FileID, &typeStr, &statusStr, &errMsg, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	job.Type = JobType(typeStr)
	job.Status = JobStatus(statusStr)
	job.ErrorMessage = errMsg.String
	job.CreatedAt = parseTime(createdRaw)
	job.UpdatedAt = parseTime(updatedRaw)
	return &job, nil
}

func scanSuggestion(scanner rowScanner) (*Suggestion, error) {
	var (
		suggestion Suggestion
		createdRaw string
	)
	if err := scanner.Scan(
		&suggestion.ID, &suggestion.FileID, &suggestion.ModelName,
		&suggestion.RawModelOutput, &suggestion.AnalysisText, &createdRaw,
	); err != nil {
		return nil, err
	}
	suggestion.CreatedAt = parseTime(createdRaw)
	return &suggestion, nil
}

func scanReview(scanner rowScanner) (*Review, error) {
	var (
		review     Review
		notes      sql.NullString
		statusStr  string
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(
		&review.ID, &review.FileID, &review.SuggestionID, &notes,
		&review.AnalysisFinal, &statusStr, &createdRaw, &updatedRaw,
	); err != nil {
		return nil, err
	}
	review.EditorNotes = notes.String
	review.Status = ReviewStatus(statusStr)
	review.CreatedAt = parseTime(createdRaw)
	review.UpdatedAt = parseTime(updatedRaw)
	return &review, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func formatTime(value time.Time) string {
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	t, _ := time.Parse("2006-01-02 15:04:05", value)
	return t
}
