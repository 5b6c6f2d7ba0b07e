package store

import (
	"strings"
	"time"
)

// JobType distinguishes the two long-running operations recorded per file.
type JobType string

const (
	JobAnalyze    JobType = "ANALYZE"
	JobRegenerate JobType = "REGENERATE"
)

// JobStatus represents the lifecycle of a job record.
type JobStatus string

const (
	JobPending   JobStatus = "PENDING"
	JobRunning   JobStatus = "RUNNING"
	JobSucceeded JobStatus = "SUCCEEDED"
	JobFailed    JobStatus = "FAILED"
)

// ReviewStatus represents the editorial state of a review.
type ReviewStatus string

const (
	ReviewDraft    ReviewStatus = "DRAFT"
	ReviewApproved ReviewStatus = "APPROVED"
)

// ParseJobType converts a string into a known JobType.
func ParseJobType(value string) (JobType, bool) {
	normalized := JobType(strings.ToUpper(strings.TrimSpace(value)))
	switch normalized {
	case JobAnalyze, JobRegenerate:
		return normalized, true
	}
	return "", false
}

// File describes one uploaded deck and its stored artifacts.
type File struct {
	ID                     string
	CompanyName            string
	OriginalFilename       string
	StoragePathOriginal    string
	StoragePathRegenerated string
	StoragePathPDF         string
	Language               string
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// Job records one analyze or regenerate run against a file.
type Job struct {
	ID           string
	FileID       string
	Type         JobType
	Status       JobStatus
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Finished reports whether the job reached a terminal status.
func (j *Job) Finished() bool {
	return j.Status == JobSucceeded || j.Status == JobFailed
}

// Suggestion is one AI-generated analysis, retained with the raw provider
// response for audit.
type Suggestion struct {
	ID             string
	FileID         string
	ModelName      string
	RawModelOutput string
	AnalysisText   string
	CreatedAt      time.Time
}

// Review is the human-edited analysis for a file. Each file has at most one
// review row; saving a draft over an existing review replaces it.
type Review struct {
	ID            string
	FileID        string
	SuggestionID  string
	EditorNotes   string
	AnalysisFinal string
	Status        ReviewStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ApprovedReview joins an approved review with its file for export.
type ApprovedReview struct {
	Review
	CompanyName      string
	OriginalFilename string
}
