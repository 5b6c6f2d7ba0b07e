package api

import (
	"time"

	"factsheet/internal/store"
	"factsheet/internal/workflow"
)

// FileResponse is the JSON rendering of a file record.
type FileResponse struct {
	ID                     string    `json:"id"`
	CompanyName            string    `json:"company_name,omitempty"`
	OriginalFilename       string    `json:"original_filename"`
	Language               string    `json:"language"`
	StoragePathOriginal    string    `json:"storage_path_original"`
	StoragePathRegenerated string    `json:"storage_path_regenerated,omitempty"`
	StoragePathPDF         string    `json:"storage_path_pdf,omitempty"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// JobResponse is the JSON rendering of a job record.
type JobResponse struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SuggestionResponse is the JSON rendering of an AI suggestion.
type SuggestionResponse struct {
	ID             string    `json:"id"`
	FileID         string    `json:"file_id"`
	ModelName      string    `json:"model_name"`
	RawModelOutput string    `json:"raw_model_output"`
	AnalysisText   string    `json:"analysis_text"`
	CreatedAt      time.Time `json:"created_at"`
}

// ReviewRequest is the body accepted by the review endpoint.
type ReviewRequest struct {
	SuggestionID  string `json:"suggestion_id"`
	AnalysisFinal string `json:"analysis_final"`
	EditorNotes   string `json:"editor_notes"`
}

// ReviewResponse is the JSON rendering of a review record.
type ReviewResponse struct {
	ID            string    `json:"id"`
	FileID        string    `json:"file_id"`
	SuggestionID  string    `json:"suggestion_id"`
	AnalysisFinal string    `json:"analysis_final"`
	EditorNotes   string    `json:"editor_notes,omitempty"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// FileViewResponse aggregates a file with its latest suggestion, review,
// jobs, and download URLs.
type FileViewResponse struct {
	FileResponse
	Suggestion *SuggestionResponse `json:"suggestion,omitempty"`
	Review     *ReviewResponse     `json:"review,omitempty"`
	Jobs       []JobResponse       `json:"jobs"`

	DownloadURLOriginal    string `json:"download_url_original,omitempty"`
	DownloadURLRegenerated string `json:"download_url_regenerated,omitempty"`
}

func fromFile(file *store.File) FileResponse {
	return FileResponse{
		ID:                     file.ID,
		CompanyName:            file.CompanyName,
		OriginalFilename:       file.OriginalFilename,
		Language:               file.Language,
		StoragePathOriginal:    file.StoragePathOriginal,
		StoragePathRegenerated: file.StoragePathRegenerated,
		StoragePathPDF:         file.StoragePathPDF,
		CreatedAt:              file.CreatedAt,
		UpdatedAt:              file.UpdatedAt,
	}
}

func fromJob(job *store.Job) JobResponse {
	return JobResponse{
		ID:           job.ID,
		Type:         string(job.Type),
		Status:       string(job.Status),
		ErrorMessage: job.ErrorMessage,
		CreatedAt:    job.CreatedAt,
		UpdatedAt:    job.UpdatedAt,
	}
}

func fromSuggestion(suggestion *store.Suggestion) *SuggestionResponse {
	if suggestion == nil {
		return nil
	}
	return &SuggestionResponse{
		ID:             suggestion.ID,
		FileID:         suggestion.FileID,
		ModelName:      suggestion.ModelName,
		RawModelOutput: suggestion.RawModelOutput,
		AnalysisText:   suggestion.AnalysisText,
		CreatedAt:      suggestion.CreatedAt,
	}
}

func fromReview(review *store.Review) *ReviewResponse {
	if review == nil {
		return nil
	}
	return &ReviewResponse{
		ID:            review.ID,
		FileID:        review.FileID,
		SuggestionID:  review.SuggestionID,
		AnalysisFinal: review.AnalysisFinal,
		EditorNotes:   review.EditorNotes,
		Status:        string(review.Status),
		CreatedAt:     review.CreatedAt,
		UpdatedAt:     review.UpdatedAt,
	}
}

func fromFileView(view *workflow.FileView) FileViewResponse {
	response := FileViewResponse{
		FileResponse: fromFile(view.File),
		Suggestion:   fromSuggestion(view.Suggestion),
		Review:       fromReview(view.Review),
		Jobs:         make([]JobResponse, 0, len(view.Jobs)),
	}
	for _, job := range view.Jobs {
		response.Jobs = append(response.Jobs, fromJob(job))
	}
	if view.DownloadOriginal != "" {
		response.DownloadURLOriginal = "/download?" + view.DownloadOriginal
	}
	if view.DownloadRegenerated != "" {
		response.DownloadURLRegenerated = "/download?" + view.DownloadRegenerated
	}
	return response
}
