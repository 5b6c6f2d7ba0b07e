package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"factsheet/internal/export"
	"factsheet/internal/logging"
	"factsheet/internal/services"
	"factsheet/internal/storage"
	"factsheet/internal/workflow"
)

// maxUploadBytes caps a single multipart upload request.
const maxUploadBytes = 200 << 20

// Server exposes the workflow over HTTP.
type Server struct {
	bind     string
	logger   *slog.Logger
	workflow *workflow.Service

	listener net.Listener
	server   *http.Server
}

// NewServer builds the HTTP server bound to the configured address.
func NewServer(bind string, wf *workflow.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	srv := &Server{
		bind:     strings.TrimSpace(bind),
		logger:   logging.WithComponent(logger, "api-server"),
		workflow: wf,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", srv.handleHealth)
	mux.HandleFunc("/upload", srv.handleUpload)
	mux.HandleFunc("/analyze/", srv.handleAnalyze)
	mux.HandleFunc("/review/", srv.handleReview)
	mux.HandleFunc("/approve/", srv.handleApprove)
	mux.HandleFunc("/file/", srv.handleFile)
	mux.HandleFunc("/files", srv.handleFiles)
	mux.HandleFunc("/export/excel", srv.handleExportExcel)
	mux.HandleFunc("/download", srv.handleDownload)

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

// Handler exposes the route table for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start begins serving and shuts down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", slog.String("address", listener.Addr().String()))
	return nil
}

// Addr reports the bound address, useful when binding to port 0.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.bind
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down.
func (s *Server) Stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	companyName := r.FormValue("company_name")

	var uploads []*multipartUpload
	if r.MultipartForm != nil {
		for _, header := range r.MultipartForm.File["files"] {
			uploads = append(uploads, &multipartUpload{header: header})
		}
	}
	if len(uploads) == 0 {
		s.writeError(w, http.StatusBadRequest, "no files provided")
		return
	}

	var pdfUpload *multipartUpload
	if headers := r.MultipartForm.File["pdf"]; len(headers) > 0 {
		if len(headers) > 1 || len(uploads) > 1 {
			s.writeError(w, http.StatusBadRequest, "a pdf rendition can only accompany a single deck")
			return
		}
		pdfUpload = &multipartUpload{header: headers[0]}
	}

	results := make([]FileResponse, 0, len(uploads))
	for _, upload := range uploads {
		data, err := upload.read()
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "read upload: "+err.Error())
			return
		}
		file, err := s.workflow.Upload(r.Context(), upload.header.Filename, companyName, data)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		if pdfUpload != nil {
			pdfData, err := pdfUpload.read()
			if err != nil {
				s.writeError(w, http.StatusBadRequest, "read pdf upload: "+err.Error())
				return
			}
			if file, err = s.workflow.AttachPDF(r.Context(), file.ID, pdfData); err != nil {
				s.writeServiceError(w, err)
				return
			}
		}
		results = append(results, fromFile(file))
	}
	s.writeJSON(w, http.StatusCreated, results)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	fileID, ok := pathSuffix(r.URL.Path, "/analyze/")
	if !ok {
		s.writeError(w, http.StatusNotFound, "file not found")
		return
	}
	suggestion, err := s.workflow.Analyze(r.Context(), fileID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, fromSuggestion(suggestion))
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	fileID, ok := pathSuffix(r.URL.Path, "/review/")
	if !ok {
		s.writeError(w, http.StatusNotFound, "file not found")
		return
	}
	var body ReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	review, err := s.workflow.SaveReview(r.Context(), fileID, body.SuggestionID, body.AnalysisFinal, body.EditorNotes)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, fromReview(review))
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	fileID, ok := pathSuffix(r.URL.Path, "/approve/")
	if !ok {
		s.writeError(w, http.StatusNotFound, "file not found")
		return
	}
	file, err := s.workflow.Approve(r.Context(), fileID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, fromFile(file))
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	fileID, ok := pathSuffix(r.URL.Path, "/file/")
	if !ok {
		s.writeError(w, http.StatusNotFound, "file not found")
		return
	}
	view, err := s.workflow.GetFileView(r.Context(), fileID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, fromFileView(view))
}

func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	files, err := s.workflow.ListFiles(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	results := make([]FileResponse, 0, len(files))
	for _, file := range files {
		results = append(results, fromFile(file))
	}
	s.writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleExportExcel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	approved, err := s.workflow.ApprovedReviews(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if len(approved) == 0 {
		s.writeError(w, http.StatusNotFound, "no approved reviews found")
		return
	}
	data, err := export.Workbook(approved)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", export.Filename(time.Now())))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	query := r.URL.Query()
	objectPath := query.Get("path")
	signature := query.Get("sig")
	expires, err := strconv.ParseInt(query.Get("exp"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid expiry")
		return
	}

	objects := s.workflow.Objects()
	if err := objects.Verify(objectPath, expires, signature, time.Now()); err != nil {
		s.writeError(w, http.StatusForbidden, "link invalid or expired")
		return
	}
	data, err := objects.Load(objectPath)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "object not found")
		return
	}

	w.Header().Set("Content-Type", storage.ContentTypeFor(objectPath))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case services.IsValidation(err):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case services.IsNotFound(err):
		s.writeError(w, http.StatusNotFound, err.Error())
	case services.IsConflict(err):
		s.writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("request failed", logging.Error(err))
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

type multipartUpload struct {
	header *multipart.FileHeader
}

func (u *multipartUpload) read() ([]byte, error) {
	file, err := u.header.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}

// pathSuffix extracts the single trailing segment after prefix.
func pathSuffix(path, prefix string) (string, bool) {
	rest := strings.TrimPrefix(path, prefix)
	if rest == "" || rest == path || strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}
