package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"factsheet/internal/api"
	"factsheet/internal/deck"
	"factsheet/internal/logging"
	"factsheet/internal/services/gemini"
	"factsheet/internal/storage"
	"factsheet/internal/testsupport"
	"factsheet/internal/workflow"
)

type fakeAI struct{}

func (fakeAI) GenerateSummary(context.Context, string) (gemini.Summary, error) {
	return gemini.Summary{
		Strengths:  []string{"Strong governance"},
		Weaknesses: []string{"No emission targets"},
		ActionPlan: []string{"Set science-based targets"},
		Raw:        `{"strengths":["Strong governance"]}`,
		ModelName:  "fake-model",
	}, nil
}

func (fakeAI) Model() string { return "fake-model" }

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	objects, err := storage.NewGateway(cfg)
	if err != nil {
		t.Fatalf("NewGateway: %v", err)
	}
	wf := workflow.NewService(cfg, st, objects, fakeAI{}, logging.NewNop())
	server := httptest.NewServer(api.NewServer(cfg.Paths.APIBind, wf, logging.NewNop()).Handler())
	t.Cleanup(server.Close)
	return server
}

func uploadDeck(t *testing.T, server *httptest.Server, filename string, data []byte) api.FileResponse {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("files", filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	resp, err := http.Post(server.URL+"/upload", writer.FormDataContentType(), &body)
	if err != nil {
		t.Fatalf("POST /upload: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		payload, _ := io.ReadAll(resp.Body)
		t.Fatalf("unexpected upload status %d: %s", resp.StatusCode, payload)
	}
	var files []api.FileResponse
	if err := json.NewDecoder(resp.Body).Decode(&files); err != nil {
		t.Fatalf("decode upload response: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected 1 file, got %d", len(files))
	}
	return files[0]
}

func fixtureDeck(t *testing.T) []byte {
	t.Helper()
	return testsupport.BuildDeck(t,
		testsupport.Slide(
			testsupport.TextShape("Title 1", "", "Acme ESG Overview"),
			testsupport.TextShape("AI_SUMMARY", "", "placeholder"),
		),
	)
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			t.Fatalf("encode payload: %v", err)
		}
	}
	resp, err := http.Post(url, "application/json", &body)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func TestHealthz(t *testing.T) {
	server := newTestServer(t)
	resp, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
}

func TestUploadAndList(t *testing.T) {
	server := newTestServer(t)
	uploaded := uploadDeck(t, server, "acme_energy.pptx", fixtureDeck(t))
	if uploaded.CompanyName != "Acme Energy" {
		t.Fatalf("unexpected company name %q", uploaded.CompanyName)
	}

	resp, err := http.Get(server.URL + "/files")
	if err != nil {
		t.Fatalf("GET /files: %v", err)
	}
	defer resp.Body.Close()
	var files []api.FileResponse
	if err := json.NewDecoder(resp.Body).Decode(&files); err != nil {
		t.Fatalf("decode files: %v", err)
	}
	if len(files) != 1 || files[0].ID != uploaded.ID {
		t.Fatalf("unexpected file list %+v", files)
	}
}

func TestUploadRejectsWrongExtension(t *testing.T) {
	server := newTestServer(t)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, _ := writer.CreateFormFile("files", "notes.txt")
	_, _ = part.Write([]byte("plain text"))
	_ = writer.Close()

	resp, err := http.Post(server.URL+"/upload", writer.FormDataContentType(), &body)
	if err != nil {
		t.Fatalf("POST /upload: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestUploadRejectsPDFWithMultipleDecks(t *testing.T) {
	server := newTestServer(t)
	deckData := fixtureDeck(t)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for _, name := range []string{"one.pptx", "two.pptx"} {
		part, _ := writer.CreateFormFile("files", name)
		_, _ = part.Write(deckData)
	}
	pdfPart, _ := writer.CreateFormFile("pdf", "one.pdf")
	_, _ = pdfPart.Write([]byte("%PDF-1.4 stub"))
	_ = writer.Close()

	resp, err := http.Post(server.URL+"/upload", writer.FormDataContentType(), &body)
	if err != nil {
		t.Fatalf("POST /upload: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestUploadRejectsUnreadablePDF(t *testing.T) {
	server := newTestServer(t)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, _ := writer.CreateFormFile("files", "acme.pptx")
	_, _ = part.Write(fixtureDeck(t))
	pdfPart, _ := writer.CreateFormFile("pdf", "acme.pdf")
	_, _ = pdfPart.Write([]byte("definitely not a pdf"))
	_ = writer.Close()

	resp, err := http.Post(server.URL+"/upload", writer.FormDataContentType(), &body)
	if err != nil {
		t.Fatalf("POST /upload: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	payload, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(payload), "not a readable pdf") {
		t.Fatalf("unexpected error payload %s", payload)
	}
}

func TestAnalyzeReviewApproveDownload(t *testing.T) {
	server := newTestServer(t)
	uploaded := uploadDeck(t, server, "acme.pptx", fixtureDeck(t))

	// Analyze.
	resp := postJSON(t, server.URL+"/analyze/"+uploaded.ID, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(resp.Body)
		t.Fatalf("analyze status %d: %s", resp.StatusCode, payload)
	}
	var suggestion api.SuggestionResponse
	if err := json.NewDecoder(resp.Body).Decode(&suggestion); err != nil {
		t.Fatalf("decode suggestion: %v", err)
	}
	if !strings.Contains(suggestion.AnalysisText, "Strong governance") {
		t.Fatalf("unexpected analysis %q", suggestion.AnalysisText)
	}

	// Review.
	reviewResp := postJSON(t, server.URL+"/review/"+uploaded.ID, api.ReviewRequest{
		AnalysisFinal: "**Strengths**\n- Reviewed and confirmed",
		EditorNotes:   "ok",
	})
	defer reviewResp.Body.Close()
	if reviewResp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(reviewResp.Body)
		t.Fatalf("review status %d: %s", reviewResp.StatusCode, payload)
	}

	// Approve.
	approveResp := postJSON(t, server.URL+"/approve/"+uploaded.ID, nil)
	defer approveResp.Body.Close()
	if approveResp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(approveResp.Body)
		t.Fatalf("approve status %d: %s", approveResp.StatusCode, payload)
	}
	var approved api.FileResponse
	if err := json.NewDecoder(approveResp.Body).Decode(&approved); err != nil {
		t.Fatalf("decode approve response: %v", err)
	}
	if approved.StoragePathRegenerated == "" {
		t.Fatal("expected regenerated path")
	}

	// File view carries signed download links.
	viewResp, err := http.Get(server.URL + "/file/" + uploaded.ID)
	if err != nil {
		t.Fatalf("GET /file: %v", err)
	}
	defer viewResp.Body.Close()
	var view api.FileViewResponse
	if err := json.NewDecoder(viewResp.Body).Decode(&view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if view.Review == nil || view.Review.Status != "APPROVED" {
		t.Fatalf("unexpected review %+v", view.Review)
	}
	if view.DownloadURLRegenerated == "" {
		t.Fatal("expected regenerated download link")
	}

	// Download the regenerated deck through the signed link.
	downloadResp, err := http.Get(server.URL + view.DownloadURLRegenerated)
	if err != nil {
		t.Fatalf("GET download: %v", err)
	}
	defer downloadResp.Body.Close()
	if downloadResp.StatusCode != http.StatusOK {
		t.Fatalf("download status %d", downloadResp.StatusCode)
	}
	data, err := io.ReadAll(downloadResp.Body)
	if err != nil {
		t.Fatalf("read download: %v", err)
	}
	pkg, err := deck.Open(data)
	if err != nil {
		t.Fatalf("open downloaded deck: %v", err)
	}
	if !strings.Contains(pkg.ExtractText(), "Reviewed and confirmed") {
		t.Fatal("expected final analysis in downloaded deck")
	}

	// Tampered signature is rejected.
	tampered := strings.Replace(view.DownloadURLRegenerated, "sig=", "sig=00", 1)
	badResp, err := http.Get(server.URL + tampered)
	if err != nil {
		t.Fatalf("GET tampered download: %v", err)
	}
	defer badResp.Body.Close()
	if badResp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for tampered signature, got %d", badResp.StatusCode)
	}
}

func TestAnalyzeUnknownFileReturns404(t *testing.T) {
	server := newTestServer(t)
	resp := postJSON(t, server.URL+"/analyze/does-not-exist", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestApproveWithoutReviewReturns404(t *testing.T) {
	server := newTestServer(t)
	uploaded := uploadDeck(t, server, "acme.pptx", fixtureDeck(t))
	resp := postJSON(t, server.URL+"/approve/"+uploaded.ID, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestExportExcel(t *testing.T) {
	server := newTestServer(t)

	// Nothing approved yet.
	emptyResp, err := http.Get(server.URL + "/export/excel")
	if err != nil {
		t.Fatalf("GET /export/excel: %v", err)
	}
	emptyResp.Body.Close()
	if emptyResp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 before approvals, got %d", emptyResp.StatusCode)
	}

	uploaded := uploadDeck(t, server, "acme.pptx", fixtureDeck(t))
	resp := postJSON(t, server.URL+"/analyze/"+uploaded.ID, nil)
	resp.Body.Close()
	reviewResp := postJSON(t, server.URL+"/review/"+uploaded.ID, api.ReviewRequest{AnalysisFinal: "final"})
	reviewResp.Body.Close()
	approveResp := postJSON(t, server.URL+"/approve/"+uploaded.ID, nil)
	approveResp.Body.Close()

	exportResp, err := http.Get(server.URL + "/export/excel")
	if err != nil {
		t.Fatalf("GET /export/excel: %v", err)
	}
	defer exportResp.Body.Close()
	if exportResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", exportResp.StatusCode)
	}
	if got := exportResp.Header.Get("Content-Type"); !strings.Contains(got, "spreadsheetml") {
		t.Fatalf("unexpected content type %q", got)
	}
	if got := exportResp.Header.Get("Content-Disposition"); !strings.HasPrefix(got, "attachment") {
		t.Fatalf("unexpected disposition %q", got)
	}
	data, err := io.ReadAll(exportResp.Body)
	if err != nil || len(data) == 0 {
		t.Fatalf("expected workbook bytes, err %v", err)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	server := newTestServer(t)
	for _, path := range []string{"/files", "/file/x", "/export/excel", "/healthz", "/download"} {
		resp := postJSON(t, server.URL+path+"", nil)
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Errorf("%s: expected 405, got %d", path, resp.StatusCode)
		}
		resp.Body.Close()
	}
	resp, err := http.Get(server.URL + "/upload")
	if err != nil {
		t.Fatalf("GET /upload: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
}
