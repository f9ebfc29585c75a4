package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/waywereminisce/ornament-api/internal/blobstore"
	"github.com/waywereminisce/ornament-api/internal/letter"
	"github.com/waywereminisce/ornament-api/internal/mediafile"
	"github.com/waywereminisce/ornament-api/internal/metrics"
	"github.com/waywereminisce/ornament-api/internal/reconcile"
)

// metricsNamespace is the CloudWatch namespace for EMF metrics.
const metricsNamespace = "OrnamentAPI"

// server holds the request-scoped dependencies behind the HTTP handlers.
// Tests construct one directly with an in-memory store and fake clients.
type server struct {
	store      blobstore.Store
	reconciler *reconcile.Reconciler
	featured   []string
}

func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/submissions", s.handleSubmissions)
	mux.HandleFunc("/api/submissions/", s.handleSubmissionByID)
	mux.HandleFunc("/api/generation-tasks/", s.handleTaskStatus)
	return mux
}

// --- Input Validation ---

// recordIDRegex bounds submission ids to a safe character set; ids become
// blob key components, so path separators and dots are rejected outright.
var recordIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

func validateRecordID(id string) error {
	if id == "" {
		return fmt.Errorf("id is required")
	}
	if !recordIDRegex.MatchString(id) {
		return fmt.Errorf("invalid id: only alphanumeric, hyphens, and underscores allowed")
	}
	return nil
}

// --- Health ---

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "ornament-api",
	})
}

// --- Submissions ---

func (s *server) handleSubmissions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListSubmissions(w, r)
	case http.MethodPost:
		s.handleSubmit(w, r)
	default:
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// POST /api/submissions
//
// Multipart form. "id" is required; every other part is optional and only
// the parts actually present change the stored record:
//
//	text parts:  title, story, narrationScript, mood
//	file parts:  photo, asset3d, narration, music
//	URL parts:   imageUrl, assetUrl, narrationUrl, musicUrl
func (s *server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if err := r.ParseMultipartForm(mediafile.MaxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	id := r.FormValue("id")
	if err := validateRecordID(id); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	upd := letter.Update{
		Title:           formString(r, "title"),
		Story:           formString(r, "story"),
		NarrationScript: formString(r, "narrationScript"),
		Mood:            formString(r, "mood"),
	}

	files := []struct {
		part   string
		urlKey string
		dst    *letter.MediaInput
	}{
		{"photo", "imageUrl", &upd.Photo},
		{"asset3d", "assetUrl", &upd.Asset},
		{"narration", "narrationUrl", &upd.Narration},
		{"music", "musicUrl", &upd.Music},
	}
	for _, f := range files {
		input, err := formMedia(r, f.part, f.urlKey)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		*f.dst = input
	}

	rec, err := s.reconciler.Reconcile(r.Context(), id, upd)
	if err != nil {
		log.Error().Err(err).Str("recordId", id).Msg("Submission failed")
		respondError(w, http.StatusInternalServerError, "failed to store submission")
		return
	}

	metrics.New(metricsNamespace).
		Dimension("Operation", "submit").
		Count("Submissions").
		Metric("SubmitLatencyMs", float64(time.Since(start).Milliseconds()), metrics.UnitMilliseconds).
		Property("recordId", id).
		Flush()

	respondData(w, http.StatusOK, rec)
}

// formString distinguishes an absent text part (nil, preserve the stored
// value) from a present-but-empty one (intentional clear).
func formString(r *http.Request, name string) *string {
	if r.MultipartForm == nil {
		return nil
	}
	values, ok := r.MultipartForm.Value[name]
	if !ok || len(values) == 0 {
		return nil
	}
	return &values[0]
}

// formMedia resolves one media field: an uploaded file part wins over a URL
// override; absence of both leaves the field unset.
func formMedia(r *http.Request, part, urlKey string) (letter.MediaInput, error) {
	if r.MultipartForm != nil {
		if headers := r.MultipartForm.File[part]; len(headers) > 0 {
			fh := headers[0]
			if fh.Size > mediafile.MaxUploadSize {
				return letter.MediaInput{}, fmt.Errorf("%s exceeds the upload size limit", part)
			}
			f, err := fh.Open()
			if err != nil {
				return letter.MediaInput{}, fmt.Errorf("read %s upload", part)
			}
			defer f.Close()
			data, err := io.ReadAll(io.LimitReader(f, mediafile.MaxUploadSize+1))
			if err != nil {
				return letter.MediaInput{}, fmt.Errorf("read %s upload", part)
			}
			if int64(len(data)) > mediafile.MaxUploadSize {
				return letter.MediaInput{}, fmt.Errorf("%s exceeds the upload size limit", part)
			}
			return letter.UploadedMedia(data, fh.Filename, fh.Header.Get("Content-Type")), nil
		}
	}
	if v := formString(r, urlKey); v != nil && *v != "" {
		return letter.ExternalMedia(*v), nil
	}
	return letter.MediaInput{}, nil
}

// GET /api/submissions
//
// Featured ornaments come first in their configured order; everything else
// follows in store order.
func (s *server) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.ListRecords(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list submissions")
		respondError(w, http.StatusInternalServerError, "failed to list submissions")
		return
	}
	respondData(w, http.StatusOK, s.orderRecords(records))
}

func (s *server) orderRecords(records []*letter.Record) []*letter.Record {
	rank := make(map[string]int, len(s.featured))
	for i, id := range s.featured {
		rank[id] = i
	}
	sort.SliceStable(records, func(i, j int) bool {
		ri, iFeatured := rank[records[i].ID]
		rj, jFeatured := rank[records[j].ID]
		switch {
		case iFeatured && jFeatured:
			return ri < rj
		case iFeatured != jFeatured:
			return iFeatured
		default:
			return false // stable sort keeps store order
		}
	})
	return records
}

// GET /api/submissions/{id}
func (s *server) handleSubmissionByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/submissions/")
	if err := validateRecordID(id); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := s.store.GetRecord(r.Context(), id)
	if err != nil {
		log.Error().Err(err).Str("recordId", id).Msg("Failed to load submission")
		respondError(w, http.StatusInternalServerError, "failed to load submission")
		return
	}
	if rec == nil {
		respondError(w, http.StatusNotFound, "not found")
		return
	}
	respondData(w, http.StatusOK, rec)
}

// --- Generation Tasks ---

// GET /api/generation-tasks/{taskId}?recordId={id}
//
// Polls the task and advances the pipeline when it has finished: chaining
// the refinement task or persisting the downloaded artifact.
func (s *server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	taskID := strings.TrimPrefix(r.URL.Path, "/api/generation-tasks/")
	if taskID == "" || strings.Contains(taskID, "/") {
		respondError(w, http.StatusBadRequest, "taskId is required")
		return
	}

	recordID := r.URL.Query().Get("recordId")
	if recordID != "" {
		if err := validateRecordID(recordID); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	status, err := s.reconciler.CheckTask(r.Context(), taskID, recordID)
	if err != nil {
		log.Error().Err(err).Str("taskId", taskID).Str("recordId", recordID).Msg("Task poll failed")
		respondError(w, http.StatusInternalServerError, "failed to check task status")
		return
	}

	if status.ArtifactURL != "" {
		metrics.New(metricsNamespace).
			Dimension("Operation", "taskPoll").
			Count("ArtifactsReady").
			Property("taskId", taskID).
			Flush()
	}

	respondJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		*reconcile.TaskStatus
	}{true, status})
}

// --- JSON Helpers ---

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondData wraps a payload in the success envelope the frontend expects.
func respondData(w http.ResponseWriter, status int, data interface{}) {
	respondJSON(w, status, map[string]interface{}{
		"success": true,
		"data":    data,
	})
}

func respondError(w http.ResponseWriter, status int, clientMsg string) {
	respondJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   clientMsg,
	})
}
