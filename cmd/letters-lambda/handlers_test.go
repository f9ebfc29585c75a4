package main

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/waywereminisce/ornament-api/internal/blobstore"
	"github.com/waywereminisce/ornament-api/internal/letter"
	"github.com/waywereminisce/ornament-api/internal/meshy"
	"github.com/waywereminisce/ornament-api/internal/reconcile"
	"github.com/waywereminisce/ornament-api/internal/subject"
)

type fakeTasks struct {
	task *meshy.Task
}

func (f *fakeTasks) CreateTextTo3D(ctx context.Context, prompt string) (string, error) {
	return "gen-task-1", nil
}

func (f *fakeTasks) CreateRetexture(ctx context.Context, modelURL, stylePrompt string) (string, error) {
	return "refine-task-1", nil
}

func (f *fakeTasks) GetTask(ctx context.Context, kind meshy.TaskKind, id string) (*meshy.Task, error) {
	t := *f.task
	t.ID = id
	return &t, nil
}

type fakeDescriber struct{}

func (f *fakeDescriber) Describe(ctx context.Context, imageBytes []byte, mimeType, story string) (*subject.Description, error) {
	return &subject.Description{Object: "a pine cone", LowpolyPrompt: "lowpoly paper toy"}, nil
}

func newTestServer(tasks reconcile.TaskClient, featured []string) (*server, *blobstore.MemStore) {
	store := blobstore.NewMemStore()
	return &server{
		store:      store,
		reconciler: reconcile.New(store, tasks, &fakeDescriber{}, true),
		featured:   featured,
	}, store
}

// multipartBody builds a multipart form with text fields and one optional
// file part.
func multipartBody(t *testing.T, fields map[string]string, filePart, filename string, fileData []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if filePart != "" {
		fw, err := mw.CreateFormFile(filePart, filename)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write(fileData)
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func doRequest(srv *server, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	srv.routes().ServeHTTP(rr, req)
	return rr
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	return env
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(&fakeTasks{}, nil)
	rr := doRequest(srv, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var body map[string]string
	json.Unmarshal(rr.Body.Bytes(), &body)
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestSubmitCreatesRecord(t *testing.T) {
	srv, store := newTestServer(&fakeTasks{}, nil)

	buf, contentType := multipartBody(t, map[string]string{
		"id":    "letter-1",
		"title": "The lake house",
		"story": "Every August we drove up with the canoe on the roof.",
	}, "photo", "lake.jpg", []byte("jpeg-bytes"))

	req := httptest.NewRequest(http.MethodPost, "/api/submissions", buf)
	req.Header.Set("Content-Type", contentType)
	rr := doRequest(srv, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body)
	}
	env := decodeEnvelope(t, rr)
	if !env.Success {
		t.Fatalf("success = false: %s", env.Error)
	}

	var rec letter.Record
	if err := json.Unmarshal(env.Data, &rec); err != nil {
		t.Fatal(err)
	}
	if rec.Title != "The lake house" {
		t.Errorf("Title = %q", rec.Title)
	}
	if rec.GenerationTaskID != "gen-task-1" {
		t.Errorf("GenerationTaskID = %q", rec.GenerationTaskID)
	}

	stored, _ := store.GetRecord(context.Background(), "letter-1")
	if stored == nil {
		t.Fatal("record not persisted")
	}
}

func TestSubmitRequiresID(t *testing.T) {
	srv, _ := newTestServer(&fakeTasks{}, nil)

	buf, contentType := multipartBody(t, map[string]string{"title": "no id"}, "", "", nil)
	req := httptest.NewRequest(http.MethodPost, "/api/submissions", buf)
	req.Header.Set("Content-Type", contentType)
	rr := doRequest(srv, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
	if env := decodeEnvelope(t, rr); env.Success {
		t.Error("success = true for missing id")
	}
}

func TestSubmitRejectsUnsafeID(t *testing.T) {
	srv, _ := newTestServer(&fakeTasks{}, nil)

	buf, contentType := multipartBody(t, map[string]string{"id": "../etc/passwd"}, "", "", nil)
	req := httptest.NewRequest(http.MethodPost, "/api/submissions", buf)
	req.Header.Set("Content-Type", contentType)
	rr := doRequest(srv, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestSubmitPartialUpdatePreservesFields(t *testing.T) {
	srv, _ := newTestServer(&fakeTasks{}, nil)

	buf, ct := multipartBody(t, map[string]string{
		"id":    "letter-2",
		"title": "Original title",
		"story": "Original story",
	}, "", "", nil)
	req := httptest.NewRequest(http.MethodPost, "/api/submissions", buf)
	req.Header.Set("Content-Type", ct)
	doRequest(srv, req)

	// Second submission carries only the mood; title and story must survive.
	buf, ct = multipartBody(t, map[string]string{"id": "letter-2", "mood": "wistful"}, "", "", nil)
	req = httptest.NewRequest(http.MethodPost, "/api/submissions", buf)
	req.Header.Set("Content-Type", ct)
	rr := doRequest(srv, req)

	var rec letter.Record
	json.Unmarshal(decodeEnvelope(t, rr).Data, &rec)
	if rec.Title != "Original title" || rec.Story != "Original story" {
		t.Errorf("fields regressed: %+v", rec)
	}
	if rec.Mood != "wistful" {
		t.Errorf("Mood = %q", rec.Mood)
	}
}

func TestGetSubmission(t *testing.T) {
	srv, store := newTestServer(&fakeTasks{}, nil)
	rec := letter.NewRecord("letter-3", time.Now())
	rec.Title = "Snow day"
	store.PutRecord(context.Background(), rec)

	rr := doRequest(srv, httptest.NewRequest(http.MethodGet, "/api/submissions/letter-3", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var got letter.Record
	json.Unmarshal(decodeEnvelope(t, rr).Data, &got)
	if got.Title != "Snow day" {
		t.Errorf("Title = %q", got.Title)
	}
}

func TestGetSubmissionNotFound(t *testing.T) {
	srv, _ := newTestServer(&fakeTasks{}, nil)
	rr := doRequest(srv, httptest.NewRequest(http.MethodGet, "/api/submissions/missing", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestListSubmissionsFeaturedFirst(t *testing.T) {
	srv, store := newTestServer(&fakeTasks{}, []string{"star", "sled"})

	base := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "sled", "new", "star"} {
		rec := letter.NewRecord(id, base.Add(time.Duration(i)*time.Hour))
		store.PutRecord(context.Background(), rec)
	}

	rr := doRequest(srv, httptest.NewRequest(http.MethodGet, "/api/submissions", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var records []letter.Record
	json.Unmarshal(decodeEnvelope(t, rr).Data, &records)

	var gotOrder []string
	for _, r := range records {
		gotOrder = append(gotOrder, r.ID)
	}
	want := []string{"star", "sled", "new", "old"}
	for i := range want {
		if gotOrder[i] != want[i] {
			t.Fatalf("order = %v, want %v", gotOrder, want)
		}
	}
}

func TestTaskStatusEndpoint(t *testing.T) {
	tasks := &fakeTasks{task: &meshy.Task{Status: meshy.StatusInProgress, Progress: 55}}
	srv, _ := newTestServer(tasks, nil)

	rr := doRequest(srv, httptest.NewRequest(http.MethodGet, "/api/generation-tasks/gen-task-1", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}

	var body struct {
		Success  bool   `json:"success"`
		Status   string `json:"status"`
		Progress int    `json:"progress"`
	}
	json.Unmarshal(rr.Body.Bytes(), &body)
	if !body.Success || body.Status != meshy.StatusInProgress || body.Progress != 55 {
		t.Errorf("body = %+v", body)
	}
}

func TestTaskStatusAdvancesPipeline(t *testing.T) {
	tasks := &fakeTasks{task: &meshy.Task{Status: meshy.StatusSucceeded, Progress: 100, ModelURL: "https://cdn.example/preview.glb"}}
	srv, store := newTestServer(tasks, nil)

	rec := letter.NewRecord("letter-4", time.Now())
	rec.GenerationTaskID = "gen-task-1"
	rec.GenerationPrompt = "a pine cone. lowpoly paper toy"
	store.PutRecord(context.Background(), rec)

	rr := doRequest(srv, httptest.NewRequest(http.MethodGet, "/api/generation-tasks/gen-task-1?recordId=letter-4", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body)
	}

	var body struct {
		Success          bool   `json:"success"`
		RefinementTaskID string `json:"refinementTaskId"`
	}
	json.Unmarshal(rr.Body.Bytes(), &body)
	if body.RefinementTaskID != "refine-task-1" {
		t.Errorf("refinementTaskId = %q", body.RefinementTaskID)
	}

	stored, _ := store.GetRecord(context.Background(), "letter-4")
	if stored.RefinementTaskID != "refine-task-1" {
		t.Error("refinement task not persisted")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(&fakeTasks{}, nil)
	rr := doRequest(srv, httptest.NewRequest(http.MethodDelete, "/api/submissions", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", rr.Code)
	}
}
