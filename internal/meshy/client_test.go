package meshy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

const testKey = "test-meshy-key"

func TestCreateTextTo3D(t *testing.T) {
	var gotPath, gotAuth string
	var gotPayload map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotPayload)
		json.NewEncoder(w).Encode(map[string]string{"result": "task-123"})
	}))
	defer srv.Close()

	c := NewClient(testKey, srv.URL)
	id, err := c.CreateTextTo3D(context.Background(), "a capybara. lowpoly paper toy")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "task-123" {
		t.Errorf("task id = %q, want %q", id, "task-123")
	}
	if gotPath != "/openapi/v2/text-to-3d" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer "+testKey {
		t.Errorf("auth header = %q", gotAuth)
	}
	if gotPayload["mode"] != "preview" || gotPayload["topology"] != "quad" {
		t.Errorf("payload = %v", gotPayload)
	}
}

func TestCreateRetexture(t *testing.T) {
	var gotPath string
	var gotPayload map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotPayload)
		json.NewEncoder(w).Encode(map[string]string{"result": "retex-9"})
	}))
	defer srv.Close()

	c := NewClient(testKey, srv.URL)
	id, err := c.CreateRetexture(context.Background(), "https://cdn.example/model.glb", "a capybara. lowpoly paper toy")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "retex-9" {
		t.Errorf("task id = %q", id)
	}
	if gotPath != "/openapi/v1/retexture" {
		t.Errorf("path = %q", gotPath)
	}
	if gotPayload["model_url"] != "https://cdn.example/model.glb" {
		t.Errorf("model_url = %v", gotPayload["model_url"])
	}
	if gotPayload["enable_original_uv"] != true {
		t.Error("enable_original_uv not set")
	}
}

func TestGetTaskPaths(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode(map[string]any{"status": "IN_PROGRESS", "progress": 40})
	}))
	defer srv.Close()

	c := NewClient(testKey, srv.URL)

	if _, err := c.GetTask(context.Background(), KindTextTo3D, "t1"); err != nil {
		t.Fatal(err)
	}
	if gotPath != "/openapi/v2/text-to-3d/t1" {
		t.Errorf("text-to-3d path = %q", gotPath)
	}

	if _, err := c.GetTask(context.Background(), KindRetexture, "r1"); err != nil {
		t.Fatal(err)
	}
	if gotPath != "/openapi/v1/retexture/r1" {
		t.Errorf("retexture path = %q", gotPath)
	}
}

func TestGetTaskNormalizesStatuses(t *testing.T) {
	tests := []struct {
		wire, want string
	}{
		{"SUCCEEDED", StatusSucceeded},
		{"COMPLETED", StatusSucceeded},
		{"FAILED", StatusFailed},
		{"ERROR", StatusFailed},
		{"PENDING", StatusPending},
		{"IN_PROGRESS", StatusInProgress},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{
				"status":     tt.wire,
				"progress":   100,
				"model_urls": map[string]string{"glb": "https://cdn.example/out.glb"},
			})
		}))
		c := NewClient(testKey, srv.URL)
		task, err := c.GetTask(context.Background(), KindTextTo3D, "t1")
		srv.Close()
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.wire, err)
		}
		if task.Status != tt.want {
			t.Errorf("status %s normalized to %q, want %q", tt.wire, task.Status, tt.want)
		}
	}
}

func TestGetTaskSuccessCarriesModelURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"status":     "SUCCEEDED",
			"progress":   100,
			"model_urls": map[string]string{"glb": "https://cdn.example/final.glb"},
		})
	}))
	defer srv.Close()

	c := NewClient(testKey, srv.URL)
	task, err := c.GetTask(context.Background(), KindTextTo3D, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if !task.Terminal() {
		t.Error("SUCCEEDED not reported terminal")
	}
	if task.ModelURL != "https://cdn.example/final.glb" {
		t.Errorf("ModelURL = %q", task.ModelURL)
	}
}

func TestAPIErrorSurfacesStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid api key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient("bad-key", srv.URL)
	if _, err := c.CreateTextTo3D(context.Background(), "anything"); err == nil {
		t.Fatal("expected error for 401 response")
	}
	if _, err := c.GetTask(context.Background(), KindTextTo3D, "t1"); err == nil {
		t.Fatal("expected error for 401 response")
	}
}
