// Package meshy wraps the Meshy text-to-3D API: create a generation task,
// poll its status, and chain a retexture task off a finished preview model.
//
// Tasks are asynchronous on Meshy's side; this client never blocks waiting
// for completion. Callers poll GetTask and react to terminal statuses.
package meshy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultBaseURL is the production Meshy API endpoint.
const DefaultBaseURL = "https://api.meshy.ai"

// TaskKind selects which Meshy task family an id belongs to. The API
// versions differ per family: text-to-3d lives under openapi/v2, retexture
// under openapi/v1.
type TaskKind string

const (
	KindTextTo3D  TaskKind = "text-to-3d"
	KindRetexture TaskKind = "retexture"
)

// Normalized task statuses. Meshy reports COMPLETED for some task families
// and SUCCEEDED for others, and ERROR alongside FAILED; GetTask folds those
// into the canonical pair.
const (
	StatusPending    = "PENDING"
	StatusInProgress = "IN_PROGRESS"
	StatusSucceeded  = "SUCCEEDED"
	StatusFailed     = "FAILED"
)

// Task is the polled state of one Meshy task.
type Task struct {
	ID       string
	Status   string
	Progress int
	// ModelURL is the GLB result URL, set once the task succeeds.
	ModelURL string
	// Error carries the task-level failure message for FAILED tasks.
	Error string
}

// Terminal reports whether the task has reached a final state.
func (t *Task) Terminal() bool {
	return t.Status == StatusSucceeded || t.Status == StatusFailed
}

// Client is an HTTP client for the Meshy API. The API key and base URL are
// injected at construction; tests point baseURL at an httptest server.
type Client struct {
	apiKey  string
	baseURL string
	httpc   *http.Client
}

// NewClient creates a Meshy client. An empty baseURL selects production.
func NewClient(apiKey, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: 30 * time.Second},
	}
}

// createResponse is the envelope for task-creation calls.
type createResponse struct {
	Result string `json:"result"`
}

// taskResponse is the wire shape of a task status query.
type taskResponse struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Progress  int    `json:"progress"`
	ModelURLs struct {
		GLB string `json:"glb"`
	} `json:"model_urls"`
	TaskError struct {
		Message string `json:"message"`
	} `json:"task_error"`
}

// CreateTextTo3D starts a preview-mode text-to-3D generation task and
// returns its id. The low polycount and quad topology keep the result in
// the papercraft-ornament register the viewer expects.
func (c *Client) CreateTextTo3D(ctx context.Context, prompt string) (string, error) {
	payload := map[string]any{
		"ai_model":         "meshy-5",
		"prompt":           prompt,
		"mode":             "preview",
		"topology":         "quad",
		"target_polycount": 100,
	}
	id, err := c.create(ctx, "/openapi/v2/text-to-3d", payload)
	if err != nil {
		return "", err
	}
	log.Info().Str("taskId", id).Msg("Text-to-3D generation task created")
	return id, nil
}

// CreateRetexture starts a retexture task refining a previously generated
// model, reusing the generation prompt as the texture style prompt.
func (c *Client) CreateRetexture(ctx context.Context, modelURL, stylePrompt string) (string, error) {
	payload := map[string]any{
		"model_url":          modelURL,
		"text_style_prompt":  stylePrompt,
		"enable_original_uv": true,
		"enable_pbr":         false,
	}
	id, err := c.create(ctx, "/openapi/v1/retexture", payload)
	if err != nil {
		return "", err
	}
	log.Info().Str("taskId", id).Msg("Retexture task created")
	return id, nil
}

func (c *Client) create(ctx context.Context, path string, payload map[string]any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", apiError(path, resp)
	}

	var out createResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode create response: %w", err)
	}
	if out.Result == "" {
		return "", fmt.Errorf("POST %s: response carried no task id", path)
	}
	return out.Result, nil
}

// GetTask fetches the current status of a task.
func (c *Client) GetTask(ctx context.Context, kind TaskKind, id string) (*Task, error) {
	path := c.taskPath(kind, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apiError(path, resp)
	}

	var out taskResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode task response: %w", err)
	}

	task := &Task{
		ID:       id,
		Status:   normalizeStatus(out.Status),
		Progress: out.Progress,
		ModelURL: out.ModelURLs.GLB,
		Error:    out.TaskError.Message,
	}
	log.Debug().
		Str("taskId", id).
		Str("kind", string(kind)).
		Str("status", task.Status).
		Int("progress", task.Progress).
		Msg("Task status polled")
	return task, nil
}

func (c *Client) taskPath(kind TaskKind, id string) string {
	switch kind {
	case KindTextTo3D:
		return "/openapi/v2/text-to-3d/" + id
	default:
		return fmt.Sprintf("/openapi/v1/%s/%s", kind, id)
	}
}

func normalizeStatus(s string) string {
	switch s {
	case "COMPLETED":
		return StatusSucceeded
	case "ERROR":
		return StatusFailed
	}
	return s
}

func apiError(path string, resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("%s: status %d: %s", path, resp.StatusCode, bytes.TrimSpace(snippet))
}
