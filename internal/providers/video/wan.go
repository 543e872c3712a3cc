package video

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"vividflow/internal/domain"
	"vividflow/internal/infra"
)

// Wan 2.1 parameter defaults; callers override via the job's parameter map.
const (
	wanDefaultWidth  = 1280
	wanDefaultHeight = 720
	wanDefaultFrames = 121
	wanDefaultSteps  = 30
	wanDefaultSeed   = 42
	wanDefaultCFG    = 3.0
)

// WanClient talks to a RunPod serverless endpoint running the Wan 2.1
// image-to-video model. One generation is an async remote job: submit,
// then poll the status endpoint until it leaves the queue.
type WanClient struct {
	endpointID string
	apiKey     string
	baseURL    string
	httpCli    *http.Client
	logger     infra.Logger

	// PollInterval and PollTimeout bound the status polling; tests shrink
	// them.
	PollInterval time.Duration
	PollTimeout  time.Duration
}

// NewWanClient creates a client for the given RunPod endpoint.
func NewWanClient(endpointID, apiKey string, httpCli *http.Client, logger infra.Logger) *WanClient {
	return &WanClient{
		endpointID:   endpointID,
		apiKey:       apiKey,
		baseURL:      "https://api.runpod.ai/v2",
		httpCli:      httpCli,
		logger:       logger,
		PollInterval: 5 * time.Second,
		PollTimeout:  10 * time.Minute,
	}
}

// SetBaseURL points the client at a different API host; used by tests.
func (c *WanClient) SetBaseURL(u string) {
	c.baseURL = u
}

type wanSubmitResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type wanStatusResponse struct {
	ID            string          `json:"id"`
	Status        string          `json:"status"`
	Output        json.RawMessage `json:"output"`
	Error         string          `json:"error"`
	DelayTime     float64         `json:"delayTime"`
	ExecutionTime float64         `json:"executionTime"`
}

type wanOutput struct {
	VideoBase64 string `json:"video_base64"`
}

// CreateVideoFromImage submits the generation and blocks until the remote
// job finishes, times out, or ctx is cancelled. Backend rejections come
// back as a failed Result, not an error.
func (c *WanClient) CreateVideoFromImage(ctx context.Context, req GenerateRequest) (*Result, error) {
	imageData, err := os.ReadFile(req.ImagePath)
	if err != nil {
		return &Result{Status: StatusFailed, Error: fmt.Sprintf("image file not found: %s", req.ImagePath)}, nil
	}

	payload := map[string]any{
		"input": map[string]any{
			"prompt":          req.Prompt,
			"negative_prompt": req.NegativePrompt,
			"image_base64":    base64.StdEncoding.EncodeToString(imageData),
			"width":           paramInt(req.Parameters, "width", wanDefaultWidth),
			"height":          paramInt(req.Parameters, "height", wanDefaultHeight),
			"num_frames":      paramInt(req.Parameters, "length", wanDefaultFrames),
			"num_steps":       paramInt(req.Parameters, "steps", wanDefaultSteps),
			"seed":            paramInt(req.Parameters, "seed", wanDefaultSeed),
			"guidance_scale":  paramFloat(req.Parameters, "cfg", wanDefaultCFG),
		},
	}

	submittedAt := time.Now()
	var submitted wanSubmitResponse
	if err := c.post(ctx, fmt.Sprintf("%s/%s/run", c.baseURL, c.endpointID), payload, &submitted); err != nil {
		return nil, fmt.Errorf("runpod submit: %w", err)
	}
	c.logger.Info().Str("remote_job_id", submitted.ID).Msg("wan: generation submitted")

	return c.poll(ctx, submitted.ID, submittedAt)
}

func (c *WanClient) poll(ctx context.Context, remoteID string, submittedAt time.Time) (*Result, error) {
	deadline := time.Now().Add(c.PollTimeout)
	var startedAt time.Time

	for {
		if time.Now().After(deadline) {
			return &Result{Status: StatusFailed, Error: fmt.Sprintf("generation timed out after %s", c.PollTimeout)}, nil
		}

		var status wanStatusResponse
		if err := c.get(ctx, fmt.Sprintf("%s/%s/status/%s", c.baseURL, c.endpointID, remoteID), &status); err != nil {
			return nil, fmt.Errorf("runpod status: %w", err)
		}

		switch status.Status {
		case "IN_PROGRESS":
			if startedAt.IsZero() {
				startedAt = time.Now()
			}
		case "COMPLETED":
			if startedAt.IsZero() {
				startedAt = submittedAt
			}
			return c.finish(status, submittedAt, startedAt)
		case "FAILED", "CANCELLED", "TIMED_OUT":
			msg := status.Error
			if msg == "" {
				msg = fmt.Sprintf("remote job ended with status %s", status.Status)
			}
			return &Result{Status: StatusFailed, Error: msg}, nil
		}

		timer := time.NewTimer(c.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (c *WanClient) finish(status wanStatusResponse, submittedAt, startedAt time.Time) (*Result, error) {
	if len(status.Output) == 0 {
		return &Result{Status: StatusFailed, Error: "remote job completed without output"}, nil
	}

	// The worker returns either a bare base64 string or an object with a
	// video_base64 field, depending on the template version.
	var encoded string
	if err := json.Unmarshal(status.Output, &encoded); err != nil {
		var out wanOutput
		if err := json.Unmarshal(status.Output, &out); err != nil || out.VideoBase64 == "" {
			return &Result{Status: StatusFailed, Error: "unrecognized output payload"}, nil
		}
		encoded = out.VideoBase64
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return &Result{Status: StatusFailed, Error: fmt.Sprintf("decode video payload: %v", err)}, nil
	}

	now := time.Now()
	return &Result{
		Status: StatusCompleted,
		Output: data,
		Metrics: map[string]float64{
			"generation_time": now.Sub(startedAt).Seconds(),
			"spin_up_time":    startedAt.Sub(submittedAt).Seconds(),
			"total_time":      now.Sub(submittedAt).Seconds(),
		},
	}, nil
}

func (c *WanClient) post(ctx context.Context, url string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *WanClient) get(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *WanClient) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	resp, err := c.httpCli.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d: %s", domain.ErrProviderFailure, resp.StatusCode, truncate(string(body), 200))
	}
	return json.Unmarshal(body, out)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func paramInt(params map[string]any, key string, fallback int) int {
	if v, ok := params[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		}
	}
	return fallback
}

func paramFloat(params map[string]any, key string, fallback float64) float64 {
	if v, ok := params[key]; ok {
		switch n := v.(type) {
		case float64:
			return n
		case int:
			return float64(n)
		}
	}
	return fallback
}

func paramString(params map[string]any, key, fallback string) string {
	if v, ok := params[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func paramBool(params map[string]any, key string, fallback bool) bool {
	if v, ok := params[key].(bool); ok {
		return v
	}
	return fallback
}

var _ Client = (*WanClient)(nil)
