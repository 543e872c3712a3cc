package video

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"vividflow/internal/domain"
	"vividflow/internal/infra"
)

const veoModel = "veo-3.1-fast-generate-001"

// VeoClient drives Google's Veo image-to-video model through the
// generative language REST API. Generation is a long-running operation
// polled until done.
type VeoClient struct {
	apiKey  string
	baseURL string
	httpCli *http.Client
	logger  infra.Logger

	PollInterval time.Duration
	PollTimeout  time.Duration
}

// NewVeoClient creates a Veo client against the given API base URL.
func NewVeoClient(apiKey, baseURL string, httpCli *http.Client, logger infra.Logger) *VeoClient {
	return &VeoClient{
		apiKey:       apiKey,
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpCli:      httpCli,
		logger:       logger,
		PollInterval: 5 * time.Second,
		PollTimeout:  10 * time.Minute,
	}
}

type veoOperation struct {
	Name  string `json:"name"`
	Done  bool   `json:"done"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Response struct {
		GenerateVideoResponse struct {
			GeneratedSamples []struct {
				Video struct {
					VideoBytes string `json:"video"`
					URI        string `json:"uri"`
				} `json:"video"`
			} `json:"generatedSamples"`
		} `json:"generateVideoResponse"`
	} `json:"response"`
}

// CreateVideoFromImage starts a Veo operation with the image inlined as
// base64 and polls it to completion. Keyword parameters (camera motion,
// subject and environmental animation) are folded into the prompt the way
// the model expects.
func (c *VeoClient) CreateVideoFromImage(ctx context.Context, req GenerateRequest) (*Result, error) {
	imageData, err := os.ReadFile(req.ImagePath)
	if err != nil {
		return &Result{Status: StatusFailed, Error: fmt.Sprintf("image file not found: %s", req.ImagePath)}, nil
	}

	mimeType := mime.TypeByExtension(filepath.Ext(req.ImagePath))
	if mimeType == "" {
		mimeType = "image/png"
	}

	payload := map[string]any{
		"instances": []map[string]any{{
			"prompt": c.finalPrompt(req),
			"image": map[string]any{
				"bytesBase64Encoded": base64.StdEncoding.EncodeToString(imageData),
				"mimeType":           mimeType,
			},
		}},
		"parameters": map[string]any{
			"aspectRatio":      "16:9",
			"sampleCount":      1,
			"durationSeconds":  paramInt(req.Parameters, "duration_seconds", 4),
			"resolution":       "720p",
			"personGeneration": "allow_adult",
			"enhancePrompt":    paramBool(req.Parameters, "enhance_prompt", false),
			"generateAudio":    false,
		},
	}
	if req.NegativePrompt != "" {
		payload["parameters"].(map[string]any)["negativePrompt"] = req.NegativePrompt
	}

	start := time.Now()
	var op veoOperation
	url := fmt.Sprintf("%s/models/%s:predictLongRunning", c.baseURL, veoModel)
	if err := c.post(ctx, url, payload, &op); err != nil {
		return nil, fmt.Errorf("veo submit: %w", err)
	}
	c.logger.Info().Str("operation", op.Name).Msg("veo: generation started")

	deadline := time.Now().Add(c.PollTimeout)
	for !op.Done {
		if time.Now().After(deadline) {
			return &Result{Status: StatusFailed, Error: fmt.Sprintf("generation timed out after %s", c.PollTimeout)}, nil
		}
		timer := time.NewTimer(c.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		if err := c.get(ctx, fmt.Sprintf("%s/%s", c.baseURL, op.Name), &op); err != nil {
			return nil, fmt.Errorf("veo poll: %w", err)
		}
	}

	if op.Error != nil {
		return &Result{
			Status: StatusFailed,
			Error:  fmt.Sprintf("veo api error: %s (code %d)", op.Error.Message, op.Error.Code),
		}, nil
	}

	samples := op.Response.GenerateVideoResponse.GeneratedSamples
	if len(samples) == 0 || samples[0].Video.VideoBytes == "" {
		return &Result{Status: StatusFailed, Error: "video generation returned no results"}, nil
	}
	data, err := base64.StdEncoding.DecodeString(samples[0].Video.VideoBytes)
	if err != nil {
		return &Result{Status: StatusFailed, Error: fmt.Sprintf("decode video payload: %v", err)}, nil
	}

	return &Result{
		Status: StatusCompleted,
		Output: data,
		Metrics: map[string]float64{
			"generation_time": time.Since(start).Seconds(),
		},
	}, nil
}

// finalPrompt appends the cinematic keyword parameters unless the prompt
// already carries them.
func (c *VeoClient) finalPrompt(req GenerateRequest) string {
	var keywords []string
	for _, kw := range []string{
		paramString(req.Parameters, "camera_motion", "Tilt (up)"),
		paramString(req.Parameters, "subject_animation", "None"),
		paramString(req.Parameters, "environmental_animation", "Light intensity increases subtly"),
	} {
		if kw != "" && !strings.EqualFold(kw, "none") {
			keywords = append(keywords, kw)
		}
	}
	joined := strings.Join(keywords, ", ")
	if joined == "" || strings.Contains(req.Prompt, joined) {
		return req.Prompt
	}
	return fmt.Sprintf("%s. Cinematic style. Keywords: %s.", req.Prompt, joined)
}

func (c *VeoClient) post(ctx context.Context, url string, payload, out any) error {
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

func (c *VeoClient) get(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *VeoClient) do(req *http.Request, out any) error {
	req.Header.Set("x-goog-api-key", c.apiKey)
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

var _ Client = (*VeoClient)(nil)
