package prompt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"vividflow/internal/infra"
)

const enhanceSystemPrompt = "You are a cinematic prompt engineer. Your goal is to transform short, simple descriptions " +
	"into rich, detailed, and visually evocative prompts for an Image-to-Video AI model. " +
	"Focus on lighting, textures, camera movement, and atmosphere. Keep the result under 100 words. " +
	"Respond ONLY with the enhanced prompt text."

// GroqEnhancer calls Groq's OpenAI-compatible chat completions endpoint.
type GroqEnhancer struct {
	apiKey  string
	model   string
	baseURL string
	httpCli *http.Client
	logger  infra.Logger
}

// NewGroqEnhancer creates an enhancer for the given model.
func NewGroqEnhancer(apiKey, model, baseURL string, logger infra.Logger) *GroqEnhancer {
	return &GroqEnhancer{
		apiKey:  apiKey,
		model:   model,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpCli: &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Enhance sends the original prompt through the model and returns the
// rewritten text.
func (g *GroqEnhancer) Enhance(ctx context.Context, original string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "system", Content: enhanceSystemPrompt},
			{Role: "user", Content: "Enhance this prompt: " + original},
		},
		Temperature: 0.7,
		MaxTokens:   150,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpCli.Do(req)
	if err != nil {
		return "", fmt.Errorf("enhance request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("enhance request: unexpected status %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode enhance response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("enhance response has no choices")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

var _ Enhancer = (*GroqEnhancer)(nil)
