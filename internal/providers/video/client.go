package video

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"vividflow/internal/domain"
	"vividflow/internal/infra"
)

// Result statuses reported by generation back-ends.
const (
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
)

// GenerateRequest carries everything a back-end needs to turn one input
// image into a video. Parameters are backend-specific knobs; each client
// reads the keys it understands and ignores the rest.
type GenerateRequest struct {
	ImagePath      string
	Prompt         string
	NegativePrompt string
	Parameters     map[string]any
}

// Result is the normalized outcome of a generation call. Status is either
// StatusCompleted with Output bytes or StatusFailed with Error text.
type Result struct {
	Status  string
	Output  []byte
	Error   string
	Metrics map[string]float64
}

// Client is the contract the worker consumes. The call is synchronous from
// the caller's perspective and may block for minutes; implementations poll
// their remote jobs internally.
type Client interface {
	CreateVideoFromImage(ctx context.Context, req GenerateRequest) (*Result, error)
}

// Factory resolves a model-name string to a configured client.
type Factory interface {
	ClientFor(model string) (Client, error)
}

// ClientFactory builds the clients for the known models from configuration.
type ClientFactory struct {
	cfg     *infra.Config
	logger  infra.Logger
	httpCli *http.Client
}

// NewClientFactory creates a factory.
func NewClientFactory(cfg *infra.Config, logger infra.Logger) *ClientFactory {
	return &ClientFactory{
		cfg:    cfg,
		logger: logger,
		// Submission and status calls are short; the long wait happens
		// across many polls, not inside one request.
		httpCli: &http.Client{Timeout: 60 * time.Second},
	}
}

// ClientFor returns the client for the requested model.
func (f *ClientFactory) ClientFor(model string) (Client, error) {
	switch model {
	case "wan2.1":
		return NewWanClient(f.cfg.RunpodEndpointID, f.cfg.RunpodAPIKey, f.httpCli, f.logger), nil
	case "veo3.1":
		return NewVeoClient(f.cfg.GeminiAPIKey, f.cfg.GeminiBaseURL, f.httpCli, f.logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedModel, model)
	}
}

var _ Factory = (*ClientFactory)(nil)
