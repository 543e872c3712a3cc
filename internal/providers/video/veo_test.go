package video

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVeoClient(t *testing.T, handler http.Handler) *VeoClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewVeoClient("test-key", srv.URL, srv.Client(), zerolog.Nop())
	c.PollInterval = 5 * time.Millisecond
	c.PollTimeout = time.Second
	return c
}

func TestVeoHappyPath(t *testing.T) {
	video := []byte("veo-mp4")
	mux := http.NewServeMux()
	mux.HandleFunc("POST /models/"+veoModel+":predictLongRunning", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))

		var payload struct {
			Instances []struct {
				Prompt string         `json:"prompt"`
				Image  map[string]any `json:"image"`
			} `json:"instances"`
			Parameters map[string]any `json:"parameters"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		require.Len(t, payload.Instances, 1)
		assert.Contains(t, payload.Instances[0].Prompt, "a lighthouse at dusk")
		assert.Contains(t, payload.Instances[0].Prompt, "Cinematic style")
		assert.NotEmpty(t, payload.Instances[0].Image["bytesBase64Encoded"])
		assert.Equal(t, "16:9", payload.Parameters["aspectRatio"])

		json.NewEncoder(w).Encode(map[string]any{"name": "operations/op-1", "done": false})
	})
	mux.HandleFunc("GET /operations/op-1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"name": "operations/op-1",
			"done": true,
			"response": map[string]any{
				"generateVideoResponse": map[string]any{
					"generatedSamples": []map[string]any{
						{"video": map[string]any{"video": base64.StdEncoding.EncodeToString(video)}},
					},
				},
			},
		})
	})

	c := newTestVeoClient(t, mux)
	res, err := c.CreateVideoFromImage(context.Background(), GenerateRequest{
		ImagePath: writeTestImage(t),
		Prompt:    "a lighthouse at dusk",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, video, res.Output)
	assert.Contains(t, res.Metrics, "generation_time")
}

func TestVeoOperationError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /models/"+veoModel+":predictLongRunning", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"name": "operations/op-1",
			"done": true,
			"error": map[string]any{
				"code":    3,
				"message": "prompt violates usage policy",
			},
		})
	})

	c := newTestVeoClient(t, mux)
	res, err := c.CreateVideoFromImage(context.Background(), GenerateRequest{ImagePath: writeTestImage(t)})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Contains(t, res.Error, "prompt violates usage policy")
}

func TestVeoNoSamples(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /models/"+veoModel+":predictLongRunning", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"name": "operations/op-1", "done": true})
	})

	c := newTestVeoClient(t, mux)
	res, err := c.CreateVideoFromImage(context.Background(), GenerateRequest{ImagePath: writeTestImage(t)})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Contains(t, res.Error, "no results")
}

func TestVeoFinalPromptSkipsNoneKeywords(t *testing.T) {
	c := &VeoClient{}
	out := c.finalPrompt(GenerateRequest{
		Prompt: "a quiet street",
		Parameters: map[string]any{
			"camera_motion":           "Pan (left)",
			"subject_animation":       "none",
			"environmental_animation": "None",
		},
	})
	assert.Contains(t, out, "Pan (left)")
	assert.NotContains(t, out, "none")
	assert.NotContains(t, out, "None")
}
