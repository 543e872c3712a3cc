package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vividflow/internal/safety"
)

type failingEnhancer struct{}

func (failingEnhancer) Enhance(ctx context.Context, original string) (string, error) {
	return "", errors.New("llm unavailable")
}

func servePrompts(app *App, req *http.Request) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Post("/prompt/enhance", app.EnhancePrompt)
	r.Post("/prompt/check", app.CheckPrompt)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestEnhancePrompt(t *testing.T) {
	app := newTestApp(&stubService{})
	req := httptest.NewRequest(http.MethodPost, "/prompt/enhance",
		strings.NewReader(`{"prompt":"a cat"}`))
	rec := servePrompts(app, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "a cat", resp["original_prompt"])
	assert.Equal(t, "enhanced prompt", resp["enhanced_prompt"])
}

func TestEnhancePromptUpstreamFailure(t *testing.T) {
	app := NewApp(&stubService{}, failingEnhancer{}, safety.NewChecker(), zerolog.Nop())
	req := httptest.NewRequest(http.MethodPost, "/prompt/enhance",
		strings.NewReader(`{"prompt":"a cat"}`))
	rec := servePrompts(app, req)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestEnhancePromptRejectsEmpty(t *testing.T) {
	app := newTestApp(&stubService{})
	req := httptest.NewRequest(http.MethodPost, "/prompt/enhance", strings.NewReader(`{}`))
	rec := servePrompts(app, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckPromptReturnsReport(t *testing.T) {
	app := newTestApp(&stubService{})
	req := httptest.NewRequest(http.MethodPost, "/prompt/check",
		strings.NewReader(`{"prompt":"mickey mouse robbing a bank"}`))
	rec := servePrompts(app, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var report safety.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.False(t, report.Safe)
	assert.Equal(t, safety.RiskHigh, report.RiskLevel)
}
