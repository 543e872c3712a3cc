package handlers

import (
	"encoding/json"
	"net/http"
)

type promptRequest struct {
	Prompt string `json:"prompt" validate:"required,max=2000"`
}

// EnhancePrompt rewrites a short prompt into a cinematic one.
func (a *App) EnhancePrompt(w http.ResponseWriter, r *http.Request) {
	var req promptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if err := a.validate.Struct(req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	enhanced, err := a.Enhancer.Enhance(r.Context(), req.Prompt)
	if err != nil {
		a.error(w, http.StatusBadGateway, "enhance_failed", "prompt enhancement is unavailable")
		return
	}
	a.json(w, http.StatusOK, map[string]string{
		"original_prompt": req.Prompt,
		"enhanced_prompt": enhanced,
	})
}

// CheckPrompt runs the safety screen and returns the full report.
func (a *App) CheckPrompt(w http.ResponseWriter, r *http.Request) {
	var req promptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if err := a.validate.Struct(req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	a.json(w, http.StatusOK, a.Safety.CheckPrompt(req.Prompt))
}
