// Package api — configuration inspection endpoints.
package api

import (
	"net/http"

	"github.com/kestrelworks/folio/internal/config"
	"github.com/kestrelworks/folio/internal/llm"
)

// ConfigResponse is the JSON envelope returned by GET /api/v1/config.
// Model API keys are stripped; GET /api/v1/config/keys reports their
// status in masked form.
type ConfigResponse struct {
	Config *config.Config `json:"config"`
}

// handleGetConfig returns the active configuration with secrets removed.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	redacted := *s.cfg
	redacted.LLM.Models = make([]llm.Config, len(s.cfg.LLM.Models))
	for i, m := range s.cfg.LLM.Models {
		m.APIKey = ""
		redacted.LLM.Models[i] = m
	}

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    ConfigResponse{Config: &redacted},
	})
}

// handleGetConfigKeys reports which provider API keys are set and where
// they came from, with the key material masked.
func (s *Server) handleGetConfigKeys(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    config.CheckAPIKeys(s.cfg),
	})
}
