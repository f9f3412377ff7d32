package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/kestrelworks/folio/internal/llm"
	"github.com/kestrelworks/folio/internal/source"
)

// FragmentEvent is the payload of an SSE "fragment" event. Provider fields
// carry the provenance of the model that produced the text.
type FragmentEvent struct {
	Fragment      string `json:"fragment"`
	ProviderModel string `json:"providerModel"`
	ProviderName  string `json:"providerName"`
}

// handleAnalysisStream streams a model-written analysis of a symbol as
// Server-Sent Events. Each text fragment is flushed as it arrives; the
// stream ends with a single "done" or "error" event.
func (s *Server) handleAnalysisStream(w http.ResponseWriter, r *http.Request) {
	symbol := symbolParam(r)
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	chunks, err := s.svc.Analyze(r.Context(), symbol, cryptoFlag(r))
	if err != nil {
		switch {
		case errors.Is(err, llm.ErrNoProviders):
			writeError(w, http.StatusServiceUnavailable, "no language models configured")
		case errors.Is(err, source.ErrNoData):
			writeError(w, http.StatusNotFound, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	streamID := uuid.NewString()
	log.Debug().Str("stream", streamID).Str("symbol", symbol).Msg("analysis stream started")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for chunk := range chunks {
		switch {
		case chunk.Err != nil:
			log.Warn().Str("stream", streamID).Err(chunk.Err).Msg("analysis stream failed")
			sendEvent(w, flusher, "error", map[string]string{
				"id":    streamID,
				"error": chunk.Err.Error(),
			})
			return
		case chunk.Done:
			log.Debug().Str("stream", streamID).Msg("analysis stream finished")
			sendEvent(w, flusher, "done", map[string]string{"id": streamID})
			return
		default:
			sendEvent(w, flusher, "fragment", FragmentEvent{
				Fragment:      chunk.Text,
				ProviderModel: chunk.Model,
				ProviderName:  chunk.Provider,
			})
		}
	}
}

// sendEvent writes a single SSE event and flushes it so fragments reach the
// client as they arrive.
func sendEvent(w io.Writer, flusher http.Flusher, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode SSE payload")
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	flusher.Flush()
}
