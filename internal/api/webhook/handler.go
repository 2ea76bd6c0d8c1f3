// Package webhook exposes the billing platform callback endpoint.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/subtrack/internal/ingest"
)

// MaxBodyBytes caps a webhook payload.
const MaxBodyBytes = 1 << 20

// Ingestor records one webhook payload.
type Ingestor interface {
	Ingest(ctx context.Context, raw []byte, contentType string) (*ingest.Result, error)
}

// Handler serves POST /gc/webhook.
type Handler struct {
	ingestor Ingestor
}

// NewHandler creates a webhook handler.
func NewHandler(ingestor Ingestor) *Handler {
	return &Handler{ingestor: ingestor}
}

type errorBody struct {
	Status string `json:"status"`
	Detail string `json:"detail"`
}

// ServeHTTP answers 200 for accepted and ignored payloads alike; only a
// store failure or an oversized body is reported as an HTTP error.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Status: "error", Detail: "payload too large"})
			return
		}
		log.Warn().Err(err).Msg("webhook: read body")
		writeJSON(w, http.StatusBadRequest, errorBody{Status: "error", Detail: "unreadable body"})
		return
	}

	res, err := h.ingestor.Ingest(r.Context(), raw, r.Header.Get("Content-Type"))
	if err != nil {
		log.Error().Err(err).Str("request_id", chimw.GetReqID(r.Context())).Msg("webhook: ingest failed")
		writeJSON(w, http.StatusInternalServerError, errorBody{Status: "error", Detail: "event store unavailable"})
		return
	}

	if res.Status == ingest.StatusIgnored {
		log.Info().Str("received_event", derefOr(res.ReceivedEvent, "")).Msg("webhook: ignored payload")
	}

	writeJSON(w, http.StatusOK, res)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Debug().Err(err).Msg("webhook: write response")
	}
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}
