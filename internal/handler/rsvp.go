package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"wedding-site/internal/models"
	"wedding-site/internal/rsvp"
)

const maxRSVPBody = 64 << 10

// RSVPService is the gateway logic behind /api/rsvp.
type RSVPService interface {
	List(ctx context.Context) ([]models.Response, error)
	Submit(ctx context.Context, in rsvp.Input) (*models.Response, error)
}

type RSVPHandler struct {
	svc RSVPService
	log zerolog.Logger
}

// NewRSVPHandler creates the RSVP gateway handler
func NewRSVPHandler(svc RSVPService, log zerolog.Logger) *RSVPHandler {
	return &RSVPHandler{
		svc: svc,
		log: log.With().Str("component", "RSVPHandler").Logger(),
	}
}

func (h *RSVPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPost:
		h.submit(w, r)
	default:
		w.Header().Set("Allow", "GET,POST")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

func (h *RSVPHandler) list(w http.ResponseWriter, r *http.Request) {
	responses, err := h.svc.List(r.Context())
	if err != nil {
		writeAppError(w, h.log, err, rsvp.MsgLoadFailed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"responses": responses})
}

func (h *RSVPHandler) submit(w http.ResponseWriter, r *http.Request) {
	var in rsvp.Input
	// Malformed bodies are treated as empty ones.
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRSVPBody)).Decode(&in); err != nil {
		in = rsvp.Input{}
	}

	if _, err := h.svc.Submit(r.Context(), in); err != nil {
		writeAppError(w, h.log, err, rsvp.MsgSubmitFailed)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]bool{"ok": true})
}

// Stats serves the dashboard summary.
func (h *RSVPHandler) Stats(w http.ResponseWriter, r *http.Request) {
	responses, err := h.svc.List(r.Context())
	if err != nil {
		writeAppError(w, h.log, err, rsvp.MsgLoadFailed)
		return
	}
	writeJSON(w, http.StatusOK, rsvp.Summarize(responses))
}

// Export serves the filtered responses as a CSV attachment.
func (h *RSVPHandler) Export(w http.ResponseWriter, r *http.Request) {
	responses, err := h.svc.List(r.Context())
	if err != nil {
		writeAppError(w, h.log, err, rsvp.MsgLoadFailed)
		return
	}

	q := r.URL.Query()
	responses = rsvp.Filter(responses, q.Get("status"), q.Get("q"))

	w.Header().Set("Content-Type", "text/csv;charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "rsvp-responses.csv"))
	w.WriteHeader(http.StatusOK)
	if err := rsvp.WriteCSV(w, responses); err != nil {
		h.log.Warn().Err(err).Msg("Failed to write CSV export")
	}
}
