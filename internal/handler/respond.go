package handler

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"wedding-site/internal/apperr"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeAppError maps err to its status and guest-facing message. The
// cause is only logged.
func writeAppError(w http.ResponseWriter, log zerolog.Logger, err error, fallback string) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Msg("Request failed")
	}
	writeJSON(w, status, errorBody{Error: apperr.PublicMessage(err, fallback)})
}
