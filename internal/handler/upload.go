package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"wedding-site/internal/upload"
)

const maxUploadRequestBody = 16 << 10

// TargetCreator issues signed upload locations.
type TargetCreator interface {
	CreateUploadTarget(ctx context.Context, token string, req upload.TargetRequest) (*upload.Target, error)
}

type UploadHandler struct {
	broker TargetCreator
	log    zerolog.Logger
}

// NewUploadHandler returns the upload broker endpoint with CORS applied for
// allowedOrigin.
func NewUploadHandler(broker TargetCreator, allowedOrigin string, log zerolog.Logger) http.Handler {
	h := &UploadHandler{
		broker: broker,
		log:    log.With().Str("component", "UploadHandler").Logger(),
	}
	c := cors.New(cors.Options{
		AllowedOrigins: []string{allowedOrigin},
		AllowedMethods: []string{http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"authorization", "x-client-info", "apikey", "content-type"},
		MaxAge:         86400,
	})
	return c.Handler(h)
}

func (h *UploadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodPost:
	default:
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "Method not allowed"})
		return
	}

	var req upload.TargetRequest
	// Validation happens after authentication, so a bad body is not an error yet.
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUploadRequestBody)).Decode(&req); err != nil {
		req = upload.TargetRequest{}
	}

	token := upload.BearerToken(r.Header.Get("Authorization"))
	target, err := h.broker.CreateUploadTarget(r.Context(), token, req)
	if err != nil {
		writeAppError(w, h.log, err, upload.MsgSignFailed)
		return
	}
	writeJSON(w, http.StatusOK, target)
}
