package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wedding-site/internal/upload"
)

const jwtSecret = "handler-test-secret-handler-test-secret"

type recordingPresigner struct {
	keys []string
}

func (p *recordingPresigner) PresignPut(ctx context.Context, key string, ttl time.Duration) (*url.URL, error) {
	p.keys = append(p.keys, key)
	return url.Parse("https://storage.example.com/wedding-media/" + key + "?X-Amz-Signature=abc123")
}

func newUploadHandler(p *recordingPresigner) http.Handler {
	broker := upload.NewBroker(upload.NewJWTAuthenticator(jwtSecret), p, "wedding-media")
	return NewUploadHandler(broker, "https://wedding.example.com", zerolog.Nop())
}

func bearer(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := upload.IssueToken(jwtSecret, upload.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "guest-1", ExpiresAt: jwt.NewNumericDate(exp)},
	})
	require.NoError(t, err)
	return "Bearer " + tok
}

func postUpload(h http.Handler, auth, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/upload-media", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestUploadHandler_Success(t *testing.T) {
	p := &recordingPresigner{}
	rec := postUpload(newUploadHandler(p), bearer(t, time.Now().Add(time.Hour)),
		`{"folder":"posts","guestId":"guest-1","fileName":"party.jpg","contentType":"image/jpeg"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, p.keys, 1)
	assert.True(t, strings.HasPrefix(p.keys[0], "posts/guest-1/"))
	assert.True(t, strings.HasSuffix(p.keys[0], ".jpg"))
	assert.Contains(t, rec.Body.String(), `"bucket":"wedding-media"`)
	assert.Contains(t, rec.Body.String(), `"token":"abc123"`)
	assert.Contains(t, rec.Body.String(), `"signedUrl":"https://storage.example.com/wedding-media/posts/guest-1/`)
}

func TestUploadHandler_ExpiredToken(t *testing.T) {
	p := &recordingPresigner{}
	rec := postUpload(newUploadHandler(p), bearer(t, time.Now().Add(-time.Minute)), `{"fileName":"party.jpg"}`)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Invalid or expired access token."}`, rec.Body.String())
	assert.Empty(t, p.keys)
}

func TestUploadHandler_MissingToken(t *testing.T) {
	p := &recordingPresigner{}
	rec := postUpload(newUploadHandler(p), "", `not json`)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Missing Authorization header."}`, rec.Body.String())
	assert.Empty(t, p.keys)
}

func TestUploadHandler_MissingFileName(t *testing.T) {
	p := &recordingPresigner{}
	rec := postUpload(newUploadHandler(p), bearer(t, time.Now().Add(time.Hour)), `{"folder":"posts"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"fileName is required"}`, rec.Body.String())
	assert.Empty(t, p.keys)
}

func TestUploadHandler_Preflight(t *testing.T) {
	h := newUploadHandler(&recordingPresigner{})

	req := httptest.NewRequest(http.MethodOptions, "/upload-media", nil)
	req.Header.Set("Origin", "https://wedding.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "authorization,content-type")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://wedding.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "86400", rec.Header().Get("Access-Control-Max-Age"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/upload-media", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestUploadHandler_MethodNotAllowed(t *testing.T) {
	rec := httptest.NewRecorder()
	newUploadHandler(&recordingPresigner{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/upload-media", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.JSONEq(t, `{"error":"Method not allowed"}`, rec.Body.String())
}
