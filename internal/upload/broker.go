// Package upload brokers direct-to-bucket media uploads: it verifies the
// guest's token and hands out a short-lived signed upload location.
package upload

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"wedding-site/internal/apperr"
	"wedding-site/internal/metrics"
)

const (
	MsgFileNameRequired = "fileName is required"
	MsgSignFailed       = "Failed to create signed upload url."

	DefaultURLTTL = 2 * time.Hour

	signatureParam = "X-Amz-Signature"
)

// Presigner issues signed upload URLs.
type Presigner interface {
	PresignPut(ctx context.Context, key string, ttl time.Duration) (*url.URL, error)
}

type TargetRequest struct {
	Folder      string `json:"folder"`
	GuestID     string `json:"guestId"`
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
}

// Target is a signed upload location.
type Target struct {
	Bucket    string `json:"bucket"`
	Path      string `json:"path"`
	Token     string `json:"token"`
	SignedURL string `json:"signedUrl"`
}

type Broker struct {
	auth      Authenticator
	presigner Presigner
	bucket    string
	ttl       time.Duration
	now       func() time.Time
	newID     func() string
	log       zerolog.Logger
}

type BrokerOption func(*Broker)

// WithURLTTL sets how long signed URLs stay valid.
func WithURLTTL(ttl time.Duration) BrokerOption {
	return func(b *Broker) {
		if ttl > 0 {
			b.ttl = ttl
		}
	}
}

func WithBrokerClock(now func() time.Time) BrokerOption {
	return func(b *Broker) { b.now = now }
}

func WithIDGenerator(newID func() string) BrokerOption {
	return func(b *Broker) { b.newID = newID }
}

func WithBrokerLogger(log zerolog.Logger) BrokerOption {
	return func(b *Broker) { b.log = log }
}

// NewBroker creates a broker signing uploads into bucket
func NewBroker(auth Authenticator, presigner Presigner, bucket string, opts ...BrokerOption) *Broker {
	b := &Broker{
		auth:      auth,
		presigner: presigner,
		bucket:    bucket,
		ttl:       DefaultURLTTL,
		now:       time.Now,
		newID:     uuid.NewString,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// CreateUploadTarget authenticates token and returns a signed location for
// the requested file. The request body is only looked at once the caller is
// authenticated.
func (b *Broker) CreateUploadTarget(ctx context.Context, token string, req TargetRequest) (*Target, error) {
	ident, err := b.auth.Authenticate(ctx, token)
	if err != nil {
		metrics.UploadTargets.WithLabelValues("unauthorized").Inc()
		return nil, err
	}

	// A blank but present name still gets a target, without an extension.
	if req.FileName == "" {
		metrics.UploadTargets.WithLabelValues("invalid").Inc()
		return nil, apperr.Validation(MsgFileNameRequired)
	}

	ext := Extension(strings.TrimSpace(req.FileName))
	path := BuildPath(req.Folder, req.GuestID, ext, b.now(), b.newID())

	signed, err := b.presigner.PresignPut(ctx, path, b.ttl)
	if err != nil {
		b.log.Error().Err(err).Str("path", path).Msg("Failed to presign upload")
		metrics.UploadTargets.WithLabelValues("failed").Inc()
		return nil, apperr.Upstream(MsgSignFailed, err)
	}

	b.log.Debug().Str("subject", ident.Subject).Str("path", path).Msg("Issued upload target")
	metrics.UploadTargets.WithLabelValues("ok").Inc()

	return &Target{
		Bucket:    b.bucket,
		Path:      path,
		Token:     signed.Query().Get(signatureParam),
		SignedURL: signed.String(),
	}, nil
}
