// Package rsvp implements the RSVP gateway: input normalization, the
// response store contract, the host dashboard summaries and an HTTP client.
package rsvp

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"wedding-site/internal/apperr"
	"wedding-site/internal/metrics"
	"wedding-site/internal/models"
)

// Guest-facing messages.
const (
	MsgNameRequired = "Your name is required"
	MsgLoadFailed   = "Unable to load responses"
	MsgSubmitFailed = "Unable to submit your RSVP right now"
)

// Repository is the part of the hosted store the gateway needs.
type Repository interface {
	ListResponses(ctx context.Context) ([]models.Response, error)
	InsertResponse(ctx context.Context, r *models.Response) error
}

// Notifier is told about every stored response.
type Notifier interface {
	NotifyResponse(ctx context.Context, r models.Response) error
}

// Input is a raw RSVP submission. Fields are kept loosely typed so a
// sloppy client still gets its submission normalized instead of rejected.
type Input struct {
	Name       json.RawMessage `json:"name"`
	Status     json.RawMessage `json:"status"`
	Message    json.RawMessage `json:"message"`
	GuestCount json.RawMessage `json:"guestCount"`
	GuestNames json.RawMessage `json:"guestNames"`
}

// Submission is the typed form of Input used by Go callers.
type Submission struct {
	Name       string            `json:"name"`
	Status     models.RSVPStatus `json:"status,omitempty"`
	Message    string            `json:"message,omitempty"`
	GuestCount int               `json:"guestCount,omitempty"`
	GuestNames []string          `json:"guestNames,omitempty"`
}

// Input converts s to its wire form.
func (s Submission) Input() Input {
	in := Input{}
	in.Name, _ = json.Marshal(s.Name)
	in.Status, _ = json.Marshal(string(s.Status))
	in.Message, _ = json.Marshal(s.Message)
	in.GuestCount, _ = json.Marshal(s.GuestCount)
	in.GuestNames, _ = json.Marshal(s.GuestNames)
	return in
}

type Service struct {
	repo     Repository
	notifier Notifier
	now      func() time.Time
	log      zerolog.Logger
}

type Option func(*Service)

// WithNotifier sets the notifier told about new responses.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithClock overrides the submission timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the service logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Service) { s.log = log }
}

// NewService creates a gateway service over repo
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
		log:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns every response, newest first.
func (s *Service) List(ctx context.Context) ([]models.Response, error) {
	responses, err := s.repo.ListResponses(ctx)
	if err != nil {
		return nil, apperr.Upstream(MsgLoadFailed, err)
	}
	if responses == nil {
		responses = []models.Response{}
	}
	return responses, nil
}

// Normalize validates in and builds the row that Submit would store.
func (s *Service) Normalize(in Input) (*models.Response, error) {
	name := strings.TrimSpace(stringValue(in.Name))
	if name == "" {
		return nil, apperr.Validation(MsgNameRequired)
	}

	return &models.Response{
		Name:       name,
		Status:     NormalizeStatus(stringValue(in.Status)),
		Message:    TruncateMessage(stringValue(in.Message)),
		GuestCount: ParseGuestCount(in.GuestCount),
		GuestNames: CombineGuestNames(name, stringList(in.GuestNames)),
		CreatedAt:  s.now(),
	}, nil
}

// Submit normalizes and stores a response. Hosts are notified on a best
// effort basis; a notification failure does not fail the submission.
func (s *Service) Submit(ctx context.Context, in Input) (*models.Response, error) {
	r, err := s.Normalize(in)
	if err != nil {
		return nil, err
	}

	if err := s.repo.InsertResponse(ctx, r); err != nil {
		return nil, apperr.Upstream(MsgSubmitFailed, err)
	}

	metrics.RSVPSubmissions.WithLabelValues(string(r.Status)).Inc()
	s.log.Info().
		Int64("id", r.ID).
		Str("status", string(r.Status)).
		Int("guest_count", r.GuestCount).
		Msg("RSVP stored")

	if s.notifier != nil {
		if err := s.notifier.NotifyResponse(ctx, *r); err != nil {
			s.log.Warn().Err(err).Int64("id", r.ID).Msg("Failed to notify hosts")
		}
	}
	return r, nil
}
