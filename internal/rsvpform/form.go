// Package rsvpform is the guest-side RSVP form: field state, local
// validation and the submit round trip to the gateway.
package rsvpform

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"wedding-site/internal/models"
	"wedding-site/internal/rsvp"
)

const (
	MaxPartySize      = 8
	MsgNameRequired   = "Please enter your name."
	MsgAlreadySending = "Your RSVP is already being sent."
)

// State is where the form is in its lifecycle.
type State int

const (
	Editing State = iota
	Submitting
	Submitted
)

func (s State) String() string {
	switch s {
	case Submitting:
		return "submitting"
	case Submitted:
		return "submitted"
	default:
		return "editing"
	}
}

// Submitter sends a submission to the gateway. *rsvp.Client satisfies it.
type Submitter interface {
	Submit(ctx context.Context, s rsvp.Submission) error
}

// Snapshot is what the guest sent, kept for the confirmation screen.
type Snapshot struct {
	Name       string            `json:"name"`
	GuestCount int               `json:"guestCount"`
	AllGuests  []string          `json:"allGuests"`
	Status     models.RSVPStatus `json:"status"`
	Message    string            `json:"message"`
}

// Title is the confirmation heading for the status.
func (s Snapshot) Title() string {
	switch s.Status {
	case models.RSVPYes:
		return "See You There!"
	case models.RSVPNo:
		return "Thank You!"
	default:
		return "Got It!"
	}
}

// Greeting addresses the guest by first name and mentions the party.
func (s Snapshot) Greeting() string {
	first := s.Name
	if i := strings.IndexByte(first, ' '); i >= 0 {
		first = first[:i]
	}
	switch {
	case s.GuestCount <= 1:
		return "Dear " + first + ","
	case s.GuestCount == 2:
		return "Dear " + first + " and your guest,"
	default:
		return "Dear " + first + " and your " + strconv.Itoa(s.GuestCount-1) + " guests,"
	}
}

// StatusMessage is the closing line for the status.
func (s Snapshot) StatusMessage() string {
	switch s.Status {
	case models.RSVPYes:
		return "We can't wait to celebrate with you!"
	case models.RSVPNo:
		return "We'll miss you, but we appreciate you letting us know."
	default:
		return "We hope to see you there! Let us know when you've decided."
	}
}

// View is a copy of the form fields.
type View struct {
	State      State
	Name       string
	GuestCount int
	GuestNames []string
	Status     models.RSVPStatus
	Message    string
	Error      string
	Snapshot   *Snapshot
}

// Form holds one guest's RSVP while it is filled in and sent.
type Form struct {
	log zerolog.Logger

	mu         sync.Mutex
	state      State
	name       string
	guestCount int
	// guestNames holds the extra guests, always guestCount-1 entries.
	guestNames []string
	status     models.RSVPStatus
	message    string
	err        string
	snapshot   *Snapshot
}

func NewForm(log zerolog.Logger) *Form {
	f := &Form{log: log.With().Str("component", "RSVPForm").Logger()}
	f.reset()
	return f
}

func (f *Form) reset() {
	f.state = Editing
	f.name = ""
	f.guestCount = 1
	f.guestNames = []string{}
	f.status = models.RSVPYes
	f.message = ""
	f.err = ""
	f.snapshot = nil
}

func (f *Form) SetName(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.name = name
}

// SetGuestCount sets the party size, clamped to [1, MaxPartySize], and
// grows or shrinks the extra name slots to match.
func (f *Form) SetGuestCount(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n = max(1, min(n, MaxPartySize))
	f.guestCount = n
	for len(f.guestNames) < n-1 {
		f.guestNames = append(f.guestNames, "")
	}
	f.guestNames = f.guestNames[:n-1]
}

// SetGuestName fills the i-th extra guest slot. Out of range slots are
// ignored.
func (f *Form) SetGuestName(i int, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i < 0 || i >= len(f.guestNames) {
		return
	}
	f.guestNames[i] = name
}

func (f *Form) SetStatus(s models.RSVPStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s.Valid() {
		f.status = s
	}
}

// SetMessage stores the note, cut to rsvp.MaxMessageLength characters.
func (f *Form) SetMessage(msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if runes := []rune(msg); len(runes) > rsvp.MaxMessageLength {
		msg = string(runes[:rsvp.MaxMessageLength])
	}
	f.message = msg
}

func (f *Form) View() View {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := View{
		State:      f.state,
		Name:       f.name,
		GuestCount: f.guestCount,
		GuestNames: append([]string(nil), f.guestNames...),
		Status:     f.status,
		Message:    f.message,
		Error:      f.err,
	}
	if f.snapshot != nil {
		snap := *f.snapshot
		snap.AllGuests = append([]string(nil), snap.AllGuests...)
		v.Snapshot = &snap
	}
	return v
}

// Submit validates the form and sends it. A blank name fails before any
// request is made. On success the form moves to Submitted and keeps a
// Snapshot; on failure it returns to Editing with the gateway's message.
func (f *Form) Submit(ctx context.Context, s Submitter) error {
	f.mu.Lock()
	if f.state == Submitting {
		f.mu.Unlock()
		return errors.New(MsgAlreadySending)
	}
	f.err = ""
	name := strings.TrimSpace(f.name)
	if name == "" {
		f.err = MsgNameRequired
		f.mu.Unlock()
		return errors.New(MsgNameRequired)
	}

	extras := make([]string, 0, len(f.guestNames))
	for _, n := range f.guestNames {
		if n = strings.TrimSpace(n); n != "" {
			extras = append(extras, n)
		}
	}
	sub := rsvp.Submission{
		Name:       name,
		Status:     f.status,
		Message:    strings.TrimSpace(f.message),
		GuestCount: f.guestCount,
		GuestNames: extras,
	}
	f.state = Submitting
	f.mu.Unlock()

	err := s.Submit(ctx, sub)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		f.log.Error().Err(err).Msg("RSVP submission failed")
		f.state = Editing
		f.err = errorMessage(err)
		return err
	}

	f.state = Submitted
	f.snapshot = &Snapshot{
		Name:       sub.Name,
		GuestCount: sub.GuestCount,
		AllGuests:  append([]string{sub.Name}, extras...),
		Status:     sub.Status,
		Message:    sub.Message,
	}
	f.log.Info().Str("name", sub.Name).Str("status", string(sub.Status)).Msg("RSVP submitted")
	return nil
}

// SubmitAnother clears the form back to its defaults.
func (f *Form) SubmitAnother() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reset()
}

func errorMessage(err error) string {
	var reqErr *rsvp.RequestError
	if errors.As(err, &reqErr) && reqErr.Message != "" {
		return reqErr.Message
	}
	return rsvp.DefaultErrorMessage
}
