package handler

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"wedding-site/internal/models"
	"wedding-site/internal/rsvp"
	"wedding-site/internal/whatsapp"
)

// Sender delivers a text reply to a phone number.
type Sender interface {
	SendMessage(ctx context.Context, phoneNumber, message string) error
}

// Submitter stores an RSVP.
type Submitter interface {
	Submit(ctx context.Context, in rsvp.Input) (*models.Response, error)
}

type Config struct {
	WeddingDate     string
	WeddingLocation string
	BrideName       string
	GroomName       string
}

// ReplyHandler records RSVPs sent as chat replies ("yes", "no", "maybe")
// and confirms them to the guest.
type ReplyHandler struct {
	submitter Submitter
	sender    Sender
	config    *Config
	ignore    func(phone string) bool
	log       zerolog.Logger
}

// NewReplyHandler creates a reply handler. Messages from phones for which
// ignore returns true are skipped.
func NewReplyHandler(submitter Submitter, sender Sender, cfg *Config, ignore func(string) bool, log zerolog.Logger) *ReplyHandler {
	if ignore == nil {
		ignore = func(string) bool { return false }
	}
	return &ReplyHandler{
		submitter: submitter,
		sender:    sender,
		config:    cfg,
		ignore:    ignore,
		log:       log.With().Str("component", "ReplyHandler").Logger(),
	}
}

// HandleMessage processes an incoming chat message.
func (h *ReplyHandler) HandleMessage(ctx context.Context, msg whatsapp.IncomingMessage) error {
	if h.ignore(msg.Phone) {
		return nil
	}

	status, ok := ParseReply(msg.Text)
	if !ok {
		return nil
	}

	name := strings.TrimSpace(msg.PushName)
	if name == "" {
		name = "+" + msg.Phone
	}

	sub := rsvp.Submission{
		Name:       name,
		Status:     status,
		Message:    strings.TrimSpace(msg.Text),
		GuestCount: partySize(msg.Text),
	}
	stored, err := h.submitter.Submit(ctx, sub.Input())
	if err != nil {
		return fmt.Errorf("failed to record RSVP: %w", err)
	}

	h.log.Info().Str("phone", msg.Phone).Str("status", string(stored.Status)).Msg("RSVP recorded from chat")

	if err := h.sender.SendMessage(ctx, msg.Phone, h.confirmation(stored)); err != nil {
		return fmt.Errorf("failed to send confirmation: %w", err)
	}
	return nil
}

func (h *ReplyHandler) confirmation(r *models.Response) string {
	switch r.Status {
	case models.RSVPNo:
		return fmt.Sprintf(
			"Thank you for letting us know. We're sorry you won't be able to join us for the wedding of %s & %s.\n\n"+
				"We'll miss you! 💕",
			h.config.BrideName, h.config.GroomName,
		)
	case models.RSVPMaybe:
		return fmt.Sprintf(
			"Thanks %s! We've marked you as maybe for %s.\n\n"+
				"Reply YES or NO whenever you know. 💕",
			r.Name, h.config.WeddingDate,
		)
	default:
		return fmt.Sprintf(
			"🎉 Wonderful! We're so excited to celebrate with you!\n\n"+
				"We've confirmed %s for the wedding of %s & %s on %s at %s.\n\n"+
				"See you there! 💕",
			partyLabel(r.GuestCount), h.config.BrideName, h.config.GroomName,
			h.config.WeddingDate, h.config.WeddingLocation,
		)
	}
}

func partyLabel(n int) string {
	if n <= 1 {
		return "your attendance"
	}
	return fmt.Sprintf("a party of %d", n)
}

var (
	maybePhrases   = []string{"maybe", "not sure", "🤔"}
	declinePhrases = []string{"no", "nope", "decline", "declining", "not coming", "can't come", "won't come", "can't make it", "cannot", "❌"}
	acceptPhrases  = []string{"yes", "yep", "yeah", "accept", "accepting", "attending", "coming", "will come", "will be there", "✅"}

	wordRe   = regexp.MustCompile(`[\p{L}\p{N}']+|[^\s\p{L}\p{N}]`)
	numberRe = regexp.MustCompile(`\d+`)
)

// ParseReply reads an attendance answer from free text. Uncertain and
// negative phrases win over positive ones, so "not coming" is a decline.
func ParseReply(text string) (models.RSVPStatus, bool) {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return "", false
	}
	words := wordRe.FindAllString(text, -1)
	switch {
	case matches(text, words, maybePhrases):
		return models.RSVPMaybe, true
	case matches(text, words, declinePhrases):
		return models.RSVPNo, true
	case matches(text, words, acceptPhrases):
		return models.RSVPYes, true
	}
	return "", false
}

// matches checks single-word keywords against whole words and phrases
// against the text.
func matches(text string, words, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(kw, " ") {
			if strings.Contains(text, kw) {
				return true
			}
			continue
		}
		for _, w := range words {
			if w == kw {
				return true
			}
		}
	}
	return false
}

// partySize returns the first number in text, or 0 when there is none.
func partySize(text string) int {
	n, err := strconv.Atoi(numberRe.FindString(text))
	if err != nil {
		return 0
	}
	return n
}
