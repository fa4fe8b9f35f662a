package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/skip2/go-qrcode"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"wedding-site/internal/models"
)

// IncomingMessage is a text message received from a guest.
type IncomingMessage struct {
	Phone    string
	PushName string
	Text     string
}

// MessageHandler is called for every text message not sent by us.
type MessageHandler func(ctx context.Context, msg IncomingMessage) error

type Config struct {
	DataDir     string
	CountryCode string
	// HostPhones receive a notification for every RSVP.
	HostPhones []string
	BrideName  string
	GroomName  string
}

type Service struct {
	client         *whatsmeow.Client
	cfg            *Config
	log            zerolog.Logger
	messageHandler MessageHandler
}

// NewService opens the device store under cfg.DataDir and prepares a client
func NewService(ctx context.Context, cfg *Config, log zerolog.Logger) (*Service, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on", filepath.Join(cfg.DataDir, "whatsmeow.db"))
	container, err := sqlstore.New(ctx, "sqlite3", dsn, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}

	service := &Service{
		client: whatsmeow.NewClient(deviceStore, nil),
		cfg:    cfg,
		log:    log.With().Str("component", "WhatsApp").Logger(),
	}
	service.client.AddEventHandler(service.eventHandler)

	return service, nil
}

// NormalizePhoneNumber strips formatting and rewrites a national number
// (leading 0) into international form using countryCode.
func NormalizePhoneNumber(phoneNumber, countryCode string) string {
	phoneNumber = strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, phoneNumber)
	phoneNumber = strings.TrimPrefix(phoneNumber, "00")

	if countryCode == "" {
		return phoneNumber
	}
	if strings.HasPrefix(phoneNumber, "0") {
		return countryCode + strings.TrimLeft(phoneNumber, "0")
	}
	// Country code followed by the national trunk prefix, e.g. 9720...
	if strings.HasPrefix(phoneNumber, countryCode+"0") {
		return countryCode + phoneNumber[len(countryCode)+1:]
	}
	return phoneNumber
}

// IsLoggedIn reports whether the device store holds a paired session.
func (s *Service) IsLoggedIn() bool {
	return s.client.Store.ID != nil
}

// Connect connects to WhatsApp. An unpaired device prints a QR code to
// out and blocks until the pairing finishes.
func (s *Service) Connect(ctx context.Context, out io.Writer) error {
	if s.IsLoggedIn() {
		if err := s.client.Connect(); err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}
		return nil
	}

	qrChan, err := s.client.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("failed to get QR channel: %w", err)
	}
	if err := s.client.Connect(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	for evt := range qrChan {
		if evt.Event != "code" {
			s.log.Info().Str("event", evt.Event).Msg("Login event")
			continue
		}
		q, err := qrcode.New(evt.Code, qrcode.Medium)
		if err != nil {
			fmt.Fprintf(out, "QR Code: %s\n", evt.Code)
			continue
		}
		fmt.Fprintln(out, "\n"+q.ToSmallString(false))
		fmt.Fprintln(out, "Scan the QR code above with WhatsApp > Settings > Linked Devices > Link a Device")
	}
	return nil
}

// Disconnect disconnects from WhatsApp
func (s *Service) Disconnect() {
	s.client.Disconnect()
}

// SendMessage sends a text message to phoneNumber after checking that it
// is registered on WhatsApp.
func (s *Service) SendMessage(ctx context.Context, phoneNumber, message string) error {
	phoneNumber = NormalizePhoneNumber(phoneNumber, s.cfg.CountryCode)

	resp, err := s.client.IsOnWhatsApp(ctx, []string{phoneNumber})
	if err != nil {
		return fmt.Errorf("failed to verify number on WhatsApp: %w", err)
	}
	if len(resp) == 0 || !resp[0].IsIn {
		return fmt.Errorf("number %s is not registered on WhatsApp", phoneNumber)
	}
	jid := resp[0].JID

	s.log.Debug().Str("jid", jid.String()).Str("phone", phoneNumber).Msg("Sending message")

	sent, err := s.client.SendMessage(ctx, jid, &waE2E.Message{
		Conversation: &message,
	})
	if err != nil {
		return fmt.Errorf("failed to send message to %s: %w", jid.String(), err)
	}

	s.log.Info().Str("id", string(sent.ID)).Str("phone", phoneNumber).Msg("Message sent")
	return nil
}

// NotifyResponse tells every host about a new RSVP.
func (s *Service) NotifyResponse(ctx context.Context, r models.Response) error {
	text := FormatResponseNotification(r)
	var errs []error
	for _, phone := range s.cfg.HostPhones {
		if err := s.SendMessage(ctx, phone, text); err != nil {
			errs = append(errs, fmt.Errorf("host %s: %w", phone, err))
		}
	}
	return errors.Join(errs...)
}

// IsHost reports whether phoneNumber belongs to one of the hosts.
func (s *Service) IsHost(phoneNumber string) bool {
	phoneNumber = NormalizePhoneNumber(phoneNumber, s.cfg.CountryCode)
	for _, host := range s.cfg.HostPhones {
		if NormalizePhoneNumber(host, s.cfg.CountryCode) == phoneNumber {
			return true
		}
	}
	return false
}

var statusHeadline = map[models.RSVPStatus]string{
	models.RSVPYes:   "✅ Attending",
	models.RSVPMaybe: "🤔 Maybe",
	models.RSVPNo:    "❌ Regrets",
}

// FormatResponseNotification renders the host notification for r.
func FormatResponseNotification(r models.Response) string {
	headline, ok := statusHeadline[r.Status]
	if !ok {
		headline = string(r.Status)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "💌 *New RSVP* from %s\n\n", r.Name)
	fmt.Fprintf(&b, "%s\n", headline)
	if r.Status != models.RSVPNo {
		fmt.Fprintf(&b, "👥 Party of %d: %s\n", r.GuestCount, r.GuestNames)
	}
	if msg := strings.TrimSpace(r.Message); msg != "" {
		fmt.Fprintf(&b, "\n📝 %s\n", msg)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (s *Service) eventHandler(evt any) {
	switch evt := evt.(type) {
	case *events.Message:
		s.handleMessage(evt)
	case *events.Connected:
		s.log.Info().Msg("Connected to WhatsApp")
	case *events.Disconnected:
		s.log.Info().Msg("Disconnected from WhatsApp")
	case *events.LoggedOut:
		s.log.Warn().Msg("Logged out from WhatsApp")
	}
}

func (s *Service) handleMessage(evt *events.Message) {
	msg, ok := toIncoming(evt)
	if !ok {
		return
	}
	if s.messageHandler == nil {
		s.log.Debug().Str("sender", msg.Phone).Msg("Received message")
		return
	}
	if err := s.messageHandler(context.Background(), msg); err != nil {
		s.log.Error().Err(err).Str("sender", msg.Phone).Msg("Error handling message")
	}
}

// toIncoming extracts the text of a guest message. Our own messages,
// group chats and non-text messages are skipped.
func toIncoming(evt *events.Message) (IncomingMessage, bool) {
	if evt == nil || evt.Message == nil || evt.Info.IsFromMe || evt.Info.IsGroup {
		return IncomingMessage{}, false
	}
	text := evt.Message.GetConversation()
	if text == "" {
		text = evt.Message.GetExtendedTextMessage().GetText()
	}
	if strings.TrimSpace(text) == "" || evt.Info.Sender.Server != types.DefaultUserServer {
		return IncomingMessage{}, false
	}
	return IncomingMessage{
		Phone:    evt.Info.Sender.User,
		PushName: evt.Info.PushName,
		Text:     text,
	}, true
}

// SetMessageHandler sets a custom handler for incoming messages
func (s *Service) SetMessageHandler(handler MessageHandler) {
	s.messageHandler = handler
}
