// Package whatsapp connects a linked WhatsApp device as a message source
// and as the sender for templated guest messages.
package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/skip2/go-qrcode"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"hotel-messaging/internal/identity"
	"hotel-messaging/internal/models"
)

// Delivery statuses reported for messages sent through the session.
const (
	StatusSent          = "sent"
	StatusDelivered     = "delivered"
	StatusRead          = "read"
	StatusSendingFailed = "sending_failed"
)

type Config struct {
	DataDir     string
	HistorySize int
}

type Service struct {
	client  *whatsmeow.Client
	cfg     *Config
	log     zerolog.Logger
	history *history
}

// NewService opens the device store and prepares a client. Call Connect
// before sending.
func NewService(ctx context.Context, cfg *Config, log zerolog.Logger) (*Service, error) {
	logger := log.With().Str("component", "WhatsApp").Logger()

	// Use nil logger - sqlstore will use a no-op logger by default
	container, err := sqlstore.New(ctx, "sqlite3", fmt.Sprintf("file:%s/whatsmeow.db?_foreign_keys=on", cfg.DataDir), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}

	client := whatsmeow.NewClient(deviceStore, nil)

	service := &Service{
		client:  client,
		cfg:     cfg,
		log:     logger,
		history: newHistory(cfg.HistorySize),
	}

	client.AddEventHandler(func(evt interface{}) {
		service.eventHandler(evt)
	})

	return service, nil
}

// Connect connects to WhatsApp, printing a login QR code when the device
// is not linked yet.
func (s *Service) Connect(ctx context.Context) error {
	if s.client.Store.ID != nil {
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
			fmt.Printf("QR Code: %s\n", evt.Code)
			fmt.Println("Please scan this QR code with WhatsApp to connect.")
			continue
		}
		fmt.Println("\n" + q.ToSmallString(false))
		fmt.Println("Scan the QR code above with the hotel's WhatsApp:")
		fmt.Println("   Settings > Linked Devices > Link a Device")
	}
	return nil
}

// Disconnect disconnects from WhatsApp
func (s *Service) Disconnect() {
	s.client.Disconnect()
}

// FetchRecent returns messages seen during this session, newest first.
func (s *Service) FetchRecent(_ context.Context, limit int) ([]models.Message, error) {
	return s.history.recent(limit), nil
}

// SendTemplate sends text to phone as the named template and records the
// outbound message for reconciliation.
func (s *Service) SendTemplate(ctx context.Context, phone, template, text string, vars models.TemplateVariables) error {
	key := identity.Normalize(phone)
	if !key.Valid() {
		return fmt.Errorf("invalid phone number %q", phone)
	}
	international := "+" + string(key)

	out := models.Message{
		ID:        fmt.Sprintf("local-%d", time.Now().UnixNano()),
		Direction: models.DirectionOutgoing,
		CreatedAt: time.Now().UTC(),
		Receiver:  &models.Receiver{Contacts: []models.Contact{{IdentifierValue: international}}},
		Body:      models.Body{Type: "text", Text: &models.TextPart{Text: text}},
		Template:  &models.Template{Name: template, Variables: vars},
	}

	jid, err := s.resolve(ctx, international)
	if err != nil {
		out.Status = StatusSendingFailed
		out.Failure = &models.Failure{Description: err.Error()}
		s.history.add(out)
		return err
	}

	s.log.Debug().Str("jid", jid.String()).Str("phone", international).Str("template", template).Msg("Attempting to send message")
	sent, err := s.client.SendMessage(ctx, jid, &waE2E.Message{Conversation: &text})
	if err != nil {
		out.Status = StatusSendingFailed
		out.Failure = &models.Failure{Description: err.Error()}
		s.history.add(out)
		return fmt.Errorf("failed to send message to %s: %w", international, err)
	}

	out.ID = sent.ID
	out.CreatedAt = sent.Timestamp.UTC()
	out.Status = StatusSent
	s.history.add(out)
	s.log.Info().Str("id", sent.ID).Str("phone", international).Str("template", template).Msg("Message sent")
	return nil
}

// resolve verifies the number is on WhatsApp and returns its JID.
func (s *Service) resolve(ctx context.Context, phone string) (types.JID, error) {
	resp, err := s.client.IsOnWhatsApp(ctx, []string{phone})
	if err != nil {
		return types.JID{}, fmt.Errorf("failed to verify number on WhatsApp: %w", err)
	}
	if len(resp) == 0 || !resp[0].IsIn {
		return types.JID{}, fmt.Errorf("number %s is not registered on WhatsApp", phone)
	}
	return resp[0].JID, nil
}

func (s *Service) eventHandler(evt interface{}) {
	if evt == nil {
		return
	}
	switch evt := evt.(type) {
	case *events.Message:
		if m, ok := convertMessage(evt); ok {
			s.history.add(m)
			s.log.Debug().Str("id", m.ID).Str("direction", m.Direction).Msg("Recorded message")
		}
	case *events.Receipt:
		status := receiptStatus(evt.Type)
		if status == "" {
			return
		}
		ids := make([]string, len(evt.MessageIDs))
		for i, id := range evt.MessageIDs {
			ids[i] = string(id)
		}
		s.history.setStatus(ids, status)
	case *events.Connected:
		s.log.Info().Msg("Connected to WhatsApp")
	case *events.Disconnected:
		s.log.Info().Msg("Disconnected from WhatsApp")
	case *events.LoggedOut:
		s.log.Info().Msg("Logged out from WhatsApp")
	}
}

func receiptStatus(t types.ReceiptType) string {
	switch t {
	case types.ReceiptTypeDelivered:
		return StatusDelivered
	case types.ReceiptTypeRead, types.ReceiptTypeReadSelf:
		return StatusRead
	default:
		return ""
	}
}

// convertMessage maps a WhatsApp event onto the message model. Group
// chats and events without a user are ignored.
func convertMessage(evt *events.Message) (models.Message, bool) {
	info := evt.Info
	if info.IsGroup {
		return models.Message{}, false
	}

	m := models.Message{
		ID:        info.ID,
		CreatedAt: info.Timestamp.UTC(),
		Body:      convertBody(evt.Message),
	}
	if info.IsFromMe {
		if info.Chat.User == "" {
			return models.Message{}, false
		}
		m.Direction = models.DirectionOutgoing
		m.Sender = &models.Sender{Connector: json.RawMessage(`{"type":"whatsapp"}`)}
		m.Receiver = &models.Receiver{Contacts: []models.Contact{{IdentifierValue: "+" + info.Chat.User}}}
		m.Status = StatusSent
		return m, true
	}

	if info.Sender.User == "" {
		return models.Message{}, false
	}
	m.Direction = models.DirectionIncoming
	m.Sender = &models.Sender{Contact: &models.Contact{
		IdentifierValue: "+" + info.Sender.User,
		Annotations:     models.Annotations{Name: strings.TrimSpace(info.PushName)},
	}}
	return m, true
}

func convertBody(msg *waE2E.Message) models.Body {
	switch {
	case msg == nil:
		return models.Body{}
	case msg.GetConversation() != "":
		return models.Body{Type: "text", Text: &models.TextPart{Text: msg.GetConversation()}}
	case msg.GetExtendedTextMessage() != nil:
		return models.Body{Type: "text", Text: &models.TextPart{Text: msg.GetExtendedTextMessage().GetText()}}
	case msg.GetImageMessage() != nil:
		return models.Body{Type: "image", Image: &models.TextPart{Text: msg.GetImageMessage().GetCaption()}, Raw: json.RawMessage(`{"type":"image"}`)}
	case msg.GetAudioMessage() != nil:
		return models.Body{Type: "audio", Audio: &models.TextPart{}, Raw: json.RawMessage(`{"type":"audio"}`)}
	case msg.GetDocumentMessage() != nil:
		return models.Body{Type: "file", File: &models.TextPart{Text: msg.GetDocumentMessage().GetFileName()}, Raw: json.RawMessage(`{"type":"file"}`)}
	default:
		return models.Body{}
	}
}
