package whatsapp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"hotel-messaging/internal/models"
)

func TestConvertMessage_Incoming(t *testing.T) {
	ts := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	evt := &events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{
				Sender: types.NewJID("34600111222", types.DefaultUserServer),
				Chat:   types.NewJID("34600111222", types.DefaultUserServer),
			},
			ID:        "ABC",
			PushName:  " Marta ",
			Timestamp: ts,
		},
		Message: &waE2E.Message{Conversation: proto.String("hola")},
	}
	m, ok := convertMessage(evt)
	require.True(t, ok)
	assert.Equal(t, models.DirectionIncoming, m.Direction)
	assert.Equal(t, "+34600111222", m.PrimaryIdentifier())
	assert.Equal(t, "Marta", m.ContactAnnotationName())
	assert.Equal(t, "hola", m.Body.PlainText())
	assert.True(t, m.CreatedAt.Equal(ts))
}

func TestConvertMessage_FromMeAndGroup(t *testing.T) {
	evt := &events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{
				Chat:     types.NewJID("447700900123", types.DefaultUserServer),
				IsFromMe: true,
			},
			ID: "OUT",
		},
		Message: &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("Hi Lee, welcome")}},
	}
	m, ok := convertMessage(evt)
	require.True(t, ok)
	assert.Equal(t, models.DirectionOutgoing, m.ResolvedDirection())
	assert.Equal(t, "+447700900123", m.PrimaryIdentifier())
	assert.Equal(t, "Hi Lee, welcome", m.Body.Preview())

	evt.Info.IsGroup = true
	_, ok = convertMessage(evt)
	assert.False(t, ok)
}

func TestConvertBody_Media(t *testing.T) {
	b := convertBody(&waE2E.Message{ImageMessage: &waE2E.ImageMessage{Caption: proto.String("passport")}})
	assert.Equal(t, "passport", b.PlainText())

	b = convertBody(&waE2E.Message{AudioMessage: &waE2E.AudioMessage{}})
	assert.Equal(t, "", b.PlainText())
	assert.Equal(t, `{"type":"audio"}`, b.Preview())
}

func TestHistory(t *testing.T) {
	h := newHistory(2)
	h.add(models.Message{ID: "a"})
	h.add(models.Message{ID: "b"})
	h.add(models.Message{ID: "c"})

	got := h.recent(0)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].ID)
	assert.Equal(t, "b", got[1].ID)

	assert.Equal(t, 1, h.setStatus([]string{"b", "a"}, StatusDelivered))
	assert.Equal(t, StatusDelivered, h.recent(2)[1].Status)

	h.add(models.Message{ID: "c", Status: StatusRead})
	assert.Len(t, h.recent(10), 2)
	assert.Equal(t, StatusRead, h.recent(1)[0].Status)
}

func TestReceiptStatus(t *testing.T) {
	assert.Equal(t, StatusDelivered, receiptStatus(types.ReceiptTypeDelivered))
	assert.Equal(t, StatusRead, receiptStatus(types.ReceiptTypeRead))
	assert.Equal(t, "", receiptStatus(types.ReceiptTypePlayed))
}
