package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Direction of a message relative to the hotel.
const (
	DirectionIncoming = "incoming"
	DirectionOutgoing = "outgoing"
)

// Message is one event from the conversational messaging API. The JSON
// shape follows the API's message resource so a listing decodes directly.
type Message struct {
	ID        string    `json:"id"`
	Direction string    `json:"direction"`
	CreatedAt time.Time `json:"createdAt"`
	Sender    *Sender   `json:"sender,omitempty"`
	Receiver  *Receiver `json:"receiver,omitempty"`
	Body      Body      `json:"body"`
	Template  *Template `json:"template,omitempty"`
	Status    string    `json:"status,omitempty"`
	Failure   *Failure  `json:"failure,omitempty"`
}

// Contact is a messaging identity with free-form annotations.
type Contact struct {
	IdentifierValue string      `json:"identifierValue"`
	Annotations     Annotations `json:"annotations"`
}

// Annotations carries contact metadata; only the display name is used.
type Annotations struct {
	Name string `json:"name,omitempty"`
}

// Sender identifies who sent the message. Connector is set for messages
// sent by the hotel's channel.
type Sender struct {
	Contact   *Contact        `json:"contact,omitempty"`
	Connector json.RawMessage `json:"connector,omitempty"`
}

// Receiver lists the recipients of a message.
type Receiver struct {
	Contacts []Contact `json:"contacts"`
}

// Body holds the structured body variants. Raw keeps the original JSON
// for variants without a text part.
type Body struct {
	Type  string          `json:"type,omitempty"`
	Text  *TextPart       `json:"text,omitempty"`
	List  *TextPart       `json:"list,omitempty"`
	Image *TextPart       `json:"image,omitempty"`
	Audio *TextPart       `json:"audio,omitempty"`
	File  *TextPart       `json:"file,omitempty"`
	Raw   json.RawMessage `json:"-"`
}

// TextPart is the text-bearing portion of a body variant.
type TextPart struct {
	Text string `json:"text,omitempty"`
}

type bodyAlias Body

// UnmarshalJSON decodes the variants and keeps a copy of the raw body.
func (b *Body) UnmarshalJSON(data []byte) error {
	var a bodyAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*b = Body(a)
	b.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// PlainText returns the first text found in text, list or image bodies.
func (b Body) PlainText() string {
	for _, part := range []*TextPart{b.Text, b.List, b.Image} {
		if part != nil && part.Text != "" {
			return part.Text
		}
	}
	return ""
}

// Preview returns the text shown as a guest's last message.
func (b Body) Preview() string {
	if text := b.PlainText(); text != "" {
		return text
	}
	if len(b.Raw) > 0 {
		return string(b.Raw)
	}
	return ""
}

// Template names the outbound template and its filled variables.
type Template struct {
	Name      string            `json:"name"`
	Variables TemplateVariables `json:"variables,omitempty"`
}

// Variable is one template slot.
type Variable struct {
	Key   string
	Value string
}

// TemplateVariables keeps template slots in the order the API sent them.
type TemplateVariables []Variable

// Lookup returns the value of the first slot named key.
func (vs TemplateVariables) Lookup(key string) string {
	for _, v := range vs {
		if v.Key == key {
			return v.Value
		}
	}
	return ""
}

// UnmarshalJSON decodes a JSON object while preserving key order.
// Non-string values are kept as their JSON text.
func (vs *TemplateVariables) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*vs = nil
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("template variables: expected object, got %v", tok)
	}
	var out TemplateVariables
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			s = string(raw)
			if s == "null" {
				s = ""
			}
		}
		out = append(out, Variable{Key: key, Value: s})
	}
	*vs = out
	return nil
}

// MarshalJSON writes the slots back as a JSON object in order.
func (vs TemplateVariables) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, v := range vs {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, _ := json.Marshal(v.Key)
		val, _ := json.Marshal(v.Value)
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Failure describes why a message was not delivered.
type Failure struct {
	Description string         `json:"description,omitempty"`
	Code        Code           `json:"code,omitempty"`
	Source      *FailureSource `json:"source,omitempty"`
}

// FailureSource is the upstream platform's view of the failure.
type FailureSource struct {
	Code Code `json:"code,omitempty"`
}

// ResolvedCode returns the failure code, falling back to the source code.
func (f *Failure) ResolvedCode() string {
	if f == nil {
		return ""
	}
	if f.Code != "" {
		return string(f.Code)
	}
	if f.Source != nil {
		return string(f.Source.Code)
	}
	return ""
}

// Code accepts both string and numeric JSON codes.
type Code string

// UnmarshalJSON implements json.Unmarshaler.
func (c *Code) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*c = Code(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("failure code: %w", err)
	}
	*c = Code(n.String())
	return nil
}

// Contacts returns every contact touched by the message, receivers first.
func (m *Message) Contacts() []Contact {
	var out []Contact
	if m.Receiver != nil {
		out = append(out, m.Receiver.Contacts...)
	}
	if m.Sender != nil && m.Sender.Contact != nil {
		out = append(out, *m.Sender.Contact)
	}
	return out
}

// PrimaryIdentifier returns the first receiver's identifier, or the
// sender's when there is no receiver.
func (m *Message) PrimaryIdentifier() string {
	if m.Receiver != nil && len(m.Receiver.Contacts) > 0 && m.Receiver.Contacts[0].IdentifierValue != "" {
		return m.Receiver.Contacts[0].IdentifierValue
	}
	if m.Sender != nil && m.Sender.Contact != nil {
		return m.Sender.Contact.IdentifierValue
	}
	return ""
}

// ContactAnnotationName returns the first annotated contact name, checking
// the first receiver before the sender.
func (m *Message) ContactAnnotationName() string {
	if m.Receiver != nil && len(m.Receiver.Contacts) > 0 {
		if name := m.Receiver.Contacts[0].Annotations.Name; name != "" {
			return name
		}
	}
	if m.Sender != nil && m.Sender.Contact != nil {
		return m.Sender.Contact.Annotations.Name
	}
	return ""
}

// ResolvedDirection returns the direction, inferring outgoing for
// messages sent through a connector.
func (m *Message) ResolvedDirection() string {
	if m.Direction != "" {
		return m.Direction
	}
	if m.Sender != nil && len(m.Sender.Connector) > 0 && string(m.Sender.Connector) != "null" {
		return DirectionOutgoing
	}
	return DirectionIncoming
}
