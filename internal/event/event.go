// Package event decodes raw queue payloads into typed ingestion events.
package event

import "time"

// Event types carried in the event_type attribute or top-level field.
const (
	TypeMessageReceived    = "message.received"
	TypeMessageSent        = "message.sent"
	TypeConversationWindow = "conversation.window"
)

// Event is one decoded ingestion event.
type Event interface {
	EventType() string
}

// Message is a message.received or message.sent event. Key and Value carry
// optional side-effect markers such as weni_csat / weni_nps.
type Message struct {
	Type          string
	CorrelationID string
	ProjectUUID   string
	ContactURN    string
	ChannelUUID   string
	ID            string
	Text          string
	Source        string
	ContactName   string
	// CreatedAt is the ISO-8601 string from the payload. When the payload
	// value does not parse the decoder substitutes the decode instant in UTC.
	CreatedAt string
	Key       string
	Value     string
}

// EventType implements Event.
func (m Message) EventType() string { return m.Type }

// Incoming reports whether the message came from the contact.
func (m Message) Incoming() bool { return m.Type == TypeMessageReceived }

// Window is a conversation.window event describing a lifecycle transition.
type Window struct {
	CorrelationID string
	ProjectUUID   string
	ContactURN    string
	ChannelUUID   string
	ExternalID    string
	ContactName   string
	StartDate     *time.Time
	EndDate       *time.Time
	HasChatsRoom  bool
}

// EventType implements Event.
func (w Window) EventType() string { return TypeConversationWindow }
