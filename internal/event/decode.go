package event

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/weni-ai/nexus-conversations/internal/domain"
)

// AttrEventType is the queue message attribute naming the event type. The
// top-level event_type field is the fallback.
const AttrEventType = "event_type"

type envelope struct {
	EventType     string          `json:"event_type"`
	CorrelationID string          `json:"correlation_id"`
	Key           string          `json:"key"`
	Value         json.RawMessage `json:"value"`
	Data          payload         `json:"data"`
}

type payload struct {
	ProjectUUID  string          `json:"project_uuid"`
	ContactURN   string          `json:"contact_urn"`
	ChannelUUID  string          `json:"channel_uuid"`
	Message      messagePayload  `json:"message"`
	Key          string          `json:"key"`
	Value        json.RawMessage `json:"value"`
	ExternalID   string          `json:"external_id"`
	Start        string          `json:"start"`
	StartDate    string          `json:"start_date"`
	End          string          `json:"end"`
	EndDate      string          `json:"end_date"`
	HasChatsRoom bool            `json:"has_chats_room"`
	Name         string          `json:"name"`
	ContactName  string          `json:"contact_name"`
}

type messagePayload struct {
	ID          string `json:"id"`
	MessageID   string `json:"message_id"`
	Text        string `json:"text"`
	Source      string `json:"source"`
	ContactName string `json:"contact_name"`
	CreatedAt   string `json:"created_at"`
}

// Decode parses one raw queue message into a typed event. Malformed JSON and
// unknown event types fail with deterministic errors so the caller can ack
// the message as a poison pill.
func Decode(raw domain.RawMessage) (Event, error) {
	var env envelope
	if err := json.Unmarshal(raw.Body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}

	eventType := raw.Attributes[AttrEventType]
	if eventType == "" {
		eventType = env.EventType
	}

	switch eventType {
	case TypeMessageReceived, TypeMessageSent:
		return decodeMessage(eventType, env), nil
	case TypeConversationWindow:
		return decodeWindow(env), nil
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownEventType, eventType)
	}
}

func decodeMessage(eventType string, env envelope) Message {
	msg := env.Data.Message

	id := msg.MessageID
	if id == "" {
		id = msg.ID
	}
	source := msg.Source
	if source == "" {
		if eventType == TypeMessageReceived {
			source = domain.SourceIncoming
		} else {
			source = domain.SourceOutgoing
		}
	}

	created := msg.CreatedAt
	if _, ok := ParseTimestamp(created); !ok {
		// Unusable timestamps would break the hot store's sort key; substitute
		// the decode instant.
		created = time.Now().UTC().Format("2006-01-02T15:04:05")
	}

	key := env.Key
	if key == "" {
		key = env.Data.Key
	}
	value := rawToString(env.Value)
	if value == "" {
		value = rawToString(env.Data.Value)
	}

	return Message{
		Type:          eventType,
		CorrelationID: env.CorrelationID,
		ProjectUUID:   env.Data.ProjectUUID,
		ContactURN:    env.Data.ContactURN,
		ChannelUUID:   env.Data.ChannelUUID,
		ID:            id,
		Text:          msg.Text,
		Source:        source,
		ContactName:   msg.ContactName,
		CreatedAt:     created,
		Key:           key,
		Value:         value,
	}
}

func decodeWindow(env envelope) Window {
	contactName := env.Data.ContactName
	if contactName == "" {
		contactName = env.Data.Name
	}
	return Window{
		CorrelationID: env.CorrelationID,
		ProjectUUID:   env.Data.ProjectUUID,
		ContactURN:    env.Data.ContactURN,
		ChannelUUID:   env.Data.ChannelUUID,
		ExternalID:    env.Data.ExternalID,
		ContactName:   contactName,
		StartDate:     parseWindowDate(env.Data.Start, env.Data.StartDate),
		EndDate:       parseWindowDate(env.Data.End, env.Data.EndDate),
		HasChatsRoom:  env.Data.HasChatsRoom,
	}
}

// timestampLayouts are tried in order; offsets are normalized to UTC and the
// result is treated as a naive instant.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses a lenient ISO-8601 string into naive UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func parseWindowDate(values ...string) *time.Time {
	for _, v := range values {
		if t, ok := ParseTimestamp(v); ok {
			return &t
		}
	}
	return nil
}

// rawToString renders a JSON scalar as its string form: strings lose their
// quotes, numbers and booleans keep their literal text.
func rawToString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}
