// Package domain holds the core entities and ports of the conversation
// ingestion service.
package domain

import (
	"context"
	"fmt"
	"time"
)

// Resolution is the lifecycle state of a conversation. Values are stable and
// shared with the upstream billing and classification services.
type Resolution int

const (
	ResolutionResolved     Resolution = 0
	ResolutionUnresolved   Resolution = 1
	ResolutionInProgress   Resolution = 2
	ResolutionUnclassified Resolution = 3
	ResolutionHasChatRoom  Resolution = 4
)

// String returns the human-readable label for a resolution.
func (r Resolution) String() string {
	switch r {
	case ResolutionResolved:
		return "resolved"
	case ResolutionUnresolved:
		return "unresolved"
	case ResolutionInProgress:
		return "in_progress"
	case ResolutionUnclassified:
		return "unclassified"
	case ResolutionHasChatRoom:
		return "has_chat_room"
	}
	return fmt.Sprintf("resolution(%d)", int(r))
}

// Project is an upsert-on-first-sight cache row of the platform project
// master data. Immutable after creation.
type Project struct {
	UUID      string
	Name      *string
	CreatedAt time.Time
}

// Conversation is the authoritative lifecycle record of a contact exchange
// on a channel. At most one conversation per (project, contact_urn,
// channel_uuid) may be in progress at any time.
type Conversation struct {
	UUID         string
	ProjectUUID  string
	ContactURN   string
	ContactName  string
	ChannelUUID  string
	ExternalID   string
	StartDate    *time.Time
	EndDate      *time.Time
	HasChatsRoom bool
	CSAT         string
	NPS          *int
	Resolution   Resolution
	CreatedAt    time.Time
}

// InProgress reports whether the conversation still accepts hot-store writes.
func (c Conversation) InProgress() bool { return c.Resolution == ResolutionInProgress }

// Message sources as carried on the wire.
const (
	SourceIncoming = "incoming"
	SourceOutgoing = "outgoing"
)

// HotMessage is a single archived or in-flight message in its storage shape:
// normalized UTC timestamp, second precision, no offset.
type HotMessage struct {
	Text      string `json:"text"`
	Source    string `json:"source"`
	CreatedAt string `json:"created_at"`
}

// MessagePage is one page of a newest-first hot-store range read. NextCursor
// is empty on the last page.
type MessagePage struct {
	Items      []HotMessage
	NextCursor string
}

// Classification links a closed conversation to a topic and subtopic with a
// confidence in [0,1]. One per conversation, replaced on re-classification.
type Classification struct {
	ConversationUUID string
	TopicUUID        *string
	SubTopicUUID     *string
	Confidence       float64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Topic is a project-scoped classification label.
type Topic struct {
	UUID        string
	ProjectUUID string
	Name        string
	Description string
	IsActive    bool
	SubTopics   []SubTopic
}

// SubTopic refines a Topic.
type SubTopic struct {
	UUID        string
	TopicUUID   string
	Name        string
	Description string
	IsActive    bool
}

// ChannelResolutionCount aggregates conversation outcomes for one channel on
// one day. Computed on demand, never persisted.
type ChannelResolutionCount struct {
	ChannelUUID   string
	Resolved      int
	Unresolved    int
	HasChatsRooms int
	Unclassified  int
}

// ConversationFilter narrows read-side conversation listings.
type ConversationFilter struct {
	Start    *time.Time
	End      *time.Time
	Page     int
	PageSize int
}

// ClassifierPayload is the request contract of the remote classifier.
type ClassifierPayload struct {
	ProjectUUID      string              `json:"project_uuid"`
	ConversationUUID string              `json:"conversation_uuid"`
	Messages         []ClassifierMessage `json:"messages"`
	Topics           []ClassifierTopic   `json:"topics"`
	Language         string              `json:"language"`
}

// ClassifierMessage is one turn of the conversation as sent to the classifier.
type ClassifierMessage struct {
	Sender    string `json:"sender"`
	Timestamp string `json:"timestamp"`
	Content   string `json:"content"`
}

// ClassifierTopic carries topic context for the classifier.
type ClassifierTopic struct {
	TopicUUID   string               `json:"topic_uuid"`
	Name        string               `json:"name"`
	Description string               `json:"description"`
	SubTopics   []ClassifierSubTopic `json:"subtopics"`
}

// ClassifierSubTopic carries subtopic context for the classifier.
type ClassifierSubTopic struct {
	SubTopicUUID string `json:"subtopic_uuid"`
	Name         string `json:"name"`
	Description  string `json:"description"`
}

// ClassifierResult is the response contract of the remote classifier.
type ClassifierResult struct {
	TopicUUID    string  `json:"topic_uuid"`
	SubTopicUUID string  `json:"subtopic_uuid"`
	Confidence   float64 `json:"confidence"`
}

// Context is an alias so ports do not force adapters to import std context
// under a different name. Usecases pass context.Context through unchanged.
type Context = context.Context
