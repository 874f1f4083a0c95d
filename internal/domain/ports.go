package domain

import "time"

// RawMessage is one delivery from the ingress queue. GroupID is the FIFO
// ordering unit; messages sharing it must never be processed concurrently.
type RawMessage struct {
	ID            string
	Body          []byte
	ReceiptHandle string
	GroupID       string
	Attributes    map[string]string
}

// Queue pulls batches from the FIFO ingress queue and acks them.
type Queue interface {
	// Receive long-polls for up to 10 messages; an empty slice on timeout is
	// not an error.
	Receive(ctx Context) ([]RawMessage, error)
	// DeleteBatch acks messages best-effort, falling back to per-message
	// deletes on partial batch failure.
	DeleteBatch(ctx Context, msgs []RawMessage) error
	// Delete acks a single message by receipt handle.
	Delete(ctx Context, receiptHandle string) error
}

// HotMessageInput is a message about to enter the hot store. CreatedAt is
// the raw ISO-8601 string as received; normalization happens at the store.
type HotMessageInput struct {
	ID        string
	Text      string
	Source    string
	CreatedAt string
}

// HotMessageStore holds in-flight messages under a TTL while the owning
// conversation is in progress. Callers must gate Store on that state.
type HotMessageStore interface {
	Store(ctx Context, projectUUID, contactURN, channelUUID string, msg HotMessageInput, resolutionStatus Resolution, ttlHours int) error
	// GetMessages returns up to limit items newest-first. cursor continues a
	// previous page; invalid cursors are ignored.
	GetMessages(ctx Context, projectUUID, contactURN, channelUUID string, limit int, cursor string) (MessagePage, error)
	// GetAllMessages walks the whole partition.
	GetAllMessages(ctx Context, projectUUID, contactURN, channelUUID string) ([]HotMessage, error)
	// DeleteAll removes the whole partition and returns the number of items
	// deleted.
	DeleteAll(ctx Context, projectUUID, contactURN, channelUUID string) (int, error)
}

// ProjectRepository upserts project cache rows on first sight.
type ProjectRepository interface {
	GetOrCreate(ctx Context, uuid string) (Project, error)
	Exists(ctx Context, uuid string) (bool, error)
}

// ActiveElection is the outcome of electing the single active conversation
// for a (project, contact, channel) tuple.
type ActiveElection struct {
	Conversation Conversation
	Found        bool
	// Demoted counts older duplicates moved to UNCLASSIFIED by the election.
	Demoted int
}

// ConversationRepository persists conversations in the durable store.
// Compound read-modify-write operations run in row-level transactions.
type ConversationRepository interface {
	Create(ctx Context, c Conversation) (Conversation, error)
	// ElectActive returns the most recent IN_PROGRESS conversation for the
	// tuple and demotes any older active duplicates to UNCLASSIFIED within
	// the same transaction.
	ElectActive(ctx Context, projectUUID, contactURN, channelUUID string) (ActiveElection, error)
	// Latest returns the most recently created conversation for the tuple
	// regardless of resolution.
	Latest(ctx Context, projectUUID, contactURN, channelUUID string) (Conversation, error)
	Update(ctx Context, c Conversation) error
	// UpdateFields applies whitelisted attribute writes to the latest
	// conversation of the tuple, returning the rows before and after the
	// write so callers can detect resolution transitions.
	UpdateFields(ctx Context, projectUUID, contactURN, channelUUID string, fields map[string]any) (before, after Conversation, err error)
	Get(ctx Context, uuid string) (Conversation, error)
	ListByProject(ctx Context, projectUUID string, f ConversationFilter) ([]Conversation, int, error)
}

// ArchiveRepository owns the one-to-one archived-messages blob of a closed
// conversation. Written only by the migration service.
type ArchiveRepository interface {
	Upsert(ctx Context, conversationUUID string, msgs []HotMessage) error
	Get(ctx Context, conversationUUID string) ([]HotMessage, error)
}

// ClassificationRepository owns classification results, written only by the
// classification worker.
type ClassificationRepository interface {
	Upsert(ctx Context, c Classification) error
	GetByConversation(ctx Context, conversationUUID string) (Classification, error)
}

// TopicRepository reads the classification label catalog.
type TopicRepository interface {
	ActiveByProject(ctx Context, projectUUID string) ([]Topic, error)
	TopicExists(ctx Context, uuid string) (bool, error)
	SubTopicExists(ctx Context, uuid string) (bool, error)
}

// Classifier invokes the remote classification function.
type Classifier interface {
	Classify(ctx Context, p ClassifierPayload) (ClassifierResult, error)
}

// ClassificationQueue submits a conversation for asynchronous classification
// after it closes.
type ClassificationQueue interface {
	Enqueue(ctx Context, conversationUUID string) error
}

// DataLakeSender publishes validated events to the data-lake transport.
type DataLakeSender interface {
	Send(ctx Context, ev DataLakeEvent) error
}

// ResolutionCount is the billing payload tally for one channel and day.
type ResolutionCount struct {
	Resolved      int `json:"resolved"`
	Unresolved    int `json:"unresolved"`
	HasChatsRooms int `json:"has_chats_rooms"`
	Unclassified  int `json:"unclassified"`
}

// ChannelConversation is one element of the billing request body.
type ChannelConversation struct {
	ChannelUUID     string          `json:"channel_uuid"`
	Date            string          `json:"date"`
	ResolutionCount ResolutionCount `json:"resolution_count"`
}

// BillingClient posts aggregated per-channel counts downstream.
type BillingClient interface {
	SendConversations(ctx Context, projectUUID string, rows []ChannelConversation) error
}

// ResolutionCounter supplies per-channel resolution tallies for one day.
// Implementations may scan the durable store or serve pre-computed counts.
type ResolutionCounter interface {
	AllChannelCounts(ctx Context, projectUUID string, day time.Time) ([]ChannelResolutionCount, error)
	ChannelCounts(ctx Context, projectUUID, channelUUID string, day time.Time) (ChannelResolutionCount, error)
}
