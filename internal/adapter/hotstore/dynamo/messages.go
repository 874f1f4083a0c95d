// Package dynamo implements the TTL-bound hot message store on DynamoDB.
//
// Items live under a composite conversation key and a sortable timestamp
// key, so range reads come back in time order without a filter expression.
package dynamo

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	awsdynamo "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/weni-ai/nexus-conversations/internal/domain"
)

const (
	attrConversationKey  = "conversation_key"
	attrMessageTimestamp = "message_timestamp"

	// DynamoDB caps BatchWriteItem at 25 requests.
	deleteBatchSize = 25

	sortableLayout = "2006-01-02T15:04:05"
)

// API is the subset of the DynamoDB client used here, extracted for testing.
type API interface {
	PutItem(ctx context.Context, params *awsdynamo.PutItemInput, optFns ...func(*awsdynamo.Options)) (*awsdynamo.PutItemOutput, error)
	Query(ctx context.Context, params *awsdynamo.QueryInput, optFns ...func(*awsdynamo.Options)) (*awsdynamo.QueryOutput, error)
	BatchWriteItem(ctx context.Context, params *awsdynamo.BatchWriteItemInput, optFns ...func(*awsdynamo.Options)) (*awsdynamo.BatchWriteItemOutput, error)
}

// Store reads and writes hot messages in one DynamoDB table.
type Store struct {
	api   API
	table string
	now   func() time.Time
}

// New constructs a Store from a resolved AWS config.
func New(cfg aws.Config, table string) *Store {
	return &Store{api: awsdynamo.NewFromConfig(cfg), table: table, now: time.Now}
}

// NewWithAPI constructs a Store with an explicit API, used by tests.
func NewWithAPI(api API, table string) *Store {
	return &Store{api: api, table: table, now: time.Now}
}

type record struct {
	ConversationKey  string `dynamodbav:"conversation_key"`
	MessageTimestamp string `dynamodbav:"message_timestamp"`
	ConversationID   string `dynamodbav:"conversation_id"`
	ProjectUUID      string `dynamodbav:"project_uuid"`
	ContactURN       string `dynamodbav:"contact_urn"`
	ChannelUUID      string `dynamodbav:"channel_uuid"`
	MessageID        string `dynamodbav:"message_id"`
	MessageText      string `dynamodbav:"message_text"`
	SourceType       string `dynamodbav:"source_type"`
	CreatedAt        string `dynamodbav:"created_at"`
	ResolutionStatus int    `dynamodbav:"resolution_status"`
	ExpiresOn        int64  `dynamodbav:"ExpiresOn"`
}

// ConversationKey builds the hot-store partition key for a conversation.
func ConversationKey(projectUUID, contactURN, channelUUID string) string {
	return fmt.Sprintf("%s#%s#%s", projectUUID, contactURN, channelUUID)
}

// SortableTimestamp normalizes an ISO-8601 string to naive UTC with second
// precision so lexicographic order matches time order. On parse failure the
// offset suffixes are stripped and the residual is kept.
func SortableTimestamp(createdAt string) string {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, sortableLayout} {
		if t, err := time.Parse(layout, createdAt); err == nil {
			return t.UTC().Format(sortableLayout)
		}
	}
	slog.Warn("failed to parse message timestamp, storing residual", slog.String("created_at", createdAt))
	s := strings.Replace(createdAt, "Z", "", 1)
	return strings.Replace(s, "+00:00", "", 1)
}

// Store writes one message item with an absolute TTL expiry. Callers gate
// this on the owning conversation being in progress.
func (s *Store) Store(ctx domain.Context, projectUUID, contactURN, channelUUID string, msg domain.HotMessageInput, resolutionStatus domain.Resolution, ttlHours int) error {
	key := ConversationKey(projectUUID, contactURN, channelUUID)
	messageID := msg.ID
	if messageID == "" {
		messageID = uuid.New().String()
	}
	sortable := SortableTimestamp(msg.CreatedAt)

	item, err := attributevalue.MarshalMap(record{
		ConversationKey: key,
		// Timestamp plus message id keeps the sort key unique.
		MessageTimestamp: fmt.Sprintf("%s#%s", sortable, messageID),
		ConversationID:   key,
		ProjectUUID:      projectUUID,
		ContactURN:       contactURN,
		ChannelUUID:      channelUUID,
		MessageID:        messageID,
		MessageText:      msg.Text,
		SourceType:       msg.Source,
		CreatedAt:        sortable,
		ResolutionStatus: int(resolutionStatus),
		ExpiresOn:        s.now().Unix() + int64(ttlHours)*3600,
	})
	if err != nil {
		return fmt.Errorf("op=hotstore.marshal: %w", err)
	}

	_, err = s.api.PutItem(ctx, &awsdynamo.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("op=hotstore.put: %w", err)
	}
	return nil
}

// GetMessages returns up to limit items newest-first. cursor continues a
// previous page; an invalid cursor is logged and ignored.
func (s *Store) GetMessages(ctx domain.Context, projectUUID, contactURN, channelUUID string, limit int, cursor string) (domain.MessagePage, error) {
	if limit <= 0 {
		limit = 50
	}
	in := &awsdynamo.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String("conversation_key = :ck"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ck": &types.AttributeValueMemberS{Value: ConversationKey(projectUUID, contactURN, channelUUID)},
		},
		Limit:            aws.Int32(int32(limit)),
		ScanIndexForward: aws.Bool(false),
	}
	if cursor != "" {
		if start, err := decodeCursor(cursor); err != nil {
			slog.Warn("invalid cursor ignored", slog.Any("error", err))
		} else {
			in.ExclusiveStartKey = start
		}
	}

	out, err := s.api.Query(ctx, in)
	if err != nil {
		return domain.MessagePage{}, fmt.Errorf("op=hotstore.query: %w", err)
	}

	page := domain.MessagePage{Items: make([]domain.HotMessage, 0, len(out.Items))}
	for _, item := range out.Items {
		var rec record
		if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
			return domain.MessagePage{}, fmt.Errorf("op=hotstore.unmarshal: %w", err)
		}
		page.Items = append(page.Items, domain.HotMessage{
			Text:      rec.MessageText,
			Source:    rec.SourceType,
			CreatedAt: rec.CreatedAt,
		})
	}
	if len(out.LastEvaluatedKey) > 0 {
		next, err := encodeCursor(out.LastEvaluatedKey)
		if err != nil {
			return domain.MessagePage{}, fmt.Errorf("op=hotstore.cursor: %w", err)
		}
		page.NextCursor = next
	}
	return page, nil
}

// GetAllMessages walks the whole partition newest-first.
func (s *Store) GetAllMessages(ctx domain.Context, projectUUID, contactURN, channelUUID string) ([]domain.HotMessage, error) {
	var msgs []domain.HotMessage
	cursor := ""
	for {
		page, err := s.GetMessages(ctx, projectUUID, contactURN, channelUUID, 100, cursor)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, page.Items...)
		if page.NextCursor == "" {
			return msgs, nil
		}
		cursor = page.NextCursor
	}
}

// DeleteAll removes every item of the conversation partition: a paged
// projection-only query gathers the keys, then batched deletes remove them.
// Returns the number of items deleted.
func (s *Store) DeleteAll(ctx domain.Context, projectUUID, contactURN, channelUUID string) (int, error) {
	key := ConversationKey(projectUUID, contactURN, channelUUID)

	var keys []map[string]types.AttributeValue
	var start map[string]types.AttributeValue
	for {
		out, err := s.api.Query(ctx, &awsdynamo.QueryInput{
			TableName:              aws.String(s.table),
			KeyConditionExpression: aws.String("conversation_key = :ck"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":ck": &types.AttributeValueMemberS{Value: key},
			},
			ProjectionExpression: aws.String("conversation_key, message_timestamp"),
			ExclusiveStartKey:    start,
		})
		if err != nil {
			return 0, fmt.Errorf("op=hotstore.scan_keys: %w", err)
		}
		for _, item := range out.Items {
			keys = append(keys, map[string]types.AttributeValue{
				attrConversationKey:  item[attrConversationKey],
				attrMessageTimestamp: item[attrMessageTimestamp],
			})
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		start = out.LastEvaluatedKey
	}

	deleted := 0
	for batchStart := 0; batchStart < len(keys); batchStart += deleteBatchSize {
		end := min(batchStart+deleteBatchSize, len(keys))
		if err := s.deleteBatch(ctx, keys[batchStart:end]); err != nil {
			return deleted, err
		}
		deleted += end - batchStart
	}
	return deleted, nil
}

func (s *Store) deleteBatch(ctx domain.Context, keys []map[string]types.AttributeValue) error {
	reqs := make([]types.WriteRequest, len(keys))
	for i, k := range keys {
		reqs[i] = types.WriteRequest{DeleteRequest: &types.DeleteRequest{Key: k}}
	}

	pending := map[string][]types.WriteRequest{s.table: reqs}
	// Re-submit unprocessed deletes a few times; leftovers expire via TTL.
	for attempt := 0; attempt < 3 && len(pending[s.table]) > 0; attempt++ {
		out, err := s.api.BatchWriteItem(ctx, &awsdynamo.BatchWriteItemInput{RequestItems: pending})
		if err != nil {
			return fmt.Errorf("op=hotstore.batch_delete: %w", err)
		}
		pending = out.UnprocessedItems
	}
	if len(pending[s.table]) > 0 {
		slog.Warn("unprocessed hot-store deletes left to TTL", slog.Int("count", len(pending[s.table])))
	}
	return nil
}

func encodeCursor(key map[string]types.AttributeValue) (string, error) {
	plain := map[string]string{}
	if err := attributevalue.UnmarshalMap(key, &plain); err != nil {
		return "", err
	}
	b, err := json.Marshal(plain)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func decodeCursor(cursor string) (map[string]types.AttributeValue, error) {
	b, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return nil, err
	}
	var plain map[string]string
	if err := json.Unmarshal(b, &plain); err != nil {
		return nil, err
	}
	key := make(map[string]types.AttributeValue, len(plain))
	for k, v := range plain {
		key[k] = &types.AttributeValueMemberS{Value: v}
	}
	return key, nil
}
