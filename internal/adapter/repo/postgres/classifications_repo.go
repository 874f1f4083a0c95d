package postgres

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/weni-ai/nexus-conversations/internal/domain"
)

// ClassificationRepo persists classification results, one per conversation.
type ClassificationRepo struct{ Pool PgxPool }

// NewClassificationRepo constructs a ClassificationRepo with the given pool.
func NewClassificationRepo(p PgxPool) *ClassificationRepo { return &ClassificationRepo{Pool: p} }

// Upsert inserts or replaces the classification of a conversation.
func (r *ClassificationRepo) Upsert(ctx domain.Context, c domain.Classification) error {
	tracer := otel.Tracer("repo.classifications")
	ctx, span := tracer.Start(ctx, "classifications.Upsert")
	defer span.End()

	now := time.Now().UTC()
	q := `INSERT INTO conversation_classifications (conversation_uuid, topic_uuid, subtopic_uuid, confidence, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$5)
		ON CONFLICT (conversation_uuid)
		DO UPDATE SET topic_uuid=EXCLUDED.topic_uuid, subtopic_uuid=EXCLUDED.subtopic_uuid, confidence=EXCLUDED.confidence, updated_at=EXCLUDED.updated_at`
	if _, err := r.Pool.Exec(ctx, q, c.ConversationUUID, c.TopicUUID, c.SubTopicUUID, c.Confidence, now); err != nil {
		return fmt.Errorf("op=classification.upsert: %w", err)
	}
	return nil
}

// GetByConversation loads the classification of a conversation.
func (r *ClassificationRepo) GetByConversation(ctx domain.Context, conversationUUID string) (domain.Classification, error) {
	tracer := otel.Tracer("repo.classifications")
	ctx, span := tracer.Start(ctx, "classifications.GetByConversation")
	defer span.End()

	q := `SELECT conversation_uuid, topic_uuid, subtopic_uuid, confidence, created_at, updated_at
		FROM conversation_classifications WHERE conversation_uuid=$1`
	var c domain.Classification
	row := r.Pool.QueryRow(ctx, q, conversationUUID)
	if err := row.Scan(&c.ConversationUUID, &c.TopicUUID, &c.SubTopicUUID, &c.Confidence, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return domain.Classification{}, fmt.Errorf("op=classification.get: %w", domain.ErrNotFound)
		}
		return domain.Classification{}, fmt.Errorf("op=classification.get: %w", err)
	}
	return c, nil
}
