package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/weni-ai/nexus-conversations/internal/domain"
)

// ArchiveRepo owns the one-to-one archived-messages blob of a conversation.
type ArchiveRepo struct{ Pool PgxPool }

// NewArchiveRepo constructs an ArchiveRepo with the given pool.
func NewArchiveRepo(p PgxPool) *ArchiveRepo { return &ArchiveRepo{Pool: p} }

// Upsert writes the ordered message list for the conversation, replacing any
// previous archive. Re-running a migration is therefore a no-op.
func (r *ArchiveRepo) Upsert(ctx domain.Context, conversationUUID string, msgs []domain.HotMessage) error {
	tracer := otel.Tracer("repo.archives")
	ctx, span := tracer.Start(ctx, "archives.Upsert")
	defer span.End()

	if msgs == nil {
		msgs = []domain.HotMessage{}
	}
	blob, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("op=archive.upsert: marshal: %w", err)
	}
	now := time.Now().UTC()
	q := `INSERT INTO conversation_messages (conversation_uuid, messages, created_at, updated_at)
		VALUES ($1,$2,$3,$3)
		ON CONFLICT (conversation_uuid)
		DO UPDATE SET messages=EXCLUDED.messages, updated_at=EXCLUDED.updated_at`
	if _, err := r.Pool.Exec(ctx, q, conversationUUID, blob, now); err != nil {
		return fmt.Errorf("op=archive.upsert: %w", err)
	}
	return nil
}

// Get loads the archived message list of a conversation.
func (r *ArchiveRepo) Get(ctx domain.Context, conversationUUID string) ([]domain.HotMessage, error) {
	tracer := otel.Tracer("repo.archives")
	ctx, span := tracer.Start(ctx, "archives.Get")
	defer span.End()

	var blob []byte
	row := r.Pool.QueryRow(ctx, `SELECT messages FROM conversation_messages WHERE conversation_uuid=$1`, conversationUUID)
	if err := row.Scan(&blob); err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("op=archive.get: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("op=archive.get: %w", err)
	}
	var msgs []domain.HotMessage
	if err := json.Unmarshal(blob, &msgs); err != nil {
		return nil, fmt.Errorf("op=archive.get: unmarshal: %w", err)
	}
	return msgs, nil
}
