package postgres

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/weni-ai/nexus-conversations/internal/domain"
)

// ConversationRepo persists conversations. Compound read-modify-write
// operations (active election, field updates) run in row-level transactions
// so concurrent consumers cannot race the single-active invariant.
type ConversationRepo struct{ Pool PgxPool }

// NewConversationRepo constructs a ConversationRepo with the given pool.
func NewConversationRepo(p PgxPool) *ConversationRepo { return &ConversationRepo{Pool: p} }

const conversationColumns = `uuid, project_uuid, contact_urn, COALESCE(contact_name,''), COALESCE(channel_uuid::text,''), COALESCE(external_id,''), start_date, end_date, has_chats_room, COALESCE(csat,''), nps, resolution, created_at`

func scanConversation(row pgx.Row) (domain.Conversation, error) {
	var c domain.Conversation
	err := row.Scan(&c.UUID, &c.ProjectUUID, &c.ContactURN, &c.ContactName, &c.ChannelUUID, &c.ExternalID,
		&c.StartDate, &c.EndDate, &c.HasChatsRoom, &c.CSAT, &c.NPS, &c.Resolution, &c.CreatedAt)
	return c, err
}

// Create inserts a new conversation and returns the stored row.
func (r *ConversationRepo) Create(ctx domain.Context, c domain.Conversation) (domain.Conversation, error) {
	tracer := otel.Tracer("repo.conversations")
	ctx, span := tracer.Start(ctx, "conversations.Create")
	defer span.End()
	span.SetAttributes(attribute.String("db.sql.table", "conversations"))

	if c.UUID == "" {
		c.UUID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	q := `INSERT INTO conversations
		(uuid, project_uuid, contact_urn, contact_name, channel_uuid, external_id, start_date, end_date, has_chats_room, csat, nps, resolution, created_at)
		VALUES ($1,$2,$3,$4,NULLIF($5,'')::uuid,NULLIF($6,''),$7,$8,$9,NULLIF($10,''),$11,$12,$13)`
	_, err := r.Pool.Exec(ctx, q, c.UUID, c.ProjectUUID, c.ContactURN, c.ContactName, c.ChannelUUID, c.ExternalID,
		c.StartDate, c.EndDate, c.HasChatsRoom, c.CSAT, c.NPS, int(c.Resolution), c.CreatedAt)
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("op=conversation.create: %w", err)
	}
	return c, nil
}

// ElectActive returns the most recent IN_PROGRESS conversation for the tuple
// and demotes older active duplicates to UNCLASSIFIED in the same
// transaction. Duplicates should not exist; healing them here keeps the
// single-active invariant true after any interleaving.
func (r *ConversationRepo) ElectActive(ctx domain.Context, projectUUID, contactURN, channelUUID string) (domain.ActiveElection, error) {
	tracer := otel.Tracer("repo.conversations")
	ctx, span := tracer.Start(ctx, "conversations.ElectActive")
	defer span.End()

	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.ActiveElection{}, fmt.Errorf("op=conversation.elect: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	q := `SELECT ` + conversationColumns + ` FROM conversations
		WHERE project_uuid=$1 AND contact_urn=$2 AND channel_uuid=$3::uuid AND resolution=$4
		ORDER BY created_at DESC
		FOR UPDATE`
	rows, err := tx.Query(ctx, q, projectUUID, contactURN, channelUUID, int(domain.ResolutionInProgress))
	if err != nil {
		return domain.ActiveElection{}, fmt.Errorf("op=conversation.elect: %w", err)
	}
	var active []domain.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			rows.Close()
			return domain.ActiveElection{}, fmt.Errorf("op=conversation.elect: scan: %w", err)
		}
		active = append(active, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return domain.ActiveElection{}, fmt.Errorf("op=conversation.elect: %w", err)
	}

	var el domain.ActiveElection
	if len(active) > 0 {
		el.Conversation = active[0]
		el.Found = true
	}
	if len(active) > 1 {
		stale := make([]string, 0, len(active)-1)
		for _, c := range active[1:] {
			stale = append(stale, c.UUID)
		}
		if _, err := tx.Exec(ctx, `UPDATE conversations SET resolution=$1 WHERE uuid = ANY($2)`,
			int(domain.ResolutionUnclassified), stale); err != nil {
			return domain.ActiveElection{}, fmt.Errorf("op=conversation.elect: demote: %w", err)
		}
		el.Demoted = len(stale)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.ActiveElection{}, fmt.Errorf("op=conversation.elect: commit: %w", err)
	}
	return el, nil
}

// Latest returns the most recently created conversation for the tuple
// regardless of resolution.
func (r *ConversationRepo) Latest(ctx domain.Context, projectUUID, contactURN, channelUUID string) (domain.Conversation, error) {
	tracer := otel.Tracer("repo.conversations")
	ctx, span := tracer.Start(ctx, "conversations.Latest")
	defer span.End()

	q := `SELECT ` + conversationColumns + ` FROM conversations
		WHERE project_uuid=$1 AND contact_urn=$2 AND channel_uuid=$3::uuid
		ORDER BY created_at DESC LIMIT 1`
	c, err := scanConversation(r.Pool.QueryRow(ctx, q, projectUUID, contactURN, channelUUID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Conversation{}, fmt.Errorf("op=conversation.latest: %w", domain.ErrNotFound)
		}
		return domain.Conversation{}, fmt.Errorf("op=conversation.latest: %w", err)
	}
	return c, nil
}

// Update writes all mutable fields of the conversation by uuid.
func (r *ConversationRepo) Update(ctx domain.Context, c domain.Conversation) error {
	tracer := otel.Tracer("repo.conversations")
	ctx, span := tracer.Start(ctx, "conversations.Update")
	defer span.End()

	q := `UPDATE conversations SET
		contact_name=$2, external_id=NULLIF($3,''), start_date=$4, end_date=$5,
		has_chats_room=$6, csat=NULLIF($7,''), nps=$8, resolution=$9
		WHERE uuid=$1`
	tag, err := r.Pool.Exec(ctx, q, c.UUID, c.ContactName, c.ExternalID, c.StartDate, c.EndDate,
		c.HasChatsRoom, c.CSAT, c.NPS, int(c.Resolution))
	if err != nil {
		return fmt.Errorf("op=conversation.update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=conversation.update: %w", domain.ErrNotFound)
	}
	return nil
}

// updatableColumns whitelists the fields UpdateFields may touch.
var updatableColumns = map[string]string{
	"csat":           "csat",
	"nps":            "nps",
	"resolution":     "resolution",
	"contact_name":   "contact_name",
	"external_id":    "external_id",
	"start_date":     "start_date",
	"end_date":       "end_date",
	"has_chats_room": "has_chats_room",
}

// UpdateFields applies attribute writes to the latest conversation of the
// tuple inside one transaction, returning the row before and after the write
// so callers can detect a close transition.
func (r *ConversationRepo) UpdateFields(ctx domain.Context, projectUUID, contactURN, channelUUID string, fields map[string]any) (domain.Conversation, domain.Conversation, error) {
	tracer := otel.Tracer("repo.conversations")
	ctx, span := tracer.Start(ctx, "conversations.UpdateFields")
	defer span.End()

	var zero domain.Conversation
	if len(fields) == 0 {
		return zero, zero, fmt.Errorf("op=conversation.update_fields: %w: no fields", domain.ErrInvalidArgument)
	}

	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return zero, zero, fmt.Errorf("op=conversation.update_fields: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	q := `SELECT ` + conversationColumns + ` FROM conversations
		WHERE project_uuid=$1 AND contact_urn=$2 AND channel_uuid=$3::uuid
		ORDER BY created_at DESC LIMIT 1
		FOR UPDATE`
	before, err := scanConversation(tx.QueryRow(ctx, q, projectUUID, contactURN, channelUUID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return zero, zero, fmt.Errorf("op=conversation.update_fields: %w", domain.ErrNotFound)
		}
		return zero, zero, fmt.Errorf("op=conversation.update_fields: %w", err)
	}

	sets := make([]string, 0, len(fields))
	args := []any{before.UUID}
	for field, value := range fields {
		col, ok := updatableColumns[field]
		if !ok {
			return zero, zero, fmt.Errorf("op=conversation.update_fields: %w: field %q", domain.ErrInvalidArgument, field)
		}
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s=$%d", col, len(args)))
	}
	update := fmt.Sprintf(`UPDATE conversations SET %s WHERE uuid=$1 RETURNING `+conversationColumns, strings.Join(sets, ", "))
	after, err := scanConversation(tx.QueryRow(ctx, update, args...))
	if err != nil {
		return zero, zero, fmt.Errorf("op=conversation.update_fields: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return zero, zero, fmt.Errorf("op=conversation.update_fields: commit: %w", err)
	}
	return before, after, nil
}

// Get loads a conversation by uuid.
func (r *ConversationRepo) Get(ctx domain.Context, id string) (domain.Conversation, error) {
	tracer := otel.Tracer("repo.conversations")
	ctx, span := tracer.Start(ctx, "conversations.Get")
	defer span.End()

	q := `SELECT ` + conversationColumns + ` FROM conversations WHERE uuid=$1`
	c, err := scanConversation(r.Pool.QueryRow(ctx, q, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Conversation{}, fmt.Errorf("op=conversation.get: %w", domain.ErrNotFound)
		}
		return domain.Conversation{}, fmt.Errorf("op=conversation.get: %w", err)
	}
	return c, nil
}

// ListByProject returns one page of a project's conversations newest-first
// along with the unpaged total.
func (r *ConversationRepo) ListByProject(ctx domain.Context, projectUUID string, f domain.ConversationFilter) ([]domain.Conversation, int, error) {
	tracer := otel.Tracer("repo.conversations")
	ctx, span := tracer.Start(ctx, "conversations.ListByProject")
	defer span.End()

	where := []string{"project_uuid=$1"}
	args := []any{projectUUID}
	if f.Start != nil {
		args = append(args, *f.Start)
		where = append(where, fmt.Sprintf("start_date >= $%d", len(args)))
	}
	if f.End != nil {
		args = append(args, *f.End)
		where = append(where, fmt.Sprintf("end_date <= $%d", len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM conversations WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("op=conversation.list: count: %w", err)
	}

	pageSize := f.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	page := f.Page
	if page < 1 {
		page = 1
	}
	args = append(args, pageSize, (page-1)*pageSize)
	q := fmt.Sprintf(`SELECT %s FROM conversations WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		conversationColumns, cond, len(args)-1, len(args))

	rows, err := r.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("op=conversation.list: %w", err)
	}
	defer rows.Close()

	var out []domain.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("op=conversation.list: scan: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("op=conversation.list: %w", err)
	}
	return out, total, nil
}
