package postgres

import (
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/weni-ai/nexus-conversations/internal/domain"
)

// ResolutionCounterRepo tallies conversation outcomes straight from the
// conversations table with a single grouped scan per day.
type ResolutionCounterRepo struct{ Pool PgxPool }

// NewResolutionCounterRepo constructs a ResolutionCounterRepo.
func NewResolutionCounterRepo(p PgxPool) *ResolutionCounterRepo {
	return &ResolutionCounterRepo{Pool: p}
}

const countsQuery = `SELECT channel_uuid::text,
	COUNT(*) FILTER (WHERE resolution = 0) AS resolved,
	COUNT(*) FILTER (WHERE resolution = 1) AS unresolved,
	COUNT(*) FILTER (WHERE resolution = 4 OR has_chats_room) AS has_chats_rooms,
	COUNT(*) FILTER (WHERE resolution = 3) AS unclassified
	FROM conversations
	WHERE project_uuid=$1 AND channel_uuid IS NOT NULL AND created_at >= $2 AND created_at < $3`

// AllChannelCounts returns per-channel tallies for conversations created on
// the given day.
func (r *ResolutionCounterRepo) AllChannelCounts(ctx domain.Context, projectUUID string, day time.Time) ([]domain.ChannelResolutionCount, error) {
	tracer := otel.Tracer("repo.counters")
	ctx, span := tracer.Start(ctx, "counters.AllChannelCounts")
	defer span.End()

	from, to := dayBounds(day)
	rows, err := r.Pool.Query(ctx, countsQuery+` GROUP BY channel_uuid`, projectUUID, from, to)
	if err != nil {
		return nil, fmt.Errorf("op=counter.all_channels: %w", err)
	}
	defer rows.Close()

	var out []domain.ChannelResolutionCount
	for rows.Next() {
		var c domain.ChannelResolutionCount
		if err := rows.Scan(&c.ChannelUUID, &c.Resolved, &c.Unresolved, &c.HasChatsRooms, &c.Unclassified); err != nil {
			return nil, fmt.Errorf("op=counter.all_channels: scan: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=counter.all_channels: %w", err)
	}
	return out, nil
}

// ChannelCounts returns the tally of one channel for the given day.
func (r *ResolutionCounterRepo) ChannelCounts(ctx domain.Context, projectUUID, channelUUID string, day time.Time) (domain.ChannelResolutionCount, error) {
	tracer := otel.Tracer("repo.counters")
	ctx, span := tracer.Start(ctx, "counters.ChannelCounts")
	defer span.End()

	from, to := dayBounds(day)
	q := countsQuery + ` AND channel_uuid=$4::uuid GROUP BY channel_uuid`
	row := r.Pool.QueryRow(ctx, q, projectUUID, from, to, channelUUID)
	c := domain.ChannelResolutionCount{ChannelUUID: channelUUID}
	if err := row.Scan(&c.ChannelUUID, &c.Resolved, &c.Unresolved, &c.HasChatsRooms, &c.Unclassified); err != nil {
		// No conversations on that day is an all-zero tally, not an error.
		if errors.Is(err, pgx.ErrNoRows) {
			return c, nil
		}
		return domain.ChannelResolutionCount{}, fmt.Errorf("op=counter.channel: %w", err)
	}
	return c, nil
}

func dayBounds(day time.Time) (time.Time, time.Time) {
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	return from, from.Add(24 * time.Hour)
}
