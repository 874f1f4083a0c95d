package usecase

import (
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"

	"github.com/weni-ai/nexus-conversations/internal/adapter/observability"
	"github.com/weni-ai/nexus-conversations/internal/domain"
)

// Migrator moves the hot-store messages of a closed conversation into the
// durable archive and clears the hot partition afterwards.
type Migrator struct {
	hot     domain.HotMessageStore
	archive domain.ArchiveRepository
}

// NewMigrator constructs a Migrator.
func NewMigrator(hot domain.HotMessageStore, archive domain.ArchiveRepository) *Migrator {
	return &Migrator{hot: hot, archive: archive}
}

// Migrate archives every hot message of the conversation and returns how many
// were moved. An archive write failure aborts and surfaces; a hot-store
// cleanup failure is logged only, the TTL collects the leftovers.
func (m *Migrator) Migrate(ctx domain.Context, conv domain.Conversation) (int, error) {
	tracer := otel.Tracer("usecase.migrate")
	ctx, span := tracer.Start(ctx, "migrate.Migrate")
	defer span.End()

	msgs, err := m.hot.GetAllMessages(ctx, conv.ProjectUUID, conv.ContactURN, conv.ChannelUUID)
	if err != nil {
		observability.Migration("error", 0)
		return 0, fmt.Errorf("op=migrate: read hot store: %w", err)
	}
	if len(msgs) == 0 {
		observability.Migration("empty", 0)
		slog.Info("migration skipped, no hot messages", slog.String("conversation", conv.UUID))
		return 0, nil
	}
	if err := m.archive.Upsert(ctx, conv.UUID, msgs); err != nil {
		observability.Migration("error", 0)
		return 0, fmt.Errorf("op=migrate: archive: %w", err)
	}
	if _, err := m.hot.DeleteAll(ctx, conv.ProjectUUID, conv.ContactURN, conv.ChannelUUID); err != nil {
		slog.Warn("hot store cleanup failed, relying on TTL",
			slog.String("conversation", conv.UUID),
			slog.Any("error", err))
	}
	observability.Migration("ok", len(msgs))
	slog.Info("conversation migrated",
		slog.String("conversation", conv.UUID),
		slog.Int("messages", len(msgs)))
	return len(msgs), nil
}
