// Package usecase contains the application services of the conversation
// ingestion pipeline. Services depend on domain ports only; adapters are
// wired in at the composition root.
package usecase

import (
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/weni-ai/nexus-conversations/internal/domain"
	"github.com/weni-ai/nexus-conversations/internal/event"
)

// ConversationMigrator moves a closed conversation's hot messages into the
// archive.
type ConversationMigrator interface {
	Migrate(ctx domain.Context, conv domain.Conversation) (int, error)
}

// Registry owns the conversation lifecycle: election of the single active
// conversation per (project, contact, channel), window transitions, and the
// migrate-and-classify step when a conversation leaves IN_PROGRESS.
type Registry struct {
	projects domain.ProjectRepository
	convs    domain.ConversationRepository
	migrator ConversationMigrator
	classify domain.ClassificationQueue
}

// NewRegistry constructs a Registry.
func NewRegistry(projects domain.ProjectRepository, convs domain.ConversationRepository, migrator ConversationMigrator, classify domain.ClassificationQueue) *Registry {
	return &Registry{projects: projects, convs: convs, migrator: migrator, classify: classify}
}

// EnsureActive returns the single IN_PROGRESS conversation for the tuple,
// creating one when none exists. A nil conversation with nil error means the
// event carried no channel and no conversation applies.
func (r *Registry) EnsureActive(ctx domain.Context, projectUUID, contactURN, contactName, channelUUID string) (*domain.Conversation, error) {
	tracer := otel.Tracer("usecase.registry")
	ctx, span := tracer.Start(ctx, "registry.EnsureActive")
	defer span.End()

	if channelUUID == "" {
		slog.Info("message without channel, no conversation tracked",
			slog.String("project", projectUUID),
			slog.String("contact_urn", contactURN))
		return nil, nil
	}
	if _, err := r.projects.GetOrCreate(ctx, projectUUID); err != nil {
		return nil, err
	}
	el, err := r.convs.ElectActive(ctx, projectUUID, contactURN, channelUUID)
	if err != nil {
		return nil, err
	}
	if el.Found {
		if el.Demoted > 0 {
			slog.Warn("multiple active conversations healed",
				slog.String("project", projectUUID),
				slog.String("contact_urn", contactURN),
				slog.String("channel", channelUUID),
				slog.Int("demoted", el.Demoted))
		}
		return &el.Conversation, nil
	}

	now := time.Now().UTC()
	end := now.Add(24 * time.Hour)
	created, err := r.convs.Create(ctx, domain.Conversation{
		UUID:        uuid.NewString(),
		ProjectUUID: projectUUID,
		ContactURN:  contactURN,
		ContactName: contactName,
		ChannelUUID: channelUUID,
		StartDate:   &now,
		EndDate:     &end,
		Resolution:  domain.ResolutionInProgress,
	})
	if err != nil {
		return nil, err
	}
	slog.Info("conversation opened",
		slog.String("conversation", created.UUID),
		slog.String("project", projectUUID),
		slog.String("channel", channelUUID))
	return &created, nil
}

// ApplyWindow applies a conversation.window event to the latest conversation
// of the tuple, creating one when none exists. When the transition takes the
// conversation out of IN_PROGRESS the hot messages are migrated and the
// conversation is queued for classification; failures there are logged and do
// not fail the event.
func (r *Registry) ApplyWindow(ctx domain.Context, w event.Window) error {
	tracer := otel.Tracer("usecase.registry")
	ctx, span := tracer.Start(ctx, "registry.ApplyWindow")
	defer span.End()

	if w.ChannelUUID == "" {
		slog.Info("window without channel, skipped",
			slog.String("project", w.ProjectUUID),
			slog.String("contact_urn", w.ContactURN))
		return nil
	}
	if _, err := r.projects.GetOrCreate(ctx, w.ProjectUUID); err != nil {
		return err
	}

	_, err := r.convs.Latest(ctx, w.ProjectUUID, w.ContactURN, w.ChannelUUID)
	if errors.Is(err, domain.ErrNotFound) {
		return r.createFromWindow(ctx, w)
	}
	if err != nil {
		return err
	}

	fields := map[string]any{
		"external_id":    w.ExternalID,
		"has_chats_room": w.HasChatsRoom,
	}
	if w.ContactName != "" {
		fields["contact_name"] = w.ContactName
	}
	if w.StartDate != nil {
		fields["start_date"] = *w.StartDate
	}
	if w.EndDate != nil {
		fields["end_date"] = *w.EndDate
	}
	if w.HasChatsRoom {
		fields["resolution"] = int(domain.ResolutionHasChatRoom)
	}
	before, after, err := r.convs.UpdateFields(ctx, w.ProjectUUID, w.ContactURN, w.ChannelUUID, fields)
	if err != nil {
		return err
	}
	if before.InProgress() && !after.InProgress() {
		r.onClose(ctx, after)
	}
	return nil
}

// UpdateFields applies whitelisted attribute writes to the latest
// conversation of the tuple. A resolution transition out of IN_PROGRESS
// triggers migration and classification after the save.
func (r *Registry) UpdateFields(ctx domain.Context, projectUUID, contactURN, channelUUID string, fields map[string]any) (domain.Conversation, error) {
	tracer := otel.Tracer("usecase.registry")
	ctx, span := tracer.Start(ctx, "registry.UpdateFields")
	defer span.End()

	before, after, err := r.convs.UpdateFields(ctx, projectUUID, contactURN, channelUUID, fields)
	if err != nil {
		return domain.Conversation{}, err
	}
	if before.InProgress() && !after.InProgress() {
		r.onClose(ctx, after)
	}
	return after, nil
}

func (r *Registry) createFromWindow(ctx domain.Context, w event.Window) error {
	now := time.Now().UTC()
	start, end := w.StartDate, w.EndDate
	if start == nil {
		start = &now
	}
	if end == nil {
		e := now.Add(24 * time.Hour)
		end = &e
	}
	resolution := domain.ResolutionInProgress
	if w.HasChatsRoom {
		resolution = domain.ResolutionHasChatRoom
	}
	created, err := r.convs.Create(ctx, domain.Conversation{
		UUID:         uuid.NewString(),
		ProjectUUID:  w.ProjectUUID,
		ContactURN:   w.ContactURN,
		ContactName:  w.ContactName,
		ChannelUUID:  w.ChannelUUID,
		ExternalID:   w.ExternalID,
		StartDate:    start,
		EndDate:      end,
		HasChatsRoom: w.HasChatsRoom,
		Resolution:   resolution,
	})
	if err != nil {
		return err
	}
	slog.Info("conversation created from window",
		slog.String("conversation", created.UUID),
		slog.String("project", w.ProjectUUID),
		slog.String("resolution", resolution.String()))
	return nil
}

// onClose runs the close side effects. Errors are logged only: the
// conversation row is already saved and the hot store garbage-collects via
// TTL, so the triggering event must still be acknowledged.
func (r *Registry) onClose(ctx domain.Context, conv domain.Conversation) {
	if r.migrator != nil {
		if _, err := r.migrator.Migrate(ctx, conv); err != nil {
			slog.Error("migration after close failed",
				slog.String("conversation", conv.UUID),
				slog.Any("error", err))
		}
	}
	if r.classify != nil {
		if err := r.classify.Enqueue(ctx, conv.UUID); err != nil {
			slog.Error("classification enqueue failed",
				slog.String("conversation", conv.UUID),
				slog.Any("error", err))
		}
	}
}
