package usecase

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/weni-ai/nexus-conversations/internal/domain"
)

// Billing aggregates per-channel conversation tallies for a day and posts
// them to the billing service, one request per configured project.
type Billing struct {
	counter  domain.ResolutionCounter
	client   domain.BillingClient
	projects []string
	now      func() time.Time
}

// NewBilling constructs a Billing aggregator over the configured projects.
func NewBilling(counter domain.ResolutionCounter, client domain.BillingClient, projects []string) *Billing {
	return &Billing{counter: counter, client: client, projects: projects, now: time.Now}
}

// RunYesterday aggregates the previous UTC day, the normal scheduled run.
func (b *Billing) RunYesterday(ctx domain.Context) error {
	return b.Run(ctx, b.now().UTC().AddDate(0, 0, -1))
}

// Run aggregates the given day for every configured project. Per-project
// failures are joined so one broken project does not starve the rest.
func (b *Billing) Run(ctx domain.Context, day time.Time) error {
	tracer := otel.Tracer("usecase.billing")
	ctx, span := tracer.Start(ctx, "billing.Run")
	defer span.End()

	var errs []error
	for _, project := range b.projects {
		if err := b.runProject(ctx, project, day); err != nil {
			slog.Error("billing aggregation failed",
				slog.String("project", project),
				slog.String("date", day.Format("2006-01-02")),
				slog.Any("error", err))
			errs = append(errs, fmt.Errorf("project %s: %w", project, err))
		}
	}
	return errors.Join(errs...)
}

func (b *Billing) runProject(ctx domain.Context, projectUUID string, day time.Time) error {
	counts, err := b.counter.AllChannelCounts(ctx, projectUUID, day)
	if err != nil {
		return fmt.Errorf("op=billing.run: counts: %w", err)
	}
	date := day.Format("2006-01-02")
	rows := make([]domain.ChannelConversation, 0, len(counts))
	for _, c := range counts {
		rows = append(rows, domain.ChannelConversation{
			ChannelUUID: c.ChannelUUID,
			Date:        date,
			ResolutionCount: domain.ResolutionCount{
				Resolved:      c.Resolved,
				Unresolved:    c.Unresolved,
				HasChatsRooms: c.HasChatsRooms,
				Unclassified:  c.Unclassified,
			},
		})
	}
	return b.client.SendConversations(ctx, projectUUID, rows)
}
