package usecase

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/weni-ai/nexus-conversations/internal/domain"
	"github.com/weni-ai/nexus-conversations/internal/event"
)

// saoPaulo is the reporting timezone of the data lake.
var saoPaulo = func() *time.Location {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		return time.UTC
	}
	return loc
}()

// Satisfaction records CSAT and NPS observations on the conversation and
// publishes them to the data lake.
type Satisfaction struct {
	registry  *Registry
	sender    domain.DataLakeSender
	agentCSAT string
	agentNPS  string
	now       func() time.Time
}

// NewSatisfaction constructs a Satisfaction service. The agent uuids identify
// the survey agents in data-lake metadata.
func NewSatisfaction(registry *Registry, sender domain.DataLakeSender, agentCSAT, agentNPS string) *Satisfaction {
	return &Satisfaction{registry: registry, sender: sender, agentCSAT: agentCSAT, agentNPS: agentNPS, now: time.Now}
}

// Apply handles a message carrying a weni_csat or weni_nps marker: updates
// the conversation field and publishes the validated data-lake event.
func (s *Satisfaction) Apply(ctx domain.Context, m event.Message) error {
	tracer := otel.Tracer("usecase.satisfaction")
	ctx, span := tracer.Start(ctx, "satisfaction.Apply")
	defer span.End()

	var fields map[string]any
	var agent string
	switch m.Key {
	case domain.KeyCSAT:
		fields = map[string]any{"csat": m.Value}
		agent = s.agentCSAT
	case domain.KeyNPS:
		score, err := strconv.Atoi(m.Value)
		if err != nil {
			return fmt.Errorf("%w: nps value %q is not an integer", domain.ErrInvalidArgument, m.Value)
		}
		fields = map[string]any{"nps": score}
		agent = s.agentNPS
	default:
		return fmt.Errorf("%w: unknown satisfaction key %q", domain.ErrInvalidArgument, m.Key)
	}

	conv, err := s.registry.UpdateFields(ctx, m.ProjectUUID, m.ContactURN, m.ChannelUUID, fields)
	if err != nil {
		return fmt.Errorf("op=satisfaction.apply: update conversation: %w", err)
	}

	metadata := map[string]any{
		"agent_uuid":        agent,
		"conversation_uuid": conv.UUID,
	}
	if conv.StartDate != nil {
		metadata["conversation_start_date"] = conv.StartDate.UTC().Format(time.RFC3339)
	}
	if conv.EndDate != nil {
		metadata["conversation_end_date"] = conv.EndDate.UTC().Format(time.RFC3339)
	}
	ev := domain.DataLakeEvent{
		EventName:  domain.DataLakeEventName,
		Date:       s.now().In(saoPaulo).Format(time.RFC3339),
		Project:    m.ProjectUUID,
		ContactURN: m.ContactURN,
		Key:        m.Key,
		ValueType:  "string",
		Value:      m.Value,
		Metadata:   metadata,
	}
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("op=satisfaction.apply: %w", err)
	}
	if err := s.sender.Send(ctx, ev); err != nil {
		return fmt.Errorf("op=satisfaction.apply: send: %w", err)
	}
	slog.Info("satisfaction recorded",
		slog.String("key", m.Key),
		slog.String("conversation", conv.UUID),
		slog.String("project", m.ProjectUUID))
	return nil
}
