package usecase

import (
	"log/slog"

	"go.opentelemetry.io/otel"

	"github.com/weni-ai/nexus-conversations/internal/adapter/observability"
	"github.com/weni-ai/nexus-conversations/internal/domain"
	"github.com/weni-ai/nexus-conversations/internal/event"
)

// Result classifies the outcome of processing one raw queue message.
type Result int

const (
	// ResultProcessed means the effects landed; the message is acked.
	ResultProcessed Result = iota
	// ResultRejected means the failure is deterministic (poison pill); the
	// message is acked so it never redelivers.
	ResultRejected
	// ResultDeferred means the failure looks transient; the message is left
	// un-acked for redelivery.
	ResultDeferred
)

func (r Result) String() string {
	switch r {
	case ResultProcessed:
		return observability.ResultProcessed
	case ResultRejected:
		return observability.ResultRejected
	case ResultDeferred:
		return observability.ResultDeferred
	}
	return "unknown"
}

// Acked reports whether the raw message should be deleted from the queue.
func (r Result) Acked() bool { return r != ResultDeferred }

// Ingestor routes decoded events into the registry, hot store and
// side-effect services.
type Ingestor struct {
	registry     *Registry
	hot          domain.HotMessageStore
	satisfaction *Satisfaction
	ttlHours     int
}

// NewIngestor constructs an Ingestor. ttlHours bounds how long hot messages
// outlive their conversation.
func NewIngestor(registry *Registry, hot domain.HotMessageStore, satisfaction *Satisfaction, ttlHours int) *Ingestor {
	return &Ingestor{registry: registry, hot: hot, satisfaction: satisfaction, ttlHours: ttlHours}
}

// Process handles one raw queue message and reports whether to ack it.
func (i *Ingestor) Process(ctx domain.Context, raw domain.RawMessage) Result {
	tracer := otel.Tracer("usecase.ingest")
	ctx, span := tracer.Start(ctx, "ingest.Process")
	defer span.End()

	ev, err := event.Decode(raw)
	if err != nil {
		// Decode failures never heal on redelivery.
		slog.Warn("undecodable queue message dropped",
			slog.String("message_id", raw.ID),
			slog.Any("error", err))
		observability.Event("unknown", observability.ResultRejected)
		return ResultRejected
	}

	var result Result
	switch e := ev.(type) {
	case event.Message:
		result = i.processMessage(ctx, e)
	case event.Window:
		result = i.processWindow(ctx, e)
	default:
		slog.Warn("unhandled event kind dropped", slog.String("event_type", ev.EventType()))
		result = ResultRejected
	}
	observability.Event(ev.EventType(), result.String())
	return result
}

func (i *Ingestor) processMessage(ctx domain.Context, m event.Message) Result {
	conv, err := i.registry.EnsureActive(ctx, m.ProjectUUID, m.ContactURN, m.ContactName, m.ChannelUUID)
	if err != nil {
		slog.Error("conversation election failed, deferring",
			slog.String("message_id", m.ID),
			slog.String("project", m.ProjectUUID),
			slog.Any("error", err))
		return ResultDeferred
	}
	if conv == nil {
		// No channel, nothing to track. Still acked.
		return ResultProcessed
	}
	if conv.InProgress() {
		err := i.hot.Store(ctx, m.ProjectUUID, m.ContactURN, m.ChannelUUID, domain.HotMessageInput{
			ID:        m.ID,
			Text:      m.Text,
			Source:    m.Source,
			CreatedAt: m.CreatedAt,
		}, domain.ResolutionInProgress, i.ttlHours)
		if err != nil {
			slog.Error("hot store write failed, deferring",
				slog.String("message_id", m.ID),
				slog.String("conversation", conv.UUID),
				slog.Any("error", err))
			return ResultDeferred
		}
	}
	if (m.Key == domain.KeyCSAT || m.Key == domain.KeyNPS) && m.Value != "" {
		if err := i.satisfaction.Apply(ctx, m); err != nil {
			// The message itself already landed; satisfaction is best effort.
			slog.Error("satisfaction side effect failed",
				slog.String("key", m.Key),
				slog.String("conversation", conv.UUID),
				slog.Any("error", err))
		}
	}
	return ResultProcessed
}

func (i *Ingestor) processWindow(ctx domain.Context, w event.Window) Result {
	if err := i.registry.ApplyWindow(ctx, w); err != nil {
		slog.Error("window event failed, deferring",
			slog.String("project", w.ProjectUUID),
			slog.String("contact_urn", w.ContactURN),
			slog.Any("error", err))
		return ResultDeferred
	}
	return ResultProcessed
}
