package usecase

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"

	"github.com/weni-ai/nexus-conversations/internal/adapter/observability"
	"github.com/weni-ai/nexus-conversations/internal/domain"
)

const classifyQueueDepth = 256

// ClassifyWorker classifies closed conversations asynchronously. It
// implements domain.ClassificationQueue; Start launches the worker pool that
// drains the queue.
type ClassifyWorker struct {
	convs      domain.ConversationRepository
	hot        domain.HotMessageStore
	archive    domain.ArchiveRepository
	topics     domain.TopicRepository
	classifier domain.Classifier
	results    domain.ClassificationRepository
	language   string
	workers    int

	jobs chan string
	wg   sync.WaitGroup
}

// NewClassifyWorker constructs a ClassifyWorker with the given pool size.
func NewClassifyWorker(
	convs domain.ConversationRepository,
	hot domain.HotMessageStore,
	archive domain.ArchiveRepository,
	topics domain.TopicRepository,
	classifier domain.Classifier,
	results domain.ClassificationRepository,
	language string,
	workers int,
) *ClassifyWorker {
	if workers < 1 {
		workers = 1
	}
	return &ClassifyWorker{
		convs:      convs,
		hot:        hot,
		archive:    archive,
		topics:     topics,
		classifier: classifier,
		results:    results,
		language:   language,
		workers:    workers,
		jobs:       make(chan string, classifyQueueDepth),
	}
}

// Enqueue submits a conversation for classification. It fails when the
// queue is full or the context expires rather than blocking the ingestion
// loop.
func (w *ClassifyWorker) Enqueue(ctx domain.Context, conversationUUID string) error {
	select {
	case w.jobs <- conversationUUID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("op=classify.enqueue: %w: queue full", domain.ErrConflict)
	}
}

// Start launches the worker pool. Workers exit when ctx is cancelled; Wait
// blocks until they drain.
func (w *ClassifyWorker) Start(ctx domain.Context) {
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case id := <-w.jobs:
					w.run(ctx, id)
				}
			}
		}()
	}
}

// Wait blocks until all workers have stopped.
func (w *ClassifyWorker) Wait() { w.wg.Wait() }

func (w *ClassifyWorker) run(ctx domain.Context, conversationUUID string) {
	if err := w.Process(ctx, conversationUUID); err != nil {
		observability.ClassificationJob("error")
		slog.Error("classification failed",
			slog.String("conversation", conversationUUID),
			slog.Any("error", err))
	}
}

// Process classifies one conversation synchronously: loads its messages (hot
// store first, archive fallback), invokes the classifier with the project's
// active topics and upserts the result.
func (w *ClassifyWorker) Process(ctx domain.Context, conversationUUID string) error {
	tracer := otel.Tracer("usecase.classify")
	ctx, span := tracer.Start(ctx, "classify.Process")
	defer span.End()

	conv, err := w.convs.Get(ctx, conversationUUID)
	if err != nil {
		return fmt.Errorf("op=classify: load conversation: %w", err)
	}
	msgs, err := w.loadMessages(ctx, conv)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		observability.ClassificationJob("skipped")
		slog.Info("classification skipped, no messages", slog.String("conversation", conv.UUID))
		return nil
	}

	topics, err := w.topics.ActiveByProject(ctx, conv.ProjectUUID)
	if err != nil {
		return fmt.Errorf("op=classify: load topics: %w", err)
	}
	payload := buildClassifierPayload(conv, msgs, topics, w.language)

	var result domain.ClassifierResult
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)
	err = backoff.Retry(func() error {
		var cerr error
		result, cerr = w.classifier.Classify(ctx, payload)
		return cerr
	}, policy)
	if err != nil {
		return fmt.Errorf("op=classify: invoke: %w", err)
	}

	c := domain.Classification{ConversationUUID: conv.UUID, Confidence: result.Confidence}
	if result.TopicUUID != "" {
		ok, err := w.topics.TopicExists(ctx, result.TopicUUID)
		if err != nil {
			return fmt.Errorf("op=classify: check topic: %w", err)
		}
		if ok {
			c.TopicUUID = &result.TopicUUID
		} else {
			slog.Warn("classifier returned unknown topic",
				slog.String("conversation", conv.UUID),
				slog.String("topic", result.TopicUUID))
		}
	}
	if result.SubTopicUUID != "" {
		ok, err := w.topics.SubTopicExists(ctx, result.SubTopicUUID)
		if err != nil {
			return fmt.Errorf("op=classify: check subtopic: %w", err)
		}
		if ok {
			c.SubTopicUUID = &result.SubTopicUUID
		} else {
			slog.Warn("classifier returned unknown subtopic",
				slog.String("conversation", conv.UUID),
				slog.String("subtopic", result.SubTopicUUID))
		}
	}
	if err := w.results.Upsert(ctx, c); err != nil {
		return fmt.Errorf("op=classify: save: %w", err)
	}
	observability.ClassificationJob("ok")
	slog.Info("conversation classified",
		slog.String("conversation", conv.UUID),
		slog.Float64("confidence", result.Confidence))
	return nil
}

// loadMessages prefers the hot store; after a migration the archive is the
// source of truth.
func (w *ClassifyWorker) loadMessages(ctx domain.Context, conv domain.Conversation) ([]domain.HotMessage, error) {
	msgs, err := w.hot.GetAllMessages(ctx, conv.ProjectUUID, conv.ContactURN, conv.ChannelUUID)
	if err != nil {
		slog.Warn("hot store read failed, falling back to archive",
			slog.String("conversation", conv.UUID),
			slog.Any("error", err))
	}
	if len(msgs) > 0 {
		return msgs, nil
	}
	archived, err := w.archive.Get(ctx, conv.UUID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("op=classify: read archive: %w", err)
	}
	return archived, nil
}

func buildClassifierPayload(conv domain.Conversation, msgs []domain.HotMessage, topics []domain.Topic, language string) domain.ClassifierPayload {
	// Stores return newest-first; the model reads the transcript in
	// chronological order.
	turns := make([]domain.ClassifierMessage, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		turns = append(turns, domain.ClassifierMessage{
			Sender:    msgs[i].Source,
			Timestamp: msgs[i].CreatedAt,
			Content:   msgs[i].Text,
		})
	}
	ct := make([]domain.ClassifierTopic, 0, len(topics))
	for _, t := range topics {
		subs := make([]domain.ClassifierSubTopic, 0, len(t.SubTopics))
		for _, s := range t.SubTopics {
			subs = append(subs, domain.ClassifierSubTopic{SubTopicUUID: s.UUID, Name: s.Name, Description: s.Description})
		}
		ct = append(ct, domain.ClassifierTopic{TopicUUID: t.UUID, Name: t.Name, Description: t.Description, SubTopics: subs})
	}
	return domain.ClassifierPayload{
		ProjectUUID:      conv.ProjectUUID,
		ConversationUUID: conv.UUID,
		Messages:         turns,
		Topics:           ct,
		Language:         language,
	}
}

