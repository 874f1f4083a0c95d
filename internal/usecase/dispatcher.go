package usecase

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/weni-ai/nexus-conversations/internal/adapter/observability"
	"github.com/weni-ai/nexus-conversations/internal/domain"
)

const receiveBackoff = time.Second

// Dispatcher runs the consumer loop: long-poll a batch, fan it out over a
// fixed worker set keyed by message group so each group stays strictly
// ordered, then ack everything that finished.
type Dispatcher struct {
	queue   domain.Queue
	ingest  *Ingestor
	workers int
}

// NewDispatcher constructs a Dispatcher with the given worker count.
func NewDispatcher(queue domain.Queue, ingest *Ingestor, workers int) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	return &Dispatcher{queue: queue, ingest: ingest, workers: workers}
}

// Run polls until ctx is cancelled. The in-flight batch always completes
// before Run returns, so shutdown never abandons half-processed work.
func (d *Dispatcher) Run(ctx domain.Context) error {
	slog.Info("consumer loop started", slog.Int("workers", d.workers))
	for {
		select {
		case <-ctx.Done():
			slog.Info("consumer loop stopped")
			return ctx.Err()
		default:
		}
		msgs, err := d.queue.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("consumer loop stopped")
				return ctx.Err()
			}
			observability.QueueReceiveErrors.Inc()
			slog.Error("queue receive failed", slog.Any("error", err))
			select {
			case <-time.After(receiveBackoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		if len(msgs) == 0 {
			continue
		}
		d.processBatch(ctx, msgs)
	}
}

// processBatch partitions the batch by group id hash and processes each
// partition sequentially on its own worker. The in-flight batch runs under
// context.WithoutCancel so cancellation stops new receives, not effects
// already underway.
func (d *Dispatcher) processBatch(ctx domain.Context, msgs []domain.RawMessage) {
	batchCtx := context.WithoutCancel(ctx)

	lanes := make([][]domain.RawMessage, d.workers)
	for _, m := range msgs {
		lane := groupLane(m.GroupID, d.workers)
		lanes[lane] = append(lanes[lane], m)
	}

	acks := make([][]domain.RawMessage, d.workers)
	var wg sync.WaitGroup
	for i, lane := range lanes {
		if len(lane) == 0 {
			continue
		}
		wg.Add(1)
		go func(i int, lane []domain.RawMessage) {
			defer wg.Done()
			for _, m := range lane {
				if d.ingest.Process(batchCtx, m).Acked() {
					acks[i] = append(acks[i], m)
				}
			}
		}(i, lane)
	}
	wg.Wait()

	var toDelete []domain.RawMessage
	for _, a := range acks {
		toDelete = append(toDelete, a...)
	}
	if len(toDelete) == 0 {
		return
	}
	if err := d.queue.DeleteBatch(batchCtx, toDelete); err != nil {
		slog.Error("batch ack failed, messages will redeliver",
			slog.Int("count", len(toDelete)),
			slog.Any("error", err))
	}
}

// groupLane pins a message group to one worker. Messages without a group id
// share lane zero; FIFO queues always carry one.
func groupLane(groupID string, workers int) int {
	if workers == 1 || groupID == "" {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(groupID))
	return int(h.Sum32() % uint32(workers))
}
