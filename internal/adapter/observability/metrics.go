package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ingestion loop outcome labels.
const (
	ResultProcessed = "processed"
	ResultRejected  = "rejected"
	ResultDeferred  = "deferred"
)

var (
	// EventsTotal counts raw queue messages by decoded event type and
	// processing outcome.
	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conversations_events_total",
		Help: "Raw queue messages processed, by event type and result.",
	}, []string{"event_type", "result"})

	// MigrationsTotal counts hot-store migrations by outcome.
	MigrationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conversations_migrations_total",
		Help: "Hot-store to durable-store migrations, by outcome.",
	}, []string{"status"})

	// MigratedMessages observes how many messages each migration carried.
	MigratedMessages = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "conversations_migrated_messages",
		Help:    "Messages moved per migration.",
		Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250},
	})

	// ClassificationJobsTotal counts classification worker outcomes.
	ClassificationJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conversations_classification_jobs_total",
		Help: "Classification jobs, by outcome.",
	}, []string{"status"})

	// BillingPostsTotal counts billing rollup deliveries.
	BillingPostsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conversations_billing_posts_total",
		Help: "Billing aggregation posts, by outcome.",
	}, []string{"status"})

	// DataLakeEventsTotal counts data-lake publications.
	DataLakeEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conversations_datalake_events_total",
		Help: "Data-lake events, by key and outcome.",
	}, []string{"key", "status"})

	// QueueReceiveErrors counts failed long polls.
	QueueReceiveErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conversations_queue_receive_errors_total",
		Help: "Failed SQS receive calls.",
	})
)

// Event records one processed queue message.
func Event(eventType, result string) { EventsTotal.WithLabelValues(eventType, result).Inc() }

// Migration records one migration attempt and, on success, its size.
func Migration(status string, messages int) {
	MigrationsTotal.WithLabelValues(status).Inc()
	if status == "ok" {
		MigratedMessages.Observe(float64(messages))
	}
}

// ClassificationJob records one classification worker outcome.
func ClassificationJob(status string) { ClassificationJobsTotal.WithLabelValues(status).Inc() }

// BillingPost records one billing rollup delivery.
func BillingPost(status string) { BillingPostsTotal.WithLabelValues(status).Inc() }

// DataLakeEvent records one data-lake publication.
func DataLakeEvent(key, status string) { DataLakeEventsTotal.WithLabelValues(key, status).Inc() }
