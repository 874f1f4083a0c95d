package postgres

import (
	"fmt"

	"go.opentelemetry.io/otel"

	"github.com/weni-ai/nexus-conversations/internal/domain"
)

// TopicRepo reads the classification label catalog.
type TopicRepo struct{ Pool PgxPool }

// NewTopicRepo constructs a TopicRepo with the given pool.
func NewTopicRepo(p PgxPool) *TopicRepo { return &TopicRepo{Pool: p} }

// ActiveByProject returns the active topics of a project with their active
// subtopics attached.
func (r *TopicRepo) ActiveByProject(ctx domain.Context, projectUUID string) ([]domain.Topic, error) {
	tracer := otel.Tracer("repo.topics")
	ctx, span := tracer.Start(ctx, "topics.ActiveByProject")
	defer span.End()

	rows, err := r.Pool.Query(ctx,
		`SELECT uuid, project_uuid, name, COALESCE(description,''), is_active FROM topics WHERE project_uuid=$1 AND is_active ORDER BY name`,
		projectUUID)
	if err != nil {
		return nil, fmt.Errorf("op=topic.active: %w", err)
	}
	defer rows.Close()

	var topics []domain.Topic
	index := map[string]int{}
	var ids []string
	for rows.Next() {
		var t domain.Topic
		if err := rows.Scan(&t.UUID, &t.ProjectUUID, &t.Name, &t.Description, &t.IsActive); err != nil {
			return nil, fmt.Errorf("op=topic.active: scan: %w", err)
		}
		index[t.UUID] = len(topics)
		ids = append(ids, t.UUID)
		topics = append(topics, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=topic.active: %w", err)
	}
	if len(topics) == 0 {
		return topics, nil
	}

	subRows, err := r.Pool.Query(ctx,
		`SELECT uuid, topic_uuid, name, COALESCE(description,''), is_active FROM subtopics WHERE topic_uuid = ANY($1) AND is_active ORDER BY name`,
		ids)
	if err != nil {
		return nil, fmt.Errorf("op=topic.subtopics: %w", err)
	}
	defer subRows.Close()
	for subRows.Next() {
		var s domain.SubTopic
		if err := subRows.Scan(&s.UUID, &s.TopicUUID, &s.Name, &s.Description, &s.IsActive); err != nil {
			return nil, fmt.Errorf("op=topic.subtopics: scan: %w", err)
		}
		if i, ok := index[s.TopicUUID]; ok {
			topics[i].SubTopics = append(topics[i].SubTopics, s)
		}
	}
	if err := subRows.Err(); err != nil {
		return nil, fmt.Errorf("op=topic.subtopics: %w", err)
	}
	return topics, nil
}

// TopicExists reports whether a topic uuid is known.
func (r *TopicRepo) TopicExists(ctx domain.Context, id string) (bool, error) {
	tracer := otel.Tracer("repo.topics")
	ctx, span := tracer.Start(ctx, "topics.TopicExists")
	defer span.End()

	var exists bool
	if err := r.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM topics WHERE uuid=$1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("op=topic.exists: %w", err)
	}
	return exists, nil
}

// SubTopicExists reports whether a subtopic uuid is known.
func (r *TopicRepo) SubTopicExists(ctx domain.Context, id string) (bool, error) {
	tracer := otel.Tracer("repo.topics")
	ctx, span := tracer.Start(ctx, "topics.SubTopicExists")
	defer span.End()

	var exists bool
	if err := r.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM subtopics WHERE uuid=$1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("op=subtopic.exists: %w", err)
	}
	return exists, nil
}
