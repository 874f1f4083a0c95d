package postgres

import (
	"fmt"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/weni-ai/nexus-conversations/internal/domain"
)

// ProjectRepo upserts and reads project cache rows.
type ProjectRepo struct{ Pool PgxPool }

// NewProjectRepo constructs a ProjectRepo with the given pool.
func NewProjectRepo(p PgxPool) *ProjectRepo { return &ProjectRepo{Pool: p} }

// GetOrCreate inserts the project on first sight (name defaults to null) and
// returns the stored row either way.
func (r *ProjectRepo) GetOrCreate(ctx domain.Context, id string) (domain.Project, error) {
	tracer := otel.Tracer("repo.projects")
	ctx, span := tracer.Start(ctx, "projects.GetOrCreate")
	defer span.End()

	q := `INSERT INTO projects (uuid, name, created_at) VALUES ($1, NULL, $2) ON CONFLICT (uuid) DO NOTHING`
	if _, err := r.Pool.Exec(ctx, q, id, time.Now().UTC()); err != nil {
		return domain.Project{}, fmt.Errorf("op=project.get_or_create: %w", err)
	}

	var p domain.Project
	row := r.Pool.QueryRow(ctx, `SELECT uuid, name, created_at FROM projects WHERE uuid=$1`, id)
	if err := row.Scan(&p.UUID, &p.Name, &p.CreatedAt); err != nil {
		return domain.Project{}, fmt.Errorf("op=project.get_or_create: %w", err)
	}
	return p, nil
}

// Exists reports whether the project is known.
func (r *ProjectRepo) Exists(ctx domain.Context, id string) (bool, error) {
	tracer := otel.Tracer("repo.projects")
	ctx, span := tracer.Start(ctx, "projects.Exists")
	defer span.End()

	var exists bool
	row := r.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM projects WHERE uuid=$1)`, id)
	if err := row.Scan(&exists); err != nil {
		return false, fmt.Errorf("op=project.exists: %w", err)
	}
	return exists, nil
}
