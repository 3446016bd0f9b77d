package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/gestio-hq/gestio/internal/audit"
	"github.com/gestio-hq/gestio/internal/db/models"
)

// ProjectRepository persists projects. Projects hard-delete — the row is
// gone after Delete, the attribute snapshot in the deleted audit record is
// what remains — and there is no Restore method, matching the model's lack
// of the audit.Restorable capability.
type ProjectRepository struct {
	db       *sqlx.DB
	recorder *audit.Recorder
}

// NewProjectRepository creates a ProjectRepository.
func NewProjectRepository(db *sqlx.DB, recorder *audit.Recorder) *ProjectRepository {
	return &ProjectRepository{db: db, recorder: recorder}
}

// Create inserts a new project and captures a created audit record.
func (r *ProjectRepository) Create(ctx context.Context, rc audit.RequestContext, p *models.Project) error {
	p.ID = uuid.New().String()
	if p.Status == "" {
		p.Status = models.ProjectStatusActive
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	query := `
		INSERT INTO projects (id, client_id, name, status, hourly_rate_cents, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.ClientID, p.Name, p.Status, p.HourlyRateCents, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}

	r.recorder.Created(ctx, rc, p)
	return nil
}

// Get retrieves a project by ID. Returns (nil, nil) when not found.
func (r *ProjectRepository) Get(ctx context.Context, id string) (*models.Project, error) {
	var p models.Project
	err := r.db.GetContext(ctx, &p, `SELECT * FROM projects WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return &p, nil
}

// List returns projects, newest first, with pagination.
func (r *ProjectRepository) List(ctx context.Context, limit, offset int) ([]*models.Project, error) {
	projects := make([]*models.Project, 0)
	err := r.db.SelectContext(ctx, &projects,
		`SELECT * FROM projects ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

// Update persists p's business fields and captures an updated audit record.
// Returns (false, nil) when the project does not exist.
func (r *ProjectRepository) Update(ctx context.Context, rc audit.RequestContext, p *models.Project) (bool, error) {
	before, err := r.Get(ctx, p.ID)
	if err != nil {
		return false, err
	}
	if before == nil {
		return false, nil
	}
	beforeSnap := before.Attributes()

	p.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE projects
		SET client_id = $2, name = $3, status = $4, hourly_rate_cents = $5, updated_at = $6
		WHERE id = $1
	`
	_, err = r.db.ExecContext(ctx, query,
		p.ID, p.ClientID, p.Name, p.Status, p.HourlyRateCents, p.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("update project: %w", err)
	}

	r.recorder.Updated(ctx, rc, p, beforeSnap)
	return true, nil
}

// Delete removes the project row permanently and captures a deleted audit
// record carrying the final attribute snapshot.
func (r *ProjectRepository) Delete(ctx context.Context, rc audit.RequestContext, id string) (bool, error) {
	p, err := r.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if p == nil {
		return false, nil
	}

	if _, err := r.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id); err != nil {
		return false, fmt.Errorf("delete project: %w", err)
	}

	r.recorder.Deleted(ctx, rc, p)
	return true, nil
}
