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

// ClientRepository persists clients and feeds every lifecycle transition
// through the audit recorder. The recorder call always happens after the
// database write succeeds — a failed business write produces no audit record,
// while a failed audit write never fails the business operation (that policy
// lives inside the recorder).
type ClientRepository struct {
	db       *sqlx.DB
	recorder *audit.Recorder
}

// NewClientRepository creates a ClientRepository.
func NewClientRepository(db *sqlx.DB, recorder *audit.Recorder) *ClientRepository {
	return &ClientRepository{db: db, recorder: recorder}
}

// Create inserts a new client and captures a created audit record.
func (r *ClientRepository) Create(ctx context.Context, rc audit.RequestContext, c *models.Client) error {
	c.ID = uuid.New().String()
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	query := `
		INSERT INTO clients (id, name, email, phone, company, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		c.ID, c.Name, c.Email, c.Phone, c.Company, c.Notes, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert client: %w", err)
	}

	r.recorder.Created(ctx, rc, c)
	return nil
}

// Get retrieves a live (not soft-deleted) client by ID. Returns (nil, nil)
// when no such client exists.
func (r *ClientRepository) Get(ctx context.Context, id string) (*models.Client, error) {
	var c models.Client
	err := r.db.GetContext(ctx, &c,
		`SELECT * FROM clients WHERE id = $1 AND deleted_at IS NULL`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get client: %w", err)
	}
	return &c, nil
}

// getAny retrieves a client regardless of soft-delete state.
func (r *ClientRepository) getAny(ctx context.Context, id string) (*models.Client, error) {
	var c models.Client
	err := r.db.GetContext(ctx, &c, `SELECT * FROM clients WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get client: %w", err)
	}
	return &c, nil
}

// List returns live clients, newest first, with pagination.
func (r *ClientRepository) List(ctx context.Context, limit, offset int) ([]*models.Client, error) {
	clients := make([]*models.Client, 0)
	err := r.db.SelectContext(ctx, &clients,
		`SELECT * FROM clients WHERE deleted_at IS NULL ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	return clients, nil
}

// Update persists c's business fields and captures an updated audit record.
// The pre-change snapshot is read from the database before the UPDATE runs —
// by the time the recorder sees the entity, its in-memory attributes are
// already the new values, so the pre-image must come from the row.
//
// Returns (false, nil) when the client does not exist or is soft-deleted.
func (r *ClientRepository) Update(ctx context.Context, rc audit.RequestContext, c *models.Client) (bool, error) {
	before, err := r.Get(ctx, c.ID)
	if err != nil {
		return false, err
	}
	if before == nil {
		return false, nil
	}
	beforeSnap := before.Attributes()

	c.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE clients
		SET name = $2, email = $3, phone = $4, company = $5, notes = $6, updated_at = $7
		WHERE id = $1 AND deleted_at IS NULL
	`
	_, err = r.db.ExecContext(ctx, query,
		c.ID, c.Name, c.Email, c.Phone, c.Company, c.Notes, c.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("update client: %w", err)
	}

	r.recorder.Updated(ctx, rc, c, beforeSnap)
	return true, nil
}

// SoftDelete stamps deleted_at and captures a deleted audit record. Returns
// (false, nil) when the client does not exist or is already deleted.
func (r *ClientRepository) SoftDelete(ctx context.Context, rc audit.RequestContext, id string) (bool, error) {
	c, err := r.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if c == nil {
		return false, nil
	}

	now := time.Now().UTC()
	_, err = r.db.ExecContext(ctx,
		`UPDATE clients SET deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL`, id, now)
	if err != nil {
		return false, fmt.Errorf("soft-delete client: %w", err)
	}

	c.DeletedAt = &now
	r.recorder.Deleted(ctx, rc, c)
	return true, nil
}

// Restore clears deleted_at on a soft-deleted client and captures a restored
// audit record. Returns (false, nil) when the client does not exist or is
// not deleted.
func (r *ClientRepository) Restore(ctx context.Context, rc audit.RequestContext, id string) (bool, error) {
	c, err := r.getAny(ctx, id)
	if err != nil {
		return false, err
	}
	if c == nil || c.DeletedAt == nil {
		return false, nil
	}

	_, err = r.db.ExecContext(ctx,
		`UPDATE clients SET deleted_at = NULL WHERE id = $1 AND deleted_at IS NOT NULL`, id)
	if err != nil {
		return false, fmt.Errorf("restore client: %w", err)
	}

	c.DeletedAt = nil
	r.recorder.Restored(ctx, rc, c)
	return true, nil
}
