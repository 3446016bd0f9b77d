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

// InvoiceRepository persists invoices with the same lifecycle/audit contract
// as ClientRepository: every create, update, soft delete, and restore yields
// exactly one audit record, captured after the business write commits.
type InvoiceRepository struct {
	db       *sqlx.DB
	recorder *audit.Recorder
}

// NewInvoiceRepository creates an InvoiceRepository.
func NewInvoiceRepository(db *sqlx.DB, recorder *audit.Recorder) *InvoiceRepository {
	return &InvoiceRepository{db: db, recorder: recorder}
}

// Create inserts a new invoice and captures a created audit record. Status
// defaults to draft when unset.
func (r *InvoiceRepository) Create(ctx context.Context, rc audit.RequestContext, inv *models.Invoice) error {
	inv.ID = uuid.New().String()
	if inv.Status == "" {
		inv.Status = models.InvoiceStatusDraft
	}
	now := time.Now().UTC()
	inv.CreatedAt = now
	inv.UpdatedAt = now

	query := `
		INSERT INTO invoices (id, client_id, number, status, total_cents, currency, due_on, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.ExecContext(ctx, query,
		inv.ID, inv.ClientID, inv.Number, inv.Status, inv.TotalCents,
		inv.Currency, inv.DueOn, inv.Notes, inv.CreatedAt, inv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert invoice: %w", err)
	}

	r.recorder.Created(ctx, rc, inv)
	return nil
}

// Get retrieves a live invoice by ID. Returns (nil, nil) when not found.
func (r *InvoiceRepository) Get(ctx context.Context, id string) (*models.Invoice, error) {
	var inv models.Invoice
	err := r.db.GetContext(ctx, &inv,
		`SELECT * FROM invoices WHERE id = $1 AND deleted_at IS NULL`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	return &inv, nil
}

func (r *InvoiceRepository) getAny(ctx context.Context, id string) (*models.Invoice, error) {
	var inv models.Invoice
	err := r.db.GetContext(ctx, &inv, `SELECT * FROM invoices WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	return &inv, nil
}

// List returns live invoices, newest first, optionally filtered by client.
func (r *InvoiceRepository) List(ctx context.Context, clientID *string, limit, offset int) ([]*models.Invoice, error) {
	invoices := make([]*models.Invoice, 0)
	var err error
	if clientID != nil {
		err = r.db.SelectContext(ctx, &invoices,
			`SELECT * FROM invoices WHERE deleted_at IS NULL AND client_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
			*clientID, limit, offset)
	} else {
		err = r.db.SelectContext(ctx, &invoices,
			`SELECT * FROM invoices WHERE deleted_at IS NULL ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
			limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	return invoices, nil
}

// Update persists inv's business fields and captures an updated audit record;
// the pre-image is read from the row before the UPDATE overwrites it.
// Returns (false, nil) when the invoice does not exist or is soft-deleted.
func (r *InvoiceRepository) Update(ctx context.Context, rc audit.RequestContext, inv *models.Invoice) (bool, error) {
	before, err := r.Get(ctx, inv.ID)
	if err != nil {
		return false, err
	}
	if before == nil {
		return false, nil
	}
	beforeSnap := before.Attributes()

	inv.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE invoices
		SET client_id = $2, number = $3, status = $4, total_cents = $5,
		    currency = $6, due_on = $7, notes = $8, updated_at = $9
		WHERE id = $1 AND deleted_at IS NULL
	`
	_, err = r.db.ExecContext(ctx, query,
		inv.ID, inv.ClientID, inv.Number, inv.Status, inv.TotalCents,
		inv.Currency, inv.DueOn, inv.Notes, inv.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("update invoice: %w", err)
	}

	r.recorder.Updated(ctx, rc, inv, beforeSnap)
	return true, nil
}

// SoftDelete stamps deleted_at and captures a deleted audit record.
func (r *InvoiceRepository) SoftDelete(ctx context.Context, rc audit.RequestContext, id string) (bool, error) {
	inv, err := r.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if inv == nil {
		return false, nil
	}

	now := time.Now().UTC()
	_, err = r.db.ExecContext(ctx,
		`UPDATE invoices SET deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL`, id, now)
	if err != nil {
		return false, fmt.Errorf("soft-delete invoice: %w", err)
	}

	inv.DeletedAt = &now
	r.recorder.Deleted(ctx, rc, inv)
	return true, nil
}

// Restore clears deleted_at and captures a restored audit record.
func (r *InvoiceRepository) Restore(ctx context.Context, rc audit.RequestContext, id string) (bool, error) {
	inv, err := r.getAny(ctx, id)
	if err != nil {
		return false, err
	}
	if inv == nil || inv.DeletedAt == nil {
		return false, nil
	}

	_, err = r.db.ExecContext(ctx,
		`UPDATE invoices SET deleted_at = NULL WHERE id = $1 AND deleted_at IS NOT NULL`, id)
	if err != nil {
		return false, fmt.Errorf("restore invoice: %w", err)
	}

	inv.DeletedAt = nil
	r.recorder.Restored(ctx, rc, inv)
	return true, nil
}
