// Package repositories implements the persistence layer. Entity repositories
// (clients, invoices, projects) run the business writes and invoke the audit
// recorder around them; AuditRepository is the append-only store the recorder
// writes into and the read surface compliance tooling queries.
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/gestio-hq/gestio/internal/audit"
	"github.com/gestio-hq/gestio/internal/db/models"
)

// AuditRepository persists audit records. The write surface is Write alone;
// no update or delete statement for audit_records exists anywhere in the
// codebase, which is what makes the trail append-only.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository creates an AuditRepository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Write implements audit.Writer: it appends exactly one row for rec.
func (r *AuditRepository) Write(ctx context.Context, rec *audit.Record) error {
	var oldJSON []byte
	if rec.OldValues != nil {
		b, err := json.Marshal(rec.OldValues)
		if err != nil {
			return fmt.Errorf("marshal old_values: %w", err)
		}
		oldJSON = b
	}

	newJSON, err := json.Marshal(rec.NewValues)
	if err != nil {
		return fmt.Errorf("marshal new_values: %w", err)
	}

	changes := rec.Changes
	if changes == nil {
		changes = map[string]audit.Change{}
	}
	changesJSON, err := json.Marshal(changes)
	if err != nil {
		return fmt.Errorf("marshal changes: %w", err)
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO audit_records (
			id, user_id, user_role, action, entity_type, entity_id,
			old_values, new_values, changes,
			ip_address, ip_country, user_agent, device, url, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err = r.db.ExecContext(ctx, query,
		uuid.New().String(),
		rec.UserID,
		rec.UserRole,
		string(rec.Action),
		rec.EntityType,
		rec.EntityID,
		oldJSON,
		newJSON,
		changesJSON,
		rec.IPAddress,
		rec.IPCountry,
		rec.UserAgent,
		string(rec.Device),
		rec.URL,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}

	return nil
}

// AuditFilters narrows List queries. Nil fields are ignored.
type AuditFilters struct {
	UserID     *string
	Action     *string
	EntityType *string
	EntityID   *string
	StartDate  *time.Time
	EndDate    *time.Time
}

// List retrieves audit records, newest first, with filtering and pagination.
// It returns the page plus the total count matching the filters.
func (r *AuditRepository) List(ctx context.Context, filters AuditFilters, limit, offset int) ([]*models.AuditRecord, int, error) {
	countQuery := `SELECT COUNT(*) FROM audit_records WHERE 1=1`
	query := `
		SELECT id, user_id, user_role, action, entity_type, entity_id,
		       old_values, new_values, changes,
		       ip_address, ip_country, user_agent, device, url, created_at
		FROM audit_records
		WHERE 1=1
	`

	args := make([]interface{}, 0)
	paramIndex := 1

	addFilter := func(clause string, value interface{}) {
		cond := fmt.Sprintf(clause, paramIndex)
		countQuery += cond
		query += cond
		args = append(args, value)
		paramIndex++
	}

	if filters.UserID != nil {
		addFilter(` AND user_id = $%d`, *filters.UserID)
	}
	if filters.Action != nil {
		addFilter(` AND action = $%d`, *filters.Action)
	}
	if filters.EntityType != nil {
		addFilter(` AND entity_type = $%d`, *filters.EntityType)
	}
	if filters.EntityID != nil {
		addFilter(` AND entity_id = $%d`, *filters.EntityID)
	}
	if filters.StartDate != nil {
		addFilter(` AND created_at >= $%d`, *filters.StartDate)
	}
	if filters.EndDate != nil {
		addFilter(` AND created_at <= $%d`, *filters.EndDate)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit records: %w", err)
	}

	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, paramIndex, paramIndex+1)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list audit records: %w", err)
	}
	defer rows.Close()

	records := make([]*models.AuditRecord, 0)
	for rows.Next() {
		rec, err := scanAuditRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, rec)
	}

	return records, total, rows.Err()
}

// Get retrieves a single audit record by ID. Returns (nil, nil) when no such
// record exists.
func (r *AuditRepository) Get(ctx context.Context, id string) (*models.AuditRecord, error) {
	query := `
		SELECT id, user_id, user_role, action, entity_type, entity_id,
		       old_values, new_values, changes,
		       ip_address, ip_country, user_agent, device, url, created_at
		FROM audit_records
		WHERE id = $1
	`

	rec, err := scanAuditRecord(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAuditRecord(s scanner) (*models.AuditRecord, error) {
	rec := &models.AuditRecord{}
	var oldJSON, newJSON, changesJSON []byte

	err := s.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.UserRole,
		&rec.Action,
		&rec.EntityType,
		&rec.EntityID,
		&oldJSON,
		&newJSON,
		&changesJSON,
		&rec.IPAddress,
		&rec.IPCountry,
		&rec.UserAgent,
		&rec.Device,
		&rec.URL,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if oldJSON != nil {
		if err := json.Unmarshal(oldJSON, &rec.OldValues); err != nil {
			return nil, fmt.Errorf("unmarshal old_values: %w", err)
		}
	}
	if newJSON != nil {
		if err := json.Unmarshal(newJSON, &rec.NewValues); err != nil {
			return nil, fmt.Errorf("unmarshal new_values: %w", err)
		}
	}
	if changesJSON != nil {
		if err := json.Unmarshal(changesJSON, &rec.Changes); err != nil {
			return nil, fmt.Errorf("unmarshal changes: %w", err)
		}
	}

	return rec, nil
}
