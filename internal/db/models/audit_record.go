// Package models defines the persisted domain types of the Gestio backend:
// the audited business entities (clients, invoices, projects) and the
// immutable audit records describing every change made to them.
package models

import (
	"time"

	"github.com/gestio-hq/gestio/internal/audit"
)

// AuditRecord is the database row shape of one audit trail entry. Snapshot
// and change columns are JSONB; the repository marshals them. Rows are
// append-only: no code path updates or deletes an audit record, and the
// table carries no updated_at column by design.
type AuditRecord struct {
	ID         string                  `db:"id" json:"id"`
	UserID     *string                 `db:"user_id" json:"user_id"`     // nil for system-triggered changes
	UserRole   *string                 `db:"user_role" json:"user_role"` // role at time of action
	Action     string                  `db:"action" json:"action"`       // created | updated | deleted | restored
	EntityType string                  `db:"entity_type" json:"entity_type"`
	EntityID   string                  `db:"entity_id" json:"entity_id"`
	OldValues  map[string]any          `db:"-" json:"old_values"` // nil for created
	NewValues  map[string]any          `db:"-" json:"new_values"`
	Changes    map[string]audit.Change `db:"-" json:"changes"` // non-empty only for updated
	IPAddress  string                  `db:"ip_address" json:"ip_address"`
	IPCountry  string                  `db:"ip_country" json:"ip_country"` // "XX" when resolution failed
	UserAgent  string                  `db:"user_agent" json:"user_agent"`
	Device     string                  `db:"device" json:"device"` // Mobile | Tablet | Desktop
	URL        string                  `db:"url" json:"url"`
	CreatedAt  time.Time               `db:"created_at" json:"created_at"`
}
