package models

import (
	"time"

	"github.com/gestio-hq/gestio/internal/audit"
)

// Project statuses.
const (
	ProjectStatusActive   = "active"
	ProjectStatusOnHold   = "on_hold"
	ProjectStatusDone     = "done"
	ProjectStatusArchived = "archived"
)

// Project is a client engagement. Unlike clients and invoices, projects
// hard-delete: there is no deleted_at column and no restore path, so Project
// implements audit.Auditable but deliberately NOT audit.Restorable. This is
// what exercises the recorder's capability check.
type Project struct {
	ID              string    `db:"id" json:"id"`
	ClientID        string    `db:"client_id" json:"client_id"`
	Name            string    `db:"name" json:"name"`
	Status          string    `db:"status" json:"status"`
	HourlyRateCents int64     `db:"hourly_rate_cents" json:"hourly_rate_cents"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

var _ audit.Auditable = (*Project)(nil)

func (p *Project) EntityType() string { return "projects" }
func (p *Project) EntityID() string   { return p.ID }

func (p *Project) Attributes() audit.Snapshot {
	return audit.Snapshot{
		"client_id":         p.ClientID,
		"name":              p.Name,
		"status":            p.Status,
		"hourly_rate_cents": p.HourlyRateCents,
	}
}
