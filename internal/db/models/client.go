package models

import (
	"time"

	"github.com/gestio-hq/gestio/internal/audit"
)

// Client is a customer the business invoices. Clients soft-delete: removal
// stamps deleted_at so the row (and its invoice history) survives, and a
// soft-deleted client can be restored.
type Client struct {
	ID        string     `db:"id" json:"id"`
	Name      string     `db:"name" json:"name"`
	Email     string     `db:"email" json:"email"`
	Phone     string     `db:"phone" json:"phone"`
	Company   string     `db:"company" json:"company"`
	Notes     string     `db:"notes" json:"notes"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}

// Compile-time check that Client opts in to auditing with restore support.
var _ audit.Restorable = (*Client)(nil)

func (c *Client) EntityType() string { return "clients" }
func (c *Client) EntityID() string   { return c.ID }

// Attributes returns the business fields of the client. Bookkeeping columns
// (timestamps, deleted_at) are excluded so that routine saves do not diff on
// updated_at churn.
func (c *Client) Attributes() audit.Snapshot {
	return audit.Snapshot{
		"name":    c.Name,
		"email":   c.Email,
		"phone":   c.Phone,
		"company": c.Company,
		"notes":   c.Notes,
	}
}

func (c *Client) SoftDeleted() bool { return c.DeletedAt != nil }
