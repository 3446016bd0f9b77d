package models

import (
	"time"

	"github.com/gestio-hq/gestio/internal/audit"
)

// Invoice statuses. An invoice moves draft → sent → paid, or is cancelled.
const (
	InvoiceStatusDraft     = "draft"
	InvoiceStatusSent      = "sent"
	InvoiceStatusPaid      = "paid"
	InvoiceStatusCancelled = "cancelled"
)

// Invoice is a bill issued to a client. Amounts are stored in cents to avoid
// floating-point money. Invoices soft-delete, same as clients.
type Invoice struct {
	ID         string     `db:"id" json:"id"`
	ClientID   string     `db:"client_id" json:"client_id"`
	Number     string     `db:"number" json:"number"`
	Status     string     `db:"status" json:"status"`
	TotalCents int64      `db:"total_cents" json:"total_cents"`
	Currency   string     `db:"currency" json:"currency"`
	DueOn      *time.Time `db:"due_on" json:"due_on,omitempty"`
	Notes      string     `db:"notes" json:"notes"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt  *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}

var _ audit.Restorable = (*Invoice)(nil)

func (i *Invoice) EntityType() string { return "invoices" }
func (i *Invoice) EntityID() string   { return i.ID }

// Attributes returns the business fields of the invoice. due_on is rendered
// as a date string so the snapshot stays JSON-round-trippable and diffs on
// the calendar date, not on sub-day precision.
func (i *Invoice) Attributes() audit.Snapshot {
	var dueOn any
	if i.DueOn != nil {
		dueOn = i.DueOn.Format("2006-01-02")
	}
	return audit.Snapshot{
		"client_id":   i.ClientID,
		"number":      i.Number,
		"status":      i.Status,
		"total_cents": i.TotalCents,
		"currency":    i.Currency,
		"due_on":      dueOn,
		"notes":       i.Notes,
	}
}

func (i *Invoice) SoftDeleted() bool { return i.DeletedAt != nil }
