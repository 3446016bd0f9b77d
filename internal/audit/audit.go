// Package audit implements the activity-audit pipeline: it intercepts entity
// lifecycle transitions (create, update, delete, restore), computes
// attribute-level diffs, enriches each event with request context (acting
// principal, client IP, device class, geo-resolved country), and appends one
// immutable record per event.
//
// Audit records are intentionally separate from application logs because they
// have different consumers and retention requirements — application logs are
// ephemeral debug output consumed by on-call engineers, while audit records
// are immutable rows consumed by compliance tooling and may be subject to
// retention policies measured in years.
//
// Design constraints carried by every path in this package:
//
//   - The pipeline never fails the business operation that triggered it. A
//     geo lookup timeout, a diff over an unexpected attribute shape, or even
//     a failed database insert is surfaced through slog and Prometheus, never
//     returned to the caller.
//   - Records are append-only. Nothing in this package (or in the repository
//     layer) exposes an update or delete path for a written record.
package audit

// Action identifies which lifecycle transition produced an audit record.
type Action string

const (
	ActionCreated  Action = "created"
	ActionUpdated  Action = "updated"
	ActionDeleted  Action = "deleted"
	ActionRestored Action = "restored"
)

// Snapshot is a full attribute map of an entity at a point in time. Keys are
// attribute names; values are the attribute values as they would appear in
// the entity's persisted representation.
type Snapshot map[string]any

// Auditable is the capability an entity type implements to opt in to
// auditing. The recorder takes this interface at the call site rather than
// the entity being wired up implicitly, so the trigger point is explicit and
// testable.
type Auditable interface {
	// EntityType returns the table-level identifier of the entity class
	// (e.g. "invoices").
	EntityType() string
	// EntityID returns the identifier of this entity instance.
	EntityID() string
	// Attributes returns the entity's current attribute snapshot.
	Attributes() Snapshot
}

// Restorable marks an Auditable entity type as soft-deletable. Restore
// events are captured only for entities implementing this interface; the
// check is a type assertion, not a hardcoded type list.
type Restorable interface {
	Auditable
	// SoftDeleted reports whether the entity is currently soft-deleted.
	SoftDeleted() bool
}

// Change is the before/after pair for a single attribute that differs
// between two snapshots.
type Change struct {
	Old any `json:"old"`
	New any `json:"new"`
}
