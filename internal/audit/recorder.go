package audit

import (
	"context"
	"log/slog"
	"reflect"
	"time"

	"github.com/gestio-hq/gestio/internal/geoip"
	"github.com/gestio-hq/gestio/internal/safego"
	"github.com/gestio-hq/gestio/internal/telemetry"
)

// Record is one immutable audit trail entry. Records are created by the
// Recorder, persisted by a Writer, and never mutated afterwards.
type Record struct {
	UserID     *string           `json:"user_id"`
	UserRole   *string           `json:"user_role"`
	Action     Action            `json:"action"`
	EntityType string            `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
	OldValues  Snapshot          `json:"old_values"`
	NewValues  Snapshot          `json:"new_values"`
	Changes    map[string]Change `json:"changes"`
	IPAddress  string            `json:"ip_address"`
	IPCountry  string            `json:"ip_country"`
	UserAgent  string            `json:"user_agent"`
	Device     Device            `json:"device"`
	URL        string            `json:"url"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Writer persists one record per call, append-only. Implemented by
// repositories.AuditRepository.
type Writer interface {
	Write(ctx context.Context, rec *Record) error
}

// shipTimeout bounds the asynchronous delivery of a record to external
// destinations after the business request has already completed.
const shipTimeout = 5 * time.Second

// Recorder runs the capture pipeline for entity lifecycle events: diff,
// enrich, write, and (optionally) ship. One Recorder is shared by all entity
// repositories.
//
// None of the Recorder methods return an error. The failure policy is fixed:
// a change to an invoice must not fail because its audit record could not be
// enriched or written, so every failure is absorbed here and surfaced via
// slog and the audit_* Prometheus counters instead.
type Recorder struct {
	writer  Writer
	geo     geoip.Resolver
	shipper Shipper
}

// NewRecorder creates a Recorder. geo and shipper may be nil: a nil geo
// resolver records every country as unknown, a nil shipper disables external
// delivery.
func NewRecorder(writer Writer, geo geoip.Resolver, shipper Shipper) *Recorder {
	return &Recorder{
		writer:  writer,
		geo:     geo,
		shipper: shipper,
	}
}

// Created captures a create event. The pre-change snapshot is nil and the
// change map is empty: creation is not a diff.
func (r *Recorder) Created(ctx context.Context, rc RequestContext, e Auditable) {
	r.capture(ctx, rc, e, ActionCreated, nil, e.Attributes(), map[string]Change{})
}

// Updated captures an update event. before must be the attribute snapshot
// taken before the persistence layer applied the change; the caller is
// responsible for capturing it first, because the in-memory entity only holds
// post-change values by the time this runs.
//
// When before and the current attributes are identical the event is
// suppressed entirely — a save that mutates nothing produces no audit noise.
func (r *Recorder) Updated(ctx context.Context, rc RequestContext, e Auditable, before Snapshot) {
	after := e.Attributes()
	if reflect.DeepEqual(before, after) {
		telemetry.AuditUpdatesSuppressedTotal.WithLabelValues(e.EntityType()).Inc()
		return
	}
	r.capture(ctx, rc, e, ActionUpdated, before, after, r.safeDiff(before, after))
}

// Deleted captures a delete event. Both snapshots hold the attributes at the
// time of deletion; nothing is diffed.
func (r *Recorder) Deleted(ctx context.Context, rc RequestContext, e Auditable) {
	attrs := e.Attributes()
	r.capture(ctx, rc, e, ActionDeleted, attrs, attrs, map[string]Change{})
}

// Restored captures a restore event for soft-deletable entities. Entities
// that do not implement Restorable are skipped: restore is only meaningful
// for types that support soft deletion, and the capability check is the type
// assertion, not a list of known types.
func (r *Recorder) Restored(ctx context.Context, rc RequestContext, e Auditable) {
	if _, ok := e.(Restorable); !ok {
		return
	}
	attrs := e.Attributes()
	r.capture(ctx, rc, e, ActionRestored, attrs, attrs, map[string]Change{})
}

// capture runs enrichment and the write for one qualifying event.
func (r *Recorder) capture(ctx context.Context, rc RequestContext, e Auditable, action Action, old, new Snapshot, changes map[string]Change) {
	rec := &Record{
		UserID:     rc.UserID,
		UserRole:   rc.UserRole,
		Action:     action,
		EntityType: e.EntityType(),
		EntityID:   e.EntityID(),
		OldValues:  old,
		NewValues:  new,
		Changes:    changes,
		IPAddress:  rc.IPAddress,
		IPCountry:  r.resolveCountry(ctx, rc.IPAddress),
		UserAgent:  rc.UserAgent,
		Device:     ClassifyDevice(rc.UserAgent),
		URL:        rc.URL,
		CreatedAt:  time.Now().UTC(),
	}

	if err := r.writer.Write(ctx, rec); err != nil {
		telemetry.AuditWriteFailuresTotal.WithLabelValues(rec.EntityType).Inc()
		slog.Error("audit record write failed",
			"action", rec.Action,
			"entity_type", rec.EntityType,
			"entity_id", rec.EntityID,
			"error", err,
		)
		return
	}
	telemetry.AuditRecordsTotal.WithLabelValues(string(rec.Action), rec.EntityType).Inc()

	if r.shipper != nil {
		// Shipping happens off the request path; the record is already
		// durable locally, so delivery lag or failure costs nothing but a
		// counter increment.
		shipper := r.shipper
		safego.Go(func() {
			shipCtx, cancel := context.WithTimeout(context.Background(), shipTimeout)
			defer cancel()
			if err := shipper.Ship(shipCtx, rec); err != nil {
				telemetry.AuditShipFailuresTotal.WithLabelValues("aggregate").Inc()
				slog.Error("audit record ship failed",
					"entity_type", rec.EntityType,
					"entity_id", rec.EntityID,
					"error", err,
				)
			}
		})
	}
}

// resolveCountry maps the client IP to a country code, substituting the
// unknown sentinel on any failure. Enrichment is best-effort: a dead geo
// provider degrades the ip_country column, never the record.
func (r *Recorder) resolveCountry(ctx context.Context, ip string) string {
	if r.geo == nil || ip == "" {
		return geoip.CountryUnknown
	}
	cc, err := r.geo.Country(ctx, ip)
	if err != nil {
		slog.Warn("geoip resolution failed, recording unknown country", "ip", ip, "error", err)
		return geoip.CountryUnknown
	}
	return cc
}

// safeDiff computes the change map, falling back to an empty map if the diff
// panics on an unexpected attribute shape. Raw snapshots are still recorded,
// so a diff failure loses the per-field delta but never the event.
func (r *Recorder) safeDiff(before, after Snapshot) (changes map[string]Change) {
	defer func() {
		if rec := recover(); rec != nil {
			telemetry.AuditDiffFallbacksTotal.Inc()
			slog.Error("audit diff computation failed, recording raw snapshots only", "panic", rec)
			changes = map[string]Change{}
		}
	}()
	return Diff(before, after)
}
