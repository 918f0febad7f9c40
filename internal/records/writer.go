// Package records provides the write and read paths over the durable
// store. Failures at this boundary are converted to boolean/empty-result
// signals plus a diagnostic log; they never propagate upward, so no
// storage problem can crash the host.
package records

import (
	"context"
	"encoding/json"
	"log"
	"os"

	"github.com/steveyegge/unitsync/internal/schema"
	"github.com/steveyegge/unitsync/internal/store"
	"github.com/steveyegge/unitsync/internal/trigger"
	"github.com/steveyegge/unitsync/internal/units"
)

// ConversionInput is the payload of a conversion write request.
type ConversionInput struct {
	Value    float64 `json:"value"`
	FromUnit string  `json:"fromUnit"`
	ToUnit   string  `json:"toUnit"`
	Result   float64 `json:"result"`
}

// Writer appends and updates records in the durable store, stamping each
// write with a creation time and an unsynced flag, and signaling the sync
// trigger afterwards.
type Writer struct {
	db       *store.DB
	registry *units.Registry
	trigger  trigger.Trigger
	logger   *log.Logger
}

// NewWriter creates a Writer.
//
// If trig is nil, trigger registration is skipped (trigger.Noop). If
// logger is nil, a default logger writing to stderr is used.
func NewWriter(db *store.DB, registry *units.Registry, trig trigger.Trigger, logger *log.Logger) *Writer {
	if trig == nil {
		trig = trigger.Noop{}
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[records] ", log.LstdFlags)
	}
	if registry == nil {
		registry = units.NewRegistry()
	}
	return &Writer{
		db:       db,
		registry: registry,
		trigger:  trig,
		logger:   logger,
	}
}

// WriteConversion constructs a conversion record with timestamp = now and
// synced = false, and appends it. Returns true on success, false on any
// validation or storage failure (logged, not propagated).
//
// After a successful write the "sync-conversions" trigger is registered.
// Registration is best-effort: the record is durably saved even if
// deferred sync cannot be scheduled.
func (w *Writer) WriteConversion(ctx context.Context, input ConversionInput) bool {
	if !w.registry.Known(input.FromUnit) {
		w.logger.Printf("WARNING: rejected conversion with unknown unit %q", input.FromUnit)
		return false
	}
	if !w.registry.Known(input.ToUnit) {
		w.logger.Printf("WARNING: rejected conversion with unknown unit %q", input.ToUnit)
		return false
	}

	rec := &schema.Conversion{
		Value:     input.Value,
		FromUnit:  input.FromUnit,
		ToUnit:    input.ToUnit,
		Result:    input.Result,
		Timestamp: schema.NowMillis(),
		Synced:    false,
	}

	if _, err := w.db.InsertConversionContext(ctx, rec); err != nil {
		w.logger.Printf("WARNING: failed to save conversion: %v", err)
		return false
	}

	w.trigger.Register(trigger.TagConversions)
	return true
}

// WritePreference upserts a preference keyed by key, setting timestamp =
// now and synced = false. Returns true on success, false on failure.
// Registers the "sync-preferences" trigger on success, best-effort.
func (w *Writer) WritePreference(ctx context.Context, key string, value json.RawMessage) bool {
	rec := &schema.Preference{
		Key:       key,
		Value:     value,
		Timestamp: schema.NowMillis(),
		Synced:    false,
	}

	if err := w.db.UpsertPreferenceContext(ctx, rec); err != nil {
		w.logger.Printf("WARNING: failed to save preference %q: %v", key, err)
		return false
	}

	w.trigger.Register(trigger.TagPreferences)
	return true
}

// MarkSynced sets synced = true on each given conversion and persists the
// flag by id. Used by the reconciler after a successful transmit. Safe to
// call with an empty slice (no-op) and idempotent on repeat calls.
func (w *Writer) MarkSynced(ctx context.Context, recs []*schema.Conversion) error {
	if len(recs) == 0 {
		return nil
	}

	ids := make([]int64, len(recs))
	for i, r := range recs {
		ids[i] = r.ID
	}

	if err := w.db.MarkConversionsSyncedContext(ctx, ids); err != nil {
		return err
	}

	for _, r := range recs {
		r.Synced = true
	}
	return nil
}

// MarkPreferencesSynced persists synced = true for the given preference
// records, by key. Same contract as MarkSynced.
func (w *Writer) MarkPreferencesSynced(ctx context.Context, recs []*schema.Preference) error {
	if len(recs) == 0 {
		return nil
	}

	keys := make([]string, len(recs))
	for i, r := range recs {
		keys[i] = r.Key
	}

	if err := w.db.MarkPreferencesSyncedContext(ctx, keys); err != nil {
		return err
	}

	for _, r := range recs {
		r.Synced = true
	}
	return nil
}

// ClearHistory truncates the conversion collection. Preferences and the
// sync queue are untouched. Returns false on storage failure.
func (w *Writer) ClearHistory(ctx context.Context) bool {
	if err := w.db.ClearConversionsContext(ctx); err != nil {
		w.logger.Printf("WARNING: failed to clear history: %v", err)
		return false
	}
	return true
}
