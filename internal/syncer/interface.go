// Package syncer provides the reconciler that transmits unsynced records
// to the remote endpoint and advances their sync state.
package syncer

import (
	"context"
	"errors"

	"github.com/steveyegge/unitsync/internal/schema"
)

// ErrTransmitFailure indicates the remote call failed or was rejected.
// The reconciler leaves all records unsynced when it occurs; the next
// trigger or forced sync retries the full set.
var ErrTransmitFailure = errors.New("transmit failure")

// Transmitter is the remote collaborator interface.
//
// Each call accepts an ordered batch and succeeds or fails as a unit;
// partial-batch success is not modeled. Delivery is at-least-once: the
// remote must tolerate duplicate submissions, deduplicating conversions by
// their immutable id and preferences by key.
type Transmitter interface {
	// SendConversions transmits a batch of conversion records.
	SendConversions(ctx context.Context, batch []*schema.Conversion) error

	// SendPreferences transmits a batch of preference records.
	SendPreferences(ctx context.Context, batch []*schema.Preference) error
}

// Reconciler advances records through the sync state machine:
//
//	unsynced -> (transmit succeeds) -> synced   (terminal)
//	unsynced -> (transmit fails)    -> unsynced (retried on next trigger)
//
// No in-flight state is recorded durably. If the process is interrupted
// mid-transmission the records remain unsynced and the whole batch is
// retried.
type Reconciler interface {
	// SyncConversions transmits all unsynced conversions and marks them
	// synced on success. An empty unsynced set is a no-op, not an error.
	SyncConversions(ctx context.Context) error

	// SyncPreferences transmits all unsynced preferences and marks them
	// synced on success.
	SyncPreferences(ctx context.Context) error

	// ForceSync runs both sync operations sequentially regardless of
	// trigger state. Both are always attempted; the first error is
	// returned. Used for an explicit user-initiated "sync now".
	ForceSync(ctx context.Context) error
}
