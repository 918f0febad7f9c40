package syncer

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/steveyegge/unitsync/internal/records"
	"github.com/steveyegge/unitsync/internal/store"
)

// reconciler implements the Reconciler interface.
type reconciler struct {
	db     *store.DB
	writer *records.Writer
	remote Transmitter
	logger *log.Logger
}

// New creates a Reconciler.
//
// The database must be open with its schema initialized. If logger is nil,
// a default logger writing to stderr is used.
func New(db *store.DB, writer *records.Writer, remote Transmitter, logger *log.Logger) Reconciler {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &reconciler{
		db:     db,
		writer: writer,
		remote: remote,
		logger: logger,
	}
}

// SyncConversions implements Reconciler.SyncConversions.
func (r *reconciler) SyncConversions(ctx context.Context) error {
	batch, err := r.db.UnsyncedConversionsContext(ctx)
	if err != nil {
		r.logger.Printf("WARNING: failed to load unsynced conversions: %v", err)
		return err
	}

	if len(batch) == 0 {
		return nil
	}

	if err := r.remote.SendConversions(ctx, batch); err != nil {
		// Leave the whole batch unsynced; the next trigger retries it.
		r.logger.Printf("WARNING: failed to transmit %d conversions: %v", len(batch), err)
		return fmt.Errorf("%w: %v", ErrTransmitFailure, err)
	}

	if err := r.writer.MarkSynced(ctx, batch); err != nil {
		// The remote accepted the batch but the flag didn't persist.
		// The records stay unsynced and will be re-sent; the remote
		// dedups by id, so this is safe.
		r.logger.Printf("WARNING: failed to mark %d conversions synced: %v", len(batch), err)
		return err
	}

	r.logger.Printf("Synced %d conversions", len(batch))
	return nil
}

// SyncPreferences implements Reconciler.SyncPreferences.
func (r *reconciler) SyncPreferences(ctx context.Context) error {
	batch, err := r.db.UnsyncedPreferencesContext(ctx)
	if err != nil {
		r.logger.Printf("WARNING: failed to load unsynced preferences: %v", err)
		return err
	}

	if len(batch) == 0 {
		return nil
	}

	if err := r.remote.SendPreferences(ctx, batch); err != nil {
		r.logger.Printf("WARNING: failed to transmit %d preferences: %v", len(batch), err)
		return fmt.Errorf("%w: %v", ErrTransmitFailure, err)
	}

	if err := r.writer.MarkPreferencesSynced(ctx, batch); err != nil {
		r.logger.Printf("WARNING: failed to mark %d preferences synced: %v", len(batch), err)
		return err
	}

	r.logger.Printf("Synced %d preferences", len(batch))
	return nil
}

// ForceSync implements Reconciler.ForceSync.
func (r *reconciler) ForceSync(ctx context.Context) error {
	convErr := r.SyncConversions(ctx)
	prefErr := r.SyncPreferences(ctx)

	if convErr != nil {
		return convErr
	}
	return prefErr
}
