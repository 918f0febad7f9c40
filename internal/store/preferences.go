package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/steveyegge/unitsync/internal/schema"
)

// UpsertPreference inserts or replaces a preference keyed by its Key.
//
// Last write wins: a second write to the same key replaces the value,
// timestamp, and synced state of the prior record. The store guarantees at
// most one row per key via the primary key.
func (db *DB) UpsertPreference(p *schema.Preference) error {
	return db.UpsertPreferenceContext(context.Background(), p)
}

// UpsertPreferenceContext upserts a preference with context support.
func (db *DB) UpsertPreferenceContext(ctx context.Context, p *schema.Preference) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid preference: %w", err)
	}

	query := `
	INSERT INTO preferences (key, value, timestamp, synced)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		value = excluded.value,
		timestamp = excluded.timestamp,
		synced = excluded.synced
	`

	_, err := db.conn.ExecContext(ctx, query,
		p.Key,
		string(p.Value),
		p.Timestamp,
		boolToInt(p.Synced),
	)
	if err != nil {
		return fmt.Errorf("%w: failed to upsert preference %q: %v", ErrStoreUnavailable, p.Key, err)
	}

	return nil
}

// ListPreferences returns every preference record, ordered by key.
func (db *DB) ListPreferences() ([]*schema.Preference, error) {
	return db.ListPreferencesContext(context.Background())
}

// ListPreferencesContext returns all preferences with context support.
func (db *DB) ListPreferencesContext(ctx context.Context) ([]*schema.Preference, error) {
	query := `
	SELECT key, value, timestamp, synced
	FROM preferences
	ORDER BY key ASC
	`

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list preferences: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	return scanPreferences(rows)
}

// UnsyncedPreferences returns preferences with synced = false via the
// synced index, ordered by key.
func (db *DB) UnsyncedPreferences() ([]*schema.Preference, error) {
	return db.UnsyncedPreferencesContext(context.Background())
}

// UnsyncedPreferencesContext returns unsynced preferences with context support.
func (db *DB) UnsyncedPreferencesContext(ctx context.Context) ([]*schema.Preference, error) {
	query := `
	SELECT key, value, timestamp, synced
	FROM preferences
	WHERE synced = 0
	ORDER BY key ASC
	`

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query unsynced preferences: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	return scanPreferences(rows)
}

// MarkPreferencesSynced sets synced = true on the given keys.
// Idempotent; an empty key set is a no-op.
func (db *DB) MarkPreferencesSynced(keys []string) error {
	return db.MarkPreferencesSyncedContext(context.Background(), keys)
}

// MarkPreferencesSyncedContext marks preferences synced with context support.
func (db *DB) MarkPreferencesSyncedContext(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	placeholders := strings.Repeat("?,", len(keys))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]interface{}, len(keys))
	for i, k := range keys {
		args[i] = k
	}

	query := "UPDATE preferences SET synced = 1 WHERE key IN (" + placeholders + ")"
	if _, err := db.conn.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: failed to mark preferences synced: %v", ErrStoreUnavailable, err)
	}

	return nil
}

// PreferenceCount returns the total number of stored preferences.
func (db *DB) PreferenceCount(ctx context.Context) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM preferences").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to count preferences: %v", ErrStoreUnavailable, err)
	}
	return count, nil
}

// scanPreferences is a helper to scan multiple preferences from query results.
func scanPreferences(rows *sql.Rows) ([]*schema.Preference, error) {
	var out []*schema.Preference

	for rows.Next() {
		var p schema.Preference
		var value string
		var synced int

		if err := rows.Scan(&p.Key, &value, &p.Timestamp, &synced); err != nil {
			return nil, fmt.Errorf("failed to scan preference: %w", err)
		}

		p.Value = []byte(value)
		p.Synced = synced != 0
		out = append(out, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating preferences: %w", err)
	}

	return out, nil
}
