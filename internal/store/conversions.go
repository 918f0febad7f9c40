package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/steveyegge/unitsync/internal/schema"
)

// InsertConversion appends a conversion record and returns the assigned id.
//
// The record is never overwritten afterwards; the id is immutable once
// assigned. The caller is expected to have stamped Timestamp and left
// Synced false.
func (db *DB) InsertConversion(c *schema.Conversion) (int64, error) {
	return db.InsertConversionContext(context.Background(), c)
}

// InsertConversionContext appends a conversion record with context support.
func (db *DB) InsertConversionContext(ctx context.Context, c *schema.Conversion) (int64, error) {
	if err := c.Validate(); err != nil {
		return 0, fmt.Errorf("invalid conversion: %w", err)
	}

	query := `
	INSERT INTO conversions (value, from_unit, to_unit, result, timestamp, synced)
	VALUES (?, ?, ?, ?, ?, ?)
	`

	res, err := db.conn.ExecContext(ctx, query,
		c.Value,
		c.FromUnit,
		c.ToUnit,
		c.Result,
		c.Timestamp,
		boolToInt(c.Synced),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to insert conversion: %v", ErrStoreUnavailable, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: failed to read assigned id: %v", ErrStoreUnavailable, err)
	}
	c.ID = id

	return id, nil
}

// ListConversions returns up to limit conversions ordered by timestamp
// descending (most recent first). The query walks the timestamp index and
// stops once limit rows are collected; it never scans the full table.
func (db *DB) ListConversions(limit int) ([]*schema.Conversion, error) {
	return db.ListConversionsContext(context.Background(), limit)
}

// ListConversionsContext returns recent conversions with context support.
func (db *DB) ListConversionsContext(ctx context.Context, limit int) ([]*schema.Conversion, error) {
	query := `
	SELECT id, value, from_unit, to_unit, result, timestamp, synced
	FROM conversions
	ORDER BY timestamp DESC, id DESC
	LIMIT ?
	`

	rows, err := db.conn.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list conversions: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	return scanConversions(rows)
}

// UnsyncedConversions returns all conversions with synced = false, ordered
// by id ascending so the transmit batch preserves creation order.
func (db *DB) UnsyncedConversions() ([]*schema.Conversion, error) {
	return db.UnsyncedConversionsContext(context.Background())
}

// UnsyncedConversionsContext returns unsynced conversions with context support.
func (db *DB) UnsyncedConversionsContext(ctx context.Context) ([]*schema.Conversion, error) {
	query := `
	SELECT id, value, from_unit, to_unit, result, timestamp, synced
	FROM conversions
	WHERE synced = 0
	ORDER BY id ASC
	`

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query unsynced conversions: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	return scanConversions(rows)
}

// MarkConversionsSynced sets synced = true on the given record ids.
//
// Idempotent: marking an already-synced record is a no-op, and an empty id
// set returns immediately. The synced flag only ever moves false -> true;
// there is no rollback path.
func (db *DB) MarkConversionsSynced(ids []int64) error {
	return db.MarkConversionsSyncedContext(context.Background(), ids)
}

// MarkConversionsSyncedContext marks conversions synced with context support.
func (db *DB) MarkConversionsSyncedContext(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	query := "UPDATE conversions SET synced = 1 WHERE id IN (" + placeholders + ")"
	if _, err := db.conn.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: failed to mark conversions synced: %v", ErrStoreUnavailable, err)
	}

	return nil
}

// ClearConversions truncates the conversion history. Preferences and the
// sync queue are untouched.
func (db *DB) ClearConversions() error {
	return db.ClearConversionsContext(context.Background())
}

// ClearConversionsContext truncates the conversion history with context support.
func (db *DB) ClearConversionsContext(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, "DELETE FROM conversions"); err != nil {
		return fmt.Errorf("%w: failed to clear conversions: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// ConversionCount returns the total number of stored conversions.
func (db *DB) ConversionCount(ctx context.Context) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM conversions").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to count conversions: %v", ErrStoreUnavailable, err)
	}
	return count, nil
}

// UnsyncedConversionCount returns the number of conversions awaiting sync.
func (db *DB) UnsyncedConversionCount(ctx context.Context) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM conversions WHERE synced = 0").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to count unsynced conversions: %v", ErrStoreUnavailable, err)
	}
	return count, nil
}

// scanConversions is a helper to scan multiple conversions from query results.
func scanConversions(rows *sql.Rows) ([]*schema.Conversion, error) {
	var out []*schema.Conversion

	for rows.Next() {
		var c schema.Conversion
		var synced int

		err := rows.Scan(
			&c.ID,
			&c.Value,
			&c.FromUnit,
			&c.ToUnit,
			&c.Result,
			&c.Timestamp,
			&synced,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversion: %w", err)
		}

		c.Synced = synced != 0
		out = append(out, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversions: %w", err)
	}

	return out, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
