// Package schema provides the record types persisted by the durable store.
package schema

import (
	"encoding/json"
	"fmt"
	"time"
)

// Conversion represents a single unit conversion performed by the user.
//
// Records are append-only: the id is assigned by the store and never
// changes, and the timestamp is stamped once at creation. The synced flag
// is monotonic - it moves from false to true after the record has been
// transmitted to the remote endpoint, and never reverts.
type Conversion struct {
	// ID is the store-assigned surrogate key (monotonically increasing).
	ID int64 `json:"id"`

	// Value is the numeric input of the conversion.
	Value float64 `json:"value"`

	// FromUnit and ToUnit are unit identifiers from the closed registry
	// (e.g. celsius, fahrenheit, kelvin).
	FromUnit string `json:"fromUnit"`
	ToUnit   string `json:"toUnit"`

	// Result is the numeric output of the conversion.
	Result float64 `json:"result"`

	// Timestamp is the creation time in milliseconds since the Unix epoch.
	Timestamp int64 `json:"timestamp"`

	// Synced reports whether the record has been transmitted upstream.
	Synced bool `json:"synced"`
}

// Validate checks that the Conversion has valid field values.
func (c *Conversion) Validate() error {
	if c.FromUnit == "" {
		return fmt.Errorf("fromUnit is required")
	}
	if c.ToUnit == "" {
		return fmt.Errorf("toUnit is required")
	}
	if c.Timestamp < 0 {
		return fmt.Errorf("timestamp must not be negative (got %d)", c.Timestamp)
	}
	return nil
}

// Time returns the creation timestamp as a time.Time.
func (c *Conversion) Time() time.Time {
	return time.UnixMilli(c.Timestamp)
}

// Preference is a single user preference stored as a key/value pair.
// The key is the primary key: writes upsert, last write wins.
type Preference struct {
	Key string `json:"key"`

	// Value is an arbitrary JSON-encoded scalar or structure.
	Value json.RawMessage `json:"value"`

	// Timestamp is the last-write time in milliseconds since the Unix epoch.
	Timestamp int64 `json:"timestamp"`

	// Synced has the same semantics as Conversion.Synced, but because key
	// is the primary key each write resets it to false.
	Synced bool `json:"synced"`
}

// Validate checks that the Preference has valid field values.
func (p *Preference) Validate() error {
	if p.Key == "" {
		return fmt.Errorf("key is required")
	}
	if len(p.Value) == 0 {
		return fmt.Errorf("value is required")
	}
	if !json.Valid(p.Value) {
		return fmt.Errorf("value must be valid JSON")
	}
	return nil
}

// SyncQueueEntry is a reserved outbox record. No current operation
// populates the queue; the table exists so a future explicit outbox can be
// added without a schema rewrite.
type SyncQueueEntry struct {
	ID        int64           `json:"id"`
	Tag       string          `json:"tag"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt int64           `json:"created_at"`
}

// NowMillis returns the current wall-clock time in milliseconds since the
// Unix epoch, the timestamp format used by every record.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
