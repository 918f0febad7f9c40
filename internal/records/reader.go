package records

import (
	"context"
	"encoding/json"
	"log"
	"os"

	"github.com/steveyegge/unitsync/internal/schema"
	"github.com/steveyegge/unitsync/internal/store"
)

// DefaultHistoryLimit is the number of conversions returned when the
// caller doesn't ask for a specific limit.
const DefaultHistoryLimit = 50

// Reader serves ordered reads of conversion history and flattened
// preference snapshots. Read failures degrade silently to empty results -
// callers cannot distinguish "no data" from "storage failure", which the
// design accepts.
type Reader struct {
	db     *store.DB
	logger *log.Logger
}

// NewReader creates a Reader. If logger is nil, a default stderr logger is
// used.
func NewReader(db *store.DB, logger *log.Logger) *Reader {
	if logger == nil {
		logger = log.New(os.Stderr, "[records] ", log.LstdFlags)
	}
	return &Reader{db: db, logger: logger}
}

// Conversions returns up to limit conversion records, most recent first.
// limit <= 0 selects DefaultHistoryLimit. On storage failure the slice is
// empty, never nil-propagating an error.
func (r *Reader) Conversions(ctx context.Context, limit int) []*schema.Conversion {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	recs, err := r.db.ListConversionsContext(ctx, limit)
	if err != nil {
		r.logger.Printf("WARNING: failed to read conversions: %v", err)
		return []*schema.Conversion{}
	}
	if recs == nil {
		recs = []*schema.Conversion{}
	}
	return recs
}

// Preferences flattens all preference records into a key -> value mapping.
// The timestamp/synced metadata is dropped at this boundary; callers that
// need sync state query the store directly. On failure the map is empty.
func (r *Reader) Preferences(ctx context.Context) map[string]json.RawMessage {
	recs, err := r.db.ListPreferencesContext(ctx)
	if err != nil {
		r.logger.Printf("WARNING: failed to read preferences: %v", err)
		return map[string]json.RawMessage{}
	}

	out := make(map[string]json.RawMessage, len(recs))
	for _, p := range recs {
		out[p.Key] = p.Value
	}
	return out
}
