package control

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/steveyegge/unitsync/internal/records"
	"github.com/steveyegge/unitsync/internal/schema"
	"github.com/steveyegge/unitsync/internal/store"
	"github.com/steveyegge/unitsync/internal/syncer"
	"github.com/steveyegge/unitsync/internal/units"
)

type stubTransmitter struct{}

func (stubTransmitter) SendConversions(ctx context.Context, batch []*schema.Conversion) error {
	return nil
}

func (stubTransmitter) SendPreferences(ctx context.Context, batch []*schema.Preference) error {
	return nil
}

func setupDispatcher(t *testing.T) (*Dispatcher, *store.DB) {
	t.Helper()

	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := db.InitSchema(); err != nil {
		t.Fatalf("failed to initialize schema: %v", err)
	}

	writer := records.NewWriter(db, units.NewRegistry(), nil, nil)
	reader := records.NewReader(db, nil)
	rec := syncer.New(db, writer, stubTransmitter{}, nil)
	return New(writer, reader, rec, nil), db
}

func dispatch(t *testing.T, d *Dispatcher, typ string, payload string) Response {
	t.Helper()

	req := Request{ID: "req-1", Type: typ}
	if payload != "" {
		req.Payload = json.RawMessage(payload)
	}
	return d.Dispatch(context.Background(), req)
}

func decodeSuccess(t *testing.T, resp Response) bool {
	t.Helper()

	if resp.Error != "" {
		t.Fatalf("unexpected protocol error: %s", resp.Error)
	}
	var reply struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal(resp.Data, &reply); err != nil {
		t.Fatalf("failed to decode reply: %v", err)
	}
	return reply.Success
}

func TestDispatchSaveConversion(t *testing.T) {
	d, _ := setupDispatcher(t)

	resp := dispatch(t, d, TypeSaveConversion,
		`{"value": 100, "fromUnit": "celsius", "toUnit": "fahrenheit", "result": 212}`)

	if resp.ID != "req-1" {
		t.Errorf("expected correlation id echoed, got %q", resp.ID)
	}
	if !decodeSuccess(t, resp) {
		t.Error("expected success=true")
	}
}

func TestDispatchSaveConversionUnknownUnit(t *testing.T) {
	d, _ := setupDispatcher(t)

	resp := dispatch(t, d, TypeSaveConversion,
		`{"value": 1, "fromUnit": "parsecs", "toUnit": "fahrenheit", "result": 2}`)

	// Operation failure is success=false in the reply, not a protocol error.
	if decodeSuccess(t, resp) {
		t.Error("expected success=false for unknown unit")
	}
}

func TestDispatchGetConversions(t *testing.T) {
	d, _ := setupDispatcher(t)

	for i := 0; i < 3; i++ {
		dispatch(t, d, TypeSaveConversion,
			`{"value": 1, "fromUnit": "celsius", "toUnit": "kelvin", "result": 274.15}`)
	}

	resp := dispatch(t, d, TypeGetConversions, `{"limit": 2}`)
	if resp.Error != "" {
		t.Fatalf("unexpected error: %s", resp.Error)
	}

	var reply struct {
		Conversions []*schema.Conversion `json:"conversions"`
	}
	if err := json.Unmarshal(resp.Data, &reply); err != nil {
		t.Fatalf("failed to decode reply: %v", err)
	}
	if len(reply.Conversions) != 2 {
		t.Errorf("expected 2 conversions, got %d", len(reply.Conversions))
	}
}

func TestDispatchGetConversionsNoPayload(t *testing.T) {
	d, _ := setupDispatcher(t)

	resp := dispatch(t, d, TypeGetConversions, "")
	if resp.Error != "" {
		t.Errorf("missing payload must default, got error: %s", resp.Error)
	}
}

func TestDispatchPreferences(t *testing.T) {
	d, _ := setupDispatcher(t)

	resp := dispatch(t, d, TypeSavePreference, `{"key": "theme", "value": "dark"}`)
	if !decodeSuccess(t, resp) {
		t.Fatal("SAVE_PREFERENCE failed")
	}

	resp = dispatch(t, d, TypeGetPreferences, "")
	if resp.Error != "" {
		t.Fatalf("unexpected error: %s", resp.Error)
	}

	var reply struct {
		Preferences map[string]json.RawMessage `json:"preferences"`
	}
	if err := json.Unmarshal(resp.Data, &reply); err != nil {
		t.Fatalf("failed to decode reply: %v", err)
	}
	if string(reply.Preferences["theme"]) != `"dark"` {
		t.Errorf("expected stored value, got %s", reply.Preferences["theme"])
	}
}

func TestDispatchClearHistory(t *testing.T) {
	d, db := setupDispatcher(t)

	dispatch(t, d, TypeSaveConversion,
		`{"value": 1, "fromUnit": "celsius", "toUnit": "kelvin", "result": 274.15}`)

	if !decodeSuccess(t, dispatch(t, d, TypeClearHistory, "")) {
		t.Fatal("CLEAR_HISTORY failed")
	}

	count, err := db.ConversionCount(context.Background())
	if err != nil {
		t.Fatalf("failed to count conversions: %v", err)
	}
	if count != 0 {
		t.Errorf("expected empty history, got %d records", count)
	}
}

func TestDispatchForceSync(t *testing.T) {
	d, db := setupDispatcher(t)

	dispatch(t, d, TypeSaveConversion,
		`{"value": 1, "fromUnit": "celsius", "toUnit": "kelvin", "result": 274.15}`)

	if !decodeSuccess(t, dispatch(t, d, TypeForceSync, "")) {
		t.Fatal("FORCE_SYNC failed")
	}

	unsynced, err := db.UnsyncedConversions()
	if err != nil {
		t.Fatalf("failed to query unsynced: %v", err)
	}
	if len(unsynced) != 0 {
		t.Errorf("expected all records synced after FORCE_SYNC, %d remain", len(unsynced))
	}
}

func TestDispatchUnknownType(t *testing.T) {
	d, _ := setupDispatcher(t)

	resp := dispatch(t, d, "SELF_DESTRUCT", "")
	if resp.Error == "" {
		t.Error("expected error reply for unknown message type")
	}
}

func TestDispatchMalformedPayload(t *testing.T) {
	d, _ := setupDispatcher(t)

	resp := dispatch(t, d, TypeSaveConversion, `{"value": "not a number"`)
	if resp.Error == "" {
		t.Error("expected error reply for malformed payload")
	}
}
