package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/steveyegge/unitsync/internal/control"
	"github.com/steveyegge/unitsync/internal/records"
	"github.com/steveyegge/unitsync/internal/schema"
	"github.com/steveyegge/unitsync/internal/store"
	"github.com/steveyegge/unitsync/internal/syncer"
	"github.com/steveyegge/unitsync/internal/units"
)

type okTransmitter struct{}

func (okTransmitter) SendConversions(ctx context.Context, batch []*schema.Conversion) error {
	return nil
}

func (okTransmitter) SendPreferences(ctx context.Context, batch []*schema.Preference) error {
	return nil
}

func startTestServer(t *testing.T) *Server {
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
	rec := syncer.New(db, writer, okTransmitter{}, nil)
	dispatcher := control.New(writer, reader, rec, nil)

	srv := New(dispatcher, &Config{
		Port:   0, // random available port
		Logger: log.New(os.Stderr, "[test] ", log.LstdFlags),
	})

	if err := srv.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	t.Cleanup(func() { _ = srv.Stop() })

	time.Sleep(100 * time.Millisecond)
	return srv
}

func dialWS(t *testing.T, srv *Server, ctx context.Context) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, "ws://"+srv.Addr()+"/ws", nil)
	if err != nil {
		t.Fatalf("failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func TestServerStartStop(t *testing.T) {
	srv := startTestServer(t)

	if srv.Addr() == "" {
		t.Fatal("server address is empty")
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := startTestServer(t)

	resp, err := http.Get("http://" + srv.Addr() + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode health body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %v", body["status"])
	}
}

func TestControlRoundTrip(t *testing.T) {
	srv := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWS(t, srv, ctx)

	req := control.Request{
		ID:      "c1",
		Type:    control.TypeSaveConversion,
		Payload: json.RawMessage(`{"value": 0, "fromUnit": "celsius", "toUnit": "kelvin", "result": 273.15}`),
	}
	data, _ := json.Marshal(req)
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("failed to write request: %v", err)
	}

	_, replyData, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("failed to read reply: %v", err)
	}

	var resp control.Response
	if err := json.Unmarshal(replyData, &resp); err != nil {
		t.Fatalf("failed to unmarshal reply: %v", err)
	}
	if resp.ID != "c1" {
		t.Errorf("expected correlation id c1, got %q", resp.ID)
	}
	if resp.Error != "" {
		t.Fatalf("unexpected error: %s", resp.Error)
	}

	var reply struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal(resp.Data, &reply); err != nil {
		t.Fatalf("failed to decode reply data: %v", err)
	}
	if !reply.Success {
		t.Error("expected success=true")
	}
}

func TestBroadcastReachesClient(t *testing.T) {
	srv := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWS(t, srv, ctx)

	if count := srv.ClientCount(); count != 1 {
		t.Errorf("expected 1 client, got %d", count)
	}

	srv.Event(string(EventSyncComplete), map[string]string{"tag": "sync-conversions"})

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("failed to read broadcast: %v", err)
	}

	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		t.Fatalf("failed to unmarshal event: %v", err)
	}
	if event.Type != EventSyncComplete {
		t.Errorf("expected %s event, got %s", EventSyncComplete, event.Type)
	}
}
