// Package control provides the message-based control surface consumed by
// the host. Each request carries a type and a JSON payload; the dispatcher
// routes it through a handler table keyed by message type and produces the
// reply. The dispatcher is host-agnostic: the WebSocket server, the CLI,
// and tests all drive the same table.
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/steveyegge/unitsync/internal/records"
	"github.com/steveyegge/unitsync/internal/schema"
	"github.com/steveyegge/unitsync/internal/syncer"
)

// Message types accepted by the dispatcher.
const (
	TypeSaveConversion = "SAVE_CONVERSION"
	TypeSavePreference = "SAVE_PREFERENCE"
	TypeGetConversions = "GET_CONVERSIONS"
	TypeGetPreferences = "GET_PREFERENCES"
	TypeClearHistory   = "CLEAR_HISTORY"
	TypeForceSync      = "FORCE_SYNC"
)

// Request is a single control message.
type Request struct {
	// ID is an optional correlation id echoed back on the reply.
	ID string `json:"id,omitempty"`

	// Type selects the operation (one of the Type* constants).
	Type string `json:"type"`

	// Payload is the operation-specific body.
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response is the reply to a single control message.
type Response struct {
	ID   string          `json:"id,omitempty"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`

	// Error is set only for protocol-level problems (unknown type, bad
	// payload). Operation failures are reported in Data as success=false.
	Error string `json:"error,omitempty"`
}

// Reply payload shapes.
type (
	successReply struct {
		Success bool `json:"success"`
	}
	conversionsReply struct {
		Conversions []*schema.Conversion `json:"conversions"`
	}
	preferencesReply struct {
		Preferences map[string]json.RawMessage `json:"preferences"`
	}
)

// Request payload shapes.
type (
	savePreferencePayload struct {
		Key   string          `json:"key"`
		Value json.RawMessage `json:"value"`
	}
	getConversionsPayload struct {
		Limit int `json:"limit,omitempty"`
	}
)

// handlerFunc processes one decoded request payload and returns the reply
// body to be marshaled into Response.Data.
type handlerFunc func(ctx context.Context, payload json.RawMessage) (interface{}, error)

// Dispatcher routes control requests to their handlers.
type Dispatcher struct {
	handlers map[string]handlerFunc
	logger   *log.Logger
}

// New creates a Dispatcher over the given writer, reader, and reconciler.
// If logger is nil, a default stderr logger is used.
func New(writer *records.Writer, reader *records.Reader, rec syncer.Reconciler, logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.New(os.Stderr, "[control] ", log.LstdFlags)
	}

	d := &Dispatcher{logger: logger}
	d.handlers = map[string]handlerFunc{
		TypeSaveConversion: func(ctx context.Context, payload json.RawMessage) (interface{}, error) {
			var input records.ConversionInput
			if err := json.Unmarshal(payload, &input); err != nil {
				return nil, fmt.Errorf("bad SAVE_CONVERSION payload: %w", err)
			}
			return successReply{Success: writer.WriteConversion(ctx, input)}, nil
		},

		TypeSavePreference: func(ctx context.Context, payload json.RawMessage) (interface{}, error) {
			var input savePreferencePayload
			if err := json.Unmarshal(payload, &input); err != nil {
				return nil, fmt.Errorf("bad SAVE_PREFERENCE payload: %w", err)
			}
			return successReply{Success: writer.WritePreference(ctx, input.Key, input.Value)}, nil
		},

		TypeGetConversions: func(ctx context.Context, payload json.RawMessage) (interface{}, error) {
			var input getConversionsPayload
			if len(payload) > 0 {
				if err := json.Unmarshal(payload, &input); err != nil {
					return nil, fmt.Errorf("bad GET_CONVERSIONS payload: %w", err)
				}
			}
			return conversionsReply{Conversions: reader.Conversions(ctx, input.Limit)}, nil
		},

		TypeGetPreferences: func(ctx context.Context, payload json.RawMessage) (interface{}, error) {
			return preferencesReply{Preferences: reader.Preferences(ctx)}, nil
		},

		TypeClearHistory: func(ctx context.Context, payload json.RawMessage) (interface{}, error) {
			return successReply{Success: writer.ClearHistory(ctx)}, nil
		},

		TypeForceSync: func(ctx context.Context, payload json.RawMessage) (interface{}, error) {
			err := rec.ForceSync(ctx)
			if err != nil {
				logger.Printf("WARNING: force sync failed: %v", err)
			}
			return successReply{Success: err == nil}, nil
		},
	}

	return d
}

// Dispatch routes a request to its handler and builds the reply.
// Unknown types and malformed payloads produce an error reply; they are
// never allowed to escape as a failure that could crash the host.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Response {
	resp := Response{ID: req.ID, Type: req.Type}

	handler, ok := d.handlers[req.Type]
	if !ok {
		resp.Error = fmt.Sprintf("unknown message type %q", req.Type)
		return resp
	}

	body, err := handler(ctx, req.Payload)
	if err != nil {
		resp.Error = err.Error()
		return resp
	}

	data, err := json.Marshal(body)
	if err != nil {
		d.logger.Printf("WARNING: failed to marshal reply for %s: %v", req.Type, err)
		resp.Error = "internal encoding error"
		return resp
	}

	resp.Data = data
	return resp
}

// Types returns the message types the dispatcher accepts.
func (d *Dispatcher) Types() []string {
	types := make([]string, 0, len(d.handlers))
	for t := range d.handlers {
		types = append(types, t)
	}
	return types
}
