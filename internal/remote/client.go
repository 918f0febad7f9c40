// Package remote provides the HTTP client for the authoritative sync
// endpoint. The wire format is JSON: conversion batches are posted to
// /api/conversions and preference batches to /api/preferences. The server
// is expected to deduplicate re-submissions by record id (conversions) and
// key (preferences), making full-batch retries safe.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/steveyegge/unitsync/internal/schema"
	"github.com/steveyegge/unitsync/internal/syncer"
)

// DefaultTimeout bounds each remote call so a hung network connection
// cannot stall a sync cycle indefinitely.
const DefaultTimeout = 30 * time.Second

// Client posts record batches to the remote endpoint.
// It implements syncer.Transmitter.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a Client for the given base URL (e.g. "https://api.example.com").
// A timeout of 0 selects DefaultTimeout.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// SendConversions implements syncer.Transmitter.
func (c *Client) SendConversions(ctx context.Context, batch []*schema.Conversion) error {
	return c.post(ctx, "/api/conversions", batch)
}

// SendPreferences implements syncer.Transmitter.
func (c *Client) SendPreferences(ctx context.Context, batch []*schema.Preference) error {
	return c.post(ctx, "/api/preferences", batch)
}

func (c *Client) post(ctx context.Context, path string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", syncer.ErrTransmitFailure, err)
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s returned %s", syncer.ErrTransmitFailure, path, resp.Status)
	}

	return nil
}
