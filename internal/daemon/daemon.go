// Package daemon provides the host adapter that turns registered sync
// triggers into reconciler runs.
//
// The daemon:
//  1. Consumes tags from the host trigger
//  2. Debounces rapid registrations of the same tag
//  3. Invokes the matching reconciler handler
//  4. Periodically retries so dropped hints are never lost
//  5. Handles graceful shutdown
//
// The daemon is deliberately optional: records are durable the moment the
// writer stores them, and an explicit force-sync works without the daemon
// running at all.
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/steveyegge/unitsync/internal/syncer"
	"github.com/steveyegge/unitsync/internal/trigger"
)

// EventSink receives sync lifecycle notifications. The WebSocket server
// implements it; a nil sink disables notifications.
type EventSink interface {
	Event(typ string, body interface{})
}

// Config holds configuration for the daemon.
type Config struct {
	// DebounceInterval is how long to wait before acting on a trigger,
	// batching rapid writes into one sync cycle.
	DebounceInterval time.Duration

	// RetryInterval is how often to re-run both sync operations. This
	// covers trigger hints dropped under load and transmit failures; the
	// reconciler no-ops when nothing is unsynced.
	RetryInterval time.Duration

	// Events receives sync lifecycle notifications (may be nil).
	Events EventSink

	// Logger for daemon activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DebounceInterval: 250 * time.Millisecond,
		RetryInterval:    time.Minute,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon orchestrates trigger consumption and reconciler runs.
type Daemon struct {
	reconciler syncer.Reconciler
	trig       *trigger.Host
	config     *Config

	pending   map[string]time.Time // tag -> registration time
	pendingMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Daemon consuming the given host trigger.
func New(reconciler syncer.Reconciler, trig *trigger.Host, config *Config) (*Daemon, error) {
	if reconciler == nil {
		return nil, fmt.Errorf("reconciler cannot be nil")
	}
	if trig == nil {
		return nil, fmt.Errorf("trigger cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		reconciler: reconciler,
		trig:       trig,
		config:     config,
		pending:    make(map[string]time.Time),
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Start begins the daemon's operation. This blocks until ctx is cancelled
// or Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting sync daemon")

	d.wg.Add(3)
	go d.consumeTriggers()
	go d.processPending()
	go d.retryLoop()

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon.
func (d *Daemon) Stop() error {
	d.config.Logger.Println("Stopping sync daemon")

	d.cancel()
	d.wg.Wait()

	d.config.Logger.Println("Sync daemon stopped")
	return nil
}

// consumeTriggers queues registered tags for debounced processing.
func (d *Daemon) consumeTriggers() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case tag := <-d.trig.C():
			d.pendingMu.Lock()
			if _, queued := d.pending[tag]; !queued {
				d.pending[tag] = time.Now()
			}
			d.pendingMu.Unlock()
		}
	}
}

// processPending runs queued tags once their debounce window has passed.
func (d *Daemon) processPending() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.runDue()
		}
	}
}

// runDue invokes the reconciler for every tag whose debounce has elapsed.
func (d *Daemon) runDue() {
	now := time.Now()

	d.pendingMu.Lock()
	var due []string
	for tag, queuedAt := range d.pending {
		if now.Sub(queuedAt) >= d.config.DebounceInterval {
			due = append(due, tag)
			delete(d.pending, tag)
		}
	}
	d.pendingMu.Unlock()

	for _, tag := range due {
		d.runSync(tag)
	}
}

// runSync invokes the reconciler handler matching the tag. Failures are
// logged, never fatal: records stay unsynced and the retry loop or next
// trigger covers them.
func (d *Daemon) runSync(tag string) {
	d.notify("sync_started", map[string]string{"tag": tag})

	var err error
	switch tag {
	case trigger.TagConversions:
		err = d.reconciler.SyncConversions(d.ctx)
	case trigger.TagPreferences:
		err = d.reconciler.SyncPreferences(d.ctx)
	default:
		d.config.Logger.Printf("WARNING: unknown sync tag %q", tag)
		return
	}

	if err != nil {
		d.config.Logger.Printf("Sync %s failed: %v", tag, err)
		d.notify("sync_failed", map[string]string{"tag": tag, "error": err.Error()})
		return
	}

	d.notify("sync_complete", map[string]string{"tag": tag})
}

// retryLoop periodically re-runs both sync operations.
func (d *Daemon) retryLoop() {
	defer d.wg.Done()

	if d.config.RetryInterval <= 0 {
		return
	}

	ticker := time.NewTicker(d.config.RetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.runSync(trigger.TagConversions)
			d.runSync(trigger.TagPreferences)
		}
	}
}

func (d *Daemon) notify(typ string, body interface{}) {
	if d.config.Events != nil {
		d.config.Events.Event(typ, body)
	}
}
