// Package trigger provides the deferred background-sync request mechanism.
//
// After a successful write the record writer registers a retry hint for a
// class of sync work. The host adapter (the daemon) decides whether and
// when the hint actually fires; core logic never assumes it does. Writes
// remain durable and correct even if sync never runs.
package trigger

// Background-sync tags consumed by the daemon.
const (
	// TagConversions requests a deferred run of the conversion reconciler.
	TagConversions = "sync-conversions"
	// TagPreferences requests a deferred run of the preference reconciler.
	TagPreferences = "sync-preferences"
)

// Trigger registers a deferred sync request with the host environment.
//
// Registration is best-effort: implementations must never block the writer
// or return an error. Hosts may coalesce repeated registrations with the
// same tag.
type Trigger interface {
	Register(tag string)
}

// Noop is the trigger for hosts without a deferred-execution facility.
// Registration is skipped silently; sync then happens only on explicit
// force-sync.
type Noop struct{}

// Register implements Trigger.
func (Noop) Register(string) {}

// Host is a channel-backed trigger consumed by the sync daemon.
//
// Register never blocks: if the channel is full the hint is dropped, which
// is acceptable because the daemon's periodic retry covers any missed
// registration. Deduplication of rapid registrations is handled by the
// daemon's debounce, not here.
type Host struct {
	ch chan string
}

// NewHost creates a host trigger with a small buffered queue.
func NewHost() *Host {
	return &Host{ch: make(chan string, 16)}
}

// Register implements Trigger.
func (h *Host) Register(tag string) {
	select {
	case h.ch <- tag:
	default:
		// queue full; the periodic retry will pick the work up
	}
}

// C returns the channel of registered tags for the daemon to consume.
func (h *Host) C() <-chan string {
	return h.ch
}
