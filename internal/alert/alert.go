package alert

import (
	"sync"
	"time"
)

// Severity ranks an alert.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityError    Severity = "error"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Alert is one notification bound for the configured channels. Alerts are
// never persisted; duplicates are suppressed through the in-memory dedup
// cache keyed by DedupKey.
type Alert struct {
	// ID is assigned at dispatch time so every delivery attempt across
	// channels shares one identifier.
	ID string `json:"id,omitempty"`

	Severity  Severity       `json:"severity"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Source    string         `json:"source"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`

	// DedupKey is a stable identifier for the underlying condition. Alerts
	// sharing a key within the cooldown window are dropped.
	DedupKey string `json:"-"`
}

// DefaultCooldown is the dedup window between repeat alerts for one key.
const DefaultCooldown = 5 * time.Minute

// Deduper suppresses repeat alerts per key inside a cooldown window. It is
// process-local: under horizontal scaling each instance has its own cache,
// so suppression is best-effort, not global truth.
type Deduper struct {
	mu       sync.Mutex
	lastSent map[string]time.Time
	cooldown time.Duration

	// Now overrides the clock for tests.
	Now func() time.Time
}

// NewDeduper creates a dedup cache. A non-positive cooldown uses
// DefaultCooldown.
func NewDeduper(cooldown time.Duration) *Deduper {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Deduper{
		lastSent: make(map[string]time.Time),
		cooldown: cooldown,
	}
}

// ShouldSend reports whether an alert for key may fire now, and records the
// send time when it may. An empty key is never deduplicated.
func (d *Deduper) ShouldSend(key string) bool {
	if key == "" {
		return true
	}

	now := time.Now()
	if d.Now != nil {
		now = d.Now()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if last, ok := d.lastSent[key]; ok && now.Sub(last) < d.cooldown {
		return false
	}
	d.lastSent[key] = now

	// Opportunistic prune keeps the cache bounded during long uptimes.
	if len(d.lastSent) > 1024 {
		for k, t := range d.lastSent {
			if now.Sub(t) >= d.cooldown {
				delete(d.lastSent, k)
			}
		}
	}
	return true
}
