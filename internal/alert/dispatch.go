package alert

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/dj-pearson/gym-unity-edge/internal/log"
)

const dispatchTimeout = 10 * time.Second

// Dispatcher routes alerts to every configured channel. Delivery is
// best-effort and parallel: one channel failing, or all of them, never
// affects the others and never reaches the code that raised the alert.
type Dispatcher struct {
	channels []Channel
	dedupe   *Deduper
	guard    *rate.Limiter
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// NewDispatcher creates a dispatcher over the given channels with the given
// dedup cooldown. The outbound guard caps sustained alert traffic at one per
// second (burst 10) so a flapping dependency cannot turn into an outbound
// flood of its own.
func NewDispatcher(channels []Channel, cooldown time.Duration) *Dispatcher {
	return &Dispatcher{
		channels: channels,
		dedupe:   NewDeduper(cooldown),
		guard:    rate.NewLimiter(rate.Every(time.Second), 10),
		logger:   log.WithComponent("alert"),
	}
}

// DefaultHTTPClient is the client channels should share.
func DefaultHTTPClient() *http.Client {
	return &http.Client{Timeout: dispatchTimeout}
}

// Notify fires an alert without blocking the caller: dedup and the storm
// guard run inline (both are in-memory), delivery happens on background
// goroutines. The caller's request can complete before any channel delivery
// does.
func (d *Dispatcher) Notify(a Alert) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if !d.dedupe.ShouldSend(a.DedupKey) {
		d.logger.Debug("alert suppressed by dedup", "dedup_key", a.DedupKey)
		return
	}
	if !d.guard.Allow() {
		d.logger.Warn("alert dropped by storm guard", "title", a.Title)
		return
	}

	d.logger.Info("dispatching alert",
		"severity", a.Severity,
		"title", a.Title,
		"source", a.Source,
		"channels", len(d.channels),
	)

	for _, ch := range d.channels {
		ch := ch
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
			defer cancel()
			if err := ch.Send(ctx, a); err != nil {
				// Logged, never retried, never surfaced to the request.
				d.logger.Error("alert channel delivery failed",
					"channel", ch.Name(),
					"title", a.Title,
					"error", err,
				)
			}
		}()
	}
}

// Flush waits for in-flight deliveries. Intended for shutdown and tests.
func (d *Dispatcher) Flush() {
	d.wg.Wait()
}
