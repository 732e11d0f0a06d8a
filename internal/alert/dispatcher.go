// Package alert delivers match notifications to an external webhook.
// Delivery is fire-and-forget: failures are logged, never retried, and
// never block the caller.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/angus/lotscout/internal/db"
)

const sendTimeout = 10 * time.Second

// Message is the structured alert payload. Fingerprint matches carry
// FingerprintID; winner-replication flags carry SaleID instead.
type Message struct {
	FingerprintID uuid.UUID      `json:"fingerprint_id"`
	SaleID        uuid.UUID      `json:"sale_id"`
	ListingID     uuid.UUID      `json:"listing_id"`
	DealerID      uuid.UUID      `json:"dealer_id"`
	Lane          db.MatchLane   `json:"lane"`
	Action        db.MatchAction `json:"action"`
	Summary       string         `json:"summary"`
	DetailURL     string         `json:"detail_url,omitempty"`
}

// Dispatcher posts alerts to a webhook URL, deduplicating by
// (fingerprint or sale, listing) within one dispatcher lifetime so a
// rerun of the same matching pass does not re-alert.
type Dispatcher struct {
	url    string
	client *http.Client
	log    zerolog.Logger

	mu   sync.Mutex
	seen map[string]struct{}
	wg   sync.WaitGroup
}

// NewDispatcher returns a dispatcher for url. An empty url disables
// delivery; Notify becomes a no-op.
func NewDispatcher(url string, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		url:    url,
		client: &http.Client{Timeout: sendTimeout},
		log:    log.With().Str("component", "alert").Logger(),
		seen:   make(map[string]struct{}),
	}
}

// Notify queues one alert for delivery and returns immediately.
func (d *Dispatcher) Notify(msg Message) {
	if d.url == "" {
		return
	}

	key := msg.FingerprintID.String() + "/" + msg.SaleID.String() + "/" + msg.ListingID.String()
	d.mu.Lock()
	if _, dup := d.seen[key]; dup {
		d.mu.Unlock()
		return
	}
	d.seen[key] = struct{}{}
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.send(msg); err != nil {
			d.log.Warn().Err(err).
				Stringer("fingerprint_id", msg.FingerprintID).
				Stringer("listing_id", msg.ListingID).
				Msg("alert delivery failed")
		}
	}()
}

// Flush waits for in-flight deliveries. Called on shutdown and in tests.
func (d *Dispatcher) Flush() {
	d.wg.Wait()
}

func (d *Dispatcher) send(msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode alert: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("alert webhook returned %d", resp.StatusCode)
	}
	return nil
}
