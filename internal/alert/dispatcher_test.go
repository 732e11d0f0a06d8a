package alert

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angus/lotscout/internal/db"
)

func TestNotify_DeliversPayload(t *testing.T) {
	var (
		mu       sync.Mutex
		received []Message
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg Message
		require.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		mu.Lock()
		received = append(received, msg)
		mu.Unlock()
	}))
	defer srv.Close()

	d := NewDispatcher(srv.URL, zerolog.Nop())
	msg := Message{
		FingerprintID: uuid.New(),
		ListingID:     uuid.New(),
		Lane:          db.LanePrecision,
		Action:        db.ActionBuy,
		Summary:       "2019 Toyota Hilux SR5, 50,000 km",
	}
	d.Notify(msg)
	d.Flush()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, msg.FingerprintID, received[0].FingerprintID)
	assert.Equal(t, db.ActionBuy, received[0].Action)
}

func TestNotify_DeduplicatesPerDispatcher(t *testing.T) {
	var (
		mu    sync.Mutex
		count int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		count++
		mu.Unlock()
	}))
	defer srv.Close()

	d := NewDispatcher(srv.URL, zerolog.Nop())
	msg := Message{FingerprintID: uuid.New(), ListingID: uuid.New()}
	d.Notify(msg)
	d.Notify(msg)

	other := msg
	other.ListingID = uuid.New()
	d.Notify(other)
	d.Flush()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, count)
}

func TestNotify_FailureNeverPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	d := NewDispatcher(srv.URL, zerolog.Nop())
	d.Notify(Message{FingerprintID: uuid.New(), ListingID: uuid.New()})
	d.Flush()

	// A dead endpoint behaves the same way.
	dead := NewDispatcher("http://127.0.0.1:1", zerolog.Nop())
	dead.Notify(Message{FingerprintID: uuid.New(), ListingID: uuid.New()})
	dead.Flush()
}

func TestNotify_DisabledWithoutURL(t *testing.T) {
	d := NewDispatcher("", zerolog.Nop())
	d.Notify(Message{FingerprintID: uuid.New(), ListingID: uuid.New()})
	d.Flush()
}
