// Package ingest runs resumable, wall-clock-budgeted ingestion of external
// auction/marketplace listings into the listing store.
package ingest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/angus/lotscout/internal/db"
)

// RunState is the remote system's view of an external scrape run.
type RunState string

const (
	RunProcessing RunState = "processing"
	RunComplete   RunState = "complete"
	RunAborted    RunState = "aborted"
	RunFailed     RunState = "failed"
	RunTimedOut   RunState = "timed_out"
)

// Permanent reports whether the state is a terminal upstream failure:
// the job is marked error and never retried automatically.
func (s RunState) Permanent() bool {
	switch s {
	case RunAborted, RunFailed, RunTimedOut:
		return true
	}
	return false
}

// RawItem is one item of an external result page before normalization.
type RawItem struct {
	SourceListingID string
	Fields          map[string]string
}

// SourceAdapter turns one external source's raw pages into normalized
// listings. Per-site scraping and parsing live behind this interface;
// adapters are registered by source key, never branched on inline.
type SourceAdapter interface {
	// Source returns the registry key this adapter serves.
	Source() string
	// RunStatus polls the remote system for the state of an external run.
	RunStatus(ctx context.Context, externalRunID string) (RunState, error)
	// FetchPage returns up to size raw items starting at cursor. An empty
	// page, or one shorter than size, signals the end of the result set.
	FetchPage(ctx context.Context, externalRunID string, cursor, size int) ([]RawItem, error)
	// Normalize maps one raw item to the canonical listing shape. An error
	// is a data-quality reject: the item is dropped and counted, never
	// failing the job.
	Normalize(item RawItem) (*db.NormalizedListing, error)
}

var (
	adaptersMu sync.RWMutex
	adapters   = make(map[string]func() SourceAdapter)
)

// RegisterAdapter makes an adapter constructor available under a source key.
// Registration typically happens in an adapter package's init.
func RegisterAdapter(source string, factory func() SourceAdapter) {
	adaptersMu.Lock()
	defer adaptersMu.Unlock()
	adapters[source] = factory
}

// NewAdapter constructs the adapter registered for the source key.
func NewAdapter(source string) (SourceAdapter, error) {
	adaptersMu.RLock()
	factory, ok := adapters[source]
	adaptersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no adapter registered for source %q", source)
	}
	return factory(), nil
}

// RegisteredSources returns the known source keys, sorted.
func RegisteredSources() []string {
	adaptersMu.RLock()
	defer adaptersMu.RUnlock()
	keys := make([]string, 0, len(adapters))
	for k := range adapters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
