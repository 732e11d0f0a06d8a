// Package audit appends run outcomes to the operational audit trail. The
// trail is best-effort visibility, not part of any correctness contract; a
// failed append is logged and swallowed.
package audit

import (
	"context"

	"github.com/rs/zerolog"
)

// Store persists audit entries. *db.DB satisfies it.
type Store interface {
	AppendAudit(ctx context.Context, runName string, success bool, detail any) error
}

// Trail records run outcomes.
type Trail struct {
	store Store
	log   zerolog.Logger
}

// NewTrail returns a trail backed by store.
func NewTrail(store Store, log zerolog.Logger) *Trail {
	return &Trail{store: store, log: log.With().Str("component", "audit").Logger()}
}

// Record appends one entry. detail is marshalled to JSON by the store;
// pass a struct or map, never a pre-encoded string.
func (t *Trail) Record(ctx context.Context, runName string, success bool, detail any) {
	if err := t.store.AppendAudit(ctx, runName, success, detail); err != nil {
		t.log.Warn().Err(err).Str("run", runName).Msg("audit append failed")
		return
	}
	evt := t.log.Info()
	if !success {
		evt = t.log.Error()
	}
	evt.Str("run", runName).Bool("success", success).Msg("run recorded")
}
