package audit

import (
	"context"
	"time"

	"github.com/blaxing/gateway/core/store"
	"github.com/blaxing/gateway/core/types"
	"github.com/google/uuid"
	"github.com/mudler/xlog"
)

// Sink records externally visible actions. Implementations must never
// fail the primary operation: recording is best-effort.
type Sink interface {
	Record(ctx context.Context, action, target string, source types.Source, outcome string, detail map[string]any)
}

// StoreSink appends entries to the audit_logs collection and mirrors
// them to the structured log.
type StoreSink struct {
	store store.AuditStore
	clock func() time.Time
}

func NewStoreSink(auditStore store.AuditStore) *StoreSink {
	return &StoreSink{store: auditStore, clock: time.Now}
}

func (s *StoreSink) Record(ctx context.Context, action, target string, source types.Source, outcome string, detail map[string]any) {
	entry := types.AuditEntry{
		ID:        uuid.NewString(),
		Action:    action,
		Target:    target,
		Source:    string(source),
		Outcome:   outcome,
		Detail:    detail,
		Timestamp: types.FormatTimestamp(s.clock()),
	}

	if err := s.store.Append(ctx, entry); err != nil {
		// Audit failures never propagate to the caller.
		xlog.Error("Failed to persist audit entry", "action", action, "error", err)
	}
	xlog.Info("Audit", "action", action, "target", target, "source", source, "outcome", outcome)
}

// List reads a page of the audit trail, newest first.
func (s *StoreSink) List(ctx context.Context, page, limit int) ([]types.AuditEntry, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}
	return s.store.List(ctx, page, limit)
}

// Discard is a no-op sink for tests and wiring that does not audit.
type Discard struct{}

func (Discard) Record(ctx context.Context, action, target string, source types.Source, outcome string, detail map[string]any) {
}
