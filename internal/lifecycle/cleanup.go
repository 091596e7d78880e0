package lifecycle

import (
	"context"
	"time"
)

// Cleanup hard-deletes expired memories that have sat past the archive
// retention window and prunes lifecycle_events past the audit retention
// window. Safe to call repeatedly: a memory already
// deleted simply will not match the next sweep's WHERE clause.
func (e *Engine) Cleanup(ctx context.Context, now time.Time) (int, error) {
	return e.store.CleanupExpired(ctx, e.cfg.ArchiveRetention, e.cfg.AuditRetention, now)
}
