package memorystore

import (
	"context"
	"time"

	"workspacememory/internal/logging"
	"workspacememory/internal/relational"
)

// accessUpdate is one queued access-count/last-accessed bump.
type accessUpdate struct {
	memoryID    string
	workspaceID string
}

// AccessTracker drains a bounded queue of access updates on a background
// worker so that get_memory never blocks on the bookkeeping write.
// Overflow drops and logs.
type AccessTracker struct {
	store *Store
	log   logging.Logger
	queue chan accessUpdate
	done  chan struct{}
}

const accessQueueCapacity = 1024

// NewAccessTracker starts the background worker immediately.
func NewAccessTracker(store *Store, log logging.Logger) *AccessTracker {
	t := &AccessTracker{
		store: store,
		log:   log,
		queue: make(chan accessUpdate, accessQueueCapacity),
		done:  make(chan struct{}),
	}
	go t.run()
	return t
}

// Track enqueues an access update, dropping it silently (after a log) if
// the queue is full. Never blocks the caller.
func (t *AccessTracker) Track(memoryID, workspaceID string) {
	select {
	case t.queue <- accessUpdate{memoryID: memoryID, workspaceID: workspaceID}:
	default:
		t.log.Warn("access tracking queue full, dropping update", "memory_id", memoryID)
	}
}

// Stop closes the queue and waits for the worker to drain it.
func (t *AccessTracker) Stop() {
	close(t.queue)
	<-t.done
}

func (t *AccessTracker) run() {
	defer close(t.done)
	for u := range t.queue {
		if err := t.apply(u); err != nil {
			t.log.Warn("access tracking update failed", "memory_id", u.memoryID, "error", err)
		}
	}
}

func (t *AccessTracker) apply(u accessUpdate) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	db := t.store.db
	query := `UPDATE memories SET access_count = access_count + 1, last_accessed_at = ` + db.Dialect().Placeholder(1) +
		` WHERE id = ` + db.Dialect().Placeholder(2) + ` AND workspace_id = ` + db.Dialect().Placeholder(3)
	_, err := db.ExecContext(ctx, query, time.Now().UTC(), u.memoryID, u.workspaceID)
	if err != nil {
		return relational.ClassifyError(err)
	}
	return nil
}
