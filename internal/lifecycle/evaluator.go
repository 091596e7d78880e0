package lifecycle

import (
	"context"
	"errors"
	"time"

	"workspacememory/internal/decay"
	"workspacememory/internal/logging"
	"workspacememory/internal/memorystore"
	"workspacememory/internal/types"
)

// Policy bundles the per-type TTL and importance-multiplier settings the
// classifier applies.
type Policy struct {
	TTL                  time.Duration
	ImportanceMultiplier float64
	// GracePeriod is how long a never-accessed memory is kept before it is
	// archived as unused, even when its effective TTL has not yet passed.
	// Memories with at least one access are archived on TTL alone.
	GracePeriod time.Duration
}

// Config bundles the evaluator's tunables: the decay/importance/TTL
// design and the batch size each run processes.
type Config struct {
	DecayFunction        decay.Function
	DecayThreshold       float64 // below this: active -> decaying; at/above: decaying -> active
	ImportanceWeights    decay.ImportanceWeights
	DefaultPolicy        Policy
	TypePolicies         map[string]Policy
	ArchiveRetention     time.Duration // archived_memories kept at least this long before hard delete
	AuditRetention       time.Duration // lifecycle_events kept at least this long
	ExpiryAfterArchival  time.Duration // archived -> expired once this long has passed since archiving
	WorkspaceBatchSize   int           // workspaces per page
	MaxWorkspacePages    int           // safety cap against runaway pagination
}

// DefaultConfig is the suggested set of defaults: exponential decay at
// 0.1 per day (a half-life of about 7 days), 0.3 decay threshold,
// importance doubling TTL at full score.
func DefaultConfig() Config {
	return Config{
		DecayFunction:       decay.ExponentialFunc(0.1),
		DecayThreshold:      0.3,
		ImportanceWeights:   decay.ImportanceWeights{AccessFrequency: 0.4, Confidence: 0.3, RelationshipCount: 0.3},
		DefaultPolicy:       Policy{TTL: 90 * 24 * time.Hour, ImportanceMultiplier: 1.0, GracePeriod: 24 * time.Hour},
		TypePolicies:        map[string]Policy{},
		ArchiveRetention:    180 * 24 * time.Hour,
		AuditRetention:      365 * 24 * time.Hour,
		ExpiryAfterArchival: 60 * 24 * time.Hour,
		WorkspaceBatchSize:  100,
		MaxWorkspacePages:   1000,
	}
}

func (c Config) policyFor(memoryType string) Policy {
	if p, ok := c.TypePolicies[memoryType]; ok {
		return p
	}
	return c.DefaultPolicy
}

// Engine runs the batch evaluator and exposes the archival/restore/
// cleanup operations that sit on top of the state machine.
type Engine struct {
	store *memorystore.Store
	cfg   Config
	log   logging.Logger
}

func NewEngine(store *memorystore.Store, cfg Config, log logging.Logger) *Engine {
	if log == nil {
		log = logging.Noop()
	}
	w := cfg.ImportanceWeights
	if sum := w.AccessFrequency + w.Confidence + w.RelationshipCount; sum < 0.99 || sum > 1.01 {
		log.Warn("importance weights do not sum to 1.0", "sum", sum)
	}
	return &Engine{store: store, cfg: cfg, log: log}
}

// Report summarizes one evaluation run.
type Report struct {
	WorkspacesEvaluated int
	MemoriesEvaluated   int
	Transitioned        int
	Archived            int
	Expired             int
	ScoresUpdated       int
	Errors              []error
}

// Run evaluates every workspace's non-pinned memories at time now,
// re-running with the same now being a no-op on a previously-converged
// store (idempotent evaluation).
// DryRun computes the report without writing anything.
func (e *Engine) Run(ctx context.Context, now time.Time, dryRun bool) (Report, error) {
	var report Report
	offset := 0
	for page := 0; page < e.cfg.MaxWorkspacePages; page++ {
		ids, err := e.store.ListWorkspaceIDs(ctx, e.cfg.WorkspaceBatchSize, offset)
		if err != nil {
			report.Errors = append(report.Errors, err)
			break
		}
		if len(ids) == 0 {
			break
		}
		for _, wsID := range ids {
			if err := ctx.Err(); err != nil {
				report.Errors = append(report.Errors, err)
				return report, errors.Join(report.Errors...)
			}
			if err := e.evaluateWorkspace(ctx, wsID, now, dryRun, &report); err != nil {
				report.Errors = append(report.Errors, err)
				continue
			}
			report.WorkspacesEvaluated++
		}
		if len(ids) < e.cfg.WorkspaceBatchSize {
			break
		}
		offset += len(ids)
	}
	return report, errors.Join(report.Errors...)
}

func (e *Engine) evaluateWorkspace(ctx context.Context, workspaceID string, now time.Time, dryRun bool, report *Report) error {
	mems, err := e.store.ListEvaluable(ctx, workspaceID)
	if err != nil {
		return err
	}
	for _, m := range mems {
		report.MemoriesEvaluated++
		if err := e.classifyAndApply(ctx, m, now, dryRun, report); err != nil {
			report.Errors = append(report.Errors, err)
		}
	}

	archived, err := e.store.ListArchived(ctx, workspaceID)
	if err != nil {
		return err
	}
	for _, m := range archived {
		if now.Sub(m.ArchivedAt) < e.cfg.ExpiryAfterArchival {
			continue
		}
		valid, reason := ValidateTransition(types.StateArchived, types.StateExpired, m.Pinned, types.TriggerSystem)
		if !valid {
			e.log.Debug("skipping archived->expired", "memory_id", m.ID, "reason", reason)
			continue
		}
		if dryRun {
			report.Expired++
			continue
		}
		if err := e.store.MarkExpired(ctx, m.ID, workspaceID, "archive retention window elapsed"); err != nil {
			report.Errors = append(report.Errors, err)
			continue
		}
		report.Expired++
		report.Transitioned++
	}
	return nil
}

// classifyAndApply computes decay/importance/effective-TTL for one memory,
// decides its target state, and either applies a valid transition or, if
// the state is unchanged but the decay score drifted, coalesces a
// score-only write.
func (e *Engine) classifyAndApply(ctx context.Context, m types.Memory, now time.Time, dryRun bool, report *Report) error {
	relCount, err := e.store.CountRelationships(ctx, m.ID)
	if err != nil {
		return err
	}
	importance := decay.Importance(decay.ImportanceMetrics{
		AccessCount:       m.AccessCount,
		Confidence:        m.Confidence,
		RelationshipCount: relCount,
	}, e.cfg.ImportanceWeights)

	decayScore := e.cfg.DecayFunction(m.LastAccessedAt, now)
	policy := e.cfg.policyFor(m.Type)
	effectiveTTL := decay.EffectiveTTL(policy.TTL, importance, policy.ImportanceMultiplier)
	age := now.Sub(m.CreatedAt)

	target := m.LifecycleState
	unusedPastGrace := m.AccessCount == 0 && age > policy.GracePeriod
	switch {
	case age > effectiveTTL || unusedPastGrace:
		target = types.StateArchived
	case m.LifecycleState == types.StateActive && decayScore < e.cfg.DecayThreshold:
		target = types.StateDecaying
	case m.LifecycleState == types.StateDecaying && decayScore >= e.cfg.DecayThreshold:
		target = types.StateActive
	}

	if target == m.LifecycleState {
		if scoreDrifted(m.DecayScore, decayScore) && !dryRun {
			if err := e.store.UpdateLifecycle(ctx, m.ID, m.WorkspaceID, m.LifecycleState, decayScore); err != nil {
				return err
			}
			report.ScoresUpdated++
		}
		return nil
	}

	valid, reason := ValidateTransition(m.LifecycleState, target, m.Pinned, types.TriggerSystem)
	if !valid {
		e.log.Debug("classifier proposed an invalid transition", "memory_id", m.ID, "from", m.LifecycleState, "to", target, "reason", reason)
		return nil
	}
	if dryRun {
		report.Transitioned++
		if target == types.StateArchived {
			report.Archived++
		}
		return nil
	}

	if target == types.StateArchived {
		reason := "ttl exceeded"
		if age <= effectiveTTL {
			reason = "never accessed past grace period"
		}
		if err := e.store.ArchiveMemory(ctx, m.ID, m.WorkspaceID, reason, types.TriggerSystem, ""); err != nil {
			return err
		}
		report.Archived++
	} else {
		if err := e.store.UpdateLifecycle(ctx, m.ID, m.WorkspaceID, target, decayScore); err != nil {
			return err
		}
		if err := e.store.AppendLifecycleEvent(ctx, types.LifecycleEvent{
			MemoryID: m.ID, WorkspaceID: m.WorkspaceID, PreviousState: m.LifecycleState, NewState: target,
			Reason: "decay score crossed threshold", TriggeredBy: types.TriggerSystem,
		}); err != nil {
			e.log.Warn("failed to append lifecycle event", "memory_id", m.ID, "error", err)
		}
	}
	report.Transitioned++
	return nil
}

func scoreDrifted(old, new float64) bool {
	d := old - new
	if d < 0 {
		d = -d
	}
	return d > 0.001
}
