package vector

import (
	"context"

	"workspacememory/internal/circuitbreaker"
	"workspacememory/internal/retry"
)

// Resilient wraps a Store with retry-with-backoff and a circuit breaker.
// Intended for the remote (Qdrant) mode; the local mode has no transient
// failures worth retrying.
type Resilient struct {
	inner   Store
	retrier *retry.Retrier
	breaker *circuitbreaker.CircuitBreaker
}

// NewResilient wraps inner with the given retry config and circuit breaker.
// Either may be nil to use defaults.
func NewResilient(inner Store, retryCfg *retry.Config, cbCfg *circuitbreaker.Config) *Resilient {
	return &Resilient{
		inner:   inner,
		retrier: retry.New(retryCfg),
		breaker: circuitbreaker.New(cbCfg),
	}
}

func (r *Resilient) Upsert(ctx context.Context, id string, vec []float32, md Metadata) error {
	return r.breaker.Execute(ctx, func(ctx context.Context) error {
		return r.retrier.Do(ctx, func(ctx context.Context) error {
			return r.inner.Upsert(ctx, id, vec, md)
		}).Err
	})
}

func (r *Resilient) Search(ctx context.Context, vec []float32, topK int, filter Filter) ([]Match, error) {
	var out []Match
	err := r.breaker.ExecuteWithFallback(ctx, func(ctx context.Context) error {
		res := r.retrier.Do(ctx, func(ctx context.Context) error {
			matches, err := r.inner.Search(ctx, vec, topK, filter)
			if err != nil {
				return err
			}
			out = matches
			return nil
		})
		return res.Err
	}, func(context.Context, error) error {
		// Circuit open or exhausted retries: fail soft with an empty result
		// set rather than blocking every caller behind a full retry budget.
		out = nil
		return nil
	})
	return out, err
}

func (r *Resilient) Delete(ctx context.Context, id string) error {
	return r.breaker.Execute(ctx, func(ctx context.Context) error {
		return r.retrier.Do(ctx, func(ctx context.Context) error {
			return r.inner.Delete(ctx, id)
		}).Err
	})
}
