// daemon wires the workspace memory store's components together and runs
// the lifecycle background loop until terminated, with flag-parsing and
// graceful shutdown but no transport layer (no HTTP/stdio server is
// started here).
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os/signal"
	"strconv"
	"syscall"

	"workspacememory/internal/circuitbreaker"
	"workspacememory/internal/config"
	"workspacememory/internal/decay"
	"workspacememory/internal/lifecycle"
	"workspacememory/internal/logging"
	"workspacememory/internal/memorystore"
	"workspacememory/internal/relational"
	"workspacememory/internal/retry"
	"workspacememory/internal/vector"
)

func main() {
	envPath := flag.String("env", ".env", "path to an optional .env file")
	flag.Parse()

	cfg, err := config.Load(*envPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := logging.New(logging.ParseLevel(cfg.LogLevel)).WithComponent("daemon")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := openRelational(ctx, cfg.Relational)
	if err != nil {
		log.Fatalf("failed to open relational store: %v", err)
	}
	defer db.Close()

	vec, err := openVector(ctx, cfg.Vector, logger)
	if err != nil {
		log.Fatalf("failed to open vector store: %v", err)
	}

	store := memorystore.New(db, vec, logger)

	engine := lifecycle.NewEngine(store, lifecycleConfig(cfg.Lifecycle), logger)
	// Cleanup (hard-delete of expired/long-archived rows) runs far less
	// often than evaluation; ten evaluation intervals is a reasonable
	// default absent a dedicated config knob.
	loop := lifecycle.NewLoop(engine, cfg.Lifecycle.EvaluationInterval, cfg.Lifecycle.EvaluationInterval*10)

	logger.Info("starting lifecycle loop", "evaluation_interval", cfg.Lifecycle.EvaluationInterval.String())
	loop.Start(ctx)
	defer loop.Stop()

	<-ctx.Done()
	logger.Info("shutdown signal received, draining lifecycle loop")
}

func openRelational(ctx context.Context, cfg config.RelationalConfig) (relational.Store, error) {
	switch cfg.Backend {
	case config.BackendRemote:
		return relational.OpenPostgres(ctx, cfg.PostgresDSN, cfg.MaxOpenConns, cfg.MaxIdleConns)
	default:
		return relational.OpenSQLite(ctx, cfg.SQLitePath)
	}
}

// openVector opens the local in-process store, or, in cloud mode, dials
// Qdrant (bootstrapping the collection if missing) and wraps it in
// vector.Resilient so transient Qdrant failures are retried and a sustained
// outage trips the circuit instead of blocking every caller.
func openVector(ctx context.Context, cfg config.VectorConfig, log logging.Logger) (vector.Store, error) {
	if cfg.Mode != config.VectorCloud {
		return vector.NewLocalStore(cfg.EmbeddingDim), nil
	}

	host, port, err := splitHostPort(cfg.QdrantAddr)
	if err != nil {
		return nil, err
	}
	qdrantStore, err := vector.NewQdrantStore(ctx, vector.QdrantConfig{
		Host:           host,
		Port:           port,
		APIKey:         cfg.QdrantAPIKey,
		CollectionName: cfg.CollectionName,
		VectorSize:     uint64(cfg.EmbeddingDim),
	}, log)
	if err != nil {
		return nil, err
	}
	return vector.NewResilient(qdrantStore, retry.DefaultConfig(), circuitbreaker.DefaultConfig()), nil
}

// splitHostPort parses "host:port" into its parts for vector.QdrantConfig,
// which the go-client dials separately rather than as a single address.
func splitHostPort(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("configuration_error: invalid qdrant address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("configuration_error: invalid qdrant port in %q: %w", addr, err)
	}
	return host, port, nil
}

func lifecycleConfig(cfg config.LifecycleConfig) lifecycle.Config {
	typePolicies := make(map[string]lifecycle.Policy, len(cfg.RetentionPolicies))
	for memType, p := range cfg.RetentionPolicies {
		typePolicies[memType] = lifecycle.Policy{
			TTL:                  p.TTL,
			ImportanceMultiplier: p.ImportanceMultiplier,
			GracePeriod:          p.GracePeriod,
		}
	}

	return lifecycle.Config{
		DecayFunction: decay.NewFunction(decay.FunctionKind(cfg.DecayFunction.Kind), cfg.DecayFunction.Lambda, cfg.DecayFunction.DecayPeriod),
		DecayThreshold: cfg.DecayThreshold,
		ImportanceWeights: decay.ImportanceWeights{
			AccessFrequency:   cfg.ImportanceWeights.AccessFrequency,
			Confidence:        cfg.ImportanceWeights.Confidence,
			RelationshipCount: cfg.ImportanceWeights.RelationshipCount,
		},
		DefaultPolicy:       lifecycle.Policy{TTL: cfg.DefaultTTL, ImportanceMultiplier: 1.0, GracePeriod: cfg.ArchiveRetentionPeriod},
		TypePolicies:        typePolicies,
		ArchiveRetention:    cfg.ArchiveRetentionPeriod,
		AuditRetention:      cfg.AuditRetentionPeriod,
		ExpiryAfterArchival: cfg.ArchiveRetentionPeriod,
		WorkspaceBatchSize:  cfg.BatchSize,
		MaxWorkspacePages:   1000,
	}
}
