package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/kittclouds/skillscan/internal/config"
	"github.com/kittclouds/skillscan/internal/store"
	"github.com/kittclouds/skillscan/pkg/discovery"
	"github.com/kittclouds/skillscan/pkg/embedding"
	"github.com/kittclouds/skillscan/pkg/engine"
	"github.com/kittclouds/skillscan/pkg/ledger"
	"github.com/kittclouds/skillscan/pkg/matcher"
	"github.com/kittclouds/skillscan/pkg/pipeline"
	"github.com/kittclouds/skillscan/pkg/taxonomy"
)

// app holds everything a command needs, built from one Config.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	repo    *taxonomy.TieredRepository
	engine  *engine.Engine
	closers []io.Closer
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func newRepository(cfg config.Config, logger *slog.Logger) *taxonomy.TieredRepository {
	t := cfg.Taxonomy
	return taxonomy.NewTieredRepository(taxonomy.Config{
		CacheMaxAge:   t.CacheMaxAge,
		CacheDir:      t.CacheDir,
		ReferenceDir:  t.ReferenceDir,
		DomainDir:     t.DomainDir,
		MinRecords:    t.MinRecords,
		MinRatio:      t.MinRatio,
		RetryInterval: t.RetryInterval,
		RemoteURL:     t.RemoteURL,
		RemoteTimeout: t.RemoteTimeout,
	}, taxonomy.WithLogger(logger))
}

// newApp wires repository, passes, ledger and engine. Closing the app
// releases them in reverse order.
func newApp(ctx context.Context, cfg config.Config) (_ *app, err error) {
	logger := newLogger(cfg.LogLevel)
	a := &app{cfg: cfg, logger: logger, repo: newRepository(cfg, logger)}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	// One SQLite store serves both the ledger and the vector index when
	// either is configured for it.
	var st *store.SQLiteStore
	openStore := func() (*store.SQLiteStore, error) {
		if st != nil {
			return st, nil
		}
		s, err := store.NewSQLiteStoreWithDSN(cfg.Ledger.SQLiteDSN)
		if err != nil {
			return nil, err
		}
		st = s
		a.closers = append(a.closers, s)
		return s, nil
	}

	strategies := []matcher.Strategy{
		matcher.Alias{},
		&matcher.Fuzzy{
			Threshold: cfg.Matching.FuzzyThreshold,
			MaxTokens: cfg.Matching.MaxFuzzyTokens,
			MinLength: matcher.DefaultFuzzyMinLength,
		},
		matcher.NGram{},
	}
	if cfg.Matching.Semantic {
		sem, err := newSemantic(cfg, logger, openStore)
		if err != nil {
			return nil, err
		}
		strategies = append(strategies, sem)
	}

	blacklist, err := discovery.LoadBlacklist(cfg.Discovery.BlacklistPath)
	if err != nil {
		return nil, err
	}
	detector := discovery.NewDetector(discovery.Config{
		MinLength:  cfg.Discovery.MinLength,
		Confidence: cfg.Discovery.Confidence,
	}, blacklist)

	pipe, err := pipeline.New(a.repo,
		pipeline.Config{EmitDiscoveries: cfg.Discovery.Emit, Workers: cfg.Workers},
		pipeline.WithLogger(logger),
		pipeline.WithStrategies(strategies...),
		pipeline.WithDetector(detector),
		pipeline.WithMetrics(prometheus.DefaultRegisterer))
	if err != nil {
		return nil, err
	}

	var backend ledger.Backend
	switch cfg.Ledger.Backend {
	case "sqlite":
		s, err := openStore()
		if err != nil {
			pipe.Close()
			return nil, err
		}
		backend = s
	default:
		backend = ledger.NewJSONFile(cfg.Ledger.Path, cfg.Ledger.IgnorePath, logger)
	}

	ledgerOpts := []ledger.Option{ledger.WithAliasSink(a.repo), ledger.WithLogger(logger)}
	if cfg.Ledger.RedisURL != "" {
		ropts, err := redis.ParseURL(cfg.Ledger.RedisURL)
		if err != nil {
			pipe.Close()
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(ropts)
		a.closers = append(a.closers, client)
		ledgerOpts = append(ledgerOpts, ledger.WithLocker(ledger.NewRedisLocker(client, cfg.Ledger.LockTTL)))
	}

	eng, err := engine.New(ctx, a.repo, pipe, ledger.New(nopCloser{backend}, ledgerOpts...), engine.WithLogger(logger))
	if err != nil {
		pipe.Close()
		return nil, err
	}
	a.engine = eng
	return a, nil
}

func newSemantic(cfg config.Config, logger *slog.Logger, openStore func() (*store.SQLiteStore, error)) (*matcher.Semantic, error) {
	emb, err := embedding.NewOpenAIEmbedder(cfg.Embedding.APIKey, cfg.Embedding.Model, cfg.Embedding.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}
	opts := []matcher.SemanticOption{matcher.WithSemanticLogger(logger)}
	if cfg.Embedding.Index == "sqlite" {
		st, err := openStore()
		if err != nil {
			return nil, err
		}
		opts = append(opts, matcher.WithIndexFactory(
			func(ctx context.Context, model string, labels []string) (embedding.Index, error) {
				return st.NewVectorIndex(ctx, model, labels)
			}))
	}
	return matcher.NewSemantic(emb, matcher.SemanticConfig{
		TopK:          cfg.Matching.SemanticTopK,
		Threshold:     cfg.Matching.SemanticThreshold,
		MaxCandidates: cfg.Matching.MaxSemanticCandidates,
		MaxChars:      cfg.Matching.MaxSemanticChars,
	}, opts...), nil
}

// nopCloser keeps the ledger from closing a store the app owns.
type nopCloser struct{ ledger.Backend }

func (nopCloser) Close() error { return nil }

func (n nopCloser) LockPerKey() bool {
	k, ok := n.Backend.(ledger.KeyLocker)
	return ok && k.LockPerKey()
}

// Close releases the engine, then the shared store and clients.
func (a *app) Close() error {
	var errs []error
	if a.engine != nil {
		errs = append(errs, a.engine.Close())
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	return errors.Join(errs...)
}
