package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/kiteline/scorescribe/internal/compare"
	"github.com/kiteline/scorescribe/internal/parse"
	"github.com/kiteline/scorescribe/internal/recognize"
	"github.com/kiteline/scorescribe/internal/reconcile"
	"github.com/kiteline/scorescribe/internal/store"
	"github.com/kiteline/scorescribe/internal/tracker"
	"github.com/kiteline/scorescribe/internal/workflow"
)

// env wires the store and the engines behind every command. Constructor
// injection only; nothing registers itself globally.
type env struct {
	Store      store.Store
	Tracker    *tracker.Tracker
	Reconciler *reconcile.Engine
	Comparer   *compare.Engine
	Processor  *workflow.Processor
	Recognizer *recognize.Pool
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite", "":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "scorescribe.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initEnv(ctx context.Context) (*env, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}

	engine, err := recognize.NewEngine(cfg.Recognizer)
	if err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	pool := recognize.NewPool(engine, cfg.Recognizer.Workers, cfg.Recognizer.RatePerSec)

	tr := tracker.New(st)
	rec := reconcile.NewEngine(st, reconcile.Config{
		CycleDropRatio:              cfg.Reconcile.CycleDropRatio,
		IdentityConfidenceThreshold: cfg.Reconcile.IdentityConfidenceThreshold,
		MaxScore:                    cfg.Reconcile.MaxScore,
	})
	cmp := compare.NewEngine(st, compare.Config{
		PowerBandWidth: cfg.Compare.PowerBandWidth,
		BronzeMax:      cfg.Compare.BronzeMax,
		SilverMax:      cfg.Compare.SilverMax,
		GoldMax:        cfg.Compare.GoldMax,
	})
	parser := parse.NewParser(cfg.Parse)

	return &env{
		Store:      st,
		Tracker:    tr,
		Reconciler: rec,
		Comparer:   cmp,
		Processor:  workflow.NewProcessor(cfg.Workflow, pool, parser, tr, rec, st),
		Recognizer: pool,
	}, nil
}

func (e *env) Close() {
	e.Store.Close() //nolint:errcheck
}
