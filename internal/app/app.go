// Package app wires the server components and owns their lifecycle.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"lingua/internal/retention"
	"lingua/pkg/config"
	"lingua/pkg/genjob"
	"lingua/pkg/llm"
	"lingua/pkg/logger"
	"lingua/pkg/speech"
	"lingua/pkg/store"
	"lingua/pkg/streamer"
)

// App encapsulates the server components and lifecycle.
type App struct {
	cfg       *config.Config
	addr      string
	dbPath    string
	source    string
	version   string
	commit    string
	buildDate string

	st    *streamer.Streamer
	sched *genjob.Scheduler
	trans speech.Transcriber

	retCancel context.CancelFunc
	srv       *http.Server
}

// New initializes everything that does not need a running context: config
// validation, runtime keys, the store, the streamer and the scheduler.
// Call Run to start workers and the HTTP server and block until shutdown.
func New(cfg *config.Config, addr, dbPath, source, version, commit, buildDate string) (*App, error) {
	_ = godotenv.Load(".env")

	if err := validateConfig(cfg, dbPath); err != nil {
		return nil, err
	}

	runtimeCfg := &config.RuntimeConfig{BackendKeys: map[string]struct{}{}, SigningKeys: map[string]struct{}{}}
	for _, k := range cfg.Security.APIKeys.Backend {
		runtimeCfg.BackendKeys[k] = struct{}{}
		runtimeCfg.SigningKeys[k] = struct{}{}
	}
	config.SetRuntime(runtimeCfg)

	if err := store.Open(dbPath); err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", dbPath, err)
	}

	st := streamer.New()
	provider, trans, err := buildProvider(cfg)
	if err != nil {
		return nil, err
	}
	sched := genjob.NewScheduler(provider, st, genjob.Options{
		QueueCapacity: cfg.Generation.QueueCapacity,
		Workers:       cfg.Generation.Workers,
		MaxSteps:      cfg.GenMaxSteps(),
		Timeout:       cfg.GenTimeout(),
	})

	return &App{
		cfg: cfg, addr: addr, dbPath: dbPath, source: source,
		version: version, commit: commit, buildDate: buildDate,
		st: st, sched: sched, trans: trans,
	}, nil
}

// buildProvider selects the model backend. The scripted provider exists
// for local development without credentials; it replays a fixed greeting.
func buildProvider(cfg *config.Config) (llm.Provider, speech.Transcriber, error) {
	if cfg.Generation.Provider == "scripted" {
		p := llm.NewScripted([]llm.Event{{Text: "Hola. "}, {Text: "What would you like to practice today?"}})
		return p, nil, nil
	}
	if cfg.Generation.APIKey == "" {
		return nil, nil, fmt.Errorf("generation api key missing: set LINGUA_GEMINI_API_KEY or generation.api_key")
	}
	ctx := context.Background()
	p, err := llm.NewGemini(ctx, cfg.Generation.APIKey, cfg.Generation.Model)
	if err != nil {
		return nil, nil, err
	}
	t, err := speech.NewGemini(ctx, cfg.Generation.APIKey, cfg.Generation.Model)
	if err != nil {
		return nil, nil, err
	}
	return p, t, nil
}

// Run starts the workers, the sweeper and the HTTP server, and blocks
// until ctx is cancelled or a fatal server error occurs.
func (a *App) Run(ctx context.Context) error {
	a.sched.Start()

	cancelRet, err := retention.Start(ctx, a.cfg, a.st, a.sched.Busy)
	if err != nil {
		return err
	}
	a.retCancel = cancelRet

	a.printBanner()

	a.srv = &http.Server{Addr: a.addr, Handler: a.buildHandler()}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.serve(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		// fires on signal cancellation or when serve fails
		<-gctx.Done()
		a.shutdown()
		return nil
	})
	return g.Wait()
}

// shutdown drains in order: stop intake, finish in-flight jobs, then
// close the store.
func (a *App) shutdown() {
	if a.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.srv.Shutdown(ctx); err != nil {
			logger.Log.Warn("http_shutdown_error", zap.Error(err))
		}
	}
	if a.retCancel != nil {
		a.retCancel()
	}
	a.sched.Stop()
	if err := store.Close(); err != nil {
		logger.Log.Warn("store_close_error", zap.Error(err))
	}
	logger.Log.Info("shutdown_complete")
}

// Streamer exposes the delta streamer; used by admin tooling and tests.
func (a *App) Streamer() *streamer.Streamer { return a.st }
