// Package retention runs the stale-generation sweeper. A generation job
// that dies without finalizing leaves a streaming message behind; the
// sweeper finalizes such messages as failed on a cron schedule so the
// ledger never retains a permanently streaming turn.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"go.uber.org/zap"

	"lingua/pkg/config"
	"lingua/pkg/ledger"
	"lingua/pkg/logger"
	"lingua/pkg/models"
	"lingua/pkg/store"
	"lingua/pkg/streamer"
)

const defaultStaleAfter = 10 * time.Minute

// Sweeper holds the sweep collaborators.
type Sweeper struct {
	st         *streamer.Streamer
	busy       func(threadID string) bool
	staleAfter time.Duration
}

// New builds a sweeper. busy reports whether a thread has a live
// generation claim; claimed threads are skipped so the sweeper never races
// an in-flight job inside its grace period.
func New(cfg *config.Config, st *streamer.Streamer, busy func(string) bool) *Sweeper {
	staleAfter := defaultStaleAfter
	if cfg.Retention.StaleAfterSeconds > 0 {
		staleAfter = time.Duration(cfg.Retention.StaleAfterSeconds) * time.Second
	}
	return &Sweeper{st: st, busy: busy, staleAfter: staleAfter}
}

// Start launches the cron scheduler if retention is enabled; returns a
// cancel func.
func Start(ctx context.Context, cfg *config.Config, st *streamer.Streamer, busy func(string) bool) (context.CancelFunc, error) {
	if !cfg.Retention.Enabled {
		logger.Log.Info("retention_disabled")
		return func() {}, nil
	}

	cronExpr := cfg.Retention.Cron
	if cronExpr == "" {
		cronExpr = "*/5 * * * *"
	}
	if !gronx.IsValid(cronExpr) {
		logger.Log.Error("retention_invalid_cron", zap.String("cron", cronExpr))
		return nil, fmt.Errorf("invalid retention cron expression: %s", cronExpr)
	}

	s := New(cfg, st, busy)
	ctx2, cancel := context.WithCancel(ctx)
	go s.runScheduler(ctx2, cronExpr)

	logger.Log.Info("retention_scheduler_started", zap.String("cron", cronExpr), zap.Duration("stale_after", s.staleAfter))
	return cancel, nil
}

// runScheduler computes the next cron tick with gronx and sleeps until it.
func (s *Sweeper) runScheduler(ctx context.Context, cronExpr string) {
	for {
		select {
		case <-ctx.Done():
			logger.Log.Info("retention_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Log.Error("retention_nexttick_failed", zap.String("cron", cronExpr), zap.Error(err))
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
			if err := s.RunOnce(); err != nil {
				logger.Log.Error("retention_run_error", zap.Error(err))
			}
		case <-ctx.Done():
			logger.Log.Info("retention_scheduler_stopping")
			return
		}
	}
}

// RunOnce sweeps every thread for stale streaming messages. Finalization
// goes through the ledger's idempotent path, so losing a race against a
// job that completes mid-sweep is harmless.
func (s *Sweeper) RunOnce() error {
	threadsList, err := store.ListThreads()
	if err != nil {
		return err
	}
	cutoff := time.Now().UTC().Add(-s.staleAfter).UnixNano()
	swept := 0
	for _, t := range threadsList {
		if s.busy != nil && s.busy(t.ID) {
			continue
		}
		msgs, err := store.ListStreamingMessages(t.ID)
		if err != nil {
			logger.Log.Warn("retention_list_failed", zap.String("thread", t.ID), zap.Error(err))
			continue
		}
		for _, m := range msgs {
			if m.TS >= cutoff {
				continue
			}
			if err := ledger.FinalizeMessage(t.ID, m.ID, m.Text, models.StatusFailed); err != nil {
				logger.Log.Warn("retention_finalize_failed", zap.String("msg", m.ID), zap.Error(err))
				continue
			}
			s.st.Final(t.ID, m.ID, models.StatusFailed)
			s.st.Discard(t.ID, m.ID)
			swept++
		}
	}
	if swept > 0 {
		logger.Log.Info("retention_swept", zap.Int("messages", swept))
	}
	return nil
}
