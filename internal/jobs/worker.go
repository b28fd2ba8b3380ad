package jobs

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/clipiq/clipiq-backend/internal/logger"
	"github.com/clipiq/clipiq-backend/internal/services"
)

// Worker runs the ranking maintenance loop: periodic engagement stat
// rebuilds and ledger retention purges. One instance per process.
type Worker struct {
	log        *logger.Logger
	engagement services.EngagementService
	ledger     services.ImpressionService

	rebuildEvery time.Duration
	purgeEvery   time.Duration
}

func NewWorker(baseLog *logger.Logger, engagement services.EngagementService, ledger services.ImpressionService) *Worker {
	return &Worker{
		log:          baseLog.With("component", "MaintenanceWorker"),
		engagement:   engagement,
		ledger:       ledger,
		rebuildEvery: intervalFromEnv("STATS_REBUILD_INTERVAL_MINUTES", 24*time.Hour),
		purgeEvery:   intervalFromEnv("LEDGER_PURGE_INTERVAL_MINUTES", 24*time.Hour),
	}
}

func (w *Worker) Start(ctx context.Context) {
	// Rebuild once at startup so trending is never empty after a deploy.
	go func() {
		w.runRebuild(ctx)

		rebuild := time.NewTicker(w.rebuildEvery)
		purge := time.NewTicker(w.purgeEvery)
		defer rebuild.Stop()
		defer purge.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-rebuild.C:
				w.runRebuild(ctx)
			case <-purge.C:
				w.runPurge(ctx)
			}
		}
	}()
}

func (w *Worker) runRebuild(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("stats rebuild panic", "panic", r)
		}
	}()
	if err := w.engagement.RebuildStats(ctx); err != nil {
		w.log.Warn("stats rebuild failed", "error", err)
	}
}

func (w *Worker) runPurge(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("ledger purge panic", "panic", r)
		}
	}()
	if _, err := w.ledger.PurgeExpired(ctx); err != nil {
		w.log.Warn("ledger purge failed", "error", err)
	}
}

func intervalFromEnv(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	minutes, err := strconv.Atoi(raw)
	if err != nil || minutes <= 0 {
		return fallback
	}
	return time.Duration(minutes) * time.Minute
}
