package workflow

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"spool/internal/config"
	"spool/internal/infocache"
	"spool/internal/logging"
	"spool/internal/queue"
)

// Janitor sweeps expired terminal jobs and their artifacts out of the
// system on a fixed interval. It also prunes the metadata cache and aged
// log files.
type Janitor struct {
	cfg    *config.Config
	store  *queue.Store
	logger *slog.Logger
	infos  *infocache.Cache

	interval  time.Duration
	retention time.Duration
}

// NewJanitor builds a janitor from the jobs retention configuration.
func NewJanitor(cfg *config.Config, store *queue.Store, logger *slog.Logger, infos *infocache.Cache) *Janitor {
	if logger == nil {
		logger = logging.NewNop()
	}
	interval := time.Duration(cfg.Jobs.CleanupInterval) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	return &Janitor{
		cfg:       cfg,
		store:     store,
		logger:    logging.NewComponentLogger(logger, "janitor"),
		infos:     infos,
		interval:  interval,
		retention: time.Duration(cfg.Jobs.RetentionMinutes) * time.Minute,
	}
}

// Run sweeps until the context ends.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.Sweep(ctx)
		}
	}
}

// Sweep removes expired terminal jobs together with their artifacts and
// returns how many jobs were evicted. A retention of zero keeps terminal
// jobs until the daemon restarts.
func (j *Janitor) Sweep(ctx context.Context) int {
	evicted := 0
	if j.retention > 0 {
		cutoff := time.Now().UTC().Add(-j.retention)
		jobs, err := j.store.ExpiredTerminal(ctx, cutoff)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				j.logger.Warn("expired job query failed", logging.Error(err))
			}
			return 0
		}
		for _, job := range jobs {
			if job.OutputPath != "" {
				if err := os.Remove(job.OutputPath); err != nil && !os.IsNotExist(err) {
					j.logger.Warn("failed to remove expired artifact",
						logging.Error(err),
						logging.String(logging.FieldJobID, job.ID),
						logging.String("path", job.OutputPath))
				}
			}
			removed, err := j.store.Remove(ctx, job.ID)
			if err != nil {
				j.logger.Warn("failed to remove expired job", logging.Error(err), logging.String(logging.FieldJobID, job.ID))
				continue
			}
			if removed {
				evicted++
			}
		}
		if evicted > 0 {
			j.logger.Info("evicted expired jobs", logging.Int("count", evicted))
		}
	}

	if j.infos != nil {
		j.infos.PurgeExpired()
	}

	logging.CleanupOldLogs(j.logger, j.cfg.Logging.RetentionDays, logging.RetentionTarget{
		Dir:     j.cfg.Paths.LogDir,
		Pattern: "*.log",
		Exclude: []string{logging.DaemonLogPath(j.cfg)},
	})

	return evicted
}
