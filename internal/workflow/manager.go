package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"spool/internal/config"
	"spool/internal/downloader"
	"spool/internal/infocache"
	"spool/internal/logging"
	"spool/internal/progress"
	"spool/internal/queue"
	"spool/internal/services"
)

const (
	heartbeatInterval = 15 * time.Second
	heartbeatTimeout  = 2 * time.Minute
)

// JobRunner processes one claimed job to a terminal state.
type JobRunner interface {
	Run(ctx context.Context, job *queue.Job) error
}

// Manager claims queued jobs and dispatches them to runner goroutines under
// a bounded concurrency limit. It also owns the janitor and the stale-job
// reclaimer.
type Manager struct {
	cfg     *config.Config
	store   *queue.Store
	logger  *slog.Logger
	runner  JobRunner
	janitor *Janitor

	pollInterval       time.Duration
	errorRetryInterval time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
}

// NewManager constructs a manager with the default downloader runner.
func NewManager(cfg *config.Config, store *queue.Store, logger *slog.Logger, hub *progress.Hub, infos *infocache.Cache) (*Manager, error) {
	runner, err := downloader.NewRunner(cfg, store, logger, hub, infos)
	if err != nil {
		return nil, err
	}
	return NewManagerWithRunner(cfg, store, logger, runner, NewJanitor(cfg, store, logger, infos)), nil
}

// NewManagerWithRunner allows injecting the runner and janitor (used in tests).
func NewManagerWithRunner(cfg *config.Config, store *queue.Store, logger *slog.Logger, runner JobRunner, janitor *Janitor) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	pollInterval := time.Duration(cfg.Workflow.QueuePollInterval) * time.Second
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	errorRetryInterval := time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second
	if errorRetryInterval <= 0 {
		errorRetryInterval = 5 * time.Second
	}
	return &Manager{
		cfg:                cfg,
		store:              store,
		logger:             logging.NewComponentLogger(logger, "workflow"),
		runner:             runner,
		janitor:            janitor,
		pollInterval:       pollInterval,
		errorRetryInterval: errorRetryInterval,
	}
}

// Start begins background processing. Jobs left active by a previous daemon
// run are failed up front since their subprocesses did not survive.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.mu.Unlock()

	if reset, err := m.store.ResetStuckActive(runCtx, services.CodeInternal, queue.DaemonStopReason); err != nil {
		m.logger.Warn("failed to reset stuck jobs", logging.Error(err))
	} else if reset > 0 {
		m.logger.Info("failed jobs abandoned by previous run", logging.Int64("count", reset))
	}

	m.wg.Add(1)
	go m.dispatchLoop(runCtx)

	if m.janitor != nil {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.janitor.Run(runCtx)
		}()
	}

	return nil
}

// Stop terminates background processing and waits for in-flight runners.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

// Running reports whether background processing is active.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// LastError returns the most recent dispatch error, if any.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) dispatchLoop(ctx context.Context) {
	defer m.wg.Done()

	maxConcurrent := m.cfg.Jobs.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	sem := make(chan struct{}, maxConcurrent)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		m.reclaimStale(ctx)

		job, err := m.store.NextQueued(ctx)
		if err != nil {
			m.setLastError(err)
			logging.WarnWithContext(m.logger, "failed to fetch next queued job", "queue_fetch_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check queue database access"))
			if !m.sleep(ctx, m.errorRetryInterval) {
				return
			}
			continue
		}
		if job == nil {
			if !m.sleep(ctx, m.pollInterval) {
				return
			}
			continue
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return
		}

		claimed, err := m.store.Claim(ctx, job.ID)
		if err != nil || !claimed {
			<-sem
			if err != nil {
				m.setLastError(err)
				m.logger.Warn("claim failed", logging.Error(err), logging.String(logging.FieldJobID, job.ID))
			}
			continue
		}
		job.Status = queue.StatusDownloading

		m.wg.Add(1)
		go func(job *queue.Job) {
			defer m.wg.Done()
			defer func() { <-sem }()
			m.process(ctx, job)
		}(job)
	}
}

// process runs one claimed job with a heartbeat loop alongside it.
func (m *Manager) process(ctx context.Context, job *queue.Job) {
	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeatLoop(hbCtx, &hbWG, job.ID)

	err := m.runner.Run(ctx, job)
	stopHeartbeat()
	hbWG.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		m.setLastError(err)
	}
}

func (m *Manager) heartbeatLoop(ctx context.Context, wg *sync.WaitGroup, jobID string) {
	defer wg.Done()
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.store.UpdateHeartbeat(ctx, jobID); err != nil && !errors.Is(err, context.Canceled) {
				m.logger.Warn("heartbeat update failed", logging.Error(err), logging.String(logging.FieldJobID, jobID))
			}
		}
	}
}

// reclaimStale fails active jobs whose runner stopped heartbeating, e.g.
// after a panic in a runner goroutine.
func (m *Manager) reclaimStale(ctx context.Context) {
	cutoff := time.Now().Add(-heartbeatTimeout)
	reclaimed, err := m.store.ReclaimStaleActive(ctx, cutoff, services.CodeInternal, "Runner heartbeat expired")
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			m.logger.Warn("stale job reclaim failed", logging.Error(err))
		}
		return
	}
	if reclaimed > 0 {
		m.logger.Info("reclaimed stale jobs", logging.Int64("count", reclaimed))
	}
}

func (m *Manager) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
