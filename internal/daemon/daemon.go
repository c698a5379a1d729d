package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/gofrs/flock"

	"spool/internal/config"
	"spool/internal/deps"
	"spool/internal/infocache"
	"spool/internal/logging"
	"spool/internal/notifications"
	"spool/internal/progress"
	"spool/internal/queue"
	"spool/internal/services"
	"spool/internal/services/ytdlp"
	"spool/internal/workflow"
)

// InfoProbe resolves video metadata for the video-info endpoint. The concrete
// implementation shells out to the extraction engine; tests inject a stub.
type InfoProbe interface {
	FetchInfo(ctx context.Context, url string) (*ytdlp.VideoInfo, error)
}

// Daemon coordinates the workflow manager, progress hub, and API surfaces,
// and enforces single-instance execution via a lock file.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	workflow *workflow.Manager
	hub      *progress.Hub
	infos    *infocache.Cache
	probe    InfoProbe
	notifier notifications.Service
	logPath  string

	lockPath string
	lock     *flock.Flock

	api *apiServer

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	stopped chan struct{}
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	QueueDBPath  string
	LockFilePath string
	QueueStats   map[queue.Status]int
	Dependencies []deps.Status
	LastError    string
}

// New constructs a daemon with default collaborators built from the config.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil {
		return nil, errors.New("daemon requires config and store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	hub := progress.NewHub(cfg.Jobs.EventBufferSize)
	infos := infocache.New(
		time.Duration(cfg.InfoCache.TTLSeconds)*time.Second,
		cfg.InfoCache.MaxEntries,
		logger,
	)
	wf, err := workflow.NewManager(cfg, store, logger, hub, infos)
	if err != nil {
		return nil, fmt.Errorf("build workflow manager: %w", err)
	}
	probe, err := ytdlp.New(cfg.Engine)
	if err != nil {
		return nil, fmt.Errorf("build engine client: %w", err)
	}
	return NewWithDependencies(cfg, store, logger, wf, hub, infos, probe, notifications.NewService(cfg))
}

// NewWithDependencies wires the daemon from prebuilt collaborators (used in
// tests to stub the engine probe and notifier).
func NewWithDependencies(cfg *config.Config, store *queue.Store, logger *slog.Logger, wf *workflow.Manager, hub *progress.Hub, infos *infocache.Cache, probe InfoProbe, notifier notifications.Service) (*Daemon, error) {
	if cfg == nil || store == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, and workflow manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "spoold.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		workflow: wf,
		hub:      hub,
		infos:    infos,
		probe:    probe,
		notifier: notifier,
		logPath:  logging.DaemonLogPath(cfg),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	api, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = api
	return d, nil
}

// Start acquires the daemon lock, launches the workflow manager, and begins
// serving the HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another spool daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.workflow.Start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.api.start(d.ctx); err != nil {
		d.workflow.Stop()
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return err
	}

	d.stopped = make(chan struct{})
	d.running.Store(true)
	d.logger.Info("spool daemon started",
		logging.String("lock", d.lockPath),
		logging.String("bind", d.cfg.Paths.APIBind))
	if d.notifier != nil {
		if err := d.notifier.NotifyDaemonStarted(d.ctx, d.cfg.Paths.APIBind); err != nil {
			d.logger.Warn("start notification failed", logging.Error(err))
		}
	}
	return nil
}

// Stop stops background processing, shuts down the API server, and releases
// the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.workflow.Stop()
	d.api.stop()
	if d.notifier != nil {
		notifyCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := d.notifier.NotifyDaemonStopped(notifyCtx); err != nil {
			d.logger.Warn("stop notification failed", logging.Error(err))
		}
		cancel()
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	if d.stopped != nil {
		close(d.stopped)
	}
	d.logger.Info("spool daemon stopped")
}

// Done returns a channel that closes once Stop completes, so a foreground
// serve loop can exit when the daemon is stopped over IPC. Before Start the
// channel is already closed.
func (d *Daemon) Done() <-chan struct{} {
	if d.stopped == nil {
		done := make(chan struct{})
		close(done)
		return done
	}
	return d.stopped
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		QueueDBPath:  d.store.Path(),
		LockFilePath: d.lockPath,
	}
	if stats, err := d.store.Stats(ctx); err == nil {
		status.QueueStats = stats
	}
	status.Dependencies = deps.Check(deps.ForConfig(d.cfg))
	if err := d.workflow.LastError(); err != nil {
		status.LastError = err.Error()
	}
	return status
}

// ListJobs returns jobs filtered by optional statuses.
func (d *Daemon) ListJobs(ctx context.Context, statuses []queue.Status) ([]*queue.Job, error) {
	return d.store.List(ctx, statuses...)
}

// GetJob returns one job by id, or nil when it does not exist.
func (d *Daemon) GetJob(ctx context.Context, id string) (*queue.Job, error) {
	return d.store.GetByID(ctx, id)
}

// CancelJob requests cooperative cancellation. Queued jobs turn cancelled
// immediately and the terminal event is published here since no runner will
// ever pick them up; active jobs keep their runner, which observes the flag
// and publishes its own terminal event. Terminal jobs are left untouched.
func (d *Daemon) CancelJob(ctx context.Context, id string) (*queue.Job, error) {
	job, err := d.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, nil
	}
	if job.Status.IsTerminal() {
		return job, nil
	}
	wasQueued := job.Status == queue.StatusQueued
	updated, err := d.store.RequestCancel(ctx, id)
	if err != nil {
		return nil, err
	}
	if updated != nil && wasQueued && updated.Status == queue.StatusCancelled && d.hub != nil {
		d.hub.Publish(progress.Event{
			JobID:    updated.ID,
			Status:   string(updated.Status),
			Stage:    updated.ProgressStage,
			Percent:  updated.ProgressPercent,
			Message:  "Cancelled",
			Terminal: true,
		})
	}
	return updated, nil
}

// RetryJobs moves failed jobs back to queued. With no ids, every failed job
// is retried.
func (d *Daemon) RetryJobs(ctx context.Context, ids []string) (int64, error) {
	return d.store.RetryFailed(ctx, ids...)
}

// ClearJobs removes terminal jobs, or every job when all is set.
func (d *Daemon) ClearJobs(ctx context.Context, all bool) (int64, error) {
	if all {
		return d.store.Clear(ctx)
	}
	return d.store.ClearTerminal(ctx)
}

// VideoInfo resolves metadata for a URL, serving from the TTL cache when the
// entry is still fresh.
func (d *Daemon) VideoInfo(ctx context.Context, url string) (*ytdlp.VideoInfo, error) {
	trimmed := strings.TrimSpace(url)
	if trimmed == "" {
		return nil, services.Wrap(services.ErrValidation, "video-info", "parse", "URL is required", nil)
	}
	if d.infos != nil {
		if cached, found := d.infos.Lookup(trimmed); found {
			return &cached, nil
		}
	}
	if d.probe == nil {
		return nil, errors.New("engine probe unavailable")
	}
	info, err := d.probe.FetchInfo(ctx, trimmed)
	if err != nil {
		return nil, err
	}
	if d.infos != nil {
		d.infos.Store(trimmed, *info)
	}
	return info, nil
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	notifier := d.notifier
	if notifier == nil {
		notifier = notifications.NewService(d.cfg)
	}
	if err := notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// APIAddr reports the bound API listener address, or empty when the API
// server is not running.
func (d *Daemon) APIAddr() string {
	return d.api.addr()
}
