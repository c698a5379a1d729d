package downloader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"spool/internal/config"
	"spool/internal/infocache"
	"spool/internal/logging"
	"spool/internal/notifications"
	"spool/internal/progress"
	"spool/internal/queue"
	"spool/internal/services"
	"spool/internal/services/ffmpeg"
	"spool/internal/services/ytdlp"
)

// Engine abstracts the extraction client so tests can stub yt-dlp.
type Engine interface {
	FetchInfo(ctx context.Context, url string) (*ytdlp.VideoInfo, error)
	Download(ctx context.Context, req ytdlp.DownloadRequest, progress func(ytdlp.ProgressUpdate)) (string, error)
}

// Trimmer abstracts the clip stage so tests can stub ffmpeg.
type Trimmer interface {
	Trim(ctx context.Context, req ffmpeg.TrimRequest, progress func(ffmpeg.ProgressUpdate)) (string, error)
}

// Runner drives one claimed job through metadata, download, optional trim,
// and terminal finalization. The workflow manager owns claiming and
// concurrency; the runner owns everything between claim and terminal state.
type Runner struct {
	cfg      *config.Config
	store    *queue.Store
	logger   *slog.Logger
	engine   Engine
	trimmer  Trimmer
	hub      *progress.Hub
	infos    *infocache.Cache
	notifier notifications.Service

	cancelPollInterval time.Duration
}

// NewRunner constructs the runner with default engine clients.
func NewRunner(cfg *config.Config, store *queue.Store, logger *slog.Logger, hub *progress.Hub, infos *infocache.Cache) (*Runner, error) {
	engine, err := ytdlp.New(cfg.Engine)
	if err != nil {
		return nil, fmt.Errorf("build engine client: %w", err)
	}
	trimmer, err := ffmpeg.New(cfg.FFmpeg)
	if err != nil {
		return nil, fmt.Errorf("build ffmpeg client: %w", err)
	}
	return NewRunnerWithDependencies(cfg, store, logger, hub, infos, engine, trimmer, notifications.NewService(cfg)), nil
}

// NewRunnerWithDependencies allows injecting all collaborators (used in tests).
func NewRunnerWithDependencies(cfg *config.Config, store *queue.Store, logger *slog.Logger, hub *progress.Hub, infos *infocache.Cache, engine Engine, trimmer Trimmer, notifier notifications.Service) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runner{
		cfg:                cfg,
		store:              store,
		logger:             logging.NewComponentLogger(logger, "downloader"),
		engine:             engine,
		trimmer:            trimmer,
		hub:                hub,
		infos:              infos,
		notifier:           notifier,
		cancelPollInterval: time.Second,
	}
}

// Run executes a claimed job to a terminal state. The job must already be in
// the downloading status. Run always finalizes the record itself; the
// returned error is for the caller's log only.
func (r *Runner) Run(ctx context.Context, job *queue.Job) error {
	ctx = services.WithJobID(ctx, job.ID)
	ctx = services.WithStage(ctx, string(queue.StatusDownloading))
	logger := logging.WithContext(ctx, r.logger).With(logging.String(logging.FieldURL, job.URL))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopWatch := r.watchCancel(runCtx, job.ID, cancel, logger)
	defer stopWatch()

	err := r.execute(runCtx, job, logger)

	// Finalization must land even when the daemon context is collapsing.
	finalCtx := context.WithoutCancel(ctx)
	switch {
	case err == nil:
		r.finalizeCompleted(finalCtx, job, logger)
		return nil
	case r.cancelled(finalCtx, job.ID, err):
		r.finalizeCancelled(finalCtx, job, logger)
		return nil
	default:
		r.finalizeFailed(finalCtx, job, err, logger)
		return err
	}
}

func (r *Runner) execute(ctx context.Context, job *queue.Job, logger *slog.Logger) error {
	info, err := r.fetchInfo(ctx, job.URL)
	if err != nil {
		return err
	}
	job.Title = info.Title
	job.DurationSec = info.DurationSec
	job.SetProgress(ytdlp.StageDownloading, "Starting download", 0)
	if err := r.store.Update(ctx, job); err != nil {
		return services.Wrap(services.ErrTransient, "downloading", "persist metadata", "Failed to record job metadata", err)
	}
	r.publish(job, false)
	logger.Info("starting download",
		logging.String("title", job.Title),
		logging.String("kind", string(job.Kind)),
		logging.String("quality", job.Quality))

	workDir := filepath.Join(r.cfg.Paths.WorkDir, job.ID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, "downloading", "create work dir", "Failed to create job work directory; check work_dir permissions", err)
	}

	sampler := logging.NewProgressSampler(5)
	artifact, err := r.engine.Download(ctx, ytdlp.DownloadRequest{
		URL:         job.URL,
		Kind:        job.Kind,
		Quality:     job.Quality,
		AudioFormat: job.AudioFormat,
		DestDir:     workDir,
	}, func(update ytdlp.ProgressUpdate) {
		r.applyProgress(ctx, job, update, sampler, logger)
	})
	if err != nil {
		return err
	}

	if job.StartSec > 0 || job.EndSec > 0 {
		artifact, err = r.trim(ctx, job, artifact, logger)
		if err != nil {
			return err
		}
	}

	return r.deliver(ctx, job, artifact)
}

func (r *Runner) fetchInfo(ctx context.Context, url string) (*ytdlp.VideoInfo, error) {
	if r.infos != nil {
		if cached, found := r.infos.Lookup(url); found {
			return &cached, nil
		}
	}
	info, err := r.engine.FetchInfo(ctx, url)
	if err != nil {
		return nil, err
	}
	if r.infos != nil {
		r.infos.Store(url, *info)
	}
	return info, nil
}

// trim re-encodes the clip window as the processing stage.
func (r *Runner) trim(ctx context.Context, job *queue.Job, input string, logger *slog.Logger) (string, error) {
	ctx = services.WithStage(ctx, string(queue.StatusProcessing))
	job.Status = queue.StatusProcessing
	job.SetProgress(ytdlp.StageProcessing, "Trimming clip", 0)
	if err := r.store.Update(ctx, job); err != nil {
		return "", services.Wrap(services.ErrTransient, "processing", "persist stage", "Failed to record processing stage", err)
	}
	r.publish(job, false)
	logger.Info("starting trim",
		logging.Float64("start_sec", job.StartSec),
		logging.Float64("end_sec", job.EndSec))

	sampler := logging.NewProgressSampler(5)
	output, err := r.trimmer.Trim(ctx, ffmpeg.TrimRequest{
		Input:       input,
		StartSec:    job.StartSec,
		EndSec:      job.EndSec,
		DurationSec: job.DurationSec,
	}, func(update ffmpeg.ProgressUpdate) {
		r.applyProgress(ctx, job, ytdlp.ProgressUpdate{
			Stage:   ytdlp.StageProcessing,
			Percent: update.Percent,
			Message: update.Message,
		}, sampler, logger)
	})
	if err != nil {
		return "", err
	}
	if removeErr := os.Remove(input); removeErr != nil {
		logger.Warn("failed to remove untrimmed source", logging.Error(removeErr))
	}
	return output, nil
}

// deliver moves the finished artifact into the download directory. The stored
// name comes from the job id so concurrent jobs can never collide; the
// original title-based name is kept for presentation.
func (r *Runner) deliver(ctx context.Context, job *queue.Job, artifact string) error {
	finalName := job.ID + filepath.Ext(artifact)
	finalPath := filepath.Join(r.cfg.Paths.DownloadDir, finalName)
	if err := moveFile(artifact, finalPath); err != nil {
		return services.Wrap(services.ErrTransient, "downloading", "move artifact", "Failed to move finished file into download_dir", err)
	}
	_ = os.RemoveAll(filepath.Join(r.cfg.Paths.WorkDir, job.ID))
	job.OutputPath = finalPath
	job.Filename = filepath.Base(artifact)
	return nil
}

func (r *Runner) applyProgress(ctx context.Context, job *queue.Job, update ytdlp.ProgressUpdate, sampler *logging.ProgressSampler, logger *slog.Logger) {
	copy := *job
	if update.Stage != "" {
		copy.ProgressStage = update.Stage
	}
	if update.Stage == ytdlp.StageProcessing && copy.Status == queue.StatusDownloading {
		copy.Status = queue.StatusProcessing
	}
	percent := update.Percent
	switch {
	case percent < 0 && update.Stage == ytdlp.StageProcessing:
		// Merge and post-process lines carry no percent; the raw
		// download is done, so pin them at 100.
		percent = 100
	case percent < 0:
		percent = copy.ProgressPercent
	case percent > 100:
		percent = 100
	}
	// Progress never moves backwards within a stage; late engine lines
	// reporting a lower percent are dropped.
	if percent >= copy.ProgressPercent || update.Stage != job.ProgressStage {
		copy.ProgressPercent = percent
	}
	if update.Message != "" {
		copy.ProgressMessage = update.Message
	}
	if update.DownloadedBytes > 0 {
		copy.DownloadedBytes = update.DownloadedBytes
	}
	if update.TotalBytes > 0 {
		copy.TotalBytes = update.TotalBytes
	}
	if update.SpeedBPS > 0 {
		copy.SpeedBPS = update.SpeedBPS
	}
	if update.ETASeconds > 0 {
		copy.ETASeconds = update.ETASeconds
	}
	if err := r.store.Update(ctx, &copy); err != nil {
		logger.Warn("failed to persist progress", logging.Error(err))
		return
	}
	*job = copy
	r.publish(job, false)
	if sampler.ShouldLog(copy.ProgressPercent, copy.ProgressStage) {
		logger.Info("job progress",
			logging.String("stage", copy.ProgressStage),
			logging.Float64("percent", copy.ProgressPercent),
			logging.String("message", copy.ProgressMessage))
	}
}

// finalizeCompleted publishes the terminal event before the record turns
// terminal so a pull read that sees "completed" can never precede the push
// event that announces it.
func (r *Runner) finalizeCompleted(ctx context.Context, job *queue.Job, logger *slog.Logger) {
	now := time.Now().UTC()
	job.Status = queue.StatusCompleted
	job.CompletedAt = &now
	job.LastHeartbeat = nil
	job.SetProgress(job.ProgressStage, "Download complete", 100)
	r.publish(job, true)
	if err := r.store.Update(ctx, job); err != nil {
		logger.Error("failed to finalize completed job", logging.Error(err))
		return
	}
	logger.Info("job completed",
		logging.String("output_path", job.OutputPath),
		logging.String("filename", job.Filename))
	if r.notifier != nil {
		if err := r.notifier.NotifyDownloadCompleted(ctx, job.Title, job.Filename); err != nil {
			logger.Warn("completion notification failed", logging.Error(err))
		}
	}
}

// finalizeCancelled tears down spilled work and records the cancelled state.
// Cancellation is terminal but not an error; no error fields are set.
func (r *Runner) finalizeCancelled(ctx context.Context, job *queue.Job, logger *slog.Logger) {
	r.removeWorkDir(job.ID, logger)
	now := time.Now().UTC()
	job.Status = queue.StatusCancelled
	job.CompletedAt = &now
	job.LastHeartbeat = nil
	job.OutputPath = ""
	job.Filename = ""
	job.SetProgress(job.ProgressStage, "Cancelled", job.ProgressPercent)
	r.publish(job, true)
	if err := r.store.Update(ctx, job); err != nil {
		logger.Error("failed to finalize cancelled job", logging.Error(err))
		return
	}
	logger.Info("job cancelled")
}

func (r *Runner) finalizeFailed(ctx context.Context, job *queue.Job, cause error, logger *slog.Logger) {
	r.removeWorkDir(job.ID, logger)
	now := time.Now().UTC()
	if errors.Is(cause, context.Canceled) {
		// Not a user cancel (checked earlier), so the daemon itself is
		// shutting down mid-job.
		job.SetFailed(services.CodeInternal, queue.DaemonStopReason)
	} else {
		job.SetFailed(services.FailureCode(cause), failureMessage(cause))
	}
	job.CompletedAt = &now
	r.publish(job, true)
	if err := r.store.Update(ctx, job); err != nil {
		logger.Error("failed to finalize failed job", logging.Error(err))
		return
	}
	logging.ErrorWithContext(logger, "job failed", "job_failed",
		logging.String("error_code", job.ErrorCode),
		logging.Error(cause),
		logging.String(logging.FieldErrorHint, "inspect the error code and retry with spool queue retry"))
	if r.notifier != nil {
		if err := r.notifier.NotifyDownloadFailed(ctx, job.Title, job.ErrorMessage); err != nil {
			logger.Warn("failure notification failed", logging.Error(err))
		}
	}
}

// watchCancel polls the cancel flag and collapses the run context when set.
// Returns a stop func for the watcher goroutine.
func (r *Runner) watchCancel(ctx context.Context, jobID string, cancel context.CancelFunc, logger *slog.Logger) func() {
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(r.cancelPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				requested, err := r.store.CancelRequested(context.Background(), jobID)
				if err != nil {
					logger.Warn("cancel flag check failed", logging.Error(err))
					continue
				}
				if requested {
					logger.Info("cancellation requested, stopping engine")
					cancel()
					return
				}
			}
		}
	}()
	return func() {
		close(done)
		<-stopped
	}
}

// cancelled reports whether the run error is the result of a cancel request
// rather than a genuine failure.
func (r *Runner) cancelled(ctx context.Context, jobID string, err error) bool {
	if !errors.Is(err, context.Canceled) {
		return false
	}
	requested, checkErr := r.store.CancelRequested(ctx, jobID)
	if checkErr != nil {
		return false
	}
	return requested
}

func (r *Runner) publish(job *queue.Job, terminal bool) {
	if r.hub == nil {
		return
	}
	r.hub.Publish(progress.Event{
		JobID:           job.ID,
		Status:          string(job.Status),
		Stage:           job.ProgressStage,
		Percent:         job.ProgressPercent,
		Message:         job.ProgressMessage,
		DownloadedBytes: job.DownloadedBytes,
		TotalBytes:      job.TotalBytes,
		SpeedBPS:        job.SpeedBPS,
		ETASeconds:      job.ETASeconds,
		Terminal:        terminal,
		ErrorCode:       job.ErrorCode,
		ErrorMessage:    job.ErrorMessage,
		Filename:        job.Filename,
	})
}

func (r *Runner) removeWorkDir(jobID string, logger *slog.Logger) {
	dir := filepath.Join(r.cfg.Paths.WorkDir, jobID)
	if err := os.RemoveAll(dir); err != nil {
		logger.Warn("failed to remove work directory", logging.Error(err), logging.String("dir", dir))
	}
}

func failureMessage(err error) string {
	if err == nil {
		return "unknown error"
	}
	message := err.Error()
	// Wrap prefixes the sentinel text; strip it so API clients see the
	// operator-facing detail only.
	if idx := strings.Index(message, ": "); idx >= 0 {
		trimmed := strings.TrimSpace(message[idx+2:])
		if trimmed != "" {
			return trimmed
		}
	}
	return message
}
