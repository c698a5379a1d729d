package daemon_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"spool/internal/config"
	"spool/internal/daemon"
	"spool/internal/infocache"
	"spool/internal/progress"
	"spool/internal/queue"
	"spool/internal/services"
	"spool/internal/services/ytdlp"
	"spool/internal/testsupport"
	"spool/internal/workflow"
)

type stubProbe struct {
	mu    sync.Mutex
	calls int
	info  *ytdlp.VideoInfo
	err   error
}

func (p *stubProbe) FetchInfo(ctx context.Context, url string) (*ytdlp.VideoInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	info := *p.info
	return &info, nil
}

func (p *stubProbe) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// blockingRunner holds claimed jobs in the downloading state until released.
type blockingRunner struct {
	release chan struct{}
}

func (r *blockingRunner) Run(ctx context.Context, job *queue.Job) error {
	select {
	case <-r.release:
	case <-ctx.Done():
	}
	return nil
}

type daemonFixture struct {
	daemon *daemon.Daemon
	store  *queue.Store
	cfg    *config.Config
	hub    *progress.Hub
	probe  *stubProbe
	runner *blockingRunner
}

func newFixture(t *testing.T, mutate ...func(*config.Config)) *daemonFixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	for _, fn := range mutate {
		fn(cfg)
	}
	store := testsupport.MustOpenStore(t, cfg)
	hub := progress.NewHub(64)
	infos := infocache.New(time.Minute, 16, nil)
	runner := &blockingRunner{release: make(chan struct{})}
	wf := workflow.NewManagerWithRunner(cfg, store, nil, runner, workflow.NewJanitor(cfg, store, nil, infos))
	probe := &stubProbe{info: &ytdlp.VideoInfo{
		ID:          "vid123",
		Title:       "Sample Video",
		Uploader:    "uploader",
		DurationSec: 90,
	}}
	d, err := daemon.NewWithDependencies(cfg, store, nil, wf, hub, infos, probe, nil)
	if err != nil {
		t.Fatalf("NewWithDependencies: %v", err)
	}
	t.Cleanup(func() {
		close(runner.release)
		d.Stop()
	})
	return &daemonFixture{daemon: d, store: store, cfg: cfg, hub: hub, probe: probe, runner: runner}
}

func TestDaemonStartStop(t *testing.T) {
	fx := newFixture(t)

	ctx := context.Background()
	if err := fx.daemon.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	status := fx.daemon.Status(ctx)
	if !status.Running {
		t.Fatal("expected running daemon after Start")
	}
	if status.PID == 0 {
		t.Fatal("expected PID in status")
	}
	if status.LockFilePath == "" || status.QueueDBPath == "" {
		t.Fatalf("expected lock and db paths in status, got %+v", status)
	}

	if err := fx.daemon.Start(ctx); err == nil {
		t.Fatal("expected error starting an already running daemon")
	}

	select {
	case <-fx.daemon.Done():
		t.Fatal("done channel closed while daemon is running")
	default:
	}

	fx.daemon.Stop()
	if fx.daemon.Status(ctx).Running {
		t.Fatal("expected stopped daemon after Stop")
	}
	select {
	case <-fx.daemon.Done():
	default:
		t.Fatal("expected done channel to close after Stop")
	}
}

func TestVideoInfoServedFromCache(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	first, err := fx.daemon.VideoInfo(ctx, "https://example.com/watch?v=1")
	if err != nil {
		t.Fatalf("VideoInfo: %v", err)
	}
	if first.Title != "Sample Video" {
		t.Fatalf("unexpected title %q", first.Title)
	}
	if _, err := fx.daemon.VideoInfo(ctx, "https://example.com/watch?v=1"); err != nil {
		t.Fatalf("VideoInfo (cached): %v", err)
	}
	if got := fx.probe.callCount(); got != 1 {
		t.Fatalf("expected one probe call, got %d", got)
	}
}

func TestVideoInfoRejectsEmptyURL(t *testing.T) {
	fx := newFixture(t)
	if _, err := fx.daemon.VideoInfo(context.Background(), "   "); err == nil {
		t.Fatal("expected error for empty URL")
	} else if services.FailureCode(err) != services.CodeValidation {
		t.Fatalf("expected validation code, got %s", services.FailureCode(err))
	}
}

func TestCancelQueuedJobPublishesTerminalEvent(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	job := testsupport.NewJob(t, fx.store, "https://example.com/video")
	updated, err := fx.daemon.CancelJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("CancelJob: %v", err)
	}
	if updated.Status != queue.StatusCancelled {
		t.Fatalf("expected cancelled status, got %s", updated.Status)
	}

	events, _ := fx.hub.Tail(job.ID, 10)
	if len(events) == 0 {
		t.Fatal("expected terminal event for cancelled queued job")
	}
	last := events[len(events)-1]
	if !last.Terminal || last.Status != string(queue.StatusCancelled) {
		t.Fatalf("unexpected terminal event %+v", last)
	}

	// A second cancel is a no-op and must not publish again.
	if _, err := fx.daemon.CancelJob(ctx, job.ID); err != nil {
		t.Fatalf("repeat CancelJob: %v", err)
	}
	again, _ := fx.hub.Tail(job.ID, 10)
	if len(again) != len(events) {
		t.Fatalf("expected no extra events, got %d then %d", len(events), len(again))
	}
}

func TestCancelUnknownJob(t *testing.T) {
	fx := newFixture(t)
	job, err := fx.daemon.CancelJob(context.Background(), "no-such-id")
	if err != nil {
		t.Fatalf("CancelJob: %v", err)
	}
	if job != nil {
		t.Fatalf("expected nil job for unknown id, got %+v", job)
	}
}

func TestTestNotificationWithoutTopic(t *testing.T) {
	fx := newFixture(t)
	sent, message, err := fx.daemon.TestNotification(context.Background())
	if err != nil {
		t.Fatalf("TestNotification: %v", err)
	}
	if sent {
		t.Fatal("expected no notification without a configured topic")
	}
	if message == "" {
		t.Fatal("expected explanatory message")
	}
}
