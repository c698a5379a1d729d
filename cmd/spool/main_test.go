package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"spool/internal/daemon"
	"spool/internal/infocache"
	"spool/internal/ipc"
	"spool/internal/progress"
	"spool/internal/queue"
	"spool/internal/testsupport"
	"spool/internal/workflow"
)

type idleRunner struct{}

func (idleRunner) Run(ctx context.Context, job *queue.Job) error {
	<-ctx.Done()
	return nil
}

// cliFixture runs an IPC-backed daemon and returns the flags needed to point
// CLI commands at it.
type cliFixture struct {
	configPath string
	socketPath string
	store      *queue.Store
}

func newCLIFixture(t *testing.T) *cliFixture {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = ""
	store := testsupport.MustOpenStore(t, cfg)

	configPath := filepath.Join(testsupport.BaseDir(cfg), "spool.toml")
	content := fmt.Sprintf(
		"[paths]\ndownload_dir = %q\nwork_dir = %q\nlog_dir = %q\napi_bind = \"127.0.0.1:0\"\n",
		cfg.Paths.DownloadDir, cfg.Paths.WorkDir, cfg.Paths.LogDir,
	)
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	infos := infocache.New(time.Minute, 8, nil)
	wf := workflow.NewManagerWithRunner(cfg, store, nil, idleRunner{}, workflow.NewJanitor(cfg, store, nil, infos))
	d, err := daemon.NewWithDependencies(cfg, store, nil, wf, progress.NewHub(16), infos, nil, nil)
	if err != nil {
		t.Fatalf("daemon.NewWithDependencies: %v", err)
	}
	t.Cleanup(d.Stop)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	socket := filepath.Join(cfg.Paths.LogDir, "spoold.sock")
	server, err := ipc.NewServer(ctx, socket, d, nil)
	if err != nil {
		t.Fatalf("ipc.NewServer: %v", err)
	}
	server.Serve()
	t.Cleanup(server.Close)

	return &cliFixture{configPath: configPath, socketPath: socket, store: store}
}

func (f *cliFixture) run(t *testing.T, args ...string) string {
	t.Helper()
	cmd := newRootCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(append([]string{"-c", f.configPath, "--socket", f.socketPath}, args...))
	if err := cmd.Execute(); err != nil {
		t.Fatalf("command %v failed: %v\noutput: %s", args, err, buf.String())
	}
	return buf.String()
}

func TestStatusCommand(t *testing.T) {
	fx := newCLIFixture(t)

	out := fx.run(t, "status")
	if !strings.Contains(out, "running: no") {
		t.Fatalf("expected stopped daemon in status output, got:\n%s", out)
	}
	if !strings.Contains(out, "Queue is empty") {
		t.Fatalf("expected empty queue note, got:\n%s", out)
	}
}

func TestQueueListAndCancel(t *testing.T) {
	fx := newCLIFixture(t)
	job := testsupport.NewJob(t, fx.store, "https://example.com/watch?v=1")

	out := fx.run(t, "queue", "list")
	if !strings.Contains(out, shortID(job.ID)) {
		t.Fatalf("expected job id in list output, got:\n%s", out)
	}
	if !strings.Contains(out, "Queued") {
		t.Fatalf("expected humanized status, got:\n%s", out)
	}

	out = fx.run(t, "queue", "cancel", shortID(job.ID))
	if !strings.Contains(out, "cancelled") {
		t.Fatalf("expected cancellation confirmation, got:\n%s", out)
	}

	refreshed, err := fx.store.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if refreshed.Status != queue.StatusCancelled {
		t.Fatalf("expected cancelled job, got %s", refreshed.Status)
	}
}

func TestQueueShowCommand(t *testing.T) {
	fx := newCLIFixture(t)
	job := testsupport.NewJob(t, fx.store, "https://example.com/watch?v=1")

	out := fx.run(t, "queue", "show", job.ID)
	if !strings.Contains(out, job.ID) || !strings.Contains(out, job.URL) {
		t.Fatalf("expected job details, got:\n%s", out)
	}
}

func TestQueueClearCommand(t *testing.T) {
	fx := newCLIFixture(t)
	job := testsupport.NewJob(t, fx.store, "https://example.com/watch?v=1")
	fx.run(t, "queue", "cancel", job.ID)

	out := fx.run(t, "queue", "clear")
	if !strings.Contains(out, "Cleared 1 jobs") {
		t.Fatalf("expected one job cleared, got:\n%s", out)
	}
}

func TestVersionCommand(t *testing.T) {
	cmd := newRootCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"version"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("version command: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "spool ") {
		t.Fatalf("unexpected version output %q", buf.String())
	}
}
