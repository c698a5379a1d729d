package ipc_test

import (
	"context"
	"path/filepath"
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

func TestIPCServerClient(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = ""
	store := testsupport.MustOpenStore(t, cfg)
	hub := progress.NewHub(16)
	infos := infocache.New(time.Minute, 8, nil)
	wf := workflow.NewManagerWithRunner(cfg, store, nil, idleRunner{}, workflow.NewJanitor(cfg, store, nil, infos))
	d, err := daemon.NewWithDependencies(cfg, store, nil, wf, hub, infos, nil, nil)
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

	client, err := ipc.Dial(socket)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Running {
		t.Fatal("daemon should not be running before Start")
	}
	if status.QueueDBPath == "" || status.LockPath == "" {
		t.Fatalf("expected populated paths, got %+v", status)
	}

	job := testsupport.NewJob(t, store, "https://example.com/watch?v=1")

	list, err := client.QueueList(nil)
	if err != nil {
		t.Fatalf("QueueList: %v", err)
	}
	if len(list.Jobs) != 1 || list.Jobs[0].ID != job.ID {
		t.Fatalf("unexpected queue list %+v", list.Jobs)
	}

	described, err := client.QueueDescribe(job.ID)
	if err != nil {
		t.Fatalf("QueueDescribe: %v", err)
	}
	if described.Job.URL != job.URL {
		t.Fatalf("describe url mismatch: %q", described.Job.URL)
	}

	cancelled, err := client.QueueCancel(job.ID)
	if err != nil {
		t.Fatalf("QueueCancel: %v", err)
	}
	if cancelled.Job.Status != "cancelled" {
		t.Fatalf("expected cancelled status, got %q", cancelled.Job.Status)
	}

	cleared, err := client.QueueClear(false)
	if err != nil {
		t.Fatalf("QueueClear: %v", err)
	}
	if cleared.Removed != 1 {
		t.Fatalf("expected one terminal job removed, got %d", cleared.Removed)
	}

	notify, err := client.TestNotification()
	if err != nil {
		t.Fatalf("TestNotification: %v", err)
	}
	if notify.Sent {
		t.Fatal("expected no notification without a configured topic")
	}

	if _, err := client.QueueDescribe("missing"); err == nil {
		t.Fatal("expected error describing unknown job")
	}
}

func TestQueueRetryOverIPC(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = ""
	store := testsupport.MustOpenStore(t, cfg)
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

	job := testsupport.NewJob(t, store, "https://example.com/watch?v=1")
	job.SetFailed("EXTRACTION_FAILED", "engine exploded")
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("Update: %v", err)
	}

	client, err := ipc.Dial(socket)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	retried, err := client.QueueRetry([]string{job.ID})
	if err != nil {
		t.Fatalf("QueueRetry: %v", err)
	}
	if retried.Updated != 1 {
		t.Fatalf("expected one job requeued, got %d", retried.Updated)
	}
	refreshed, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if refreshed.Status != queue.StatusQueued {
		t.Fatalf("expected queued after retry, got %s", refreshed.Status)
	}
	if refreshed.ErrorCode != "" || refreshed.ErrorMessage != "" {
		t.Fatalf("expected error fields cleared, got %+v", refreshed)
	}
}
