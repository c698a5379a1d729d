package daemon_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"spool/internal/api"
	"spool/internal/config"
	"spool/internal/progress"
	"spool/internal/queue"
	"spool/internal/services"
)

func startDaemon(t *testing.T, fx *daemonFixture) string {
	t.Helper()
	if err := fx.daemon.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	addr := fx.daemon.APIAddr()
	if addr == "" {
		t.Fatal("expected bound API address")
	}
	return "http://" + addr
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	encoded, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(encoded))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func waitForStatus(t *testing.T, fx *daemonFixture, id string, want queue.Status) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := fx.store.GetByID(context.Background(), id)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if job != nil && job.Status == want {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("job %s never reached status %s", id, want)
}

func TestHealthEndpoint(t *testing.T) {
	fx := newFixture(t)
	base := startDaemon(t, fx)

	resp, err := http.Get(base + "/api/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	health := decodeBody[api.HealthResponse](t, resp)
	if health.Status != "ok" {
		t.Fatalf("unexpected health payload %+v", health)
	}
}

func TestDownloadRejectsInvalidTrimWindow(t *testing.T) {
	fx := newFixture(t)
	base := startDaemon(t, fx)

	resp := postJSON(t, base+"/api/download", api.DownloadRequest{
		URL:       "https://example.com/watch?v=1",
		StartTime: "2:00",
		EndTime:   "1:00",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	payload := decodeBody[api.ErrorResponse](t, resp)
	if payload.Code != services.CodeValidation {
		t.Fatalf("expected %s, got %q", services.CodeValidation, payload.Code)
	}

	jobs, err := fx.store.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("expected no job created on validation failure, found %d", len(jobs))
	}
}

func TestDownloadAcceptedAndStatusVisible(t *testing.T) {
	fx := newFixture(t)
	base := startDaemon(t, fx)

	resp := postJSON(t, base+"/api/download", api.DownloadRequest{URL: "https://example.com/watch?v=1"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	accepted := decodeBody[api.DownloadAccepted](t, resp)
	if accepted.DownloadID == "" {
		t.Fatal("expected download id")
	}

	statusResp, err := http.Get(base + "/api/download-status/" + accepted.DownloadID)
	if err != nil {
		t.Fatalf("GET status: %v", err)
	}
	if statusResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", statusResp.StatusCode)
	}
	job := decodeBody[api.Job](t, statusResp)
	if job.ID != accepted.DownloadID {
		t.Fatalf("status id mismatch: %q vs %q", job.ID, accepted.DownloadID)
	}
}

func TestDownloadStatusUnknownJob(t *testing.T) {
	fx := newFixture(t)
	base := startDaemon(t, fx)

	resp, err := http.Get(base + "/api/download-status/does-not-exist")
	if err != nil {
		t.Fatalf("GET status: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	payload := decodeBody[api.ErrorResponse](t, resp)
	if payload.Code != services.CodeNotFound {
		t.Fatalf("expected %s, got %q", services.CodeNotFound, payload.Code)
	}
}

func TestDownloadFileConflictWhileRunning(t *testing.T) {
	fx := newFixture(t)
	base := startDaemon(t, fx)

	resp := postJSON(t, base+"/api/download", api.DownloadRequest{URL: "https://example.com/watch?v=1"})
	accepted := decodeBody[api.DownloadAccepted](t, resp)
	waitForStatus(t, fx, accepted.DownloadID, queue.StatusDownloading)

	fileResp, err := http.Get(base + "/api/download-file/" + accepted.DownloadID)
	if err != nil {
		t.Fatalf("GET file: %v", err)
	}
	defer fileResp.Body.Close()
	if fileResp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 while download is running, got %d", fileResp.StatusCode)
	}
}

func TestCancelEndpoint(t *testing.T) {
	fx := newFixture(t)
	base := startDaemon(t, fx)

	resp := postJSON(t, base+"/api/download", api.DownloadRequest{URL: "https://example.com/watch?v=1"})
	accepted := decodeBody[api.DownloadAccepted](t, resp)

	cancelResp := postJSON(t, base+"/api/cancel/"+accepted.DownloadID, struct{}{})
	if cancelResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", cancelResp.StatusCode)
	}
	cancelResp.Body.Close()

	missing := postJSON(t, base+"/api/cancel/does-not-exist", struct{}{})
	defer missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown job, got %d", missing.StatusCode)
	}
}

func TestEventsMapFailedToError(t *testing.T) {
	fx := newFixture(t)
	base := startDaemon(t, fx)

	fx.hub.Publish(progress.Event{
		JobID:        "job-1",
		Status:       string(queue.StatusFailed),
		Terminal:     true,
		ErrorCode:    services.CodeExtraction,
		ErrorMessage: "boom",
	})

	resp, err := http.Get(base + "/api/events?job=job-1")
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	payload := decodeBody[api.EventsResponse](t, resp)
	if len(payload.Events) != 1 {
		t.Fatalf("expected one event, got %d", len(payload.Events))
	}
	evt := payload.Events[0]
	if evt.Status != "error" {
		t.Fatalf("expected external status error, got %q", evt.Status)
	}
	if payload.Next == 0 {
		t.Fatal("expected nonzero resume cursor")
	}
}

func TestEventsResumeFromCursor(t *testing.T) {
	fx := newFixture(t)
	base := startDaemon(t, fx)

	for i := 0; i < 3; i++ {
		fx.hub.Publish(progress.Event{JobID: "job-1", Status: string(queue.StatusDownloading), Percent: float64(i * 10)})
	}
	first, err := http.Get(base + "/api/events?job=job-1&limit=2")
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	firstPage := decodeBody[api.EventsResponse](t, first)
	if len(firstPage.Events) != 2 {
		t.Fatalf("expected two events, got %d", len(firstPage.Events))
	}

	cursor := firstPage.Next
	if want := firstPage.Events[len(firstPage.Events)-1].Sequence; cursor != want {
		t.Fatalf("next cursor = %d, want last delivered sequence %d", cursor, want)
	}
	second, err := http.Get(base + fmt.Sprintf("/api/events?job=job-1&since=%d", cursor))
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	secondPage := decodeBody[api.EventsResponse](t, second)
	if len(secondPage.Events) != 1 {
		t.Fatalf("expected one remaining event, got %d", len(secondPage.Events))
	}
	if secondPage.Events[0].Sequence <= cursor {
		t.Fatalf("expected events past cursor %d, got seq %d", cursor, secondPage.Events[0].Sequence)
	}
}

func TestVideoInfoBotDetectionSurfacesAuthRequired(t *testing.T) {
	fx := newFixture(t)
	fx.probe.err = services.Wrap(services.ErrAuthRequired, "video-info", "probe", "Sign in to confirm you're not a bot", nil)
	base := startDaemon(t, fx)

	resp := postJSON(t, base+"/api/video-info", api.VideoInfoRequest{URL: "https://example.com/watch?v=1"})
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
	payload := decodeBody[api.ErrorResponse](t, resp)
	if payload.Code != services.CodeAuthRequired {
		t.Fatalf("expected %s, got %q", services.CodeAuthRequired, payload.Code)
	}
}

func TestBearerTokenAuth(t *testing.T) {
	fx := newFixture(t, func(cfg *config.Config) {
		cfg.Paths.APIToken = "sekrit"
	})
	base := startDaemon(t, fx)

	resp, err := http.Get(base + "/api/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	req, err := http.NewRequest(http.MethodGet, base+"/api/health", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer sekrit")
	authed, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET health with token: %v", err)
	}
	authed.Body.Close()
	if authed.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", authed.StatusCode)
	}
}
