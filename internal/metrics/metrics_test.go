package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"marketplace-scraper/internal/crawler"
	"marketplace-scraper/pkg/models"
)

func scrape(t *testing.T, m *Metrics, path string) (int, string) {
	t.Helper()
	srv := httptest.NewServer(m.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(body)
}

func TestMetrics_ReportSession(t *testing.T) {
	m := New()
	ctx := context.Background()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	session := models.CrawlSession{ID: "s1", State: models.Loading, StartedAt: start}

	m.StateChanged(ctx, session)
	m.AttemptFailed(ctx, session, &crawler.NavigationError{URL: "u", Err: errors.New("reset")})
	m.StateChanged(ctx, session)
	m.ItemSkipped(ctx, session, errors.New("bad slot"))
	m.RecordEmitted(ctx, session, models.OutputRecord{})
	m.RecordEmitted(ctx, session, models.OutputRecord{})

	session.State = models.Succeeded
	session.FinishedAt = start.Add(12 * time.Second)
	m.Finished(ctx, session, nil)

	status, body := scrape(t, m, "/metrics")
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	for _, line := range []string{
		`marketplace_load_attempts_total 2`,
		`marketplace_failures_total{kind="navigation"} 1`,
		`marketplace_records_emitted_total 2`,
		`marketplace_items_skipped_total 1`,
		`marketplace_sessions_total{state="succeeded"} 1`,
		`marketplace_session_duration_seconds_count 1`,
	} {
		if !strings.Contains(body, line) {
			t.Errorf("Metrics output missing %q", line)
		}
	}
}

func TestMetrics_FinishedCountsSinkFailure(t *testing.T) {
	m := New()
	session := models.CrawlSession{State: models.Failed}
	m.Finished(context.Background(), session, &crawler.SinkError{URL: "u", Err: errors.New("disk full")})

	_, body := scrape(t, m, "/metrics")
	if !strings.Contains(body, `marketplace_failures_total{kind="sink"} 1`) {
		t.Errorf("Expected a sink failure to be counted, got:\n%s", body)
	}
	if !strings.Contains(body, `marketplace_sessions_total{state="failed"} 1`) {
		t.Errorf("Expected the failed session to be counted")
	}
}

func TestMetrics_CanceledLoadCountedOnce(t *testing.T) {
	m := New()
	ctx := context.Background()
	session := models.CrawlSession{ID: "s2", State: models.Loading, Attempt: 1}
	err := &crawler.NavigationError{URL: "u", Err: context.Canceled}

	m.AttemptFailed(ctx, session, err)
	session.State = models.Failed
	m.Finished(ctx, session, err)

	_, body := scrape(t, m, "/metrics")
	if !strings.Contains(body, `marketplace_failures_total{kind="canceled"} 1`) {
		t.Errorf("Expected the canceled load to be counted once, got:\n%s", body)
	}
}

func TestMetrics_CanceledBeforeLoadCounted(t *testing.T) {
	m := New()
	session := models.CrawlSession{ID: "s3", State: models.Failed, Attempt: 1}
	m.Finished(context.Background(), session, context.Canceled)

	_, body := scrape(t, m, "/metrics")
	if !strings.Contains(body, `marketplace_failures_total{kind="canceled"} 1`) {
		t.Errorf("Expected a cancellation outside a load attempt to be counted, got:\n%s", body)
	}
}

func TestMetrics_Healthz(t *testing.T) {
	status, body := scrape(t, New(), "/healthz")
	if status != http.StatusOK || body != "ok" {
		t.Errorf("Unexpected health response: %d %q", status, body)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.StateChanged(context.Background(), models.CrawlSession{State: models.Loading})
	m.Finished(context.Background(), models.CrawlSession{}, errors.New("x"))
}
