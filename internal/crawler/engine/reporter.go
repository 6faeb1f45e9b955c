package engine

import (
	"context"
	"log/slog"
	"time"

	"marketplace-scraper/internal/crawler"
	"marketplace-scraper/pkg/models"
)

// Reporter observes a session. Implementations must not block for long; they
// run inline with the session.
type Reporter interface {
	StateChanged(ctx context.Context, session models.CrawlSession)
	AttemptFailed(ctx context.Context, session models.CrawlSession, err error)
	RecordEmitted(ctx context.Context, session models.CrawlSession, rec models.OutputRecord)
	ItemSkipped(ctx context.Context, session models.CrawlSession, err error)
	// Finished is called once with the terminal session; err is nil on success.
	Finished(ctx context.Context, session models.CrawlSession, err error)
}

type NopReporter struct{}

func (NopReporter) StateChanged(context.Context, models.CrawlSession) {}
func (NopReporter) AttemptFailed(context.Context, models.CrawlSession, error) {}
func (NopReporter) RecordEmitted(context.Context, models.CrawlSession, models.OutputRecord) {}
func (NopReporter) ItemSkipped(context.Context, models.CrawlSession, error) {}
func (NopReporter) Finished(context.Context, models.CrawlSession, error) {}

// MultiReporter fans every event out to each reporter in order.
type MultiReporter []Reporter

func (m MultiReporter) StateChanged(ctx context.Context, session models.CrawlSession) {
	for _, r := range m {
		r.StateChanged(ctx, session)
	}
}

func (m MultiReporter) AttemptFailed(ctx context.Context, session models.CrawlSession, err error) {
	for _, r := range m {
		r.AttemptFailed(ctx, session, err)
	}
}

func (m MultiReporter) RecordEmitted(ctx context.Context, session models.CrawlSession, rec models.OutputRecord) {
	for _, r := range m {
		r.RecordEmitted(ctx, session, rec)
	}
}

func (m MultiReporter) ItemSkipped(ctx context.Context, session models.CrawlSession, err error) {
	for _, r := range m {
		r.ItemSkipped(ctx, session, err)
	}
}

func (m MultiReporter) Finished(ctx context.Context, session models.CrawlSession, err error) {
	for _, r := range m {
		r.Finished(ctx, session, err)
	}
}

// LogReporter writes session progress to a slog logger.
type LogReporter struct {
	logger *slog.Logger
}

func NewLogReporter(logger *slog.Logger) *LogReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogReporter{logger: logger}
}

func (r *LogReporter) StateChanged(ctx context.Context, session models.CrawlSession) {
	switch session.State {
	case models.Idle:
		r.logger.InfoContext(ctx, "starting search",
			"session", session.ID,
			"query", session.Query,
			"cap", session.Cap,
			"url", session.TargetURL,
		)
	case models.Loading:
		r.logger.InfoContext(ctx, "loading search page", "session", session.ID, "attempt", session.Attempt)
	default:
		r.logger.DebugContext(ctx, "session state", "session", session.ID, "state", session.State.String())
	}
}

func (r *LogReporter) AttemptFailed(ctx context.Context, session models.CrawlSession, err error) {
	r.logger.WarnContext(ctx, "load attempt failed",
		"session", session.ID,
		"attempt", session.Attempt,
		"kind", crawler.ErrorKind(err),
		"error", err,
	)
}

func (r *LogReporter) RecordEmitted(ctx context.Context, session models.CrawlSession, rec models.OutputRecord) {
	r.logger.DebugContext(ctx, "saved listing",
		"session", session.ID,
		"n", session.Emitted,
		"cap", session.Cap,
		"title", rec.Title,
		"url", rec.URL,
	)
}

func (r *LogReporter) ItemSkipped(ctx context.Context, session models.CrawlSession, err error) {
	r.logger.DebugContext(ctx, "skipped listing", "session", session.ID, "error", err)
}

func (r *LogReporter) Finished(ctx context.Context, session models.CrawlSession, err error) {
	attrs := []any{
		"session", session.ID,
		"state", session.State.String(),
		"emitted", session.Emitted,
		"attempts", session.Attempt,
		"duration", session.FinishedAt.Sub(session.StartedAt).Round(time.Millisecond),
	}
	if err != nil {
		attrs = append(attrs, "kind", crawler.ErrorKind(err), "error", err)
		r.logger.ErrorContext(ctx, "search failed", attrs...)
		return
	}
	r.logger.InfoContext(ctx, "search finished", attrs...)
}
