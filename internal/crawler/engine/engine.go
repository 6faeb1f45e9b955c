package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"marketplace-scraper/internal/crawler"
	"marketplace-scraper/pkg/models"
)

// Loader renders a target and returns its expanded document.
type Loader interface {
	Load(ctx context.Context, targetURL string) (crawler.DocumentView, error)
}

// Gate decides whether and when a target may be loaded.
type Gate interface {
	IsAllowed(ctx context.Context, link string) bool
	Wait(ctx context.Context, link string) error
}

type openGate struct{}

func (openGate) IsAllowed(context.Context, string) bool { return true }
func (openGate) Wait(ctx context.Context, _ string) error { return ctx.Err() }

type Config struct {
	// MaxAttempts bounds page loads per session. Values below 1 mean 1.
	MaxAttempts int
	// Now defaults to time.Now.
	Now func() time.Time
}

// Engine runs one search session at a time:
// Idle -> Loading -> Extracting -> Emitting -> Succeeded | Failed.
type Engine struct {
	config   Config
	loader   Loader
	parser   *crawler.Parser
	pipeline *Pipeline
	sink     Sink
	gate     Gate
	reporter Reporter
}

// NewEngine wires the stages together. gate and reporter may be nil.
func NewEngine(cfg Config, loader Loader, parser *crawler.Parser, sink Sink, gate Gate, reporter Reporter) *Engine {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if parser == nil {
		parser = crawler.NewParser()
	}
	if gate == nil {
		gate = openGate{}
	}
	if reporter == nil {
		reporter = NopReporter{}
	}
	return &Engine{
		config:   cfg,
		loader:   loader,
		parser:   parser,
		pipeline: &Pipeline{Now: cfg.Now},
		sink:     sink,
		gate:     gate,
		reporter: reporter,
	}
}

// Run executes one session. The returned session is always terminal; the
// error is non-nil exactly when it ended in Failed.
func (e *Engine) Run(ctx context.Context, search models.SearchConfig) (models.CrawlSession, error) {
	session := models.CrawlSession{
		ID:        uuid.NewString(),
		Query:     search.Query,
		TargetURL: crawler.BuildSearchURL(search),
		Cap:       search.ResultCap,
		State:     models.Idle,
		StartedAt: e.config.Now(),
	}
	e.reporter.StateChanged(ctx, session)

	if !e.gate.IsAllowed(ctx, session.TargetURL) {
		return e.fail(ctx, &session, fmt.Errorf("%s: %w", session.TargetURL, crawler.ErrDisallowed))
	}

	view, err := e.load(ctx, &session)
	if err != nil {
		return e.fail(ctx, &session, err)
	}

	e.transition(ctx, &session, models.Extracting)
	parser := *e.parser
	parser.OnItemError = func(itemErr *crawler.ItemExtractionError) {
		if e.parser.OnItemError != nil {
			e.parser.OnItemError(itemErr)
		}
		e.reporter.ItemSkipped(ctx, session, itemErr)
	}
	candidates := parser.Extract(view)

	e.transition(ctx, &session, models.Emitting)
	sink := SinkFunc(func(ctx context.Context, rec models.OutputRecord) error {
		if err := e.sink.Write(ctx, rec); err != nil {
			return err
		}
		session.Emitted++
		e.reporter.RecordEmitted(ctx, session, rec)
		return nil
	})
	emitted, err := e.pipeline.Emit(ctx, candidates, search, sink)
	session.Emitted = emitted
	if err != nil {
		return e.fail(ctx, &session, err)
	}

	e.finish(ctx, &session, models.Succeeded, nil)
	return session, nil
}

// load makes up to MaxAttempts fresh page loads. Only navigation and render
// failures are retried.
func (e *Engine) load(ctx context.Context, session *models.CrawlSession) (crawler.DocumentView, error) {
	attempts := e.config.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		session.Attempt = attempt
		if err := e.gate.Wait(ctx, session.TargetURL); err != nil {
			return nil, err
		}
		e.transition(ctx, session, models.Loading)

		view, err := e.loader.Load(ctx, session.TargetURL)
		if err == nil {
			return view, nil
		}
		lastErr = err
		e.reporter.AttemptFailed(ctx, *session, err)
		if !crawler.Retryable(err) {
			break
		}
	}
	return nil, lastErr
}

func (e *Engine) transition(ctx context.Context, session *models.CrawlSession, state models.SessionState) {
	session.State = state
	e.reporter.StateChanged(ctx, *session)
}

func (e *Engine) fail(ctx context.Context, session *models.CrawlSession, err error) (models.CrawlSession, error) {
	e.finish(ctx, session, models.Failed, err)
	return *session, err
}

func (e *Engine) finish(ctx context.Context, session *models.CrawlSession, state models.SessionState, err error) {
	if err != nil {
		session.Error = err.Error()
	}
	session.FinishedAt = e.config.Now()
	e.transition(ctx, session, state)
	e.reporter.Finished(ctx, *session, err)
}
