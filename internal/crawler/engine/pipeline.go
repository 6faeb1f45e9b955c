package engine

import (
	"context"
	"time"

	"marketplace-scraper/internal"
	"marketplace-scraper/internal/crawler"
	"marketplace-scraper/pkg/models"
)

// Sink persists one record at a time.
type Sink interface {
	Write(ctx context.Context, rec models.OutputRecord) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, rec models.OutputRecord) error

func (f SinkFunc) Write(ctx context.Context, rec models.OutputRecord) error {
	return f(ctx, rec)
}

// Pipeline stamps candidates and hands them to a Sink in document order.
type Pipeline struct {
	// Now defaults to time.Now.
	Now func() time.Time
}

// Emit writes at most cfg.ResultCap records, skipping URLs already written in
// this call. The sink is never asked for a record past the cap. On a sink
// failure the records written so far stay written and their count is returned
// with the error.
func (p *Pipeline) Emit(ctx context.Context, candidates []models.CandidateRecord, cfg models.SearchConfig, sink Sink) (int, error) {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}

	seen := internal.NewSeenSet()
	emitted := 0
	for _, c := range candidates {
		if emitted >= cfg.ResultCap {
			break
		}
		if err := ctx.Err(); err != nil {
			return emitted, err
		}
		if !seen.Add(c.URL) {
			continue
		}

		rec := models.OutputRecord{
			CandidateRecord: c,
			SearchQuery:     cfg.Query,
			Condition:       cfg.Condition,
			ScrapedAt:       now().UTC(),
		}
		if err := sink.Write(ctx, rec); err != nil {
			return emitted, &crawler.SinkError{URL: c.URL, Err: err}
		}
		emitted++
	}
	return emitted, nil
}
