package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"marketplace-scraper/internal/crawler"
	"marketplace-scraper/pkg/models"
)

func candidates(n int) []models.CandidateRecord {
	out := make([]models.CandidateRecord, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, models.CandidateRecord{
			Title: fmt.Sprintf("Item %d", i),
			Price: fmt.Sprintf("$%d", i*10),
			URL:   fmt.Sprintf("https://www.facebook.com/marketplace/item/%d/", i),
		})
	}
	return out
}

func TestPipeline_Emit(t *testing.T) {
	tests := []struct {
		name       string
		candidates int
		cap        int
		expected   int
	}{
		{"more than cap", 10, 3, 3},
		{"fewer than cap", 2, 50, 2},
		{"exactly cap", 4, 4, 4},
		{"empty input", 0, 5, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &memorySink{}
			p := &Pipeline{}
			cfg := bikeSearch(tt.cap)

			n, err := p.Emit(context.Background(), candidates(tt.candidates), cfg, sink)
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if n != tt.expected || len(sink.records) != tt.expected {
				t.Fatalf("Expected %d records, got n=%d sink=%d", tt.expected, n, len(sink.records))
			}
			for i, rec := range sink.records {
				if rec.Title != fmt.Sprintf("Item %d", i+1) {
					t.Errorf("Record %d out of order: %q", i, rec.Title)
				}
			}
		})
	}
}

func TestPipeline_EmitStopsCallingSinkAtCap(t *testing.T) {
	calls := 0
	sink := SinkFunc(func(context.Context, models.OutputRecord) error {
		calls++
		return nil
	})

	if _, err := (&Pipeline{}).Emit(context.Background(), candidates(100), bikeSearch(5), sink); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if calls != 5 {
		t.Errorf("Sink should be called exactly 5 times, got %d", calls)
	}
}

func TestPipeline_EmitSkipsDuplicateURLs(t *testing.T) {
	in := candidates(3)
	in = append(in[:2], in[0], in[2])
	sink := &memorySink{}

	n, err := (&Pipeline{}).Emit(context.Background(), in, bikeSearch(3), sink)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if n != 3 {
		t.Errorf("Duplicates should not count toward the cap, got %d", n)
	}
	for i, rec := range sink.records {
		if rec.Title != fmt.Sprintf("Item %d", i+1) {
			t.Errorf("Record %d mismatch: %q", i, rec.Title)
		}
	}
}

func TestPipeline_EmitStampsRecords(t *testing.T) {
	local := time.FixedZone("UTC-5", -5*60*60)
	fixed := time.Date(2024, 3, 1, 9, 30, 0, 0, local)
	p := &Pipeline{Now: func() time.Time { return fixed }}
	cfg := bikeSearch(1)
	cfg.Condition = models.ConditionUsed
	sink := &memorySink{}

	if _, err := p.Emit(context.Background(), candidates(1), cfg, sink); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	rec := sink.records[0]
	if rec.SearchQuery != "bike" || rec.Condition != models.ConditionUsed {
		t.Errorf("Search context mismatch: %+v", rec)
	}
	if !rec.ScrapedAt.Equal(fixed) || rec.ScrapedAt.Location() != time.UTC {
		t.Errorf("ScrapedAt should be the clock time in UTC, got %v", rec.ScrapedAt)
	}
	if rec.CandidateRecord != candidates(1)[0] {
		t.Errorf("Candidate fields must pass through unchanged: %+v", rec.CandidateRecord)
	}
}

func TestPipeline_EmitIsRepeatable(t *testing.T) {
	in := candidates(4)
	first, second := &memorySink{}, &memorySink{}

	if _, err := (&Pipeline{}).Emit(context.Background(), in, bikeSearch(3), first); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if _, err := (&Pipeline{}).Emit(context.Background(), in, bikeSearch(3), second); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if len(first.records) != 3 || len(second.records) != 3 {
		t.Fatalf("Expected 3 records per run, got %d and %d", len(first.records), len(second.records))
	}
	for i := range first.records {
		a, b := first.records[i], second.records[i]
		a.ScrapedAt, b.ScrapedAt = time.Time{}, time.Time{}
		if a != b {
			t.Errorf("Run %d differs beyond ScrapedAt.\nFirst: %+v\nSecond: %+v", i, a, b)
		}
	}
}

func TestPipeline_EmitSinkFailure(t *testing.T) {
	sink := &memorySink{failAt: 2}

	n, err := (&Pipeline{}).Emit(context.Background(), candidates(5), bikeSearch(5), sink)

	var sinkErr *crawler.SinkError
	if !errors.As(err, &sinkErr) {
		t.Fatalf("Expected SinkError, got %v", err)
	}
	if n != 1 || len(sink.records) != 1 {
		t.Errorf("Expected the one record before the failure to stay written, got n=%d", n)
	}
	if sinkErr.URL != "https://www.facebook.com/marketplace/item/2/" {
		t.Errorf("SinkError should name the failing record, got %q", sinkErr.URL)
	}
}
