package storage

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"marketplace-scraper/pkg/models"
)

func sampleRecord(id string) models.OutputRecord {
	return models.OutputRecord{
		CandidateRecord: models.CandidateRecord{
			Title:    "Road bike " + id,
			Price:    "$1,200",
			Location: "Austin, TX",
			URL:      "https://www.facebook.com/marketplace/item/" + id + "/",
		},
		SearchQuery: "bike",
		Condition:   models.ConditionUsed,
		ScrapedAt:   time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestJSONLSink_Write(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "listings.jsonl")
	sink, err := NewJSONLSink(path)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	for _, id := range []string{"1", "2"} {
		if err := sink.Write(context.Background(), sampleRecord(id)); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
	}

	// Records are on disk before Close.
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	defer f.Close()

	var lines []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var line map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			t.Fatalf("Line is not JSON: %v", err)
		}
		lines = append(lines, line)
	}
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines, got %d", len(lines))
	}

	first := lines[0]
	for key, want := range map[string]string{
		"title":       "Road bike 1",
		"price":       "$1,200",
		"imageUrl":    "",
		"searchQuery": "bike",
		"condition":   "used",
		"scrapedAt":   "2024-05-01T10:00:00Z",
	} {
		if got := first[key]; got != want {
			t.Errorf("Field %q mismatch.\nExpected: %q\nGot: %v", key, want, got)
		}
	}

	if err := sink.Close(); err != nil {
		t.Errorf("Expected no error on close, got %v", err)
	}
}

func TestCSVSink_Write(t *testing.T) {
	path := filepath.Join(t.TempDir(), "listings.csv")
	sink, err := NewCSVSink(path)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if err := sink.Write(context.Background(), sampleRecord("7")); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Expected no error on close, got %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("Expected valid CSV, got %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Expected header and one row, got %d rows", len(rows))
	}
	if rows[0][0] != "title" || rows[0][7] != "scrapedAt" {
		t.Errorf("Unexpected header: %v", rows[0])
	}
	expected := []string{"Road bike 7", "$1,200", "Austin, TX", "https://www.facebook.com/marketplace/item/7/", "", "bike", "used", "2024-05-01T10:00:00Z"}
	for i := range expected {
		if rows[1][i] != expected[i] {
			t.Errorf("Column %d mismatch.\nExpected: %q\nGot: %q", i, expected[i], rows[1][i])
		}
	}
}

func TestNullString(t *testing.T) {
	if v := nullString(""); v.Valid {
		t.Error("Empty field should be stored as NULL")
	}
	if v := nullString("$5"); !v.Valid || v.String != "$5" {
		t.Errorf("Unexpected value: %+v", v)
	}
}
