package storage

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"marketplace-scraper/pkg/models"
)

var csvHeader = []string{"title", "price", "location", "url", "imageUrl", "searchQuery", "condition", "scrapedAt"}

// JSONLSink writes one JSON object per line and flushes after every record,
// so a crash leaves every written record on disk.
type JSONLSink struct {
	file    *os.File
	writer  *bufio.Writer
	encoder *json.Encoder
	mu      sync.Mutex
}

func NewJSONLSink(filename string) (*JSONLSink, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create json file: %w", err)
	}

	buffer := bufio.NewWriter(f)
	return &JSONLSink{
		file:    f,
		writer:  buffer,
		encoder: json.NewEncoder(buffer),
	}, nil
}

func (s *JSONLSink) Write(_ context.Context, rec models.OutputRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.encoder.Encode(rec); err != nil {
		return fmt.Errorf("encode json record: %w", err)
	}
	if err := s.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return nil
}

func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return s.file.Close()
}

// CSVSink writes a header row followed by one row per record.
type CSVSink struct {
	file   *os.File
	writer *csv.Writer
	mu     sync.Mutex
}

func NewCSVSink(filename string) (*CSVSink, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create csv file: %w", err)
	}

	writer := csv.NewWriter(f)
	if err := writer.Write(csvHeader); err != nil {
		f.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("flush csv header: %w", err)
	}

	return &CSVSink{file: f, writer: writer}, nil
}

func (s *CSVSink) Write(_ context.Context, rec models.OutputRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := []string{
		rec.Title,
		rec.Price,
		rec.Location,
		rec.URL,
		rec.ImageURL,
		rec.SearchQuery,
		string(rec.Condition),
		rec.ScrapedAt.Format(time.RFC3339),
	}
	if err := s.writer.Write(row); err != nil {
		return fmt.Errorf("write csv record: %w", err)
	}
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		return fmt.Errorf("flush csv record: %w", err)
	}
	return nil
}

func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return s.file.Close()
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
