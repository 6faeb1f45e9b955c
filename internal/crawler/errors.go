package crawler

import (
	"context"
	"errors"
	"fmt"
)

// ErrDisallowed is returned when robots.txt forbids the search path.
var ErrDisallowed = errors.New("disallowed by robots.txt")

// NavigationError wraps network, DNS or protocol failures reaching the target,
// and browser failures while driving the loaded page.
type NavigationError struct {
	URL string
	Err error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigate %s: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error {
	return e.Err
}

// RenderTimeoutError means the feed container never showed up.
type RenderTimeoutError struct {
	URL      string
	Selector string
	Err      error
}

func (e *RenderTimeoutError) Error() string {
	return fmt.Sprintf("render timeout on %s waiting for %q: %v", e.URL, e.Selector, e.Err)
}

func (e *RenderTimeoutError) Unwrap() error {
	return e.Err
}

// ItemExtractionError is raised for a single listing slot. It never leaves
// Parser.Extract; callers only see it through the OnItemError hook.
type ItemExtractionError struct {
	Index int
	Err   error
}

func (e *ItemExtractionError) Error() string {
	return fmt.Sprintf("extract item %d: %v", e.Index, e.Err)
}

func (e *ItemExtractionError) Unwrap() error {
	return e.Err
}

// SinkError marks a failed write to the record sink.
type SinkError struct {
	URL string
	Err error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("sink write %s: %v", e.URL, e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}

// ErrorKind returns a short label for logs and metrics.
func ErrorKind(err error) string {
	if err == nil {
		return "none"
	}
	var render *RenderTimeoutError
	if errors.As(err, &render) {
		return "render_timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	if errors.Is(err, ErrDisallowed) {
		return "disallowed"
	}
	var nav *NavigationError
	if errors.As(err, &nav) {
		return "navigation"
	}
	var item *ItemExtractionError
	if errors.As(err, &item) {
		return "item"
	}
	var sink *SinkError
	if errors.As(err, &sink) {
		return "sink"
	}
	return "other"
}

// Retryable reports whether a whole-session retry may help.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var nav *NavigationError
	var render *RenderTimeoutError
	return errors.As(err, &nav) || errors.As(err, &render)
}
