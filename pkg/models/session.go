package models

import (
	"fmt"
	"time"
)

type SessionState int

const (
	Idle SessionState = iota
	Loading
	Extracting
	Emitting
	Succeeded
	Failed
)

func (s SessionState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Extracting:
		return "extracting"
	case Emitting:
		return "emitting"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s SessionState) Terminal() bool {
	return s == Succeeded || s == Failed
}

func (s SessionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *SessionState) UnmarshalText(text []byte) error {
	for st := Idle; st <= Failed; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", text)
}

// CrawlSession is the transient state of one run. Reporters get copies.
type CrawlSession struct {
	ID         string       `json:"id"`
	Query      string       `json:"query"`
	TargetURL  string       `json:"target_url"`
	Cap        int          `json:"cap"`
	State      SessionState `json:"state"`
	Attempt    int          `json:"attempt"`
	Emitted    int          `json:"emitted"`
	Error      string       `json:"error,omitempty"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
}
