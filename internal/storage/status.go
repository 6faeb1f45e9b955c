package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"marketplace-scraper/pkg/models"
)

//go:generate mockgen -destination=../../mocks/status_store.go -package=mocks marketplace-scraper/internal/storage StatusStore

// StatusStore persists session status by session ID.
type StatusStore interface {
	SetStatus(ctx context.Context, session models.CrawlSession) error
	GetStatus(ctx context.Context, sessionID string) (models.CrawlSession, bool, error)
}

// RedisStatusStore keeps session status in Redis as JSON under prefix+ID.
type RedisStatusStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStatusStore(addr, prefix string, ttl time.Duration) *RedisStatusStore {
	return &RedisStatusStore{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		prefix: prefix,
		ttl:    ttl,
	}
}

func (s *RedisStatusStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStatusStore) Close() error {
	return s.client.Close()
}

func (s *RedisStatusStore) SetStatus(ctx context.Context, session models.CrawlSession) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.prefix+session.ID, payload, s.ttl).Err()
}

func (s *RedisStatusStore) GetStatus(ctx context.Context, sessionID string) (models.CrawlSession, bool, error) {
	val, err := s.client.Get(ctx, s.prefix+sessionID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.CrawlSession{}, false, nil
		}
		return models.CrawlSession{}, false, err
	}

	var session models.CrawlSession
	if err := json.Unmarshal([]byte(val), &session); err != nil {
		return models.CrawlSession{}, false, err
	}
	return session, true, nil
}

// StatusReporter mirrors session progress into a StatusStore. Writes outlive
// the session context so a canceled run still records its final state.
type StatusReporter struct {
	store   StatusStore
	onError func(error)
}

// NewStatusReporter reports store failures to onError, which may be nil.
func NewStatusReporter(store StatusStore, onError func(error)) *StatusReporter {
	return &StatusReporter{store: store, onError: onError}
}

func (r *StatusReporter) StateChanged(ctx context.Context, session models.CrawlSession) {
	r.set(ctx, session)
}

func (r *StatusReporter) AttemptFailed(ctx context.Context, session models.CrawlSession, err error) {
	session.Error = err.Error()
	r.set(ctx, session)
}

func (r *StatusReporter) RecordEmitted(ctx context.Context, session models.CrawlSession, _ models.OutputRecord) {
	r.set(ctx, session)
}

func (r *StatusReporter) ItemSkipped(context.Context, models.CrawlSession, error) {}

func (r *StatusReporter) Finished(ctx context.Context, session models.CrawlSession, _ error) {
	r.set(ctx, session)
}

// Persisted reads back the status stored for a session. ok is false when the
// store holds nothing for it, e.g. after the TTL expired.
func (r *StatusReporter) Persisted(ctx context.Context, sessionID string) (session models.CrawlSession, ok bool, err error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	return r.store.GetStatus(ctx, sessionID)
}

func (r *StatusReporter) set(ctx context.Context, session models.CrawlSession) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := r.store.SetStatus(ctx, session); err != nil && r.onError != nil {
		r.onError(err)
	}
}
