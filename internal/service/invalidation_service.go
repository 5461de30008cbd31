package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/siswa-progress-api/internal/observability"
)

// RecordChangedEvent announces that a period record was mutated. Every node
// that receives it bumps nothing itself (cache versions live in redis) but
// pokes its local countdown watchers so subscribers see fresh bounds before
// the next authority tick.
type RecordChangedEvent struct {
	Source     string    `json:"source"`
	StudentID  uint      `json:"student_id"`
	ProgressID uint      `json:"progress_id"`
	ChangedAt  time.Time `json:"changed_at"`
}

// InvalidationService owns explicit cache invalidation: a per-student
// version counter in redis plus a NATS broadcast for cross-instance
// listeners.
type InvalidationService struct {
	cache   *redis.Client
	nats    *nats.Conn
	subject string
	logger  zerolog.Logger
	nodeID  string

	mu        sync.RWMutex
	listeners []func(RecordChangedEvent)
}

// NewInvalidationService builds the invalidation fan-out. subject may be
// empty to disable the NATS leg (single-node deployments, tests).
func NewInvalidationService(cache *redis.Client, natsConn *nats.Conn, subject string, logger zerolog.Logger) *InvalidationService {
	return &InvalidationService{
		cache:   cache,
		nats:    natsConn,
		subject: subject,
		logger:  logger.With().Str("component", "invalidation_service").Logger(),
		nodeID:  uuid.NewString(),
	}
}

// Start subscribes to remote invalidation events until ctx is cancelled.
func (s *InvalidationService) Start(ctx context.Context) {
	if s.nats == nil || s.subject == "" {
		return
	}

	sub, err := s.nats.Subscribe(s.subject, func(msg *nats.Msg) {
		var event RecordChangedEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			s.logger.Warn().Err(err).Msg("invalid record-changed payload")
			return
		}
		if event.Source == s.nodeID {
			return
		}
		s.notify(event)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to subscribe to record-changed subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drain record-changed subscription")
		}
	}()
}

// OnRecordChanged registers a listener invoked for every invalidation event,
// local or remote.
func (s *InvalidationService) OnRecordChanged(listener func(RecordChangedEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, listener)
}

// RecordChanged bumps the student's cache version and broadcasts the event.
func (s *InvalidationService) RecordChanged(ctx context.Context, studentID, progressID uint) {
	event := RecordChangedEvent{
		Source:     s.nodeID,
		StudentID:  studentID,
		ProgressID: progressID,
		ChangedAt:  time.Now().UTC(),
	}

	if s.cache != nil {
		if err := s.cache.Incr(ctx, cacheVersionKey(studentID)).Err(); err != nil {
			s.logger.Warn().Err(err).Uint("student_id", studentID).Msg("failed to bump cache version")
		}
	}

	observability.RecordInvalidations().Inc()
	s.notify(event)

	if s.nats != nil && s.subject != "" {
		payload, err := json.Marshal(event)
		if err != nil {
			return
		}
		if err := s.nats.Publish(s.subject, payload); err != nil {
			s.logger.Warn().Err(err).Msg("failed to publish record-changed event")
		}
	}
}

// CacheVersion reads the student's current cache version; a missing counter
// means version zero.
func (s *InvalidationService) CacheVersion(ctx context.Context, studentID uint) (int64, error) {
	if s.cache == nil {
		return 0, nil
	}

	version, err := s.cache.Get(ctx, cacheVersionKey(studentID)).Int64()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, err
	}

	return version, nil
}

func (s *InvalidationService) notify(event RecordChangedEvent) {
	s.mu.RLock()
	listeners := make([]func(RecordChangedEvent), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.RUnlock()

	for _, listener := range listeners {
		listener(event)
	}
}

func cacheVersionKey(studentID uint) string {
	return fmt.Sprintf("progress:ver:student:%d", studentID)
}
