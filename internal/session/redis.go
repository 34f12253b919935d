package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/symptom-intake/internal/triage"
)

const (
	redisKeyPrefix = "intake:session:"
	defaultTTL     = 24 * time.Hour
)

// RedisStore keeps session state as JSON strings with a sliding TTL.
type RedisStore struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if client == nil {
		panic("session: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisStore{
		redis:  client,
		ttl:    ttl,
		tracer: otel.Tracer("intake.internal.session.redis"),
	}
}

func (s *RedisStore) Load(ctx context.Context, sessionID string) (triage.State, error) {
	ctx, span := s.tracer.Start(ctx, "session.redis.load", trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	data, err := s.redis.Get(ctx, redisKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return triage.State{}, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		return triage.State{}, fmt.Errorf("session: redis get: %w", err)
	}
	return decode(data)
}

func (s *RedisStore) Save(ctx context.Context, state triage.State) error {
	ctx, span := s.tracer.Start(ctx, "session.redis.save", trace.WithAttributes(
		attribute.String("session.id", state.ID),
		attribute.String("session.step", string(state.Step())),
	))
	defer span.End()

	data, err := encode(state)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, redisKey(state.ID), data, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: redis set: %w", err)
	}
	return nil
}

func redisKey(sessionID string) string {
	return redisKeyPrefix + sessionID
}
