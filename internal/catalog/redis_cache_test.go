package catalog

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/symptom-intake/internal/triage"
	"github.com/wolfman30/symptom-intake/pkg/logging"
)

type countingStore struct {
	*MemoryStore
	lists int
}

func (s *countingStore) ListRules(ctx context.Context) ([]triage.SymptomRule, error) {
	s.lists++
	return s.MemoryStore.ListRules(ctx)
}

func newCountingStore(t *testing.T) *countingStore {
	t.Helper()
	mem, err := NewMemoryStore([]triage.SymptomRule{
		{Symptom: "fever", FollowUpQuestions: []string{"How high?"}},
		{Symptom: "cough", FollowUpQuestions: []string{"How long?"}},
	})
	if err != nil {
		t.Fatalf("NewMemoryStore: %v", err)
	}
	return &countingStore{MemoryStore: mem}
}

func TestRedisCacheServesFromCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := newCountingStore(t)
	cache := NewRedisCache(store, client, time.Minute, logging.Default())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		rules, err := cache.ListRules(ctx)
		if err != nil {
			t.Fatalf("ListRules: %v", err)
		}
		if len(rules) != 2 {
			t.Fatalf("expected 2 rules, got %d", len(rules))
		}
	}
	if store.lists != 1 {
		t.Fatalf("expected one store read, got %d", store.lists)
	}
	if ttl := mr.TTL(rulesCacheKey); ttl != time.Minute {
		t.Fatalf("expected cache ttl 1m, got %v", ttl)
	}

	rule, err := cache.FindRule(ctx, "Cough")
	if err != nil || rule == nil || rule.Symptom != "cough" {
		t.Fatalf("FindRule cough: %#v %v", rule, err)
	}
	missing, err := cache.FindRule(ctx, "earache")
	if err != nil || missing != nil {
		t.Fatalf("expected nil, nil for unknown symptom, got %#v %v", missing, err)
	}
}

func TestRedisCacheUpsertInvalidates(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := newCountingStore(t)
	cache := NewRedisCache(store, client, time.Minute, nil)
	ctx := context.Background()

	if _, err := cache.ListRules(ctx); err != nil {
		t.Fatalf("ListRules: %v", err)
	}
	if err := cache.UpsertRule(ctx, triage.SymptomRule{Symptom: "earache", FollowUpQuestions: []string{"Which ear?"}}); err != nil {
		t.Fatalf("UpsertRule: %v", err)
	}
	if mr.Exists(rulesCacheKey) {
		t.Fatalf("expected cache key removed after upsert")
	}
	rules, _ := cache.ListRules(ctx)
	if len(rules) != 3 || store.lists != 2 {
		t.Fatalf("expected reload with 3 rules, got %d rules after %d reads", len(rules), store.lists)
	}
}

func TestRedisCacheFallsThroughOnCorruptEntry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := newCountingStore(t)
	cache := NewRedisCache(store, client, time.Minute, nil)

	if err := mr.Set(rulesCacheKey, "not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	rules, err := cache.ListRules(context.Background())
	if err != nil || len(rules) != 2 {
		t.Fatalf("expected store fallback, got %d rules err=%v", len(rules), err)
	}
	if store.lists != 1 {
		t.Fatalf("expected store read, got %d", store.lists)
	}
}

func TestRedisCacheFallsThroughWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := newCountingStore(t)
	cache := NewRedisCache(store, client, time.Minute, nil)
	mr.Close()

	rules, err := cache.ListRules(context.Background())
	if err != nil || len(rules) != 2 {
		t.Fatalf("expected store fallback, got %d rules err=%v", len(rules), err)
	}
}
