package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"eyecheck-web/internal/form"
)

// RedisStore keeps form snapshots in Redis so a session survives a process
// restart or moves between instances.
type RedisStore struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewRedisStore(client *redisv9.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisStore{
		client: client,
		ttl:    ttl,
	}
}

func (s *RedisStore) Save(ctx context.Context, id string, snap form.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal session snapshot failed: %w", err)
	}
	if err := s.client.Set(ctx, s.key(id), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set session failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, id string) (form.Snapshot, bool, error) {
	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err == redisv9.Nil {
		return form.Snapshot{}, false, nil
	}
	if err != nil {
		return form.Snapshot{}, false, fmt.Errorf("redis get session failed: %w", err)
	}

	var snap form.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return form.Snapshot{}, false, fmt.Errorf("unmarshal session snapshot failed: %w", err)
	}
	return snap, true, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("redis delete session failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) key(id string) string {
	return fmt.Sprintf("eyecheck:session:%s", id)
}
