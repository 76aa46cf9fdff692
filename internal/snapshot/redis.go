package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"absen/internal/model"
)

// RedisStore keeps one hash per account; each field is a course id holding the
// JSON encoded entry list.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore builds a store using keys "<prefix><accountID>".
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "absen:snapshot:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(accountID string) string { return s.prefix + accountID }

func (s *RedisStore) Load(ctx context.Context, accountID, courseID string) ([]model.SnapshotEntry, error) {
	raw, err := s.client.HGet(ctx, s.key(accountID), courseID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("snapshot load: %w", err)
	}
	var entries []model.SnapshotEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("snapshot decode %s/%s: %w", accountID, courseID, err)
	}
	return entries, nil
}

func (s *RedisStore) Save(ctx context.Context, accountID, courseID string, entries []model.SnapshotEntry) error {
	if entries == nil {
		entries = []model.SnapshotEntry{}
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	if err := s.client.HSet(ctx, s.key(accountID), courseID, raw).Err(); err != nil {
		return fmt.Errorf("snapshot save: %w", err)
	}
	return nil
}

func (s *RedisStore) LoadAccount(ctx context.Context, accountID string) (map[string][]model.SnapshotEntry, error) {
	fields, err := s.client.HGetAll(ctx, s.key(accountID)).Result()
	if err != nil {
		return nil, fmt.Errorf("snapshot load account: %w", err)
	}
	out := make(map[string][]model.SnapshotEntry, len(fields))
	for course, raw := range fields {
		var entries []model.SnapshotEntry
		if err := json.Unmarshal([]byte(raw), &entries); err != nil {
			return nil, fmt.Errorf("snapshot decode %s/%s: %w", accountID, course, err)
		}
		out[course] = entries
	}
	return out, nil
}

func (s *RedisStore) DeleteAccount(ctx context.Context, accountID string) error {
	return s.client.Del(ctx, s.key(accountID)).Err()
}
