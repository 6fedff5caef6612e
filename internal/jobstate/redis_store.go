package jobstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/inkwell-labs/inkwell-backend/pkg/redis"
)

const casMaxRetries = 5

// RedisStore persists job state as JSON under a namespaced key, using WATCH
// transactions so concurrent updates never lose a write.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps the shared redis client as a job state store.
func NewRedisStore(client *redis.Client) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client required")
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Get(ctx context.Context, jobID string) (*State, error) {
	payload, err := s.client.Get(ctx, s.client.JobStateKey(jobID))
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var state State
	if err := json.Unmarshal([]byte(payload), &state); err != nil {
		return nil, fmt.Errorf("decode job state: %w", err)
	}
	return &state, nil
}

func (s *RedisStore) Update(ctx context.Context, jobID string, ttl time.Duration, fn func(current *State) (*State, error)) error {
	key := s.client.JobStateKey(jobID)
	raw := s.client.Raw()

	for attempt := 0; attempt < casMaxRetries; attempt++ {
		err := raw.Watch(ctx, func(tx *goredis.Tx) error {
			var current *State
			payload, err := tx.Get(ctx, key).Result()
			switch {
			case errors.Is(err, goredis.Nil):
				current = nil
			case err != nil:
				return err
			default:
				var state State
				if decodeErr := json.Unmarshal([]byte(payload), &state); decodeErr != nil {
					return fmt.Errorf("decode job state: %w", decodeErr)
				}
				current = &state
			}

			next, err := fn(current)
			if err != nil {
				return err
			}
			if next == nil {
				return nil
			}

			buf, err := json.Marshal(next)
			if err != nil {
				return fmt.Errorf("encode job state: %w", err)
			}
			_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
				pipe.Set(ctx, key, buf, ttl)
				return nil
			})
			return err
		}, key)

		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("job state update contention for %s", jobID)
}

func (s *RedisStore) Delete(ctx context.Context, jobID string) error {
	return s.client.Del(ctx, s.client.JobStateKey(jobID))
}
