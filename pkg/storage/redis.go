package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each snapshot in a hash at doc:<id> and publishes every
// save on doc:<id>:updates.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new storage instance
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func docKey(docID string) string { return fmt.Sprintf("doc:%s", docID) }

// Save stores the snapshot unless the stored revision is the same or newer
func (s *RedisStore) Save(ctx context.Context, docID string, snap *Snapshot) error {
	key := docKey(docID)
	snap.LastModified = time.Now().UnixMilli()

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	// The revision check and the write run in one transaction on key
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, key, "revision").Int()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("failed to get current revision: %w", err)
		}
		if err == nil && current >= snap.Revision {
			return fmt.Errorf("%w: %s is at %d, snapshot is %d", ErrStale, docID, current, snap.Revision)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, "data", data, "revision", snap.Revision)
			pipe.Publish(ctx, key+":updates", data)
			return nil
		})
		return err
	}, key)
	if err != nil {
		if errors.Is(err, ErrStale) {
			return err
		}
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// Load loads the snapshot from Redis
func (s *RedisStore) Load(ctx context.Context, docID string) (*Snapshot, error) {
	data, err := s.client.HGet(ctx, docKey(docID), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// Delete removes a document's snapshot from Redis
func (s *RedisStore) Delete(ctx context.Context, docID string) error {
	key := docKey(docID)
	pipe := s.client.Pipeline()
	pipe.Del(ctx, key)
	pipe.Publish(ctx, key+":deleted", "")
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// Watch subscribes to snapshots saved for docID, including this process's
// own saves
func (s *RedisStore) Watch(ctx context.Context, docID string, handler func(*Snapshot)) error {
	pubsub := s.client.Subscribe(ctx, docKey(docID)+":updates")
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var snap Snapshot
			if err := json.Unmarshal([]byte(msg.Payload), &snap); err != nil {
				return fmt.Errorf("failed to unmarshal update: %w", err)
			}
			handler(&snap)
		}
	}
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}
