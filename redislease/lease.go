// Package redislease implements batchworker.LeaseStore on top of Redis,
// following the key-per-record, upsert-then-read-back-to-confirm protocol
// the teacher lineage uses for its distributed locks (see
// github.com/sharedcode/sop's redis.Lock/Unlock).
package redislease

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sharedcode/batchworker"
)

// Options configures the Redis connection used to store lease records.
type Options struct {
	Address  string
	Password string
	DB       int
}

// DefaultOptions mirrors the teacher's cache.DefaultOptions for local dev.
func DefaultOptions() Options {
	return Options{Address: "localhost:6379"}
}

type record struct {
	InstanceID string    `json:"instanceId"`
	AcquiredAt time.Time `json:"acquiredAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// commander is the narrow subset of *redis.Client's command surface Store
// depends on, extracted so tests can substitute a fake without a live Redis
// server.
type commander interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Store implements batchworker.LeaseStore against a Redis client.
type Store struct {
	client commander
	prefix string
}

// NewStore opens a Redis client with options and returns a LeaseStore. keyPrefix
// namespaces lease keys, mirroring the teacher's "L" prefix convention in
// redis.FormatLockKey.
func NewStore(options Options, keyPrefix string) *Store {
	client := redis.NewClient(&redis.Options{
		Addr:     options.Address,
		Password: options.Password,
		DB:       options.DB,
	})
	return NewStoreWithClient(client, keyPrefix)
}

// NewStoreWithClient builds a Store around an already-configured client (or
// a test fake satisfying the same command surface).
func NewStoreWithClient(client commander, keyPrefix string) *Store {
	if keyPrefix == "" {
		keyPrefix = "lease:"
	}
	return &Store{client: client, prefix: keyPrefix}
}

func (s *Store) key(workerID string) string {
	return fmt.Sprintf("%s%s", s.prefix, workerID)
}

// TryAcquire implements batchworker.LeaseStore.TryAcquire. Redis' SETNX-style
// SetArgs with GetSet semantics does not directly express a compare on a
// JSON struct field, so this follows the teacher's documented fallback:
// upsert, then read back and confirm the record still names instanceID.
func (s *Store) TryAcquire(ctx context.Context, workerID, instanceID string, ttl time.Duration) (bool, error) {
	now := time.Now()
	candidate := record{InstanceID: instanceID, AcquiredAt: now, ExpiresAt: now.Add(ttl)}

	existing, err := s.get(ctx, workerID)
	if err != nil {
		return false, err
	}
	if existing != nil && existing.ExpiresAt.After(now) {
		// Someone else holds an unexpired lease.
		return false, nil
	}

	if err := s.set(ctx, workerID, candidate, ttl); err != nil {
		return false, err
	}

	// Read back to confirm this instance won the race (last-writer-wins,
	// then confirmed).
	confirmed, err := s.get(ctx, workerID)
	if err != nil {
		return false, err
	}
	if confirmed == nil || confirmed.InstanceID != instanceID {
		return false, nil
	}
	return true, nil
}

// Renew implements batchworker.LeaseStore.Renew.
func (s *Store) Renew(ctx context.Context, workerID, instanceID string, ttl time.Duration) (bool, error) {
	existing, err := s.get(ctx, workerID)
	if err != nil {
		return false, err
	}
	if existing == nil || existing.InstanceID != instanceID {
		return false, nil
	}
	now := time.Now()
	existing.ExpiresAt = now.Add(ttl)
	if err := s.set(ctx, workerID, *existing, ttl); err != nil {
		return false, err
	}
	return true, nil
}

// Release implements batchworker.LeaseStore.Release.
func (s *Store) Release(ctx context.Context, workerID, instanceID string) error {
	existing, err := s.get(ctx, workerID)
	if err != nil {
		return err
	}
	if existing == nil || existing.InstanceID != instanceID {
		return nil
	}
	return s.client.Del(ctx, s.key(workerID)).Err()
}

// IsExpiredOrUnheld implements batchworker.LeaseStore.IsExpiredOrUnheld.
func (s *Store) IsExpiredOrUnheld(ctx context.Context, workerID string) (bool, error) {
	existing, err := s.get(ctx, workerID)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return true, nil
	}
	return !existing.ExpiresAt.After(time.Now()), nil
}

// Get implements batchworker.LeaseStore.Get.
func (s *Store) Get(ctx context.Context, workerID string) (*batchworker.LeaseInfo, error) {
	existing, err := s.get(ctx, workerID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}
	return &batchworker.LeaseInfo{
		WorkerID:   workerID,
		InstanceID: existing.InstanceID,
		AcquiredAt: existing.AcquiredAt,
		ExpiresAt:  existing.ExpiresAt,
	}, nil
}

func (s *Store) get(ctx context.Context, workerID string) (*record, error) {
	raw, err := s.client.Get(ctx, s.key(workerID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var r record
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) set(ctx context.Context, workerID string, r record, ttl time.Duration) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(workerID), data, ttl).Err()
}
