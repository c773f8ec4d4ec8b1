package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"vmjobs/internal/apperrors"
	"vmjobs/internal/job"
)

// DefaultRedisPrefix namespaces every key the store writes.
const DefaultRedisPrefix = "vmjobs:"

// Redis stores snapshots as JSON documents with a TTL, plus a sorted set of
// job IDs scored by creation time for listing.
type Redis struct {
	client    redis.UniversalClient
	prefix    string
	retention time.Duration
}

// NewRedis creates a Redis-backed store. Every write refreshes the key TTL
// to retention, so a job expires retention after its last update.
func NewRedis(client redis.UniversalClient, retention time.Duration, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &Redis{client: client, prefix: prefix, retention: retention}
}

func (r *Redis) jobKey(id string) string { return r.prefix + "job:" + id }
func (r *Redis) indexKey() string        { return r.prefix + "jobs" }

// Create stores the first snapshot; it fails if the ID is already taken.
// When the index update fails the document is removed again, so a failed
// Create leaves nothing behind.
func (r *Redis) Create(ctx context.Context, snap *job.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	created, err := r.client.SetNX(ctx, r.jobKey(snap.ID), data, r.retention).Result()
	if err != nil {
		return apperrors.Unavailable("redis setnx", err)
	}
	if !created {
		return apperrors.Conflict("job", "job "+snap.ID+" already exists")
	}
	score := float64(snap.CreatedAt.UnixNano())
	if err := r.client.ZAdd(ctx, r.indexKey(), redis.Z{Score: score, Member: snap.ID}).Err(); err != nil {
		if derr := r.client.Del(context.WithoutCancel(ctx), r.jobKey(snap.ID)).Err(); derr != nil {
			err = errors.Join(err, fmt.Errorf("remove unindexed job: %w", derr))
		}
		return apperrors.Unavailable("redis zadd", err)
	}
	return nil
}

// Save overwrites the snapshot of an existing job.
func (r *Redis) Save(ctx context.Context, snap *job.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	ok, err := r.client.SetXX(ctx, r.jobKey(snap.ID), data, r.retention).Result()
	if err != nil {
		return apperrors.Unavailable("redis setxx", err)
	}
	if !ok {
		return apperrors.NotFound("job", snap.ID)
	}
	return nil
}

// Get returns the stored snapshot or a not found error once it has expired.
func (r *Redis) Get(ctx context.Context, id string) (*job.Snapshot, error) {
	data, err := r.client.Get(ctx, r.jobKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.NotFound("job", id)
		}
		return nil, apperrors.Unavailable("redis get", err)
	}
	return decode(data)
}

// List returns retained jobs newest first and prunes index entries whose
// documents have expired.
func (r *Redis) List(ctx context.Context) ([]*job.Snapshot, error) {
	ids, err := r.client.ZRevRange(ctx, r.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, apperrors.Unavailable("redis zrevrange", err)
	}
	if len(ids) == 0 {
		return []*job.Snapshot{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.jobKey(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, apperrors.Unavailable("redis mget", err)
	}

	out := make([]*job.Snapshot, 0, len(values))
	var expired []any
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			expired = append(expired, ids[i])
			continue
		}
		snap, err := decode([]byte(s))
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	if len(expired) > 0 {
		// Best effort; a failure only leaves stale index members behind.
		_ = r.client.ZRem(ctx, r.indexKey(), expired...).Err()
	}
	return out, nil
}

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return apperrors.Unavailable("redis", err)
	}
	return nil
}

func decode(data []byte) (*job.Snapshot, error) {
	var snap job.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	if snap.Steps == nil {
		snap.Steps = []job.StepResult{}
	}
	return &snap, nil
}

var _ job.Store = (*Redis)(nil)
