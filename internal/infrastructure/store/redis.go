package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alexisbeaulieu97/cadence/internal/domain/cadence"
	"github.com/alexisbeaulieu97/cadence/internal/ports"
)

var _ ports.SnapshotStore = (*RedisStore)(nil)

// All keys are prefixed with "cadence:" to avoid collisions.
const redisKeyPrefix = "cadence:"

// enrollmentKey returns the key holding one snapshot: cadence:enrollment:{id}
func enrollmentKey(id string) string { return redisKeyPrefix + "enrollment:" + id }

// enrollmentIDsKey is the Set tracking all enrollment ids for enumeration.
const enrollmentIDsKey = redisKeyPrefix + "enrollment_ids"

// RedisStore keeps each snapshot as a JSON string value plus an id set for
// listing.
type RedisStore struct {
	client redis.UniversalClient
	owns   bool
}

// OpenRedis connects using a redis:// URL and pings the server.
func OpenRedis(ctx context.Context, cfg Config) (*RedisStore, error) {
	opts, err := redis.ParseURL(cfg.DSN)
	if err != nil {
		return nil, internalError("parse redis url", "", err)
	}
	if cfg.MaxOpenConns > 0 {
		opts.PoolSize = cfg.MaxOpenConns
	}
	if cfg.MaxIdleConns > 0 {
		opts.MaxIdleConns = cfg.MaxIdleConns
	}
	if cfg.ConnMaxLifetime > 0 {
		opts.ConnMaxLifetime = cfg.ConnMaxLifetime
	}
	if cfg.ConnMaxIdleTime > 0 {
		opts.ConnMaxIdleTime = cfg.ConnMaxIdleTime
	}

	client := redis.NewClient(opts)
	pingTimeout := cfg.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = 2 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, internalError("ping redis", "", err)
	}

	s := NewRedisStore(client)
	s.owns = true
	return s, nil
}

// NewRedisStore wraps an existing client. The caller owns the client
// lifecycle.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// Save writes the snapshot and records its id in one transaction.
func (s *RedisStore) Save(ctx context.Context, snapshot cadence.Snapshot) error {
	if err := requireID(snapshot); err != nil {
		return err
	}
	data, err := encodeSnapshot(snapshot)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, enrollmentKey(snapshot.EnrollmentID), data, 0)
	pipe.SAdd(ctx, enrollmentIDsKey, snapshot.EnrollmentID)
	if _, err := pipe.Exec(ctx); err != nil {
		return internalError("save snapshot", snapshot.EnrollmentID, err)
	}
	return nil
}

// Get loads one snapshot.
func (s *RedisStore) Get(ctx context.Context, enrollmentID string) (cadence.Snapshot, error) {
	data, err := s.client.Get(ctx, enrollmentKey(enrollmentID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return cadence.Snapshot{}, cadence.NewNotFoundError(enrollmentID)
	}
	if err != nil {
		return cadence.Snapshot{}, internalError("get snapshot", enrollmentID, err)
	}
	return decodeSnapshot(enrollmentID, data)
}

// List returns every snapshot, newest first. Ids whose value has vanished
// are skipped.
func (s *RedisStore) List(ctx context.Context) ([]cadence.Snapshot, error) {
	ids, err := s.client.SMembers(ctx, enrollmentIDsKey).Result()
	if err != nil {
		return nil, internalError("list snapshot ids", "", err)
	}
	out := []cadence.Snapshot{}
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = enrollmentKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, internalError("list snapshots", "", err)
	}
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		snapshot, err := decodeSnapshot(ids[i], []byte(raw))
		if err != nil {
			return nil, err
		}
		out = append(out, snapshot)
	}
	sortNewestFirst(out)
	return out, nil
}

// Delete removes the snapshot and its id.
func (s *RedisStore) Delete(ctx context.Context, enrollmentID string) error {
	pipe := s.client.TxPipeline()
	del := pipe.Del(ctx, enrollmentKey(enrollmentID))
	pipe.SRem(ctx, enrollmentIDsKey, enrollmentID)
	if _, err := pipe.Exec(ctx); err != nil {
		return internalError("delete snapshot", enrollmentID, err)
	}
	if del.Val() == 0 {
		return cadence.NewNotFoundError(enrollmentID)
	}
	return nil
}

// Close closes the client when the store created it.
func (s *RedisStore) Close() error {
	if !s.owns {
		return nil
	}
	return s.client.Close()
}
