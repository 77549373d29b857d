package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"

	"github.com/peacprotocol/peac/core/pkg/dispute"
)

const (
	redisDocPrefix = "peac:dispute:"
	redisIndex     = "peac:disputes"
)

// RedisStore keeps each attestation under peac:dispute:<id> and maintains a
// lexicographically ordered index of ids in the peac:disputes sorted set.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a store from a redis:// URL.
func NewRedisStore(url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("store: parse redis url: %w", err)
	}
	return &RedisStore{client: redis.NewClient(opts)}, nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Name() string { return "redis" }

func (s *RedisStore) Close() error { return s.client.Close() }

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Put(ctx context.Context, att *dispute.Attestation) (err error) {
	ctx, span := startSpan(ctx, s.Name(), "Put")
	defer func() { endSpan(span, err) }()

	rec, err := encode(att)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.String("dispute_id", rec.ID))

	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, redisDocPrefix+rec.ID, rec.Doc, 0)
		p.ZAdd(ctx, redisIndex, redis.Z{Score: 0, Member: rec.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis store error: %w", err)
	}
	return nil
}

// Swap watches the document key so a concurrent writer aborts the
// transaction.
func (s *RedisStore) Swap(ctx context.Context, prev, next *dispute.Attestation) (err error) {
	ctx, span := startSpan(ctx, s.Name(), "Swap")
	defer func() { endSpan(span, err) }()

	rec, want, err := encodeSwap(prev, next)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.String("dispute_id", rec.ID))

	key := redisDocPrefix + rec.ID
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrConflict
		}
		if err != nil {
			return err
		}
		rev, err := revisionOf(cur)
		if err != nil {
			return err
		}
		if rev != want {
			return ErrConflict
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, rec.Doc, 0)
			return nil
		})
		return err
	}, key)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrConflict), errors.Is(err, redis.TxFailedErr):
		return ErrConflict
	default:
		return fmt.Errorf("redis store error: %w", err)
	}
}

func (s *RedisStore) Get(ctx context.Context, disputeID string) (att *dispute.Attestation, err error) {
	ctx, span := startSpan(ctx, s.Name(), "Get", attribute.String("dispute_id", disputeID))
	defer func() { endSpan(span, err) }()

	doc, err := s.client.Get(ctx, redisDocPrefix+disputeID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis store error: %w", err)
	}
	return decode(doc)
}

func (s *RedisStore) List(ctx context.Context, state dispute.State, limit int) (out []*dispute.Attestation, err error) {
	ctx, span := startSpan(ctx, s.Name(), "List", attribute.String("state", string(state)))
	defer func() { endSpan(span, err) }()

	ids, err := s.client.ZRangeByLex(ctx, redisIndex, &redis.ZRangeBy{Min: "-", Max: "+"}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis store error: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = redisDocPrefix + id
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis store error: %w", err)
	}

	n := listLimit(limit)
	for _, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		att, err := decode([]byte(str))
		if err != nil {
			return nil, err
		}
		if state != "" && att.Evidence.State != state {
			continue
		}
		out = append(out, att)
		if len(out) == n {
			break
		}
	}
	return out, nil
}
