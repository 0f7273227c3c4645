package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces gatekeep keys in a shared Redis.
const DefaultRedisPrefix = "gatekeep"

// RedisStore is a Store backed by Redis. Mutations run as Lua scripts, so
// each is atomic and costs a single round trip (EVALSHA, falling back to
// EVAL on a script cache miss).
type RedisStore struct {
	client      redis.UniversalClient
	prefix      string
	serverClock bool
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithPrefix sets the key prefix.
// Default: "gatekeep"
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithServerClock makes the scripts take the current time from the Redis
// server (TIME) instead of WindowRequest.Now and ViolationRequest.Now, so
// processes with skewed clocks agree on window and block boundaries.
// Requires Redis 5 or later, where scripts replicate by effects.
func WithServerClock() RedisOption {
	return func(s *RedisStore) {
		s.serverClock = true
	}
}

// NewRedisStore creates a store on top of an existing client. The caller
// owns the client and closes it.
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, prefix: DefaultRedisPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) windowKey(key string) string { return s.prefix + ":win:" + key }
func (s *RedisStore) blockKey(key string) string  { return s.prefix + ":blk:" + key }

func (s *RedisStore) clockFlag() string {
	if s.serverClock {
		return "1"
	}
	return "0"
}

// ConsumeWindow implements Store.
func (s *RedisStore) ConsumeWindow(ctx context.Context, key string, req WindowRequest) (Window, error) {
	if err := ValidateKey(key); err != nil {
		return Window{}, err
	}
	if err := req.validate(); err != nil {
		return Window{}, err
	}

	res, err := consumeWindowScript.Run(ctx, s.client, []string{s.windowKey(key)},
		req.Limit,
		req.Cost,
		req.Window.Milliseconds(),
		req.Now.UnixMilli(),
		s.clockFlag(),
	).Int64Slice()
	if err != nil {
		return Window{}, unavailable("consume window", err)
	}
	if len(res) != 3 {
		return Window{}, fmt.Errorf("%w: consume window: unexpected reply length %d", ErrUnavailable, len(res))
	}

	return Window{
		Key:       key,
		Allowed:   res[0] == 1,
		Limit:     req.Limit,
		Remaining: res[1],
		ResetAt:   time.UnixMilli(res[2]),
	}, nil
}

// RecordViolation implements Store.
func (s *RedisStore) RecordViolation(ctx context.Context, key string, req ViolationRequest) (BlockEntry, error) {
	if err := ValidateKey(key); err != nil {
		return BlockEntry{}, err
	}
	if err := req.Policy.validate(); err != nil {
		return BlockEntry{}, err
	}

	res, err := recordViolationScript.Run(ctx, s.client, []string{s.blockKey(key)},
		req.Now.UnixMilli(),
		req.Policy.Base.Milliseconds(),
		req.Policy.Max.Milliseconds(),
		req.Policy.Memory.Milliseconds(),
		s.clockFlag(),
	).Int64Slice()
	if err != nil {
		return BlockEntry{}, unavailable("record violation", err)
	}
	if len(res) != 3 {
		return BlockEntry{}, fmt.Errorf("%w: record violation: unexpected reply length %d", ErrUnavailable, len(res))
	}

	return BlockEntry{
		Key:        key,
		Violations: res[0],
		ExpiresAt:  time.UnixMilli(res[1]),
		Duration:   time.Duration(res[2]) * time.Millisecond,
	}, nil
}

// GetBlock implements Store.
func (s *RedisStore) GetBlock(ctx context.Context, key string) (BlockEntry, bool, error) {
	vals, err := s.client.HMGet(ctx, s.blockKey(key), "count", "expires", "duration").Result()
	if err != nil {
		return BlockEntry{}, false, unavailable("get block", err)
	}
	if len(vals) != 3 || vals[0] == nil || vals[1] == nil {
		return BlockEntry{}, false, nil
	}

	count, err := parseInt(vals[0])
	if err != nil {
		return BlockEntry{}, false, fmt.Errorf("store: get block: bad count: %w", err)
	}
	expires, err := parseInt(vals[1])
	if err != nil {
		return BlockEntry{}, false, fmt.Errorf("store: get block: bad expiry: %w", err)
	}
	var dur int64
	if vals[2] != nil {
		dur, _ = parseInt(vals[2])
	}

	return BlockEntry{
		Key:        key,
		Violations: count,
		ExpiresAt:  time.UnixMilli(expires),
		Duration:   time.Duration(dur) * time.Millisecond,
	}, true, nil
}

// ClearBlock implements Store.
func (s *RedisStore) ClearBlock(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.blockKey(key)).Err(); err != nil {
		return unavailable("clear block", err)
	}
	return nil
}

// Ping implements Store.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}

func parseInt(v any) (int64, error) {
	switch n := v.(type) {
	case string:
		if i, err := strconv.ParseInt(n, 10, 64); err == nil {
			return i, nil
		}
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, err
		}
		return int64(f), nil
	case int64:
		return n, nil
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

var _ Store = (*RedisStore)(nil)
