package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisConfig holds the connection settings for the Redis server.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Dial creates a go-redis client and waits for the server to answer PING.
// It retries up to 5 times to accommodate containers starting up.
func Dial(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	var err error
	for attempt := 1; attempt <= 5; attempt++ {
		if err = client.Ping(ctx).Err(); err == nil {
			return client, nil
		}
		log.Warn().Err(err).Int("attempt", attempt).Str("addr", cfg.Addr).Msg("redis ping failed, retrying in 2s")
		time.Sleep(2 * time.Second)
	}
	_ = client.Close()
	return nil, fmt.Errorf("connect to redis: %w", err)
}

// readCmds is the subset of go-redis commands used for reads. Both
// *redis.Client and *redis.Tx provide it.
type readCmds interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
	SIsMember(ctx context.Context, key string, member interface{}) *redis.BoolCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
	HGet(ctx context.Context, key, field string) *redis.StringCmd
	HMGet(ctx context.Context, key string, fields ...string) *redis.SliceCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

// RedisStore implements Store on top of a go-redis client.
type RedisStore struct {
	reader
	client     *redis.Client
	maxRetries int
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore wraps client. maxRetries bounds how often Update re-runs a
// callback whose transaction was aborted by a concurrent writer.
func NewRedisStore(client *redis.Client, maxRetries int) *RedisStore {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &RedisStore{reader: reader{cmds: client}, client: client, maxRetries: maxRetries}
}

// Exec runs the queued writes inside MULTI/EXEC without watching
// anything. It completes the Store contract; the booking repository always
// reads before it writes and goes through Update instead.
func (s *RedisStore) Exec(ctx context.Context, fn func(Batch)) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		fn(pipeBatch{ctx: ctx, pipe: pipe})
		return nil
	})
	return wrap(err)
}

// Update implements optimistic locking with WATCH. Aborted transactions are
// retried; after maxRetries extra attempts ErrTxContention is returned.
func (s *RedisStore) Update(ctx context.Context, fn func(Txn) error, watch ...string) error {
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		var fnErr error
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			fnErr = fn(&redisTxn{reader: reader{cmds: tx}, tx: tx})
			return fnErr
		}, watch...)

		switch {
		case err == nil:
			return nil
		case errors.Is(err, redis.TxFailedErr):
			log.Debug().Strs("keys", watch).Int("attempt", attempt+1).Msg("watched keys changed, retrying transaction")
			continue
		case fnErr != nil:
			return fnErr
		default:
			return wrap(err)
		}
	}
	return fmt.Errorf("%w on %v", ErrTxContention, watch)
}

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return wrap(s.client.Ping(ctx).Err())
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

type redisTxn struct {
	reader
	tx *redis.Tx
}

func (t *redisTxn) Commit(ctx context.Context, fn func(Batch)) error {
	_, err := t.tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		fn(pipeBatch{ctx: ctx, pipe: pipe})
		return nil
	})
	if errors.Is(err, redis.TxFailedErr) {
		// Left unwrapped so Update recognises the abort and retries.
		return err
	}
	return wrap(err)
}

type reader struct {
	cmds readCmds
}

func (r reader) Get(ctx context.Context, key string) (string, error) {
	v, err := r.cmds.Get(ctx, key).Result()
	return v, wrap(err)
}

func (r reader) MGet(ctx context.Context, keys ...string) ([]*string, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	vals, err := r.cmds.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, wrap(err)
	}
	return toStrings(vals), nil
}

func (r reader) SIsMember(ctx context.Context, key, member string) (bool, error) {
	ok, err := r.cmds.SIsMember(ctx, key, member).Result()
	return ok, wrap(err)
}

func (r reader) SMembers(ctx context.Context, key string) ([]string, error) {
	members, err := r.cmds.SMembers(ctx, key).Result()
	return members, wrap(err)
}

// HGet reads one hash field. It completes the Reader contract; the
// repository resolves slots in bulk with HMGet.
func (r reader) HGet(ctx context.Context, key, field string) (string, error) {
	v, err := r.cmds.HGet(ctx, key, field).Result()
	return v, wrap(err)
}

func (r reader) HMGet(ctx context.Context, key string, fields ...string) ([]*string, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	vals, err := r.cmds.HMGet(ctx, key, fields...).Result()
	if err != nil {
		return nil, wrap(err)
	}
	return toStrings(vals), nil
}

func (r reader) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	m, err := r.cmds.HGetAll(ctx, key).Result()
	return m, wrap(err)
}

type pipeBatch struct {
	ctx  context.Context
	pipe redis.Pipeliner
}

func (b pipeBatch) Set(key, value string) { b.pipe.Set(b.ctx, key, value, 0) }

func (b pipeBatch) Del(keys ...string) { b.pipe.Del(b.ctx, keys...) }

func (b pipeBatch) SAdd(key string, members ...string) {
	b.pipe.SAdd(b.ctx, key, toArgs(members)...)
}

func (b pipeBatch) SRem(key string, members ...string) {
	b.pipe.SRem(b.ctx, key, toArgs(members)...)
}

func (b pipeBatch) HSet(key, field, value string) { b.pipe.HSet(b.ctx, key, field, value) }

func (b pipeBatch) HDel(key string, fields ...string) { b.pipe.HDel(b.ctx, key, fields...) }

func toArgs(ss []string) []interface{} {
	args := make([]interface{}, len(ss))
	for i, s := range ss {
		args[i] = s
	}
	return args
}

func toStrings(vals []interface{}) []*string {
	out := make([]*string, len(vals))
	for i, v := range vals {
		if s, ok := v.(string); ok {
			out[i] = &s
		}
	}
	return out
}

// wrap maps go-redis errors onto the store taxonomy.
func wrap(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.Nil):
		return ErrNil
	default:
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
}
