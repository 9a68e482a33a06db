package titles

import (
	"context"
	"strconv"
)

// KeyValue is the subset of the Redis client the store needs.
type KeyValue interface {
	MGet(ctx context.Context, keys ...string) ([]string, []bool, error)
}

// RedisStore reads titles stored under keyPrefix+id.
type RedisStore struct {
	kv        KeyValue
	keyPrefix string
}

func NewRedisStore(kv KeyValue, keyPrefix string) *RedisStore {
	return &RedisStore{kv: kv, keyPrefix: keyPrefix}
}

func (s *RedisStore) Key(id uint32) string {
	return s.keyPrefix + strconv.FormatUint(uint64(id), 10)
}

func (s *RedisStore) Titles(ctx context.Context, ids []uint32) (map[uint32]string, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.Key(id)
	}
	values, ok, err := s.kv.MGet(ctx, keys...)
	if err != nil {
		return nil, err
	}
	out := make(map[uint32]string, len(ids))
	for i, id := range ids {
		if ok[i] {
			out[id] = values[i]
		}
	}
	return out, nil
}
