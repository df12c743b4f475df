package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/lexdrill/internal/db"
)

// PushCounted runs RPUSH + HINCRBY inside MULTI/EXEC and returns the new list length.
func (s *Store) PushCounted(ctx context.Context, p db.CountedPush) (int64, error) {
	cmds := rueidis.Commands{
		s.b().Multi().Build(),
		s.b().Rpush().Key(p.List).Element(string(p.Value)).Build(),
		s.b().Hincrby().Key(p.Counter).Field(p.Field).Increment(1).Build(),
		s.b().Exec().Build(),
	}

	results := s.client.DoMulti(ctx, cmds...)
	for _, res := range results {
		if err := res.Error(); err != nil {
			return 0, &db.Error{Op: db.OpMulti, Err: fmt.Errorf("push %s: %w", p.List, err)}
		}
	}

	replies, err := results[len(results)-1].ToArray()
	if err != nil {
		return 0, &db.Error{Op: db.OpMulti, Err: err}
	}
	if len(replies) == 0 {
		return 0, &db.Error{Op: db.OpMulti, Err: errors.New("transaction aborted")}
	}
	n, err := replies[0].AsInt64()
	if err != nil {
		return 0, &db.Error{Op: db.OpRPush, Err: err}
	}
	return n, nil
}

// LPop removes the list head or returns db.ErrKeyNotFound when empty.
func (s *Store) LPop(ctx context.Context, key string) ([]byte, error) {
	cmd := s.b().Lpop().Key(key).Build()
	data, err := s.do(ctx, cmd).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, db.ErrKeyNotFound
		}
		return nil, &db.Error{Op: db.OpLPop, Err: err}
	}
	return data, nil
}

// LPopMulti pops the head of each list in one round-trip. Empty lists yield nil entries.
func (s *Store) LPopMulti(ctx context.Context, keys []string) ([][]byte, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	cmds := make(rueidis.Commands, len(keys))
	for i, key := range keys {
		cmds[i] = s.b().Lpop().Key(key).Build()
	}

	results := s.client.DoMulti(ctx, cmds...)
	out := make([][]byte, len(results))
	for i, res := range results {
		data, err := res.AsBytes()
		if err != nil {
			if rueidis.IsRedisNil(err) {
				continue
			}
			return nil, &db.Error{Op: db.OpLPop, Err: fmt.Errorf("key %s: %w", keys[i], err)}
		}
		out[i] = data
	}
	return out, nil
}

// LLen returns the list length; a missing key has length 0.
func (s *Store) LLen(ctx context.Context, key string) (int64, error) {
	cmd := s.b().Llen().Key(key).Build()
	n, err := s.do(ctx, cmd).AsInt64()
	if err != nil {
		return 0, &db.Error{Op: db.OpLLen, Err: err}
	}
	return n, nil
}

// LLenMulti returns lengths for several lists in one round-trip.
func (s *Store) LLenMulti(ctx context.Context, keys []string) ([]int64, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	cmds := make(rueidis.Commands, len(keys))
	for i, key := range keys {
		cmds[i] = s.b().Llen().Key(key).Build()
	}

	results := s.client.DoMulti(ctx, cmds...)
	out := make([]int64, len(results))
	for i, res := range results {
		n, err := res.AsInt64()
		if err != nil {
			return nil, &db.Error{Op: db.OpLLen, Err: fmt.Errorf("key %s: %w", keys[i], err)}
		}
		out[i] = n
	}
	return out, nil
}
