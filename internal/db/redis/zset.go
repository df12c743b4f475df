package redis

import (
	"context"
	"strconv"

	"github.com/kailas-cloud/lexdrill/internal/db"
)

// ZAdd inserts or rescores a member.
func (s *Store) ZAdd(ctx context.Context, key string, score float64, member string) error {
	cmd := s.b().Zadd().Key(key).ScoreMember().ScoreMember(score, member).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpZAdd, Err: err}
	}
	return nil
}

// ZRem removes members.
func (s *Store) ZRem(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	cmd := s.b().Zrem().Key(key).Member(members...).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpZRem, Err: err}
	}
	return nil
}

// ZRangeByScore returns members with minScore <= score <= maxScore in ascending order.
func (s *Store) ZRangeByScore(ctx context.Context, key string, minScore, maxScore float64) ([]string, error) {
	cmd := s.b().Zrangebyscore().Key(key).
		Min(formatScore(minScore)).
		Max(formatScore(maxScore)).
		Build()
	members, err := s.do(ctx, cmd).AsStrSlice()
	if err != nil {
		return nil, &db.Error{Op: db.OpZRangeByScore, Err: err}
	}
	return members, nil
}

// ZPopMin removes the lowest-scored member or returns db.ErrEmpty.
func (s *Store) ZPopMin(ctx context.Context, key string) (db.ScoredMember, error) {
	cmd := s.b().Zpopmin().Key(key).Build()
	arr, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return db.ScoredMember{}, &db.Error{Op: db.OpZPopMin, Err: err}
	}
	if len(arr) < 2 {
		return db.ScoredMember{}, db.ErrEmpty
	}
	member, err := arr[0].ToString()
	if err != nil {
		return db.ScoredMember{}, &db.Error{Op: db.OpZPopMin, Err: err}
	}
	score, err := arr[1].AsFloat64()
	if err != nil {
		return db.ScoredMember{}, &db.Error{Op: db.OpZPopMin, Err: err}
	}
	return db.ScoredMember{Member: member, Score: score}, nil
}

// ZCard returns the sorted set size.
func (s *Store) ZCard(ctx context.Context, key string) (int64, error) {
	cmd := s.b().Zcard().Key(key).Build()
	n, err := s.do(ctx, cmd).AsInt64()
	if err != nil {
		return 0, &db.Error{Op: db.OpZCard, Err: err}
	}
	return n, nil
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
