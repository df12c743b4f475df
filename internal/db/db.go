package db

import (
	"context"
	"time"
)

// Store is the main key-value facade combining all sub-interfaces.
//
//nolint:interfacebloat // facade by design -- consumers use narrow sub-interfaces (ISP)
type Store interface {
	Pinger
	KeyStore
	KVStore
	HashStore
	ListStore
	SetStore
	SortedSetStore
	Scripter
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// KeyStore provides keyspace operations.
type KeyStore interface {
	Del(ctx context.Context, keys ...string) (int64, error)
	Exists(ctx context.Context, key string) (bool, error)
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// KVStore provides simple string operations.
type KVStore interface {
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
}

// HashStore provides hash operations.
type HashStore interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGet(ctx context.Context, key, field string) (string, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error)
}

// CountedPush appends Value to List and bumps Field of Counter in one transaction.
type CountedPush struct {
	List    string
	Value   []byte
	Counter string
	Field   string
}

// ListStore provides FIFO list operations.
type ListStore interface {
	PushCounted(ctx context.Context, p CountedPush) (int64, error)
	LPop(ctx context.Context, key string) ([]byte, error)
	LPopMulti(ctx context.Context, keys []string) ([][]byte, error)
	LLen(ctx context.Context, key string) (int64, error)
	LLenMulti(ctx context.Context, keys []string) ([]int64, error)
}

// SetStore provides unordered set operations.
type SetStore interface {
	SAdd(ctx context.Context, key string, members ...string) (int64, error)
	SCard(ctx context.Context, key string) (int64, error)
	SPop(ctx context.Context, key string, count int64) ([]string, error)
}

// ScoredMember is a sorted-set entry.
type ScoredMember struct {
	Member string
	Score  float64
}

// SortedSetStore provides sorted set operations.
type SortedSetStore interface {
	ZAdd(ctx context.Context, key string, score float64, member string) error
	ZRem(ctx context.Context, key string, members ...string) error
	ZRangeByScore(ctx context.Context, key string, minScore, maxScore float64) ([]string, error)
	ZPopMin(ctx context.Context, key string) (ScoredMember, error)
	ZCard(ctx context.Context, key string) (int64, error)
}

// Script is a server-side Lua script. Implementations cache the compiled form per *Script.
type Script struct {
	Name string
	Src  string
}

// NewScript declares a script.
func NewScript(name, src string) *Script {
	return &Script{Name: name, Src: src}
}

// Scripter runs Lua scripts atomically on the server.
type Scripter interface {
	EvalInt(ctx context.Context, script *Script, keys, args []string) (int64, error)
	// EvalString returns a bulk-string reply. A nil reply yields ErrKeyNotFound.
	EvalString(ctx context.Context, script *Script, keys, args []string) (string, error)
}
