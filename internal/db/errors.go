package db

import "errors"

// Sentinel errors for database operations.
var (
	ErrKeyNotFound = errors.New("db: key not found")
	ErrEmpty       = errors.New("db: empty collection")
)

// Op constants map to Redis/Valkey command names for error context.
const (
	OpDel           = "DEL"
	OpExists        = "EXISTS"
	OpExpire        = "EXPIRE"
	OpScan          = "SCAN"
	OpSetNX         = "SET NX"
	OpHSet          = "HSET"
	OpHGet          = "HGET"
	OpHGetAll       = "HGETALL"
	OpHIncrBy       = "HINCRBY"
	OpRPush         = "RPUSH"
	OpLPop          = "LPOP"
	OpLLen          = "LLEN"
	OpSAdd          = "SADD"
	OpSCard         = "SCARD"
	OpSPop          = "SPOP"
	OpZAdd          = "ZADD"
	OpZRem          = "ZREM"
	OpZRangeByScore = "ZRANGEBYSCORE"
	OpZPopMin       = "ZPOPMIN"
	OpZCard         = "ZCARD"
	OpEval          = "EVALSHA"
	OpMulti         = "MULTI"
)

// Error wraps an underlying error with the operation name for diagnostics.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }
