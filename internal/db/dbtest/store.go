// Package dbtest provides an in-memory db.Store for unit tests.
package dbtest

import (
	"context"
	"fmt"
	"math/rand/v2"
	"path"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/kailas-cloud/lexdrill/internal/db"
)

// ScriptFunc emulates a Lua script against the store. It runs under the store lock.
type ScriptFunc func(s *Store, keys, args []string) (int64, error)

// StringScriptFunc emulates a script with a string reply. ok=false stands for a nil reply.
type StringScriptFunc func(s *Store, keys, args []string) (v string, ok bool, err error)

// Store is an in-memory db.Store. Scripts must be registered with HandleScript.
// Fail injects an error for an op name (db.OpLPop etc.).
type Store struct {
	mu      sync.Mutex
	strings map[string]string
	hashes  map[string]map[string]string
	lists   map[string][][]byte
	sets    map[string]map[string]struct{}
	zsets   map[string]map[string]float64
	ttl     map[string]time.Duration
	scripts map[string]ScriptFunc
	strs    map[string]StringScriptFunc
	fail    map[string]error
	calls   map[string]int
}

var _ db.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		strings: make(map[string]string),
		hashes:  make(map[string]map[string]string),
		lists:   make(map[string][][]byte),
		sets:    make(map[string]map[string]struct{}),
		zsets:   make(map[string]map[string]float64),
		ttl:     make(map[string]time.Duration),
		scripts: make(map[string]ScriptFunc),
		strs:    make(map[string]StringScriptFunc),
		fail:    make(map[string]error),
		calls:   make(map[string]int),
	}
}

// HandleScript registers an emulation for a script name.
func (s *Store) HandleScript(name string, fn ScriptFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[name] = fn
}

// HandleStringScript registers an emulation for a script with a string reply.
func (s *Store) HandleStringScript(name string, fn StringScriptFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strs[name] = fn
}

// Fail makes every call of op return err. A nil err clears the failure.
func (s *Store) Fail(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fail, op)
		return
	}
	s.fail[op] = err
}

// Calls returns how many times op was invoked.
func (s *Store) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// TTL returns the last expiry set on key.
func (s *Store) TTL(key string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ttl[key]
}

func (s *Store) enter(op string) error {
	s.calls[op]++
	if err := s.fail[op]; err != nil {
		return &db.Error{Op: op, Err: err}
	}
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() {}

func (s *Store) WaitForReady(context.Context, time.Duration) error { return nil }

func (s *Store) existsLocked(key string) bool {
	if _, ok := s.strings[key]; ok {
		return true
	}
	if h, ok := s.hashes[key]; ok && len(h) > 0 {
		return true
	}
	if l, ok := s.lists[key]; ok && len(l) > 0 {
		return true
	}
	if m, ok := s.sets[key]; ok && len(m) > 0 {
		return true
	}
	if z, ok := s.zsets[key]; ok && len(z) > 0 {
		return true
	}
	return false
}

// DelLocked removes a key of any type. For use inside ScriptFunc.
func (s *Store) DelLocked(key string) bool {
	ok := s.existsLocked(key)
	delete(s.strings, key)
	delete(s.hashes, key)
	delete(s.lists, key)
	delete(s.sets, key)
	delete(s.zsets, key)
	delete(s.ttl, key)
	return ok
}

func (s *Store) Del(_ context.Context, keys ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(db.OpDel); err != nil {
		return 0, err
	}
	var n int64
	for _, k := range keys {
		if s.DelLocked(k) {
			n++
		}
	}
	return n, nil
}

func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(db.OpExists); err != nil {
		return false, err
	}
	return s.existsLocked(key), nil
}

func (s *Store) Expire(_ context.Context, key string, ttl time.Duration, nx bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(db.OpExpire); err != nil {
		return err
	}
	if !s.existsLocked(key) {
		return nil
	}
	if _, has := s.ttl[key]; nx && has {
		return nil
	}
	s.ttl[key] = ttl
	return nil
}

func (s *Store) Scan(_ context.Context, pattern string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(db.OpScan); err != nil {
		return nil, err
	}
	var out []string
	add := func(k string) {
		if ok, _ := path.Match(pattern, k); ok && s.existsLocked(k) {
			out = append(out, k)
		}
	}
	for k := range s.strings {
		add(k)
	}
	for k := range s.hashes {
		add(k)
	}
	for k := range s.lists {
		add(k)
	}
	for k := range s.sets {
		add(k)
	}
	for k := range s.zsets {
		add(k)
	}
	sort.Strings(out)
	return slices.Compact(out), nil
}

func (s *Store) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(db.OpSetNX); err != nil {
		return false, err
	}
	if s.existsLocked(key) {
		return false, nil
	}
	s.strings[key] = value
	s.ttl[key] = ttl
	return true, nil
}

func (s *Store) HSet(_ context.Context, key string, fields map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(db.OpHSet); err != nil {
		return err
	}
	s.HSetLocked(key, fields)
	return nil
}

// HSetLocked writes hash fields. For use inside ScriptFunc.
func (s *Store) HSetLocked(key string, fields map[string]string) {
	if len(fields) == 0 {
		return
	}
	h := s.hashes[key]
	if h == nil {
		h = make(map[string]string)
		s.hashes[key] = h
	}
	for f, v := range fields {
		h[f] = v
	}
}

// HGetLocked reads one hash field. For use inside ScriptFunc.
func (s *Store) HGetLocked(key, field string) (string, bool) {
	v, ok := s.hashes[key][field]
	return v, ok
}

func (s *Store) HGet(_ context.Context, key, field string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(db.OpHGet); err != nil {
		return "", err
	}
	v, ok := s.HGetLocked(key, field)
	if !ok {
		return "", db.ErrKeyNotFound
	}
	return v, nil
}

func (s *Store) HGetAll(_ context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(db.OpHGetAll); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(s.hashes[key]))
	for f, v := range s.hashes[key] {
		out[f] = v
	}
	return out, nil
}

func (s *Store) HIncrBy(_ context.Context, key, field string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(db.OpHIncrBy); err != nil {
		return 0, err
	}
	return s.hincrLocked(key, field, delta)
}

// HIncrByLocked increments a hash field. For use inside script emulations.
func (s *Store) HIncrByLocked(key, field string, delta int64) (int64, error) {
	return s.hincrLocked(key, field, delta)
}

// ExistsLocked reports whether a key holds a value. For use inside script emulations.
func (s *Store) ExistsLocked(key string) bool {
	return s.existsLocked(key)
}

func (s *Store) hincrLocked(key, field string, delta int64) (int64, error) {
	var cur int64
	if v, ok := s.HGetLocked(key, field); ok {
		if _, err := fmt.Sscan(v, &cur); err != nil {
			return 0, fmt.Errorf("hash value is not an integer")
		}
	}
	cur += delta
	s.HSetLocked(key, map[string]string{field: fmt.Sprint(cur)})
	return cur, nil
}

func (s *Store) PushCounted(_ context.Context, p db.CountedPush) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(db.OpMulti); err != nil {
		return 0, err
	}
	s.lists[p.List] = append(s.lists[p.List], slices.Clone(p.Value))
	if _, err := s.hincrLocked(p.Counter, p.Field, 1); err != nil {
		return 0, err
	}
	return int64(len(s.lists[p.List])), nil
}

func (s *Store) lpopLocked(key string) []byte {
	l := s.lists[key]
	if len(l) == 0 {
		return nil
	}
	v := l[0]
	s.lists[key] = l[1:]
	return v
}

// LPopLocked pops the list head or returns nil. For use inside script emulations.
func (s *Store) LPopLocked(key string) []byte {
	return s.lpopLocked(key)
}

func (s *Store) LPop(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(db.OpLPop); err != nil {
		return nil, err
	}
	v := s.lpopLocked(key)
	if v == nil {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (s *Store) LPopMulti(_ context.Context, keys []string) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(db.OpLPop); err != nil {
		return nil, err
	}
	out := make([][]byte, len(keys))
	for i, k := range keys {
		out[i] = s.lpopLocked(k)
	}
	return out, nil
}

func (s *Store) LLen(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(db.OpLLen); err != nil {
		return 0, err
	}
	return int64(len(s.lists[key])), nil
}

func (s *Store) LLenMulti(_ context.Context, keys []string) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(db.OpLLen); err != nil {
		return nil, err
	}
	out := make([]int64, len(keys))
	for i, k := range keys {
		out[i] = int64(len(s.lists[k]))
	}
	return out, nil
}

// List returns a copy of a list's contents.
func (s *Store) List(key string) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.lists[key])
}

func (s *Store) SAdd(_ context.Context, key string, members ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(db.OpSAdd); err != nil {
		return 0, err
	}
	set := s.sets[key]
	if set == nil {
		set = make(map[string]struct{})
		s.sets[key] = set
	}
	var n int64
	for _, m := range members {
		if _, ok := set[m]; !ok {
			set[m] = struct{}{}
			n++
		}
	}
	return n, nil
}

func (s *Store) SCard(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(db.OpSCard); err != nil {
		return 0, err
	}
	return int64(len(s.sets[key])), nil
}

func (s *Store) SPop(_ context.Context, key string, count int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(db.OpSPop); err != nil {
		return nil, err
	}
	set := s.sets[key]
	members := make([]string, 0, len(set))
	for m := range set {
		members = append(members, m)
	}
	rand.Shuffle(len(members), func(i, j int) { members[i], members[j] = members[j], members[i] })
	if int64(len(members)) > count {
		members = members[:count]
	}
	for _, m := range members {
		delete(set, m)
	}
	return members, nil
}

// Members returns a set's members sorted.
func (s *Store) Members(key string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.sets[key]))
	for m := range s.sets[key] {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

func (s *Store) ZAdd(_ context.Context, key string, score float64, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(db.OpZAdd); err != nil {
		return err
	}
	s.ZAddLocked(key, score, member)
	return nil
}

// ZAddLocked sets a member score. For use inside ScriptFunc.
func (s *Store) ZAddLocked(key string, score float64, member string) {
	z := s.zsets[key]
	if z == nil {
		z = make(map[string]float64)
		s.zsets[key] = z
	}
	z[member] = score
}

// ZRemLocked removes a member. For use inside ScriptFunc.
func (s *Store) ZRemLocked(key, member string) {
	delete(s.zsets[key], member)
}

func (s *Store) ZRem(_ context.Context, key string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(db.OpZRem); err != nil {
		return err
	}
	for _, m := range members {
		s.ZRemLocked(key, m)
	}
	return nil
}

// ZRangeLocked returns members with minScore <= score <= maxScore in score order.
func (s *Store) ZRangeLocked(key string, minScore, maxScore float64) []db.ScoredMember {
	var out []db.ScoredMember
	for m, sc := range s.zsets[key] {
		if sc >= minScore && sc <= maxScore {
			out = append(out, db.ScoredMember{Member: m, Score: sc})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score < out[j].Score
		}
		return out[i].Member < out[j].Member
	})
	return out
}

func (s *Store) ZRangeByScore(_ context.Context, key string, minScore, maxScore float64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(db.OpZRangeByScore); err != nil {
		return nil, err
	}
	ms := s.ZRangeLocked(key, minScore, maxScore)
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Member
	}
	return out, nil
}

func (s *Store) ZPopMin(_ context.Context, key string) (db.ScoredMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(db.OpZPopMin); err != nil {
		return db.ScoredMember{}, err
	}
	all := s.ZRangeLocked(key, -1e300, 1e300)
	if len(all) == 0 {
		return db.ScoredMember{}, db.ErrEmpty
	}
	s.ZRemLocked(key, all[0].Member)
	return all[0], nil
}

func (s *Store) ZCard(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(db.OpZCard); err != nil {
		return 0, err
	}
	return int64(len(s.zsets[key])), nil
}

// Score returns a member's score and whether it exists.
func (s *Store) Score(key, member string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.zsets[key][member]
	return v, ok
}

func (s *Store) EvalInt(_ context.Context, script *db.Script, keys, args []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(db.OpEval); err != nil {
		return 0, err
	}
	fn, ok := s.scripts[script.Name]
	if !ok {
		return 0, fmt.Errorf("dbtest: no emulation for script %q", script.Name)
	}
	return fn(s, keys, args)
}

func (s *Store) EvalString(_ context.Context, script *db.Script, keys, args []string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(db.OpEval); err != nil {
		return "", err
	}
	fn, ok := s.strs[script.Name]
	if !ok {
		return "", fmt.Errorf("dbtest: no emulation for script %q", script.Name)
	}
	v, ok, err := fn(s, keys, args)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", db.ErrKeyNotFound
	}
	return v, nil
}
