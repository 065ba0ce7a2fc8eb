package storage

import (
	"context"
	"sort"
	"sync"
)

// WriteHook runs before a memory store applies a write. Returning an error
// fails the write. Tests use it to hold writes in flight.
type WriteHook func(ctx context.Context, op, key string) error

// faults holds injected failures keyed by operation name.
type faults struct {
	mu     sync.Mutex
	byOp   map[string]error
	before WriteHook
}

func (f *faults) set(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.byOp == nil {
		f.byOp = make(map[string]error)
	}
	if err == nil {
		delete(f.byOp, op)
		return
	}
	f.byOp[op] = err
}

func (f *faults) check(ctx context.Context, op, key string) error {
	if err := ctx.Err(); err != nil {
		return Unavailable(op, key, err)
	}
	f.mu.Lock()
	err := f.byOp[op]
	f.mu.Unlock()
	if err != nil {
		return Unavailable(op, key, err)
	}
	return nil
}

func (f *faults) hook(ctx context.Context, op, key string) error {
	f.mu.Lock()
	before := f.before
	f.mu.Unlock()
	if before == nil {
		return nil
	}
	if err := before(ctx, op, key); err != nil {
		return Unavailable(op, key, err)
	}
	return nil
}

// MemorySecureStore is an in-memory SecureStore intended for unit tests only.
// Each instance is independent; nothing is shared between instances.
type MemorySecureStore struct {
	mu     sync.RWMutex
	values map[string]string
	faults faults
}

// NewMemorySecureStore returns an empty MemorySecureStore.
func NewMemorySecureStore() *MemorySecureStore {
	return &MemorySecureStore{values: make(map[string]string)}
}

// FailOn makes every call to op ("SetValue", "GetValue", "DeleteValue") fail
// with err. A nil err clears the failure.
func (s *MemorySecureStore) FailOn(op string, err error) { s.faults.set(op, err) }

// SetBeforeWrite installs a hook that runs before every write.
func (s *MemorySecureStore) SetBeforeWrite(h WriteHook) {
	s.faults.mu.Lock()
	s.faults.before = h
	s.faults.mu.Unlock()
}

func (s *MemorySecureStore) SetValue(ctx context.Context, key, value string) error {
	if err := s.faults.check(ctx, "SetValue", key); err != nil {
		return err
	}
	if err := s.faults.hook(ctx, "SetValue", key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *MemorySecureStore) GetValue(ctx context.Context, key string) (string, bool, error) {
	if err := s.faults.check(ctx, "GetValue", key); err != nil {
		return "", false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *MemorySecureStore) DeleteValue(ctx context.Context, key string) error {
	if err := s.faults.check(ctx, "DeleteValue", key); err != nil {
		return err
	}
	if err := s.faults.hook(ctx, "DeleteValue", key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

// Snapshot returns a copy of the stored values.
func (s *MemorySecureStore) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// MemoryKeyValueStore is an in-memory KeyValueStore intended for unit tests only.
type MemoryKeyValueStore struct {
	mu     sync.RWMutex
	items  map[string]string
	writes int
	faults faults
}

// NewMemoryKeyValueStore returns an empty MemoryKeyValueStore.
func NewMemoryKeyValueStore() *MemoryKeyValueStore {
	return &MemoryKeyValueStore{items: make(map[string]string)}
}

// FailOn makes every call to op (a KeyValueStore method name) fail with err.
// A nil err clears the failure.
func (s *MemoryKeyValueStore) FailOn(op string, err error) { s.faults.set(op, err) }

// SetBeforeWrite installs a hook that runs before every write.
func (s *MemoryKeyValueStore) SetBeforeWrite(h WriteHook) {
	s.faults.mu.Lock()
	s.faults.before = h
	s.faults.mu.Unlock()
}

func (s *MemoryKeyValueStore) SetItem(ctx context.Context, key, value string) error {
	return s.setMany(ctx, "SetItem", []Pair{{Key: key, Value: value}})
}

func (s *MemoryKeyValueStore) GetItem(ctx context.Context, key string) (string, bool, error) {
	if err := s.faults.check(ctx, "GetItem", key); err != nil {
		return "", false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	return v, ok, nil
}

func (s *MemoryKeyValueStore) RemoveItem(ctx context.Context, key string) error {
	return s.removeMany(ctx, "RemoveItem", []string{key})
}

func (s *MemoryKeyValueStore) SetMany(ctx context.Context, pairs []Pair) error {
	return s.setMany(ctx, "SetMany", pairs)
}

// setMany applies pairs, injecting faults and errors under op.
func (s *MemoryKeyValueStore) setMany(ctx context.Context, op string, pairs []Pair) error {
	key := firstKey(pairs)
	if err := s.faults.check(ctx, op, key); err != nil {
		return err
	}
	if err := s.faults.hook(ctx, op, key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range pairs {
		s.items[p.Key] = p.Value
	}
	s.writes++
	return nil
}

func (s *MemoryKeyValueStore) GetMany(ctx context.Context, keys []string) ([]Item, error) {
	if err := s.faults.check(ctx, "GetMany", ""); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]Item, 0, len(keys))
	for _, k := range keys {
		v, ok := s.items[k]
		result = append(result, Item{Key: k, Value: v, Found: ok})
	}
	return result, nil
}

func (s *MemoryKeyValueStore) RemoveMany(ctx context.Context, keys []string) error {
	return s.removeMany(ctx, "RemoveMany", keys)
}

func (s *MemoryKeyValueStore) removeMany(ctx context.Context, op string, keys []string) error {
	key := ""
	if len(keys) > 0 {
		key = keys[0]
	}
	if err := s.faults.check(ctx, op, key); err != nil {
		return err
	}
	if err := s.faults.hook(ctx, op, key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.items, k)
	}
	s.writes++
	return nil
}

func (s *MemoryKeyValueStore) ListKeys(ctx context.Context) ([]string, error) {
	if err := s.faults.check(ctx, "ListKeys", ""); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.items))
	for k := range s.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Snapshot returns a copy of the stored items.
func (s *MemoryKeyValueStore) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.items))
	for k, v := range s.items {
		out[k] = v
	}
	return out
}

// Writes returns the number of writes applied so far.
func (s *MemoryKeyValueStore) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

func firstKey(pairs []Pair) string {
	if len(pairs) == 0 {
		return ""
	}
	return pairs[0].Key
}
