package store

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
)

const memoryShards = 16

// ErrClosed is returned by operations on a closed Memory store.
var ErrClosed = errors.New("store: closed")

// Memory is an in-process Store. It lets a source and a sink in the same process share a
// link record, and backs the tests.
type Memory struct {
	shards [memoryShards]memoryShard
	closed sync.Once
	done   chan struct{}
}

type memoryShard struct {
	mu sync.RWMutex
	m  map[string]string
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	s := &Memory{done: make(chan struct{})}
	for i := range s.shards {
		s.shards[i].m = make(map[string]string)
	}
	return s
}

func (s *Memory) shard(key string) *memoryShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &s.shards[h.Sum32()%memoryShards]
}

func (s *Memory) isClosed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Memory) Get(_ context.Context, key string) (string, bool, error) {
	if s.isClosed() {
		return "", false, ErrClosed
	}
	sh := s.shard(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	v, ok := sh.m[key]
	return v, ok, nil
}

func (s *Memory) Set(_ context.Context, key, value string) error {
	if s.isClosed() {
		return ErrClosed
	}
	sh := s.shard(key)
	sh.mu.Lock()
	sh.m[key] = value
	sh.mu.Unlock()
	return nil
}

// Delete removes key; absent keys are ignored.
func (s *Memory) Delete(key string) {
	sh := s.shard(key)
	sh.mu.Lock()
	delete(sh.m, key)
	sh.mu.Unlock()
}

// Close makes every later operation fail with ErrClosed.
func (s *Memory) Close() error {
	s.closed.Do(func() { close(s.done) })
	return nil
}

// MemoryDialer hands out views of one shared Memory store. Closing a view does not close
// the shared store, so a manager can reconnect after a failed round.
type MemoryDialer struct {
	Store *Memory
}

func (d MemoryDialer) Dial(_ context.Context, _ string) (Store, error) {
	if d.Store.isClosed() {
		return nil, ErrClosed
	}
	return memoryView{d.Store}, nil
}

type memoryView struct{ *Memory }

func (memoryView) Close() error { return nil }
