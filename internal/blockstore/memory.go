// ABOUTME: In-memory BlockStore for tests
// ABOUTME: Supports an injectable failure hook to simulate host storage errors

package blockstore

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Memory is a map-backed BlockStore. Safe for concurrent use.
type Memory struct {
	mu     sync.RWMutex
	blocks map[string][]byte
	puts   int
	closed bool
	fail   func(key string) error
}

// NewMemory creates an empty in-memory block store.
func NewMemory() *Memory {
	return &Memory{blocks: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, false, ErrClosed
	}
	data, ok := m.blocks[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, true, nil
}

func (m *Memory) Put(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.fail != nil {
		if err := m.fail(key); err != nil {
			return err
		}
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	m.blocks[key] = buf
	m.puts++
	return nil
}

func (m *Memory) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	var keys []string
	for k := range m.blocks {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// SetFailPut installs a hook consulted before every Put; a non-nil
// return is reported as the Put error and nothing is stored.
// Pass nil to clear it.
func (m *Memory) SetFailPut(fn func(key string) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = fn
}

// Puts reports how many Put calls succeeded.
func (m *Memory) Puts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.puts
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

var _ BlockStore = (*Memory)(nil)
