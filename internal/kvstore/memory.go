package kvstore

import (
	"context"
	"sync"
)

// Memory is a process-local profile store. It backs tests and serves as the
// failover fallback when redis degrades.
type Memory struct {
	mu       sync.RWMutex
	data     map[string]string
	watchers watcherSet
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

func (m *Memory) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	val, ok := m.data[key]
	return val, ok, nil
}

func (m *Memory) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	m.data[key] = value
	m.mu.Unlock()

	m.watchers.notify(key)
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	_, existed := m.data[key]
	delete(m.data, key)
	m.mu.Unlock()

	if existed {
		m.watchers.notify(key)
	}
	return nil
}

func (m *Memory) Watch() <-chan string {
	return m.watchers.subscribe()
}

func (m *Memory) Close() error {
	m.watchers.close()
	return nil
}
