package tokenstore

import (
	"context"
	"sync"
)

// MemoryStore keeps tokens in process memory. Nothing survives a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]string, len(Keys))}
}

func (m *MemoryStore) Get(_ context.Context, name string) (string, bool, error) {
	if !validKey(name) {
		return "", false, ErrUnknownKey
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v := m.entries[name]
	return v, v != "", nil
}

func (m *MemoryStore) Set(_ context.Context, name, value string) error {
	if !validKey(name) {
		return ErrUnknownKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if value == "" {
		delete(m.entries, name)
		return nil
	}
	m.entries[name] = value
	return nil
}

func (m *MemoryStore) SetPair(_ context.Context, access, refresh string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[KeyAccess] = access
	m.entries[KeyRefresh] = refresh
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, name string) error {
	if !validKey(name) {
		return ErrUnknownKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, name)
	return nil
}

func (m *MemoryStore) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.entries)
	return nil
}
