package repositories

import (
	"maps"
	"sync"

	"github.com/desertthunder/recents/internal/models"
)

// MemoryStore implements [models.CredentialStore] with a process-local map.
type MemoryStore struct {
	mu     sync.Mutex
	keys   Keys
	values map[string]string
}

// NewMemoryStore creates an empty [MemoryStore] for namespace ns
func NewMemoryStore(ns string) *MemoryStore {
	return &MemoryStore{keys: NewKeys(ns), values: make(map[string]string)}
}

func (m *MemoryStore) Load() (models.TokenState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return DecodeTokenState(m.keys, m.values), nil
}

func (m *MemoryStore) Save(s models.TokenState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	maps.Copy(m.values, EncodeTokenState(m.keys, s))
	return nil
}

func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.values)
	return nil
}

// Raw returns a copy of the stored key/value pairs.
func (m *MemoryStore) Raw() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.values)
}
