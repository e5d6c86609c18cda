// Package kv is the client's durable key-value storage: the place a guest
// identifier and the auth session token survive process restarts.
package kv

import (
	"errors"
	"sync"
)

var ErrNotFound = errors.New("kv: key not found")

// Store gets, sets and removes string values by key. Remove of a missing
// key is not an error.
type Store interface {
	Get(key string) (string, error)
	Set(key string, value string) error
	Remove(key string) error
}

// MemoryStore keeps values in process memory only.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

func (m *MemoryStore) Get(key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *MemoryStore) Set(key string, value string) error {
	m.mu.Lock()
	m.data[key] = value
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Remove(key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}
