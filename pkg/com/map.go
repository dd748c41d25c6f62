package com

import (
	"errors"
	"sync"
)

// Map defines a concurrent-safe map structure.
type Map[K comparable, V any] struct {
	m  map[K]V
	mu sync.Mutex
}

var ErrNotFound = errors.New("not found")

func NewMap[K comparable, V any]() *Map[K, V] { return &Map[K, V]{m: make(map[K]V, 10)} }

func (m *Map[K, _]) Has(key K) bool     { _, err := m.Find(key); return err == nil }
func (m *Map[_, _]) IsEmpty() bool      { return m.Len() == 0 }
func (m *Map[_, _]) Len() int           { m.mu.Lock(); defer m.mu.Unlock(); return len(m.m) }
func (m *Map[K, V]) Put(key K, value V) { m.mu.Lock(); m.m[key] = value; m.mu.Unlock() }
func (m *Map[K, _]) RemoveByKey(key K)  { m.mu.Lock(); delete(m.m, key); m.mu.Unlock() }

// Pop extracts and removes a value by its key.
func (m *Map[K, V]) Pop(key K) (v V, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok = m.m[key]
	delete(m.m, key)
	return
}

// Find searches for the first match by a specified key value,
// returns ErrNotFound otherwise.
func (m *Map[K, V]) Find(key K) (v V, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.m[key]; ok {
		return c, nil
	}
	return v, ErrNotFound
}

// Values returns a copy of all the values,
// so the caller may iterate without holding the lock.
func (m *Map[_, V]) Values() []V {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]V, 0, len(m.m))
	for _, v := range m.m {
		out = append(out, v)
	}
	return out
}

type NetClient interface {
	Id() Uid
}

// NetMap keeps network clients by their ids.
type NetMap[T NetClient] struct{ *Map[Uid, T] }

func NewNetMap[T NetClient]() NetMap[T] { return NetMap[T]{Map: NewMap[Uid, T]()} }

func (m NetMap[T]) Add(client T)    { m.Put(client.Id(), client) }
func (m NetMap[T]) Remove(client T) { m.RemoveByKey(client.Id()) }
