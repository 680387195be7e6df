package cache

import (
	"sync"
)

// KeyedMutex provides an exclusive critical section per key.  Operations for
// different keys proceed in parallel, operations for the same key are
// serialized.  Lock entries are reference counted and dropped once the last
// holder unlocks, so the map does not grow with the key space.
type KeyedMutex[K comparable] struct {
	mu    sync.Mutex
	locks map[K]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func NewKeyedMutex[K comparable]() *KeyedMutex[K] {
	return &KeyedMutex[K]{
		locks: map[K]*keyedLock{},
	}
}

func (km *KeyedMutex[K]) Lock(key K) {
	km.mu.Lock()
	l, found := km.locks[key]
	if !found {
		l = &keyedLock{}
		km.locks[key] = l
	}
	l.refs++
	km.mu.Unlock()
	l.mu.Lock()
}

func (km *KeyedMutex[K]) Unlock(key K) {
	km.mu.Lock()
	l := km.locks[key]
	l.refs--
	if l.refs == 0 {
		delete(km.locks, key)
	}
	km.mu.Unlock()
	l.mu.Unlock()
}

// With runs fn while holding the lock for key.
func (km *KeyedMutex[K]) With(key K, fn func()) {
	km.Lock(key)
	defer km.Unlock(key)
	fn()
}
