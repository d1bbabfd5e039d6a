package syncx

import "sync"

// List is an append-ordered slice safe for concurrent use. Readers take a
// Snapshot and iterate it without holding the lock, so writers never block
// on a slow consumer.
type List[T any] struct {
	mu    sync.RWMutex
	items []T
}

// Append adds v at the end.
func (l *List[T]) Append(v T) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items, v)
}

// Snapshot returns a copy of the current contents.
func (l *List[T]) Snapshot() []T {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.items) == 0 {
		return nil
	}
	out := make([]T, len(l.items))
	copy(out, l.items)
	return out
}

// Len returns the number of items.
func (l *List[T]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

// Clear removes every item and returns how many there were.
func (l *List[T]) Clear() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := len(l.items)
	l.items = nil
	return n
}

// RemoveFunc deletes the first item for which match returns true.
func (l *List[T]) RemoveFunc(match func(T) bool) (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, v := range l.items {
		if match(v) {
			l.items = append(l.items[:i:i], l.items[i+1:]...)
			return v, true
		}
	}
	var zero T
	return zero, false
}

// Map is a mutex-guarded map.
type Map[K comparable, V any] struct {
	mu sync.Mutex
	m  map[K]V
}

// Load returns the value stored for k.
func (m *Map[K, V]) Load(k K) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.m[k]
	return v, ok
}

// Store sets the value for k.
func (m *Map[K, V]) Store(k K, v V) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.m == nil {
		m.m = make(map[K]V)
	}
	m.m[k] = v
}

// Delete removes k.
func (m *Map[K, V]) Delete(k K) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.m, k)
}

// Reset drops every entry.
func (m *Map[K, V]) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.m = nil
}
