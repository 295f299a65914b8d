package storage

import (
	"context"
	"sort"
	"sync"
)

// Memory keeps objects in process. Useful for tests and dry runs.
type Memory struct {
	mu      sync.Mutex
	objects map[string]Object
}

var _ Backend = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{objects: make(map[string]Object)}
}

func (m *Memory) Put(ctx context.Context, key string, obj Object) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body := make([]byte, len(obj.Body))
	copy(body, obj.Body)
	obj.Body = body

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = obj
	return nil
}

func (m *Memory) Get(key string) (Object, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	return obj, ok
}

func (m *Memory) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
