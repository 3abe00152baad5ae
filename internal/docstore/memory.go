package docstore

import (
	"context"
	"slices"
	"sync"
)

// Memory is an in-process Store. Safe for concurrent use.
type Memory struct {
	mu   sync.RWMutex
	docs map[string]map[string][]byte
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{docs: make(map[string]map[string][]byte)}
}

func (m *Memory) Read(ctx context.Context, collection, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[collection][id]
	if !ok {
		return nil, notFound(collection, id)
	}
	return slices.Clone(doc), nil
}

func (m *Memory) Write(ctx context.Context, collection, id string, doc []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	coll, ok := m.docs[collection]
	if !ok {
		coll = make(map[string][]byte)
		m.docs[collection] = coll
	}
	coll[id] = slices.Clone(doc)
	return nil
}

func (m *Memory) BatchRead(ctx context.Context, collection string, ids []string) (map[string][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]byte, len(ids))
	for _, id := range ids {
		if doc, ok := m.docs[collection][id]; ok {
			out[id] = slices.Clone(doc)
		}
	}
	return out, nil
}

func (m *Memory) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs[collection], id)
	return nil
}

func (m *Memory) List(ctx context.Context, collection string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.docs[collection]))
	for id := range m.docs[collection] {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

// Close is a no-op.
func (m *Memory) Close() error {
	return nil
}
