package verdictstore

import (
	"context"
	"iter"
	"slices"
	"sync"

	"github.com/RyanBlaney/antispoof-pipeline/pkg/verdict"
)

// Memory is an in-process Store. Documents are held encoded so callers
// never share state with the store.
type Memory struct {
	collection string

	mu   sync.RWMutex
	docs map[string][]byte
}

// NewMemory creates an empty in-memory store.
func NewMemory(collection string) *Memory {
	return &Memory{collection: collection, docs: make(map[string][]byte)}
}

func (m *Memory) Upsert(_ context.Context, key string, rec verdict.Record) error {
	doc, err := newDocument(key, rec)
	if err != nil {
		return err
	}
	data, err := encodeDocument(doc)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.docs[string(encodeKey(m.collection, doc.Key))] = data
	m.mu.Unlock()
	return nil
}

func (m *Memory) Get(_ context.Context, key string) (Document, error) {
	m.mu.RLock()
	data, ok := m.docs[string(encodeKey(m.collection, key))]
	m.mu.RUnlock()
	if !ok {
		return Document{}, ErrNotFound
	}
	return decodeDocument(data)
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.docs, string(encodeKey(m.collection, key)))
	m.mu.Unlock()
	return nil
}

func (m *Memory) List(_ context.Context) iter.Seq2[Document, error] {
	return func(yield func(Document, error) bool) {
		m.mu.RLock()
		keys := make([]string, 0, len(m.docs))
		for k := range m.docs {
			keys = append(keys, k)
		}
		values := make(map[string][]byte, len(keys))
		for _, k := range keys {
			values[k] = m.docs[k]
		}
		m.mu.RUnlock()

		slices.Sort(keys)
		for _, k := range keys {
			doc, err := decodeDocument(values[k])
			if !yield(doc, err) || err != nil {
				return
			}
		}
	}
}

func (m *Memory) Close() error { return nil }

var _ Store = (*Memory)(nil)
