package backup

import (
	"context"
	"sync"

	"github.com/goliatone/go-ssar/layering"
)

// MemoryStore is an in-process Store for tests and short-lived sessions.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]map[string]Entry
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]map[string]Entry)}
}

// PutIfAbsent implements Store.
func (s *MemoryStore) PutIfAbsent(_ context.Context, namespace string, entry Entry) (bool, error) {
	key, err := refFor(namespace, entry).Identifier()
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.records == nil {
		s.records = make(map[string]map[string]Entry)
	}
	bucket := s.records[namespace]
	if bucket == nil {
		bucket = make(map[string]Entry)
		s.records[namespace] = bucket
	}
	if _, exists := bucket[key]; exists {
		return false, nil
	}
	bucket[key] = cloneEntry(entry)
	return true, nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, namespace, guid, attribute string) (Entry, bool, error) {
	key, err := Ref{Namespace: namespace, GUID: guid, Attribute: attribute}.Identifier()
	if err != nil {
		return Entry{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.records[namespace][key]
	if !ok {
		return Entry{}, false, nil
	}
	return cloneEntry(entry), true, nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context, namespace string) ([]Entry, error) {
	if err := validateNamespace(namespace); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	bucket := s.records[namespace]
	out := make([]Entry, 0, len(bucket))
	for _, entry := range bucket {
		out = append(out, cloneEntry(entry))
	}
	sortEntries(out)
	return out, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, namespace, guid, attribute string) error {
	key, err := Ref{Namespace: namespace, GUID: guid, Attribute: attribute}.Identifier()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records[namespace], key)
	return nil
}

// Clear implements Store.
func (s *MemoryStore) Clear(_ context.Context, namespace string) (int, error) {
	if err := validateNamespace(namespace); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.records[namespace])
	delete(s.records, namespace)
	return n, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }

func cloneEntry(entry Entry) Entry {
	entry.Original = layering.Clone(entry.Original)
	return entry
}
