package persistence

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/tkoskine/stratum/pkg/api"
)

// InMemoryStore is a goroutine-safe implementation of DocumentStore and
// CheckpointStore backed by maps. It is the default for tests and for runs
// that do not need durability.
type InMemoryStore struct {
	mu          sync.RWMutex
	docs        map[string]api.Document
	order       []string
	checkpoints map[string][]byte
}

// NewInMemoryStore creates a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		docs:        make(map[string]api.Document),
		checkpoints: make(map[string][]byte),
	}
}

var (
	_ DocumentStore   = (*InMemoryStore)(nil)
	_ CheckpointStore = (*InMemoryStore)(nil)
)

func (s *InMemoryStore) Put(ctx context.Context, doc api.Document) (string, error) {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.docs[doc.ID]; exists {
		return "", api.ErrDuplicateID
	}
	s.docs[doc.ID] = doc
	s.order = append(s.order, doc.ID)
	return doc.ID, nil
}

func (s *InMemoryStore) Get(ctx context.Context, id string) (api.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[id]
	if !ok {
		return api.Document{}, api.ErrNotFound
	}
	return doc, nil
}

func (s *InMemoryStore) List(ctx context.Context, filter MetadataFilter) ([]api.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]api.Document, 0, len(s.order))
	for _, id := range s.order {
		doc := s.docs[id]
		if filter == nil || filter(doc.Metadata) {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (s *InMemoryStore) Save(ctx context.Context, graph string, st api.State) error {
	data, err := EncodeState(st)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[graph] = data
	return nil
}

func (s *InMemoryStore) Load(ctx context.Context, graph string) (api.State, bool, error) {
	s.mu.RLock()
	data, ok := s.checkpoints[graph]
	s.mu.RUnlock()

	if !ok {
		return api.State{}, false, nil
	}
	st, err := DecodeState(data)
	if err != nil {
		return api.State{}, false, err
	}
	return st, true, nil
}

func (s *InMemoryStore) Delete(ctx context.Context, graph string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.checkpoints, graph)
	return nil
}
