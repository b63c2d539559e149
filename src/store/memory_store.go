package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memoryStore keeps documents in process memory. It backs the "memory" data
// backend and doubles as the substitutable fake in tests.
type memoryStore struct {
	mu          sync.Mutex
	collections map[string]map[string]Record
	hub         *hub

	// FailNextWith, when set, makes the next mutation fail with that kind.
	// Test hook only; zero value disables it.
	failNext ErrorKind
}

// NewMemoryStore creates an empty in-memory DocumentStore.
func NewMemoryStore() DocumentStore {
	s := &memoryStore{collections: make(map[string]map[string]Record)}
	s.hub = newHub(s.list)
	return s
}

// NewFailingMemoryStore creates a memory store whose next mutation fails with
// kind. Used by tests exercising collaborator-error paths.
func NewFailingMemoryStore(kind ErrorKind) DocumentStore {
	s := &memoryStore{collections: make(map[string]map[string]Record), failNext: kind}
	s.hub = newHub(s.list)
	return s
}

func (s *memoryStore) takeFailure(op string) error {
	if s.failNext == "" {
		return nil
	}
	kind := s.failNext
	s.failNext = ""
	return &Error{Kind: kind, Op: op}
}

func (s *memoryStore) Create(ctx context.Context, collection, ownerID string, data json.RawMessage) (string, error) {
	if collection == "" || ownerID == "" || len(data) == 0 {
		return "", &Error{Kind: KindInvalidArgument, Op: "create"}
	}

	s.mu.Lock()
	if err := s.takeFailure("create"); err != nil {
		s.mu.Unlock()
		return "", err
	}
	docs, ok := s.collections[collection]
	if !ok {
		docs = make(map[string]Record)
		s.collections[collection] = docs
	}
	rec := Record{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		CreatedAt: time.Now().UTC(),
		Data:      append(json.RawMessage(nil), data...),
	}
	docs[rec.ID] = rec
	s.mu.Unlock()

	s.hub.broadcast(collection, ownerID)
	return rec.ID, nil
}

func (s *memoryStore) Update(ctx context.Context, collection, id string, data json.RawMessage) error {
	if len(data) == 0 {
		return &Error{Kind: KindInvalidArgument, Op: "update"}
	}

	s.mu.Lock()
	if err := s.takeFailure("update"); err != nil {
		s.mu.Unlock()
		return err
	}
	rec, ok := s.collections[collection][id]
	if !ok {
		s.mu.Unlock()
		return &Error{Kind: KindNotFound, Op: "update"}
	}
	rec.Data = append(json.RawMessage(nil), data...)
	s.collections[collection][id] = rec
	ownerID := rec.OwnerID
	s.mu.Unlock()

	s.hub.broadcast(collection, ownerID)
	return nil
}

func (s *memoryStore) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	if err := s.takeFailure("delete"); err != nil {
		s.mu.Unlock()
		return err
	}
	rec, ok := s.collections[collection][id]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	delete(s.collections[collection], id)
	ownerID := rec.OwnerID
	s.mu.Unlock()

	s.hub.broadcast(collection, ownerID)
	return nil
}

func (s *memoryStore) GetOne(ctx context.Context, collection, id string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.collections[collection][id]
	if !ok {
		return nil, &Error{Kind: KindNotFound, Op: "getOne"}
	}
	out := rec
	out.Data = append(json.RawMessage(nil), rec.Data...)
	return &out, nil
}

func (s *memoryStore) List(ctx context.Context, collection string, filter Filter) (Snapshot, error) {
	return s.list(collection, filter)
}

func (s *memoryStore) Subscribe(collection string, filter Filter) (<-chan Snapshot, UnsubscribeFunc) {
	return s.hub.subscribe(collection, filter)
}

func (s *memoryStore) Close() error {
	s.hub.close()
	return nil
}

func (s *memoryStore) list(collection string, filter Filter) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{}
	for _, rec := range s.collections[collection] {
		if filter.OwnerID != "" && rec.OwnerID != filter.OwnerID {
			continue
		}
		out := rec
		out.Data = append(json.RawMessage(nil), rec.Data...)
		snap = append(snap, out)
	}
	sort.Slice(snap, func(i, j int) bool {
		if !snap[i].CreatedAt.Equal(snap[j].CreatedAt) {
			return snap[i].CreatedAt.After(snap[j].CreatedAt)
		}
		return snap[i].ID > snap[j].ID
	})
	return snap, nil
}
