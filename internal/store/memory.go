package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// MemoryStore is a thread-safe in-memory document registry. With a non-zero
// TTL, documents untouched for longer than the TTL are evicted by Cleanup.
type MemoryStore struct {
	mu   sync.Mutex
	docs map[string]*Document
	ttl  time.Duration
	now  func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]*Document),
		ttl:  ttl,
		now:  time.Now,
	}
}

func (s *MemoryStore) Create(_ context.Context, doc Document) (*Document, error) {
	if err := checkRoot(doc.Root); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if doc.ID == "" {
		doc.ID = NewID()
	}
	if _, exists := s.docs[doc.ID]; exists {
		return nil, fmt.Errorf("create document %s: %w", doc.ID, ErrVersionConflict)
	}
	now := s.now().UTC()
	doc.Version = 1
	doc.CreatedAt = now
	doc.UpdatedAt = now
	s.docs[doc.ID] = &doc
	out := doc
	return &out, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("get document %s: %w", id, ErrNotFound)
	}
	out := *d
	return &out, nil
}

func (s *MemoryStore) List(_ context.Context) ([]Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Summary, 0, len(s.docs))
	for _, d := range s.docs {
		out = append(out, summarize(d))
	}
	slices.SortFunc(out, func(a, b Summary) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *MemoryStore) Update(_ context.Context, id string, version int64, fn UpdateFunc) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("update document %s: %w", id, ErrNotFound)
	}
	if version != 0 && version != d.Version {
		return nil, fmt.Errorf("update document %s at version %d (current %d): %w", id, version, d.Version, ErrVersionConflict)
	}

	root, err := fn(d.Root)
	if err != nil {
		return nil, err
	}
	if root == nil {
		delete(s.docs, id)
		return nil, nil
	}
	if err := checkRoot(root); err != nil {
		return nil, fmt.Errorf("update document %s: %w", id, err)
	}

	next := *d
	next.Root = root
	next.Version++
	next.UpdatedAt = s.now().UTC()
	s.docs[id] = &next
	out := next
	return &out, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; !ok {
		return fmt.Errorf("delete document %s: %w", id, ErrNotFound)
	}
	delete(s.docs, id)
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// Cleanup removes expired documents and reports how many were dropped.
func (s *MemoryStore) Cleanup() int {
	if s.ttl <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for id, d := range s.docs {
		if now.Sub(d.UpdatedAt) > s.ttl {
			delete(s.docs, id)
			n++
		}
	}
	return n
}

// RunCleanup calls Cleanup every interval until ctx is done.
func (s *MemoryStore) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Cleanup()
		}
	}
}
