package catalog

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lustra/kirameki/internal/models"
	"github.com/lustra/kirameki/pkg/utils"
)

// MemoryStore is an in-memory catalog store guarded by a RWMutex.
//
// Stored items are never mutated in place: Insert and Update put a fresh copy
// into the map, so snapshot readers holding pointers from a previous Snapshot
// never observe a torn record.
type MemoryStore struct {
	dimensions int
	items      map[uint64]*models.CatalogItem
	nextID     uint64
	mu         sync.RWMutex
}

// NewMemoryStore creates an in-memory store. dimensions 0 means the first
// inserted item pins the dimensionality.
func NewMemoryStore(dimensions int) *MemoryStore {
	return &MemoryStore{
		dimensions: dimensions,
		items:      make(map[uint64]*models.CatalogItem),
		nextID:     1,
	}
}

// validateEmbedding checks presence, dimensionality, and finiteness.
// Caller must hold the write lock (dimension pinning mutates state).
func (s *MemoryStore) validateEmbedding(emb []float32) error {
	if len(emb) == 0 {
		return ErrMissingEmbedding
	}
	if !utils.AllFinite(emb) {
		return ErrInvalidEmbedding
	}
	if s.dimensions == 0 {
		s.dimensions = len(emb)
		return nil
	}
	if len(emb) != s.dimensions {
		return ErrDimensionMismatch
	}
	return nil
}

// Insert adds an item. When item.ID is 0 the next id is assigned. Explicit
// ids advance the watermark so deleted ids are never handed out again.
func (s *MemoryStore) Insert(ctx context.Context, item *models.CatalogItem) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item.ID != 0 {
		if _, ok := s.items[item.ID]; ok {
			return 0, ErrDuplicateID
		}
	}
	if err := s.validateEmbedding(item.Embedding); err != nil {
		return 0, err
	}

	stored := cloneItem(item)
	if stored.ID == 0 {
		stored.ID = s.nextID
	}
	if stored.ID >= s.nextID {
		s.nextID = stored.ID + 1
	}
	// Items loaded from persistent storage keep their timestamps; fresh
	// inserts get stamped here.
	now := time.Now()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = now
	}
	s.items[stored.ID] = stored
	return stored.ID, nil
}

// Update replaces the item with the given id. The stored record keeps its
// original id and creation time.
func (s *MemoryStore) Update(ctx context.Context, id uint64, item *models.CatalogItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.items[id]
	if !ok {
		return ErrNotFound
	}
	if err := s.validateEmbedding(item.Embedding); err != nil {
		return err
	}

	stored := cloneItem(item)
	stored.ID = id
	stored.CreatedAt = old.CreatedAt
	stored.UpdatedAt = time.Now()
	s.items[id] = stored
	return nil
}

// Remove deletes the item with the given id. The id watermark is unchanged,
// so the id is never reused.
func (s *MemoryStore) Remove(ctx context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; !ok {
		return ErrNotFound
	}
	delete(s.items, id)
	return nil
}

// Get returns the item with the given id.
func (s *MemoryStore) Get(ctx context.Context, id uint64) (*models.CatalogItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return item, nil
}

// Snapshot returns all items ordered by ascending id. The slice is fresh;
// the items are the immutable stored copies, safe to read without the lock.
func (s *MemoryStore) Snapshot(ctx context.Context) ([]*models.CatalogItem, error) {
	s.mu.RLock()
	items := make([]*models.CatalogItem, 0, len(s.items))
	for _, item := range s.items {
		items = append(items, item)
	}
	s.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

// Count returns the number of items.
func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items), nil
}

// Dimensions returns the pinned dimensionality (0 when no item has been
// inserted and no dimension was configured).
func (s *MemoryStore) Dimensions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimensions
}

// Close is a no-op for MemoryStore.
func (s *MemoryStore) Close() error {
	return nil
}

// cloneItem deep-copies an item so stored state cannot alias caller slices.
func cloneItem(item *models.CatalogItem) *models.CatalogItem {
	clone := *item
	if item.Embedding != nil {
		clone.Embedding = make([]float32, len(item.Embedding))
		copy(clone.Embedding, item.Embedding)
	}
	if item.Features != nil {
		clone.Features = make([]string, len(item.Features))
		copy(clone.Features, item.Features)
	}
	return &clone
}
