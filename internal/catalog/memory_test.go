package catalog

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/lustra/kirameki/internal/models"
)

func newItem(id uint64, emb []float32) *models.CatalogItem {
	return &models.CatalogItem{
		ID:        id,
		Name:      fmt.Sprintf("item-%d", id),
		Price:     100,
		Status:    models.StatusActive,
		Embedding: emb,
	}
}

func TestMemoryStore_InsertGet(t *testing.T) {
	store := NewMemoryStore(2)
	ctx := context.Background()

	id, err := store.Insert(ctx, newItem(0, []float32{1, 0}))
	if err != nil {
		t.Fatal(err)
	}
	if id == 0 {
		t.Fatal("expected assigned id")
	}
	got, err := store.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != fmt.Sprintf("item-%d", 0) {
		t.Errorf("name=%q", got.Name)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("timestamps not set")
	}
}

func TestMemoryStore_DuplicateID(t *testing.T) {
	store := NewMemoryStore(2)
	ctx := context.Background()

	if _, err := store.Insert(ctx, newItem(7, []float32{1, 0})); err != nil {
		t.Fatal(err)
	}
	_, err := store.Insert(ctx, newItem(7, []float32{0, 1}))
	if !errors.Is(err, ErrDuplicateID) {
		t.Errorf("err=%v, want ErrDuplicateID", err)
	}
}

func TestMemoryStore_DimensionMismatch(t *testing.T) {
	store := NewMemoryStore(0)
	ctx := context.Background()

	// First insert pins the dimensionality.
	if _, err := store.Insert(ctx, newItem(0, []float32{1, 0, 0})); err != nil {
		t.Fatal(err)
	}
	if store.Dimensions() != 3 {
		t.Fatalf("Dimensions=%d, want 3", store.Dimensions())
	}

	_, err := store.Insert(ctx, newItem(0, []float32{1, 0}))
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("err=%v, want ErrDimensionMismatch", err)
	}

	// The failed insert leaves the catalog unchanged.
	n, _ := store.Count(ctx)
	if n != 1 {
		t.Errorf("Count=%d, want 1", n)
	}
}

func TestMemoryStore_InvalidEmbedding(t *testing.T) {
	store := NewMemoryStore(2)
	ctx := context.Background()

	_, err := store.Insert(ctx, newItem(0, []float32{float32(math.NaN()), 0}))
	if !errors.Is(err, ErrInvalidEmbedding) {
		t.Errorf("NaN: err=%v, want ErrInvalidEmbedding", err)
	}
	_, err = store.Insert(ctx, newItem(0, nil))
	if !errors.Is(err, ErrMissingEmbedding) {
		t.Errorf("nil: err=%v, want ErrMissingEmbedding", err)
	}
}

func TestMemoryStore_UpdateReflectedOnce(t *testing.T) {
	store := NewMemoryStore(2)
	ctx := context.Background()

	id, err := store.Insert(ctx, newItem(0, []float32{1, 0}))
	if err != nil {
		t.Fatal(err)
	}
	updated := newItem(id, []float32{0, 1})
	updated.Name = "replaced"
	if err := store.Update(ctx, id, updated); err != nil {
		t.Fatal(err)
	}

	snap, err := store.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap) != 1 {
		t.Fatalf("snapshot has %d items, want 1", len(snap))
	}
	if snap[0].Name != "replaced" {
		t.Errorf("name=%q, want replaced", snap[0].Name)
	}
	if snap[0].Embedding[0] != 0 || snap[0].Embedding[1] != 1 {
		t.Errorf("embedding=%v", snap[0].Embedding)
	}
}

func TestMemoryStore_UpdateNotFound(t *testing.T) {
	store := NewMemoryStore(2)
	ctx := context.Background()
	if err := store.Update(ctx, 42, newItem(42, []float32{1, 0})); !errors.Is(err, ErrNotFound) {
		t.Errorf("err=%v, want ErrNotFound", err)
	}
	if err := store.Remove(ctx, 42); !errors.Is(err, ErrNotFound) {
		t.Errorf("remove err=%v, want ErrNotFound", err)
	}
}

func TestMemoryStore_IDsNeverReused(t *testing.T) {
	store := NewMemoryStore(2)
	ctx := context.Background()

	id1, _ := store.Insert(ctx, newItem(0, []float32{1, 0}))
	if err := store.Remove(ctx, id1); err != nil {
		t.Fatal(err)
	}
	id2, _ := store.Insert(ctx, newItem(0, []float32{0, 1}))
	if id2 == id1 {
		t.Errorf("id %d was reused after deletion", id1)
	}

	// An explicit high id advances the watermark too.
	if _, err := store.Insert(ctx, newItem(100, []float32{1, 1})); err != nil {
		t.Fatal(err)
	}
	id3, _ := store.Insert(ctx, newItem(0, []float32{1, 1}))
	if id3 <= 100 {
		t.Errorf("assigned id %d did not advance past explicit id 100", id3)
	}
}

func TestMemoryStore_SnapshotIsolation(t *testing.T) {
	store := NewMemoryStore(2)
	ctx := context.Background()

	id, _ := store.Insert(ctx, newItem(0, []float32{1, 0}))
	snap, _ := store.Snapshot(ctx)

	// Mutations after the snapshot must not show up in it.
	if err := store.Remove(ctx, id); err != nil {
		t.Fatal(err)
	}
	if len(snap) != 1 || snap[0].ID != id {
		t.Error("snapshot changed after catalog mutation")
	}
}

func TestMemoryStore_InsertDoesNotAliasCaller(t *testing.T) {
	store := NewMemoryStore(2)
	ctx := context.Background()

	emb := []float32{1, 0}
	id, _ := store.Insert(ctx, newItem(0, emb))
	emb[0] = 99

	got, _ := store.Get(ctx, id)
	if got.Embedding[0] != 1 {
		t.Error("stored embedding aliases caller slice")
	}
}

func TestMemoryStore_ConcurrentInserts(t *testing.T) {
	store := NewMemoryStore(4)
	ctx := context.Background()

	const n = 64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := store.Insert(ctx, newItem(uint64(i+1), []float32{1, 0, 0, float32(i)})); err != nil {
				t.Errorf("insert %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	snap, err := store.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap) != n {
		t.Fatalf("snapshot has %d items, want %d", len(snap), n)
	}
	seen := make(map[uint64]bool)
	for _, item := range snap {
		if seen[item.ID] {
			t.Errorf("duplicate id %d in snapshot", item.ID)
		}
		seen[item.ID] = true
	}
}

func TestMemoryStore_ConcurrentSearchAndMutate(t *testing.T) {
	store := NewMemoryStore(2)
	ctx := context.Background()

	for i := 1; i <= 10; i++ {
		if _, err := store.Insert(ctx, newItem(uint64(i), []float32{1, 0})); err != nil {
			t.Fatal(err)
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if i%2 == 0 {
					snap, err := store.Snapshot(ctx)
					if err != nil {
						t.Errorf("snapshot: %v", err)
						return
					}
					for _, item := range snap {
						if len(item.Embedding) != 2 {
							t.Error("torn record in snapshot")
							return
						}
					}
				} else {
					_, _ = store.Insert(ctx, newItem(0, []float32{0, 1}))
				}
			}
		}(i)
	}
	wg.Wait()
}
