package catalog

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/lustra/kirameki/internal/models"
)

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(t.TempDir()+"/catalog.db", 0)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	item := &models.CatalogItem{
		Name:        "Diamond Pendant",
		Description: "18k white gold",
		ImageURL:    "/images/pendant.jpg",
		Category:    "necklaces",
		Price:       1299.50,
		Features:    []string{"18k gold", "0.5ct diamond"},
		Status:      models.StatusActive,
		Embedding:   []float32{0.1, -0.2, 0.3},
	}
	id, err := store.Insert(ctx, item)
	if err != nil {
		t.Fatal(err)
	}

	got, err := store.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != item.Name || got.Category != item.Category || got.Status != models.StatusActive {
		t.Errorf("got %+v", got)
	}
	if len(got.Features) != 2 || got.Features[1] != "0.5ct diamond" {
		t.Errorf("features=%v", got.Features)
	}
	if len(got.Embedding) != 3 || got.Embedding[1] != -0.2 {
		t.Errorf("embedding=%v", got.Embedding)
	}
}

func TestSQLiteStore_DuplicateAndMismatch(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	if _, err := store.Insert(ctx, newItem(3, []float32{1, 0})); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Insert(ctx, newItem(3, []float32{0, 1})); !errors.Is(err, ErrDuplicateID) {
		t.Errorf("err=%v, want ErrDuplicateID", err)
	}
	if _, err := store.Insert(ctx, newItem(0, []float32{1, 0, 0})); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("err=%v, want ErrDimensionMismatch", err)
	}
	n, _ := store.Count(ctx)
	if n != 1 {
		t.Errorf("Count=%d, want 1", n)
	}
}

func TestSQLiteStore_UpdateRemove(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	id, err := store.Insert(ctx, newItem(0, []float32{1, 0}))
	if err != nil {
		t.Fatal(err)
	}

	updated := newItem(id, []float32{0, 1})
	updated.Status = models.StatusSoldOut
	if err := store.Update(ctx, id, updated); err != nil {
		t.Fatal(err)
	}
	got, _ := store.Get(ctx, id)
	if got.Status != models.StatusSoldOut {
		t.Errorf("status=%q", got.Status)
	}

	if err := store.Remove(ctx, id); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("err=%v, want ErrNotFound", err)
	}
	if err := store.Update(ctx, id, updated); !errors.Is(err, ErrNotFound) {
		t.Errorf("update err=%v, want ErrNotFound", err)
	}
}

func TestSQLiteStore_IDsNeverReused(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	id1, err := store.Insert(ctx, newItem(0, []float32{1, 0}))
	if err != nil {
		t.Fatal(err)
	}
	id2, err := store.Insert(ctx, newItem(0, []float32{0, 1}))
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Remove(ctx, id2); err != nil {
		t.Fatal(err)
	}
	id3, err := store.Insert(ctx, newItem(0, []float32{1, 1}))
	if err != nil {
		t.Fatal(err)
	}
	if id3 == id2 || id3 == id1 {
		t.Errorf("id %d was reused after deletion (ids so far: %d, %d)", id3, id1, id2)
	}

	// An explicit high id advances the watermark too.
	if _, err := store.Insert(ctx, newItem(100, []float32{1, 1})); err != nil {
		t.Fatal(err)
	}
	id4, err := store.Insert(ctx, newItem(0, []float32{0, 1}))
	if err != nil {
		t.Fatal(err)
	}
	if id4 <= 100 {
		t.Errorf("assigned id %d did not advance past explicit id 100", id4)
	}
}

func TestSQLiteStore_ConcurrentAutoIDs(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	const n = 16
	ids := make(chan uint64, n)
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := store.Insert(ctx, newItem(0, []float32{1, 0}))
			if err != nil {
				errs <- err
				return
			}
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)
	close(errs)

	for err := range errs {
		t.Errorf("concurrent insert failed: %v", err)
	}
	seen := make(map[uint64]bool)
	for id := range ids {
		if seen[id] {
			t.Errorf("id %d assigned twice", id)
		}
		seen[id] = true
	}
	count, _ := store.Count(ctx)
	if count != n {
		t.Errorf("Count=%d, want %d", count, n)
	}
}

func TestSQLiteStore_SnapshotOrdered(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	for _, id := range []uint64{5, 2, 9} {
		if _, err := store.Insert(ctx, newItem(id, []float32{1, 0})); err != nil {
			t.Fatal(err)
		}
	}
	snap, err := store.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap) != 3 {
		t.Fatalf("len=%d", len(snap))
	}
	for i := 1; i < len(snap); i++ {
		if snap[i-1].ID >= snap[i].ID {
			t.Errorf("snapshot not ordered by id: %d before %d", snap[i-1].ID, snap[i].ID)
		}
	}
}

func TestEncodeDecodeEmbedding(t *testing.T) {
	in := []float32{0, 1.5, -2.25, 3e-7}
	out := decodeEmbedding(encodeEmbedding(in))
	if len(out) != len(in) {
		t.Fatalf("len=%d", len(out))
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("out[%d]=%v, want %v", i, out[i], in[i])
		}
	}
}
