// Package catalog provides the catalog store: the single shared mutable
// resource holding (id, embedding, metadata) records for visual search.
package catalog

import (
	"context"
	"errors"

	"github.com/lustra/kirameki/internal/models"
)

var (
	// ErrNotFound is returned when no item with the given id exists.
	ErrNotFound = errors.New("catalog: item not found")

	// ErrDuplicateID is returned when inserting an item whose id is already present.
	ErrDuplicateID = errors.New("catalog: duplicate item id")

	// ErrDimensionMismatch is returned when an embedding's length differs from
	// the store's dimensionality.
	ErrDimensionMismatch = errors.New("catalog: embedding dimension mismatch")

	// ErrInvalidEmbedding is returned when an embedding contains NaN or infinite values.
	ErrInvalidEmbedding = errors.New("catalog: embedding contains non-finite values")

	// ErrMissingEmbedding is returned when an item has no embedding at all.
	ErrMissingEmbedding = errors.New("catalog: item has no embedding")
)

// Store defines catalog persistence operations. Implementations must be safe
// for concurrent readers and writers; Snapshot always reflects a set of
// completed writes, never a partially applied one.
type Store interface {
	// Insert adds an item and returns its id. When item.ID is 0 the store
	// assigns the next id. Ids are never reused within a process lifetime.
	Insert(ctx context.Context, item *models.CatalogItem) (uint64, error)

	// Update replaces the item with the given id.
	Update(ctx context.Context, id uint64, item *models.CatalogItem) error

	// Remove deletes the item with the given id.
	Remove(ctx context.Context, id uint64) error

	// Get returns the item with the given id.
	Get(ctx context.Context, id uint64) (*models.CatalogItem, error)

	// Snapshot returns a consistent point-in-time view of all items,
	// ordered by ascending id. The returned items must not be mutated.
	Snapshot(ctx context.Context) ([]*models.CatalogItem, error)

	// Count returns the number of items.
	Count(ctx context.Context) (int, error)

	// Dimensions returns the embedding dimensionality, or 0 when no
	// dimension has been pinned yet.
	Dimensions() int

	Close() error
}
