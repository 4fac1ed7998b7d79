package vector

import (
	"context"

	"github.com/lustra/kirameki/internal/models"
)

// Index ranks a catalog snapshot against a query embedding and returns the
// top-k results, strictly descending by score with ties broken by ascending
// item id. Implementations must not mutate the snapshot.
type Index interface {
	Rank(ctx context.Context, query []float32, items []*models.CatalogItem, k int) ([]*models.SearchResult, error)
}
