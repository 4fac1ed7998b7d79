package vector

import (
	"context"
	"fmt"
	"sort"

	"github.com/lustra/kirameki/internal/models"
)

// cancelCheckInterval is how many items are scanned between context checks.
const cancelCheckInterval = 1024

// LinearIndex is the exact reference ranker: a full scan computing the score
// of every snapshot item. Correct and fast enough for small-to-medium
// catalogs; larger catalogs can substitute an approximate index behind the
// same Index contract.
type LinearIndex struct{}

// NewLinearIndex creates a linear-scan ranker.
func NewLinearIndex() *LinearIndex {
	return &LinearIndex{}
}

// Rank scores every item against the query and returns the top
// min(k, len(items)) results. k <= 0 returns an empty slice, never an error.
// A snapshot item whose embedding length differs from the query is an
// invariant violation and fails the whole request.
func (ix *LinearIndex) Rank(ctx context.Context, query []float32, items []*models.CatalogItem, k int) ([]*models.SearchResult, error) {
	if k < 0 {
		k = 0
	}
	if k > len(items) {
		k = len(items)
	}
	if k == 0 {
		return []*models.SearchResult{}, nil
	}

	scored := make([]*models.SearchResult, 0, len(items))
	for i, item := range items {
		if i%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if len(item.Embedding) != len(query) {
			return nil, fmt.Errorf("snapshot item %d has dimension %d, query has %d", item.ID, len(item.Embedding), len(query))
		}
		scored = append(scored, &models.SearchResult{
			Item:  item,
			Score: Score(query, item.Embedding),
		})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Item.ID < scored[j].Item.ID
	})

	scored = scored[:k]
	for i, r := range scored {
		r.Rank = i + 1
	}
	return scored, nil
}
