// Package keyword provides text lookup over catalog item metadata.
package keyword

import (
	"context"

	"github.com/lustra/kirameki/internal/models"
)

// Index defines text search operations over catalog metadata. It only
// filters the catalog listing; visual ranking never consults it.
type Index interface {
	Index(ctx context.Context, item *models.CatalogItem) error
	Search(ctx context.Context, query string, limit int) ([]*Hit, error)
	Delete(ctx context.Context, id uint64) error
	Count() (uint64, error)
	Close() error
}

// Hit is a single text search hit.
type Hit struct {
	ID    uint64
	Score float64
}
