package keyword

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"

	"github.com/lustra/kirameki/internal/models"
)

// BleveIndex implements Index using Bleve over item name, description,
// category, details, and features.
type BleveIndex struct {
	index bleve.Index
}

// itemDoc is the projection of a catalog item that gets text-indexed.
type itemDoc struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Details     string   `json:"details"`
	Features    []string `json:"features"`
}

// NewBleveIndex creates or opens a Bleve index at path. An existing index is
// opened and reused; remove the directory to force a full re-index after a
// mapping change.
func NewBleveIndex(path string) (*BleveIndex, error) {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) so "sapphire"
	// only matches the exact word.
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("name", textFieldMapping)
	docMapping.AddFieldMappingsAt("description", textFieldMapping)
	docMapping.AddFieldMappingsAt("category", textFieldMapping)
	docMapping.AddFieldMappingsAt("details", textFieldMapping)
	docMapping.AddFieldMappingsAt("features", textFieldMapping)
	im.AddDocumentMapping("item", docMapping)
	im.DefaultType = "item"
	im.DefaultMapping = docMapping

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// Index indexes an item's text fields under its id.
func (b *BleveIndex) Index(ctx context.Context, item *models.CatalogItem) error {
	doc := itemDoc{
		Name:        item.Name,
		Description: item.Description,
		Category:    item.Category,
		Details:     item.Details,
		Features:    item.Features,
	}
	return b.index.Index(strconv.FormatUint(item.ID, 10), doc)
}

// Search runs a match query over all indexed fields and returns up to limit hits.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int) ([]*Hit, error) {
	q := bleve.NewMatchQuery(query)
	req := bleve.NewSearchRequest(q)
	req.Size = limit

	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}

	hits := make([]*Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		id, err := strconv.ParseUint(h.ID, 10, 64)
		if err != nil {
			continue
		}
		hits = append(hits, &Hit{ID: id, Score: h.Score})
	}
	return hits, nil
}

// Delete removes an item from the index.
func (b *BleveIndex) Delete(ctx context.Context, id uint64) error {
	return b.index.Delete(strconv.FormatUint(id, 10))
}

// Count returns the number of indexed items.
func (b *BleveIndex) Count() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
