// Package search provides the visual search service: it orchestrates
// validation, feature extraction, catalog snapshotting, and ranking, and
// exposes the catalog mutation hooks used by the admin API.
package search

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/lustra/kirameki/internal/catalog"
	"github.com/lustra/kirameki/internal/config"
	"github.com/lustra/kirameki/internal/extractor"
	"github.com/lustra/kirameki/internal/imaging"
	"github.com/lustra/kirameki/internal/keyword"
	"github.com/lustra/kirameki/internal/models"
	"github.com/lustra/kirameki/internal/vector"
)

// Service runs visual similarity search over the catalog. Searches never
// mutate; mutations go through the Item methods which write through to the
// optional persistent store and keyword index.
type Service struct {
	store         catalog.Store
	extractor     extractor.Extractor
	ranker        vector.Index
	config        *config.SearchConfig
	embedOnIngest bool
	uploadLimit   int64
	persist       catalog.Store  // optional write-through store
	keywords      keyword.Index  // optional text lookup
	logger        *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithPersistence adds a write-through store (typically SQLite) that mirrors
// every catalog mutation.
func WithPersistence(store catalog.Store) Option {
	return func(s *Service) { s.persist = store }
}

// WithKeywordIndex adds a text index kept in sync with catalog mutations.
func WithKeywordIndex(idx keyword.Index) Option {
	return func(s *Service) { s.keywords = idx }
}

// WithUploadLimit caps search payload size in bytes. 0 means unlimited.
func WithUploadLimit(n int64) Option {
	return func(s *Service) { s.uploadLimit = n }
}

// WithLogger sets a logger for debug events.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a search service.
func NewService(
	store catalog.Store,
	ext extractor.Extractor,
	ranker vector.Index,
	searchCfg *config.SearchConfig,
	catalogCfg *config.CatalogConfig,
	opts ...Option,
) *Service {
	s := &Service{
		store:         store,
		extractor:     ext,
		ranker:        ranker,
		config:        searchCfg,
		embedOnIngest: catalogCfg.EmbedOnIngest,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search runs one visual search: validate the payload, extract the query
// embedding (bounded timeout, no store lock held), snapshot the catalog
// (brief lock), and rank the snapshot copy. A failure at any stage aborts
// the request; nothing is retried internally.
func (s *Service) Search(ctx context.Context, imageBytes []byte, k int) (*models.SearchResponse, error) {
	start := time.Now()

	query := &models.SearchQuery{K: k}
	query.Normalize(s.config.DefaultK, s.config.MaxK)

	if _, err := imaging.Validate(imageBytes, s.uploadLimit); err != nil {
		return nil, err
	}

	embedding, err := s.extract(ctx, imageBytes)
	if err != nil {
		s.logger.Debug("extraction failed", zap.Error(err))
		return nil, err
	}

	snapshot, err := s.store.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog snapshot failed: %w", err)
	}

	results, err := s.ranker.Rank(ctx, embedding, snapshot, query.K)
	if err != nil {
		s.logger.Error("ranking failed", zap.Int("catalog_size", len(snapshot)), zap.Error(err))
		return nil, fmt.Errorf("ranking failed: %w", err)
	}

	s.logger.Debug("search completed",
		zap.Int("k", query.K),
		zap.Int("catalog_size", len(snapshot)),
		zap.Int("results", len(results)),
	)
	return &models.SearchResponse{
		Results:   results,
		Total:     len(results),
		QueryTime: time.Since(start).Milliseconds(),
	}, nil
}

// extract runs the feature extractor under the configured timeout. The
// extractor is cooperative; a model that ignores cancellation still cannot
// delay the caller past the deadline.
func (s *Service) extract(ctx context.Context, imageBytes []byte) ([]float32, error) {
	if s.config.ExtractTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.ExtractTimeout)
		defer cancel()
	}

	type extractResult struct {
		embedding []float32
		err       error
	}
	ch := make(chan extractResult, 1)
	go func() {
		emb, err := s.extractor.Extract(ctx, imageBytes)
		ch <- extractResult{emb, err}
	}()

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, extractor.ErrTimeout
		}
		return nil, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			if errors.Is(r.err, context.DeadlineExceeded) {
				return nil, extractor.ErrTimeout
			}
			return nil, r.err
		}
		return r.embedding, nil
	}
}

// AddItem validates and inserts a catalog item, writing through to the
// persistent store and keyword index. When the input carries no embedding
// and embed_on_ingest is enabled, one is computed from the item's image file.
func (s *Service) AddItem(ctx context.Context, in *models.ItemInput) (*models.CatalogItem, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if err := s.ensureEmbedding(ctx, in); err != nil {
		return nil, err
	}

	item := in.Item()
	id, err := s.store.Insert(ctx, item)
	if err != nil {
		return nil, err
	}

	stored, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.persist != nil {
		if _, err := s.persist.Insert(ctx, stored); err != nil {
			// Keep memory and disk consistent: undo the in-memory insert.
			_ = s.store.Remove(ctx, id)
			return nil, fmt.Errorf("persist insert failed: %w", err)
		}
	}
	s.indexKeywords(ctx, stored)
	s.logger.Debug("item added", zap.Uint64("id", id), zap.String("name", stored.Name))
	return stored, nil
}

// UpdateItem validates and replaces the item with the given id.
func (s *Service) UpdateItem(ctx context.Context, id uint64, in *models.ItemInput) (*models.CatalogItem, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if err := s.ensureEmbedding(ctx, in); err != nil {
		return nil, err
	}

	if err := s.store.Update(ctx, id, in.Item()); err != nil {
		return nil, err
	}
	stored, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.persist != nil {
		if err := s.persist.Update(ctx, id, stored); err != nil {
			return nil, fmt.Errorf("persist update failed: %w", err)
		}
	}
	s.indexKeywords(ctx, stored)
	s.logger.Debug("item updated", zap.Uint64("id", id))
	return stored, nil
}

// RemoveItem removes the item with the given id everywhere.
func (s *Service) RemoveItem(ctx context.Context, id uint64) error {
	if err := s.store.Remove(ctx, id); err != nil {
		return err
	}
	if s.persist != nil {
		if err := s.persist.Remove(ctx, id); err != nil && !errors.Is(err, catalog.ErrNotFound) {
			return fmt.Errorf("persist remove failed: %w", err)
		}
	}
	if s.keywords != nil {
		if err := s.keywords.Delete(ctx, id); err != nil {
			s.logger.Warn("keyword delete failed", zap.Uint64("id", id), zap.Error(err))
		}
	}
	s.logger.Debug("item removed", zap.Uint64("id", id))
	return nil
}

// GetItem returns a single catalog item.
func (s *Service) GetItem(ctx context.Context, id uint64) (*models.CatalogItem, error) {
	return s.store.Get(ctx, id)
}

// ListItems returns catalog items, optionally narrowed by a text query,
// category, and status, paged by offset/limit.
func (s *Service) ListItems(ctx context.Context, textQuery, category string, status models.ItemStatus, offset, limit int) ([]*models.CatalogItem, error) {
	if limit <= 0 {
		limit = s.config.DefaultK
	}

	var items []*models.CatalogItem
	if textQuery != "" && s.keywords != nil {
		hits, err := s.keywords.Search(ctx, textQuery, offset+limit)
		if err != nil {
			return nil, err
		}
		for _, h := range hits {
			item, err := s.store.Get(ctx, h.ID)
			if err != nil {
				// Index may briefly trail the store; skip unknown ids.
				continue
			}
			items = append(items, item)
		}
	} else {
		snap, err := s.store.Snapshot(ctx)
		if err != nil {
			return nil, err
		}
		items = snap
	}

	filtered := items[:0:0]
	for _, item := range items {
		if category != "" && item.Category != category {
			continue
		}
		if status != "" && item.Status != status {
			continue
		}
		filtered = append(filtered, item)
	}

	if offset > len(filtered) {
		offset = len(filtered)
	}
	end := offset + limit
	if end > len(filtered) {
		end = len(filtered)
	}
	return filtered[offset:end], nil
}

// Status describes the engine's current state.
type Status struct {
	Items      int  `json:"items"`
	Dimensions int  `json:"dimensions"`
	Persisted  bool `json:"persisted"`
}

// Status returns catalog counts and configuration facts.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	n, err := s.store.Count(ctx)
	if err != nil {
		return nil, err
	}
	return &Status{
		Items:      n,
		Dimensions: s.store.Dimensions(),
		Persisted:  s.persist != nil,
	}, nil
}

// ensureEmbedding fills in.Embedding when absent. This only happens when
// embed_on_ingest is explicitly enabled; otherwise the input is rejected.
func (s *Service) ensureEmbedding(ctx context.Context, in *models.ItemInput) error {
	if len(in.Embedding) > 0 {
		return nil
	}
	if !s.embedOnIngest {
		return catalog.ErrMissingEmbedding
	}
	if in.ImageURL == "" {
		return fmt.Errorf("%w: embed_on_ingest requires an image reference", catalog.ErrMissingEmbedding)
	}
	data, err := os.ReadFile(in.ImageURL)
	if err != nil {
		return fmt.Errorf("failed to read item image %q: %w", in.ImageURL, err)
	}
	emb, err := s.extract(ctx, data)
	if err != nil {
		return fmt.Errorf("embed on ingest failed: %w", err)
	}
	in.Embedding = emb
	return nil
}

func (s *Service) indexKeywords(ctx context.Context, item *models.CatalogItem) {
	if s.keywords == nil {
		return
	}
	if err := s.keywords.Index(ctx, item); err != nil {
		s.logger.Warn("keyword index failed", zap.Uint64("id", item.ID), zap.Error(err))
	}
}
