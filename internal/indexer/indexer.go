// Package indexer ingests image files from watched directories into the catalog.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/lustra/kirameki/internal/catalog"
	"github.com/lustra/kirameki/internal/extractor"
	"github.com/lustra/kirameki/internal/models"
	"github.com/lustra/kirameki/internal/search"
	"go.uber.org/zap"
)

// Indexer turns image files into catalog items. Each watched file maps to at
// most one item, keyed by its absolute path; re-ingesting an existing path
// updates the item in place, and removing the file removes the item.
type Indexer struct {
	service    *search.Service
	store      catalog.Store
	extractor  extractor.Extractor
	extensions []string
	logger     *zap.Logger

	mu     sync.Mutex
	byPath map[string]uint64
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for debug output (file ingested, item removed, etc.).
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// NewIndexer creates an indexer. extensions filter which files are ingested
// (empty = all). Call Bootstrap before the first ingest so that items loaded
// from persistent storage are recognized by path.
func NewIndexer(
	service *search.Service,
	store catalog.Store,
	ext extractor.Extractor,
	extensions []string,
	opts ...IndexerOption,
) *Indexer {
	idx := &Indexer{
		service:    service,
		store:      store,
		extractor:  ext,
		extensions: extensions,
		logger:     zap.NewNop(),
		byPath:     make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Bootstrap seeds the path-to-item mapping from the current catalog so that
// files already ingested in a previous run are updated, not duplicated.
func (idx *Indexer) Bootstrap(ctx context.Context) error {
	snap, err := idx.store.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("catalog snapshot: %w", err)
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, item := range snap {
		if item.ImageURL == "" {
			continue
		}
		if abs, err := filepath.Abs(item.ImageURL); err == nil {
			idx.byPath[filepath.Clean(abs)] = item.ID
		}
	}
	if idx.logger != nil {
		idx.logger.Debug("indexer bootstrapped", zap.Int("known_paths", len(idx.byPath)))
	}
	return nil
}

// IngestFile reads an image file and adds it to the catalog, or updates the
// existing item when the path was ingested before. Unchanged files (mtime not
// newer than the item's last update) are skipped.
func (idx *Indexer) IngestFile(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("absolute path: %w", err)
	}
	absPath = filepath.Clean(absPath)
	ext := strings.ToLower(filepath.Ext(absPath))
	if len(idx.extensions) > 0 && !extensionAllowed(ext, idx.extensions) {
		return fmt.Errorf("extension %q not in allowed list", ext)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("not a regular file: %s", absPath)
	}

	idx.mu.Lock()
	existingID, known := idx.byPath[absPath]
	idx.mu.Unlock()

	var existing *models.CatalogItem
	if known {
		if item, err := idx.service.GetItem(ctx, existingID); err == nil {
			if !info.ModTime().After(item.UpdatedAt) {
				idx.logger.Debug("indexer skipping unchanged file", zap.String("path", absPath))
				return nil
			}
			existing = item
		}
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	embedding, err := idx.extractor.Extract(ctx, data)
	if err != nil {
		return fmt.Errorf("extract embedding: %w", err)
	}

	input := &models.ItemInput{
		Name:      nameFromFile(absPath),
		ImageURL:  absPath,
		Embedding: embedding,
	}
	if existing != nil {
		// Refresh the embedding but keep fields a merchandiser may have edited.
		input.Name = existing.Name
		input.Description = existing.Description
		input.Category = existing.Category
		input.Price = existing.Price
		input.Details = existing.Details
		input.Features = existing.Features
		input.Status = existing.Status
	}

	if known {
		if _, err := idx.service.UpdateItem(ctx, existingID, input); err != nil {
			if !errors.Is(err, catalog.ErrNotFound) {
				return fmt.Errorf("update item: %w", err)
			}
			// The item was removed out from under us; fall through to add.
			known = false
		}
	}
	if !known {
		item, err := idx.service.AddItem(ctx, input)
		if err != nil {
			return fmt.Errorf("add item: %w", err)
		}
		idx.mu.Lock()
		idx.byPath[absPath] = item.ID
		idx.mu.Unlock()
		existingID = item.ID
	}
	idx.logger.Debug("indexer file ingested", zap.String("path", absPath), zap.Uint64("item_id", existingID))
	return nil
}

// IngestDirectory walks dir recursively and ingests each regular file whose
// extension is allowed. Returns the number of files ingested and the first
// error encountered, if any.
func (idx *Indexer) IngestDirectory(ctx context.Context, dir string) (n int, err error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return 0, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("not a directory: %s", absDir)
	}
	err = filepath.WalkDir(absDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if len(idx.extensions) > 0 && !extensionAllowed(ext, idx.extensions) {
			return nil
		}
		// Resolve symlinks so we only ingest regular files.
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		if ingestErr := idx.IngestFile(ctx, path); ingestErr != nil {
			return ingestErr
		}
		n++
		return nil
	})
	return n, err
}

// RemoveFile removes the catalog item backed by the given path, if any.
func (idx *Indexer) RemoveFile(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("absolute path: %w", err)
	}
	absPath = filepath.Clean(absPath)

	idx.mu.Lock()
	id, known := idx.byPath[absPath]
	delete(idx.byPath, absPath)
	idx.mu.Unlock()
	if !known {
		return nil
	}
	if err := idx.service.RemoveItem(ctx, id); err != nil && !errors.Is(err, catalog.ErrNotFound) {
		return fmt.Errorf("remove item: %w", err)
	}
	idx.logger.Debug("indexer item removed", zap.String("path", absPath), zap.Uint64("item_id", id))
	return nil
}

// nameFromFile derives a display name from a file path: the base name without
// extension, underscores and hyphens replaced by spaces so "gold_signet-ring.jpg"
// becomes "gold signet ring".
func nameFromFile(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.ReplaceAll(base, "_", " ")
	base = strings.ReplaceAll(base, "-", " ")
	base = strings.Join(strings.Fields(base), " ")
	if base == "" {
		return filepath.Base(path)
	}
	return base
}

func extensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}
