package catalog

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/lustra/kirameki/internal/models"
	"github.com/lustra/kirameki/pkg/utils"
)

// SQLiteStore implements Store using SQLite. It is the persistence
// collaborator: the engine searches the in-memory store and writes through
// to this one so the catalog survives restarts.
type SQLiteStore struct {
	db         *sql.DB
	dimensions int
	nextID     uint64
	mu         sync.Mutex // guards dimension pinning and id allocation
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and initializes
// the schema. Parent directories are created if they do not exist.
// dimensions 0 means the first inserted item pins the dimensionality.
func NewSQLiteStore(dbPath string, dimensions int) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection serializes writers, so concurrent inserts queue up
	// instead of failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	// Seed the id watermark from the highest id ever stored. Within a
	// process it only advances, so deleted ids are never handed out again.
	var maxID uint64
	if err := db.QueryRow(`SELECT COALESCE(MAX(id), 0) FROM items`).Scan(&maxID); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to read id watermark: %w", err)
	}

	return &SQLiteStore{db: db, dimensions: dimensions, nextID: maxID + 1}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS items (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		image_url TEXT,
		category TEXT,
		price REAL NOT NULL,
		details TEXT,
		features TEXT,
		status TEXT NOT NULL,
		embedding BLOB NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_items_category ON items(category);
	CREATE INDEX IF NOT EXISTS idx_items_status ON items(status);
	`
	_, err := db.Exec(schema)
	return err
}

func (s *SQLiteStore) validateEmbedding(emb []float32) error {
	if len(emb) == 0 {
		return ErrMissingEmbedding
	}
	if !utils.AllFinite(emb) {
		return ErrInvalidEmbedding
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimensions == 0 {
		s.dimensions = len(emb)
		return nil
	}
	if len(emb) != s.dimensions {
		return ErrDimensionMismatch
	}
	return nil
}

// Insert adds an item. When item.ID is 0 the next id is assigned from the
// in-process watermark. Explicit ids advance the watermark so deleted ids are
// never handed out again.
func (s *SQLiteStore) Insert(ctx context.Context, item *models.CatalogItem) (uint64, error) {
	if err := s.validateEmbedding(item.Embedding); err != nil {
		return 0, err
	}
	featuresJSON, err := json.Marshal(item.Features)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal features: %w", err)
	}

	now := time.Now()
	if item.ID != 0 {
		var exists int
		err := s.db.QueryRowContext(ctx, `SELECT 1 FROM items WHERE id = ?`, item.ID).Scan(&exists)
		if err == nil {
			return 0, ErrDuplicateID
		}
		if err != sql.ErrNoRows {
			return 0, err
		}
	}
	id := s.allocateID(item.ID)

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO items (id, name, description, image_url, category, price, details, features, status, embedding, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, item.Name, item.Description, item.ImageURL, item.Category, item.Price,
		item.Details, string(featuresJSON), string(item.Status), encodeEmbedding(item.Embedding), now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert item: %w", err)
	}
	return id, nil
}

// Update replaces the item with the given id.
func (s *SQLiteStore) Update(ctx context.Context, id uint64, item *models.CatalogItem) error {
	if err := s.validateEmbedding(item.Embedding); err != nil {
		return err
	}
	featuresJSON, err := json.Marshal(item.Features)
	if err != nil {
		return fmt.Errorf("failed to marshal features: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE items SET name = ?, description = ?, image_url = ?, category = ?, price = ?,
		 details = ?, features = ?, status = ?, embedding = ?, updated_at = ?
		 WHERE id = ?`,
		item.Name, item.Description, item.ImageURL, item.Category, item.Price,
		item.Details, string(featuresJSON), string(item.Status), encodeEmbedding(item.Embedding), time.Now(), id,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// allocateID resolves the id for an insert: 0 takes the watermark, explicit
// ids at or above it push it forward. The watermark never moves back.
func (s *SQLiteStore) allocateID(id uint64) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == 0 {
		id = s.nextID
	}
	if id >= s.nextID {
		s.nextID = id + 1
	}
	return id
}

// Remove deletes the item with the given id.
func (s *SQLiteStore) Remove(ctx context.Context, id uint64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const itemColumns = `id, name, description, image_url, category, price, details, features, status, embedding, created_at, updated_at`

// Get returns the item with the given id.
func (s *SQLiteStore) Get(ctx context.Context, id uint64) (*models.CatalogItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return item, err
}

// Snapshot returns all items ordered by ascending id.
func (s *SQLiteStore) Snapshot(ctx context.Context) ([]*models.CatalogItem, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+itemColumns+` FROM items ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*models.CatalogItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Count returns the number of items.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&n)
	return n, err
}

// Dimensions returns the pinned dimensionality.
func (s *SQLiteStore) Dimensions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dimensions
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(row rowScanner) (*models.CatalogItem, error) {
	var item models.CatalogItem
	var featuresJSON, status string
	var embedding []byte
	err := row.Scan(&item.ID, &item.Name, &item.Description, &item.ImageURL, &item.Category,
		&item.Price, &item.Details, &featuresJSON, &status, &embedding, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}
	item.Status = models.ItemStatus(status)
	if featuresJSON != "" && featuresJSON != "null" {
		if err := json.Unmarshal([]byte(featuresJSON), &item.Features); err != nil {
			return nil, fmt.Errorf("failed to unmarshal features: %w", err)
		}
	}
	item.Embedding = decodeEmbedding(embedding)
	return &item, nil
}

// encodeEmbedding serializes a vector as little-endian float32.
func encodeEmbedding(v []float32) []byte {
	const size = 4
	out := make([]byte, len(v)*size)
	for i, x := range v {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(x))
	}
	return out
}

// decodeEmbedding deserializes a little-endian float32 vector.
func decodeEmbedding(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
