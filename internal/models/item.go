// Package models defines core data structures for catalog items, queries, and search results.
package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrValidation wraps all item/query input validation failures so callers
// can map them to a 4xx without matching message text.
var ErrValidation = errors.New("invalid input")

// ItemStatus is the stock status of a catalog item.
type ItemStatus string

const (
	StatusActive       ItemStatus = "active"
	StatusLowStock     ItemStatus = "low_stock"
	StatusSoldOut      ItemStatus = "sold_out"
	StatusDiscontinued ItemStatus = "discontinued"
)

// Valid reports whether s is one of the known statuses.
func (s ItemStatus) Valid() bool {
	switch s {
	case StatusActive, StatusLowStock, StatusSoldOut, StatusDiscontinued:
		return true
	}
	return false
}

// CatalogItem represents a stored catalog item with its visual embedding.
// The embedding is immutable once stored; an update replaces the whole item.
type CatalogItem struct {
	ID          uint64     `json:"id" db:"id"`
	Name        string     `json:"name" db:"name"`
	Description string     `json:"description" db:"description"`
	ImageURL    string     `json:"image_url" db:"image_url"`
	Category    string     `json:"category" db:"category"`
	Price       float64    `json:"price" db:"price"`
	Details     string     `json:"details,omitempty" db:"details"`
	Features    []string   `json:"features,omitempty" db:"features"`
	Status      ItemStatus `json:"status" db:"status"`
	Embedding   []float32  `json:"-" db:"-"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// ItemInput is the input for creating or updating a catalog item.
// ID 0 on create means the store assigns the next id.
// Embedding may be omitted when the service is configured to compute one
// from the item's image (embed_on_ingest).
type ItemInput struct {
	ID          uint64     `json:"id,omitempty"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	ImageURL    string     `json:"image_url"`
	Category    string     `json:"category"`
	Price       float64    `json:"price"`
	Details     string     `json:"details,omitempty"`
	Features    []string   `json:"features,omitempty"`
	Status      ItemStatus `json:"status"`
	Embedding   []float32  `json:"embedding,omitempty"`
}

// Validate checks required fields and normalizes defaults.
// Returns an error for an empty name, a negative price, or an unknown status.
// A zero price is allowed: watch-ingested items start unpriced.
func (in *ItemInput) Validate() error {
	if in.Name == "" {
		return fmt.Errorf("%w: item name cannot be empty", ErrValidation)
	}
	if in.Price < 0 {
		return fmt.Errorf("%w: item price cannot be negative, got %v", ErrValidation, in.Price)
	}
	if in.Status == "" {
		in.Status = StatusActive
	}
	if !in.Status.Valid() {
		return fmt.Errorf("%w: unknown item status %q", ErrValidation, in.Status)
	}
	return nil
}

// Item builds a CatalogItem from the input. The embedding slice is not
// copied here; stores copy on insert so callers cannot mutate stored state.
func (in *ItemInput) Item() *CatalogItem {
	return &CatalogItem{
		ID:          in.ID,
		Name:        in.Name,
		Description: in.Description,
		ImageURL:    in.ImageURL,
		Category:    in.Category,
		Price:       in.Price,
		Details:     in.Details,
		Features:    in.Features,
		Status:      in.Status,
		Embedding:   in.Embedding,
	}
}
