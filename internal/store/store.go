// Package store keeps tree documents. Each document holds one rooted tree and
// a version that increases on every write; edits are serialized per store so a
// document always has exactly one current value.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/the-deep/deeptree/internal/tree"
)

var (
	ErrNotFound        = errors.New("document not found")
	ErrVersionConflict = errors.New("document version conflict")
)

// Document is a stored tree with its metadata.
type Document struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Source    string     `json:"source,omitempty"`
	Version   int64      `json:"version"`
	Root      *tree.Node `json:"root"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Summary is the listing view of a document.
type Summary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Source    string    `json:"source,omitempty"`
	Nodes     int       `json:"nodes"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UpdateFunc computes the next root from the current one. Returning a nil root
// with a nil error deletes the document.
type UpdateFunc func(root *tree.Node) (*tree.Node, error)

// Store persists documents.
type Store interface {
	// Create stores a new document at version 1. An empty ID is assigned.
	Create(ctx context.Context, doc Document) (*Document, error)
	Get(ctx context.Context, id string) (*Document, error)
	List(ctx context.Context) ([]Summary, error)
	// Update applies fn to the current root. A non-zero version must match
	// the stored one. The returned document is nil when fn deleted it.
	Update(ctx context.Context, id string, version int64, fn UpdateFunc) (*Document, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

func summarize(d *Document) Summary {
	return Summary{
		ID:        d.ID,
		Title:     d.Title,
		Source:    d.Source,
		Nodes:     tree.Count(tree.Forest{d.Root}),
		Version:   d.Version,
		UpdatedAt: d.UpdatedAt,
	}
}

func checkRoot(root *tree.Node) error {
	if root == nil {
		return fmt.Errorf("%w: document has no root", tree.ErrInvalidArgument)
	}
	return tree.Validate(tree.Forest{root})
}
