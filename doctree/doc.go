// Package doctree turns fetched table rows into search-index documents.
package doctree

import (
	"context"

	"github.com/Hobby-Box/api-search-sync/tid"
)

// Row is one table row keyed by its physical locator. Values hold the
// row's columns after driver-level normalization.
type Row struct {
	TID    tid.TID
	Values map[string]any
}

// Document is one index entry: the target-side identifier plus the body
// already rendered to JSON.
type Document struct {
	ID   string
	Body []byte
}

// Builder renders a batch of rows into documents. Builders must be safe
// for concurrent use, one call per work batch.
type Builder interface {
	Build(ctx context.Context, rows []Row) ([]Document, error)
}
