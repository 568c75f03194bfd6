package interfaces

import (
	"context"
	"io"
)

// DocumentSource enumerates and opens raw course documents.
type DocumentSource interface {
	// List returns document names in ascending order
	List(ctx context.Context) ([]string, error)

	// Open returns a reader for the named document
	Open(ctx context.Context, name string) (io.ReadCloser, error)

	// Location describes where documents are read from
	Location() string
}
