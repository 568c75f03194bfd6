package interfaces

import "context"

// Embedder turns texts into fixed-dimension vectors. The same embedder must be
// used for the catalog and content collections.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
