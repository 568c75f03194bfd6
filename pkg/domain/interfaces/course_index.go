package interfaces

import (
	"context"

	"github.com/secmon-lab/syllabus/pkg/domain/model"
)

// CourseIndex persists the catalog and content collections and performs
// nearest-neighbour lookups against them. Distances are cosine distances.
type CourseIndex interface {
	// PutCatalog stores or replaces the catalog entry of a course
	PutCatalog(ctx context.Context, entry *model.CatalogEntry) error

	// PutContent stores chunk entries. Entries of one call become visible
	// together up to the backend's atomic write limit. Larger calls may be
	// committed in batches; a failed call removes the batches it committed.
	PutContent(ctx context.Context, entries []*model.ContentEntry) error

	// NearestCatalog returns up to k catalog entries ordered by ascending distance
	NearestCatalog(ctx context.Context, embedding []float32, k int) ([]*model.CatalogHit, error)

	// NearestContent returns up to k chunks matching filter ordered by ascending distance
	NearestContent(ctx context.Context, embedding []float32, filter model.SearchFilter, k int) ([]*model.SearchResult, error)

	// GetCourse returns the catalog metadata of a course by exact title
	GetCourse(ctx context.Context, title string) (*model.Course, error)

	// ListTitles returns all catalog titles in ascending order
	ListTitles(ctx context.Context) ([]string, error)

	// CountCourses returns the number of catalog entries
	CountCourses(ctx context.Context) (int, error)

	// Clear removes every entry of both collections
	Clear(ctx context.Context) error

	Close() error
}
