package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/syllabus/pkg/domain/interfaces"
	"github.com/secmon-lab/syllabus/pkg/domain/model"
)

// CourseIndex keeps both collections in process memory.
type CourseIndex struct {
	mu      sync.RWMutex
	catalog map[string]*model.CatalogEntry
	content map[string]*model.ContentEntry // keyed by chunk ID
}

var _ interfaces.CourseIndex = &CourseIndex{}

func NewCourseIndex() *CourseIndex {
	return &CourseIndex{
		catalog: make(map[string]*model.CatalogEntry),
		content: make(map[string]*model.ContentEntry),
	}
}

func copyEmbedding(v []float32) []float32 {
	if v == nil {
		return nil
	}
	copied := make([]float32, len(v))
	copy(copied, v)
	return copied
}

func copyCatalogEntry(e *model.CatalogEntry) *model.CatalogEntry {
	return &model.CatalogEntry{
		Course:    e.Course.Clone(),
		Embedding: copyEmbedding(e.Embedding),
	}
}

func copyContentEntry(e *model.ContentEntry) *model.ContentEntry {
	chunk := *e.Chunk
	chunk.LessonNumber = model.CopyInt(e.Chunk.LessonNumber)
	return &model.ContentEntry{
		Chunk:     &chunk,
		Embedding: copyEmbedding(e.Embedding),
	}
}

func (r *CourseIndex) PutCatalog(ctx context.Context, entry *model.CatalogEntry) error {
	if entry == nil || entry.Course == nil || entry.Course.Title == "" {
		return goerr.New("catalog entry requires a course title")
	}

	copied := copyCatalogEntry(entry)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.catalog[copied.Course.Title] = copied
	return nil
}

func (r *CourseIndex) PutContent(ctx context.Context, entries []*model.ContentEntry) error {
	// copy outside the lock, then publish the whole batch at once
	staged := make([]*model.ContentEntry, 0, len(entries))
	for _, e := range entries {
		if e == nil || e.Chunk == nil || e.Chunk.CourseTitle == "" {
			return goerr.New("content entry requires a course title")
		}
		staged = append(staged, copyContentEntry(e))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range staged {
		r.content[e.Chunk.ChunkID()] = e
	}
	return nil
}

func (r *CourseIndex) NearestCatalog(ctx context.Context, embedding []float32, k int) ([]*model.CatalogHit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	hits := make([]*model.CatalogHit, 0, len(r.catalog))
	for title, e := range r.catalog {
		if len(e.Embedding) == 0 {
			continue
		}
		hits = append(hits, &model.CatalogHit{
			Title:    title,
			Distance: model.CosineDistance(embedding, e.Embedding),
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance == hits[j].Distance {
			return hits[i].Title < hits[j].Title
		}
		return hits[i].Distance < hits[j].Distance
	})

	if k > 0 && k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

func (r *CourseIndex) NearestContent(ctx context.Context, embedding []float32, filter model.SearchFilter, k int) ([]*model.SearchResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []*model.SearchResult
	for _, e := range r.content {
		meta := e.Chunk.Metadata()
		if !filter.Match(meta) || len(e.Embedding) == 0 {
			continue
		}
		results = append(results, &model.SearchResult{
			Content:  e.Chunk.Content,
			Metadata: meta,
			Distance: model.CosineDistance(embedding, e.Embedding),
		})
	}

	sortResults(results)

	if k > 0 && k < len(results) {
		results = results[:k]
	}
	return results, nil
}

// sortResults orders by ascending distance; ties fall back to chunk identity
// so results are stable.
func sortResults(results []*model.SearchResult) {
	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Distance != b.Distance {
			return a.Distance < b.Distance
		}
		if a.Metadata.CourseTitle != b.Metadata.CourseTitle {
			return a.Metadata.CourseTitle < b.Metadata.CourseTitle
		}
		return a.Metadata.ChunkIndex < b.Metadata.ChunkIndex
	})
}

func (r *CourseIndex) GetCourse(ctx context.Context, title string) (*model.Course, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.catalog[title]
	if !ok {
		return nil, goerr.Wrap(ErrNotFound, "course not found", goerr.V(model.CourseTitleKey, title))
	}
	return e.Course.Clone(), nil
}

func (r *CourseIndex) ListTitles(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	titles := make([]string, 0, len(r.catalog))
	for title := range r.catalog {
		titles = append(titles, title)
	}
	sort.Strings(titles)
	return titles, nil
}

func (r *CourseIndex) CountCourses(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.catalog), nil
}

func (r *CourseIndex) Clear(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.catalog = make(map[string]*model.CatalogEntry)
	r.content = make(map[string]*model.ContentEntry)
	return nil
}

func (r *CourseIndex) Close() error {
	return nil
}
