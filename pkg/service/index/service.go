package index

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/syllabus/pkg/domain/interfaces"
	"github.com/secmon-lab/syllabus/pkg/domain/model"
	"github.com/secmon-lab/syllabus/pkg/utils/logging"
)

const (
	// DefaultMaxResults is the number of content chunks returned when a query sets no limit.
	DefaultMaxResults = 5

	embedBatchSize = 32
)

// Service composes a CourseIndex store with an Embedder. It owns name
// resolution and metadata-filtered search over both collections.
type Service struct {
	store              interfaces.CourseIndex
	embedder           interfaces.Embedder
	maxResults         int
	maxResolveDistance float64
}

// Option configures Service
type Option func(*Service)

// WithMaxResults sets the default number of chunks returned by Search.
func WithMaxResults(k int) Option {
	return func(s *Service) {
		if k > 0 {
			s.maxResults = k
		}
	}
}

// WithMaxResolveDistance rejects resolutions whose nearest catalog entry is
// farther than d. Zero disables the check.
func WithMaxResolveDistance(d float64) Option {
	return func(s *Service) {
		if d >= 0 {
			s.maxResolveDistance = d
		}
	}
}

// New creates an index Service.
func New(store interfaces.CourseIndex, embedder interfaces.Embedder, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, goerr.New("course index store is required")
	}
	if embedder == nil {
		return nil, goerr.New("embedder is required")
	}

	s := &Service{
		store:      store,
		embedder:   embedder,
		maxResults: DefaultMaxResults,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// MaxResults returns the default search limit.
func (s *Service) MaxResults() int {
	return s.maxResults
}

func (s *Service) embedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, goerr.Wrap(ErrBackendUnavailable, "failed to embed text", goerr.V("cause", err.Error()))
	}
	if len(vectors) != 1 {
		return nil, goerr.Wrap(ErrBackendUnavailable, "unexpected embedding count", goerr.V("count", len(vectors)))
	}
	return vectors[0], nil
}

// ResolveCourseName maps a possibly partial or misspelled course name to the
// title of the semantically nearest course in the catalog.
func (s *Service) ResolveCourseName(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", goerr.Wrap(ErrCourseNotFound, CourseNotFoundMessage(name))
	}

	if _, err := s.store.GetCourse(ctx, name); err == nil {
		return name, nil
	}

	embedding, err := s.embedOne(ctx, name)
	if err != nil {
		return "", err
	}

	hits, err := s.store.NearestCatalog(ctx, embedding, 1)
	if err != nil {
		return "", goerr.Wrap(ErrBackendUnavailable, "failed to query catalog",
			goerr.V("cause", err.Error()), goerr.V(model.CourseTitleKey, name))
	}
	if len(hits) == 0 {
		return "", goerr.Wrap(ErrCourseNotFound, CourseNotFoundMessage(name))
	}

	best := hits[0]
	if s.maxResolveDistance > 0 && best.Distance > s.maxResolveDistance {
		return "", goerr.Wrap(ErrCourseNotFound, CourseNotFoundMessage(name),
			goerr.V("nearest", best.Title), goerr.V("distance", best.Distance))
	}

	logging.From(ctx).Debug("resolved course name",
		"query", name, "title", best.Title, "distance", best.Distance)
	return best.Title, nil
}

// SearchQuery describes a content search. CourseName and LessonNumber are
// optional filters combined with AND.
type SearchQuery struct {
	Query        string
	CourseName   string
	LessonNumber *int
	Limit        int
}

// SearchResponse carries the ranked chunks and the resolved course title when a course filter was given.
type SearchResponse struct {
	Results        []*model.SearchResult
	ResolvedCourse string
}

// Search runs a filtered nearest-neighbour search over the content collection.
func (s *Service) Search(ctx context.Context, q SearchQuery) (*SearchResponse, error) {
	resp := &SearchResponse{}
	filter := model.SearchFilter{LessonNumber: model.CopyInt(q.LessonNumber)}

	if q.CourseName != "" {
		title, err := s.ResolveCourseName(ctx, q.CourseName)
		if err != nil {
			return nil, err
		}
		filter.CourseTitle = title
		resp.ResolvedCourse = title
	}

	limit := q.Limit
	if limit <= 0 {
		limit = s.maxResults
	}

	embedding, err := s.embedOne(ctx, q.Query)
	if err != nil {
		return nil, err
	}

	results, err := s.store.NearestContent(ctx, embedding, filter, limit)
	if err != nil {
		return nil, goerr.Wrap(ErrBackendUnavailable, "failed to query content",
			goerr.V("cause", err.Error()), goerr.V("query", q.Query))
	}

	resp.Results = results
	return resp, nil
}

// AddCourse embeds the catalog text and every chunk of a course, then writes
// the catalog entry followed by the content entries. Nothing is written when
// embedding fails.
func (s *Service) AddCourse(ctx context.Context, course *model.Course, chunks []*model.CourseChunk) error {
	if course == nil {
		return goerr.New("course is required")
	}
	if err := course.Validate(); err != nil {
		return err
	}

	catalogEmbedding, err := s.embedOne(ctx, course.CatalogText())
	if err != nil {
		return err
	}

	entries, err := s.embedChunks(ctx, chunks)
	if err != nil {
		return goerr.Wrap(err, "failed to embed course content", goerr.V(model.CourseTitleKey, course.Title))
	}

	if err := s.store.PutCatalog(ctx, &model.CatalogEntry{Course: course, Embedding: catalogEmbedding}); err != nil {
		return goerr.Wrap(ErrBackendUnavailable, "failed to write catalog entry",
			goerr.V("cause", err.Error()), goerr.V(model.CourseTitleKey, course.Title))
	}

	if err := s.store.PutContent(ctx, entries); err != nil {
		return goerr.Wrap(ErrPartialIngestion, "failed to write course content",
			goerr.V("cause", err.Error()), goerr.V(model.CourseTitleKey, course.Title))
	}

	return nil
}

func (s *Service) embedChunks(ctx context.Context, chunks []*model.CourseChunk) ([]*model.ContentEntry, error) {
	entries := make([]*model.ContentEntry, 0, len(chunks))

	for start := 0; start < len(chunks); start += embedBatchSize {
		end := min(start+embedBatchSize, len(chunks))
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}

		vectors, err := s.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, goerr.Wrap(ErrBackendUnavailable, "failed to embed chunks",
				goerr.V("cause", err.Error()), goerr.V("offset", start))
		}
		if len(vectors) != len(batch) {
			return nil, goerr.Wrap(ErrBackendUnavailable, "unexpected embedding count",
				goerr.V("expected", len(batch)), goerr.V("actual", len(vectors)))
		}

		for i, c := range batch {
			entries = append(entries, &model.ContentEntry{Chunk: c, Embedding: vectors[i]})
		}
	}

	return entries, nil
}

// GetCourse resolves a course name and returns its outline.
func (s *Service) GetCourse(ctx context.Context, name string) (*model.Course, error) {
	title, err := s.ResolveCourseName(ctx, name)
	if err != nil {
		return nil, err
	}

	course, err := s.store.GetCourse(ctx, title)
	if err != nil {
		return nil, goerr.Wrap(ErrCourseNotFound, CourseNotFoundMessage(name), goerr.V("cause", err.Error()))
	}
	return course, nil
}

// LookupCourse returns the outline of the course with exactly the given title.
func (s *Service) LookupCourse(ctx context.Context, title string) (*model.Course, error) {
	course, err := s.store.GetCourse(ctx, title)
	if err != nil {
		return nil, goerr.Wrap(ErrCourseNotFound, CourseNotFoundMessage(title), goerr.V("cause", err.Error()))
	}
	return course, nil
}

// GetExistingTitles returns the set of titles already in the catalog.
func (s *Service) GetExistingTitles(ctx context.Context) (map[string]struct{}, error) {
	titles, err := s.ListTitles(ctx)
	if err != nil {
		return nil, err
	}

	set := make(map[string]struct{}, len(titles))
	for _, t := range titles {
		set[t] = struct{}{}
	}
	return set, nil
}

// ListTitles returns catalog titles in ascending order.
func (s *Service) ListTitles(ctx context.Context) ([]string, error) {
	titles, err := s.store.ListTitles(ctx)
	if err != nil {
		return nil, goerr.Wrap(ErrBackendUnavailable, "failed to list titles", goerr.V("cause", err.Error()))
	}
	return titles, nil
}

// GetCourseCount returns the number of catalog entries.
func (s *Service) GetCourseCount(ctx context.Context) (int, error) {
	n, err := s.store.CountCourses(ctx)
	if err != nil {
		return 0, goerr.Wrap(ErrBackendUnavailable, "failed to count courses", goerr.V("cause", err.Error()))
	}
	return n, nil
}

// Clear removes every entry from both collections.
func (s *Service) Clear(ctx context.Context) error {
	if err := s.store.Clear(ctx); err != nil {
		return goerr.Wrap(ErrBackendUnavailable, "failed to clear index", goerr.V("cause", err.Error()))
	}
	return nil
}
