package model

// EmbeddingDimension is the default dimension requested from the embedding
// backend. Gemini text-embedding-004 uses 768 dimensions.
const EmbeddingDimension = 768

// CatalogEntry is one course in the catalog collection.
type CatalogEntry struct {
	Course    *Course
	Embedding []float32
}

// ContentEntry is one chunk in the content collection.
type ContentEntry struct {
	Chunk     *CourseChunk
	Embedding []float32
}

// CatalogHit is a nearest-neighbour match against the catalog collection.
type CatalogHit struct {
	Title    string
	Distance float64
}

// SearchFilter restricts content search. Set fields are combined with AND.
type SearchFilter struct {
	CourseTitle  string
	LessonNumber *int
}

// IsEmpty reports whether the filter matches every chunk.
func (f SearchFilter) IsEmpty() bool {
	return f.CourseTitle == "" && f.LessonNumber == nil
}

// Match reports whether metadata satisfies the filter.
func (f SearchFilter) Match(m ChunkMetadata) bool {
	if f.CourseTitle != "" && m.CourseTitle != f.CourseTitle {
		return false
	}
	if f.LessonNumber != nil {
		if m.LessonNumber == nil || *m.LessonNumber != *f.LessonNumber {
			return false
		}
	}
	return true
}

// SearchResult is one content hit. Distance is the cosine distance to the
// query; lower is more relevant.
type SearchResult struct {
	Content  string
	Metadata ChunkMetadata
	Distance float64
}

// Stats summarises the catalog.
type Stats struct {
	TotalCourses int
	CourseTitles []string
}
