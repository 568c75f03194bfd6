package model

// IngestReport summarises one ingestion pass.
type IngestReport struct {
	CoursesAdded int
	ChunksAdded  int
	Skipped      int
	Failed       int
	Failures     []IngestFailure
}

// IngestFailure records a document that could not be ingested.
type IngestFailure struct {
	Document string
	Reason   string
}

// Context keys for error values
const (
	CourseTitleKey  = "course_title"
	LessonNumberKey = "lesson_number"
	ChunkIndexKey   = "chunk_index"
	DocumentKey     = "document"
	SessionIDKey    = "session_id"
)
