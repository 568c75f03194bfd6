package index

import "github.com/m-mizutani/goerr/v2"

var (
	// ErrCourseNotFound is returned when a course name cannot be resolved to an indexed course.
	ErrCourseNotFound = goerr.New("course not found")

	// ErrBackendUnavailable is returned when the embedder or the store cannot serve a request.
	ErrBackendUnavailable = goerr.New("backend unavailable")

	// ErrPartialIngestion is returned when the catalog entry of a course was written but its content was not.
	ErrPartialIngestion = goerr.New("partial ingestion")
)

// CourseNotFoundMessage is the human-readable form of a failed resolution.
func CourseNotFoundMessage(name string) string {
	return "No course found matching '" + name + "'"
}
