package model

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/m-mizutani/goerr/v2"
)

// Course is a syllabus-level unit. Title is the primary key and is case-sensitive.
type Course struct {
	Title      string
	Instructor string
	Link       string
	Lessons    []Lesson
}

// Lesson is owned by its Course. Number is unique within the course and
// defines reading order, but is not necessarily contiguous.
type Lesson struct {
	Number int
	Title  string
	Link   string
}

// Validate checks the invariants of a course and its lesson roster.
func (c *Course) Validate() error {
	if c.Title == "" {
		return goerr.New("course title is required")
	}

	seen := make(map[int]bool, len(c.Lessons))
	for _, l := range c.Lessons {
		if l.Number < 0 {
			return goerr.New("lesson number must be non-negative",
				goerr.V(CourseTitleKey, c.Title),
				goerr.V(LessonNumberKey, l.Number))
		}
		if seen[l.Number] {
			return goerr.New("duplicate lesson number",
				goerr.V(CourseTitleKey, c.Title),
				goerr.V(LessonNumberKey, l.Number))
		}
		seen[l.Number] = true
	}
	return nil
}

// Lesson returns the lesson with the given number.
func (c *Course) Lesson(number int) (*Lesson, bool) {
	for i := range c.Lessons {
		if c.Lessons[i].Number == number {
			return &c.Lessons[i], true
		}
	}
	return nil, false
}

// SortedLessons returns a copy of the lesson roster ordered by ascending number.
func (c *Course) SortedLessons() []Lesson {
	lessons := make([]Lesson, len(c.Lessons))
	copy(lessons, c.Lessons)
	sort.SliceStable(lessons, func(i, j int) bool {
		return lessons[i].Number < lessons[j].Number
	})
	return lessons
}

// CatalogText is the text embedded for the course in the catalog collection.
func (c *Course) CatalogText() string {
	if c.Instructor == "" {
		return c.Title
	}
	return c.Title + " " + c.Instructor
}

// Clone returns a deep copy of the course.
func (c *Course) Clone() *Course {
	copied := *c
	if c.Lessons != nil {
		copied.Lessons = make([]Lesson, len(c.Lessons))
		copy(copied.Lessons, c.Lessons)
	}
	return &copied
}

// CourseChunk is a unit of retrievable text. It references its course by title.
type CourseChunk struct {
	Content      string
	CourseTitle  string
	LessonNumber *int
	ChunkIndex   int
}

// ChunkID is the stable secondary key of a chunk in every index backend.
func (c *CourseChunk) ChunkID() string {
	return fmt.Sprintf("%s_%d", c.CourseTitle, c.ChunkIndex)
}

// Metadata returns the structured metadata stored alongside the chunk.
func (c *CourseChunk) Metadata() ChunkMetadata {
	return ChunkMetadata{
		CourseTitle:  c.CourseTitle,
		LessonNumber: CopyInt(c.LessonNumber),
		ChunkIndex:   c.ChunkIndex,
	}
}

// ChunkMetadata is the filterable payload of a content entry.
type ChunkMetadata struct {
	CourseTitle  string
	LessonNumber *int
	ChunkIndex   int
}

// SourceLabel renders "Course - Lesson n", or the bare course title when the chunk has no lesson.
func (m ChunkMetadata) SourceLabel() string {
	if m.LessonNumber == nil {
		return m.CourseTitle
	}
	return m.CourseTitle + " - Lesson " + strconv.Itoa(*m.LessonNumber)
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}

// CopyInt returns a copy of the pointed value, preserving nil.
func CopyInt(v *int) *int {
	if v == nil {
		return nil
	}
	return IntPtr(*v)
}

// EqualInt reports whether two optional integers are equal.
func EqualInt(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
