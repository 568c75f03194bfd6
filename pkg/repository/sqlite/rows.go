package sqlite

import (
	"encoding/binary"
	"encoding/json"
	"math"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/syllabus/pkg/domain/model"
	"gorm.io/datatypes"
)

// catalogRow is one course of the catalog collection.
type catalogRow struct {
	Title      string `gorm:"primaryKey"`
	Instructor string
	Link       string
	Lessons    datatypes.JSON
	Embedding  []byte
}

func (catalogRow) TableName() string { return "catalog" }

// contentRow is one chunk of the content collection.
type contentRow struct {
	ChunkID      string `gorm:"primaryKey"`
	CourseTitle  string `gorm:"index:idx_content_filter,priority:1"`
	LessonNumber *int   `gorm:"index:idx_content_filter,priority:2"`
	ChunkIndex   int
	Content      string
	Embedding    []byte
}

func (contentRow) TableName() string { return "content" }

type lessonJSON struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Link   string `json:"link,omitempty"`
}

func toCatalogRow(e *model.CatalogEntry) (*catalogRow, error) {
	lessons := make([]lessonJSON, len(e.Course.Lessons))
	for i, l := range e.Course.Lessons {
		lessons[i] = lessonJSON{Number: l.Number, Title: l.Title, Link: l.Link}
	}
	raw, err := json.Marshal(lessons)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal lessons", goerr.V(model.CourseTitleKey, e.Course.Title))
	}

	return &catalogRow{
		Title:      e.Course.Title,
		Instructor: e.Course.Instructor,
		Link:       e.Course.Link,
		Lessons:    datatypes.JSON(raw),
		Embedding:  encodeVector(e.Embedding),
	}, nil
}

func fromCatalogRow(row *catalogRow) (*model.Course, error) {
	course := &model.Course{
		Title:      row.Title,
		Instructor: row.Instructor,
		Link:       row.Link,
	}

	if len(row.Lessons) > 0 {
		var lessons []lessonJSON
		if err := json.Unmarshal(row.Lessons, &lessons); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal lessons", goerr.V(model.CourseTitleKey, row.Title))
		}
		for _, l := range lessons {
			course.Lessons = append(course.Lessons, model.Lesson{Number: l.Number, Title: l.Title, Link: l.Link})
		}
	}

	return course, nil
}

func toContentRow(e *model.ContentEntry) *contentRow {
	return &contentRow{
		ChunkID:      e.Chunk.ChunkID(),
		CourseTitle:  e.Chunk.CourseTitle,
		LessonNumber: model.CopyInt(e.Chunk.LessonNumber),
		ChunkIndex:   e.Chunk.ChunkIndex,
		Content:      e.Chunk.Content,
		Embedding:    encodeVector(e.Embedding),
	}
}

// encodeVector stores a vector as little-endian float32 values.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, goerr.New("corrupted vector", goerr.V("bytes", len(b)))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}
