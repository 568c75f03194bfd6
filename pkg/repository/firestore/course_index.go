package firestore

import (
	"context"
	"sort"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/syllabus/pkg/domain/model"
	"github.com/secmon-lab/syllabus/pkg/utils/logging"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	distanceField     = "Distance"
	embeddingField    = "Embedding"
	courseTitleField  = "CourseTitle"
	lessonNumberField = "LessonNumber"

	// transactionBatchSize stays under the 500 writes limit of a transaction
	transactionBatchSize = 400
)

// catalogDoc is the Firestore document representation of a catalog entry.
// Embedding is stored as firestore.Vector32 so that FindNearest vector search works.
type catalogDoc struct {
	Title      string             `firestore:"Title"`
	Instructor string             `firestore:"Instructor"`
	Link       string             `firestore:"Link"`
	Lessons    []lessonDoc        `firestore:"Lessons"`
	Embedding  firestore.Vector32 `firestore:"Embedding,omitempty"`
}

type lessonDoc struct {
	Number int    `firestore:"Number"`
	Title  string `firestore:"Title"`
	Link   string `firestore:"Link"`
}

// contentDoc is the Firestore document representation of a content entry.
type contentDoc struct {
	ChunkID      string             `firestore:"ChunkID"`
	CourseTitle  string             `firestore:"CourseTitle"`
	LessonNumber *int               `firestore:"LessonNumber"`
	ChunkIndex   int                `firestore:"ChunkIndex"`
	Content      string             `firestore:"Content"`
	Embedding    firestore.Vector32 `firestore:"Embedding,omitempty"`
}

// docID derives a stable document ID. Titles may contain characters that
// are not allowed in Firestore document IDs.
func docID(key string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)).String()
}

func toCatalogDoc(e *model.CatalogEntry) *catalogDoc {
	doc := &catalogDoc{
		Title:      e.Course.Title,
		Instructor: e.Course.Instructor,
		Link:       e.Course.Link,
		Lessons:    make([]lessonDoc, len(e.Course.Lessons)),
	}
	for i, l := range e.Course.Lessons {
		doc.Lessons[i] = lessonDoc{Number: l.Number, Title: l.Title, Link: l.Link}
	}
	if len(e.Embedding) > 0 {
		doc.Embedding = firestore.Vector32(e.Embedding)
	}
	return doc
}

func fromCatalogDoc(d *catalogDoc) *model.Course {
	course := &model.Course{
		Title:      d.Title,
		Instructor: d.Instructor,
		Link:       d.Link,
	}
	for _, l := range d.Lessons {
		course.Lessons = append(course.Lessons, model.Lesson{Number: l.Number, Title: l.Title, Link: l.Link})
	}
	return course
}

func toContentDoc(e *model.ContentEntry) *contentDoc {
	doc := &contentDoc{
		ChunkID:      e.Chunk.ChunkID(),
		CourseTitle:  e.Chunk.CourseTitle,
		LessonNumber: model.CopyInt(e.Chunk.LessonNumber),
		ChunkIndex:   e.Chunk.ChunkIndex,
		Content:      e.Chunk.Content,
	}
	if len(e.Embedding) > 0 {
		doc.Embedding = firestore.Vector32(e.Embedding)
	}
	return doc
}

func distanceOf(doc *firestore.DocumentSnapshot) float64 {
	if v, ok := doc.Data()[distanceField].(float64); ok {
		return v
	}
	return 0
}

func (f *Firestore) PutCatalog(ctx context.Context, entry *model.CatalogEntry) error {
	if entry == nil || entry.Course == nil || entry.Course.Title == "" {
		return goerr.New("catalog entry requires a course title")
	}

	docRef := f.catalog().Doc(docID(entry.Course.Title))
	if _, err := docRef.Set(ctx, toCatalogDoc(entry)); err != nil {
		return goerr.Wrap(err, "failed to put catalog entry", goerr.V(model.CourseTitleKey, entry.Course.Title))
	}
	return nil
}

func (f *Firestore) PutContent(ctx context.Context, entries []*model.ContentEntry) error {
	for _, e := range entries {
		if e == nil || e.Chunk == nil || e.Chunk.CourseTitle == "" {
			return goerr.New("content entry requires a course title")
		}
	}

	committed := 0
	for start := 0; start < len(entries); start += transactionBatchSize {
		end := min(start+transactionBatchSize, len(entries))
		batch := entries[start:end]

		err := f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
			for _, e := range batch {
				docRef := f.content().Doc(docID(e.Chunk.ChunkID()))
				if err := tx.Set(docRef, toContentDoc(e)); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			f.rollbackContent(ctx, entries[:committed])
			return goerr.Wrap(err, "failed to put content entries",
				goerr.V("offset", start),
				goerr.V("count", len(batch)))
		}
		committed = end
	}
	return nil
}

// rollbackContent deletes entries committed by an earlier batch of a failed PutContent.
func (f *Firestore) rollbackContent(ctx context.Context, entries []*model.ContentEntry) {
	if len(entries) == 0 {
		return
	}

	bw := f.client.BulkWriter(ctx)
	for _, e := range entries {
		if _, err := bw.Delete(f.content().Doc(docID(e.Chunk.ChunkID()))); err != nil {
			logging.From(ctx).Warn("failed to roll back content entry",
				model.CourseTitleKey, e.Chunk.CourseTitle, "error", err.Error())
		}
	}
	bw.End()

	logging.From(ctx).Warn("rolled back partially written content",
		model.CourseTitleKey, entries[0].Chunk.CourseTitle, "count", len(entries))
}

func (f *Firestore) NearestCatalog(ctx context.Context, embedding []float32, k int) ([]*model.CatalogHit, error) {
	vq := f.catalog().FindNearest(embeddingField, firestore.Vector32(embedding), k,
		firestore.DistanceMeasureCosine, &firestore.FindNearestOptions{DistanceResultField: distanceField})

	iter := vq.Documents(ctx)
	defer iter.Stop()

	hits := make([]*model.CatalogHit, 0, k)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate catalog vector search results")
		}

		var d catalogDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal catalog entry from vector search")
		}
		hits = append(hits, &model.CatalogHit{Title: d.Title, Distance: distanceOf(doc)})
	}

	return hits, nil
}

func (f *Firestore) NearestContent(ctx context.Context, embedding []float32, filter model.SearchFilter, k int) ([]*model.SearchResult, error) {
	query := f.content().Query
	if filter.CourseTitle != "" {
		query = query.Where(courseTitleField, "==", filter.CourseTitle)
	}
	if filter.LessonNumber != nil {
		query = query.Where(lessonNumberField, "==", *filter.LessonNumber)
	}

	vq := query.FindNearest(embeddingField, firestore.Vector32(embedding), k,
		firestore.DistanceMeasureCosine, &firestore.FindNearestOptions{DistanceResultField: distanceField})

	iter := vq.Documents(ctx)
	defer iter.Stop()

	results := make([]*model.SearchResult, 0, k)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate content vector search results",
				goerr.V(model.CourseTitleKey, filter.CourseTitle))
		}

		var d contentDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal content entry from vector search")
		}
		results = append(results, &model.SearchResult{
			Content: d.Content,
			Metadata: model.ChunkMetadata{
				CourseTitle:  d.CourseTitle,
				LessonNumber: d.LessonNumber,
				ChunkIndex:   d.ChunkIndex,
			},
			Distance: distanceOf(doc),
		})
	}

	return results, nil
}

func (f *Firestore) GetCourse(ctx context.Context, title string) (*model.Course, error) {
	doc, err := f.catalog().Doc(docID(title)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrNotFound, "course not found", goerr.V(model.CourseTitleKey, title))
		}
		return nil, goerr.Wrap(err, "failed to get course", goerr.V(model.CourseTitleKey, title))
	}

	var d catalogDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal course", goerr.V(model.CourseTitleKey, title))
	}
	return fromCatalogDoc(&d), nil
}

func (f *Firestore) ListTitles(ctx context.Context) ([]string, error) {
	iter := f.catalog().Select("Title").Documents(ctx)
	defer iter.Stop()

	titles := make([]string, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate catalog")
		}

		title, _ := doc.Data()["Title"].(string)
		if title != "" {
			titles = append(titles, title)
		}
	}

	sort.Strings(titles)
	return titles, nil
}

func (f *Firestore) CountCourses(ctx context.Context) (int, error) {
	titles, err := f.ListTitles(ctx)
	if err != nil {
		return 0, err
	}
	return len(titles), nil
}

func (f *Firestore) Clear(ctx context.Context) error {
	for _, col := range []*firestore.CollectionRef{f.content(), f.catalog()} {
		if err := f.deleteAll(ctx, col); err != nil {
			return err
		}
	}
	return nil
}

func (f *Firestore) deleteAll(ctx context.Context, col *firestore.CollectionRef) error {
	iter := col.Select().Documents(ctx)
	defer iter.Stop()

	var refs []*firestore.DocumentRef
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return goerr.Wrap(err, "failed to iterate documents for deletion", goerr.V("collection", col.ID))
		}
		refs = append(refs, doc.Ref)
	}

	if len(refs) == 0 {
		return nil
	}

	// BulkWriter handles batching
	bulkWriter := f.client.BulkWriter(ctx)
	defer bulkWriter.End()

	for _, ref := range refs {
		if _, err := bulkWriter.Delete(ref); err != nil {
			return goerr.Wrap(err, "failed to add Delete operation to bulk writer", goerr.V("collection", col.ID))
		}
	}

	bulkWriter.Flush()
	return nil
}
