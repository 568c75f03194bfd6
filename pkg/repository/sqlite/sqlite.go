package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/syllabus/pkg/domain/interfaces"
	"github.com/secmon-lab/syllabus/pkg/domain/model"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// DatabaseFile is the name of the index database inside the index directory.
const DatabaseFile = "index.db"

// insertBatchSize keeps statements under the SQLite variable limit
const insertBatchSize = 100

// CourseIndex persists both collections to a SQLite database in a local
// directory. Ranking is done in process after metadata filtering in SQL.
type CourseIndex struct {
	db *gorm.DB
}

var _ interfaces.CourseIndex = &CourseIndex{}

// New opens (or creates) the index stored under dir.
func New(ctx context.Context, dir string) (*CourseIndex, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, goerr.Wrap(err, "failed to create index directory", goerr.V("dir", dir))
	}

	path := filepath.Join(dir, DatabaseFile)
	// WAL lets queries read while an ingestion pass writes
	dsn := "file:" + path + "?_busy_timeout=5000&_journal_mode=WAL"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open index database", goerr.V("path", path))
	}

	if err := db.WithContext(ctx).AutoMigrate(&catalogRow{}, &contentRow{}); err != nil {
		return nil, goerr.Wrap(err, "failed to migrate index database", goerr.V("path", path))
	}

	return &CourseIndex{db: db}, nil
}

func (r *CourseIndex) PutCatalog(ctx context.Context, entry *model.CatalogEntry) error {
	if entry == nil || entry.Course == nil || entry.Course.Title == "" {
		return goerr.New("catalog entry requires a course title")
	}

	row, err := toCatalogRow(entry)
	if err != nil {
		return err
	}

	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(row).Error; err != nil {
		return goerr.Wrap(err, "failed to put catalog entry", goerr.V(model.CourseTitleKey, entry.Course.Title))
	}
	return nil
}

func (r *CourseIndex) PutContent(ctx context.Context, entries []*model.ContentEntry) error {
	if len(entries) == 0 {
		return nil
	}

	rows := make([]*contentRow, 0, len(entries))
	for _, e := range entries {
		if e == nil || e.Chunk == nil || e.Chunk.CourseTitle == "" {
			return goerr.New("content entry requires a course title")
		}
		rows = append(rows, toContentRow(e))
	}

	// one transaction so a course's chunks become visible together
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).CreateInBatches(rows, insertBatchSize).Error
	})
	if err != nil {
		return goerr.Wrap(err, "failed to put content entries", goerr.V("count", len(rows)))
	}
	return nil
}

func (r *CourseIndex) NearestCatalog(ctx context.Context, embedding []float32, k int) ([]*model.CatalogHit, error) {
	var rows []catalogRow
	if err := r.db.WithContext(ctx).Select("title", "embedding").Find(&rows).Error; err != nil {
		return nil, goerr.Wrap(err, "failed to scan catalog")
	}

	hits := make([]*model.CatalogHit, 0, len(rows))
	for _, row := range rows {
		vec, err := decodeVector(row.Embedding)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to decode catalog embedding", goerr.V(model.CourseTitleKey, row.Title))
		}
		if len(vec) == 0 {
			continue
		}
		hits = append(hits, &model.CatalogHit{Title: row.Title, Distance: model.CosineDistance(embedding, vec)})
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
	query := r.db.WithContext(ctx).Model(&contentRow{})
	if filter.CourseTitle != "" {
		query = query.Where("course_title = ?", filter.CourseTitle)
	}
	if filter.LessonNumber != nil {
		query = query.Where("lesson_number = ?", *filter.LessonNumber)
	}

	var rows []contentRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, goerr.Wrap(err, "failed to scan content",
			goerr.V(model.CourseTitleKey, filter.CourseTitle))
	}

	results := make([]*model.SearchResult, 0, len(rows))
	for _, row := range rows {
		vec, err := decodeVector(row.Embedding)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to decode content embedding", goerr.V("chunk_id", row.ChunkID))
		}
		if len(vec) == 0 {
			continue
		}
		results = append(results, &model.SearchResult{
			Content: row.Content,
			Metadata: model.ChunkMetadata{
				CourseTitle:  row.CourseTitle,
				LessonNumber: model.CopyInt(row.LessonNumber),
				ChunkIndex:   row.ChunkIndex,
			},
			Distance: model.CosineDistance(embedding, vec),
		})
	}

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
	if k > 0 && k < len(results) {
		results = results[:k]
	}
	return results, nil
}

func (r *CourseIndex) GetCourse(ctx context.Context, title string) (*model.Course, error) {
	var row catalogRow
	err := r.db.WithContext(ctx).Where("title = ?", title).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, goerr.Wrap(ErrNotFound, "course not found", goerr.V(model.CourseTitleKey, title))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get course", goerr.V(model.CourseTitleKey, title))
	}
	return fromCatalogRow(&row)
}

func (r *CourseIndex) ListTitles(ctx context.Context) ([]string, error) {
	var titles []string
	if err := r.db.WithContext(ctx).Model(&catalogRow{}).Order("title").Pluck("title", &titles).Error; err != nil {
		return nil, goerr.Wrap(err, "failed to list course titles")
	}
	return titles, nil
}

func (r *CourseIndex) CountCourses(ctx context.Context) (int, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&catalogRow{}).Count(&n).Error; err != nil {
		return 0, goerr.Wrap(err, "failed to count courses")
	}
	return int(n), nil
}

func (r *CourseIndex) Clear(ctx context.Context) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&contentRow{}).Error; err != nil {
			return err
		}
		return tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&catalogRow{}).Error
	})
	if err != nil {
		return goerr.Wrap(err, "failed to clear index")
	}
	return nil
}

func (r *CourseIndex) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return goerr.Wrap(err, "failed to get database handle")
	}
	return sqlDB.Close()
}
