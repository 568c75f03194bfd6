package usecase

import (
	"context"

	"github.com/secmon-lab/syllabus/pkg/domain/model"
)

// GetStats reports the number of indexed courses and their titles.
func (uc *UseCases) GetStats(ctx context.Context) (*model.Stats, error) {
	titles, err := uc.index.ListTitles(ctx)
	if err != nil {
		return nil, err
	}
	return &model.Stats{
		TotalCourses: len(titles),
		CourseTitles: titles,
	}, nil
}

// ClearIndex removes every course from the index.
func (uc *UseCases) ClearIndex(ctx context.Context) error {
	uc.ingestMu.Lock()
	defer uc.ingestMu.Unlock()
	return uc.index.Clear(ctx)
}
