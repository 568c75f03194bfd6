package usecase

import (
	"context"
	"io"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/syllabus/pkg/domain/interfaces"
	"github.com/secmon-lab/syllabus/pkg/domain/model"
	"github.com/secmon-lab/syllabus/pkg/service/source"
	"github.com/secmon-lab/syllabus/pkg/utils/logging"
	"github.com/secmon-lab/syllabus/pkg/utils/safe"
)

// maxDocumentSize bounds how much of one document is read into memory.
const maxDocumentSize = 16 << 20

type ingestConfig struct {
	clearExisting bool
}

// IngestOption configures a single ingestion pass.
type IngestOption func(*ingestConfig)

// WithClearExisting empties the index before ingesting.
func WithClearExisting() IngestOption {
	return func(c *ingestConfig) {
		c.clearExisting = true
	}
}

// Ingest reads every course document at location (a directory or gs://
// bucket/prefix) and adds courses not yet in the index.
func (uc *UseCases) Ingest(ctx context.Context, location string, opts ...IngestOption) (*model.IngestReport, error) {
	src, err := source.Open(ctx, location)
	if err != nil {
		return nil, err
	}
	if c, ok := src.(io.Closer); ok {
		defer safe.Close(ctx, c)
	}

	return uc.IngestSource(ctx, src, opts...)
}

// IngestSource ingests every document of src. A document that cannot be read,
// parsed or indexed is counted as failed and the pass continues.
func (uc *UseCases) IngestSource(ctx context.Context, src interfaces.DocumentSource, opts ...IngestOption) (*model.IngestReport, error) {
	cfg := &ingestConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	uc.ingestMu.Lock()
	defer uc.ingestMu.Unlock()

	logger := logging.From(ctx).With("location", src.Location())

	if cfg.clearExisting {
		if err := uc.index.Clear(ctx); err != nil {
			return nil, goerr.Wrap(err, "failed to clear index before ingestion")
		}
		logger.Info("cleared index before ingestion")
	}

	names, err := src.List(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list documents", goerr.V("location", src.Location()))
	}

	existing, err := uc.index.GetExistingTitles(ctx)
	if err != nil {
		return nil, err
	}

	report := &model.IngestReport{}
	fail := func(name string, err error) {
		report.Failed++
		report.Failures = append(report.Failures, model.IngestFailure{Document: name, Reason: err.Error()})
		logger.Warn("failed to ingest document", model.DocumentKey, name, "error", err.Error())
	}

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return report, goerr.Wrap(err, "ingestion canceled")
		}

		raw, err := readDocument(ctx, src, name)
		if err != nil {
			fail(name, err)
			continue
		}

		course, chunks, err := uc.chunker.Process(raw)
		if err != nil {
			fail(name, err)
			continue
		}

		if _, ok := existing[course.Title]; ok {
			report.Skipped++
			logger.Debug("course already indexed", model.CourseTitleKey, course.Title, model.DocumentKey, name)
			continue
		}

		if err := uc.index.AddCourse(ctx, course, chunks); err != nil {
			fail(name, err)
			continue
		}

		existing[course.Title] = struct{}{}
		report.CoursesAdded++
		report.ChunksAdded += len(chunks)
		logger.Info("ingested course",
			model.CourseTitleKey, course.Title,
			"lessons", len(course.Lessons),
			"chunks", len(chunks))
	}

	logger.Info("ingestion finished",
		"courses_added", report.CoursesAdded,
		"chunks_added", report.ChunksAdded,
		"skipped", report.Skipped,
		"failed", report.Failed)

	return report, nil
}

func readDocument(ctx context.Context, src interfaces.DocumentSource, name string) (string, error) {
	r, err := src.Open(ctx, name)
	if err != nil {
		return "", err
	}
	defer safe.Close(ctx, r)

	raw, err := io.ReadAll(io.LimitReader(r, maxDocumentSize+1))
	if err != nil {
		return "", goerr.Wrap(err, "failed to read document", goerr.V(model.DocumentKey, name))
	}
	if len(raw) > maxDocumentSize {
		return "", goerr.Wrap(ErrDocumentTooLarge, "document exceeds size limit",
			goerr.V(model.DocumentKey, name), goerr.V("limit", maxDocumentSize))
	}
	return string(raw), nil
}
