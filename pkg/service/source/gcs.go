package source

import (
	"context"
	"io"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/syllabus/pkg/domain/interfaces"
	"google.golang.org/api/iterator"
)

const (
	listTimeout = 30 * time.Second
	readTimeout = 2 * time.Minute
)

// GCS reads course documents stored under a prefix of a Cloud Storage bucket.
// Objects in nested "directories" below the prefix are ignored.
type GCS struct {
	client *storage.Client
	bucket string
	prefix string
}

var _ interfaces.DocumentSource = &GCS{}

// NewGCS creates a source using application default credentials.
func NewGCS(ctx context.Context, bucket, prefix string) (*GCS, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage client", goerr.V("bucket", bucket))
	}
	return &GCS{client: client, bucket: bucket, prefix: prefix}, nil
}

func (s *GCS) Location() string {
	return gcsScheme + s.bucket + "/" + s.prefix
}

func (s *GCS) List(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()

	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: s.prefix, Delimiter: "/"})

	var names []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list documents",
				goerr.V("bucket", s.bucket), goerr.V("prefix", s.prefix))
		}
		// synthetic directory entries carry only Prefix
		if attrs.Name == "" {
			continue
		}

		name := strings.TrimPrefix(attrs.Name, s.prefix)
		if name == "" || !IsDocument(name) {
			continue
		}
		names = append(names, name)
	}

	sort.Strings(names)
	return names, nil
}

// readCloserWithCancel keeps the read context alive until the reader is closed.
type readCloserWithCancel struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (r *readCloserWithCancel) Close() error {
	err := r.ReadCloser.Close()
	r.cancel()
	return err
}

func (s *GCS) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)

	r, err := s.client.Bucket(s.bucket).Object(s.prefix + name).NewReader(ctx)
	if err != nil {
		cancel()
		return nil, goerr.Wrap(err, "failed to open document",
			goerr.V("bucket", s.bucket), goerr.V("object", s.prefix+name))
	}
	return &readCloserWithCancel{ReadCloser: r, cancel: cancel}, nil
}

func (s *GCS) Close() error {
	return s.client.Close()
}
