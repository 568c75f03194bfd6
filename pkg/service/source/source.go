package source

import (
	"context"
	"path"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/syllabus/pkg/domain/interfaces"
)

// gcsScheme marks a location as a Cloud Storage bucket and prefix.
const gcsScheme = "gs://"

// ErrInvalidLocation is returned when a location cannot be parsed.
var ErrInvalidLocation = goerr.New("invalid document location")

// documentExtensions are the file types read as course documents.
var documentExtensions = map[string]struct{}{
	".txt": {},
	".md":  {},
}

// IsDocument reports whether a file name has a course document extension.
func IsDocument(name string) bool {
	_, ok := documentExtensions[strings.ToLower(path.Ext(name))]
	return ok
}

// Open returns the document source for a location: gs://bucket/prefix for
// Cloud Storage, anything else as a local directory. The caller closes the
// returned source when it implements io.Closer.
func Open(ctx context.Context, location string) (interfaces.DocumentSource, error) {
	if location == "" {
		return nil, goerr.Wrap(ErrInvalidLocation, "location is empty")
	}

	if strings.HasPrefix(location, gcsScheme) {
		bucket, prefix, err := ParseGCSLocation(location)
		if err != nil {
			return nil, err
		}
		return NewGCS(ctx, bucket, prefix)
	}

	return NewLocal(location), nil
}

// ParseGCSLocation splits gs://bucket/prefix into its bucket and object prefix.
func ParseGCSLocation(location string) (bucket, prefix string, err error) {
	rest, ok := strings.CutPrefix(location, gcsScheme)
	if !ok {
		return "", "", goerr.Wrap(ErrInvalidLocation, "not a gs:// location", goerr.V("location", location))
	}

	bucket, prefix, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", goerr.Wrap(ErrInvalidLocation, "bucket name is empty", goerr.V("location", location))
	}
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return bucket, prefix, nil
}
