package source

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/syllabus/pkg/domain/interfaces"
)

// Local reads course documents from the top level of a directory.
type Local struct {
	dir string
}

var _ interfaces.DocumentSource = &Local{}

func NewLocal(dir string) *Local {
	return &Local{dir: dir}
}

func (s *Local) Location() string {
	return s.dir
}

// List returns document file names. A missing directory yields no documents.
func (s *Local) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, goerr.Wrap(err, "failed to read document directory", goerr.V("dir", s.dir))
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !IsDocument(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (s *Local) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if name != filepath.Base(name) {
		return nil, goerr.Wrap(ErrInvalidLocation, "document name must not contain a path", goerr.V("name", name))
	}

	f, err := os.Open(filepath.Join(s.dir, name))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open document", goerr.V("dir", s.dir), goerr.V("name", name))
	}
	return f, nil
}
