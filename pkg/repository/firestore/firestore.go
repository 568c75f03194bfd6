package firestore

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/syllabus/pkg/domain/interfaces"
)

const (
	catalogCollection = "catalog"
	contentCollection = "content"
)

// Firestore stores the catalog and content collections in Firestore and uses
// native vector search. The indexes it needs are declared by IndexConfig.
type Firestore struct {
	client           *firestore.Client
	collectionPrefix string
}

var _ interfaces.CourseIndex = &Firestore{}

type Option func(*Firestore)

func WithCollectionPrefix(prefix string) Option {
	return func(f *Firestore) {
		f.collectionPrefix = prefix
	}
}

func New(ctx context.Context, projectID, databaseID string, opts ...Option) (*Firestore, error) {
	var (
		client *firestore.Client
		err    error
	)
	if databaseID != "" {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	} else {
		client, err = firestore.NewClient(ctx, projectID)
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("projectID", projectID),
			goerr.V("databaseID", databaseID))
	}

	f := &Firestore{client: client}
	for _, opt := range opts {
		opt(f)
	}

	return f, nil
}

func collectionName(prefix, name string) string {
	if prefix != "" {
		return prefix + "_" + name
	}
	return name
}

func (f *Firestore) catalog() *firestore.CollectionRef {
	return f.client.Collection(collectionName(f.collectionPrefix, catalogCollection))
}

func (f *Firestore) content() *firestore.CollectionRef {
	return f.client.Collection(collectionName(f.collectionPrefix, contentCollection))
}

func (f *Firestore) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}
