package config

import (
	"context"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/syllabus/pkg/domain/interfaces"
	"github.com/secmon-lab/syllabus/pkg/repository/firestore"
	"github.com/secmon-lab/syllabus/pkg/repository/memory"
	"github.com/secmon-lab/syllabus/pkg/repository/sqlite"
	"github.com/secmon-lab/syllabus/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// Index holds CLI flags for the vector index backend
type Index struct {
	backend          string
	dir              string
	projectID        string
	databaseID       string
	collectionPrefix string
}

// Flags returns CLI flags for index configuration
func (x *Index) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "index-backend",
			Usage:       "Index backend type [sqlite|memory|firestore]",
			Category:    "Index",
			Value:       "sqlite",
			Sources:     cli.EnvVars("SYLLABUS_INDEX_BACKEND"),
			Destination: &x.backend,
		},
		&cli.StringFlag{
			Name:        "index-dir",
			Usage:       "Directory of the sqlite index",
			Category:    "Index",
			Value:       "./data/index",
			Sources:     cli.EnvVars("SYLLABUS_INDEX_DIR"),
			Destination: &x.dir,
		},
		&cli.StringFlag{
			Name:        "firestore-project-id",
			Usage:       "Firestore Project ID (required when using firestore backend)",
			Category:    "Index",
			Sources:     cli.EnvVars("SYLLABUS_FIRESTORE_PROJECT_ID"),
			Destination: &x.projectID,
		},
		&cli.StringFlag{
			Name:        "firestore-database-id",
			Usage:       "Firestore Database ID",
			Category:    "Index",
			Sources:     cli.EnvVars("SYLLABUS_FIRESTORE_DATABASE_ID"),
			Destination: &x.databaseID,
		},
		&cli.StringFlag{
			Name:        "firestore-collection-prefix",
			Usage:       "Prefix of the catalog and content collection names",
			Category:    "Index",
			Sources:     cli.EnvVars("SYLLABUS_FIRESTORE_COLLECTION_PREFIX"),
			Destination: &x.collectionPrefix,
		},
	}
}

// Backend returns the configured backend type
func (x *Index) Backend() string {
	return x.backend
}

// ProjectID returns the Firestore project ID
func (x *Index) ProjectID() string {
	return x.projectID
}

// DatabaseID returns the Firestore database ID
func (x *Index) DatabaseID() string {
	return x.databaseID
}

// CollectionPrefix returns the Firestore collection name prefix
func (x *Index) CollectionPrefix() string {
	return x.collectionPrefix
}

// LogAttrs returns log attributes for the index configuration
func (x *Index) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("backend", x.backend),
		slog.String("dir", x.dir),
		slog.String("firestore_project_id", x.projectID),
		slog.String("firestore_database_id", x.databaseID),
		slog.String("firestore_collection_prefix", x.collectionPrefix),
	}
}

// Configure opens the index of the configured backend.
// The caller is responsible for calling Close() on the returned index.
func (x *Index) Configure(ctx context.Context) (interfaces.CourseIndex, error) {
	switch x.backend {
	case "sqlite":
		idx, err := sqlite.New(ctx, x.dir)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to open sqlite index")
		}
		logging.Default().Info("Using sqlite index", "dir", x.dir)
		return idx, nil

	case "firestore":
		if x.projectID == "" {
			return nil, goerr.Wrap(ErrMissingOption, "firestore-project-id is required when using firestore backend",
				goerr.V(OptionKey, "firestore-project-id"))
		}
		var opts []firestore.Option
		if x.collectionPrefix != "" {
			opts = append(opts, firestore.WithCollectionPrefix(x.collectionPrefix))
		}
		idx, err := firestore.New(ctx, x.projectID, x.databaseID, opts...)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to initialize firestore index")
		}
		logging.Default().Info("Using Firestore index",
			"project_id", x.projectID,
			"database_id", x.databaseID,
		)
		return idx, nil

	case "memory":
		logging.Default().Info("Using in-memory index (development mode)")
		return memory.NewCourseIndex(), nil

	default:
		return nil, goerr.Wrap(ErrInvalidBackend, "invalid index backend", goerr.V(BackendKey, x.backend))
	}
}
