package cli

import (
	"context"

	"github.com/m-mizutani/fireconf"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/syllabus/pkg/cli/config"
	"github.com/secmon-lab/syllabus/pkg/repository/firestore"
	"github.com/secmon-lab/syllabus/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdMigrate() *cli.Command {
	var indexCfg config.Index
	var embeddingCfg config.Embedding
	var dryRun bool

	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:        "dry-run",
			Usage:       "Preview changes without applying",
			Destination: &dryRun,
		},
	}
	flags = append(flags, indexCfg.Flags()...)
	flags = append(flags, embeddingCfg.Flags()...)

	return &cli.Command{
		Name:    "migrate",
		Aliases: []string{"m"},
		Usage:   "Create the Firestore vector indexes of the catalog and content collections",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := logging.Default()

			if indexCfg.ProjectID() == "" {
				return goerr.Wrap(config.ErrMissingOption, "firestore-project-id is required",
					goerr.V(config.OptionKey, "firestore-project-id"))
			}

			indexConfig := firestore.IndexConfig(indexCfg.CollectionPrefix(), embeddingCfg.Dimension())
			logger.Info("Migrate configuration",
				"project_id", indexCfg.ProjectID(),
				"database_id", indexCfg.DatabaseID(),
				"collection_prefix", indexCfg.CollectionPrefix(),
				"dimension", embeddingCfg.Dimension(),
				"dry_run", dryRun)

			client, err := fireconf.NewClient(ctx, indexCfg.ProjectID(), indexCfg.DatabaseID())
			if err != nil {
				return goerr.Wrap(err, "failed to create fireconf client")
			}
			defer func() {
				if err := client.Close(); err != nil {
					logger.Error("failed to close fireconf client", "error", err.Error())
				}
			}()

			if !dryRun {
				if err := client.Migrate(ctx, indexConfig); err != nil {
					return goerr.Wrap(err, "failed to apply migrations")
				}
				logger.Info("Migrations applied successfully")
				return nil
			}

			plan, err := client.GetMigrationPlan(ctx, indexConfig)
			if err != nil {
				return goerr.Wrap(err, "failed to create migration plan")
			}
			if len(plan.Steps) == 0 {
				logger.Info("No changes required")
				return nil
			}
			for _, step := range plan.Steps {
				logger.Info("Migration step",
					"collection", step.Collection,
					"operation", step.Operation,
					"description", step.Description,
					"destructive", step.Destructive)
			}
			return nil
		},
	}
}
