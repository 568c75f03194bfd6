package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/syllabus/pkg/domain/model"
	"github.com/secmon-lab/syllabus/pkg/usecase"
	"github.com/urfave/cli/v3"
)

func cmdIngest() *cli.Command {
	var appCfg appConfig
	var clearExisting bool

	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:        "clear",
			Usage:       "Remove every indexed course before ingesting",
			Sources:     cli.EnvVars("SYLLABUS_INGEST_CLEAR"),
			Destination: &clearExisting,
		},
	}
	flags = append(flags, appCfg.Flags()...)

	return &cli.Command{
		Name:      "ingest",
		Aliases:   []string{"i"},
		Usage:     "Ingest course documents from a folder or gs:// prefix",
		ArgsUsage: "<location>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			location := c.Args().First()
			if location == "" {
				return goerr.New("document location is required")
			}

			uc, closer, err := appCfg.build(ctx, c, need{embedder: true})
			if err != nil {
				return err
			}
			defer closer()

			var opts []usecase.IngestOption
			if clearExisting {
				opts = append(opts, usecase.WithClearExisting())
			}

			report, err := uc.Ingest(ctx, location, opts...)
			if err != nil {
				return goerr.Wrap(err, "failed to ingest documents", goerr.V("location", location))
			}

			printReport(report)
			return nil
		},
	}
}

func printReport(report *model.IngestReport) {
	fmt.Printf("Added %d courses with %d chunks\n", report.CoursesAdded, report.ChunksAdded)
	if report.Skipped > 0 {
		fmt.Printf("Skipped %d courses already indexed\n", report.Skipped)
	}
	if report.Failed > 0 {
		warn := color.New(color.FgYellow)
		warn.Printf("Failed %d documents\n", report.Failed)
		for _, f := range report.Failures {
			warn.Printf("  %s: %s\n", f.Document, f.Reason)
		}
	}
}
