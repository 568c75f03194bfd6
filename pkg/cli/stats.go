package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func cmdStats() *cli.Command {
	var appCfg appConfig

	return &cli.Command{
		Name:  "stats",
		Usage: "Show the indexed courses",
		Flags: appCfg.Flags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			uc, closer, err := appCfg.build(ctx, c, need{})
			if err != nil {
				return err
			}
			defer closer()

			stats, err := uc.GetStats(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to get stats")
			}

			color.New(color.Bold).Printf("Courses: %d\n", stats.TotalCourses)
			for _, title := range stats.CourseTitles {
				fmt.Printf("  - %s\n", title)
			}
			return nil
		},
	}
}

func cmdClear() *cli.Command {
	var appCfg appConfig

	return &cli.Command{
		Name:  "clear",
		Usage: "Remove every indexed course",
		Flags: appCfg.Flags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			uc, closer, err := appCfg.build(ctx, c, need{})
			if err != nil {
				return err
			}
			defer closer()

			if err := uc.ClearIndex(ctx); err != nil {
				return goerr.Wrap(err, "failed to clear index")
			}

			fmt.Println("Index cleared")
			return nil
		},
	}
}
