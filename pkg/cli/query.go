package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/syllabus/pkg/agent/tool"
	"github.com/secmon-lab/syllabus/pkg/domain/model"
	"github.com/urfave/cli/v3"
)

func cmdQuery() *cli.Command {
	var appCfg appConfig
	var sessionID string

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "session",
			Aliases:     []string{"s"},
			Usage:       "Session ID to continue a conversation (needs a persistent session backend)",
			Sources:     cli.EnvVars("SYLLABUS_SESSION_ID"),
			Destination: &sessionID,
		},
	}
	flags = append(flags, appCfg.Flags()...)

	return &cli.Command{
		Name:      "query",
		Aliases:   []string{"q"},
		Usage:     "Ask a question about the indexed courses",
		ArgsUsage: "<question>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			question := strings.Join(c.Args().Slice(), " ")
			if strings.TrimSpace(question) == "" {
				return goerr.New("question is required")
			}

			uc, closer, err := appCfg.build(ctx, c, need{embedder: true, llm: true})
			if err != nil {
				return err
			}
			defer closer()

			progress := color.New(color.Faint)
			var mu sync.Mutex
			ctx = tool.WithProgress(ctx, func(_ context.Context, _ string, message string) {
				mu.Lock()
				defer mu.Unlock()
				progress.Fprintln(os.Stderr, message)
			})

			answer, err := uc.AnswerQuery(ctx, question, sessionID)
			if err != nil {
				return goerr.Wrap(err, "failed to answer query")
			}

			printAnswer(answer)
			return nil
		},
	}
}

func printAnswer(answer *model.Answer) {
	fmt.Println(answer.Text)

	if len(answer.Sources) > 0 {
		fmt.Println()
		color.New(color.Bold).Println("Sources:")
		link := color.New(color.FgCyan)
		for _, s := range answer.Sources {
			if s.Link != "" {
				fmt.Printf("  - %s ", s.Title)
				link.Println(s.Link)
			} else {
				fmt.Printf("  - %s\n", s.Title)
			}
		}
	}

	color.New(color.Faint).Printf("\nsession: %s\n", answer.SessionID)
}
