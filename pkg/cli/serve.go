package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	httpctrl "github.com/secmon-lab/syllabus/pkg/controller/http"
	"github.com/secmon-lab/syllabus/pkg/utils/async"
	"github.com/secmon-lab/syllabus/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdServe() *cli.Command {
	var addr string
	var docs string
	var staticDir string
	var appCfg appConfig

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "HTTP server address",
			Value:       ":8000",
			Sources:     cli.EnvVars("SYLLABUS_ADDR"),
			Destination: &addr,
		},
		&cli.StringFlag{
			Name:        "docs",
			Usage:       "Folder or gs:// prefix of course documents ingested at start-up",
			Sources:     cli.EnvVars("SYLLABUS_DOCS"),
			Destination: &docs,
		},
		&cli.StringFlag{
			Name:        "static-dir",
			Usage:       "Directory of a frontend served at /",
			Sources:     cli.EnvVars("SYLLABUS_STATIC_DIR"),
			Destination: &staticDir,
		},
	}
	flags = append(flags, appCfg.Flags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start HTTP server",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			uc, closer, err := appCfg.build(ctx, c, need{embedder: true, llm: true})
			if err != nil {
				return err
			}
			defer closer()

			// Documents load in the background so the API is reachable at once.
			var ingestDone <-chan struct{}
			if docs != "" {
				ingestDone = async.Dispatch(ctx, "startup-ingest", func(ctx context.Context) error {
					report, err := uc.Ingest(ctx, docs)
					if err != nil {
						return goerr.Wrap(err, "failed to ingest documents at start-up", goerr.V("docs", docs))
					}
					logging.From(ctx).Info("Start-up ingestion completed",
						"courses_added", report.CoursesAdded,
						"chunks_added", report.ChunksAdded,
						"skipped", report.Skipped,
						"failed", report.Failed,
					)
					return nil
				})
			}

			var httpOpts []httpctrl.Options
			if staticDir != "" {
				httpOpts = append(httpOpts, httpctrl.WithStaticFiles(os.DirFS(staticDir)))
			}

			server := &http.Server{
				Addr:              addr,
				Handler:           httpctrl.New(uc, httpOpts...),
				ReadHeaderTimeout: 30 * time.Second,
			}

			// Setup signal handling for graceful shutdown
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

			errCh := make(chan error, 1)
			go func() {
				logging.Default().Info("Starting HTTP server", "addr", addr, "docs", docs)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- goerr.Wrap(err, "failed to start server")
				}
			}()

			select {
			case err := <-errCh:
				return err
			case sig := <-sigCh:
				logging.Default().Info("Received shutdown signal", "signal", sig)

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()

				if err := server.Shutdown(shutdownCtx); err != nil {
					return goerr.Wrap(err, "failed to shutdown server gracefully")
				}

				// The index must not close under a running ingestion.
				if ingestDone != nil {
					select {
					case <-ingestDone:
					case <-shutdownCtx.Done():
						logging.Default().Warn("Start-up ingestion still running at shutdown")
					}
				}

				logging.Default().Info("Server shutdown completed")
				return nil
			}
		},
	}
}
