package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dusk-indust/codepecker/internal/pipeline"
	"github.com/dusk-indust/codepecker/internal/watch"
)

func newWatchCmd(a *app) *cobra.Command {
	var (
		langs    []string
		excludes []string
		debounce time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Ingest a source tree, then re-ingest files as they change",
		Long: `watch performs a full ingest, then re-parses changed files and upserts
them into the same graph. Deleted files and removed methods stay in the graph
until the next full ingest.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			root, err := a.sourceRoot(args)
			if err != nil {
				return err
			}
			opts, err := a.scanOptions(langs, excludes)
			if err != nil {
				return err
			}
			b, err := a.openBackend(ctx, nil)
			if err != nil {
				return err
			}
			defer b.Close()

			runner := pipeline.NewRunner(b, a.logger)
			res, err := runner.Run(ctx, root, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ingested %d files, watching %s\n", res.Report.Files, root)

			w, err := watch.New(root, opts, func(ctx context.Context, files []string) error {
				res, err := runner.Files(ctx, root, files)
				if err != nil {
					return err
				}
				a.logger.Debug("batch ingested",
					zap.Strings("files", files),
					zap.Int("skipped", res.Report.SkipCount()),
				)
				return nil
			}, watch.WithDebounce(debounce), watch.WithLogger(a.logger))
			if err != nil {
				return err
			}
			return w.Run(ctx)
		},
	}
	cmd.Flags().StringSliceVar(&langs, "lang", nil, "languages to ingest (go, typescript, python, rust)")
	cmd.Flags().StringSliceVar(&excludes, "exclude", nil, "directory names to skip")
	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "quiet period before re-ingesting")
	return cmd
}
