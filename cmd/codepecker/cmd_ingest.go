package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dusk-indust/codepecker/internal/pipeline"
)

func newIngestCmd(a *app) *cobra.Command {
	var (
		langs    []string
		excludes []string
		noClear  bool
	)
	cmd := &cobra.Command{
		Use:   "ingest [dir]",
		Short: "Parse a source tree and store its classes, methods and calls",
		Args:  cobra.MaximumNArgs(1),
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
			var clearOnInit *bool
			if noClear {
				clearOnInit = boolPtr(false)
			}
			b, err := a.openBackend(ctx, clearOnInit)
			if err != nil {
				return err
			}
			defer b.Close()

			res, err := pipeline.NewRunner(b, a.logger).Run(ctx, root, opts)
			if err != nil {
				return err
			}
			for _, sk := range res.Report.Skipped {
				a.logger.Debug("skipped", zap.String("entry", sk.String()))
			}
			stats, err := b.FetchStatistics(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ingested %d files: %d classes, %d methods, %d calls (%d skipped)\n",
				res.Report.Files, stats.ClassCount, stats.MethodCount, stats.CallCount, res.Report.SkipCount())
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&langs, "lang", nil, "languages to ingest (go, typescript, python, rust)")
	cmd.Flags().StringSliceVar(&excludes, "exclude", nil, "directory names to skip")
	cmd.Flags().BoolVar(&noClear, "no-clear", false, "keep the existing graph instead of clearing it first")
	return cmd
}
