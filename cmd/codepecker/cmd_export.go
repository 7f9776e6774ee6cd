package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/codepecker/internal/export"
)

func newExportCmd(a *app) *cobra.Command {
	var (
		format  string
		output  string
		classes []string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the stored call graph as JSON or a Mermaid flowchart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format != "json" && format != "mermaid" {
				return fmt.Errorf("unknown format %q (json or mermaid)", format)
			}
			ctx := cmd.Context()
			b, err := a.openBackend(ctx, boolPtr(false))
			if err != nil {
				return err
			}
			defer b.Close()

			doc, err := export.Build(ctx, b, classes)
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}

			if format == "mermaid" {
				_, err = io.WriteString(w, export.GenerateMermaid(doc.Hierarchy, doc.Clusters))
				return err
			}
			return export.WriteJSON(w, doc)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "output format: json or mermaid")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	cmd.Flags().StringSliceVar(&classes, "class", nil, "restrict to these classes (default: all)")
	return cmd
}
