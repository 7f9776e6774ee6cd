// Package pipeline connects scanning, parsing and ingestion.
package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/dusk-indust/codepecker/internal/graph"
	"github.com/dusk-indust/codepecker/internal/ingest"
	"github.com/dusk-indust/codepecker/internal/parse"
	"github.com/dusk-indust/codepecker/internal/scan"
)

// Result summarizes one pipeline run.
type Result struct {
	Root     string         `json:"root"`
	Scanned  int            `json:"scanned"`
	Unparsed []string       `json:"unparsed,omitempty"`
	Report   *ingest.Report `json:"report"`
}

// Runner ingests source trees into a backend. The backend must already be
// initialized.
type Runner struct {
	backend graph.Backend
	parser  parse.Parser
	logger  *zap.Logger
}

// NewRunner returns a Runner using a tree-sitter parser.
func NewRunner(b graph.Backend, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{backend: b, parser: parse.NewTreeSitterParser(), logger: logger}
}

// Run scans root with opts and ingests every matching file.
func (r *Runner) Run(ctx context.Context, root string, opts scan.Options) (*Result, error) {
	files, err := scan.Walk(root, opts)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("scanned", zap.String("root", root), zap.Int("files", len(files)))
	return r.Files(ctx, root, files)
}

// Files parses and ingests the given files, relative to root. Nothing is
// cleared beforehand, so repeated runs update the graph in place.
func (r *Runner) Files(ctx context.Context, root string, files []string) (*Result, error) {
	results, unparsed, err := parse.ParseAll(ctx, r.parser, root, files)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	for _, f := range unparsed {
		r.logger.Warn("file not parsed", zap.String("file", f))
	}
	res := &Result{Root: root, Scanned: len(files), Unparsed: unparsed}
	rep, err := ingest.New(r.backend, r.logger).Ingest(ctx, results)
	res.Report = rep
	if err != nil {
		return res, err
	}
	return res, nil
}
