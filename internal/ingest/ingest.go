// Package ingest writes parser output into a graph.Backend.
//
// Ingestion runs in two phases. Phase one upserts every class and method;
// phase two upserts every call. Call resolution therefore sees the whole
// batch regardless of file order, and re-running the same batch yields the
// same graph.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dusk-indust/codepecker/internal/graph"
)

// FileResult is the parser output for one source file.
type FileResult struct {
	Path    string        `json:"path"`
	Classes []ClassRecord `json:"classes"`
}

// ClassRecord is one class as reported by the parser. An empty FilePath
// falls back to the enclosing FileResult.Path.
type ClassRecord struct {
	Name       string         `json:"name"`
	FilePath   string         `json:"filePath,omitempty"`
	Visibility string         `json:"visibility,omitempty"`
	Methods    []MethodRecord `json:"methods,omitempty"`
}

// MethodRecord is one method and the bare names of everything it calls.
type MethodRecord struct {
	Name       string   `json:"name"`
	Visibility string   `json:"visibility,omitempty"`
	Calls      []string `json:"calls,omitempty"`
}

// Skip records one entity dropped as malformed.
type Skip struct {
	File   string `json:"file"`
	Entity string `json:"entity"`
	Err    error  `json:"-"`
}

func (s Skip) String() string {
	return fmt.Sprintf("%s: %s: %v", s.File, s.Entity, s.Err)
}

// Report counts what a run wrote and lists what it skipped.
type Report struct {
	Files   int    `json:"files"`
	Classes int    `json:"classes"`
	Methods int    `json:"methods"`
	Calls   int    `json:"calls"`
	Skipped []Skip `json:"-"`
}

// SkipCount returns the number of skipped entities.
func (r *Report) SkipCount() int { return len(r.Skipped) }

// Ingestor drives a Backend from parser output. It is not safe for
// concurrent use: the graph expects a single writer.
type Ingestor struct {
	backend graph.Backend
	logger  *zap.Logger
}

// New returns an Ingestor writing to b. A nil logger discards output.
func New(b graph.Backend, logger *zap.Logger) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingestor{backend: b, logger: logger}
}

type pendingCalls struct {
	file   string
	caller graph.MethodRef
	calls  []string
}

// Ingest writes files to the backend. Malformed entities are skipped and
// reported; a backend error stops the run and is returned with the partial
// report.
func (in *Ingestor) Ingest(ctx context.Context, files []FileResult) (*Report, error) {
	rep := &Report{}
	var pending []pendingCalls

	// Phase one: classes and methods.
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		rep.Files++
		for _, c := range f.Classes {
			name := strings.TrimSpace(c.Name)
			path := c.FilePath
			if path == "" {
				path = f.Path
			}
			switch {
			case name == "":
				in.skip(rep, f.Path, "class", "empty class name")
				continue
			case path == "":
				in.skip(rep, f.Path, "class "+name, "missing file path")
				continue
			}

			ref, err := in.backend.UpsertClass(ctx, name, path, graph.ParseVisibility(c.Visibility))
			if err != nil {
				return rep, fmt.Errorf("ingest: %w", err)
			}
			rep.Classes++

			for _, m := range c.Methods {
				mname := strings.TrimSpace(m.Name)
				if mname == "" {
					in.skip(rep, path, "method of "+name, "empty method name")
					continue
				}
				mref, err := in.backend.UpsertMethod(ctx, mname, ref, graph.ParseVisibility(m.Visibility))
				if err != nil {
					return rep, fmt.Errorf("ingest: %w", err)
				}
				rep.Methods++
				if len(m.Calls) > 0 {
					pending = append(pending, pendingCalls{file: path, caller: mref, calls: m.Calls})
				}
			}
		}
	}

	// Phase two: calls.
	for _, p := range pending {
		seen := make(map[string]bool, len(p.calls))
		for _, callee := range p.calls {
			if err := ctx.Err(); err != nil {
				return rep, err
			}
			callee = strings.TrimSpace(callee)
			if callee == "" {
				in.skip(rep, p.file, "call from "+p.caller.ClassName+"."+p.caller.Name, "empty callee name")
				continue
			}
			if seen[callee] {
				continue
			}
			seen[callee] = true
			if err := in.backend.UpsertCall(ctx, p.caller, callee); err != nil {
				return rep, fmt.Errorf("ingest: %w", err)
			}
			rep.Calls++
		}
	}

	in.logger.Info("ingest: complete",
		zap.String("backend", string(in.backend.Kind())),
		zap.Int("files", rep.Files),
		zap.Int("classes", rep.Classes),
		zap.Int("methods", rep.Methods),
		zap.Int("calls", rep.Calls),
		zap.Int("skipped", rep.SkipCount()),
	)
	return rep, nil
}

func (in *Ingestor) skip(rep *Report, file, entity, reason string) {
	s := Skip{File: file, Entity: entity, Err: fmt.Errorf("%w: %s", graph.ErrMalformedInput, reason)}
	rep.Skipped = append(rep.Skipped, s)
	in.logger.Warn("ingest: skipping malformed entity",
		zap.String("file", file),
		zap.String("entity", entity),
		zap.String("reason", reason),
	)
}

// Open initializes b and treats ErrSchema as a warning, so callers can
// proceed without uniqueness guarantees.
func Open(ctx context.Context, b graph.Backend, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	err := b.Initialize(ctx)
	if errors.Is(err, graph.ErrSchema) {
		logger.Warn("graph: continuing without uniqueness constraints",
			zap.String("backend", string(b.Kind())),
			zap.Error(err),
		)
		return nil
	}
	return err
}
