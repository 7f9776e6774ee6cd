package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dusk-indust/codepecker/internal/config"
	"github.com/dusk-indust/codepecker/internal/graph"
	"github.com/dusk-indust/codepecker/internal/ingest"
	"github.com/dusk-indust/codepecker/internal/logging"
	"github.com/dusk-indust/codepecker/internal/parse"
	"github.com/dusk-indust/codepecker/internal/scan"
)

// app carries the global flags and the state built from them.
type app struct {
	projectRoot string
	dbType      string
	dbParams    map[string]string
	verbose     bool

	cfg    *config.ProjectConfig
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "codepecker",
		Short:         "Ingest source call graphs into a pluggable graph store",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.projectRoot, "project-root", ".", "project directory holding codepecker.yml and .env")
	pf.StringVar(&a.dbType, "db-type", "", "backend kind: "+kindList())
	pf.StringToStringVar(&a.dbParams, "db-param", nil, "backend parameter override (key=value, repeatable)")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newIngestCmd(a),
		newExportCmd(a),
		newStatsCmd(a),
		newClearCmd(a),
		newWatchCmd(a),
		newServeMCPCmd(a),
		newVersionCmd(),
	)
	return root
}

func kindList() string {
	var names []string
	for _, k := range graph.KnownKinds() {
		names = append(names, string(k))
	}
	return strings.Join(names, ", ")
}

// setup loads configuration, applies flag overrides and builds the logger.
func (a *app) setup() error {
	cfg, err := config.Load(a.projectRoot)
	if err != nil {
		return err
	}
	current := cfg.Database.Type
	if current == "" {
		current = string(graph.KindSQLite)
	}
	if a.dbType != "" && !strings.EqualFold(a.dbType, current) {
		cfg.Database.Type = a.dbType
		cfg.Database.Params = nil
	}
	if len(a.dbParams) > 0 {
		if cfg.Database.Params == nil {
			cfg.Database.Params = make(map[string]string, len(a.dbParams))
		}
		for k, v := range a.dbParams {
			cfg.Database.Params[k] = v
		}
	}
	if a.verbose {
		cfg.Verbose = true
	}
	a.cfg = cfg

	logger, err := logging.New(cfg.Verbose)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	a.logger = logger
	return nil
}

// openBackend builds and initializes the configured backend. clearOnInit, when
// non-nil, overrides the configured clear-on-init setting. The caller must
// Close the returned backend.
func (a *app) openBackend(ctx context.Context, clearOnInit *bool) (graph.Backend, error) {
	gcfg, err := a.cfg.GraphConfig()
	if err != nil {
		return nil, err
	}
	if clearOnInit != nil {
		gcfg.ClearOnInit = *clearOnInit
	}
	b, err := graph.NewBackend(gcfg, graph.WithLogger(a.logger))
	if err != nil {
		return nil, err
	}
	if err := ingest.Open(ctx, b, a.logger); err != nil {
		b.Close()
		if errors.Is(err, graph.ErrNotImplemented) {
			return nil, fmt.Errorf("backend %q is not available yet: %w", gcfg.Kind, err)
		}
		return nil, err
	}
	a.logger.Debug("backend ready",
		zap.String("kind", string(gcfg.Kind)),
		zap.Bool("clearOnInit", gcfg.ClearOnInit),
	)
	return b, nil
}

// scanOptions resolves the configured languages and exclusions.
func (a *app) scanOptions(langFlags, excludeFlags []string) (scan.Options, error) {
	names := a.cfg.Languages
	if len(langFlags) > 0 {
		names = langFlags
	}
	langs, unknown := parse.ParseLanguages(names)
	if len(unknown) > 0 {
		return scan.Options{}, fmt.Errorf("unsupported languages: %v", unknown)
	}
	return scan.Options{
		Languages:   langs,
		ExcludeDirs: append(append([]string(nil), a.cfg.ExcludeDirs...), excludeFlags...),
	}, nil
}

// sourceRoot returns args[0] or the project root.
func (a *app) sourceRoot(args []string) (string, error) {
	root := a.projectRoot
	if len(args) > 0 {
		root = args[0]
	}
	return filepath.Abs(root)
}

func boolPtr(b bool) *bool { return &b }
