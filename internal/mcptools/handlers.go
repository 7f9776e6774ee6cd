package mcptools

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/dusk-indust/codepecker/internal/graph"
	"github.com/dusk-indust/codepecker/internal/parse"
	"github.com/dusk-indust/codepecker/internal/pipeline"
	"github.com/dusk-indust/codepecker/internal/scan"
)

const defaultListLimit = 100

// CallGraphService holds the backend used by the MCP tool handlers.
// Ingestion takes the write lock; queries share the read lock.
type CallGraphService struct {
	backend graph.Backend
	logger  *zap.Logger
	mu      sync.RWMutex
}

// NewCallGraphService creates a CallGraphService over an initialized backend.
func NewCallGraphService(b graph.Backend, logger *zap.Logger) *CallGraphService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CallGraphService{backend: b, logger: logger}
}

// GetCallStack assembles the class -> method -> call hierarchy and its
// clusters.
func (s *CallGraphService) GetCallStack(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input GetCallStackInput,
) (*mcp.CallToolResult, GetCallStackOutput, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, err := graph.BuildHierarchy(ctx, s.backend, input.ClassNames)
	if err != nil {
		return nil, GetCallStackOutput{}, fmt.Errorf("get call stack: %w", err)
	}
	clusters := graph.ComputeClusters(h)
	if clusters == nil {
		clusters = []graph.Cluster{}
	}
	return nil, GetCallStackOutput{Hierarchy: h, Clusters: clusters}, nil
}

// GetMethodCallStack expands the classes reached by one method's resolved
// calls.
func (s *CallGraphService) GetMethodCallStack(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input GetMethodCallStackInput,
) (*mcp.CallToolResult, GetMethodCallStackOutput, error) {
	if input.ClassName == "" || input.MethodName == "" {
		return nil, GetMethodCallStackOutput{}, fmt.Errorf("className and methodName are required")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, err := graph.MethodCallStack(ctx, s.backend, input.ClassName, input.MethodName)
	if err != nil {
		return nil, GetMethodCallStackOutput{}, err
	}
	return nil, GetMethodCallStackOutput{Hierarchy: h}, nil
}

// GraphStats returns entity counts.
func (s *CallGraphService) GraphStats(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ GraphStatsInput,
) (*mcp.CallToolResult, GraphStatsOutput, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats, err := s.backend.FetchStatistics(ctx)
	if err != nil {
		return nil, GraphStatsOutput{}, fmt.Errorf("graph stats: %w", err)
	}
	return nil, GraphStatsOutput{Backend: string(s.backend.Kind()), Stats: *stats}, nil
}

// ListClasses returns stored classes, optionally filtered by name prefix.
func (s *CallGraphService) ListClasses(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ListClassesInput,
) (*mcp.CallToolResult, ListClassesOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	s.mu.RLock()
	all, err := s.backend.ListClasses(ctx)
	s.mu.RUnlock()
	if err != nil {
		return nil, ListClassesOutput{}, fmt.Errorf("list classes: %w", err)
	}

	matched := make([]graph.ClassNode, 0, len(all))
	for _, c := range all {
		if strings.HasPrefix(c.Name, input.Prefix) {
			matched = append(matched, c)
		}
	}
	out := ListClassesOutput{Total: len(matched), Classes: matched}
	if len(matched) > limit {
		out.Classes = matched[:limit]
	}
	return nil, out, nil
}

// IngestRepository scans, parses and ingests a repository into the
// backend without clearing it.
func (s *CallGraphService) IngestRepository(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input IngestRepositoryInput,
) (*mcp.CallToolResult, IngestRepositoryOutput, error) {
	if input.RepoPath == "" {
		return nil, IngestRepositoryOutput{}, fmt.Errorf("repoPath is required")
	}
	langs, unknown := parse.ParseLanguages(input.Languages)
	if len(unknown) > 0 {
		return nil, IngestRepositoryOutput{}, fmt.Errorf("unsupported languages: %s", strings.Join(unknown, ", "))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := pipeline.NewRunner(s.backend, s.logger).Run(ctx, input.RepoPath, scan.Options{
		Languages:   langs,
		ExcludeDirs: input.ExcludeDirs,
	})
	if err != nil {
		return nil, IngestRepositoryOutput{}, fmt.Errorf("ingest repository: %w", err)
	}
	stats, err := s.backend.FetchStatistics(ctx)
	if err != nil {
		return nil, IngestRepositoryOutput{}, fmt.Errorf("ingest repository: %w", err)
	}

	out := IngestRepositoryOutput{Result: res, Stats: *stats}
	for _, sk := range res.Report.Skipped {
		out.Skipped = append(out.Skipped, sk.String())
	}
	return nil, out, nil
}
