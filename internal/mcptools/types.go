package mcptools

import (
	"github.com/dusk-indust/codepecker/internal/graph"
	"github.com/dusk-indust/codepecker/internal/pipeline"
)

// --- MCP Tool Input Types ---
// The MCP Go SDK generates JSON schemas from these struct tags.

// GetCallStackInput is the input for the get_call_stack MCP tool.
type GetCallStackInput struct {
	ClassNames []string `json:"classNames,omitempty" jsonschema:"classes to include (default: every class in the graph)"`
}

// GetCallStackOutput is the result of the get_call_stack MCP tool.
type GetCallStackOutput struct {
	Hierarchy *graph.Hierarchy `json:"hierarchy"`
	Clusters  []graph.Cluster  `json:"clusters"`
}

// GetMethodCallStackInput is the input for the get_method_call_stack MCP tool.
type GetMethodCallStackInput struct {
	ClassName  string `json:"className" jsonschema:"class declaring the method"`
	MethodName string `json:"methodName" jsonschema:"method whose resolved callees to expand"`
}

// GetMethodCallStackOutput is the result of the get_method_call_stack MCP tool.
type GetMethodCallStackOutput struct {
	Hierarchy *graph.Hierarchy `json:"hierarchy"`
}

// GraphStatsInput is the input for the graph_stats MCP tool.
type GraphStatsInput struct{}

// GraphStatsOutput is the result of the graph_stats MCP tool.
type GraphStatsOutput struct {
	Backend string           `json:"backend"`
	Stats   graph.GraphStats `json:"stats"`
}

// ListClassesInput is the input for the list_classes MCP tool.
type ListClassesInput struct {
	Prefix string `json:"prefix,omitempty" jsonschema:"only return classes whose name starts with this prefix"`
	Limit  int    `json:"limit,omitempty" jsonschema:"maximum number of results (default: 100)"`
}

// ListClassesOutput is the result of the list_classes MCP tool.
type ListClassesOutput struct {
	Classes []graph.ClassNode `json:"classes"`
	Total   int               `json:"total"`
}

// IngestRepositoryInput is the input for the ingest_repository MCP tool.
type IngestRepositoryInput struct {
	RepoPath    string   `json:"repoPath" jsonschema:"the absolute path to the repository to ingest"`
	Languages   []string `json:"languages,omitempty" jsonschema:"languages to ingest (default: all). Values: go, typescript, python, rust"`
	ExcludeDirs []string `json:"excludeDirs,omitempty" jsonschema:"directory names to exclude (e.g. vendor, node_modules)"`
}

// IngestRepositoryOutput is the result of the ingest_repository MCP tool.
type IngestRepositoryOutput struct {
	Result  *pipeline.Result `json:"result"`
	Skipped []string         `json:"skipped,omitempty"`
	Stats   graph.GraphStats `json:"stats"`
}
