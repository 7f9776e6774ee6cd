//go:build cgo

package mcptools

import (
	"context"
	"encoding/json"
	"sort"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/dusk-indust/codepecker/internal/graph"
)

const fixtureRoot = "../../testdata/fixtures/go_project"

// setupServerClient wires an MCP server and client together using in-memory
// transports over a fresh memory backend.
func setupServerClient(t *testing.T) (*mcp.ClientSession, graph.Backend) {
	t.Helper()
	ctx := context.Background()

	backend := graph.NewMemStore()
	require.NoError(t, backend.Initialize(ctx))
	svc := NewCallGraphService(backend, zaptest.NewLogger(t))
	server := NewCallGraphMCPServer(svc)

	st, ct := mcp.NewInMemoryTransports()
	_, err := server.Connect(ctx, st, nil)
	require.NoError(t, err)

	client := mcp.NewClient(&mcp.Implementation{
		Name:    "test-client",
		Version: "1.0.0",
	}, nil)
	session, err := client.Connect(ctx, ct, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		session.Close()
		backend.Close()
	})
	return session, backend
}

// callTool invokes a tool and decodes its structured output into out.
func callTool(t *testing.T, session *mcp.ClientSession, name string, args any, out any) *mcp.CallToolResult {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	require.NoError(t, err)
	if out != nil && !result.IsError {
		require.NotNil(t, result.StructuredContent, "expected structured content from %s", name)
		raw, err := json.Marshal(result.StructuredContent)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, out))
	}
	return result
}

func ingestFixture(t *testing.T, session *mcp.ClientSession) IngestRepositoryOutput {
	t.Helper()
	var out IngestRepositoryOutput
	result := callTool(t, session, "ingest_repository", IngestRepositoryInput{
		RepoPath:  fixtureRoot,
		Languages: []string{"go"},
	}, &out)
	require.False(t, result.IsError, "ingest_repository should succeed")
	return out
}

func TestMCPListTools(t *testing.T) {
	session, _ := setupServerClient(t)

	result, err := session.ListTools(context.Background(), &mcp.ListToolsParams{})
	require.NoError(t, err)

	names := make([]string, len(result.Tools))
	for i, tool := range result.Tools {
		names[i] = tool.Name
	}
	sort.Strings(names)
	assert.Equal(t, []string{
		"get_call_stack",
		"get_method_call_stack",
		"graph_stats",
		"ingest_repository",
		"list_classes",
	}, names)
}

func TestMCPIngestAndStats(t *testing.T) {
	session, _ := setupServerClient(t)

	out := ingestFixture(t, session)
	assert.Equal(t, 2, out.Result.Scanned)
	assert.Equal(t, 3, out.Stats.ClassCount)
	assert.Equal(t, 4, out.Stats.MethodCount)

	var stats GraphStatsOutput
	callTool(t, session, "graph_stats", GraphStatsInput{}, &stats)
	assert.Equal(t, "memory", stats.Backend)
	assert.Equal(t, out.Stats, stats.Stats)
}

func TestMCPGetCallStack(t *testing.T) {
	session, _ := setupServerClient(t)
	ingestFixture(t, session)

	var out GetCallStackOutput
	result := callTool(t, session, "get_call_stack", GetCallStackInput{ClassNames: []string{"UserService"}}, &out)
	require.False(t, result.IsError)
	require.NotNil(t, out.Hierarchy)
	require.Len(t, out.Hierarchy.Classes, 1)

	svc := out.Hierarchy.Classes[0]
	assert.Equal(t, "UserService", svc.Name)
	assert.Equal(t, "service.go", svc.FilePath)
	require.Len(t, svc.Methods, 2)
	assert.Equal(t, "CreateUser", svc.Methods[0].Name)
	assert.Equal(t, "GetUser", svc.Methods[1].Name)

	var all GetCallStackOutput
	callTool(t, session, "get_call_stack", GetCallStackInput{}, &all)
	require.Len(t, all.Clusters, 1)
	assert.Equal(t, []string{"Repository", "UserService"}, all.Clusters[0].Classes)
}

func TestMCPGetMethodCallStack(t *testing.T) {
	session, _ := setupServerClient(t)
	ingestFixture(t, session)

	var out GetMethodCallStackOutput
	result := callTool(t, session, "get_method_call_stack", GetMethodCallStackInput{
		ClassName:  "UserService",
		MethodName: "CreateUser",
	}, &out)
	require.False(t, result.IsError)
	require.Len(t, out.Hierarchy.Classes, 1)
	assert.Equal(t, "Repository", out.Hierarchy.Classes[0].Name)

	missing := callTool(t, session, "get_method_call_stack", GetMethodCallStackInput{
		ClassName:  "UserService",
		MethodName: "Nope",
	}, nil)
	assert.True(t, missing.IsError)
}

func TestMCPListClasses(t *testing.T) {
	session, _ := setupServerClient(t)
	ingestFixture(t, session)

	var out ListClassesOutput
	callTool(t, session, "list_classes", ListClassesInput{Prefix: "U", Limit: 1}, &out)
	assert.Equal(t, 2, out.Total)
	require.Len(t, out.Classes, 1)
	assert.Equal(t, "User", out.Classes[0].Name)
}

func TestMCPIngestRejectsUnknownLanguage(t *testing.T) {
	session, _ := setupServerClient(t)

	result := callTool(t, session, "ingest_repository", IngestRepositoryInput{
		RepoPath:  fixtureRoot,
		Languages: []string{"cobol"},
	}, nil)
	assert.True(t, result.IsError)
}

// TestMCPCallUnknownTool verifies that calling a non-existent tool returns an
// error.
func TestMCPCallUnknownTool(t *testing.T) {
	session, _ := setupServerClient(t)

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "nonexistent_tool",
		Arguments: map[string]any{},
	})
	// The MCP SDK may return an error at the protocol level or set IsError on
	// the result. Accept either behavior.
	if err != nil {
		return
	}
	require.NotNil(t, result)
	assert.True(t, result.IsError, "calling an unknown tool should set IsError")
}
