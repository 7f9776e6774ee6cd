package mcptools

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// version is set by the linker at build time.
var version = "dev"

// NewCallGraphMCPServer creates an MCP server with the call-graph tools
// registered.
func NewCallGraphMCPServer(svc *CallGraphService) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "codepecker",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_call_stack",
		Description: "Return the class -> method -> call hierarchy for the named classes (or every class), with clusters of classes connected by resolved calls.",
	}, svc.GetCallStack)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_method_call_stack",
		Description: "Return the hierarchy of every class reached by the resolved calls of one method.",
	}, svc.GetMethodCallStack)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "graph_stats",
		Description: "Count the classes, methods and calls stored in the graph.",
	}, svc.GraphStats)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_classes",
		Description: "List stored classes ordered by name and file path, optionally filtered by name prefix.",
	}, svc.ListClasses)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ingest_repository",
		Description: "Walk a repository, parse supported source files with tree-sitter and upsert their classes, methods and calls into the graph.",
	}, svc.IngestRepository)

	return server
}

// RunStdio runs the MCP server on stdio transport, blocking until stdin is
// closed or the context is cancelled.
func RunStdio(ctx context.Context, server *mcp.Server) error {
	return server.Run(ctx, &mcp.StdioTransport{})
}

// RunHTTP serves the MCP server over streamable HTTP on addr until ctx is
// cancelled.
func RunHTTP(ctx context.Context, server *mcp.Server, addr string) error {
	handler := mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Shutdown gracefully when context is cancelled.
	go func() {
		<-ctx.Done()
		httpServer.Shutdown(context.Background())
	}()

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
