package graph

import (
	"context"
	"io"
)

// Backend is the storage contract for the call graph.
// Implementations: SQLStore (relational), KuzuStore and Neo4jStore (native
// graph), MemStore (in-process), placeholderStore (reserved kinds).
// All graph access goes through this interface; callers never branch on Kind.
type Backend interface {
	// Close releases all held resources. Safe to call more than once.
	io.Closer

	// Kind reports which backend this is.
	Kind() Kind

	// Initialize connects and creates the schema. Idempotent. When the
	// backend was configured with ClearOnInit it also clears the graph.
	Initialize(ctx context.Context) error

	// Clear deletes every node and edge in one unit of work.
	Clear(ctx context.Context) error

	// Upserts. Each is one atomic unit keyed strictly on identity fields.
	UpsertClass(ctx context.Context, name, filePath string, vis Visibility) (ClassRef, error)
	UpsertMethod(ctx context.Context, name string, parent ClassRef, vis Visibility) (MethodRef, error)
	UpsertCall(ctx context.Context, caller MethodRef, calleeName string) error

	// Reads.
	FetchGraph(ctx context.Context, className string) (*GraphView, error)
	FetchStatistics(ctx context.Context) (*GraphStats, error)
	ListClasses(ctx context.Context) ([]ClassNode, error)
}
