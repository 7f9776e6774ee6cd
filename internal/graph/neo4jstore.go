package graph

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

// Neo4jParams holds the connection parameters of a Neo4j server.
type Neo4jParams struct {
	URI      string
	Username string
	Password string
	Database string // empty selects the server default
}

// constraintStatements enforce the identity keys. Failures are reported as
// ErrSchema; an "already exists" answer counts as success.
var constraintStatements = []string{
	`CREATE CONSTRAINT class_unique IF NOT EXISTS
	 FOR (c:Class) REQUIRE (c.name, c.file_path) IS UNIQUE`,
	`CREATE CONSTRAINT method_unique IF NOT EXISTS
	 FOR (m:Method) REQUIRE (m.name, m.parent_class_name) IS UNIQUE`,
	`CREATE INDEX method_name IF NOT EXISTS FOR (m:Method) ON (m.name)`,
}

// Neo4jStore implements Backend on a Neo4j server over Bolt. Every upsert
// runs as one managed write transaction; refs carry elementId values.
type Neo4jStore struct {
	params Neo4jParams
	opts   storeOptions

	mu     sync.RWMutex
	driver neo4j.DriverWithContext
}

// Compile-time check that Neo4jStore satisfies Backend.
var _ Backend = (*Neo4jStore)(nil)

// NewNeo4jStore returns a store for the given server. Nothing is dialed
// until Initialize.
func NewNeo4jStore(p Neo4jParams, opts ...Option) *Neo4jStore {
	return &Neo4jStore{params: p, opts: buildOptions(opts)}
}

// Kind reports KindNeo4j.
func (s *Neo4jStore) Kind() Kind { return KindNeo4j }

// Initialize connects, verifies connectivity and creates constraints.
func (s *Neo4jStore) Initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.driver == nil {
		if err := s.connect(ctx); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	s.mu.Unlock()

	var schemaErr error
	for _, stmt := range constraintStatements {
		if err := s.write(ctx, func(tx neo4j.ManagedTransaction) error {
			_, err := tx.Run(ctx, stmt, nil)
			return err
		}); err != nil && !strings.Contains(strings.ToLower(err.Error()), "already exists") {
			schemaErr = errors.Join(schemaErr, err)
		}
	}
	if schemaErr != nil {
		s.opts.logger.Warn("neo4j: uniqueness constraints unavailable", zap.Error(schemaErr))
	}

	if s.opts.clearOnInit {
		if err := s.Clear(ctx); err != nil {
			return err
		}
	}
	if schemaErr != nil {
		return fmt.Errorf("neo4j: constraints: %w: %w", ErrSchema, schemaErr)
	}
	return nil
}

// connect builds the driver and waits for the server. Caller holds mu.
func (s *Neo4jStore) connect(ctx context.Context) error {
	timeout := s.opts.connectTimeout
	driver, err := neo4j.NewDriverWithContext(
		s.params.URI,
		neo4j.BasicAuth(s.params.Username, s.params.Password, ""),
		func(cfg *neo4j.Config) {
			cfg.SocketConnectTimeout = timeout
			cfg.ConnectionAcquisitionTimeout = timeout
		},
	)
	if err != nil {
		return fmt.Errorf("neo4j: create driver: %w: %w", ErrConnection, err)
	}

	vctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(vctx); err != nil {
		_ = driver.Close(context.Background())
		return fmt.Errorf("neo4j: connect %s: %w: %w", s.params.URI, ErrConnection, err)
	}
	s.driver = driver
	s.opts.logger.Debug("neo4j: connected", zap.String("uri", s.params.URI))
	return nil
}

// Close shuts the driver down. Safe to call more than once.
func (s *Neo4jStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.driver == nil {
		return nil
	}
	err := s.driver.Close(context.Background())
	s.driver = nil
	return err
}

// session opens a session in the given mode.
func (s *Neo4jStore) session(ctx context.Context, mode neo4j.AccessMode) (neo4j.SessionWithContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.driver == nil {
		return nil, fmt.Errorf("neo4j: store not initialized: %w", ErrConnection)
	}
	return s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: s.params.Database,
	}), nil
}

// write runs fn in one managed write transaction.
func (s *Neo4jStore) write(ctx context.Context, fn func(tx neo4j.ManagedTransaction) error) error {
	session, err := s.session(ctx, neo4j.AccessModeWrite)
	if err != nil {
		return err
	}
	defer session.Close(ctx)

	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, fn(tx)
	})
	return err
}

// read runs fn in one managed read transaction.
func (s *Neo4jStore) read(ctx context.Context, fn func(tx neo4j.ManagedTransaction) error) error {
	session, err := s.session(ctx, neo4j.AccessModeRead)
	if err != nil {
		return err
	}
	defer session.Close(ctx)

	_, err = session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, fn(tx)
	})
	return err
}

// collect runs cypher and returns every record's values in column order.
func collect(ctx context.Context, tx neo4j.ManagedTransaction, cypher string, params map[string]any) ([][]any, error) {
	result, err := tx.Run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	var rows [][]any
	for result.Next(ctx) {
		rows = append(rows, result.Record().Values)
	}
	return rows, result.Err()
}

// ---------- Writes ----------

// Clear detaches and deletes every Class and Method node.
func (s *Neo4jStore) Clear(ctx context.Context) error {
	err := s.write(ctx, func(tx neo4j.ManagedTransaction) error {
		_, err := tx.Run(ctx, "MATCH (n) WHERE n:Class OR n:Method DETACH DELETE n", nil)
		return err
	})
	if err != nil {
		return fmt.Errorf("neo4j: clear: %w", err)
	}
	return nil
}

// UpsertClass merges a Class node on (name, file_path).
func (s *Neo4jStore) UpsertClass(ctx context.Context, name, filePath string, vis Visibility) (ClassRef, error) {
	filePath = NormalizePath(filePath)
	var id string
	err := s.write(ctx, func(tx neo4j.ManagedTransaction) error {
		rows, err := collect(ctx, tx,
			`MERGE (c:Class {name: $name, file_path: $fp})
			 ON CREATE SET c.visibility = $vis
			 ON MATCH SET c.visibility = $vis
			 RETURN elementId(c)`,
			map[string]any{"name": name, "fp": filePath, "vis": string(vis)},
		)
		if err != nil {
			return err
		}
		if len(rows) > 0 {
			id = toString(rows[0][0])
		}
		return nil
	})
	if err != nil {
		return ClassRef{}, fmt.Errorf("neo4j: upsert class %s: %w", name, err)
	}
	return ClassRef{Name: name, FilePath: filePath, handle: id}, nil
}

// UpsertMethod merges the Method node on (name, parent_class_name) and the
// HAS_METHOD edge from its parent class.
func (s *Neo4jStore) UpsertMethod(ctx context.Context, name string, parent ClassRef, vis Visibility) (MethodRef, error) {
	var id string
	err := s.write(ctx, func(tx neo4j.ManagedTransaction) error {
		cid, err := neo4jResolveClass(ctx, tx, parent)
		if err != nil {
			return err
		}
		rows, err := collect(ctx, tx,
			`MATCH (c:Class) WHERE elementId(c) = $cid
			 MERGE (m:Method {name: $name, parent_class_name: $cls})
			 SET m.visibility = $vis
			 MERGE (c)-[:HAS_METHOD]->(m)
			 RETURN elementId(m)`,
			map[string]any{"cid": cid, "name": name, "cls": parent.Name, "vis": string(vis)},
		)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return fmt.Errorf("class %q: %w", parent.Name, ErrNotFound)
		}
		id = toString(rows[0][0])
		return nil
	})
	if err != nil {
		return MethodRef{}, fmt.Errorf("neo4j: upsert method %s: %w", name, err)
	}
	return MethodRef{Name: name, ClassName: parent.Name, handle: id}, nil
}

// UpsertCall keeps exactly one METHOD_CALL edge per (caller, callee name).
// Unresolved calls are stored as a self-loop with resolved=false.
func (s *Neo4jStore) UpsertCall(ctx context.Context, caller MethodRef, calleeName string) error {
	err := s.write(ctx, func(tx neo4j.ManagedTransaction) error {
		src, err := neo4jResolveMethod(ctx, tx, caller)
		if err != nil {
			return err
		}
		rows, err := collect(ctx, tx,
			`MATCH (t:Method {name: $callee})
			 RETURN elementId(t) ORDER BY t.parent_class_name LIMIT 1`,
			map[string]any{"callee": calleeName},
		)
		if err != nil {
			return err
		}
		dst, resolved := src, false
		if len(rows) > 0 {
			dst, resolved = toString(rows[0][0]), true
		}

		params := map[string]any{
			"src":      src,
			"dst":      dst,
			"callee":   calleeName,
			"resolved": resolved,
		}
		if _, err := tx.Run(ctx,
			`MATCH (a:Method)-[r:METHOD_CALL {method_name: $callee}]->(b:Method)
			 WHERE elementId(a) = $src AND elementId(b) <> $dst
			 DELETE r`,
			params,
		); err != nil {
			return err
		}
		_, err = tx.Run(ctx,
			`MATCH (a:Method), (b:Method)
			 WHERE elementId(a) = $src AND elementId(b) = $dst
			 MERGE (a)-[r:METHOD_CALL {method_name: $callee}]->(b)
			 SET r.resolved = $resolved`,
			params,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("neo4j: upsert call %s.%s -> %s: %w", caller.ClassName, caller.Name, calleeName, err)
	}
	return nil
}

// neo4jResolveClass returns the elementId behind ref, trusting the handle
// only while it still names the same class.
func neo4jResolveClass(ctx context.Context, tx neo4j.ManagedTransaction, ref ClassRef) (string, error) {
	if h, ok := ref.handle.(string); ok && h != "" {
		rows, err := collect(ctx, tx,
			"MATCH (c:Class) WHERE elementId(c) = $id AND c.name = $name RETURN elementId(c)",
			map[string]any{"id": h, "name": ref.Name},
		)
		if err != nil {
			return "", err
		}
		if len(rows) > 0 {
			return h, nil
		}
	}

	cypher := "MATCH (c:Class {name: $name}) RETURN elementId(c) ORDER BY c.file_path LIMIT 1"
	params := map[string]any{"name": ref.Name}
	if ref.FilePath != "" {
		cypher = "MATCH (c:Class {name: $name, file_path: $fp}) RETURN elementId(c)"
		params["fp"] = NormalizePath(ref.FilePath)
	}
	rows, err := collect(ctx, tx, cypher, params)
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", fmt.Errorf("class %q: %w", ref.Name, ErrNotFound)
	}
	return toString(rows[0][0]), nil
}

// neo4jResolveMethod is neo4jResolveClass for methods.
func neo4jResolveMethod(ctx context.Context, tx neo4j.ManagedTransaction, ref MethodRef) (string, error) {
	if h, ok := ref.handle.(string); ok && h != "" {
		rows, err := collect(ctx, tx,
			"MATCH (m:Method) WHERE elementId(m) = $id AND m.name = $name RETURN elementId(m)",
			map[string]any{"id": h, "name": ref.Name},
		)
		if err != nil {
			return "", err
		}
		if len(rows) > 0 {
			return h, nil
		}
	}
	rows, err := collect(ctx, tx,
		"MATCH (m:Method {name: $name, parent_class_name: $cls}) RETURN elementId(m)",
		map[string]any{"name": ref.Name, "cls": ref.ClassName},
	)
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", fmt.Errorf("method %s.%s: %w", ref.ClassName, ref.Name, ErrNotFound)
	}
	return toString(rows[0][0]), nil
}

// ---------- Reads ----------

// FetchGraph returns the named classes, the methods they own and every
// outgoing call of those methods.
func (s *Neo4jStore) FetchGraph(ctx context.Context, className string) (*GraphView, error) {
	view := &GraphView{}
	params := map[string]any{"name": className}
	err := s.read(ctx, func(tx neo4j.ManagedTransaction) error {
		view.Classes, view.Methods, view.Calls = nil, nil, nil

		rows, err := collect(ctx, tx,
			`MATCH (c:Class {name: $name})
			 RETURN c.name, c.file_path, c.visibility ORDER BY c.file_path`,
			params,
		)
		if err != nil {
			return err
		}
		for _, r := range rows {
			view.Classes = append(view.Classes, ClassNode{
				Name:       toString(r[0]),
				FilePath:   toString(r[1]),
				Visibility: Visibility(toString(r[2])),
			})
		}

		rows, err = collect(ctx, tx,
			`MATCH (:Class {name: $name})-[:HAS_METHOD]->(m:Method)
			 RETURN DISTINCT m.name, m.parent_class_name, m.visibility`,
			params,
		)
		if err != nil {
			return err
		}
		for _, r := range rows {
			view.Methods = append(view.Methods, MethodNode{
				Name:       toString(r[0]),
				ClassName:  toString(r[1]),
				Visibility: Visibility(toString(r[2])),
			})
		}

		rows, err = collect(ctx, tx,
			`MATCH (:Class {name: $name})-[:HAS_METHOD]->(m:Method)-[r:METHOD_CALL]->(t:Method)
			 RETURN DISTINCT m.parent_class_name, m.name, r.method_name, r.resolved, t.parent_class_name`,
			params,
		)
		if err != nil {
			return err
		}
		for _, r := range rows {
			edge := CallEdge{
				CallerClass:  toString(r[0]),
				CallerMethod: toString(r[1]),
				CalleeName:   toString(r[2]),
			}
			if toBool(r[3]) {
				edge.TargetClass = toString(r[4])
			}
			view.Calls = append(view.Calls, edge)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("neo4j: fetch graph %s: %w", className, err)
	}
	sort.SliceStable(view.Methods, func(i, j int) bool { return view.Methods[i].Name < view.Methods[j].Name })
	return view, nil
}

// FetchStatistics counts Class nodes, Method nodes and METHOD_CALL edges.
func (s *Neo4jStore) FetchStatistics(ctx context.Context) (*GraphStats, error) {
	var st GraphStats
	err := s.read(ctx, func(tx neo4j.ManagedTransaction) error {
		counts := []struct {
			cypher string
			dst    *int
		}{
			{"MATCH (c:Class) RETURN count(c)", &st.ClassCount},
			{"MATCH (m:Method) RETURN count(m)", &st.MethodCount},
			{"MATCH (:Method)-[r:METHOD_CALL]->(:Method) RETURN count(r)", &st.CallCount},
		}
		for _, c := range counts {
			rows, err := collect(ctx, tx, c.cypher, nil)
			if err != nil {
				return err
			}
			if len(rows) > 0 && len(rows[0]) > 0 {
				*c.dst = toInt(rows[0][0])
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("neo4j: statistics: %w", err)
	}
	return &st, nil
}

// ListClasses returns every class ordered by name then file path.
func (s *Neo4jStore) ListClasses(ctx context.Context) ([]ClassNode, error) {
	var out []ClassNode
	err := s.read(ctx, func(tx neo4j.ManagedTransaction) error {
		out = nil
		rows, err := collect(ctx, tx,
			`MATCH (c:Class)
			 RETURN c.name, c.file_path, c.visibility ORDER BY c.name, c.file_path`,
			nil,
		)
		if err != nil {
			return err
		}
		for _, r := range rows {
			out = append(out, ClassNode{
				Name:       toString(r[0]),
				FilePath:   toString(r[1]),
				Visibility: Visibility(toString(r[2])),
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("neo4j: list classes: %w", err)
	}
	return out, nil
}
