//go:build cgo

package graph

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	kuzu "github.com/kuzudb/go-kuzu"
	"go.uber.org/zap"
)

// KuzuStore implements Backend on an embedded KuzuDB graph.
// It requires CGO because the go-kuzu driver wraps KuzuDB's C library.
//
// Class keys are "filePath:name" and Method keys are "className.name", so a
// method is shared by every class with the same name. Unresolved calls are
// stored as a self-loop with resolved=false since a relationship needs a
// target node.
type KuzuStore struct {
	path string
	opts storeOptions

	// mu serializes use of conn; a kuzu.Connection is not goroutine-safe.
	mu   sync.Mutex
	db   *kuzu.Database
	conn *kuzu.Connection
}

// Compile-time check that KuzuStore satisfies Backend.
var _ Backend = (*KuzuStore)(nil)

// NewKuzuStore returns a store for the database directory at path. An empty
// path or ":memory:" selects an in-memory database. Nothing is opened until
// Initialize.
func NewKuzuStore(path string, opts ...Option) *KuzuStore {
	if path == "" {
		path = ":memory:"
	}
	return &KuzuStore{path: path, opts: buildOptions(opts)}
}

func newKuzuBackend(path string, opts ...Option) (Backend, error) {
	return NewKuzuStore(path, opts...), nil
}

// Kind reports KindKuzu.
func (s *KuzuStore) Kind() Kind { return KindKuzu }

// open creates the database and connection. Caller holds mu.
func (s *KuzuStore) open() error {
	if s.path != ":memory:" {
		// KuzuDB creates the leaf directory itself.
		if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
			return fmt.Errorf("kuzu: create parent directory: %w: %w", ErrConnection, err)
		}
	}
	db, err := kuzu.OpenDatabase(s.path, kuzu.DefaultSystemConfig())
	if err != nil {
		return fmt.Errorf("kuzu: open database: %w: %w", ErrConnection, err)
	}
	conn, err := kuzu.OpenConnection(db)
	if err != nil {
		db.Close()
		return fmt.Errorf("kuzu: open connection: %w: %w", ErrConnection, err)
	}
	s.db, s.conn = db, conn
	s.opts.logger.Debug("kuzu: opened", zap.String("path", s.path))
	return nil
}

// Close releases the connection and database. Safe to call more than once.
func (s *KuzuStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	if s.db != nil {
		s.db.Close()
		s.db = nil
	}
	return nil
}

// ready fails with ErrConnection before Initialize. Caller holds mu.
func (s *KuzuStore) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.conn == nil {
		return fmt.Errorf("kuzu: store not initialized: %w", ErrConnection)
	}
	return nil
}

// ---------- Schema setup ----------

// ddlStatements defines the Cypher DDL executed by Initialize.
// Order matters: node tables must precede relationship tables.
var ddlStatements = []string{
	`CREATE NODE TABLE IF NOT EXISTS Class(
		id STRING,
		name STRING,
		file_path STRING,
		visibility STRING,
		PRIMARY KEY(id)
	)`,
	`CREATE NODE TABLE IF NOT EXISTS Method(
		id STRING,
		name STRING,
		parent_class_name STRING,
		visibility STRING,
		PRIMARY KEY(id)
	)`,
	`CREATE REL TABLE IF NOT EXISTS HAS_METHOD(FROM Class TO Method)`,
	`CREATE REL TABLE IF NOT EXISTS METHOD_CALL(
		FROM Method TO Method,
		method_name STRING,
		resolved BOOLEAN
	)`,
}

// Initialize opens the database and creates node and relationship tables.
// Identity is enforced by the primary keys, so there is no separate
// constraint step that could fail with ErrSchema.
func (s *KuzuStore) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		if err := s.open(); err != nil {
			return err
		}
	}
	for _, stmt := range ddlStatements {
		res, err := s.conn.Query(stmt)
		if err != nil {
			return fmt.Errorf("kuzu: init schema: %w", err)
		}
		res.Close()
	}
	if s.opts.clearOnInit {
		return s.clearLocked(ctx)
	}
	return nil
}

// ---------- Write operations ----------

// Clear detaches and deletes every Method and Class in one transaction.
func (s *KuzuStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clearLocked(ctx)
}

func (s *KuzuStore) clearLocked(ctx context.Context) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	err := s.withTx(func() error {
		if err := s.exec("MATCH (m:Method) DETACH DELETE m", nil); err != nil {
			return err
		}
		return s.exec("MATCH (c:Class) DETACH DELETE c", nil)
	})
	if err != nil {
		return fmt.Errorf("kuzu: clear: %w", err)
	}
	return nil
}

// UpsertClass merges a Class node on its "filePath:name" key.
func (s *KuzuStore) UpsertClass(ctx context.Context, name, filePath string, vis Visibility) (ClassRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(ctx); err != nil {
		return ClassRef{}, err
	}

	filePath = NormalizePath(filePath)
	id := classID(filePath, name)
	err := s.exec(
		`MERGE (c:Class {id: $id})
		 ON CREATE SET c.name = $name, c.file_path = $fp, c.visibility = $vis
		 ON MATCH SET c.visibility = $vis`,
		map[string]any{
			"id":   id,
			"name": name,
			"fp":   filePath,
			"vis":  string(vis),
		},
	)
	if err != nil {
		return ClassRef{}, fmt.Errorf("kuzu: upsert class %s: %w", name, err)
	}
	return ClassRef{Name: name, FilePath: filePath, handle: id}, nil
}

// UpsertMethod merges the Method node and its HAS_METHOD edge in one
// transaction.
func (s *KuzuStore) UpsertMethod(ctx context.Context, name string, parent ClassRef, vis Visibility) (MethodRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(ctx); err != nil {
		return MethodRef{}, err
	}

	cid, err := s.resolveClass(parent)
	if err != nil {
		return MethodRef{}, fmt.Errorf("kuzu: upsert method %s: %w", name, err)
	}
	mid := methodID(parent.Name, name)
	err = s.withTx(func() error {
		if err := s.exec(
			`MERGE (m:Method {id: $id})
			 ON CREATE SET m.name = $name, m.parent_class_name = $cls, m.visibility = $vis
			 ON MATCH SET m.visibility = $vis`,
			map[string]any{
				"id":   mid,
				"name": name,
				"cls":  parent.Name,
				"vis":  string(vis),
			},
		); err != nil {
			return err
		}
		return s.exec(
			`MATCH (c:Class {id: $cid}), (m:Method {id: $mid})
			 MERGE (c)-[:HAS_METHOD]->(m)`,
			map[string]any{"cid": cid, "mid": mid},
		)
	})
	if err != nil {
		return MethodRef{}, fmt.Errorf("kuzu: upsert method %s: %w", name, err)
	}
	return MethodRef{Name: name, ClassName: parent.Name, handle: mid}, nil
}

// UpsertCall keeps exactly one METHOD_CALL edge per (caller, callee name).
// The target is the Method with that name whose class name sorts lowest; an edge pointing
// elsewhere is replaced.
func (s *KuzuStore) UpsertCall(ctx context.Context, caller MethodRef, calleeName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(ctx); err != nil {
		return err
	}

	src, err := s.resolveMethod(caller)
	if err != nil {
		return fmt.Errorf("kuzu: upsert call %s.%s: %w", caller.ClassName, caller.Name, err)
	}
	rows, err := s.query(
		"MATCH (t:Method {name: $callee}) RETURN t.id ORDER BY t.parent_class_name, t.id LIMIT 1",
		map[string]any{"callee": calleeName},
	)
	if err != nil {
		return fmt.Errorf("kuzu: upsert call %s.%s: %w", caller.ClassName, caller.Name, err)
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
	err = s.withTx(func() error {
		if err := s.exec(
			`MATCH (a:Method {id: $src})-[r:METHOD_CALL]->(b:Method)
			 WHERE r.method_name = $callee AND (b.id <> $dst OR r.resolved <> $resolved)
			 DELETE r`,
			params,
		); err != nil {
			return err
		}
		return s.exec(
			`MATCH (a:Method {id: $src}), (b:Method {id: $dst})
			 MERGE (a)-[:METHOD_CALL {method_name: $callee, resolved: $resolved}]->(b)`,
			params,
		)
	})
	if err != nil {
		return fmt.Errorf("kuzu: upsert call %s.%s -> %s: %w", caller.ClassName, caller.Name, calleeName, err)
	}
	return nil
}

// resolveClass returns the node key behind ref. Caller holds mu.
func (s *KuzuStore) resolveClass(ref ClassRef) (string, error) {
	id, _ := ref.handle.(string)
	if id == "" && ref.FilePath != "" {
		id = classID(NormalizePath(ref.FilePath), ref.Name)
	}
	if id != "" {
		rows, err := s.query("MATCH (c:Class {id: $id}) RETURN c.name", map[string]any{"id": id})
		if err != nil {
			return "", err
		}
		if len(rows) > 0 && toString(rows[0][0]) == ref.Name {
			return id, nil
		}
		if ref.FilePath != "" {
			return "", fmt.Errorf("class %q: %w", ref.Name, ErrNotFound)
		}
	}
	rows, err := s.query(
		"MATCH (c:Class {name: $name}) RETURN c.id ORDER BY c.id LIMIT 1",
		map[string]any{"name": ref.Name},
	)
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", fmt.Errorf("class %q: %w", ref.Name, ErrNotFound)
	}
	return toString(rows[0][0]), nil
}

// resolveMethod returns the node key behind ref. Caller holds mu.
func (s *KuzuStore) resolveMethod(ref MethodRef) (string, error) {
	id := methodID(ref.ClassName, ref.Name)
	rows, err := s.query("MATCH (m:Method {id: $id}) RETURN m.id", map[string]any{"id": id})
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", fmt.Errorf("method %s.%s: %w", ref.ClassName, ref.Name, ErrNotFound)
	}
	return id, nil
}

// ---------- Read operations ----------

// FetchGraph returns the named classes, the methods they own and every
// outgoing call of those methods.
func (s *KuzuStore) FetchGraph(ctx context.Context, className string) (*GraphView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	params := map[string]any{"name": className}
	view := &GraphView{}

	rows, err := s.query(
		`MATCH (c:Class {name: $name})
		 RETURN c.name, c.file_path, c.visibility ORDER BY c.file_path`,
		params,
	)
	if err != nil {
		return nil, fmt.Errorf("kuzu: fetch graph %s: %w", className, err)
	}
	for _, r := range rows {
		view.Classes = append(view.Classes, ClassNode{
			Name:       toString(r[0]),
			FilePath:   toString(r[1]),
			Visibility: Visibility(toString(r[2])),
		})
	}

	rows, err = s.query(
		`MATCH (c:Class {name: $name})-[:HAS_METHOD]->(m:Method)
		 RETURN DISTINCT m.id, m.name, m.parent_class_name, m.visibility`,
		params,
	)
	if err != nil {
		return nil, fmt.Errorf("kuzu: fetch graph %s: %w", className, err)
	}
	sortRows(rows)
	for _, r := range rows {
		view.Methods = append(view.Methods, MethodNode{
			Name:       toString(r[1]),
			ClassName:  toString(r[2]),
			Visibility: Visibility(toString(r[3])),
		})
	}

	rows, err = s.query(
		`MATCH (c:Class {name: $name})-[:HAS_METHOD]->(m:Method)-[r:METHOD_CALL]->(t:Method)
		 RETURN DISTINCT m.id, m.parent_class_name, m.name, r.method_name, r.resolved, t.parent_class_name`,
		params,
	)
	if err != nil {
		return nil, fmt.Errorf("kuzu: fetch graph %s: %w", className, err)
	}
	sortRows(rows)
	for _, r := range rows {
		edge := CallEdge{
			CallerClass:  toString(r[1]),
			CallerMethod: toString(r[2]),
			CalleeName:   toString(r[3]),
		}
		if toBool(r[4]) {
			edge.TargetClass = toString(r[5])
		}
		view.Calls = append(view.Calls, edge)
	}
	return view, nil
}

// FetchStatistics counts Class nodes, Method nodes and METHOD_CALL edges.
func (s *KuzuStore) FetchStatistics(ctx context.Context) (*GraphStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	classes, err := s.countTable("Class")
	if err != nil {
		return nil, fmt.Errorf("kuzu: statistics: %w", err)
	}
	methods, err := s.countTable("Method")
	if err != nil {
		return nil, fmt.Errorf("kuzu: statistics: %w", err)
	}
	rows, err := s.query("MATCH ()-[r:METHOD_CALL]->() RETURN count(r)", nil)
	if err != nil {
		return nil, fmt.Errorf("kuzu: statistics: %w", err)
	}
	calls := 0
	if len(rows) > 0 && len(rows[0]) > 0 {
		calls = toInt(rows[0][0])
	}
	return &GraphStats{ClassCount: classes, MethodCount: methods, CallCount: calls}, nil
}

// ListClasses returns every class ordered by name then file path.
func (s *KuzuStore) ListClasses(ctx context.Context) ([]ClassNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.query("MATCH (c:Class) RETURN c.name, c.file_path, c.visibility", nil)
	if err != nil {
		return nil, fmt.Errorf("kuzu: list classes: %w", err)
	}
	out := make([]ClassNode, 0, len(rows))
	for _, r := range rows {
		out = append(out, ClassNode{
			Name:       toString(r[0]),
			FilePath:   toString(r[1]),
			Visibility: Visibility(toString(r[2])),
		})
	}
	sortClasses(out)
	return out, nil
}

// ---------- Internal helpers ----------

// withTx wraps fn in an explicit KuzuDB transaction. Caller holds mu.
func (s *KuzuStore) withTx(fn func() error) error {
	if err := s.exec("BEGIN TRANSACTION", nil); err != nil {
		return err
	}
	if err := fn(); err != nil {
		if rbErr := s.exec("ROLLBACK", nil); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	return s.exec("COMMIT", nil)
}

// exec runs a Cypher statement that produces no result rows.
func (s *KuzuStore) exec(cypher string, params map[string]any) error {
	if len(params) == 0 {
		res, err := s.conn.Query(cypher)
		if err != nil {
			return fmt.Errorf("kuzu: execute: %w", err)
		}
		res.Close()
		return nil
	}

	stmt, err := s.conn.Prepare(cypher)
	if err != nil {
		return fmt.Errorf("kuzu: prepare: %w", err)
	}
	defer stmt.Close()

	res, err := s.conn.Execute(stmt, params)
	if err != nil {
		return fmt.Errorf("kuzu: execute: %w", err)
	}
	res.Close()
	return nil
}

// query runs a parameterized Cypher statement and collects all result rows.
// Each row is a []any slice with values in column order.
func (s *KuzuStore) query(cypher string, params map[string]any) ([][]any, error) {
	var res *kuzu.QueryResult
	var err error

	if len(params) == 0 {
		res, err = s.conn.Query(cypher)
	} else {
		var stmt *kuzu.PreparedStatement
		stmt, err = s.conn.Prepare(cypher)
		if err != nil {
			return nil, fmt.Errorf("kuzu: prepare: %w", err)
		}
		defer stmt.Close()
		res, err = s.conn.Execute(stmt, params)
	}
	if err != nil {
		return nil, fmt.Errorf("kuzu: query: %w", err)
	}
	defer res.Close()

	var rows [][]any
	for res.HasNext() {
		tuple, err := res.Next()
		if err != nil {
			return nil, fmt.Errorf("kuzu: next: %w", err)
		}
		vals, err := tuple.GetAsSlice()
		if err != nil {
			return nil, fmt.Errorf("kuzu: row values: %w", err)
		}
		rows = append(rows, vals)
	}
	return rows, nil
}

// countTable returns the number of rows in a node table.
func (s *KuzuStore) countTable(table string) (int, error) {
	// Table name is a fixed internal constant, not user input.
	cypher := fmt.Sprintf("MATCH (n:%s) RETURN count(n)", table)
	rows, err := s.query(cypher, nil)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return 0, nil
	}
	return toInt(rows[0][0]), nil
}

// sortRows orders rows by their first (key) column.
func sortRows(rows [][]any) {
	sort.SliceStable(rows, func(i, j int) bool {
		return toString(rows[i][0]) < toString(rows[j][0])
	})
}
