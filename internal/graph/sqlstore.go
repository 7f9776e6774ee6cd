package graph

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var sqlSchema string

// uniqueIndexes enforce the identity keys. They are created separately from
// the tables so a failure can be reported as ErrSchema without losing the
// rest of the schema.
var uniqueIndexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_class_identity
		ON nodes (name, file_path) WHERE type = 'Class'`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_method_identity
		ON nodes (name, parent_name) WHERE type = 'Method'`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_call_identity
		ON method_calls (method_id, called_method_name)`,
}

// SQLStore implements Backend on an embedded SQLite database. Nodes use
// integer surrogate keys and Method rows point at their Class row through
// parent_id.
type SQLStore struct {
	path string
	opts storeOptions

	mu sync.RWMutex
	db *sql.DB
}

// Compile-time check that SQLStore satisfies Backend.
var _ Backend = (*SQLStore)(nil)

// NewSQLStore returns a store for the database file at path (":memory:"
// for a private in-memory database). Nothing is opened until Initialize.
func NewSQLStore(path string, opts ...Option) *SQLStore {
	return &SQLStore{path: path, opts: buildOptions(opts)}
}

// Kind reports KindSQLite.
func (s *SQLStore) Kind() Kind { return KindSQLite }

// Initialize opens the database and creates tables and unique indexes.
func (s *SQLStore) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		db, err := s.open(ctx)
		if err != nil {
			return err
		}
		s.db = db
	}

	if _, err := s.db.ExecContext(ctx, sqlSchema); err != nil {
		s.db.Close()
		s.db = nil
		return fmt.Errorf("sqlite: create tables: %w", err)
	}

	var schemaErr error
	for _, stmt := range uniqueIndexes {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			schemaErr = errors.Join(schemaErr, err)
		}
	}
	if schemaErr != nil {
		s.opts.logger.Warn("sqlite: uniqueness constraints unavailable", zap.Error(schemaErr))
	}

	if s.opts.clearOnInit {
		if err := clearSQL(ctx, s.db); err != nil {
			return err
		}
	}

	if schemaErr != nil {
		return fmt.Errorf("sqlite: unique indexes: %w: %w", ErrSchema, schemaErr)
	}
	return nil
}

// open connects to the database file, creating its parent directory.
func (s *SQLStore) open(ctx context.Context) (*sql.DB, error) {
	if s.path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create parent directory: %w: %w", ErrConnection, err)
		}
	}
	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w: %w", s.path, ErrConnection, err)
	}
	// One connection: a single writer per graph, and ":memory:" databases
	// are private to the connection that created them.
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, s.opts.connectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: open %s: %w: %w", s.path, ErrConnection, err)
	}

	busy := s.opts.connectTimeout.Milliseconds()
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		fmt.Sprintf("PRAGMA busy_timeout = %d", busy),
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w: %w", p, ErrConnection, err)
		}
	}
	s.opts.logger.Debug("sqlite: opened", zap.String("path", s.path))
	return db, nil
}

// Close releases the database handle. Safe to call more than once.
func (s *SQLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// conn returns the open database or ErrConnection before Initialize.
func (s *SQLStore) conn() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, fmt.Errorf("sqlite: store not initialized: %w", ErrConnection)
	}
	return s.db, nil
}

// withTx runs fn in one transaction: one upsert or one clear per call.
func (s *SQLStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// ---------- Writes ----------

// Clear deletes all rows from both tables in one transaction.
func (s *SQLStore) Clear(ctx context.Context) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	return clearSQL(ctx, db)
}

func clearSQL(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: clear: %w", err)
	}
	for _, stmt := range []string{
		"DELETE FROM method_calls",
		"DELETE FROM nodes WHERE type = 'Method'",
		"DELETE FROM nodes",
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("sqlite: clear: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: clear: %w", err)
	}
	return nil
}

// UpsertClass selects the class by (name, file_path), then updates its
// visibility or inserts a new row.
func (s *SQLStore) UpsertClass(ctx context.Context, name, filePath string, vis Visibility) (ClassRef, error) {
	filePath = NormalizePath(filePath)
	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM nodes WHERE type = 'Class' AND name = ? AND file_path = ?`,
			name, filePath,
		).Scan(&id)
		switch {
		case err == nil:
			_, err = tx.ExecContext(ctx, `UPDATE nodes SET visibility = ? WHERE id = ?`, string(vis), id)
			return err
		case errors.Is(err, sql.ErrNoRows):
			res, err := tx.ExecContext(ctx,
				`INSERT INTO nodes (name, type, file_path, visibility) VALUES (?, 'Class', ?, ?)`,
				name, filePath, string(vis),
			)
			if err != nil {
				return err
			}
			id, err = res.LastInsertId()
			return err
		default:
			return err
		}
	})
	if err != nil {
		return ClassRef{}, fmt.Errorf("sqlite: upsert class %s: %w", name, err)
	}
	return ClassRef{Name: name, FilePath: filePath, handle: id}, nil
}

// UpsertMethod selects the method by (name, parent class name), then
// updates its visibility or inserts it under the parent row.
func (s *SQLStore) UpsertMethod(ctx context.Context, name string, parent ClassRef, vis Visibility) (MethodRef, error) {
	var id int64
	var className string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		classID, cname, err := resolveClassTx(ctx, tx, parent)
		if err != nil {
			return err
		}
		className = cname

		err = tx.QueryRowContext(ctx,
			`SELECT id FROM nodes WHERE type = 'Method' AND name = ? AND parent_name = ?`,
			name, className,
		).Scan(&id)
		switch {
		case err == nil:
			_, err = tx.ExecContext(ctx, `UPDATE nodes SET visibility = ? WHERE id = ?`, string(vis), id)
			return err
		case errors.Is(err, sql.ErrNoRows):
			res, err := tx.ExecContext(ctx,
				`INSERT INTO nodes (name, type, visibility, parent_id, parent_name)
				 VALUES (?, 'Method', ?, ?, ?)`,
				name, string(vis), classID, className,
			)
			if err != nil {
				return err
			}
			id, err = res.LastInsertId()
			return err
		default:
			return err
		}
	})
	if err != nil {
		return MethodRef{}, fmt.Errorf("sqlite: upsert method %s: %w", name, err)
	}
	return MethodRef{Name: name, ClassName: className, handle: id}, nil
}

// UpsertCall stores one method_calls row per (caller, callee name) and
// points it at the Method with that name whose class name sorts lowest, if any.
func (s *SQLStore) UpsertCall(ctx context.Context, caller MethodRef, calleeName string) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		callerID, err := resolveMethodTx(ctx, tx, caller)
		if err != nil {
			return err
		}

		var target sql.NullInt64
		err = tx.QueryRowContext(ctx,
			`SELECT id FROM nodes WHERE type = 'Method' AND name = ? ORDER BY parent_name, id LIMIT 1`,
			calleeName,
		).Scan(&target)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		var callID int64
		err = tx.QueryRowContext(ctx,
			`SELECT id FROM method_calls WHERE method_id = ? AND called_method_name = ?`,
			callerID, calleeName,
		).Scan(&callID)
		switch {
		case err == nil:
			_, err = tx.ExecContext(ctx, `UPDATE method_calls SET target_id = ? WHERE id = ?`, target, callID)
			return err
		case errors.Is(err, sql.ErrNoRows):
			_, err = tx.ExecContext(ctx,
				`INSERT INTO method_calls (method_id, called_method_name, target_id) VALUES (?, ?, ?)`,
				callerID, calleeName, target,
			)
			return err
		default:
			return err
		}
	})
	if err != nil {
		return fmt.Errorf("sqlite: upsert call %s.%s -> %s: %w", caller.ClassName, caller.Name, calleeName, err)
	}
	return nil
}

// resolveClassTx returns the row id and name of the class behind ref. The
// handle is trusted only if it still names the same class.
func resolveClassTx(ctx context.Context, tx *sql.Tx, ref ClassRef) (int64, string, error) {
	if h, ok := ref.handle.(int64); ok {
		var name string
		err := tx.QueryRowContext(ctx, `SELECT name FROM nodes WHERE id = ? AND type = 'Class'`, h).Scan(&name)
		if err == nil && name == ref.Name {
			return h, name, nil
		}
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return 0, "", err
		}
	}

	query := `SELECT id FROM nodes WHERE type = 'Class' AND name = ?`
	args := []any{ref.Name}
	if ref.FilePath != "" {
		query += ` AND file_path = ?`
		args = append(args, NormalizePath(ref.FilePath))
	}
	query += ` ORDER BY id LIMIT 1`

	var id int64
	err := tx.QueryRowContext(ctx, query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, "", fmt.Errorf("class %q: %w", ref.Name, ErrNotFound)
	}
	if err != nil {
		return 0, "", err
	}
	return id, ref.Name, nil
}

// resolveMethodTx is resolveClassTx for methods.
func resolveMethodTx(ctx context.Context, tx *sql.Tx, ref MethodRef) (int64, error) {
	if h, ok := ref.handle.(int64); ok {
		var name string
		err := tx.QueryRowContext(ctx, `SELECT name FROM nodes WHERE id = ? AND type = 'Method'`, h).Scan(&name)
		if err == nil && name == ref.Name {
			return h, nil
		}
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return 0, err
		}
	}

	var id int64
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM nodes WHERE type = 'Method' AND name = ? AND parent_name = ?`,
		ref.Name, ref.ClassName,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("method %s.%s: %w", ref.ClassName, ref.Name, ErrNotFound)
	}
	return id, err
}

// ---------- Reads ----------

// FetchGraph returns the named classes, the methods hanging off them and
// every outgoing call of those methods.
func (s *SQLStore) FetchGraph(ctx context.Context, className string) (*GraphView, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	view := &GraphView{}

	view.Classes, err = queryClasses(ctx, db,
		`SELECT name, COALESCE(file_path, ''), visibility
		 FROM nodes WHERE type = 'Class' AND name = ? ORDER BY id`,
		className,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: fetch graph %s: %w", className, err)
	}

	rows, err := db.QueryContext(ctx,
		`SELECT m.name, c.name, COALESCE(c.file_path, ''), m.visibility
		 FROM nodes m
		 JOIN nodes c ON c.id = m.parent_id
		 WHERE m.type = 'Method' AND c.type = 'Class' AND c.name = ?
		 ORDER BY m.id`,
		className,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: fetch graph %s: %w", className, err)
	}
	for rows.Next() {
		var m MethodNode
		var vis string
		if err := rows.Scan(&m.Name, &m.ClassName, &m.ClassFile, &vis); err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: scan method: %w", err)
		}
		m.Visibility = Visibility(vis)
		view.Methods = append(view.Methods, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: fetch graph %s: %w", className, err)
	}

	rows, err = db.QueryContext(ctx,
		`SELECT c.name, COALESCE(c.file_path, ''), m.name, mc.called_method_name, COALESCE(t.parent_name, '')
		 FROM method_calls mc
		 JOIN nodes m ON m.id = mc.method_id
		 JOIN nodes c ON c.id = m.parent_id
		 LEFT JOIN nodes t ON t.id = mc.target_id
		 WHERE c.type = 'Class' AND c.name = ?
		 ORDER BY mc.id`,
		className,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: fetch graph %s: %w", className, err)
	}
	defer rows.Close()
	for rows.Next() {
		var e CallEdge
		if err := rows.Scan(&e.CallerClass, &e.CallerFile, &e.CallerMethod, &e.CalleeName, &e.TargetClass); err != nil {
			return nil, fmt.Errorf("sqlite: scan call: %w", err)
		}
		view.Calls = append(view.Calls, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: fetch graph %s: %w", className, err)
	}
	return view, nil
}

// FetchStatistics counts classes, methods and calls.
func (s *SQLStore) FetchStatistics(ctx context.Context) (*GraphStats, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	var st GraphStats
	err = db.QueryRowContext(ctx,
		`SELECT
			(SELECT COUNT(*) FROM nodes WHERE type = 'Class'),
			(SELECT COUNT(*) FROM nodes WHERE type = 'Method'),
			(SELECT COUNT(*) FROM method_calls)`,
	).Scan(&st.ClassCount, &st.MethodCount, &st.CallCount)
	if err != nil {
		return nil, fmt.Errorf("sqlite: statistics: %w", err)
	}
	return &st, nil
}

// ListClasses returns every class ordered by name then file path.
func (s *SQLStore) ListClasses(ctx context.Context) ([]ClassNode, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	out, err := queryClasses(ctx, db,
		`SELECT name, COALESCE(file_path, ''), visibility
		 FROM nodes WHERE type = 'Class' ORDER BY name, file_path`,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list classes: %w", err)
	}
	return out, nil
}

// queryClasses scans (name, file_path, visibility) rows.
func queryClasses(ctx context.Context, db *sql.DB, query string, args ...any) ([]ClassNode, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ClassNode
	for rows.Next() {
		var c ClassNode
		var vis string
		if err := rows.Scan(&c.Name, &c.FilePath, &vis); err != nil {
			return nil, err
		}
		c.Visibility = Visibility(vis)
		out = append(out, c)
	}
	return out, rows.Err()
}
