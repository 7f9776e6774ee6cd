package graph

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLTestStore(t *testing.T) *SQLStore {
	t.Helper()
	s := NewSQLStore(":memory:")
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Initialize(context.Background()))
	return s
}

func TestSQLStore_HandlesAreRowIDs(t *testing.T) {
	s := newSQLTestStore(t)
	ctx := context.Background()

	c, err := s.UpsertClass(ctx, "OrderController", "src/Order.cs", VisibilityPublic)
	require.NoError(t, err)
	id, ok := c.Handle().(int64)
	require.True(t, ok)
	assert.Positive(t, id)

	again, err := s.UpsertClass(ctx, "OrderController", "src/Order.cs", VisibilityPrivate)
	require.NoError(t, err)
	assert.Equal(t, id, again.Handle())
}

func TestSQLStore_MethodsCarryClassFile(t *testing.T) {
	s := newSQLTestStore(t)
	ctx := context.Background()
	ingestOrders(t, s, VisibilityPublic)

	view, err := s.FetchGraph(ctx, "OrderController")
	require.NoError(t, err)
	require.Len(t, view.Methods, 1)
	assert.Equal(t, "src/Order.cs", view.Methods[0].ClassFile)
	require.Len(t, view.Calls, 2)
	for _, c := range view.Calls {
		assert.Equal(t, "src/Order.cs", c.CallerFile)
	}
}

func TestSQLStore_SameNamedClassesKeepFirstOwner(t *testing.T) {
	s := newSQLTestStore(t)
	ctx := context.Background()

	a, err := s.UpsertClass(ctx, "Handler", "a/handler.go", VisibilityPublic)
	require.NoError(t, err)
	b, err := s.UpsertClass(ctx, "Handler", "b/handler.go", VisibilityPublic)
	require.NoError(t, err)
	_, err = s.UpsertMethod(ctx, "Serve", a, VisibilityPublic)
	require.NoError(t, err)
	_, err = s.UpsertMethod(ctx, "Serve", b, VisibilityPrivate)
	require.NoError(t, err)

	view, err := s.FetchGraph(ctx, "Handler")
	require.NoError(t, err)
	require.Len(t, view.Methods, 1)
	assert.Equal(t, "a/handler.go", view.Methods[0].ClassFile)
	assert.Equal(t, VisibilityPrivate, view.Methods[0].Visibility)

	h := Assemble(view)
	require.Len(t, h.Classes, 2)
	assert.Len(t, h.Classes[0].Methods, 1)
	assert.Empty(t, h.Classes[1].Methods)
}

func TestSQLStore_StaleHandleIsReresolved(t *testing.T) {
	s := newSQLTestStore(t)
	ctx := context.Background()

	c, err := s.UpsertClass(ctx, "Cart", "cart.py", VisibilityPublic)
	require.NoError(t, err)
	require.NoError(t, s.Clear(ctx))
	_, err = s.UpsertClass(ctx, "Other", "other.py", VisibilityPublic)
	require.NoError(t, err)
	_, err = s.UpsertClass(ctx, "Cart", "cart.py", VisibilityPublic)
	require.NoError(t, err)

	// c's rowid now belongs to Other; the key wins.
	m, err := s.UpsertMethod(ctx, "total", c, VisibilityPublic)
	require.NoError(t, err)
	assert.Equal(t, "Cart", m.ClassName)

	view, err := s.FetchGraph(ctx, "Cart")
	require.NoError(t, err)
	assert.Len(t, view.Methods, 1)
}

func TestSQLStore_DuplicateRowsReportSchemaError(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "graph.db")
	ctx := context.Background()

	// Seed duplicate class rows before the unique indexes exist.
	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	_, err = db.Exec(sqlSchema)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err = db.Exec(`INSERT INTO nodes (name, type, file_path) VALUES ('Dup', 'Class', 'dup.go')`)
		require.NoError(t, err)
	}
	require.NoError(t, db.Close())

	s := NewSQLStore(dbPath)
	t.Cleanup(func() { _ = s.Close() })
	err = s.Initialize(ctx)
	require.ErrorIs(t, err, ErrSchema)

	// The store stays usable.
	_, err = s.UpsertClass(ctx, "Fine", "fine.go", VisibilityPublic)
	require.NoError(t, err)
	st, err := s.FetchStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.ClassCount)
}

func TestSQLStore_UnopenablePathIsConnectionError(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	s := NewSQLStore(filepath.Join(blocker, "graph.db"))
	t.Cleanup(func() { _ = s.Close() })
	require.ErrorIs(t, s.Initialize(context.Background()), ErrConnection)
}

func TestSQLStore_ClearCascadesCalls(t *testing.T) {
	s := newSQLTestStore(t)
	ctx := context.Background()
	ingestOrders(t, s, VisibilityPublic)
	require.NoError(t, s.Clear(ctx))

	db, err := s.conn()
	require.NoError(t, err)
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM method_calls").Scan(&n))
	assert.Zero(t, n)
}
