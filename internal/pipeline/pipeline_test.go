package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/dusk-indust/codepecker/internal/graph"
	"github.com/dusk-indust/codepecker/internal/scan"
)

func newBackend(t *testing.T) graph.Backend {
	t.Helper()
	b := graph.NewMemStore()
	require.NoError(t, b.Initialize(context.Background()))
	t.Cleanup(func() { b.Close() })
	return b
}

func TestRunner_Run(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)
	r := NewRunner(b, zaptest.NewLogger(t))

	res, err := r.Run(ctx, "../../testdata/fixtures/go_project", scan.Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Scanned)
	assert.Empty(t, res.Unparsed)
	assert.Equal(t, 2, res.Report.Files)

	h, err := graph.BuildHierarchy(ctx, b, []string{"UserService"})
	require.NoError(t, err)
	svc, ok := h.Find("UserService")
	require.True(t, ok)

	var targets []string
	for _, m := range svc.Methods {
		if m.Name != "GetUser" {
			continue
		}
		for _, c := range m.Calls {
			targets = append(targets, c.Target)
		}
	}
	assert.Equal(t, []string{"Errorf", "Repository.FindByID"}, targets)
}

func TestRunner_FilesUpdatesInPlace(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(body), 0o644))
	}
	write("a.go", "package p\ntype A struct{}\nfunc (A) Run() { later() }\n")

	b := newBackend(t)
	r := NewRunner(b, nil)
	_, err := r.Files(ctx, root, []string{"a.go"})
	require.NoError(t, err)

	write("b.go", "package p\ntype B struct{}\nfunc (B) later() {}\n")
	_, err = r.Files(ctx, root, []string{"b.go"})
	require.NoError(t, err)

	// Re-ingesting the caller repoints its call at the now-known method.
	_, err = r.Files(ctx, root, []string{"a.go"})
	require.NoError(t, err)

	stats, err := b.FetchStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, &graph.GraphStats{ClassCount: 2, MethodCount: 2, CallCount: 1}, stats)

	view, err := b.FetchGraph(ctx, "A")
	require.NoError(t, err)
	require.Len(t, view.Calls, 1)
	assert.Equal(t, "B.later", view.Calls[0].Target())
}

func TestRunner_MissingRoot(t *testing.T) {
	r := NewRunner(newBackend(t), nil)
	_, err := r.Run(context.Background(), filepath.Join(t.TempDir(), "nope"), scan.Options{})
	assert.Error(t, err)
}
