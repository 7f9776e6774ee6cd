package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dusk-indust/codepecker/internal/graph"
)

// orderFiles lists the controller before the classes it calls, so call
// resolution only works if calls are written after every method.
func orderFiles() []FileResult {
	return []FileResult{
		{
			Path: "src/Order.cs",
			Classes: []ClassRecord{{
				Name:       "OrderController",
				Visibility: "public",
				Methods: []MethodRecord{{
					Name:       "GetOrder",
					Visibility: "public",
					Calls:      []string{"FindOrder", "Ok", "FindOrder"},
				}},
			}},
		},
		{
			Path: "src/Repo.cs",
			Classes: []ClassRecord{{
				Name:       "OrderRepository",
				Visibility: "internal",
				Methods:    []MethodRecord{{Name: "FindOrder"}},
			}},
		},
		{
			Path: "src/Base.cs",
			Classes: []ClassRecord{{
				Name:    "ControllerBase",
				Methods: []MethodRecord{{Name: "Ok", Visibility: "protected"}},
			}},
		},
	}
}

func backends(t *testing.T) map[string]graph.Backend {
	t.Helper()
	out := map[string]graph.Backend{
		"memory": graph.NewMemStore(),
		"sqlite": graph.NewSQLStore(filepath.Join(t.TempDir(), "graph.db")),
	}
	for _, b := range out {
		t.Cleanup(func() { _ = b.Close() })
		require.NoError(t, Open(context.Background(), b, nil))
	}
	return out
}

func TestIngest_ResolvesCallsAcrossFiles(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rep, err := New(b, nil).Ingest(ctx, orderFiles())
			require.NoError(t, err)
			assert.Equal(t, 3, rep.Files)
			assert.Equal(t, 3, rep.Classes)
			assert.Equal(t, 3, rep.Methods)
			assert.Equal(t, 2, rep.Calls, "duplicate callee names collapse")
			assert.Zero(t, rep.SkipCount())

			h, err := graph.BuildHierarchy(ctx, b, []string{"OrderController"})
			require.NoError(t, err)
			require.Len(t, h.Classes, 1)
			calls := h.Classes[0].Methods[0].Calls
			require.Len(t, calls, 2)
			assert.Equal(t, "ControllerBase.Ok", calls[0].Target)
			assert.Equal(t, "OrderRepository.FindOrder", calls[1].Target)
		})
	}
}

func TestIngest_RerunIsIdempotent(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			in := New(b, nil)
			_, err := in.Ingest(ctx, orderFiles())
			require.NoError(t, err)
			before, err := b.FetchStatistics(ctx)
			require.NoError(t, err)

			_, err = in.Ingest(ctx, orderFiles())
			require.NoError(t, err)
			after, err := b.FetchStatistics(ctx)
			require.NoError(t, err)
			assert.Equal(t, before, after)
		})
	}
}

func TestIngest_SkipsMalformedEntities(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	b := graph.NewMemStore()
	require.NoError(t, b.Initialize(context.Background()))

	files := []FileResult{
		{
			Path: "a.go",
			Classes: []ClassRecord{
				{Name: ""},
				{Name: "Good", Methods: []MethodRecord{
					{Name: " "},
					{Name: "Run", Calls: []string{"", "Other"}},
				}},
			},
		},
		{
			Path:    "",
			Classes: []ClassRecord{{Name: "NoPath"}},
		},
	}

	rep, err := New(b, zap.New(core)).Ingest(context.Background(), files)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Classes)
	assert.Equal(t, 1, rep.Methods)
	assert.Equal(t, 1, rep.Calls)
	require.Equal(t, 4, rep.SkipCount())
	for _, s := range rep.Skipped {
		assert.ErrorIs(t, s.Err, graph.ErrMalformedInput, s.String())
	}
	assert.Equal(t, 4, logs.FilterMessage("ingest: skipping malformed entity").Len())
}

func TestIngest_ClassFilePathOverridesFile(t *testing.T) {
	b := graph.NewMemStore()
	ctx := context.Background()
	_, err := New(b, nil).Ingest(ctx, []FileResult{{
		Path:    "ignored.go",
		Classes: []ClassRecord{{Name: "T", FilePath: "./pkg/t.go"}},
	}})
	require.NoError(t, err)

	classes, err := b.ListClasses(ctx)
	require.NoError(t, err)
	require.Len(t, classes, 1)
	assert.Equal(t, "pkg/t.go", classes[0].FilePath)
}

func TestIngest_BackendErrorAborts(t *testing.T) {
	b, err := graph.NewBackend(graph.Config{Kind: graph.KindArangoDB})
	require.NoError(t, err)

	rep, err := New(b, nil).Ingest(context.Background(), orderFiles())
	require.ErrorIs(t, err, graph.ErrNotImplemented)
	assert.Equal(t, 1, rep.Files)
	assert.Zero(t, rep.Classes)
}

func TestIngest_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(graph.NewMemStore(), nil).Ingest(ctx, orderFiles())
	require.True(t, errors.Is(err, context.Canceled))
}

func TestOpen_PropagatesConnectionErrors(t *testing.T) {
	b, err := graph.NewBackend(graph.Config{Kind: graph.KindMemgraph})
	require.NoError(t, err)
	require.ErrorIs(t, Open(context.Background(), b, nil), graph.ErrNotImplemented)
}
