//go:build cgo

package e2e

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/dusk-indust/codepecker/internal/export"
	"github.com/dusk-indust/codepecker/internal/graph"
	"github.com/dusk-indust/codepecker/internal/pipeline"
	"github.com/dusk-indust/codepecker/internal/scan"
)

func fixturePath(name string) string {
	return filepath.Join("..", "..", "testdata", "fixtures", name)
}

// backends returns one initialized backend per always-available kind.
func backends(t *testing.T) map[string]graph.Backend {
	t.Helper()
	ctx := context.Background()
	out := map[string]graph.Backend{
		"memory": graph.NewMemStore(),
		"sqlite": graph.NewSQLStore(filepath.Join(t.TempDir(), "graph.db")),
	}
	for name, b := range out {
		require.NoError(t, b.Initialize(ctx), name)
		t.Cleanup(func() { b.Close() })
	}
	return out
}

func ingestFixture(t *testing.T, b graph.Backend, name string) *pipeline.Result {
	t.Helper()
	res, err := pipeline.NewRunner(b, zaptest.NewLogger(t)).Run(context.Background(), fixturePath(name), scan.Options{})
	require.NoError(t, err)
	return res
}

func TestPipeline_Polyglot(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			res := ingestFixture(t, b, "polyglot")
			assert.Equal(t, 4, res.Scanned)
			assert.Empty(t, res.Report.Skipped)

			stats, err := b.FetchStatistics(ctx)
			require.NoError(t, err)
			assert.Equal(t, &graph.GraphStats{ClassCount: 5, MethodCount: 11, CallCount: 10}, stats)

			h, err := graph.BuildHierarchy(ctx, b, nil)
			require.NoError(t, err)

			ctrl, ok := h.Find("CheckoutController")
			require.True(t, ok)
			assert.Equal(t, "web/checkout.ts", ctrl.FilePath)
			var submit *graph.MethodEntry
			for i := range ctrl.Methods {
				if ctrl.Methods[i].Name == "submit" {
					submit = &ctrl.Methods[i]
				}
			}
			require.NotNil(t, submit)
			assert.Equal(t, []graph.CallEntry{
				{CalleeName: "audit", TargetClass: "CheckoutController", Target: "CheckoutController.audit", Resolved: true},
				{CalleeName: "place", TargetClass: "OrderService", Target: "OrderService.place", Resolved: true},
			}, submit.Calls)

			clusters := graph.ComputeClusters(h)
			require.Len(t, clusters, 1)
			assert.Equal(t, []string{"CheckoutController", "OrderService", "OrderStore"}, clusters[0].Classes)
			assert.InDelta(t, 5.0/9.0, clusters[0].Cohesion, 1e-9)

			stack, err := graph.MethodCallStack(ctx, b, "OrderService", "place")
			require.NoError(t, err)
			var names []string
			for _, c := range stack.Classes {
				names = append(names, c.Name)
			}
			assert.Equal(t, []string{"OrderService", "OrderStore"}, names)
		})
	}
}

// TestPipeline_BackendsAgree checks that every backend assembles the same
// hierarchy from the same input.
func TestPipeline_BackendsAgree(t *testing.T) {
	ctx := context.Background()
	var want *graph.Hierarchy
	for _, name := range []string{"memory", "sqlite"} {
		b := backends(t)[name]
		ingestFixture(t, b, "polyglot")
		ingestFixture(t, b, "go_project")

		h, err := graph.BuildHierarchy(ctx, b, nil)
		require.NoError(t, err)
		if want == nil {
			want = h
			continue
		}
		assert.Equal(t, want, h, "hierarchy from %s differs", name)
	}
}

func TestPipeline_ReingestIsStable(t *testing.T) {
	ctx := context.Background()
	b := backends(t)["sqlite"]

	ingestFixture(t, b, "go_project")
	first, err := export.Build(ctx, b, nil)
	require.NoError(t, err)

	ingestFixture(t, b, "go_project")
	second, err := export.Build(ctx, b, nil)
	require.NoError(t, err)

	assert.Equal(t, first.Stats, second.Stats)
	assert.Equal(t, first.Hierarchy, second.Hierarchy)
	assert.Equal(t, export.GenerateMermaid(first.Hierarchy, first.Clusters),
		export.GenerateMermaid(second.Hierarchy, second.Clusters))
}
