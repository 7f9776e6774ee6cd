package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleView() *GraphView {
	return &GraphView{
		Classes: []ClassNode{
			{Name: "Zoo", FilePath: "zoo.go", Visibility: VisibilityPublic},
			{Name: "Ark", FilePath: "ark.go", Visibility: VisibilityInternal},
		},
		Methods: []MethodNode{
			{Name: "feed", ClassName: "Zoo", Visibility: VisibilityPrivate},
			{Name: "Admit", ClassName: "Zoo", Visibility: VisibilityPublic},
			{Name: "Sail", ClassName: "Ark", Visibility: VisibilityPublic},
		},
		Calls: []CallEdge{
			{CallerClass: "Zoo", CallerMethod: "Admit", CalleeName: "feed", TargetClass: "Zoo"},
			{CallerClass: "Zoo", CallerMethod: "Admit", CalleeName: "Sail", TargetClass: "Ark"},
			{CallerClass: "Zoo", CallerMethod: "Admit", CalleeName: "Log"},
		},
	}
}

func TestAssemble_DeterministicOrder(t *testing.T) {
	h := Assemble(sampleView())

	require.Len(t, h.Classes, 2)
	assert.Equal(t, "Ark", h.Classes[0].Name)
	assert.Equal(t, "Zoo", h.Classes[1].Name)

	zoo := h.Classes[1]
	require.Len(t, zoo.Methods, 2)
	assert.Equal(t, "Admit", zoo.Methods[0].Name)
	assert.Equal(t, "feed", zoo.Methods[1].Name)
	assert.Equal(t, VisibilityPrivate, zoo.Methods[1].Visibility)

	assert.Equal(t, []string{"Ark.Sail", "Log", "Zoo.feed"}, targets(zoo.Methods[0]))
	assert.False(t, zoo.Methods[0].Calls[1].Resolved)
	assert.Equal(t, 3, h.MethodCount())
}

func TestAssemble_InputOrderDoesNotMatter(t *testing.T) {
	v := sampleView()
	reversed := &GraphView{}
	for i := len(v.Classes) - 1; i >= 0; i-- {
		reversed.Classes = append(reversed.Classes, v.Classes[i])
	}
	for i := len(v.Methods) - 1; i >= 0; i-- {
		reversed.Methods = append(reversed.Methods, v.Methods[i])
	}
	for i := len(v.Calls) - 1; i >= 0; i-- {
		reversed.Calls = append(reversed.Calls, v.Calls[i])
	}
	assert.Equal(t, Assemble(v), Assemble(reversed))
}

func TestAssemble_MergesDuplicateViews(t *testing.T) {
	assert.Equal(t, Assemble(sampleView()), Assemble(sampleView(), sampleView(), nil))
}

func TestAssemble_ClassFileScopesMethods(t *testing.T) {
	v := &GraphView{
		Classes: []ClassNode{
			{Name: "Handler", FilePath: "a.go"},
			{Name: "Handler", FilePath: "b.go"},
		},
		Methods: []MethodNode{{Name: "Serve", ClassName: "Handler", ClassFile: "b.go"}},
		Calls:   []CallEdge{{CallerClass: "Handler", CallerFile: "b.go", CallerMethod: "Serve", CalleeName: "x"}},
	}
	h := Assemble(v)
	require.Len(t, h.Classes, 2)
	assert.Empty(t, h.Classes[0].Methods)
	require.Len(t, h.Classes[1].Methods, 1)
	assert.Equal(t, []string{"x"}, targets(h.Classes[1].Methods[0]))
}

func TestAssemble_Empty(t *testing.T) {
	h := Assemble()
	assert.Empty(t, h.Classes)
	_, ok := h.Find("Any")
	assert.False(t, ok)
}

func TestBuildHierarchy_AllClasses(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	ingestOrders(t, s, VisibilityPublic)

	h, err := BuildHierarchy(ctx, s, nil)
	require.NoError(t, err)
	require.Len(t, h.Classes, 3)
	assert.Equal(t, "ControllerBase", h.Classes[0].Name)
	assert.Equal(t, "OrderController", h.Classes[1].Name)
	assert.Equal(t, "OrderRepository", h.Classes[2].Name)

	ctrl, ok := h.Find("OrderController")
	require.True(t, ok)
	assert.Equal(t, "src/Order.cs", ctrl.FilePath)
}

func TestBuildHierarchy_PropagatesErrors(t *testing.T) {
	_, err := BuildHierarchy(context.Background(), newPlaceholder(KindMemgraph), []string{"A", "B"})
	require.ErrorIs(t, err, ErrNotImplemented)
}

func TestMethodCallStack(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	ingestOrders(t, s, VisibilityPublic)

	h, err := MethodCallStack(ctx, s, "OrderController", "GetOrder")
	require.NoError(t, err)
	require.Len(t, h.Classes, 2)
	assert.Equal(t, "ControllerBase", h.Classes[0].Name)
	assert.Equal(t, "OrderRepository", h.Classes[1].Name)

	h, err = MethodCallStack(ctx, s, "OrderRepository", "FindOrder")
	require.NoError(t, err)
	assert.Empty(t, h.Classes)

	_, err = MethodCallStack(ctx, s, "OrderController", "Missing")
	require.ErrorIs(t, err, ErrNotFound)
}
