package graph

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Neo4j tests need a live server:
//
//	CODEPECKER_NEO4J_TEST_URI=neo4j://localhost:7687
//	CODEPECKER_NEO4J_TEST_USER=neo4j
//	CODEPECKER_NEO4J_TEST_PASSWORD=secret
func neo4jTestParams() (Neo4jParams, bool) {
	uri := os.Getenv("CODEPECKER_NEO4J_TEST_URI")
	if uri == "" {
		return Neo4jParams{}, false
	}
	user := os.Getenv("CODEPECKER_NEO4J_TEST_USER")
	if user == "" {
		user = "neo4j"
	}
	return Neo4jParams{
		URI:      uri,
		Username: user,
		Password: os.Getenv("CODEPECKER_NEO4J_TEST_PASSWORD"),
	}, true
}

func init() {
	p, ok := neo4jTestParams()
	if !ok {
		return
	}
	contractFactories["neo4j"] = func(t *testing.T, opts ...Option) Backend {
		return NewNeo4jStore(p, append([]Option{WithClearOnInit(true)}, opts...)...)
	}
}

func TestNeo4jStore_UnreachableIsConnectionError(t *testing.T) {
	s := NewNeo4jStore(Neo4jParams{
		URI:      "neo4j://127.0.0.1:1",
		Username: "neo4j",
		Password: "none",
	}, WithConnectTimeout(500*time.Millisecond))
	t.Cleanup(func() { _ = s.Close() })

	err := s.Initialize(context.Background())
	require.ErrorIs(t, err, ErrConnection)

	_, err = s.FetchStatistics(context.Background())
	require.ErrorIs(t, err, ErrConnection)
}

func TestNeo4jStore_HandlesAreElementIDs(t *testing.T) {
	p, ok := neo4jTestParams()
	if !ok {
		t.Skip("CODEPECKER_NEO4J_TEST_URI not set")
	}
	s := NewNeo4jStore(p, WithClearOnInit(true))
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()
	require.NoError(t, s.Initialize(ctx))

	c, err := s.UpsertClass(ctx, "OrderController", "src/Order.cs", VisibilityPublic)
	require.NoError(t, err)
	id, ok := c.Handle().(string)
	require.True(t, ok)
	assert.NotEmpty(t, id)

	again, err := s.UpsertClass(ctx, "OrderController", "src/Order.cs", VisibilityPrivate)
	require.NoError(t, err)
	assert.Equal(t, id, again.Handle())
}
