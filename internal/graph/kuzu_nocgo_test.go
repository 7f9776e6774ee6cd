//go:build !cgo

package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBackend_KuzuWithoutCgoIsPlaceholder(t *testing.T) {
	b, err := NewBackend(Config{Kind: KindKuzu})
	require.NoError(t, err)
	assert.Equal(t, KindKuzu, b.Kind())

	err = b.Initialize(context.Background())
	require.ErrorIs(t, err, ErrNotImplemented)
	var nie *NotImplementedError
	require.ErrorAs(t, err, &nie)
	assert.Equal(t, KindKuzu, nie.Kind)
	assert.NoError(t, b.Close())
}
