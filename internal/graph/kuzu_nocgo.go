//go:build !cgo

package graph

// newKuzuBackend returns a placeholder in builds without CGO: the go-kuzu
// driver wraps KuzuDB's C library. Selecting kuzu still succeeds and every
// operation reports ErrNotImplemented.
func newKuzuBackend(string, ...Option) (Backend, error) {
	return newPlaceholder(KindKuzu), nil
}
