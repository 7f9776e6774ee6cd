package graph

import "context"

// placeholderStore reserves a configuration slot for a backend that has not
// been built yet. Every operation except Close fails with a
// NotImplementedError naming the kind.
type placeholderStore struct {
	kind Kind
}

var _ Backend = (*placeholderStore)(nil)

func newPlaceholder(kind Kind) *placeholderStore {
	return &placeholderStore{kind: kind}
}

func (p *placeholderStore) fail(op string) error {
	return &NotImplementedError{Kind: p.kind, Op: op}
}

func (p *placeholderStore) Kind() Kind { return p.kind }

func (p *placeholderStore) Initialize(context.Context) error { return p.fail("initialize") }

func (p *placeholderStore) Clear(context.Context) error { return p.fail("clear") }

func (p *placeholderStore) UpsertClass(context.Context, string, string, Visibility) (ClassRef, error) {
	return ClassRef{}, p.fail("upsert class")
}

func (p *placeholderStore) UpsertMethod(context.Context, string, ClassRef, Visibility) (MethodRef, error) {
	return MethodRef{}, p.fail("upsert method")
}

func (p *placeholderStore) UpsertCall(context.Context, MethodRef, string) error {
	return p.fail("upsert call")
}

func (p *placeholderStore) FetchGraph(context.Context, string) (*GraphView, error) {
	return nil, p.fail("fetch graph")
}

func (p *placeholderStore) FetchStatistics(context.Context) (*GraphStats, error) {
	return nil, p.fail("fetch statistics")
}

func (p *placeholderStore) ListClasses(context.Context) ([]ClassNode, error) {
	return nil, p.fail("list classes")
}

// Close holds no resources, so it always succeeds.
func (p *placeholderStore) Close() error { return nil }
