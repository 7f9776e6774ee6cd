package graph

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Compile-time assertion: *MemStore satisfies Backend.
var _ Backend = (*MemStore)(nil)

type classKey struct{ name, filePath string }

type methodKey struct{ name, className string }

type callKey struct {
	callerID int64
	callee   string
}

type memMethod struct {
	id     int64
	node   MethodNode
	owners map[int64]bool // class ids with a HAS_METHOD edge
}

type memCall struct {
	callerID int64
	callee   string
	targetID int64 // 0 when unresolved
}

// MemStore implements Backend using Go maps. It follows the native-graph
// semantics: methods are keyed by class name and may be owned by several
// same-named classes. Thread-safe via sync.RWMutex.
type MemStore struct {
	opts storeOptions

	mu        sync.RWMutex
	nextID    int64
	classes   map[classKey]int64
	classByID map[int64]ClassNode
	methods   map[methodKey]*memMethod
	methodsBy map[int64]*memMethod
	calls     map[callKey]*memCall
	closed    bool
}

// NewMemStore returns an empty MemStore ready for use.
func NewMemStore(opts ...Option) *MemStore {
	m := &MemStore{opts: buildOptions(opts)}
	m.reset()
	return m
}

func (m *MemStore) reset() {
	m.classes = make(map[classKey]int64)
	m.classByID = make(map[int64]ClassNode)
	m.methods = make(map[methodKey]*memMethod)
	m.methodsBy = make(map[int64]*memMethod)
	m.calls = make(map[callKey]*memCall)
}

// Kind reports KindMemory.
func (m *MemStore) Kind() Kind { return KindMemory }

// Initialize has no schema to create; it only honours ClearOnInit.
func (m *MemStore) Initialize(ctx context.Context) error {
	m.mu.Lock()
	m.closed = false
	m.mu.Unlock()
	if m.opts.clearOnInit {
		return m.Clear(ctx)
	}
	return nil
}

// Clear drops every node and edge.
func (m *MemStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errMemClosed
	}
	m.reset()
	return nil
}

var errMemClosed = fmt.Errorf("memory: store closed: %w", ErrConnection)

// UpsertClass stores a class keyed by (name, file path).
func (m *MemStore) UpsertClass(_ context.Context, name, filePath string, vis Visibility) (ClassRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ClassRef{}, errMemClosed
	}
	filePath = NormalizePath(filePath)
	key := classKey{name, filePath}
	id, ok := m.classes[key]
	if !ok {
		m.nextID++
		id = m.nextID
		m.classes[key] = id
	}
	m.classByID[id] = ClassNode{Name: name, FilePath: filePath, Visibility: vis}
	return ClassRef{Name: name, FilePath: filePath, handle: id}, nil
}

// UpsertMethod stores a method keyed by (name, parent class name) and links
// it to the parent class.
func (m *MemStore) UpsertMethod(_ context.Context, name string, parent ClassRef, vis Visibility) (MethodRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return MethodRef{}, errMemClosed
	}
	classID, ok := m.resolveClass(parent)
	if !ok {
		return MethodRef{}, fmt.Errorf("memory: upsert method %s: class %q: %w", name, parent.Name, ErrNotFound)
	}
	className := m.classByID[classID].Name

	key := methodKey{name, className}
	mm, ok := m.methods[key]
	if !ok {
		m.nextID++
		mm = &memMethod{
			id:     m.nextID,
			node:   MethodNode{Name: name, ClassName: className},
			owners: make(map[int64]bool),
		}
		m.methods[key] = mm
		m.methodsBy[mm.id] = mm
	}
	mm.node.Visibility = vis
	mm.owners[classID] = true
	return MethodRef{Name: name, ClassName: className, handle: mm.id}, nil
}

// UpsertCall records one METHOD_CALL edge per (caller, callee name).
func (m *MemStore) UpsertCall(_ context.Context, caller MethodRef, calleeName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errMemClosed
	}
	callerID, ok := m.resolveMethod(caller)
	if !ok {
		return fmt.Errorf("memory: upsert call %s.%s: %w", caller.ClassName, caller.Name, ErrNotFound)
	}
	key := callKey{callerID, calleeName}
	c, ok := m.calls[key]
	if !ok {
		c = &memCall{callerID: callerID, callee: calleeName}
		m.calls[key] = c
	}
	c.targetID = m.lookupCallee(calleeName)
	return nil
}

// resolveClass returns the id behind ref, re-resolving by key when the
// handle is missing or stale. Caller holds the lock.
func (m *MemStore) resolveClass(ref ClassRef) (int64, bool) {
	if id, ok := ref.handle.(int64); ok {
		if c, ok := m.classByID[id]; ok && c.Name == ref.Name {
			return id, true
		}
	}
	if ref.FilePath != "" {
		id, ok := m.classes[classKey{ref.Name, NormalizePath(ref.FilePath)}]
		return id, ok
	}
	var best int64
	for key, id := range m.classes {
		if key.name == ref.Name && (best == 0 || id < best) {
			best = id
		}
	}
	return best, best != 0
}

// resolveMethod is resolveClass for methods. Caller holds the lock.
func (m *MemStore) resolveMethod(ref MethodRef) (int64, bool) {
	if id, ok := ref.handle.(int64); ok {
		if mm, ok := m.methodsBy[id]; ok && mm.node.Name == ref.Name {
			return id, true
		}
	}
	mm, ok := m.methods[methodKey{ref.Name, ref.ClassName}]
	if !ok {
		return 0, false
	}
	return mm.id, true
}

// lookupCallee finds the method with the given name whose class name sorts
// lowest. Insertion order breaks ties.
func (m *MemStore) lookupCallee(name string) int64 {
	var best int64
	var bestClass string
	for id, mm := range m.methodsBy {
		if mm.node.Name != name {
			continue
		}
		cls := mm.node.ClassName
		if best == 0 || cls < bestClass || (cls == bestClass && id < best) {
			best, bestClass = id, cls
		}
	}
	return best
}

// FetchGraph returns the named classes, their methods and outgoing calls.
func (m *MemStore) FetchGraph(_ context.Context, className string) (*GraphView, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, errMemClosed
	}

	view := &GraphView{}
	classIDs := make(map[int64]bool)
	for key, id := range m.classes {
		if key.name == className {
			classIDs[id] = true
			view.Classes = append(view.Classes, m.classByID[id])
		}
	}

	methodIDs := make(map[int64]bool)
	for id, mm := range m.methodsBy {
		for owner := range mm.owners {
			if classIDs[owner] {
				methodIDs[id] = true
				view.Methods = append(view.Methods, mm.node)
				break
			}
		}
	}

	for _, c := range m.calls {
		if !methodIDs[c.callerID] {
			continue
		}
		caller := m.methodsBy[c.callerID]
		edge := CallEdge{
			CallerClass:  caller.node.ClassName,
			CallerMethod: caller.node.Name,
			CalleeName:   c.callee,
		}
		if t, ok := m.methodsBy[c.targetID]; ok {
			edge.TargetClass = t.node.ClassName
		}
		view.Calls = append(view.Calls, edge)
	}
	return view, nil
}

// FetchStatistics returns node and edge counts.
func (m *MemStore) FetchStatistics(_ context.Context) (*GraphStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, errMemClosed
	}
	return &GraphStats{
		ClassCount:  len(m.classes),
		MethodCount: len(m.methods),
		CallCount:   len(m.calls),
	}, nil
}

// ListClasses returns every stored class ordered by name then file path.
func (m *MemStore) ListClasses(_ context.Context) ([]ClassNode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, errMemClosed
	}
	out := make([]ClassNode, 0, len(m.classByID))
	for _, c := range m.classByID {
		out = append(out, c)
	}
	sortClasses(out)
	return out, nil
}

// Close marks the store closed. Data is kept so a later Initialize without
// ClearOnInit sees the same graph.
func (m *MemStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// sortClasses orders classes by name, then file path.
func sortClasses(cs []ClassNode) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].Name != cs[j].Name {
			return cs[i].Name < cs[j].Name
		}
		return cs[i].FilePath < cs[j].FilePath
	})
}
