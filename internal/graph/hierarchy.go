package graph

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"
)

// fetchConcurrency bounds the number of FetchGraph calls in flight.
const fetchConcurrency = 8

// Hierarchy is the class -> methods -> calls traversal of a call graph.
// Ordering is a pure function of the graph contents, so every backend
// renders identically.
type Hierarchy struct {
	Classes []ClassEntry `json:"classes"`
}

// ClassEntry is one class with its methods sorted by name.
type ClassEntry struct {
	Name       string        `json:"name"`
	FilePath   string        `json:"filePath"`
	Visibility Visibility    `json:"visibility"`
	Methods    []MethodEntry `json:"methods"`
}

// MethodEntry is one method with its calls sorted by target.
type MethodEntry struct {
	Name       string      `json:"name"`
	Visibility Visibility  `json:"visibility"`
	Calls      []CallEntry `json:"calls"`
}

// CallEntry is one outgoing call. Target is "Class.method" when the callee
// was resolved and the bare callee name otherwise.
type CallEntry struct {
	CalleeName  string `json:"calleeName"`
	TargetClass string `json:"targetClass,omitempty"`
	Target      string `json:"target"`
	Resolved    bool   `json:"resolved"`
}

// MethodCount returns the number of method entries across all classes.
func (h *Hierarchy) MethodCount() int {
	n := 0
	for _, c := range h.Classes {
		n += len(c.Methods)
	}
	return n
}

// Find returns the first class entry with the given name.
func (h *Hierarchy) Find(className string) (*ClassEntry, bool) {
	for i := range h.Classes {
		if h.Classes[i].Name == className {
			return &h.Classes[i], true
		}
	}
	return nil, false
}

type methodAcc struct {
	entry MethodEntry
	calls map[string]CallEntry
}

type classAcc struct {
	entry   ClassEntry
	methods map[string]*methodAcc
}

// Assemble merges views into a Hierarchy. Classes sort by (name, file
// path), methods by name and calls by target. Duplicate entities across
// views collapse onto their identity keys.
//
// A method or call that carries a class file attaches only to that class;
// one without a file attaches to every class of that name.
func Assemble(views ...*GraphView) *Hierarchy {
	type ckey struct{ name, file string }
	classes := make(map[ckey]*classAcc)
	byName := make(map[string][]*classAcc)

	owners := func(name, file string) []*classAcc {
		if file != "" {
			if c, ok := classes[ckey{name, NormalizePath(file)}]; ok {
				return []*classAcc{c}
			}
			return nil
		}
		return byName[name]
	}

	for _, v := range views {
		if v == nil {
			continue
		}
		for _, c := range v.Classes {
			k := ckey{c.Name, c.FilePath}
			acc, ok := classes[k]
			if !ok {
				acc = &classAcc{
					entry:   ClassEntry{Name: c.Name, FilePath: c.FilePath},
					methods: make(map[string]*methodAcc),
				}
				classes[k] = acc
				byName[c.Name] = append(byName[c.Name], acc)
			}
			acc.entry.Visibility = c.Visibility
		}
	}

	method := func(c *classAcc, name string) *methodAcc {
		m, ok := c.methods[name]
		if !ok {
			m = &methodAcc{
				entry: MethodEntry{Name: name, Visibility: VisibilityPublic},
				calls: make(map[string]CallEntry),
			}
			c.methods[name] = m
		}
		return m
	}

	for _, v := range views {
		if v == nil {
			continue
		}
		for _, m := range v.Methods {
			for _, c := range owners(m.ClassName, m.ClassFile) {
				method(c, m.Name).entry.Visibility = m.Visibility
			}
		}
	}
	for _, v := range views {
		if v == nil {
			continue
		}
		for _, e := range v.Calls {
			for _, c := range owners(e.CallerClass, e.CallerFile) {
				method(c, e.CallerMethod).calls[e.CalleeName] = CallEntry{
					CalleeName:  e.CalleeName,
					TargetClass: e.TargetClass,
					Target:      e.Target(),
					Resolved:    e.Resolved(),
				}
			}
		}
	}

	h := &Hierarchy{Classes: make([]ClassEntry, 0, len(classes))}
	for _, acc := range classes {
		entry := acc.entry
		entry.Methods = make([]MethodEntry, 0, len(acc.methods))
		for _, m := range acc.methods {
			me := m.entry
			me.Calls = make([]CallEntry, 0, len(m.calls))
			for _, call := range m.calls {
				me.Calls = append(me.Calls, call)
			}
			sort.Slice(me.Calls, func(i, j int) bool {
				if me.Calls[i].Target != me.Calls[j].Target {
					return me.Calls[i].Target < me.Calls[j].Target
				}
				return me.Calls[i].CalleeName < me.Calls[j].CalleeName
			})
			entry.Methods = append(entry.Methods, me)
		}
		sort.Slice(entry.Methods, func(i, j int) bool { return entry.Methods[i].Name < entry.Methods[j].Name })
		h.Classes = append(h.Classes, entry)
	}
	sort.Slice(h.Classes, func(i, j int) bool {
		if h.Classes[i].Name != h.Classes[j].Name {
			return h.Classes[i].Name < h.Classes[j].Name
		}
		return h.Classes[i].FilePath < h.Classes[j].FilePath
	})
	return h
}

// BuildHierarchy fetches the named classes from b and assembles them. An
// empty classNames selects every class in the graph. Fetches run
// concurrently.
func BuildHierarchy(ctx context.Context, b Backend, classNames []string) (*Hierarchy, error) {
	if len(classNames) == 0 {
		all, err := b.ListClasses(ctx)
		if err != nil {
			return nil, err
		}
		for _, c := range all {
			classNames = append(classNames, c.Name)
		}
	}
	names := uniqueStrings(classNames)

	views := make([]*GraphView, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i, name := range names {
		g.Go(func() error {
			v, err := b.FetchGraph(gctx, name)
			if err != nil {
				return err
			}
			views[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return Assemble(views...), nil
}

// MethodCallStack returns the hierarchy of every class that owns a resolved
// target of className.methodName's calls. Unresolved calls contribute
// nothing. An unknown class or method fails with ErrNotFound.
func MethodCallStack(ctx context.Context, b Backend, className, methodName string) (*Hierarchy, error) {
	view, err := b.FetchGraph(ctx, className)
	if err != nil {
		return nil, err
	}
	found := false
	for _, m := range view.Methods {
		if m.Name == methodName {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("graph: method %s.%s: %w", className, methodName, ErrNotFound)
	}

	var targets []string
	for _, e := range view.Calls {
		if e.CallerMethod == methodName && e.Resolved() {
			targets = append(targets, e.TargetClass)
		}
	}
	if len(targets) == 0 {
		return &Hierarchy{Classes: []ClassEntry{}}, nil
	}
	return BuildHierarchy(ctx, b, targets)
}

// uniqueStrings returns ss sorted with duplicates removed.
func uniqueStrings(ss []string) []string {
	out := append([]string(nil), ss...)
	sort.Strings(out)
	n := 0
	for i, s := range out {
		if i == 0 || s != out[n-1] {
			out[n] = s
			n++
		}
	}
	return out[:n]
}
