package graph

import (
	"path/filepath"
	"strings"
)

// --- Enums ---

// Visibility is the access level of a class or method.
type Visibility string

const (
	VisibilityPublic    Visibility = "Public"
	VisibilityPrivate   Visibility = "Private"
	VisibilityProtected Visibility = "Protected"
	VisibilityInternal  Visibility = "Internal"
)

// ParseVisibility maps a parser-supplied modifier to a Visibility.
// Matching is case-insensitive; empty or unknown values default to Public.
func ParseVisibility(s string) Visibility {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "private":
		return VisibilityPrivate
	case "protected":
		return VisibilityProtected
	case "internal":
		return VisibilityInternal
	default:
		return VisibilityPublic
	}
}

// NodeType discriminates Class rows from Method rows.
type NodeType string

const (
	NodeTypeClass  NodeType = "Class"
	NodeTypeMethod NodeType = "Method"
)

// EdgeKind classifies relationships between nodes.
type EdgeKind string

const (
	EdgeKindHasMethod  EdgeKind = "HAS_METHOD"
	EdgeKindMethodCall EdgeKind = "METHOD_CALL"
)

// --- Models ---

// ClassNode is a stored Class. Identity key: (Name, FilePath).
type ClassNode struct {
	Name       string     `json:"name"`
	FilePath   string     `json:"filePath"`
	Visibility Visibility `json:"visibility"`
}

// MethodNode is a stored Method. Identity key: (Name, ClassName).
// ClassFile is set by backends whose methods hang off a single class row;
// graph engines leave it empty because their methods are keyed by class name.
type MethodNode struct {
	Name       string     `json:"name"`
	ClassName  string     `json:"className"`
	ClassFile  string     `json:"classFile,omitempty"`
	Visibility Visibility `json:"visibility"`
}

// CallEdge is a METHOD_CALL relation. Identity key: (caller, CalleeName).
// TargetClass is empty when the callee could not be resolved to a Method.
type CallEdge struct {
	CallerClass  string `json:"callerClass"`
	CallerFile   string `json:"callerFile,omitempty"`
	CallerMethod string `json:"callerMethod"`
	CalleeName   string `json:"calleeName"`
	TargetClass  string `json:"targetClass,omitempty"`
}

// Resolved reports whether the edge points at a stored Method.
func (e CallEdge) Resolved() bool {
	return e.TargetClass != ""
}

// Target returns "Class.method" for resolved edges and the literal callee
// name otherwise.
func (e CallEdge) Target() string {
	if e.Resolved() {
		return e.TargetClass + "." + e.CalleeName
	}
	return e.CalleeName
}

// GraphView is the raw result of FetchGraph: the named class(es), the
// methods they own and every outgoing call from those methods.
type GraphView struct {
	Classes []ClassNode  `json:"classes"`
	Methods []MethodNode `json:"methods"`
	Calls   []CallEdge   `json:"calls"`
}

// GraphStats summarizes a call graph.
type GraphStats struct {
	ClassCount  int `json:"classCount"`
	MethodCount int `json:"methodCount"`
	CallCount   int `json:"callCount"`
}

// --- References ---

// ClassRef points at a stored Class for the duration of one ingestion
// session. A ref built by hand from an identity key (no handle) is valid;
// backends re-resolve it by key. FilePath may be empty, in which case the
// oldest class with that name is used.
type ClassRef struct {
	Name     string
	FilePath string
	handle   any
}

// MethodRef points at a stored Method for the duration of one ingestion
// session. Like ClassRef it can be built from the identity key alone.
type MethodRef struct {
	Name      string
	ClassName string
	handle    any
}

// Handle exposes the backend-specific identifier (int64 rowid, node key or
// element id). Callers may log it but must not persist or compare it across
// sessions.
func (r ClassRef) Handle() any { return r.handle }

// Handle exposes the backend-specific identifier; see ClassRef.Handle.
func (r MethodRef) Handle() any { return r.handle }

// ClassKey returns a handle-less ref for the given identity key.
func ClassKey(name, filePath string) ClassRef {
	return ClassRef{Name: name, FilePath: NormalizePath(filePath)}
}

// MethodKey returns a handle-less ref for the given identity key.
func MethodKey(name, className string) MethodRef {
	return MethodRef{Name: name, ClassName: className}
}

// NormalizePath cleans a file path so the same file always produces the
// same class identity key.
func NormalizePath(p string) string {
	if p == "" {
		return ""
	}
	return filepath.Clean(p)
}

// keySep joins identity fields in graph-engine keys. The ASCII unit
// separator never occurs in a source identifier or path, and unlike NUL it
// survives the C string boundary of the kuzu driver.
const keySep = "\x1f"

// classID is the graph-engine key of a class: filePath US name.
func classID(filePath, name string) string {
	return filePath + keySep + name
}

// methodID is the graph-engine key of a method: className US name.
func methodID(className, name string) string {
	return className + keySep + name
}
