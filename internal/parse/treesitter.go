package parse

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_rust "github.com/tree-sitter/tree-sitter-rust/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
	"golang.org/x/sync/errgroup"

	"github.com/dusk-indust/codepecker/internal/graph"
	"github.com/dusk-indust/codepecker/internal/ingest"
)

// extractor collects class records from a parsed tree-sitter AST.
type extractor interface {
	Extract(root *tree_sitter.Node, source []byte, cs *classSet)
}

// TreeSitterParser implements the Parser interface using tree-sitter grammars.
// A new tree-sitter parser is created per Parse call, so concurrent Parse
// calls are safe.
type TreeSitterParser struct {
	languages  map[Language]*tree_sitter.Language
	extractors map[Language]extractor
}

var _ Parser = (*TreeSitterParser)(nil)

// NewTreeSitterParser creates a TreeSitterParser with Go, TypeScript, Python,
// and Rust grammars registered.
func NewTreeSitterParser() *TreeSitterParser {
	return &TreeSitterParser{
		languages: map[Language]*tree_sitter.Language{
			LangGo:         tree_sitter.NewLanguage(tree_sitter_go.Language()),
			LangTypeScript: tree_sitter.NewLanguage(tree_sitter_typescript.LanguageTypescript()),
			LangPython:     tree_sitter.NewLanguage(tree_sitter_python.Language()),
			LangRust:       tree_sitter.NewLanguage(tree_sitter_rust.Language()),
		},
		extractors: map[Language]extractor{
			LangGo:         &goExtractor{},
			LangTypeScript: &tsExtractor{},
			LangPython:     &pyExtractor{},
			LangRust:       &rsExtractor{},
		},
	}
}

// Parse extracts the classes, methods and calls of a single source file.
func (p *TreeSitterParser) Parse(_ context.Context, path string, source []byte, lang Language) (*ingest.FileResult, error) {
	tsLang, ok := p.languages[lang]
	if !ok {
		return nil, fmt.Errorf("unsupported language: %s", lang)
	}
	ext, ok := p.extractors[lang]
	if !ok {
		return nil, fmt.Errorf("no extractor for language: %s", lang)
	}

	parser := tree_sitter.NewParser()
	defer parser.Close()

	if err := parser.SetLanguage(tsLang); err != nil {
		return nil, fmt.Errorf("set language %s: %w", lang, err)
	}

	tree := parser.Parse(source, nil)
	if tree == nil {
		return nil, fmt.Errorf("tree-sitter returned nil tree for %s", path)
	}
	defer tree.Close()

	cs := newClassSet()
	ext.Extract(tree.RootNode(), source, cs)
	return &ingest.FileResult{Path: path, Classes: cs.records(path)}, nil
}

// SupportedLanguages returns the languages this parser can handle, sorted.
func (p *TreeSitterParser) SupportedLanguages() []Language {
	langs := make([]Language, 0, len(p.languages))
	for l := range p.languages {
		langs = append(langs, l)
	}
	sort.Slice(langs, func(i, j int) bool { return langs[i] < langs[j] })
	return langs
}

// Close is a no-op because parsers are created per Parse call.
func (p *TreeSitterParser) Close() error {
	return nil
}

// parseConcurrency bounds the number of files parsed at once.
const parseConcurrency = 8

// ParseAll reads and parses files (relative to root) concurrently. Results
// keep the input order; files that cannot be read or have no grammar are
// dropped and reported through skipped.
func ParseAll(ctx context.Context, p Parser, root string, files []string) (results []ingest.FileResult, skipped []string, err error) {
	out := make([]*ingest.FileResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parseConcurrency)
	for i, rel := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			lang, ok := LanguageForPath(rel)
			if !ok {
				return nil
			}
			source, err := os.ReadFile(filepath.Join(root, rel))
			if err != nil {
				return nil
			}
			res, err := p.Parse(gctx, filepath.ToSlash(rel), source, lang)
			if err != nil {
				return nil
			}
			out[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	for i, r := range out {
		if r == nil {
			skipped = append(skipped, files[i])
			continue
		}
		results = append(results, *r)
	}
	return results, skipped, nil
}

// ---------- Accumulation ----------

type methodAcc struct {
	rec  ingest.MethodRecord
	seen map[string]bool
}

type classAcc struct {
	rec     ingest.ClassRecord
	methods []*methodAcc
	byName  map[string]*methodAcc
}

// classSet accumulates classes in declaration order. Methods and calls are
// deduplicated by name.
type classSet struct {
	order  []*classAcc
	byName map[string]*classAcc
}

func newClassSet() *classSet {
	return &classSet{byName: make(map[string]*classAcc)}
}

// class returns the class named name, creating it with vis. A later
// declaration with an explicit visibility wins over an implicit one.
func (cs *classSet) class(name string, vis graph.Visibility) *classAcc {
	c, ok := cs.byName[name]
	if !ok {
		c = &classAcc{
			rec:    ingest.ClassRecord{Name: name, Visibility: string(vis)},
			byName: make(map[string]*methodAcc),
		}
		cs.byName[name] = c
		cs.order = append(cs.order, c)
	}
	return c
}

// declare sets the visibility recorded at the class declaration.
func (cs *classSet) declare(name string, vis graph.Visibility) *classAcc {
	c := cs.class(name, vis)
	c.rec.Visibility = string(vis)
	return c
}

func (c *classAcc) method(name string, vis graph.Visibility) *methodAcc {
	m, ok := c.byName[name]
	if !ok {
		m = &methodAcc{
			rec:  ingest.MethodRecord{Name: name, Visibility: string(vis)},
			seen: make(map[string]bool),
		}
		c.byName[name] = m
		c.methods = append(c.methods, m)
	}
	return m
}

func (m *methodAcc) call(callee string) {
	if callee == "" || m.seen[callee] {
		return
	}
	m.seen[callee] = true
	m.rec.Calls = append(m.rec.Calls, callee)
}

func (cs *classSet) records(path string) []ingest.ClassRecord {
	out := make([]ingest.ClassRecord, 0, len(cs.order))
	for _, c := range cs.order {
		rec := c.rec
		rec.FilePath = path
		rec.Methods = make([]ingest.MethodRecord, 0, len(c.methods))
		for _, m := range c.methods {
			rec.Methods = append(rec.Methods, m.rec)
		}
		out = append(out, rec)
	}
	return out
}

// ---------- AST helpers ----------

// walk visits n and its descendants depth-first. Returning false from fn
// skips the node's children.
func walk(n *tree_sitter.Node, fn func(*tree_sitter.Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for i := uint(0); i < n.ChildCount(); i++ {
		walk(n.Child(i), fn)
	}
}

// fieldText returns the text of n's named field, or "".
func fieldText(n *tree_sitter.Node, field string, source []byte) string {
	if n == nil {
		return ""
	}
	f := n.ChildByFieldName(field)
	if f == nil {
		return ""
	}
	return f.Utf8Text(source)
}

// hasChildKind reports whether n has a direct child of the given kind.
func hasChildKind(n *tree_sitter.Node, kind string) (*tree_sitter.Node, bool) {
	for i := uint(0); i < n.ChildCount(); i++ {
		if c := n.Child(i); c != nil && c.Kind() == kind {
			return c, true
		}
	}
	return nil, false
}
