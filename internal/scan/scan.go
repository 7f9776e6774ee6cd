// Package scan discovers source files under a project root.
package scan

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/dusk-indust/codepecker/internal/parse"
)

// DefaultExcludeDirs are directory names never descended into.
var DefaultExcludeDirs = []string{".git", "node_modules", "vendor", "target", "__pycache__", ".venv"}

// Options controls which files Walk reports.
type Options struct {
	// Languages restricts results to these languages. Empty means all.
	Languages []parse.Language
	// ExcludeDirs are directory base names to skip in addition to
	// DefaultExcludeDirs.
	ExcludeDirs []string
	// NoGitignore disables .gitignore matching at the root.
	NoGitignore bool
}

// Filter decides whether a path below the root is a source file of interest.
type Filter struct {
	root     string
	langs    map[parse.Language]bool
	excludes map[string]bool
	ignore   *ignore.GitIgnore
}

// NewFilter compiles opts for root, reading root/.gitignore when present.
func NewFilter(root string, opts Options) (*Filter, error) {
	f := &Filter{
		root:     root,
		langs:    make(map[parse.Language]bool),
		excludes: make(map[string]bool),
	}
	langs := opts.Languages
	if len(langs) == 0 {
		langs = parse.AllLanguages
	}
	for _, l := range langs {
		f.langs[l] = true
	}
	for _, d := range DefaultExcludeDirs {
		f.excludes[d] = true
	}
	for _, d := range opts.ExcludeDirs {
		f.excludes[d] = true
	}
	if !opts.NoGitignore {
		gi, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))
		switch {
		case err == nil:
			f.ignore = gi
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("scan: read .gitignore: %w", err)
		}
	}
	return f, nil
}

// SkipDir reports whether the directory rel (slash separated, relative to
// the root) should not be walked.
func (f *Filter) SkipDir(rel string) bool {
	if rel == "." || rel == "" {
		return false
	}
	if f.excludes[filepath.Base(rel)] {
		return true
	}
	return f.ignore != nil && f.ignore.MatchesPath(rel+"/")
}

// Match reports whether the file rel is a source file to ingest.
func (f *Filter) Match(rel string) bool {
	lang, ok := parse.LanguageForPath(rel)
	if !ok || !f.langs[lang] {
		return false
	}
	for dir := filepath.Dir(rel); dir != "." && dir != "/"; dir = filepath.Dir(dir) {
		if f.excludes[filepath.Base(dir)] {
			return false
		}
	}
	return f.ignore == nil || !f.ignore.MatchesPath(rel)
}

// Walk returns the slash-separated paths, relative to root, of every
// matching source file in lexical order.
func Walk(root string, opts Options) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scan: %s is not a directory", root)
	}
	f, err := NewFilter(root, opts)
	if err != nil {
		return nil, err
	}

	var files []string
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip inaccessible paths
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if f.SkipDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if f.Match(rel) {
			files = append(files, rel)
		}
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("scan: walk: %w", walkErr)
	}
	sort.Strings(files)
	return files, nil
}
