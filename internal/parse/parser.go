// Package parse turns source files into ingest.FileResult records using
// tree-sitter grammars.
package parse

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/dusk-indust/codepecker/internal/ingest"
)

// Language identifies a source language.
type Language string

const (
	LangGo         Language = "go"
	LangTypeScript Language = "typescript"
	LangPython     Language = "python"
	LangRust       Language = "rust"
)

// AllLanguages lists every language with a registered grammar.
var AllLanguages = []Language{LangGo, LangTypeScript, LangPython, LangRust}

// extToLanguage maps file extensions to Language.
var extToLanguage = map[string]Language{
	".go":  LangGo,
	".ts":  LangTypeScript,
	".tsx": LangTypeScript,
	".py":  LangPython,
	".rs":  LangRust,
}

// LanguageForPath returns the language of path by extension.
func LanguageForPath(path string) (Language, bool) {
	lang, ok := extToLanguage[strings.ToLower(filepath.Ext(path))]
	return lang, ok
}

// ParseLanguages normalizes names such as "Go" or "ts" into Languages.
// Unknown names are returned separately. An empty input selects every
// language.
func ParseLanguages(names []string) (langs []Language, unknown []string) {
	if len(names) == 0 {
		return append([]Language(nil), AllLanguages...), nil
	}
	for _, n := range names {
		switch strings.ToLower(strings.TrimSpace(n)) {
		case "go", "golang":
			langs = append(langs, LangGo)
		case "typescript", "ts":
			langs = append(langs, LangTypeScript)
		case "python", "py":
			langs = append(langs, LangPython)
		case "rust", "rs":
			langs = append(langs, LangRust)
		default:
			unknown = append(unknown, n)
		}
	}
	return langs, unknown
}

// Parser extracts classes, methods and calls from source files.
// Implementations: TreeSitterParser (production).
type Parser interface {
	// Parse extracts the classes declared in a single source file.
	// source is the file content. lang determines which grammar to use.
	Parse(ctx context.Context, path string, source []byte, lang Language) (*ingest.FileResult, error)

	// SupportedLanguages returns the languages this parser can handle.
	SupportedLanguages() []Language

	// Close releases parser resources (Tree-sitter C memory).
	Close() error
}
