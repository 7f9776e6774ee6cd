package scan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/codepecker/internal/parse"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, body := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
}

func TestWalk(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		".gitignore":            "generated/\n*.pb.go\n",
		"main.go":               "package main",
		"api/api.pb.go":         "package api",
		"api/handler.go":        "package api",
		"generated/out.go":      "package generated",
		"web/app.ts":            "class A {}",
		"web/node_modules/x.ts": "class X {}",
		"tools/gen.py":          "class G: pass",
		"core/lib.rs":           "struct S;",
		"docs/readme.md":        "# docs",
		".git/hooks/pre.go":     "package hooks",
		"third_party/legacy.go": "package legacy",
	})

	files, err := Walk(root, Options{ExcludeDirs: []string{"third_party"}})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"api/handler.go",
		"core/lib.rs",
		"main.go",
		"tools/gen.py",
		"web/app.ts",
	}, files)
}

func TestWalk_LanguagesAndNoGitignore(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		".gitignore":       "generated/\n",
		"main.go":          "package main",
		"generated/out.go": "package generated",
		"tools/gen.py":     "class G: pass",
	})

	files, err := Walk(root, Options{Languages: []parse.Language{parse.LangGo}, NoGitignore: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"generated/out.go", "main.go"}, files)
}

func TestWalk_NotADirectory(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "main.go")
	require.NoError(t, os.WriteFile(file, []byte("package main"), 0o644))

	_, err := Walk(file, Options{})
	assert.Error(t, err)

	_, err = Walk(filepath.Join(root, "missing"), Options{})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFilter_Match(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{".gitignore": "*_gen.go\n"})

	f, err := NewFilter(root, Options{})
	require.NoError(t, err)
	assert.True(t, f.Match("pkg/service.go"))
	assert.False(t, f.Match("pkg/service_gen.go"))
	assert.False(t, f.Match("vendor/lib/x.go"))
	assert.False(t, f.Match("notes.txt"))
	assert.True(t, f.SkipDir("node_modules"))
	assert.False(t, f.SkipDir("."))
}
