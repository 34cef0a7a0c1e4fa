// Package parser implements C2: turning one file's source text into a slice
// of types.UniversalSymbol via a tree-sitter grammar, with a regex-based
// fallback for files whose language has no grammar wired in or whose
// tree-sitter parse fails or times out.
package parser

import (
	"fmt"
	"sync"
	"unsafe"

	tree_sitter_zig "github.com/tree-sitter-grammars/tree-sitter-zig/bindings/go"
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_csharp "github.com/tree-sitter/tree-sitter-c-sharp/bindings/go"
	tree_sitter_cpp "github.com/tree-sitter/tree-sitter-cpp/bindings/go"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"
	tree_sitter_java "github.com/tree-sitter/tree-sitter-java/bindings/go"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_php "github.com/tree-sitter/tree-sitter-php/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_rust "github.com/tree-sitter/tree-sitter-rust/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

// grammar bundles a language's compiled tree-sitter language with its query,
// lazily built once per process and shared across every worker goroutine —
// tree_sitter.Query and tree_sitter.Language are safe for concurrent read
// use; only Parser and QueryCursor need a fresh instance per call.
type grammar struct {
	lang  *tree_sitter.Language
	query *tree_sitter.Query
}

var (
	registryOnce sync.Once
	registry     map[string]*grammar // keyed by language name, not extension
)

func buildRegistry() map[string]*grammar {
	out := make(map[string]*grammar, 10)

	add := func(name string, langPtr unsafe.Pointer, queryStr string) {
		lang := tree_sitter.NewLanguage(langPtr)
		if lang == nil {
			return
		}
		query, _ := tree_sitter.NewQuery(lang, queryStr)
		// The go-tree-sitter binding returns a typed-nil error on some
		// platforms even on success, so check the query pointer directly.
		if query == nil {
			return
		}
		out[name] = &grammar{lang: lang, query: query}
	}

	add("go", tree_sitter_go.Language(), goQuery)
	add("cpp", tree_sitter_cpp.Language(), cppQuery)
	add("typescript", tree_sitter_typescript.LanguageTypescript(), typescriptQuery)
	add("javascript", tree_sitter_javascript.Language(), javascriptQuery)
	add("python", tree_sitter_python.Language(), pythonQuery)
	add("java", tree_sitter_java.Language(), genericJavaQuery)
	add("csharp", tree_sitter_csharp.Language(), genericCSharpQuery)
	add("php", tree_sitter_php.LanguagePHP(), genericPHPQuery)
	add("rust", tree_sitter_rust.Language(), genericRustQuery)
	add("zig", tree_sitter_zig.Language(), genericZigQuery)

	return out
}

func grammarFor(language string) (*grammar, bool) {
	registryOnce.Do(func() {
		registry = buildRegistry()
	})
	g, ok := registry[language]
	return g, ok
}

// newParserFor allocates a fresh *tree_sitter.Parser bound to language's
// grammar. Parser is not safe for concurrent use, so each Parse call gets
// its own instance; the Language/Query it wraps are shared read-only.
func newParserFor(g *grammar) (*tree_sitter.Parser, error) {
	p := tree_sitter.NewParser()
	if err := p.SetLanguage(g.lang); err != nil {
		return nil, fmt.Errorf("set language: %w", err)
	}
	return p, nil
}
