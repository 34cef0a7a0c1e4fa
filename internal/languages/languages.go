// Package languages holds the process-wide, immutable Language set (spec
// §3): a language is an interned (name, extensions) tuple, bootstrapped once
// at startup and never mutated afterward. Discovery, the parser registry and
// the store all consult this same table so a file's language is decided in
// exactly one place.
package languages

import "strings"

// Descriptor is one entry of the bootstrap set.
type Descriptor struct {
	Name       string
	Extensions []string
}

// Bootstrap is the full set of languages the core recognizes. The parser
// registry wires a tree-sitter grammar for each of these; a file whose parse
// fails or times out falls back to the pattern-based extractor (see
// internal/parser/fallback.go).
var Bootstrap = []Descriptor{
	{Name: "cpp", Extensions: []string{".cpp", ".cc", ".cxx", ".c", ".h", ".hpp", ".hxx", ".ixx"}},
	{Name: "typescript", Extensions: []string{".ts", ".tsx"}},
	{Name: "javascript", Extensions: []string{".js", ".jsx", ".mjs", ".cjs"}},
	{Name: "python", Extensions: []string{".py", ".pyi"}},
	{Name: "go", Extensions: []string{".go"}},
	{Name: "java", Extensions: []string{".java"}},
	{Name: "csharp", Extensions: []string{".cs"}},
	{Name: "php", Extensions: []string{".php"}},
	{Name: "rust", Extensions: []string{".rs"}},
	{Name: "zig", Extensions: []string{".zig"}},
}

var byExtension map[string]string

func init() {
	byExtension = make(map[string]string)
	for _, d := range Bootstrap {
		for _, ext := range d.Extensions {
			byExtension[ext] = d.Name
		}
	}
}

// ForExtension returns the language name registered for ext (which must
// include the leading dot), or "" if unrecognized.
func ForExtension(ext string) string {
	return byExtension[strings.ToLower(ext)]
}

// Known reports whether name is one of the bootstrap languages.
func Known(name string) bool {
	for _, d := range Bootstrap {
		if d.Name == name {
			return true
		}
	}
	return false
}
