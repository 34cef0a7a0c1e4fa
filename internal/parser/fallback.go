package parser

import (
	"regexp"

	"github.com/module-sentinel/sentinel/internal/types"
)

// patternFallback recovers a coarse symbol list with regexes when no
// tree-sitter grammar is registered for language, or when the grammar parse
// failed/timed out. It never errors: worst case it returns zero symbols,
// which the caller already reports via the accompanying sentinelerr.Error.
func patternFallback(filePath, language string, content []byte) *types.ParseResult {
	patterns, ok := fallbackPatterns[language]
	if !ok {
		patterns = fallbackPatterns["generic"]
	}

	var symbols []*types.UniversalSymbol
	lineStarts := splitLineOffsets(content)

	for _, p := range patterns {
		for _, m := range p.re.FindAllSubmatchIndex(content, -1) {
			if len(m) < 4 {
				continue
			}
			name := string(content[m[2]:m[3]])
			if name == "" {
				continue
			}
			line, col := lineForOffset(lineStarts, m[0])
			symbols = append(symbols, &types.UniversalSymbol{
				Name:          name,
				QualifiedName: name,
				Kind:          p.kind,
				FilePath:      filePath,
				Line:          line,
				Column:        col,
				EndLine:       line,
				Visibility:    inferVisibility(name),
				IsExported:    inferVisibility(name) == types.VisibilityPublic,
				IsDefinition:  true,
				Confidence:    0.4, // pattern matches are far less reliable than a grammar
			})
		}
	}

	return &types.ParseResult{
		Symbols:     symbols,
		ParseMethod: types.ParseMethodPatternFallback,
	}
}

type fallbackPattern struct {
	re   *regexp.Regexp
	kind types.SymbolKind
}

var fallbackPatterns = map[string][]fallbackPattern{
	"go": {
		{regexp.MustCompile(`(?m)^func\s+(?:\([^)]*\)\s+)?(\w+)\s*\(`), types.SymbolKindFunction},
		{regexp.MustCompile(`(?m)^type\s+(\w+)\s+(?:struct|interface)\b`), types.SymbolKindStruct},
	},
	"python": {
		{regexp.MustCompile(`(?m)^\s*def\s+(\w+)\s*\(`), types.SymbolKindFunction},
		{regexp.MustCompile(`(?m)^\s*class\s+(\w+)\s*[:(]`), types.SymbolKindClass},
	},
	"javascript": {
		{regexp.MustCompile(`(?m)^\s*function\s+(\w+)\s*\(`), types.SymbolKindFunction},
		{regexp.MustCompile(`(?m)^\s*class\s+(\w+)\b`), types.SymbolKindClass},
	},
	"typescript": {
		{regexp.MustCompile(`(?m)^\s*function\s+(\w+)\s*\(`), types.SymbolKindFunction},
		{regexp.MustCompile(`(?m)^\s*(?:export\s+)?class\s+(\w+)\b`), types.SymbolKindClass},
		{regexp.MustCompile(`(?m)^\s*(?:export\s+)?interface\s+(\w+)\b`), types.SymbolKindInterface},
	},
	"generic": {
		{regexp.MustCompile(`(?m)^\s*(?:public|private|protected)?\s*(?:class|struct)\s+(\w+)\b`), types.SymbolKindClass},
		{regexp.MustCompile(`(?m)^\s*(?:func|function|def|void|int|string|bool)\s+(\w+)\s*\(`), types.SymbolKindFunction},
	},
}

// splitLineOffsets returns the byte offset each line starts at, so
// lineForOffset can binary-search a match position back to a (line, column).
func splitLineOffsets(content []byte) []int {
	starts := []int{0}
	for i, b := range content {
		if b == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

func lineForOffset(lineStarts []int, offset int) (line, col int) {
	lo, hi := 0, len(lineStarts)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if lineStarts[mid] <= offset {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo + 1, offset - lineStarts[lo] + 1
}
