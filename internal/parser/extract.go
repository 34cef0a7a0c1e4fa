package parser

import (
	"regexp"
	"sort"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/module-sentinel/sentinel/internal/types"
)

// captured is one query match's primary capture plus whatever sub-captures
// (receiver, bases, decorator, qualifier...) rode along with it.
type captured struct {
	kind       types.SymbolKind
	node       tree_sitter.Node
	name       string
	hasName    bool
	decorator  string // last decorator/annotation text seen immediately before this capture
	qualifier  string // C++ "Qualified::" scope text on an out-of-line member definition
	receiver   string // Go method receiver parameter-list text, e.g. "(s *Server)"
	extends    []string
	implements []string
}

// callSite is a call_expression's callee name, positioned by byte offset so
// it can be attributed to whichever function/method span contains it.
type callSite struct {
	pos    uint
	line   int
	target string
}

var kindByCapture = map[string]types.SymbolKind{
	"function":    types.SymbolKindFunction,
	"method":      types.SymbolKindMethod,
	"constructor": types.SymbolKindConstructor,
	"class":       types.SymbolKindClass,
	"struct":      types.SymbolKindStruct,
	"interface":   types.SymbolKindInterface,
	"enum":        types.SymbolKindEnum,
	"namespace":   types.SymbolKindNamespace,
	"module":      types.SymbolKindModule,
	"package":     types.SymbolKindModule,
	"type":        types.SymbolKindTypeAlias,
	"concept":     types.SymbolKindConcept,
	"template":    types.SymbolKindOther,
	"field":       types.SymbolKindField,
	"variable":    types.SymbolKindVariable,
	"import":      types.SymbolKindImport,
}

var (
	goReceiverRe     = regexp.MustCompile(`\(\s*\w+\s+(\*)?([\w.]+)\s*\)`)
	asyncKeywordRe   = regexp.MustCompile(`\basync\b`)
	virtualKeywordRe = regexp.MustCompile(`\bvirtual\b`)
	pureVirtualRe    = regexp.MustCompile(`=\s*0\s*;?\s*$`)
	jsxReturnRe      = regexp.MustCompile(`return\s*\(?\s*<[A-Za-z>]`)
	cppModuleRe      = regexp.MustCompile(`^\s*(?:export\s+)?module\s+([\w.]+)`)
	baseKeywordRe    = regexp.MustCompile(`\b(?:public|private|protected|virtual|extends|implements)\b`)
	cppIncludeRe     = regexp.MustCompile(`#\s*include\s*[<"]([^">]+)[">]`)
	cppUsingRe       = regexp.MustCompile(`using\s+([\w:]+)\s*;`)
	pyFromImportRe   = regexp.MustCompile(`^\s*from\s+([\w.]+)\s+import\s+(.+)$`)
	pyImportRe       = regexp.MustCompile(`^\s*import\s+([\w.]+)`)
)

// extractSymbols walks every match of g's query against tree/content and
// returns the symbols and syntactic relationships found. Symbol ParentScope
// comes from a container stack built over the captures' byte ranges (sorted
// by start, popped by end) rather than a literal AST walk — query matches
// don't arrive in a single guaranteed traversal order across capture kinds,
// so byte-range containment is the robust way to recover nesting. This
// generalizes the parent-stack idea from the teacher's VisitContext to work
// off query captures instead of a manual node visitor.
//
// Relationships are derived the same pass covers per spec §4.2 step 4:
// contains falls out of the same ParentScope computation; imports, calls,
// inherits/implements and exports each get a dedicated capture or byte-range
// correlation, documented at their construction site below.
func extractSymbols(g *grammar, language string, tree *tree_sitter.Tree, content []byte, filePath string) ([]*types.UniversalSymbol, []*types.UniversalRelationship) {
	qc := tree_sitter.NewQueryCursor()
	defer qc.Close()

	matches := qc.Matches(g.query, tree.RootNode(), content)
	names := g.query.CaptureNames()

	var items []captured
	var calls []callSite
	exportStarts := make(map[uint]bool)
	var lastDecorator string

	for {
		m := matches.Next()
		if m == nil {
			break
		}

		if target, pos, line, ok := callCapture(m, names, content); ok {
			calls = append(calls, callSite{pos: pos, line: line, target: target})
			continue
		}

		var primary *tree_sitter.Node
		var primaryCapture string
		nameText := ""
		hasName := false
		var qualifier, receiver string
		var extends, implements []string

		for i := range m.Captures {
			c := &m.Captures[i]
			capName := names[c.Index]

			switch {
			case capName == "decorator":
				lastDecorator = string(content[c.Node.StartByte():c.Node.EndByte()])
				continue
			case capName == "export":
				exportStarts[c.Node.StartByte()] = true
				continue
			case strings.HasSuffix(capName, ".qualifier"):
				qualifier = string(content[c.Node.StartByte():c.Node.EndByte()])
				continue
			case strings.HasSuffix(capName, ".receiver"):
				receiver = string(content[c.Node.StartByte():c.Node.EndByte()])
				continue
			case strings.HasSuffix(capName, ".extends"):
				extends = append(extends, splitBaseNames(string(content[c.Node.StartByte():c.Node.EndByte()]))...)
				continue
			case strings.HasSuffix(capName, ".implements"):
				implements = append(implements, splitBaseNames(string(content[c.Node.StartByte():c.Node.EndByte()]))...)
				continue
			case strings.HasSuffix(capName, ".bases"):
				extends = append(extends, splitBaseNames(string(content[c.Node.StartByte():c.Node.EndByte()]))...)
				continue
			case strings.HasSuffix(capName, ".name") || strings.HasSuffix(capName, ".source") || strings.HasSuffix(capName, ".path"):
				if !hasName {
					nameText = string(content[c.Node.StartByte():c.Node.EndByte()])
					hasName = true
				}
				continue
			case strings.Contains(capName, "."):
				continue // other non-name sub-captures
			}
			if _, ok := kindByCapture[capName]; ok {
				primary = &c.Node
				primaryCapture = capName
			}
		}

		if primary == nil {
			continue
		}

		items = append(items, captured{
			kind:       kindByCapture[primaryCapture],
			node:       *primary,
			name:       cleanName(nameText),
			hasName:    hasName,
			decorator:  lastDecorator,
			qualifier:  cleanQualifier(qualifier),
			receiver:   receiver,
			extends:    extends,
			implements: implements,
		})
		lastDecorator = ""
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].node.StartByte() < items[j].node.StartByte()
	})

	type openScope struct {
		end           uint
		qualifiedName string
	}
	var stack []openScope

	type funcSpan struct {
		start, end uint
		sym        *types.UniversalSymbol
	}
	var funcSpans []funcSpan

	out := make([]*types.UniversalSymbol, 0, len(items))
	var rels []*types.UniversalRelationship

	for _, it := range items {
		for len(stack) > 0 && uint(stack[len(stack)-1].end) <= uint(it.node.StartByte()) {
			stack = stack[:len(stack)-1]
		}

		parentScope := ""
		if len(stack) > 0 {
			parentScope = stack[len(stack)-1].qualifiedName
		}

		var receiverType string
		switch {
		case it.qualifier != "":
			// C++ out-of-line member definition ("Qualified::name"): link back
			// to the in-class declaration by reusing its qualified name rather
			// than the (empty) lexical containment scope.
			parentScope = it.qualifier
		case it.receiver != "":
			if m := goReceiverRe.FindStringSubmatch(it.receiver); m != nil {
				receiverType = m[2]
				parentScope = receiverType
			}
		}

		name := it.name
		if name == "" {
			name = "<anonymous>"
		}
		qualified := name
		if parentScope != "" {
			qualified = parentScope + "." + name
		}

		start := it.node.StartPosition()
		end := it.node.EndPosition()

		sym := &types.UniversalSymbol{
			Name:          name,
			QualifiedName: qualified,
			Kind:          it.kind,
			FilePath:      filePath,
			Line:          int(start.Row) + 1,
			Column:        int(start.Column) + 1,
			EndLine:       int(end.Row) + 1,
			EndColumn:     int(end.Column) + 1,
			Signature:     strings.TrimSpace(firstLine(content, it.node)),
			Visibility:    inferVisibility(name),
			ParentScope:   parentScope,
			IsExported:    inferVisibility(name) == types.VisibilityPublic,
			IsDefinition:  it.kind != types.SymbolKindImport,
			Confidence:    1.0,
		}
		if it.decorator != "" {
			sym.SemanticTags = append(sym.SemanticTags, "decorator:"+strings.TrimSpace(it.decorator))
		}

		nodeText := ""
		if sym.Kind == types.SymbolKindFunction || sym.Kind == types.SymbolKindMethod {
			nodeText = string(content[it.node.StartByte():it.node.EndByte()])
		}
		applyLanguageFeatures(sym, language, it, receiverType, nodeText)

		out = append(out, sym)

		if exportStarts[it.node.StartByte()] {
			sym.IsExported = true
			rels = append(rels, &types.UniversalRelationship{
				FromName:    filePath,
				ToName:      sym.QualifiedName,
				Type:        types.RelTypeExports,
				Confidence:  1.0,
				ContextFile: filePath,
				ContextLine: sym.Line,
			})
		}

		if parentScope != "" {
			rels = append(rels, &types.UniversalRelationship{
				FromName:    parentScope,
				ToName:      sym.QualifiedName,
				Type:        types.RelTypeContains,
				Confidence:  1.0,
				ContextFile: filePath,
				ContextLine: sym.Line,
			})
		}

		for _, base := range it.extends {
			rels = append(rels, &types.UniversalRelationship{
				FromName:    sym.QualifiedName,
				ToName:      base,
				Type:        types.RelTypeInherits,
				Confidence:  0.9,
				ContextFile: filePath,
				ContextLine: sym.Line,
			})
		}
		for _, iface := range it.implements {
			rels = append(rels, &types.UniversalRelationship{
				FromName:    sym.QualifiedName,
				ToName:      iface,
				Type:        types.RelTypeImplements,
				Confidence:  0.9,
				ContextFile: filePath,
				ContextLine: sym.Line,
			})
		}

		if sym.Kind == types.SymbolKindImport {
			if target := importTarget(sym.Name, sym.Signature); target != "" {
				rels = append(rels, &types.UniversalRelationship{
					FromName:    filePath,
					ToName:      target,
					Type:        types.RelTypeImports,
					Confidence:  1.0,
					ContextFile: filePath,
					ContextLine: sym.Line,
				})
			}
			for _, name := range pythonImportedNames(sym.Signature) {
				rels = append(rels, &types.UniversalRelationship{
					FromName:    filePath,
					ToName:      name,
					Type:        types.RelTypeReferences,
					Confidence:  0.8,
					ContextFile: filePath,
					ContextLine: sym.Line,
				})
			}
		}

		if it.kind.IsContainer() {
			stack = append(stack, openScope{end: uint(it.node.EndByte()), qualifiedName: qualified})
		}
		if sym.Kind == types.SymbolKindFunction || sym.Kind == types.SymbolKindMethod || sym.Kind == types.SymbolKindConstructor {
			funcSpans = append(funcSpans, funcSpan{start: it.node.StartByte(), end: it.node.EndByte(), sym: sym})
		}
	}

	for _, call := range calls {
		var enclosing *funcSpan
		for i := range funcSpans {
			fs := &funcSpans[i]
			if fs.start <= call.pos && call.pos < fs.end {
				if enclosing == nil || fs.end-fs.start < enclosing.end-enclosing.start {
					enclosing = fs
				}
			}
		}
		if enclosing == nil {
			continue
		}
		rels = append(rels, &types.UniversalRelationship{
			FromName:    enclosing.sym.QualifiedName,
			ToName:      call.target,
			Type:        types.RelTypeCalls,
			Confidence:  0.6, // syntactic call-site match, not yet type-resolved
			ContextFile: filePath,
			ContextLine: call.line,
		})
	}

	return out, rels
}

// callCapture recognizes a "@call" match (a call_expression whose callee
// name rode along as "call.target") and returns its callee name and
// position, so the caller can skip the generic symbol-building path for it.
func callCapture(m *tree_sitter.QueryMatch, names []string, content []byte) (target string, pos uint, line int, ok bool) {
	for i := range m.Captures {
		c := &m.Captures[i]
		if names[c.Index] == "call.target" {
			return cleanName(string(content[c.Node.StartByte():c.Node.EndByte()])), c.Node.StartByte(), int(c.Node.StartPosition().Row) + 1, true
		}
	}
	return "", 0, 0, false
}

// applyLanguageFeatures populates the per-language feature bag spec §4.2
// step 5 names, to the extent it's derivable from the symbol's own captured
// text without a second parse pass (templateParams, isExportedModule and a
// few other rarer keys are left unset; see DESIGN.md).
func applyLanguageFeatures(sym *types.UniversalSymbol, language string, it captured, receiverType, nodeText string) {
	features := map[string]any{}

	if it.decorator != "" {
		features["decorators"] = []string{strings.TrimSpace(it.decorator)}
	}
	if len(it.extends) > 0 {
		features["baseClasses"] = it.extends
	}

	switch language {
	case "go":
		if receiverType != "" {
			features["receiverType"] = receiverType
			features["isPointerReceiver"] = strings.Contains(it.receiver, "*")
		}
	case "cpp":
		if virtualKeywordRe.MatchString(sym.Signature) {
			features["isVirtual"] = true
			sym.IsAbstract = pureVirtualRe.MatchString(sym.Signature)
		}
		if m := cppModuleRe.FindStringSubmatch(sym.Signature); m != nil {
			features["moduleName"] = m[1]
		}
	case "typescript", "javascript":
		if sym.Kind == types.SymbolKindFunction || sym.Kind == types.SymbolKindMethod {
			if isExportedName(sym.Name) && jsxReturnRe.MatchString(nodeText) {
				features["isReactComponent"] = true
			}
			if isHookName(sym.Name) {
				features["isReactHook"] = true
			}
		}
		if asyncKeywordRe.MatchString(sym.Signature) {
			sym.IsAsync = true
		}
	case "python":
		if asyncKeywordRe.MatchString(sym.Signature) {
			sym.IsAsync = true
			features["isCoroutine"] = true
		}
	}

	if len(features) > 0 {
		sym.LanguageFeatures = features
	}
}

func isExportedName(name string) bool {
	return name != "" && name[0] >= 'A' && name[0] <= 'Z'
}

func isHookName(name string) bool {
	return len(name) > 3 && strings.HasPrefix(name, "use") && name[3] >= 'A' && name[3] <= 'Z'
}

// splitBaseNames turns a raw heritage clause ("public Base1, private Base2",
// "extends Base", "implements I1, I2", a python "(Base1, Base2)" argument
// list) into the bare base/interface names it lists.
func splitBaseNames(text string) []string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, ":")
	text = strings.TrimPrefix(text, "(")
	text = strings.TrimSuffix(text, ")")
	text = baseKeywordRe.ReplaceAllString(text, "")

	var out []string
	for _, part := range strings.Split(text, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if idx := strings.IndexAny(part, "<({ ="); idx >= 0 {
			part = part[:idx]
		}
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// importTarget extracts the module/path an import-like symbol refers to: the
// grammar-captured name when the query already gave one (Go/TS/JS), else a
// pattern match over the raw source line for the languages whose import
// nodes don't carry a dedicated name/path/source capture (C++, Python).
func importTarget(name, signature string) string {
	if name != "" && name != "<anonymous>" {
		return name
	}
	if m := cppIncludeRe.FindStringSubmatch(signature); m != nil {
		return m[1]
	}
	if m := cppUsingRe.FindStringSubmatch(signature); m != nil {
		return m[1]
	}
	if m := pyFromImportRe.FindStringSubmatch(signature); m != nil {
		return m[1]
	}
	if m := pyImportRe.FindStringSubmatch(signature); m != nil {
		return m[1]
	}
	return ""
}

// pythonImportedNames implements the Python-specific half of spec §4.2 step
// 4: "from X import Y" produces a references edge for each bound name Y, in
// addition to the module-level import edge importTarget already covers.
func pythonImportedNames(signature string) []string {
	m := pyFromImportRe.FindStringSubmatch(signature)
	if m == nil {
		return nil
	}
	var names []string
	for _, part := range strings.Split(m[2], ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if idx := strings.Index(part, " as "); idx >= 0 {
			part = part[:idx]
		}
		part = strings.TrimSpace(part)
		if part != "" {
			names = append(names, part)
		}
	}
	return names
}

// cleanName strips quotes from string-literal captures (import paths); any
// other text, including a selector like "pkg.Method", is returned unchanged.
func cleanName(s string) string {
	s = strings.Trim(s, `"'`+"`")
	return s
}

// cleanQualifier strips the trailing "::" a C++ qualified_identifier's scope
// text sometimes includes, leaving a bare dotted/scoped name.
func cleanQualifier(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "::")
	return strings.ReplaceAll(s, "::", ".")
}

func firstLine(content []byte, node tree_sitter.Node) string {
	text := string(content[node.StartByte():node.EndByte()])
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		return text[:idx]
	}
	if len(text) > 160 {
		return text[:160]
	}
	return text
}

// inferVisibility guesses visibility from the identifier alone: a leading
// capital letter is public (Go's export rule), a leading underscore is
// private, and anything else is default. Visibility keywords
// (public/private/protected) in the source are not read.
func inferVisibility(name string) types.Visibility {
	if name == "" || name == "<anonymous>" {
		return types.VisibilityDefault
	}
	r := rune(name[0])
	if r >= 'A' && r <= 'Z' {
		return types.VisibilityPublic
	}
	if strings.HasPrefix(name, "_") {
		return types.VisibilityPrivate
	}
	return types.VisibilityDefault
}
