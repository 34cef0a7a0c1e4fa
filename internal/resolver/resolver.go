// Package resolver implements C4's two-pass resolution: pass 1 interns a
// file's symbols and wires ParentSymbolID from ParentScope via a
// project-wide qualified-name index; pass 2, run only after every file's
// pass 1 has committed, resolves each relationship's FromName/ToName into
// FromSymbolID/ToSymbolID and materializes an ExternalService symbol for
// any cross-language edge whose target never appears in-tree.
package resolver

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/module-sentinel/sentinel/internal/sentinelerr"
	"github.com/module-sentinel/sentinel/internal/types"
)

// Index is the project-wide lookup table pass 1 builds incrementally and
// pass 2 consumes. It is not safe for concurrent writes; the orchestrator's
// single writer owns it.
type Index struct {
	byQualifiedName map[string][]*types.UniversalSymbol
	bySimpleName    map[string][]*types.UniversalSymbol
	nextID          int64
}

func NewIndex() *Index {
	return &Index{
		byQualifiedName: make(map[string][]*types.UniversalSymbol),
		bySimpleName:    make(map[string][]*types.UniversalSymbol),
	}
}

// InternFile runs pass 1 for one file's freshly parsed symbols: assigns each
// a SymbolID, links ParentSymbolID by looking up ParentScope in the index
// (same-file first, then project-wide), and registers the symbol in the
// index for later files and for pass 2. Ambiguous parent-scope matches (more
// than one candidate in the same file, or none there and more than one
// project-wide) leave ParentSymbolID nil and are reported as
// ResolutionAmbiguity diagnostics rather than picking one.
func (idx *Index) InternFile(projectID types.ProjectID, languageID types.LanguageID, symbols []*types.UniversalSymbol) (diags []*sentinelerr.Error) {
	// Symbols declared earlier in the file (smaller Line) must be interned
	// first so a later sibling's ParentScope lookup can find its container.
	sort.SliceStable(symbols, func(i, j int) bool { return symbols[i].Line < symbols[j].Line })

	for _, sym := range symbols {
		idx.nextID++
		sym.ID = types.SymbolID(idx.nextID)
		sym.ProjectID = projectID
		sym.LanguageID = languageID

		if sym.ParentScope != "" {
			parent, ambiguous := idx.resolveParent(sym.ParentScope, sym.FilePath)
			if ambiguous {
				diags = append(diags, sentinelerr.New(sentinelerr.KindResolutionAmbiguity, "intern",
					errAmbiguousParent(sym.ParentScope)).WithFile(sym.FilePath))
			} else if parent != nil {
				sym.ParentSymbolID = &parent.ID
			} else if sym.Kind == types.SymbolKindMethod {
				// A C++ out-of-line "Qualified::name" definition whose in-class
				// declaration was never found: keep the symbol (per §4.4
				// invariant (b)) but flag it rather than silently dropping the
				// link.
				sym.SemanticTags = append(sym.SemanticTags, "orphan-definition")
			}
		}

		idx.register(sym)
	}
	return diags
}

func (idx *Index) register(sym *types.UniversalSymbol) {
	idx.byQualifiedName[sym.QualifiedName] = append(idx.byQualifiedName[sym.QualifiedName], sym)
	idx.bySimpleName[sym.Name] = append(idx.bySimpleName[sym.Name], sym)
}

// resolveParent prefers a same-file container match (a file's own symbols
// are always interned before its children look them up, per the Line sort
// above); failing that it falls back to a project-wide qualified-name match,
// flagging ambiguity when more than one candidate exists outside the file.
func (idx *Index) resolveParent(qualifiedName, filePath string) (parent *types.UniversalSymbol, ambiguous bool) {
	candidates := idx.byQualifiedName[qualifiedName]
	if len(candidates) == 0 {
		return nil, false
	}

	var sameFile []*types.UniversalSymbol
	for _, c := range candidates {
		if c.FilePath == filePath {
			sameFile = append(sameFile, c)
		}
	}
	if len(sameFile) == 1 {
		return sameFile[0], false
	}
	if len(sameFile) > 1 {
		return sameFile[len(sameFile)-1], true // most recently declared, still ambiguous
	}
	if len(candidates) == 1 {
		return candidates[0], false
	}
	return candidates[0], true
}

// ResolveRelationships runs pass 2: for every relationship whose endpoint
// isn't already resolved, looks up FromName/ToName against the
// fully-populated index and sets the corresponding *SymbolID fields. A
// relationship that already carries a SymbolID for an endpoint (e.g. C6
// dedup edges, which know their endpoints precisely by ID rather than by
// name) is left untouched there — re-resolving by name could pick the
// wrong candidate among same-named symbols and would discard information
// pass 1 already had. Edges whose ToName never resolves and that are
// flagged CrossLanguage get an ExternalService symbol materialized for them
// (spec §4.3/§4.4) rather than being dropped; same-language edges with no
// resolvable target are left with a nil ToSymbolID and surfaced via
// diagnostics so the caller can decide whether to drop or keep them.
func (idx *Index) ResolveRelationships(projectID types.ProjectID, rels []*types.UniversalRelationship) (materialized []*types.UniversalSymbol, diags []*sentinelerr.Error) {
	seenServices := make(map[string]*types.UniversalSymbol)

	for _, rel := range rels {
		rel.ProjectID = projectID

		if rel.FromSymbolID == nil && rel.FromName != "" {
			if sym := idx.bestMatch(rel.FromName, rel.ContextFile); sym != nil {
				rel.FromSymbolID = canonicalID(sym)
			}
		}

		if rel.ToSymbolID != nil {
			continue
		}
		if rel.ToName == "" {
			continue
		}
		if sym := idx.bestMatch(rel.ToName, rel.ContextFile); sym != nil {
			rel.ToSymbolID = canonicalID(sym)
			continue
		}

		if !rel.CrossLanguage {
			diags = append(diags, sentinelerr.New(sentinelerr.KindResolutionAmbiguity, "resolve",
				errUnresolvedTarget(rel.ToName)))
			continue
		}

		svc, isNew := idx.materializeService(seenServices, rel.ToName, rel.Metadata)
		rel.ToSymbolID = &svc.ID
		if isNew {
			materialized = append(materialized, svc)
		}
	}

	return materialized, diags
}

// bestMatch implements the tie-breaking order spec §4.4 names for pass 2: an
// exact qualified-name match wins outright; otherwise among simple-name
// candidates prefer one in contextFile itself, then one in contextFile's
// directory, then a real definition over a forward declaration, then the
// lowest declaration line.
func (idx *Index) bestMatch(name, contextFile string) *types.UniversalSymbol {
	if exact := idx.byQualifiedName[name]; len(exact) == 1 {
		return exact[0]
	} else if len(exact) > 1 {
		return pickBest(exact, contextFile)
	}

	simpleName := name
	if lastDot := strings.LastIndex(name, "."); lastDot >= 0 {
		simpleName = name[lastDot+1:]
	}
	candidates := idx.bySimpleName[simpleName]
	if len(candidates) == 0 {
		return nil
	}
	return pickBest(candidates, contextFile)
}

// canonicalID resolves a matched symbol to the ID relationships should point
// at: a deduplicated alias (DuplicateOf set) redirects to its canonical
// symbol so edges don't fragment across near-identical copies of the same
// declaration (spec §9's duplicate_of/relationship-resolution question).
func canonicalID(sym *types.UniversalSymbol) *types.SymbolID {
	if sym.DuplicateOf != nil {
		return sym.DuplicateOf
	}
	return &sym.ID
}

func pickBest(candidates []*types.UniversalSymbol, contextFile string) *types.UniversalSymbol {
	contextDir := filepath.Dir(contextFile)
	best := candidates[0]
	for _, c := range candidates[1:] {
		if isBetterMatch(c, best, contextFile, contextDir) {
			best = c
		}
	}
	return best
}

// isBetterMatch reports whether c should be preferred over best under spec
// §4.4's tie-break: same file, then same directory, then a real definition
// over a forward declaration, then the earliest declaration line.
func isBetterMatch(c, best *types.UniversalSymbol, contextFile, contextDir string) bool {
	if contextFile != "" {
		cSame, bestSame := c.FilePath == contextFile, best.FilePath == contextFile
		if cSame != bestSame {
			return cSame
		}

		cDir, bestDir := filepath.Dir(c.FilePath) == contextDir, filepath.Dir(best.FilePath) == contextDir
		if cDir != bestDir {
			return cDir
		}
	}
	if c.IsDefinition != best.IsDefinition {
		return c.IsDefinition
	}
	return c.Line < best.Line
}

// materializeService returns the ExternalService symbol for name, creating
// it (keyed by name, not by project — callers pass an already project-scoped
// seen map) the first time it's needed so repeated edges to the same
// external target share one synthetic symbol.
func (idx *Index) materializeService(seen map[string]*types.UniversalSymbol, name string, meta types.RelationshipMetadata) (*types.UniversalSymbol, bool) {
	if svc, ok := seen[name]; ok {
		return svc, false
	}

	idx.nextID++
	svc := &types.UniversalSymbol{
		ID:            types.SymbolID(idx.nextID),
		Name:          name,
		QualifiedName: name,
		Kind:          types.SymbolKindService,
		FilePath:      types.ExternalFilePath,
		IsDefinition:  false,
		Confidence:    0.5,
		LanguageFeatures: map[string]any{
			"protocol": meta.Protocol,
		},
	}
	idx.register(svc)
	seen[name] = svc
	return svc, true
}

type resolveErr string

func (e resolveErr) Error() string { return string(e) }

func errAmbiguousParent(scope string) error {
	return resolveErr("ambiguous parent scope: " + scope)
}

func errUnresolvedTarget(name string) error {
	return resolveErr("unresolved relationship target: " + name)
}
