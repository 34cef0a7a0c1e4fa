package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/module-sentinel/sentinel/internal/types"
)

func TestInternFileLinksParentByScope(t *testing.T) {
	idx := NewIndex()
	symbols := []*types.UniversalSymbol{
		{Name: "Service", QualifiedName: "Service", Kind: types.SymbolKindClass, FilePath: "a.py", Line: 1},
		{Name: "handle", QualifiedName: "Service.handle", Kind: types.SymbolKindMethod, FilePath: "a.py", Line: 2, ParentScope: "Service"},
	}

	diags := idx.InternFile(1, 1, symbols)
	assert.Empty(t, diags)

	method := symbols[1]
	require.NotNil(t, method.ParentSymbolID)
	assert.Equal(t, symbols[0].ID, *method.ParentSymbolID)
}

func TestResolveRelationshipsMatchesQualifiedName(t *testing.T) {
	idx := NewIndex()
	symbols := []*types.UniversalSymbol{
		{Name: "caller", QualifiedName: "caller", FilePath: "a.go", Line: 1},
		{Name: "callee", QualifiedName: "callee", FilePath: "a.go", Line: 5},
	}
	idx.InternFile(1, 1, symbols)

	rels := []*types.UniversalRelationship{
		{FromName: "caller", ToName: "callee", Type: types.RelTypeCalls},
	}
	materialized, diags := idx.ResolveRelationships(1, rels)

	assert.Empty(t, materialized)
	assert.Empty(t, diags)
	require.NotNil(t, rels[0].FromSymbolID)
	require.NotNil(t, rels[0].ToSymbolID)
	assert.Equal(t, symbols[0].ID, *rels[0].FromSymbolID)
	assert.Equal(t, symbols[1].ID, *rels[0].ToSymbolID)
}

func TestResolveRelationshipsMaterializesExternalServiceForCrossLanguageEdge(t *testing.T) {
	idx := NewIndex()
	rels := []*types.UniversalRelationship{
		{FromName: "dial", ToName: "payments", Type: types.RelTypeCommunicates, CrossLanguage: true},
		{FromName: "dial", ToName: "payments", Type: types.RelTypeCommunicates, CrossLanguage: true},
	}
	materialized, diags := idx.ResolveRelationships(1, rels)

	require.Len(t, materialized, 1)
	assert.Empty(t, diags)
	assert.Equal(t, types.SymbolKindService, materialized[0].Kind)
	assert.Equal(t, types.ExternalFilePath, materialized[0].FilePath)
	// Both edges share the one synthetic symbol.
	assert.Equal(t, *rels[0].ToSymbolID, *rels[1].ToSymbolID)
}

func TestResolveRelationshipsRedirectsAliasToCanonicalSymbol(t *testing.T) {
	idx := NewIndex()
	symbols := []*types.UniversalSymbol{
		{Name: "caller", QualifiedName: "caller", FilePath: "a.go", Line: 1},
		{Name: "helper", QualifiedName: "helper", FilePath: "a.go", Line: 5},
		{Name: "helper", QualifiedName: "b.helper", FilePath: "b.go", Line: 9},
	}
	idx.InternFile(1, 1, symbols)
	canonical := symbols[1].ID
	symbols[2].DuplicateOf = &canonical

	rels := []*types.UniversalRelationship{
		{FromName: "caller", ToName: "b.helper", Type: types.RelTypeCalls},
	}
	_, diags := idx.ResolveRelationships(1, rels)

	assert.Empty(t, diags)
	require.NotNil(t, rels[0].ToSymbolID)
	assert.Equal(t, canonical, *rels[0].ToSymbolID)
}

func TestResolveRelationshipsLeavesPreResolvedSymbolIDsAlone(t *testing.T) {
	idx := NewIndex()
	symbols := []*types.UniversalSymbol{
		{Name: "helper", QualifiedName: "a.helper", FilePath: "a.go", Line: 1},
		{Name: "helper", QualifiedName: "b.helper", FilePath: "b.go", Line: 1},
	}
	idx.InternFile(1, 1, symbols)

	fromID, toID := symbols[0].ID, symbols[1].ID
	rels := []*types.UniversalRelationship{
		{
			FromSymbolID: &fromID, ToSymbolID: &toID,
			FromName: "helper", ToName: "helper", // ambiguous by name alone
			Type: types.RelTypeReferences,
		},
	}
	_, diags := idx.ResolveRelationships(1, rels)

	assert.Empty(t, diags)
	assert.Equal(t, fromID, *rels[0].FromSymbolID)
	assert.Equal(t, toID, *rels[0].ToSymbolID)
}

func TestResolveRelationshipsPrefersSameFileThenSameDirectoryThenDefinition(t *testing.T) {
	idx := NewIndex()
	symbols := []*types.UniversalSymbol{
		{Name: "helper", QualifiedName: "other/helper", FilePath: "other/helper.go", Line: 1, IsDefinition: true},
		{Name: "helper", QualifiedName: "pkg/helper", FilePath: "pkg/b.go", Line: 20, IsDefinition: true},
		{Name: "helper", QualifiedName: "pkg/a/helper", FilePath: "pkg/a.go", Line: 1, IsDefinition: false},
		{Name: "helper", QualifiedName: "pkg/a2/helper", FilePath: "pkg/a.go", Line: 2, IsDefinition: true},
	}
	idx.InternFile(1, 1, symbols)

	rels := []*types.UniversalRelationship{
		{FromName: "caller", ToName: "helper", Type: types.RelTypeCalls, ContextFile: "pkg/a.go"},
	}
	_, diags := idx.ResolveRelationships(1, rels)

	assert.Empty(t, diags)
	require.NotNil(t, rels[0].ToSymbolID)
	// Same file (pkg/a.go) wins over same-directory (pkg/b.go) and
	// out-of-directory (other/helper.go) candidates; among the two same-file
	// candidates the real definition wins over the forward declaration.
	assert.Equal(t, symbols[3].ID, *rels[0].ToSymbolID)
}

func TestResolveRelationshipsFlagsUnresolvedSameLanguageTarget(t *testing.T) {
	idx := NewIndex()
	rels := []*types.UniversalRelationship{
		{FromName: "caller", ToName: "missing", Type: types.RelTypeCalls},
	}
	materialized, diags := idx.ResolveRelationships(1, rels)

	assert.Empty(t, materialized)
	require.Len(t, diags, 1)
	assert.Nil(t, rels[0].ToSymbolID)
}
