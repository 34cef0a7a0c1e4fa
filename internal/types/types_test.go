package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsContainerForKnownContainerKinds(t *testing.T) {
	for _, k := range []SymbolKind{
		SymbolKindClass, SymbolKindStruct, SymbolKindInterface,
		SymbolKindNamespace, SymbolKindModule, SymbolKindEnum,
	} {
		assert.True(t, k.IsContainer(), "%s should be a container", k)
	}
}

func TestIsContainerFalseForLeafKinds(t *testing.T) {
	for _, k := range []SymbolKind{
		SymbolKindFunction, SymbolKindMethod, SymbolKindField,
		SymbolKindVariable, SymbolKindImport, SymbolKindOther,
	} {
		assert.False(t, k.IsContainer(), "%s should not be a container", k)
	}
}
