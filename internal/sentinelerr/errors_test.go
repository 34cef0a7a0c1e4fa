package sentinelerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFatalOnlyForSchemaMismatch(t *testing.T) {
	assert.True(t, KindSchemaMismatch.Fatal())
	assert.False(t, KindStoreConflict.Fatal())
	assert.False(t, KindParseError.Fatal())
}

func TestErrorMessageIncludesFileWhenSet(t *testing.T) {
	base := errors.New("boom")
	e := New(KindParseError, "parse", base).WithFile("main.go")
	assert.Contains(t, e.Error(), "main.go")
	assert.Contains(t, e.Error(), "parse")
	assert.Contains(t, e.Error(), "boom")
}

func TestErrorMessageOmitsFileWhenUnset(t *testing.T) {
	e := New(KindSchemaMismatch, "migrate", errors.New("mismatch"))
	assert.NotContains(t, e.Error(), "for :")
}

func TestUnwrapReturnsUnderlying(t *testing.T) {
	base := errors.New("boom")
	e := New(KindFileIO, "read", base)
	assert.Equal(t, base, errors.Unwrap(e))
}

func TestAsMatchesKind(t *testing.T) {
	e := New(KindParseTimeout, "parse", errors.New("slow"))
	assert.True(t, As(e, KindParseTimeout))
	assert.False(t, As(e, KindParseError))
	assert.False(t, As(errors.New("plain"), KindParseTimeout))
}

func TestNewMultiFiltersNilAndCollapsesSingle(t *testing.T) {
	assert.Nil(t, NewMulti([]error{nil, nil}))

	single := NewMulti([]error{nil, errors.New("only")})
	assert.Equal(t, "only", single.Error())

	multi := NewMulti([]error{errors.New("a"), errors.New("b")})
	assert.Contains(t, multi.Error(), "2 errors occurred")
	assert.Len(t, multi.Unwrap(), 2)
}
