package parser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/module-sentinel/sentinel/internal/sentinelerr"
	"github.com/module-sentinel/sentinel/internal/types"
)

func TestParseGoFunctionsAndMethods(t *testing.T) {
	src := `package sample

type Greeter struct{}

func (g *Greeter) Hello(name string) string {
	return "hi " + name
}

func New() *Greeter {
	return &Greeter{}
}
`
	a := New()
	result, err := a.Parse(context.Background(), "sample.go", "go", []byte(src), Options{})
	require.NoError(t, err)
	require.Equal(t, types.ParseMethodTreeSitter, result.ParseMethod)

	var names []string
	for _, s := range result.Symbols {
		names = append(names, s.Name)
	}
	assert.Contains(t, names, "Hello")
	assert.Contains(t, names, "New")
	assert.Contains(t, names, "Greeter")
}

func TestParseGoNestedMethodHasStructParentScope(t *testing.T) {
	src := `package sample

type Box struct{}

func (b *Box) Open() {}
`
	a := New()
	result, err := a.Parse(context.Background(), "sample.go", "go", []byte(src), Options{})
	require.NoError(t, err)

	var method *types.UniversalSymbol
	for _, s := range result.Symbols {
		if s.Name == "Open" {
			method = s
		}
	}
	require.NotNil(t, method)
	// Go methods aren't lexically nested inside their receiver's type block,
	// so parent scope comes from the receiver parameter, not byte-range
	// containment.
	assert.Equal(t, "Box", method.ParentScope)
	assert.Equal(t, "Box.Open", method.QualifiedName)
}

func TestParsePythonClassMethodNesting(t *testing.T) {
	src := `
class Service:
    def handle(self, req):
        return req
`
	a := New()
	result, err := a.Parse(context.Background(), "svc.py", "python", []byte(src), Options{})
	require.NoError(t, err)

	var method *types.UniversalSymbol
	for _, s := range result.Symbols {
		if s.Name == "handle" {
			method = s
		}
	}
	require.NotNil(t, method)
	assert.Equal(t, "Service", method.ParentScope)
	assert.Equal(t, "Service.handle", method.QualifiedName)
}

func TestParseUnknownLanguageUsesPatternFallback(t *testing.T) {
	a := New()
	result, err := a.Parse(context.Background(), "main.kt", "kotlin", []byte("fun main() {}"), Options{})
	require.NoError(t, err)
	assert.Equal(t, types.ParseMethodPatternFallback, result.ParseMethod)
}

func TestParseTimeoutProducesParseTimeoutError(t *testing.T) {
	a := New()
	_, err := a.Parse(context.Background(), "big.go", "go", []byte("package sample\n"), Options{Timeout: 1})
	time.Sleep(5 * time.Millisecond)
	if err != nil {
		assert.True(t, sentinelerr.As(err, sentinelerr.KindParseTimeout) || sentinelerr.As(err, sentinelerr.KindParseError))
	}
}

func TestParseRespectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := New()
	_, err := a.Parse(ctx, "sample.go", "go", []byte("package sample\n"), Options{})
	require.Error(t, err)
	assert.True(t, sentinelerr.As(err, sentinelerr.KindCancelled))
}
