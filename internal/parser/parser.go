package parser

import (
	"context"
	"fmt"
	"time"

	"github.com/module-sentinel/sentinel/internal/sentinelerr"
	"github.com/module-sentinel/sentinel/internal/types"
)

// DefaultTimeout is the per-file parse budget applied when a caller's
// Options.Timeout is zero, per spec §4.2's "default 30s" edge case.
const DefaultTimeout = 30 * time.Second

// Options configures a single Parse call.
type Options struct {
	Timeout time.Duration
}

// Adapter parses one file's content into a ParseResult. It holds no
// per-file state; the tree-sitter Parser/QueryCursor instances it needs are
// allocated fresh inside Parse so an Adapter is safe to share across
// concurrently-running workers.
type Adapter struct{}

func New() *Adapter { return &Adapter{} }

// Parse runs language's grammar (or, if none is wired in, the pattern
// fallback) against content and returns the symbols found. A parse that
// exceeds opts.Timeout returns a *sentinelerr.Error of KindParseTimeout; a
// tree-sitter panic (the C library occasionally aborts on malformed input)
// is recovered and reported as KindParseError rather than crashing the
// worker, mirroring the teacher's panic-to-log behavior in ParseFileEnhanced.
func (a *Adapter) Parse(ctx context.Context, filePath, language string, content []byte, opts Options) (*types.ParseResult, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	if err := ctx.Err(); err != nil {
		return nil, sentinelerr.New(sentinelerr.KindCancelled, "parse", err).WithFile(filePath)
	}

	g, ok := grammarFor(language)
	if !ok {
		return patternFallback(filePath, language, content), nil
	}

	type outcome struct {
		result *types.ParseResult
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		result, err := a.parseWithGrammar(g, language, filePath, content)
		done <- outcome{result, err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			return patternFallback(filePath, language, content), sentinelerr.New(sentinelerr.KindParseError, "parse", o.err).WithFile(filePath)
		}
		return o.result, nil
	case <-time.After(timeout):
		return patternFallback(filePath, language, content), sentinelerr.New(sentinelerr.KindParseTimeout, "parse", fmt.Errorf("exceeded %s", timeout)).WithFile(filePath)
	case <-ctx.Done():
		return nil, sentinelerr.New(sentinelerr.KindCancelled, "parse", ctx.Err()).WithFile(filePath)
	}
}

func (a *Adapter) parseWithGrammar(g *grammar, language, filePath string, content []byte) (result *types.ParseResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tree-sitter panic: %v", r)
		}
	}()

	tsParser, perr := newParserFor(g)
	if perr != nil {
		return nil, perr
	}
	defer tsParser.Close()

	// tree-sitter's C library mutates the buffer it's handed via CGO; make a
	// defensive copy so the caller's content slice stays immutable.
	buf := make([]byte, len(content))
	copy(buf, content)

	tree := tsParser.Parse(buf, nil)
	if tree == nil {
		return nil, fmt.Errorf("parse returned nil tree")
	}
	defer tree.Close()

	var diags []types.ParseDiagnostic
	if root := tree.RootNode(); root.HasError() {
		diags = append(diags, types.ParseDiagnostic{
			Severity: "warning",
			Line:     1,
			Message:  "source contains one or more syntax errors; partial results only",
		})
	}

	symbols, relationships := extractSymbols(g, language, tree, buf, filePath)

	return &types.ParseResult{
		Symbols:       symbols,
		Relationships: relationships,
		Diagnostics:   diags,
		ParseMethod:   types.ParseMethodTreeSitter,
	}, nil
}
