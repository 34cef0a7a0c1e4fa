// Package orchestrator implements C7: the incremental indexing driver that
// wires discovery, parsing, cross-language detection, two-pass resolution,
// deduplication and persistence into one run over bounded worker pool,
// per spec §4.7/§5.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/module-sentinel/sentinel/internal/crosslang"
	"github.com/module-sentinel/sentinel/internal/dedup"
	"github.com/module-sentinel/sentinel/internal/discovery"
	"github.com/module-sentinel/sentinel/internal/languages"
	"github.com/module-sentinel/sentinel/internal/logging"
	"github.com/module-sentinel/sentinel/internal/parser"
	"github.com/module-sentinel/sentinel/internal/resolver"
	"github.com/module-sentinel/sentinel/internal/sentinelerr"
	"github.com/module-sentinel/sentinel/internal/store"
	"github.com/module-sentinel/sentinel/internal/types"
)

const DefaultMaxConcurrentFiles = 8

// Options configures one indexing run.
type Options struct {
	ProjectName        string
	ProjectRoot        string
	Languages          []string
	IncludeGlobs       []string
	ExcludeGlobs       []string
	MaxFileSize        int64
	MaxConcurrentFiles int
	FullReindex        bool
	ParseTimeout       time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxConcurrentFiles <= 0 {
		o.MaxConcurrentFiles = DefaultMaxConcurrentFiles
	}
	return o
}

// Orchestrator drives C7 over a single Store.
type Orchestrator struct {
	store   *store.Store
	parser  *parser.Adapter
	log     logging.Logger
	deduper *dedup.Deduper
}

func New(s *store.Store, log logging.Logger) *Orchestrator {
	if log == nil {
		log = logging.Noop{}
	}
	return &Orchestrator{
		store:   s,
		parser:  parser.New(),
		log:     log,
		deduper: dedup.New(dedup.Config{}),
	}
}

// fileOutcome is what one worker produces for a to-parse file: pure data,
// no store access, so workers never contend on the single writer.
type fileOutcome struct {
	candidate types.FileCandidate
	symbols   []*types.UniversalSymbol
	rels      []*types.UniversalRelationship
	status    types.ParseStatus
	errMsg    string
	parseErr  *sentinelerr.Error
}

// Run executes one full C7 pass: ensure project/languages, discover, diff,
// delete, parse in parallel, then per file intern (pass 1), dedup and write
// its file record and symbols; then resolve pass 2, write materialized
// external services and relationships, and emit an IndexResult. A context
// already cancelled on entry yields Cancelled=true and no error.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (types.IndexResult, error) {
	opts = opts.withDefaults()
	start := time.Now()
	result := types.IndexResult{SchemaVersion: store.SchemaVersion}
	o.deduper = dedup.New(dedup.Config{})

	if ctx.Err() != nil {
		result.Cancelled = true
		result.DurationMS = time.Since(start).Milliseconds()
		return result, nil
	}

	projectID, err := o.store.EnsureProject(ctx, opts.ProjectName, opts.ProjectRoot)
	if err != nil {
		return result, err
	}
	result.ProjectID = projectID

	langIDs := make(map[string]types.LanguageID, len(languages.Bootstrap))
	for _, d := range languages.Bootstrap {
		id, err := o.store.EnsureLanguage(ctx, d.Name, d.Extensions)
		if err != nil {
			return result, err
		}
		langIDs[d.Name] = id
	}

	walker := discovery.NewWalker(discovery.Options{
		ProjectRoot:  opts.ProjectRoot,
		Languages:    opts.Languages,
		IncludeGlobs: opts.IncludeGlobs,
		ExcludeGlobs: opts.ExcludeGlobs,
		MaxFileSize:  opts.MaxFileSize,
	}, o.log)

	candidates, skipped, discErrs := walker.Discover()
	for _, e := range discErrs {
		result.Errors = append(result.Errors, toIndexError(e))
	}

	if err := ctx.Err(); err != nil {
		result.Cancelled = true
		result.DurationMS = time.Since(start).Milliseconds()
		return result, nil
	}

	var known []discovery.KnownHash
	if opts.FullReindex {
		if err := o.store.DeleteFiles(ctx, projectID, allKnownPaths(ctx, o.store, projectID)); err != nil {
			return result, err
		}
	} else {
		hashes, err := o.store.KnownFileHashes(ctx, projectID)
		if err != nil {
			return result, err
		}
		for path, hash := range hashes {
			known = append(known, discovery.KnownHash{Path: path, Hash: hash})
		}
	}

	diff := discovery.FilterChanged(candidates, known)

	skippedPaths := make(map[string]bool, len(skipped))
	for _, sk := range skipped {
		skippedPaths[sk.Path] = true
	}
	toDelete := diff.ToDelete[:0]
	for _, p := range diff.ToDelete {
		if !skippedPaths[p] {
			toDelete = append(toDelete, p)
		}
	}
	diff.ToDelete = toDelete

	if len(diff.ToDelete) > 0 {
		if err := o.store.DeleteFiles(ctx, projectID, diff.ToDelete); err != nil {
			return result, err
		}
	}

	for _, sk := range skipped {
		rec := types.FileRecord{
			ProjectID:     projectID,
			Path:          sk.Path,
			Size:          sk.Size,
			LastIndexedAt: time.Now(),
			Status:        types.ParseStatusSkipped,
			ErrorMessage:  "exceeds max_file_size_mb",
		}
		if err := o.store.WriteFileResult(ctx, rec, nil); err != nil {
			result.Errors = append(result.Errors, toIndexError(asSentinelErr(err)))
		}
	}

	outcomes, err := o.parseAll(ctx, diff.ToParse, opts, langIDs)
	if err != nil && len(outcomes) == 0 {
		return result, err
	}

	idx := resolver.NewIndex()
	var allRels []*types.UniversalRelationship

	for _, out := range outcomes {
		if out.parseErr != nil {
			result.Errors = append(result.Errors, toIndexError(out.parseErr))
		}

		langID := langIDs[out.candidate.Language]
		diags := idx.InternFile(projectID, langID, out.symbols)
		for _, d := range diags {
			result.Errors = append(result.Errors, toIndexError(d))
		}

		deduped, dedupRels := o.runDedup(out.symbols)
		result.SymbolsFound += deduped

		rec := types.FileRecord{
			ProjectID:     projectID,
			Path:          out.candidate.Path,
			ContentHash:   out.candidate.ContentHash,
			Size:          out.candidate.Size,
			LastIndexedAt: time.Now(),
			ParserUsed:    string(parseMethodOf(out)),
			Status:        out.status,
			ErrorMessage:  out.errMsg,
		}
		if err := o.store.WriteFileResult(ctx, rec, out.symbols); err != nil {
			result.Errors = append(result.Errors, toIndexError(asSentinelErr(err)))
			continue
		}
		result.FilesIndexed++
		allRels = append(allRels, out.rels...)
		allRels = append(allRels, dedupRels...)

		if ctx.Err() != nil {
			result.Cancelled = true
			break
		}
	}

	if !result.Cancelled {
		materialized, diags := idx.ResolveRelationships(projectID, allRels)
		for _, d := range diags {
			o.log.Debug("unresolved relationship target", map[string]any{"err": d.Error()})
		}
		if len(materialized) > 0 {
			if err := o.store.WriteFileResult(ctx, types.FileRecord{ProjectID: projectID, Path: types.ExternalFilePath, Status: types.ParseStatusOK, LastIndexedAt: time.Now()}, materialized); err != nil {
				result.Errors = append(result.Errors, toIndexError(asSentinelErr(err)))
			}
		}
		if err := o.store.InsertRelationships(ctx, allRels); err != nil {
			result.Errors = append(result.Errors, toIndexError(asSentinelErr(err)))
		} else {
			result.RelationshipsFound = len(allRels)
		}
	}

	result.DurationMS = time.Since(start).Milliseconds()
	return result, nil
}

// parseAll runs C2+C3+pass-1-local-extraction for each to-parse file under a
// bounded worker pool; each worker produces pure in-memory data (no store
// access), matching spec §5's "single writer" requirement.
func (o *Orchestrator) parseAll(ctx context.Context, candidates []types.FileCandidate, opts Options, langIDs map[string]types.LanguageID) ([]fileOutcome, error) {
	outcomes := make([]fileOutcome, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.MaxConcurrentFiles)

	for i, c := range candidates {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			outcomes[i] = o.parseOne(gctx, c, opts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return outcomes, err
	}
	return outcomes, nil
}

func (o *Orchestrator) parseOne(ctx context.Context, c types.FileCandidate, opts Options) fileOutcome {
	out := fileOutcome{candidate: c}

	content, err := readFile(c.AbsPath)
	if err != nil {
		out.status = types.ParseStatusFailed
		out.errMsg = err.Error()
		out.parseErr = sentinelerr.New(sentinelerr.KindFileIO, "read", err).WithFile(c.Path)
		return out
	}

	parseResult, err := o.parser.Parse(ctx, c.Path, c.Language, content, parser.Options{Timeout: opts.ParseTimeout})
	if err != nil {
		if se, ok := err.(*sentinelerr.Error); ok {
			out.parseErr = se
		}
	}
	if parseResult == nil {
		out.status = types.ParseStatusFailed
		if err != nil {
			out.errMsg = err.Error()
		}
		return out
	}

	for _, sym := range parseResult.Symbols {
		sym.FilePath = c.Path
	}

	rels := crosslang.Detect(c.Path, content, parseResult.Symbols)

	out.symbols = parseResult.Symbols
	out.rels = append(parseResult.Relationships, rels...)
	out.status = types.ParseStatusOK
	if out.parseErr != nil {
		out.status = types.ParseStatusFailed
		out.errMsg = out.parseErr.Error()
	}
	return out
}

// runDedup checks each of a file's freshly extracted symbols against
// everything seen so far this run, tagging DuplicateOf for high-confidence
// matches and emitting a references/semantic_duplicate edge for medium-
// confidence ones. It does not drop symbols: an aliased symbol is still
// written (spec §4.6's "weak alias, searchable but not counted as
// distinct"), just excluded from the returned distinct-symbol count.
func (o *Orchestrator) runDedup(symbols []*types.UniversalSymbol) (distinctCount int, rels []*types.UniversalRelationship) {
	for _, sym := range symbols {
		outcome, match, score := o.deduper.Check(sym)
		switch outcome {
		case dedup.OutcomeAlias:
			id := match.ID
			sym.DuplicateOf = &id
		case dedup.OutcomeSimilar:
			distinctCount++
			toID := &match.ID
			if match.DuplicateOf != nil {
				toID = match.DuplicateOf // match is itself an alias; point at its canonical symbol
			}
			rels = append(rels, &types.UniversalRelationship{
				FromSymbolID: &sym.ID,
				ToSymbolID:   toID,
				FromName:     sym.Name,
				ToName:       match.Name,
				Type:         types.RelTypeReferences,
				Confidence:   float64(score),
				ContextFile:  sym.FilePath,
				Metadata:     types.RelationshipMetadata{SimilarityType: "semantic_duplicate"},
			})
		default:
			distinctCount++
		}
		o.deduper.Insert(sym)
	}
	return distinctCount, rels
}

func parseMethodOf(out fileOutcome) types.ParseMethod {
	if out.parseErr != nil && sentinelerr.As(out.parseErr, sentinelerr.KindParseTimeout) {
		return types.ParseMethodPatternFallback
	}
	return types.ParseMethodTreeSitter
}

func toIndexError(e *sentinelerr.Error) types.IndexError {
	if e == nil {
		return types.IndexError{}
	}
	return types.IndexError{Kind: string(e.Kind), FilePath: e.FilePath, Message: e.Error()}
}

func asSentinelErr(err error) *sentinelerr.Error {
	if se, ok := err.(*sentinelerr.Error); ok {
		return se
	}
	return sentinelerr.New(sentinelerr.KindStoreConflict, "store", err)
}

func allKnownPaths(ctx context.Context, s *store.Store, projectID types.ProjectID) []string {
	hashes, err := s.KnownFileHashes(ctx, projectID)
	if err != nil {
		return nil
	}
	paths := make([]string, 0, len(hashes))
	for p := range hashes {
		paths = append(paths, p)
	}
	return paths
}

func readFile(path string) ([]byte, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return content, nil
}
