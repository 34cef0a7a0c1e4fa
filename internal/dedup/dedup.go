// Package dedup implements C6: collapsing symbols that are semantically
// equivalent but syntactically repeated (forward declarations, re-exports,
// shared generated stubs). A bloom filter prefilters candidates by a
// {name, signature, container} hash triple; anything it flags falls through
// to an exact Levenshtein-based similarity score against the matching rows.
package dedup

import (
	"strings"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/cespare/xxhash/v2"
	"github.com/hbollon/go-edlib"

	"github.com/module-sentinel/sentinel/internal/types"
)

// Default confidence thresholds per spec §4.6.
const (
	DefaultHighConfidence   = 0.95
	DefaultMediumConfidence = 0.70

	// resizeLoadFactor triggers a filter rebuild once observed insertions
	// exceed this fraction of the filter's designed capacity.
	resizeLoadFactor = 0.8
	// falsePositiveRate is the budget spec §4.6 names.
	falsePositiveRate = 0.01
)

// Outcome is what a single symbol's dedup check decided.
type Outcome int

const (
	// OutcomeNew means the symbol is not a duplicate of anything seen so far.
	OutcomeNew Outcome = iota
	// OutcomeAlias means the symbol scored >= HighConfidence against an
	// existing one and should be recorded with DuplicateOf set.
	OutcomeAlias
	// OutcomeSimilar means the symbol scored within [MediumConfidence,
	// HighConfidence) and should get a references/semantic_duplicate edge.
	OutcomeSimilar
)

// Similarity scores how alike two symbols are in [0, 1]. The default
// implementation is lexical (name + signature shape + container path); a
// caller may supply an embeddings-backed oracle instead (spec §4.6's
// "pluggable similarity function"), falling back to this one when nil.
type Similarity func(a, b *types.UniversalSymbol) float32

// Config tunes the thresholds and capacity of a Deduper.
type Config struct {
	HighConfidence   float64
	MediumConfidence float64
	// ExpectedSymbols sizes the initial bloom filter; it auto-resizes past
	// resizeLoadFactor, so this only needs to be a reasonable estimate.
	ExpectedSymbols uint
	Similarity      Similarity
}

func (c Config) withDefaults() Config {
	if c.HighConfidence == 0 {
		c.HighConfidence = DefaultHighConfidence
	}
	if c.MediumConfidence == 0 {
		c.MediumConfidence = DefaultMediumConfidence
	}
	if c.ExpectedSymbols == 0 {
		c.ExpectedSymbols = 4096
	}
	if c.Similarity == nil {
		c.Similarity = LexicalSimilarity
	}
	return c
}

// Deduper is the project-scoped dedup state: the bloom prefilter plus the
// index of candidate rows it falls through to. It is safe for concurrent
// use; inserts take a write lock, lookups a read lock, matching spec §5's
// "bloom filter protected by a reader/writer lock; resizes hold the writer
// lock" requirement.
type Deduper struct {
	mu     sync.RWMutex
	cfg    Config
	filter *bloom.BloomFilter

	capacity   uint
	inserted   uint
	candidates map[uint64][]*types.UniversalSymbol // keyed by the same triple hash as the filter
}

// New builds a Deduper sized for cfg.ExpectedSymbols (or a default).
func New(cfg Config) *Deduper {
	cfg = cfg.withDefaults()
	return &Deduper{
		cfg:        cfg,
		filter:     bloom.NewWithEstimates(cfg.ExpectedSymbols, falsePositiveRate),
		capacity:   cfg.ExpectedSymbols,
		candidates: make(map[uint64][]*types.UniversalSymbol),
	}
}

// Check runs the full C6 pipeline for sym against everything inserted so
// far: bloom prefilter, then (on a positive) exact similarity scoring
// against the candidates sharing its key. It does not mutate the filter;
// call Insert separately once the caller has decided sym is worth keeping
// as its own distinct row (an OutcomeAlias symbol is still inserted, so a
// third near-duplicate can still be detected against it).
func (d *Deduper) Check(sym *types.UniversalSymbol) (Outcome, *types.UniversalSymbol, float32) {
	key := tripleKey(sym)

	d.mu.RLock()
	maybeKnown := d.filter.Test(keyBytes(key))
	var candidates []*types.UniversalSymbol
	if maybeKnown {
		candidates = d.candidates[key]
	}
	d.mu.RUnlock()

	if !maybeKnown || len(candidates) == 0 {
		return OutcomeNew, nil, 0
	}

	var best *types.UniversalSymbol
	var bestScore float32
	for _, c := range candidates {
		score := d.cfg.Similarity(sym, c)
		if score > bestScore {
			bestScore = score
			best = c
		}
	}

	switch {
	case float64(bestScore) >= d.cfg.HighConfidence:
		return OutcomeAlias, best, bestScore
	case float64(bestScore) >= d.cfg.MediumConfidence:
		return OutcomeSimilar, best, bestScore
	default:
		return OutcomeNew, nil, bestScore
	}
}

// Insert registers sym in the filter and candidate index so later symbols
// can be compared against it. Resizes the filter first if the observed
// insertion count has crossed resizeLoadFactor of its designed capacity.
func (d *Deduper) Insert(sym *types.UniversalSymbol) {
	key := tripleKey(sym)

	d.mu.Lock()
	defer d.mu.Unlock()

	d.inserted++
	if float64(d.inserted) >= float64(d.capacity)*resizeLoadFactor {
		d.resizeLocked()
	}

	d.filter.Add(keyBytes(key))
	d.candidates[key] = append(d.candidates[key], sym)
}

// resizeLocked doubles the filter's designed capacity and rebuilds it from
// the current candidate index. Caller must hold d.mu for writing.
func (d *Deduper) resizeLocked() {
	d.capacity *= 2
	fresh := bloom.NewWithEstimates(d.capacity, falsePositiveRate)
	for key := range d.candidates {
		fresh.Add(keyBytes(key))
	}
	d.filter = fresh
}

// tripleKey hashes the {normalized_name_hash, signature_hash, container_hash}
// triple spec §4.6 names into one xxhash-derived key for the bloom filter
// and candidate map.
func tripleKey(sym *types.UniversalSymbol) uint64 {
	h := xxhash.New()
	h.WriteString(normalizeName(sym.Name))
	h.Write([]byte{0})
	h.WriteString(signatureShape(sym.Signature))
	h.Write([]byte{0})
	h.WriteString(sym.Namespace)
	return h.Sum64()
}

func keyBytes(key uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(key >> (8 * i))
	}
	return b
}

// normalizeName lowercases a symbol name for case-insensitive comparison,
// per spec §4.6's "Levenshtein on case-normalized form".
func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// signatureShape reduces a signature to one type token per parameter (see
// eraseTypeToken): parameter names are dropped but type names are kept, so
// `f(int, string)` and `f(a int, b string)` hash identically while a
// different arity or a different type does not.
func signatureShape(sig string) string {
	open := strings.Index(sig, "(")
	shut := strings.LastIndex(sig, ")")
	if open < 0 || shut <= open {
		return ""
	}
	params := sig[open+1 : shut]
	if strings.TrimSpace(params) == "" {
		return "0"
	}
	parts := strings.Split(params, ",")
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		tokens = append(tokens, eraseTypeToken(p))
	}
	return strings.Join(tokens, ",")
}

// eraseTypeToken keeps only the last whitespace-delimited token of a
// parameter declaration (its type, in "name type" or "type" styles) and
// strips pointer/array/generic decoration, approximating the "erased-type
// tokens" spec §4.6 asks for without a per-language type grammar.
func eraseTypeToken(param string) string {
	param = strings.TrimSpace(param)
	fields := strings.Fields(param)
	if len(fields) == 0 {
		return ""
	}
	token := fields[len(fields)-1]
	token = strings.TrimLeft(token, "*&[]")
	if idx := strings.Index(token, "<"); idx >= 0 {
		token = token[:idx]
	}
	return token
}

// LexicalSimilarity is the built-in similarity function: a weighted blend
// of normalized-name edit distance, signature-shape equality, and
// container-path equality. Used whenever Config.Similarity is nil.
func LexicalSimilarity(a, b *types.UniversalSymbol) float32 {
	nameScore := nameSimilarity(a.Name, b.Name)

	var sigScore float32
	if signatureShape(a.Signature) == signatureShape(b.Signature) {
		sigScore = 1
	}

	var containerScore float32
	if a.Namespace == b.Namespace {
		containerScore = 1
	}

	return nameScore*0.6 + sigScore*0.25 + containerScore*0.15
}

func nameSimilarity(a, b string) float32 {
	an, bn := normalizeName(a), normalizeName(b)
	if an == bn {
		return 1
	}
	dist, err := edlib.StringsSimilarity(an, bn, edlib.Levenshtein)
	if err != nil {
		return 0
	}
	return dist
}
