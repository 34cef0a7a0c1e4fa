// Package crosslang implements C3: scanning a file's parsed symbols and raw
// source for idioms that indicate one process is talking to (or spawning,
// or dynamically binding) another, possibly written in a different
// language. Detected edges carry a confidence score; only edges at or above
// MinConfidence are worth persisting (spec §4.3).
package crosslang

import (
	"regexp"
	"strings"

	"github.com/module-sentinel/sentinel/internal/types"
)

// MinConfidence is the floor below which a detected cross-language edge is
// discarded rather than persisted, per spec §4.3.
const MinConfidence = 0.5

// targetKind says where a rule's to_name comes from.
type targetKind int

const (
	targetHint       targetKind = iota // inferTargetLanguageHint(protocol)
	targetEnvVar                       // the matched capture group is an env var name
	targetClientName                   // the matched capture group is a "Xxx" in "NewXxxClient"
)

// rule matches one idiom against a symbol's signature/name and the raw line
// it was declared on, producing a RelationshipType plus protocol metadata
// when it fires.
type rule struct {
	pattern        *regexp.Regexp
	relType        types.RelationshipType
	protocol       string
	connectionKind string
	confidence     float64
	target         targetKind
}

var rules = []rule{
	// gRPC client construction: grpc.Dial, grpc.NewClient, NewXxxClient(conn)
	{regexp.MustCompile(`\bgrpc\.(?:Dial|NewClient)\s*\(`), types.RelTypeCommunicates, "grpc", "dial", 0.75, targetHint},
	{regexp.MustCompile(`\bNew(\w+)Client\s*\(\s*(?:conn|cc)\b`), types.RelTypeCommunicates, "grpc", "client-stub", 0.8, targetClientName},

	// Raw HTTP clients.
	{regexp.MustCompile(`\bhttp\.(?:Get|Post|NewRequest|Client\{)\s*\(?`), types.RelTypeCommunicates, "http", "client-call", 0.6, targetHint},
	{regexp.MustCompile(`\b(?:fetch|axios\.\w+)\s*\(`), types.RelTypeCommunicates, "http", "client-call", 0.55, targetHint},
	{regexp.MustCompile(`\brequests\.(?:get|post|put|delete)\s*\(`), types.RelTypeCommunicates, "http", "client-call", 0.6, targetHint},

	// Raw socket / transport dials.
	{regexp.MustCompile(`\bnet\.Dial(?:Timeout)?\s*\(`), types.RelTypeCommunicates, "tcp", "dial", 0.55, targetHint},

	// Subprocess spawning.
	{regexp.MustCompile(`\bexec\.Command\s*\(`), types.RelTypeSpawns, "subprocess", "exec", 0.7, targetHint},
	{regexp.MustCompile(`\bsubprocess\.(?:run|Popen|call)\s*\(`), types.RelTypeSpawns, "subprocess", "exec", 0.7, targetHint},
	{regexp.MustCompile(`\bchild_process\.(?:spawn|exec|fork)\s*\(`), types.RelTypeSpawns, "subprocess", "exec", 0.7, targetHint},

	// FFI / dynamic binding.
	{regexp.MustCompile(`\bdlopen\s*\(|\bctypes\.CDLL\s*\(|\bSystem\.loadLibrary\s*\(`), types.RelTypeBindsTo, "ffi", "dynamic-load", 0.65, targetHint},

	// Environment-variable-based service discovery.
	{regexp.MustCompile(`\bos\.Getenv\s*\(\s*"([A-Z0-9_]*(?:HOST|URL|ADDR|ENDPOINT|SERVICE)[A-Z0-9_]*)"\s*\)`), types.RelTypeCommunicates, "", "env-discovery", 0.55, targetEnvVar},
	{regexp.MustCompile(`\bmustMapEnv\s*\([^,)]*,\s*"([A-Z0-9_]*(?:HOST|URL|ADDR|ENDPOINT|SERVICE)[A-Z0-9_]*)"\s*\)`), types.RelTypeCommunicates, "", "env-discovery", 0.55, targetEnvVar},
	{regexp.MustCompile(`\bprocess\.env\.([A-Z0-9_]*(?:HOST|URL|ADDR|ENDPOINT|SERVICE)[A-Z0-9_]*)\b`), types.RelTypeCommunicates, "", "env-discovery", 0.55, targetEnvVar},
	{regexp.MustCompile(`\bos\.environ(?:\.get)?\s*\[?\(?\s*["']([A-Z0-9_]*(?:HOST|URL|ADDR|ENDPOINT|SERVICE)[A-Z0-9_]*)["']`), types.RelTypeCommunicates, "", "env-discovery", 0.55, targetEnvVar},
}

// Detect scans source for every rule match within the line span of each
// function, method or constructor symbol and returns the relationships found. Detection is
// scoped per-symbol (spec's "within a function scope" requirement) by
// restricting the search to the symbol's [Line, EndLine] text, rather than
// scanning the whole file and attributing matches to the nearest symbol.
func Detect(filePath string, source []byte, symbols []*types.UniversalSymbol) []*types.UniversalRelationship {
	lines := splitLines(source)

	var out []*types.UniversalRelationship
	for _, sym := range symbols {
		if sym.Kind != types.SymbolKindFunction && sym.Kind != types.SymbolKindMethod && sym.Kind != types.SymbolKindConstructor {
			continue
		}
		body := sliceLines(lines, sym.Line, sym.EndLine)
		if body == "" {
			continue
		}
		sym.FilePath = filePath
		out = append(out, detectInBody(sym, body)...)
	}
	return out
}

// hit is one rule match against a function body, carrying the byte span of
// the whole match and, when the rule captures a group, that group's span.
type hit struct {
	r                    rule
	start, end           int
	groupStart, groupEnd int
}

func (h hit) group(body string) string {
	if h.groupStart < 0 {
		return ""
	}
	return body[h.groupStart:h.groupEnd]
}

// isConnectionConstructor reports whether r builds the actual connection (a
// gRPC/TCP dial, or a generated client-stub constructor) rather than just
// discovering where to connect to (env var) or talking to something already
// connected (HTTP call, subprocess spawn, FFI load).
func isConnectionConstructor(r rule) bool {
	if r.target == targetClientName {
		return true
	}
	return r.target == targetHint && r.connectionKind == "dial" && (r.protocol == "grpc" || r.protocol == "tcp")
}

// detectInBody finds every rule match in body and, per spec §4.3 item 6,
// collapses an env-var read together with the connection constructor it
// feeds (within the same function) into one combined edge rather than two
// disjoint ones. The first env-var read and the first connection constructor
// found take part in that flow; every other match is emitted as its own edge.
func detectInBody(sym *types.UniversalSymbol, body string) []*types.UniversalRelationship {
	var envHit, connHit *hit
	var out []*types.UniversalRelationship

	for i := range rules {
		r := rules[i]
		for _, m := range r.pattern.FindAllStringSubmatchIndex(body, -1) {
			h := hit{r: r, start: m[0], end: m[1], groupStart: -1, groupEnd: -1}
			if len(m) >= 4 && m[2] >= 0 {
				h.groupStart, h.groupEnd = m[2], m[3]
			}

			switch {
			case r.target == targetEnvVar && envHit == nil:
				envHit = &h
			case isConnectionConstructor(r) && connHit == nil:
				connHit = &h
			default:
				out = append(out, singleHitRelationship(sym, body, h))
			}
		}
	}

	switch {
	case envHit != nil && connHit != nil:
		out = append(out, mergedFlowRelationship(sym, body, *envHit, *connHit))
	case envHit != nil:
		out = append(out, singleHitRelationship(sym, body, *envHit))
	case connHit != nil:
		out = append(out, singleHitRelationship(sym, body, *connHit))
	}

	filtered := out[:0]
	for _, rel := range out {
		if rel.Confidence >= MinConfidence {
			filtered = append(filtered, rel)
		}
	}
	return filtered
}

func baseRelationship(sym *types.UniversalSymbol, h hit) *types.UniversalRelationship {
	return &types.UniversalRelationship{
		FromName:      sym.QualifiedName,
		Type:          h.r.relType,
		Confidence:    h.r.confidence,
		ContextFile:   sym.FilePath,
		ContextLine:   sym.Line,
		CrossLanguage: true,
		Metadata: types.RelationshipMetadata{
			Protocol:         h.r.protocol,
			ConnectionMethod: h.r.connectionKind,
		},
	}
}

func singleHitRelationship(sym *types.UniversalSymbol, body string, h hit) *types.UniversalRelationship {
	rel := baseRelationship(sym, h)
	rel.ContextSnippet = strings.TrimSpace(body[h.start:h.end])

	switch {
	case h.r.target == targetEnvVar && h.groupStart >= 0:
		envVar := h.group(body)
		rel.Metadata.EnvVar = envVar
		rel.Metadata.DiscoveryMethod = "environment-variable"
		rel.Metadata.ServiceName = normalizeServiceName(envVar)
		rel.ToName = rel.Metadata.ServiceName
	case h.r.target == targetClientName && h.groupStart >= 0:
		rel.Metadata.DiscoveryMethod = "client-stub"
		rel.Metadata.ServiceName = normalizeClientName(h.group(body))
		rel.ToName = rel.Metadata.ServiceName
	default:
		rel.ToName = inferTargetLanguageHint(h.r.protocol)
	}
	return rel
}

// mergedFlowRelationship implements spec §4.3 item 6's connection flow
// tracking: an env-var read that feeds a connection constructor later in the
// same function becomes one edge carrying the originating envVar, the
// constructor's connectionMethod, and the resolved serviceName together.
func mergedFlowRelationship(sym *types.UniversalSymbol, body string, envHit, connHit hit) *types.UniversalRelationship {
	first, second := envHit, connHit
	if connHit.start < envHit.start {
		first, second = connHit, envHit
	}

	envVar := envHit.group(body)
	serviceName := normalizeServiceName(envVar)
	if connHit.r.target == targetClientName {
		if name := connHit.group(body); name != "" {
			serviceName = normalizeClientName(name)
		}
	}

	confidence := envHit.r.confidence
	if connHit.r.confidence > confidence {
		confidence = connHit.r.confidence
	}

	return &types.UniversalRelationship{
		FromName:       sym.QualifiedName,
		ToName:         serviceName,
		Type:           types.RelTypeCommunicates,
		Confidence:     confidence,
		ContextFile:    sym.FilePath,
		ContextLine:    sym.Line,
		ContextSnippet: strings.TrimSpace(body[first.start:first.end] + " ... " + body[second.start:second.end]),
		CrossLanguage:  true,
		Metadata: types.RelationshipMetadata{
			Protocol:         connHit.r.protocol,
			ConnectionMethod: connHit.r.connectionKind,
			EnvVar:           envVar,
			DiscoveryMethod:  "environment-variable",
			ServiceName:      serviceName,
		},
	}
}

// normalizeServiceName turns an env var like "CART_SERVICE_ADDR" into the
// service name "cartservice" a same-project symbol or gRPC client stub might
// be registered under: strip the trailing discovery suffix, lowercase, and
// concatenate the remaining words so it lines up with the name a NewXxxClient
// stub normalizes to (normalizeClientName), keeping the two discovery paths
// consistent for the same target service.
func normalizeServiceName(envVar string) string {
	suffixes := []string{"_HOST", "_URL", "_ADDR", "_ENDPOINT", "_SERVICE"}
	name := envVar
	for _, suf := range suffixes {
		if strings.HasSuffix(name, suf) {
			name = strings.TrimSuffix(name, suf)
			break
		}
	}
	name = strings.ToLower(name)
	return strings.ReplaceAll(name, "_", "")
}

// normalizeClientName turns a gRPC stub constructor's type name, e.g.
// "CartService" from "NewCartServiceClient", into the lowercase service name
// the target process is most likely registered under.
func normalizeClientName(clientName string) string {
	return strings.ToLower(clientName)
}

// inferTargetLanguageHint gives ExternalService materialization something to
// name the synthetic symbol with when no env var / explicit name is present.
func inferTargetLanguageHint(protocol string) string {
	if protocol == "" {
		return "external-process"
	}
	return "external-" + protocol + "-service"
}

func splitLines(content []byte) []string {
	return strings.Split(string(content), "\n")
}

// sliceLines joins lines [from, to] (1-based, inclusive) back into text,
// clamping to the slice bounds.
func sliceLines(lines []string, from, to int) string {
	if from < 1 {
		from = 1
	}
	if to < from {
		to = from
	}
	if from > len(lines) {
		return ""
	}
	if to > len(lines) {
		to = len(lines)
	}
	return strings.Join(lines[from-1:to], "\n")
}
