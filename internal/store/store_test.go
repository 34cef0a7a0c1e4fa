package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/module-sentinel/sentinel/internal/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "sentinel.db")
	s, err := Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenIsIdempotentAndChecksSchemaVersion(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "sentinel.db")

	s1, err := Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(dbPath)
	require.NoError(t, err)
	defer s2.Close()
}

func TestEnsureProjectUpsertsByRoot(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id1, err := s.EnsureProject(ctx, "demo", "/repo/demo")
	require.NoError(t, err)

	id2, err := s.EnsureProject(ctx, "demo-renamed", "/repo/demo")
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
}

func TestEnsureLanguageInternsOnce(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id1, err := s.EnsureLanguage(ctx, "go", []string{".go"})
	require.NoError(t, err)

	id2, err := s.EnsureLanguage(ctx, "go", []string{".go"})
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
}

func TestWriteFileResultPersistsSymbolsAndAssignsIDs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	projectID, err := s.EnsureProject(ctx, "demo", "/repo/demo")
	require.NoError(t, err)
	langID, err := s.EnsureLanguage(ctx, "go", []string{".go"})
	require.NoError(t, err)

	rec := types.FileRecord{
		ProjectID:     projectID,
		Path:          "main.go",
		ContentHash:   "abc123",
		Size:          42,
		LastIndexedAt: time.Now(),
		ParserUsed:    "tree-sitter",
		Status:        types.ParseStatusOK,
	}
	symbols := []*types.UniversalSymbol{
		{
			ProjectID:     projectID,
			LanguageID:    langID,
			Name:          "main",
			QualifiedName: "main",
			Kind:          types.SymbolKindFunction,
			FilePath:      "main.go",
			Line:          1,
			EndLine:       3,
			IsDefinition:  true,
			Confidence:    1.0,
		},
	}

	require.NoError(t, s.WriteFileResult(ctx, rec, symbols))
	assert.NotZero(t, symbols[0].ID)

	hashes, err := s.KnownFileHashes(ctx, projectID)
	require.NoError(t, err)
	assert.Equal(t, "abc123", hashes["main.go"])
}

func TestWriteFileResultReplacesSymbolsOnReindex(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	projectID, err := s.EnsureProject(ctx, "demo", "/repo/demo")
	require.NoError(t, err)
	langID, err := s.EnsureLanguage(ctx, "go", []string{".go"})
	require.NoError(t, err)

	rec := types.FileRecord{ProjectID: projectID, Path: "main.go", ContentHash: "v1", LastIndexedAt: time.Now(), Status: types.ParseStatusOK}
	first := []*types.UniversalSymbol{
		{ProjectID: projectID, LanguageID: langID, Name: "old", QualifiedName: "old", Kind: types.SymbolKindFunction, FilePath: "main.go", Line: 1, Confidence: 1},
	}
	require.NoError(t, s.WriteFileResult(ctx, rec, first))

	rec.ContentHash = "v2"
	second := []*types.UniversalSymbol{
		{ProjectID: projectID, LanguageID: langID, Name: "new", QualifiedName: "new", Kind: types.SymbolKindFunction, FilePath: "main.go", Line: 1, Confidence: 1},
	}
	require.NoError(t, s.WriteFileResult(ctx, rec, second))

	hashes, err := s.KnownFileHashes(ctx, projectID)
	require.NoError(t, err)
	assert.Equal(t, "v2", hashes["main.go"])
}

func TestWriteFileResultRetainsSymbolsOnParseFailure(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	projectID, err := s.EnsureProject(ctx, "demo", "/repo/demo")
	require.NoError(t, err)
	langID, err := s.EnsureLanguage(ctx, "go", []string{".go"})
	require.NoError(t, err)

	rec := types.FileRecord{ProjectID: projectID, Path: "main.go", ContentHash: "v1", LastIndexedAt: time.Now(), Status: types.ParseStatusOK}
	symbols := []*types.UniversalSymbol{
		{ProjectID: projectID, LanguageID: langID, Name: "old", QualifiedName: "old", Kind: types.SymbolKindFunction, FilePath: "main.go", Line: 1, Confidence: 1},
	}
	require.NoError(t, s.WriteFileResult(ctx, rec, symbols))

	failed := types.FileRecord{
		ProjectID: projectID, Path: "main.go", ContentHash: "v1", LastIndexedAt: time.Now(),
		Status: types.ParseStatusFailed, ErrorMessage: "parse timeout",
	}
	require.NoError(t, s.WriteFileResult(ctx, failed, nil))

	var count int
	row := s.db.QueryRowContext(ctx, `SELECT count(*) FROM universal_symbols WHERE project_id = ? AND file_path = ?`, projectID, "main.go")
	require.NoError(t, row.Scan(&count))
	assert.Equal(t, 1, count)

	var status, errMsg string
	row = s.db.QueryRowContext(ctx, `SELECT status, error_message FROM file_index WHERE project_id = ? AND path = ?`, projectID, "main.go")
	require.NoError(t, row.Scan(&status, &errMsg))
	assert.Equal(t, string(types.ParseStatusFailed), status)
	assert.Equal(t, "parse timeout", errMsg)
}

func TestInsertRelationshipsAndDeleteFiles(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	projectID, err := s.EnsureProject(ctx, "demo", "/repo/demo")
	require.NoError(t, err)
	langID, err := s.EnsureLanguage(ctx, "go", []string{".go"})
	require.NoError(t, err)

	recA := types.FileRecord{ProjectID: projectID, Path: "a.go", ContentHash: "h1", LastIndexedAt: time.Now(), Status: types.ParseStatusOK}
	symbolsA := []*types.UniversalSymbol{
		{ProjectID: projectID, LanguageID: langID, Name: "a", QualifiedName: "a", Kind: types.SymbolKindFunction, FilePath: "a.go", Line: 1, Confidence: 1},
	}
	require.NoError(t, s.WriteFileResult(ctx, recA, symbolsA))

	recC := types.FileRecord{ProjectID: projectID, Path: "c.go", ContentHash: "h2", LastIndexedAt: time.Now(), Status: types.ParseStatusOK}
	symbolsC := []*types.UniversalSymbol{
		{ProjectID: projectID, LanguageID: langID, Name: "c", QualifiedName: "c", Kind: types.SymbolKindFunction, FilePath: "c.go", Line: 1, Confidence: 1},
	}
	require.NoError(t, s.WriteFileResult(ctx, recC, symbolsC))

	// outboundFromA: source symbol lives in the file about to be deleted, so
	// the whole edge should be dropped.
	outboundFromA := &types.UniversalRelationship{
		ProjectID: projectID, FromSymbolID: &symbolsA[0].ID, ToSymbolID: &symbolsC[0].ID,
		FromName: "a", ToName: "c", Type: types.RelTypeCalls, Confidence: 1,
	}
	// inboundToA: target symbol lives in the file about to be deleted, so the
	// edge survives with to_symbol_id cleared but to_name retained.
	inboundToA := &types.UniversalRelationship{
		ProjectID: projectID, FromSymbolID: &symbolsC[0].ID, ToSymbolID: &symbolsA[0].ID,
		FromName: "c", ToName: "a", Type: types.RelTypeCalls, Confidence: 1,
	}
	require.NoError(t, s.InsertRelationships(ctx, []*types.UniversalRelationship{outboundFromA, inboundToA}))

	require.NoError(t, s.DeleteFiles(ctx, projectID, []string{"a.go"}))

	hashes, err := s.KnownFileHashes(ctx, projectID)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"c.go": "h2"}, hashes)

	var remaining int
	row := s.db.QueryRowContext(ctx, `SELECT count(*) FROM universal_relationships WHERE project_id = ?`, projectID)
	require.NoError(t, row.Scan(&remaining))
	assert.Equal(t, 1, remaining, "edge sourced from the deleted file should be removed")

	var toSymbolID sql.NullInt64
	var toName string
	row = s.db.QueryRowContext(ctx, `SELECT to_symbol_id, to_name FROM universal_relationships WHERE project_id = ? AND from_name = 'c'`, projectID)
	require.NoError(t, row.Scan(&toSymbolID, &toName))
	assert.False(t, toSymbolID.Valid, "to_symbol_id should be nulled once its target file is gone")
	assert.Equal(t, "a", toName, "to_name should be retained for an unresolved-target edge")
}

func TestInsertRelationshipsNoopOnEmpty(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.InsertRelationships(context.Background(), nil))
}
