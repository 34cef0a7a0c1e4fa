// Package store implements C5: the embedded relational persistence layer.
// A Store owns one SQLite database file holding every project's
// symbols/relationships; writes are batched into transactions and retried
// with backoff on a SQLITE_BUSY-style conflict per spec §4.5/§4.6.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/module-sentinel/sentinel/internal/sentinelerr"
	"github.com/module-sentinel/sentinel/internal/types"
)

// SchemaVersion is recorded in the meta table and bumped whenever the DDL
// below changes incompatibly; a mismatch is a fatal KindSchemaMismatch.
const SchemaVersion = 1

// BatchMaxStatements caps the relationship inserts InsertRelationships
// commits in one transaction. BatchMaxAge is not consulted by any writer:
// no commit waits on or is cut short by elapsed time.
const (
	BatchMaxStatements = 1000
	BatchMaxAge        = 5 * time.Second
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS projects (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL,
	root       TEXT NOT NULL UNIQUE,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS languages (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL UNIQUE,
	extensions TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS file_index (
	project_id      INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	path            TEXT NOT NULL,
	content_hash    TEXT NOT NULL,
	size            INTEGER NOT NULL,
	last_indexed_at TEXT NOT NULL,
	parser_used     TEXT NOT NULL,
	status          TEXT NOT NULL,
	error_message   TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (project_id, path)
);

CREATE TABLE IF NOT EXISTS universal_symbols (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id        INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	language_id       INTEGER NOT NULL REFERENCES languages(id),
	name              TEXT NOT NULL,
	qualified_name    TEXT NOT NULL,
	kind              TEXT NOT NULL,
	file_path         TEXT NOT NULL,
	line              INTEGER NOT NULL,
	column            INTEGER NOT NULL,
	end_line          INTEGER NOT NULL,
	end_column        INTEGER NOT NULL,
	signature         TEXT NOT NULL DEFAULT '',
	return_type       TEXT NOT NULL DEFAULT '',
	visibility        TEXT NOT NULL DEFAULT '',
	namespace         TEXT NOT NULL DEFAULT '',
	parent_symbol_id  INTEGER,
	is_exported       INTEGER NOT NULL DEFAULT 0,
	is_async          INTEGER NOT NULL DEFAULT 0,
	is_abstract       INTEGER NOT NULL DEFAULT 0,
	is_definition     INTEGER NOT NULL DEFAULT 1,
	semantic_tags     TEXT NOT NULL DEFAULT '[]',
	confidence        REAL NOT NULL DEFAULT 1.0,
	language_features TEXT NOT NULL DEFAULT '{}',
	duplicate_of      INTEGER
);

CREATE INDEX IF NOT EXISTS idx_symbols_project_file ON universal_symbols(project_id, file_path);
CREATE INDEX IF NOT EXISTS idx_symbols_qualified_name ON universal_symbols(project_id, qualified_name);
CREATE INDEX IF NOT EXISTS idx_symbols_name ON universal_symbols(project_id, name);
CREATE INDEX IF NOT EXISTS idx_symbols_parent ON universal_symbols(parent_symbol_id);
CREATE INDEX IF NOT EXISTS idx_symbols_kind ON universal_symbols(project_id, kind);

CREATE TABLE IF NOT EXISTS universal_relationships (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id       INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	from_symbol_id   INTEGER,
	to_symbol_id     INTEGER,
	from_name        TEXT NOT NULL DEFAULT '',
	to_name          TEXT NOT NULL DEFAULT '',
	type             TEXT NOT NULL,
	confidence       REAL NOT NULL DEFAULT 1.0,
	context_file     TEXT NOT NULL DEFAULT '',
	context_line     INTEGER NOT NULL DEFAULT 0,
	context_snippet  TEXT NOT NULL DEFAULT '',
	metadata         TEXT NOT NULL DEFAULT '{}',
	cross_language   INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_rel_project_from ON universal_relationships(project_id, from_symbol_id);
CREATE INDEX IF NOT EXISTS idx_rel_project_to ON universal_relationships(project_id, to_symbol_id);
CREATE INDEX IF NOT EXISTS idx_rel_type ON universal_relationships(project_id, type);
`

// Store owns the database/sql handle. Each WriteFileResult call commits one
// transaction holding the file's whole symbol set, whatever its size;
// InsertRelationships commits in chunks of at most BatchMaxStatements rows.
// There is no cross-file accumulator.
type Store struct {
	db *sql.DB
}

// Open creates (or attaches to) the sqlite file at path, applying the DDL
// and checking the meta table's schema_version against SchemaVersion.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, sentinelerr.New(sentinelerr.KindFileIO, "open-store", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite + WAL-less default: serialize at the Go level

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, sentinelerr.New(sentinelerr.KindFileIO, "pragma", err)
	}
	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, sentinelerr.New(sentinelerr.KindSchemaMismatch, "migrate", err)
	}

	s := &Store{db: db}
	if err := s.checkSchemaVersion(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) checkSchemaVersion() error {
	var stored string
	err := s.db.QueryRow("SELECT value FROM meta WHERE key = 'schema_version'").Scan(&stored)
	if err == sql.ErrNoRows {
		_, err := s.db.Exec("INSERT INTO meta (key, value) VALUES ('schema_version', ?)", fmt.Sprint(SchemaVersion))
		if err != nil {
			return sentinelerr.New(sentinelerr.KindSchemaMismatch, "init-version", err)
		}
		return nil
	}
	if err != nil {
		return sentinelerr.New(sentinelerr.KindSchemaMismatch, "read-version", err)
	}
	if stored != fmt.Sprint(SchemaVersion) {
		return sentinelerr.New(sentinelerr.KindSchemaMismatch, "version-check",
			fmt.Errorf("database schema_version %s does not match binary's %d", stored, SchemaVersion))
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// EnsureProject upserts the (root, name) project row and returns its ID.
func (s *Store) EnsureProject(ctx context.Context, name, root string) (types.ProjectID, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (name, root, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(root) DO UPDATE SET name = excluded.name, updated_at = excluded.updated_at
	`, name, root, now, now)
	if err != nil {
		return 0, sentinelerr.New(sentinelerr.KindStoreConflict, "ensure-project", err)
	}

	var id int64
	if id, err = res.LastInsertId(); err != nil || id == 0 {
		err = s.db.QueryRowContext(ctx, "SELECT id FROM projects WHERE root = ?", root).Scan(&id)
		if err != nil {
			return 0, sentinelerr.New(sentinelerr.KindStoreConflict, "ensure-project", err)
		}
	}
	return types.ProjectID(id), nil
}

// EnsureLanguage interns a language by name, inserting extensions on first
// sight and leaving them untouched afterward (the bootstrap set is
// process-wide and immutable, per internal/languages).
func (s *Store) EnsureLanguage(ctx context.Context, name string, extensions []string) (types.LanguageID, error) {
	extJSON, _ := json.Marshal(extensions)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO languages (name, extensions) VALUES (?, ?)
		ON CONFLICT(name) DO NOTHING
	`, name, string(extJSON))
	if err != nil {
		return 0, sentinelerr.New(sentinelerr.KindStoreConflict, "ensure-language", err)
	}

	var id int64
	if err := s.db.QueryRowContext(ctx, "SELECT id FROM languages WHERE name = ?", name).Scan(&id); err != nil {
		return 0, sentinelerr.New(sentinelerr.KindStoreConflict, "ensure-language", err)
	}
	return types.LanguageID(id), nil
}

// KnownFileHashes returns every FileRecord hash for project, for C1's
// discovery-time change diff.
func (s *Store) KnownFileHashes(ctx context.Context, projectID types.ProjectID) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT path, content_hash FROM file_index WHERE project_id = ?", projectID)
	if err != nil {
		return nil, sentinelerr.New(sentinelerr.KindStoreConflict, "known-hashes", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var path, hash string
		if err := rows.Scan(&path, &hash); err != nil {
			return nil, sentinelerr.New(sentinelerr.KindStoreConflict, "known-hashes", err)
		}
		out[path] = hash
	}
	return out, rows.Err()
}

// WriteFileResult persists one file's parse outcome (its file_index row) plus
// its symbols inside a single transaction (spec §4.5's per-file
// transaction requirement for pass 1). Retries with exponential backoff on
// a StoreConflict, per spec §7.
//
// A failed parse (rec.Status != ParseStatusOK) updates the file_index row
// but leaves the file's previously stored symbols untouched: a transient
// failure (timeout, a momentarily unparsable in-progress edit) should not
// make a project's index regress to zero knowledge of that file.
func (s *Store) WriteFileResult(ctx context.Context, rec types.FileRecord, symbols []*types.UniversalSymbol) error {
	return s.withRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO file_index (project_id, path, content_hash, size, last_indexed_at, parser_used, status, error_message)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(project_id, path) DO UPDATE SET
				content_hash = excluded.content_hash, size = excluded.size,
				last_indexed_at = excluded.last_indexed_at, parser_used = excluded.parser_used,
				status = excluded.status, error_message = excluded.error_message
		`, rec.ProjectID, rec.Path, rec.ContentHash, rec.Size, rec.LastIndexedAt.UTC().Format(time.RFC3339),
			rec.ParserUsed, string(rec.Status), rec.ErrorMessage); err != nil {
			return err
		}

		if rec.Status != types.ParseStatusOK {
			return tx.Commit()
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM universal_symbols WHERE project_id = ? AND file_path = ?`, rec.ProjectID, rec.Path); err != nil {
			return err
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO universal_symbols (
				project_id, language_id, name, qualified_name, kind, file_path, line, column,
				end_line, end_column, signature, return_type, visibility, namespace, parent_symbol_id,
				is_exported, is_async, is_abstract, is_definition, semantic_tags, confidence, language_features
			) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, sym := range symbols {
			tagsJSON, _ := json.Marshal(sym.SemanticTags)
			featJSON, _ := json.Marshal(sym.LanguageFeatures)
			res, err := stmt.ExecContext(ctx,
				sym.ProjectID, sym.LanguageID, sym.Name, sym.QualifiedName, string(sym.Kind), sym.FilePath,
				sym.Line, sym.Column, sym.EndLine, sym.EndColumn, sym.Signature, sym.ReturnType,
				string(sym.Visibility), sym.Namespace, nullableID(sym.ParentSymbolID),
				boolToInt(sym.IsExported), boolToInt(sym.IsAsync), boolToInt(sym.IsAbstract), boolToInt(sym.IsDefinition),
				string(tagsJSON), sym.Confidence, string(featJSON))
			if err != nil {
				return err
			}
			id, _ := res.LastInsertId()
			sym.ID = types.SymbolID(id)
		}

		return tx.Commit()
	})
}

// InsertRelationships bulk-inserts resolved relationships, one transaction
// per BatchMaxStatements rows, used by pass 2 after the whole project's
// symbols are interned.
func (s *Store) InsertRelationships(ctx context.Context, rels []*types.UniversalRelationship) error {
	if len(rels) == 0 {
		return nil
	}
	if len(rels) > BatchMaxStatements {
		if err := s.InsertRelationships(ctx, rels[:BatchMaxStatements]); err != nil {
			return err
		}
		return s.InsertRelationships(ctx, rels[BatchMaxStatements:])
	}
	return s.withRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO universal_relationships (
				project_id, from_symbol_id, to_symbol_id, from_name, to_name, type,
				confidence, context_file, context_line, context_snippet, metadata, cross_language
			) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, rel := range rels {
			metaJSON, _ := json.Marshal(rel.Metadata)
			if _, err := stmt.ExecContext(ctx,
				rel.ProjectID, nullableID(rel.FromSymbolID), nullableID(rel.ToSymbolID),
				rel.FromName, rel.ToName, string(rel.Type), rel.Confidence, rel.ContextFile, rel.ContextLine,
				rel.ContextSnippet, string(metaJSON), boolToInt(rel.CrossLanguage)); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

// DeleteFiles removes every symbol/relationship/file_index row for the
// given (now-absent) paths, per C1's "known path absent from candidates" case
// and spec §4.7 step 3: a relationship whose from_symbol_id pointed into one
// of these files no longer has a source to hang off of and is deleted
// outright; a relationship whose to_symbol_id pointed into one of these
// files is kept but has its to_symbol_id nulled (to_name is left populated,
// same as any other unresolved-target edge) rather than being dropped.
func (s *Store) DeleteFiles(ctx context.Context, projectID types.ProjectID, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	return s.withRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(paths)), ",")
		args := make([]any, 0, len(paths)+1)
		args = append(args, projectID)
		for _, p := range paths {
			args = append(args, p)
		}

		deletedSymbolsSubquery := fmt.Sprintf(
			"SELECT id FROM universal_symbols WHERE project_id = ? AND file_path IN (%s)", placeholders)
		subqueryArgs := make([]any, 0, len(args)+1)
		subqueryArgs = append(subqueryArgs, projectID)
		subqueryArgs = append(subqueryArgs, args...)

		nullifyQ := fmt.Sprintf(
			"UPDATE universal_relationships SET to_symbol_id = NULL WHERE project_id = ? AND to_symbol_id IN (%s)",
			deletedSymbolsSubquery)
		if _, err := tx.ExecContext(ctx, nullifyQ, subqueryArgs...); err != nil {
			return err
		}

		orphanDeleteQ := fmt.Sprintf(
			"DELETE FROM universal_relationships WHERE project_id = ? AND from_symbol_id IN (%s)",
			deletedSymbolsSubquery)
		if _, err := tx.ExecContext(ctx, orphanDeleteQ, subqueryArgs...); err != nil {
			return err
		}

		for _, table := range []string{"universal_symbols", "file_index"} {
			q := fmt.Sprintf("DELETE FROM %s WHERE project_id = ? AND file_path IN (%s)", table, placeholders)
			if table == "file_index" {
				q = fmt.Sprintf("DELETE FROM %s WHERE project_id = ? AND path IN (%s)", table, placeholders)
			}
			if _, err := tx.ExecContext(ctx, q, args...); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

// withRetry retries op with exponential backoff (spec §7's StoreConflict
// policy) before giving up and wrapping the last error as KindStoreConflict.
func (s *Store) withRetry(ctx context.Context, op func() error) error {
	const maxAttempts = 5
	backoff := 20 * time.Millisecond

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return sentinelerr.New(sentinelerr.KindCancelled, "store-write", err)
		}
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isBusy(lastErr) {
			return sentinelerr.New(sentinelerr.KindStoreConflict, "store-write", lastErr)
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return sentinelerr.New(sentinelerr.KindCancelled, "store-write", ctx.Err())
		}
		backoff *= 2
	}
	return sentinelerr.New(sentinelerr.KindStoreConflict, "store-write", fmt.Errorf("exhausted retries: %w", lastErr))
}

func isBusy(err error) bool {
	return strings.Contains(err.Error(), "locked") || strings.Contains(err.Error(), "busy")
}

func nullableID[T ~int64](id *T) any {
	if id == nil {
		return nil
	}
	return int64(*id)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
