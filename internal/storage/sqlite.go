package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"legacylens/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore keeps every saved analysis as a document row plus flattened
// symbols and relationships for ad-hoc queries.
type SQLiteStore struct {
	db *sql.DB
}

// AnalysisRecord is one row of the analyses table.
type AnalysisRecord struct {
	ID         int64
	Name       string
	RootPath   string
	AnalyzedAt time.Time
	Status     model.Status
	Partial    bool
}

// SymbolRecord is one flattened symbol row.
type SymbolRecord struct {
	FullName  string
	Name      string
	Kind      model.SymbolKind
	Namespace string
	File      string
	StartLine int
	EndLine   int
}

// NewSQLiteStore creates or opens a SQLite database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS analyses (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT,
			root_path TEXT,
			analyzed_at TEXT,
			status TEXT,
			partial INTEGER,
			schema_version TEXT,
			document JSON
		);`,
		`CREATE TABLE IF NOT EXISTS symbols (
			analysis_id INTEGER,
			full_name TEXT,
			name TEXT,
			kind TEXT,
			namespace TEXT,
			filepath TEXT,
			start_line INTEGER,
			end_line INTEGER,
			PRIMARY KEY (analysis_id, full_name)
		);`,
		`CREATE TABLE IF NOT EXISTS relationships (
			analysis_id INTEGER,
			source TEXT,
			target TEXT,
			type TEXT,
			strength REAL,
			count INTEGER,
			PRIMARY KEY (analysis_id, source, target)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_symbols_file ON symbols(analysis_id, filepath);`,
		`CREATE INDEX IF NOT EXISTS idx_relationships_type ON relationships(analysis_id, type);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// SaveAnalysis stores a in one transaction and returns its row id.
func (s *SQLiteStore) SaveAnalysis(ctx context.Context, a *model.ApplicationAnalysis) (int64, error) {
	doc, err := EncodeDocument(a)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO analyses (name, root_path, analyzed_at, status, partial, schema_version, document)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, a.Name, a.RootPath, a.AnalyzedAt.UTC().Format(time.RFC3339Nano), string(a.Status), a.Partial, model.SchemaVersion, doc)
	if err != nil {
		return 0, fmt.Errorf("failed to insert analysis: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	symStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO symbols (analysis_id, full_name, name, kind, namespace, filepath, start_line, end_line)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(analysis_id, full_name) DO NOTHING
	`)
	if err != nil {
		return 0, err
	}
	defer symStmt.Close()

	for _, sym := range a.Code.Symbols {
		if _, err := symStmt.ExecContext(ctx, id, sym.FullName, sym.Name, string(sym.Kind), sym.Namespace,
			sym.Location.File, sym.Location.StartLine, sym.Location.EndLine); err != nil {
			return 0, err
		}
	}

	relStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO relationships (analysis_id, source, target, type, strength, count)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(analysis_id, source, target) DO NOTHING
	`)
	if err != nil {
		return 0, err
	}
	defer relStmt.Close()

	for _, r := range a.Relationships.Relationships {
		if _, err := relStmt.ExecContext(ctx, id, r.Source, r.Target, string(r.Type), r.Strength, r.Count); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// LoadAnalysis decodes a saved analysis. id 0 selects the latest one.
func (s *SQLiteStore) LoadAnalysis(ctx context.Context, id int64) (*model.ApplicationAnalysis, error) {
	var row *sql.Row
	if id == 0 {
		row = s.db.QueryRowContext(ctx, "SELECT document FROM analyses ORDER BY id DESC LIMIT 1")
	} else {
		row = s.db.QueryRowContext(ctx, "SELECT document FROM analyses WHERE id = ?", id)
	}
	var doc []byte
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("analysis %d not found", id)
		}
		return nil, fmt.Errorf("failed to load analysis: %w", err)
	}
	return DecodeDocument(doc)
}

// List returns every saved analysis, newest first.
func (s *SQLiteStore) List(ctx context.Context) ([]AnalysisRecord, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, root_path, analyzed_at, status, partial FROM analyses ORDER BY id DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to query analyses: %w", err)
	}
	defer rows.Close()

	var out []AnalysisRecord
	for rows.Next() {
		var r AnalysisRecord
		var at, status string
		if err := rows.Scan(&r.ID, &r.Name, &r.RootPath, &at, &status, &r.Partial); err != nil {
			return nil, fmt.Errorf("failed to scan analysis: %w", err)
		}
		r.AnalyzedAt, _ = time.Parse(time.RFC3339Nano, at)
		r.Status = model.Status(status)
		out = append(out, r)
	}
	return out, rows.Err()
}

// FindSymbolsByFile retrieves the symbols of one analysis declared in file.
func (s *SQLiteStore) FindSymbolsByFile(ctx context.Context, id int64, file string) ([]SymbolRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT full_name, name, kind, namespace, filepath, start_line, end_line
		FROM symbols WHERE analysis_id = ? AND filepath = ? ORDER BY start_line, full_name
	`, id, file)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SymbolRecord
	for rows.Next() {
		var r SymbolRecord
		var kind string
		if err := rows.Scan(&r.FullName, &r.Name, &kind, &r.Namespace, &r.File, &r.StartLine, &r.EndLine); err != nil {
			return nil, err
		}
		r.Kind = model.SymbolKind(kind)
		out = append(out, r)
	}
	return out, rows.Err()
}

// RelationshipsOfType returns the stored relationships of one type,
// strongest first.
func (s *SQLiteStore) RelationshipsOfType(ctx context.Context, id int64, typ model.RelationshipType) ([]model.Relationship, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source, target, type, strength, count
		FROM relationships WHERE analysis_id = ? AND type = ? ORDER BY strength DESC, source, target
	`, id, string(typ))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Relationship
	for rows.Next() {
		var r model.Relationship
		var t string
		if err := rows.Scan(&r.Source, &r.Target, &t, &r.Strength, &r.Count); err != nil {
			return nil, err
		}
		r.Type = model.RelationshipType(t)
		out = append(out, r)
	}
	return out, rows.Err()
}
