package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/tkoskine/stratum/pkg/api"
)

// SQLiteStore implements DocumentStore and CheckpointStore on a SQLite
// database.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing the
// driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteStore struct {
	db *sql.DB
}

var (
	_ DocumentStore   = (*SQLiteStore)(nil)
	_ CheckpointStore = (*SQLiteStore)(nil)
)

// NewSQLiteStore initializes the required schema in the given database and
// returns a new SQLiteStore.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			text TEXT NOT NULL,
			metadata TEXT,
			vector TEXT
		);
		CREATE TABLE IF NOT EXISTS checkpoints (
			graph TEXT PRIMARY KEY,
			state TEXT NOT NULL,
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		);`,
	)
	return err
}

func (s *SQLiteStore) Put(ctx context.Context, doc api.Document) (string, error) {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}

	metadata, err := json.Marshal(doc.Metadata)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	var vector []byte
	if doc.Vector != nil {
		vector, err = json.Marshal(doc.Vector)
		if err != nil {
			return "", fmt.Errorf("encode vector: %w", err)
		}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (id, text, metadata, vector)
		VALUES (?, ?, ?, ?)`,
		doc.ID, doc.Text, string(metadata), nullableText(vector),
	)
	if err != nil {
		// SQLite reports PRIMARY KEY violations as constraint errors; the
		// store contract promises api.ErrDuplicateID for them.
		if isConstraintError(err) {
			return "", api.ErrDuplicateID
		}
		return "", err
	}
	return doc.ID, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (api.Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, text, metadata, vector FROM documents WHERE id = ?`, id)

	doc, err := scanDocument(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return api.Document{}, api.ErrNotFound
		}
		return api.Document{}, err
	}
	return doc, nil
}

func (s *SQLiteStore) List(ctx context.Context, filter MetadataFilter) ([]api.Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, text, metadata, vector FROM documents ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []api.Document
	for rows.Next() {
		doc, err := scanDocument(rows.Scan)
		if err != nil {
			return nil, err
		}
		if filter == nil || filter(doc.Metadata) {
			docs = append(docs, doc)
		}
	}
	return docs, rows.Err()
}

func (s *SQLiteStore) Save(ctx context.Context, graph string, st api.State) error {
	data, err := EncodeState(st)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (graph, state, updated_at)
		VALUES (?, ?, datetime('now'))
		ON CONFLICT(graph) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		graph, string(data),
	)
	return err
}

func (s *SQLiteStore) Load(ctx context.Context, graph string) (api.State, bool, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `
		SELECT state FROM checkpoints WHERE graph = ?`, graph).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return api.State{}, false, nil
	}
	if err != nil {
		return api.State{}, false, err
	}
	st, err := DecodeState([]byte(data))
	if err != nil {
		return api.State{}, false, err
	}
	return st, true, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, graph string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE graph = ?`, graph)
	return err
}

func scanDocument(scan func(dest ...any) error) (api.Document, error) {
	var doc api.Document
	var metadata sql.NullString
	var vector sql.NullString

	if err := scan(&doc.ID, &doc.Text, &metadata, &vector); err != nil {
		return api.Document{}, err
	}
	if metadata.Valid && metadata.String != "" && metadata.String != "null" {
		if err := json.Unmarshal([]byte(metadata.String), &doc.Metadata); err != nil {
			return api.Document{}, fmt.Errorf("decode metadata: %w", err)
		}
	}
	if vector.Valid && vector.String != "" {
		if err := json.Unmarshal([]byte(vector.String), &doc.Vector); err != nil {
			return api.Document{}, fmt.Errorf("decode vector: %w", err)
		}
	}
	return doc, nil
}

func nullableText(data []byte) any {
	if data == nil {
		return nil
	}
	return string(data)
}

func isConstraintError(err error) bool {
	// modernc.org/sqlite surfaces SQLITE_CONSTRAINT in the error text;
	// matching on it keeps the store free of a driver-specific import.
	return err != nil && strings.Contains(err.Error(), "constraint failed")
}
