package knowledge

import (
	"context"
	"database/sql"
	"time"
)

// SQLiteStore is a Store backed by SQLite, so ingested material survives
// process restarts and can be shared with the engine's database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore initializes the documents table in the given database and
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
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			subject TEXT NOT NULL,
			chunk TEXT NOT NULL,
			added_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS documents_subject ON documents(subject);
	`)
	return err
}

var _ Store = (*SQLiteStore)(nil)

func (s *SQLiteStore) Ingest(ctx context.Context, subject, text string) (int, error) {
	cs := chunks(text)
	if len(cs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	now := time.Now().UnixNano()
	for _, c := range cs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO documents (subject, chunk, added_at) VALUES (?, ?, ?)`,
			subject, c, now,
		); err != nil {
			_ = tx.Rollback()
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(cs), nil
}

func (s *SQLiteStore) Query(ctx context.Context, subject, question string, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chunk FROM documents WHERE subject = ? ORDER BY id`, subject)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return rank(candidates, question, limit), nil
}
