package persistence

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/petrijr/heimdall/pkg/api"
)

// SQLiteCheckpointStore is a CheckpointStore backed by SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing
// the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteCheckpointStore struct {
	db *sql.DB
}

var _ CheckpointStore = (*SQLiteCheckpointStore)(nil)

// NewSQLiteCheckpointStore initializes the required schema in the given
// database and returns a new SQLiteCheckpointStore.
func NewSQLiteCheckpointStore(db *sql.DB) (*SQLiteCheckpointStore, error) {
	s := &SQLiteCheckpointStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteCheckpointStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS checkpoints (
			session_id TEXT PRIMARY KEY,
			graph_name TEXT NOT NULL,
			subject TEXT NOT NULL,
			state TEXT NOT NULL,
			cursor TEXT NOT NULL,
			snapshot BLOB,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
	)
	return err
}

func (s *SQLiteCheckpointStore) SaveCheckpoint(cp *api.Checkpoint) error {
	snap, err := EncodeSnapshot(cp.Snapshot)
	if err != nil {
		return err
	}

	now := time.Now()
	_, err = s.db.Exec(`
		INSERT INTO checkpoints (session_id, graph_name, subject, state, cursor, snapshot, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		cp.Session.ID,
		cp.Session.GraphName,
		cp.Session.Subject,
		string(cp.State),
		cp.Cursor,
		snap,
		cp.Session.CreatedAt.UnixNano(),
		now.UnixNano(),
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return ErrCheckpointExists
	}
	return err
}

func (s *SQLiteCheckpointStore) UpdateCheckpoint(cp *api.Checkpoint) error {
	snap, err := EncodeSnapshot(cp.Snapshot)
	if err != nil {
		return err
	}

	res, err := s.db.Exec(`
		UPDATE checkpoints
		SET graph_name = ?, subject = ?, state = ?, cursor = ?, snapshot = ?, updated_at = ?
		WHERE session_id = ?`,
		cp.Session.GraphName,
		cp.Session.Subject,
		string(cp.State),
		cp.Cursor,
		snap,
		time.Now().UnixNano(),
		cp.Session.ID,
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrCheckpointNotFound
	}
	return nil
}

func (s *SQLiteCheckpointStore) GetCheckpoint(sessionID string) (*api.Checkpoint, error) {
	row := s.db.QueryRow(`
		SELECT session_id, graph_name, subject, state, cursor, snapshot, created_at, updated_at
		FROM checkpoints
		WHERE session_id = ?`,
		sessionID,
	)

	cp, err := scanCheckpoint(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCheckpointNotFound
		}
		return nil, err
	}
	return cp, nil
}

func (s *SQLiteCheckpointStore) ListCheckpoints(filter CheckpointFilter) ([]*api.Checkpoint, error) {
	query := `
		SELECT session_id, graph_name, subject, state, cursor, snapshot, created_at, updated_at
		FROM checkpoints`
	var args []any
	var clauses []string

	if filter.GraphName != "" {
		clauses = append(clauses, "graph_name = ?")
		args = append(args, filter.GraphName)
	}
	if filter.State != "" {
		clauses = append(clauses, "state = ?")
		args = append(args, string(filter.State))
	}

	if len(clauses) > 0 {
		query = query + " WHERE " + strings.Join(clauses, " AND ")
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var checkpoints []*api.Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows.Scan)
		if err != nil {
			return nil, err
		}
		checkpoints = append(checkpoints, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return checkpoints, nil
}

func (s *SQLiteCheckpointStore) DeleteCheckpoint(sessionID string) error {
	_, err := s.db.Exec(`DELETE FROM checkpoints WHERE session_id = ?`, sessionID)
	return err
}

// scanCheckpoint reads one checkpoint row via the given Scan function, so
// the single-row and multi-row paths share decoding.
func scanCheckpoint(scan func(dest ...any) error) (*api.Checkpoint, error) {
	var (
		cp        api.Checkpoint
		stateStr  string
		snapBytes []byte
		createdAt int64
		updatedAt int64
	)

	if err := scan(
		&cp.Session.ID,
		&cp.Session.GraphName,
		&cp.Session.Subject,
		&stateStr,
		&cp.Cursor,
		&snapBytes,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	cp.State = api.RunState(stateStr)
	cp.Session.CreatedAt = time.Unix(0, createdAt)
	cp.UpdatedAt = time.Unix(0, updatedAt)

	snap, err := DecodeSnapshot(snapBytes)
	if err != nil {
		return nil, err
	}
	cp.Snapshot = snap
	return &cp, nil
}
