package persistence

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/tlahtinen/governor/pkg/api"
)

// SQLiteStore is a Store backed by SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing
// the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

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
		CREATE TABLE IF NOT EXISTS procedures (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			status TEXT NOT NULL,
			snapshot BLOB,
			error TEXT
		);`,
	)
	return err
}

func (s *SQLiteStore) Save(rec *Record) error {
	_, err := s.db.Exec(`
		INSERT INTO procedures (id, kind, status, snapshot, error)
		VALUES (?, ?, ?, ?, ?)`,
		rec.ID,
		string(rec.Kind),
		string(rec.Status),
		rec.Snapshot,
		rec.Error,
	)
	return err
}

func (s *SQLiteStore) Update(rec *Record) error {
	res, err := s.db.Exec(`
		UPDATE procedures
		SET kind = ?, status = ?, snapshot = ?, error = ?
		WHERE id = ?`,
		string(rec.Kind),
		string(rec.Status),
		rec.Snapshot,
		rec.Error,
		rec.ID,
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *SQLiteStore) Get(id string) (*Record, error) {
	row := s.db.QueryRow(`
		SELECT id, kind, status, snapshot, error
		FROM procedures
		WHERE id = ?`,
		id,
	)
	return scanRecord(row)
}

func (s *SQLiteStore) List(filter Filter) ([]*Record, error) {
	query := `
		SELECT id, kind, status, snapshot, error
		FROM procedures`
	var args []any
	var clauses []string

	if filter.Kind != "" {
		clauses = append(clauses, "kind = ?")
		args = append(args, string(filter.Kind))
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}

	if len(clauses) > 0 {
		query = query + " WHERE " + strings.Join(clauses, " AND ")
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		var rec Record
		var kind, status string
		var errStr sql.NullString

		if err := rows.Scan(&rec.ID, &kind, &status, &rec.Snapshot, &errStr); err != nil {
			return nil, err
		}
		rec.Kind = api.OperationType(kind)
		rec.Status = api.Status(status)
		if errStr.Valid {
			rec.Error = errStr.String
		}

		copied := rec
		records = append(records, &copied)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *SQLiteStore) Delete(id string) error {
	_, err := s.db.Exec(`DELETE FROM procedures WHERE id = ?`, id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var kind, status string
	var errStr sql.NullString

	if err := row.Scan(&rec.ID, &kind, &status, &rec.Snapshot, &errStr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	rec.Kind = api.OperationType(kind)
	rec.Status = api.Status(status)
	if errStr.Valid {
		rec.Error = errStr.String
	}
	return &rec, nil
}
