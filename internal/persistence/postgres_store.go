package persistence

import (
	"database/sql"
	"strings"

	"github.com/tlahtinen/governor/pkg/api"
)

// PostgresStore is a Store backed by PostgreSQL.
//
// It expects an *sql.DB that uses a PostgreSQL driver (for example,
// "github.com/jackc/pgx/v5/stdlib").
//
// The caller is responsible for:
//   - importing the driver for its side effects, e.g.:
//     _ "github.com/jackc/pgx/v5/stdlib"
//   - providing a DSN via sql.Open.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore initializes the required schema in the given database and
// returns a new PostgresStore.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	s := &PostgresStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS procedures (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			status TEXT NOT NULL,
			snapshot BYTEA,
			error TEXT
		);
	`)
	return err
}

func (s *PostgresStore) Save(rec *Record) error {
	_, err := s.db.Exec(`
		INSERT INTO procedures (id, kind, status, snapshot, error)
		VALUES ($1, $2, $3, $4, $5)`,
		rec.ID,
		string(rec.Kind),
		string(rec.Status),
		rec.Snapshot,
		rec.Error,
	)
	return err
}

func (s *PostgresStore) Update(rec *Record) error {
	res, err := s.db.Exec(`
		UPDATE procedures
		SET kind = $1, status = $2, snapshot = $3, error = $4
		WHERE id = $5`,
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

func (s *PostgresStore) Get(id string) (*Record, error) {
	row := s.db.QueryRow(`
		SELECT id, kind, status, snapshot, error
		FROM procedures
		WHERE id = $1`,
		id,
	)
	return scanRecord(row)
}

func (s *PostgresStore) List(filter Filter) ([]*Record, error) {
	query := `
		SELECT id, kind, status, snapshot, error
		FROM procedures`
	var args []any
	var clauses []string

	if filter.Kind != "" {
		args = append(args, string(filter.Kind))
		clauses = append(clauses, "kind = $1")
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		if len(args) == 2 {
			clauses = append(clauses, "status = $2")
		} else {
			clauses = append(clauses, "status = $1")
		}
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

func (s *PostgresStore) Delete(id string) error {
	_, err := s.db.Exec(`DELETE FROM procedures WHERE id = $1`, id)
	return err
}
