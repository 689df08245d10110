package auditlog

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const tableName = "automerge_log"

var columns = []string{"id", "account", "repository", "pr_number", "type", "action", "created_at"}

const createTableStmt = `CREATE TABLE IF NOT EXISTS ` + tableName + ` (
	id UUID PRIMARY KEY,
	account TEXT NOT NULL,
	repository TEXT NOT NULL,
	pr_number INTEGER NOT NULL,
	type TEXT NOT NULL,
	action TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
)`

const createIndexStmt = `CREATE INDEX IF NOT EXISTS ` + tableName + `_repository_created_at_idx ON ` +
	tableName + ` (repository, created_at DESC)`

// DB is the subset of pgxpool.Pool used by PostgresStore.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresStore stores records in a PostgreSQL table.
type PostgresStore struct {
	db      DB
	builder sq.StatementBuilderType
}

// Connect creates a connection pool and verifies that the database is
// reachable.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool failed: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database failed: %w", err)
	}

	return pool, nil
}

func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func wrapDBError(err error, op string) error {
	return fmt.Errorf("database: %s: %w", op, err)
}

// EnsureSchema creates the table and its index if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, createTableStmt); err != nil {
		return wrapDBError(err, "creating table")
	}

	if _, err := s.db.Exec(ctx, createIndexStmt); err != nil {
		return wrapDBError(err, "creating index")
	}

	return nil
}

func (s *PostgresStore) Append(ctx context.Context, rec *Record) error {
	if err := rec.validate(); err != nil {
		return fmt.Errorf("%w: %+v", err, rec)
	}

	query, args, err := s.builder.
		Insert(tableName).
		Columns(columns...).
		Values(rec.ID, rec.Account, rec.Repository, rec.PRNumber, rec.Type, string(rec.Action), rec.Timestamp).
		ToSql()
	if err != nil {
		return wrapDBError(err, "building insert query")
	}

	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return wrapDBError(err, "inserting record")
	}

	return nil
}

func (s *PostgresStore) List(ctx context.Context, repository string, limit int) ([]*Record, error) {
	qb := s.builder.
		Select(columns...).
		From(tableName).
		OrderBy("created_at DESC")

	if repository != "" {
		qb = qb.Where(sq.Eq{"repository": repository})
	}

	if limit > 0 {
		qb = qb.Limit(uint64(limit))
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, wrapDBError(err, "building select query")
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError(err, "querying records")
	}
	defer rows.Close()

	var result []*Record

	for rows.Next() {
		var rec Record
		var id, action string

		if err := rows.Scan(&id, &rec.Account, &rec.Repository, &rec.PRNumber, &rec.Type, &action, &rec.Timestamp); err != nil {
			return nil, wrapDBError(err, "scanning record")
		}

		rec.ID, err = uuid.Parse(id)
		if err != nil {
			return nil, wrapDBError(err, "parsing record id")
		}

		rec.Action = Action(action)
		result = append(result, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, wrapDBError(err, "iterating records")
	}

	return result, nil
}
