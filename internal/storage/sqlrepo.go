package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SQLRepo is the database/sql implementation of Repository shared by the
// sqlite, mssql and mysql backends. Backends supply the Dialect; SQLRepo owns
// the connection and the row transaction.
//
// Statements prepared inside the row transaction are cached by query text, so
// inserting thousands of rows with the same column list prepares once.
type SQLRepo struct {
	Dialect

	db DBConn
	tx TxConn
}

// NewSQLRepo wraps an open connection.
func NewSQLRepo(db DBConn, d Dialect) *SQLRepo {
	return &SQLRepo{Dialect: d, db: db}
}

// OpenSQL opens driver/dsn through database/sql, verifies connectivity and
// returns a SQLRepo. maxOpen <= 0 leaves the pool unbounded.
func OpenSQL(ctx context.Context, driver, dsn string, maxOpen int, d Dialect) (*SQLRepo, error) {
	raw, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if maxOpen > 0 {
		raw.SetMaxOpenConns(maxOpen)
		raw.SetMaxIdleConns(maxOpen)
	}
	if err := raw.PingContext(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	return NewSQLRepo(&sqlDB{db: raw}, d), nil
}

func (r *SQLRepo) EnsureTable(ctx context.Context, t TableSpec) error {
	q, err := r.CreateTableSQL(t)
	if err != nil {
		return Wrap("create", t.Name, err)
	}
	if _, err := r.db.ExecContext(ctx, q); err != nil {
		return Wrap("create", t.Name, err)
	}
	return nil
}

func (r *SQLRepo) InsertRow(ctx context.Context, table string, columns []string, values []any) error {
	if len(columns) != len(values) {
		return Wrap("insert", table, fmt.Errorf("%d columns but %d values", len(columns), len(values)))
	}
	if r.tx == nil {
		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			return Wrap("begin", table, err)
		}
		r.tx = tx
	}
	if _, err := r.tx.ExecContext(ctx, r.InsertSQL(table, columns), values...); err != nil {
		return Wrap("insert", table, err)
	}
	return nil
}

func (r *SQLRepo) Commit(ctx context.Context) error {
	if r.tx == nil {
		return nil
	}
	tx := r.tx
	r.tx = nil
	return Wrap("commit", "", tx.Commit())
}

func (r *SQLRepo) Rollback(ctx context.Context) error {
	if r.tx == nil {
		return nil
	}
	tx := r.tx
	r.tx = nil
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return Wrap("rollback", "", err)
	}
	return nil
}

// Close rolls back any pending rows and closes the connection.
func (r *SQLRepo) Close() error {
	rbErr := r.Rollback(context.Background())
	if r.db == nil {
		return rbErr
	}
	if err := r.db.Close(); err != nil {
		return Wrap("close", "", err)
	}
	return rbErr
}

// ---- database/sql seam types ----

// DBConn is the subset of *sql.DB SQLRepo needs. Tests substitute fakes.
type DBConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	BeginTx(ctx context.Context, opts *sql.TxOptions) (TxConn, error)
	Close() error
}

// TxConn is the subset of *sql.Tx SQLRepo needs.
type TxConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	Commit() error
	Rollback() error
}

type sqlDB struct {
	db *sql.DB
}

func (s *sqlDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, query, args...)
}

func (s *sqlDB) BeginTx(ctx context.Context, opts *sql.TxOptions) (TxConn, error) {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &sqlTx{tx: tx, stmts: make(map[string]*sql.Stmt)}, nil
}

func (s *sqlDB) Close() error { return s.db.Close() }

// sqlTx wraps *sql.Tx and caches prepared statements per query.
type sqlTx struct {
	tx    *sql.Tx
	stmts map[string]*sql.Stmt
}

func (s *sqlTx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	st, ok := s.stmts[query]
	if !ok {
		var err error
		st, err = s.tx.PrepareContext(ctx, query)
		if err != nil {
			return nil, err
		}
		s.stmts[query] = st
	}
	return st.ExecContext(ctx, args...)
}

func (s *sqlTx) Commit() error {
	s.closeStmts()
	return s.tx.Commit()
}

func (s *sqlTx) Rollback() error {
	s.closeStmts()
	return s.tx.Rollback()
}

func (s *sqlTx) closeStmts() {
	for q, st := range s.stmts {
		_ = st.Close()
		delete(s.stmts, q)
	}
}

var (
	_ Repository = (*SQLRepo)(nil)
	_ DBConn     = (*sqlDB)(nil)
	_ TxConn     = (*sqlTx)(nil)
)
