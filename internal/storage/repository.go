package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"jsonl2sql/internal/record"
)

// Config is the minimal configuration needed to open a destination.
//
// When to use:
//   - Use Config when constructing a Repository via New.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; for sqlite it is the
//     database file path and the file is created if absent.
//   - Driver selects a driver variant inside a backend (sqlite: "modernc" or
//     "mattn"). Empty means the backend default.
type Config struct {
	Kind   string
	DSN    string
	Driver string
}

// Dialect is the connection-free half of a backend: how record kinds are
// spelled as column types and how the table DDL looks.
type Dialect interface {
	// ColumnType returns the storage type label used for a column of kind k.
	ColumnType(k record.Kind) string

	// CreateTableSQL renders an idempotent "create if absent" statement.
	CreateTableSQL(t TableSpec) (string, error)

	// InsertSQL renders a single-row INSERT with backend placeholders.
	InsertSQL(table string, columns []string) string
}

// Repository is a backend-agnostic handle on one destination for one run.
//
// IMPORTANT: a Repository is owned by exactly one conversion and is not safe
// for concurrent use.
//
// Transaction model:
//   - EnsureTable runs outside the row transaction, so the table survives a
//     failed run (empty).
//   - The first InsertRow opens the row transaction; Commit makes every row
//     durable at once.
//   - Rollback discards uncommitted rows. Close rolls back anything pending
//     and releases the connection.
type Repository interface {
	Dialect

	// EnsureTable creates the table if it does not exist. Existing tables are
	// left untouched, including their columns.
	EnsureTable(ctx context.Context, t TableSpec) error

	// InsertRow inserts one row. columns and values are matched positionally.
	InsertRow(ctx context.Context, table string, columns []string, values []any) error

	// Commit commits the row transaction. It is a no-op when no row is pending.
	Commit(ctx context.Context) error

	// Rollback discards the row transaction. It is a no-op when no row is pending.
	Rollback(ctx context.Context) error

	// Close releases backend resources. Call it exactly once.
	Close() error
}

// Factory opens a Repository for cfg.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

type backend struct {
	dialect Dialect
	factory Factory
}

var (
	mu       sync.RWMutex
	backends = map[string]backend{}
)

// Register registers a backend under a kind (e.g. "postgres", "sqlite").
//
// When to use:
//   - Call Register from an init() function in a backend package.
//   - The `kind` string becomes the lookup key used by New and LookupDialect.
//
// Panics:
//   - If kind is empty.
//   - If d or f is nil.
//   - If kind is already registered. This is intentional to fail fast and
//     avoid ambiguous backend selection.
func Register(kind string, d Dialect, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if d == nil || f == nil {
		panic(fmt.Sprintf("storage: Register called with nil dialect or factory for kind=%q", kind))
	}
	if _, exists := backends[kind]; exists {
		panic(fmt.Sprintf("storage: backend already registered for kind=%q", kind))
	}

	backends[kind] = backend{dialect: d, factory: f}
}

// New opens a Repository using the registered backend factory.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or unsupported.
//   - Factory failures are returned as *StorageError with Op "open".
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing kind")
	}

	mu.RLock()
	b, ok := backends[cfg.Kind]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unsupported storage.kind=%s", cfg.Kind)
	}
	repo, err := b.factory(ctx, cfg)
	if err != nil {
		return nil, Wrap("open", "", err)
	}
	return repo, nil
}

// LookupDialect returns the Dialect of a registered kind without connecting.
func LookupDialect(kind string) (Dialect, error) {
	mu.RLock()
	b, ok := backends[kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported storage.kind=%s", kind)
	}
	return b.dialect, nil
}

// Kinds lists registered backend kinds in sorted order.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()

	out := make([]string, 0, len(backends))
	for k := range backends {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
