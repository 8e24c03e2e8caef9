// Package pgreader implements batchworker.PageReader against PostgreSQL
// using database/sql and github.com/lib/pq, following the connection and
// error-wrapping conventions of the retrieval pack's advisory-lock-manager
// example (dblock.DatabaseLockHelper): a *sql.DB handed in by the caller, a
// dedicated context-aware query path, and wrapped errors that name the
// failing statement.
package pgreader

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"

	"github.com/sharedcode/batchworker"
)

// Config describes the stable, paginated view this reader queries against.
// ViewName, OrderBy and each entry of Columns are identifiers, not bound parameters:
// Postgres has no placeholder syntax for table/column names, so they are
// validated against an allow-list of safe identifier characters before
// being formatted into the query text.
type Config struct {
	ViewName string
	OrderBy  string
	Columns  []string
	PageSize int
}

// Reader implements batchworker.PageReader with an offset/limit query plan
// over a stable-ordered view.
type Reader struct {
	db     *sql.DB
	config Config
}

// Open validates the config and wraps an already-open *sql.DB. The caller
// owns the DB's lifecycle (pooling, Close); Reader never closes it.
func Open(db *sql.DB, cfg Config) (*Reader, error) {
	if err := validateIdentifier(cfg.ViewName); err != nil {
		return nil, fmt.Errorf("view name: %w", err)
	}
	if err := validateIdentifier(cfg.OrderBy); err != nil {
		return nil, fmt.Errorf("order by column: %w", err)
	}
	for _, c := range cfg.Columns {
		if err := validateIdentifier(c); err != nil {
			return nil, fmt.Errorf("column %q: %w", c, err)
		}
	}
	if cfg.PageSize <= 0 {
		return nil, fmt.Errorf("page size must be positive, got %d", cfg.PageSize)
	}
	return &Reader{db: db, config: cfg}, nil
}

// ReadPage implements batchworker.PageReader.ReadPage. It issues a single
// `SELECT ... ORDER BY <orderBy> OFFSET ? LIMIT ?` query against the
// configured view, relying on the ORDER BY clause for the stable row
// ordering the resume protocol depends on.
func (r *Reader) ReadPage(ctx context.Context, p int) (batchworker.Page, error) {
	if p < 0 {
		return nil, fmt.Errorf("page must be non-negative, got %d", p)
	}
	selectList := "*"
	if len(r.config.Columns) > 0 {
		selectList = strings.Join(r.config.Columns, ", ")
	}
	stmt := fmt.Sprintf(
		"SELECT %s FROM %s ORDER BY %s OFFSET $1 LIMIT $2",
		selectList, r.config.ViewName, r.config.OrderBy)

	rows, err := r.db.QueryContext(ctx, stmt, p*r.config.PageSize, r.config.PageSize)
	if err != nil {
		return nil, fmt.Errorf("pgreader: query page %d: %w", p, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("pgreader: reading columns: %w", err)
	}

	var page batchworker.Page
	for rows.Next() {
		values := make([]any, len(cols))
		pointers := make([]any, len(cols))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("pgreader: scanning row: %w", err)
		}
		row := make(batchworker.Row, len(cols))
		for i, c := range cols {
			row[c] = normalize(values[i])
		}
		page = append(page, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgreader: iterating page %d: %w", p, err)
	}
	return page, nil
}

// GetTotalRowCount implements batchworker.PageReader.GetTotalRowCount.
func (r *Reader) GetTotalRowCount(ctx context.Context) (int64, error) {
	stmt := fmt.Sprintf("SELECT COUNT(*) FROM %s", r.config.ViewName)
	var count int64
	if err := r.db.QueryRowContext(ctx, stmt).Scan(&count); err != nil {
		return 0, fmt.Errorf("pgreader: counting rows: %w", err)
	}
	return count, nil
}

// normalize converts driver-returned []byte values (lib/pq's representation
// for text-like columns) to string so downstream translators see plain Go
// values rather than raw byte slices.
func normalize(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// validateIdentifier rejects anything but letters, digits, underscores and
// dots (for schema-qualified names), since these values are formatted
// directly into SQL text rather than bound as parameters.
func validateIdentifier(id string) error {
	if id == "" {
		return fmt.Errorf("identifier must not be empty")
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_' || r == '.':
		default:
			return fmt.Errorf("identifier %q contains disallowed character %q", id, r)
		}
	}
	return nil
}
