// Package store is the simplified CRUD surface over user-created tables.
// Every table it creates gets _id as an auto-incrementing first column; the
// restore path of the migrator depends on that invariant.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/tsilva/dbvault/internal/catalog"
	"github.com/tsilva/dbvault/internal/db"
	"github.com/tsilva/dbvault/internal/migrate"
)

var (
	ErrInvalidIdent   = errors.New("invalid identifier")
	ErrReservedColumn = errors.New("column _id is reserved")
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Store implements create/insert/select/fetch/drop against one database
// handle. It does not own the handle.
type Store struct {
	conn   *db.DB
	logger *slog.Logger
}

func New(conn *db.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{conn: conn, logger: logger}
}

// CreateTable creates table with _id prepended as the identity column,
// idempotently. User columns may not be named _id.
func (s *Store) CreateTable(ctx context.Context, table string, cols []catalog.Column) error {
	if err := checkIdent(table); err != nil {
		return err
	}

	defs := []string{catalog.QuoteIdent(migrate.IdentityColumn) + " INTEGER PRIMARY KEY AUTOINCREMENT"}
	for _, c := range cols {
		if c.Name == migrate.IdentityColumn {
			return fmt.Errorf("%w: in table %q", ErrReservedColumn, table)
		}
		if err := checkIdent(c.Name); err != nil {
			return err
		}
		defs = append(defs, catalog.QuoteIdent(c.Name)+" "+c.DeclaredType)
	}

	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
		catalog.QuoteIdent(table), strings.Join(defs, ", "))
	if _, err := s.conn.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}

	s.logger.Debug("table created", "table", table, "columns", len(cols)+1)
	return nil
}

// Insert adds one row and returns the identity the engine assigned. Values
// are bound as parameters; the _id key may not be supplied.
func (s *Store) Insert(ctx context.Context, table string, values map[string]any) (int64, error) {
	if err := checkIdent(table); err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, fmt.Errorf("no values to insert into %q", table)
	}

	// map iteration order is random; sort for a deterministic statement
	keys := make([]string, 0, len(values))
	for k := range values {
		if k == migrate.IdentityColumn {
			return 0, fmt.Errorf("%w: cannot insert into table %q", ErrReservedColumn, table)
		}
		if err := checkIdent(k); err != nil {
			return 0, err
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	cols := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		cols[i] = catalog.QuoteIdent(k)
		args[i] = values[k]
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(keys)), ", ")

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		catalog.QuoteIdent(table), strings.Join(cols, ", "), marks)
	res, err := s.conn.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("insert into %s: %w", table, err)
	}
	return res.LastInsertId()
}

// Rows returns every row of table as a column-name-to-value map.
func (s *Store) Rows(ctx context.Context, table string) ([]map[string]any, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}

	rows, err := s.conn.QueryRows(ctx, fmt.Sprintf("SELECT * FROM %s", catalog.QuoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("select from %s: %w", table, err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(names))
		for i, name := range names {
			row[name] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Get fetches the row with the given identity, or nil if there is none.
func (s *Store) Get(ctx context.Context, table string, id int64) (map[string]any, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}

	rows, err := s.conn.QueryRows(ctx,
		fmt.Sprintf("SELECT * FROM %s WHERE %s = ?",
			catalog.QuoteIdent(table), catalog.QuoteIdent(migrate.IdentityColumn)), id)
	if err != nil {
		return nil, fmt.Errorf("select from %s: %w", table, err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	if !rows.Next() {
		return nil, rows.Err()
	}

	values := make([]any, len(names))
	ptrs := make([]any, len(names))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	row := make(map[string]any, len(names))
	for i, name := range names {
		row[name] = values[i]
	}
	return row, nil
}

// Drop removes table if it exists.
func (s *Store) Drop(ctx context.Context, table string) error {
	if err := checkIdent(table); err != nil {
		return err
	}
	if _, err := s.conn.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", catalog.QuoteIdent(table))); err != nil {
		return fmt.Errorf("drop table %s: %w", table, err)
	}
	return nil
}

func checkIdent(name string) error {
	if !identPattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidIdent, name)
	}
	return nil
}
