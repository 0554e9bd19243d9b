// Package migrate copies the schema and rows of every user table from one
// database into another. It drives both handles one statement at a time and
// aborts on the first failure, so the destination is never left with a shape
// the error does not account for.
package migrate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tsilva/dbvault/internal/catalog"
	"github.com/tsilva/dbvault/internal/db"
)

// IdentityColumn is the auto-increment primary key the store guarantees as
// the first column of every table it creates.
const IdentityColumn = "_id"

// Options control one migration pass.
type Options struct {
	// StripIdentity removes the identity column from every row before it
	// is inserted, so the destination assigns fresh identities. Set for
	// restore; backup keeps identities verbatim.
	StripIdentity bool
}

// Result summarizes a completed migration. A source with no tables yields a
// zero Result and no error.
type Result struct {
	Tables  int
	Rows    int64
	Elapsed time.Duration
}

// SchemaError reports a table listed by the catalog whose column metadata is
// missing. The catalog and the per-table schema view have diverged; treating
// the table as empty would silently create a zero-column copy.
type SchemaError struct {
	Table string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("no column metadata for table %q: catalog and schema have diverged", e.Table)
}

// StatementError reports a generated statement the engine rejected, naming
// the table and the phase (schema creation or row copy) it failed in.
type StatementError struct {
	Table string
	Phase string
	Err   error
}

const (
	PhaseSchema = "schema"
	PhaseCopy   = "copy"
)

func (e *StatementError) Error() string {
	return fmt.Sprintf("%s phase failed for table %q: %v", e.Phase, e.Table, e.Err)
}

func (e *StatementError) Unwrap() error { return e.Err }

// Migrator copies user tables between two open database handles. It owns
// neither handle; the caller opens and closes both.
type Migrator struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Migrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Migrator{logger: logger}
}

// Run copies all user tables from src into dst, schema first, then rows, in
// catalog order. The first SchemaError or StatementError aborts the whole
// run. The context is checked between tables; a canceled run leaves the
// destination populated up through the last completed statement.
func (m *Migrator) Run(ctx context.Context, src, dst *db.DB, opts Options) (*Result, error) {
	start := time.Now()

	tables, err := catalog.Tables(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}

	res := &Result{}
	if len(tables) == 0 {
		m.logger.Info("no tables available, nothing to migrate")
		return res, nil
	}

	for _, table := range tables {
		if strings.HasPrefix(table, "sqlite_") {
			// engine bookkeeping (sqlite_sequence above all) is
			// regenerated on the destination, never copied
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, err := m.copyTable(ctx, src, dst, table, opts)
		if err != nil {
			return nil, err
		}
		res.Tables++
		res.Rows += n
		m.logger.Debug("table migrated", "table", table, "rows", n)
	}

	res.Elapsed = time.Since(start)
	m.logger.Info("migration complete",
		"tables", res.Tables, "rows", res.Rows, "elapsed", res.Elapsed)
	return res, nil
}

func (m *Migrator) copyTable(ctx context.Context, src, dst *db.DB, table string, opts Options) (int64, error) {
	cols, err := catalog.Columns(ctx, src, table)
	if err != nil {
		return 0, &StatementError{Table: table, Phase: PhaseSchema, Err: err}
	}
	if len(cols) == 0 {
		return 0, &SchemaError{Table: table}
	}

	if err := m.createTable(ctx, dst, table, cols); err != nil {
		return 0, err
	}
	return m.copyRows(ctx, src, dst, table, opts)
}

// createTable recreates table on dst from its catalog description,
// idempotently. Identifiers and declared types come from the source catalog
// and are interpolated; there is no parameter syntax for either. A single
// primary-key column keeps its PRIMARY KEY clause so the destination can
// assign identities when rows arrive stripped.
func (m *Migrator) createTable(ctx context.Context, dst *db.DB, table string, cols []catalog.Column) error {
	pkCount := 0
	for _, c := range cols {
		if c.PrimaryKey {
			pkCount++
		}
	}

	defs := make([]string, 0, len(cols))
	for _, c := range cols {
		def := catalog.QuoteIdent(c.Name)
		if c.DeclaredType != "" {
			def += " " + c.DeclaredType
		}
		if c.PrimaryKey && pkCount == 1 {
			def += " PRIMARY KEY"
		}
		defs = append(defs, def)
	}

	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
		catalog.QuoteIdent(table), strings.Join(defs, ", "))
	if _, err := dst.Exec(ctx, stmt); err != nil {
		return &StatementError{Table: table, Phase: PhaseSchema, Err: err}
	}
	return nil
}

// copyRows streams every row of table from src into dst. Row values are
// always bound as parameters, never rendered as literals, so quotes and nulls
// survive the trip untouched.
func (m *Migrator) copyRows(ctx context.Context, src, dst *db.DB, table string, opts Options) (int64, error) {
	rows, err := src.QueryRows(ctx, fmt.Sprintf("SELECT * FROM %s", catalog.QuoteIdent(table)))
	if err != nil {
		return 0, &StatementError{Table: table, Phase: PhaseCopy, Err: err}
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return 0, &StatementError{Table: table, Phase: PhaseCopy, Err: err}
	}

	keep := make([]int, 0, len(names))
	insertCols := make([]string, 0, len(names))
	for i, name := range names {
		if opts.StripIdentity && name == IdentityColumn {
			continue
		}
		keep = append(keep, i)
		insertCols = append(insertCols, catalog.QuoteIdent(name))
	}

	var stmt string
	if len(keep) == 0 {
		// every column was stripped; let the destination fill them all
		stmt = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", catalog.QuoteIdent(table))
	} else {
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(keep)), ", ")
		stmt = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			catalog.QuoteIdent(table), strings.Join(insertCols, ", "), marks)
	}

	values := make([]any, len(names))
	ptrs := make([]any, len(names))
	for i := range values {
		ptrs[i] = &values[i]
	}
	args := make([]any, len(keep))

	var copied int64
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return copied, &StatementError{Table: table, Phase: PhaseCopy, Err: err}
		}
		for i, idx := range keep {
			args[i] = values[idx]
		}
		if _, err := dst.Exec(ctx, stmt, args...); err != nil {
			return copied, &StatementError{Table: table, Phase: PhaseCopy, Err: err}
		}
		copied++
	}
	if err := rows.Err(); err != nil {
		return copied, &StatementError{Table: table, Phase: PhaseCopy, Err: err}
	}
	return copied, nil
}
