// Package catalog reads table and column metadata from a database's system
// catalog. It is read-only; iteration order is whatever the catalog returns,
// stable for the lifetime of one connection.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/tsilva/dbvault/internal/db"
)

// SequenceTable is the engine's internal AUTOINCREMENT counter table. It is
// regenerated from column declarations and must never be copied between
// databases.
const SequenceTable = "sqlite_sequence"

// Column is one column of a table as recorded in the catalog.
type Column struct {
	Name         string
	DeclaredType string
	PrimaryKey   bool
}

// Tables returns the names of all tables known to the catalog, in catalog
// order. Callers must not assume alphabetical or creation order.
func Tables(ctx context.Context, d *db.DB) ([]string, error) {
	rows, err := d.QueryRows(ctx, `SELECT name FROM sqlite_master WHERE type = 'table'`)
	if err != nil {
		return nil, fmt.Errorf("query sqlite_master: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Columns returns the name, declared type and primary-key flag of every
// column of table, in definition order. An empty result means the catalog has
// no column metadata for the table at all; since every table carries at least
// its identity column, callers must treat that as catalog corruption rather
// than an empty table.
func Columns(ctx context.Context, d *db.DB, table string) ([]Column, error) {
	// pragma arguments cannot be bound
	rows, err := d.QueryRows(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, QuoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("table_info %s: %w", table, err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var (
			cid, notNull, pk int
			name, declType   string
			dflt             sql.NullString
		)
		if err := rows.Scan(&cid, &name, &declType, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("scan table_info %s: %w", table, err)
		}
		cols = append(cols, Column{Name: name, DeclaredType: declType, PrimaryKey: pk > 0})
	}
	return cols, rows.Err()
}

// QuoteIdent quotes an identifier for interpolation into a statement. The
// engine has no parameter syntax for identifiers, so names coming out of the
// catalog are wrapped in double quotes with embedded quotes doubled.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
