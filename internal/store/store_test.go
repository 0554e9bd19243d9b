package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/tsilva/dbvault/internal/catalog"
	dbpkg "github.com/tsilva/dbvault/internal/db"
	"github.com/tsilva/dbvault/internal/store"
)

func setupStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()
	d, err := dbpkg.New(ctx, filepath.Join(t.TempDir(), "store.db"), nil)
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return store.New(d, nil)
}

func TestTableCRUD(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	cols := []catalog.Column{
		{Name: "name", DeclaredType: "TEXT"},
		{Name: "age", DeclaredType: "INTEGER"},
	}
	if err := s.CreateTable(ctx, "users", cols); err != nil {
		t.Fatalf("CreateTable error: %v", err)
	}
	// idempotent
	if err := s.CreateTable(ctx, "users", cols); err != nil {
		t.Fatalf("CreateTable second call error: %v", err)
	}

	id, err := s.Insert(ctx, "users", map[string]any{"name": "Alice", "age": int64(30)})
	if err != nil {
		t.Fatalf("Insert error: %v", err)
	}
	if id == 0 {
		t.Fatalf("expected non-zero id")
	}
	id2, err := s.Insert(ctx, "users", map[string]any{"name": "Bob", "age": nil})
	if err != nil {
		t.Fatalf("Insert error: %v", err)
	}
	if id2 == id {
		t.Fatalf("expected distinct identities, got %d twice", id)
	}

	rows, err := s.Rows(ctx, "users")
	if err != nil {
		t.Fatalf("Rows error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}

	got, err := s.Get(ctx, "users", id)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got == nil || got["name"] != "Alice" || got["age"] != int64(30) {
		t.Fatalf("unexpected row: %v", got)
	}
	if got["_id"] != id {
		t.Fatalf("expected _id %d, got %v", id, got["_id"])
	}

	// missing id returns nil, nil
	got, err = s.Get(ctx, "users", 9999)
	if err != nil {
		t.Fatalf("expected no error for missing id, got %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing id, got %v", got)
	}

	if err := s.Drop(ctx, "users"); err != nil {
		t.Fatalf("Drop error: %v", err)
	}
	if _, err := s.Rows(ctx, "users"); err == nil {
		t.Fatalf("expected error selecting from dropped table")
	}
}

func TestCreateTable_IdentityFirst(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	if err := s.CreateTable(ctx, "notes", []catalog.Column{{Name: "body", DeclaredType: "TEXT"}}); err != nil {
		t.Fatalf("CreateTable error: %v", err)
	}

	id, err := s.Insert(ctx, "notes", map[string]any{"body": "x"})
	if err != nil {
		t.Fatalf("Insert error: %v", err)
	}
	row, err := s.Get(ctx, "notes", id)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if row == nil {
		t.Fatalf("expected row fetched by _id")
	}
}

func TestReservedAndInvalidIdentifiers(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	err := s.CreateTable(ctx, "bad", []catalog.Column{{Name: "_id", DeclaredType: "INTEGER"}})
	if !errors.Is(err, store.ErrReservedColumn) {
		t.Fatalf("expected ErrReservedColumn, got %v", err)
	}

	err = s.CreateTable(ctx, "no such table", nil)
	if !errors.Is(err, store.ErrInvalidIdent) {
		t.Fatalf("expected ErrInvalidIdent, got %v", err)
	}

	if err := s.CreateTable(ctx, "ok", []catalog.Column{{Name: "v", DeclaredType: "TEXT"}}); err != nil {
		t.Fatalf("CreateTable error: %v", err)
	}
	_, err = s.Insert(ctx, "ok", map[string]any{"_id": int64(1), "v": "x"})
	if !errors.Is(err, store.ErrReservedColumn) {
		t.Fatalf("expected ErrReservedColumn on insert, got %v", err)
	}
	_, err = s.Insert(ctx, "ok", map[string]any{"v; DROP TABLE ok": "x"})
	if !errors.Is(err, store.ErrInvalidIdent) {
		t.Fatalf("expected ErrInvalidIdent on insert, got %v", err)
	}
}
