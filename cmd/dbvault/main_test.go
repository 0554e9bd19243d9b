package main

import (
	"testing"
)

func TestParseColumns(t *testing.T) {
	cols, err := parseColumns("name TEXT, age INTEGER")
	if err != nil {
		t.Fatalf("parseColumns returned error: %v", err)
	}
	if len(cols) != 2 {
		t.Fatalf("expected 2 columns, got %d", len(cols))
	}
	if cols[0].Name != "name" || cols[0].DeclaredType != "TEXT" {
		t.Fatalf("unexpected first column: %+v", cols[0])
	}
	if cols[1].Name != "age" || cols[1].DeclaredType != "INTEGER" {
		t.Fatalf("unexpected second column: %+v", cols[1])
	}

	if _, err := parseColumns(""); err == nil {
		t.Fatalf("expected error for empty definitions")
	}
	if _, err := parseColumns("name"); err == nil {
		t.Fatalf("expected error for definition without type")
	}
}

func TestParseValues(t *testing.T) {
	values, err := parseValues([]string{"name=Alice", "age=30", "score=1.5", "note=null"})
	if err != nil {
		t.Fatalf("parseValues returned error: %v", err)
	}
	if values["name"] != "Alice" {
		t.Fatalf("expected text value, got %v (%T)", values["name"], values["name"])
	}
	if values["age"] != int64(30) {
		t.Fatalf("expected integer value, got %v (%T)", values["age"], values["age"])
	}
	if values["score"] != 1.5 {
		t.Fatalf("expected real value, got %v (%T)", values["score"], values["score"])
	}
	if values["note"] != nil {
		t.Fatalf("expected null value, got %v", values["note"])
	}

	if _, err := parseValues(nil); err == nil {
		t.Fatalf("expected error for no arguments")
	}
	if _, err := parseValues([]string{"oops"}); err == nil {
		t.Fatalf("expected error for argument without =")
	}
}

func TestFormatRow(t *testing.T) {
	got := formatRow(map[string]any{"name": "Bob", "_id": int64(2), "age": nil})
	want := "_id=2 age=null name=Bob"
	if got != want {
		t.Fatalf("formatRow = %q, want %q", got, want)
	}
}
