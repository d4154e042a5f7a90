package dbquery

import (
	"strings"
	"testing"
)

func TestValidateReadOnly(t *testing.T) {
	valid := []string{
		"SELECT * FROM users",
		"select count(*) from orders;",
		"WITH top AS (SELECT 1) SELECT * FROM top",
	}
	for _, q := range valid {
		if err := validateReadOnly(q); err != nil {
			t.Errorf("validateReadOnly(%q) = %v, want nil", q, err)
		}
	}

	invalid := []string{
		"",
		"DELETE FROM users",
		"UPDATE users SET name = 'x'",
		"INSERT INTO users VALUES (1)",
		"DROP TABLE users",
		"SELECT 1; DROP TABLE users",
		"SELECT * FROM users; SELECT * FROM orders",
		"EXPLAIN SELECT 1",
	}
	for _, q := range invalid {
		if err := validateReadOnly(q); err == nil {
			t.Errorf("validateReadOnly(%q) accepted", q)
		}
	}
}

func TestRenderCell(t *testing.T) {
	if got := renderCell(nil); got != "NULL" {
		t.Errorf("nil = %q", got)
	}
	if got := renderCell("a|b\nc"); got != "a\\|b c" {
		t.Errorf("escaping = %q", got)
	}
	long := strings.Repeat("x", maxCellChars+50)
	if got := renderCell(long); len(got) != maxCellChars+3 || !strings.HasSuffix(got, "...") {
		t.Errorf("truncation = %d chars", len(got))
	}
}

func TestDefinitionsIncludeSchema(t *testing.T) {
	tool := New(nil, "users(id, name), orders(id, total)")
	defs := tool.Definitions()
	if len(defs) != 1 || defs[0].Name != "database_query" {
		t.Fatalf("defs = %+v", defs)
	}
	if !strings.Contains(defs[0].Description, "users(id, name)") {
		t.Errorf("schema not surfaced: %q", defs[0].Description)
	}
}
