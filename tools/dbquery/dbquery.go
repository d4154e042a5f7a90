// Package dbquery provides a read-only SQL research tool over PostgreSQL.
// Researchers use it to pull evidence from an organization's own data
// alongside web sources.
//
// The tool accepts an externally-owned *pgxpool.Pool via constructor
// injection. The caller creates and closes the pool.
package dbquery

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/irfansofyana/depth"
)

const (
	// maxRows caps result rows per query; the remainder is noted, not
	// returned.
	maxRows = 50
	// maxCellChars caps a single rendered cell.
	maxCellChars = 200
)

// Tool executes read-only SQL against PostgreSQL and renders the result as a
// markdown table observation.
type Tool struct {
	pool   *pgxpool.Pool
	schema string // optional human-written schema description for the model
}

// New creates the database query tool. schemaDescription is surfaced in the
// tool description so the model knows what it can query; pass "" to omit.
func New(pool *pgxpool.Pool, schemaDescription string) *Tool {
	return &Tool{pool: pool, schema: schemaDescription}
}

func (t *Tool) Definitions() []depth.ToolDefinition {
	desc := "Run a read-only SQL query (SELECT only) against the research database and get the rows back as a table."
	if t.schema != "" {
		desc += " Schema: " + t.schema
	}
	return []depth.ToolDefinition{{
		Name:        "database_query",
		Description: desc,
		Parameters:  json.RawMessage(`{"type":"object","properties":{"sql":{"type":"string","description":"A single SELECT statement"}},"required":["sql"]}`),
	}}
}

func (t *Tool) Execute(ctx context.Context, _ string, args json.RawMessage) (depth.ToolResult, error) {
	var params struct {
		SQL string `json:"sql"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return depth.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}
	if err := validateReadOnly(params.SQL); err != nil {
		return depth.ToolResult{Error: err.Error()}, nil
	}

	content, err := t.query(ctx, params.SQL)
	if err != nil {
		return depth.ToolResult{Error: err.Error()}, nil
	}
	return depth.ToolResult{Content: content}, nil
}

// validateReadOnly rejects anything that is not a single SELECT (or WITH ...
// SELECT) statement. This is a guard against model mistakes, not a security
// boundary — point the pool at a read-only role for that.
func validateReadOnly(sql string) error {
	s := strings.TrimSpace(strings.ToLower(sql))
	if s == "" {
		return fmt.Errorf("sql is required")
	}
	if !strings.HasPrefix(s, "select") && !strings.HasPrefix(s, "with") {
		return fmt.Errorf("only SELECT queries are allowed")
	}
	if strings.Count(strings.TrimSuffix(s, ";"), ";") > 0 {
		return fmt.Errorf("multiple statements are not allowed")
	}
	for _, kw := range []string{"insert ", "update ", "delete ", "drop ", "alter ", "truncate ", "grant ", "create "} {
		if strings.Contains(s, kw) {
			return fmt.Errorf("statement contains forbidden keyword %q", strings.TrimSpace(kw))
		}
	}
	return nil
}

func (t *Tool) query(ctx context.Context, sql string) (string, error) {
	rows, err := t.pool.Query(ctx, sql)
	if err != nil {
		return "", fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	headers := make([]string, len(fields))
	for i, f := range fields {
		headers[i] = f.Name
	}

	var rendered [][]string
	total := 0
	for rows.Next() {
		total++
		if total > maxRows {
			continue // keep counting for the truncation note
		}
		values, err := rows.Values()
		if err != nil {
			return "", fmt.Errorf("read row: %w", err)
		}
		row := make([]string, len(values))
		for i, v := range values {
			row[i] = renderCell(v)
		}
		rendered = append(rendered, row)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("query failed: %w", err)
	}

	if total == 0 {
		return "Query returned no rows.", nil
	}

	var b strings.Builder
	b.WriteString("| " + strings.Join(headers, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat(" --- |", len(headers)) + "\n")
	for _, row := range rendered {
		b.WriteString("| " + strings.Join(row, " | ") + " |\n")
	}
	if total > maxRows {
		fmt.Fprintf(&b, "\n(%d rows total, showing first %d)\n", total, maxRows)
	}
	return b.String(), nil
}

func renderCell(v any) string {
	if v == nil {
		return "NULL"
	}
	s := fmt.Sprintf("%v", v)
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > maxCellChars {
		s = s[:maxCellChars] + "..."
	}
	return s
}

var _ depth.Tool = (*Tool)(nil)
