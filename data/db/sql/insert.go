package sql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	core "auditor/data/db"
	"auditor/data/db/dialect"
)

// insertBuilder 生成单条多行 INSERT，工作单元按实体类型批量写入
type insertBuilder struct {
	db      core.IDatabase
	dialect dialect.Dialect

	table   string
	columns []string
	rows    [][]any
}

func (b *insertBuilder) Columns(cols ...string) IInsertBuilder {
	b.columns = cols
	return b
}

func (b *insertBuilder) Values(vals ...any) IInsertBuilder {
	b.rows = append(b.rows, vals)
	return b
}

func (b *insertBuilder) Build() (string, []any, error) {
	table, err := quoteIdent(b.dialect, "table", b.table)
	if err != nil {
		return "", nil, err
	}
	if len(b.columns) == 0 || len(b.rows) == 0 {
		return "", nil, fmt.Errorf("sql: insert into %s needs columns and at least one row", b.table)
	}
	cols, err := quoteColumns(b.dialect, b.columns)
	if err != nil {
		return "", nil, err
	}

	placeholders := "(?" + strings.Repeat(", ?", len(cols)-1) + ")"
	tuples := make([]string, len(b.rows))
	args := make([]any, 0, len(b.rows)*len(cols))
	for i, row := range b.rows {
		if len(row) != len(cols) {
			return "", nil, fmt.Errorf("sql: insert row %d has %d values for %d columns", i, len(row), len(cols))
		}
		tuples[i] = placeholders
		args = append(args, row...)
	}

	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", table, strings.Join(cols, ", "), strings.Join(tuples, ", "))
	return q, args, nil
}

func (b *insertBuilder) Exec(ctx context.Context) (sql.Result, error) {
	q, args, err := b.Build()
	if err != nil {
		return nil, err
	}
	return b.db.Exec(ctx, q, args...)
}
