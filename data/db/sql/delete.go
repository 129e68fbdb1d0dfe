package sql

import (
	"context"
	"database/sql"
	"strings"

	core "auditor/data/db"
	"auditor/data/db/dialect"
)

// deleteBuilder 生成按条件删除的语句；至少需要一个 WHERE 条件
type deleteBuilder struct {
	db      core.IDatabase
	dialect dialect.Dialect

	table string
	where []string
	args  []any
}

func (b *deleteBuilder) Where(cond string, args ...any) IDeleteBuilder {
	if cond != "" {
		b.where = append(b.where, cond)
		b.args = append(b.args, args...)
	}
	return b
}

func (b *deleteBuilder) Build() (string, []any, error) {
	table, err := quoteIdent(b.dialect, "table", b.table)
	if err != nil {
		return "", nil, err
	}
	if len(b.where) == 0 {
		return "", nil, ErrMissingWhere
	}
	q := "DELETE FROM " + table + " WHERE " + strings.Join(b.where, " AND ")
	return q, append([]any(nil), b.args...), nil
}

func (b *deleteBuilder) Exec(ctx context.Context) (sql.Result, error) {
	q, args, err := b.Build()
	if err != nil {
		return nil, err
	}
	return b.db.Exec(ctx, q, args...)
}
