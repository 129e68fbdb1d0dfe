package sql

import (
	"errors"
	"fmt"
	"regexp"

	"auditor/data/db/dialect"
)

var (
	// ErrUnsafeIdentifier 表名或列名不是合法的 SQL 标识符
	ErrUnsafeIdentifier = errors.New("sql: unsafe identifier")

	// ErrMissingWhere 工作单元只按主键更新或删除，不允许整表写入
	ErrMissingWhere = errors.New("sql: update or delete without where")
)

// identPattern 匹配 foo、bar_1 以及 schema.table 形式的限定名
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// quoteIdent 校验并按方言引用单个标识符
func quoteIdent(d dialect.Dialect, kind, name string) (string, error) {
	if !identPattern.MatchString(name) {
		return "", fmt.Errorf("%w: %s %q", ErrUnsafeIdentifier, kind, name)
	}
	return d.QuoteIdentifier(name), nil
}

// quoteColumns 校验并引用列名列表
func quoteColumns(d dialect.Dialect, cols []string) ([]string, error) {
	quoted := make([]string, len(cols))
	for i, col := range cols {
		q, err := quoteIdent(d, "column", col)
		if err != nil {
			return nil, err
		}
		quoted[i] = q
	}
	return quoted, nil
}
