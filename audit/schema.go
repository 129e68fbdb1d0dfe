package audit

import (
	"context"
	"fmt"

	"auditor/data/db"
	"auditor/data/db/dialect"
	"auditor/data/orm"
)

// Schema 返回指定方言下 audit_entries 表的 DDL
func Schema(name dialect.Name) ([]string, error) {
	var table string
	switch name {
	case dialect.NameSQLite:
		table = `CREATE TABLE IF NOT EXISTS audit_entries (
	id TEXT NOT NULL PRIMARY KEY,
	sequence INTEGER NOT NULL,
	kind TEXT NOT NULL,
	metadata TEXT NOT NULL,
	start_time_utc DATETIME NOT NULL,
	end_time_utc DATETIME NOT NULL,
	duration INTEGER NOT NULL,
	succeeded BOOLEAN NOT NULL,
	error_message TEXT NULL
)`
	case dialect.NamePostgres:
		table = `CREATE TABLE IF NOT EXISTS audit_entries (
	id TEXT NOT NULL PRIMARY KEY,
	sequence BIGINT NOT NULL,
	kind VARCHAR(16) NOT NULL,
	metadata TEXT NOT NULL,
	start_time_utc TIMESTAMPTZ NOT NULL,
	end_time_utc TIMESTAMPTZ NOT NULL,
	duration BIGINT NOT NULL,
	succeeded BOOLEAN NOT NULL,
	error_message TEXT NULL
)`
	case dialect.NameMySQL:
		table = "CREATE TABLE IF NOT EXISTS `audit_entries` (" + `
	id VARCHAR(36) NOT NULL PRIMARY KEY,
	sequence BIGINT NOT NULL,
	kind VARCHAR(16) NOT NULL,
	metadata TEXT NOT NULL,
	start_time_utc DATETIME(6) NOT NULL,
	end_time_utc DATETIME(6) NOT NULL,
	duration BIGINT NOT NULL,
	succeeded BOOLEAN NOT NULL,
	error_message TEXT NULL,
	INDEX idx_audit_entries_sequence (sequence)
)`
		return []string{table}, nil
	default:
		return nil, fmt.Errorf("audit: unsupported dialect %q", name)
	}

	return []string{
		table,
		`CREATE INDEX IF NOT EXISTS idx_audit_entries_sequence ON audit_entries (sequence)`,
	}, nil
}

// EnsureSchema 按数据库方言创建 audit_entries 表（幂等）
func EnsureSchema(ctx context.Context, database db.IDatabase) error {
	stmts, err := Schema(dialect.FromDatabase(database).Name())
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if _, err := database.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("audit: ensure schema: %w", err)
		}
	}
	return nil
}

// ModelMeta 返回审计记录的模型元信息
func ModelMeta() *orm.ModelMeta {
	return &orm.ModelMeta{
		Model: &AuditRecord{},
		Table: TableName,
		Fields: []orm.FieldMeta{
			{Name: "ID", Column: "id", PrimaryKey: true},
			{Name: "Sequence", Column: "sequence"},
			{Name: "Kind", Column: "kind"},
			{Name: "Metadata", Column: "metadata"},
			{Name: "StartTimeUTC", Column: "start_time_utc"},
			{Name: "EndTimeUTC", Column: "end_time_utc"},
			{Name: "Duration", Column: "duration"},
			{Name: "Succeeded", Column: "succeeded"},
			{Name: "ErrorMessage", Column: "error_message", Nullable: true},
		},
	}
}
