package sql

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	core "auditor/data/db"
)

// fakeDB 只记录最后一次执行的 SQL
type fakeDB struct {
	dialect   string
	lastQuery string
	lastArgs  []any
}

func (f *fakeDB) Query(ctx context.Context, q string, args ...any) (core.IRows, error) {
	f.lastQuery, f.lastArgs = q, args
	return nil, nil
}
func (f *fakeDB) QueryRow(ctx context.Context, q string, args ...any) core.IRow {
	f.lastQuery, f.lastArgs = q, args
	return nil
}
func (f *fakeDB) Exec(ctx context.Context, q string, args ...any) (sql.Result, error) {
	f.lastQuery, f.lastArgs = q, args
	return nil, nil
}
func (f *fakeDB) Begin(ctx context.Context) (core.ITransaction, error) { return nil, nil }
func (f *fakeDB) BeginTx(ctx context.Context, opts *sql.TxOptions) (core.ITransaction, error) {
	return nil, nil
}
func (f *fakeDB) Ping(ctx context.Context) error { return nil }
func (f *fakeDB) Close() error                   { return nil }
func (f *fakeDB) Raw() any                       { return nil }
func (f *fakeDB) GetDialectName() string         { return f.dialect }

func TestInsertBuilder_MultiRow(t *testing.T) {
	db := &fakeDB{dialect: "sqlite"}
	_, err := New(db).InsertInto("audit_entries").
		Columns("id", "kind").
		Values("a", "Added").
		Values("b", "Deleted").
		Exec(context.Background())
	require.NoError(t, err)

	assert.Equal(t, `INSERT INTO "audit_entries" ("id", "kind") VALUES (?, ?), (?, ?)`, db.lastQuery)
	assert.Equal(t, []any{"a", "Added", "b", "Deleted"}, db.lastArgs)
}

func TestInsertBuilder_RowShapeErrors(t *testing.T) {
	s := New(&fakeDB{dialect: "sqlite"})

	_, _, err := s.InsertInto("t").Columns("a", "b").Values(1).Build()
	assert.ErrorContains(t, err, "1 values for 2 columns")

	_, _, err = s.InsertInto("t").Columns("a").Build()
	assert.Error(t, err)
}

func TestSelectBuilder_Build(t *testing.T) {
	q, args, err := New(&fakeDB{dialect: "postgres"}).Select("id", "kind").
		From("audit_entries").
		Where("kind = ?", "Added").
		Where("start_time_utc >= ?", "2024-01-01").
		OrderBy("sequence ASC").
		Limit(10).
		Offset(20).
		Build()
	require.NoError(t, err)

	assert.Equal(t, `SELECT id, kind FROM "audit_entries" WHERE kind = ? AND start_time_utc >= ? ORDER BY sequence ASC LIMIT ? OFFSET ?`, q)
	assert.Equal(t, []any{"Added", "2024-01-01", 10, 20}, args)
}

func TestSelectBuilder_SQLiteOffsetWithoutLimit(t *testing.T) {
	q, args, err := New(&fakeDB{dialect: "sqlite"}).Select().From("audit_entries").Offset(5).Build()
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "audit_entries" LIMIT -1 OFFSET ?`, q)
	assert.Equal(t, []any{5}, args)
}

func TestUpdateBuilder_Build(t *testing.T) {
	q, args, err := New(&fakeDB{dialect: "sqlite"}).Update("super_heroes").
		Set("name", "Batman").
		Set("place", "Gotham").
		Where("id = ?", 7).
		Build()
	require.NoError(t, err)

	assert.Equal(t, `UPDATE "super_heroes" SET "name" = ?, "place" = ? WHERE id = ?`, q)
	assert.Equal(t, []any{"Batman", "Gotham", 7}, args)
}

func TestDeleteBuilder_Build(t *testing.T) {
	db := &fakeDB{dialect: "mysql"}
	_, err := New(db).DeleteFrom("super_heroes").Where("id = ?", 1).Where("tenant = ?", "t1").Exec(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "DELETE FROM `super_heroes` WHERE id = ? AND tenant = ?", db.lastQuery)
	assert.Equal(t, []any{1, "t1"}, db.lastArgs)
}

func TestBuilders_RequireWhere(t *testing.T) {
	db := &fakeDB{dialect: "sqlite"}
	s := New(db)

	_, err := s.DeleteFrom("t").Exec(context.Background())
	assert.ErrorIs(t, err, ErrMissingWhere)
	_, err = s.Update("t").Set("a", 1).Exec(context.Background())
	assert.ErrorIs(t, err, ErrMissingWhere)
	assert.Empty(t, db.lastQuery, "nothing reaches the database")
}

func TestBuilders_RejectUnsafeIdentifiers(t *testing.T) {
	db := &fakeDB{dialect: "sqlite"}
	s := New(db)

	_, err := s.InsertInto("t; DROP TABLE x").Columns("id").Values(1).Exec(context.Background())
	assert.ErrorIs(t, err, ErrUnsafeIdentifier)
	_, err = s.Update("t").Set("a = 1 --", 1).Where("id = ?", 1).Exec(context.Background())
	assert.ErrorIs(t, err, ErrUnsafeIdentifier)
	_, err = s.Select().From("t t2").Query(context.Background())
	assert.ErrorIs(t, err, ErrUnsafeIdentifier)
	assert.ErrorIs(t, s.Select().From("").QueryRow(context.Background()).Scan(), ErrUnsafeIdentifier)
	assert.Empty(t, db.lastQuery)

	_, _, err = s.Select().From("public.audit_entries").Build()
	assert.NoError(t, err)
}
