package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auditor/data/db/dialect"
	"auditor/errors"
)

func seedRecords(t *testing.T, env *testEnv) time.Time {
	t.Helper()
	base := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	failure := "UNIQUE constraint failed"
	records := []*AuditRecord{
		{ID: "a", Sequence: 3, Kind: KindAdded, Metadata: "a", StartTimeUTC: base, Succeeded: true},
		{ID: "b", Sequence: 1, Kind: KindModified, Metadata: "b", StartTimeUTC: base.Add(time.Hour), Succeeded: true},
		{ID: "c", Sequence: 2, Kind: KindDeleted, Metadata: "c", StartTimeUTC: base.Add(2 * time.Hour)},
		{ID: "d", Sequence: 4, Kind: KindAdded, Metadata: "d", StartTimeUTC: base.Add(3 * time.Hour), ErrorMessage: &failure},
	}
	entities := make([]any, len(records))
	for i, r := range records {
		r.finalize(r.StartTimeUTC.Add(time.Second), r.Succeeded, r.ErrorMessage)
		entities[i] = r
	}
	_, err := env.orm.Model(ModelMeta()).Create(context.Background(), entities...)
	require.NoError(t, err)
	return base
}

func ids(records []*AuditRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func TestStore_List(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	base := seedRecords(t, env)

	all, err := env.store.List(ctx, ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "a", "d"}, ids(all), "按排序号升序")

	added, err := env.store.List(ctx, ListOptions{Kind: KindAdded})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "d"}, ids(added))

	window, err := env.store.List(ctx, ListOptions{Since: base.Add(time.Hour), Until: base.Add(3 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, ids(window))

	failed := false
	unsuccessful, err := env.store.List(ctx, ListOptions{Succeeded: &failed})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "d"}, ids(unsuccessful))

	page, err := env.store.List(ctx, ListOptions{Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, ids(page))

	tail, err := env.store.List(ctx, ListOptions{Offset: 3})
	require.NoError(t, err)
	assert.Equal(t, []string{"d"}, ids(tail))
}

func TestStore_GetRoundTrip(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	base := seedRecords(t, env)

	d, err := env.store.Get(ctx, "d")
	require.NoError(t, err)
	assert.Equal(t, KindAdded, d.Kind)
	assert.Equal(t, int64(4), d.Sequence)
	assert.True(t, d.StartTimeUTC.Equal(base.Add(3*time.Hour)))
	assert.Equal(t, time.Second, d.Duration)
	assert.False(t, d.Succeeded)
	require.NotNil(t, d.ErrorMessage)
	assert.Equal(t, "UNIQUE constraint failed", *d.ErrorMessage)

	a, err := env.store.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, a.Succeeded)
	assert.Nil(t, a.ErrorMessage)

	_, err = env.store.Get(ctx, "missing")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestStore_Count(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	seedRecords(t, env)

	n, err := env.store.Count(ctx, ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	n, err = env.store.Count(ctx, ListOptions{Kind: KindDeleted})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSchema(t *testing.T) {
	for _, name := range []dialect.Name{dialect.NameSQLite, dialect.NamePostgres, dialect.NameMySQL} {
		stmts, err := Schema(name)
		require.NoError(t, err, name)
		require.NotEmpty(t, stmts)
		assert.Contains(t, stmts[0], "audit_entries")
		assert.Contains(t, stmts[0], "start_time_utc")
	}

	_, err := Schema(dialect.NameUnknown)
	assert.Error(t, err)
}

func TestEnsureSchema_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, EnsureSchema(context.Background(), env.db))
}
