package dialect

import (
	"errors"
	"testing"
)

func TestNew_Aliases(t *testing.T) {
	cases := map[string]Name{
		"sqlite":     NameSQLite,
		"SQLite3":    NameSQLite,
		"postgres":   NamePostgres,
		"postgresql": NamePostgres,
		"pgx":        NamePostgres,
		" mysql ":    NameMySQL,
		"oracle":     NameUnknown,
	}
	for in, want := range cases {
		if got := New(in).Name(); got != want {
			t.Fatalf("New(%q).Name() = %q, want %q", in, got, want)
		}
	}
}

func TestRebind_Postgres(t *testing.T) {
	d := New("pgx")
	got := d.Rebind("SELECT * FROM t WHERE a = ? AND b IN (?, ?)")
	want := "SELECT * FROM t WHERE a = $1 AND b IN ($2, $3)"
	if got != want {
		t.Fatalf("Rebind mismatch\nwant: %s\ngot:  %s", want, got)
	}
}

func TestRebind_NoChangeForMySQLSQLite(t *testing.T) {
	orig := "DELETE FROM t WHERE id = ? AND name = ?"
	for _, name := range []string{"mysql", "sqlite", "unknown"} {
		if got := New(name).Rebind(orig); got != orig {
			t.Fatalf("%s: expected no change, got %s", name, got)
		}
	}
}

func TestQuoteIdentifier(t *testing.T) {
	tests := []struct {
		dialect string
		in      string
		want    string
	}{
		{"sqlite", "audit_entries", `"audit_entries"`},
		{"postgres", "public.audit_entries", `"public"."audit_entries"`},
		{"mysql", "audit_entries", "`audit_entries`"},
		{"unknown", "audit_entries", "audit_entries"},
	}
	for _, tt := range tests {
		if got := New(tt.dialect).QuoteIdentifier(tt.in); got != tt.want {
			t.Fatalf("%s: QuoteIdentifier(%q) = %s, want %s", tt.dialect, tt.in, got, tt.want)
		}
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if !New("sqlite").IsUniqueViolation(errors.New("constraint failed: UNIQUE constraint failed: super_heroes.id (1555)")) {
		t.Fatal("sqlite unique violation not detected")
	}
	if !New("pgx").IsUniqueViolation(errors.New(`ERROR: duplicate key value violates unique constraint "super_heroes_pkey" (SQLSTATE 23505)`)) {
		t.Fatal("postgres unique violation not detected")
	}
	if New("sqlite").IsUniqueViolation(nil) {
		t.Fatal("nil error must not be a unique violation")
	}
}
