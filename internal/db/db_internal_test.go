package db

import (
	"context"
	"path/filepath"
	"testing"
)

func TestMigrationURL(t *testing.T) {
	tests := map[string]string{
		"postgres://u:p@localhost:5432/waitlist":   "pgx5://u:p@localhost:5432/waitlist",
		"postgresql://u:p@localhost:5432/waitlist": "pgx5://u:p@localhost:5432/waitlist",
		"u:p@localhost/waitlist":                   "pgx5://u:p@localhost/waitlist",
	}
	for in, want := range tests {
		if got := migrationURL(in); got != want {
			t.Errorf("migrationURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestOpenSQLiteIsRepeatable(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "waitlist.db")

	for i := 0; i < 2; i++ {
		d, err := OpenSQLite(ctx, path)
		if err != nil {
			t.Fatalf("open #%d: %v", i+1, err)
		}
		var n int
		if err := d.QueryRowContext(ctx, "SELECT COUNT(*) FROM members").Scan(&n); err != nil {
			t.Fatalf("query members: %v", err)
		}
		_ = d.Close()
	}
}
