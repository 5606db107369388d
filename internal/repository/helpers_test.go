package repository

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/iliyamo/auth-session-api/internal/database"
	"github.com/iliyamo/auth-session-api/internal/model"
)

// testDB opens a temporary SQLite database with the auth schema applied.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "auth.db"))
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := database.EnsureSchema(context.Background(), db, "sqlite3"); err != nil {
		t.Fatalf("applying schema: %v", err)
	}
	return db
}

// seedUser inserts a user with a placeholder hash.
func seedUser(t *testing.T, db *sql.DB, email string) model.User {
	t.Helper()

	u, err := NewUserRepo(db).Create(context.Background(), model.NewUser{Email: email, PasswordHash: "$2a$10$hash"})
	if err != nil {
		t.Fatalf("creating user %s: %v", email, err)
	}
	return u
}

func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()

	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("counting %s: %v", table, err)
	}
	return n
}
