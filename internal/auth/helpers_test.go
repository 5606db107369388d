package auth

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/auth-session-api/internal/database"
	"github.com/iliyamo/auth-session-api/internal/queue"
	"github.com/iliyamo/auth-session-api/internal/repository"
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

func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()

	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("counting %s: %v", table, err)
	}
	return n
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.AuthEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev queue.AuthEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

type fixture struct {
	db     *sql.DB
	svc    *Service
	events *recordingPublisher
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := testDB(t)
	return newFixtureWithStore(t, db, repository.NewStore(db))
}

func newFixtureWithStore(t *testing.T, db *sql.DB, store repository.Store) fixture {
	t.Helper()
	events := &recordingPublisher{}
	svc := NewService(store, NewHasher(bcrypt.MinCost), testIssuer(), WithEvents(events))
	return fixture{db: db, svc: svc, events: events}
}

var errAttach = errors.New("attach role failed")

// failingRoleStore fails every AttachRole, inside or outside a transaction.
type failingRoleStore struct{ repository.Store }

func (s failingRoleStore) Users() repository.UserStore {
	return failingRoleUsers{s.Store.Users()}
}

func (s failingRoleStore) InTx(ctx context.Context, fn func(repository.Store) error) error {
	return s.Store.InTx(ctx, func(tx repository.Store) error {
		return fn(failingRoleStore{tx})
	})
}

type failingRoleUsers struct{ repository.UserStore }

func (failingRoleUsers) AttachRole(context.Context, uint64, string) error { return errAttach }

func repositoryStore(db *sql.DB) repository.Store { return repository.NewStore(db) }
