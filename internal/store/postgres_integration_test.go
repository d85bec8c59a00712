package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"docconsole/internal/conflict"

	"github.com/jackc/pgx/v5/pgconn"
)

func getTestDatabaseURL(t *testing.T) string {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("DOCCONSOLE_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("DOCCONSOLE_TEST_DATABASE_URL is not set")
	}
	return dsn
}

func openMigrated(t *testing.T) *PostgresStore {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	db, err := Open(ctx, getTestDatabaseURL(t))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, err := ApplyMigrations(ctx, db, filepath.Join("..", "..", "db", "migrations")); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM conflicts WHERE project_id LIKE 'it-%'`); err != nil {
		t.Fatalf("clean conflicts: %v", err)
	}
	return NewPostgresStore(db)
}

func TestPostgresConflictLifecycle(t *testing.T) {
	s := openMigrated(t)
	ctx := context.Background()

	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	item := conflict.Item{
		ID:        conflict.ItemID("doc1", 5, 6),
		ProjectID: "it-p1",
		NodeID:    "doc1",
		Title:     "Architecture",
		Status:    conflict.StatusUnresolved,
		Data: conflict.Data{
			BaseVersion:     5,
			ServerVersion:   6,
			ConflictContent: conflict.Content{Base: "base", Current: "theirs", Incoming: "mine"},
		},
		CreatedAt: created,
	}
	if err := s.SaveConflict(ctx, item); err != nil {
		t.Fatalf("SaveConflict failed: %v", err)
	}

	got, err := s.GetConflict(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetConflict failed: %v", err)
	}
	if got.Data != item.Data || got.Title != "Architecture" || !got.CreatedAt.Equal(created) {
		t.Fatalf("unexpected conflict %+v", got)
	}

	open, err := s.ListConflicts(ctx, "it-p1", conflict.StatusUnresolved)
	if err != nil || len(open) != 1 {
		t.Fatalf("expected one open conflict, got %v (err=%v)", open, err)
	}

	resolvedAt := created.Add(time.Minute)
	got.Status = conflict.StatusResolved
	got.ResolvedAt = &resolvedAt
	if err := s.SaveConflict(ctx, got); err != nil {
		t.Fatalf("resolve SaveConflict failed: %v", err)
	}
	open, _ = s.ListConflicts(ctx, "it-p1", conflict.StatusUnresolved)
	if len(open) != 0 {
		t.Fatalf("expected no open conflicts, got %v", open)
	}
	all, _ := s.ListConflicts(ctx, "it-p1", "")
	if len(all) != 1 || all[0].ResolvedAt == nil {
		t.Fatalf("expected resolved conflict in full list, got %v", all)
	}

	n, err := s.PurgeResolved(ctx, resolvedAt.Add(time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("expected one purged conflict, got %d (err=%v)", n, err)
	}
	if _, err := s.GetConflict(ctx, item.ID); !errors.Is(err, conflict.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after purge, got %v", err)
	}
}

func TestPostgresConflictStatusIsConstrained(t *testing.T) {
	s := openMigrated(t)
	ctx := context.Background()

	err := s.SaveConflict(ctx, conflict.Item{
		ID:        "doc1:1:2",
		ProjectID: "it-p2",
		NodeID:    "doc1",
		Status:    "abandoned",
		CreatedAt: time.Now(),
	})
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		t.Fatalf("expected postgres error, got %v", err)
	}
	if pgErr.Code != "23514" {
		t.Fatalf("expected check violation, got %s", pgErr.Code)
	}
}
