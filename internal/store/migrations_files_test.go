package store

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

var repoMigrationsDir = filepath.Join("..", "..", "db", "migrations")

func migrationStems(t *testing.T, suffix string) []string {
	t.Helper()
	files, err := migrationFiles(repoMigrationsDir, suffix)
	if err != nil {
		t.Fatalf("list %s migrations: %v", suffix, err)
	}
	stems := make([]string, 0, len(files))
	for _, file := range files {
		stems = append(stems, strings.TrimSuffix(filepath.Base(file), suffix))
	}
	return stems
}

func TestMigrationVersions(t *testing.T) {
	want := []string{"0001_conflicts", "0002_conflict_purge"}
	for _, suffix := range []string{".up.sql", ".down.sql"} {
		got := migrationStems(t, suffix)
		if strings.Join(got, ",") != strings.Join(want, ",") {
			t.Fatalf("unexpected %s migrations %v, want %v", suffix, got, want)
		}
	}
}

var (
	createdObject = regexp.MustCompile(`(?i)CREATE\s+(TABLE|INDEX)\s+IF\s+NOT\s+EXISTS\s+(\w+)`)
	droppedObject = regexp.MustCompile(`(?i)DROP\s+(TABLE|INDEX)\s+IF\s+EXISTS\s+(\w+)`)
)

func TestDownMigrationsDropWhatUpCreates(t *testing.T) {
	for _, stem := range migrationStems(t, ".up.sql") {
		t.Run(stem, func(t *testing.T) {
			up, err := os.ReadFile(filepath.Join(repoMigrationsDir, stem+".up.sql"))
			if err != nil {
				t.Fatalf("read up migration: %v", err)
			}
			down, err := os.ReadFile(filepath.Join(repoMigrationsDir, stem+".down.sql"))
			if err != nil {
				t.Fatalf("read down migration: %v", err)
			}

			dropped := map[string]bool{}
			for _, m := range droppedObject.FindAllStringSubmatch(string(down), -1) {
				dropped[strings.ToUpper(m[1])+" "+m[2]] = true
			}
			created := createdObject.FindAllStringSubmatch(string(up), -1)
			if len(created) == 0 {
				t.Fatal("up migration creates nothing")
			}
			for _, m := range created {
				object := strings.ToUpper(m[1]) + " " + m[2]
				if !dropped[object] {
					t.Errorf("down migration does not drop %s", object)
				}
			}
		})
	}
}

func TestPurgeMigrationIndexesResolvedConflicts(t *testing.T) {
	up, err := os.ReadFile(filepath.Join(repoMigrationsDir, "0002_conflict_purge.up.sql"))
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	if !strings.Contains(string(up), "ON conflicts (resolved_at) WHERE status = 'resolved'") {
		t.Fatalf("expected a partial index on resolved_at, got %s", up)
	}
}
