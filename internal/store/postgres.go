package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"docconsole/internal/conflict"
)

// PostgresStore persists conflict items so they can be resumed after a reload or a
// gateway restart.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) SaveConflict(ctx context.Context, item conflict.Item) error {
	data, err := json.Marshal(item.Data)
	if err != nil {
		return fmt.Errorf("marshal conflict data: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conflicts (id, project_id, node_id, title, status, conflict_data, base_degraded, attempts, created_at, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			status = EXCLUDED.status,
			conflict_data = EXCLUDED.conflict_data,
			base_degraded = EXCLUDED.base_degraded,
			attempts = EXCLUDED.attempts,
			resolved_at = EXCLUDED.resolved_at
	`, item.ID, item.ProjectID, item.NodeID, item.Title, string(item.Status), data,
		item.BaseDegraded, item.Attempts, item.CreatedAt, nullTime(item.ResolvedAt))
	if err != nil {
		return fmt.Errorf("upsert conflict: %w", err)
	}
	return nil
}

const conflictColumns = `id, project_id, node_id, title, status, conflict_data, base_degraded, attempts, created_at, resolved_at`

func (s *PostgresStore) GetConflict(ctx context.Context, id string) (conflict.Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+conflictColumns+` FROM conflicts WHERE id=$1`, id)
	item, err := scanConflict(row)
	if errors.Is(err, sql.ErrNoRows) {
		return conflict.Item{}, conflict.ErrNotFound
	}
	if err != nil {
		return conflict.Item{}, fmt.Errorf("get conflict: %w", err)
	}
	return item, nil
}

// ListConflicts lists a project's conflicts oldest first; an empty status lists all.
func (s *PostgresStore) ListConflicts(ctx context.Context, project string, status conflict.Status) ([]conflict.Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+conflictColumns+`
		FROM conflicts
		WHERE project_id = $1 AND ($2::text = '' OR status = $2::text)
		ORDER BY created_at ASC, id ASC
	`, project, string(status))
	if err != nil {
		return nil, fmt.Errorf("list conflicts: %w", err)
	}
	defer rows.Close()

	items := []conflict.Item{}
	for rows.Next() {
		item, err := scanConflict(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conflict: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conflicts: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) DeleteConflict(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM conflicts WHERE id=$1`, id); err != nil {
		return fmt.Errorf("delete conflict: %w", err)
	}
	return nil
}

// PurgeResolved removes resolved conflicts older than cutoff.
func (s *PostgresStore) PurgeResolved(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM conflicts WHERE status = 'resolved' AND resolved_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge resolved conflicts: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConflict(row rowScanner) (conflict.Item, error) {
	var (
		item       conflict.Item
		status     string
		data       []byte
		resolvedAt sql.NullTime
	)
	if err := row.Scan(&item.ID, &item.ProjectID, &item.NodeID, &item.Title, &status, &data,
		&item.BaseDegraded, &item.Attempts, &item.CreatedAt, &resolvedAt); err != nil {
		return conflict.Item{}, err
	}
	item.Status = conflict.Status(status)
	if err := json.Unmarshal(data, &item.Data); err != nil {
		return conflict.Item{}, fmt.Errorf("decode conflict data: %w", err)
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time.UTC()
		item.ResolvedAt = &t
	}
	item.CreatedAt = item.CreatedAt.UTC()
	return item, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
