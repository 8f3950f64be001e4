package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vertextoedge/filetransfer/internal/port"
)

// Put stores value under key, replacing any previous value
func (s *Store) Put(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = datetime('now')
	`

	if _, err := s.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}

// Get returns the value stored under key
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return value, true, nil
}

// Delete removes key
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// List returns all entries whose key starts with prefix, ordered by key
func (s *Store) List(ctx context.Context, prefix string) ([]port.Entry, error) {
	// substr keeps the match literal; LIKE would treat % and _ in paths as wildcards
	query := `
		SELECT key, value FROM kv
		WHERE substr(key, 1, ?) = ?
		ORDER BY key ASC
	`

	rows, err := s.db.QueryContext(ctx, query, len([]rune(prefix)), prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
	}
	defer rows.Close()

	var entries []port.Entry
	for rows.Next() {
		var e port.Entry
		if err := rows.Scan(&e.Key, &e.Value); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
