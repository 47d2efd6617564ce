package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/scriptd/internal/script"
)

// ErrNotFound is returned when a script identity has no saved source.
var ErrNotFound = errors.New("store: not found")

// Script is a saved script source.
type Script struct {
	ID     script.ID
	Name   string
	Source string

	// CreatedSeq orders scripts by first save. Re-saving keeps it.
	CreatedSeq int64
}

// SaveScript stores the source for id, replacing any earlier source under
// the same identity.
func (s *Store) SaveScript(ctx context.Context, id script.ID, name, source string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scripts (id, name, source, created_seq)
		VALUES (?, ?, ?, (SELECT COALESCE(MAX(created_seq), 0) + 1 FROM scripts))
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, source = excluded.source
	`, id.String(), name, source)
	if err != nil {
		return fmt.Errorf("save script %s: %w", id, err)
	}
	return nil
}

// LoadScript returns the saved source for id, or ErrNotFound.
func (s *Store) LoadScript(ctx context.Context, id script.ID) (Script, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, source, created_seq FROM scripts WHERE id = ?
	`, id.String())

	sc, err := scanScript(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Script{}, fmt.Errorf("load script %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Script{}, fmt.Errorf("load script %s: %w", id, err)
	}
	return sc, nil
}

// ListScripts returns every saved script ordered by name, then id.
// Returns an empty slice, not nil, when there are none.
func (s *Store) ListScripts(ctx context.Context) ([]Script, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, source, created_seq FROM scripts
		ORDER BY name ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query scripts: %w", err)
	}
	defer rows.Close()

	scripts := []Script{}
	for rows.Next() {
		sc, err := scanScript(rows)
		if err != nil {
			return nil, err
		}
		scripts = append(scripts, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scripts: %w", err)
	}
	return scripts, nil
}

// DeleteScript removes the saved source for id. Its transitions stay.
func (s *Store) DeleteScript(ctx context.Context, id script.ID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM scripts WHERE id = ?`, id.String()); err != nil {
		return fmt.Errorf("delete script %s: %w", id, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanScript(row scanner) (Script, error) {
	var (
		sc  Script
		raw string
	)
	if err := row.Scan(&raw, &sc.Name, &sc.Source, &sc.CreatedSeq); err != nil {
		return Script{}, err
	}
	id, err := script.ParseID(raw)
	if err != nil {
		return Script{}, fmt.Errorf("scan script: %w", err)
	}
	sc.ID = id
	return sc, nil
}
