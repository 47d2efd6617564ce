package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/scriptd/internal/script"
)

// Transition is one journal entry.
type Transition struct {
	Seq        int64
	ScriptID   script.ID
	State      string
	Detail     string
	RecordedAt time.Time
}

// RecordTransition appends a lifecycle transition. It implements
// engine.Journal and is called from script goroutines.
func (s *Store) RecordTransition(ctx context.Context, id script.ID, state, detail string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transitions (script_id, state, detail, recorded_at)
		VALUES (?, ?, ?, ?)
	`, id.String(), state, detail, s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record transition: %w", err)
	}
	return nil
}

// Transitions returns the journal for one script in seq order.
func (s *Store) Transitions(ctx context.Context, id script.ID) ([]Transition, error) {
	return s.queryTransitions(ctx, `
		SELECT seq, script_id, state, detail, recorded_at FROM transitions
		WHERE script_id = ?
		ORDER BY seq ASC
	`, id.String())
}

// AllTransitions returns the whole journal in seq order.
func (s *Store) AllTransitions(ctx context.Context) ([]Transition, error) {
	return s.queryTransitions(ctx, `
		SELECT seq, script_id, state, detail, recorded_at FROM transitions
		ORDER BY seq ASC
	`)
}

func (s *Store) queryTransitions(ctx context.Context, query string, args ...any) ([]Transition, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	out := []Transition{}
	for rows.Next() {
		var (
			tr       Transition
			rawID    string
			recorded string
		)
		if err := rows.Scan(&tr.Seq, &rawID, &tr.State, &tr.Detail, &recorded); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		if tr.ScriptID, err = script.ParseID(rawID); err != nil {
			return nil, fmt.Errorf("scan transition %d: %w", tr.Seq, err)
		}
		if tr.RecordedAt, err = time.Parse(time.RFC3339Nano, recorded); err != nil {
			return nil, fmt.Errorf("scan transition %d: %w", tr.Seq, err)
		}
		out = append(out, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transitions: %w", err)
	}
	return out, nil
}
