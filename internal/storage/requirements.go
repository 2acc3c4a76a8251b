package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"kinobot/internal/gate"
)

// ListRequirements implements gate.RequirementStore. Rows come back ordered
// by the operator-assigned position.
func (s *Store) ListRequirements(ctx context.Context) ([]gate.Requirement, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, handle, chat_id, private, required, position
		 FROM channel_requirements ORDER BY position, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []gate.Requirement
	for rows.Next() {
		var (
			r                 gate.Requirement
			private, required int
		)
		if err := rows.Scan(&r.ID, &r.Title, &r.Handle, &r.ChatID, &private, &required, &r.Position); err != nil {
			return nil, err
		}
		r.Private = private != 0
		r.Required = required != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// AddRequirement stores one channel requirement. A requirement must carry a
// handle or a chat id; an empty identifier has nothing to probe.
func (s *Store) AddRequirement(ctx context.Context, r gate.Requirement) error {
	if strings.TrimSpace(r.Handle) == "" && r.ChatID == 0 {
		return errors.New("requirement needs a handle or chat id")
	}
	private, required := 0, 0
	if r.Private {
		private = 1
	}
	if r.Required {
		required = 1
	}
	if r.Position <= 0 {
		// append at the end
		var max int
		_ = s.db.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(position), 0) FROM channel_requirements`).Scan(&max)
		r.Position = max + 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO channel_requirements(title, handle, chat_id, private, required, position)
		 VALUES(?,?,?,?,?,?)`,
		r.Title, r.Handle, r.ChatID, private, required, r.Position,
	)
	return err
}

// DeleteRequirement removes the requirement at the given position.
func (s *Store) DeleteRequirement(ctx context.Context, position int) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM channel_requirements WHERE position = ?`, position)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("requirement at position %d: %w", position, ErrNotFound)
	}
	return nil
}
