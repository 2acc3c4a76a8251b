package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"kinobot/internal/access"
)

// LoadPrincipal implements access.PrincipalStore. The capabilities column
// is the CSV shape; access.FromCSV also understands legacy alias names and
// the "ALL" marker, so rows written by any previous deployment decode.
func (s *Store) LoadPrincipal(ctx context.Context, tgID int64) (access.Principal, error) {
	var (
		fullAccess int
		caps       string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT full_access, capabilities FROM principals WHERE tg_id = ?`, tgID,
	).Scan(&fullAccess, &caps)
	if errors.Is(err, sql.ErrNoRows) {
		return access.Principal{}, fmt.Errorf("principal %d: %w", tgID, access.ErrNotFound)
	}
	if err != nil {
		return access.Principal{}, err
	}

	p := access.FromCSV(tgID, caps)
	if fullAccess != 0 {
		p.FullAccess = true
	}
	return p, nil
}

// SavePrincipal inserts or replaces a principal record, normalizing the
// capability set back into the CSV column.
func (s *Store) SavePrincipal(ctx context.Context, p access.Principal) error {
	full := 0
	if p.FullAccess {
		full = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO principals(tg_id, full_access, capabilities) VALUES(?,?,?)
		 ON CONFLICT(tg_id) DO UPDATE SET full_access=excluded.full_access, capabilities=excluded.capabilities`,
		p.ID, full, p.Caps.String(),
	)
	return err
}

func (s *Store) DeletePrincipal(ctx context.Context, tgID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM principals WHERE tg_id = ?`, tgID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("principal %d: %w", tgID, access.ErrNotFound)
	}
	return nil
}

// ListPrincipals returns all principal records ordered by id.
func (s *Store) ListPrincipals(ctx context.Context) ([]access.Principal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tg_id, full_access, capabilities FROM principals ORDER BY tg_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []access.Principal
	for rows.Next() {
		var (
			id         int64
			fullAccess int
			caps       string
		)
		if err := rows.Scan(&id, &fullAccess, &caps); err != nil {
			return nil, err
		}
		p := access.FromCSV(id, caps)
		if fullAccess != 0 {
			p.FullAccess = true
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
