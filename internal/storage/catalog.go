package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Entry is one catalog item, addressed by its short code.
type Entry struct {
	ID          int64
	Code        string
	Title       string
	Description string
	FileID      string
}

// Part is one piece of a multi-part entry.
type Part struct {
	ID     int64
	Name   string
	FileID string
}

// AddEntry creates a catalog entry. Codes are unique.
func (s *Store) AddEntry(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO catalog(code, title, description, file_id) VALUES(?,?,?,?)`,
		e.Code, e.Title, e.Description, nullStr(e.FileID),
	)
	return err
}

// GetEntry looks an entry up by code.
func (s *Store) GetEntry(ctx context.Context, code string) (Entry, error) {
	var (
		e      Entry
		fileID sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, code, title, description, file_id FROM catalog WHERE code = ?`, code,
	).Scan(&e.ID, &e.Code, &e.Title, &e.Description, &fileID)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("entry %q: %w", code, ErrNotFound)
	}
	if err != nil {
		return Entry{}, err
	}
	e.FileID = fileID.String
	return e, nil
}

// DeleteEntry removes an entry and, via the foreign key, its parts.
func (s *Store) DeleteEntry(ctx context.Context, code string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM catalog WHERE code = ?`, code)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("entry %q: %w", code, ErrNotFound)
	}
	return nil
}

// AddPart attaches a named part to an existing entry.
func (s *Store) AddPart(ctx context.Context, code, name, fileID string) error {
	entry, err := s.GetEntry(ctx, code)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO catalog_parts(entry_id, name, file_id) VALUES(?,?,?)`,
		entry.ID, name, fileID,
	)
	return err
}

// ListParts returns an entry's parts ordered by name.
func (s *Store) ListParts(ctx context.Context, code string) ([]Part, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT p.id, p.name, p.file_id
		 FROM catalog_parts p JOIN catalog c ON c.id = p.entry_id
		 WHERE c.code = ? ORDER BY p.name`, code)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Part
	for rows.Next() {
		var p Part
		if err := rows.Scan(&p.ID, &p.Name, &p.FileID); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeletePart removes one part by id.
func (s *Store) DeletePart(ctx context.Context, partID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM catalog_parts WHERE id = ?`, partID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("part %d: %w", partID, ErrNotFound)
	}
	return nil
}

// ListEntries pages through the catalog ordered by title.
func (s *Store) ListEntries(ctx context.Context, offset, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 30
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, code, title, description, file_id FROM catalog
		 ORDER BY title LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e      Entry
			fileID sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Code, &e.Title, &e.Description, &fileID); err != nil {
			return nil, err
		}
		e.FileID = fileID.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) CountEntries(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM catalog`).Scan(&n)
	return n, err
}

// LogView records one view for the statistics queries.
func (s *Store) LogView(ctx context.Context, code string, tgID int64, partName string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO view_log(code, tg_id, part_name, viewed_at) VALUES(?,?,?,?)`,
		code, tgID, nullStr(partName), fmtTime(time.Now()),
	)
	return err
}

// EntryViews pairs an entry with its view count.
type EntryViews struct {
	Code  string
	Title string
	Views int
}

// TopEntries returns the most viewed entries, falling back to the raw code
// when the entry has since been deleted.
func (s *Store) TopEntries(ctx context.Context, limit int) ([]EntryViews, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT v.code, COALESCE(c.title, v.code), COUNT(v.id) AS views
		 FROM view_log v LEFT JOIN catalog c ON c.code = v.code
		 GROUP BY v.code, c.title
		 ORDER BY views DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EntryViews
	for rows.Next() {
		var ev EntryViews
		if err := rows.Scan(&ev.Code, &ev.Title, &ev.Views); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
