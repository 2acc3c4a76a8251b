package storage

import (
	"context"
	"time"
)

// EnsureRecipient registers a recipient on first contact. Existing rows are
// left untouched; recipients are never deleted so history stays usable for
// statistics.
func (s *Store) EnsureRecipient(ctx context.Context, tgID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO recipients(tg_id, joined_at, active) VALUES(?,?,1)
		 ON CONFLICT(tg_id) DO NOTHING`,
		tgID, fmtTime(time.Now()),
	)
	return err
}

// SetRecipientActive flips the liveness flag (for example after the
// transport reports the recipient blocked the bot).
func (s *Store) SetRecipientActive(ctx context.Context, tgID int64, active bool) error {
	v := 0
	if active {
		v = 1
	}
	_, err := s.db.ExecContext(ctx, `UPDATE recipients SET active = ? WHERE tg_id = ?`, v, tgID)
	return err
}

// ListRecipients returns every active recipient id. This is the broadcast
// engine's directory snapshot source.
func (s *Store) ListRecipients(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT tg_id FROM recipients WHERE active = 1 ORDER BY tg_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// RecipientStats summarizes registrations for the operator stats view.
type RecipientStats struct {
	Total      int
	Today      int
	Week       int
	Month      int
	ViewsToday int
}

func (s *Store) RecipientStats(ctx context.Context) (RecipientStats, error) {
	var st RecipientStats
	now := time.Now().UTC()
	dayStart := now.Truncate(24 * time.Hour)

	count := func(q string, args ...any) (int, error) {
		var n int
		err := s.db.QueryRowContext(ctx, q, args...).Scan(&n)
		return n, err
	}

	var err error
	if st.Total, err = count(`SELECT COUNT(*) FROM recipients`); err != nil {
		return st, err
	}
	if st.Today, err = count(`SELECT COUNT(*) FROM recipients WHERE joined_at >= ?`, fmtTime(dayStart)); err != nil {
		return st, err
	}
	if st.Week, err = count(`SELECT COUNT(*) FROM recipients WHERE joined_at >= ?`, fmtTime(now.AddDate(0, 0, -7))); err != nil {
		return st, err
	}
	if st.Month, err = count(`SELECT COUNT(*) FROM recipients WHERE joined_at >= ?`, fmtTime(now.AddDate(0, 0, -30))); err != nil {
		return st, err
	}
	if st.ViewsToday, err = count(`SELECT COUNT(*) FROM view_log WHERE viewed_at >= ?`, fmtTime(dayStart)); err != nil {
		return st, err
	}
	return st, nil
}
