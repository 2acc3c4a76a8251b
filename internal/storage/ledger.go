package storage

import (
	"context"
	"time"

	"kinobot/internal/broadcast"
)

// RecordJob implements broadcast.Ledger.
func (s *Store) RecordJob(ctx context.Context, job broadcast.Job) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO broadcast_jobs(id, initiator, kind, total, sent, failed, started_at, finished_at)
		 VALUES(?,?,?,?,?,?,?,?)`,
		job.ID, job.Initiator, job.Kind.String(),
		job.Total, job.Sent, job.Failed,
		fmtTime(job.StartedAt), fmtTime(job.FinishedAt),
	)
	return err
}

// ListJobs returns the most recent broadcast jobs, newest first.
func (s *Store) ListJobs(ctx context.Context, limit int) ([]broadcast.Job, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, initiator, kind, total, sent, failed, started_at, finished_at
		 FROM broadcast_jobs ORDER BY finished_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []broadcast.Job
	for rows.Next() {
		var (
			j                    broadcast.Job
			kind, started, ended string
		)
		if err := rows.Scan(&j.ID, &j.Initiator, &kind, &j.Total, &j.Sent, &j.Failed, &started, &ended); err != nil {
			return nil, err
		}
		j.Kind = parseKind(kind)
		j.State = broadcast.StateCompleted
		j.StartedAt = parseTime(started)
		j.FinishedAt = parseTime(ended)
		out = append(out, j)
	}
	return out, rows.Err()
}

// PruneJobs deletes ledger rows finished before the cutoff and reports how
// many were removed.
func (s *Store) PruneJobs(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM broadcast_jobs WHERE finished_at < ?`, fmtTime(before))
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func parseKind(s string) broadcast.PayloadKind {
	switch s {
	case "photo":
		return broadcast.KindPhoto
	case "video":
		return broadcast.KindVideo
	case "document":
		return broadcast.KindDocument
	default:
		return broadcast.KindText
	}
}
