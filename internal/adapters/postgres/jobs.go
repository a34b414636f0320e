package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"cybersentinel/internal/domain"
)

// ClaimNext selects the next queued job using SKIP LOCKED and marks it running.
func (db *DB) ClaimNext(ctx context.Context) (job domain.ScanJob, found bool, err error) {
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return job, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()

	err = tx.QueryRow(ctx, `
        SELECT id::text, scan_id::text FROM scan_jobs
        WHERE status = 'queued'
        ORDER BY queued_at
        FOR UPDATE SKIP LOCKED
        LIMIT 1
    `).Scan(&job.ID, &job.ScanID)
	if errors.Is(err, pgx.ErrNoRows) {
		return job, false, nil
	}
	if err != nil {
		return job, false, err
	}
	if err = startJob(ctx, tx, job.ID, job.ScanID); err != nil {
		return job, false, err
	}
	return job, true, nil
}

// StartJobForScan marks the queued job of a specific scan as running and
// returns the job id.
func (db *DB) StartJobForScan(ctx context.Context, scanID string) (jobID string, err error) {
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()

	err = tx.QueryRow(ctx, `
        SELECT id::text FROM scan_jobs
        WHERE scan_id::text = $1 AND status = 'queued'
        FOR UPDATE SKIP LOCKED
    `, scanID).Scan(&jobID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%w: queued job for scan %s", domain.ErrNotFound, scanID)
	}
	if err != nil {
		return "", err
	}
	if err = startJob(ctx, tx, jobID, scanID); err != nil {
		return "", err
	}
	return jobID, nil
}

func startJob(ctx context.Context, tx pgx.Tx, jobID, scanID string) error {
	if _, err := tx.Exec(ctx, `
        UPDATE scan_jobs SET status='running', started_at=now(), attempts=attempts+1 WHERE id::text=$1
    `, jobID); err != nil {
		return err
	}
	_, err := tx.Exec(ctx, `
        UPDATE scans SET status='running', started_at=COALESCE(started_at, now()) WHERE id::text=$1
    `, scanID)
	return err
}

func (db *DB) UpdateScanProgress(ctx context.Context, scanID string, progress float64) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	_, err := db.Pool.Exec(ctx, `UPDATE scans SET progress=$2 WHERE id::text=$1`, scanID, progress)
	return err
}

func (db *DB) MarkCompleted(ctx context.Context, jobID string) error {
	return db.finish(ctx, jobID, domain.ScanCompleted, "")
}

func (db *DB) MarkFailed(ctx context.Context, jobID string, reason string) error {
	return db.finish(ctx, jobID, domain.ScanFailed, reason)
}

// finish moves a job and its scan to a terminal status atomically.
func (db *DB) finish(ctx context.Context, jobID string, status domain.ScanStatus, reason string) (err error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()

	var scanID string
	if err = tx.QueryRow(ctx, `SELECT scan_id::text FROM scan_jobs WHERE id::text=$1`, jobID).Scan(&scanID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: job %s", domain.ErrNotFound, jobID)
		}
		return err
	}
	if _, err = tx.Exec(ctx, `
        UPDATE scan_jobs SET status=$2, error=$3, finished_at=now() WHERE id::text=$1
    `, jobID, string(status), reason); err != nil {
		return err
	}
	if _, err = tx.Exec(ctx, `
        UPDATE scans
        SET status=$2, error=$3, finished_at=now(),
            progress = CASE WHEN $2 = 'completed' THEN 1 ELSE progress END
        WHERE id::text=$1
    `, scanID, string(status), reason); err != nil {
		return err
	}
	return nil
}
