package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"cybersentinel/internal/domain"
)

// SubdomainRepository
func (db *DB) ListByRoot(ctx context.Context, root string) ([]domain.Subdomain, error) {
	rows, err := db.Pool.Query(ctx, `
        SELECT id, COALESCE(parent_id, ''), name, risk, dns_type, hosting, ip, status, position, last_scanned_at
        FROM subdomains
        WHERE root = $1
        ORDER BY position, created_at
    `, root)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Subdomain
	for rows.Next() {
		var n domain.Subdomain
		var risk, status string
		if err := rows.Scan(&n.ID, &n.ParentID, &n.Name, &risk, &n.DNS, &n.Hosting, &n.IP, &status, &n.Position, &n.LastScannedAt); err != nil {
			return nil, err
		}
		n.Risk, n.Status = domain.Risk(risk), domain.Status(status)
		out = append(out, n)
	}
	return out, rows.Err()
}

func (db *DB) RootOf(ctx context.Context, id string) (string, error) {
	var root string
	err := db.Pool.QueryRow(ctx, `SELECT root FROM subdomains WHERE id = $1`, id).Scan(&root)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%w: subdomain %s", domain.ErrNotFound, id)
	}
	return root, err
}

func (db *DB) Insert(ctx context.Context, root string, n domain.Subdomain) error {
	var parent *string
	if n.ParentID != "" {
		parent = &n.ParentID
	}
	_, err := db.Pool.Exec(ctx, `
        INSERT INTO subdomains (id, root, parent_id, name, risk, dns_type, hosting, ip, status, position, last_scanned_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
    `, n.ID, root, parent, n.Name, string(n.Risk), n.DNS, n.Hosting, n.IP, string(n.Status), n.Position, n.LastScannedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", domain.ErrDuplicate, n.Name)
	}
	return err
}

// DeleteSubtree removes id and its descendants and closes the position gap
// among the remaining siblings.
func (db *DB) DeleteSubtree(ctx context.Context, id string) (removed []string, err error) {
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()

	var root string
	var parent *string
	var position int
	err = tx.QueryRow(ctx, `SELECT root, parent_id, position FROM subdomains WHERE id = $1 FOR UPDATE`, id).Scan(&root, &parent, &position)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: subdomain %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
        WITH RECURSIVE sub AS (
            SELECT id FROM subdomains WHERE id = $1
            UNION ALL
            SELECT s.id FROM subdomains s JOIN sub ON s.parent_id = sub.id
        )
        DELETE FROM subdomains WHERE id IN (SELECT id FROM sub)
        RETURNING id
    `, id)
	if err != nil {
		return nil, err
	}
	removed, err = pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}

	if _, err = tx.Exec(ctx, `
        UPDATE subdomains SET position = position - 1
        WHERE root = $1 AND parent_id IS NOT DISTINCT FROM $2 AND position > $3
    `, root, parent, position); err != nil {
		return nil, err
	}
	return removed, nil
}

func (db *DB) MarkScanned(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := db.Pool.Exec(ctx, `UPDATE subdomains SET last_scanned_at = $2 WHERE id = ANY($1)`, ids, at)
	return err
}

// ScanRepository
func (db *DB) Create(ctx context.Context, scan domain.Scan) (string, error) {
	var subID *string
	if scan.SubdomainID != "" {
		subID = &scan.SubdomainID
	}
	var scanID string
	err := db.Pool.QueryRow(ctx, `
        INSERT INTO scans (kind, root, subdomain_id, target, status, progress)
        VALUES ($1, $2, $3, $4, 'queued', 0)
        RETURNING id
    `, string(scan.Kind), scan.Root, subID, scan.Target).Scan(&scanID)
	if err != nil {
		return "", err
	}
	// create job row
	_, err = db.Pool.Exec(ctx, `INSERT INTO scan_jobs (scan_id) VALUES ($1)`, scanID)
	return scanID, err
}

const scanColumns = `id::text, kind, root, COALESCE(subdomain_id, ''), target, status, progress, error, queued_at, started_at, finished_at`

func scanRow(row pgx.Row) (domain.Scan, error) {
	var s domain.Scan
	var kind, status string
	err := row.Scan(&s.ID, &kind, &s.Root, &s.SubdomainID, &s.Target, &status, &s.Progress, &s.Error, &s.QueuedAt, &s.StartedAt, &s.FinishedAt)
	s.Kind, s.Status = domain.ScanKind(kind), domain.ScanStatus(status)
	return s, err
}

func (db *DB) Get(ctx context.Context, scanID string) (domain.Scan, error) {
	s, err := scanRow(db.Pool.QueryRow(ctx, `SELECT `+scanColumns+` FROM scans WHERE id::text = $1`, scanID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Scan{}, fmt.Errorf("%w: scan %s", domain.ErrNotFound, scanID)
	}
	return s, err
}

func (db *DB) LatestByRoot(ctx context.Context, root string) (bool, domain.Scan, error) {
	s, err := scanRow(db.Pool.QueryRow(ctx, `
        SELECT `+scanColumns+` FROM scans
        WHERE root = $1
        ORDER BY queued_at DESC
        LIMIT 1
    `, root))
	if errors.Is(err, pgx.ErrNoRows) {
		return false, domain.Scan{}, nil
	}
	if err != nil {
		return false, domain.Scan{}, err
	}
	return true, s, nil
}
