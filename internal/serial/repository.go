package serial

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/trackline-erp/trackline/internal/sequence"
)

// Repository provides PostgreSQL backed persistence for po_serials.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in a repeatable-read transaction. The allocator
// statement and the serial inserts share this transaction, so a failed
// insert rolls the counter advance back too.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	if err := fn(ctx, &txRepo{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func (tx *txRepo) AllocateSequence(ctx context.Context, key sequence.Key, count int64) (int64, error) {
	return sequence.AllocateBlock(ctx, tx.tx, key, count)
}

func (tx *txRepo) InsertSerials(ctx context.Context, rows []POSerial) error {
	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(`
			INSERT INTO po_serials (barcode, serial_no, model_code, item_type, po_ref, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`,
			row.Barcode, row.SerialNo, row.ModelCode, row.ItemType, row.PORef, row.Status, row.CreatedAt)
	}
	results := tx.tx.SendBatch(ctx, batch)
	defer results.Close()
	for range rows {
		if _, err := results.Exec(); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return ErrDuplicate
			}
			return fmt.Errorf("serial: insert batch: %w", err)
		}
	}
	return nil
}

const serialColumns = `id, barcode, serial_no, model_code, item_type, po_ref, status,
	COALESCE(grn_id, 0), COALESCE(grn_item_id, 0), COALESCE(received_by, 0),
	received_at, warranty_start, warranty_end,
	created_at, updated_at`

// GetByBarcode fetches one issued serial.
func (r *Repository) GetByBarcode(ctx context.Context, code string) (POSerial, error) {
	return scanSerial(r.pool.QueryRow(ctx, `SELECT `+serialColumns+` FROM po_serials WHERE barcode = $1`, code))
}

// ListByPO returns a PO's serials in issuance order.
func (r *Repository) ListByPO(ctx context.Context, poRef string) ([]POSerial, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+serialColumns+` FROM po_serials WHERE po_ref = $1 ORDER BY serial_no`, poRef)
	if err != nil {
		return nil, fmt.Errorf("serial: list by po: %w", err)
	}
	defer rows.Close()

	var serials []POSerial
	for rows.Next() {
		row, err := scanSerial(rows)
		if err != nil {
			return nil, err
		}
		serials = append(serials, row)
	}
	return serials, rows.Err()
}

// CountsByPO tallies a PO's serials per state in one query.
func (r *Repository) CountsByPO(ctx context.Context, poRef string) (StatusCounts, error) {
	var counts StatusCounts
	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'GENERATED'),
			COUNT(*) FILTER (WHERE status = 'SENT_TO_VENDOR'),
			COUNT(*) FILTER (WHERE status = 'RECEIVED'),
			COUNT(*) FILTER (WHERE status = 'REJECTED'),
			COUNT(*) FILTER (WHERE status = 'CONSUMED'),
			COUNT(*)
		FROM po_serials WHERE po_ref = $1`, poRef).
		Scan(&counts.Generated, &counts.SentToVendor, &counts.Received,
			&counts.Rejected, &counts.Consumed, &counts.Total)
	if err != nil {
		return StatusCounts{}, fmt.Errorf("serial: counts by po: %w", err)
	}
	return counts, nil
}

// DashboardCounts aggregates global issuance activity.
func (r *Repository) DashboardCounts(ctx context.Context, now time.Time) (DashboardCounts, error) {
	var counts DashboardCounts
	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'SENT_TO_VENDOR'),
			COUNT(*) FILTER (WHERE status IN ('RECEIVED', 'CONSUMED')),
			COUNT(*) FILTER (WHERE status = 'RECEIVED' AND received_at >= $1),
			COUNT(*) FILTER (WHERE status = 'REJECTED'),
			COUNT(DISTINCT po_ref) FILTER (WHERE status IN ('GENERATED', 'SENT_TO_VENDOR'))
		FROM po_serials`, now.Truncate(24*time.Hour)).
		Scan(&counts.IssuedTotal, &counts.InTransit, &counts.ReceivedTotal,
			&counts.ReceivedToday, &counts.RejectedTotal, &counts.OpenPOCount)
	if err != nil {
		return DashboardCounts{}, fmt.Errorf("serial: dashboard counts: %w", err)
	}
	return counts, nil
}

// MarkSentToVendor bulk-updates a PO's GENERATED rows and returns the
// number touched. Rows past GENERATED are untouched.
func (r *Repository) MarkSentToVendor(ctx context.Context, poRef string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE po_serials SET status = $2, updated_at = NOW()
		WHERE po_ref = $1 AND status = $3`,
		poRef, StatusSentToVendor, StatusGenerated)
	if err != nil {
		return 0, fmt.Errorf("serial: mark sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// distinguish an unknown PO from an already-dispatched one
		var n int64
		if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM po_serials WHERE po_ref = $1`, poRef).Scan(&n); err != nil {
			return 0, err
		}
		if n == 0 {
			return 0, ErrNotFound
		}
	}
	return tag.RowsAffected(), nil
}

// TransitionStatus conditionally moves one row between states. The WHERE
// clause carries the expected current state, so a concurrent transition
// loses cleanly instead of double-applying.
func (r *Repository) TransitionStatus(ctx context.Context, code string, from, to Status) (POSerial, error) {
	row, err := scanSerial(r.pool.QueryRow(ctx, `
		UPDATE po_serials SET status = $3, updated_at = NOW()
		WHERE barcode = $1 AND status = $2
		RETURNING `+serialColumns, code, from, to))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return r.explainTransitionFailure(ctx, code, from, to)
		}
		return POSerial{}, err
	}
	return row, nil
}

// MarkReceived stamps GRN linkage and the warranty window while moving the
// row to RECEIVED. Same conditional-update shape as TransitionStatus.
func (r *Repository) MarkReceived(ctx context.Context, code string, grnID, grnItemID, receivedBy int64, receivedAt, warrantyStart, warrantyEnd time.Time) (POSerial, error) {
	var grnItem pgtype.Int8
	if grnItemID != 0 {
		grnItem = pgtype.Int8{Int64: grnItemID, Valid: true}
	}
	row, err := scanSerial(r.pool.QueryRow(ctx, `
		UPDATE po_serials
		SET status = $3, grn_id = $4, grn_item_id = $5, received_by = $6,
			received_at = $7, warranty_start = $8, warranty_end = $9, updated_at = NOW()
		WHERE barcode = $1 AND status = $2
		RETURNING `+serialColumns,
		code, StatusSentToVendor, StatusReceived,
		grnID, grnItem, receivedBy, receivedAt, warrantyStart, warrantyEnd))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return r.explainTransitionFailure(ctx, code, StatusSentToVendor, StatusReceived)
		}
		return POSerial{}, err
	}
	return row, nil
}

func (r *Repository) explainTransitionFailure(ctx context.Context, code string, from, to Status) (POSerial, error) {
	current, err := r.GetByBarcode(ctx, code)
	if err != nil {
		return POSerial{}, err
	}
	return POSerial{}, fmt.Errorf("barcode %s in state %s, expected %s before %s: %w",
		code, current.Status, from, to, ErrInvalidState)
}

func scanSerial(row pgx.Row) (POSerial, error) {
	var p POSerial
	var receivedAt, warrantyStart, warrantyEnd pgtype.Timestamptz
	err := row.Scan(&p.ID, &p.Barcode, &p.SerialNo, &p.ModelCode, &p.ItemType, &p.PORef, &p.Status,
		&p.GRNID, &p.GRNItemID, &p.ReceivedBy, &receivedAt, &warrantyStart, &warrantyEnd,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return POSerial{}, ErrNotFound
		}
		return POSerial{}, err
	}
	// NULL timestamps stay zero-valued
	p.ReceivedAt = receivedAt.Time
	p.WarrantyStart = warrantyStart.Time
	p.WarrantyEnd = warrantyEnd.Time
	return p, nil
}
