package sequence

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Queryer abstracts *pgxpool.Pool and pgx.Tx so the allocation statement
// can run inside a caller-owned transaction (batch issuance) or alone.
type Queryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository provides PostgreSQL backed persistence for serial_sequences.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetOrCreate returns the counter row for key, inserting a zero row first
// if none exists.
func (r *Repository) GetOrCreate(ctx context.Context, key Key) (SerialSequence, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO serial_sequences (model_code, supplier_code, year_code, month_code, last_serial, total_generated, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, 0, NOW(), NOW())
		ON CONFLICT (model_code, supplier_code, year_code, month_code) DO NOTHING`,
		key.ModelCode, key.SupplierCode, key.YearCode, key.MonthCode)
	if err != nil {
		return SerialSequence{}, fmt.Errorf("sequence: get or create: %w", err)
	}
	return r.Get(ctx, key)
}

// Get fetches the counter row for key.
func (r *Repository) Get(ctx context.Context, key Key) (SerialSequence, error) {
	return scanSequence(r.pool.QueryRow(ctx, `
		SELECT model_code, supplier_code, year_code, month_code, last_serial, total_generated, created_at, updated_at
		FROM serial_sequences
		WHERE model_code = $1 AND supplier_code = $2 AND year_code = $3 AND month_code = $4`,
		key.ModelCode, key.SupplierCode, key.YearCode, key.MonthCode))
}

// Allocate reserves a contiguous block and returns the starting serial.
func (r *Repository) Allocate(ctx context.Context, key Key, count int64) (int64, error) {
	return AllocateBlock(ctx, r.pool, key, count)
}

// AllocateBlock advances the counter by count in one atomic statement and
// returns the first serial of the reserved block. The upsert takes a row
// lock, so concurrent callers for the same key are serialized while other
// keys proceed untouched.
func AllocateBlock(ctx context.Context, q Queryer, key Key, count int64) (int64, error) {
	if count <= 0 {
		return 0, fmt.Errorf("allocate count %d: %w", count, ErrValidation)
	}
	var last int64
	err := q.QueryRow(ctx, `
		INSERT INTO serial_sequences (model_code, supplier_code, year_code, month_code, last_serial, total_generated, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5, NOW(), NOW())
		ON CONFLICT (model_code, supplier_code, year_code, month_code)
		DO UPDATE SET
			last_serial = serial_sequences.last_serial + $5,
			total_generated = serial_sequences.total_generated + $5,
			updated_at = NOW()
		RETURNING last_serial`,
		key.ModelCode, key.SupplierCode, key.YearCode, key.MonthCode, count).Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("sequence: allocate: %w", err)
	}
	return last - count + 1, nil
}

// SetLastSerial rewrites the counter. Guarded by Service.Reset.
func (r *Repository) SetLastSerial(ctx context.Context, key Key, value int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE serial_sequences
		SET last_serial = $5, updated_at = NOW()
		WHERE model_code = $1 AND supplier_code = $2 AND year_code = $3 AND month_code = $4`,
		key.ModelCode, key.SupplierCode, key.YearCode, key.MonthCode, value)
	if err != nil {
		return fmt.Errorf("sequence: set last serial: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByModel returns every counter row for a model code.
func (r *Repository) ListByModel(ctx context.Context, modelCode string) ([]SerialSequence, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT model_code, supplier_code, year_code, month_code, last_serial, total_generated, created_at, updated_at
		FROM serial_sequences
		WHERE model_code = $1
		ORDER BY year_code, month_code, supplier_code`,
		modelCode)
	if err != nil {
		return nil, fmt.Errorf("sequence: list by model: %w", err)
	}
	defer rows.Close()

	var sequences []SerialSequence
	for rows.Next() {
		var seq SerialSequence
		if err := rows.Scan(&seq.ModelCode, &seq.SupplierCode, &seq.YearCode, &seq.MonthCode,
			&seq.LastSerial, &seq.TotalGenerated, &seq.CreatedAt, &seq.UpdatedAt); err != nil {
			return nil, err
		}
		sequences = append(sequences, seq)
	}
	return sequences, rows.Err()
}

func scanSequence(row pgx.Row) (SerialSequence, error) {
	var seq SerialSequence
	err := row.Scan(&seq.ModelCode, &seq.SupplierCode, &seq.YearCode, &seq.MonthCode,
		&seq.LastSerial, &seq.TotalGenerated, &seq.CreatedAt, &seq.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SerialSequence{}, ErrNotFound
		}
		return SerialSequence{}, err
	}
	return seq, nil
}
