package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence.
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

// WithTx wraps callback in a repeatable-read transaction.
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

const supplierCodeColumns = `id, code, name, COALESCE(vendor_id, 0), description, active, created_at, updated_at`

// GetSupplierCode fetches a supplier code row.
func (r *Repository) GetSupplierCode(ctx context.Context, code string) (SupplierCode, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+supplierCodeColumns+` FROM supplier_codes WHERE code = $1`, code)
	return scanSupplierCode(row)
}

// GetSupplierCodeByVendor fetches the supplier code linked to a vendor.
func (r *Repository) GetSupplierCodeByVendor(ctx context.Context, vendorID int64) (SupplierCode, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+supplierCodeColumns+` FROM supplier_codes WHERE vendor_id = $1`, vendorID)
	return scanSupplierCode(row)
}

// ListSupplierCodes returns all supplier codes ordered by code.
func (r *Repository) ListSupplierCodes(ctx context.Context) ([]SupplierCode, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+supplierCodeColumns+` FROM supplier_codes ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("registry: list supplier codes: %w", err)
	}
	defer rows.Close()

	var codes []SupplierCode
	for rows.Next() {
		sc, err := scanSupplierCode(rows)
		if err != nil {
			return nil, err
		}
		codes = append(codes, sc)
	}
	return codes, rows.Err()
}

const modelCodeColumns = `id, fg_code, model_code, COALESCE(product_id, 0), COALESCE(product_sku, ''), description, active, created_at, updated_at`

// GetModelCode fetches a reference by formal code.
func (r *Repository) GetModelCode(ctx context.Context, fgCode string) (ModelCodeReference, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+modelCodeColumns+` FROM model_code_refs WHERE fg_code = $1`, fgCode)
	return scanModelCode(row)
}

// FindByModelCode fetches the active reference carrying a barcode model code.
func (r *Repository) FindByModelCode(ctx context.Context, modelCode string) (ModelCodeReference, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+modelCodeColumns+` FROM model_code_refs WHERE model_code = $1 AND active ORDER BY id LIMIT 1`, modelCode)
	return scanModelCode(row)
}

// FindModelCodeByProduct fetches the reference holding a product, matched
// by id or SKU.
func (r *Repository) FindModelCodeByProduct(ctx context.Context, productID int64, sku string) (ModelCodeReference, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+modelCodeColumns+` FROM model_code_refs
		WHERE product_id = $1 OR (product_sku IS NOT NULL AND upper(product_sku) = upper($2))
		ORDER BY id LIMIT 1`,
		productID, sku)
	return scanModelCode(row)
}

// ListModelCodes returns references matching filters. Item-type filtering
// happens in Go because the type is derived, not stored.
func (r *Repository) ListModelCodes(ctx context.Context, filters ListFilters) ([]ModelCodeReference, error) {
	query := `SELECT ` + modelCodeColumns + ` FROM model_code_refs WHERE 1=1`
	args := []any{}
	argNum := 1

	if filters.Linked != nil {
		if *filters.Linked {
			query += ` AND product_id IS NOT NULL`
		} else {
			query += ` AND product_id IS NULL`
		}
	}
	if filters.Search != "" {
		query += fmt.Sprintf(` AND (fg_code ILIKE $%d OR model_code ILIKE $%d)`, argNum, argNum)
		args = append(args, "%"+filters.Search+"%")
		argNum++
	}
	query += ` ORDER BY fg_code`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("registry: list model codes: %w", err)
	}
	defer rows.Close()

	var refs []ModelCodeReference
	for rows.Next() {
		ref, err := scanModelCode(rows)
		if err != nil {
			return nil, err
		}
		if filters.ItemType != "" && ref.ItemType() != filters.ItemType {
			continue
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// ListUnlinkedModelCodes returns active references without a product link.
func (r *Repository) ListUnlinkedModelCodes(ctx context.Context) ([]ModelCodeReference, error) {
	linked := false
	return r.ListModelCodes(ctx, ListFilters{Linked: &linked})
}

// ListFGCodesWithPrefix returns formal codes sharing a prefix.
func (r *Repository) ListFGCodesWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT fg_code FROM model_code_refs WHERE fg_code LIKE $1 || '%' ORDER BY fg_code`, prefix)
	if err != nil {
		return nil, fmt.Errorf("registry: list fg codes: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

// ListActiveProducts returns active catalog products.
func (r *Repository) ListActiveProducts(ctx context.Context) ([]Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, sku, name, COALESCE(category, ''), active FROM products WHERE active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("registry: list products: %w", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.Category, &p.Active); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// FindProductBySKU fetches a catalog product by SKU.
func (r *Repository) FindProductBySKU(ctx context.Context, sku string) (Product, error) {
	var p Product
	err := r.pool.QueryRow(ctx, `SELECT id, sku, name, COALESCE(category, ''), active FROM products WHERE sku = $1`, sku).
		Scan(&p.ID, &p.SKU, &p.Name, &p.Category, &p.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, err
	}
	return p, nil
}

func (tx *txRepo) InsertSupplierCode(ctx context.Context, sc SupplierCode) (int64, error) {
	var vendorID pgtype.Int8
	if sc.VendorID != 0 {
		vendorID = pgtype.Int8{Int64: sc.VendorID, Valid: true}
	}
	var id int64
	err := tx.tx.QueryRow(ctx, `
		INSERT INTO supplier_codes (code, name, vendor_id, description, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING id`,
		sc.Code, sc.Name, vendorID, sc.Description, sc.Active).Scan(&id)
	if err != nil {
		return 0, mapDuplicate(err)
	}
	return id, nil
}

func (tx *txRepo) UpdateSupplierVendor(ctx context.Context, code string, vendorID int64) error {
	tag, err := tx.tx.Exec(ctx, `UPDATE supplier_codes SET vendor_id = $2, updated_at = NOW() WHERE code = $1`, code, vendorID)
	if err != nil {
		return mapDuplicate(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (tx *txRepo) InsertModelCode(ctx context.Context, ref ModelCodeReference) (int64, error) {
	var productID pgtype.Int8
	if ref.ProductID != 0 {
		productID = pgtype.Int8{Int64: ref.ProductID, Valid: true}
	}
	var sku pgtype.Text
	if ref.ProductSKU != "" {
		sku = pgtype.Text{String: ref.ProductSKU, Valid: true}
	}
	var id int64
	err := tx.tx.QueryRow(ctx, `
		INSERT INTO model_code_refs (fg_code, model_code, product_id, product_sku, description, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING id`,
		ref.FGCode, ref.ModelCode, productID, sku, ref.Description, ref.Active).Scan(&id)
	if err != nil {
		return 0, mapDuplicate(err)
	}
	return id, nil
}

func (tx *txRepo) LinkModelCodeProduct(ctx context.Context, id int64, productID int64, sku string) error {
	tag, err := tx.tx.Exec(ctx, `UPDATE model_code_refs SET product_id = $2, product_sku = $3, updated_at = NOW() WHERE id = $1`, id, productID, sku)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (tx *txRepo) InsertProduct(ctx context.Context, p Product) (int64, error) {
	var id int64
	err := tx.tx.QueryRow(ctx, `
		INSERT INTO products (sku, name, category, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING id`,
		p.SKU, p.Name, p.Category, p.Active).Scan(&id)
	if err != nil {
		return 0, mapDuplicate(err)
	}
	return id, nil
}

func scanSupplierCode(row pgx.Row) (SupplierCode, error) {
	var sc SupplierCode
	err := row.Scan(&sc.ID, &sc.Code, &sc.Name, &sc.VendorID, &sc.Description, &sc.Active, &sc.CreatedAt, &sc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SupplierCode{}, ErrNotFound
		}
		return SupplierCode{}, err
	}
	return sc, nil
}

func scanModelCode(row pgx.Row) (ModelCodeReference, error) {
	var ref ModelCodeReference
	err := row.Scan(&ref.ID, &ref.FGCode, &ref.ModelCode, &ref.ProductID, &ref.ProductSKU, &ref.Description, &ref.Active, &ref.CreatedAt, &ref.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ModelCodeReference{}, ErrNotFound
		}
		return ModelCodeReference{}, err
	}
	return ref, nil
}

func mapDuplicate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateCode
	}
	return err
}
