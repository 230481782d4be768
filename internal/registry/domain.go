package registry

import (
	"fmt"
	"time"

	"github.com/trackline-erp/trackline/internal/shared"
)

// ItemType is derived from the formal-code prefix, never stored.
type ItemType string

const (
	ItemTypeFinishedGoods ItemType = "FINISHED_GOODS"
	ItemTypeSparePart     ItemType = "SPARE_PART"
)

// SupplierCode is a 2-letter vendor identifier used in spare-part barcodes.
type SupplierCode struct {
	ID          int64
	Code        string
	Name        string
	VendorID    int64 // zero when unlinked
	Description string
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ModelCodeReference links a formal product code to its 3-letter barcode
// model code and, optionally, a catalog product.
type ModelCodeReference struct {
	ID          int64
	FGCode      string
	ModelCode   string
	ProductID   int64  // zero when unlinked
	ProductSKU  string // empty when unlinked
	Description string
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ItemType classifies the reference from its formal code.
func (m ModelCodeReference) ItemType() ItemType {
	return Classify(m.FGCode)
}

// Product mirrors the catalog rows this service consumes; only the
// fields barcode issuance needs.
type Product struct {
	ID       int64
	SKU      string
	Name     string
	Category string
	Active   bool
}

// ReconcileResult tallies a batch reconciliation run.
type ReconcileResult struct {
	Linked        int `json:"linked"`
	AlreadyLinked int `json:"already_linked"`
	NotFound      int `json:"not_found"`
	Created       int `json:"created"`
}

var (
	// ErrNotFound indicates an unknown code, vendor or product.
	ErrNotFound = fmt.Errorf("registry: %w", shared.ErrNotFound)
	// ErrDuplicateCode indicates the code is already registered.
	ErrDuplicateCode = fmt.Errorf("registry: %w", shared.ErrDuplicateCode)
	// ErrValidation indicates invalid input.
	ErrValidation = fmt.Errorf("registry: %w", shared.ErrValidation)
	// ErrVendorLinked indicates the vendor already has a supplier code.
	ErrVendorLinked = fmt.Errorf("registry: vendor already linked: %w", shared.ErrDuplicateCode)
)
