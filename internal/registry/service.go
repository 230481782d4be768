package registry

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/trackline-erp/trackline/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetSupplierCode(ctx context.Context, code string) (SupplierCode, error)
	GetSupplierCodeByVendor(ctx context.Context, vendorID int64) (SupplierCode, error)
	ListSupplierCodes(ctx context.Context) ([]SupplierCode, error)
	GetModelCode(ctx context.Context, fgCode string) (ModelCodeReference, error)
	FindByModelCode(ctx context.Context, modelCode string) (ModelCodeReference, error)
	FindModelCodeByProduct(ctx context.Context, productID int64, sku string) (ModelCodeReference, error)
	ListModelCodes(ctx context.Context, filters ListFilters) ([]ModelCodeReference, error)
	ListUnlinkedModelCodes(ctx context.Context) ([]ModelCodeReference, error)
	ListFGCodesWithPrefix(ctx context.Context, prefix string) ([]string, error)
	ListActiveProducts(ctx context.Context) ([]Product, error)
	FindProductBySKU(ctx context.Context, sku string) (Product, error)
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	InsertSupplierCode(ctx context.Context, sc SupplierCode) (int64, error)
	UpdateSupplierVendor(ctx context.Context, code string, vendorID int64) error
	InsertModelCode(ctx context.Context, ref ModelCodeReference) (int64, error)
	LinkModelCodeProduct(ctx context.Context, id int64, productID int64, sku string) error
	InsertProduct(ctx context.Context, p Product) (int64, error)
}

// ListFilters narrows model-code listings.
type ListFilters struct {
	ItemType ItemType // empty matches both
	Linked   *bool    // nil matches both
	Search   string
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service owns supplier codes and model code references.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService constructs the registry service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// CreateSupplierCodeInput describes creation payload.
type CreateSupplierCodeInput struct {
	Code        string
	Name        string
	VendorID    int64
	Description string
}

// CreateSupplierCode registers a new 2-letter supplier code.
func (s *Service) CreateSupplierCode(ctx context.Context, input CreateSupplierCodeInput) (SupplierCode, error) {
	code := strings.ToUpper(strings.TrimSpace(input.Code))
	if len(code) != 2 || !isUpperAlnum(code) {
		return SupplierCode{}, fmt.Errorf("supplier code %q must be 2 uppercase characters: %w", input.Code, ErrValidation)
	}
	if strings.TrimSpace(input.Name) == "" {
		return SupplierCode{}, fmt.Errorf("supplier name required: %w", ErrValidation)
	}
	if _, err := s.repo.GetSupplierCode(ctx, code); err == nil {
		return SupplierCode{}, fmt.Errorf("supplier code %s: %w", code, ErrDuplicateCode)
	} else if !errors.Is(err, shared.ErrNotFound) {
		return SupplierCode{}, err
	}
	if input.VendorID != 0 {
		if existing, err := s.repo.GetSupplierCodeByVendor(ctx, input.VendorID); err == nil && existing.Code != code {
			return SupplierCode{}, ErrVendorLinked
		} else if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return SupplierCode{}, err
		}
	}
	sc := SupplierCode{Code: code, Name: strings.TrimSpace(input.Name), VendorID: input.VendorID, Description: input.Description, Active: true}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertSupplierCode(ctx, sc)
		if err != nil {
			return err
		}
		sc.ID = id
		return nil
	})
	if err != nil {
		return SupplierCode{}, err
	}
	s.recordAudit(ctx, "SUPPLIER_CODE_CREATE", sc.Code, map[string]any{"vendor_id": sc.VendorID})
	return sc, nil
}

// LinkVendor associates an existing supplier code with a vendor. A vendor
// holds at most one active supplier code.
func (s *Service) LinkVendor(ctx context.Context, code string, vendorID int64) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	if vendorID <= 0 {
		return fmt.Errorf("vendor id required: %w", ErrValidation)
	}
	if _, err := s.repo.GetSupplierCode(ctx, code); err != nil {
		return err
	}
	if existing, err := s.repo.GetSupplierCodeByVendor(ctx, vendorID); err == nil && existing.Code != code {
		return ErrVendorLinked
	} else if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateSupplierVendor(ctx, code, vendorID)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, "SUPPLIER_CODE_LINK", code, map[string]any{"vendor_id": vendorID})
	return nil
}

// AutoCreateForVendor returns the vendor's supplier code, deriving and
// registering a free one when the vendor has none yet.
func (s *Service) AutoCreateForVendor(ctx context.Context, vendorID int64, vendorName string) (SupplierCode, error) {
	if vendorID <= 0 {
		return SupplierCode{}, fmt.Errorf("vendor id required: %w", ErrValidation)
	}
	if existing, err := s.repo.GetSupplierCodeByVendor(ctx, vendorID); err == nil {
		return existing, nil
	} else if !errors.Is(err, shared.ErrNotFound) {
		return SupplierCode{}, err
	}
	code, err := s.freeSupplierCode(ctx, vendorName)
	if err != nil {
		return SupplierCode{}, err
	}
	return s.CreateSupplierCode(ctx, CreateSupplierCodeInput{
		Code:        code,
		Name:        vendorName,
		VendorID:    vendorID,
		Description: "auto-created for vendor",
	})
}

func (s *Service) freeSupplierCode(ctx context.Context, vendorName string) (string, error) {
	candidate := letterPrefix(vendorName, 2)
	taken := func(code string) (bool, error) {
		_, err := s.repo.GetSupplierCode(ctx, code)
		if err == nil {
			return true, nil
		}
		if errors.Is(err, shared.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if used, err := taken(candidate); err != nil {
		return "", err
	} else if !used {
		return candidate, nil
	}
	for second := byte('A'); second <= 'Z'; second++ {
		code := candidate[:1] + string(second)
		if used, err := taken(code); err != nil {
			return "", err
		} else if !used {
			return code, nil
		}
	}
	for first := byte('A'); first <= 'Z'; first++ {
		for second := byte('A'); second <= 'Z'; second++ {
			code := string(first) + string(second)
			if used, err := taken(code); err != nil {
				return "", err
			} else if !used {
				return code, nil
			}
		}
	}
	return "", fmt.Errorf("supplier code space exhausted: %w", ErrValidation)
}

// CreateModelCodeInput describes creation payload.
type CreateModelCodeInput struct {
	FGCode      string
	ModelCode   string
	ProductID   int64
	ProductSKU  string
	Description string
}

// CreateModelCodeReference registers a formal code with its 3-letter
// barcode model code.
func (s *Service) CreateModelCodeReference(ctx context.Context, input CreateModelCodeInput) (ModelCodeReference, error) {
	fgCode := strings.ToUpper(strings.TrimSpace(input.FGCode))
	modelCode := strings.ToUpper(strings.TrimSpace(input.ModelCode))
	if fgCode == "" {
		return ModelCodeReference{}, fmt.Errorf("formal code required: %w", ErrValidation)
	}
	if len(modelCode) != 3 || !isUpperAlnum(modelCode) {
		return ModelCodeReference{}, fmt.Errorf("model code %q must be 3 uppercase characters: %w", input.ModelCode, ErrValidation)
	}
	if _, err := s.repo.GetModelCode(ctx, fgCode); err == nil {
		return ModelCodeReference{}, fmt.Errorf("formal code %s: %w", fgCode, ErrDuplicateCode)
	} else if !errors.Is(err, shared.ErrNotFound) {
		return ModelCodeReference{}, err
	}
	ref := ModelCodeReference{
		FGCode:      fgCode,
		ModelCode:   modelCode,
		ProductID:   input.ProductID,
		ProductSKU:  strings.TrimSpace(input.ProductSKU),
		Description: input.Description,
		Active:      true,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertModelCode(ctx, ref)
		if err != nil {
			return err
		}
		ref.ID = id
		return nil
	})
	if err != nil {
		return ModelCodeReference{}, err
	}
	s.recordAudit(ctx, "MODEL_CODE_CREATE", ref.FGCode, map[string]any{"model_code": ref.ModelCode})
	return ref, nil
}

// GetByFGCode returns the reference for a formal code.
func (s *Service) GetByFGCode(ctx context.Context, fgCode string) (ModelCodeReference, error) {
	return s.repo.GetModelCode(ctx, strings.ToUpper(strings.TrimSpace(fgCode)))
}

// ResolveModelCode returns the active reference carrying a barcode model
// code; serial issuance depends on it.
func (s *Service) ResolveModelCode(ctx context.Context, modelCode string) (ModelCodeReference, error) {
	return s.repo.FindByModelCode(ctx, strings.ToUpper(strings.TrimSpace(modelCode)))
}

// ListSupplierCodes lists registered supplier codes.
func (s *Service) ListSupplierCodes(ctx context.Context) ([]SupplierCode, error) {
	return s.repo.ListSupplierCodes(ctx)
}

// ListModelCodes lists references filtered by derived item type and link
// status.
func (s *Service) ListModelCodes(ctx context.Context, filters ListFilters) ([]ModelCodeReference, error) {
	return s.repo.ListModelCodes(ctx, filters)
}

// AutoLinkProducts matches unlinked references to catalog products by SKU.
// Idempotent: already-linked rows only bump the tally.
func (s *Service) AutoLinkProducts(ctx context.Context) (ReconcileResult, error) {
	refs, err := s.repo.ListUnlinkedModelCodes(ctx)
	if err != nil {
		return ReconcileResult{}, err
	}
	var result ReconcileResult
	for _, ref := range refs {
		if ref.ProductID != 0 {
			result.AlreadyLinked++
			continue
		}
		if ref.ProductSKU == "" {
			result.NotFound++
			continue
		}
		product, err := s.repo.FindProductBySKU(ctx, ref.ProductSKU)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				result.NotFound++
				continue
			}
			return result, err
		}
		err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			return tx.LinkModelCodeProduct(ctx, ref.ID, product.ID, product.SKU)
		})
		if err != nil {
			return result, err
		}
		result.Linked++
	}
	s.recordAudit(ctx, "REGISTRY_AUTO_LINK", "batch", map[string]any{"linked": result.Linked, "not_found": result.NotFound})
	return result, nil
}

// SyncMissingReferences creates a reference for every active product
// lacking one, deriving the model code from the SKU heuristic. Output is
// seed data for later review.
func (s *Service) SyncMissingReferences(ctx context.Context) (ReconcileResult, error) {
	products, err := s.repo.ListActiveProducts(ctx)
	if err != nil {
		return ReconcileResult{}, err
	}
	var result ReconcileResult
	for _, product := range products {
		if product.SKU == "" {
			result.NotFound++
			continue
		}
		// A product already carried by any reference needs nothing; the
		// SKU-keyed check alone would re-synthesize products registered
		// under their real formal code.
		if _, err := s.repo.FindModelCodeByProduct(ctx, product.ID, product.SKU); err == nil {
			result.AlreadyLinked++
			continue
		} else if !errors.Is(err, shared.ErrNotFound) {
			return result, err
		}
		fgCode := strings.ToUpper(product.SKU)
		if _, err := s.repo.GetModelCode(ctx, fgCode); err == nil {
			result.AlreadyLinked++
			continue
		} else if !errors.Is(err, shared.ErrNotFound) {
			return result, err
		}
		ref := ModelCodeReference{
			FGCode:      fgCode,
			ModelCode:   ModelCodeFromSKU(product.SKU),
			ProductID:   product.ID,
			ProductSKU:  product.SKU,
			Description: "synthesized from SKU",
			Active:      true,
		}
		err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			_, err := tx.InsertModelCode(ctx, ref)
			return err
		})
		if err != nil {
			return result, err
		}
		result.Created++
	}
	s.recordAudit(ctx, "REGISTRY_SYNC_MISSING", "batch", map[string]any{"created": result.Created, "already": result.AlreadyLinked})
	return result, nil
}

// GenerateFormalCode composes a base prefix from the four inputs and
// appends the next unused zero-padded numeric suffix.
func (s *Service) GenerateFormalCode(ctx context.Context, category, subcategory, brand, modelName string) (string, error) {
	if strings.TrimSpace(category) == "" || strings.TrimSpace(modelName) == "" {
		return "", fmt.Errorf("category and model name required: %w", ErrValidation)
	}
	prefix := FormalCodePrefix(category, subcategory, brand, modelName)
	existing, err := s.repo.ListFGCodesWithPrefix(ctx, prefix)
	if err != nil {
		return "", err
	}
	next := 1
	for _, code := range existing {
		suffix := strings.TrimPrefix(code, prefix)
		n, err := strconv.Atoi(suffix)
		if err != nil {
			continue
		}
		if n >= next {
			next = n + 1
		}
	}
	return fmt.Sprintf("%s%03d", prefix, next), nil
}

// CreateProductWithCodeInput combines catalog product creation with its
// model code reference.
type CreateProductWithCodeInput struct {
	SKU         string
	Name        string
	Category    string
	FGCode      string
	ModelCode   string
	Description string
}

// CreateProductWithCode creates the catalog product row and its model code
// reference in one transaction.
func (s *Service) CreateProductWithCode(ctx context.Context, input CreateProductWithCodeInput) (ModelCodeReference, error) {
	fgCode := strings.ToUpper(strings.TrimSpace(input.FGCode))
	modelCode := strings.ToUpper(strings.TrimSpace(input.ModelCode))
	if strings.TrimSpace(input.SKU) == "" || strings.TrimSpace(input.Name) == "" {
		return ModelCodeReference{}, fmt.Errorf("sku and name required: %w", ErrValidation)
	}
	if fgCode == "" || len(modelCode) != 3 || !isUpperAlnum(modelCode) {
		return ModelCodeReference{}, fmt.Errorf("formal code and 3-character model code required: %w", ErrValidation)
	}
	if _, err := s.repo.GetModelCode(ctx, fgCode); err == nil {
		return ModelCodeReference{}, fmt.Errorf("formal code %s: %w", fgCode, ErrDuplicateCode)
	} else if !errors.Is(err, shared.ErrNotFound) {
		return ModelCodeReference{}, err
	}
	ref := ModelCodeReference{
		FGCode:      fgCode,
		ModelCode:   modelCode,
		ProductSKU:  strings.TrimSpace(input.SKU),
		Description: input.Description,
		Active:      true,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		productID, err := tx.InsertProduct(ctx, Product{SKU: ref.ProductSKU, Name: input.Name, Category: input.Category, Active: true})
		if err != nil {
			return err
		}
		ref.ProductID = productID
		id, err := tx.InsertModelCode(ctx, ref)
		if err != nil {
			return err
		}
		ref.ID = id
		return nil
	})
	if err != nil {
		return ModelCodeReference{}, err
	}
	s.recordAudit(ctx, "PRODUCT_CODE_CREATE", ref.FGCode, map[string]any{"sku": ref.ProductSKU})
	return ref, nil
}

func (s *Service) recordAudit(ctx context.Context, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	actor := shared.ActorFromContext(ctx)
	_ = s.audit.Record(ctx, shared.AuditLog{ActorID: actor.ID, Action: action, Entity: "registry", EntityID: entityID, Meta: meta})
}

func isUpperAlnum(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return false
		}
	}
	return len(s) > 0
}
