package registry

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/trackline-erp/trackline/internal/platform/httpx"
	"github.com/trackline-erp/trackline/internal/shared"
)

// Enqueuer submits reconciliation runs to the background queue.
type Enqueuer interface {
	EnqueueAutoLink(ctx context.Context) (string, error)
	EnqueueSyncMissing(ctx context.Context) (string, error)
}

// Handler manages registry endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	enqueue  Enqueuer
	validate *validator.Validate
}

// NewHandler builds a Handler instance. Reconciliation endpoints enqueue
// through the worker queue.
func NewHandler(logger *slog.Logger, service *Service, enqueue Enqueuer) *Handler {
	return &Handler{logger: logger, service: service, enqueue: enqueue, validate: validator.New()}
}

// MountRoutes registers collaborator-facing registry routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/supplier-codes", h.createSupplierCode)
	r.Get("/supplier-codes", h.listSupplierCodes)
	r.Post("/supplier-codes/auto", h.autoCreateForVendor)
	r.Post("/supplier-codes/{code}/link-vendor", h.linkVendor)
	r.Post("/model-codes", h.createModelCode)
	r.Get("/model-codes", h.listModelCodes)
	r.Get("/model-codes/{fgCode}", h.getModelCode)
	r.Post("/formal-codes/generate", h.generateFormalCode)
	r.Post("/products", h.createProductWithCode)
}

// MountAdminRoutes registers privileged reconciliation routes; the caller
// wraps them in the elevated-role middleware.
func (h *Handler) MountAdminRoutes(r chi.Router) {
	r.Post("/auto-link", h.autoLink)
	r.Post("/sync-missing", h.syncMissing)
}

type createSupplierCodeRequest struct {
	Code        string `json:"code" validate:"required,len=2"`
	Name        string `json:"name" validate:"required"`
	VendorID    int64  `json:"vendor_id"`
	Description string `json:"description"`
}

func (h *Handler) createSupplierCode(w http.ResponseWriter, r *http.Request) {
	var req createSupplierCodeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	created, err := h.service.CreateSupplierCode(r.Context(), CreateSupplierCodeInput{
		Code:        req.Code,
		Name:        req.Name,
		VendorID:    req.VendorID,
		Description: req.Description,
	})
	if err != nil {
		h.logger.Error("create supplier code", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, supplierCodeResponse(created))
}

func (h *Handler) listSupplierCodes(w http.ResponseWriter, r *http.Request) {
	codes, err := h.service.ListSupplierCodes(r.Context())
	if err != nil {
		h.logger.Error("list supplier codes", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(codes))
	for _, sc := range codes {
		out = append(out, supplierCodeResponse(sc))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"supplier_codes": out})
}

type autoCreateRequest struct {
	VendorID   int64  `json:"vendor_id" validate:"required,gt=0"`
	VendorName string `json:"vendor_name" validate:"required"`
}

func (h *Handler) autoCreateForVendor(w http.ResponseWriter, r *http.Request) {
	var req autoCreateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	sc, err := h.service.AutoCreateForVendor(r.Context(), req.VendorID, req.VendorName)
	if err != nil {
		h.logger.Error("auto create supplier code", slog.Any("error", err), slog.Int64("vendor_id", req.VendorID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, supplierCodeResponse(sc))
}

type linkVendorRequest struct {
	VendorID int64 `json:"vendor_id" validate:"required,gt=0"`
}

func (h *Handler) linkVendor(w http.ResponseWriter, r *http.Request) {
	var req linkVendorRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	code := chi.URLParam(r, "code")
	if err := h.service.LinkVendor(r.Context(), code, req.VendorID); err != nil {
		h.logger.Error("link vendor", slog.Any("error", err), slog.String("code", code))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"code": strings.ToUpper(code), "vendor_id": req.VendorID})
}

type createModelCodeRequest struct {
	FGCode      string `json:"fg_code" validate:"required"`
	ModelCode   string `json:"model_code" validate:"required,len=3"`
	ProductID   int64  `json:"product_id"`
	ProductSKU  string `json:"product_sku"`
	Description string `json:"description"`
}

func (h *Handler) createModelCode(w http.ResponseWriter, r *http.Request) {
	var req createModelCodeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	ref, err := h.service.CreateModelCodeReference(r.Context(), CreateModelCodeInput{
		FGCode:      req.FGCode,
		ModelCode:   req.ModelCode,
		ProductID:   req.ProductID,
		ProductSKU:  req.ProductSKU,
		Description: req.Description,
	})
	if err != nil {
		h.logger.Error("create model code", slog.Any("error", err), slog.String("fg_code", req.FGCode))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, modelCodeResponse(ref))
}

func (h *Handler) listModelCodes(w http.ResponseWriter, r *http.Request) {
	filters := ListFilters{Search: r.URL.Query().Get("search")}
	switch strings.ToUpper(r.URL.Query().Get("item_type")) {
	case string(ItemTypeFinishedGoods), "FG":
		filters.ItemType = ItemTypeFinishedGoods
	case string(ItemTypeSparePart), "SP":
		filters.ItemType = ItemTypeSparePart
	}
	switch r.URL.Query().Get("linked") {
	case "true":
		linked := true
		filters.Linked = &linked
	case "false":
		linked := false
		filters.Linked = &linked
	}
	refs, err := h.service.ListModelCodes(r.Context(), filters)
	if err != nil {
		h.logger.Error("list model codes", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	pagination := shared.NewPagination(page, perPage, len(refs))
	start := pagination.Offset()
	if start > len(refs) {
		start = len(refs)
	}
	end := start + pagination.PerPage
	if end > len(refs) {
		end = len(refs)
	}
	out := make([]map[string]any, 0, end-start)
	for _, ref := range refs[start:end] {
		out = append(out, modelCodeResponse(ref))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"model_codes": out,
		"page":        pagination.Page,
		"per_page":    pagination.PerPage,
		"total":       pagination.Total,
		"total_pages": pagination.TotalPages,
	})
}

func (h *Handler) getModelCode(w http.ResponseWriter, r *http.Request) {
	ref, err := h.service.GetByFGCode(r.Context(), chi.URLParam(r, "fgCode"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, modelCodeResponse(ref))
}

type generateFormalCodeRequest struct {
	Category    string `json:"category" validate:"required"`
	Subcategory string `json:"subcategory"`
	Brand       string `json:"brand"`
	ModelName   string `json:"model_name" validate:"required"`
}

func (h *Handler) generateFormalCode(w http.ResponseWriter, r *http.Request) {
	var req generateFormalCodeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	code, err := h.service.GenerateFormalCode(r.Context(), req.Category, req.Subcategory, req.Brand, req.ModelName)
	if err != nil {
		h.logger.Error("generate formal code", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"fg_code": code})
}

type createProductRequest struct {
	SKU         string `json:"sku" validate:"required"`
	Name        string `json:"name" validate:"required"`
	Category    string `json:"category"`
	FGCode      string `json:"fg_code" validate:"required"`
	ModelCode   string `json:"model_code" validate:"required,len=3"`
	Description string `json:"description"`
}

func (h *Handler) createProductWithCode(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	ref, err := h.service.CreateProductWithCode(r.Context(), CreateProductWithCodeInput{
		SKU:         req.SKU,
		Name:        req.Name,
		Category:    req.Category,
		FGCode:      req.FGCode,
		ModelCode:   req.ModelCode,
		Description: req.Description,
	})
	if err != nil {
		h.logger.Error("create product with code", slog.Any("error", err), slog.String("sku", req.SKU))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, modelCodeResponse(ref))
}

func (h *Handler) autoLink(w http.ResponseWriter, r *http.Request) {
	taskID, err := h.enqueue.EnqueueAutoLink(r.Context())
	if err != nil {
		h.logger.Error("enqueue auto link", slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Queue Unavailable", "could not enqueue auto-link run")
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]any{"task_id": taskID, "state": "queued"})
}

func (h *Handler) syncMissing(w http.ResponseWriter, r *http.Request) {
	taskID, err := h.enqueue.EnqueueSyncMissing(r.Context())
	if err != nil {
		h.logger.Error("enqueue sync missing", slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Queue Unavailable", "could not enqueue sync-missing run")
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]any{"task_id": taskID, "state": "queued"})
}

func supplierCodeResponse(sc SupplierCode) map[string]any {
	return map[string]any{
		"id":          sc.ID,
		"code":        sc.Code,
		"name":        sc.Name,
		"vendor_id":   sc.VendorID,
		"description": sc.Description,
		"active":      sc.Active,
	}
}

func modelCodeResponse(ref ModelCodeReference) map[string]any {
	return map[string]any{
		"id":          ref.ID,
		"fg_code":     ref.FGCode,
		"model_code":  ref.ModelCode,
		"item_type":   ref.ItemType(),
		"product_id":  ref.ProductID,
		"product_sku": ref.ProductSKU,
		"description": ref.Description,
		"active":      ref.Active,
	}
}
