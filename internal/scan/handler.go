package scan

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/trackline-erp/trackline/internal/platform/httpx"
	"github.com/trackline-erp/trackline/internal/serial"
)

// Handler manages scan endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers scan routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.scan)
	r.Post("/bulk", h.bulkScan)
	r.Post("/validate", h.validateBarcode)
	r.Get("/{barcode}/lookup", h.lookup)
}

type scanRequest struct {
	Barcode   string `json:"barcode" validate:"required,len=16"`
	GRNID     int64  `json:"grn_id" validate:"required,gt=0"`
	GRNItemID int64  `json:"grn_item_id"`
	UserID    int64  `json:"user_id" validate:"required,gt=0"`
}

func (h *Handler) scan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := h.service.Scan(r.Context(), req.Barcode, req.GRNID, req.GRNItemID, req.UserID)
	if err != nil {
		h.logger.Warn("scan rejected", slog.Any("error", err), slog.String("barcode", req.Barcode))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, resultResponse(result))
}

type bulkScanRequest struct {
	// Item shape is left to the service so one bad barcode lands in the
	// outcome tally instead of failing the whole batch.
	Barcodes []string `json:"barcodes" validate:"required,min=1"`
	GRNID    int64    `json:"grn_id" validate:"required,gt=0"`
	UserID   int64    `json:"user_id" validate:"required,gt=0"`
}

func (h *Handler) bulkScan(w http.ResponseWriter, r *http.Request) {
	var req bulkScanRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := h.service.BulkScan(r.Context(), req.Barcodes, req.GRNID, req.UserID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

type validateRequest struct {
	Barcode string `json:"barcode" validate:"required"`
}

func (h *Handler) validateBarcode(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := h.service.Validate(r.Context(), req.Barcode)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, resultResponse(result))
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Lookup(r.Context(), chi.URLParam(r, "barcode"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, resultResponse(result))
}

func resultResponse(res Result) map[string]any {
	out := map[string]any{
		"barcode":    res.Serial.Barcode,
		"serial_no":  res.Serial.SerialNo,
		"model_code": res.Serial.ModelCode,
		"item_type":  res.Serial.ItemType,
		"po_ref":     res.Serial.PORef,
		"status":     res.Serial.Status,
		"kind":       res.Fields.Kind,
		"warranty":   res.Warranty,
	}
	if res.Serial.Status == serial.StatusReceived || res.Serial.Status == serial.StatusConsumed || res.Serial.Status == serial.StatusRejected {
		out["grn_id"] = res.Serial.GRNID
		out["received_by"] = res.Serial.ReceivedBy
		out["received_at"] = res.Serial.ReceivedAt.Format(time.RFC3339)
		out["warranty_end"] = res.Serial.WarrantyEnd.Format(time.RFC3339)
	}
	return out
}
