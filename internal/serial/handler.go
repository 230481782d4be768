package serial

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/trackline-erp/trackline/internal/platform/httpx"
)

// Handler manages serial registry endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers serial routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/generate", h.generate)
	r.Post("/preview", h.preview)
	r.Post("/{poRef}/mark-sent", h.markSent)
	r.Get("/po/{poRef}", h.listByPO)
	r.Get("/po/{poRef}/export", h.export)
	r.Get("/po/{poRef}/counts", h.countsByPO)
	r.Get("/dashboard", h.dashboard)
	r.Get("/{barcode}", h.getByBarcode)
	r.Post("/{barcode}/reject", h.reject)
	r.Post("/{barcode}/consume", h.consume)
}

type generateRequest struct {
	PORef        string `json:"po_ref" validate:"required"`
	ModelCode    string `json:"model_code" validate:"required,len=3"`
	SupplierCode string `json:"supplier_code"`
	ChannelCode  string `json:"channel_code"`
	Quantity     int64  `json:"quantity" validate:"required,gt=0"`
}

func (h *Handler) generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	rows, err := h.service.GenerateForPO(r.Context(), GenerateInput{
		PORef:          req.PORef,
		ModelCode:      req.ModelCode,
		SupplierCode:   req.SupplierCode,
		ChannelCode:    req.ChannelCode,
		Quantity:       req.Quantity,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.logger.Error("generate serials", slog.Any("error", err), slog.String("po_ref", req.PORef))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"po_ref":  req.PORef,
		"count":   len(rows),
		"serials": serialResponses(rows),
	})
}

type previewRequest struct {
	ModelCode    string `json:"model_code" validate:"required,len=3"`
	SupplierCode string `json:"supplier_code"`
	ChannelCode  string `json:"channel_code"`
	Quantity     int64  `json:"quantity" validate:"required,gt=0"`
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	codes, err := h.service.Preview(r.Context(), PreviewInput{
		ModelCode:    req.ModelCode,
		SupplierCode: req.SupplierCode,
		ChannelCode:  req.ChannelCode,
		Quantity:     req.Quantity,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"barcodes": codes})
}

func (h *Handler) markSent(w http.ResponseWriter, r *http.Request) {
	poRef := chi.URLParam(r, "poRef")
	updated, err := h.service.MarkSentToVendor(r.Context(), poRef)
	if err != nil {
		h.logger.Error("mark sent", slog.Any("error", err), slog.String("po_ref", poRef))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"po_ref": poRef, "updated": updated})
}

func (h *Handler) listByPO(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.ListByPO(r.Context(), chi.URLParam(r, "poRef"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"serials": serialResponses(rows)})
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	poRef := chi.URLParam(r, "poRef")
	format := ExportFormat(r.URL.Query().Get("format"))
	if format == "" {
		format = ExportCSV
	}
	body, err := h.service.Export(r.Context(), poRef, format)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	switch format {
	case ExportCSV:
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="`+poRef+`-barcodes.csv"`)
	default:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="`+poRef+`-barcodes.txt"`)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

func (h *Handler) countsByPO(w http.ResponseWriter, r *http.Request) {
	counts, err := h.service.CountsByPO(r.Context(), chi.URLParam(r, "poRef"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, counts)
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	counts, err := h.service.Dashboard(r.Context())
	if err != nil {
		h.logger.Error("dashboard counts", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, counts)
}

func (h *Handler) getByBarcode(w http.ResponseWriter, r *http.Request) {
	row, err := h.service.GetByBarcode(r.Context(), chi.URLParam(r, "barcode"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, serialResponse(row))
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	row, err := h.service.Reject(r.Context(), chi.URLParam(r, "barcode"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, serialResponse(row))
}

func (h *Handler) consume(w http.ResponseWriter, r *http.Request) {
	row, err := h.service.Consume(r.Context(), chi.URLParam(r, "barcode"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, serialResponse(row))
}

func serialResponse(p POSerial) map[string]any {
	out := map[string]any{
		"id":         p.ID,
		"barcode":    p.Barcode,
		"serial_no":  p.SerialNo,
		"model_code": p.ModelCode,
		"item_type":  p.ItemType,
		"po_ref":     p.PORef,
		"status":     p.Status,
	}
	if p.GRNID != 0 {
		out["grn_id"] = p.GRNID
		out["grn_item_id"] = p.GRNItemID
		out["received_by"] = p.ReceivedBy
		out["received_at"] = p.ReceivedAt
		out["warranty_start"] = p.WarrantyStart
		out["warranty_end"] = p.WarrantyEnd
	}
	return out
}

func serialResponses(rows []POSerial) []map[string]any {
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		out = append(out, serialResponse(row))
	}
	return out
}
