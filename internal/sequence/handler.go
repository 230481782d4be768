package sequence

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/trackline-erp/trackline/internal/platform/httpx"
	"github.com/trackline-erp/trackline/internal/shared"
)

// Handler manages sequence endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers read-only sequence routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/status", h.status)
	r.Get("/model/{modelCode}", h.listByModel)
}

// MountAdminRoutes registers the privileged reset route; the caller wraps
// it in the elevated-role middleware.
func (h *Handler) MountAdminRoutes(r chi.Router) {
	r.Post("/reset", h.reset)
}

func keyFromQuery(r *http.Request) Key {
	q := r.URL.Query()
	return Key{
		ModelCode:    q.Get("model_code"),
		SupplierCode: q.Get("supplier_code"),
		YearCode:     q.Get("year_code"),
		MonthCode:    q.Get("month_code"),
	}
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	key := keyFromQuery(r)
	seq, err := h.service.Status(r.Context(), key)
	if errors.Is(err, shared.ErrNotFound) {
		// A counter nobody drew from yet reads as zero; materialize the
		// row instead of reporting the series missing.
		seq, err = h.service.GetOrCreate(r.Context(), key)
	}
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sequenceResponse(seq))
}

func (h *Handler) listByModel(w http.ResponseWriter, r *http.Request) {
	sequences, err := h.service.ListByModel(r.Context(), chi.URLParam(r, "modelCode"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(sequences))
	for _, seq := range sequences {
		out = append(out, sequenceResponse(seq))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"sequences": out})
}

type resetRequest struct {
	ModelCode    string `json:"model_code" validate:"required,len=3"`
	SupplierCode string `json:"supplier_code"`
	YearCode     string `json:"year_code" validate:"required"`
	MonthCode    string `json:"month_code" validate:"required,len=1"`
	NewValue     int64  `json:"new_value" validate:"gte=0"`
	Confirm      bool   `json:"confirm"`
}

func (h *Handler) reset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if !req.Confirm {
		httpx.Problem(w, http.StatusBadRequest, "Confirmation Required", "sequence reset is irreversible; set confirm=true")
		return
	}
	key := Key{ModelCode: req.ModelCode, SupplierCode: req.SupplierCode, YearCode: req.YearCode, MonthCode: req.MonthCode}
	actor := shared.ActorFromContext(r.Context())
	if err := h.service.Reset(r.Context(), key, req.NewValue, actor.ID); err != nil {
		h.logger.Error("sequence reset", slog.Any("error", err), slog.String("key", key.String()))
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("sequence reset", slog.String("key", key.String()), slog.Int64("new_value", req.NewValue), slog.Int64("actor_id", actor.ID))
	httpx.JSON(w, http.StatusOK, map[string]any{"key": key.String(), "last_serial": req.NewValue})
}

func sequenceResponse(seq SerialSequence) map[string]any {
	return map[string]any{
		"model_code":      seq.ModelCode,
		"supplier_code":   seq.SupplierCode,
		"year_code":       seq.YearCode,
		"month_code":      seq.MonthCode,
		"last_serial":     seq.LastSerial,
		"total_generated": seq.TotalGenerated,
		"updated_at":      seq.UpdatedAt,
	}
}
