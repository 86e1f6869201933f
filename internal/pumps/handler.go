package pumps

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/forecourt-io/forecourt/internal/platform/httpx"
	"github.com/forecourt-io/forecourt/internal/shared"
)

// Handler exposes the pump registry over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the pump handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers pump endpoints on the router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/pumps", h.List)
	r.Post("/pumps", h.Create)
	r.Put("/pumps/{id}", h.Update)
}

// List returns pumps for a station.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	stationID, err := strconv.ParseInt(r.URL.Query().Get("station_id"), 10, 64)
	if err != nil || stationID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "station_id query parameter is required")
		return
	}
	actor := shared.ActorFromContext(r.Context())
	pumpList, err := h.service.List(r.Context(), actor, stationID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"pumps": pumpList})
}

// Create registers a new pump.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreatePumpRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	capacity, err := decimal.NewFromString(req.MeterCapacity)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "meter_capacity must be decimal")
		return
	}
	status := PumpStatus(req.Status)
	if req.Status == "" {
		status = PumpStatusActive
	}
	installDate := time.Now()
	if req.InstallDate != nil {
		installDate = *req.InstallDate
	}

	pump, err := h.service.Create(r.Context(), shared.ActorFromContext(r.Context()), Pump{
		StationID:     req.StationID,
		ProductID:     req.ProductID,
		Label:         req.Label,
		MeterCapacity: capacity,
		InstallDate:   installDate,
		Status:        status,
		IsActive:      status == PumpStatusActive,
	})
	if err != nil {
		h.logger.Error("create pump", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, pump)
}

// Update edits an existing pump.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid pump id")
		return
	}
	var req UpdatePumpRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	capacity, err := decimal.NewFromString(req.MeterCapacity)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "meter_capacity must be decimal")
		return
	}

	pump, err := h.service.Update(r.Context(), shared.ActorFromContext(r.Context()), Pump{
		ID:            id,
		ProductID:     req.ProductID,
		Label:         req.Label,
		MeterCapacity: capacity,
		Status:        PumpStatus(req.Status),
		IsActive:      req.IsActive,
	})
	if err != nil {
		h.logger.Error("update pump", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pump)
}
