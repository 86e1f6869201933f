package calc

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

// Handler exposes calculation endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the calculation handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers calculation endpoints on the router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/calculations/run", h.Run)
	r.Get("/calculations", h.List)
	r.Get("/calculations/deviations", h.Deviations)
	r.Get("/calculations/{id}/audit", h.AuditTrail)
	r.Post("/calculations/{id}/rollover", h.ConfirmRollover)
	r.Post("/calculations/{id}/decision", h.Decide)
}

// Run triggers a calculation run for a station and date.
func (h *Handler) Run(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date must be YYYY-MM-DD")
		return
	}

	result, err := h.service.Run(r.Context(), shared.ActorFromContext(r.Context()), req.StationID, date, req.Force)
	if err != nil {
		h.logger.Error("calculation run", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

// List returns a station's calculations over a date range.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	stationID, err := strconv.ParseInt(r.URL.Query().Get("station_id"), 10, 64)
	if err != nil || stationID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "station_id query parameter is required")
		return
	}
	from, to, err := parseDateRange(r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))

	list, pg, err := h.service.List(r.Context(), shared.ActorFromContext(r.Context()), stationID, from, to, page, perPage)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"calculations": list, "pagination": pg})
}

// AuditTrail returns the audit history of a calculation.
func (h *Handler) AuditTrail(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid calculation id")
		return
	}

	trail, err := h.service.AuditTrail(r.Context(), shared.ActorFromContext(r.Context()), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"audit": trail})
}

// Deviations returns calculations breaching the deviation threshold.
func (h *Handler) Deviations(w http.ResponseWriter, r *http.Request) {
	stationID, err := strconv.ParseInt(r.URL.Query().Get("station_id"), 10, 64)
	if err != nil || stationID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "station_id query parameter is required")
		return
	}
	var threshold float64
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		if threshold, err = strconv.ParseFloat(raw, 64); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "threshold must be numeric")
			return
		}
	}
	var lookback int
	if raw := r.URL.Query().Get("lookback_days"); raw != "" {
		if lookback, err = strconv.Atoi(raw); err != nil || lookback <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "lookback_days must be a positive integer")
			return
		}
	}

	list, err := h.service.Deviations(r.Context(), shared.ActorFromContext(r.Context()), stationID, threshold, lookback)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"deviations": list})
}

// ConfirmRollover records the confirmed wrap point for a rollover day.
func (h *Handler) ConfirmRollover(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid calculation id")
		return
	}
	var req ConfirmRolloverRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	rollover, err := decimal.NewFromString(req.RolloverValue)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "rollover_value must be decimal")
		return
	}
	closing, err := decimal.NewFromString(req.NewClosing)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "new_closing must be decimal")
		return
	}

	calc, err := h.service.ConfirmRollover(r.Context(), shared.ActorFromContext(r.Context()), id,
		RolloverConfirmation{RolloverValue: rollover, NewClosing: closing}, req.Notes)
	if err != nil {
		h.logger.Error("confirm rollover", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, calc)
}

// Decide records a manager's approval decision on an estimated calculation.
func (h *Handler) Decide(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid calculation id")
		return
	}
	var req DecisionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}

	calc, err := h.service.Decide(r.Context(), shared.ActorFromContext(r.Context()), id, req.Approved, req.Notes)
	if err != nil {
		h.logger.Error("calculation decision", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, calc)
}

func parseDateRange(fromRaw, toRaw string) (time.Time, time.Time, error) {
	now := time.Now()
	from := now.AddDate(0, 0, -30)
	to := now
	var err error
	if fromRaw != "" {
		if from, err = time.Parse("2006-01-02", fromRaw); err != nil {
			return time.Time{}, time.Time{}, shared.ErrValidation
		}
	}
	if toRaw != "" {
		if to, err = time.Parse("2006-01-02", toRaw); err != nil {
			return time.Time{}, time.Time{}, shared.ErrValidation
		}
	}
	return from, to, nil
}
