package readings

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

// Handler exposes reading endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the reading handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers reading endpoints on the router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/readings", h.List)
	r.Post("/readings", h.Create)
	r.Post("/readings/bulk", h.BulkCreate)
	r.Put("/readings/{id}", h.Update)
}

// List returns readings for a station and date range.
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
	var pumpID *int64
	if raw := r.URL.Query().Get("pump_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "pump_id must be an integer")
			return
		}
		pumpID = &id
	}

	page, perPage := parsePageParams(r)

	list, pg, err := h.service.List(r.Context(), shared.ActorFromContext(r.Context()), stationID, from, to, pumpID, page, perPage)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"readings": list, "pagination": pg})
}

// parsePageParams reads page/per_page; unparsable values fall back to the
// pagination defaults.
func parsePageParams(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	return page, perPage
}

// Create records a single reading.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateReadingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input, err := h.toInput(req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	reading, err := h.service.Record(r.Context(), shared.ActorFromContext(r.Context()), input)
	if err != nil {
		h.logger.Error("record reading", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, reading)
}

// BulkCreate records many readings with per-item outcomes.
func (h *Handler) BulkCreate(w http.ResponseWriter, r *http.Request) {
	var req BulkCreateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}

	inputs := make([]RecordInput, 0, len(req.Readings))
	for _, entry := range req.Readings {
		input, err := h.toInput(entry)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		inputs = append(inputs, input)
	}

	results := h.service.BulkRecord(r.Context(), shared.ActorFromContext(r.Context()), inputs)
	httpx.JSON(w, http.StatusMultiStatus, map[string]any{"results": results})
}

// Update edits an existing reading, window permitting.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid reading id")
		return
	}
	var req UpdateReadingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	value, err := decimal.NewFromString(req.MeterValue)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "meter_value must be decimal")
		return
	}

	input := UpdateInput{ReadingID: id, Value: value, Notes: req.Notes}
	if req.Override {
		input.Override = &Override{Reason: req.OverrideReason}
	}

	reading, err := h.service.Update(r.Context(), shared.ActorFromContext(r.Context()), input)
	if err != nil {
		h.logger.Error("update reading", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, reading)
}

func (h *Handler) toInput(req CreateReadingRequest) (RecordInput, error) {
	date, err := time.Parse("2006-01-02", req.ReadingDate)
	if err != nil {
		return RecordInput{}, shared.ErrValidation
	}
	value, err := decimal.NewFromString(req.MeterValue)
	if err != nil {
		return RecordInput{}, shared.ErrValidation
	}
	return RecordInput{
		PumpID: req.PumpID,
		Date:   date,
		Type:   ReadingType(req.ReadingType),
		Value:  value,
		Notes:  req.Notes,
	}, nil
}

func parseDateRange(fromRaw, toRaw string) (time.Time, time.Time, error) {
	now := time.Now()
	from := now.AddDate(0, 0, -7)
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
