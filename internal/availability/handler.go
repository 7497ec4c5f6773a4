package availability

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/booking-engine/internal/http/respond"
	"github.com/wolfman30/booking-engine/internal/tenancy"
	"github.com/wolfman30/booking-engine/pkg/logging"
)

// Handler exposes CheckAvailability over HTTP.
type Handler struct {
	engine *Engine
	logger *logging.Logger
}

func NewHandler(engine *Engine, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{engine: engine, logger: logger}
}

// RegisterRoutes mounts the availability routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/availability", h.CheckAvailability)
}

// CheckAvailability handles GET /v1/availability?service_id=&from=&to=&range=&time_of_day=&staff_id=
func (h *Handler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	businessID, ok := tenancy.BusinessIDFromContext(r.Context())
	if !ok {
		respond.BadRequest(w, "missing business context")
		return
	}
	params := r.URL.Query()
	serviceID := params.Get("service_id")
	if serviceID == "" {
		respond.BadRequest(w, "service_id required")
		return
	}

	result, err := h.engine.CheckAvailability(r.Context(), Query{
		BusinessID: businessID,
		ServiceID:  serviceID,
		From:       params.Get("from"),
		To:         params.Get("to"),
		Range:      params.Get("range"),
		TimeOfDay:  params.Get("time_of_day"),
		StaffID:    params.Get("staff_id"),
	})
	if err != nil {
		respond.Error(w, h.logger, "availability check failed", err)
		return
	}
	respond.JSON(w, http.StatusOK, result)
}
