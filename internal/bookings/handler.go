package bookings

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/booking-engine/internal/http/respond"
	"github.com/wolfman30/booking-engine/internal/tenancy"
	"github.com/wolfman30/booking-engine/pkg/logging"
)

// Handler exposes the appointment operations over HTTP.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes mounts the appointment routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", h.Book)
		r.Get("/", h.ListForDate)
		r.Post("/cancel", h.Cancel)
		r.Get("/{appointmentID}", h.Get)
		r.Post("/{appointmentID}/reschedule", h.Reschedule)
		r.Post("/{appointmentID}/confirm", h.statusChange(h.service.Confirm))
		r.Post("/{appointmentID}/complete", h.statusChange(h.service.Complete))
		r.Post("/{appointmentID}/no-show", h.statusChange(h.service.NoShow))
	})
}

// Book handles POST /v1/appointments.
func (h *Handler) Book(w http.ResponseWriter, r *http.Request) {
	businessID, ok := businessFrom(w, r)
	if !ok {
		return
	}
	var req BookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.BadRequest(w, "invalid JSON body")
		return
	}
	if req.ServiceID == "" || req.SlotID == "" {
		respond.BadRequest(w, "service_id and slot_id required")
		return
	}
	req.BusinessID = businessID

	conf, err := h.service.Book(r.Context(), req)
	if err != nil {
		respond.Error(w, h.logger, "booking failed", err)
		return
	}
	respond.JSON(w, http.StatusCreated, conf)
}

// Cancel handles POST /v1/appointments/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	businessID, ok := businessFrom(w, r)
	if !ok {
		return
	}
	var req CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.BadRequest(w, "invalid JSON body")
		return
	}
	req.BusinessID = businessID

	res, err := h.service.Cancel(r.Context(), req)
	if err != nil {
		respond.Error(w, h.logger, "cancel failed", err)
		return
	}
	respond.JSON(w, http.StatusOK, res)
}

// Reschedule handles POST /v1/appointments/{appointmentID}/reschedule.
func (h *Handler) Reschedule(w http.ResponseWriter, r *http.Request) {
	businessID, ok := businessFrom(w, r)
	if !ok {
		return
	}
	var req RescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.BadRequest(w, "invalid JSON body")
		return
	}
	if req.NewSlotID == "" {
		respond.BadRequest(w, "new_slot_id required")
		return
	}
	req.BusinessID = businessID
	req.AppointmentID = chi.URLParam(r, "appointmentID")

	res, err := h.service.Reschedule(r.Context(), req)
	if err != nil {
		respond.Error(w, h.logger, "reschedule failed", err)
		return
	}
	respond.JSON(w, http.StatusOK, res)
}

// Get handles GET /v1/appointments/{appointmentID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	businessID, ok := businessFrom(w, r)
	if !ok {
		return
	}
	appt, err := h.service.Get(r.Context(), businessID, chi.URLParam(r, "appointmentID"))
	if err != nil {
		respond.Error(w, h.logger, "appointment lookup failed", err)
		return
	}
	respond.JSON(w, http.StatusOK, appt)
}

// ListForDate handles GET /v1/appointments?date=YYYY-MM-DD.
func (h *Handler) ListForDate(w http.ResponseWriter, r *http.Request) {
	businessID, ok := businessFrom(w, r)
	if !ok {
		return
	}
	list, err := h.service.ListForDate(r.Context(), businessID, r.URL.Query().Get("date"))
	if err != nil {
		respond.Error(w, h.logger, "appointment list failed", err)
		return
	}
	if list == nil {
		list = []Appointment{}
	}
	respond.JSON(w, http.StatusOK, map[string]any{"appointments": list})
}

func (h *Handler) statusChange(fn func(ctx context.Context, businessID, appointmentID string) (*Appointment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		businessID, ok := businessFrom(w, r)
		if !ok {
			return
		}
		appt, err := fn(r.Context(), businessID, chi.URLParam(r, "appointmentID"))
		if err != nil {
			respond.Error(w, h.logger, "status change failed", err)
			return
		}
		respond.JSON(w, http.StatusOK, appt)
	}
}

func businessFrom(w http.ResponseWriter, r *http.Request) (string, bool) {
	businessID, ok := tenancy.BusinessIDFromContext(r.Context())
	if !ok {
		respond.BadRequest(w, "missing business context")
	}
	return businessID, ok
}
