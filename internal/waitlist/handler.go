package waitlist

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/booking-engine/internal/http/respond"
	"github.com/wolfman30/booking-engine/internal/scheduling"
	"github.com/wolfman30/booking-engine/internal/tenancy"
	"github.com/wolfman30/booking-engine/pkg/logging"
)

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

// RegisterRoutes mounts the waitlist routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/waitlist", func(r chi.Router) {
		r.Post("/", h.Add)
		r.Get("/candidates", h.Candidates)
		r.Get("/{entryID}", h.Get)
		r.Post("/{entryID}/notify", h.Notify)
		r.Post("/{entryID}/respond", h.Respond)
		r.Post("/{entryID}/expire", h.entryAction(h.service.Expire))
		r.Post("/{entryID}/cancel", h.entryAction(h.service.Cancel))
	})
}

func (h *Handler) Add(w http.ResponseWriter, r *http.Request) {
	businessID, ok := businessFrom(w, r)
	if !ok {
		return
	}
	var req AddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.BadRequest(w, "invalid JSON body")
		return
	}
	req.BusinessID = businessID
	res, err := h.service.Add(r.Context(), req)
	if err != nil {
		respond.Error(w, h.logger, "waitlist add failed", err)
		return
	}
	status := http.StatusCreated
	if res.Updated {
		status = http.StatusOK
	}
	respond.JSON(w, status, res)
}

// Candidates handles GET /v1/waitlist/candidates?service_id=&date=&time_of_day=
func (h *Handler) Candidates(w http.ResponseWriter, r *http.Request) {
	businessID, ok := businessFrom(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	if q.Get("service_id") == "" {
		respond.BadRequest(w, "service_id required")
		return
	}
	list, err := h.service.FindCandidates(r.Context(), businessID, q.Get("service_id"), q.Get("date"), q.Get("time_of_day"))
	if err != nil {
		respond.Error(w, h.logger, "waitlist candidates failed", err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]any{"candidates": list})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	businessID, ok := businessFrom(w, r)
	if !ok {
		return
	}
	e, err := h.service.Get(r.Context(), businessID, chi.URLParam(r, "entryID"))
	if err != nil {
		respond.Error(w, h.logger, "waitlist get failed", err)
		return
	}
	respond.JSON(w, http.StatusOK, e)
}

type notifyRequest struct {
	AppointmentID string `json:"appointment_id"`
	SlotID        string `json:"slot_id"`
}

// Notify handles POST /v1/waitlist/{entryID}/notify.
func (h *Handler) Notify(w http.ResponseWriter, r *http.Request) {
	businessID, ok := businessFrom(w, r)
	if !ok {
		return
	}
	var req notifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.BadRequest(w, "invalid JSON body")
		return
	}
	key, err := scheduling.DecodeSlotID(req.SlotID)
	if err != nil {
		respond.Error(w, h.logger, "waitlist notify failed", err)
		return
	}
	n, err := h.service.Notify(r.Context(), businessID, chi.URLParam(r, "entryID"), scheduling.FreedSlot{
		BusinessID:    businessID,
		AppointmentID: req.AppointmentID,
		Date:          key.Date,
		Time:          key.Start.String(),
		Staff:         key.Staff,
		SlotID:        key.Encode(),
	})
	if err != nil {
		respond.Error(w, h.logger, "waitlist notify failed", err)
		return
	}
	respond.JSON(w, http.StatusCreated, n)
}

// Respond handles POST /v1/waitlist/{entryID}/respond.
func (h *Handler) Respond(w http.ResponseWriter, r *http.Request) {
	businessID, ok := businessFrom(w, r)
	if !ok {
		return
	}
	var req RespondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.BadRequest(w, "invalid JSON body")
		return
	}
	req.BusinessID = businessID
	req.EntryID = chi.URLParam(r, "entryID")
	res, err := h.service.Respond(r.Context(), req)
	if err != nil {
		respond.Error(w, h.logger, "waitlist respond failed", err)
		return
	}
	respond.JSON(w, http.StatusOK, res)
}

func (h *Handler) entryAction(fn func(ctx context.Context, businessID, entryID string) (*Entry, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		businessID, ok := businessFrom(w, r)
		if !ok {
			return
		}
		e, err := fn(r.Context(), businessID, chi.URLParam(r, "entryID"))
		if err != nil {
			respond.Error(w, h.logger, "waitlist update failed", err)
			return
		}
		respond.JSON(w, http.StatusOK, e)
	}
}

func businessFrom(w http.ResponseWriter, r *http.Request) (string, bool) {
	businessID, ok := tenancy.BusinessIDFromContext(r.Context())
	if !ok {
		respond.BadRequest(w, "missing business context")
	}
	return businessID, ok
}
