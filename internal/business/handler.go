package business

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/booking-engine/internal/http/respond"
	"github.com/wolfman30/booking-engine/pkg/logging"
)

// Handler provides HTTP endpoints for business configuration management.
type Handler struct {
	store  Writer
	logger *logging.Logger
}

// NewHandler creates a new business config HTTP handler.
func NewHandler(store Writer, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		store:  store,
		logger: logger,
	}
}

// Routes returns a chi router with business admin routes. perBusiness runs
// after {businessID} is resolved.
func (h *Handler) Routes(perBusiness ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Route("/{businessID}", func(r chi.Router) {
		r.Use(perBusiness...)
		r.Get("/config", h.GetConfig)
		r.Put("/config", h.UpdateConfig)
	})
	return r
}

// GetConfig returns the configuration for a business.
// GET /admin/businesses/{businessID}/config
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	businessID := chi.URLParam(r, "businessID")
	cfg, err := h.store.Get(r.Context(), businessID)
	if err != nil {
		respond.Error(w, h.logger, "load business config", err)
		return
	}
	respond.JSON(w, http.StatusOK, cfg)
}

// UpdateConfigRequest is a partial update; omitted fields keep their value.
type UpdateConfigRequest struct {
	Name          string         `json:"name,omitempty"`
	Timezone      string         `json:"timezone,omitempty"`
	BusinessHours *BusinessHours `json:"business_hours,omitempty"`
	Services      []Service      `json:"services,omitempty"`
}

func (req UpdateConfigRequest) apply(cfg *Config) {
	if req.Name != "" {
		cfg.Name = req.Name
	}
	if req.Timezone != "" {
		cfg.Timezone = req.Timezone
	}
	if req.BusinessHours != nil {
		cfg.BusinessHours = *req.BusinessHours
	}
	if req.Services != nil {
		cfg.Services = req.Services
	}
}

// UpdateConfig merges the request into the stored config and saves it.
// PUT /admin/businesses/{businessID}/config
func (h *Handler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	businessID := chi.URLParam(r, "businessID")

	var req UpdateConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.BadRequest(w, "invalid JSON body")
		return
	}
	if req.Timezone != "" {
		if _, err := time.LoadLocation(req.Timezone); err != nil {
			respond.BadRequest(w, "unknown timezone "+req.Timezone)
			return
		}
	}

	cfg, err := h.store.Get(r.Context(), businessID)
	if err != nil {
		respond.Error(w, h.logger, "load business config", err)
		return
	}
	req.apply(cfg)

	if err := h.store.Set(r.Context(), cfg); err != nil {
		if errors.Is(err, ErrInvalidConfig) {
			respond.BadRequest(w, err.Error())
			return
		}
		respond.Error(w, h.logger, "save business config", err)
		return
	}

	h.logger.Info("business config updated", "business_id", businessID, "services", len(cfg.Services))
	respond.JSON(w, http.StatusOK, cfg)
}
