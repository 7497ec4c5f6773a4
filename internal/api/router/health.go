package router

import (
	"context"
	"net/http"
	"time"

	"github.com/wolfman30/booking-engine/internal/http/respond"
	"github.com/wolfman30/booking-engine/pkg/logging"
)

// Check probes one dependency, such as a Postgres or Redis ping.
type Check func(ctx context.Context) error

func health(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func ready(checks map[string]Check, logger *logging.Logger) http.HandlerFunc {
	if logger == nil {
		logger = logging.Default()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				logger.Warn("readiness check failed", "dependency", name, "error", err)
				results[name] = "unavailable"
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}
		respond.JSON(w, status, map[string]any{"status": http.StatusText(status), "checks": results})
	}
}
