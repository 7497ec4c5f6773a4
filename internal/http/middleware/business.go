package middleware

import (
	"net/http"
	"strings"

	"github.com/wolfman30/booking-engine/internal/http/respond"
	"github.com/wolfman30/booking-engine/internal/tenancy"
)

// BusinessHeader names the business every public request is scoped to.
const BusinessHeader = "X-Business-Id"

// RequireBusinessID moves the business id from the header (or the
// business_id query parameter) into the request context.
func RequireBusinessID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		businessID := strings.TrimSpace(r.Header.Get(BusinessHeader))
		if businessID == "" {
			businessID = strings.TrimSpace(r.URL.Query().Get("business_id"))
		}
		if businessID == "" {
			respond.BadRequest(w, "X-Business-Id header required")
			return
		}
		next.ServeHTTP(w, r.WithContext(tenancy.WithBusinessID(r.Context(), businessID)))
	})
}
