package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/wolfman30/booking-engine/internal/http/respond"
)

type contextKey string

const adminClaimsKey contextKey = "adminClaims"

// AdminClaims are the claims carried by operator tokens. An empty
// Businesses list grants access to every business.
type AdminClaims struct {
	jwt.RegisteredClaims
	Businesses []string `json:"businesses,omitempty"`
}

// CanManage reports whether the token covers businessID.
func (c AdminClaims) CanManage(businessID string) bool {
	return len(c.Businesses) == 0 || slices.Contains(c.Businesses, businessID)
}

var (
	errNoBearer     = errors.New("missing authorization header")
	errInvalidToken = errors.New("invalid token")
)

// parseAdminToken validates an "Authorization: Bearer" header value against
// an HS256 secret.
func parseAdminToken(header string, secret []byte) (AdminClaims, error) {
	raw, found := strings.CutPrefix(header, "Bearer ")
	if !found || strings.TrimSpace(raw) == "" {
		return AdminClaims{}, errNoBearer
	}
	var claims AdminClaims
	_, err := jwt.ParseWithClaims(raw, &claims,
		func(*jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(30*time.Second),
	)
	if err != nil {
		return AdminClaims{}, fmt.Errorf("%w: %v", errInvalidToken, err)
	}
	return claims, nil
}

// AdminJWT guards operator endpoints with an HS256 bearer token. With no
// secret configured every request is rejected.
func AdminJWT(secret string) func(http.Handler) http.Handler {
	key := []byte(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(key) == 0 {
				unauthorized(w, "admin auth disabled")
				return
			}
			claims, err := parseAdminToken(r.Header.Get("Authorization"), key)
			switch {
			case errors.Is(err, errNoBearer):
				unauthorized(w, errNoBearer.Error())
				return
			case err != nil:
				unauthorized(w, errInvalidToken.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), adminClaimsKey, claims)))
		})
	}
}

// RequireBusinessScope rejects admin tokens that do not cover the
// {businessID} route parameter. It must run after AdminJWT.
func RequireBusinessScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := AdminClaimsFromContext(r.Context())
		if !ok {
			unauthorized(w, "missing admin claims")
			return
		}
		if businessID := chi.URLParam(r, "businessID"); businessID != "" && !claims.CanManage(businessID) {
			respond.JSON(w, http.StatusForbidden, respond.ErrorBody{Error: "business not in token scope", Code: "forbidden"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AdminClaimsFromContext returns admin JWT claims if present.
func AdminClaimsFromContext(ctx context.Context) (AdminClaims, bool) {
	claims, ok := ctx.Value(adminClaimsKey).(AdminClaims)
	return claims, ok
}

func unauthorized(w http.ResponseWriter, msg string) {
	respond.JSON(w, http.StatusUnauthorized, respond.ErrorBody{Error: msg, Code: "unauthorized"})
}
