package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
)

func TestAdminJWTRejects(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		header string
	}{
		{name: "auth disabled", secret: "", header: "Bearer " + signedAdminToken(t, "secret", nil)},
		{name: "missing header", secret: "secret"},
		{name: "not bearer", secret: "secret", header: "Basic abc"},
		{name: "wrong key", secret: "secret", header: "Bearer " + signedAdminToken(t, "wrong", nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin/businesses/biz/config", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			AdminJWT(tt.secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatalf("handler must not run")
			})).ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
			}
		})
	}
}

func TestAdminJWTValidToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+signedAdminToken(t, "secret", []string{"biz-1"}))
	rec := httptest.NewRecorder()

	called := false
	AdminJWT("secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		claims, ok := AdminClaimsFromContext(r.Context())
		if !ok {
			t.Fatalf("expected admin claims in context")
		}
		if claims.Subject != "operator" || !claims.CanManage("biz-1") || claims.CanManage("biz-2") {
			t.Fatalf("unexpected claims %+v", claims)
		}
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)

	if !called || rec.Code != http.StatusOK {
		t.Fatalf("expected handler to run with 200, got called=%v status=%d", called, rec.Code)
	}
}

func TestRequireBusinessScope(t *testing.T) {
	r := chi.NewRouter()
	r.With(AdminJWT("secret"), RequireBusinessScope).Get("/admin/businesses/{businessID}/config", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	cases := map[string]int{
		"biz-1": http.StatusOK,
		"biz-2": http.StatusForbidden,
	}
	token := signedAdminToken(t, "secret", []string{"biz-1"})
	for businessID, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "/admin/businesses/"+businessID+"/config", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Fatalf("%s: expected %d, got %d", businessID, want, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/businesses/biz-9/config", nil)
	req.Header.Set("Authorization", "Bearer "+signedAdminToken(t, "secret", nil))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("unscoped token should manage every business, got %d", rec.Code)
	}
}

func signedAdminToken(t *testing.T, secret string, businesses []string) string {
	t.Helper()
	claims := AdminClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "operator",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
		},
		Businesses: businesses,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestParseAdminToken(t *testing.T) {
	secret := []byte("secret")

	claims, err := parseAdminToken("Bearer "+signedAdminToken(t, "secret", []string{"biz-1"}), secret)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !claims.CanManage("biz-1") || claims.CanManage("biz-2") {
		t.Fatalf("unexpected scope: %v", claims.Businesses)
	}

	if _, err := parseAdminToken("Bearer ", secret); !errors.Is(err, errNoBearer) {
		t.Fatalf("expected errNoBearer, got %v", err)
	}

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, AdminClaims{}).SignedString(secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := parseAdminToken("Bearer "+hs512, secret); !errors.Is(err, errInvalidToken) {
		t.Fatalf("expected HS512 to be rejected, got %v", err)
	}

	expired := AdminClaims{RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))}}
	stale, err := jwt.NewWithClaims(jwt.SigningMethodHS256, expired).SignedString(secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := parseAdminToken("Bearer "+stale, secret); !errors.Is(err, errInvalidToken) {
		t.Fatalf("expected expired token to be rejected, got %v", err)
	}
}
