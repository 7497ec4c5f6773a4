package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/booking-engine/internal/availability"
	"github.com/wolfman30/booking-engine/internal/bookings"
	"github.com/wolfman30/booking-engine/internal/business"
	httpmiddleware "github.com/wolfman30/booking-engine/internal/http/middleware"
	"github.com/wolfman30/booking-engine/internal/observability/metrics"
	"github.com/wolfman30/booking-engine/internal/staff"
	"github.com/wolfman30/booking-engine/internal/waitlist"
	"github.com/wolfman30/booking-engine/pkg/logging"
)

const adminSecret = "router-secret"

func newTestRouter(t *testing.T, checks map[string]Check) http.Handler {
	t.Helper()

	logger := logging.Default()
	configs := business.NewMemoryStore()
	day := &business.DayHours{Open: "09:00", Close: "17:00"}
	if err := configs.Set(context.Background(), &business.Config{
		BusinessID:    "biz",
		Timezone:      "UTC",
		BusinessHours: business.BusinessHours{Monday: day, Tuesday: day, Wednesday: day, Thursday: day, Friday: day},
		Services:      []business.Service{{ID: "svc-60", Name: "Facial", DurationMinutes: 60}},
	}); err != nil {
		t.Fatalf("seed config: %v", err)
	}
	directory := staff.NewMemoryDirectory()
	directory.Put(staff.Member{ID: "s1", BusinessID: "biz", Name: "Ana"})

	reg := prometheus.NewRegistry()
	m := metrics.NewSchedulingMetrics(reg)
	now := time.Date(2025, 1, 5, 12, 0, 0, 0, time.UTC)
	store := bookings.NewMemoryStore(nil)
	engine := availability.NewEngine(configs, directory, store, nil, availability.Options{}, logger).
		WithClock(func() time.Time { return now }).
		WithMetrics(m)
	bookingSvc := bookings.NewService(store, engine, logger).WithMetrics(m)
	waitlistSvc := waitlist.NewService(waitlist.NewMemoryStore(), configs, logger).WithBooker(bookingSvc)
	bookingSvc.WithSlotReleaseListener(waitlistSvc)

	return New(&Config{
		Logger:          logger,
		Availability:    availability.NewHandler(engine, logger),
		Bookings:        bookings.NewHandler(bookingSvc, logger),
		Waitlist:        waitlist.NewHandler(waitlistSvc, logger),
		Business:        business.NewHandler(configs, logger),
		AdminAuthSecret: adminSecret,
		MetricsHandler:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Limiter:         httpmiddleware.NewRateLimiter(100, 100),
		Checks:          checks,
	})
}

func serve(router http.Handler, method, path, businessID string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if businessID != "" {
		req.Header.Set(httpmiddleware.BusinessHeader, businessID)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestRouterHealthEndpoint(t *testing.T) {
	router := newTestRouter(t, nil)

	rr := serve(router, http.MethodGet, "/health", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", resp["status"])
	}
}

func TestRouterReadyReportsFailingDependency(t *testing.T) {
	router := newTestRouter(t, map[string]Check{
		"postgres": func(ctx context.Context) error { return nil },
		"redis":    func(ctx context.Context) error { return errors.New("connection refused") },
	})

	rr := serve(router, http.MethodGet, "/ready", "", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	var resp struct {
		Checks map[string]string `json:"checks"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Checks["postgres"] != "ok" || resp.Checks["redis"] != "unavailable" {
		t.Fatalf("unexpected checks %v", resp.Checks)
	}
}

func TestRouterRequiresBusinessID(t *testing.T) {
	router := newTestRouter(t, nil)

	rr := serve(router, http.MethodGet, "/v1/availability?service_id=svc-60", "", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without business id, got %d", rr.Code)
	}
}

func TestRouterBookingFlowAndMetrics(t *testing.T) {
	router := newTestRouter(t, nil)

	rr := serve(router, http.MethodGet, "/v1/availability?service_id=svc-60&from=2025-01-06&to=2025-01-06", "biz", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("availability: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = serve(router, http.MethodPost, "/v1/appointments", "biz", map[string]string{
		"service_id": "svc-60", "slot_id": "2025-01-06_09:00_s1",
		"customer_name": "Jane Doe", "customer_phone": "+15550001111",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("book: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = serve(router, http.MethodPost, "/v1/waitlist", "biz", map[string]string{
		"service_id": "svc-60", "customer_name": "Wait Ing", "customer_phone": "+15550002222",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("waitlist: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = serve(router, http.MethodGet, "/metrics", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "booking_") {
		t.Fatalf("expected booking metrics in exposition")
	}
}

func TestRouterAdminRequiresScopedToken(t *testing.T) {
	router := newTestRouter(t, nil)

	rr := serve(router, http.MethodGet, "/admin/businesses/biz/config", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, httpmiddleware.AdminClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "operator", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute))},
		Businesses:       []string{"biz"},
	})
	signed, err := token.SignedString([]byte(adminSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	for path, want := range map[string]int{
		"/admin/businesses/biz/config":   http.StatusOK,
		"/admin/businesses/other/config": http.StatusForbidden,
	} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer "+signed)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != want {
			t.Fatalf("%s: expected %d, got %d", path, want, rr.Code)
		}
	}
}
