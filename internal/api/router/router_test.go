package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/clinic-serial/internal/availability"
	"github.com/wolfman30/clinic-serial/internal/bookings"
	"github.com/wolfman30/clinic-serial/internal/clinic"
	httpmiddleware "github.com/wolfman30/clinic-serial/internal/http/middleware"
	"github.com/wolfman30/clinic-serial/internal/reports"
)

const testSecret = "router-test-secret"

type fixture struct {
	handler  http.Handler
	registry *clinic.Registry
	limiter  *httpmiddleware.RateLimiter
}

func newFixture(t *testing.T, checks map[string]HealthCheck) fixture {
	t.Helper()

	registry := clinic.NewRegistry(clinic.NewMemoryStore(), 1, time.Minute, nil)
	require.NoError(t, registry.UpsertAll(context.Background(), []clinic.Input{
		{Name: "Dr. Khan", TimeRange: "5 PM - 9 PM", Weekdays: clinic.Weekdays{0, 1, 2, 3, 4, 5, 6}},
	}))
	evaluator := availability.NewEvaluator(time.UTC)
	svc := bookings.NewService(bookings.ServiceDeps{
		Repo:      bookings.NewInMemoryRepository(),
		Clinics:   registry,
		Evaluator: evaluator,
	})
	reportSvc := reports.NewService(reports.NewInMemoryRepository(), reports.NewMemoryStore(), nil, nil)
	limiter := httpmiddleware.NewRateLimiter(0.001, 2)

	h := New(&Config{
		ClinicHandler:       clinic.NewHandler(registry, nil, nil),
		AvailabilityHandler: availability.NewHandler(registry, evaluator, nil),
		BookingHandler:      bookings.NewHandler(svc, nil, "Clinic", nil),
		ReportHandler:       reports.NewHandler(reportSvc, nil, 0, nil),
		AdminAuthSecret:     testSecret,
		RateLimiter:         limiter,
		HealthChecks:        checks,
	})
	return fixture{handler: h, registry: registry, limiter: limiter}
}

func TestRouterHealthEndpoint(t *testing.T) {
	f := newFixture(t, map[string]HealthCheck{"database": func(context.Context) error { return nil }})

	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp map[string]string
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, "ok", resp["database"])
}

func TestRouterHealthDegraded(t *testing.T) {
	f := newFixture(t, map[string]HealthCheck{"redis": func(context.Context) error { return errors.New("connection refused") }})

	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestRouterPublicRoutes(t *testing.T) {
	f := newFixture(t, nil)
	date := time.Now().UTC().AddDate(0, 0, 1).Format("2006-01-02")

	for _, path := range []string{"/clinics", "/clinics/Dr.%20Khan", "/availability/Dr.%20Khan", "/availability/Dr.%20Khan/check?date=" + date} {
		rr := httptest.NewRecorder()
		f.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rr.Code, path)
	}

	body, _ := json.Marshal(map[string]string{"name": "Rahim", "mobile": "017", "clinic": "Dr. Khan", "serial_date": date})
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/appointments", bytes.NewReader(body)))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
}

func TestRouterRateLimitsSubmissions(t *testing.T) {
	f := newFixture(t, nil)
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		f.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/appointments", bytes.NewBufferString("{}")))
		codes = append(codes, rr.Code)
	}
	assert.Equal(t, []int{http.StatusBadRequest, http.StatusBadRequest, http.StatusTooManyRequests}, codes)
}

func TestRouterAdminRequiresSessionAndCSRF(t *testing.T) {
	f := newFixture(t, nil)

	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/appointments", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	session, err := httpmiddleware.IssueAdminToken(testSecret, "admin@example.com", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/admin/appointments", nil)
	req.Header.Set("Authorization", "Bearer "+session.Token)
	rr = httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	for _, path := range []string{"/admin/appointments", "/admin/reports", "/admin/settings"} {
		req = httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer "+session.Token)
		req.Header.Set("X-CSRF-Token", session.CSRFToken)
		rr = httptest.NewRecorder()
		f.handler.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code, path)
	}
}

func TestRouterWithoutAdminSecretHasNoAdminRoutes(t *testing.T) {
	h := New(&Config{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/appointments", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
