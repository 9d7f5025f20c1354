package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/gearledger-backend/api/controllers"
	"github.com/angelmondragon/gearledger-backend/pkg/auth"
	"github.com/angelmondragon/gearledger-backend/pkg/config"
	"github.com/angelmondragon/gearledger-backend/pkg/enums"
	"github.com/angelmondragon/gearledger-backend/pkg/logger"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test"},
		JWT: config.JWTConfig{Secret: "secret", Issuer: "https://auth.gearledger.test", Audience: "authenticated"},
	}
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	cfg := testConfig()
	logg := logger.New(logger.Options{ServiceName: "test", Level: logger.ParseLevel("debug")})
	return NewRouter(cfg, logg, Dependencies{
		Ready:    map[string]controllers.Pinger{"db": stubPinger{}},
		Gatherer: prometheus.NewRegistry(),
	})
}

func bearer(t *testing.T, role enums.Role) string {
	t.Helper()
	token, err := auth.MintAccessToken(testConfig().JWT, time.Now(), time.Hour, auth.AccessTokenPayload{
		UserID: uuid.New(),
		Role:   role,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return "Bearer " + token
}

func TestHealthLive(t *testing.T) {
	router := newTestRouter(t)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestHealthReady(t *testing.T) {
	router := newTestRouter(t)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestMetricsExposed(t *testing.T) {
	router := newTestRouter(t)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestAPIRoutesRequireAuth(t *testing.T) {
	router := newTestRouter(t)

	cases := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/v1/checkout"},
		{http.MethodGet, "/api/v1/orders"},
		{http.MethodGet, "/api/v1/orders/" + uuid.NewString()},
		{http.MethodGet, "/api/v1/invoices"},
		{http.MethodPost, "/api/v1/payouts"},
		{http.MethodGet, "/api/v1/connect/status"},
		{http.MethodPost, "/api/admin/v1/payouts/" + uuid.NewString() + "/retry"},
	}
	for _, tc := range cases {
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(tc.method, tc.path, nil))
		if resp.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: expected 401 got %d", tc.method, tc.path, resp.Code)
		}
	}
}

func TestAdminRoutesRejectNonAdmin(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/payees/"+uuid.NewString()+"/payouts", nil)
	req.Header.Set("Authorization", bearer(t, enums.RoleUser))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}
}

func TestAuthenticatedRouteReachesController(t *testing.T) {
	router := newTestRouter(t)

	// No orders service is wired, so the controller reports itself unavailable.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.Header.Set("Authorization", bearer(t, enums.RoleUser))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", resp.Code)
	}
}

func TestWebhookRouteIsPublic(t *testing.T) {
	router := newTestRouter(t)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", nil))
	if resp.Code == http.StatusUnauthorized {
		t.Fatal("webhook route must not require a bearer token")
	}
}
