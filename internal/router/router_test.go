package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stealth-backend/internal/batch"
	"stealth-backend/internal/config"
	"stealth-backend/internal/enclave"
	"stealth-backend/internal/handlers"
	"stealth-backend/internal/ledger"
	"stealth-backend/internal/services"
)

const enclaveKeyHex = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"

var owner = common.HexToAddress("0x000000000000000000000000000000000000dEaD")

func newTestRouter(t *testing.T, cfg *config.Config) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	signer, err := batch.NewPrivateKeySignerFromHex(enclaveKeyHex)
	require.NoError(t, err)
	l := ledger.New(owner, signer.Address())
	enc, err := enclave.New(signer, enclave.DefaultConfig())
	require.NoError(t, err)
	relay := services.NewSettlementService(l, enc, services.RelayConfig{Interval: time.Hour})

	jwtManager := handlers.NewJWTManager(config.JWTConfig{Secret: "test-secret", Issuer: "test"})
	h := &Handlers{
		JWT:       jwtManager,
		Auth:      handlers.NewAuthHandler(jwtManager),
		AdminAuth: handlers.NewAdminAuthHandler(config.AdminConfig{Username: "admin"}),
		Intents:   handlers.NewIntentHandler(l, nil),
		Releases:  handlers.NewReleaseHandler(l),
		Batches:   handlers.NewBatchHandler(l, nil, relay),
		Admin:     handlers.NewAdminHandler(l, relay, owner),
		WebSocket: handlers.NewWebSocketHandler(services.NewEventHub(0), jwtManager),
	}
	return SetupRouter(cfg, h)
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestPublicRoutes(t *testing.T) {
	r := newTestRouter(t, &config.Config{})

	w := serve(r, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "stealth-settlement-relay", body["service"])

	w = serve(r, httptest.NewRequest(http.MethodGet, "/api/intents/pending", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(r, httptest.NewRequest(http.MethodGet, "/api/relay/status", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(r, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(r, httptest.NewRequest(http.MethodGet, "/api/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "API endpoint not found")
}

func TestAuthenticatedRoutesNeedToken(t *testing.T) {
	r := newTestRouter(t, &config.Config{})

	w := serve(r, httptest.NewRequest(http.MethodPost, "/api/intents", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(r, httptest.NewRequest(http.MethodGet, "/api/my/intents", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminRoutesRestrictedToLocalhost(t *testing.T) {
	r := newTestRouter(t, &config.Config{})

	req := httptest.NewRequest(http.MethodPost, "/api/admin/batches/trigger", nil)
	req.RemoteAddr = "203.0.113.7:4000"
	assert.Equal(t, http.StatusForbidden, serve(r, req).Code)

	// forwarded headers from an untrusted peer are ignored
	req = httptest.NewRequest(http.MethodPost, "/api/admin/batches/trigger", nil)
	req.RemoteAddr = "203.0.113.7:4000"
	req.Header.Set("X-Forwarded-For", "127.0.0.1")
	assert.Equal(t, http.StatusForbidden, serve(r, req).Code)

	req = httptest.NewRequest(http.MethodPost, "/api/admin/batches/trigger", nil)
	req.RemoteAddr = "127.0.0.1:4000"
	assert.Equal(t, http.StatusUnauthorized, serve(r, req).Code)
}

func TestAdminRoutesBehindTrustedLocalProxy(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.TrustedProxies = []string{"127.0.0.1"}
	r := newTestRouter(t, cfg)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/batches/trigger", nil)
	req.RemoteAddr = "127.0.0.1:5555"
	req.Header.Set("X-Forwarded-For", "8.8.8.8")
	assert.Equal(t, http.StatusForbidden, serve(r, req).Code)

	req = httptest.NewRequest(http.MethodPost, "/api/admin/batches/trigger", nil)
	req.RemoteAddr = "127.0.0.1:5555"
	assert.Equal(t, http.StatusUnauthorized, serve(r, req).Code)
}

func TestAdminWhitelist(t *testing.T) {
	cfg := &config.Config{}
	cfg.Admin.AllowedIPs = []string{"203.0.113.0/24"}
	r := newTestRouter(t, cfg)

	req := httptest.NewRequest(http.MethodPut, "/api/admin/enclave-signer", nil)
	req.RemoteAddr = "203.0.113.7:4000"
	assert.Equal(t, http.StatusUnauthorized, serve(r, req).Code)
}

func TestCORS(t *testing.T) {
	cfg := &config.Config{}
	cfg.CORS.AllowedOrigins = []string{"https://app.example"}
	r := newTestRouter(t, cfg)

	req := httptest.NewRequest(http.MethodOptions, "/api/intents", nil)
	req.Header.Set("Origin", "https://app.example")
	w := serve(r, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = serve(r, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
