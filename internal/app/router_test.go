package app

import (
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-console/internal/auth"
	"github.com/odyssey-erp/odyssey-console/internal/observability"
	"github.com/odyssey-erp/odyssey-console/internal/rbac"
	"github.com/odyssey-erp/odyssey-console/internal/shared"
	"github.com/odyssey-erp/odyssey-console/jobs"
)

func newTestServer(t *testing.T) (*httptest.Server, *http.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := &Config{AppEnv: "test", AppRequestTimeout: time.Second, RateLimit: 1000}
	logger := NewLogger(cfg)
	sessions := shared.NewSessionManager(client, "test_session", "secret", time.Hour, false)
	csrf := shared.NewCSRFManager("csrfsecret")
	rbacMW := rbac.Middleware{Service: rbac.NewService(nil, nil), Logger: logger}

	handler := NewRouter(RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessions,
		CSRFManager:        csrf,
		RBACMiddleware:     rbacMW,
		AuthHandler:        auth.NewHandler(logger, auth.NewService(nil, shared.NewTokenInspector(""), nil), sessions, csrf, rbacMW),
		PermissionsHandler: rbac.NewPermissionsHandler(rbac.NewService(nil, nil), rbacMW),
		JobHandler:         jobs.NewHandler(nil, logger),
		Metrics:            observability.NewMetrics(),
	})
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return server, &http.Client{Jar: jar}
}

func TestRouterHealthAndSecureHeaders(t *testing.T) {
	server, client := newTestServer(t)

	res, err := client.Get(server.URL + "/healthz")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "DENY", res.Header.Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", res.Header.Get("X-Content-Type-Options"))

	jobsRes, err := client.Get(server.URL + "/jobs/health")
	require.NoError(t, err)
	defer jobsRes.Body.Close()
	assert.Equal(t, http.StatusOK, jobsRes.StatusCode)
}

func TestRouterRejectsUnsafeRequestsWithoutCSRF(t *testing.T) {
	server, client := newTestServer(t)

	res, err := client.Post(server.URL+"/auth/logout", "application/json", nil)
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	assert.Equal(t, "application/problem+json", res.Header.Get("Content-Type"))
}

func TestRouterAcceptsCSRFTokenFromSession(t *testing.T) {
	server, client := newTestServer(t)

	res, err := client.Get(server.URL + "/auth/csrf")
	require.NoError(t, err)
	var payload struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&payload))
	_ = res.Body.Close()
	require.NotEmpty(t, payload.Data.Token)

	req, err := http.NewRequest(http.MethodPost, server.URL+"/auth/logout", nil)
	require.NoError(t, err)
	req.Header.Set(shared.CSRFHeader, payload.Data.Token)
	logout, err := client.Do(req)
	require.NoError(t, err)
	defer logout.Body.Close()
	assert.Equal(t, http.StatusNoContent, logout.StatusCode)
}

func TestRouterGuardsRequireSignIn(t *testing.T) {
	server, client := newTestServer(t)

	res, err := client.Get(server.URL + "/rbac/permissions")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	me, err := client.Get(server.URL + "/auth/me")
	require.NoError(t, err)
	defer me.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, me.StatusCode)
}

func TestSessionMiddlewareCommitsOnFlush(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	sessions := shared.NewSessionManager(client, "test_session", "secret", time.Hour, false)

	h := SessionMiddleware(sessions, NewLogger(nil))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, http.NewResponseController(w).Flush())
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chat/stream", nil))

	assert.True(t, rec.Flushed)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.True(t, mr.Exists("session:"+cookies[0].Value))
}
