package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-console/internal/apiclient"
	"github.com/odyssey-erp/odyssey-console/internal/auth"
	"github.com/odyssey-erp/odyssey-console/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-console/internal/rbac"
	"github.com/odyssey-erp/odyssey-console/internal/shared"
	_ "github.com/odyssey-erp/odyssey-console/testing"
)

const upstreamUser = `{"id":5,"name":"Dewi","email":"dewi@test.local","company_id":9,"role":{"id":2,"name":"Staff","permissions":["orders.view","chat.view"]}}`

type upstreamFake struct {
	logouts atomic.Int32
}

func (u *upstreamFake) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/auth/login":
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "correctpass" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"These credentials do not match our records."}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":{"token":"opaque-token","expires_in":3600,"user":` + upstreamUser + `}}`))
	case r.Method == http.MethodPost && r.URL.Path == "/auth/logout":
		if r.Header.Get("Authorization") == "Bearer opaque-token" {
			u.logouts.Add(1)
		}
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodGet && r.URL.Path == "/auth/me":
		if r.Header.Get("Authorization") != "Bearer opaque-token" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"Unauthenticated."}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":` + upstreamUser + `}`))
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"not found"}`))
	}
}

type fixture struct {
	server   *httptest.Server
	client   *http.Client
	upstream *upstreamFake
	redis    *miniredis.Miniredis
	sessions *shared.SessionManager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	up := &upstreamFake{}
	upstream := httptest.NewServer(up)
	t.Cleanup(upstream.Close)

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	api := apiclient.New(apiclient.Config{BaseURL: upstream.URL}, nil)
	principals := rbac.NewService(api, cache.NewJSONCache(redisClient, "principal:", time.Minute))
	rbacMW := rbac.Middleware{Service: principals}
	sessionManager := shared.NewSessionManager(redisClient, "test_session", "secret", time.Hour, false)
	csrfManager := shared.NewCSRFManager("csrfsecret")
	handler := auth.NewHandler(nil, auth.NewService(api, shared.NewTokenInspector(""), principals), sessionManager, csrfManager, rbacMW)

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := sessionManager.Load(r.Context(), r)
			if err != nil {
				t.Errorf("load session: %v", err)
				return
			}
			ctx := shared.ContextWithSession(r.Context(), sess)
			rec := httptest.NewRecorder()
			rbacMW.Authenticate(next).ServeHTTP(rec, r.WithContext(ctx))
			if err := sessionManager.Commit(ctx, w, r, sess); err != nil {
				t.Errorf("commit session: %v", err)
			}
			for k, v := range rec.Header() {
				w.Header()[k] = v
			}
			w.WriteHeader(rec.Code)
			_, _ = w.Write(rec.Body.Bytes())
		})
	})
	router.Route("/auth", handler.MountRoutes)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &fixture{
		server:   server,
		client:   &http.Client{Jar: jar},
		upstream: up,
		redis:    mr,
		sessions: sessionManager,
	}
}

func (f *fixture) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), method, f.server.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	res, err := f.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { _ = res.Body.Close() })
	return res
}

func (f *fixture) sessionID(t *testing.T) string {
	t.Helper()
	for _, c := range f.client.Jar.Cookies(mustParse(t, f.server.URL)) {
		if c.Name == f.sessions.CookieName() {
			return c.Value
		}
	}
	return ""
}

func TestCSRFEndpointIssuesToken(t *testing.T) {
	f := newFixture(t)
	res := f.do(t, http.MethodGet, "/auth/csrf", "")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}
	var payload struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Data.Token == "" {
		t.Fatalf("expected csrf token")
	}
	if f.sessionID(t) == "" {
		t.Fatalf("expected session cookie")
	}
}

func TestLoginStoresTokenAndRenewsSession(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodGet, "/auth/csrf", "")
	before := f.sessionID(t)

	res := f.do(t, http.MethodPost, "/auth/login", `{"email":"dewi@test.local","password":"correctpass"}`)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}
	var payload struct {
		Data struct {
			User        rbac.User `json:"user"`
			Permissions []string  `json:"permissions"`
			CSRFToken   string    `json:"csrf_token"`
		} `json:"data"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Data.User.ID != "5" || payload.Data.User.CompanyID != "9" {
		t.Fatalf("unexpected user %+v", payload.Data.User)
	}
	if strings.Join(payload.Data.Permissions, ",") != "chat.view,orders.view" {
		t.Fatalf("unexpected permissions %v", payload.Data.Permissions)
	}
	if payload.Data.CSRFToken == "" {
		t.Fatalf("expected rotated csrf token")
	}

	after := f.sessionID(t)
	if after == "" || after == before {
		t.Fatalf("expected a renewed session id, before=%q after=%q", before, after)
	}
	if f.redis.Exists("session:" + before) {
		t.Fatalf("previous session should be removed")
	}
	stored, err := f.redis.Get("session:" + after)
	if err != nil {
		t.Fatalf("stored session: %v", err)
	}
	if !strings.Contains(stored, `"token":"opaque-token"`) {
		t.Fatalf("token not stored server side: %s", stored)
	}

	me := f.do(t, http.MethodGet, "/auth/me", "")
	if me.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from /auth/me, got %d", me.StatusCode)
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	f := newFixture(t)
	res := f.do(t, http.MethodPost, "/auth/login", `{"email":"dewi@test.local","password":"wrongpass"}`)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.StatusCode)
	}
	if ct := res.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/problem+json") {
		t.Fatalf("expected problem response, got %q", ct)
	}
}

func TestLoginValidation(t *testing.T) {
	f := newFixture(t)
	res := f.do(t, http.MethodPost, "/auth/login", `{"email":"not-an-email","password":"short"}`)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", res.StatusCode)
	}
	var problem struct {
		Errors map[string][]string `json:"errors"`
	}
	if err := json.NewDecoder(res.Body).Decode(&problem); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(problem.Errors["Email"]) == 0 || len(problem.Errors["Password"]) == 0 {
		t.Fatalf("expected field errors, got %v", problem.Errors)
	}

	empty := f.do(t, http.MethodPost, "/auth/login", "")
	if empty.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty body, got %d", empty.StatusCode)
	}
}

func TestLogoutDestroysSession(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/auth/login", `{"email":"dewi@test.local","password":"correctpass"}`)
	sid := f.sessionID(t)
	if sid == "" {
		t.Fatalf("expected session after login")
	}

	res := f.do(t, http.MethodPost, "/auth/logout", "")
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", res.StatusCode)
	}
	if f.upstream.logouts.Load() != 1 {
		t.Fatalf("expected upstream logout with bearer token")
	}
	if f.redis.Exists("session:" + sid) {
		t.Fatalf("session should be deleted")
	}

	me := f.do(t, http.MethodGet, "/auth/me", "")
	if me.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", me.StatusCode)
	}
}

func TestMeRequiresAuthentication(t *testing.T) {
	f := newFixture(t)
	res := f.do(t, http.MethodGet, "/auth/me", "")
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.StatusCode)
	}
}

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	return u
}
