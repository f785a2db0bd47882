package chat

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-console/internal/rbac"
	"github.com/odyssey-erp/odyssey-console/internal/shared"
)

type chatFixture struct {
	api    *fakeAPI
	store  *Store
	rec    *Reconciler
	source *fakeSource
	hub    *Hub
	server *httptest.Server
}

func newChatFixture(t *testing.T, perms ...string) *chatFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	sessions := shared.NewSessionManager(client, "sid", "secret", time.Hour, false)
	sess, err := sessions.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	sess.SetToken("tok", time.Time{})

	f := &chatFixture{api: newFakeAPI(), store: NewStore(), source: newFakeSource()}
	creds := NewCredentials()
	bus := NewBroadcaster(16, nil)
	f.rec = NewReconciler(f.store, NewAPIFetcher(f.api, creds), nil, WithBroadcaster(bus))
	f.hub = NewHub(f.source, f.rec, f.store, nil, nil)
	h := NewHandler(nil, NewService(f.api, f.store, f.rec), f.hub, bus, creds, rbac.Middleware{})

	user := &rbac.User{ID: "u1", CompanyID: "1", Permissions: rbac.NewPermissionSet(perms...)}
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := shared.ContextWithSession(req.Context(), sess)
			ctx = rbac.ContextWithPrincipal(ctx, user)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Route("/chat", func(r chi.Router) {
		h.MountRoutes(r)
		h.MountStream(r)
	})
	f.server = httptest.NewServer(r)
	t.Cleanup(f.server.Close)
	return f
}

func (f *chatFixture) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestChatListFetchesOnce(t *testing.T) {
	f := newChatFixture(t, shared.PermChatView)
	f.api.set(http.MethodGet, "/chat/conversations", `{"data":[{"id":1,"title":"Ops"},{"id":2,"title":"Sales"}]}`)

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/chat/conversations", "").StatusCode)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/chat/conversations", "").StatusCode)
	assert.Equal(t, 1, f.api.getCount("/chat/conversations"))
	assert.Equal(t, []string{"1", "2"}, ids(f.store.Conversations("1")))
}

func TestChatSendRequiresPermission(t *testing.T) {
	f := newChatFixture(t, shared.PermChatView)
	resp := f.do(t, http.MethodPost, "/chat/conversations/1/messages", `{"body":"hi"}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestChatSendAppendsAndMovesToFront(t *testing.T) {
	f := newChatFixture(t, shared.PermChatView, shared.PermChatSend)
	f.store.ReplaceConversations("1", []Conversation{{ID: "2"}, {ID: "1"}})
	f.store.ReplaceMessages("1", "1", nil)
	f.api.set(http.MethodPost, "/chat/conversations/1/messages", `{"data":{"id":"m1","body":"hi","status":"sent"}}`)

	resp := f.do(t, http.MethodPost, "/chat/conversations/1/messages", `{"body":"hi"}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, []string{"1", "2"}, ids(f.store.Conversations("1")))
	msgs, _ := f.store.Messages("1", "1")
	require.Len(t, msgs, 1)
	assert.Equal(t, shared.ID("1"), msgs[0].ConversationID)

	resp = f.do(t, http.MethodPost, "/chat/conversations/1/messages", `{"body":""}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestChatMarkRead(t *testing.T) {
	f := newChatFixture(t, shared.PermChatView)
	f.store.ReplaceConversations("1", []Conversation{{ID: "1", UnreadCount: 3}})
	f.api.set(http.MethodPost, "/chat/conversations/1/read", `{}`)

	resp := f.do(t, http.MethodPost, "/chat/conversations/1/read", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	conv, _ := f.store.Conversation("1", "1")
	assert.Zero(t, conv.UnreadCount)
}

func TestChatUpstreamErrorPassesThrough(t *testing.T) {
	f := newChatFixture(t, shared.PermChatView)
	resp := f.do(t, http.MethodGet, "/chat/conversations/42/messages", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestChatStreamDeliversChangesAndSwitchesFocus(t *testing.T) {
	f := newChatFixture(t, shared.PermChatView)
	f.store.ReplaceConversations("1", []Conversation{{ID: "a"}, {ID: "b"}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.server.URL+"/chat/stream?conversation=a", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	next := func() string {
		for lines.Scan() {
			if line := lines.Text(); strings.HasPrefix(line, "event: ") {
				return strings.TrimPrefix(line, "event: ")
			}
		}
		return ""
	}
	require.Equal(t, "ready", next())
	assert.True(t, f.source.isSubscribed(CompanyChannel("1")))
	assert.True(t, f.source.isSubscribed(ConversationChannel("a")))

	watch := f.do(t, http.MethodPost, "/chat/conversations/b/watch", "")
	assert.Equal(t, http.StatusNoContent, watch.StatusCode)
	assert.False(t, f.source.isSubscribed(ConversationChannel("a")))
	assert.True(t, f.source.isSubscribed(ConversationChannel("b")))

	require.NoError(t, f.rec.Apply(context.Background(), "1", ScopeCompany,
		event(EventConversationUpdated, `{"id":"b","title":"Bee"}`)))
	assert.Equal(t, ChangeConversation, next())

	cancel()
	require.Eventually(t, func() bool {
		return !f.source.isSubscribed(CompanyChannel("1")) && !f.source.isSubscribed(ConversationChannel("b"))
	}, 2*time.Second, 10*time.Millisecond)
}

func TestChatWatchWithoutStream(t *testing.T) {
	f := newChatFixture(t, shared.PermChatView)
	f.store.ReplaceConversations("1", []Conversation{{ID: "b"}})
	resp := f.do(t, http.MethodPost, "/chat/conversations/b/watch", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestChatWatchRejectsForeignConversation(t *testing.T) {
	f := newChatFixture(t, shared.PermChatView)
	f.api.set(http.MethodGet, "/chat/conversations/x", `{"data":{"id":"x","company_id":2}}`)

	resp := f.do(t, http.MethodPost, "/chat/conversations/x/watch", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = f.do(t, http.MethodPost, "/chat/conversations/missing/watch", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/chat/stream?conversation=x", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.False(t, f.source.isSubscribed(ConversationChannel("x")))
	assert.False(t, f.source.isSubscribed(CompanyChannel("1")))
}
