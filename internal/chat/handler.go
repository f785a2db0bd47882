package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-console/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-console/internal/rbac"
	"github.com/odyssey-erp/odyssey-console/internal/shared"
)

const keepAliveInterval = 25 * time.Second

// Handler exposes the chat screens and the change stream.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	hub         *Hub
	broadcaster *Broadcaster
	creds       *Credentials
	rbac        rbac.Middleware

	mu      sync.Mutex
	streams map[string]*stream
}

type stream struct {
	watcher *Watcher
	cancel  context.CancelFunc
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, hub *Hub, broadcaster *Broadcaster, creds *Credentials, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:      logger,
		service:     service,
		hub:         hub,
		broadcaster: broadcaster,
		creds:       creds,
		rbac:        rbac,
		streams:     make(map[string]*stream),
	}
}

// MountRoutes registers the request/response chat routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermChatView))
		r.Get("/conversations", h.listConversations)
		r.Get("/conversations/{id}", h.showConversation)
		r.Get("/conversations/{id}/messages", h.listMessages)
		r.Post("/conversations/{id}/read", h.markRead)
		r.Post("/conversations/{id}/watch", h.watchConversation)
		r.Delete("/watch", h.clearWatch)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermChatSend))
		r.Post("/conversations/{id}/messages", h.sendMessage)
	})
}

// MountStream registers the long-lived event stream route.
func (h *Handler) MountStream(r chi.Router) {
	r.With(h.rbac.RequireAny(shared.PermChatView)).Get("/stream", h.streamChanges)
}

func (h *Handler) listConversations(w http.ResponseWriter, r *http.Request) {
	company, ok := h.company(w, r)
	if !ok {
		return
	}
	list, err := h.service.Conversations(r.Context(), shared.TokenFromContext(r.Context()), company)
	if err != nil {
		h.fail(w, "list conversations", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": list})
}

func (h *Handler) showConversation(w http.ResponseWriter, r *http.Request) {
	company, ok := h.company(w, r)
	if !ok {
		return
	}
	conv, err := h.service.Conversation(r.Context(), shared.TokenFromContext(r.Context()), company, conversationID(r))
	if err != nil {
		h.fail(w, "show conversation", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": conv})
}

func (h *Handler) listMessages(w http.ResponseWriter, r *http.Request) {
	company, ok := h.company(w, r)
	if !ok {
		return
	}
	msgs, err := h.service.Messages(r.Context(), shared.TokenFromContext(r.Context()), company, conversationID(r))
	if err != nil {
		h.fail(w, "list messages", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": msgs})
}

func (h *Handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	company, ok := h.company(w, r)
	if !ok {
		return
	}
	var in SendInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	msg, err := h.service.Send(r.Context(), shared.TokenFromContext(r.Context()), company, conversationID(r), in)
	if err != nil {
		h.fail(w, "send message", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"data": msg})
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	company, ok := h.company(w, r)
	if !ok {
		return
	}
	conv, err := h.service.MarkRead(r.Context(), shared.TokenFromContext(r.Context()), company, conversationID(r))
	if err != nil {
		h.fail(w, "mark read", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": conv})
}

func (h *Handler) watchConversation(w http.ResponseWriter, r *http.Request) {
	company, ok := h.company(w, r)
	if !ok {
		return
	}
	id := conversationID(r)
	if err := h.service.Owned(r.Context(), shared.TokenFromContext(r.Context()), company, id); err != nil {
		h.fail(w, "watch conversation", err)
		return
	}
	h.focus(w, r, id)
}

func (h *Handler) clearWatch(w http.ResponseWriter, r *http.Request) {
	h.focus(w, r, "")
}

func (h *Handler) focus(w http.ResponseWriter, r *http.Request, conversation shared.ID) {
	owner := streamOwner(r)
	h.mu.Lock()
	st, ok := h.streams[owner]
	h.mu.Unlock()
	if !ok {
		httpx.Problem(w, http.StatusConflict, "Conflict", "no open event stream")
		return
	}
	if err := st.watcher.Focus(r.Context(), conversation); err != nil {
		h.fail(w, "watch conversation", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// streamChanges serves reconciled changes for the caller's company as
// server-sent events. ?conversation= sets the initial focus. A newer stream
// of the same session replaces this one.
func (h *Handler) streamChanges(w http.ResponseWriter, r *http.Request) {
	company, ok := h.company(w, r)
	if !ok {
		return
	}
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("chat stream write deadline", slog.Any("error", err))
	}
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	focus := shared.ID(r.URL.Query().Get("conversation"))
	if !focus.IsZero() {
		if err := h.service.Owned(ctx, shared.TokenFromContext(ctx), company, focus); err != nil {
			h.fail(w, "open stream", err)
			return
		}
	}
	watcher, err := h.hub.NewWatcher(ctx, company)
	if err != nil {
		h.fail(w, "open stream", err)
		return
	}
	defer watcher.Close()
	if !focus.IsZero() {
		if err := watcher.Focus(ctx, focus); err != nil {
			h.fail(w, "open stream", err)
			return
		}
	}

	owner := streamOwner(r)
	h.register(owner, &stream{watcher: watcher, cancel: cancel})
	defer h.unregister(owner, watcher)
	if token := shared.TokenFromContext(r.Context()); token != "" {
		h.creds.Put(company, owner, token)
		defer h.creds.Remove(company, owner)
	}

	changes, unsubscribe := h.broadcaster.Subscribe(company)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := writeEvent(w, "ready", map[string]any{"company": company, "conversation": watcher.Focused()}); err != nil {
		return
	}
	_ = rc.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		case change, ok := <-changes:
			if !ok {
				return
			}
			if err := writeEvent(w, change.Type, change); err != nil {
				h.logger.Debug("chat stream write", slog.Any("error", err))
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func (h *Handler) register(owner string, st *stream) {
	h.mu.Lock()
	prev, ok := h.streams[owner]
	h.streams[owner] = st
	h.mu.Unlock()
	if ok {
		prev.cancel()
	}
}

func (h *Handler) unregister(owner string, watcher *Watcher) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if st, ok := h.streams[owner]; ok && st.watcher == watcher {
		delete(h.streams, owner)
	}
}

func (h *Handler) company(w http.ResponseWriter, r *http.Request) (shared.ID, bool) {
	if user := rbac.PrincipalFromContext(r.Context()); user != nil && !user.CompanyID.IsZero() {
		return user.CompanyID, true
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil && sess.Company() != "" {
		return shared.ID(sess.Company()), true
	}
	httpx.Problem(w, http.StatusBadRequest, "Bad Request", "no company selected")
	return "", false
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Error("chat "+op, slog.Any("error", err))
	httpx.RespondError(w, err)
}

func writeEvent(w http.ResponseWriter, name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	return err
}

func conversationID(r *http.Request) shared.ID {
	return shared.ID(chi.URLParam(r, "id"))
}

func streamOwner(r *http.Request) string {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		return sess.ID
	}
	return r.RemoteAddr
}
