package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-console/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-console/internal/rbac"
	"github.com/odyssey-erp/odyssey-console/internal/shared"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	rbac           rbac.Middleware
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, sessions *shared.SessionManager, csrf *shared.CSRFManager, rbacMW rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		sessionManager: sessions,
		csrfManager:    csrf,
		rbac:           rbacMW,
		validator:      validator.New(),
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/csrf", h.handleCSRF)
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.With(h.rbac.RequireAny()).Get("/me", h.handleMe)
}

type sessionView struct {
	User        *rbac.User `json:"user"`
	Permissions []string   `json:"permissions"`
	CSRFToken   string     `json:"csrf_token,omitempty"`
}

func (h *Handler) handleCSRF(w http.ResponseWriter, r *http.Request) {
	token, err := h.csrfManager.EnsureToken(shared.SessionFromContext(r.Context()))
	if err != nil {
		h.logger.Error("ensure csrf token", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": map[string]string{"token": token}})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during login")
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}

	var creds Credentials
	if err := httpx.DecodeJSON(r, &creds); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(creds); err != nil {
		httpx.RespondError(w, err)
		return
	}

	grant, err := h.service.Authenticate(r.Context(), creds)
	if err != nil {
		switch {
		case errors.Is(err, shared.ErrInvalidCredentials):
			httpx.Problem(w, http.StatusUnauthorized, "Invalid Credentials", "email or password is invalid")
		case errors.Is(err, shared.ErrTokenInvalid), errors.Is(err, shared.ErrTokenExpired), errors.Is(err, ErrMissingToken):
			h.logger.Error("login token rejected", slog.Any("error", err))
			httpx.Problem(w, http.StatusBadGateway, "Bad Gateway", "upstream issued an unusable token")
		default:
			h.logger.Warn("login failed", slog.Any("error", err))
			httpx.RespondError(w, err)
		}
		return
	}

	h.sessionManager.Renew(sess)
	sess.Delete(shared.CSRFSessionKey)
	sess.SetToken(grant.Token, grant.ExpiresAt)
	sess.SetUser(grant.User.ID.String(), grant.User.CompanyID.String())
	csrfToken, err := h.csrfManager.EnsureToken(sess)
	if err != nil {
		h.logger.Error("rotate csrf token", slog.Any("error", err))
	}

	h.logger.Info("user signed in", slog.String("user_id", grant.User.ID.String()), slog.String("company_id", grant.User.CompanyID.String()))
	httpx.JSON(w, http.StatusOK, map[string]any{"data": sessionView{
		User:        grant.User,
		Permissions: grant.User.ResolvedPermissions().Keys(),
		CSRFToken:   csrfToken,
	}})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if err := h.service.Revoke(r.Context(), sess.Token()); err != nil {
			h.logger.Warn("revoke token", slog.Any("error", err))
		}
		h.sessionManager.Destroy(sess)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	user := rbac.PrincipalFromContext(r.Context())
	httpx.JSON(w, http.StatusOK, map[string]any{"data": sessionView{
		User:        user,
		Permissions: user.ResolvedPermissions().Keys(),
	}})
}
