package rbac

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/odyssey-erp/odyssey-console/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-console/internal/shared"
)

type principalContextKey struct{}

// ContextWithPrincipal stores the authenticated user in context.
func ContextWithPrincipal(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, principalContextKey{}, user)
}

// PrincipalFromContext extracts the authenticated user, nil when anonymous.
func PrincipalFromContext(ctx context.Context) *User {
	user, _ := ctx.Value(principalContextKey{}).(*User)
	return user
}

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
	Now     func() time.Time
}

// Authenticate resolves the session's bearer token into a principal. Requests
// without a usable token continue anonymously; the guards decide what that
// means.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		if sess == nil || sess.Token() == "" {
			next.ServeHTTP(w, r)
			return
		}
		if sess.TokenExpired(m.now()) {
			m.forget(r.Context(), sess)
			next.ServeHTTP(w, r)
			return
		}
		user, err := m.Service.Principal(r.Context(), sess.Token())
		if err != nil {
			if errors.Is(err, ErrUnauthenticated) {
				m.forget(r.Context(), sess)
				next.ServeHTTP(w, r)
				return
			}
			m.logger().Error("rbac resolve principal", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), user)))
	})
}

// RequireAny ensures the current user has at least one of the required
// permissions. Without permissions only authentication is required.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return m.guard(func(u *User) bool {
		return len(normalized) == 0 || HasAnyPermission(u, normalized...)
	})
}

// RequireAll ensures the current user has all required permissions.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return m.guard(func(u *User) bool {
		return HasAllPermissions(u, normalized...)
	})
}

func (m Middleware) guard(allowed func(*User) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := PrincipalFromContext(r.Context())
			if user == nil {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "sign in required")
				return
			}
			if !allowed(user) {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "missing permission")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) forget(ctx context.Context, sess *shared.Session) {
	if err := m.Service.Forget(ctx, sess.Token()); err != nil {
		m.logger().Warn("rbac forget principal", slog.Any("error", err))
	}
	sess.ClearAuth()
}

func (m Middleware) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m Middleware) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}
