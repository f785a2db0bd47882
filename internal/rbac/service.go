package rbac

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"

	"github.com/odyssey-erp/odyssey-console/internal/apiclient"
	"github.com/odyssey-erp/odyssey-console/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-console/internal/shared"
)

// ErrUnauthenticated indicates that no usable bearer token is available.
var ErrUnauthenticated = errors.New("rbac: unauthenticated")

// principalPath is the upstream endpoint describing the token's owner.
const principalPath = "/auth/me"

// Upstream is the subset of the API client the service needs.
type Upstream interface {
	Get(ctx context.Context, token, path string, query url.Values, out any) error
}

// Service resolves principals and the permission catalog.
type Service struct {
	api   Upstream
	cache *cache.JSONCache
}

// NewService constructs a Service. cache may be nil.
func NewService(api Upstream, cache *cache.JSONCache) *Service {
	return &Service{api: api, cache: cache}
}

// Principal returns the user owning token, consulting the cache first.
func (s *Service) Principal(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}
	var user User
	err := s.cache.FetchJSON(ctx, cacheKey(token), &user, func(ctx context.Context) (any, error) {
		return s.fetchPrincipal(ctx, token)
	})
	if err != nil {
		if apiclient.IsStatus(err, http.StatusUnauthorized) {
			return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
		}
		return nil, err
	}
	return &user, nil
}

// Forget drops the cached principal for token.
func (s *Service) Forget(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.cache.Delete(ctx, cacheKey(token))
}

func (s *Service) fetchPrincipal(ctx context.Context, token string) (*User, error) {
	var raw json.RawMessage
	if err := s.api.Get(ctx, token, principalPath, nil, &raw); err != nil {
		return nil, err
	}
	user, err := DecodeUser(raw)
	if err != nil {
		return nil, fmt.Errorf("rbac: decode principal: %w", err)
	}
	return user, nil
}

// DecodeUser reads a user from an upstream body that is either the user
// itself, `{"data": user}` or `{"user": user}`.
func DecodeUser(raw json.RawMessage) (*User, error) {
	body := apiclient.Unwrap(raw)
	var wrapped struct {
		User json.RawMessage `json:"user"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && len(wrapped.User) > 0 && string(wrapped.User) != "null" {
		body = wrapped.User
	}
	var user User
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, err
	}
	if user.ID.IsZero() {
		return nil, errors.New("user id missing")
	}
	return &user, nil
}

// ListPermissions returns the permission keys the console guards on.
func (s *Service) ListPermissions() []Permission {
	keys := shared.AllScopes()
	sort.Strings(keys)
	perms := make([]Permission, 0, len(keys))
	for _, k := range keys {
		perms = append(perms, Permission{Name: k})
	}
	return perms
}

func cacheKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
