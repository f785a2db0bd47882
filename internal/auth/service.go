package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/odyssey-erp/odyssey-console/internal/apiclient"
	"github.com/odyssey-erp/odyssey-console/internal/rbac"
	"github.com/odyssey-erp/odyssey-console/internal/shared"
)

const (
	loginPath  = "/auth/login"
	logoutPath = "/auth/logout"
)

// ErrMissingToken is returned when the login reply carries no bearer token.
var ErrMissingToken = errors.New("auth: login response carries no token")

// Upstream is the subset of the API client used for sign-in.
type Upstream interface {
	Post(ctx context.Context, token, path string, body, out any) error
}

// Principals resolves and forgets the owner of a bearer token.
type Principals interface {
	Principal(ctx context.Context, token string) (*rbac.User, error)
	Forget(ctx context.Context, token string) error
}

// Service wraps authentication against the business API.
type Service struct {
	api        Upstream
	tokens     *shared.TokenInspector
	principals Principals
	now        func() time.Time
}

// NewService constructs a new Service.
func NewService(api Upstream, tokens *shared.TokenInspector, principals Principals) *Service {
	return &Service{api: api, tokens: tokens, principals: principals, now: time.Now}
}

// Authenticate exchanges credentials for an upstream bearer token and the
// user it belongs to.
func (s *Service) Authenticate(ctx context.Context, creds Credentials) (*Grant, error) {
	var raw json.RawMessage
	if err := s.api.Post(ctx, "", loginPath, creds, &raw); err != nil {
		if apiclient.IsStatus(err, http.StatusUnauthorized) {
			return nil, shared.ErrInvalidCredentials
		}
		return nil, err
	}
	reply, err := decodeTokenResponse(raw)
	if err != nil {
		return nil, fmt.Errorf("auth: decode login response: %w", err)
	}
	token := reply.bearer()
	if token == "" {
		return nil, ErrMissingToken
	}

	claims, err := s.tokens.Inspect(token)
	if err != nil {
		return nil, fmt.Errorf("auth: inspect token: %w", err)
	}

	grant := &Grant{Token: token, ExpiresAt: claims.ExpiresAt}
	switch {
	case reply.ExpiresAt != nil:
		grant.ExpiresAt = *reply.ExpiresAt
	case reply.ExpiresIn > 0:
		grant.ExpiresAt = s.now().Add(time.Duration(reply.ExpiresIn) * time.Second)
	}

	if len(reply.User) > 0 && !bytes.Equal(reply.User, []byte("null")) {
		grant.User, err = rbac.DecodeUser(reply.User)
		if err != nil {
			return nil, fmt.Errorf("auth: decode login user: %w", err)
		}
		return grant, nil
	}
	grant.User, err = s.principals.Principal(ctx, token)
	if err != nil {
		return nil, err
	}
	return grant, nil
}

// Revoke signs token out upstream and drops its cached principal. The cache
// entry is dropped even when the upstream call fails.
func (s *Service) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	var errs []error
	if err := s.api.Post(ctx, token, logoutPath, nil, nil); err != nil && !apiclient.IsStatus(err, http.StatusUnauthorized) {
		errs = append(errs, fmt.Errorf("auth: upstream logout: %w", err))
	}
	if err := s.principals.Forget(ctx, token); err != nil {
		errs = append(errs, fmt.Errorf("auth: forget principal: %w", err))
	}
	return errors.Join(errs...)
}
