package shared

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims is the subset of the upstream bearer token the console reads.
type TokenClaims struct {
	Subject   string
	CompanyID string
	ExpiresAt time.Time
	// Opaque is set for non-JWT tokens; nothing else is known about them.
	Opaque bool
}

// TokenInspector reads expiry and subject from upstream bearer tokens.
// Without a secret the signature is not checked; the business API remains the
// authority on every request.
type TokenInspector struct {
	secret []byte
	now    func() time.Time
}

// NewTokenInspector builds an inspector. An empty secret disables verification.
func NewTokenInspector(secret string) *TokenInspector {
	return &TokenInspector{secret: []byte(secret), now: time.Now}
}

// Inspect parses raw. Opaque tokens yield Opaque claims and no error.
func (ti *TokenInspector) Inspect(raw string) (TokenClaims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return TokenClaims{}, ErrTokenInvalid
	}
	if strings.Count(raw, ".") != 2 {
		return TokenClaims{Opaque: true}, nil
	}

	claims := jwt.MapClaims{}
	if len(ti.secret) == 0 {
		if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
			return TokenClaims{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
		}
	} else {
		_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return ti.secret, nil
		}, jwt.WithTimeFunc(ti.now))
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				return TokenClaims{}, ErrTokenExpired
			}
			return TokenClaims{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
		}
	}

	out := TokenClaims{}
	if sub, err := claims.GetSubject(); err == nil {
		out.Subject = sub
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	if company, ok := claims["company_id"]; ok && company != nil {
		out.CompanyID = formatClaim(company)
	}
	if !out.ExpiresAt.IsZero() && !ti.now().Before(out.ExpiresAt) {
		return out, ErrTokenExpired
	}
	return out, nil
}

func formatClaim(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return fmt.Sprintf("%.0f", t)
	default:
		return fmt.Sprint(t)
	}
}
