package shared_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-console/internal/shared"
)

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestTokenInspector(t *testing.T) {
	const secret = "upstream-secret"
	valid := signToken(t, secret, jwt.MapClaims{
		"sub":        "42",
		"company_id": float64(7),
		"exp":        time.Now().Add(time.Hour).Unix(),
	})
	expired := signToken(t, secret, jwt.MapClaims{
		"sub": "42",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})

	tests := []struct {
		name    string
		secret  string
		token   string
		wantErr error
		check   func(t *testing.T, c shared.TokenClaims)
	}{
		{
			name:   "verified token",
			secret: secret,
			token:  valid,
			check: func(t *testing.T, c shared.TokenClaims) {
				assert.Equal(t, "42", c.Subject)
				assert.Equal(t, "7", c.CompanyID)
				assert.False(t, c.ExpiresAt.IsZero())
			},
		},
		{
			name:  "unverified token without secret",
			token: signToken(t, "other", jwt.MapClaims{"sub": "1", "exp": time.Now().Add(time.Hour).Unix()}),
			check: func(t *testing.T, c shared.TokenClaims) {
				assert.Equal(t, "1", c.Subject)
			},
		},
		{name: "wrong signature", secret: "different", token: valid, wantErr: shared.ErrTokenInvalid},
		{name: "expired verified", secret: secret, token: expired, wantErr: shared.ErrTokenExpired},
		{name: "expired unverified", token: expired, wantErr: shared.ErrTokenExpired},
		{name: "empty", token: "  ", wantErr: shared.ErrTokenInvalid},
		{
			name:  "opaque token",
			token: "12|plain-text-token",
			check: func(t *testing.T, c shared.TokenClaims) {
				assert.True(t, c.Opaque)
				assert.True(t, c.ExpiresAt.IsZero())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := shared.NewTokenInspector(tt.secret).Inspect(tt.token)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, claims)
		})
	}
}

func TestIDUnmarshal(t *testing.T) {
	var v struct {
		A shared.ID `json:"a"`
		B shared.ID `json:"b"`
		C shared.ID `json:"c"`
	}
	require.NoError(t, jsonUnmarshal(`{"a": 12, "b": "uuid-1", "c": null}`, &v))
	assert.Equal(t, shared.ID("12"), v.A)
	assert.Equal(t, shared.ID("uuid-1"), v.B)
	assert.True(t, v.C.IsZero())
}
