package auth

import (
	"encoding/json"
	"time"

	"github.com/odyssey-erp/odyssey-console/internal/rbac"
)

// Credentials are the sign-in fields posted by the console UI.
type Credentials struct {
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required,min=8"`
	DeviceName string `json:"device_name,omitempty" validate:"omitempty,max=120"`
}

// Grant is the outcome of a successful sign-in.
type Grant struct {
	Token     string
	ExpiresAt time.Time
	User      *rbac.User
}

// tokenResponse covers the shapes the business API uses for login replies.
type tokenResponse struct {
	Token       string          `json:"token"`
	AccessToken string          `json:"access_token"`
	ExpiresAt   *time.Time      `json:"expires_at"`
	ExpiresIn   int64           `json:"expires_in"`
	User        json.RawMessage `json:"user"`
}

func (t tokenResponse) bearer() string {
	if t.Token != "" {
		return t.Token
	}
	return t.AccessToken
}

// decodeTokenResponse reads a login reply, unwrapping a `{"data": ...}` envelope.
func decodeTokenResponse(raw json.RawMessage) (tokenResponse, error) {
	var wrapped struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && len(wrapped.Data) > 0 && wrapped.Data[0] == '{' {
		raw = wrapped.Data
	}
	var out tokenResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return tokenResponse{}, err
	}
	return out, nil
}
