package chat

import (
	"errors"
	"fmt"
	"strings"

	"github.com/odyssey-erp/odyssey-console/internal/shared"
)

// ErrUnknownChannel is returned for channel names outside the chat scheme.
var ErrUnknownChannel = errors.New("chat: unknown channel")

// Scope distinguishes the two subscription scopes.
type Scope int

// Subscription scopes.
const (
	ScopeCompany Scope = iota + 1
	ScopeConversation
)

func (s Scope) String() string {
	switch s {
	case ScopeCompany:
		return "company"
	case ScopeConversation:
		return "conversation"
	default:
		return "unknown"
	}
}

const (
	companyPrefix      = "private-company."
	companySuffix      = ".conversations"
	conversationPrefix = "private-conversation."
)

// CompanyChannel names the company-wide conversation channel.
func CompanyChannel(companyID shared.ID) string {
	return companyPrefix + companyID.String() + companySuffix
}

// ConversationChannel names the per-conversation channel.
func ConversationChannel(conversationID shared.ID) string {
	return conversationPrefix + conversationID.String()
}

// ParseChannel returns the scope and identifier encoded in name.
func ParseChannel(name string) (Scope, shared.ID, error) {
	switch {
	case strings.HasPrefix(name, companyPrefix) && strings.HasSuffix(name, companySuffix):
		id := strings.TrimSuffix(strings.TrimPrefix(name, companyPrefix), companySuffix)
		if id == "" || strings.Contains(id, ".") {
			break
		}
		return ScopeCompany, shared.ID(id), nil
	case strings.HasPrefix(name, conversationPrefix):
		id := strings.TrimPrefix(name, conversationPrefix)
		if id == "" || strings.Contains(id, ".") {
			break
		}
		return ScopeConversation, shared.ID(id), nil
	}
	return 0, "", fmt.Errorf("%w: %q", ErrUnknownChannel, name)
}
