package shared

// Chat permissions.
const (
	PermChatView = "chat.view"
	PermChatSend = "chat.send"
)

// ChatScopes lists chat permissions.
func ChatScopes() []string {
	return []string{PermChatView, PermChatSend}
}

// AllScopes concatenates every declared permission key.
func AllScopes() []string {
	scopes := CoreScopes()
	scopes = append(scopes, BusinessScopes()...)
	scopes = append(scopes, ChatScopes()...)
	return scopes
}
