package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/odyssey-erp/odyssey-console/internal/apiclient"
	"github.com/odyssey-erp/odyssey-console/internal/shared"
)

// ErrNoCredentials is returned when no signed-in client of a company is
// connected to fetch on behalf of.
var ErrNoCredentials = errors.New("chat: no credentials for company")

// Upstream is the subset of the API client the chat layer needs.
type Upstream interface {
	Get(ctx context.Context, token, path string, query url.Values, out any) error
	Post(ctx context.Context, token, path string, body, out any) error
}

// Credentials remembers the bearer tokens of the clients currently streaming
// a company so events can be reconciled outside a request.
type Credentials struct {
	mu      sync.Mutex
	byOwner map[shared.ID]map[string]string
}

// NewCredentials constructs an empty book.
func NewCredentials() *Credentials {
	return &Credentials{byOwner: make(map[shared.ID]map[string]string)}
}

// Put records token for owner within company.
func (c *Credentials) Put(company shared.ID, owner, token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	owners, ok := c.byOwner[company]
	if !ok {
		owners = make(map[string]string)
		c.byOwner[company] = owners
	}
	owners[owner] = token
}

// Remove forgets owner's token.
func (c *Credentials) Remove(company shared.ID, owner string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byOwner[company], owner)
	if len(c.byOwner[company]) == 0 {
		delete(c.byOwner, company)
	}
}

// Token returns any recorded token for company.
func (c *Credentials) Token(company shared.ID) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, token := range c.byOwner[company] {
		return token, true
	}
	return "", false
}

// APIFetcher fetches conversations from the business API using Credentials.
type APIFetcher struct {
	api   Upstream
	creds *Credentials
}

// NewAPIFetcher constructs an APIFetcher.
func NewAPIFetcher(api Upstream, creds *Credentials) *APIFetcher {
	return &APIFetcher{api: api, creds: creds}
}

// FetchConversation implements Fetcher. The token of the request session in
// ctx is preferred over the recorded credentials.
func (f *APIFetcher) FetchConversation(ctx context.Context, company, id shared.ID) (Conversation, error) {
	token := shared.TokenFromContext(ctx)
	if token == "" {
		var ok bool
		if token, ok = f.creds.Token(company); !ok {
			return Conversation{}, ErrNoCredentials
		}
	}
	return fetchConversation(ctx, f.api, token, id)
}

func fetchConversation(ctx context.Context, api Upstream, token string, id shared.ID) (Conversation, error) {
	var raw json.RawMessage
	if err := api.Get(ctx, token, conversationPath(id), nil, &raw); err != nil {
		return Conversation{}, err
	}
	var conv Conversation
	if err := apiclient.DecodeData(raw, &conv); err != nil {
		return Conversation{}, fmt.Errorf("chat: decode conversation: %w", err)
	}
	if conv.ID.IsZero() {
		conv.ID = id
	}
	return conv, nil
}

const conversationsPath = "/chat/conversations"

func conversationPath(id shared.ID) string {
	return conversationsPath + "/" + url.PathEscape(id.String())
}

func messagesPath(id shared.ID) string {
	return conversationPath(id) + "/messages"
}

func readPath(id shared.ID) string {
	return conversationPath(id) + "/read"
}
