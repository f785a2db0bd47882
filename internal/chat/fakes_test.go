package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"

	"github.com/odyssey-erp/odyssey-console/internal/apiclient"
	"github.com/odyssey-erp/odyssey-console/internal/shared"
)

type fakeAPI struct {
	mu        sync.Mutex
	responses map[string]string
	gets      map[string]int
	posts     []string
	postBody  []any
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{responses: map[string]string{}, gets: map[string]int{}}
}

func (f *fakeAPI) set(method, path, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[method+" "+path] = body
}

func (f *fakeAPI) getCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets[path]
}

func (f *fakeAPI) reply(method, path string, out any) error {
	body, ok := f.responses[method+" "+path]
	if !ok {
		return &apiclient.APIError{Status: http.StatusNotFound, Message: "not found"}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal([]byte(body), out)
}

func (f *fakeAPI) Get(_ context.Context, _ string, path string, _ url.Values, out any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets[path]++
	return f.reply(http.MethodGet, path, out)
}

func (f *fakeAPI) Post(_ context.Context, _ string, path string, body, out any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = append(f.posts, path)
	f.postBody = append(f.postBody, body)
	return f.reply(http.MethodPost, path, out)
}

type fakeFetcher struct {
	mu    sync.Mutex
	calls int
	convs map[shared.ID]Conversation
	err   error
}

func (f *fakeFetcher) FetchConversation(_ context.Context, _ shared.ID, id shared.ID) (Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return Conversation{}, f.err
	}
	c, ok := f.convs[id]
	if !ok {
		return Conversation{}, &apiclient.APIError{Status: http.StatusNotFound}
	}
	return c, nil
}

type notification struct {
	conversation shared.ID
	message      shared.ID
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (f *fakeNotifier) NotifyMessage(_ context.Context, _ shared.ID, conv Conversation, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, notification{conversation: conv.ID, message: msg.ID})
	return nil
}

type fakeSource struct {
	mu           sync.Mutex
	subscribed   map[string]int
	unsubscribed []string
	events       chan Event
}

func newFakeSource() *fakeSource {
	return &fakeSource{subscribed: map[string]int{}, events: make(chan Event, 16)}
}

func (f *fakeSource) Subscribe(_ context.Context, channels ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range channels {
		f.subscribed[ch]++
	}
	return nil
}

func (f *fakeSource) Unsubscribe(_ context.Context, channels ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribed = append(f.unsubscribed, channels...)
	for _, ch := range channels {
		delete(f.subscribed, ch)
	}
	return nil
}

func (f *fakeSource) isSubscribed(ch string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribed[ch] > 0
}

func (f *fakeSource) Run(ctx context.Context, handle EventHandler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-f.events:
			if !ok {
				return ErrSourceClosed
			}
			handle(ctx, ev)
		}
	}
}

func (f *fakeSource) Close() error { return nil }
