package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/odyssey-erp/odyssey-console/internal/shared"
)

// ErrSourceClosed is returned by sources after Close.
var ErrSourceClosed = errors.New("chat: source closed")

// EventHandler receives decoded events from a Source.
type EventHandler func(ctx context.Context, ev Event)

// Source is a realtime transport delivering push events for subscribed
// channels.
type Source interface {
	Subscribe(ctx context.Context, channels ...string) error
	Unsubscribe(ctx context.Context, channels ...string) error
	// Run delivers events to handle until ctx is done or the source closes.
	Run(ctx context.Context, handle EventHandler) error
	Close() error
}

// Hub reference counts channel subscriptions on a Source and routes the
// events it delivers to the Reconciler.
type Hub struct {
	source     Source
	reconciler *Reconciler
	store      *Store
	metrics    *Metrics
	logger     *slog.Logger

	mu            sync.Mutex
	companies     map[shared.ID]int
	conversations map[shared.ID]*conversationWatch
}

// conversationWatch counts the watchers of one conversation channel per
// company. Events on the channel are applied to every watching company.
type conversationWatch struct {
	refs      int
	companies map[shared.ID]int
}

// NewHub constructs a Hub.
func NewHub(source Source, reconciler *Reconciler, store *Store, metrics *Metrics, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		source:        source,
		reconciler:    reconciler,
		store:         store,
		metrics:       metrics,
		logger:        logger,
		companies:     make(map[shared.ID]int),
		conversations: make(map[shared.ID]*conversationWatch),
	}
}

// Run pumps events from the source until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	err := h.source.Run(ctx, h.dispatch)
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrSourceClosed) {
		return nil
	}
	return err
}

// Close closes the source.
func (h *Hub) Close() error {
	return h.source.Close()
}

// WatchCompany subscribes to the company channel. The returned release func
// drops the reference; the last release unsubscribes.
func (h *Hub) WatchCompany(ctx context.Context, company shared.ID) (func(), error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.companies[company] == 0 {
		if err := h.source.Subscribe(ctx, CompanyChannel(company)); err != nil {
			return nil, fmt.Errorf("chat: subscribe company %s: %w", company, err)
		}
		h.metrics.subscribed(ScopeCompany, 1)
	}
	h.companies[company]++
	return h.releaseOnce(func() { h.releaseCompany(company) }), nil
}

// WatchConversation subscribes to a conversation channel and marks the
// conversation as watched so received messages do not count as unread.
func (h *Hub) WatchConversation(ctx context.Context, company, conversation shared.ID) (func(), error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	w, ok := h.conversations[conversation]
	if !ok {
		if err := h.source.Subscribe(ctx, ConversationChannel(conversation)); err != nil {
			return nil, fmt.Errorf("chat: subscribe conversation %s: %w", conversation, err)
		}
		h.metrics.subscribed(ScopeConversation, 1)
		w = &conversationWatch{companies: make(map[shared.ID]int)}
		h.conversations[conversation] = w
	}
	w.refs++
	w.companies[company]++
	h.store.Watch(company, conversation)
	return h.releaseOnce(func() { h.releaseConversation(company, conversation) }), nil
}

func (h *Hub) releaseOnce(fn func()) func() {
	var once sync.Once
	return func() { once.Do(fn) }
}

func (h *Hub) releaseCompany(company shared.ID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.companies[company]--
	if h.companies[company] > 0 {
		return
	}
	delete(h.companies, company)
	h.metrics.subscribed(ScopeCompany, -1)
	if err := h.source.Unsubscribe(context.Background(), CompanyChannel(company)); err != nil {
		h.logger.Warn("chat unsubscribe", slog.String("company", company.String()), slog.Any("error", err))
	}
}

func (h *Hub) releaseConversation(company, conversation shared.ID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.store.Unwatch(company, conversation)
	w, ok := h.conversations[conversation]
	if !ok {
		return
	}
	w.refs--
	if w.companies[company]--; w.companies[company] <= 0 {
		delete(w.companies, company)
	}
	if w.refs > 0 {
		return
	}
	delete(h.conversations, conversation)
	h.metrics.subscribed(ScopeConversation, -1)
	if err := h.source.Unsubscribe(context.Background(), ConversationChannel(conversation)); err != nil {
		h.logger.Warn("chat unsubscribe", slog.String("conversation", conversation.String()), slog.Any("error", err))
	}
}

// Subscribed reports whether channel currently holds a subscription.
func (h *Hub) Subscribed(channel string) bool {
	scope, id, err := ParseChannel(channel)
	if err != nil {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if scope == ScopeCompany {
		return h.companies[id] > 0
	}
	_, ok := h.conversations[id]
	return ok
}

func (h *Hub) dispatch(ctx context.Context, ev Event) {
	scope, id, err := ParseChannel(ev.Channel)
	if err != nil {
		h.logger.Debug("chat event on foreign channel", slog.String("channel", ev.Channel))
		return
	}
	if scope == ScopeCompany {
		if h.Subscribed(ev.Channel) {
			_ = h.reconciler.Apply(ctx, id, scope, ev)
		}
		return
	}
	for _, company := range h.conversationCompanies(id) {
		_ = h.reconciler.Apply(ctx, company, scope, ev)
	}
}

func (h *Hub) conversationCompanies(conversation shared.ID) []shared.ID {
	h.mu.Lock()
	defer h.mu.Unlock()
	w, ok := h.conversations[conversation]
	if !ok {
		return nil
	}
	out := make([]shared.ID, 0, len(w.companies))
	for company := range w.companies {
		out = append(out, company)
	}
	return out
}

// Watcher is one client's pair of subscriptions: its company and at most one
// focused conversation.
type Watcher struct {
	hub     *Hub
	company shared.ID

	mu             sync.Mutex
	releaseCompany func()
	focus          shared.ID
	releaseFocus   func()
}

// NewWatcher subscribes to company on behalf of one client.
func (h *Hub) NewWatcher(ctx context.Context, company shared.ID) (*Watcher, error) {
	release, err := h.WatchCompany(ctx, company)
	if err != nil {
		return nil, err
	}
	return &Watcher{hub: h, company: company, releaseCompany: release}, nil
}

// Focus switches the watched conversation, tearing the previous one down. An
// empty id only clears the focus.
func (w *Watcher) Focus(ctx context.Context, conversation shared.ID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if conversation == w.focus {
		return nil
	}
	if w.releaseFocus != nil {
		w.releaseFocus()
		w.releaseFocus = nil
		w.focus = ""
	}
	if conversation.IsZero() {
		return nil
	}
	release, err := w.hub.WatchConversation(ctx, w.company, conversation)
	if err != nil {
		return err
	}
	w.focus = conversation
	w.releaseFocus = release
	return nil
}

// Focused returns the watched conversation, empty when none.
func (w *Watcher) Focused() shared.ID {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.focus
}

// Company returns the watched company.
func (w *Watcher) Company() shared.ID {
	return w.company
}

// Close releases both subscriptions.
func (w *Watcher) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.releaseFocus != nil {
		w.releaseFocus()
		w.releaseFocus = nil
		w.focus = ""
	}
	if w.releaseCompany != nil {
		w.releaseCompany()
		w.releaseCompany = nil
	}
}
