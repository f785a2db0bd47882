package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-console/internal/shared"
)

// ErrUnknownEvent is returned for event names the reconciler does not handle.
var ErrUnknownEvent = errors.New("chat: unknown event")

// Fetcher loads full conversation details from the business API.
type Fetcher interface {
	FetchConversation(ctx context.Context, company, id shared.ID) (Conversation, error)
}

// Notifier is told about messages received in conversations nobody is
// looking at.
type Notifier interface {
	NotifyMessage(ctx context.Context, company shared.ID, conv Conversation, msg Message) error
}

// Reconciler applies push events to the Store.
type Reconciler struct {
	store       *Store
	fetcher     Fetcher
	notifier    Notifier
	broadcaster *Broadcaster
	metrics     *Metrics
	logger      *slog.Logger
	validate    *validator.Validate
	group       singleflight.Group
}

// ReconcilerOption customises a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithNotifier sets the notifier for received messages.
func WithNotifier(n Notifier) ReconcilerOption {
	return func(r *Reconciler) { r.notifier = n }
}

// WithBroadcaster publishes every applied change to stream clients.
func WithBroadcaster(b *Broadcaster) ReconcilerOption {
	return func(r *Reconciler) { r.broadcaster = b }
}

// WithMetrics records applied events.
func WithMetrics(m *Metrics) ReconcilerOption {
	return func(r *Reconciler) { r.metrics = m }
}

// NewReconciler constructs a Reconciler.
func NewReconciler(store *Store, fetcher Fetcher, logger *slog.Logger, opts ...ReconcilerOption) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reconciler{
		store:    store,
		fetcher:  fetcher,
		logger:   logger,
		validate: validator.New(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Apply reconciles ev received on a channel of the given scope for company.
func (r *Reconciler) Apply(ctx context.Context, company shared.ID, scope Scope, ev Event) error {
	var err error
	switch ev.Name {
	case EventMessageReceived, EventMessageSent:
		var msg Message
		var conv *ConversationPatch
		msg, conv, err = r.decodeMessage(ev.Data)
		if err == nil {
			err = r.applyMessage(ctx, company, scope, ev.Name, msg, conv)
		}
	case EventConversationUpdated:
		var patch ConversationPatch
		if err = r.decode(ev.Data, &patch); err == nil {
			err = r.applyConversation(ctx, company, patch)
		}
	case EventMessageStatusUpdated:
		var status statusPayload
		if err = r.decode(ev.Data, &status); err == nil {
			r.applyStatus(company, status)
		}
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Name)
	}
	r.metrics.observeEvent(ev.Name, scope, err)
	if err != nil {
		r.logger.Warn("chat event not applied",
			slog.String("event", ev.Name),
			slog.String("channel", ev.Channel),
			slog.String("company", company.String()),
			slog.Any("error", err))
	}
	return err
}

// ApplyMessage records a message the console itself sent.
func (r *Reconciler) ApplyMessage(ctx context.Context, company shared.ID, msg Message) error {
	err := r.validate.Struct(msg)
	if err == nil {
		err = r.applyMessage(ctx, company, ScopeCompany, EventMessageSent, msg, nil)
	}
	if err != nil {
		r.logger.Warn("chat local message not applied",
			slog.String("company", company.String()),
			slog.String("conversation", msg.ConversationID.String()),
			slog.Any("error", err))
	}
	return err
}

func (r *Reconciler) applyMessage(ctx context.Context, company shared.ID, scope Scope, name string, msg Message, conv *ConversationPatch) error {
	if r.store.AppendMessage(company, msg) {
		r.publish(company, Change{Type: ChangeMessage, Message: &msg})
	}
	if scope != ScopeCompany {
		return nil
	}

	patch := ConversationPatch{ID: msg.ConversationID}
	if conv != nil && conv.ID == msg.ConversationID {
		patch = *conv
	}
	last := msg
	patch.LastMessage = &last
	if patch.UpdatedAt == nil && !msg.CreatedAt.IsZero() {
		at := msg.CreatedAt
		patch.UpdatedAt = &at
	}
	updated, err := r.upsert(ctx, company, patch)
	if err != nil {
		return err
	}

	if name == EventMessageReceived && !r.store.Watched(company, msg.ConversationID) {
		if counted, ok := r.store.AdjustUnread(company, msg.ConversationID, 1); ok {
			updated = counted
		}
		if r.notifier != nil {
			if err := r.notifier.NotifyMessage(ctx, company, updated, msg); err != nil {
				r.logger.Warn("chat notify", slog.String("conversation", msg.ConversationID.String()), slog.Any("error", err))
			}
		}
	}
	r.publish(company, Change{Type: ChangeConversation, Conversation: &updated})
	return nil
}

func (r *Reconciler) applyConversation(ctx context.Context, company shared.ID, patch ConversationPatch) error {
	updated, err := r.upsert(ctx, company, patch)
	if err != nil {
		return err
	}
	r.publish(company, Change{Type: ChangeConversation, Conversation: &updated})
	return nil
}

func (r *Reconciler) applyStatus(company shared.ID, p statusPayload) {
	msg, ok := r.store.UpdateMessageStatus(company, p.ConversationID, p.MessageID, p.Status)
	if !ok {
		return
	}
	r.publish(company, Change{Type: ChangeStatus, Message: &msg})
}

// upsert merges patch into a held conversation, or fetches the conversation
// once and inserts it at the front.
func (r *Reconciler) upsert(ctx context.Context, company shared.ID, patch ConversationPatch) (Conversation, error) {
	if merged, ok := r.store.Merge(company, patch); ok {
		return merged, nil
	}
	key := company.String() + "/" + patch.ID.String()
	v, err, _ := r.group.Do(key, func() (any, error) {
		if held, ok := r.store.Conversation(company, patch.ID); ok {
			return held, nil
		}
		fetched, err := r.fetcher.FetchConversation(ctx, company, patch.ID)
		if err != nil {
			return nil, fmt.Errorf("chat: fetch conversation %s: %w", patch.ID, err)
		}
		return r.store.Insert(company, fetched), nil
	})
	if err != nil {
		return Conversation{}, err
	}
	if merged, ok := r.store.Merge(company, patch); ok {
		return merged, nil
	}
	return v.(Conversation), nil
}

func (r *Reconciler) publish(company shared.ID, c Change) {
	if r.broadcaster != nil {
		r.broadcaster.Publish(company, c)
	}
}

func (r *Reconciler) decode(data json.RawMessage, out any) error {
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("chat: decode payload: %w", err)
	}
	if err := r.validate.Struct(out); err != nil {
		return fmt.Errorf("chat: payload: %w", err)
	}
	return nil
}

func (r *Reconciler) decodeMessage(data json.RawMessage) (Message, *ConversationPatch, error) {
	var payload messagePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return Message{}, nil, fmt.Errorf("chat: decode payload: %w", err)
	}
	var msg Message
	if payload.Message != nil {
		msg = *payload.Message
	} else if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, nil, fmt.Errorf("chat: decode payload: %w", err)
	}
	if msg.ConversationID.IsZero() && payload.Conversation != nil {
		msg.ConversationID = payload.Conversation.ID
	}
	if err := r.validate.Struct(msg); err != nil {
		return Message{}, nil, fmt.Errorf("chat: payload: %w", err)
	}
	if payload.Conversation != nil && payload.Conversation.ID.IsZero() {
		payload.Conversation = nil
	}
	return msg, payload.Conversation, nil
}
