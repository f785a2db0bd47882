package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-console/internal/apiclient"
	"github.com/odyssey-erp/odyssey-console/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-console/internal/shared"
)

// ErrConversationNotFound is returned when a conversation is not visible to
// the caller's company.
var ErrConversationNotFound = fmt.Errorf("chat: conversation %w", httpx.ErrNotFound)

// SendInput is the body of a send message request.
type SendInput struct {
	Body string `json:"body" validate:"required,max=5000"`
}

// Service serves the chat screens from the reconciled Store, falling back to
// the business API for anything not yet held.
type Service struct {
	api        Upstream
	store      *Store
	reconciler *Reconciler
	validate   *validator.Validate
}

// NewService constructs a Service.
func NewService(api Upstream, store *Store, reconciler *Reconciler) *Service {
	return &Service{api: api, store: store, reconciler: reconciler, validate: validator.New()}
}

// Conversations lists the company's conversations, performing the initial
// fetch on first access.
func (s *Service) Conversations(ctx context.Context, token string, company shared.ID) ([]Conversation, error) {
	if !s.store.Loaded(company) {
		var raw json.RawMessage
		if err := s.api.Get(ctx, token, conversationsPath, nil, &raw); err != nil {
			return nil, err
		}
		var list []Conversation
		if err := apiclient.DecodeData(raw, &list); err != nil {
			return nil, fmt.Errorf("chat: decode conversations: %w", err)
		}
		s.store.ReplaceConversations(company, list)
	}
	return s.store.Conversations(company), nil
}

// Conversation returns one conversation, held or fetched.
func (s *Service) Conversation(ctx context.Context, token string, company, id shared.ID) (Conversation, error) {
	if c, ok := s.store.Conversation(company, id); ok {
		return c, nil
	}
	return fetchConversation(ctx, s.api, token, id)
}

// Owned checks that conversation belongs to company. Held conversations pass;
// others are looked up upstream with the caller's token.
func (s *Service) Owned(ctx context.Context, token string, company, id shared.ID) error {
	if _, ok := s.store.Conversation(company, id); ok {
		return nil
	}
	conv, err := fetchConversation(ctx, s.api, token, id)
	if err != nil {
		var apiErr *apiclient.APIError
		if errors.As(err, &apiErr) && (apiErr.Status == http.StatusNotFound || apiErr.Status == http.StatusForbidden) {
			return ErrConversationNotFound
		}
		return err
	}
	if !conv.CompanyID.IsZero() && conv.CompanyID != company {
		return ErrConversationNotFound
	}
	return nil
}

// Messages lists a conversation's messages, fetching the log on first access.
func (s *Service) Messages(ctx context.Context, token string, company, conversation shared.ID) ([]Message, error) {
	if msgs, ok := s.store.Messages(company, conversation); ok {
		return msgs, nil
	}
	var raw json.RawMessage
	if err := s.api.Get(ctx, token, messagesPath(conversation), nil, &raw); err != nil {
		return nil, err
	}
	var msgs []Message
	if err := apiclient.DecodeData(raw, &msgs); err != nil {
		return nil, fmt.Errorf("chat: decode messages: %w", err)
	}
	for i := range msgs {
		if msgs[i].ConversationID.IsZero() {
			msgs[i].ConversationID = conversation
		}
	}
	s.store.ReplaceMessages(company, conversation, msgs)
	held, _ := s.store.Messages(company, conversation)
	return held, nil
}

// Send posts a message upstream and records it locally.
func (s *Service) Send(ctx context.Context, token string, company, conversation shared.ID, in SendInput) (Message, error) {
	if err := s.validate.Struct(in); err != nil {
		return Message{}, err
	}
	var raw json.RawMessage
	if err := s.api.Post(ctx, token, messagesPath(conversation), in, &raw); err != nil {
		return Message{}, err
	}
	var msg Message
	if err := apiclient.DecodeData(raw, &msg); err != nil {
		return Message{}, fmt.Errorf("chat: decode message: %w", err)
	}
	if msg.ConversationID.IsZero() {
		msg.ConversationID = conversation
	}
	// The message is stored upstream; a local reconcile failure is logged only.
	_ = s.reconciler.ApplyMessage(ctx, company, msg)
	return msg, nil
}

// MarkRead tells the API the conversation was read and resets its counter.
func (s *Service) MarkRead(ctx context.Context, token string, company, conversation shared.ID) (Conversation, error) {
	if err := s.api.Post(ctx, token, readPath(conversation), struct{}{}, nil); err != nil {
		return Conversation{}, err
	}
	c, ok := s.store.ResetUnread(company, conversation)
	if !ok {
		return fetchConversation(ctx, s.api, token, conversation)
	}
	s.reconciler.publish(company, Change{Type: ChangeConversation, Conversation: &c})
	return c, nil
}
