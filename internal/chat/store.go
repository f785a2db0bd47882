package chat

import (
	"sync"

	"github.com/odyssey-erp/odyssey-console/internal/shared"
)

// Store holds the reconciled chat state of every company the console serves.
// All methods are safe for concurrent use and return copies.
type Store struct {
	mu        sync.RWMutex
	companies map[shared.ID]*companyState
}

type companyState struct {
	loaded        bool
	order         []shared.ID
	conversations map[shared.ID]*Conversation
	messages      map[shared.ID]*messageLog
	watched       map[shared.ID]int
}

type messageLog struct {
	items []Message
	index map[shared.ID]int
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{companies: make(map[shared.ID]*companyState)}
}

func (s *Store) company(id shared.ID) *companyState {
	st, ok := s.companies[id]
	if !ok {
		st = &companyState{
			conversations: make(map[shared.ID]*Conversation),
			messages:      make(map[shared.ID]*messageLog),
			watched:       make(map[shared.ID]int),
		}
		s.companies[id] = st
	}
	return st
}

// Loaded reports whether the initial conversation fetch completed for company.
func (s *Store) Loaded(company shared.ID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.companies[company]
	return ok && st.loaded
}

// Conversations returns the ordered conversation list, most recent first.
func (s *Store) Conversations(company shared.ID) []Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.companies[company]
	if !ok {
		return []Conversation{}
	}
	out := make([]Conversation, 0, len(st.order))
	for _, id := range st.order {
		out = append(out, st.conversations[id].clone())
	}
	return out
}

// Conversation returns a held conversation.
func (s *Store) Conversation(company, id shared.ID) (Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.companies[company]
	if !ok {
		return Conversation{}, false
	}
	c, ok := st.conversations[id]
	if !ok {
		return Conversation{}, false
	}
	return c.clone(), true
}

// ReplaceConversations installs the result of the initial fetch. Conversations
// that arrived through events meanwhile stay ahead of the fetched list.
func (s *Store) ReplaceConversations(company shared.ID, list []Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.company(company)
	order := make([]shared.ID, 0, len(list)+len(st.order))
	convs := make(map[shared.ID]*Conversation, len(list)+len(st.order))
	for _, id := range st.order {
		order = append(order, id)
		convs[id] = st.conversations[id]
	}
	for _, c := range list {
		if _, seen := convs[c.ID]; seen || c.ID.IsZero() {
			continue
		}
		cp := c.clone()
		order = append(order, c.ID)
		convs[c.ID] = &cp
	}
	st.order = order
	st.conversations = convs
	st.loaded = true
}

// Merge applies p to a held conversation and moves it to the front. It
// reports false when the conversation is not held.
func (s *Store) Merge(company shared.ID, p ConversationPatch) (Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.company(company)
	c, ok := st.conversations[p.ID]
	if !ok {
		return Conversation{}, false
	}
	c.Merge(p)
	st.moveToFront(p.ID)
	return c.clone(), true
}

// Insert places c at the front. A conversation already held is replaced.
func (s *Store) Insert(company shared.ID, c Conversation) Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.company(company)
	cp := c.clone()
	if _, ok := st.conversations[c.ID]; !ok {
		st.order = append(st.order, c.ID)
	}
	st.conversations[c.ID] = &cp
	st.moveToFront(c.ID)
	return cp.clone()
}

func (st *companyState) moveToFront(id shared.ID) {
	idx := -1
	for i, cur := range st.order {
		if cur == id {
			idx = i
			break
		}
	}
	if idx <= 0 {
		return
	}
	copy(st.order[1:idx+1], st.order[:idx])
	st.order[0] = id
}

// AdjustUnread adds delta to the unread counter, never going below zero.
func (s *Store) AdjustUnread(company, id shared.ID, delta int) (Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.company(company)
	c, ok := st.conversations[id]
	if !ok {
		return Conversation{}, false
	}
	c.UnreadCount += delta
	if c.UnreadCount < 0 {
		c.UnreadCount = 0
	}
	return c.clone(), true
}

// ResetUnread zeroes the unread counter.
func (s *Store) ResetUnread(company, id shared.ID) (Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.company(company)
	c, ok := st.conversations[id]
	if !ok {
		return Conversation{}, false
	}
	c.UnreadCount = 0
	return c.clone(), true
}

// Messages returns the held messages of a conversation in arrival order and
// whether its log was loaded.
func (s *Store) Messages(company, conversation shared.ID) ([]Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.companies[company]
	if !ok {
		return nil, false
	}
	log, ok := st.messages[conversation]
	if !ok {
		return nil, false
	}
	return append([]Message(nil), log.items...), true
}

// ReplaceMessages installs a fetched message log, keeping messages that
// arrived through events and are absent from the fetch.
func (s *Store) ReplaceMessages(company, conversation shared.ID, msgs []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.company(company)
	fresh := &messageLog{index: make(map[shared.ID]int, len(msgs))}
	for _, m := range msgs {
		fresh.add(m)
	}
	if prev, ok := st.messages[conversation]; ok {
		for _, m := range prev.items {
			fresh.add(m)
		}
	}
	st.messages[conversation] = fresh
}

// AppendMessage adds m to its conversation log. Messages already held and
// conversations whose log was never loaded are skipped.
func (s *Store) AppendMessage(company shared.ID, m Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.company(company)
	log, ok := st.messages[m.ConversationID]
	if !ok {
		return false
	}
	return log.add(m)
}

// UpdateMessageStatus sets the status of a held message in place. The
// conversation's last message is updated too when it is the same message.
func (s *Store) UpdateMessageStatus(company, conversation, message shared.ID, status string) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.company(company)
	if c, ok := st.conversations[conversation]; ok && c.LastMessage != nil && c.LastMessage.ID == message {
		c.LastMessage.Status = status
	}
	log, ok := st.messages[conversation]
	if !ok {
		return Message{}, false
	}
	idx, ok := log.index[message]
	if !ok {
		return Message{}, false
	}
	log.items[idx].Status = status
	return log.items[idx], true
}

// Watch marks a conversation as open in some client.
func (s *Store) Watch(company, conversation shared.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.company(company).watched[conversation]++
}

// Unwatch releases one Watch.
func (s *Store) Unwatch(company, conversation shared.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.company(company)
	if st.watched[conversation] <= 1 {
		delete(st.watched, conversation)
		return
	}
	st.watched[conversation]--
}

// Watched reports whether any client has the conversation open.
func (s *Store) Watched(company, conversation shared.ID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.companies[company]
	return ok && st.watched[conversation] > 0
}

func (l *messageLog) add(m Message) bool {
	if m.ID.IsZero() {
		return false
	}
	if _, dup := l.index[m.ID]; dup {
		return false
	}
	l.index[m.ID] = len(l.items)
	l.items = append(l.items, m)
	return true
}
