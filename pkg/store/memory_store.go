package store

import (
	"sync"
	"time"

	"advisorai/pkg/domain"
)

// MemoryStore keeps all state in-process. Conversations are held newest
// first; presentation-level ordering (recency buckets) is derived on read.
type MemoryStore struct {
	mu    sync.RWMutex
	convs map[string]*domain.Conversation
	order []string // conversation IDs, newest first
	users map[string]domain.User
	email map[string]string // email -> user ID
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		convs: make(map[string]*domain.Conversation),
		users: make(map[string]domain.User),
		email: make(map[string]string),
	}
}

// SaveUser registers or replaces a user.
func (m *MemoryStore) SaveUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	m.email[u.Email] = u.ID
	return nil
}

// HasUserEmail checks if email exists.
func (m *MemoryStore) HasUserEmail(email string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.email[email]
	return ok, nil
}

// GetUserByEmail looks up a user by email.
func (m *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id, ok := m.email[email]; ok {
		u, exists := m.users[id]
		return u, exists, nil
	}
	return domain.User{}, false, nil
}

// GetUserByID returns a user by ID.
func (m *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

// CreateConversation stores a new conversation at the front of the order.
func (m *MemoryStore) CreateConversation(conv domain.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.convs[conv.ID]; !exists {
		m.order = append([]string{conv.ID}, m.order...)
	}
	stored := conv
	stored.Messages = append([]domain.Message(nil), conv.Messages...)
	m.convs[conv.ID] = &stored
	return nil
}

// GetConversation retrieves a conversation with a copied message list.
func (m *MemoryStore) GetConversation(id string) (domain.Conversation, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conv, ok := m.convs[id]
	if !ok {
		return domain.Conversation{}, false, nil
	}
	return copyConversation(conv), true, nil
}

// ListConversationsByUser returns the user's conversations, newest first.
func (m *MemoryStore) ListConversationsByUser(userID string) ([]domain.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Conversation, 0, len(m.order))
	for _, id := range m.order {
		if conv, ok := m.convs[id]; ok && conv.UserID == userID {
			res = append(res, copyConversation(conv))
		}
	}
	return res, nil
}

// DeleteConversation removes a conversation and its messages.
func (m *MemoryStore) DeleteConversation(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.convs[id]; !ok {
		return ErrNotFound
	}
	delete(m.convs, id)
	filtered := m.order[:0]
	for _, item := range m.order {
		if item != id {
			filtered = append(filtered, item)
		}
	}
	m.order = filtered
	return nil
}

// TouchConversation updates the recency timestamp. Vanished targets are a
// no-op so a cancelled turn can drain without erroring.
func (m *MemoryStore) TouchConversation(id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if conv, ok := m.convs[id]; ok {
		conv.UpdatedAt = at
	}
	return nil
}

// AppendUserMessage appends a user message; the first visible message also
// sets the conversation title.
func (m *MemoryStore) AppendUserMessage(conversationID, content string, hidden bool) (domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.convs[conversationID]
	if !ok {
		return domain.Message{}, ErrNotFound
	}
	msg := domain.NewUserMessage(content, hidden)
	if len(conv.Messages) == 0 && !hidden {
		if title := domain.TitleFromContent(content); title != "" {
			conv.Title = title
		}
	}
	conv.Messages = append(conv.Messages, msg)
	return msg, nil
}

// BeginAssistantReply appends an empty streaming assistant message,
// enforcing at most one streaming message per conversation.
func (m *MemoryStore) BeginAssistantReply(conversationID string) (domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.convs[conversationID]
	if !ok {
		return domain.Message{}, ErrNotFound
	}
	for _, msg := range conv.Messages {
		if msg.IsStreaming {
			return domain.Message{}, ErrAlreadyStreaming
		}
	}
	msg := domain.NewAssistantMessage()
	conv.Messages = append(conv.Messages, msg)
	return msg, nil
}

// ApplyStreamSnapshot replaces the mutable fields of the streaming message.
// A vanished conversation or message is a no-op.
func (m *MemoryStore) ApplyStreamSnapshot(conversationID, messageID string, snap domain.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.convs[conversationID]
	if !ok {
		return nil
	}
	for i := range conv.Messages {
		if conv.Messages[i].ID != messageID {
			continue
		}
		conv.Messages[i].Content = snap.RawText
		conv.Messages[i].Sources = append([]domain.GroundingSource(nil), snap.Sources...)
		conv.Messages[i].IsStreaming = snap.IsStreaming
		return nil
	}
	return nil
}

// ListMessages returns the messages of a conversation in order.
func (m *MemoryStore) ListMessages(conversationID string) ([]domain.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conv, ok := m.convs[conversationID]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]domain.Message(nil), conv.Messages...), nil
}

func copyConversation(conv *domain.Conversation) domain.Conversation {
	out := *conv
	out.Messages = append([]domain.Message(nil), conv.Messages...)
	return out
}
