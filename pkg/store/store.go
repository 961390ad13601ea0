// Package store owns the conversation collection and user records. Two
// implementations exist: MemoryStore for in-process state and GormStore
// backed by Postgres.
package store

import (
	"errors"
	"time"

	"advisorai/pkg/domain"
)

var (
	// ErrNotFound reports an operation against a conversation or message
	// that no longer exists.
	ErrNotFound = errors.New("conversation not found")
	// ErrAlreadyStreaming reports a second assistant reply requested while
	// one is still in flight for the same conversation.
	ErrAlreadyStreaming = errors.New("assistant reply already streaming")
)

// Store defines persistence operations for users and conversations.
//
// ApplyStreamSnapshot and TouchConversation are deliberately no-ops when the
// target has been deleted: an in-flight turn whose conversation vanished must
// drain silently rather than error.
type Store interface {
	// users
	SaveUser(domain.User) error
	HasUserEmail(email string) (bool, error)
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)

	// conversations
	CreateConversation(conv domain.Conversation) error
	GetConversation(id string) (domain.Conversation, bool, error)
	ListConversationsByUser(userID string) ([]domain.Conversation, error)
	DeleteConversation(id string) error
	TouchConversation(id string, at time.Time) error

	// messages
	AppendUserMessage(conversationID, content string, hidden bool) (domain.Message, error)
	BeginAssistantReply(conversationID string) (domain.Message, error)
	ApplyStreamSnapshot(conversationID, messageID string, snap domain.Snapshot) error
	ListMessages(conversationID string) ([]domain.Message, error)
}
