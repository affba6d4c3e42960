// ABOUTME: Store interface and data types for flux-gateway persistence
// ABOUTME: Defines Conversation, Message, AgentStatus, Document and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Conversation is a chat thread between a user and the assistant
type Conversation struct {
	ID        int64
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Role constants for message authorship
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// MessageType constants for message input modality
const (
	MessageTypeText  = "text"
	MessageTypeVoice = "voice"
	MessageTypeImage = "image"
)

// Message is a single turn within a conversation.
// Metadata and AgentUsed are nil when absent, not empty values.
type Message struct {
	ID             int64
	ConversationID int64
	Content        string
	Role           string // "user", "assistant", "system"
	MessageType    string // "text", "voice", "image" (defaults to "text")
	Metadata       map[string]any
	AgentUsed      *string
	CreatedAt      time.Time
}

// AgentStatus constants for worker health states
const (
	AgentStatusActive     = "active"
	AgentStatusProcessing = "processing"
	AgentStatusStandby    = "standby"
	AgentStatusReady      = "ready"
	AgentStatusError      = "error"
)

// AgentStatus tracks the health of a named backend worker.
// AgentName is the natural key: at most one live record per name.
type AgentStatus struct {
	ID           int64
	AgentName    string
	Status       string
	LastActivity time.Time
	Metadata     map[string]any
}

// Document is an indexed document record (content plus provenance).
// Search over documents lives in the backend, not here.
type Document struct {
	ID           int64
	Title        string
	Content      string
	FilePath     *string
	DocumentType string
	CreatedAt    time.Time
}

// ConversationPatch carries fields accepted by UpdateConversation.
// Nil fields are left unchanged.
type ConversationPatch struct {
	Title *string
}

// MessagePatch carries fields accepted by UpdateMessage.
type MessagePatch struct {
	Content   *string
	Metadata  map[string]any
	AgentUsed *string
}

// AgentStatusPatch carries fields accepted by UpsertAgentStatus and
// UpdateAgentStatusByName.
type AgentStatusPatch struct {
	Status   *string
	Metadata map[string]any
}

// CreateMessage is the payload for the message create operation.
type CreateMessage struct {
	ConversationID int64
	Content        string
	Role           string
	MessageType    string
	Metadata       map[string]any
	AgentUsed      *string
}

// CreateDocument is the payload for the document create operation.
type CreateDocument struct {
	Title        string
	Content      string
	FilePath     *string
	DocumentType string
}

// Store defines the interface for entity persistence. All identifiers are
// drawn from one shared monotonically increasing counter; swapping the
// in-memory backing for SQLite preserves identical semantics.
type Store interface {
	// Conversations
	CreateConversation(ctx context.Context, title string, now time.Time) (*Conversation, error)
	GetConversation(ctx context.Context, id int64) (*Conversation, error)
	ListConversations(ctx context.Context) ([]*Conversation, error)
	UpdateConversation(ctx context.Context, id int64, patch ConversationPatch, now time.Time) (*Conversation, error)
	// DeleteConversation removes the conversation and every message that
	// belongs to it in one atomic step, so no reader observes the messages
	// of an already-deleted conversation.
	DeleteConversation(ctx context.Context, id int64) error

	// Messages
	CreateMessage(ctx context.Context, create CreateMessage, now time.Time) (*Message, error)
	GetMessage(ctx context.Context, id int64) (*Message, error)
	ListMessagesByConversation(ctx context.Context, conversationID int64) ([]*Message, error)
	UpdateMessage(ctx context.Context, id int64, patch MessagePatch) (*Message, error)
	DeleteMessage(ctx context.Context, id int64) error

	// Agent statuses (keyed by agent name)
	UpsertAgentStatus(ctx context.Context, agentName string, patch AgentStatusPatch, now time.Time) (*AgentStatus, error)
	GetAgentStatusByName(ctx context.Context, agentName string) (*AgentStatus, error)
	ListAgentStatuses(ctx context.Context) ([]*AgentStatus, error)
	UpdateAgentStatusByName(ctx context.Context, agentName string, patch AgentStatusPatch, now time.Time) (*AgentStatus, error)

	// Documents
	CreateDocument(ctx context.Context, create CreateDocument, now time.Time) (*Document, error)
	GetDocument(ctx context.Context, id int64) (*Document, error)
	ListDocuments(ctx context.Context) ([]*Document, error)
	DeleteDocument(ctx context.Context, id int64) error

	// Close releases any resources held by the store
	Close() error
}
