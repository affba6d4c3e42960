// ABOUTME: ConversationService owns conversation and message lifecycle
// ABOUTME: Enforces chronological message ordering and the cascade delete

package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/neurofluxion/flux-gateway/internal/store"
)

// ConversationStore defines what the service needs from storage
type ConversationStore interface {
	CreateConversation(ctx context.Context, title string, now time.Time) (*store.Conversation, error)
	GetConversation(ctx context.Context, id int64) (*store.Conversation, error)
	ListConversations(ctx context.Context) ([]*store.Conversation, error)
	UpdateConversation(ctx context.Context, id int64, patch store.ConversationPatch, now time.Time) (*store.Conversation, error)
	DeleteConversation(ctx context.Context, id int64) error

	CreateMessage(ctx context.Context, create store.CreateMessage, now time.Time) (*store.Message, error)
	GetMessage(ctx context.Context, id int64) (*store.Message, error)
	ListMessagesByConversation(ctx context.Context, conversationID int64) ([]*store.Message, error)
	UpdateMessage(ctx context.Context, id int64, patch store.MessagePatch) (*store.Message, error)
	DeleteMessage(ctx context.Context, id int64) error
}

// Service is the domain layer over conversation and message persistence.
// It owns the clock so callers and tests never reach into the store directly.
type Service struct {
	store  ConversationStore
	logger *slog.Logger
	now    func() time.Time
}

// New creates a new conversation Service
func New(st ConversationStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  st,
		logger: logger.With("component", "conversation"),
		now:    time.Now,
	}
}

// SetClock overrides the service clock. Intended for tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// CreateConversation stores a new conversation titled title.
func (s *Service) CreateConversation(ctx context.Context, title string) (*store.Conversation, error) {
	c, err := s.store.CreateConversation(ctx, title, s.now())
	if err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}
	s.logger.Debug("conversation created", "conversation_id", c.ID, "title", title)
	return c, nil
}

// GetConversation returns conversation metadata.
func (s *Service) GetConversation(ctx context.Context, id int64) (*store.Conversation, error) {
	return s.store.GetConversation(ctx, id)
}

// ListConversations returns all conversations, most recently updated first.
func (s *Service) ListConversations(ctx context.Context) ([]*store.Conversation, error) {
	return s.store.ListConversations(ctx)
}

// UpdateConversation merges the patch and refreshes UpdatedAt.
// Returns store.ErrNotFound for an unknown ID.
func (s *Service) UpdateConversation(ctx context.Context, id int64, patch store.ConversationPatch) (*store.Conversation, error) {
	return s.store.UpdateConversation(ctx, id, patch, s.now())
}

// DeleteConversation removes the conversation and every message that
// belongs to it. The store applies the cascade atomically, so no caller
// observes a conversation-less message set mid-delete.
func (s *Service) DeleteConversation(ctx context.Context, id int64) error {
	if err := s.store.DeleteConversation(ctx, id); err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	s.logger.Debug("conversation deleted", "conversation_id", id)
	return nil
}

// CreateMessage persists a message. Role defaults to user and message type
// to text when left empty.
func (s *Service) CreateMessage(ctx context.Context, create store.CreateMessage) (*store.Message, error) {
	if create.Role == "" {
		create.Role = store.RoleUser
	}
	if create.MessageType == "" {
		create.MessageType = store.MessageTypeText
	}

	msg, err := s.store.CreateMessage(ctx, create, s.now())
	if err != nil {
		return nil, fmt.Errorf("creating message: %w", err)
	}
	s.logger.Debug("message created",
		"message_id", msg.ID,
		"conversation_id", msg.ConversationID,
		"role", msg.Role)
	return msg, nil
}

// ListMessages returns the conversation's messages in chronological order.
func (s *Service) ListMessages(ctx context.Context, conversationID int64) ([]*store.Message, error) {
	return s.store.ListMessagesByConversation(ctx, conversationID)
}

// UpdateMessage merge-patches a message. Returns store.ErrNotFound for an
// unknown ID.
func (s *Service) UpdateMessage(ctx context.Context, id int64, patch store.MessagePatch) (*store.Message, error) {
	return s.store.UpdateMessage(ctx, id, patch)
}

// DeleteMessage removes a single message, no-op when absent.
func (s *Service) DeleteMessage(ctx context.Context, id int64) error {
	return s.store.DeleteMessage(ctx, id)
}
