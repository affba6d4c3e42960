// ABOUTME: Chat orchestrator: dedup window, persistence, backend invocation
// ABOUTME: Record first, then act - the user message is saved before the backend call

package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/neurofluxion/flux-gateway/internal/store"
	"github.com/neurofluxion/flux-gateway/internal/upstream"
)

// DedupWindow is the interval during which an identical user message is
// treated as a resend of the original rather than a new turn.
const DedupWindow = 30 * time.Second

// DefaultConversationID receives chat turns that arrive without a
// conversation.
const DefaultConversationID = 1

// ErrEmptyMessage is returned when a chat request carries no content.
var ErrEmptyMessage = errors.New("message is required")

// MessageHistory defines what the orchestrator needs from the message layer
type MessageHistory interface {
	CreateMessage(ctx context.Context, create store.CreateMessage) (*store.Message, error)
	ListMessages(ctx context.Context, conversationID int64) ([]*store.Message, error)
}

// Backend defines what the orchestrator needs from the inference backend
type Backend interface {
	Chat(ctx context.Context, req *upstream.ChatRequest) (*upstream.ChatResponse, error)
}

// Request is an incoming chat turn.
type Request struct {
	Message        string
	ConversationID int64  // 0 means the default conversation
	MessageType    string // empty means text
}

// Result is the outcome of a chat turn. AIMessage is nil when the turn was
// a resend of a request whose reply has not been persisted yet.
type Result struct {
	UserMessage *store.Message
	AIMessage   *store.Message
	Metadata    map[string]any
}

// Orchestrator layers deduplication and persistence on top of the backend.
// It holds no state of its own beyond the per-conversation locks: every
// invariant is re-derived from the message history on each call.
type Orchestrator struct {
	messages MessageHistory
	backend  Backend
	locks    *conversationLocks
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a chat Orchestrator
func New(messages MessageHistory, backend Backend, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		messages: messages,
		backend:  backend,
		locks:    newConversationLocks(),
		logger:   logger.With("component", "chat"),
		now:      time.Now,
	}
}

// SetClock overrides the orchestrator clock. Intended for tests.
func (o *Orchestrator) SetClock(now func() time.Time) {
	o.now = now
}

// Send processes one chat turn:
//
//  1. Reject empty messages before any side effect.
//  2. Under the conversation lock, scan recent history for an identical
//     user message inside the dedup window. A hit resolves to either the
//     already-persisted reply (replay) or a nil reply (still pending),
//     with no backend call in either case.
//  3. Otherwise persist the user message, release the lock, call the
//     backend, and persist the reply. On backend failure the user message
//     stays persisted; a resend lands on the pending path instead of
//     re-invoking the backend.
func (o *Orchestrator) Send(ctx context.Context, req Request) (*Result, error) {
	if req.Message == "" {
		return nil, ErrEmptyMessage
	}
	conversationID := req.ConversationID
	if conversationID == 0 {
		conversationID = DefaultConversationID
	}
	messageType := req.MessageType
	if messageType == "" {
		messageType = store.MessageTypeText
	}

	requestID := uuid.New().String()
	logger := o.logger.With("request_id", requestID, "conversation_id", conversationID)

	userMessage, replay, err := o.checkAndRecord(ctx, conversationID, req.Message, messageType, logger)
	if err != nil {
		return nil, err
	}
	if replay != nil {
		return replay, nil
	}

	// Fresh turn: the user message is recorded, now invoke the backend.
	// The lock is not held across this call; a concurrent identical resend
	// finds the recorded message and resolves to the pending path.
	chatResp, err := o.backend.Chat(ctx, &upstream.ChatRequest{
		Message:        req.Message,
		ConversationID: conversationID,
		MessageType:    messageType,
	})
	if err != nil {
		// The user message stays; the client recovers by resending, which
		// surfaces the pending-duplicate path until a reply lands.
		logger.Error("backend chat failed", "error", err)
		return nil, fmt.Errorf("backend chat failed: %w", err)
	}

	// A reply without an agent label stays nil, not empty-string.
	var agentUsed *string
	if chatResp.AgentUsed != "" {
		agentUsed = &chatResp.AgentUsed
	}
	aiMessage, err := o.messages.CreateMessage(ctx, store.CreateMessage{
		ConversationID: conversationID,
		Content:        chatResp.Response,
		Role:           store.RoleAssistant,
		MessageType:    store.MessageTypeText,
		Metadata:       chatResp.Metadata,
		AgentUsed:      agentUsed,
	})
	if err != nil {
		return nil, fmt.Errorf("recording assistant reply: %w", err)
	}

	logger.Debug("chat turn completed",
		"user_message_id", userMessage.ID,
		"ai_message_id", aiMessage.ID,
		"agent_used", chatResp.AgentUsed)

	return &Result{
		UserMessage: userMessage,
		AIMessage:   aiMessage,
		Metadata:    chatResp.Metadata,
	}, nil
}

// checkAndRecord runs the duplicate scan and, for a fresh turn, persists
// the user message - all under the conversation lock so the check and the
// insert cannot interleave with a concurrent identical request.
//
// Returns (userMessage, nil, nil) for a fresh turn and (nil, result, nil)
// when the turn resolved as a duplicate.
func (o *Orchestrator) checkAndRecord(ctx context.Context, conversationID int64, content, messageType string, logger *slog.Logger) (*store.Message, *Result, error) {
	lock := o.locks.get(conversationID)
	lock.Lock()
	defer lock.Unlock()

	history, err := o.messages.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, nil, fmt.Errorf("loading conversation history: %w", err)
	}

	if dup := o.findDuplicate(history, content); dup != nil {
		if reply := findReplyAfter(history, dup); reply != nil {
			logger.Info("duplicate resolved from persisted reply",
				"user_message_id", dup.ID,
				"ai_message_id", reply.ID)
			return nil, &Result{
				UserMessage: dup,
				AIMessage:   reply,
				Metadata:    reply.Metadata,
			}, nil
		}

		// Original request still in flight (or it failed upstream).
		// Signal "already submitted" without a new row or backend call.
		logger.Info("duplicate still pending", "user_message_id", dup.ID)
		return nil, &Result{UserMessage: dup}, nil
	}

	userMessage, err := o.messages.CreateMessage(ctx, store.CreateMessage{
		ConversationID: conversationID,
		Content:        content,
		Role:           store.RoleUser,
		MessageType:    messageType,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("recording user message: %w", err)
	}
	return userMessage, nil, nil
}

// findDuplicate returns the most recently created user message with content
// exactly equal to the incoming one inside the dedup window, or nil.
// Equality is exact: no trimming, no case folding.
func (o *Orchestrator) findDuplicate(history []*store.Message, content string) *store.Message {
	now := o.now()
	var dup *store.Message
	for _, msg := range history {
		if msg.Role != store.RoleUser || msg.Content != content {
			continue
		}
		if now.Sub(msg.CreatedAt) >= DedupWindow {
			continue
		}
		if dup == nil || msg.CreatedAt.After(dup.CreatedAt) || (msg.CreatedAt.Equal(dup.CreatedAt) && msg.ID > dup.ID) {
			dup = msg
		}
	}
	return dup
}

// findReplyAfter returns the earliest assistant message created strictly
// after the duplicate, or nil when no reply has been persisted yet.
func findReplyAfter(history []*store.Message, dup *store.Message) *store.Message {
	var reply *store.Message
	for _, msg := range history {
		if msg.Role != store.RoleAssistant || !msg.CreatedAt.After(dup.CreatedAt) {
			continue
		}
		if reply == nil || msg.CreatedAt.Before(reply.CreatedAt) || (msg.CreatedAt.Equal(reply.CreatedAt) && msg.ID < reply.ID) {
			reply = msg
		}
	}
	return reply
}
