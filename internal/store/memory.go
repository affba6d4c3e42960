// ABOUTME: In-memory Store implementation backed by mutex-guarded maps
// ABOUTME: Default backing for tests and the memory database driver

package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store implementation. All mutating operations
// copy on write and all reads copy on return, so callers never share map
// state. A single counter feeds identifiers for every entity family.
type MemoryStore struct {
	mu            sync.RWMutex
	nextID        int64
	conversations map[int64]*Conversation
	messages      map[int64]*Message
	agents        map[string]*AgentStatus // keyed by agent name
	agentOrder    []string                // registration order, stable within a run
	documents     map[int64]*Document
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID:        1,
		conversations: make(map[int64]*Conversation),
		messages:      make(map[int64]*Message),
		agents:        make(map[string]*AgentStatus),
		documents:     make(map[int64]*Document),
	}
}

// allocID returns the next identifier. Must be called with mu held.
func (m *MemoryStore) allocID() int64 {
	id := m.nextID
	m.nextID++
	return id
}

// CreateConversation stores a new conversation with fresh timestamps.
func (m *MemoryStore) CreateConversation(ctx context.Context, title string, now time.Time) (*Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := &Conversation{
		ID:        m.allocID(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.conversations[c.ID] = c

	result := *c
	return &result, nil
}

// GetConversation retrieves a conversation by ID.
func (m *MemoryStore) GetConversation(ctx context.Context, id int64) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}

	result := *c
	return &result, nil
}

// ListConversations returns a snapshot of all conversations sorted by
// UpdatedAt descending, most recently touched first.
func (m *MemoryStore) ListConversations(ctx context.Context) ([]*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Conversation, 0, len(m.conversations))
	for _, c := range m.conversations {
		copied := *c
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].UpdatedAt.Equal(result[j].UpdatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	return result, nil
}

// UpdateConversation merges the patch onto an existing conversation and
// forces UpdatedAt to now. Returns ErrNotFound if the ID is unknown.
func (m *MemoryStore) UpdateConversation(ctx context.Context, id int64, patch ConversationPatch, now time.Time) (*Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}

	if patch.Title != nil {
		c.Title = *patch.Title
	}
	c.UpdatedAt = now

	result := *c
	return &result, nil
}

// DeleteConversation removes a conversation and every message belonging to
// it in one critical section, so no partial cascade is observable. Deleting
// a missing conversation is a no-op.
func (m *MemoryStore) DeleteConversation(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.conversations, id)
	for msgID, msg := range m.messages {
		if msg.ConversationID == id {
			delete(m.messages, msgID)
		}
	}
	return nil
}

// CreateMessage stores a new message with CreatedAt set to now.
func (m *MemoryStore) CreateMessage(ctx context.Context, create CreateMessage, now time.Time) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg := &Message{
		ID:             m.allocID(),
		ConversationID: create.ConversationID,
		Content:        create.Content,
		Role:           create.Role,
		MessageType:    create.MessageType,
		Metadata:       copyMetadata(create.Metadata),
		AgentUsed:      copyStringPtr(create.AgentUsed),
		CreatedAt:      now,
	}
	m.messages[msg.ID] = msg

	return copyMessage(msg), nil
}

// GetMessage retrieves a message by ID.
func (m *MemoryStore) GetMessage(ctx context.Context, id int64) (*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msg, ok := m.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyMessage(msg), nil
}

// ListMessagesByConversation returns the conversation's messages sorted
// ascending by CreatedAt, ties broken by ID.
func (m *MemoryStore) ListMessagesByConversation(ctx context.Context, conversationID int64) ([]*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Message, 0)
	for _, msg := range m.messages {
		if msg.ConversationID == conversationID {
			result = append(result, copyMessage(msg))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// UpdateMessage merges the patch onto an existing message.
// Returns ErrNotFound if the ID is unknown.
func (m *MemoryStore) UpdateMessage(ctx context.Context, id int64, patch MessagePatch) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, ok := m.messages[id]
	if !ok {
		return nil, ErrNotFound
	}

	if patch.Content != nil {
		msg.Content = *patch.Content
	}
	if patch.Metadata != nil {
		msg.Metadata = copyMetadata(patch.Metadata)
	}
	if patch.AgentUsed != nil {
		msg.AgentUsed = copyStringPtr(patch.AgentUsed)
	}

	return copyMessage(msg), nil
}

// DeleteMessage removes a message if present, no-op otherwise.
func (m *MemoryStore) DeleteMessage(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.messages, id)
	return nil
}

// UpsertAgentStatus creates or merges a status record keyed by agent name,
// refreshing LastActivity either way.
func (m *MemoryStore) UpsertAgentStatus(ctx context.Context, agentName string, patch AgentStatusPatch, now time.Time) (*AgentStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.agents[agentName]
	if !ok {
		a = &AgentStatus{
			ID:        m.allocID(),
			AgentName: agentName,
		}
		m.agents[agentName] = a
		m.agentOrder = append(m.agentOrder, agentName)
	}
	applyAgentPatch(a, patch)
	a.LastActivity = now

	return copyAgentStatus(a), nil
}

// GetAgentStatusByName retrieves a status record by agent name.
func (m *MemoryStore) GetAgentStatusByName(ctx context.Context, agentName string) (*AgentStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.agents[agentName]
	if !ok {
		return nil, ErrNotFound
	}
	return copyAgentStatus(a), nil
}

// ListAgentStatuses returns all registered agents in registration order.
func (m *MemoryStore) ListAgentStatuses(ctx context.Context) ([]*AgentStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*AgentStatus, 0, len(m.agentOrder))
	for _, name := range m.agentOrder {
		result = append(result, copyAgentStatus(m.agents[name]))
	}
	return result, nil
}

// UpdateAgentStatusByName merges the patch onto an already-registered agent.
// Returns ErrNotFound if the name is unknown; callers that want
// create-if-absent use UpsertAgentStatus instead.
func (m *MemoryStore) UpdateAgentStatusByName(ctx context.Context, agentName string, patch AgentStatusPatch, now time.Time) (*AgentStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.agents[agentName]
	if !ok {
		return nil, ErrNotFound
	}
	applyAgentPatch(a, patch)
	a.LastActivity = now

	return copyAgentStatus(a), nil
}

// CreateDocument stores a new indexed document.
func (m *MemoryStore) CreateDocument(ctx context.Context, create CreateDocument, now time.Time) (*Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d := &Document{
		ID:           m.allocID(),
		Title:        create.Title,
		Content:      create.Content,
		FilePath:     copyStringPtr(create.FilePath),
		DocumentType: create.DocumentType,
		CreatedAt:    now,
	}
	m.documents[d.ID] = d

	return copyDocument(d), nil
}

// GetDocument retrieves a document by ID.
func (m *MemoryStore) GetDocument(ctx context.Context, id int64) (*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.documents[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyDocument(d), nil
}

// ListDocuments returns all documents sorted by ID ascending.
func (m *MemoryStore) ListDocuments(ctx context.Context) ([]*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Document, 0, len(m.documents))
	for _, d := range m.documents {
		result = append(result, copyDocument(d))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// DeleteDocument removes a document if present, no-op otherwise.
func (m *MemoryStore) DeleteDocument(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.documents, id)
	return nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error {
	return nil
}

func applyAgentPatch(a *AgentStatus, patch AgentStatusPatch) {
	if patch.Status != nil {
		a.Status = *patch.Status
	}
	if patch.Metadata != nil {
		a.Metadata = copyMetadata(patch.Metadata)
	}
}

func copyMessage(msg *Message) *Message {
	result := *msg
	result.Metadata = copyMetadata(msg.Metadata)
	result.AgentUsed = copyStringPtr(msg.AgentUsed)
	return &result
}

func copyAgentStatus(a *AgentStatus) *AgentStatus {
	result := *a
	result.Metadata = copyMetadata(a.Metadata)
	return &result
}

func copyDocument(d *Document) *Document {
	result := *d
	result.FilePath = copyStringPtr(d.FilePath)
	return &result
}

func copyMetadata(meta map[string]any) map[string]any {
	if meta == nil {
		return nil
	}
	result := make(map[string]any, len(meta))
	for k, v := range meta {
		result[k] = v
	}
	return result
}

func copyStringPtr(s *string) *string {
	if s == nil {
		return nil
	}
	result := *s
	return &result
}
