// ABOUTME: Tests for the chat orchestrator's dedup window and persistence flow.
// ABOUTME: Covers replay, pending, expiry, failure recovery, and concurrency.

package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neurofluxion/flux-gateway/internal/conversation"
	"github.com/neurofluxion/flux-gateway/internal/store"
	"github.com/neurofluxion/flux-gateway/internal/upstream"
)

// fakeBackend counts chat invocations and replies with a canned response.
type fakeBackend struct {
	mu       sync.Mutex
	calls    int
	response *upstream.ChatResponse
	err      error
	block    chan struct{} // when set, Chat blocks until closed
	onCall   func()        // invoked per call; used to advance the test clock
}

func (f *fakeBackend) Chat(ctx context.Context, req *upstream.ChatRequest) (*upstream.ChatResponse, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	onCall := f.onCall
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	if onCall != nil {
		onCall()
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.response, nil
}

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// testClock is a settable clock shared by the orchestrator and the
// message layer, so persisted timestamps and window checks agree.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func setupOrchestrator(t *testing.T, backend *fakeBackend) (*Orchestrator, *testClock) {
	t.Helper()

	st := store.NewMemoryStore()
	t.Cleanup(func() { st.Close() })

	clock := &testClock{t: time.Now().UTC()}
	convSvc := conversation.New(st, nil)
	convSvc.SetClock(clock.now)

	// Each backend call consumes a little simulated processing time so the
	// persisted reply lands strictly after the user message.
	backend.onCall = func() { clock.advance(100 * time.Millisecond) }

	orch := New(&historyAdapter{convSvc}, backend, nil)
	orch.SetClock(clock.now)
	return orch, clock
}

// historyAdapter narrows conversation.Service to the orchestrator interface.
type historyAdapter struct {
	svc *conversation.Service
}

func (h *historyAdapter) CreateMessage(ctx context.Context, create store.CreateMessage) (*store.Message, error) {
	return h.svc.CreateMessage(ctx, create)
}

func (h *historyAdapter) ListMessages(ctx context.Context, conversationID int64) ([]*store.Message, error) {
	return h.svc.ListMessages(ctx, conversationID)
}

func okBackend() *fakeBackend {
	return &fakeBackend{
		response: &upstream.ChatResponse{
			Response:  "hi there",
			AgentUsed: "query_handler",
			Metadata:  map[string]any{"model": "llama3"},
		},
	}
}

func TestSend_EmptyMessage(t *testing.T) {
	backend := okBackend()
	orch, _ := setupOrchestrator(t, backend)

	_, err := orch.Send(context.Background(), Request{Message: ""})
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Equal(t, 0, backend.callCount(), "validation failures never reach the backend")
}

func TestSend_FreshTurn(t *testing.T) {
	backend := okBackend()
	orch, _ := setupOrchestrator(t, backend)

	result, err := orch.Send(context.Background(), Request{Message: "hello", ConversationID: 1})
	require.NoError(t, err)

	require.NotNil(t, result.UserMessage)
	assert.Equal(t, "hello", result.UserMessage.Content)
	assert.Equal(t, store.RoleUser, result.UserMessage.Role)

	require.NotNil(t, result.AIMessage)
	assert.Equal(t, "hi there", result.AIMessage.Content)
	assert.Equal(t, store.RoleAssistant, result.AIMessage.Role)
	require.NotNil(t, result.AIMessage.AgentUsed)
	assert.Equal(t, "query_handler", *result.AIMessage.AgentUsed)
	assert.Equal(t, map[string]any{"model": "llama3"}, result.Metadata)

	assert.Equal(t, 1, backend.callCount())
}

func TestSend_NoAgentLabel_NilAgentUsed(t *testing.T) {
	backend := &fakeBackend{response: &upstream.ChatResponse{Response: "hi there"}}
	orch, _ := setupOrchestrator(t, backend)

	result, err := orch.Send(context.Background(), Request{Message: "hello", ConversationID: 1})
	require.NoError(t, err)
	require.NotNil(t, result.AIMessage)
	assert.Nil(t, result.AIMessage.AgentUsed, "a reply without an agent label persists no label")
}

func TestSend_Defaults(t *testing.T) {
	backend := okBackend()
	orch, _ := setupOrchestrator(t, backend)

	result, err := orch.Send(context.Background(), Request{Message: "hello"})
	require.NoError(t, err)
	assert.Equal(t, int64(DefaultConversationID), result.UserMessage.ConversationID)
	assert.Equal(t, store.MessageTypeText, result.UserMessage.MessageType)
}

func TestSend_DedupReplay(t *testing.T) {
	backend := okBackend()
	orch, clock := setupOrchestrator(t, backend)
	ctx := context.Background()

	first, err := orch.Send(ctx, Request{Message: "hello", ConversationID: 1})
	require.NoError(t, err)

	clock.advance(5 * time.Second)
	second, err := orch.Send(ctx, Request{Message: "hello", ConversationID: 1})
	require.NoError(t, err)

	assert.Equal(t, first.UserMessage.ID, second.UserMessage.ID, "resend returns the original user message")
	assert.Equal(t, first.AIMessage.ID, second.AIMessage.ID, "resend returns the original reply")
	assert.Equal(t, first.Metadata, second.Metadata)
	assert.Equal(t, 1, backend.callCount(), "exactly one backend call total")
}

func TestSend_DedupPending(t *testing.T) {
	backend := okBackend()
	backend.block = make(chan struct{})
	orch, clock := setupOrchestrator(t, backend)
	ctx := context.Background()

	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		_, err := orch.Send(ctx, Request{Message: "hello", ConversationID: 1})
		assert.NoError(t, err)
	}()

	// Wait for the first request to persist its user message and block in
	// the backend call.
	require.Eventually(t, func() bool {
		return backend.callCount() == 1
	}, time.Second, 5*time.Millisecond)

	clock.advance(time.Second)
	second, err := orch.Send(ctx, Request{Message: "hello", ConversationID: 1})
	require.NoError(t, err)

	require.NotNil(t, second.UserMessage)
	assert.Nil(t, second.AIMessage, "no reply persisted yet: pending path")
	assert.Nil(t, second.Metadata)
	assert.Equal(t, 1, backend.callCount(), "no second backend call")

	close(backend.block)
	<-firstDone
}

func TestSend_WindowExpiry(t *testing.T) {
	backend := okBackend()
	orch, clock := setupOrchestrator(t, backend)
	ctx := context.Background()

	first, err := orch.Send(ctx, Request{Message: "hello", ConversationID: 1})
	require.NoError(t, err)

	clock.advance(DedupWindow)
	second, err := orch.Send(ctx, Request{Message: "hello", ConversationID: 1})
	require.NoError(t, err)

	assert.NotEqual(t, first.UserMessage.ID, second.UserMessage.ID, "expired window means a fresh turn")
	assert.Equal(t, 2, backend.callCount())
}

func TestSend_ExactContentMatchOnly(t *testing.T) {
	backend := okBackend()
	orch, clock := setupOrchestrator(t, backend)
	ctx := context.Background()

	_, err := orch.Send(ctx, Request{Message: "hello", ConversationID: 1})
	require.NoError(t, err)

	clock.advance(time.Second)
	// Trailing space: not a duplicate, equality is exact
	_, err = orch.Send(ctx, Request{Message: "hello ", ConversationID: 1})
	require.NoError(t, err)

	assert.Equal(t, 2, backend.callCount())
}

func TestSend_DifferentConversationsAreIndependent(t *testing.T) {
	backend := okBackend()
	orch, clock := setupOrchestrator(t, backend)
	ctx := context.Background()

	_, err := orch.Send(ctx, Request{Message: "hello", ConversationID: 1})
	require.NoError(t, err)

	clock.advance(time.Second)
	_, err = orch.Send(ctx, Request{Message: "hello", ConversationID: 2})
	require.NoError(t, err)

	assert.Equal(t, 2, backend.callCount(), "dedup is scoped to a conversation")
}

func TestSend_BackendFailureKeepsUserMessage(t *testing.T) {
	backend := &fakeBackend{err: errors.New("backend unreachable")}
	orch, clock := setupOrchestrator(t, backend)
	ctx := context.Background()

	_, err := orch.Send(ctx, Request{Message: "hello", ConversationID: 1})
	require.Error(t, err)

	// The resend inside the window lands on the pending path: the failed
	// turn's user message is still there and no new backend call is made.
	clock.advance(time.Second)
	result, err := orch.Send(ctx, Request{Message: "hello", ConversationID: 1})
	require.NoError(t, err)
	require.NotNil(t, result.UserMessage)
	assert.Nil(t, result.AIMessage)
	assert.Equal(t, 1, backend.callCount())
}

func TestSend_ConcurrentIdentical_SingleBackendCall(t *testing.T) {
	backend := okBackend()
	orch, _ := setupOrchestrator(t, backend)
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := orch.Send(ctx, Request{Message: "race", ConversationID: 3})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, backend.callCount(), "check-then-insert is serialized per conversation")
}
