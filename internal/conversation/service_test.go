// ABOUTME: Tests for the conversation service's lifecycle and cascade delete.
// ABOUTME: Verifies message defaults, ordering, and UpdatedAt refresh on update.

package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neurofluxion/flux-gateway/internal/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	st := store.NewMemoryStore()
	t.Cleanup(func() { st.Close() })
	return New(st, nil)
}

func strPtr(s string) *string { return &s }

func TestService_CreateConversation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	c, err := svc.CreateConversation(ctx, "hello world")
	require.NoError(t, err)
	assert.Equal(t, "hello world", c.Title)
	assert.Equal(t, c.CreatedAt, c.UpdatedAt)
}

func TestService_UpdateConversation_RefreshesUpdatedAt(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	base := time.Now().UTC()
	svc.SetClock(func() time.Time { return base })

	c, err := svc.CreateConversation(ctx, "original")
	require.NoError(t, err)

	svc.SetClock(func() time.Time { return base.Add(time.Minute) })
	updated, err := svc.UpdateConversation(ctx, c.ID, store.ConversationPatch{Title: strPtr("renamed")})
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Title)
	assert.True(t, updated.UpdatedAt.After(c.UpdatedAt))
}

func TestService_UpdateConversation_NotFound(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.UpdateConversation(context.Background(), 77, store.ConversationPatch{Title: strPtr("x")})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestService_DeleteConversation_Cascades(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	c, err := svc.CreateConversation(ctx, "doomed")
	require.NoError(t, err)

	for _, content := range []string{"one", "two", "three"} {
		_, err := svc.CreateMessage(ctx, store.CreateMessage{
			ConversationID: c.ID,
			Content:        content,
		})
		require.NoError(t, err)
	}
	survivor, err := svc.CreateMessage(ctx, store.CreateMessage{
		ConversationID: c.ID + 100,
		Content:        "unrelated",
	})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteConversation(ctx, c.ID))

	_, err = svc.GetConversation(ctx, c.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	messages, err := svc.ListMessages(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, messages, "no message of a deleted conversation remains retrievable")

	remaining, err := svc.ListMessages(ctx, survivor.ConversationID)
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestService_CreateMessage_Defaults(t *testing.T) {
	svc := newTestService(t)

	msg, err := svc.CreateMessage(context.Background(), store.CreateMessage{
		ConversationID: 1,
		Content:        "hi",
	})
	require.NoError(t, err)
	assert.Equal(t, store.RoleUser, msg.Role)
	assert.Equal(t, store.MessageTypeText, msg.MessageType)
	assert.Nil(t, msg.Metadata)
	assert.Nil(t, msg.AgentUsed)
}

func TestService_ListMessages_Ascending(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	base := time.Now().UTC()
	offsets := []time.Duration{3 * time.Second, time.Second, 2 * time.Second}
	for i, offset := range offsets {
		clock := base.Add(offset)
		svc.SetClock(func() time.Time { return clock })
		_, err := svc.CreateMessage(ctx, store.CreateMessage{
			ConversationID: 9,
			Content:        string(rune('a' + i)),
		})
		require.NoError(t, err)
	}

	messages, err := svc.ListMessages(ctx, 9)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	for i := 1; i < len(messages); i++ {
		assert.False(t, messages[i].CreatedAt.Before(messages[i-1].CreatedAt))
	}
}

func TestService_UpdateMessage_PatchesMetadata(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	msg, err := svc.CreateMessage(ctx, store.CreateMessage{ConversationID: 1, Content: "original"})
	require.NoError(t, err)

	updated, err := svc.UpdateMessage(ctx, msg.ID, store.MessagePatch{
		Metadata: map[string]any{"reviewed": true},
	})
	require.NoError(t, err)
	assert.Equal(t, "original", updated.Content)
	assert.Equal(t, true, updated.Metadata["reviewed"])
}
