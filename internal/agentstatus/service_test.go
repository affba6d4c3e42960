// ABOUTME: Tests for the agent status registry: roster seeding and upserts.
// ABOUTME: Verifies idempotence by name and the strict update-existing variant.

package agentstatus

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

	svc, err := New(context.Background(), st, nil)
	require.NoError(t, err)
	return svc
}

func TestService_SeedsRoster(t *testing.T) {
	svc := newTestService(t)

	list, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, len(Roster))

	for i, name := range Roster {
		assert.Equal(t, name, list[i].AgentName)
		assert.Equal(t, store.AgentStatusReady, list[i].Status)
	}
}

func TestService_Upsert_Idempotent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	base := time.Now().UTC()
	svc.SetClock(func() time.Time { return base })
	first, err := svc.Upsert(ctx, "Summarizer", store.AgentStatusProcessing, nil)
	require.NoError(t, err)

	svc.SetClock(func() time.Time { return base.Add(time.Second) })
	second, err := svc.Upsert(ctx, "Summarizer", store.AgentStatusProcessing, nil)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.LastActivity.After(first.LastActivity), "LastActivity advances on re-upsert")

	list, err := svc.List(ctx)
	require.NoError(t, err)
	count := 0
	for _, a := range list {
		if a.AgentName == "Summarizer" {
			count++
		}
	}
	assert.Equal(t, 1, count, "exactly one record per agent name")
}

func TestService_Upsert_CreatesUnknownAgent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.Upsert(ctx, "Translator", store.AgentStatusStandby, map[string]any{"lang": "de"})
	require.NoError(t, err)
	assert.Equal(t, store.AgentStatusStandby, created.Status)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, len(Roster)+1)
}

func TestService_UpdateExisting_NotFound(t *testing.T) {
	svc := newTestService(t)

	status := store.AgentStatusError
	_, err := svc.UpdateExisting(context.Background(), "NoSuchAgent", store.AgentStatusPatch{Status: &status})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestService_UpdateExisting_MergesPatch(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	status := store.AgentStatusError
	updated, err := svc.UpdateExisting(ctx, "Vision", store.AgentStatusPatch{
		Status:   &status,
		Metadata: map[string]any{"last_error": "timeout"},
	})
	require.NoError(t, err)
	assert.Equal(t, store.AgentStatusError, updated.Status)
	assert.Equal(t, "timeout", updated.Metadata["last_error"])
}
