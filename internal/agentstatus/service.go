// ABOUTME: AgentStatusService is the registry of backend worker health records
// ABOUTME: Seeds the fixed roster at startup and upserts by agent name

package agentstatus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/neurofluxion/flux-gateway/internal/store"
)

// Roster is the fixed set of backend workers registered at startup.
var Roster = []string{
	"QueryHandler",
	"SemanticSearch",
	"FallbackRAG",
	"Summarizer",
	"TTS",
	"Vision",
}

// StatusStore defines what the service needs from storage
type StatusStore interface {
	UpsertAgentStatus(ctx context.Context, agentName string, patch store.AgentStatusPatch, now time.Time) (*store.AgentStatus, error)
	GetAgentStatusByName(ctx context.Context, agentName string) (*store.AgentStatus, error)
	ListAgentStatuses(ctx context.Context) ([]*store.AgentStatus, error)
	UpdateAgentStatusByName(ctx context.Context, agentName string, patch store.AgentStatusPatch, now time.Time) (*store.AgentStatus, error)
}

// Service tracks per-agent health records keyed by agent name.
type Service struct {
	store  StatusStore
	logger *slog.Logger
	now    func() time.Time
}

// New creates the service and seeds one ready record per roster agent.
func New(ctx context.Context, st StatusStore, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:  st,
		logger: logger.With("component", "agentstatus"),
		now:    time.Now,
	}

	ready := store.AgentStatusReady
	for _, name := range Roster {
		if _, err := st.UpsertAgentStatus(ctx, name, store.AgentStatusPatch{Status: &ready}, s.now()); err != nil {
			return nil, fmt.Errorf("seeding agent %s: %w", name, err)
		}
	}
	s.logger.Info("agent roster seeded", "agents", len(Roster))
	return s, nil
}

// SetClock overrides the service clock. Intended for tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Upsert merges the patch onto the named agent, creating the record when
// the name is new. LastActivity is refreshed either way.
func (s *Service) Upsert(ctx context.Context, agentName string, status string, metadata map[string]any) (*store.AgentStatus, error) {
	patch := store.AgentStatusPatch{Metadata: metadata}
	if status != "" {
		patch.Status = &status
	}
	return s.store.UpsertAgentStatus(ctx, agentName, patch, s.now())
}

// UpdateExisting merges the patch onto an already-registered agent and
// fails with store.ErrNotFound otherwise. Callers use this when the target
// must exist; Upsert is the create-if-absent variant.
func (s *Service) UpdateExisting(ctx context.Context, agentName string, patch store.AgentStatusPatch) (*store.AgentStatus, error) {
	return s.store.UpdateAgentStatusByName(ctx, agentName, patch, s.now())
}

// Get returns the named agent's record.
func (s *Service) Get(ctx context.Context, agentName string) (*store.AgentStatus, error) {
	return s.store.GetAgentStatusByName(ctx, agentName)
}

// List returns all registered agents in registration order.
func (s *Service) List(ctx context.Context) ([]*store.AgentStatus, error) {
	return s.store.ListAgentStatuses(ctx)
}
