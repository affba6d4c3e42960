// ABOUTME: Health/status aggregator proxying the inference backend
// ABOUTME: Substitutes fixed fallback payloads when the backend is unreachable

package status

import (
	"context"
	"log/slog"
	"time"

	"github.com/neurofluxion/flux-gateway/internal/agentstatus"
	"github.com/neurofluxion/flux-gateway/internal/upstream"
)

// BackendProxy defines what the aggregator needs from the upstream client
type BackendProxy interface {
	Health(ctx context.Context) (map[string]any, error)
	AgentStatuses(ctx context.Context) ([]upstream.AgentStatusEntry, error)
	UpdateAgentStatus(ctx context.Context, body []byte) (map[string]any, error)
}

// Aggregator proxies health and agent-status queries to the backend. Reads
// never fail: a backend outage is absorbed into a structurally valid
// fallback payload so polling clients always render something.
type Aggregator struct {
	backend BackendProxy
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a status Aggregator
func New(backend BackendProxy, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		backend: backend,
		logger:  logger.With("component", "status"),
		now:     time.Now,
	}
}

// SetClock overrides the aggregator clock. Intended for tests.
func (a *Aggregator) SetClock(now func() time.Time) {
	a.now = now
}

// AgentStatuses returns the backend's agent roster, or the full bootstrap
// roster reported ready with fresh timestamps when the backend is down.
func (a *Aggregator) AgentStatuses(ctx context.Context) []upstream.AgentStatusEntry {
	statuses, err := a.backend.AgentStatuses(ctx)
	if err != nil {
		a.logger.Warn("backend agent status unavailable, serving fallback roster", "error", err)
		return a.fallbackRoster()
	}
	return statuses
}

// UpdateAgentStatus forwards a status write to the backend. Writes are not
// masked by the fallback policy; the caller needs to know the write failed.
func (a *Aggregator) UpdateAgentStatus(ctx context.Context, body []byte) (map[string]any, error) {
	return a.backend.UpdateAgentStatus(ctx, body)
}

// Health returns the backend health payload, or a fixed partial payload
// when the backend is down.
func (a *Aggregator) Health(ctx context.Context) map[string]any {
	health, err := a.backend.Health(ctx)
	if err != nil {
		a.logger.Warn("backend health unavailable, serving fallback payload", "error", err)
		return map[string]any{
			"status":    "partial",
			"timestamp": a.now().UTC().Format(time.RFC3339),
			"agents":    []any{},
			"metrics": map[string]any{
				"vectorDBSize": "Unknown",
				"ollamaStatus": "disconnected",
				"responseTime": "Unknown",
			},
		}
	}
	return health
}

// fallbackRoster reports every bootstrap agent ready, timestamped now.
func (a *Aggregator) fallbackRoster() []upstream.AgentStatusEntry {
	ts := a.now().UTC().Format(time.RFC3339)
	roster := make([]upstream.AgentStatusEntry, 0, len(agentstatus.Roster))
	for _, name := range agentstatus.Roster {
		roster = append(roster, upstream.AgentStatusEntry{
			AgentName:    name,
			Status:       "ready",
			LastActivity: ts,
		})
	}
	return roster
}
