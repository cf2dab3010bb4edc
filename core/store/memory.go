package store

import (
	"context"
	"sync"

	"github.com/blaxing/gateway/core/types"
)

// MemoryStore is the in-process document store used when no MongoDB is
// configured ("mock" deployments) and by tests. Writes are last-write-wins,
// matching the upsert semantics of the Mongo implementation.
type MemoryStore struct {
	mu sync.Mutex

	agentOrder []string
	agents     map[string]types.AgentRecord
	stateCache map[string]types.StateCacheEntry
	hooks      types.HooksConfig
	flowOrder  []string
	flows      map[string]types.FlowRegistration
	audit      []types.AuditEntry
	checks     []types.StatusCheck
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		agents:     map[string]types.AgentRecord{},
		stateCache: map[string]types.StateCacheEntry{},
		flows:      map[string]types.FlowRegistration{},
	}
}

func (m *MemoryStore) Agents() AgentStore             { return (*memoryAgents)(m) }
func (m *MemoryStore) StateCache() StateCacheStore    { return (*memoryStateCache)(m) }
func (m *MemoryStore) Hooks() HooksStore              { return (*memoryHooks)(m) }
func (m *MemoryStore) Flows() FlowStore               { return (*memoryFlows)(m) }
func (m *MemoryStore) Audit() AuditStore              { return (*memoryAudit)(m) }
func (m *MemoryStore) StatusChecks() StatusCheckStore { return (*memoryChecks)(m) }

func (m *MemoryStore) Close(ctx context.Context) error { return nil }

type memoryAgents MemoryStore

func (m *memoryAgents) Get(ctx context.Context, agentID string) (*types.AgentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.agents[agentID]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (m *memoryAgents) Put(ctx context.Context, rec types.AgentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.agents[rec.AgentID]; !ok {
		m.agentOrder = append(m.agentOrder, rec.AgentID)
	}
	m.agents[rec.AgentID] = rec
	return nil
}

func (m *memoryAgents) All(ctx context.Context) ([]types.AgentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.AgentRecord, 0, len(m.agentOrder))
	for _, id := range m.agentOrder {
		out = append(out, m.agents[id])
	}
	return out, nil
}

func (m *memoryAgents) Count(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.agents)), nil
}

func (m *memoryAgents) SetStateAll(ctx context.Context, state types.AgentState, updatedAt, activatedAt string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, rec := range m.agents {
		rec.State = state
		rec.UpdatedAt = updatedAt
		if activatedAt != "" {
			rec.ActivatedAt = activatedAt
		}
		m.agents[id] = rec
	}
	return int64(len(m.agents)), nil
}

type memoryStateCache MemoryStore

func (m *memoryStateCache) Get(ctx context.Context, agentID string) (*types.StateCacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.stateCache[agentID]
	if !ok {
		return nil, ErrNotFound
	}
	return &entry, nil
}

func (m *memoryStateCache) Put(ctx context.Context, entry types.StateCacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stateCache[entry.AgentID] = entry
	return nil
}

type memoryHooks MemoryStore

func (m *memoryHooks) Get(ctx context.Context) (types.HooksConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hooks, nil
}

func (m *memoryHooks) Put(ctx context.Context, cfg types.HooksConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = cfg
	return nil
}

type memoryFlows MemoryStore

func (m *memoryFlows) Get(ctx context.Context, name string) (*types.FlowRegistration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	flow, ok := m.flows[name]
	if !ok {
		return nil, ErrNotFound
	}
	return &flow, nil
}

func (m *memoryFlows) Put(ctx context.Context, flow types.FlowRegistration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.flows[flow.Name]; !ok {
		m.flowOrder = append(m.flowOrder, flow.Name)
	}
	m.flows[flow.Name] = flow
	return nil
}

func (m *memoryFlows) All(ctx context.Context) ([]types.FlowRegistration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.FlowRegistration, 0, len(m.flowOrder))
	for _, name := range m.flowOrder {
		out = append(out, m.flows[name])
	}
	return out, nil
}

func (m *memoryFlows) Delete(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.flows[name]; !ok {
		return ErrNotFound
	}
	delete(m.flows, name)
	for i, n := range m.flowOrder {
		if n == name {
			m.flowOrder = append(m.flowOrder[:i], m.flowOrder[i+1:]...)
			break
		}
	}
	return nil
}

type memoryAudit MemoryStore

func (m *memoryAudit) Append(ctx context.Context, entry types.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, entry)
	return nil
}

func (m *memoryAudit) List(ctx context.Context, page, limit int) ([]types.AuditEntry, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := int64(len(m.audit))

	// newest first
	reversed := make([]types.AuditEntry, 0, len(m.audit))
	for i := len(m.audit) - 1; i >= 0; i-- {
		reversed = append(reversed, m.audit[i])
	}

	start := (page - 1) * limit
	if start >= len(reversed) {
		return []types.AuditEntry{}, total, nil
	}
	end := start + limit
	if end > len(reversed) {
		end = len(reversed)
	}
	return reversed[start:end], total, nil
}

type memoryChecks MemoryStore

func (m *memoryChecks) Append(ctx context.Context, check types.StatusCheck) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks = append(m.checks, check)
	return nil
}
