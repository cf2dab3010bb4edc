package store

import (
	"context"
	"errors"

	"github.com/blaxing/gateway/core/types"
)

// ErrNotFound is returned when a looked-up document does not exist.
var ErrNotFound = errors.New("not found")

// AgentStore persists agent records. All reads return records in
// storage (insertion) order.
type AgentStore interface {
	Get(ctx context.Context, agentID string) (*types.AgentRecord, error)
	Put(ctx context.Context, rec types.AgentRecord) error
	All(ctx context.Context) ([]types.AgentRecord, error)
	Count(ctx context.Context) (int64, error)
	// SetStateAll moves every record to the given state in one bulk
	// update. activatedAt is applied as-is (empty clears nothing, the
	// field is only meaningful while state is active).
	SetStateAll(ctx context.Context, state types.AgentState, updatedAt, activatedAt string) (int64, error)
}

// StateCacheStore keeps the last observed state per agent, used to
// detect transitions when state is sourced from a remote proxy.
type StateCacheStore interface {
	Get(ctx context.Context, agentID string) (*types.StateCacheEntry, error)
	Put(ctx context.Context, entry types.StateCacheEntry) error
}

// HooksStore holds the singleton event-to-flow mapping.
type HooksStore interface {
	Get(ctx context.Context) (types.HooksConfig, error)
	Put(ctx context.Context, cfg types.HooksConfig) error
}

// FlowStore maps logical flow names to webhook URLs.
type FlowStore interface {
	Get(ctx context.Context, name string) (*types.FlowRegistration, error)
	Put(ctx context.Context, flow types.FlowRegistration) error
	All(ctx context.Context) ([]types.FlowRegistration, error)
	Delete(ctx context.Context, name string) error
}

// AuditStore is an append-only log of externally visible actions.
type AuditStore interface {
	Append(ctx context.Context, entry types.AuditEntry) error
	List(ctx context.Context, page, limit int) ([]types.AuditEntry, int64, error)
}

// StatusCheckStore records periodic health-check probe results.
type StatusCheckStore interface {
	Append(ctx context.Context, check types.StatusCheck) error
}

// Store bundles every collection behind one lifecycle.
type Store interface {
	Agents() AgentStore
	StateCache() StateCacheStore
	Hooks() HooksStore
	Flows() FlowStore
	Audit() AuditStore
	StatusChecks() StatusCheckStore
	Close(ctx context.Context) error
}
