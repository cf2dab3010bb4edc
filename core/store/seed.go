package store

import (
	"context"
	"fmt"
	"time"

	"github.com/blaxing/gateway/core/types"
	"github.com/mudler/xlog"
)

var defaultAgentIDs = []string{"blaxing-sniper", "builder-agent", "support-agent"}

// DefaultAgents returns the built-in agent set used to seed an empty
// registry.
func DefaultAgents(now time.Time) []types.AgentRecord {
	nowStr := types.FormatTimestamp(now)
	records := make([]types.AgentRecord, 0, len(defaultAgentIDs))
	for _, id := range defaultAgentIDs {
		records = append(records, types.AgentRecord{
			AgentID:   id,
			Name:      types.CapitalizedName(id),
			Env:       map[string]string{},
			State:     types.StateSleep,
			CreatedAt: nowStr,
			UpdatedAt: nowStr,
		})
	}
	return records
}

// SeedDefaults inserts the default agents only when the collection is
// completely empty. A non-empty collection is left untouched, even if
// it holds fewer records than the default set.
func SeedDefaults(ctx context.Context, agents AgentStore, now time.Time) error {
	count, err := agents.Count(ctx)
	if err != nil {
		return fmt.Errorf("counting agents: %w", err)
	}
	if count > 0 {
		return nil
	}

	for _, rec := range DefaultAgents(now) {
		if err := agents.Put(ctx, rec); err != nil {
			return fmt.Errorf("seeding agent %s: %w", rec.AgentID, err)
		}
	}
	xlog.Info("Seeded default agents", "count", len(defaultAgentIDs))
	return nil
}
