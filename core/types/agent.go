package types

import (
	"strings"
	"time"
)

type AgentState string

const (
	StateActive AgentState = "active"
	StateSleep  AgentState = "sleep"
)

// AgentRecord is the persisted shape of one orchestrated agent.
// Timestamps are stored as RFC3339 strings; Uptime is derived at read
// time and never written back to the store.
type AgentRecord struct {
	AgentID       string            `json:"agent_id" bson:"agent_id"`
	Name          string            `json:"name" bson:"name"`
	Image         string            `json:"image,omitempty" bson:"image,omitempty"`
	Env           map[string]string `json:"env" bson:"env"`
	State         AgentState        `json:"state" bson:"state"`
	CreatedAt     string            `json:"created_at" bson:"created_at"`
	UpdatedAt     string            `json:"updated_at" bson:"updated_at"`
	ActivatedAt   string            `json:"activated_at,omitempty" bson:"activated_at,omitempty"`
	LastHeartbeat string            `json:"last_heartbeat,omitempty" bson:"last_heartbeat,omitempty"`

	Uptime int64 `json:"uptime" bson:"-"`
}

// StateCacheEntry remembers the last state observed for an agent so
// that notifications fire on transitions instead of on every poll.
type StateCacheEntry struct {
	AgentID    string     `json:"agent_id" bson:"agent_id"`
	State      AgentState `json:"state" bson:"state"`
	ObservedAt string     `json:"observed_at" bson:"observed_at"`
}

// HooksConfig maps lifecycle events to logical flow names. An empty
// mapping means no notification is sent for that event.
type HooksConfig struct {
	Activation   string `json:"activation,omitempty" bson:"activation,omitempty"`
	Deactivation string `json:"deactivation,omitempty" bson:"deactivation,omitempty"`
	StatusChange string `json:"status_change,omitempty" bson:"status_change,omitempty"`
}

// FlowForEvent resolves the flow registered for a lifecycle event.
func (h HooksConfig) FlowForEvent(event string) string {
	switch event {
	case EventActivation:
		return h.Activation
	case EventDeactivation:
		return h.Deactivation
	case EventStatusChange:
		return h.StatusChange
	}
	return ""
}

const (
	EventActivation   = "activation"
	EventDeactivation = "deactivation"
	EventStatusChange = "status_change"
)

// FlowRegistration decouples a logical flow name from its webhook URL.
type FlowRegistration struct {
	Name      string `json:"name" bson:"name"`
	URL       string `json:"url" bson:"url"`
	UpdatedAt string `json:"updated_at" bson:"updated_at"`
}

// AuditEntry records one externally visible action and its outcome.
type AuditEntry struct {
	ID        string         `json:"id" bson:"_id"`
	Action    string         `json:"action" bson:"action"`
	Target    string         `json:"target,omitempty" bson:"target,omitempty"`
	Source    string         `json:"source,omitempty" bson:"source,omitempty"`
	Outcome   string         `json:"outcome" bson:"outcome"`
	Detail    map[string]any `json:"detail,omitempty" bson:"detail,omitempty"`
	Timestamp string         `json:"timestamp" bson:"timestamp"`
}

// StatusCheck is one probe result written by the periodic health check.
type StatusCheck struct {
	ID        string `json:"id" bson:"_id"`
	Flow      string `json:"flow" bson:"flow"`
	URL       string `json:"url" bson:"url"`
	Healthy   bool   `json:"healthy" bson:"healthy"`
	LatencyMS int64  `json:"latency_ms" bson:"latency_ms"`
	Hint      string `json:"hint,omitempty" bson:"hint,omitempty"`
	CheckedAt string `json:"checked_at" bson:"checked_at"`
}

// UptimeSeconds derives elapsed-active-seconds for a record. It is 0
// whenever the agent is not active, regardless of any stored
// activation timestamp.
func UptimeSeconds(rec AgentRecord, now time.Time) int64 {
	if rec.State != StateActive {
		return 0
	}
	activated := ParseTimestamp(rec.ActivatedAt)
	if activated.IsZero() {
		return 0
	}
	secs := int64(now.Sub(activated).Seconds())
	if secs < 0 {
		return 0
	}
	return secs
}

// CapitalizedName builds a display name from an agent id, e.g.
// "blaxing-sniper" becomes "Blaxing Sniper".
func CapitalizedName(agentID string) string {
	words := strings.FieldsFunc(agentID, func(r rune) bool {
		return r == '-' || r == '_' || r == ' '
	})
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// ExternalToAgentRecord normalizes a raw remote agent object into an
// AgentRecord, defaulting every missing field in one place.
func ExternalToAgentRecord(raw map[string]any, now time.Time) AgentRecord {
	rec := AgentRecord{
		Env:   map[string]string{},
		State: StateSleep,
	}

	if id, ok := raw["agent_id"].(string); ok && id != "" {
		rec.AgentID = id
	} else if id, ok := raw["id"].(string); ok {
		rec.AgentID = id
	}

	if name, ok := raw["name"].(string); ok && name != "" {
		rec.Name = name
	} else {
		rec.Name = CapitalizedName(rec.AgentID)
	}

	if image, ok := raw["image"].(string); ok {
		rec.Image = image
	}

	if env, ok := raw["env"].(map[string]any); ok {
		for k, v := range env {
			if s, ok := v.(string); ok {
				rec.Env[k] = s
			}
		}
	}

	if state, ok := raw["state"].(string); ok && AgentState(state) == StateActive {
		rec.State = StateActive
	}

	nowStr := FormatTimestamp(now)
	if created, ok := raw["created_at"].(string); ok && !ParseTimestamp(created).IsZero() {
		rec.CreatedAt = created
	} else {
		rec.CreatedAt = nowStr
	}
	if updated, ok := raw["updated_at"].(string); ok && !ParseTimestamp(updated).IsZero() {
		rec.UpdatedAt = updated
	} else {
		rec.UpdatedAt = nowStr
	}
	if activated, ok := raw["activated_at"].(string); ok {
		rec.ActivatedAt = activated
	}
	if hb, ok := raw["last_heartbeat"].(string); ok {
		rec.LastHeartbeat = hb
	}

	return rec
}
