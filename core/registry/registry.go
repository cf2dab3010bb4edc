package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/blaxing/gateway/core/audit"
	"github.com/blaxing/gateway/core/store"
	"github.com/blaxing/gateway/core/types"
	"github.com/blaxing/gateway/pkg/proxy"
	"github.com/mudler/xlog"
)

var (
	// ErrNotFound is surfaced when a lifecycle operation names an
	// unknown agent.
	ErrNotFound = errors.New("agent not found")

	// ErrInvalidInput marks registration requests missing required
	// fields.
	ErrInvalidInput = errors.New("invalid input")
)

// Notifier is the outbound notification path. Failures are the
// notifier's problem: registry mutations never depend on delivery.
type Notifier interface {
	NotifyEvent(ctx context.Context, event string, data map[string]any) error
}

// Config holds the operator-facing registry knobs.
type Config struct {
	// DryRun suppresses remote registration calls and echoes input.
	DryRun bool
	// NotifyOnBulk fires per-agent notifications during bulk
	// transitions. Off by default to avoid notification storms.
	NotifyOnBulk bool
}

// RegisterInput is the caller-supplied identity of an agent.
type RegisterInput struct {
	AgentID string            `json:"agent_id"`
	Name    string            `json:"name,omitempty"`
	Image   string            `json:"image,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// StatusResult is the response shape of the status operation.
type StatusResult struct {
	AgentID string           `json:"agent_id"`
	State   types.AgentState `json:"state"`
	Uptime  int64            `json:"uptime"`
	Status  string           `json:"status"`
}

// Registry is the single source of truth for agent listing and
// lifecycle transitions, in mock or remote mode per request.
type Registry struct {
	store    store.Store
	adapter  *proxy.Adapter
	notifier Notifier
	sink     audit.Sink
	cfg      Config
	clock    func() time.Time
}

func New(st store.Store, adapter *proxy.Adapter, notifier Notifier, sink audit.Sink, cfg Config) *Registry {
	return &Registry{
		store:    st,
		adapter:  adapter,
		notifier: notifier,
		sink:     sink,
		cfg:      cfg,
		clock:    time.Now,
	}
}

// WithClock swaps the time source, for tests.
func (r *Registry) WithClock(clock func() time.Time) *Registry {
	r.clock = clock
	return r
}

// List returns every agent with its computed uptime. Remote failures
// never propagate: the list falls back to the local store.
func (r *Registry) List(ctx context.Context, opts proxy.CallOpts) ([]types.AgentRecord, error) {
	if opts.Source.Remote() {
		records, err := r.listRemote(ctx, opts)
		if err == nil {
			return records, nil
		}
		xlog.Warn("Remote list failed, falling back to local store", "source", opts.Source, "error", err)
	}
	return r.listMock(ctx)
}

func (r *Registry) listMock(ctx context.Context) ([]types.AgentRecord, error) {
	now := r.clock()
	if err := store.SeedDefaults(ctx, r.store.Agents(), now); err != nil {
		return nil, err
	}
	records, err := r.store.Agents().All(ctx)
	if err != nil {
		return nil, err
	}
	for i := range records {
		records[i].Uptime = types.UptimeSeconds(records[i], now)
	}
	return records, nil
}

func (r *Registry) listRemote(ctx context.Context, opts proxy.CallOpts) ([]types.AgentRecord, error) {
	res, err := r.adapter.Do(ctx, http.MethodGet, "/agents", nil, opts)
	if err != nil {
		return nil, err
	}

	raws := extractAgentObjects(res)
	now := r.clock()
	records := make([]types.AgentRecord, 0, len(raws))
	for _, raw := range raws {
		rec := types.ExternalToAgentRecord(raw, now)
		rec.Uptime = types.UptimeSeconds(rec, now)
		records = append(records, rec)
	}
	return records, nil
}

// extractAgentObjects tolerates both a bare JSON array and an object
// wrapping the list under "agents".
func extractAgentObjects(res *proxy.Result) []map[string]any {
	var items []any
	if wrapped, ok := res.Body["agents"].([]any); ok {
		items = wrapped
	} else {
		_ = json.Unmarshal(res.Raw, &items)
	}

	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if obj, ok := item.(map[string]any); ok {
			out = append(out, obj)
		}
	}
	return out
}

// Register upserts agent identity. Existing records keep created_at
// and their current lifecycle state; only new records start asleep.
func (r *Registry) Register(ctx context.Context, in RegisterInput, opts proxy.CallOpts) (*types.AgentRecord, error) {
	if in.AgentID == "" {
		return nil, fmt.Errorf("%w: agent_id required", ErrInvalidInput)
	}

	if opts.Source.Remote() {
		return r.registerRemote(ctx, in, opts)
	}
	return r.registerMock(ctx, in)
}

func (r *Registry) synthesize(in RegisterInput) types.AgentRecord {
	now := types.FormatTimestamp(r.clock())
	name := in.Name
	if name == "" {
		name = types.CapitalizedName(in.AgentID)
	}
	env := in.Env
	if env == nil {
		env = map[string]string{}
	}
	return types.AgentRecord{
		AgentID:   in.AgentID,
		Name:      name,
		Image:     in.Image,
		Env:       env,
		State:     types.StateSleep,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (r *Registry) registerMock(ctx context.Context, in RegisterInput) (*types.AgentRecord, error) {
	rec := r.synthesize(in)

	existing, err := r.store.Agents().Get(ctx, in.AgentID)
	switch {
	case err == nil:
		// Re-registration refreshes identity, not lifecycle state.
		rec.CreatedAt = existing.CreatedAt
		rec.State = existing.State
		rec.ActivatedAt = existing.ActivatedAt
		rec.LastHeartbeat = existing.LastHeartbeat
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	if err := r.store.Agents().Put(ctx, rec); err != nil {
		return nil, err
	}
	r.sink.Record(ctx, "agent_register", in.AgentID, types.SourceMock, "ok", nil)

	rec.Uptime = types.UptimeSeconds(rec, r.clock())
	return &rec, nil
}

func (r *Registry) registerRemote(ctx context.Context, in RegisterInput, opts proxy.CallOpts) (*types.AgentRecord, error) {
	if r.cfg.DryRun {
		rec := r.synthesize(in)
		r.sink.Record(ctx, "agent_register", in.AgentID, opts.Source, "dry_run", nil)
		return &rec, nil
	}

	res, err := r.adapter.Do(ctx, http.MethodPost, "/agents/register", in, opts)
	if err != nil {
		r.sink.Record(ctx, "agent_register", in.AgentID, opts.Source, "upstream_error", map[string]any{"error": err.Error()})
		return nil, err
	}

	rec := types.ExternalToAgentRecord(res.Body, r.clock())
	if rec.AgentID == "" {
		rec = r.synthesize(in)
	}
	r.sink.Record(ctx, "agent_register", in.AgentID, opts.Source, "ok", nil)
	return &rec, nil
}

// Activate transitions an agent into the active state and fires the
// activation notification best-effort.
func (r *Registry) Activate(ctx context.Context, agentID string, opts proxy.CallOpts) (*types.AgentRecord, error) {
	return r.transition(ctx, agentID, types.StateActive, opts)
}

// Deactivate transitions an agent back to sleep. The activation
// timestamp is left in place; uptime is gated on state alone.
func (r *Registry) Deactivate(ctx context.Context, agentID string, opts proxy.CallOpts) (*types.AgentRecord, error) {
	return r.transition(ctx, agentID, types.StateSleep, opts)
}

func (r *Registry) transition(ctx context.Context, agentID string, target types.AgentState, opts proxy.CallOpts) (*types.AgentRecord, error) {
	event := types.EventActivation
	action := "agent_activate"
	path := "/agents/" + agentID + "/activate"
	if target == types.StateSleep {
		event = types.EventDeactivation
		action = "agent_deactivate"
		path = "/agents/" + agentID + "/deactivate"
	}

	if opts.Source.Remote() {
		// Write path: upstream failures surface to the caller.
		if _, err := r.adapter.Do(ctx, http.MethodPost, path, nil, opts); err != nil {
			r.sink.Record(ctx, action, agentID, opts.Source, "upstream_error", map[string]any{"error": err.Error()})
			return nil, err
		}
		r.sink.Record(ctx, action, agentID, opts.Source, "ok", nil)
		r.notifyTransition(ctx, event, agentID, target, opts.Source)
		return &types.AgentRecord{AgentID: agentID, State: target}, nil
	}

	rec, err := r.store.Agents().Get(ctx, agentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, agentID)
	}
	if err != nil {
		return nil, err
	}

	now := r.clock()
	rec.State = target
	rec.UpdatedAt = types.FormatTimestamp(now)
	if target == types.StateActive {
		rec.ActivatedAt = types.FormatTimestamp(now)
	}
	if err := r.store.Agents().Put(ctx, *rec); err != nil {
		return nil, err
	}

	r.sink.Record(ctx, action, agentID, types.SourceMock, "ok", nil)
	r.notifyTransition(ctx, event, agentID, target, types.SourceMock)

	rec.Uptime = types.UptimeSeconds(*rec, now)
	return rec, nil
}

// notifyTransition runs the notification path best-effort: delivery
// failure never fails the transition it reports.
func (r *Registry) notifyTransition(ctx context.Context, event, agentID string, state types.AgentState, source types.Source) {
	err := r.notifier.NotifyEvent(ctx, event, map[string]any{
		"agent_id": agentID,
		"state":    state,
		"source":   source,
	})
	if err != nil {
		xlog.Warn("State-change notification failed", "event", event, "agent_id", agentID, "error", err)
	}
}

// Status reports current state plus derived uptime. In remote mode the
// observed state is compared against the cache so that a notification
// fires exactly once per transition, not once per poll; any remote
// failure falls back to the local record.
func (r *Registry) Status(ctx context.Context, agentID string, opts proxy.CallOpts) (*StatusResult, error) {
	if opts.Source.Remote() {
		res, err := r.adapter.Do(ctx, http.MethodGet, "/agents/"+agentID+"/status", nil, opts)
		if err == nil {
			result := statusFromRemote(agentID, res)
			r.compareAndNotify(ctx, agentID, result.State, opts.Source)
			return result, nil
		}
		xlog.Warn("Remote status failed, falling back to local store", "agent_id", agentID, "error", err)
	}

	rec, err := r.store.Agents().Get(ctx, agentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, agentID)
	}
	if err != nil {
		return nil, err
	}

	result := &StatusResult{
		AgentID: agentID,
		State:   rec.State,
		Uptime:  types.UptimeSeconds(*rec, r.clock()),
		Status:  "ok",
	}
	if opts.Source.Remote() {
		r.compareAndNotify(ctx, agentID, result.State, opts.Source)
	}
	return result, nil
}

func statusFromRemote(agentID string, res *proxy.Result) *StatusResult {
	result := &StatusResult{AgentID: agentID, State: types.StateSleep, Status: "ok"}
	if state, ok := res.Body["state"].(string); ok && types.AgentState(state) == types.StateActive {
		result.State = types.StateActive
	}
	if uptime, ok := res.Body["uptime"].(float64); ok && uptime > 0 {
		result.Uptime = int64(uptime)
	}
	return result
}

// compareAndNotify updates the per-agent state cache and fires a
// status_change notification only when the observed state differs
// from the last one recorded (or none was recorded yet).
func (r *Registry) compareAndNotify(ctx context.Context, agentID string, state types.AgentState, source types.Source) {
	prev, err := r.store.StateCache().Get(ctx, agentID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		xlog.Error("State cache read failed", "agent_id", agentID, "error", err)
		return
	}
	if prev != nil && prev.State == state {
		return
	}

	entry := types.StateCacheEntry{
		AgentID:    agentID,
		State:      state,
		ObservedAt: types.FormatTimestamp(r.clock()),
	}
	if err := r.store.StateCache().Put(ctx, entry); err != nil {
		xlog.Error("State cache write failed", "agent_id", agentID, "error", err)
		return
	}

	data := map[string]any{
		"agent_id": agentID,
		"state":    state,
		"source":   source,
	}
	if prev != nil {
		data["previous_state"] = prev.State
	}
	if err := r.notifier.NotifyEvent(ctx, types.EventStatusChange, data); err != nil {
		xlog.Warn("Status-change notification failed", "agent_id", agentID, "error", err)
	}
}

// ActivateAll transitions every agent to active in one bulk update.
func (r *Registry) ActivateAll(ctx context.Context, opts proxy.CallOpts) (int64, error) {
	return r.transitionAll(ctx, types.StateActive, opts)
}

// DeactivateAll transitions every agent to sleep in one bulk update.
func (r *Registry) DeactivateAll(ctx context.Context, opts proxy.CallOpts) (int64, error) {
	return r.transitionAll(ctx, types.StateSleep, opts)
}

func (r *Registry) transitionAll(ctx context.Context, target types.AgentState, opts proxy.CallOpts) (int64, error) {
	action := "agents_activate_all"
	path := "/agents/activate-all"
	event := types.EventActivation
	if target == types.StateSleep {
		action = "agents_deactivate_all"
		path = "/agents/deactivate-all"
		event = types.EventDeactivation
	}

	if opts.Source.Remote() {
		res, err := r.adapter.Do(ctx, http.MethodPost, path, nil, opts)
		if err != nil {
			r.sink.Record(ctx, action, "", opts.Source, "upstream_error", map[string]any{"error": err.Error()})
			return 0, err
		}
		r.sink.Record(ctx, action, "", opts.Source, "ok", nil)
		if count, ok := res.Body["count"].(float64); ok {
			return int64(count), nil
		}
		return 0, nil
	}

	now := types.FormatTimestamp(r.clock())
	activatedAt := ""
	if target == types.StateActive {
		activatedAt = now
	}
	count, err := r.store.Agents().SetStateAll(ctx, target, now, activatedAt)
	if err != nil {
		return 0, err
	}
	r.sink.Record(ctx, action, "", types.SourceMock, "ok", map[string]any{"count": count})

	if r.cfg.NotifyOnBulk {
		records, err := r.store.Agents().All(ctx)
		if err == nil {
			for _, rec := range records {
				r.notifyTransition(ctx, event, rec.AgentID, target, types.SourceMock)
			}
		}
	}
	return count, nil
}
