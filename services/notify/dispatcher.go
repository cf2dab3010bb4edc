package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/blaxing/gateway/core/audit"
	"github.com/blaxing/gateway/core/store"
	"github.com/blaxing/gateway/core/types"
	"github.com/mudler/xlog"
)

var (
	// ErrInvalidInput marks malformed dispatch requests (no target,
	// bad URL scheme, empty flow name). Rejected before any I/O.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConfigMissing is returned when a flow cannot be resolved to
	// a URL and no webhook base is configured.
	ErrConfigMissing = errors.New("webhook target not configured")
)

const maxResponseBody = 400

// Config carries the process-level webhook settings.
type Config struct {
	// BaseURL is the workflow-automation service base; flows without
	// an explicit registration resolve to BaseURL/webhook/<flow>.
	BaseURL string
	// AuthEnabled and Token gate the Authorization header together:
	// the flag without a token sends nothing, and so does a token
	// without the flag.
	AuthEnabled bool
	Token       string
	// DryRun suppresses all outbound network I/O.
	DryRun  bool
	Timeout time.Duration
}

// DispatchRequest names a target either directly by URL or by logical
// flow name.
type DispatchRequest struct {
	Flow  string
	URL   string
	Event string
	Data  map[string]any
}

// DispatchResult reports what happened (or, in dry-run, what would
// have happened). Delivery failures are results, not errors.
type DispatchResult struct {
	Delivered  bool           `json:"delivered"`
	DryRun     bool           `json:"dry_run"`
	StatusCode int            `json:"status_code,omitempty"`
	Payload    map[string]any `json:"payload"`
	Response   string         `json:"response,omitempty"`
	Hint       string         `json:"hint,omitempty"`
	LatencyMS  int64          `json:"latency_ms"`
	Target     string         `json:"target"`
}

// Dispatcher posts structured events to webhook targets.
type Dispatcher struct {
	flows  store.FlowStore
	hooks  store.HooksStore
	sink   audit.Sink
	cfg    Config
	client *http.Client
	clock  func() time.Time
}

func NewDispatcher(flows store.FlowStore, hooks store.HooksStore, sink audit.Sink, cfg Config) *Dispatcher {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Dispatcher{
		flows:  flows,
		hooks:  hooks,
		sink:   sink,
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		clock:  time.Now,
	}
}

// DryRun reports whether outbound network I/O is suppressed.
func (d *Dispatcher) DryRun() bool { return d.cfg.DryRun }

// Dispatch resolves the target and posts {event, data, timestamp}.
// Input and configuration problems return errors; delivery problems
// come back inside the result with a hint.
func (d *Dispatcher) Dispatch(ctx context.Context, req DispatchRequest) (*DispatchResult, error) {
	target, err := d.resolveTarget(ctx, req)
	if err != nil {
		return nil, err
	}

	data := req.Data
	if len(data) == 0 {
		data = DefaultPayload(req.Flow)
	}
	payload := map[string]any{
		"event":     req.Event,
		"data":      data,
		"timestamp": types.FormatTimestamp(d.clock()),
	}

	if d.cfg.DryRun {
		d.sink.Record(ctx, "webhook_dispatch", MaskURL(target), "", "dry_run", map[string]any{"event": req.Event})
		return &DispatchResult{DryRun: true, Payload: payload, Target: MaskURL(target)}, nil
	}

	result := d.post(ctx, target, payload)
	outcome := "delivered"
	if !result.Delivered {
		outcome = "failed"
	}
	d.sink.Record(ctx, "webhook_dispatch", MaskURL(target), "", outcome, map[string]any{
		"event":  req.Event,
		"status": result.StatusCode,
		"hint":   result.Hint,
	})
	return result, nil
}

// DispatchEvent fires the flow mapped to a lifecycle event in the
// hooks configuration. An unmapped event is a silent no-op.
func (d *Dispatcher) DispatchEvent(ctx context.Context, event string, data map[string]any) (*DispatchResult, error) {
	cfg, err := d.hooks.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading hooks config: %w", err)
	}
	flow := cfg.FlowForEvent(event)
	if flow == "" {
		xlog.Debug("No flow mapped for event, skipping notification", "event", event)
		return nil, nil
	}
	return d.Dispatch(ctx, DispatchRequest{Flow: flow, Event: event, Data: data})
}

// NotifyEvent is the registry-facing notification path: fire the flow
// mapped to a lifecycle event and report only the error.
func (d *Dispatcher) NotifyEvent(ctx context.Context, event string, data map[string]any) error {
	_, err := d.DispatchEvent(ctx, event, data)
	return err
}

// Diagnostics probes a webhook target with the same POST the
// dispatcher would send, measuring round-trip latency and classifying
// the outcome into a human-readable hint. It never returns transport
// errors: every failure becomes a result with a non-empty hint.
func (d *Dispatcher) Diagnostics(ctx context.Context, target string, data map[string]any) (*DispatchResult, error) {
	if err := validateURL(target); err != nil {
		return nil, err
	}

	payload := map[string]any{
		"event":     "diagnostics",
		"data":      data,
		"timestamp": types.FormatTimestamp(d.clock()),
	}

	if d.cfg.DryRun {
		d.sink.Record(ctx, "webhook_diagnostics", MaskURL(target), "", "dry_run", nil)
		return &DispatchResult{DryRun: true, Payload: payload, Target: MaskURL(target), Hint: "dry-run: no network call performed"}, nil
	}

	result := d.post(ctx, target, payload)
	d.sink.Record(ctx, "webhook_diagnostics", MaskURL(target), "", result.Hint, map[string]any{
		"status":     result.StatusCode,
		"latency_ms": result.LatencyMS,
	})
	return result, nil
}

func (d *Dispatcher) post(ctx context.Context, target string, payload map[string]any) *DispatchResult {
	result := &DispatchResult{Payload: payload, Target: MaskURL(target)}

	body, err := json.Marshal(payload)
	if err != nil {
		result.Hint = "payload not serializable"
		return result
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewBuffer(body))
	if err != nil {
		result.Hint = "malformed target URL"
		return result
	}
	req.Header.Set("Content-Type", "application/json")
	if d.cfg.AuthEnabled && d.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+d.cfg.Token)
	}

	start := d.clock()
	resp, err := d.client.Do(req)
	result.LatencyMS = time.Since(start).Milliseconds()
	if err != nil {
		result.Hint = transportHint(err)
		return result
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	result.StatusCode = resp.StatusCode
	result.Response = truncate(string(raw), maxResponseBody)
	result.Hint = ClassifyOutcome(resp.StatusCode, string(raw))
	result.Delivered = resp.StatusCode < 400
	return result
}

func (d *Dispatcher) resolveTarget(ctx context.Context, req DispatchRequest) (string, error) {
	if req.URL != "" {
		if err := validateURL(req.URL); err != nil {
			return "", err
		}
		return req.URL, nil
	}
	if req.Flow == "" {
		return "", fmt.Errorf("%w: flow or url required", ErrInvalidInput)
	}

	flow, err := d.flows.Get(ctx, req.Flow)
	if err == nil {
		return flow.URL, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("looking up flow %q: %w", req.Flow, err)
	}
	if d.cfg.BaseURL != "" {
		return strings.TrimRight(d.cfg.BaseURL, "/") + "/webhook/" + req.Flow, nil
	}
	return "", fmt.Errorf("%w: flow %q is not registered and no base URL is set", ErrConfigMissing, req.Flow)
}

// RegisterFlow validates and upserts a flow name to URL mapping.
func (d *Dispatcher) RegisterFlow(ctx context.Context, name, target string) (*types.FlowRegistration, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: flow name required", ErrInvalidInput)
	}
	if err := validateURL(target); err != nil {
		return nil, err
	}
	flow := types.FlowRegistration{
		Name:      name,
		URL:       target,
		UpdatedAt: types.FormatTimestamp(d.clock()),
	}
	if err := d.flows.Put(ctx, flow); err != nil {
		return nil, fmt.Errorf("storing flow %q: %w", name, err)
	}
	d.sink.Record(ctx, "flow_register", name, "", "ok", map[string]any{"url": MaskURL(target)})
	return &flow, nil
}

func validateURL(target string) error {
	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: target must be an absolute http(s) URL", ErrInvalidInput)
	}
	return nil
}

// MaskURL keeps the first 40 and last 6 characters of a target so
// embedded tokens never land in logs while the URL stays debuggable.
func MaskURL(target string) string {
	if len(target) <= 46 {
		return target
	}
	return target[:40] + "..." + target[len(target)-6:]
}

// DefaultPayload keeps known flows demoable when the caller supplies
// no payload.
func DefaultPayload(flow string) map[string]any {
	switch flow {
	case "activation", "wake":
		return map[string]any{"message": "agent activated", "source": "gateway"}
	case "deactivation", "sleep":
		return map[string]any{"message": "agent deactivated", "source": "gateway"}
	case "status_change":
		return map[string]any{"message": "agent state changed", "source": "gateway"}
	}
	return map[string]any{"message": "ping", "source": "gateway"}
}

func transportHint(err error) string {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return "target timed out"
	}
	return "target unreachable"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
