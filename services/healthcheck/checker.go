package healthcheck

import (
	"context"
	"fmt"
	"time"

	"github.com/blaxing/gateway/core/store"
	"github.com/blaxing/gateway/core/types"
	"github.com/blaxing/gateway/services/notify"
	"github.com/google/uuid"
	"github.com/mudler/xlog"
	"github.com/robfig/cron/v3"
)

// Prober runs one diagnostics POST against a webhook target.
// *notify.Dispatcher satisfies this.
type Prober interface {
	Diagnostics(ctx context.Context, target string, data map[string]any) (*notify.DispatchResult, error)
}

// Alerter delivers a side-channel message when a probe fails.
type Alerter interface {
	Alert(ctx context.Context, message string) error
}

// Checker probes every registered flow on a fixed interval and records
// the outcomes. It is opt-in and fully stoppable; RunOnce exposes a
// single bounded iteration for tests.
type Checker struct {
	flows    store.FlowStore
	checks   store.StatusCheckStore
	prober   Prober
	alerter  Alerter
	interval time.Duration
	cron     *cron.Cron
	clock    func() time.Time
}

func NewChecker(flows store.FlowStore, checks store.StatusCheckStore, prober Prober, alerter Alerter, interval time.Duration) *Checker {
	if interval <= 0 {
		interval = 900 * time.Second
	}
	return &Checker{
		flows:    flows,
		checks:   checks,
		prober:   prober,
		alerter:  alerter,
		interval: interval,
		clock:    time.Now,
	}
}

// Start schedules the periodic run. Calling Start twice is a no-op.
func (c *Checker) Start() error {
	if c.cron != nil {
		xlog.Warn("Health checker already started")
		return nil
	}
	c.cron = cron.New()
	spec := fmt.Sprintf("@every %ds", int(c.interval.Seconds()))
	if _, err := c.cron.AddFunc(spec, func() {
		c.RunOnce(context.Background())
	}); err != nil {
		c.cron = nil
		return fmt.Errorf("scheduling health check: %w", err)
	}
	c.cron.Start()
	xlog.Info("Health checker started", "interval", c.interval)
	return nil
}

// Stop cancels the schedule and waits for an in-flight run to finish.
func (c *Checker) Stop() {
	if c.cron == nil {
		return
	}
	<-c.cron.Stop().Done()
	c.cron = nil
	xlog.Info("Health checker stopped")
}

// RunOnce probes every registered flow once.
func (c *Checker) RunOnce(ctx context.Context) {
	flows, err := c.flows.All(ctx)
	if err != nil {
		xlog.Error("Health check could not list flows", "error", err)
		return
	}

	for _, flow := range flows {
		c.probe(ctx, flow)
	}
}

func (c *Checker) probe(ctx context.Context, flow types.FlowRegistration) {
	check := types.StatusCheck{
		ID:        uuid.NewString(),
		Flow:      flow.Name,
		URL:       notify.MaskURL(flow.URL),
		CheckedAt: types.FormatTimestamp(c.clock()),
	}

	res, err := c.prober.Diagnostics(ctx, flow.URL, map[string]any{"probe": "healthcheck"})
	if err != nil {
		check.Hint = err.Error()
	} else {
		check.Healthy = res.Delivered || res.DryRun
		check.LatencyMS = res.LatencyMS
		check.Hint = res.Hint
	}

	if err := c.checks.Append(ctx, check); err != nil {
		xlog.Error("Failed to record status check", "flow", flow.Name, "error", err)
	}

	if check.Healthy {
		xlog.Debug("Flow healthy", "flow", flow.Name, "latency_ms", check.LatencyMS)
		return
	}

	xlog.Warn("Flow unhealthy", "flow", flow.Name, "hint", check.Hint)
	if c.alerter != nil {
		msg := fmt.Sprintf("GATEWAY ALERT: flow %q failed health check: %s", flow.Name, check.Hint)
		if err := c.alerter.Alert(ctx, msg); err != nil {
			xlog.Warn("Health-check alert failed", "flow", flow.Name, "error", err)
		}
	}
}
