package healthcheck_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/blaxing/gateway/core/audit"
	"github.com/blaxing/gateway/core/store"
	"github.com/blaxing/gateway/core/types"
	"github.com/blaxing/gateway/services/healthcheck"
	"github.com/blaxing/gateway/services/notify"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type recordingChecks struct {
	mu     sync.Mutex
	checks []types.StatusCheck
}

func (r *recordingChecks) Append(ctx context.Context, check types.StatusCheck) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks = append(r.checks, check)
	return nil
}

func (r *recordingChecks) all() []types.StatusCheck {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.StatusCheck(nil), r.checks...)
}

type recordingAlerter struct {
	messages []string
	err      error
}

func (a *recordingAlerter) Alert(ctx context.Context, message string) error {
	a.messages = append(a.messages, message)
	return a.err
}

var _ = Describe("Checker", func() {
	var (
		ctx     context.Context
		mem     *store.MemoryStore
		checks  *recordingChecks
		alerter *recordingAlerter
	)

	BeforeEach(func() {
		ctx = context.Background()
		mem = store.NewMemoryStore()
		checks = &recordingChecks{}
		alerter = &recordingAlerter{}
	})

	newDispatcher := func(cfg notify.Config) *notify.Dispatcher {
		return notify.NewDispatcher(mem.Flows(), mem.Hooks(), audit.Discard{}, cfg)
	}

	It("records a healthy check for a reachable flow", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"ok":true}`))
		}))
		defer server.Close()

		Expect(mem.Flows().Put(ctx, types.FlowRegistration{Name: "deploy", URL: server.URL})).To(Succeed())

		c := healthcheck.NewChecker(mem.Flows(), checks, newDispatcher(notify.Config{}), alerter, time.Minute)
		c.RunOnce(ctx)

		recorded := checks.all()
		Expect(recorded).To(HaveLen(1))
		Expect(recorded[0].Flow).To(Equal("deploy"))
		Expect(recorded[0].Healthy).To(BeTrue())
		Expect(alerter.messages).To(BeEmpty())
	})

	It("alerts when a flow probe fails", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"message":"webhook not registered"}`))
		}))
		defer server.Close()

		Expect(mem.Flows().Put(ctx, types.FlowRegistration{Name: "alerts", URL: server.URL})).To(Succeed())

		c := healthcheck.NewChecker(mem.Flows(), checks, newDispatcher(notify.Config{}), alerter, time.Minute)
		c.RunOnce(ctx)

		recorded := checks.all()
		Expect(recorded).To(HaveLen(1))
		Expect(recorded[0].Healthy).To(BeFalse())
		Expect(recorded[0].Hint).To(ContainSubstring("not armed"))
		Expect(alerter.messages).To(HaveLen(1))
		Expect(alerter.messages[0]).To(ContainSubstring("alerts"))
	})

	It("masks the flow URL in the recorded check", func() {
		longURL := "https://automation.internal.example.com/webhook/very-long-path-that-keeps-going"
		Expect(mem.Flows().Put(ctx, types.FlowRegistration{Name: "masked", URL: longURL})).To(Succeed())

		c := healthcheck.NewChecker(mem.Flows(), checks, newDispatcher(notify.Config{DryRun: true}), alerter, time.Minute)
		c.RunOnce(ctx)

		recorded := checks.all()
		Expect(recorded).To(HaveLen(1))
		Expect(recorded[0].URL).To(ContainSubstring("..."))
		Expect(recorded[0].URL).NotTo(Equal(longURL))
	})

	It("treats dry-run probes as healthy", func() {
		Expect(mem.Flows().Put(ctx, types.FlowRegistration{Name: "quiet", URL: "http://unreachable.invalid/webhook/quiet"})).To(Succeed())

		c := healthcheck.NewChecker(mem.Flows(), checks, newDispatcher(notify.Config{DryRun: true}), alerter, time.Minute)
		c.RunOnce(ctx)

		recorded := checks.all()
		Expect(recorded).To(HaveLen(1))
		Expect(recorded[0].Healthy).To(BeTrue())
		Expect(alerter.messages).To(BeEmpty())
	})

	It("swallows alerter failures", func() {
		alerter.err = context.DeadlineExceeded
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		Expect(mem.Flows().Put(ctx, types.FlowRegistration{Name: "broken", URL: server.URL})).To(Succeed())

		c := healthcheck.NewChecker(mem.Flows(), checks, newDispatcher(notify.Config{}), alerter, time.Minute)
		c.RunOnce(ctx)

		Expect(checks.all()).To(HaveLen(1))
		Expect(alerter.messages).To(HaveLen(1))
	})

	It("does nothing when no flows are registered", func() {
		c := healthcheck.NewChecker(mem.Flows(), checks, newDispatcher(notify.Config{}), nil, time.Minute)
		c.RunOnce(ctx)
		Expect(checks.all()).To(BeEmpty())
	})

	It("starts and stops cleanly", func() {
		c := healthcheck.NewChecker(mem.Flows(), checks, newDispatcher(notify.Config{}), nil, time.Hour)
		Expect(c.Start()).To(Succeed())
		Expect(c.Start()).To(Succeed())
		c.Stop()
		c.Stop()
	})
})
