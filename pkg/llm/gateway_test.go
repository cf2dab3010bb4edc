package llm_test

import (
	"context"
	"net/http"
	"net/http/httptest"

	"github.com/blaxing/gateway/core/audit"
	"github.com/blaxing/gateway/core/store"
	"github.com/blaxing/gateway/pkg/llm"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sashabaranov/go-openai"
)

var _ = Describe("Gateway", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("relays prompts to the inference endpoint", func() {
		var gotAuth string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			Expect(r.URL.Path).To(Equal("/infer"))
			w.Write([]byte(`{"response":"hello from infer"}`))
		}))
		defer server.Close()

		g := llm.NewGateway(llm.Config{InferURL: server.URL, UniversalKey: "uni-key"}, audit.Discard{})
		answer, err := g.Ask(ctx, "hi", "", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(answer).To(Equal("hello from infer"))
		Expect(gotAuth).To(Equal("Bearer uni-key"))
	})

	It("accepts the alternate text field", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"text":"alt"}`))
		}))
		defer server.Close()

		g := llm.NewGateway(llm.Config{InferURL: server.URL, UniversalKey: "k"}, audit.Discard{})
		answer, err := g.Ask(ctx, "hi", "", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(answer).To(Equal("alt"))
	})

	It("falls back to chat completion when the endpoint fails", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		mock := &llm.MockClient{
			CreateChatCompletionFunc: func(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
				return openai.ChatCompletionResponse{
					Choices: []openai.ChatCompletionChoice{{
						Message: openai.ChatCompletionMessage{Content: "fallback answer"},
					}},
				}, nil
			},
		}

		g := llm.NewGateway(llm.Config{InferURL: server.URL, UniversalKey: "k"}, audit.Discard{}).WithChatClient(mock)
		answer, err := g.Ask(ctx, "hi", "", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(answer).To(Equal("fallback answer"))
	})

	It("skips the endpoint entirely without a universal key", func() {
		var called bool
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
		}))
		defer server.Close()

		mock := &llm.MockClient{
			CreateChatCompletionFunc: func(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
				return openai.ChatCompletionResponse{
					Choices: []openai.ChatCompletionChoice{{
						Message: openai.ChatCompletionMessage{Content: "direct"},
					}},
				}, nil
			},
		}

		g := llm.NewGateway(llm.Config{InferURL: server.URL}, audit.Discard{}).WithChatClient(mock)
		answer, err := g.Ask(ctx, "hi", "", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(answer).To(Equal("direct"))
		Expect(called).To(BeFalse())
	})

	It("reports when no engine is configured", func() {
		g := llm.NewGateway(llm.Config{}, audit.Discard{})
		_, err := g.Ask(ctx, "hi", "", "")
		Expect(err).To(MatchError(llm.ErrNoEngine))
	})

	It("keeps the question and answer in the ask history", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"response":"four"}`))
		}))
		defer server.Close()

		mem := store.NewMemoryStore()
		g := llm.NewGateway(llm.Config{InferURL: server.URL, UniversalKey: "k"}, audit.NewStoreSink(mem.Audit()))
		_, err := g.Ask(ctx, "what is 2+2", "", "trader-bot")
		Expect(err).NotTo(HaveOccurred())

		entries, total, err := mem.Audit().List(ctx, 1, 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(total).To(Equal(int64(1)))
		Expect(entries[0].Action).To(Equal("llm_ask"))
		Expect(entries[0].Target).To(Equal("trader-bot"))
		Expect(entries[0].Detail).To(HaveKeyWithValue("prompt", "what is 2+2"))
		Expect(entries[0].Detail).To(HaveKeyWithValue("answer", "four"))
	})
})
