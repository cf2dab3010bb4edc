package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/blaxing/gateway/core/audit"
	"github.com/mudler/xlog"
	"github.com/sashabaranov/go-openai"
)

// ErrNoEngine is returned when neither the universal inference
// endpoint nor the OpenAI fallback is configured.
var ErrNoEngine = errors.New("no inference engine configured")

const defaultModel = "emergent-llm-v1"

// ChatClient is the slice of the OpenAI client the gateway needs.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type Config struct {
	// InferURL is the base of the universal inference endpoint; the
	// gateway posts {model, agent, prompt} to <InferURL>/infer.
	InferURL     string
	UniversalKey string

	OpenAIKey     string
	FallbackModel string

	Timeout time.Duration
}

// Gateway relays prompts to the universal inference endpoint first and
// falls back to an OpenAI-compatible chat completion.
type Gateway struct {
	cfg    Config
	client *http.Client
	chat   ChatClient
	sink   audit.Sink
}

func NewGateway(cfg Config, sink audit.Sink) *Gateway {
	if cfg.Timeout == 0 {
		cfg.Timeout = 20 * time.Second
	}

	var chat ChatClient
	if cfg.OpenAIKey != "" {
		config := openai.DefaultConfig(cfg.OpenAIKey)
		config.HTTPClient = &http.Client{Timeout: cfg.Timeout}
		chat = openai.NewClientWithConfig(config)
	}

	return &Gateway{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		chat:   chat,
		sink:   sink,
	}
}

// WithChatClient swaps the fallback client, for tests.
func (g *Gateway) WithChatClient(chat ChatClient) *Gateway {
	g.chat = chat
	return g
}

// Ask relays a prompt and returns the first answer an engine produces.
func (g *Gateway) Ask(ctx context.Context, prompt, model, agent string) (string, error) {
	if model == "" {
		model = defaultModel
	}
	if agent == "" {
		agent = "builder-agent"
	}

	if answer, err := g.askInfer(ctx, prompt, model, agent); err == nil {
		g.sink.Record(ctx, "llm_ask", agent, "", "ok", map[string]any{
			"engine": "infer",
			"model":  model,
			"prompt": clip(prompt),
			"answer": clip(answer),
		})
		return answer, nil
	} else if !errors.Is(err, ErrNoEngine) {
		xlog.Warn("Inference endpoint failed, trying fallback", "error", err)
	}

	if g.chat != nil {
		answer, err := g.askFallback(ctx, prompt)
		if err != nil {
			g.sink.Record(ctx, "llm_ask", agent, "", "failed", map[string]any{
				"engine": "openai",
				"prompt": clip(prompt),
				"error":  err.Error(),
			})
			return "", err
		}
		g.sink.Record(ctx, "llm_ask", agent, "", "ok", map[string]any{
			"engine": "openai",
			"prompt": clip(prompt),
			"answer": clip(answer),
		})
		return answer, nil
	}

	g.sink.Record(ctx, "llm_ask", agent, "", "no_engine", map[string]any{"prompt": clip(prompt)})
	return "", ErrNoEngine
}

// clip bounds the prompt/answer copies kept in the ask history.
func clip(s string) string {
	const max = 400
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func (g *Gateway) askInfer(ctx context.Context, prompt, model, agent string) (string, error) {
	if g.cfg.UniversalKey == "" || g.cfg.InferURL == "" {
		return "", ErrNoEngine
	}

	payload, err := json.Marshal(map[string]string{
		"model":  model,
		"agent":  agent,
		"prompt": prompt,
	})
	if err != nil {
		return "", err
	}

	url := strings.TrimRight(g.cfg.InferURL, "/") + "/infer"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+g.cfg.UniversalKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling inference endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 400))
		return "", fmt.Errorf("inference endpoint returned %d: %s", resp.StatusCode, string(raw))
	}

	var body struct {
		Response string `json:"response"`
		Text     string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decoding inference response: %w", err)
	}
	if body.Response != "" {
		return body.Response, nil
	}
	if body.Text != "" {
		return body.Text, nil
	}
	return "", errors.New("inference endpoint returned an empty answer")
}

func (g *Gateway) askFallback(ctx context.Context, prompt string) (string, error) {
	model := g.cfg.FallbackModel
	if model == "" {
		model = openai.GPT4o
	}

	res, err := g.chat.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(res.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return res.Choices[0].Message.Content, nil
}
