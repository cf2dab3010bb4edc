package webui

import (
	"github.com/blaxing/gateway/core/audit"
	"github.com/blaxing/gateway/core/registry"
	"github.com/blaxing/gateway/core/store"
	"github.com/blaxing/gateway/pkg/llm"
	"github.com/blaxing/gateway/services/notify"
)

type Config struct {
	Registry   *registry.Registry
	Dispatcher *notify.Dispatcher
	LLM        *llm.Gateway
	Audit      *audit.StoreSink
	Store      store.Store
	// Mode names the persistence backend for the health endpoint.
	Mode string
}

type Option func(*Config)

func WithRegistry(r *registry.Registry) Option {
	return func(c *Config) {
		c.Registry = r
	}
}

func WithDispatcher(d *notify.Dispatcher) Option {
	return func(c *Config) {
		c.Dispatcher = d
	}
}

func WithLLM(g *llm.Gateway) Option {
	return func(c *Config) {
		c.LLM = g
	}
}

func WithAudit(a *audit.StoreSink) Option {
	return func(c *Config) {
		c.Audit = a
	}
}

func WithStore(s store.Store) Option {
	return func(c *Config) {
		c.Store = s
	}
}

func WithMode(mode string) Option {
	return func(c *Config) {
		c.Mode = mode
	}
}

func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

func NewConfig(opts ...Option) *Config {
	c := &Config{}
	c.Apply(opts...)
	return c
}
