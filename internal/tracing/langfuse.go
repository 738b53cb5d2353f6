// Package tracing wires Langfuse into the eino callback system. Once the
// handler is registered globally every graph run, prompt format and model
// call is traced.
package tracing

import (
	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"
)

// Config holds Langfuse credentials.
type Config struct {
	PublicKey string
	SecretKey string
	Host      string
}

// Enabled reports whether both keys are present.
func (c Config) Enabled() bool {
	return c.PublicKey != "" && c.SecretKey != ""
}

// Setup returns the Langfuse callback handler and its flush function, which
// must be called before process exit. If the keys are not configured the
// handler and flush function are nil and ok is false.
func Setup(cfg Config) (handler callbacks.Handler, flush func(), ok bool) {
	if !cfg.Enabled() {
		return nil, nil, false
	}
	host := cfg.Host
	if host == "" {
		host = "http://localhost:3000"
	}

	handler, flush = langfuse.NewLangfuseHandler(&langfuse.Config{
		Host:      host,
		PublicKey: cfg.PublicKey,
		SecretKey: cfg.SecretKey,
	})
	return handler, flush, true
}
