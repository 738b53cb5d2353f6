package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// OllamaPinger checks an Ollama server with GET /api/version, which costs no
// tokens. Used for the chat model and the embedder when either runs on
// Ollama. The vector stores implement Pinger themselves.
type OllamaPinger struct {
	// name identifies the check in readiness responses.
	name   string
	host   string
	client *http.Client
}

// NewOllamaPinger constructs an OllamaPinger for host, labelled name.
func NewOllamaPinger(name, host string) *OllamaPinger {
	return &OllamaPinger{
		name:   name,
		host:   strings.TrimRight(host, "/"),
		client: &http.Client{Timeout: checkTimeout},
	}
}

// Name returns the label used in readiness responses.
func (p *OllamaPinger) Name() string { return p.name }

// Ping returns nil when the server answers 200.
func (p *OllamaPinger) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.host+"/api/version", nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama unreachable at %s: %w", p.host, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama returned %d after %s", resp.StatusCode, time.Since(start).Round(time.Millisecond))
	}
	return nil
}
