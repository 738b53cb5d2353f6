package embedder

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/54b3r/docqa-go/internal/rag"
)

// RetryConfig controls how failed embedding calls are retried. Field tags are
// relative to the EMBEDDING_RETRY_ prefix.
type RetryConfig struct {
	Attempts uint          `env:"ATTEMPTS" envDefault:"3"`
	Delay    time.Duration `env:"DELAY" envDefault:"200ms"`
	MaxDelay time.Duration `env:"MAX_DELAY" envDefault:"2s"`
}

// ToRetryOptions converts the config into retry-go options.
func (rc RetryConfig) ToRetryOptions() []retry.Option {
	attempts := rc.Attempts
	if attempts == 0 {
		attempts = 1
	}
	return []retry.Option{
		retry.Attempts(attempts),
		retry.Delay(rc.Delay),
		retry.MaxDelay(rc.MaxDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isRetryable),
	}
}

// StatusError is returned when an embedding endpoint answers with a non-2xx
// status.
type StatusError struct {
	Backend string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s embedder: HTTP %d", e.Backend, e.Code)
	}
	return fmt.Sprintf("%s embedder: HTTP %d: %s", e.Backend, e.Code, e.Message)
}

// isRetryable reports whether err is worth another attempt. Client errors other
// than 408 and 429 will fail the same way again.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.Code == http.StatusTooManyRequests, se.Code == http.StatusRequestTimeout:
			return true
		case se.Code >= 400 && se.Code < 500:
			return false
		}
	}
	return true
}

// retryingEmbedder retries transient failures of the wrapped embedder.
type retryingEmbedder struct {
	inner rag.Embedder
	opts  []retry.Option
}

// WithRetry wraps inner so each Embed call is retried per cfg.
func WithRetry(inner rag.Embedder, cfg RetryConfig) rag.Embedder {
	return &retryingEmbedder{inner: inner, opts: cfg.ToRetryOptions()}
}

// Embed calls the wrapped embedder until it succeeds, the error is not
// retryable, the attempts are exhausted or ctx is done.
func (r *retryingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	opts := append([]retry.Option{retry.Context(ctx)}, r.opts...)
	return retry.DoWithData(func() ([][]float32, error) {
		return r.inner.Embed(ctx, texts)
	}, opts...)
}
