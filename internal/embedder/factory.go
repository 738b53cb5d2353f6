package embedder

import (
	"fmt"
	"net/http"
	"time"

	"github.com/54b3r/docqa-go/internal/provider"
	"github.com/54b3r/docqa-go/internal/rag"
)

// Default embedding models per backend.
const (
	defaultOllamaModel = "nomic-embed-text"
	defaultOpenAIModel = "text-embedding-3-small"

	// defaultOllamaDimensions is the output dimension of nomic-embed-text.
	// Other Ollama models may differ, override with EMBEDDING_DIMENSIONS.
	defaultOllamaDimensions = 768
	// defaultOpenAIDimensions is the output dimension of text-embedding-3-small.
	defaultOpenAIDimensions = 1536
)

// Config selects and configures the embedding backend. Empty credentials and
// endpoints are inherited from the chat provider configuration by Resolve.
type Config struct {
	// Provider is ollama, openai or azure. Empty inherits MODEL_PROVIDER.
	Provider string `env:"EMBEDDING_PROVIDER"`
	// Model overrides the default model for the backend.
	Model string `env:"EMBEDDING_MODEL"`
	// Dimensions overrides the default vector size for the backend.
	Dimensions int `env:"EMBEDDING_DIMENSIONS"`
	// APIKey overrides the inherited API key.
	APIKey string `env:"EMBEDDING_API_KEY"`
	// Endpoint overrides the inherited endpoint.
	Endpoint string `env:"EMBEDDING_ENDPOINT"`
	// APIVersion is the Azure OpenAI API version for embeddings.
	APIVersion string `env:"EMBEDDING_API_VERSION" envDefault:"2025-04-01-preview"`
	// Timeout bounds each HTTP request.
	Timeout time.Duration `env:"EMBEDDING_TIMEOUT" envDefault:"60s"`
	// UserAgent is sent with every request.
	UserAgent string `env:"USER_AGENT" envDefault:"docqa-go"`
	// Retry controls retries of failed embedding calls.
	Retry RetryConfig `envPrefix:"EMBEDDING_RETRY_"`
}

// Resolve fills unset fields from the chat provider configuration and the
// backend defaults.
//
// Resolution order:
//
//  1. EMBEDDING_PROVIDER, else MODEL_PROVIDER when it is an embedding-capable
//     backend, else ollama
//  2. EMBEDDING_API_KEY / EMBEDDING_ENDPOINT, else the chat backend's credentials
//  3. EMBEDDING_MODEL, else the backend default model
//  4. EMBEDDING_DIMENSIONS, else the backend default dimensions
func (c Config) Resolve(chat provider.Config) Config {
	if c.Provider == "" {
		switch chat.Backend {
		case provider.BackendOpenAI, provider.BackendAzure:
			c.Provider = string(chat.Backend)
		default:
			c.Provider = string(provider.BackendOllama)
		}
	}

	switch c.Provider {
	case "ollama":
		if c.Endpoint == "" {
			c.Endpoint = chat.Ollama.Host
		}
		if c.Endpoint == "" {
			c.Endpoint = "http://localhost:11434"
		}
		if c.Model == "" {
			c.Model = defaultOllamaModel
		}
	case "openai":
		if c.APIKey == "" {
			c.APIKey = chat.OpenAI.APIKey
		}
		if c.Endpoint == "" {
			c.Endpoint = chat.OpenAI.BaseURL
		}
		if c.Endpoint == "" {
			c.Endpoint = "https://api.openai.com/v1"
		}
		if c.Model == "" {
			c.Model = defaultOpenAIModel
		}
	case "azure":
		if c.APIKey == "" {
			c.APIKey = chat.AzureOpenAI.APIKey
		}
		if c.Endpoint == "" {
			c.Endpoint = chat.AzureOpenAI.Endpoint
		}
		if c.Model == "" {
			c.Model = defaultOpenAIModel
		}
	}

	if c.Dimensions <= 0 {
		c.Dimensions = DefaultDimensions(c.Provider)
	}
	return c
}

// DefaultDimensions returns the default embedding vector size for a backend.
// Callers that need to pre-configure a vector store (e.g. Qdrant collection
// creation) should use the resolved Config.Dimensions rather than this.
func DefaultDimensions(backend string) int {
	switch backend {
	case "ollama":
		return defaultOllamaDimensions
	default:
		return defaultOpenAIDimensions
	}
}

// New constructs the embedder described by a resolved Config, wrapped with
// retries.
func New(cfg Config) (rag.Embedder, error) {
	client := &http.Client{Timeout: cfg.Timeout}
	if cfg.Timeout <= 0 {
		client.Timeout = 60 * time.Second
	}

	var inner rag.Embedder
	switch cfg.Provider {
	case "ollama":
		inner = NewOllamaEmbedder(&OllamaConfig{
			Host:      cfg.Endpoint,
			Model:     cfg.Model,
			UserAgent: cfg.UserAgent,
			Client:    client,
		})
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("embedder: openai requires OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		inner = NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    cfg.Endpoint,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			UserAgent:  cfg.UserAgent,
			Client:     client,
		})
	case "azure":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}
		inner = NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    cfg.Endpoint + "/openai",
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Azure:      true,
			APIVersion: cfg.APIVersion,
			UserAgent:  cfg.UserAgent,
			Client:     client,
		})
	default:
		return nil, fmt.Errorf("embedder: unknown backend %q (valid: ollama, openai, azure)", cfg.Provider)
	}

	return WithRetry(inner, cfg.Retry), nil
}
