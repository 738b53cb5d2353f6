// Package provider selects and constructs the chat model that generates
// answers. Supported backends: Ollama, OpenAI, Azure OpenAI, Volcengine Ark,
// Google Gemini. Every backend is returned as an eino model.BaseChatModel so
// the orchestrator never depends on a specific vendor SDK.
package provider

import (
	"fmt"
)

// Backend enumerates the supported LLM inference providers.
type Backend string

const (
	// BackendOllama selects a locally running Ollama instance.
	BackendOllama Backend = "ollama"
	// BackendOpenAI selects the OpenAI API or any OpenAI-compatible endpoint.
	BackendOpenAI Backend = "openai"
	// BackendAzure selects Azure OpenAI Service.
	BackendAzure Backend = "azure"
	// BackendArk selects Volcengine Ark.
	BackendArk Backend = "ark"
	// BackendGemini selects Google Gemini via AI Studio.
	BackendGemini Backend = "gemini"
)

// Config holds provider configuration. Field tags name the environment
// variables read by config.FromEnv.
type Config struct {
	// Backend identifies which inference provider to use.
	Backend Backend `env:"MODEL_PROVIDER" envDefault:"ollama"`

	Ollama      ProviderOllama
	OpenAI      ProviderOpenAI
	AzureOpenAI ProviderAzureOpenAI
	Ark         ProviderArk
	Gemini      ProviderGemini
	Tuning      SharedTuning
}

// ProviderOllama configures a local Ollama server.
type ProviderOllama struct {
	Host  string `env:"OLLAMA_HOST" envDefault:"http://localhost:11434"`
	Model string `env:"OLLAMA_MODEL" envDefault:"llama3.1"`
}

// ProviderOpenAI configures the OpenAI API.
type ProviderOpenAI struct {
	APIKey string `env:"OPENAI_API_KEY"`
	Model  string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	// BaseURL points at an OpenAI-compatible endpoint. Empty uses api.openai.com.
	BaseURL string `env:"OPENAI_BASE_URL"`
}

// ProviderAzureOpenAI configures Azure OpenAI Service.
type ProviderAzureOpenAI struct {
	APIKey     string `env:"AZURE_OPENAI_API_KEY"`
	Endpoint   string `env:"AZURE_OPENAI_ENDPOINT"`
	Deployment string `env:"AZURE_OPENAI_DEPLOYMENT"`
	APIVersion string `env:"AZURE_OPENAI_API_VERSION" envDefault:"2024-02-01"`
}

// ProviderArk configures Volcengine Ark.
type ProviderArk struct {
	APIKey  string `env:"ARK_API_KEY"`
	Model   string `env:"ARK_MODEL"`
	BaseURL string `env:"ARK_BASE_URL"`
}

// ProviderGemini configures Google Gemini.
type ProviderGemini struct {
	APIKey string `env:"GOOGLE_API_KEY"`
	Model  string `env:"GEMINI_MODEL" envDefault:"gemini-2.0-flash"`
}

// SharedTuning applies to every backend that supports it.
type SharedTuning struct {
	// MaxTokens caps the number of tokens the model may generate per response.
	MaxTokens int `env:"MODEL_MAX_TOKENS" envDefault:"4096"`
	// Temperature controls response randomness (0.0–1.0).
	Temperature float32 `env:"MODEL_TEMPERATURE" envDefault:"0.2"`
}

// Validate reports the first missing setting for the selected backend, naming
// the environment variable that supplies it.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendOllama:
		if c.Ollama.Host == "" {
			return fmt.Errorf("provider: OLLAMA_HOST is required for the ollama backend")
		}
		if c.Ollama.Model == "" {
			return fmt.Errorf("provider: OLLAMA_MODEL is required for the ollama backend")
		}
	case BackendOpenAI:
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("provider: OPENAI_API_KEY is required for the openai backend")
		}
		if c.OpenAI.Model == "" {
			return fmt.Errorf("provider: OPENAI_MODEL is required for the openai backend")
		}
	case BackendAzure:
		if c.AzureOpenAI.APIKey == "" {
			return fmt.Errorf("provider: AZURE_OPENAI_API_KEY is required for the azure backend")
		}
		if c.AzureOpenAI.Endpoint == "" {
			return fmt.Errorf("provider: AZURE_OPENAI_ENDPOINT is required for the azure backend")
		}
		if c.AzureOpenAI.Deployment == "" {
			return fmt.Errorf("provider: AZURE_OPENAI_DEPLOYMENT is required for the azure backend")
		}
	case BackendArk:
		if c.Ark.APIKey == "" {
			return fmt.Errorf("provider: ARK_API_KEY is required for the ark backend")
		}
		if c.Ark.Model == "" {
			return fmt.Errorf("provider: ARK_MODEL is required for the ark backend")
		}
	case BackendGemini:
		if c.Gemini.APIKey == "" {
			return fmt.Errorf("provider: GOOGLE_API_KEY is required for the gemini backend")
		}
		if c.Gemini.Model == "" {
			return fmt.Errorf("provider: GEMINI_MODEL is required for the gemini backend")
		}
	default:
		return fmt.Errorf("provider: unknown backend %q (valid: ollama, openai, azure, ark, gemini)", c.Backend)
	}
	if c.Tuning.Temperature < 0 || c.Tuning.Temperature > 2 {
		return fmt.Errorf("provider: MODEL_TEMPERATURE must be within [0, 2], got %v", c.Tuning.Temperature)
	}
	return nil
}

// ModelName returns the model identifier of the selected backend.
func (c *Config) ModelName() string {
	switch c.Backend {
	case BackendOllama:
		return c.Ollama.Model
	case BackendOpenAI:
		return c.OpenAI.Model
	case BackendAzure:
		return c.AzureOpenAI.Deployment
	case BackendArk:
		return c.Ark.Model
	case BackendGemini:
		return c.Gemini.Model
	default:
		return ""
	}
}
