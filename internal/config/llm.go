package config

// Supported LLM providers.
const (
	ProviderLocalStub = "local_stub"
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
)

// LLMConfig selects and configures the reasoning provider.
type LLMConfig struct {
	Provider string `yaml:"provider"` // local_stub, openai, gemini

	Model string `yaml:"model"`

	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `yaml:"api_key_env"`

	// BaseURL overrides the provider endpoint (OpenAI-compatible servers).
	BaseURL string `yaml:"base_url"`

	// Organization is sent as the OpenAI-Organization header when set.
	Organization string `yaml:"organization"`
}

func (l *LLMConfig) applyDefaults() {
	if l.Provider == "" {
		l.Provider = ProviderLocalStub
	}
	if l.APIKeyEnv == "" {
		switch l.Provider {
		case ProviderOpenAI:
			l.APIKeyEnv = "OPENAI_API_KEY"
		case ProviderGemini:
			l.APIKeyEnv = "GEMINI_API_KEY"
		}
	}
}
