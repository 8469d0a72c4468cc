package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/nikogura/cv-tailor/pkg/llm"
	"github.com/nikogura/cv-tailor/pkg/prompt"
	"github.com/pkg/errors"
)

// Environment variables that override the config file.
const (
	EnvProvider     = "CV_TAILOR_PROVIDER"
	EnvOpenAIKey    = "OPENAI_API_KEY"
	EnvAnthropicKey = "ANTHROPIC_API_KEY"
	EnvGeminiKey    = "GEMINI_API_KEY"
)

// Config represents the application configuration.
type Config struct {
	Provider       string            `json:"provider"`
	APIKeys        APIKeysConfig     `json:"api_keys"`
	Model          string            `json:"model,omitempty"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	Temperature    float64           `json:"temperature,omitempty"`
	BaseURL        string            `json:"base_url,omitempty"`
	BaseCVLocation string            `json:"base_cv_location"`
	Concurrency    int               `json:"concurrency,omitempty"`
	Prompts        map[string]string `json:"prompts,omitempty"`
	Defaults       DefaultConfig     `json:"defaults"`
}

// APIKeysConfig holds one API key per provider.
type APIKeysConfig struct {
	OpenAI    string `json:"openai,omitempty"`
	Anthropic string `json:"anthropic,omitempty"`
	Gemini    string `json:"gemini,omitempty"`
}

// DefaultConfig holds default values for commands.
type DefaultConfig struct {
	OutputDir     string `json:"output_dir"`
	ListenAddress string `json:"listen_address,omitempty"`
}

// DefaultPath returns ~/.cv-tailor/config.json.
func DefaultPath() (path string, err error) {
	var homeDir string
	homeDir, err = os.UserHomeDir()
	if err != nil {
		err = errors.Wrap(err, "failed to get user home directory")
		return path, err
	}
	path = filepath.Join(homeDir, ".cv-tailor", "config.json")
	return path, err
}

// APIKey returns the key for the configured provider.
func (c *Config) APIKey() (key string) {
	switch strings.ToLower(c.Provider) {
	case llm.ProviderAnthropic:
		key = c.APIKeys.Anthropic
	case llm.ProviderGemini:
		key = c.APIKeys.Gemini
	default:
		key = c.APIKeys.OpenAI
	}
	return key
}

// GatewayOptions returns the provider settings for llm.NewGateway.
func (c *Config) GatewayOptions() (opts llm.Options) {
	opts = llm.Options{
		Provider:    c.Provider,
		APIKey:      c.APIKey(),
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: c.Temperature,
		BaseURL:     c.BaseURL,
	}
	return opts
}

// PromptSet returns the built-in prompts with configured overrides applied.
// Every template is tokenized, so a malformed override fails here rather
// than after a request has been sent.
func (c *Config) PromptSet() (set prompt.Set, err error) {
	set, err = prompt.DefaultSet().WithOverrides(c.Prompts)
	if err != nil {
		err = errors.Wrap(err, "invalid prompt override")
		return set, err
	}

	err = set.Validate()
	if err != nil {
		err = errors.Wrap(err, "invalid prompt override")
		return set, err
	}

	return set, err
}

// Load reads configuration from file with environment variable overrides.
// A .env file in the working directory is loaded first.
func Load(configPath string) (cfg Config, err error) {
	err = LoadDotEnv("")
	if err != nil {
		return cfg, err
	}

	path := configPath
	if path == "" {
		path, err = DefaultPath()
		if err != nil {
			return cfg, err
		}
	}

	var data []byte
	data, err = os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			err = errors.Errorf("config file not found: %s (run 'cv-tailor init' to create)", path)
			return cfg, err
		}
		err = errors.Wrapf(err, "failed to read config file: %s", path)
		return cfg, err
	}

	err = json.Unmarshal(data, &cfg)
	if err != nil {
		err = errors.Wrapf(err, "failed to parse config file: %s", path)
		return cfg, err
	}

	cfg.ApplyEnv()

	err = cfg.Validate()
	if err != nil {
		err = errors.Wrap(err, "config validation failed")
		return cfg, err
	}

	return cfg, err
}

// LoadDotEnv loads variables from a .env file without overriding ones
// already set. A missing file is not an error.
func LoadDotEnv(path string) (err error) {
	if path == "" {
		path = ".env"
	}

	_, err = os.Stat(path)
	if os.IsNotExist(err) {
		err = nil
		return err
	}

	err = godotenv.Load(path)
	if err != nil {
		err = errors.Wrapf(err, "failed to load env file: %s", path)
		return err
	}

	return err
}

// ApplyEnv overrides provider and API keys from the environment.
func (c *Config) ApplyEnv() {
	if provider := os.Getenv(EnvProvider); provider != "" {
		c.Provider = provider
	}

	if apiKey := os.Getenv(EnvOpenAIKey); apiKey != "" {
		c.APIKeys.OpenAI = apiKey
	}

	if apiKey := os.Getenv(EnvAnthropicKey); apiKey != "" {
		c.APIKeys.Anthropic = apiKey
	}

	if apiKey := os.Getenv(EnvGeminiKey); apiKey != "" {
		c.APIKeys.Gemini = apiKey
	}
}

// Validate checks that all required configuration is present.
func (c *Config) Validate() (err error) {
	if c.Provider == "" {
		c.Provider = llm.ProviderOpenAI
	}
	c.Provider = strings.ToLower(c.Provider)

	switch c.Provider {
	case llm.ProviderOpenAI, llm.ProviderAnthropic, llm.ProviderGemini:
	default:
		err = errors.Errorf("unknown provider %q (expected openai, anthropic or gemini)", c.Provider)
		return err
	}

	if c.APIKey() == "" {
		err = errors.Errorf("api_keys.%s is required (set in config or %s env var)", c.Provider, envKeyFor(c.Provider))
		return err
	}

	if c.BaseCVLocation != "" {
		_, err = os.Stat(c.BaseCVLocation)
		if os.IsNotExist(err) {
			err = errors.Errorf("base CV file not found: %s", c.BaseCVLocation)
			return err
		}
		err = nil
	}

	if c.Concurrency < 0 {
		err = errors.New("concurrency must not be negative")
		return err
	}

	if c.Temperature < 0 || c.Temperature > 2 {
		err = errors.New("temperature must be between 0 and 2")
		return err
	}

	_, err = c.PromptSet()
	if err != nil {
		return err
	}

	// Set defaults if not specified
	if c.Defaults.OutputDir == "" {
		c.Defaults.OutputDir = "./tailored"
	}

	if c.Defaults.ListenAddress == "" {
		c.Defaults.ListenAddress = ":8080"
	}

	return err
}

func envKeyFor(provider string) (name string) {
	switch provider {
	case llm.ProviderAnthropic:
		name = EnvAnthropicKey
	case llm.ProviderGemini:
		name = EnvGeminiKey
	default:
		name = EnvOpenAIKey
	}
	return name
}

// InitConfig creates a default configuration file.
func InitConfig(configPath string) (err error) {
	path := configPath
	if path == "" {
		path, err = DefaultPath()
		if err != nil {
			return err
		}
	}

	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	err = os.MkdirAll(dir, 0750)
	if err != nil {
		err = errors.Wrapf(err, "failed to create config directory: %s", dir)
		return err
	}

	// Check if file already exists
	_, err = os.Stat(path)
	if err == nil {
		err = errors.Errorf("config file already exists: %s", path)
		return err
	}

	var homeDir string
	homeDir, err = os.UserHomeDir()
	if err != nil {
		err = errors.Wrap(err, "failed to get user home directory")
		return err
	}

	defaultConfig := Config{
		Provider: llm.ProviderOpenAI,
		APIKeys: APIKeysConfig{
			OpenAI: "sk-...",
		},
		Model:          llm.DefaultOpenAIModel,
		MaxTokens:      llm.DefaultMaxTokens,
		Temperature:    0.2,
		BaseCVLocation: filepath.Join(homeDir, ".cv-tailor", "cv.yaml"),
		Concurrency:    4,
		Defaults: DefaultConfig{
			OutputDir:     filepath.Join(homeDir, "Documents", "CVs"),
			ListenAddress: ":8080",
		},
	}

	var data []byte
	data, err = json.MarshalIndent(defaultConfig, "", "  ")
	if err != nil {
		err = errors.Wrap(err, "failed to marshal default config")
		return err
	}

	err = os.WriteFile(path, data, 0600)
	if err != nil {
		err = errors.Wrapf(err, "failed to write config file: %s", path)
		return err
	}

	return err
}
