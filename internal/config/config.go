package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Speech providers
const (
	ProviderAzure    = "azure"
	ProviderDeepgram = "deepgram"
)

// Audio inputs
const (
	InputMicrophone = "microphone" // default capture device of the host running the recognizer
	InputStream     = "stream"     // PCM pushed by the client (16 kHz, 16-bit, mono)
)

// Config holds all configuration for the dictation gateway
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"8080"`

	// Allowed browser origins for the dictation WebSocket (comma separated, "*" allows all)
	AllowedOrigins string `envconfig:"ALLOWED_ORIGINS" default:"*"`

	// Speech recognition
	Provider   string `envconfig:"STT_PROVIDER" default:"azure"`      // azure, deepgram
	AudioInput string `envconfig:"AUDIO_INPUT" default:"stream"`      // microphone, stream
	Language   string `envconfig:"SPEECH_LANGUAGE" default:"en-US"`   // fixed recognition locale
	SampleRate int    `envconfig:"AUDIO_SAMPLE_RATE" default:"16000"` // pushed PCM sample rate

	// Azure Speech resource. Not required at load time: a session
	// refuses to start without them.
	AzureSpeechKey    string `envconfig:"AZURE_SPEECH_KEY"`
	AzureSpeechRegion string `envconfig:"AZURE_SPEECH_REGION"` // e.g. eastus, westus2, centralindia

	// Deepgram streaming API
	DeepgramAPIKey string `envconfig:"DEEPGRAM_API_KEY"`
	DeepgramHost   string `envconfig:"DEEPGRAM_HOST" default:"api.deepgram.com"`
	DeepgramModel  string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"`

	// Session behaviour
	StopTimeoutMs int `envconfig:"STOP_TIMEOUT_MS" default:"5000"` // upper bound on waiting for end-of-recognition

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Start failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`             // Connect attempts per start
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"`        // Initial backoff in milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	cfg.AudioInput = strings.ToLower(strings.TrimSpace(cfg.AudioInput))

	switch cfg.Provider {
	case ProviderAzure, ProviderDeepgram:
	default:
		return nil, fmt.Errorf("STT_PROVIDER must be %q or %q, got %q", ProviderAzure, ProviderDeepgram, cfg.Provider)
	}

	switch cfg.AudioInput {
	case InputMicrophone, InputStream:
	default:
		return nil, fmt.Errorf("AUDIO_INPUT must be %q or %q, got %q", InputMicrophone, InputStream, cfg.AudioInput)
	}

	if cfg.Provider == ProviderDeepgram && cfg.AudioInput == InputMicrophone {
		return nil, fmt.Errorf("deepgram provider only supports AUDIO_INPUT=%s", InputStream)
	}

	return &cfg, nil
}

// SpeechConfigured reports whether the credential and region (or endpoint)
// of the selected provider are present.
func (c *Config) SpeechConfigured() bool {
	return c.SpeechCredential() != "" && c.SpeechRegion() != ""
}

// SpeechCredential returns the subscription credential of the selected provider.
func (c *Config) SpeechCredential() string {
	if c.Provider == ProviderDeepgram {
		return c.DeepgramAPIKey
	}
	return c.AzureSpeechKey
}

// SpeechRegion returns the region (Azure) or endpoint host (Deepgram) of the
// selected provider.
func (c *Config) SpeechRegion() string {
	if c.Provider == ProviderDeepgram {
		return c.DeepgramHost
	}
	return c.AzureSpeechRegion
}

// MissingSpeechHint names the variables an operator has to set.
func (c *Config) MissingSpeechHint() string {
	if c.Provider == ProviderDeepgram {
		return "set DEEPGRAM_API_KEY and DEEPGRAM_HOST (copy .env.example to .env and fill in your values)"
	}
	return "set AZURE_SPEECH_KEY and AZURE_SPEECH_REGION (copy .env.example to .env and fill in your values)"
}
