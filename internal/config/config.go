package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Auth modes accepted by the gate in front of the OpenAI-compatible routes
const (
	AuthDisabled = "disabled"
	AuthStatic   = "static"
	AuthJWT      = "jwt"
)

// Config is the full service configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	LLM      LLMConfig      `yaml:"llm"`
	Agent    AgentConfig    `yaml:"agent"`
	Backends BackendsConfig `yaml:"backends"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig controls the HTTP listener
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ModelAlias      string        `yaml:"model_alias"`
	EngineTimeout   time.Duration `yaml:"engine_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AuthConfig selects how the Authorization header is checked.
// Mode "disabled" accepts every request and is logged loudly at startup.
type AuthConfig struct {
	Mode      string   `yaml:"mode"`
	Tokens    []string `yaml:"tokens,omitempty"`
	JWTSecret string   `yaml:"jwt_secret,omitempty"`
}

// LLMConfig points at an OpenAI-compatible chat completions API
type LLMConfig struct {
	APIBase     string  `yaml:"api_base"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens,omitempty"`
}

// AgentConfig tunes the ReAct loop
type AgentConfig struct {
	MaxIterations int    `yaml:"max_iterations"`
	Prompt        string `yaml:"prompt,omitempty"`
}

// BackendsConfig holds the lookup services the tools call
type BackendsConfig struct {
	RAGURL      string        `yaml:"rag_url"`
	ESDBURL     string        `yaml:"esdb_url"`
	ESDBIndex   string        `yaml:"esdb_index"`
	StardustURL string        `yaml:"stardust_url"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"max_retries"`
	RatePerSec  float64       `yaml:"rate_per_second"`
	Burst       int           `yaml:"burst"`
}

// LoggingConfig selects zap level and encoding
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file or environment overrides are given
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8000",
			ModelAlias:      "itsm-agent",
			EngineTimeout:   120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Auth: AuthConfig{Mode: AuthDisabled},
		LLM: LLMConfig{
			APIBase: "https://api.openai.com/v1",
			Model:   "gpt-4-turbo",
		},
		Agent: AgentConfig{MaxIterations: 10},
		Backends: BackendsConfig{
			RAGURL:      "http://localhost:8001/get_suggestion",
			ESDBURL:     "http://localhost:9200",
			ESDBIndex:   "itsm-logs",
			StardustURL: "http://api.stardust.internal/v1",
			Timeout:     10 * time.Second,
			MaxRetries:  2,
			RatePerSec:  5,
			Burst:       5,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// LoadConfig reads the YAML file at path over the defaults, then applies
// environment overrides. An empty path skips the file.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.ApplyEnv(os.LookupEnv)
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables. Names match the
// original .env layout so existing deployments keep working.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("OPENAI_API_BASE", &c.LLM.APIBase)
	str("OPENAI_API_KEY", &c.LLM.APIKey)
	str("OPENAI_MODEL_NAME", &c.LLM.Model)
	str("RAG_SERVER_URL", &c.Backends.RAGURL)
	str("ESDB_URL", &c.Backends.ESDBURL)
	str("STARDUST_API_URL", &c.Backends.StardustURL)
	str("AGENT_LISTEN_ADDR", &c.Server.Addr)
	str("AGENT_AUTH_MODE", &c.Auth.Mode)
	str("AGENT_JWT_SECRET", &c.Auth.JWTSecret)
	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FORMAT", &c.Logging.Format)

	if v, ok := lookup("AGENT_AUTH_TOKENS"); ok && v != "" {
		c.Auth.Tokens = c.Auth.Tokens[:0]
		for _, tok := range strings.Split(v, ",") {
			if tok = strings.TrimSpace(tok); tok != "" {
				c.Auth.Tokens = append(c.Auth.Tokens, tok)
			}
		}
	}
}

// Validate reports every configuration problem at once
func (c *Config) Validate() error {
	var errs []error

	if c.LLM.APIKey == "" {
		errs = append(errs, errors.New("llm.api_key (OPENAI_API_KEY) is required"))
	}
	if c.LLM.Model == "" {
		errs = append(errs, errors.New("llm.model is required"))
	}
	if c.Agent.MaxIterations <= 0 {
		errs = append(errs, fmt.Errorf("agent.max_iterations must be positive, got %d", c.Agent.MaxIterations))
	}
	if c.Server.EngineTimeout <= 0 {
		errs = append(errs, errors.New("server.engine_timeout must be positive"))
	}

	switch c.Auth.Mode {
	case AuthDisabled:
	case AuthStatic:
		if len(c.Auth.Tokens) == 0 {
			errs = append(errs, errors.New("auth.tokens is required when auth.mode is static"))
		}
	case AuthJWT:
		if c.Auth.JWTSecret == "" {
			errs = append(errs, errors.New("auth.jwt_secret is required when auth.mode is jwt"))
		}
	default:
		errs = append(errs, fmt.Errorf("auth.mode must be one of %q, %q, %q; got %q",
			AuthDisabled, AuthStatic, AuthJWT, c.Auth.Mode))
	}

	return errors.Join(errs...)
}
