// Package config loads service configuration from an optional config.yaml
// and the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"ambubot/internal/integrations/osm"
)

const (
	StateMemory   = "memory"
	StateDynamoDB = "dynamodb"

	LLMProxy  = "llmproxy"
	LLMOpenAI = "openai"
)

// Config holds all service configuration.
type Config struct {
	Environment EnvironmentConfig
	HTTPServer  HTTPServerConfig
	Logger      LoggerConfig
	State       StateConfig
	LLM         LLMConfig
	Intake      IntakeConfig
	Document    DocumentConfig
	Geo         GeoConfig
	Audit       AuditConfig
}

type EnvironmentConfig struct {
	Name string
}

type HTTPServerConfig struct {
	Port            int
	Mode            string
	ShutdownTimeout time.Duration
}

type LoggerConfig struct {
	Level        string
	Encoding     string
	ColorEnabled bool
}

type StateConfig struct {
	Backend  string
	Table    string
	TTL      time.Duration
	Capacity int
}

type LLMConfig struct {
	Backend string
	Timeout time.Duration

	// LLM proxy
	Endpoint    string
	APIKey      string
	APIKeyParam string

	// OpenAI-compatible chat completions
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string
}

type IntakeConfig struct {
	Model            string
	IntentCheck      bool
	RelevanceCheck   bool
	MaxMessageLength int
	RemedySessionID  string
	RAGThreshold     float64
	RAGK             int
}

type DocumentConfig struct {
	Path          string
	Strategy      string
	Description   string
	UploadOnStart bool
}

type GeoConfig struct {
	NominatimURL      string
	OverpassURL       string
	UserAgent         string
	RadiusM           int
	MaxResults        int
	RequestsPerSecond float64
	Timeout           time.Duration
}

type AuditConfig struct {
	Enabled bool
	Path    string
}

// Load reads configuration. config.yaml is searched in paths, or in
// ./config, . and /etc/ambubot/ when none are given. Every key can be
// overridden from the environment with dots replaced by underscores, for
// example LLM_API_KEY or STATE_TABLE.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{"./config", ".", "/etc/ambubot/"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read config file: %w", err)
		}
	}

	cfg := &Config{}

	cfg.Environment.Name = v.GetString("environment.name")

	cfg.HTTPServer.Port = v.GetInt("http_server.port")
	cfg.HTTPServer.Mode = v.GetString("http_server.mode")
	cfg.HTTPServer.ShutdownTimeout = v.GetDuration("http_server.shutdown_timeout")

	cfg.Logger.Level = v.GetString("logger.level")
	cfg.Logger.Encoding = v.GetString("logger.encoding")
	cfg.Logger.ColorEnabled = v.GetBool("logger.color_enabled")

	cfg.State.Backend = strings.ToLower(v.GetString("state.backend"))
	cfg.State.Table = v.GetString("state.table")
	cfg.State.TTL = v.GetDuration("state.ttl")
	cfg.State.Capacity = v.GetInt("state.capacity")

	cfg.LLM.Backend = strings.ToLower(v.GetString("llm.backend"))
	cfg.LLM.Timeout = v.GetDuration("llm.timeout")
	cfg.LLM.Endpoint = v.GetString("llm.endpoint")
	cfg.LLM.APIKey = v.GetString("llm.api_key")
	cfg.LLM.APIKeyParam = v.GetString("llm.api_key_param")
	cfg.LLM.OpenAIAPIKey = v.GetString("llm.openai_api_key")
	cfg.LLM.OpenAIModel = v.GetString("llm.openai_model")
	cfg.LLM.OpenAIBaseURL = v.GetString("llm.openai_base_url")
	// The usual OpenAI variable works too.
	if cfg.LLM.OpenAIAPIKey == "" {
		cfg.LLM.OpenAIAPIKey = v.GetString("openai_api_key")
	}

	cfg.Intake.Model = v.GetString("intake.model")
	cfg.Intake.IntentCheck = v.GetBool("intake.intent_check")
	cfg.Intake.RelevanceCheck = v.GetBool("intake.relevance_check")
	cfg.Intake.MaxMessageLength = v.GetInt("intake.max_message_length")
	cfg.Intake.RemedySessionID = v.GetString("intake.remedy_session_id")
	cfg.Intake.RAGThreshold = v.GetFloat64("intake.rag_threshold")
	cfg.Intake.RAGK = v.GetInt("intake.rag_k")

	cfg.Document.Path = v.GetString("document.path")
	cfg.Document.Strategy = v.GetString("document.strategy")
	cfg.Document.Description = v.GetString("document.description")
	cfg.Document.UploadOnStart = v.GetBool("document.upload_on_start")

	cfg.Geo.NominatimURL = v.GetString("geo.nominatim_url")
	cfg.Geo.OverpassURL = v.GetString("geo.overpass_url")
	cfg.Geo.UserAgent = v.GetString("geo.user_agent")
	cfg.Geo.RadiusM = v.GetInt("geo.radius_m")
	cfg.Geo.MaxResults = v.GetInt("geo.max_results")
	cfg.Geo.RequestsPerSecond = v.GetFloat64("geo.requests_per_second")
	cfg.Geo.Timeout = v.GetDuration("geo.timeout")

	cfg.Audit.Enabled = v.GetBool("audit.enabled")
	cfg.Audit.Path = v.GetString("audit.path")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	switch c.State.Backend {
	case StateMemory:
	case StateDynamoDB:
		if strings.TrimSpace(c.State.Table) == "" {
			return errors.New("config: state.table is required for the dynamodb backend")
		}
	default:
		return fmt.Errorf("config: unknown state.backend %q", c.State.Backend)
	}

	switch c.LLM.Backend {
	case LLMProxy:
		if strings.TrimSpace(c.LLM.Endpoint) == "" {
			return errors.New("config: llm.endpoint is required for the llmproxy backend")
		}
		if c.LLM.APIKey == "" && c.LLM.APIKeyParam == "" {
			return errors.New("config: one of llm.api_key or llm.api_key_param is required")
		}
	case LLMOpenAI:
		if c.LLM.OpenAIAPIKey == "" {
			return errors.New("config: llm.openai_api_key is required for the openai backend")
		}
	default:
		return fmt.Errorf("config: unknown llm.backend %q", c.LLM.Backend)
	}

	switch c.Logger.Encoding {
	case "json", "text", "console":
	default:
		return fmt.Errorf("config: unknown logger.encoding %q", c.Logger.Encoding)
	}

	switch c.HTTPServer.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("config: unknown http_server.mode %q", c.HTTPServer.Mode)
	}

	if c.Intake.MaxMessageLength <= 0 {
		return errors.New("config: intake.max_message_length must be positive")
	}
	if c.Geo.RadiusM <= 0 || c.Geo.MaxResults <= 0 {
		return errors.New("config: geo.radius_m and geo.max_results must be positive")
	}
	if c.Audit.Enabled && strings.TrimSpace(c.Audit.Path) == "" {
		return errors.New("config: audit.path is required when audit is enabled")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment.name", "development")

	v.SetDefault("http_server.port", 5001)
	v.SetDefault("http_server.mode", "release")
	v.SetDefault("http_server.shutdown_timeout", "10s")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.encoding", "json")
	v.SetDefault("logger.color_enabled", false)

	v.SetDefault("state.backend", StateMemory)
	v.SetDefault("state.table", "")
	v.SetDefault("state.ttl", "30m")
	v.SetDefault("state.capacity", 10000)

	v.SetDefault("llm.backend", LLMProxy)
	v.SetDefault("llm.timeout", "30s")
	v.SetDefault("llm.endpoint", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.api_key_param", "")
	v.SetDefault("llm.openai_api_key", "")
	v.SetDefault("llm.openai_model", "gpt-4o-mini")
	v.SetDefault("llm.openai_base_url", "")
	v.SetDefault("openai_api_key", "")

	v.SetDefault("intake.model", "4o-mini")
	v.SetDefault("intake.intent_check", false)
	v.SetDefault("intake.relevance_check", false)
	v.SetDefault("intake.max_message_length", 1000)
	v.SetDefault("intake.remedy_session_id", "ambubot-home-remedies")
	v.SetDefault("intake.rag_threshold", 0.2)
	v.SetDefault("intake.rag_k", 3)

	v.SetDefault("document.path", "HealingRemedies-compressed4mb.pdf")
	v.SetDefault("document.strategy", "smart")
	v.SetDefault("document.description", "")
	v.SetDefault("document.upload_on_start", false)

	v.SetDefault("geo.nominatim_url", osm.DefaultNominatimURL)
	v.SetDefault("geo.overpass_url", osm.DefaultOverpassURL)
	v.SetDefault("geo.user_agent", "AmbuBot/1.0")
	v.SetDefault("geo.radius_m", 20000)
	v.SetDefault("geo.max_results", 3)
	v.SetDefault("geo.requests_per_second", 1.0)
	v.SetDefault("geo.timeout", "10s")

	v.SetDefault("audit.enabled", false)
	v.SetDefault("audit.path", "ambubot.db")
}
