// Package config loads and validates the orchestrator's static
// configuration: domain routing, gate sequencing, retry/consensus/safety
// tuning, and the backing stores (Redis, Postgres, Slack, LLM provider).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wavehq/orchestrator/pkg/queue"
)

// GateSequence selects between the canonical 10-gate ordering and the
// TDD-aware variant (§3 of the design notes).
type GateSequence string

const (
	GateSequenceStandard GateSequence = "standard"
	GateSequenceTDD      GateSequence = "tdd"
)

type ServerConfig struct {
	APIPort     string `yaml:"api_port"`
	MetricsPort string `yaml:"metrics_port"`
}

type LLMConfig struct {
	Provider       string        `yaml:"provider"`
	Endpoint       string        `yaml:"endpoint"`
	Model          string        `yaml:"model"`
	Timeout        time.Duration `yaml:"timeout"`
	RetryCount     int           `yaml:"retry_count"`
	Temperature    float32       `yaml:"temperature"`
	MaxTokens      int           `yaml:"max_tokens"`
	AnthropicAPIKey string       `yaml:"-"`
	OpenAIAPIKey    string       `yaml:"-"`
	XAIAPIKey       string       `yaml:"-"`
}

type RedisConfig struct {
	URL       string `yaml:"url"`
	Namespace string `yaml:"namespace"`
}

// DatabaseConfig holds the optional SQL checkpoint store. An empty DSN
// means the orchestrator falls back to an in-memory checkpointer
// (SPEC_FULL.md §6).
type DatabaseConfig struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// SupervisorConfig tunes the PM-dispatch supervisor.
type SupervisorConfig struct {
	PMTimeout time.Duration `yaml:"pm_timeout"`
}

// SupabaseConfig is the optional story source-of-truth integration.
type SupabaseConfig struct {
	URL string `yaml:"-"`
	Key string `yaml:"-"`
}

type DomainConfig struct {
	Name     string   `yaml:"name"`
	Patterns []string `yaml:"patterns"`
}

type GatesConfig struct {
	Sequence   GateSequence `yaml:"sequence"`
	MaxRetries int          `yaml:"max_retries"`
}

type RetrySubgraphConfig struct {
	MaxRetries  int           `yaml:"max_retries"`
	BaseBackoff time.Duration `yaml:"base_backoff"`
	MaxBackoff  time.Duration `yaml:"max_backoff"`
	Multiplier  float64       `yaml:"multiplier"`
	Jitter      bool          `yaml:"jitter"`
}

type ConsensusConfig struct {
	ApprovalThreshold     float64 `yaml:"approval_threshold"`
	HumanReviewThreshold  float64 `yaml:"human_review_threshold"`
}

type BudgetConfig struct {
	WarningPercent  float64 `yaml:"warning_percent"`
	CriticalPercent float64 `yaml:"critical_percent"`
}

type SlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Config struct {
	Server        ServerConfig        `yaml:"server"`
	LLM           LLMConfig           `yaml:"llm"`
	Redis         RedisConfig         `yaml:"redis"`
	Database      DatabaseConfig      `yaml:"database"`
	Domains       []DomainConfig      `yaml:"domains"`
	Gates         GatesConfig         `yaml:"gates"`
	RetrySubgraph RetrySubgraphConfig `yaml:"retry_subgraph"`
	Consensus     ConsensusConfig     `yaml:"consensus"`
	Budget        BudgetConfig        `yaml:"budget"`
	Slack         SlackConfig         `yaml:"slack"`
	Logging       LoggingConfig       `yaml:"logging"`
	Supervisor    SupervisorConfig    `yaml:"supervisor"`
	Supabase      SupabaseConfig      `yaml:"-"`
}

// Load reads path, applies defaults, overlays environment variables, and
// validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(cfg)

	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.APIPort == "" {
		cfg.Server.APIPort = "8080"
	}
	if cfg.Server.MetricsPort == "" {
		cfg.Server.MetricsPort = "9090"
	}
	if cfg.LLM.Endpoint == "" {
		cfg.LLM.Endpoint = "http://localhost:8080"
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "anthropic"
	}
	if cfg.Redis.Namespace == "" {
		cfg.Redis.Namespace = "wave"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Gates.Sequence == "" {
		cfg.Gates.Sequence = GateSequenceStandard
	}
	if cfg.Gates.MaxRetries == 0 {
		cfg.Gates.MaxRetries = 3
	}
	if cfg.RetrySubgraph.MaxRetries == 0 {
		cfg.RetrySubgraph.MaxRetries = 7
	}
	if cfg.RetrySubgraph.BaseBackoff == 0 {
		cfg.RetrySubgraph.BaseBackoff = time.Second
	}
	if cfg.RetrySubgraph.MaxBackoff == 0 {
		cfg.RetrySubgraph.MaxBackoff = 300 * time.Second
	}
	if cfg.RetrySubgraph.Multiplier == 0 {
		cfg.RetrySubgraph.Multiplier = 2
	}
	if cfg.Consensus.ApprovalThreshold == 0 {
		cfg.Consensus.ApprovalThreshold = 0.8
	}
	if cfg.Consensus.HumanReviewThreshold == 0 {
		cfg.Consensus.HumanReviewThreshold = 0.5
	}
	if cfg.Budget.WarningPercent == 0 {
		cfg.Budget.WarningPercent = 0.75
	}
	if cfg.Budget.CriticalPercent == 0 {
		cfg.Budget.CriticalPercent = 0.9
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Redis.URL == "" {
		cfg.Redis.URL = "redis://localhost:6379"
	}
	if cfg.Supervisor.PMTimeout == 0 {
		cfg.Supervisor.PMTimeout = queue.ClampPMTimeout(0)
	}
}

func loadFromEnv(cfg *Config) error {
	if v := os.Getenv("LLM_ENDPOINT"); v != "" {
		cfg.LLM.Endpoint = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("API_PORT"); v != "" {
		cfg.Server.APIPort = v
	}
	if v := os.Getenv("METRICS_PORT"); v != "" {
		cfg.Server.MetricsPort = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SLACK_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid SLACK_ENABLED value: %w", err)
		}
		cfg.Slack.Enabled = enabled
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.Slack.WebhookURL = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.LLM.AnthropicAPIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.LLM.OpenAIAPIKey = v
	}
	if v := os.Getenv("XAI_API_KEY"); v != "" {
		cfg.LLM.XAIAPIKey = v
	}
	if v := os.Getenv("SUPABASE_URL"); v != "" {
		cfg.Supabase.URL = v
	}
	if v := os.Getenv("SUPABASE_KEY"); v != "" {
		cfg.Supabase.Key = v
	}
	if v := os.Getenv("WAVE_PM_TIMEOUT"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid WAVE_PM_TIMEOUT value: %w", err)
		}
		cfg.Supervisor.PMTimeout = queue.ClampPMTimeout(time.Duration(secs) * time.Second)
	}
	return nil
}

func validate(cfg *Config) error {
	switch cfg.LLM.Provider {
	case "anthropic", "bedrock", "openai", "xai":
	default:
		return fmt.Errorf("unsupported LLM provider: %s", cfg.LLM.Provider)
	}

	if cfg.LLM.Model == "" {
		return fmt.Errorf("LLM model is required")
	}

	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 1 {
		return fmt.Errorf("LLM temperature must be between 0.0 and 1.0")
	}

	if cfg.LLM.MaxTokens <= 0 {
		cfg.LLM.MaxTokens = 4096
	}

	if cfg.Gates.MaxRetries <= 0 {
		return fmt.Errorf("gates max retries must be greater than 0")
	}

	switch cfg.Gates.Sequence {
	case GateSequenceStandard, GateSequenceTDD:
	default:
		return fmt.Errorf("unsupported gate sequence: %s", cfg.Gates.Sequence)
	}

	if cfg.Consensus.ApprovalThreshold <= 0 || cfg.Consensus.ApprovalThreshold > 1 {
		return fmt.Errorf("consensus approval threshold must be in (0, 1]")
	}
	if cfg.Consensus.HumanReviewThreshold <= 0 || cfg.Consensus.HumanReviewThreshold >= cfg.Consensus.ApprovalThreshold {
		return fmt.Errorf("consensus human review threshold must be positive and below the approval threshold")
	}

	return nil
}
