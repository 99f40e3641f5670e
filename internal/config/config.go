package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Mailbox    MailboxConfig    `yaml:"mailbox" mapstructure:"mailbox"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Knowledge  KnowledgeConfig  `yaml:"knowledge" mapstructure:"knowledge"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// MailboxConfig holds IMAP/SMTP connection settings for the support mailbox.
type MailboxConfig struct {
	IMAPAddr    string `yaml:"imap_addr" mapstructure:"imap_addr"`
	SMTPAddr    string `yaml:"smtp_addr" mapstructure:"smtp_addr"`
	Address     string `yaml:"address" mapstructure:"address"`
	Password    string `yaml:"password" mapstructure:"password"`
	DraftFolder string `yaml:"draft_folder" mapstructure:"draft_folder"`
}

// Domain returns the mailbox address domain, used when synthesizing
// message and thread identifiers.
func (m MailboxConfig) Domain() string {
	if idx := strings.LastIndex(m.Address, "@"); idx >= 0 && idx < len(m.Address)-1 {
		return m.Address[idx+1:]
	}
	return "localhost"
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key            string  `yaml:"key" mapstructure:"key"`
	Model          string  `yaml:"model" mapstructure:"model"`
	MaxTokens      int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	RequestsPerSec float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
}

// KnowledgeConfig configures the product knowledge base used for
// retrieval-augmented replies.
type KnowledgeConfig struct {
	DatabasePath string `yaml:"database_path" mapstructure:"database_path"`
	MaxDocs      int    `yaml:"max_docs" mapstructure:"max_docs"`
}

// PipelineConfig controls the message-processing run.
type PipelineConfig struct {
	HumanReview      bool `yaml:"human_review" mapstructure:"human_review"`
	MaxTrials        int  `yaml:"max_trials" mapstructure:"max_trials"`
	MaxResults       int  `yaml:"max_results" mapstructure:"max_results"`
	WindowHours      int  `yaml:"window_hours" mapstructure:"window_hours"`
	MaxQueries       int  `yaml:"max_queries" mapstructure:"max_queries"`
	PollIntervalSecs int  `yaml:"poll_interval_secs" mapstructure:"poll_interval_secs"`
}

// StoreConfig configures the run-ledger database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the status server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// MonitoringConfig configures outcome alerting.
type MonitoringConfig struct {
	WebhookURL              string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	EscalationRateThreshold float64 `yaml:"escalation_rate_threshold" mapstructure:"escalation_rate_threshold"`
	DispatchFailureMax      int     `yaml:"dispatch_failure_max" mapstructure:"dispatch_failure_max"`
	LookbackHours           int     `yaml:"lookback_hours" mapstructure:"lookback_hours"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("AUTOREPLY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "autoreply.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("mailbox.draft_folder", "Drafts")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("anthropic.requests_per_sec", 2.0)
	v.SetDefault("knowledge.database_path", "knowledge.db")
	v.SetDefault("knowledge.max_docs", 5)
	v.SetDefault("pipeline.human_review", true)
	v.SetDefault("pipeline.max_trials", 3)
	v.SetDefault("pipeline.max_results", 50)
	v.SetDefault("pipeline.window_hours", 8)
	v.SetDefault("pipeline.max_queries", 3)
	v.SetDefault("pipeline.poll_interval_secs", 300)
	v.SetDefault("monitoring.escalation_rate_threshold", 0.5)
	v.SetDefault("monitoring.dispatch_failure_max", 0)
	v.SetDefault("monitoring.lookback_hours", 24)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
