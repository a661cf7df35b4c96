// Package config loads service configuration from the environment, with an
// optional YAML overlay for tuning knobs that rarely change per deployment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the root service configuration.
type Config struct {
	HTTPPort        string
	AdminSecretKey  string
	BaseWorkingPath string

	Database DatabaseConfig
	LLM      LLMConfig
	Memory   MemoryConfig
	Engine   EngineConfig
	Poller   PollerConfig
	Sync     SyncConfig
	Slack    SlackConfig
}

// DatabaseConfig holds connection settings. DATABASE_URL takes precedence
// over the discrete fields when set.
type DatabaseConfig struct {
	URL      string
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	SSLRoot  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DSN renders a pgx-compatible connection string.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
	if c.SSLRoot != "" {
		dsn += " sslrootcert=" + c.SSLRoot
	}
	return dsn
}

// LLMConfig configures the model provider.
type LLMConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	EmbeddingModel string
	TurnTimeout    time.Duration
	CallTimeout    time.Duration
}

// MemoryConfig configures the episodic memory service client.
type MemoryConfig struct {
	BaseURL string
	Timeout time.Duration
}

// EngineConfig tunes the background job engine.
type EngineConfig struct {
	PollInterval       time.Duration `yaml:"poll_interval"`
	PollIntervalJitter time.Duration `yaml:"poll_interval_jitter"`
	JobTimeout         time.Duration `yaml:"job_timeout"`
	MaxWorkers         int           `yaml:"max_workers"`
	QueueSize          int           `yaml:"queue_size"`
	DrainTimeout       time.Duration `yaml:"drain_timeout"`
}

// PollerConfig tunes the instance completion poller.
type PollerConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxWorkers   int           `yaml:"max_workers"`
	BatchLimit   int           `yaml:"batch_limit"`
	QueueSize    int           `yaml:"queue_size"`
}

// SyncConfig tunes instance-plan materialization.
type SyncConfig struct {
	TitleSimilarityThreshold float64 `yaml:"title_similarity_threshold"`
}

// SlackConfig enables the optional Slack notification channel for job results.
type SlackConfig struct {
	Token   string
	Channel string
}

// Enabled reports whether Slack notifications are configured.
func (c SlackConfig) Enabled() bool {
	return c.Token != "" && c.Channel != ""
}

// Load builds the configuration from environment variables and, when present,
// a config.yaml overlay in configDir.
func Load(configDir string) (*Config, error) {
	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}
	maxOpen, _ := strconv.Atoi(getEnv("DB_MAX_OPEN_CONNS", "10"))
	maxIdle, _ := strconv.Atoi(getEnv("DB_MAX_IDLE_CONNS", "5"))

	memTimeout, err := secondsEnv("MEMORY_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		AdminSecretKey:  os.Getenv("ADMIN_SECRET_KEY"),
		BaseWorkingPath: getEnv("BASE_WORKING_PATH", "./workspaces"),
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            dbPort,
			User:            getEnv("DB_USER", "agentcore"),
			Password:        os.Getenv("DB_PASSWORD"),
			Database:        getEnv("DB_NAME", "agentcore"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			SSLRoot:         os.Getenv("DB_SSLROOTCERT"),
			MaxOpenConns:    maxOpen,
			MaxIdleConns:    maxIdle,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
		},
		LLM: LLMConfig{
			APIKey:         os.Getenv("OPENAI_API_KEY"),
			BaseURL:        os.Getenv("OPENAI_BASE_URL"),
			Model:          getEnv("LLM_MODEL", "gpt-4o"),
			EmbeddingModel: getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
			TurnTimeout:    60 * time.Second,
			CallTimeout:    30 * time.Second,
		},
		Memory: MemoryConfig{
			BaseURL: getEnv("MEMORY_BASE_URL", "http://localhost:1995"),
			Timeout: memTimeout,
		},
		Engine: EngineConfig{
			PollInterval:       60 * time.Second,
			PollIntervalJitter: 5 * time.Second,
			JobTimeout:         30 * time.Minute,
			MaxWorkers:         5,
			QueueSize:          64,
			DrainTimeout:       30 * time.Second,
		},
		Poller: PollerConfig{
			PollInterval: 5 * time.Second,
			MaxWorkers:   3,
			BatchLimit:   100,
			QueueSize:    128,
		},
		Sync: SyncConfig{
			TitleSimilarityThreshold: 0.5,
		},
		Slack: SlackConfig{
			Token:   os.Getenv("SLACK_BOT_TOKEN"),
			Channel: os.Getenv("SLACK_CHANNEL"),
		},
	}

	if err := applyOverlay(cfg, configDir); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Engine.MaxWorkers <= 0 {
		return fmt.Errorf("engine.max_workers must be positive")
	}
	if c.Poller.MaxWorkers <= 0 {
		return fmt.Errorf("poller.max_workers must be positive")
	}
	if c.Poller.BatchLimit <= 0 {
		return fmt.Errorf("poller.batch_limit must be positive")
	}
	if c.Sync.TitleSimilarityThreshold <= 0 || c.Sync.TitleSimilarityThreshold > 1 {
		return fmt.Errorf("sync.title_similarity_threshold must be in (0, 1]")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func secondsEnv(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	secs, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return time.Duration(secs) * time.Second, nil
}
