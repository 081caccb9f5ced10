package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"ClientPulse/pkg/util"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Logging struct {
		Level         string        `yaml:"level"`
		Format        string        `yaml:"format"`
		Output        string        `yaml:"output"`
		CollectTopic  string        `yaml:"collect_topic"`
		CollectFlush  time.Duration `yaml:"collect_flush"`
		CollectUnique int           `yaml:"collect_unique"`
	} `yaml:"logging"`
	Backend struct {
		Type         string        `yaml:"type"`
		BatchSize    int           `yaml:"batch_size"`
		BatchTimeout time.Duration `yaml:"batch_timeout"`
	} `yaml:"backend"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		TradesTopic  string   `yaml:"trades_topic"`
		AlertsTopic  string   `yaml:"alerts_topic"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID         string        `yaml:"group_id"`
			AutoOffsetReset string        `yaml:"auto_offset_reset"`
			Workers         int           `yaml:"workers"`
			BufferSize      int           `yaml:"buffer_size"`
			RetryMax        int           `yaml:"retry_max"`
			BackoffMin      time.Duration `yaml:"backoff_min"`
			BackoffMax      time.Duration `yaml:"backoff_max"`
			DLQTopic        string        `yaml:"dlq_topic"`
			MinBytes        int           `yaml:"min_bytes"`
			MaxBytes        int           `yaml:"max_bytes"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Feed struct {
		URL            string        `yaml:"url"`
		APIKey         string        `yaml:"api_key"`
		Books          []string      `yaml:"books"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay"`
		PingInterval   time.Duration `yaml:"ping_interval"`
	} `yaml:"feed"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Queue struct {
		Enabled     bool          `yaml:"enabled"`
		Workers     int           `yaml:"workers"`
		MaxRetries  int           `yaml:"max_retries"`
		RetryDelay  time.Duration `yaml:"retry_delay"`
		JobTimeout  time.Duration `yaml:"job_timeout"`
		PollTimeout time.Duration `yaml:"poll_timeout"`
	} `yaml:"queue"`
	Estimator struct {
		LookbackDays int           `yaml:"lookback_days"`
		WindowDays   int           `yaml:"window_days"`
		Baseline     float64       `yaml:"baseline"`
		CacheTTL     time.Duration `yaml:"cache_ttl"`
	} `yaml:"estimator"`
	Alerts struct {
		Enabled        bool          `yaml:"enabled"`
		Threshold      float64       `yaml:"threshold"`
		MinJump        float64       `yaml:"min_jump"`
		WebhookURL     string        `yaml:"webhook_url"`
		WebhookTimeout time.Duration `yaml:"webhook_timeout"`
	} `yaml:"alerts"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = util.ParseIntDefault(v, c.Server.Port)
	}
	if v := os.Getenv("BACKEND"); v != "" {
		c.Backend.Type = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_TRADES_TOPIC"); v != "" {
		c.Kafka.TradesTopic = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("FEED_URL"); v != "" {
		c.Feed.URL = v
	}
	if v := os.Getenv("FEED_API_KEY"); v != "" {
		c.Feed.APIKey = v
	}
	if v := os.Getenv("FEED_BOOKS"); v != "" {
		c.Feed.Books = strings.Split(v, ",")
	}
	if v := os.Getenv("ALERT_THRESHOLD"); v != "" {
		c.Alerts.Threshold = util.ParseFloatDefault(v, c.Alerts.Threshold)
	}
	if v := os.Getenv("ALERT_WEBHOOK_URL"); v != "" {
		c.Alerts.WebhookURL = v
	}

	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Logging.CollectFlush == 0 {
		c.Logging.CollectFlush = 30 * time.Second
	}
	if c.Logging.CollectUnique == 0 {
		c.Logging.CollectUnique = 100
	}
	if c.Estimator.LookbackDays == 0 {
		c.Estimator.LookbackDays = 90
	}
	if c.Estimator.WindowDays == 0 {
		c.Estimator.WindowDays = 14
	}
	if c.Estimator.Baseline == 0 {
		c.Estimator.Baseline = 0.30
	}
	if c.Estimator.CacheTTL == 0 {
		c.Estimator.CacheTTL = 5 * time.Minute
	}
	if c.Alerts.Threshold == 0 {
		c.Alerts.Threshold = 0.60
	}
	if c.Alerts.MinJump == 0 {
		c.Alerts.MinJump = 0.10
	}
	if c.Queue.Workers == 0 {
		c.Queue.Workers = 4
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Backend.Type == "" {
		return fmt.Errorf("backend.type is required")
	}
	if c.Backend.Type != "kafka" && c.Backend.Type != "clickhouse" {
		return fmt.Errorf("backend.type must be 'kafka' or 'clickhouse', got '%s'", c.Backend.Type)
	}
	if c.Backend.Type == "kafka" && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("backend.type 'kafka' requires kafka.brokers")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.TradesTopic == "" {
		return fmt.Errorf("kafka.trades_topic is required when kafka.brokers is set")
	}
	if c.Feed.URL != "" && len(c.Feed.Books) == 0 {
		return fmt.Errorf("feed.books cannot be empty when feed.url is set")
	}
	if c.Estimator.LookbackDays < 14 {
		return fmt.Errorf("estimator.lookback_days must be at least 14, got %d", c.Estimator.LookbackDays)
	}
	if c.Estimator.WindowDays < 7 {
		return fmt.Errorf("estimator.window_days must be at least 7, got %d", c.Estimator.WindowDays)
	}
	if c.Estimator.Baseline <= 0 || c.Estimator.Baseline >= 1 {
		return fmt.Errorf("estimator.baseline must be in (0, 1), got %v", c.Estimator.Baseline)
	}
	if c.Alerts.Enabled && len(c.Kafka.Brokers) == 0 && c.Alerts.WebhookURL == "" {
		return fmt.Errorf("alerts.enabled requires kafka.brokers or alerts.webhook_url")
	}
	if c.Queue.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("queue.enabled requires redis.addr")
	}
	return nil
}
