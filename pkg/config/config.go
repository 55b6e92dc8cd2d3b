package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Server      struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"30s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"60s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"30s"`
		CORS            bool          `yaml:"cors"`
		RateLimit       struct {
			RPS   float64 `yaml:"rps" default:"5"`
			Burst int     `yaml:"burst" default:"10"`
		} `yaml:"rate_limit"`
	} `yaml:"server"`
	Metrics struct {
		Enabled       bool          `yaml:"enabled"`
		SlowThreshold time.Duration `yaml:"slow_threshold" default:"2s"`
	} `yaml:"metrics"`
	Logging struct {
		Level      string `yaml:"level" default:"info"`
		Format     string `yaml:"format" default:"json"`
		Output     string `yaml:"output" default:"stdout"`
		TimeFormat string `yaml:"time_format" default:"2006-01-02T15:04:05Z07:00"`
		Collector  struct {
			Enabled       bool          `yaml:"enabled"`
			BatchSize     int           `yaml:"batch_size" default:"100"`
			FlushInterval time.Duration `yaml:"flush_interval" default:"5s"`
		} `yaml:"collector"`
	} `yaml:"logging"`
	Models struct {
		Dir   string `yaml:"dir" default:"models"`
		Watch bool   `yaml:"watch"`
	} `yaml:"models"`
	Storage struct {
		Backend string `yaml:"backend" default:"badger"`
		Badger  struct {
			Path       string        `yaml:"path" default:"data/predictions"`
			InMemory   bool          `yaml:"in_memory"`
			GCInterval time.Duration `yaml:"gc_interval" default:"10m"`
		} `yaml:"badger"`
		Postgres struct {
			DSN          string `yaml:"dsn"`
			MaxOpenConns int    `yaml:"max_open_conns" default:"10"`
		} `yaml:"postgres"`
	} `yaml:"storage"`
	ClickHouse struct {
		Host         string        `yaml:"host" default:"localhost"`
		Port         int           `yaml:"port" default:"9000"`
		Database     string        `yaml:"database" default:"finsense"`
		User         string        `yaml:"user" default:"default"`
		Password     string        `yaml:"password"`
		UseHTTP      bool          `yaml:"use_http"`
		DialTimeout  time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"30s"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"30s"`
	} `yaml:"clickhouse"`
	Feed struct {
		Type     string        `yaml:"type" default:"http"`
		HTTPURL  string        `yaml:"http_url" default:"http://localhost:8000"`
		Timeout  time.Duration `yaml:"timeout" default:"15s"`
		Retries  int           `yaml:"retries" default:"2"`
		CacheTTL time.Duration `yaml:"cache_ttl" default:"30s"`
	} `yaml:"feed"`
	Kafka struct {
		Enabled bool     `yaml:"enabled"`
		Brokers []string `yaml:"brokers"`
		Topics  struct {
			Predictions string `yaml:"predictions" default:"finsense.predictions"`
			ModelEvents string `yaml:"model_events" default:"finsense.model-events"`
			Quotes      string `yaml:"quotes" default:"finsense.quotes"`
			Logs        string `yaml:"logs" default:"finsense.logs"`
		} `yaml:"topics"`
		Producer struct {
			RequiredAcks int           `yaml:"required_acks" default:"-1"`
			Compression  string        `yaml:"compression" default:"snappy"`
			MaxAttempts  int           `yaml:"max_attempts" default:"5"`
			Linger       time.Duration `yaml:"linger" default:"50ms"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			Enabled    bool          `yaml:"enabled"`
			GroupID    string        `yaml:"group_id" default:"finsense"`
			Workers    int           `yaml:"workers" default:"2"`
			BufferSize int           `yaml:"buffer_size" default:"256"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host" default:"localhost"`
		Port     int    `yaml:"port" default:"6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix" default:"finsense"`
	} `yaml:"redis"`
	Queue struct {
		Enabled    bool          `yaml:"enabled"`
		Workers    int           `yaml:"workers" default:"1"`
		Size       int           `yaml:"size" default:"100"`
		RetryLimit int           `yaml:"retry_limit" default:"2"`
		RetryDelay time.Duration `yaml:"retry_delay" default:"30s"`
	} `yaml:"queue"`
	Stream struct {
		Enabled        bool          `yaml:"enabled"`
		WebSocketURL   string        `yaml:"websocket_url" default:"wss://ws.finnhub.io"`
		APIKey         string        `yaml:"api_key"`
		Symbols        []string      `yaml:"symbols"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
		PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
		MaxRPS         float64       `yaml:"max_rps" default:"5"`
		BufferSize     int           `yaml:"buffer_size" default:"1000"`
	} `yaml:"stream"`
	Tracker struct {
		OutcomeThresholdPct float64                  `yaml:"outcome_threshold_pct" default:"0.05"`
		UnverifiedThreshold int                      `yaml:"unverified_threshold" default:"100"`
		Lookback            time.Duration            `yaml:"lookback" default:"192h"`
		// Empty entries fall back to the per-timeframe defaults.
		VerificationWindows map[string]time.Duration `yaml:"verification_windows"`
		SweepInterval       time.Duration            `yaml:"sweep_interval" default:"5m"`
		VerifyEvery         time.Duration            `yaml:"verify_every" default:"1m"`
	} `yaml:"tracker"`
	Learning struct {
		AutoRetrain     bool          `yaml:"auto_retrain"`
		CheckInterval   time.Duration `yaml:"check_interval" default:"1h"`
		MinAccuracy     float64       `yaml:"min_accuracy" default:"0.70"`
		MinPredictions  int           `yaml:"min_predictions" default:"100"`
		CheckDays       int           `yaml:"check_days" default:"7"`
		MaxModelAge     time.Duration `yaml:"max_model_age" default:"24h"`
		Symbol          string        `yaml:"symbol" default:"EURUSD"`
		Timeframe       string        `yaml:"timeframe" default:"H1"`
		NumBars         int           `yaml:"num_bars" default:"5000"`
		MinTrainingRows int           `yaml:"min_training_rows" default:"100"`
		TrainTimeout    time.Duration `yaml:"train_timeout" default:"30m"`
		Tuning          bool          `yaml:"tuning"`
	} `yaml:"learning"`
	Trainer struct {
		TestSize           float64 `yaml:"test_size" default:"0.2"`
		Seed               int64   `yaml:"seed" default:"42"`
		CVFolds            int     `yaml:"cv_folds" default:"5"`
		ChronologicalSplit bool    `yaml:"chronological_split"`
		GBT                struct {
			NEstimators    int     `yaml:"n_estimators" default:"100"`
			MaxDepth       int     `yaml:"max_depth" default:"6"`
			LearningRate   float64 `yaml:"learning_rate" default:"0.1"`
			Lambda         float64 `yaml:"lambda" default:"1"`
			MinChildWeight float64 `yaml:"min_child_weight" default:"1"`
		} `yaml:"gbt"`
		RF struct {
			NEstimators    int `yaml:"n_estimators" default:"100"`
			MaxDepth       int `yaml:"max_depth" default:"10"`
			MinSamplesLeaf int `yaml:"min_samples_leaf" default:"1"`
		} `yaml:"rf"`
		Weights struct {
			Boosting float64 `yaml:"boosting" default:"0.6"`
			Forest   float64 `yaml:"forest" default:"0.4"`
		} `yaml:"weights"`
	} `yaml:"trainer"`
	Sentiment struct {
		Timeframes string  `yaml:"timeframes" default:"M15,H1,H4"`
		Bars       int     `yaml:"bars" default:"500"`
		Threshold  float64 `yaml:"threshold" default:"0.1"`
	} `yaml:"sentiment"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	c := &Config{}
	_ = c.applyDefaults()
	return c
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
	if err := c.applyDefaults(); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads an optional .env next to the process, then the YAML
// file, then applies environment overrides and validates again.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("FINSENSE_STORAGE_BACKEND"); v != "" {
		c.Storage.Backend = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		host, port, ok := strings.Cut(v, ":")
		c.Redis.Host = host
		if ok {
			p, err := strconv.Atoi(port)
			if err != nil {
				return fmt.Errorf("parse REDIS_ADDR: %w", err)
			}
			c.Redis.Port = p
		}
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.Storage.Postgres.DSN = v
	}
	if v := os.Getenv("MODELS_DIR"); v != "" {
		c.Models.Dir = v
	}
	if v := os.Getenv("FEED_URL"); v != "" {
		c.Feed.HTTPURL = v
	}
	if v := os.Getenv("STREAM_API_KEY"); v != "" {
		c.Stream.APIKey = v
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Stream.Symbols = splitList(v)
	}
	return nil
}

func (c *Config) applyDefaults() error {
	return defaults.Set(c)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "badger", "clickhouse", "postgres":
	default:
		return fmt.Errorf("storage.backend must be 'badger', 'clickhouse' or 'postgres', got '%s'", c.Storage.Backend)
	}
	if c.Storage.Backend == "postgres" && c.Storage.Postgres.DSN == "" {
		return fmt.Errorf("storage.postgres.dsn is required for the postgres backend")
	}
	if c.Storage.Backend == "badger" && !c.Storage.Badger.InMemory && c.Storage.Badger.Path == "" {
		return fmt.Errorf("storage.badger.path is required")
	}
	switch c.Feed.Type {
	case "http":
		if c.Feed.HTTPURL == "" {
			return fmt.Errorf("feed.http_url is required for the http feed")
		}
	case "clickhouse":
	default:
		return fmt.Errorf("feed.type must be 'http' or 'clickhouse', got '%s'", c.Feed.Type)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Models.Dir == "" {
		return fmt.Errorf("models.dir is required")
	}
	if (c.Kafka.Enabled || c.Logging.Collector.Enabled) && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is used")
	}
	if c.Storage.Backend == "clickhouse" && !c.Redis.Enabled {
		// verify transitions on ClickHouse are serialized through a Redis lock
		return fmt.Errorf("storage.backend clickhouse requires redis.enabled")
	}
	if c.Queue.Enabled && !c.Redis.Enabled {
		return fmt.Errorf("queue.enabled requires redis.enabled")
	}
	if c.Stream.Enabled {
		if len(c.Stream.Symbols) == 0 {
			return fmt.Errorf("stream.symbols cannot be empty")
		}
		if c.Stream.APIKey == "" {
			return fmt.Errorf("stream.api_key is required")
		}
	}
	if c.Tracker.OutcomeThresholdPct <= 0 {
		return fmt.Errorf("tracker.outcome_threshold_pct must be positive")
	}
	if c.Learning.MinAccuracy < 0 || c.Learning.MinAccuracy > 1 {
		return fmt.Errorf("learning.min_accuracy must be within [0,1]")
	}
	if c.Trainer.TestSize <= 0 || c.Trainer.TestSize >= 1 {
		return fmt.Errorf("trainer.test_size must be within (0,1)")
	}
	if c.Trainer.CVFolds < 2 {
		return fmt.Errorf("trainer.cv_folds must be at least 2")
	}
	return nil
}

// RedisAddr joins host and port.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
