package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Log         struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"console"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"log"`
	Server struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		RateLimit       struct {
			RPS   float64 `yaml:"rps" default:"5"`
			Burst int     `yaml:"burst" default:"10"`
		} `yaml:"rate_limit"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"marketlabel"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	} `yaml:"clickhouse"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		JobsTopic    string   `yaml:"jobs_topic" default:"marketlabel.jobs"`
		EventsTopic  string   `yaml:"events_topic" default:"marketlabel.events"`
		LogsTopic    string   `yaml:"logs_topic"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"gzip"`
		AutoCreate   bool     `yaml:"auto_create_topics"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"100ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"marketlabel"`
			Workers    int           `yaml:"workers" default:"2"`
			BufferSize int           `yaml:"buffer_size" default:"16"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10000000"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr" default:"localhost:6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix" default:"marketlabel"`
	} `yaml:"redis"`
	// Queue runs label jobs from a Redis list when Kafka is not available.
	Queue struct {
		Enabled    bool          `yaml:"enabled"`
		Workers    int           `yaml:"workers" default:"2"`
		RetryLimit int           `yaml:"retry_limit" default:"3"`
		RetryDelay time.Duration `yaml:"retry_delay" default:"10s"`
	} `yaml:"queue"`
	Labeling Labeling `yaml:"labeling"`
}

// Labeling holds every tunable of the trend and volume labelers.
type Labeling struct {
	Timeframe string        `yaml:"timeframe" default:"1m" validate:"oneof=1s 1m 5m"`
	Lookback  time.Duration `yaml:"lookback" default:"24h" validate:"gt=0"`
	CacheTTL  time.Duration `yaml:"cache_ttl" default:"10m"`
	LockTTL   time.Duration `yaml:"lock_ttl" default:"5m" validate:"gt=0"`
	Features  Features      `yaml:"features"`
	Trend     Trend         `yaml:"trend"`
	Volume    Volume        `yaml:"volume"`
}

// Features configures the MACD signal line the trend segmenter runs on.
type Features struct {
	DecaySM      int `yaml:"decay_sm" default:"12" validate:"gte=1"`
	DecayLM      int `yaml:"decay_lm" default:"26" validate:"gtfield=DecaySM"`
	DecaySignal  int `yaml:"decay_signal" default:"9" validate:"gte=1"`
	PeriodSignal int `yaml:"period_signal" default:"9" validate:"gte=1"`
}

type Trend struct {
	OrderForFallRise            int     `yaml:"order_for_fall_rise" default:"10" validate:"gte=1"`
	OrderForFlat                int     `yaml:"order_for_flat" default:"3" validate:"gte=1"`
	WindowSizeForRollingMean    int     `yaml:"window_size_for_rolling_mean" default:"3" validate:"gte=1"`
	LeftBorderForFlatDetection  float64 `yaml:"left_border_for_flat_detection" default:"-0.2"`
	RightBorderForFlatDetection float64 `yaml:"right_border_for_flat_detection" default:"0.2" validate:"gtfield=LeftBorderForFlatDetection"`
}

// Volume durations are in minutes, matching the historical config keys.
type Volume struct {
	ColumnsRollingMean []int     `yaml:"columns_rolling_mean" default:"[10,30,60]" validate:"min=1,dive,gte=1"`
	MeanIndicator      int       `yaml:"mean_indicator" default:"5" validate:"gte=1"`
	ThresholdIndicator float64   `yaml:"threshold_indicator" default:"0.05"`
	GapEndDate         int       `yaml:"gap_end_date" default:"60" validate:"gte=1"`
	StepToEndDate      int       `yaml:"step_to_end_date" default:"5" validate:"gte=1,ltfield=GapEndDate"`
	Laps               []int     `yaml:"laps" default:"[3,6]" validate:"min=1,dive,gte=1"`
	Thresholds         []float64 `yaml:"thresholds" default:"[1.0,0.7]" validate:"min=1"`
	FinalThreshold     float64   `yaml:"final_threshold" default:"0.5"`
	Workers            int       `yaml:"workers" default:"1" validate:"gte=1"`
}

var validate = validator.New()

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse applies defaults, overlays YAML and validates.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
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

	if v := os.Getenv("ENVIRONMENT"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}
	if c.Queue.Enabled && !c.Redis.Enabled {
		return fmt.Errorf("queue.enabled requires redis.enabled")
	}
	return c.Labeling.Validate()
}

// Validate checks the labeling tunables on their own; callers that build
// a Labeling by hand (tests, the CLI) use it directly.
func (l *Labeling) Validate() error {
	if err := validate.Struct(l); err != nil {
		return fmt.Errorf("labeling: %w", err)
	}
	v := l.Volume
	if len(v.Thresholds) != len(v.Laps) {
		return fmt.Errorf("labeling.volume: %d thresholds for %d laps", len(v.Thresholds), len(v.Laps))
	}
	for i := 1; i < len(v.Laps); i++ {
		if v.Laps[i] <= v.Laps[i-1] {
			return fmt.Errorf("labeling.volume.laps must be strictly increasing, got %v", v.Laps)
		}
	}
	return nil
}

// DefaultLabeling returns the labeling section with every default applied.
func DefaultLabeling() Labeling {
	var l Labeling
	_ = defaults.Set(&l)
	return l
}
