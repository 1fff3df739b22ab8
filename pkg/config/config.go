package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"PortDelta/pkg/util"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Log         struct {
		Level   string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format  string `yaml:"format" default:"console" validate:"oneof=console json"`
		Output  string `yaml:"output" default:"stdout"`
		NoColor bool   `yaml:"no_color"`
	} `yaml:"log"`
	Server struct {
		Enabled         bool          `yaml:"enabled" default:"true"`
		Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		RefreshBurst    int           `yaml:"refresh_burst" default:"3" validate:"gte=1"`
		RefreshPerSec   float64       `yaml:"refresh_per_sec" default:"0.2" validate:"gt=0"`
		CORSOrigins     []string      `yaml:"cors_origins"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Portfolio struct {
		Path string `yaml:"path" default:"~/stocks.csv" validate:"required"`
	} `yaml:"portfolio"`
	Scheduler struct {
		Interval   time.Duration `yaml:"interval" default:"5s" validate:"gte=1s"`
		RunOnStart bool          `yaml:"run_on_start" default:"true"`
	} `yaml:"scheduler"`
	Valuation struct {
		FetchTimeout         time.Duration `yaml:"fetch_timeout" default:"8s" validate:"gt=0"`
		Concurrency          int           `yaml:"concurrency" default:"4" validate:"gte=1,lte=64"`
		Currency             string        `yaml:"currency" default:"USD" validate:"len=3"`
		StrictReferenceDates bool          `yaml:"strict_reference_dates"`
		Console              bool          `yaml:"console" default:"true"`
		Color                bool          `yaml:"color" default:"true"`
	} `yaml:"valuation"`
	Calendar struct {
		Provider      string        `yaml:"provider" default:"static" validate:"oneof=static alpaca"`
		Timezone      string        `yaml:"timezone" default:"America/New_York" validate:"required"`
		MaxLookback   int           `yaml:"max_lookback" default:"10" validate:"gte=1,lte=366"`
		MemoTTL       time.Duration `yaml:"memo_ttl" default:"6h"`
		ExtraHolidays []string      `yaml:"extra_holidays"`
	} `yaml:"calendar"`
	Prices struct {
		Provider string `yaml:"provider" default:"alpaca" validate:"oneof=alpaca eodhd clickhouse"`
	} `yaml:"prices"`
	Alpaca struct {
		APIKey    string `yaml:"api_key"`
		APISecret string `yaml:"api_secret"`
		BaseURL   string `yaml:"base_url"`
		DataURL   string `yaml:"data_url"`
		Feed      string `yaml:"feed" default:"iex" validate:"oneof=iex sip delayed_sip"`
	} `yaml:"alpaca"`
	EODHD struct {
		APIKey    string        `yaml:"api_key"`
		BaseURL   string        `yaml:"base_url" default:"https://eodhd.com/api"`
		Exchange  string        `yaml:"exchange" default:"US"`
		RateLimit int           `yaml:"rate_limit" default:"10" validate:"gte=1"`
		Timeout   time.Duration `yaml:"timeout" default:"10s"`
	} `yaml:"eodhd"`
	Finnhub struct {
		Enabled        bool          `yaml:"enabled"`
		APIKey         string        `yaml:"api_key"`
		WebSocketURL   string        `yaml:"websocket_url" default:"wss://ws.finnhub.io"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
		PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
		MaxQuoteAge    time.Duration `yaml:"max_quote_age" default:"2m"`
		MaxRPS         int           `yaml:"max_rps" default:"20"`
		BufferSize     int           `yaml:"buffer_size" default:"1000"`
		StoreTicks     bool          `yaml:"store_ticks"`
		TickBatchSize  int           `yaml:"tick_batch_size" default:"500" validate:"gte=1"`
		TickFlush      time.Duration `yaml:"tick_flush_interval" default:"1s"`
	} `yaml:"finnhub"`
	Cache struct {
		Backend    string `yaml:"backend" default:"memory" validate:"oneof=memory redis layered"`
		MemorySize int    `yaml:"memory_size" default:"1000" validate:"gte=0"`
		Redis      struct {
			Host         string        `yaml:"host" default:"localhost"`
			Port         int           `yaml:"port" default:"6379"`
			Password     string        `yaml:"password"`
			DB           int           `yaml:"db"`
			Prefix       string        `yaml:"prefix" default:"portdelta"`
			PoolSize     int           `yaml:"pool_size" default:"10"`
			MinIdleConns int           `yaml:"min_idle_conns" default:"2"`
			PoolTimeout  time.Duration `yaml:"pool_timeout" default:"30s"`
			ResetOnStart bool          `yaml:"reset_on_start" default:"true"`
		} `yaml:"redis"`
	} `yaml:"cache"`
	Kafka struct {
		Enabled         bool     `yaml:"enabled"`
		Brokers         []string `yaml:"brokers"`
		Topic           string   `yaml:"topic" default:"portfolio.valuations"`
		RequiredAcks    int      `yaml:"required_acks" default:"-1"`
		Compression     string   `yaml:"compression" default:"gzip" validate:"oneof=gzip snappy lz4 zstd"`
		AutoCreateTopic bool     `yaml:"auto_create_topic"`
		Producer        struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"portdelta"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"10s"`
	} `yaml:"clickhouse"`
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

// Parse applies defaults, decodes YAML on top and validates.
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
// Secrets are usually supplied this way rather than in the file.
func LoadWithEnv(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		b = nil
	}

	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	c.applyEnv()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		c.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		c.Alpaca.APISecret = v
	}
	if v := os.Getenv("EODHD_API_KEY"); v != "" {
		c.EODHD.APIKey = v
	}
	if v := os.Getenv("FINNHUB_API_KEY"); v != "" {
		c.Finnhub.APIKey = v
	}
	if v := os.Getenv("PORTFOLIO_PATH"); v != "" {
		c.Portfolio.Path = v
	}
	if v := os.Getenv("PRICE_PROVIDER"); v != "" {
		c.Prices.Provider = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		host, port, ok := strings.Cut(v, ":")
		c.Cache.Backend = "redis"
		c.Cache.Redis.Host = host
		if n, err := strconv.Atoi(port); ok && err == nil {
			c.Cache.Redis.Port = n
		}
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = util.SplitList(v)
		c.Kafka.Enabled = true
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if _, err := time.LoadLocation(c.Calendar.Timezone); err != nil {
		return fmt.Errorf("calendar.timezone: %w", err)
	}
	for _, h := range c.Calendar.ExtraHolidays {
		if _, err := time.Parse("2006-01-02", h); err != nil {
			return fmt.Errorf("calendar.extra_holidays: %q is not YYYY-MM-DD", h)
		}
	}
	switch c.Prices.Provider {
	case "alpaca":
		if c.Alpaca.APIKey == "" || c.Alpaca.APISecret == "" {
			return fmt.Errorf("alpaca.api_key and alpaca.api_secret are required for prices.provider=alpaca")
		}
	case "eodhd":
		if c.EODHD.APIKey == "" {
			return fmt.Errorf("eodhd.api_key is required for prices.provider=eodhd")
		}
	case "clickhouse":
		if c.ClickHouse.Host == "" {
			return fmt.Errorf("clickhouse.host is required for prices.provider=clickhouse")
		}
	}
	if c.Calendar.Provider == "alpaca" && (c.Alpaca.APIKey == "" || c.Alpaca.APISecret == "") {
		return fmt.Errorf("alpaca credentials are required for calendar.provider=alpaca")
	}
	if c.Finnhub.Enabled && c.Finnhub.APIKey == "" {
		return fmt.Errorf("finnhub.api_key is required when finnhub.enabled")
	}
	if c.Finnhub.StoreTicks && c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required when finnhub.store_ticks")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka.enabled")
	}
	return nil
}

// NeedsClickHouse reports whether any enabled component talks to ClickHouse.
func (c *Config) NeedsClickHouse() bool {
	return c.Prices.Provider == "clickhouse" || (c.Finnhub.Enabled && c.Finnhub.StoreTicks)
}

// Location returns the exchange time zone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Calendar.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ExpandPath replaces a leading ~ with the user's home directory.
func ExpandPath(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
