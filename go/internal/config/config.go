package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/mcdev12/auctionhouse/go/internal/auction"
	"github.com/mcdev12/auctionhouse/go/internal/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when AUCTION_CONFIG is unset
const DefaultPath = "config.yaml"

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Auction AuctionConfig `yaml:"auction"`
	NATS    NATSConfig    `yaml:"nats"`
	Log     LogConfig     `yaml:"log"`

	// Items replaces the built-in catalog when non-empty.
	Items []ItemConfig `yaml:"items"`
}

type ServerConfig struct {
	Port            string        `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

type AuctionConfig struct {
	TickInterval  time.Duration `yaml:"tick_interval"`
	RestartDelay  time.Duration `yaml:"restart_delay"`
	DurationMin   time.Duration `yaml:"duration_min"`
	DurationMax   time.Duration `yaml:"duration_max"`
	MinIncrement  float64       `yaml:"min_increment"`
	MaxQueueDepth int           `yaml:"max_queue_depth"`
}

// NATSConfig enables the JetStream relay when URL is set
type NATSConfig struct {
	URL     string `yaml:"url"`
	Stream  string `yaml:"stream"`
	Subject string `yaml:"subject_prefix"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

type ItemConfig struct {
	ID            string  `yaml:"id"`
	Title         string  `yaml:"title"`
	Description   string  `yaml:"description"`
	ImageURL      string  `yaml:"image_url"`
	StartingPrice float64 `yaml:"starting_price"`
}

// Default returns the settings used when nothing is configured
func Default() Config {
	engine := auction.DefaultConfig()
	return Config{
		Server: ServerConfig{
			Port:            "8080",
			ShutdownTimeout: 10 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		Auction: AuctionConfig{
			TickInterval:  engine.TickInterval,
			RestartDelay:  engine.RestartDelay,
			DurationMin:   engine.DurationMin,
			DurationMax:   engine.DurationMax,
			MinIncrement:  engine.MinIncrement,
			MaxQueueDepth: engine.MaxQueueDepth,
		},
		NATS: NATSConfig{
			Stream:  "AUCTION_EVENTS",
			Subject: "auction.events",
		},
		Log: LogConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}

// Load reads the YAML file at path on top of the defaults, then applies
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Debug().Str("path", path).Msg("config file not found, using defaults")
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromEnv loads the file named by AUCTION_CONFIG
func LoadFromEnv() (*Config, error) {
	return Load(getEnv("AUCTION_CONFIG", DefaultPath))
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)

	c.Auction.TickInterval = getEnvAsDuration("TICK_INTERVAL", c.Auction.TickInterval)
	c.Auction.RestartDelay = getEnvAsDuration("RESTART_DELAY", c.Auction.RestartDelay)
	c.Auction.DurationMin = getEnvAsDuration("AUCTION_DURATION_MIN", c.Auction.DurationMin)
	c.Auction.DurationMax = getEnvAsDuration("AUCTION_DURATION_MAX", c.Auction.DurationMax)
	c.Auction.MinIncrement = getEnvAsFloat("MIN_INCREMENT", c.Auction.MinIncrement)
	c.Auction.MaxQueueDepth = getEnvAsInt("MAX_QUEUE_DEPTH", c.Auction.MaxQueueDepth)
}

// Validate checks the settings the engine cannot recover from at runtime
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("server port is required")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive, got %s", c.Server.ShutdownTimeout)
	}
	a := c.Auction
	if a.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive, got %s", a.TickInterval)
	}
	if a.RestartDelay < 0 {
		return fmt.Errorf("restart delay must not be negative, got %s", a.RestartDelay)
	}
	if a.DurationMin <= 0 || a.DurationMax < a.DurationMin {
		return fmt.Errorf("invalid auction duration range [%s, %s]", a.DurationMin, a.DurationMax)
	}
	if a.MinIncrement <= 0 {
		return fmt.Errorf("min increment must be positive, got %v", a.MinIncrement)
	}
	if a.MaxQueueDepth < 0 {
		return fmt.Errorf("max queue depth must not be negative, got %d", a.MaxQueueDepth)
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}

	seen := make(map[string]bool, len(c.Items))
	for i, item := range c.Items {
		if item.ID == "" {
			return fmt.Errorf("items[%d]: id is required", i)
		}
		if seen[item.ID] {
			return fmt.Errorf("items[%d]: duplicate id %q", i, item.ID)
		}
		seen[item.ID] = true
		if item.StartingPrice <= 0 {
			return fmt.Errorf("items[%d]: starting price must be positive", i)
		}
	}
	return nil
}

// LogLevel parses the configured zerolog level
func (c *Config) LogLevel() (zerolog.Level, error) {
	level, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q: %w", c.Log.Level, err)
	}
	return level, nil
}

// EngineConfig converts to the auction engine's settings
func (c *Config) EngineConfig() auction.Config {
	cfg := auction.DefaultConfig()
	cfg.TickInterval = c.Auction.TickInterval
	cfg.RestartDelay = c.Auction.RestartDelay
	cfg.DurationMin = c.Auction.DurationMin
	cfg.DurationMax = c.Auction.DurationMax
	cfg.MinIncrement = c.Auction.MinIncrement
	cfg.MaxQueueDepth = c.Auction.MaxQueueDepth
	return cfg
}

// Catalog returns the configured items, or the built-in catalog when none are set
func (c *Config) Catalog() []models.AuctionItem {
	if len(c.Items) == 0 {
		return auction.DefaultCatalog()
	}
	items := make([]models.AuctionItem, 0, len(c.Items))
	for _, item := range c.Items {
		items = append(items, models.AuctionItem{
			ID:            item.ID,
			Title:         item.Title,
			Description:   item.Description,
			ImageURL:      item.ImageURL,
			StartingPrice: item.StartingPrice,
		})
	}
	return items
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
		log.Warn().Str("key", key).Str("value", value).Msg("ignoring non-integer environment value")
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
		log.Warn().Str("key", key).Str("value", value).Msg("ignoring non-numeric environment value")
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		log.Warn().Str("key", key).Str("value", value).Msg("ignoring invalid duration environment value")
	}
	return defaultValue
}
