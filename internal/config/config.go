// Package config loads decoder settings from an optional YAML file, IRIGB_ environment
// variables and built-in defaults, in that order of precedence (environment wins).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sweeney/irigb-decoder/internal/gpio"
)

// EnvPrefix prefixes every environment override, e.g. IRIGB_DECODER_BATCH_SIZE.
const EnvPrefix = "IRIGB"

type Config struct {
	Decoder DecoderConfig `mapstructure:"decoder"`
	Logging LoggingConfig `mapstructure:"logging"`
	MQTT    MQTTConfig    `mapstructure:"mqtt"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	GPIO    GPIOConfig    `mapstructure:"gpio"`
}

type DecoderConfig struct {
	SpikeRemovalEnabled bool   `mapstructure:"spike_removal_enabled"`
	DebugLogging        bool   `mapstructure:"debug_logging"`
	ItemStyle           string `mapstructure:"item_style"` // frame or pulse
	BatchSize           int    `mapstructure:"batch_size"` // edges per cancellation check window
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`   // json or text
	Output     string `mapstructure:"output"`   // stdout, stderr, or file path
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
}

type MQTTConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Broker   string `mapstructure:"broker"`
	Topic    string `mapstructure:"topic"`
	ClientID string `mapstructure:"client_id"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"` // empty disables the status server
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type GPIOConfig struct {
	Chip     string        `mapstructure:"chip"`
	Pin      int           `mapstructure:"pin"`
	Duration time.Duration `mapstructure:"duration"`
}

// Load reads configPath if non-empty, applies environment overrides and validates the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Default returns the built-in defaults without reading files or the environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(err)
	}
	return &cfg
}

// setDefaults registers every key; AutomaticEnv only resolves keys viper already knows.
func setDefaults(v *viper.Viper) {
	v.SetDefault("decoder.spike_removal_enabled", true)
	v.SetDefault("decoder.debug_logging", false)
	v.SetDefault("decoder.item_style", "frame")
	v.SetDefault("decoder.batch_size", 4096)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age", 30)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.topic", "timing/irigb/frames")
	v.SetDefault("mqtt.client_id", "irigb-decoder")

	v.SetDefault("http.addr", "")
	v.SetDefault("http.shutdown_timeout", "5s")

	v.SetDefault("gpio.chip", gpio.DefaultChip)
	v.SetDefault("gpio.pin", gpio.DefaultPin)
	v.SetDefault("gpio.duration", "5s")
}

var validLevels = map[string]bool{
	"panic": true,
	"fatal": true,
	"error": true,
	"warn":  true,
	"info":  true,
	"debug": true,
	"trace": true,
}

func (c *Config) Validate() error {
	if err := c.Decoder.Validate(); err != nil {
		return fmt.Errorf("decoder config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	if err := c.MQTT.Validate(); err != nil {
		return fmt.Errorf("mqtt config: %w", err)
	}
	if err := c.GPIO.Validate(); err != nil {
		return fmt.Errorf("gpio config: %w", err)
	}
	return nil
}

func (d *DecoderConfig) Validate() error {
	switch strings.ToLower(d.ItemStyle) {
	case "frame", "pulse":
	default:
		return fmt.Errorf("item_style must be 'frame' or 'pulse', got %q", d.ItemStyle)
	}
	if d.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive")
	}
	return nil
}

func (l *LoggingConfig) Validate() error {
	if !validLevels[l.Level] {
		return fmt.Errorf("invalid log level: %s", l.Level)
	}
	if l.Format != "json" && l.Format != "text" {
		return errors.New("log format must be 'json' or 'text'")
	}
	if l.Output != "stdout" && l.Output != "stderr" {
		if l.Output == "" {
			return errors.New("output is required")
		}
		if l.MaxSize <= 0 {
			return errors.New("max_size must be positive for file output")
		}
		if l.MaxBackups < 0 {
			return errors.New("max_backups cannot be negative")
		}
		if l.MaxAge < 0 {
			return errors.New("max_age cannot be negative")
		}
	}
	return nil
}

func (m *MQTTConfig) Validate() error {
	if !m.Enabled {
		return nil
	}
	if m.Broker == "" {
		return errors.New("broker is required when mqtt is enabled")
	}
	if m.Topic == "" {
		return errors.New("topic is required when mqtt is enabled")
	}
	return nil
}

func (g *GPIOConfig) Validate() error {
	if g.Pin < 0 {
		return fmt.Errorf("invalid pin: %d", g.Pin)
	}
	if g.Duration <= 0 {
		return errors.New("duration must be positive")
	}
	return nil
}
