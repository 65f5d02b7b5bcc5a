package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// V2XTEL_OBSERVER_PORT=6000.
const EnvPrefix = "V2XTEL"

var ErrInvalidConfig = errors.New("invalid config")

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

type AgentConfig struct {
	Name string `mapstructure:"name"`
}

// ObserverConfig is the UDP endpoint the external listener binds.
type ObserverConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	WriteTimeoutMs int    `mapstructure:"write_timeout_ms"`
}

type ReplayConfig struct {
	TracePath string  `mapstructure:"trace_path"`
	Speed     float64 `mapstructure:"speed"`
}

type HealthConfig struct {
	Port string `mapstructure:"port"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type Config struct {
	Agent    AgentConfig    `mapstructure:"agent"`
	Observer ObserverConfig `mapstructure:"observer"`
	Replay   ReplayConfig   `mapstructure:"replay"`
	Health   HealthConfig   `mapstructure:"health"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// Addr returns the observer endpoint in host:port form.
func (o ObserverConfig) Addr() string {
	return net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
}

func (o ObserverConfig) WriteTimeout() time.Duration {
	return time.Duration(o.WriteTimeoutMs) * time.Millisecond
}

// RegisterFlags adds the command line overrides understood by LoadConfig.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "config.yaml", "path to the YAML config file")
	fs.String("trace", "", "trace file to replay (overrides replay.trace_path)")
	fs.Float64("speed", 0, "replay speed factor, 0 replays as fast as possible")
	fs.String("observer", "", "observer endpoint host:port (overrides observer.host/port)")
}

// Defaults returns the configuration used when no file is present.
func Defaults() *Config {
	v := newViper()
	var cfg Config
	// defaults only; cannot fail
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("agent.name", "v2x-telemetry-agent")
	v.SetDefault("observer.host", "127.0.0.1")
	v.SetDefault("observer.port", 5005)
	v.SetDefault("observer.write_timeout_ms", 50)
	v.SetDefault("replay.trace_path", "")
	v.SetDefault("replay.speed", 0.0)
	v.SetDefault("health.port", "8085")
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "v2x.telemetry")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	return v
}

// LoadConfig reads path (skipped when empty), applies env overrides and
// then any flags that were explicitly set in fs. fs may be nil.
func LoadConfig(path string, fs *pflag.FlagSet) (*Config, error) {
	v := newViper()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if fs != nil {
		if err := bindFlags(v, fs); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if fs != nil {
		if f := fs.Lookup("observer"); f != nil && f.Changed {
			host, port, err := net.SplitHostPort(f.Value.String())
			if err != nil {
				return nil, fmt.Errorf("%w: --observer: %v", ErrInvalidConfig, err)
			}
			p, err := strconv.Atoi(port)
			if err != nil {
				return nil, fmt.Errorf("%w: --observer port %q", ErrInvalidConfig, port)
			}
			cfg.Observer.Host, cfg.Observer.Port = host, p
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	bindings := map[string]string{
		"replay.trace_path": "trace",
		"replay.speed":      "speed",
	}
	for key, name := range bindings {
		f := fs.Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Validate rejects settings the forwarder could never use.
func (c *Config) Validate() error {
	if c.Observer.Host == "" {
		return fmt.Errorf("%w: observer.host is empty", ErrInvalidConfig)
	}
	if c.Observer.Port < 1 || c.Observer.Port > 65535 {
		return fmt.Errorf("%w: observer.port %d out of range", ErrInvalidConfig, c.Observer.Port)
	}
	if c.Replay.Speed < 0 {
		return fmt.Errorf("%w: replay.speed must not be negative", ErrInvalidConfig)
	}

	// quick sanity checks
	if c.Observer.WriteTimeoutMs <= 0 {
		c.Observer.WriteTimeoutMs = 50
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "v2x.telemetry"
	}
	return nil
}
