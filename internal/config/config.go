// Package config loads the settings of the mediator binaries from a file and
// MEDIATOR_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	mediator "github.com/TheAlpha16/mediator-go"
	"github.com/TheAlpha16/mediator-go/internal/logging"
)

const envPrefix = "MEDIATOR"

type Config struct {
	Log       logging.Config  `mapstructure:"log"`
	Mediator  MediatorConfig  `mapstructure:"mediator"`
	Transport TransportConfig `mapstructure:"transport"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type MediatorConfig struct {
	// Source is stamped on every message the bus sends.
	Source string `mapstructure:"source" validate:"required"`
	// MaxConcurrency > 0 enables concurrent fan-out for fire-and-forget dispatch.
	MaxConcurrency int  `mapstructure:"max_concurrency" validate:"gte=0"`
	Describe       bool `mapstructure:"describe"`
}

type TransportConfig struct {
	Kind       string       `mapstructure:"kind"        validate:"required,oneof=memory valkey kafka"`
	BufferSize int          `mapstructure:"buffer_size" validate:"gte=0"`
	Workers    int          `mapstructure:"workers"     validate:"gte=0"`
	Valkey     ValkeyConfig `mapstructure:"valkey"`
	Kafka      KafkaConfig  `mapstructure:"kafka"`
}

type ValkeyConfig struct {
	Address string `mapstructure:"address"`
	Channel string `mapstructure:"channel"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr" validate:"required_if=Enabled true"`
	Path    string `mapstructure:"path" validate:"required_if=Enabled true"`
}

// MediatorOptions maps the configuration onto mediator options.
func (c *Config) MediatorOptions(logger *slog.Logger, metrics *mediator.Metrics) []mediator.Option {
	opts := []mediator.Option{
		mediator.WithLogger(logger),
		mediator.WithSource(c.Mediator.Source),
		mediator.WithMsgBufferSize(c.Transport.BufferSize),
		mediator.WithWorkers(c.Transport.Workers),
		mediator.WithConcurrentFanOut(c.Mediator.MaxConcurrency),
	}
	if metrics != nil {
		opts = append(opts, mediator.WithMetrics(metrics))
	}
	return opts
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.service", "mediator")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)
	v.SetDefault("log.compress", false)

	v.SetDefault("mediator.source", "mediator")
	v.SetDefault("mediator.max_concurrency", 0)
	v.SetDefault("mediator.describe", true)

	v.SetDefault("transport.kind", "memory")
	v.SetDefault("transport.buffer_size", 100)
	v.SetDefault("transport.workers", 4)
	v.SetDefault("transport.valkey.address", "localhost:6379")
	v.SetDefault("transport.valkey.channel", "mediator")
	v.SetDefault("transport.kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("transport.kafka.topic", "mediator")
	v.SetDefault("transport.kafka.group_id", "mediator")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9090")
	v.SetDefault("metrics.path", "/metrics")
}

func transportStructLevel(sl validator.StructLevel) {
	t := sl.Current().Interface().(TransportConfig)
	switch t.Kind {
	case "valkey":
		if t.Valkey.Address == "" {
			sl.ReportError(t.Valkey.Address, "Valkey.Address", "Address", "required_for_valkey", "")
		}
		if t.Valkey.Channel == "" {
			sl.ReportError(t.Valkey.Channel, "Valkey.Channel", "Channel", "required_for_valkey", "")
		}
	case "kafka":
		if len(t.Kafka.Brokers) == 0 {
			sl.ReportError(t.Kafka.Brokers, "Kafka.Brokers", "Brokers", "required_for_kafka", "")
		}
		if t.Kafka.Topic == "" {
			sl.ReportError(t.Kafka.Topic, "Kafka.Topic", "Topic", "required_for_kafka", "")
		}
	}
}

// Loader reads a Config and can watch its file for changes.
type Loader struct {
	v        *viper.Viper
	validate *validator.Validate
	mu       sync.Mutex
}

// NewLoader prepares a loader for path. An empty path loads defaults and
// environment variables only.
func NewLoader(path string) *Loader {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
	}

	validate := validator.New()
	validate.RegisterStructValidation(transportStructLevel, TransportConfig{})

	return &Loader{v: v, validate: validate}
}

func (l *Loader) Load() (*Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.v.ConfigFileUsed() != "" {
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return l.decode()
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := l.validate.Struct(&cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return nil, fmt.Errorf("config validation failed: %w", verrs)
		}
		return nil, err
	}
	return &cfg, nil
}

// Watch calls onChange with the reloaded configuration every time the file
// changes. Invalid configurations are passed as errors.
func (l *Loader) Watch(onChange func(*Config, error)) {
	l.v.OnConfigChange(func(event fsnotify.Event) {
		if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
			return
		}
		l.mu.Lock()
		cfg, err := l.decode()
		l.mu.Unlock()
		onChange(cfg, err)
	})
	l.v.WatchConfig()
}

// Load is a shortcut for NewLoader(path).Load().
func Load(path string) (*Config, error) {
	return NewLoader(path).Load()
}
