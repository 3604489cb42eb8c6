package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/vrischmann/envconfig"
	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("invalid config")

const (
	DefaultLogFile = "/var/log/monyt.log"

	MetricsNone       = "none"
	MetricsStatsd     = "statsd"
	MetricsPrometheus = "prometheus"
)

type Config struct {
	Region    string          `yaml:"region"`
	Profile   string          `yaml:"profile"`
	Tag       string          `yaml:"tag"`
	Pattern   string          `yaml:"pattern"`
	Ping      PingConfig      `yaml:"ping"`
	Log       LogConfig       `yaml:"log"`
	Migration MigrationConfig `yaml:"migration"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Events    EventsConfig    `yaml:"events"`
	Gossip    GossipConfig    `yaml:"gossip"`
}

// PingConfig times are whole seconds, as in the historical config files.
type PingConfig struct {
	Num                     int    `yaml:"num"`
	Timeout                 int    `yaml:"timeout"`
	NextPing                int    `yaml:"nextping"`
	Cooldown                int    `yaml:"cooldown"`
	Strategy                string `yaml:"strategy"`
	Port                    uint16 `yaml:"port"`
	FailuresBeforeFailover  int    `yaml:"failures_before_failover"`
	SuccessesBeforeRecovery int    `yaml:"successes_before_recovery"`
}

func (c PingConfig) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

func (c PingConfig) NextPingInterval() time.Duration {
	return time.Duration(c.NextPing) * time.Second
}

func (c PingConfig) CooldownInterval() time.Duration {
	return time.Duration(c.Cooldown) * time.Second
}

type LogConfig struct {
	Level string `yaml:"log_level"`
	File  string `yaml:"logfile"`
	// MaxSize is in megabytes.
	MaxSize   int   `yaml:"max_log_size"`
	Retention int   `yaml:"retention"`
	Console   *bool `yaml:"console"`
}

func (c LogConfig) ConsoleEnabled() bool {
	return c.Console == nil || *c.Console
}

type MigrationConfig struct {
	Attempts       uint    `yaml:"attempts"`
	ClaimOnStart   *bool   `yaml:"claim_on_start"`
	CallsPerSecond float64 `yaml:"calls_per_second"`
}

func (c MigrationConfig) ClaimEnabled() bool {
	return c.ClaimOnStart == nil || *c.ClaimOnStart
}

type MetricsConfig struct {
	Backend    string `yaml:"backend"`
	StatsdAddr string `yaml:"statsd_addr"`
	Listen     string `yaml:"listen"`
}

type EventsConfig struct {
	Brokers        []string `yaml:"brokers"`
	Topic          string   `yaml:"topic"`
	ResendInterval int      `yaml:"resend_interval"`
}

func (c EventsConfig) ResendDuration() time.Duration {
	return time.Duration(c.ResendInterval) * time.Second
}

type GossipConfig struct {
	Port          int `yaml:"port"`
	ProbeInterval int `yaml:"probe_interval"`
	ProbeTimeout  int `yaml:"probe_timeout"`
}

// Overrides are read from the environment and win over the file.
type Overrides struct {
	LogLevel       string   `envconfig:"MONYT_LOG_LEVEL"`
	Region         string   `envconfig:"MONYT_REGION"`
	Profile        string   `envconfig:"MONYT_PROFILE"`
	KafkaBrokers   []string `envconfig:"MONYT_KAFKA_BROKERS"`
	MetricsBackend string   `envconfig:"MONYT_METRICS_BACKEND"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	overrides := Overrides{}
	err = envconfig.InitWithOptions(&overrides, envconfig.Options{AllOptional: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read env overrides: %w", err)
	}
	cfg.apply(overrides)

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML or JSON config data and fills in defaults.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	err := yaml.Unmarshal(data, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

func (c *Config) apply(o Overrides) {
	if o.LogLevel != "" {
		c.Log.Level = o.LogLevel
	}
	if o.Region != "" {
		c.Region = o.Region
	}
	if o.Profile != "" {
		c.Profile = o.Profile
	}
	if len(o.KafkaBrokers) != 0 {
		c.Events.Brokers = o.KafkaBrokers
	}
	if o.MetricsBackend != "" {
		c.Metrics.Backend = o.MetricsBackend
	}
}

func (c *Config) ApplyDefaults() {
	setDefault(&c.Ping.Num, 3)
	setDefault(&c.Ping.Timeout, 2)
	setDefault(&c.Ping.NextPing, 30)
	setDefault(&c.Ping.Cooldown, 60)
	setDefault(&c.Ping.Strategy, "icmp")
	setDefault(&c.Ping.FailuresBeforeFailover, 1)
	setDefault(&c.Ping.SuccessesBeforeRecovery, 1)

	setDefault(&c.Log.Level, "INFO")
	setDefault(&c.Log.File, DefaultLogFile)
	setDefault(&c.Log.MaxSize, 10)
	setDefault(&c.Log.Retention, 5)

	setDefault(&c.Migration.Attempts, 3)
	setDefault(&c.Migration.CallsPerSecond, 5)

	setDefault(&c.Metrics.Backend, MetricsNone)
	setDefault(&c.Metrics.StatsdAddr, "127.0.0.1:8125")
	setDefault(&c.Metrics.Listen, "0.0.0.0:8080")

	setDefault(&c.Events.Topic, "monyt.failover")
	setDefault(&c.Events.ResendInterval, 30)

	setDefault(&c.Gossip.Port, 7946)
	setDefault(&c.Gossip.ProbeInterval, 1)
	setDefault(&c.Gossip.ProbeTimeout, 1)
}

func setDefault[T comparable](field *T, value T) {
	var zero T
	if *field == zero {
		*field = value
	}
}

func (c *Config) Validate() error {
	var problems []string
	if c.Tag == "" {
		problems = append(problems, "tag is required")
	}
	if c.Pattern == "" {
		problems = append(problems, "pattern is required")
	}
	if c.Ping.Num < 0 || c.Ping.Timeout < 0 || c.Ping.NextPing < 0 || c.Ping.Cooldown < 0 {
		problems = append(problems, "ping values must be positive")
	}
	if c.Ping.FailuresBeforeFailover < 0 || c.Ping.SuccessesBeforeRecovery < 0 {
		problems = append(problems, "ping thresholds must be positive")
	}
	switch c.Ping.Strategy {
	case "icmp", "gossip":
	case "tcp":
		if c.Ping.Port == 0 {
			problems = append(problems, "ping.port is required by the tcp strategy")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown ping.strategy %q", c.Ping.Strategy))
	}
	switch c.Metrics.Backend {
	case MetricsNone, MetricsStatsd, MetricsPrometheus:
	default:
		problems = append(problems, fmt.Sprintf("unknown metrics.backend %q", c.Metrics.Backend))
	}
	if c.Migration.CallsPerSecond < 0 {
		problems = append(problems, "migration.calls_per_second must be positive")
	}
	if len(problems) != 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}
