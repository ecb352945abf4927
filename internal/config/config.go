// Package config loads the beacon command configuration from an optional
// YAML file and BEACON_* environment variables using Viper.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/strongdm/ai-beacon/pkg/beacon"
	"github.com/strongdm/ai-beacon/pkg/beacon/senders/sqs"
)

// EnvPrefix prefixes every environment variable. Nested keys join with
// an underscore, so transport.batch_size is BEACON_TRANSPORT_BATCH_SIZE.
const EnvPrefix = "BEACON"

// Sender kinds accepted in Senders.
const (
	SenderHTTP   = "http"
	SenderStderr = "stderr"
	SenderSQS    = "sqs"
	SenderKafka  = "kafka"
	SenderCXDB   = "cxdb"
	SenderNoop   = "noop"
)

var senderKinds = []string{SenderHTTP, SenderStderr, SenderSQS, SenderKafka, SenderCXDB, SenderNoop}

// Config is the client configuration plus the settings the command
// needs to build senders, logging and the metrics exporter.
type Config struct {
	beacon.Config `mapstructure:",squash"`

	// Environment selects the log format ("production" or anything else).
	Environment string `mapstructure:"environment"`
	// LogLevel overrides the environment's default log level.
	LogLevel string `mapstructure:"log_level"`

	// Senders lists the delivery targets. Several are fanned out.
	Senders []string `mapstructure:"senders"`
	// Verbose makes the stderr sender print stacks and payload fields.
	Verbose bool `mapstructure:"verbose"`
	// OfflineFile persists the offline store across restarts when set.
	OfflineFile string `mapstructure:"offline_file"`

	SQS     sqs.Config    `mapstructure:"sqs"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	CXDB    CXDBConfig    `mapstructure:"cxdb"`
	OTLP    OTLPConfig    `mapstructure:"otlp"`
	Receive ReceiveConfig `mapstructure:"receive"`
}

// KafkaConfig locates the topic for the kafka sender.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// CXDBConfig locates the cxdb server for the cxdb sender.
type CXDBConfig struct {
	Addr      string   `mapstructure:"addr"`
	ClientTag string   `mapstructure:"client_tag"`
	Labels    []string `mapstructure:"labels"`
}

// OTLPConfig enables exporting pipeline metrics over OTLP/gRPC. Empty
// Endpoint disables the exporter.
type OTLPConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	Insecure bool          `mapstructure:"insecure"`
	Interval time.Duration `mapstructure:"interval"`
}

// ReceiveConfig configures the development ingest endpoint.
type ReceiveConfig struct {
	Addr string `mapstructure:"addr"`
	Path string `mapstructure:"path"`
}

// Load reads path (if non-empty), then overlays BEACON_* environment
// variables and validates the result. Unset keys keep the values of
// beacon.DefaultConfig.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, beacon.DefaultConfig())

	cfg := Config{Config: beacon.DefaultConfig()}
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults registers every leaf key so AutomaticEnv can resolve it
// during Unmarshal.
func setDefaults(v *viper.Viper, d beacon.Config) {
	v.SetDefault("dsn", d.DSN)
	v.SetDefault("app_id", d.AppID)

	v.SetDefault("sampling.error_sample_rate", d.Sampling.ErrorSampleRate)
	v.SetDefault("sampling.performance_sample_rate", d.Sampling.PerformanceSampleRate)
	v.SetDefault("sampling.web_vital_sample_rate", d.Sampling.WebVitalSampleRate)
	v.SetDefault("sampling.deterministic", d.Sampling.Deterministic)
	v.SetDefault("sampling.bypass", d.Sampling.Bypass)

	v.SetDefault("transport.batch_size", d.Transport.BatchSize)
	v.SetDefault("transport.flush_interval", d.Transport.FlushInterval)
	v.SetDefault("transport.enable_offline", d.Transport.EnableOffline)
	v.SetDefault("transport.offline_queue_size", d.Transport.OfflineQueueSize)
	v.SetDefault("transport.retry_interval", d.Transport.RetryInterval)
	v.SetDefault("transport.send_timeout", d.Transport.SendTimeout)
	v.SetDefault("transport.max_retry_attempts", d.Transport.MaxRetryAttempts)
	v.SetDefault("transport.max_event_bytes", d.Transport.MaxEventBytes)
	v.SetDefault("transport.gzip", d.Transport.Gzip)

	v.SetDefault("dedup.max_cache_size", d.Dedup.MaxCacheSize)
	v.SetDefault("dedup.time_window", d.Dedup.TimeWindow)
	v.SetDefault("session.idle_timeout", d.Session.IdleTimeout)

	v.SetDefault("replay.enabled", d.Replay.Enabled)
	v.SetDefault("replay.pre_window", d.Replay.PreWindow)
	v.SetDefault("replay.post_window", d.Replay.PostWindow)
	v.SetDefault("replay.max_frames", d.Replay.MaxFrames)
	v.SetDefault("replay.on_error_sample_rate", d.Replay.OnErrorSampleRate)
	v.SetDefault("replay.session_sample_rate", d.Replay.SessionSampleRate)
	v.SetDefault("replay.codec", d.Replay.Codec)

	v.SetDefault("max_breadcrumbs", d.MaxBreadcrumbs)
	v.SetDefault("intake_queue_size", d.IntakeQueueSize)
	v.SetDefault("shutdown_timeout", d.ShutdownTimeout)

	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "")
	v.SetDefault("senders", []string{SenderStderr})
	v.SetDefault("verbose", false)
	v.SetDefault("offline_file", "")

	v.SetDefault("sqs.region", "us-east-1")
	v.SetDefault("sqs.queue_url", "")
	v.SetDefault("sqs.endpoint", "")
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "beacon-events")
	v.SetDefault("cxdb.addr", "")
	v.SetDefault("cxdb.client_tag", "beacon")
	v.SetDefault("cxdb.labels", []string{"beacon", "error"})
	v.SetDefault("otlp.endpoint", "")
	v.SetDefault("otlp.insecure", false)
	v.SetDefault("otlp.interval", 15*time.Second)
	v.SetDefault("receive.addr", ":8080")
	v.SetDefault("receive.path", "/ingest")
}

// Validate reports every invalid setting, including those of the
// embedded client configuration.
func (c *Config) Validate() error {
	errs := []error{c.Config.Validate()}

	if len(c.Senders) == 0 {
		errs = append(errs, errors.New("config: senders must name at least one sender"))
	}
	for _, kind := range c.Senders {
		switch kind {
		case SenderHTTP:
			if c.DSN == "" {
				errs = append(errs, errors.New("config: the http sender requires dsn"))
			}
		case SenderSQS:
			if c.SQS.QueueURL == "" {
				errs = append(errs, errors.New("config: the sqs sender requires sqs.queue_url"))
			}
		case SenderKafka:
			if len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "" {
				errs = append(errs, errors.New("config: the kafka sender requires kafka.brokers and kafka.topic"))
			}
		case SenderCXDB:
			if c.CXDB.Addr == "" {
				errs = append(errs, errors.New("config: the cxdb sender requires cxdb.addr"))
			}
		default:
			if !slices.Contains(senderKinds, kind) {
				errs = append(errs, fmt.Errorf("config: unknown sender %q", kind))
			}
		}
	}
	if c.OTLP.Endpoint != "" && c.OTLP.Interval <= 0 {
		errs = append(errs, errors.New("config: otlp.interval must be positive"))
	}

	return errors.Join(errs...)
}
