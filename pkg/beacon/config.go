// config.go defines the client configuration and its defaults.

package beacon

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Config is the configuration consumed by NewClient. It is read-only
// once the client is built.
type Config struct {
	// DSN is the ingestion endpoint batches are posted to.
	DSN string `mapstructure:"dsn"`

	// AppID is stamped on every record as app_id.
	AppID string `mapstructure:"app_id"`

	Sampling  SamplingConfig  `mapstructure:"sampling"`
	Transport TransportConfig `mapstructure:"transport"`

	// LayeredTransport enables per-tier policies. When nil every tier
	// uses the flat Transport policy.
	LayeredTransport *LayeredTransportConfig `mapstructure:"layered_transport"`

	Dedup   DedupConfig   `mapstructure:"dedup"`
	Session SessionConfig `mapstructure:"session"`
	Replay  ReplayConfig  `mapstructure:"replay"`

	// MaxBreadcrumbs is how many recent breadcrumbs are kept and
	// attached to events.
	MaxBreadcrumbs int `mapstructure:"max_breadcrumbs"`

	// Tiers overrides the default category to tier mapping.
	Tiers map[Category]Tier `mapstructure:"tiers"`

	// IntakeQueueSize bounds the channel between producers and the
	// pipeline. When full, the oldest queued observation is dropped.
	IntakeQueueSize int `mapstructure:"intake_queue_size"`

	// ShutdownTimeout bounds the final flush issued by Close.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// TransportConfig is the flat batching and delivery policy.
type TransportConfig struct {
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`

	// EnableOffline routes failed batches to the offline store. When
	// false they are dropped with a log.
	EnableOffline bool `mapstructure:"enable_offline"`

	// OfflineQueueSize is the offline store capacity in events.
	OfflineQueueSize int           `mapstructure:"offline_queue_size"`
	RetryInterval    time.Duration `mapstructure:"retry_interval"`

	// SendTimeout bounds every send. Expiry counts as a failure.
	SendTimeout time.Duration `mapstructure:"send_timeout"`

	// MaxRetryAttempts drops an offline record after this many failed
	// resends. Zero means unlimited.
	MaxRetryAttempts int `mapstructure:"max_retry_attempts"`

	// MaxEventBytes drops any single record whose encoding is larger.
	MaxEventBytes int `mapstructure:"max_event_bytes"`

	// Gzip compresses request bodies sent by the HTTP sender.
	Gzip bool `mapstructure:"gzip"`
}

// LayeredTransportConfig overrides the policy of individual tiers. A nil
// layer keeps its layered default: critical sends each event at once,
// normal uses the flat policy and auxiliary doubles it.
type LayeredTransportConfig struct {
	Critical  *LayerPolicy `mapstructure:"critical"`
	Normal    *LayerPolicy `mapstructure:"normal"`
	Auxiliary *LayerPolicy `mapstructure:"auxiliary"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Sampling: SamplingConfig{
			ErrorSampleRate:       1,
			PerformanceSampleRate: 1,
			WebVitalSampleRate:    1,
			Bypass:                []Category{CategoryCrash},
		},
		Transport: TransportConfig{
			BatchSize:        10,
			FlushInterval:    5 * time.Second,
			EnableOffline:    true,
			OfflineQueueSize: 100,
			RetryInterval:    30 * time.Second,
			SendTimeout:      10 * time.Second,
			MaxRetryAttempts: 10,
			MaxEventBytes:    256 << 10,
		},
		LayeredTransport: &LayeredTransportConfig{},
		Dedup: DedupConfig{
			MaxCacheSize: 100,
			TimeWindow:   5 * time.Second,
		},
		Session: SessionConfig{
			IdleTimeout: 30 * time.Minute,
		},
		Replay:          DefaultReplayConfig(),
		MaxBreadcrumbs:  20,
		IntakeQueueSize: 1000,
		ShutdownTimeout: 2 * time.Second,
	}
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error

	if c.DSN != "" {
		u, err := url.Parse(c.DSN)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("dsn %q is not an absolute URL", c.DSN))
		}
	}
	for name, rate := range map[string]float64{
		"sampling.error_sample_rate":       c.Sampling.ErrorSampleRate,
		"sampling.performance_sample_rate": c.Sampling.PerformanceSampleRate,
		"sampling.web_vital_sample_rate":   c.Sampling.WebVitalSampleRate,
		"replay.on_error_sample_rate":      c.Replay.OnErrorSampleRate,
		"replay.session_sample_rate":       c.Replay.SessionSampleRate,
	} {
		if rate < 0 || rate > 1 {
			errs = append(errs, fmt.Errorf("%s must be in [0,1], got %v", name, rate))
		}
	}

	t := c.Transport
	if t.BatchSize < 1 {
		errs = append(errs, errors.New("transport.batch_size must be at least 1"))
	}
	if t.FlushInterval < 0 || t.RetryInterval < 0 || t.SendTimeout < 0 {
		errs = append(errs, errors.New("transport intervals must not be negative"))
	}
	if t.EnableOffline && t.OfflineQueueSize < 1 {
		errs = append(errs, errors.New("transport.offline_queue_size must be at least 1 when offline mode is enabled"))
	}
	if t.MaxRetryAttempts < 0 {
		errs = append(errs, errors.New("transport.max_retry_attempts must not be negative"))
	}

	if l := c.LayeredTransport; l != nil {
		for name, p := range map[string]*LayerPolicy{"critical": l.Critical, "normal": l.Normal, "auxiliary": l.Auxiliary} {
			if p != nil && (p.BatchSize < 1 || p.FlushInterval < 0) {
				errs = append(errs, fmt.Errorf("layered_transport.%s: batch_size must be at least 1 and flush_interval not negative", name))
			}
		}
	}

	for cat, tier := range c.Tiers {
		if !tier.Valid() {
			errs = append(errs, fmt.Errorf("tiers.%s: unknown tier %q", cat, tier))
		}
	}
	if c.Replay.Enabled {
		if _, err := codecFor(c.Replay.Codec); err != nil {
			errs = append(errs, fmt.Errorf("replay.codec: %w", err))
		}
	}
	if c.IntakeQueueSize < 1 {
		errs = append(errs, errors.New("intake_queue_size must be at least 1"))
	}

	return errors.Join(errs...)
}
