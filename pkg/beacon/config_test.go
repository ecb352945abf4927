package beacon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 10, cfg.Transport.BatchSize)
	assert.Equal(t, 5*time.Second, cfg.Transport.FlushInterval)
	assert.Equal(t, 100, cfg.Dedup.MaxCacheSize)
	assert.Equal(t, 5*time.Second, cfg.Dedup.TimeWindow)
	assert.Equal(t, 256<<10, cfg.Transport.MaxEventBytes)
	assert.NotNil(t, cfg.LayeredTransport)
}

func TestConfig_ValidateReportsEveryProblem(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DSN = "not a url"
	cfg.Sampling.ErrorSampleRate = 1.5
	cfg.Transport.BatchSize = 0
	cfg.Tiers = map[Category]Tier{CategoryCustom: "urgent"}
	cfg.LayeredTransport = &LayeredTransportConfig{Critical: &LayerPolicy{BatchSize: 0}}
	cfg.Replay.Enabled = true
	cfg.Replay.Codec = "brotli"
	cfg.IntakeQueueSize = 0

	err := cfg.Validate()
	for _, want := range []string{
		"dsn",
		"sampling.error_sample_rate",
		"transport.batch_size",
		"tiers.custom",
		"layered_transport.critical",
		"replay.codec",
		"intake_queue_size",
	} {
		assert.ErrorContains(t, err, want)
	}
}

func TestConfig_OfflineNeedsCapacity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Transport.OfflineQueueSize = 0
	assert.ErrorContains(t, cfg.Validate(), "offline_queue_size")

	cfg.Transport.EnableOffline = false
	assert.NoError(t, cfg.Validate())
}
